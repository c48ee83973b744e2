// Package applier hot-swaps a proposed replacement function into a live
// namespace. The proposal's source text is evaluated with the namespace's
// interpreter; on success the existing binding is replaced, so future
// lookups observe the new definition while previously obtained references
// keep the old one. Hot-swap is a rebinding, not an in-place mutation.
package applier

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/traefik/yaegi/interp"

	"reflexruntime/internal/logging"
	"reflexruntime/internal/registry"
	"reflexruntime/internal/types"
)

// funcHeaderRe extracts the declared function name from a patch's
// function-definition header.
var funcHeaderRe = regexp.MustCompile(`func\s+([A-Za-z_][A-Za-z0-9_]*)\s*\(`)

// Applier applies patch proposals against a namespace manager.
type Applier struct {
	namespaces *registry.Manager
}

// New creates an applier over the given namespace manager.
func New(namespaces *registry.Manager) *Applier {
	return &Applier{namespaces: namespaces}
}

// Apply hot-swaps the function defined by the proposal into the namespace
// resolved from the error context's target FQN. A nil error means the swap
// is confirmed: the name is bound and callable with the original signature.
// All failure modes return a descriptive error; the original binding is left
// untouched on every failure path.
func (a *Applier) Apply(ec types.ErrorContext, proposal *types.PatchProposal) (*types.PatchResult, error) {
	if proposal == nil {
		return nil, fmt.Errorf("no patch proposal to apply")
	}
	result := types.NewPatchResult(ec.TargetFQN, proposal.PatchCode)

	fail := func(err error) (*types.PatchResult, error) {
		result.MarkFailed(err.Error())
		logging.ApplyError("patch %s rejected: %v", result.PatchID, err)
		return result, err
	}

	name, ok := ExtractFunctionName(proposal.PatchCode)
	if !ok {
		return fail(fmt.Errorf("could not extract function name from patch code"))
	}
	logging.ApplyDebug("patch %s: extracted function name %q", result.PatchID, name)

	ns := a.namespaces.Resolve(ec.TargetFQN)

	old, exists := ns.Lookup(name)
	if !exists {
		// A missing binding signals a context-derivation bug upstream;
		// refusing here avoids silently creating new names.
		return fail(fmt.Errorf("function %q not found in namespace %s", name, ns.Name()))
	}
	if old.Kind() != reflect.Func {
		return fail(fmt.Errorf("existing binding %q in namespace %s is not callable", name, ns.Name()))
	}

	src := wrapSource(proposal.PatchCode)
	if _, err := ns.Eval(src); err != nil {
		if _, isPanic := err.(interp.Panic); !isPanic {
			// Compile, parse, or type error: hard failure, no guessing.
			return fail(fmt.Errorf("patch source failed to compile: %w", err))
		}
		// A panic raised as a side effect of evaluating the definition is
		// tolerated as long as the symbol ends up bound below.
		logging.ApplyDebug("patch %s: evaluation side effect panicked: %v", result.PatchID, err)
	}

	sym, err := ns.Eval("main." + name)
	if err != nil || !sym.IsValid() {
		return fail(fmt.Errorf("patch did not define function %q: %v", name, err))
	}
	if sym.Kind() != reflect.Func {
		return fail(fmt.Errorf("patched symbol %q is not callable (got %s)", name, sym.Kind()))
	}
	if sym.Type() != old.Type() {
		// In a dynamic runtime a signature drift would surface lazily at
		// call time; here it would make every future typed call panic.
		return fail(fmt.Errorf("patched function %q has signature %s, original is %s", name, sym.Type(), old.Type()))
	}

	ns.Rebind(name, sym)
	result.MarkApplied()
	logging.Apply("patch %s applied: %s hot-swapped in namespace %s (confidence %.2f)",
		result.PatchID, name, ns.Name(), proposal.Confidence)
	return result, nil
}

// ExtractFunctionName pattern-matches the declared name out of a
// function-definition header. Returns false when no header is present.
func ExtractFunctionName(patchCode string) (string, bool) {
	m := funcHeaderRe.FindStringSubmatch(patchCode)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// wrapSource prefixes a bare function definition with a package clause so
// the interpreter accepts it as a file. Only a real package clause counts;
// a patch that merely mentions one in a comment or string still gets
// wrapped.
func wrapSource(code string) string {
	if hasPackageClause(code) {
		return code
	}
	return "package main\n\n" + code
}

// hasPackageClause reports whether the first non-comment line of code is a
// package clause.
func hasPackageClause(code string) bool {
	inBlockComment := false
	for _, line := range strings.Split(code, "\n") {
		line = strings.TrimSpace(line)
		if inBlockComment {
			if idx := strings.Index(line, "*/"); idx >= 0 {
				line = strings.TrimSpace(line[idx+2:])
				inBlockComment = false
			} else {
				continue
			}
		}
		for strings.HasPrefix(line, "/*") {
			idx := strings.Index(line[2:], "*/")
			if idx < 0 {
				inBlockComment = true
				break
			}
			line = strings.TrimSpace(line[idx+4:])
		}
		if inBlockComment || line == "" || strings.HasPrefix(line, "//") {
			continue
		}
		return strings.HasPrefix(line, "package ")
	}
	return false
}
