// Package registry holds the live, rebindable function bindings that patches
// hot-swap. A Namespace is the Go rendition of a dynamic module namespace:
// callers that look a function up by name observe rebinds; callers that kept
// a direct reference to an earlier value do not. Each namespace owns one
// yaegi interpreter so patch source can be evaluated into it.
package registry

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"

	"reflexruntime/internal/logging"
)

// MainNamespace is the top-level execution namespace, the analogue of a
// script's own global scope. Simple names resolve here first.
const MainNamespace = "main"

// Namespace is a named set of function bindings plus the interpreter used to
// evaluate replacement definitions.
type Namespace struct {
	name string

	mu       sync.RWMutex
	bindings map[string]reflect.Value
	interp   *interp.Interpreter
}

func newNamespace(name string) (*Namespace, error) {
	i := interp.New(interp.Options{})
	if err := i.Use(stdlib.Symbols); err != nil {
		return nil, fmt.Errorf("failed to load stdlib symbols: %w", err)
	}
	return &Namespace{
		name:     name,
		bindings: make(map[string]reflect.Value),
		interp:   i,
	}, nil
}

// Name returns the namespace identifier.
func (ns *Namespace) Name() string { return ns.name }

// Register binds a native Go function under the given name. The binding is
// what the applier later rebinds; register every function that should be
// eligible for healing.
func (ns *Namespace) Register(name string, fn any) error {
	if name == "" {
		return fmt.Errorf("binding name cannot be empty")
	}
	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func {
		return fmt.Errorf("binding %q is not a function (got %s)", name, v.Kind())
	}
	ns.mu.Lock()
	ns.bindings[name] = v
	ns.mu.Unlock()
	logging.ApplyDebug("namespace %s: registered %s %s", ns.name, name, v.Type())
	return nil
}

// Lookup returns the current binding for name. The returned value is a
// snapshot: it keeps working unchanged across later rebinds.
func (ns *Namespace) Lookup(name string) (reflect.Value, bool) {
	ns.mu.RLock()
	defer ns.mu.RUnlock()
	v, ok := ns.bindings[name]
	return v, ok
}

// Call invokes the binding currently held under name. This is the lookup
// path that observes hot-swaps. Arguments must be assignable to the bound
// function's parameters.
func (ns *Namespace) Call(name string, args ...any) (results []any, err error) {
	fn, ok := ns.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("no binding named %q in namespace %s", name, ns.name)
	}

	ft := fn.Type()
	if !ft.IsVariadic() && ft.NumIn() != len(args) {
		return nil, fmt.Errorf("%s.%s expects %d arguments, got %d", ns.name, name, ft.NumIn(), len(args))
	}

	in := make([]reflect.Value, len(args))
	for i, a := range args {
		if a == nil {
			in[i] = reflect.Zero(ft.In(i))
			continue
		}
		av := reflect.ValueOf(a)
		var want reflect.Type
		if ft.IsVariadic() && i >= ft.NumIn()-1 {
			want = ft.In(ft.NumIn() - 1).Elem()
		} else {
			want = ft.In(i)
		}
		if av.Type() != want {
			if !av.Type().ConvertibleTo(want) {
				return nil, fmt.Errorf("%s.%s argument %d: cannot use %s as %s", ns.name, name, i, av.Type(), want)
			}
			av = av.Convert(want)
		}
		in[i] = av
	}

	out := fn.Call(in)
	results = make([]any, len(out))
	for i, v := range out {
		results[i] = v.Interface()
	}
	return results, nil
}

// Rebind replaces the binding for name. The caller is responsible for having
// validated the replacement; normally only the applier calls this.
func (ns *Namespace) Rebind(name string, fn reflect.Value) {
	ns.mu.Lock()
	ns.bindings[name] = fn
	ns.mu.Unlock()
	logging.Apply("namespace %s: rebound %s", ns.name, name)
}

// Eval evaluates source text in this namespace's interpreter.
func (ns *Namespace) Eval(src string) (reflect.Value, error) {
	ns.mu.Lock()
	defer ns.mu.Unlock()
	return ns.interp.Eval(src)
}

// Names returns the bound names, for diagnostics.
func (ns *Namespace) Names() []string {
	ns.mu.RLock()
	defer ns.mu.RUnlock()
	names := make([]string, 0, len(ns.bindings))
	for n := range ns.bindings {
		names = append(names, n)
	}
	return names
}

// Manager owns the process's namespaces and resolves target FQNs to one of
// them. Resolution never fails; unresolvable targets fall back to Main.
type Manager struct {
	mu         sync.RWMutex
	namespaces map[string]*Namespace
}

// NewManager creates a manager with an initialized Main namespace.
func NewManager() (*Manager, error) {
	main, err := newNamespace(MainNamespace)
	if err != nil {
		return nil, err
	}
	return &Manager{
		namespaces: map[string]*Namespace{MainNamespace: main},
	}, nil
}

// Main returns the top-level execution namespace.
func (m *Manager) Main() *Namespace {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.namespaces[MainNamespace]
}

// Namespace returns (creating if needed) the namespace with the given name.
func (m *Manager) Namespace(name string) (*Namespace, error) {
	m.mu.RLock()
	ns, ok := m.namespaces[name]
	m.mu.RUnlock()
	if ok {
		return ns, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if ns, ok := m.namespaces[name]; ok {
		return ns, nil
	}
	ns, err := newNamespace(name)
	if err != nil {
		return nil, err
	}
	m.namespaces[name] = ns
	return ns, nil
}

// Resolve maps a target FQN to the namespace that should hold its binding:
// the Main namespace when it already binds the simple name, else a namespace
// registered under the FQN's scope prefix, else Main. Nested and method
// scopes are not modeled; their FQNs land in Main and the applier's
// existing-binding check rejects them with an explicit reason.
func (m *Manager) Resolve(fqn string) *Namespace {
	simple := simpleName(fqn)
	main := m.Main()
	if _, ok := main.Lookup(simple); ok {
		return main
	}

	if scope := scopeName(fqn); scope != "" && scope != "unknown" {
		m.mu.RLock()
		ns, ok := m.namespaces[scope]
		m.mu.RUnlock()
		if ok {
			return ns
		}
	}
	return main
}

func simpleName(fqn string) string {
	for i := len(fqn) - 1; i >= 0; i-- {
		if fqn[i] == '.' {
			return fqn[i+1:]
		}
	}
	return fqn
}

func scopeName(fqn string) string {
	for i := len(fqn) - 1; i >= 0; i-- {
		if fqn[i] == '.' {
			return fqn[:i]
		}
	}
	return ""
}
