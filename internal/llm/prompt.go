package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"reflexruntime/internal/types"
)

// systemPrompt pins the reply format; the healing pipeline depends on a
// single JSON object coming back.
const systemPrompt = "You are an expert Go developer who analyzes runtime failures and " +
	"generates safe, minimal replacement functions. Always respond with valid JSON " +
	"containing the patch code, explanation, and confidence score."

// BuildPrompt renders the captured failure into the deterministic analysis
// prompt. The same context always yields the same prompt text, which keeps
// repeated failures of the same shape producing consistent patches.
func BuildPrompt(ec types.ErrorContext) string {
	var b strings.Builder

	b.WriteString("You are ReflexRuntime, a system that automatically repairs Go programs at runtime. ")
	b.WriteString("A function has panicked and you must generate a replacement that handles this failure gracefully.\n\n")

	b.WriteString("**CRITICAL REQUIREMENTS:**\n")
	b.WriteString("1. You MUST respond with ONLY valid JSON - no markdown, no text outside the JSON\n")
	b.WriteString("2. The \"patch_code\" field must contain one complete Go function definition\n")
	b.WriteString("3. The function must have the EXACT same name and signature as the original\n")
	b.WriteString("4. Only the standard library may be imported\n")
	b.WriteString("5. Handle the failing case explicitly instead of panicking\n\n")

	fmt.Fprintf(&b, "**Failure Analysis:**\n")
	fmt.Fprintf(&b, "- Exception Type: %s\n", ec.ExceptionType)
	fmt.Fprintf(&b, "- Exception Message: %s\n", ec.ExceptionMessage)
	fmt.Fprintf(&b, "- Failed Function: %s\n", ec.TargetFQN)
	fmt.Fprintf(&b, "- Error Location: %s, line %d\n\n", ec.FilePath, ec.LineNumber)

	fmt.Fprintf(&b, "**Original Function Source Code:**\n```go\n%s\n```\n\n", ec.SourceCode)
	fmt.Fprintf(&b, "**Full Traceback:**\n```\n%s\n```\n\n", ec.TracebackStr)
	fmt.Fprintf(&b, "**Local Variables at Time of Error:**\n%s\n\n", renderLocals(ec.LocalVars))

	b.WriteString("**Your Task:**\n")
	b.WriteString("Analyze the failure and produce a patched version of the function that:\n")
	b.WriteString("- Handles the specific case that failed\n")
	b.WriteString("- Returns a reasonable value instead of panicking\n")
	b.WriteString("- Preserves normal behavior for valid inputs\n\n")

	b.WriteString("**Required JSON Response Format:**\n")
	b.WriteString("{\n")
	b.WriteString("    \"patch_code\": \"func exactName(same Params) ReturnType {\\n    // handle the failing case, keep normal behavior\\n}\",\n")
	b.WriteString("    \"explanation\": \"Concise explanation of what was fixed and how the error is now handled\",\n")
	b.WriteString("    \"confidence\": 0.85,\n")
	b.WriteString("    \"test_cases\": [\"a scenario that triggered the original failure\", \"a scenario that must keep working\"]\n")
	b.WriteString("}\n\n")
	b.WriteString("Respond with ONLY the JSON - no additional text:\n")

	return b.String()
}

// renderLocals produces the JSON rendering embedded in the prompt and in
// session records. Unserializable maps degrade to a string form.
func renderLocals(locals map[string]any) string {
	if len(locals) == 0 {
		return "{}"
	}
	data, err := json.MarshalIndent(locals, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", locals)
	}
	return string(data)
}
