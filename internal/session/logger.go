// Package session persists every healing attempt as one append-only
// markdown record and reads aggregate statistics back out of them. The
// document structure embeds a stable marker sub-grammar (**Status:**,
// **Type:**, **Program:**, **Function:**, **Timestamp:**, **Confidence:**,
// **Explanation:**) that the reader parses; treat those literal markers
// as a wire format.
package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"reflexruntime/internal/logging"
	"reflexruntime/internal/types"
)

// Logger writes session records into a directory, one file per session.
type Logger struct {
	dir string
}

// NewLogger creates a session logger writing into dir (default "debug").
// The directory is created on first use, not here.
func NewLogger(dir string) *Logger {
	if dir == "" {
		dir = "debug"
	}
	return &Logger{dir: dir}
}

// Dir returns the session directory.
func (l *Logger) Dir() string { return l.dir }

// Record persists one complete analysis session, success or failure.
// Identity is {program}_{function}_{epoch-seconds}.md; two failures of the
// same function within one second collide and the later write wins, an
// accepted limitation. Write failures are reported as a warning and an
// empty path; they never abort the orchestration flow that triggered them.
func (l *Logger) Record(ec types.ErrorContext, proposal *types.PatchProposal, success bool, rawResponse, errorMessage string) string {
	if err := os.MkdirAll(l.dir, 0755); err != nil {
		logging.SessionWarn("failed to create session directory %s: %v", l.dir, err)
		fmt.Fprintf(os.Stderr, "WARNING: Failed to log debug session: %v\n", err)
		return ""
	}

	program := programName(ec.FilePath)
	function := ec.FunctionName()
	epoch := time.Now().Unix()

	filename := fmt.Sprintf("%s_%s_%d.md", program, function, epoch)
	path := filepath.Join(l.dir, filename)

	content := renderRecord(ec, proposal, success, rawResponse, errorMessage)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		logging.SessionWarn("failed to write session record %s: %v", path, err)
		fmt.Fprintf(os.Stderr, "WARNING: Failed to log debug session: %v\n", err)
		return ""
	}

	logging.Session("session recorded: %s success=%v", filename, success)
	return path
}

// programName derives the record's program component from the failing
// file's path: basename without extension, spaces and dashes normalized.
func programName(filePath string) string {
	if filePath == "" || filePath == "unknown" {
		return "unknown"
	}
	name := filepath.Base(filePath)
	name = strings.TrimSuffix(name, filepath.Ext(name))
	name = strings.ReplaceAll(name, " ", "_")
	name = strings.ReplaceAll(name, "-", "_")
	return name
}

func renderRecord(ec types.ErrorContext, proposal *types.PatchProposal, success bool, rawResponse, errorMessage string) string {
	status := "FAILED"
	if success {
		status = "SUCCESS"
	}
	timestamp := time.Now().Format("2006-01-02 15:04:05")

	var b strings.Builder

	fmt.Fprintf(&b, "# ReflexRuntime Debug Session - %s\n\n", status)
	fmt.Fprintf(&b, "**Status:** %s  \n", status)
	fmt.Fprintf(&b, "**Timestamp:** %s  \n", timestamp)
	fmt.Fprintf(&b, "**Program:** %s  \n", programName(ec.FilePath))
	fmt.Fprintf(&b, "**Function:** %s  \n", ec.TargetFQN)
	fmt.Fprintf(&b, "**File:** %s  \n", ec.FilePath)
	fmt.Fprintf(&b, "**Line:** %d  \n\n", ec.LineNumber)
	b.WriteString("---\n\n")

	b.WriteString("## Exception Details\n\n")
	fmt.Fprintf(&b, "**Type:** `%s`  \n", ec.ExceptionType)
	fmt.Fprintf(&b, "**Message:** `%s`  \n\n", ec.ExceptionMessage)
	fmt.Fprintf(&b, "### Full Traceback\n```\n%s\n```\n\n", ec.TracebackStr)
	fmt.Fprintf(&b, "### Local Variables at Error\n```json\n%s\n```\n\n", formatLocals(ec.LocalVars))
	b.WriteString("---\n\n")

	fmt.Fprintf(&b, "## Original Code\n\n```go\n%s\n```\n\n", ec.SourceCode)
	b.WriteString("---\n\n")

	b.WriteString("## AI Analysis\n\n")
	if proposal != nil {
		b.WriteString("### AI Recommendation\n")
		fmt.Fprintf(&b, "**Confidence:** %s  \n", formatConfidence(proposal.Confidence))
		fmt.Fprintf(&b, "**Explanation:** %s\n\n", proposal.Explanation)
		fmt.Fprintf(&b, "### AI-Generated Patch\n```go\n%s\n```\n\n", proposal.PatchCode)
		b.WriteString("### Test Cases Suggested\n")
		for i, tc := range proposal.TestCases {
			fmt.Fprintf(&b, "%d. %s\n", i+1, tc)
		}
	} else {
		b.WriteString("**Result:** AI could not generate a patch for this exception.\n")
	}

	if rawResponse != "" {
		fmt.Fprintf(&b, "\n### Raw LLM Response\n```json\n%s\n```\n", rawResponse)
	}

	b.WriteString("\n---\n\n## Patch Application\n\n")
	if success {
		b.WriteString("**Patch applied successfully!**\n\n")
		b.WriteString("The function was hot-swapped in the live namespace and now handles the error case gracefully.\n")
	} else {
		b.WriteString("**Patch application failed.**\n\n")
		if errorMessage != "" {
			fmt.Fprintf(&b, "**Error:** %s\n\n", errorMessage)
		}
		b.WriteString("The original function remains unchanged.\n")
	}

	confidence := "N/A"
	if proposal != nil {
		confidence = formatConfidence(proposal.Confidence)
	}
	patchStatus := "Failed"
	if success {
		patchStatus = "Applied"
	}

	b.WriteString("\n---\n\n## Session Summary\n\n")
	fmt.Fprintf(&b, "- **Exception Type:** %s\n", ec.ExceptionType)
	fmt.Fprintf(&b, "- **AI Confidence:** %s\n", confidence)
	fmt.Fprintf(&b, "- **Patch Status:** %s\n", patchStatus)
	fmt.Fprintf(&b, "- **Function:** %s\n", ec.TargetFQN)
	b.WriteString("\n---\n\n*Generated by ReflexRuntime Session Logger*\n")

	return b.String()
}

func formatConfidence(c float64) string {
	return fmt.Sprintf("%.1f%%", c*100)
}

func formatLocals(locals map[string]any) string {
	if len(locals) == 0 {
		return "{}"
	}
	data, err := json.MarshalIndent(locals, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", locals)
	}
	return string(data)
}
