// Package errors formats the pass's fatal diagnostics with source context,
// line/column information, and visual indicators (carets) pointing to the
// offending location.
package errors

import (
	"fmt"
	"go/token"
	"strings"
)

// Diagnostic represents a single fatal error with position and source
// context, such as a tree-shape contract violation caught by the rewriter.
// Configuration problems are reported through ConfigError instead.
type Diagnostic struct {
	Message string
	Source  string
	File    string
	Pos     token.Position
}

// NewDiagnostic creates a new diagnostic.
func NewDiagnostic(pos token.Position, message, source, file string) *Diagnostic {
	return &Diagnostic{
		Pos:     pos,
		Message: message,
		Source:  source,
		File:    file,
	}
}

// Error implements the error interface.
func (d *Diagnostic) Error() string {
	return d.Format(false)
}

// Format formats the diagnostic with source context.
// If color is true, ANSI color codes are used for terminal output.
func (d *Diagnostic) Format(color bool) string {
	var sb strings.Builder

	if d.File != "" {
		sb.WriteString(fmt.Sprintf("Error in %s:%d:%d\n", d.File, d.Pos.Line, d.Pos.Column))
	} else {
		sb.WriteString(fmt.Sprintf("Error at line %d:%d\n", d.Pos.Line, d.Pos.Column))
	}

	sourceLine := d.getSourceLine(d.Pos.Line)
	if sourceLine != "" {
		lineNumStr := fmt.Sprintf("%4d | ", d.Pos.Line)
		sb.WriteString(lineNumStr)
		sb.WriteString(sourceLine)
		sb.WriteString("\n")

		sb.WriteString(strings.Repeat(" ", len(lineNumStr)+d.Pos.Column-1))
		if color {
			sb.WriteString("\033[1;31m") // Red bold
		}
		sb.WriteString("^")
		if color {
			sb.WriteString("\033[0m") // Reset
		}
		sb.WriteString("\n")
	}

	if color {
		sb.WriteString("\033[1m") // Bold
	}
	sb.WriteString(d.Message)
	if color {
		sb.WriteString("\033[0m") // Reset
	}

	return sb.String()
}

// getSourceLine extracts a specific line from the source code. Lines are
// 1-indexed.
func (d *Diagnostic) getSourceLine(lineNum int) string {
	if d.Source == "" {
		return ""
	}

	lines := strings.Split(d.Source, "\n")
	if lineNum < 1 || lineNum > len(lines) {
		return ""
	}

	return lines[lineNum-1]
}

// FormatDiagnostics formats multiple diagnostics, each with its own source
// context.
func FormatDiagnostics(diags []*Diagnostic, color bool) string {
	if len(diags) == 0 {
		return ""
	}

	if len(diags) == 1 {
		return diags[0].Format(color)
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("failed with %d error(s):\n\n", len(diags)))

	for i, d := range diags {
		sb.WriteString(fmt.Sprintf("[Error %d of %d]\n", i+1, len(diags)))
		sb.WriteString(d.Format(color))
		if i < len(diags)-1 {
			sb.WriteString("\n\n")
		}
	}

	return sb.String()
}

// ConfigError reports a fatal configuration problem detected before the pass
// starts: a malformed TOML file, a bad collector address, or an unknown
// rewrite-kind string. It carries no AST position; File/Line pinpoint the
// offending file and, where available, a line within it.
type ConfigError struct {
	Message string
	File    string
	Line    int
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.File == "" {
		return e.Message
	}
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d: %s", e.File, e.Line, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.File, e.Message)
}

// ContractViolation reports a tree-shape contract violation caught by the
// rewriter: a node the rewriter dispatched to a given kind did not have the
// shape that kind requires (for example, an InstCallForFunction InstPoint
// whose node is not a *ast.CallExpr). It is always fatal: the pipeline
// aborts without emitting a partially-rewritten file.
type ContractViolation struct {
	*Diagnostic
	Kind string
}

// NewContractViolation creates a contract-violation diagnostic for the given
// rewrite kind and position.
func NewContractViolation(kind string, pos token.Position, message, source, file string) *ContractViolation {
	return &ContractViolation{
		Diagnostic: NewDiagnostic(pos, message, source, file),
		Kind:       kind,
	}
}

// Error implements the error interface.
func (c *ContractViolation) Error() string {
	return fmt.Sprintf("contract violation for %s: %s", c.Kind, c.Diagnostic.Format(false))
}
