package errors

import (
	"fmt"
	"go/token"
	"strings"
)

// StackFrame represents a single frame in an ancestor trail: the kind of
// AST node visited and where it sits in the source. The rewriter builds
// these while descending a method-call receiver chain, to render
// diagnostics for skipped InstPoints (unhandled chain kernels) that name
// the nesting that led to the skip.
type StackFrame struct {
	Position *token.Position
	NodeKind string
	FileName string
}

// String returns a formatted string representation of the stack frame.
// If position is not available, returns just the node kind.
func (sf StackFrame) String() string {
	if sf.Position == nil {
		return sf.NodeKind
	}
	return fmt.Sprintf("%s [line: %d, column: %d]",
		sf.NodeKind, sf.Position.Line, sf.Position.Column)
}

// StackTrace represents an ancestor trail as a sequence of frames.
// Frames are ordered from outermost (bottom of stack) to innermost (top of
// stack) — the same order InstFinder's ancestor stack is built in.
type StackTrace []StackFrame

// String returns a formatted string representation of the entire trail,
// innermost frame first, one per line.
func (st StackTrace) String() string {
	if len(st) == 0 {
		return ""
	}

	var sb strings.Builder
	for i := len(st) - 1; i >= 0; i-- {
		sb.WriteString(st[i].String())
		if i > 0 {
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

// Reverse returns a new StackTrace with frames in reverse order.
func (st StackTrace) Reverse() StackTrace {
	reversed := make(StackTrace, len(st))
	for i, frame := range st {
		reversed[len(st)-1-i] = frame
	}
	return reversed
}

// Top returns the innermost frame in the trail, or nil if empty.
func (st StackTrace) Top() *StackFrame {
	if len(st) == 0 {
		return nil
	}
	return &st[len(st)-1]
}

// Bottom returns the outermost frame in the trail, or nil if empty.
func (st StackTrace) Bottom() *StackFrame {
	if len(st) == 0 {
		return nil
	}
	return &st[0]
}

// Depth returns the number of frames in the trail.
func (st StackTrace) Depth() int {
	return len(st)
}

// NewStackFrame creates a new stack frame for the given node kind and
// position.
func NewStackFrame(nodeKind string, fileName string, position *token.Position) StackFrame {
	return StackFrame{
		NodeKind: nodeKind,
		FileName: fileName,
		Position: position,
	}
}

// NewStackTrace creates a new empty ancestor trail.
func NewStackTrace() StackTrace {
	return make(StackTrace, 0)
}
