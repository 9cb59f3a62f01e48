package errors

import (
	"go/token"
	"strings"
	"testing"
)

func TestStackFrame_String(t *testing.T) {
	tests := []struct {
		name     string
		frame    StackFrame
		expected string
	}{
		{
			name: "Frame with position",
			frame: StackFrame{
				NodeKind: "CallExpr",
				FileName: "main.go",
				Position: &token.Position{Line: 10, Column: 5},
			},
			expected: "CallExpr [line: 10, column: 5]",
		},
		{
			name: "Frame without position",
			frame: StackFrame{
				NodeKind: "CallExpr",
				FileName: "main.go",
				Position: nil,
			},
			expected: "CallExpr",
		},
		{
			name: "Frame with selector chain kind",
			frame: StackFrame{
				NodeKind: "SelectorExpr",
				FileName: "main.go",
				Position: &token.Position{Line: 42, Column: 15},
			},
			expected: "SelectorExpr [line: 42, column: 15]",
		},
		{
			name: "Frame with func literal",
			frame: StackFrame{
				NodeKind: "FuncLit",
				FileName: "",
				Position: &token.Position{Line: 7, Column: 1},
			},
			expected: "FuncLit [line: 7, column: 1]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := tt.frame.String()
			if result != tt.expected {
				t.Errorf("Expected %q, got %q", tt.expected, result)
			}
		})
	}
}

func TestStackTrace_String(t *testing.T) {
	tests := []struct {
		name     string
		expected string
		trace    StackTrace
	}{
		{
			name:     "Empty stack trace",
			trace:    StackTrace{},
			expected: "",
		},
		{
			name: "Single frame",
			trace: StackTrace{
				{NodeKind: "FuncDecl", Position: &token.Position{Line: 1, Column: 1}},
			},
			expected: "FuncDecl [line: 1, column: 1]",
		},
		{
			name: "Multiple frames",
			trace: StackTrace{
				{NodeKind: "FuncDecl", Position: &token.Position{Line: 20, Column: 1}},
				{NodeKind: "BlockStmt", Position: &token.Position{Line: 15, Column: 5}},
				{NodeKind: "CallExpr", Position: &token.Position{Line: 10, Column: 3}},
			},
			expected: "CallExpr [line: 10, column: 3]\nBlockStmt [line: 15, column: 5]\nFuncDecl [line: 20, column: 1]",
		},
		{
			name: "Frames with and without position",
			trace: StackTrace{
				{NodeKind: "FuncDecl", Position: &token.Position{Line: 20, Column: 1}},
				{NodeKind: "BlockStmt", Position: nil},
			},
			expected: "BlockStmt\nFuncDecl [line: 20, column: 1]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := tt.trace.String()
			if result != tt.expected {
				t.Errorf("Expected:\n%s\nGot:\n%s", tt.expected, result)
			}
		})
	}
}

func TestStackTrace_Reverse(t *testing.T) {
	original := StackTrace{
		{NodeKind: "First", Position: &token.Position{Line: 1, Column: 1}},
		{NodeKind: "Second", Position: &token.Position{Line: 2, Column: 1}},
		{NodeKind: "Third", Position: &token.Position{Line: 3, Column: 1}},
	}

	reversed := original.Reverse()

	if reversed[0].NodeKind != "Third" {
		t.Errorf("Expected first frame to be 'Third', got %q", reversed[0].NodeKind)
	}
	if reversed[1].NodeKind != "Second" {
		t.Errorf("Expected second frame to be 'Second', got %q", reversed[1].NodeKind)
	}
	if reversed[2].NodeKind != "First" {
		t.Errorf("Expected third frame to be 'First', got %q", reversed[2].NodeKind)
	}

	if original[0].NodeKind != "First" {
		t.Errorf("Original stack trace was modified")
	}
}

func TestStackTrace_Top(t *testing.T) {
	tests := []struct {
		expected *string
		name     string
		trace    StackTrace
	}{
		{
			name:     "Empty stack",
			trace:    StackTrace{},
			expected: nil,
		},
		{
			name: "Single frame",
			trace: StackTrace{
				{NodeKind: "FuncDecl", Position: &token.Position{Line: 1, Column: 1}},
			},
			expected: stringPtr("FuncDecl"),
		},
		{
			name: "Multiple frames",
			trace: StackTrace{
				{NodeKind: "FuncDecl", Position: &token.Position{Line: 20, Column: 1}},
				{NodeKind: "BlockStmt", Position: &token.Position{Line: 15, Column: 5}},
				{NodeKind: "CallExpr", Position: &token.Position{Line: 10, Column: 3}},
			},
			expected: stringPtr("CallExpr"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			top := tt.trace.Top()
			if tt.expected == nil {
				if top != nil {
					t.Errorf("Expected nil, got %v", top)
				}
			} else {
				if top == nil {
					t.Errorf("Expected %q, got nil", *tt.expected)
				} else if top.NodeKind != *tt.expected {
					t.Errorf("Expected %q, got %q", *tt.expected, top.NodeKind)
				}
			}
		})
	}
}

func TestStackTrace_Bottom(t *testing.T) {
	tests := []struct {
		expected *string
		name     string
		trace    StackTrace
	}{
		{
			name:     "Empty stack",
			trace:    StackTrace{},
			expected: nil,
		},
		{
			name: "Single frame",
			trace: StackTrace{
				{NodeKind: "FuncDecl", Position: &token.Position{Line: 1, Column: 1}},
			},
			expected: stringPtr("FuncDecl"),
		},
		{
			name: "Multiple frames",
			trace: StackTrace{
				{NodeKind: "FuncDecl", Position: &token.Position{Line: 20, Column: 1}},
				{NodeKind: "BlockStmt", Position: &token.Position{Line: 15, Column: 5}},
				{NodeKind: "CallExpr", Position: &token.Position{Line: 10, Column: 3}},
			},
			expected: stringPtr("FuncDecl"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bottom := tt.trace.Bottom()
			if tt.expected == nil {
				if bottom != nil {
					t.Errorf("Expected nil, got %v", bottom)
				}
			} else {
				if bottom == nil {
					t.Errorf("Expected %q, got nil", *tt.expected)
				} else if bottom.NodeKind != *tt.expected {
					t.Errorf("Expected %q, got %q", *tt.expected, bottom.NodeKind)
				}
			}
		})
	}
}

func TestStackTrace_Depth(t *testing.T) {
	tests := []struct {
		name     string
		trace    StackTrace
		expected int
	}{
		{
			name:     "Empty stack",
			trace:    StackTrace{},
			expected: 0,
		},
		{
			name: "Single frame",
			trace: StackTrace{
				{NodeKind: "FuncDecl"},
			},
			expected: 1,
		},
		{
			name: "Multiple frames",
			trace: StackTrace{
				{NodeKind: "FuncDecl"},
				{NodeKind: "BlockStmt"},
				{NodeKind: "CallExpr"},
			},
			expected: 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			depth := tt.trace.Depth()
			if depth != tt.expected {
				t.Errorf("Expected depth %d, got %d", tt.expected, depth)
			}
		})
	}
}

func TestNewStackFrame(t *testing.T) {
	pos := &token.Position{Line: 42, Column: 13}
	frame := NewStackFrame("CallExpr", "main.go", pos)

	if frame.NodeKind != "CallExpr" {
		t.Errorf("Expected NodeKind 'CallExpr', got %q", frame.NodeKind)
	}
	if frame.FileName != "main.go" {
		t.Errorf("Expected FileName 'main.go', got %q", frame.FileName)
	}
	if frame.Position != pos {
		t.Errorf("Expected position %v, got %v", pos, frame.Position)
	}
}

func TestNewStackTrace(t *testing.T) {
	trace := NewStackTrace()

	if trace == nil {
		t.Error("NewStackTrace returned nil")
	}
	if len(trace) != 0 {
		t.Errorf("Expected empty stack trace, got length %d", len(trace))
	}
}

func TestStackTrace_RealWorldScenario(t *testing.T) {
	// Simulate an ancestor trail: FuncDecl -> BlockStmt -> CallExpr
	trace := StackTrace{
		{NodeKind: "FuncDecl", FileName: "main.go", Position: &token.Position{Line: 50, Column: 1}},
		{NodeKind: "BlockStmt", FileName: "main.go", Position: &token.Position{Line: 30, Column: 5}},
		{NodeKind: "CallExpr", FileName: "main.go", Position: &token.Position{Line: 10, Column: 3}},
	}

	expected := "CallExpr [line: 10, column: 3]\nBlockStmt [line: 30, column: 5]\nFuncDecl [line: 50, column: 1]"
	result := trace.String()
	if result != expected {
		t.Errorf("Stack trace string doesn't match.\nExpected:\n%s\nGot:\n%s", expected, result)
	}

	if trace.Depth() != 3 {
		t.Errorf("Expected depth 3, got %d", trace.Depth())
	}

	top := trace.Top()
	if top == nil || top.NodeKind != "CallExpr" {
		t.Errorf("Expected top to be CallExpr, got %v", top)
	}

	bottom := trace.Bottom()
	if bottom == nil || bottom.NodeKind != "FuncDecl" {
		t.Errorf("Expected bottom to be FuncDecl, got %v", bottom)
	}
}

func TestStackTrace_StringFormat(t *testing.T) {
	trace := StackTrace{
		{NodeKind: "BlockStmt", Position: &token.Position{Line: 8, Column: 4}},
		{NodeKind: "IfStmt", Position: &token.Position{Line: 3, Column: 20}},
	}

	result := trace.String()
	lines := strings.Split(result, "\n")

	if lines[0] != "IfStmt [line: 3, column: 20]" {
		t.Errorf("First line doesn't match expected format: %q", lines[0])
	}
	if lines[1] != "BlockStmt [line: 8, column: 4]" {
		t.Errorf("Second line doesn't match expected format: %q", lines[1])
	}
}

// Helper function for tests
func stringPtr(s string) *string {
	return &s
}
