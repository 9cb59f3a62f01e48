package finder

import (
	"go/ast"
	"go/parser"
	"go/token"
	"testing"

	"github.com/cwbudde/go-instrument/internal/config"
	"github.com/cwbudde/go-instrument/internal/resolver"
)

func parseAndResolve(t *testing.T, src string) (*token.FileSet, *ast.File, map[string]string) {
	t.Helper()
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "fixture.go", src, parser.ParseComments)
	if err != nil {
		t.Fatalf("parsing fixture: %v", err)
	}
	return fset, file, resolver.Resolve(file, "example.com/app")
}

const callFixture = `
package app

func Hello(name string) string {
	return name
}

func Main() {
	Hello("world")
}
`

func TestFindInstCallForFunction(t *testing.T) {
	fset, file, paths := parseAndResolve(t, callFixture)
	cfg := &config.Config{
		Code2Monitor: []config.CodeMonitorEntry{
			{Name: "example.com/app.Hello", Kind: config.KindInstCallForFunction},
		},
	}

	f := New(fset, paths, cfg)
	f.Find(file)
	points := f.Points()

	found := false
	for _, p := range points {
		if p.Kind == config.KindInstCallForFunction && p.AbsolutePath == "example.com/app.Hello" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected an InstCallForFunction InstPoint for example.com/app.Hello, got %+v", points)
	}
}

func TestFindGlobalScope(t *testing.T) {
	fset, file, paths := parseAndResolve(t, callFixture)
	cfg := &config.Config{
		Code2Monitor: []config.CodeMonitorEntry{
			{Name: "example.com/app.Main", Kind: config.KindGlobalScope},
		},
	}

	f := New(fset, paths, cfg)
	f.Find(file)
	points := f.Points()

	if len(points) != 1 || points[0].Kind != config.KindGlobalScope {
		t.Fatalf("expected a single GlobalScope InstPoint, got %+v", points)
	}
	if _, ok := points[0].Node.(*ast.FuncDecl); !ok {
		t.Errorf("expected GlobalScope InstPoint to reference a *ast.FuncDecl, got %T", points[0].Node)
	}
}

func TestFindLocalScopeSpecialCase(t *testing.T) {
	fset, file, paths := parseAndResolve(t, callFixture)
	cfg := &config.Config{
		Code2Monitor: []config.CodeMonitorEntry{
			{Name: "example.com/app.Hello", Kind: config.KindLocalScope},
		},
	}

	f := New(fset, paths, cfg)
	f.Find(file)
	points := f.Points()

	if len(points) != 1 {
		t.Fatalf("expected exactly one InstPoint, got %+v", points)
	}
	if points[0].Kind != config.KindLocalScope {
		t.Errorf("expected the call-site InstPoint to be reclassified as LocalScope, got %v", points[0].Kind)
	}
	if _, ok := points[0].Node.(*ast.CallExpr); !ok {
		t.Errorf("expected the reclassified InstPoint to still reference the *ast.CallExpr, got %T", points[0].Node)
	}
}

func TestFindSkipsGeneratedFile(t *testing.T) {
	src := "// Code generated by some tool. DO NOT EDIT.\npackage app\n\nfunc Hello() {}\n"
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "generated.go", src, parser.ParseComments)
	if err != nil {
		t.Fatalf("parsing fixture: %v", err)
	}
	paths := resolver.Resolve(file, "example.com/app")
	cfg := &config.Config{
		Code2Monitor: []config.CodeMonitorEntry{
			{Name: "example.com/app.Hello", Kind: config.KindGlobalScope},
		},
	}

	f := New(fset, paths, cfg)
	f.Find(file)
	if points := f.Points(); len(points) != 0 {
		t.Errorf("expected no InstPoints in a generated file, got %+v", points)
	}
}

func TestPointsDeduplicatesByOrderKey(t *testing.T) {
	fset, file, paths := parseAndResolve(t, callFixture)
	cfg := &config.Config{
		Code2Monitor: []config.CodeMonitorEntry{
			{Name: "example.com/app.Hello", Kind: config.KindInstCallForFunction},
		},
	}

	f := New(fset, paths, cfg)
	f.Find(file)
	f.Find(file) // simulate a duplicate traversal; the result must still dedupe.

	points := f.Points()
	count := 0
	for _, p := range points {
		if p.AbsolutePath == "example.com/app.Hello" {
			count++
		}
	}
	if count != 1 {
		t.Errorf("expected exactly one deduplicated InstPoint, got %d", count)
	}
}
