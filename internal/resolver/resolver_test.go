package resolver

import (
	"go/ast"
	"go/parser"
	"go/token"
	"testing"
)

func parseFixture(t *testing.T, src string) *ast.File {
	t.Helper()
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "fixture.go", src, parser.ParseComments)
	if err != nil {
		t.Fatalf("parsing fixture: %v", err)
	}
	return file
}

const fixtureSrc = `
package app

import (
	fmt2 "fmt"
	"strings"
	. "example.com/helpers"
	_ "example.com/sideeffect"
)

func Hello(name string) string {
	return name
}

type Greeter struct{}

func (g Greeter) Greet(name string) string {
	return name
}

func (g Greeter) Greet2(name string) string {
	return name
}
`

func TestResolveImports(t *testing.T) {
	file := parseFixture(t, fixtureSrc)
	paths := Resolve(file, "example.com/app")

	if paths["fmt2"] != "fmt" {
		t.Errorf("expected aliased import fmt2 -> fmt, got %q", paths["fmt2"])
	}
	if paths["strings"] != "strings" {
		t.Errorf("expected implicit import strings -> strings, got %q", paths["strings"])
	}
	if _, ok := paths["sideeffect"]; ok {
		t.Errorf("blank import must not contribute a key")
	}
}

func TestResolveDotImportKeyQuirk(t *testing.T) {
	file := parseFixture(t, fixtureSrc)
	paths := Resolve(file, "example.com/app")

	// last two segments of "example.com/helpers" are "example.com" and
	// "helpers"; concatenated with no separator per the reproduced quirk.
	key := "example.comhelpers"
	if paths[key] != "example.com/helpers." {
		t.Errorf("expected dot-import key %q -> %q, got %q", key, "example.com/helpers.", paths[key])
	}
}

func TestResolveTopLevelFunction(t *testing.T) {
	file := parseFixture(t, fixtureSrc)
	paths := Resolve(file, "example.com/app")

	if paths["Hello"] != "example.com/app.Hello" {
		t.Errorf("expected Hello -> example.com/app.Hello, got %q", paths["Hello"])
	}
}

func TestResolveMethodIdentityMapping(t *testing.T) {
	file := parseFixture(t, fixtureSrc)
	paths := Resolve(file, "example.com/app")

	if paths["Greet"] != "Greet" {
		t.Errorf("expected method identity mapping Greet -> Greet, got %q", paths["Greet"])
	}
	if paths["Greet2"] != "Greet2" {
		t.Errorf("expected method identity mapping Greet2 -> Greet2, got %q", paths["Greet2"])
	}
}

func TestResolveMethodOverwritesSameNameCollisionLastWins(t *testing.T) {
	src := `
package app

func Dup() {}

type T struct{}

func (t T) Dup() {}
`
	file := parseFixture(t, src)
	paths := Resolve(file, "example.com/app")

	// Method declarations always overwrite, unconditionally, even a
	// same-named top-level function processed earlier.
	if paths["Dup"] != "Dup" {
		t.Errorf("expected method identity mapping to overwrite the function mapping, got %q", paths["Dup"])
	}
}
