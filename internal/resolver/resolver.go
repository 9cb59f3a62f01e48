// Package resolver implements the pass's first stage: a single pass over a
// parsed Go file building a map from short identifier to canonical path, so
// later stages can turn a bare call like Hello(...) into the fully
// qualified name a configuration entry names.
package resolver

import (
	"go/ast"
	"strconv"
	"strings"
)

// Resolve walks the top-level declarations of file and returns a map of
// short identifier to canonical path. packageImportPath is the import path
// under which file's own package is reachable; it is used to qualify
// top-level function declarations.
//
// Collisions are first-write-wins for imports and top-level functions;
// method declarations always overwrite (last-write-wins), matching the
// original tool's glob-import and identity-mapping quirks verbatim.
func Resolve(file *ast.File, packageImportPath string) map[string]string {
	paths := make(map[string]string)

	for _, decl := range file.Decls {
		switch d := decl.(type) {
		case *ast.GenDecl:
			if d.Tok.String() != "import" {
				continue
			}
			for _, spec := range d.Specs {
				importSpec, ok := spec.(*ast.ImportSpec)
				if !ok {
					continue
				}
				addImportPath(paths, importSpec)
			}
		case *ast.FuncDecl:
			if d.Recv == nil {
				addIfAbsent(paths, d.Name.Name, joinPath(packageImportPath, d.Name.Name))
			} else {
				// Method declaration: identity mapping, unconditional
				// overwrite — last method wins.
				paths[d.Name.Name] = d.Name.Name
			}
		}
	}

	return paths
}

// addImportPath applies the three import-spec rules: explicit local name,
// implicit (unaliased) name, and dot-import.
func addImportPath(paths map[string]string, spec *ast.ImportSpec) {
	importPath, err := strconv.Unquote(spec.Path.Value)
	if err != nil {
		importPath = strings.Trim(spec.Path.Value, `"`)
	}

	if spec.Name != nil {
		switch spec.Name.Name {
		case ".":
			// Dot-import: synthesize a key from the concatenation of the
			// last two slash-segments of the import path (no separator).
			// This reproduces the reference tool's glob-import key quirk
			// verbatim; it is not good design, only parity.
			key := globImportKey(importPath)
			addIfAbsent(paths, key, importPath+".")
		case "_":
			// Blank import: contributes no reachable identifier.
		default:
			addIfAbsent(paths, spec.Name.Name, importPath)
		}
		return
	}

	// Implicit name: approximate the package's declared name by its last
	// path segment, the same guess goimports-style tooling makes for an
	// unaliased import.
	addIfAbsent(paths, lastSegment(importPath), importPath)
}

func globImportKey(importPath string) string {
	segments := strings.Split(importPath, "/")
	if len(segments) == 1 {
		return segments[0]
	}
	return segments[len(segments)-2] + segments[len(segments)-1]
}

func lastSegment(importPath string) string {
	segments := strings.Split(importPath, "/")
	return segments[len(segments)-1]
}

func joinPath(packageImportPath, name string) string {
	if packageImportPath == "" {
		return name
	}
	return packageImportPath + "." + name
}

func addIfAbsent(paths map[string]string, key, value string) {
	if _, exists := paths[key]; exists {
		return
	}
	paths[key] = value
}
