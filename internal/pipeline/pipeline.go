// Package pipeline drives the instrumentation pass end to end: for each
// file, PathResolver runs first, then InstFinder, then Rewriter — the same
// three-stage sequence spec.md describes, wired the way the teacher's
// semantic analyzer wires its own passes.
package pipeline

import (
	"go/ast"
	"go/token"

	"github.com/cwbudde/go-instrument/internal/config"
	"github.com/cwbudde/go-instrument/internal/errors"
	"github.com/cwbudde/go-instrument/internal/finder"
	"github.com/cwbudde/go-instrument/internal/resolver"
	"github.com/cwbudde/go-instrument/internal/rewriter"
)

// Run executes PathResolver -> InstFinder -> Rewriter over every file in
// files, mutating each one's AST in place. packageImportPath qualifies
// top-level function declarations the same way across all of them, so
// callers should pass the files of a single package per Run.
//
// The pass is single-threaded and cooperative, matching the concurrency
// model: no file's rewrite depends on another's, and nothing here runs
// them in parallel. A rewriter contract violation — an InstPoint whose
// node didn't have the shape its kind required — panics with
// *errors.ContractViolation; Run recovers it here and returns it as a
// plain error, so no partially-rewritten file is ever handed back as a
// side effect of a panic unwinding past the caller.
func Run(fset *token.FileSet, files []*ast.File, packageImportPath string, cfg *config.Config) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if cv, ok := r.(*errors.ContractViolation); ok {
				err = cv
				return
			}
			panic(r)
		}
	}()

	for _, file := range files {
		runFile(fset, file, packageImportPath, cfg)
	}
	return nil
}

func runFile(fset *token.FileSet, file *ast.File, packageImportPath string, cfg *config.Config) {
	paths := resolver.Resolve(file, packageImportPath)

	f := finder.New(fset, paths, cfg)
	f.Find(file)

	points := f.Points()
	if len(points) == 0 {
		return
	}
	rewriter.Apply(fset, file, points)
}
