// Package rewriter implements the pass's final stage: given the InstPoints
// an InstFinder collected, it mutates the parsed tree in place so each site
// emits the matching probe calls around the original code. A call site is
// spliced into sibling statements wherever the surrounding statement shape
// already carries enough information to do so without a type-checker — a
// bare statement, a ":=" assignment, a single-result return; a call nested
// any deeper than that is left untouched and logged.
package rewriter

import (
	"fmt"
	"go/ast"
	"go/token"
	"log/slog"
	"strconv"

	"golang.org/x/tools/go/ast/astutil"

	"github.com/cwbudde/go-instrument/internal/config"
	"github.com/cwbudde/go-instrument/internal/errors"
	"github.com/cwbudde/go-instrument/internal/finder"
	"github.com/cwbudde/go-instrument/internal/instdata"
)

const (
	probeImportPath = "github.com/cwbudde/go-instrument/probe"
	probePkgIdent   = "probe"

	varReturnValue        = "instrumentationReturnValue"
	varLocalHandle        = "instrumentationLocalHandle"
	varArgumentPrefix     = "instrumentationArgumentVar"
	varIntermediatePrefix = "instrumentationIntermediateVar"

	descGlobalBegin = "DescriptionGlobalBegin"
	descGlobalEnd   = "DescriptionGlobalEnd"
	descLocalBegin  = "DescriptionLocalBegin"
	descLocalEnd    = "DescriptionLocalEnd"
	descBegin       = "DescriptionBegin"
	descEnd         = "DescriptionEnd"
)

// Apply mutates file in place according to points. Points are applied
// deepest-first (reverse of finder.Finder.Points' ascending order) so that
// an ancestor's statement-list mutation never invalidates a descendant
// replacement already performed.
//
// A contract violation — an InstPoint whose Node does not have the shape
// its Kind requires — panics with *errors.ContractViolation. The caller
// (internal/pipeline) recovers it at the top of the pass and converts it to
// a plain error; no partially-rewritten file is ever handed back directly
// from a panic.
func Apply(fset *token.FileSet, file *ast.File, points []finder.InstPoint) {
	for i := len(points) - 1; i >= 0; i-- {
		p := points[i]
		switch p.Kind {
		case config.KindExternCrateItem:
			astutil.AddImport(fset, file, probeImportPath)
		case config.KindGlobalScope:
			rewriteGlobalScope(fset, p)
		case config.KindLocalScope:
			rewriteLocalScope(fset, file, p)
		case config.KindInstCallForFunction:
			rewriteInstCall(fset, file, p, false)
		case config.KindInstCallForMethod:
			rewriteInstCall(fset, file, p, true)
		}
	}
}

// rewriteGlobalScope prepends global/local probe setup and appends its
// teardown to a top-level function's body. A naked trailing return is
// preserved after the epilogue; any other body shape just gets the
// epilogue appended, so a mid-body return still bypasses it — a known,
// documented limitation carried over unchanged from the original design.
func rewriteGlobalScope(fset *token.FileSet, p finder.InstPoint) {
	fn, ok := p.Node.(*ast.FuncDecl)
	if !ok || fn.Body == nil {
		panic(errors.NewContractViolation(string(p.Kind), posFor(fset, p.Node),
			"GlobalScope expects a *ast.FuncDecl with a body", "", ""))
	}

	prelude := []ast.Stmt{
		exprStmt(call(selector(probePkgIdent, "GlobalInit"))),
		assign(ident(varLocalHandle), call(selector(probePkgIdent, "LocalInit"))),
		instrumentCall(p.Static, descGlobalBegin),
	}
	epilogue := []ast.Stmt{
		instrumentCall(p.Static, descGlobalEnd),
		exprStmt(call(selector(probePkgIdent, "CleanUp"), ident(varLocalHandle))),
	}

	body := fn.Body.List
	if n := len(body); n > 0 {
		if ret, isReturn := body[n-1].(*ast.ReturnStmt); isReturn && len(ret.Results) == 0 {
			rest := append([]ast.Stmt{}, body[:n-1]...)
			rest = append(rest, epilogue...)
			rest = append(rest, ret)
			body = rest
		} else {
			body = append(body, epilogue...)
		}
	} else {
		body = epilogue
	}

	fn.Body.List = append(prelude, body...)
}

// rewriteLocalScope targets a call taking a niladic closure argument — the
// Go shape of (*errgroup.Group).Go(fn) and its kin. Each closure argument's
// body is rewritten in place (rewriteGoroutineBody); the enclosing call
// then gets the general statement-level envelope wrapped around it.
func rewriteLocalScope(fset *token.FileSet, file *ast.File, p finder.InstPoint) {
	call, ok := p.Node.(*ast.CallExpr)
	if !ok {
		panic(errors.NewContractViolation(string(p.Kind), posFor(fset, p.Node),
			"LocalScope expects a *ast.CallExpr", "", ""))
	}

	foundClosure := false
	for _, arg := range call.Args {
		lit, isFuncLit := arg.(*ast.FuncLit)
		if !isFuncLit {
			continue
		}
		foundClosure = true
		rewriteGoroutineBody(lit, p.Static)
	}
	if !foundClosure {
		slog.Warn("LocalScope target has no closure argument to rewrite; skipping",
			"position", fset.Position(call.Pos()).String())
		return
	}

	replaceCallSite(fset, file, call, func() ([]ast.Stmt, *ast.CallExpr, ast.Stmt, bool) {
		pre := []ast.Stmt{instrumentCall(p.Static, descBegin)}
		rebuilt := &ast.CallExpr{Fun: call.Fun, Args: call.Args, Ellipsis: call.Ellipsis}
		return pre, rebuilt, instrumentCall(p.Static, descEnd), true
	})
}

// rewriteGoroutineBody wraps a closure's original body in a nested function
// literal sharing the closure's own declared signature — a closure must
// already state its return types in Go, so no type inference is needed
// here, unlike the general envelope below.
func rewriteGoroutineBody(lit *ast.FuncLit, static instdata.StaticData) {
	inner := &ast.FuncLit{
		Type: &ast.FuncType{Params: &ast.FieldList{}, Results: lit.Type.Results},
		Body: lit.Body,
	}
	innerCall := &ast.CallExpr{Fun: inner}

	body := []ast.Stmt{
		exprStmt(call(selector(probePkgIdent, "LocalInit"))),
		instrumentCall(static, descLocalBegin),
	}

	if lit.Type.Results != nil && len(lit.Type.Results.List) > 0 {
		body = append(body,
			assign(ident(varReturnValue), innerCall),
			instrumentCall(static, descLocalEnd),
			&ast.ReturnStmt{Results: []ast.Expr{ident(varReturnValue)}},
		)
	} else {
		body = append(body,
			exprStmt(innerCall),
			instrumentCall(static, descLocalEnd),
		)
	}

	lit.Body = &ast.BlockStmt{List: body}
}

// rewriteInstCall handles both InstCallForFunction and InstCallForMethod:
// hoist arguments (and, for a method call, unwind the receiver chain), then
// splice the begin/end probes around the call in place.
func rewriteInstCall(fset *token.FileSet, file *ast.File, p finder.InstPoint, isMethod bool) {
	callExpr, ok := p.Node.(*ast.CallExpr)
	if !ok {
		panic(errors.NewContractViolation(string(p.Kind), posFor(fset, p.Node),
			fmt.Sprintf("%s expects a *ast.CallExpr", p.Kind), "", ""))
	}

	replaceCallSite(fset, file, callExpr, func() ([]ast.Stmt, *ast.CallExpr, ast.Stmt, bool) {
		if isMethod {
			return buildMethodCallParts(fset, callExpr, p.Static)
		}
		return buildFunctionCallParts(callExpr, p.Static)
	})
}

func buildFunctionCallParts(callExpr *ast.CallExpr, static instdata.StaticData) ([]ast.Stmt, *ast.CallExpr, ast.Stmt, bool) {
	hoistStmts, argVars := hoistArguments(callExpr.Args)
	rebuilt := &ast.CallExpr{Fun: callExpr.Fun, Args: argVars, Ellipsis: callExpr.Ellipsis}

	pre := make([]ast.Stmt, 0, len(hoistStmts)+1)
	pre = append(pre, hoistStmts...)
	pre = append(pre, instrumentCall(static, descBegin))
	return pre, rebuilt, instrumentCall(static, descEnd), true
}

// buildMethodCallParts unwinds a chained receiver (recv.A().B().C(...)) into
// instrumentationIntermediateVar{k} assignments, outermost call first
// (k == 0), and hoists the instrumented call's own arguments. A receiver
// chain that bottoms out in a kernel the denylist forbids (unary/binary
// ops, a type assertion, address-of, channel receive, recover()) aborts the
// rewrite for this InstPoint only; the call site is logged and left
// untouched.
func buildMethodCallParts(fset *token.FileSet, callExpr *ast.CallExpr, static instdata.StaticData) ([]ast.Stmt, *ast.CallExpr, ast.Stmt, bool) {
	sel, ok := callExpr.Fun.(*ast.SelectorExpr)
	if !ok {
		panic(errors.NewContractViolation("InstCallForMethod", posFor(fset, callExpr),
			"InstCallForMethod expects a selector call", "", ""))
	}

	var chainStmts []ast.Stmt
	receiver := sel.X
	if innerCall, isCall := sel.X.(*ast.CallExpr); isCall {
		if _, isMethodChain := innerCall.Fun.(*ast.SelectorExpr); isMethodChain {
			stmts, ref, trace, unwound := unwindChain(fset, innerCall, 0, errors.NewStackTrace())
			if !unwound {
				slog.Warn("method-call receiver chain bottoms out in a disallowed expression kind; skipping",
					"position", fset.Position(callExpr.Pos()).String(),
					"chain", trace.String())
				return nil, nil, nil, false
			}
			chainStmts, receiver = stmts, ref
		}
	}

	hoistStmts, argVars := hoistArguments(callExpr.Args)
	rebuilt := &ast.CallExpr{
		Fun:      &ast.SelectorExpr{X: receiver, Sel: sel.Sel},
		Args:     argVars,
		Ellipsis: callExpr.Ellipsis,
	}

	pre := make([]ast.Stmt, 0, len(chainStmts)+len(hoistStmts)+1)
	pre = append(pre, chainStmts...)
	pre = append(pre, hoistStmts...)
	pre = append(pre, instrumentCall(static, descBegin))
	return pre, rebuilt, instrumentCall(static, descEnd), true
}

// unwindChain walks a method-call receiver chain depth-first, binding each
// link to its own intermediate variable and returning the statements in
// execution order plus an expression referencing the outermost link's
// value. k numbers links starting at the one immediately beneath the
// instrumented call. trace accumulates one frame per link walked so a
// caller that aborts (ok == false) can log the path that led to the
// disallowed kernel.
func unwindChain(fset *token.FileSet, expr ast.Expr, k int, trace errors.StackTrace) ([]ast.Stmt, ast.Expr, errors.StackTrace, bool) {
	if callExpr, isCall := expr.(*ast.CallExpr); isCall {
		if sel, isSel := callExpr.Fun.(*ast.SelectorExpr); isSel {
			frame := errors.NewStackFrame("method-call", fset.Position(callExpr.Pos()).Filename, framePos(fset, callExpr))
			innerStmts, innerRef, trace, ok := unwindChain(fset, sel.X, k+1, append(trace, frame))
			if !ok {
				return nil, nil, trace, false
			}
			name := fmt.Sprintf("%s%d", varIntermediatePrefix, k)
			rebuilt := &ast.CallExpr{
				Fun:      &ast.SelectorExpr{X: innerRef, Sel: sel.Sel},
				Args:     callExpr.Args,
				Ellipsis: callExpr.Ellipsis,
			}
			return append(innerStmts, assign(ident(name), rebuilt)), ident(name), trace, true
		}
	}

	if isDenylistedKernel(expr) {
		frame := errors.NewStackFrame(exprKind(expr), fset.Position(expr.Pos()).Filename, framePos(fset, expr))
		return nil, nil, append(trace, frame), false
	}

	name := fmt.Sprintf("%s%d", varIntermediatePrefix, k)
	return []ast.Stmt{assign(ident(name), expr)}, ident(name), trace, true
}

// exprKind labels a denylisted kernel expression for the stack trace logged
// when a receiver chain can't be unwound.
func exprKind(expr ast.Expr) string {
	switch expr.(type) {
	case *ast.UnaryExpr:
		return "unary-expr"
	case *ast.BinaryExpr:
		return "binary-expr"
	case *ast.TypeAssertExpr:
		return "type-assertion"
	case *ast.StarExpr:
		return "pointer-deref"
	case *ast.CallExpr:
		return "recover-call"
	default:
		return "expression"
	}
}

func framePos(fset *token.FileSet, n ast.Node) *token.Position {
	pos := fset.Position(n.Pos())
	return &pos
}

// isDenylistedKernel reports whether expr is one of the expression kinds
// that cannot directly carry a method call: a unary operator (including
// address-of &x and channel receive <-ch), a binary operator, a type
// assertion, a pointer dereference, or a recover() call. Go has no
// expression forms for assignment, break/continue/return, or range — the
// remainder of the original denylist — so they never reach this check.
func isDenylistedKernel(expr ast.Expr) bool {
	switch e := expr.(type) {
	case *ast.UnaryExpr, *ast.BinaryExpr, *ast.TypeAssertExpr, *ast.StarExpr:
		return true
	case *ast.CallExpr:
		ident, isIdent := e.Fun.(*ast.Ident)
		return isIdent && ident.Name == "recover"
	default:
		return false
	}
}

func hoistArguments(args []ast.Expr) ([]ast.Stmt, []ast.Expr) {
	stmts := make([]ast.Stmt, 0, len(args))
	vars := make([]ast.Expr, 0, len(args))
	for i, arg := range args {
		name := fmt.Sprintf("%s%d", varArgumentPrefix, i)
		stmts = append(stmts, assign(ident(name), arg))
		vars = append(vars, ident(name))
	}
	return stmts, vars
}

// replaceCallSite finds target's enclosing statement and splices the
// begin/end probes around it in place, using build to hoist arguments (and,
// for a method call, unwind the receiver chain) and produce the
// probe-wrapped replacement call. Three statement shapes need no static
// type information and are rewritten: a bare *ast.ExprStmt (the call's
// result, if any, is simply discarded), a single-value *ast.AssignStmt
// (":=" already infers the receiving variables' types from the call
// itself, regardless of Lhs arity), and a single-result *ast.ReturnStmt,
// whose result is hoisted into instrumentationReturnValue first so the end
// probe still fires before control leaves the function. A call appearing
// as any other kind of sub-expression — an operand of a larger expression,
// an argument to another call — would need a type-checker to synthesize a
// correctly-typed intermediate and is left untouched, logged as a skip.
func replaceCallSite(fset *token.FileSet, file *ast.File, target *ast.CallExpr, build func() ([]ast.Stmt, *ast.CallExpr, ast.Stmt, bool)) {
	applied := false
	astutil.Apply(file, nil, func(c *astutil.Cursor) bool {
		switch stmt := c.Node().(type) {
		case *ast.ExprStmt:
			if stmt.X != target {
				return true
			}
			pre, rebuilt, endProbe, ok := build()
			if !ok {
				return true
			}
			for _, s := range pre {
				c.InsertBefore(s)
			}
			c.Replace(&ast.ExprStmt{X: rebuilt})
			c.InsertAfter(endProbe)
			applied = true

		case *ast.AssignStmt:
			if len(stmt.Rhs) != 1 || stmt.Rhs[0] != target {
				return true
			}
			pre, rebuilt, endProbe, ok := build()
			if !ok {
				return true
			}
			for _, s := range pre {
				c.InsertBefore(s)
			}
			c.Replace(&ast.AssignStmt{Lhs: stmt.Lhs, TokPos: stmt.TokPos, Tok: stmt.Tok, Rhs: []ast.Expr{rebuilt}})
			c.InsertAfter(endProbe)
			applied = true

		case *ast.ReturnStmt:
			if len(stmt.Results) != 1 || stmt.Results[0] != target {
				return true
			}
			pre, rebuilt, endProbe, ok := build()
			if !ok {
				return true
			}
			for _, s := range pre {
				c.InsertBefore(s)
			}
			c.InsertBefore(assign(ident(varReturnValue), rebuilt))
			c.InsertBefore(endProbe)
			c.Replace(&ast.ReturnStmt{Return: stmt.Return, Results: []ast.Expr{ident(varReturnValue)}})
			applied = true
		}
		return true
	})
	if !applied {
		slog.Warn("instrumentation target is not a statement, assignment, or return call; skipping for lack of static type information",
			"position", fset.Position(target.Pos()).String())
	}
}

func instrumentCall(static instdata.StaticData, descriptionConst string) ast.Stmt {
	return exprStmt(call(selector(probePkgIdent, "Instrument"), buildStaticDataCall(static), selector(probePkgIdent, descriptionConst)))
}

func buildStaticDataCall(static instdata.StaticData) *ast.CallExpr {
	return call(selector(probePkgIdent, "NewStaticData"),
		strLit(static.AbsolutePath),
		strLit(""),
		uintLit(static.AstDepth),
		strLit(static.SourceFile),
		uintLit(static.LinesBegin),
		uintLit(static.LinesEnd),
	)
}

func ident(name string) *ast.Ident { return ast.NewIdent(name) }

func selector(pkg, name string) *ast.SelectorExpr {
	return &ast.SelectorExpr{X: ast.NewIdent(pkg), Sel: ast.NewIdent(name)}
}

func call(fun ast.Expr, args ...ast.Expr) *ast.CallExpr {
	return &ast.CallExpr{Fun: fun, Args: args}
}

func exprStmt(e ast.Expr) *ast.ExprStmt { return &ast.ExprStmt{X: e} }

func assign(lhs, rhs ast.Expr) *ast.AssignStmt {
	return &ast.AssignStmt{Lhs: []ast.Expr{lhs}, Tok: token.DEFINE, Rhs: []ast.Expr{rhs}}
}

func strLit(s string) *ast.BasicLit {
	return &ast.BasicLit{Kind: token.STRING, Value: strconv.Quote(s)}
}

func uintLit(v uint64) *ast.BasicLit {
	return &ast.BasicLit{Kind: token.INT, Value: strconv.FormatUint(v, 10)}
}

func posFor(fset *token.FileSet, n ast.Node) token.Position {
	if n == nil {
		return token.Position{}
	}
	return fset.Position(n.Pos())
}
