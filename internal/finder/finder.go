// Package finder implements the pass's second stage: a walk over a parsed
// Go file that locates every call, declaration, and import site a
// configuration entry asks to have instrumented, and records them as an
// ordered, deduplicated set of InstPoint values ready for the rewriter.
package finder

import (
	"go/ast"
	"go/token"
	"sort"
	"strings"

	"github.com/cwbudde/go-instrument/internal/config"
	"github.com/cwbudde/go-instrument/internal/instdata"
)

// generatedFileMarker is the leading-comment heuristic goimports-family
// tools use to recognize generated files; InstFinder visits nodes inside
// such a file but never turns them into InstPoint targets.
const generatedFileMarker = "// Code generated"

// PositionInfo describes one AST node's location, used both to build the
// ancestor stack and to stamp an InstPoint's site metadata.
type PositionInfo struct {
	NodeKind  string
	Filename  string
	BeginLine int
	BeginCol  int
	EndLine   int
	EndCol    int
}

// contains reports whether pi fully encloses other: same file, and other's
// span sits within pi's span by (line, column) lexicographic comparison.
func (pi PositionInfo) contains(other PositionInfo) bool {
	if pi.Filename != other.Filename {
		return false
	}
	if !lessOrEqual(pi.BeginLine, pi.BeginCol, other.BeginLine, other.BeginCol) {
		return false
	}
	return lessOrEqual(other.EndLine, other.EndCol, pi.EndLine, pi.EndCol)
}

func lessOrEqual(aLine, aCol, bLine, bCol int) bool {
	if aLine != bLine {
		return aLine < bLine
	}
	return aCol <= bCol
}

// InstPoint is a single instrumentation site the rewriter will visit.
type InstPoint struct {
	Kind         config.Kind
	Node         ast.Node
	AbsolutePath string
	Depth        int
	BeginLine    int
	BeginCol     int
	Static       instdata.StaticData
}

// orderKey is the composite ordering key InstPoints are sorted and
// deduplicated by: (Depth, BeginLine, BeginCol), AbsolutePath, Kind, then
// LinesEnd. Two points with an equal key are the same point.
type orderKey struct {
	depth, beginLine, beginCol int
	absolutePath               string
	kind                       config.Kind
	linesEnd                   uint64
}

func (p InstPoint) key() orderKey {
	return orderKey{
		depth:        p.Depth,
		beginLine:    p.BeginLine,
		beginCol:     p.BeginCol,
		absolutePath: p.AbsolutePath,
		kind:         p.Kind,
		linesEnd:     p.Static.LinesEnd,
	}
}

func (k orderKey) less(other orderKey) bool {
	if k.depth != other.depth {
		return k.depth < other.depth
	}
	if k.beginLine != other.beginLine {
		return k.beginLine < other.beginLine
	}
	if k.beginCol != other.beginCol {
		return k.beginCol < other.beginCol
	}
	if k.absolutePath != other.absolutePath {
		return k.absolutePath < other.absolutePath
	}
	if k.kind != other.kind {
		return k.kind < other.kind
	}
	return k.linesEnd < other.linesEnd
}

// Finder walks a *ast.File collecting InstPoints. One Finder is used per
// file; ResolvedPaths comes from a prior resolver.Resolve call over the
// same file (or package).
type Finder struct {
	cfg            *config.Config
	resolvedPaths  map[string]string
	fset           *token.FileSet
	astStack       []PositionInfo
	points         []InstPoint
	generatedFiles map[string]bool
}

// New creates a Finder for a single pass, configured with the resolved
// import/declaration map and the monitoring configuration.
func New(fset *token.FileSet, resolvedPaths map[string]string, cfg *config.Config) *Finder {
	return &Finder{
		cfg:            cfg,
		resolvedPaths:  resolvedPaths,
		fset:           fset,
		generatedFiles: make(map[string]bool),
	}
}

// Find walks file and appends any InstPoints it locates to the Finder's
// running set. Call Points after all files of interest have been walked.
func (f *Finder) Find(file *ast.File) {
	filename := f.fset.Position(file.Pos()).Filename
	f.generatedFiles[filename] = isGeneratedFile(file)
	f.astStack = f.astStack[:0]

	ast.Inspect(file, func(n ast.Node) bool {
		if n == nil {
			return false
		}

		pos := f.positionInfo(nodeKind(n), n)
		f.pushAstStack(pos)

		switch node := n.(type) {
		case *ast.File:
			f.addPointIfNeeded("", config.KindExternCrateItem, node, pos)
		case *ast.FuncDecl:
			if node.Recv == nil {
				f.addPointIfNeeded(node.Name.Name, config.KindGlobalScope, node, pos)
			}
		case *ast.CallExpr:
			f.visitCall(node, pos)
		}

		return true
	})
}

// Points returns the collected InstPoints in ascending order key. Callers
// that need reverse-order application (the rewriter's contract) should
// iterate from the end.
func (f *Finder) Points() []InstPoint {
	sorted := make([]InstPoint, len(f.points))
	copy(sorted, f.points)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].key().less(sorted[j].key())
	})

	deduped := sorted[:0]
	var lastKey orderKey
	hasLast := false
	for _, p := range sorted {
		k := p.key()
		if hasLast && k == lastKey {
			continue
		}
		deduped = append(deduped, p)
		lastKey = k
		hasLast = true
	}
	return deduped
}

func (f *Finder) visitCall(call *ast.CallExpr, pos PositionInfo) {
	switch fun := call.Fun.(type) {
	case *ast.Ident:
		f.addPointIfNeeded(fun.Name, config.KindInstCallForFunction, call, pos)
	case *ast.SelectorExpr:
		if pkgIdent, ok := fun.X.(*ast.Ident); ok {
			if _, isImport := f.resolvedPaths[pkgIdent.Name]; isImport {
				f.addPointIfNeeded(pkgIdent.Name+"."+fun.Sel.Name, config.KindInstCallForFunction, call, pos)
				return
			}
		}
		// Not a recognized package-qualified call: a method call on a
		// receiver value, matched by the selector's field name alone.
		f.addPointIfNeeded(fun.Sel.Name, config.KindInstCallForMethod, call, pos)
	}
}

// addPointIfNeeded is the Go analogue of InstFinder::add_point_if_needed:
// it resolves path to an absolute name, checks it against the
// configuration, and — honoring the LocalScope-only special case — records
// an InstPoint for the current node.
func (f *Finder) addPointIfNeeded(path string, candidate config.Kind, node ast.Node, pos PositionInfo) {
	if f.generatedFiles[pos.Filename] {
		return
	}

	absolutePath := f.determineAbsPath(path, candidate)
	kinds := f.cfg.Lookup(absolutePath)
	if len(kinds) == 0 {
		return
	}

	depth := len(f.astStack)
	static := instdata.NewStaticData(absolutePath, "", uint64(depth), pos.Filename, uint64(pos.BeginLine), uint64(pos.EndLine))

	if len(kinds) == 1 && kinds[0].Kind == config.KindLocalScope &&
		(candidate == config.KindInstCallForFunction || candidate == config.KindInstCallForMethod) {
		f.points = append(f.points, InstPoint{
			Kind:         config.KindLocalScope,
			Node:         node,
			AbsolutePath: absolutePath,
			Depth:        depth,
			BeginLine:    pos.BeginLine,
			BeginCol:     pos.BeginCol,
			Static:       static,
		})
		return
	}

	isCall := candidate == config.KindInstCallForFunction || candidate == config.KindInstCallForMethod
	for _, entry := range kinds {
		kind := entry.Kind
		if kind != candidate && !(kind == config.KindLocalScope && isCall) {
			continue
		}
		f.points = append(f.points, InstPoint{
			Kind:         kind,
			Node:         node,
			AbsolutePath: absolutePath,
			Depth:        depth,
			BeginLine:    pos.BeginLine,
			BeginCol:     pos.BeginCol,
			Static:       static,
		})
	}
}

// determineAbsPath resolves path to its canonical form using the
// PathResolver map, unless candidate is InstCallForMethod — method names
// are never qualified, matching the original tool's behavior.
func (f *Finder) determineAbsPath(path string, candidate config.Kind) string {
	if candidate == config.KindInstCallForMethod {
		return path
	}

	segments := strings.Split(path, ".")
	if resolved, ok := f.resolvedPaths[segments[0]]; ok {
		joined := resolved
		for _, seg := range segments[1:] {
			joined += "." + seg
		}
		return joined
	}
	return strings.Join(segments, ".")
}

func (f *Finder) positionInfo(kind string, node ast.Node) PositionInfo {
	begin := f.fset.Position(node.Pos())
	end := f.fset.Position(node.End())
	return PositionInfo{
		NodeKind:  kind,
		Filename:  begin.Filename,
		BeginLine: begin.Line,
		BeginCol:  begin.Column,
		EndLine:   end.Line,
		EndCol:    end.Column,
	}
}

// pushAstStack is the Go analogue of InstFinder::set_ast_stack: it
// truncates the ancestor stack back to the nearest frame that still
// contains pos, then pushes pos. Because ast.Inspect visits nodes in
// depth-first pre-order, this reconstructs the ancestor chain without an
// explicit pop on subtree exit.
func (f *Finder) pushAstStack(pos PositionInfo) {
	index := len(f.astStack)
	for i := len(f.astStack) - 1; i >= 0; i-- {
		if f.astStack[i].contains(pos) {
			break
		}
		index--
	}
	f.astStack = f.astStack[:index]
	f.astStack = append(f.astStack, pos)
}

func nodeKind(n ast.Node) string {
	switch n.(type) {
	case *ast.File:
		return "module"
	case ast.Decl:
		return "item"
	case *ast.BlockStmt:
		return "block"
	case ast.Stmt:
		return "statement"
	case ast.Expr:
		return "expression"
	default:
		return "node"
	}
}

func isGeneratedFile(file *ast.File) bool {
	for _, cg := range file.Comments {
		if cg.Pos() >= file.Package {
			break
		}
		for _, c := range cg.List {
			if strings.HasPrefix(c.Text, generatedFileMarker) {
				return true
			}
		}
	}
	return false
}
