// Package parse builds declaration trees from C++ sources using tree-sitter.
package parse

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/phobologic/igen/internal/decl"
	"github.com/phobologic/igen/internal/errors"
	"github.com/phobologic/igen/internal/lang"
	"github.com/phobologic/igen/internal/logger"
)

// MaxIncludeDepth bounds nested include splicing.
const MaxIncludeDepth = 32

// Parser turns C++ files into declaration trees. It is not safe for
// concurrent use; create one per goroutine.
type Parser struct {
	ts          *sitter.Parser
	quoteDirs   []string
	includeDirs []string
}

// New returns a Parser configured from compiler-style flags. Include
// search flags are honoured; everything else is ignored.
func New(flags []string) *Parser {
	p := &Parser{ts: lang.Languages[lang.CPP].NewParser()}
	for i := 0; i < len(flags); i++ {
		f := flags[i]
		for _, opt := range []string{"-iquote", "-isystem", "-idirafter", "-I"} {
			if !strings.HasPrefix(f, opt) {
				continue
			}
			dir := strings.TrimPrefix(f, opt)
			if dir == "" && i+1 < len(flags) {
				i++
				dir = flags[i]
			}
			if dir == "" {
				break
			}
			if opt == "-iquote" {
				p.quoteDirs = append(p.quoteDirs, dir)
			} else {
				p.includeDirs = append(p.includeDirs, dir)
			}
			break
		}
	}
	return p
}

// Parse reads path and returns its translation unit. Includes that resolve
// to readable files are spliced in place, once each.
func (p *Parser) Parse(path string) (decl.Node, error) {
	u := &unit{
		parser:     p,
		visited:    map[string]bool{},
		namespaces: map[string]*node{},
		records:    map[string]*node{},
	}
	u.root = u.newNode(decl.KindTranslationUnit, path, decl.Location{File: path, Line: 1})

	if err := u.parseFile(path, u.root, nil, 0); err != nil {
		return nil, err
	}
	return u.root, nil
}

// unit is the state of one Parse call.
type unit struct {
	parser     *Parser
	root       *node
	nextID     uint64
	visited    map[string]bool
	namespaces map[string]*node
	records    map[string]*node
}

// file is one source being walked.
type file struct {
	path  string
	src   []byte
	depth int
	gnu   []gnuAttribute
}

func (u *unit) newNode(kind decl.Kind, spelling string, loc decl.Location) *node {
	u.nextID++
	return &node{id: u.nextID, kind: kind, spelling: spelling, loc: loc}
}

func (u *unit) parseFile(path string, container *node, scope []string, depth int) error {
	u.visited[filepath.Clean(path)] = true

	src, err := os.ReadFile(path)
	if err != nil {
		return errors.Mark(errors.Wrapf(err, "reading %s", path), errors.ErrParse)
	}

	gnu := stripAttributes(src)
	tree, err := u.parser.ts.ParseCtx(context.Background(), nil, src)
	if err != nil {
		return errors.Mark(errors.Wrapf(err, "parsing %s", path), errors.ErrParse)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() {
		logger.Debugw("syntax errors, continuing", "path", path)
	}

	f := &file{path: path, src: src, depth: depth, gnu: gnu}
	u.walk(f, root, container, scope)
	return nil
}

// walk visits the declaration-level children of n.
func (u *unit) walk(f *file, n *sitter.Node, container *node, scope []string) {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		u.item(f, n.NamedChild(i), container, scope)
	}
}

func (u *unit) item(f *file, c *sitter.Node, container *node, scope []string) {
	switch c.Type() {
	case "namespace_definition":
		u.namespace(f, c, container, scope)
	case "linkage_specification":
		body := c.ChildByFieldName("body")
		if body == nil {
			return
		}
		if body.Type() == "declaration_list" {
			u.walk(f, body, container, scope)
			return
		}
		u.item(f, body, container, scope)
	case "preproc_ifdef", "preproc_if":
		// Alternatives are preproc_else/preproc_elif nodes and fall through
		// the default case, so only the main branch is walked.
		u.walk(f, c, container, scope)
	case "preproc_include":
		u.include(f, c, container, scope)
	case "class_specifier", "struct_specifier", "union_specifier":
		u.record(f, c, container, scope)
	case "declaration", "function_definition":
		if t := c.ChildByFieldName("type"); t != nil {
			switch t.Type() {
			case "class_specifier", "struct_specifier", "union_specifier":
				u.record(f, t, container, scope)
			}
		}
		u.function(f, c, container, scope)
	}
}

func (u *unit) namespace(f *file, c *sitter.Node, container *node, scope []string) {
	names := []string{""}
	if nameNode := c.ChildByFieldName("name"); nameNode != nil {
		names = nil
		for _, part := range strings.Split(lang.NodeText(nameNode, f.src), decl.Separator) {
			part = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(part), "inline"))
			names = append(names, part)
		}
	}

	loc := f.loc(c)
	for _, name := range names {
		ns := u.newNode(decl.KindNamespace, name, loc)
		ns.semantic, ns.lexical = container, container
		container.add(ns)
		scope = appendPath(scope, name)
		if _, ok := u.namespaces[decl.Join(scope)]; !ok {
			u.namespaces[decl.Join(scope)] = ns
		}
		container = ns
	}

	if body := c.ChildByFieldName("body"); body != nil {
		u.walk(f, body, container, scope)
	}
}

func (u *unit) record(f *file, c *sitter.Node, container *node, scope []string) {
	nameNode := c.ChildByFieldName("name")
	if nameNode == nil {
		return
	}
	name := lang.NodeText(nameNode, f.src)
	rec := u.newNode(decl.KindRecord, name, f.loc(c))
	rec.semantic, rec.lexical = container, container
	container.add(rec)

	key := decl.Join(appendPath(scope, name))
	if _, ok := u.records[key]; !ok {
		u.records[key] = rec
	}
}

func (u *unit) include(f *file, c *sitter.Node, container *node, scope []string) {
	pathNode := c.ChildByFieldName("path")
	if pathNode == nil || f.depth >= MaxIncludeDepth {
		return
	}
	raw := lang.NodeText(pathNode, f.src)
	if len(raw) < 2 {
		return
	}
	quoted := raw[0] == '"'
	target := raw[1 : len(raw)-1]

	var dirs []string
	if quoted {
		dirs = append(dirs, filepath.Dir(f.path))
		dirs = append(dirs, u.parser.quoteDirs...)
	}
	dirs = append(dirs, u.parser.includeDirs...)

	for _, dir := range dirs {
		candidate := filepath.Join(dir, target)
		if filepath.IsAbs(target) {
			candidate = target
		}
		info, err := os.Stat(candidate)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		if u.visited[filepath.Clean(candidate)] {
			return
		}
		if err := u.parseFile(candidate, container, scope, f.depth+1); err != nil {
			logger.Debugw("skipping include", "path", candidate, "error", err)
		}
		return
	}
}

func (u *unit) function(f *file, c *sitter.Node, container *node, scope []string) {
	fd := functionDeclarator(c.ChildByFieldName("declarator"))
	if fd == nil {
		return
	}
	nameNode := fd.ChildByFieldName("declarator")
	if nameNode == nil || nameNode.Type() == "parenthesized_declarator" {
		return
	}
	// Constructors, destructors and conversions carry no result type.
	if c.ChildByFieldName("type") == nil {
		return
	}

	parts, global := splitQualified(lang.NodeText(nameNode, f.src))
	if len(parts) == 0 {
		return
	}
	name := parts[len(parts)-1]

	fn := u.newNode(decl.KindFunction, name, f.loc(nameNode))
	fn.lexical = container
	fn.semantic = container
	if len(parts) > 1 {
		fn.semantic = u.resolve(scope, parts[:len(parts)-1], global)
	}
	fn.typ = resultType(c, fd, f.src)
	fn.hasType = fn.typ != ""
	fn.comment = docComment(c, f.startRow(c), f.src)

	params := fd.ChildByFieldName("parameters")
	var inner []span
	for _, n := range []*sitter.Node{params, c.ChildByFieldName("body")} {
		if n != nil {
			inner = append(inner, spanOf(n))
		}
	}
	anns := append(annotations(c, f.src), f.gnuAnnotations(regionStart(c), c.EndByte(), inner...)...)
	for _, a := range sortAnnotations(anns) {
		fn.add(u.newNode(decl.KindAnnotation, a.value, fn.loc)).semantic = fn
	}
	if params != nil {
		u.parameters(f, params, fn)
	}
	container.add(fn)
}

func (u *unit) parameters(f *file, list *sitter.Node, fn *node) {
	// Each parameter owns the bytes between the separators around it, so
	// stripped attributes after its name still reach it.
	type param struct {
		node       *sitter.Node
		start, end uint32
	}
	var decls []param
	for i := 0; i < int(list.ChildCount()); i++ {
		c := list.Child(i)
		switch c.Type() {
		case "parameter_declaration", "optional_parameter_declaration", "variadic_parameter_declaration", "...":
			p := param{node: c, start: c.StartByte(), end: c.EndByte()}
			if i > 0 {
				p.start = list.Child(i - 1).EndByte()
			}
			if i+1 < int(list.ChildCount()) {
				p.end = list.Child(i + 1).StartByte()
			}
			decls = append(decls, p)
		}
	}

	if len(decls) == 1 && decls[0].node.Type() == "parameter_declaration" &&
		decls[0].node.ChildByFieldName("declarator") == nil &&
		lang.CollapseWhitespace(lang.NodeText(decls[0].node, f.src)) == "void" {
		return
	}

	for _, d := range decls {
		c := d.node
		p := u.newNode(decl.KindParameter, "", f.loc(c))
		p.semantic, p.lexical = fn, fn
		if c.Type() == "..." {
			p.typ, p.hasType = "...", true
			fn.add(p)
			continue
		}

		var exclude []span
		if ident := declaratorName(c.ChildByFieldName("declarator")); ident != nil {
			p.spelling = lang.NodeText(ident, f.src)
			exclude = append(exclude, spanOf(ident))
		}
		if eq := defaultStart(c); eq >= 0 {
			exclude = append(exclude, span{start: uint32(eq), end: c.EndByte()})
		}
		exclude = append(exclude, attributeSpans(c)...)

		if !c.HasError() {
			p.typ = textWithout(c, f.src, exclude)
			p.hasType = p.typ != ""
		}
		anns := append(annotations(c, f.src), f.gnuAnnotations(d.start, d.end)...)
		for _, a := range sortAnnotations(anns) {
			p.add(u.newNode(decl.KindAnnotation, a.value, p.loc)).semantic = p
		}
		fn.add(p)
	}
}

// resolve returns the entity named by qual as seen from scope, innermost
// scope first. Unknown names are synthesized as namespaces under the
// lexical scope.
func (u *unit) resolve(scope, qual []string, global bool) *node {
	base := scope
	if global {
		base = nil
	} else {
		for k := len(scope); k >= 0; k-- {
			if u.known(appendPath(scope[:k], qual[0])) {
				base = scope[:k]
				break
			}
		}
	}

	path := append([]string(nil), base...)
	var ent *node
	for _, part := range qual {
		path = append(path, part)
		ent = u.entity(path)
	}
	return ent
}

func (u *unit) known(path []string) bool {
	key := decl.Join(path)
	_, ns := u.namespaces[key]
	_, rec := u.records[key]
	return ns || rec
}

func (u *unit) entity(path []string) *node {
	key := decl.Join(path)
	if n, ok := u.namespaces[key]; ok {
		return n
	}
	if n, ok := u.records[key]; ok {
		return n
	}

	parent := u.root
	if len(path) > 1 {
		parent = u.entity(path[:len(path)-1])
	}
	n := u.newNode(decl.KindNamespace, path[len(path)-1], parent.loc)
	n.semantic, n.lexical = parent, parent
	u.namespaces[key] = n
	return n
}

// regionStart is where the bytes owned by declaration c begin: the end of
// whatever precedes it, so leading attributes stripped before parsing
// still fall inside.
func regionStart(c *sitter.Node) uint32 {
	if prev := c.PrevSibling(); prev != nil {
		return prev.EndByte()
	}
	if parent := c.Parent(); parent != nil {
		return parent.StartByte()
	}
	return 0
}

// startRow is the row c starts on, counting attributes stripped from
// before it.
func (f *file) startRow(c *sitter.Node) uint32 {
	from, start := regionStart(c), c.StartByte()
	first := start
	for _, a := range f.gnu {
		if a.start >= from && a.end <= start && a.start < first {
			first = a.start
		}
	}
	return c.StartPoint().Row - uint32(bytes.Count(f.src[first:start], []byte("\n")))
}

func (f *file) loc(n *sitter.Node) decl.Location {
	return decl.Location{File: f.path, Line: int(n.StartPoint().Row) + 1}
}

func appendPath(path []string, name string) []string {
	out := make([]string, len(path), len(path)+1)
	copy(out, path)
	return append(out, name)
}
