package parse

import (
	"bytes"
	"regexp"
	"sort"
	"strconv"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/phobologic/igen/internal/lang"
)

var annotateRe = regexp.MustCompile(`annotate\s*\(\s*("(?:[^"\\]|\\.)*")`)

// functionDeclarator follows the declarator chain of a declaration down to
// its function_declarator, or returns nil for non-function declarations.
func functionDeclarator(n *sitter.Node) *sitter.Node {
	for n != nil {
		switch n.Type() {
		case "function_declarator":
			return n
		case "pointer_declarator", "attributed_declarator":
			n = n.ChildByFieldName("declarator")
			if n == nil {
				return nil
			}
		case "reference_declarator":
			var next *sitter.Node
			for i := 0; i < int(n.NamedChildCount()); i++ {
				if c := n.NamedChild(i); strings.HasSuffix(c.Type(), "declarator") {
					next = c
					break
				}
			}
			n = next
		default:
			return nil
		}
	}
	return nil
}

// declaratorName returns the identifier declared by a parameter
// declarator, or nil when the parameter is unnamed.
func declaratorName(n *sitter.Node) *sitter.Node {
	if n == nil {
		return nil
	}
	switch n.Type() {
	case "identifier", "field_identifier":
		return n
	case "parameter_list", "abstract_function_declarator", "abstract_pointer_declarator",
		"abstract_reference_declarator", "abstract_array_declarator", "abstract_parenthesized_declarator":
		return nil
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		if id := declaratorName(n.NamedChild(i)); id != nil {
			return id
		}
	}
	return nil
}

// splitQualified splits a possibly qualified name on "::" outside of
// template argument lists. global reports a leading "::".
func splitQualified(s string) (parts []string, global bool) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "::") {
		global = true
		s = s[2:]
	}
	depth, start := 0, 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '<':
			depth++
		case '>':
			if depth > 0 {
				depth--
			}
		case ':':
			if depth == 0 && i+1 < len(s) && s[i+1] == ':' {
				parts = append(parts, strings.TrimSpace(s[start:i]))
				i++
				start = i + 1
			}
		}
	}
	if rest := strings.TrimSpace(s[start:]); rest != "" {
		parts = append(parts, rest)
	}
	return parts, global
}

var nonTypeSpecifiers = map[string]bool{
	"storage_class_specifier":     true,
	"virtual":                     true,
	"explicit_function_specifier": true,
	"attribute_specifier":         true,
	"attribute_declaration":       true,
	"ms_declspec_modifier":        true,
	"comment":                     true,
}

var nonTypeQualifiers = map[string]bool{
	"constexpr": true,
	"consteval": true,
	"constinit": true,
}

// resultType is the text between the start of a declaration and its
// function declarator, without specifiers that are not part of the type.
func resultType(c, fd *sitter.Node, src []byte) string {
	limit := fd.StartByte()
	var b strings.Builder
	for i := 0; i < int(c.ChildCount()); i++ {
		child := c.Child(i)
		if child.StartByte() >= limit {
			break
		}
		if nonTypeSpecifiers[child.Type()] {
			continue
		}
		text := lang.NodeText(child, src)
		if child.Type() == "type_qualifier" && nonTypeQualifiers[strings.TrimSpace(text)] {
			continue
		}
		end := child.EndByte()
		if end > limit {
			end = limit
		}
		b.Write(src[child.StartByte():end])
		b.WriteByte(' ')
	}
	return lang.CollapseWhitespace(b.String())
}

// docComment returns the doc-style comments directly above n, which starts
// on row, joined by newlines. A blank line or a plain comment ends the
// block.
func docComment(n *sitter.Node, row uint32, src []byte) string {
	var lines []string
	for prev := n.PrevSibling(); prev != nil && prev.Type() == "comment"; prev = prev.PrevSibling() {
		if prev.EndPoint().Row+1 < row {
			break
		}
		text := lang.NodeText(prev, src)
		if !isDocComment(text) {
			break
		}
		lines = append([]string{text}, lines...)
		row = prev.StartPoint().Row
	}
	return strings.Join(lines, "\n")
}

func isDocComment(text string) bool {
	for _, p := range []string{"///", "//!", "/**", "/*!"} {
		if strings.HasPrefix(text, p) {
			return !strings.HasPrefix(text, "/**/")
		}
	}
	return false
}

// annotation is an annotate("...") value and the byte offset of the
// attribute that carried it.
type annotation struct {
	pos   uint32
	value string
}

// annotations collects annotate("...") values from the attributes of n,
// without descending into parameter lists, bodies or default values.
func annotations(n *sitter.Node, src []byte) []annotation {
	var out []annotation
	for _, s := range attributeNodes(n) {
		for _, v := range annotateValues(lang.NodeText(s, src)) {
			out = append(out, annotation{pos: s.StartByte(), value: v})
		}
	}
	return out
}

func annotateValues(text string) []string {
	var out []string
	for _, m := range annotateRe.FindAllStringSubmatch(text, -1) {
		v, err := strconv.Unquote(m[1])
		if err != nil {
			v = strings.Trim(m[1], `"`)
		}
		out = append(out, v)
	}
	return out
}

const attributeKeyword = "__attribute__"

// gnuAttribute is an __attribute__((...)) specifier blanked out of the
// source before parsing, with the annotate values it carried. The grammar
// rejects the specifier after a parameter name, so every occurrence is
// removed and attached back by byte range.
type gnuAttribute struct {
	span
	values []string
}

// stripAttributes blanks every __attribute__((...)) in src outside comments
// and literals. Newlines are kept so offsets and line numbers do not move.
func stripAttributes(src []byte) []gnuAttribute {
	var out []gnuAttribute
	for i := 0; i < len(src); {
		switch {
		case bytes.HasPrefix(src[i:], []byte("//")):
			if end := bytes.IndexByte(src[i:], '\n'); end >= 0 {
				i += end + 1
			} else {
				i = len(src)
			}
		case bytes.HasPrefix(src[i:], []byte("/*")):
			if end := bytes.Index(src[i+2:], []byte("*/")); end >= 0 {
				i += end + 4
			} else {
				i = len(src)
			}
		case src[i] == '"', src[i] == '\'' && (i == 0 || !isIdentByte(src[i-1])):
			i = skipLiteral(src, i)
		case bytes.HasPrefix(src[i:], []byte(attributeKeyword)) && (i == 0 || !isIdentByte(src[i-1])):
			end, ok := attributeEnd(src, i+len(attributeKeyword))
			if !ok {
				i += len(attributeKeyword)
				continue
			}
			out = append(out, gnuAttribute{
				span:   span{start: uint32(i), end: uint32(end)},
				values: annotateValues(string(src[i:end])),
			})
			for j := i; j < end; j++ {
				if src[j] != '\n' {
					src[j] = ' '
				}
			}
			i = end
		default:
			i++
		}
	}
	return out
}

// attributeEnd returns the offset just past the parenthesized argument
// that starts at or after i.
func attributeEnd(src []byte, i int) (int, bool) {
	for i < len(src) && (src[i] == ' ' || src[i] == '\t' || src[i] == '\n' || src[i] == '\r') {
		i++
	}
	if i >= len(src) || src[i] != '(' {
		return 0, false
	}
	depth := 0
	for i < len(src) {
		switch src[i] {
		case '"', '\'':
			i = skipLiteral(src, i)
			continue
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return i + 1, true
			}
		}
		i++
	}
	return 0, false
}

// skipLiteral returns the offset past the string or character literal
// opening at i. An unterminated literal ends at the line break.
func skipLiteral(src []byte, i int) int {
	quote := src[i]
	for i++; i < len(src); i++ {
		switch src[i] {
		case '\\':
			i++
		case quote:
			return i + 1
		case '\n':
			return i
		}
	}
	return i
}

func isIdentByte(b byte) bool {
	return b == '_' || b >= '0' && b <= '9' || b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z'
}

// gnuAnnotations returns the annotate values of the stripped attributes
// lying within [start, end) and outside every excluded span.
func (f *file) gnuAnnotations(start, end uint32, exclude ...span) []annotation {
	var out []annotation
outer:
	for _, a := range f.gnu {
		if a.start < start || a.end > end {
			continue
		}
		for _, x := range exclude {
			if a.start >= x.start && a.end <= x.end {
				continue outer
			}
		}
		for _, v := range a.values {
			out = append(out, annotation{pos: a.start, value: v})
		}
	}
	return out
}

func sortAnnotations(anns []annotation) []annotation {
	sort.SliceStable(anns, func(i, j int) bool { return anns[i].pos < anns[j].pos })
	return anns
}

var attributeStop = map[string]bool{
	"parameter_list":         true,
	"compound_statement":     true,
	"field_declaration_list": true,
	"initializer_list":       true,
}

func attributeNodes(n *sitter.Node) []*sitter.Node {
	var out []*sitter.Node
	var visit func(*sitter.Node, bool)
	visit = func(c *sitter.Node, top bool) {
		switch {
		case c.Type() == "attribute_specifier" || c.Type() == "attribute_declaration":
			out = append(out, c)
			return
		case !top && attributeStop[c.Type()]:
			return
		}
		afterDefault := false
		for i := 0; i < int(c.ChildCount()); i++ {
			child := c.Child(i)
			if child.Type() == "=" {
				afterDefault = true
			}
			if afterDefault {
				continue
			}
			visit(child, false)
		}
	}
	visit(n, true)
	return out
}

type span struct {
	start, end uint32
}

func spanOf(n *sitter.Node) span {
	return span{start: n.StartByte(), end: n.EndByte()}
}

func attributeSpans(n *sitter.Node) []span {
	var out []span
	for _, a := range attributeNodes(n) {
		out = append(out, spanOf(a))
	}
	return out
}

// defaultStart returns the byte offset of the "=" introducing a default
// value, or -1.
func defaultStart(n *sitter.Node) int {
	for i := 0; i < int(n.ChildCount()); i++ {
		if c := n.Child(i); c.Type() == "=" {
			return int(c.StartByte())
		}
	}
	return -1
}

// textWithout returns n's text with the given byte ranges removed and
// whitespace collapsed.
func textWithout(n *sitter.Node, src []byte, exclude []span) string {
	sort.Slice(exclude, func(i, j int) bool { return exclude[i].start < exclude[j].start })
	var b strings.Builder
	pos := n.StartByte()
	for _, s := range exclude {
		if s.start > pos {
			b.Write(src[pos:s.start])
			b.WriteByte(' ')
		}
		if s.end > pos {
			pos = s.end
		}
	}
	if pos < n.EndByte() {
		b.Write(src[pos:n.EndByte()])
	}
	return lang.CollapseWhitespace(b.String())
}
