// Package htmldom implements the dom facade on top of golang.org/x/net/html.
package htmldom

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/go-mosaic/mosaic/pkg/dom"
	"github.com/go-mosaic/mosaic/pkg/errors"
)

// Parser parses markup fragments into element trees.
type Parser struct{}

// New returns a fragment parser.
func New() *Parser {
	return &Parser{}
}

// Parse returns the top-level element nodes of the markup fragment.
// The parsing context is sniffed from the leading tag so that fragments
// only valid inside a table, list, or select (tr, td, li, option) survive
// the HTML parsing algorithm instead of being foster-parented away.
func (p *Parser) Parse(markup string) ([]dom.Element, error) {
	context := fragmentContext(markup)
	nodes, err := html.ParseFragment(strings.NewReader(markup), context)
	if err != nil {
		return nil, errors.Newf("htmldom.Parse", errors.KindRenderContract, "parse markup: %v", err)
	}
	var out []dom.Element
	for _, n := range nodes {
		if n.Type != html.ElementNode {
			continue
		}
		n.Parent = nil
		n.PrevSibling = nil
		n.NextSibling = nil
		out = append(out, &node{n: n})
	}
	return out, nil
}

// fragmentContext picks the synthetic parent element for fragment parsing.
func fragmentContext(markup string) *html.Node {
	trimmed := strings.TrimSpace(markup)
	lower := strings.ToLower(trimmed)
	ctx := func(a atom.Atom) *html.Node {
		return &html.Node{Type: html.ElementNode, Data: a.String(), DataAtom: a}
	}
	switch {
	case strings.HasPrefix(lower, "<tr"):
		return ctx(atom.Tbody)
	case strings.HasPrefix(lower, "<td"), strings.HasPrefix(lower, "<th"):
		return ctx(atom.Tr)
	case strings.HasPrefix(lower, "<tbody"), strings.HasPrefix(lower, "<thead"), strings.HasPrefix(lower, "<tfoot"):
		return ctx(atom.Table)
	case strings.HasPrefix(lower, "<option"), strings.HasPrefix(lower, "<optgroup"):
		return ctx(atom.Select)
	case strings.HasPrefix(lower, "<li"):
		return ctx(atom.Ul)
	default:
		return ctx(atom.Div)
	}
}

// node adapts an *html.Node to the dom.Element contract.
type node struct {
	n *html.Node
}

// Unwrap exposes the underlying html node, mostly for tests.
func (e *node) Unwrap() *html.Node {
	return e.n
}

func (e *node) Tag() string {
	return strings.ToLower(e.n.Data)
}

func (e *node) Attr(name string) (string, bool) {
	return nodeAttr(e.n, strings.ToLower(name))
}

func (e *node) SetAttr(name, value string) {
	name = strings.ToLower(name)
	for i := range e.n.Attr {
		if e.n.Attr[i].Key == name {
			e.n.Attr[i].Val = value
			return
		}
	}
	e.n.Attr = append(e.n.Attr, html.Attribute{Key: name, Val: value})
}

func (e *node) RemoveAttr(name string) {
	name = strings.ToLower(name)
	for i := range e.n.Attr {
		if e.n.Attr[i].Key == name {
			e.n.Attr = append(e.n.Attr[:i], e.n.Attr[i+1:]...)
			return
		}
	}
}

func (e *node) Find(raw string) ([]dom.Element, error) {
	sel, err := compileSelector(raw)
	if err != nil {
		return nil, err
	}
	var out []dom.Element
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.ElementNode && sel.matches(c) {
				out = append(out, &node{n: c})
			}
			walk(c)
		}
	}
	walk(e.n)
	return out, nil
}

func (e *node) Clone() dom.Element {
	return &node{n: cloneNode(e.n)}
}

func cloneNode(n *html.Node) *html.Node {
	clone := &html.Node{
		Type:     n.Type,
		DataAtom: n.DataAtom,
		Data:     n.Data,
		Attr:     append([]html.Attribute(nil), n.Attr...),
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		clone.AppendChild(cloneNode(c))
	}
	return clone
}

func (e *node) Contents() []dom.Element {
	var out []dom.Element
	for c := e.n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			out = append(out, &node{n: c})
		}
	}
	return out
}

func (e *node) Parent() dom.Element {
	p := e.n.Parent
	for p != nil && p.Type != html.ElementNode {
		p = p.Parent
	}
	if p == nil {
		return nil
	}
	return &node{n: p}
}

func (e *node) Contains(other dom.Element) bool {
	o, ok := other.(*node)
	if !ok || o == nil {
		return false
	}
	for p := o.n.Parent; p != nil; p = p.Parent {
		if p == e.n {
			return true
		}
	}
	return false
}

func (e *node) ReplaceWith(replacements ...dom.Element) {
	parent := e.n.Parent
	if parent == nil {
		return
	}
	for _, r := range replacements {
		rn, ok := r.(*node)
		if !ok || rn.n == e.n {
			continue
		}
		detach(rn.n)
		parent.InsertBefore(rn.n, e.n)
	}
	parent.RemoveChild(e.n)
}

func (e *node) AppendChild(child dom.Element) {
	c, ok := child.(*node)
	if !ok {
		return
	}
	detach(c.n)
	e.n.AppendChild(c.n)
}

func (e *node) Remove() {
	detach(e.n)
}

func detach(n *html.Node) {
	if n.Parent != nil {
		n.Parent.RemoveChild(n)
	}
}

func (e *node) HTML() string {
	var sb strings.Builder
	if err := html.Render(&sb, e.n); err != nil {
		return ""
	}
	return sb.String()
}

func (e *node) Text() string {
	var sb strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(e.n)
	return sb.String()
}
