package htmldom

import (
	"strings"

	"golang.org/x/net/html"

	"github.com/go-mosaic/mosaic/pkg/errors"
)

// attrSel matches [key] or [key=value].
type attrSel struct {
	key    string
	value  string
	hasVal bool
}

// compound is one whitespace-delimited selector part: tag, #id, .class and
// [attr] constraints that must all hold on a single element.
type compound struct {
	tag     string
	id      string
	classes []string
	attrs   []attrSel
}

// selector is a descendant chain of compounds.
type selector []compound

// compileSelector parses the selector subset the engine needs: tag, #id,
// .class, [attr], [attr=value], combined per element and chained with the
// descendant combinator.
func compileSelector(raw string) (selector, error) {
	parts := strings.Fields(raw)
	if len(parts) == 0 {
		return nil, errors.Newf("htmldom.compileSelector", errors.KindConfig, "empty selector")
	}
	sel := make(selector, 0, len(parts))
	for _, part := range parts {
		c, err := compileCompound(part, raw)
		if err != nil {
			return nil, err
		}
		sel = append(sel, c)
	}
	return sel, nil
}

func compileCompound(part, raw string) (compound, error) {
	var c compound
	i := 0
	readName := func() string {
		start := i
		for i < len(part) && isNameByte(part[i]) {
			i++
		}
		return part[start:i]
	}
	if i < len(part) && isNameByte(part[i]) {
		c.tag = strings.ToLower(readName())
	}
	for i < len(part) {
		switch part[i] {
		case '#':
			i++
			name := readName()
			if name == "" {
				return c, badSelector(raw)
			}
			c.id = name
		case '.':
			i++
			name := readName()
			if name == "" {
				return c, badSelector(raw)
			}
			c.classes = append(c.classes, name)
		case '[':
			i++
			key := readName()
			if key == "" {
				return c, badSelector(raw)
			}
			a := attrSel{key: strings.ToLower(key)}
			if i < len(part) && part[i] == '=' {
				i++
				end := strings.IndexByte(part[i:], ']')
				if end < 0 {
					return c, badSelector(raw)
				}
				a.value = strings.Trim(part[i:i+end], `"'`)
				a.hasVal = true
				i += end
			}
			if i >= len(part) || part[i] != ']' {
				return c, badSelector(raw)
			}
			i++
			c.attrs = append(c.attrs, a)
		default:
			return c, badSelector(raw)
		}
	}
	if c.tag == "" && c.id == "" && len(c.classes) == 0 && len(c.attrs) == 0 {
		return c, badSelector(raw)
	}
	return c, nil
}

func badSelector(raw string) error {
	return errors.Newf("htmldom.compileSelector", errors.KindConfig, "unsupported selector %q", raw)
}

func isNameByte(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= '0' && b <= '9' || b == '-' || b == '_'
}

// matches reports whether n satisfies the full descendant chain, with the
// last compound applying to n itself.
func (s selector) matches(n *html.Node) bool {
	if len(s) == 0 || !s[len(s)-1].matches(n) {
		return false
	}
	rest := s[:len(s)-1]
	ancestor := n.Parent
	for len(rest) > 0 {
		if ancestor == nil || ancestor.Type != html.ElementNode {
			if ancestor == nil {
				return false
			}
			ancestor = ancestor.Parent
			continue
		}
		if rest[len(rest)-1].matches(ancestor) {
			rest = rest[:len(rest)-1]
		}
		ancestor = ancestor.Parent
	}
	return true
}

func (c compound) matches(n *html.Node) bool {
	if n.Type != html.ElementNode {
		return false
	}
	if c.tag != "" && c.tag != strings.ToLower(n.Data) {
		return false
	}
	if c.id != "" {
		if id, ok := nodeAttr(n, "id"); !ok || id != c.id {
			return false
		}
	}
	if len(c.classes) > 0 {
		classAttr, _ := nodeAttr(n, "class")
		have := strings.Fields(classAttr)
		for _, want := range c.classes {
			found := false
			for _, cls := range have {
				if cls == want {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		}
	}
	for _, a := range c.attrs {
		v, ok := nodeAttr(n, a.key)
		if !ok {
			return false
		}
		if a.hasVal && v != a.value {
			return false
		}
	}
	return true
}

func nodeAttr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}
