package core

import (
	"github.com/go-mosaic/mosaic/pkg/dom"
	"github.com/go-mosaic/mosaic/pkg/errors"
)

// Marker attributes for placeholder resolution when a plain tag match is
// not possible inside the markup (table rows, options, list items).
const (
	sectionAttr = "data-mosaic-section"
	tagAttr     = "data-mosaic-tag"
)

// insertion records where a child component's rendered element landed in
// the parent's tree, so reconciliation can re-anchor it.
type insertion struct {
	comp *Component
	el   dom.Element
}

// registry tracks nested components. The default section holds singleton
// children matched by tag; named sections hold repetitions, each a group
// of children stamped into one clone of the section placeholder.
type registry struct {
	def      []*Component
	sections map[string][][]*Component
	order    []string
}

func (r *registry) all() []*Component {
	var out []*Component
	out = append(out, r.def...)
	for _, name := range r.order {
		for _, rep := range r.sections[name] {
			out = append(out, rep...)
		}
	}
	return out
}

// each visits every child in reverse registration order. The remove
// callback deletes the child from the registry; destruction is the
// caller's responsibility.
func (r *registry) each(visit func(child *Component, remove func())) {
	for i := len(r.order) - 1; i >= 0; i-- {
		name := r.order[i]
		reps := r.sections[name]
		for j := len(reps) - 1; j >= 0; j-- {
			for k := len(reps[j]) - 1; k >= 0; k-- {
				j, k := j, k
				visit(reps[j][k], func() {
					reps[j] = append(reps[j][:k:k], reps[j][k+1:]...)
					r.sections[name] = reps
				})
			}
		}
	}
	for i := len(r.def) - 1; i >= 0; i-- {
		i := i
		visit(r.def[i], func() {
			r.def = append(r.def[:i:i], r.def[i+1:]...)
		})
	}
}

func (r *registry) contains(section string, child *Component) bool {
	if section == "" {
		for _, c := range r.def {
			if c == child {
				return true
			}
		}
		return false
	}
	for _, rep := range r.sections[section] {
		for _, c := range rep {
			if c == child {
				return true
			}
		}
	}
	return false
}

// RegisterChild registers a singleton child in the default section. The
// child's placeholder is matched by its tag name on the next render.
// Registering the same instance twice is a no-op.
func (c *Component) RegisterChild(child *Component) error {
	if child == nil {
		return configErr("core.RegisterChild", c.className, "nil child")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed {
		return configErr("core.RegisterChild", c.className, "component is destroyed")
	}
	if c.children.contains("", child) {
		return nil
	}
	c.children.def = append(c.children.def, child)
	return nil
}

// RegisterRepetition registers one group of children under a named
// section. Each registered repetition stamps one clone of the section's
// placeholder; within the clone every child is matched by its tag name.
func (c *Component) RegisterRepetition(children []*Component, section string) error {
	if section == "" || section == "default" {
		return configErr("core.RegisterRepetition", c.className, "repetitions need a named section")
	}
	if len(children) == 0 {
		return configErr("core.RegisterRepetition", c.className, "empty repetition for section %q", section)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed {
		return configErr("core.RegisterRepetition", c.className, "component is destroyed")
	}
	tags := make(map[string]bool, len(children))
	rep := make([]*Component, 0, len(children))
	for _, child := range children {
		if child == nil {
			return configErr("core.RegisterRepetition", c.className, "nil child in section %q", section)
		}
		if tags[child.TagName()] {
			err := errors.Newf("core.RegisterRepetition", errors.KindDuplicateChild,
				"two children in one repetition share placeholder tag %q", child.TagName())
			err.Component = c.className
			return err
		}
		tags[child.TagName()] = true
		// An instance registers at most once per section list.
		if c.children.contains(section, child) {
			continue
		}
		rep = append(rep, child)
	}
	if len(rep) == 0 {
		return nil
	}
	if _, ok := c.children.sections[section]; !ok {
		c.children.order = append(c.children.order, section)
	}
	c.children.sections[section] = append(c.children.sections[section], rep)
	return nil
}

// EachChild visits every registered child, most recently registered
// first. Calling remove deregisters and destroys the child.
func (c *Component) EachChild(visit func(child *Component, remove func())) {
	type entry struct {
		child  *Component
		remove func()
	}
	var entries []entry
	c.mu.Lock()
	c.children.each(func(child *Component, remove func()) {
		entries = append(entries, entry{child: child, remove: remove})
	})
	c.mu.Unlock()

	for _, e := range entries {
		e := e
		visit(e.child, func() {
			c.mu.Lock()
			// Re-scan by identity; the snapshot's index-based remove may be
			// stale after earlier removals.
			c.children.each(func(child *Component, remove func()) {
				if child == e.child {
					remove()
				}
			})
			c.mu.Unlock()
			e.child.Destroy()
		})
	}
}

// insertChildren stamps registered children into a freshly rendered tree.
// Caller holds c.mu.
func (c *Component) insertChildren(root dom.Element) ([]insertion, error) {
	var ins []insertion

	for _, section := range c.children.order {
		reps := c.children.sections[section]
		if len(reps) == 0 {
			continue
		}
		placeholder, err := c.findPlaceholder(root, section, sectionAttr)
		if err != nil {
			return nil, err
		}
		if placeholder == nil {
			continue
		}

		clones := make([]dom.Element, 0, len(reps))
		for _, rep := range reps {
			clone := placeholder.Clone()
			for _, child := range rep {
				childIns, err := c.insertChild(clone, child)
				if err != nil {
					return nil, err
				}
				ins = append(ins, childIns...)
			}
			clones = append(clones, clone)
		}
		placeholder.ReplaceWith(clones...)
	}

	for _, child := range c.children.def {
		target, err := c.findPlaceholder(root, child.TagName(), tagAttr)
		if err != nil {
			return nil, err
		}
		if target == nil {
			// Missing placeholder is an intentional partial-tree condition;
			// the orphan sweep reclaims the child if it stays unplaced.
			continue
		}
		childIns, err := c.replaceWithChild(target, child)
		if err != nil {
			return nil, err
		}
		ins = append(ins, childIns...)
	}

	return ins, nil
}

// insertChild resolves the child's placeholder inside one repetition clone
// and replaces it with the child's rendered element. A missing placeholder
// skips the child; more than one is an ambiguous target.
func (c *Component) insertChild(scope dom.Element, child *Component) ([]insertion, error) {
	target, err := c.findPlaceholder(scope, child.TagName(), tagAttr)
	if err != nil {
		return nil, err
	}
	if target == nil {
		return nil, nil
	}
	return c.replaceWithChild(target, child)
}

func (c *Component) replaceWithChild(target dom.Element, child *Component) ([]insertion, error) {
	el, err := child.Render()
	if err != nil {
		return nil, err
	}
	target.ReplaceWith(el)
	ins := []insertion{{comp: child, el: el}}
	ins = append(ins, child.lastInsertions()...)
	return ins, nil
}

// findPlaceholder locates a placeholder inside scope, first by tag name,
// then by the marker attribute. A marker-attribute match consumes the
// attribute so it never appears in the output. Returns nil when nothing
// matches; more than one match is ambiguous.
func (c *Component) findPlaceholder(scope dom.Element, name, attr string) (dom.Element, error) {
	matches, err := scope.Find(name)
	if err != nil {
		return nil, err
	}
	byAttr := false
	if len(matches) == 0 {
		matches, err = scope.Find("[" + attr + "=" + name + "]")
		if err != nil {
			return nil, err
		}
		byAttr = true
	}
	if len(matches) == 0 {
		return nil, nil
	}
	if len(matches) > 1 {
		werr := errors.Newf("core.Render", errors.KindAmbiguousTarget,
			"placeholder %q matched %d elements, want exactly 1", name, len(matches))
		werr.Component = c.className
		return nil, werr
	}
	if byAttr {
		matches[0].RemoveAttr(attr)
	}
	return matches[0], nil
}

// lastInsertions returns the child placements recorded by the most recent
// render, for re-anchoring by an enclosing parent.
func (c *Component) lastInsertions() []insertion {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]insertion, len(c.insertions))
	copy(out, c.insertions)
	return out
}
