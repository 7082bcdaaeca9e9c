package core

import (
	"github.com/go-mosaic/mosaic/pkg/dom"
	"github.com/go-mosaic/mosaic/pkg/errors"
)

// Render produces the component's element tree.
//
// While initialization is pending it returns a loading view. Once ready,
// with no pending refresh and a prior full render, it returns the cached
// root unchanged and evaluates no template. Otherwise it performs a full
// render: the render override (or the first configured template against
// the data model) must produce exactly one root element, children are
// inserted, and the result is cached.
func (c *Component) Render() (dom.Element, error) {
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return nil, configErr("core.Render", c.className, "component is destroyed")
	}
	if !c.initialized && !c.initStarted {
		c.mu.Unlock()
		if err := c.init(); err != nil {
			return nil, err
		}
		c.mu.Lock()
	}

	if c.pendingInit || !c.initialized {
		el, err := c.renderLoadingLocked()
		if err == nil {
			// Cache the loading view so the post-init full refresh can
			// replace it in its parent context; the rendered flag stays
			// unset.
			c.root = el
		}
		c.mu.Unlock()
		return el, err
	}

	if c.rendered && c.refresh.Empty() {
		root := c.root
		c.mu.Unlock()
		return root, nil
	}

	root, err := c.renderFullLocked()
	c.mu.Unlock()
	return root, err
}

// refreshNow is the reconciliation pass invoked by the scheduler.
func (c *Component) refreshNow() error {
	c.mu.Lock()
	if c.destroyed || !c.initialized || c.delayGate {
		c.mu.Unlock()
		return nil
	}

	if !c.rendered {
		_, err := c.renderFullLocked()
		if err == nil {
			c.scheduleSweepLocked()
		}
		c.mu.Unlock()
		return err
	}

	if c.refresh.Empty() {
		c.mu.Unlock()
		return nil
	}

	if c.refresh.Full() {
		oldRoot := c.root
		newRoot, ins, err := c.renderTreeLocked()
		if err != nil {
			c.mu.Unlock()
			return err
		}
		oldRoot.ReplaceWith(newRoot)
		c.root = newRoot
		c.insertions = ins
		c.anchorInsertionsLocked(ins, newRoot)
		c.refresh.Clear()
		post := c.cfg.PostRefresh
		c.scheduleSweepLocked()
		c.mu.Unlock()
		if post != nil {
			post(c, true, oldRoot)
		}
		return nil
	}

	err := c.applySelectorsLocked()
	if err == nil {
		c.scheduleSweepLocked()
	}
	c.mu.Unlock()
	return err
}

// applySelectorsLocked performs a partial reconciliation: it renders a
// full new tree and grafts only the subtrees matched by the pending
// selectors into the current tree, preserving node identity everywhere
// else.
func (c *Component) applySelectorsLocked() error {
	selectors := c.refresh.Selectors()

	type target struct {
		selector string
		old      dom.Element
	}
	targets := make([]target, 0, len(selectors))
	for _, sel := range selectors {
		matches, err := c.root.Find(sel)
		if err != nil {
			return err
		}
		if len(matches) != 1 {
			return c.selectorErr(sel, "current", len(matches))
		}
		targets = append(targets, target{selector: sel, old: matches[0]})
	}

	// Drop selectors subsumed by an ancestor's patch.
	surviving := targets[:0]
	for i, t := range targets {
		subsumed := false
		for j, other := range targets {
			if i != j && other.old.Contains(t.old) {
				subsumed = true
				break
			}
		}
		if !subsumed {
			surviving = append(surviving, t)
		}
	}

	newRoot, ins, err := c.renderTreeLocked()
	if err != nil {
		return err
	}

	for _, t := range surviving {
		matches, err := newRoot.Find(t.selector)
		if err != nil {
			return err
		}
		if len(matches) != 1 {
			return c.selectorErr(t.selector, "new", len(matches))
		}
		t.old.ReplaceWith(matches[0])
	}

	c.insertions = ins
	c.anchorInsertionsLocked(ins, c.root)
	c.refresh.Clear()
	return nil
}

func (c *Component) selectorErr(selector, tree string, matched int) *errors.Error {
	err := errors.Newf("core.refresh", errors.KindAmbiguousTarget,
		"selector %q matched %d elements in the %s tree, want exactly 1", selector, matched, tree)
	err.Component = c.className
	return err
}

// renderFullLocked renders a fresh tree, replaces any cached root in its
// parent context, and marks the component rendered.
func (c *Component) renderFullLocked() (dom.Element, error) {
	newRoot, ins, err := c.renderTreeLocked()
	if err != nil {
		return nil, err
	}
	if c.root != nil {
		c.root.ReplaceWith(newRoot)
	}
	c.root = newRoot
	c.rendered = true
	c.insertions = ins
	c.anchorInsertionsLocked(ins, newRoot)
	c.refresh.Clear()
	return newRoot, nil
}

// renderTreeLocked evaluates the component's markup, parses it, validates
// the single-root contract, and inserts children.
func (c *Component) renderTreeLocked() (dom.Element, []insertion, error) {
	markup, err := c.callRender()
	if err != nil {
		return nil, nil, err
	}
	roots, err := c.cfg.Parser.Parse(markup)
	if err != nil {
		return nil, nil, err
	}
	if len(roots) != 1 {
		err := errors.Newf("core.Render", errors.KindRenderContract,
			"render produced %d root elements, want exactly 1", len(roots))
		err.Component = c.className
		return nil, nil, err
	}
	root := roots[0]
	ins, err := c.insertChildren(root)
	if err != nil {
		return nil, nil, err
	}
	return root, ins, nil
}

// callRender invokes the render override, or the default first-template
// render, with panic capture.
func (c *Component) callRender() (markup string, err error) {
	defer func() {
		if r := recover(); r != nil {
			errors.ReportPanic(&errors.PanicError{
				Op:         "core.Render",
				Value:      r,
				StackTrace: errors.CaptureStack(),
			})
			err = errors.Newf("core.Render", errors.KindRenderContract, "render panicked: %v", r)
		}
	}()
	if c.cfg.Render != nil {
		return c.cfg.Render(c)
	}
	if len(c.cfg.Templates) == 0 {
		return "", configErr("core.Render", c.className, "no templates configured")
	}
	return c.cfg.Engine.RenderString(c.cfg.Templates[0].Content, c.store.Data())
}

// renderLoadingLocked produces the loading view shown while active
// initialization tasks are outstanding.
func (c *Component) renderLoadingLocked() (dom.Element, error) {
	var markup string
	var err error
	switch {
	case c.cfg.RenderLoading != nil:
		markup, err = c.cfg.RenderLoading(c)
	case c.cfg.LoadingTemplate != "":
		markup, err = c.cfg.Engine.RenderString(c.cfg.LoadingTemplate, nil)
	default:
		return nil, configErr("core.Render", c.className, "no loading template configured")
	}
	if err != nil {
		return nil, err
	}
	roots, err := c.cfg.Parser.Parse(markup)
	if err != nil {
		return nil, err
	}
	if len(roots) != 1 {
		rcErr := errors.Newf("core.Render", errors.KindRenderContract,
			"loading view produced %d root elements, want exactly 1", len(roots))
		rcErr.Component = c.className
		return nil, rcErr
	}
	return roots[0], nil
}

// anchorInsertionsLocked re-anchors child element references that remain
// contained in the live tree after a reconciliation.
func (c *Component) anchorInsertionsLocked(ins []insertion, root dom.Element) {
	for _, in := range ins {
		if root != nil && (root == in.el || root.Contains(in.el)) {
			in.comp.setRoot(in.el)
		}
	}
}

// setRoot updates the cached element reference after a parent re-anchored
// this component's rendered output.
func (c *Component) setRoot(el dom.Element) {
	c.mu.Lock()
	c.root = el
	c.mu.Unlock()
}

// Root returns the cached rendered element, or nil before the first
// render.
func (c *Component) Root() dom.Element {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.root
}

// scheduleSweepLocked arms the deferred orphan sweep. Each arm supersedes
// the previous one via the generation counter; a stale sweep is a no-op.
func (c *Component) scheduleSweepLocked() {
	c.sweepGen++
	gen := c.sweepGen
	delay := c.cfg.SweepDelay
	if delay <= 0 {
		delay = DefaultSweepDelay
	}
	go func() {
		timer := c.clock.NewTimer(delay)
		defer timer.Stop()
		<-timer.C()
		c.sweep(gen)
	}()
}

// sweep destroys and deregisters every child whose rendered element is nil
// or no longer contained in the current tree.
func (c *Component) sweep(gen uint64) {
	c.mu.Lock()
	if c.destroyed || gen != c.sweepGen {
		c.mu.Unlock()
		return
	}
	root := c.root
	var orphans []*Component
	c.children.each(func(child *Component, remove func()) {
		el := child.Root()
		if el == nil || root == nil || !root.Contains(el) {
			remove()
			orphans = append(orphans, child)
		}
	})
	c.mu.Unlock()

	for _, orphan := range orphans {
		orphan.Destroy()
	}
}
