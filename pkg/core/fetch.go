package core

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/go-mosaic/mosaic/pkg/binding"
	"github.com/go-mosaic/mosaic/pkg/errors"
)

// init drives the initialization fetch orchestration.
//
// It validates the fetch-method configuration, evaluates init-list
// conditions once, and partitions the surviving entries into an active
// group (PreventRender; gates the first real render) and a passive group.
// With no active tasks the component is initialized synchronously before
// init returns; otherwise initialization completes in the active group's
// continuation, which forces a full refresh and schedules it.
func (c *Component) init() error {
	c.mu.Lock()
	if c.initStarted || c.destroyed {
		c.mu.Unlock()
		return nil
	}
	c.initStarted = true

	// Fail fast on bindings referencing unknown methods.
	for _, name := range c.dataTable.MethodNames() {
		if _, ok := c.cfg.Methods[name]; !ok {
			c.initStarted = false
			c.mu.Unlock()
			return configErr("core.init", c.className, "data binding references unknown method %q", name)
		}
	}

	var active, passive []string
	for _, entry := range c.cfg.InitList {
		if entry.Condition != nil && !entry.Condition() {
			continue
		}
		if _, ok := c.cfg.Methods[entry.Method]; !ok {
			c.initStarted = false
			c.mu.Unlock()
			return configErr("core.init", c.className, "init list references unknown method %q", entry.Method)
		}
		if entry.PreventRender {
			active = append(active, entry.Method)
		} else {
			passive = append(passive, entry.Method)
		}
	}

	if len(passive) > 0 {
		c.pendingFetch++
	}

	if len(active) == 0 {
		c.initialized = true
		post := c.cfg.PostInit
		c.mu.Unlock()
		if post != nil {
			post(c)
		}
	} else {
		c.pendingFetch++
		c.pendingInit = true
		c.mu.Unlock()
		c.runGroup(active, c.finishActiveInit)
	}

	if len(passive) > 0 {
		c.runGroup(passive, func(error) {
			c.mu.Lock()
			c.pendingFetch--
			c.mu.Unlock()
		})
	}
	return nil
}

// finishActiveInit is the continuation of the active init group. On
// failure the group's error was already reported; the component stays
// pending (non-progressing, not actively failing).
func (c *Component) finishActiveInit(err error) {
	c.mu.Lock()
	c.pendingFetch--
	if err != nil || c.destroyed {
		c.mu.Unlock()
		return
	}
	c.initialized = true
	c.pendingInit = false
	c.refresh.MarkFull()
	post := c.cfg.PostInit
	c.mu.Unlock()

	c.requestRefresh()
	if post != nil {
		post(c)
	}
}

// fetch runs the data-binding fetch plan as one task group. With Delay set
// it engages the delay-refresh gate and the load mask until the whole
// group settles.
func (c *Component) fetch(plan binding.Plan) {
	if len(plan.Methods) == 0 {
		return
	}
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return
	}
	for _, name := range plan.Methods {
		if _, ok := c.cfg.Methods[name]; !ok {
			c.mu.Unlock()
			reportErr("core.fetch", c.className,
				configErr("core.fetch", c.className, "fetch references unknown method %q", name))
			return
		}
	}
	c.pendingFetch++
	var show func()
	if plan.Delay {
		c.delayGate = true
		c.maskShown = true
		show = c.cfg.ShowLoadMask
	}
	c.mu.Unlock()

	if show != nil {
		show()
	}
	c.runGroup(plan.Methods, c.finishFetch)
}

// finishFetch is the continuation of a data-binding task group: it clears
// the delay-refresh gate, hides the load mask if it was shown, and chases
// any refresh that was suppressed while the group was in flight.
func (c *Component) finishFetch(error) {
	c.mu.Lock()
	c.pendingFetch--
	c.delayGate = false
	var hide func()
	if c.maskShown {
		c.maskShown = false
		hide = c.cfg.HideLoadMask
	}
	needRefresh := !c.refresh.Empty() && !c.destroyed
	c.mu.Unlock()

	if hide != nil {
		hide()
	}
	if needRefresh {
		c.requestRefresh()
	}
}

// runGroup executes one task per method name and delivers the group result
// to done on a separate goroutine. A task failure is reported to the
// diagnostics sink and fails the group; sibling groups and other instances
// are unaffected.
func (c *Component) runGroup(methods []string, done func(error)) {
	g, ctx := errgroup.WithContext(context.Background())
	for _, name := range methods {
		fn := c.cfg.Methods[name]
		name := name
		g.Go(func() error {
			if err := fn(ctx); err != nil {
				reported := errors.Newf("core.task", errors.KindFetch, "method %q: %v", name, err)
				reported.Component = c.className
				errors.Report(reported)
				return err
			}
			return nil
		})
	}
	go func() {
		done(g.Wait())
	}()
}
