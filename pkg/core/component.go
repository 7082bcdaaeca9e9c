// Package core implements the reactive component engine: observable data
// binding, asynchronous initialization, batched re-rendering, and nested
// component lifecycle management.
//
// A Component is configured, not subclassed. Concrete components supply
// templates, a data model, fetch methods, and bindings through Config;
// the engine owns the reactive machinery. Collaborators (template engine,
// DOM facade) are interfaces injected through Config.
package core

import (
	"strings"
	"sync"
	"sync/atomic"

	"github.com/zoobzio/clockz"

	"github.com/go-mosaic/mosaic/pkg/binding"
	"github.com/go-mosaic/mosaic/pkg/dom"
	"github.com/go-mosaic/mosaic/pkg/errors"
	"github.com/go-mosaic/mosaic/pkg/observe"
	"github.com/go-mosaic/mosaic/pkg/schedule"
)

// nextID assigns process-wide component identities.
var nextID atomic.Uint64

// Component is one reactive component instance.
//
// All state is guarded by a single mutex; binding resolution,
// reconciliation, and registry mutation run to completion under it, so a
// render or refresh pass is never interleaved with another mutation of the
// same instance. Fetch tasks run on their own goroutines and re-enter the
// lock in their continuations.
type Component struct {
	id        uint64
	className string
	cfg       *Config

	mu sync.Mutex

	store     *observe.Proxy
	uiTable   *binding.UITable
	dataTable *binding.DataTable

	refresh binding.RefreshState

	initStarted  bool
	initialized  bool
	pendingInit  bool
	delayGate    bool
	maskShown    bool
	pendingFetch int

	rendered   bool
	root       dom.Element
	insertions []insertion

	children registry

	sweepGen  uint64
	destroyed bool

	sched *schedule.Scheduler
	clock clockz.Clock
}

// New constructs a component. The effective configuration is defaults
// overlaid with override; the data model argument wins over Config.Data.
// The data model is shared by identity, not copied.
//
// Unless DelayInit is set, initialization starts before New returns;
// configuration problems (a data binding naming an unknown method, a
// missing data model) surface here.
func New(className string, defaults *Config, data map[string]any, override *Config) (*Component, error) {
	cfg := mergeConfig(defaults, override)

	if data == nil {
		data = cfg.Data
	}
	if data == nil {
		return nil, configErr("core.New", className, "missing required data model")
	}
	if cfg.Engine == nil {
		return nil, configErr("core.New", className, "missing template engine")
	}
	if cfg.Parser == nil {
		return nil, configErr("core.New", className, "missing dom parser")
	}

	uiTable, err := binding.CompileUI(cfg.UIBindings)
	if err != nil {
		return nil, err
	}
	dataTable, err := binding.CompileData(cfg.DataBindings)
	if err != nil {
		return nil, err
	}

	c := &Component{
		id:        nextID.Add(1),
		className: className,
		cfg:       cfg,
		uiTable:   uiTable,
		dataTable: dataTable,
		sched:     cfg.Scheduler,
		clock:     cfg.Clock,
	}
	if c.sched == nil {
		c.sched = schedule.Default()
	}
	if c.clock == nil {
		c.clock = clockz.RealClock
	}
	c.children.sections = make(map[string][][]*Component)
	c.store = observe.New(data, false, c.onChanges)

	if !cfg.DelayInit {
		if err := c.init(); err != nil {
			c.store.Detach()
			return nil, err
		}
	}
	return c, nil
}

// ID returns the instance's process-wide sequence number.
func (c *Component) ID() uint64 {
	return c.id
}

// ClassName returns the component's class name.
func (c *Component) ClassName() string {
	return c.className
}

// TagName returns the placeholder tag this component occupies when nested
// inside a parent.
func (c *Component) TagName() string {
	if c.cfg.TagName != "" {
		return c.cfg.TagName
	}
	return strings.ToLower(c.className)
}

// Data returns the underlying data model, shared by identity.
func (c *Component) Data() map[string]any {
	return c.store.Data()
}

// Get resolves a dot-path against the data model.
func (c *Component) Get(path string) (any, bool) {
	return c.store.Get(path)
}

// Set writes a value into the data model through the owning proxy,
// triggering binding resolution. A no-op once the component is destroyed.
func (c *Component) Set(path string, value any) {
	c.store.Set(path, value)
}

// Delete removes a key from the data model through the owning proxy.
func (c *Component) Delete(path string) {
	c.store.Delete(path)
}

// Update applies a multi-write mutation batch; its changes resolve as one
// ordered sequence.
func (c *Component) Update(fn func(*observe.Batch)) {
	c.store.Update(fn)
}

// Observe attaches an external read-only observer to the data model. The
// observer sees every change batch but never participates in refresh or
// fetch logic.
func (c *Component) Observe(onChange func([]observe.Change)) *observe.Proxy {
	return c.store.Observe(onChange)
}

// Refresh unconditionally schedules a full re-render. This is the manual
// escape hatch; bound mutations normally drive refreshes.
func (c *Component) Refresh() {
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return
	}
	c.refresh.MarkFull()
	c.mu.Unlock()
	c.requestRefresh()
}

// IsReady reports whether the instance and every descendant have settled:
// no pending initialization, no in-flight fetch tasks, no pending refresh.
func (c *Component) IsReady() bool {
	c.mu.Lock()
	ready := !c.pendingInit && c.pendingFetch == 0 && c.refresh.Empty()
	kids := c.children.all()
	c.mu.Unlock()
	if !ready {
		return false
	}
	for _, kid := range kids {
		if !kid.IsReady() {
			return false
		}
	}
	return true
}

// Destroy tears the component down: children first (recursively), then the
// registry, the owning observable, and the rendered element. Destruction
// is irreversible; subsequent data mutations produce no notifications.
func (c *Component) Destroy() {
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return
	}
	c.destroyed = true
	c.sweepGen++ // invalidate any scheduled sweep
	kids := c.children.all()
	c.children = registry{sections: make(map[string][][]*Component)}
	root := c.root
	c.root = nil
	c.rendered = false
	c.mu.Unlock()

	for i := len(kids) - 1; i >= 0; i-- {
		kids[i].Destroy()
	}
	c.store.Detach()
	if root != nil {
		root.Remove()
	}
}

// onChanges is the owning proxy's callback: it resolves the batch against
// both binding tables and kicks off the resulting fetch and refresh work.
// Mutations before initialization are observed but produce no effects.
func (c *Component) onChanges(changes []observe.Change) {
	c.mu.Lock()
	if c.destroyed || !c.initialized {
		c.mu.Unlock()
		return
	}
	c.uiTable.Resolve(changes, &c.refresh)
	plan := c.dataTable.Resolve(changes)
	needRefresh := !c.refresh.Empty()
	c.mu.Unlock()

	if len(plan.Methods) > 0 {
		c.fetch(plan)
	}
	if needRefresh {
		c.requestRefresh()
	}
}

// requestRefresh queues this instance's reconciliation with the
// cross-instance scheduler.
func (c *Component) requestRefresh() {
	c.sched.Enqueue(c.id, c.refreshScheduled)
}

// refreshScheduled adapts the error-returning refresh pass to the
// scheduler's callback shape; failures go to the diagnostics sink.
func (c *Component) refreshScheduled() {
	if err := c.refreshNow(); err != nil {
		reportErr("core.refresh", c.className, err)
	}
}

func reportErr(op, component string, err error) {
	if e, ok := err.(*errors.Error); ok {
		if e.Component == "" {
			e.Component = component
		}
		errors.Report(e)
		return
	}
	reported := errors.New(op, errors.KindUnknown, err)
	reported.Component = component
	errors.Report(reported)
}
