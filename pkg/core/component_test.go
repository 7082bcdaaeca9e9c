package core

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-mosaic/mosaic/pkg/binding"
	"github.com/go-mosaic/mosaic/pkg/dom/htmldom"
	"github.com/go-mosaic/mosaic/pkg/errors"
	"github.com/go-mosaic/mosaic/pkg/observe"
	"github.com/go-mosaic/mosaic/pkg/schedule"
	"github.com/go-mosaic/mosaic/pkg/template"
)

// captureHandler collects reported errors for assertions.
type captureHandler struct {
	mu     sync.Mutex
	errs   []*errors.Error
	panics []*errors.PanicError
}

func (h *captureHandler) HandleError(err *errors.Error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.errs = append(h.errs, err)
}

func (h *captureHandler) HandlePanic(err *errors.PanicError) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.panics = append(h.panics, err)
}

func (h *captureHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.errs)
}

func (h *captureHandler) lastKind() errors.Kind {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.errs) == 0 {
		return errors.KindUnknown
	}
	return h.errs[len(h.errs)-1].Kind
}

func waitFor(t *testing.T, msg string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", msg)
}

var echoEngine = template.EngineFunc(func(content string, data any) (string, error) {
	return content, nil
})

// baseConfig wires the real parser, a pass-through engine, and a fast
// per-test scheduler so refreshes settle quickly.
func baseConfig(t *testing.T) *Config {
	t.Helper()
	sched := schedule.New(schedule.WithDelay(time.Millisecond))
	t.Cleanup(sched.Stop)
	return &Config{
		Engine:     echoEngine,
		Parser:     htmldom.New(),
		Scheduler:  sched,
		SweepDelay: time.Millisecond,
	}
}

func childCount(c *Component) int {
	n := 0
	c.EachChild(func(*Component, func()) { n++ })
	return n
}

func TestNew_MissingDataModel(t *testing.T) {
	cfg := baseConfig(t)
	cfg.Templates = []Template{{Name: "main", Content: `<div></div>`}}
	if _, err := New("Widget", cfg, nil, nil); !errors.IsKind(err, errors.KindConfig) {
		t.Fatalf("expected config error, got %v", err)
	}
}

func TestNew_MissingEngine(t *testing.T) {
	cfg := baseConfig(t)
	cfg.Engine = nil
	if _, err := New("Widget", cfg, map[string]any{}, nil); !errors.IsKind(err, errors.KindConfig) {
		t.Fatalf("expected config error, got %v", err)
	}
}

func TestNew_UnknownBindingMethod(t *testing.T) {
	cfg := baseConfig(t)
	cfg.Templates = []Template{{Name: "main", Content: `<div></div>`}}
	cfg.DataBindings = []binding.DataBinding{{Path: "q", Methods: []string{"nope"}}}
	if _, err := New("Widget", cfg, map[string]any{}, nil); !errors.IsKind(err, errors.KindConfig) {
		t.Fatalf("expected config error for unknown method, got %v", err)
	}
}

func TestDataModelSharedByIdentity(t *testing.T) {
	cfg := baseConfig(t)
	cfg.Templates = []Template{{Name: "main", Content: `<div></div>`}}
	data := map[string]any{"n": 1}
	c, err := New("Widget", cfg, data, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Destroy()

	c.Set("n", 2)
	if data["n"] != 2 {
		t.Errorf("write not visible through original map: %v", data["n"])
	}
	if got, _ := c.Get("n"); got != 2 {
		t.Errorf("Get(n) = %v, want 2", got)
	}
}

func TestMutationTriggersSingleRefresh(t *testing.T) {
	var renders atomic.Int32
	cfg := baseConfig(t)
	cfg.UIBindings = []binding.UIBinding{{Path: "user.name", Full: true}}
	cfg.Render = func(c *Component) (string, error) {
		renders.Add(1)
		name, _ := c.Get("user.name")
		return fmt.Sprintf(`<div class="card">%v</div>`, name), nil
	}
	c, err := New("Card", cfg, map[string]any{"user": map[string]any{"name": "ada"}}, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Destroy()

	if _, err := c.Render(); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Render(); err != nil {
		t.Fatal(err)
	}
	if got := renders.Load(); got != 1 {
		t.Fatalf("clean repeat render re-evaluated markup: %d renders", got)
	}

	c.Set("user.name", "grace")
	c.Set("user.name", "hopper")
	waitFor(t, "refresh to settle", c.IsReady)

	if got := renders.Load(); got != 2 {
		t.Errorf("burst of mutations caused %d renders, want 2", got)
	}
	if html := c.Root().HTML(); !strings.Contains(html, "hopper") {
		t.Errorf("refreshed tree missing latest value: %s", html)
	}
}

func TestUnboundMutationNoRefresh(t *testing.T) {
	var renders atomic.Int32
	cfg := baseConfig(t)
	cfg.UIBindings = []binding.UIBinding{{Path: "bound", Full: true}}
	cfg.Render = func(c *Component) (string, error) {
		renders.Add(1)
		return `<div></div>`, nil
	}
	c, err := New("Widget", cfg, map[string]any{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Destroy()

	if _, err := c.Render(); err != nil {
		t.Fatal(err)
	}
	c.Set("unbound", 42)
	time.Sleep(20 * time.Millisecond)
	if got := renders.Load(); got != 1 {
		t.Errorf("unbound mutation caused %d renders, want 1", got)
	}
	if !c.IsReady() {
		t.Error("component not ready after unbound mutation")
	}
}

func TestEqualValueWriteNoRefresh(t *testing.T) {
	var renders atomic.Int32
	cfg := baseConfig(t)
	cfg.UIBindings = []binding.UIBinding{{Path: "v", Full: true}}
	cfg.Render = func(c *Component) (string, error) {
		renders.Add(1)
		return `<div></div>`, nil
	}
	c, err := New("Widget", cfg, map[string]any{"v": "same"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Destroy()

	if _, err := c.Render(); err != nil {
		t.Fatal(err)
	}
	c.Set("v", "same")
	time.Sleep(20 * time.Millisecond)
	if got := renders.Load(); got != 1 {
		t.Errorf("equal-value write caused %d renders, want 1", got)
	}
}

func TestRefresh_ManualFull(t *testing.T) {
	var renders atomic.Int32
	cfg := baseConfig(t)
	cfg.Render = func(c *Component) (string, error) {
		renders.Add(1)
		return `<div></div>`, nil
	}
	c, err := New("Widget", cfg, map[string]any{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Destroy()

	if _, err := c.Render(); err != nil {
		t.Fatal(err)
	}
	c.Refresh()
	waitFor(t, "manual refresh", func() bool { return renders.Load() == 2 })
}

func TestPatternBindingMatchesPaths(t *testing.T) {
	var renders atomic.Int32
	cfg := baseConfig(t)
	cfg.UIBindings = []binding.UIBinding{{Path: `/^items\./`, Full: true}}
	cfg.Render = func(c *Component) (string, error) {
		renders.Add(1)
		return `<div></div>`, nil
	}
	c, err := New("List", cfg, map[string]any{"items": map[string]any{}}, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Destroy()

	if _, err := c.Render(); err != nil {
		t.Fatal(err)
	}
	c.Set("items.3", "new entry")
	waitFor(t, "pattern-bound refresh", func() bool { return renders.Load() == 2 })
}

func TestDestroy_StopsReactivity(t *testing.T) {
	var renders atomic.Int32
	cfg := baseConfig(t)
	cfg.UIBindings = []binding.UIBinding{{Path: "v", Full: true}}
	cfg.Render = func(c *Component) (string, error) {
		renders.Add(1)
		return `<div></div>`, nil
	}
	c, err := New("Widget", cfg, map[string]any{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.Render(); err != nil {
		t.Fatal(err)
	}

	c.Destroy()
	c.Set("v", 1)
	c.Refresh()
	time.Sleep(20 * time.Millisecond)
	if got := renders.Load(); got != 1 {
		t.Errorf("destroyed component rendered %d times, want 1", got)
	}
	if _, err := c.Render(); !errors.IsKind(err, errors.KindConfig) {
		t.Errorf("expected error rendering destroyed component, got %v", err)
	}
	if c.Root() != nil {
		t.Error("destroyed component kept its root")
	}
}

func TestTagName_DefaultsToLowerClassName(t *testing.T) {
	cfg := baseConfig(t)
	cfg.Templates = []Template{{Name: "main", Content: `<div></div>`}}
	c, err := New("ContactRow", cfg, map[string]any{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Destroy()
	if got := c.TagName(); got != "contactrow" {
		t.Errorf("TagName() = %q", got)
	}

	cfg2 := baseConfig(t)
	cfg2.Templates = cfg.Templates
	cfg2.TagName = "row"
	c2, err := New("ContactRow", cfg2, map[string]any{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer c2.Destroy()
	if got := c2.TagName(); got != "row" {
		t.Errorf("TagName() = %q, want row", got)
	}
}

func TestObserve_ExternalObserverSeesChanges(t *testing.T) {
	cfg := baseConfig(t)
	cfg.Templates = []Template{{Name: "main", Content: `<div></div>`}}
	c, err := New("Widget", cfg, map[string]any{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Destroy()

	var seen atomic.Int32
	c.Observe(func(changes []observe.Change) {
		seen.Add(int32(len(changes)))
	})
	c.Set("k", "v")
	if seen.Load() != 1 {
		t.Errorf("external observer saw %d changes, want 1", seen.Load())
	}
}
