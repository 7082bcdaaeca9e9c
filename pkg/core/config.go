package core

import (
	"context"
	"os"
	"time"

	"github.com/zoobzio/clockz"
	"gopkg.in/yaml.v3"

	"github.com/go-mosaic/mosaic/pkg/binding"
	"github.com/go-mosaic/mosaic/pkg/dom"
	"github.com/go-mosaic/mosaic/pkg/errors"
	"github.com/go-mosaic/mosaic/pkg/schedule"
	"github.com/go-mosaic/mosaic/pkg/template"
)

// DefaultSweepDelay is the pause before an orphan sweep inspects the tree.
const DefaultSweepDelay = 100 * time.Millisecond

// Template is one named template. Order matters: the first template is the
// default render target.
type Template struct {
	Name    string
	Content string
}

// FetchFunc is one data-fetch method. It runs as an asynchronous task; a
// non-nil error fails the task's group.
type FetchFunc func(ctx context.Context) error

// InitEntry is one entry of the initialization list.
type InitEntry struct {
	// Method names a FetchFunc in Config.Methods.
	Method string
	// PreventRender marks the task as active: the component renders a
	// loading view until every active task has settled.
	PreventRender bool
	// Condition, when set, is evaluated once at init time. Entries whose
	// condition returns false are not scheduled and not counted.
	Condition func() bool
}

// Config carries everything a component instance needs beyond its data
// model. A Config is immutable once handed to New.
type Config struct {
	// Templates are the component's templates in order. The first one is
	// rendered against the data model unless a Render hook is set.
	Templates []Template

	// LoadingTemplate is rendered against no data while active
	// initialization tasks are outstanding.
	LoadingTemplate string

	// InitList declares the initialization fetch tasks.
	InitList []InitEntry

	// Data is a fallback data model used when the constructor's data
	// argument is nil.
	Data map[string]any

	// UIBindings map change paths to refresh effects.
	UIBindings []binding.UIBinding

	// DataBindings map change paths to fetch effects.
	DataBindings []binding.DataBinding

	// Methods holds the fetch methods referenced by InitList and
	// DataBindings.
	Methods map[string]FetchFunc

	// DelayInit suppresses automatic initialization; init starts on the
	// first Render call instead.
	DelayInit bool

	// ShowLoadMask and HideLoadMask run when a delaying fetch starts and
	// settles. Both default to no-ops.
	ShowLoadMask func()
	HideLoadMask func()

	// TagName is the placeholder tag this component occupies when used as
	// a child. Defaults to the lower-cased class name.
	TagName string

	// Render overrides the default template render. It must produce markup
	// with exactly one root element.
	Render func(c *Component) (string, error)

	// RenderLoading overrides the loading view.
	RenderLoading func(c *Component) (string, error)

	// PostInit runs once after initialization completes.
	PostInit func(c *Component)

	// PostRefresh runs after a full-replacement reconciliation with the
	// replaced root.
	PostRefresh func(c *Component, full bool, oldRoot dom.Element)

	// Engine renders template content against a data context.
	Engine template.Engine

	// Parser turns markup into element trees.
	Parser dom.Parser

	// Scheduler batches refresh requests. Defaults to schedule.Default().
	Scheduler *schedule.Scheduler

	// Clock drives the orphan sweep timer. Defaults to the real clock.
	Clock clockz.Clock

	// SweepDelay is the orphan sweep pause. Defaults to DefaultSweepDelay.
	SweepDelay time.Duration
}

// mergeConfig layers override on top of defaults, field by field. Only
// non-zero override fields win.
func mergeConfig(defaults, override *Config) *Config {
	out := Config{}
	if defaults != nil {
		out = *defaults
	}
	if override == nil {
		return &out
	}
	if override.Templates != nil {
		out.Templates = override.Templates
	}
	if override.LoadingTemplate != "" {
		out.LoadingTemplate = override.LoadingTemplate
	}
	if override.InitList != nil {
		out.InitList = override.InitList
	}
	if override.Data != nil {
		out.Data = override.Data
	}
	if override.UIBindings != nil {
		out.UIBindings = override.UIBindings
	}
	if override.DataBindings != nil {
		out.DataBindings = override.DataBindings
	}
	if override.Methods != nil {
		out.Methods = override.Methods
	}
	if override.DelayInit {
		out.DelayInit = true
	}
	if override.ShowLoadMask != nil {
		out.ShowLoadMask = override.ShowLoadMask
	}
	if override.HideLoadMask != nil {
		out.HideLoadMask = override.HideLoadMask
	}
	if override.TagName != "" {
		out.TagName = override.TagName
	}
	if override.Render != nil {
		out.Render = override.Render
	}
	if override.RenderLoading != nil {
		out.RenderLoading = override.RenderLoading
	}
	if override.PostInit != nil {
		out.PostInit = override.PostInit
	}
	if override.PostRefresh != nil {
		out.PostRefresh = override.PostRefresh
	}
	if override.Engine != nil {
		out.Engine = override.Engine
	}
	if override.Parser != nil {
		out.Parser = override.Parser
	}
	if override.Scheduler != nil {
		out.Scheduler = override.Scheduler
	}
	if override.Clock != nil {
		out.Clock = override.Clock
	}
	if override.SweepDelay != 0 {
		out.SweepDelay = override.SweepDelay
	}
	return &out
}

// fileConfig mirrors the YAML shape of a component defaults file.
type fileConfig struct {
	Templates []struct {
		Name    string `yaml:"name"`
		Content string `yaml:"content"`
	} `yaml:"templates"`
	LoadingTemplate string `yaml:"loadingTemplate"`
	TagName         string `yaml:"tagName"`
	DelayInit       bool   `yaml:"delayInit"`
	UIBindings      []struct {
		Path      string   `yaml:"path"`
		Full      bool     `yaml:"full"`
		Selectors []string `yaml:"selectors"`
	} `yaml:"uiBindings"`
	DataBindings []struct {
		Path         string   `yaml:"path"`
		Methods      []string `yaml:"methods"`
		DelayRefresh bool     `yaml:"delayRefresh"`
	} `yaml:"dataBindings"`
	InitList []struct {
		Method        string `yaml:"method"`
		PreventRender bool   `yaml:"preventRender"`
	} `yaml:"initList"`
}

// LoadDefaults reads a component defaults file if present. A missing file
// is not an error; it returns (nil, nil). Fetch methods and hooks cannot be
// declared in YAML and are merged in from code via the override config.
func LoadDefaults(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Newf("core.LoadDefaults", errors.KindConfig, "read %s: %v", path, err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, errors.Newf("core.LoadDefaults", errors.KindConfig, "parse %s: %v", path, err)
	}

	cfg := &Config{
		LoadingTemplate: fc.LoadingTemplate,
		TagName:         fc.TagName,
		DelayInit:       fc.DelayInit,
	}
	for _, t := range fc.Templates {
		if t.Content == "" {
			return nil, errors.Newf("core.LoadDefaults", errors.KindConfig,
				"%s: template %q has no content", path, t.Name)
		}
		cfg.Templates = append(cfg.Templates, Template{Name: t.Name, Content: t.Content})
	}
	for _, b := range fc.UIBindings {
		cfg.UIBindings = append(cfg.UIBindings, binding.UIBinding{
			Path:      b.Path,
			Full:      b.Full,
			Selectors: b.Selectors,
		})
	}
	for _, b := range fc.DataBindings {
		cfg.DataBindings = append(cfg.DataBindings, binding.DataBinding{
			Path:         b.Path,
			Methods:      b.Methods,
			DelayRefresh: b.DelayRefresh,
		})
	}
	for _, e := range fc.InitList {
		cfg.InitList = append(cfg.InitList, InitEntry{
			Method:        e.Method,
			PreventRender: e.PreventRender,
		})
	}
	return cfg, nil
}

func configErr(op, component, format string, args ...any) *errors.Error {
	err := errors.Newf(op, errors.KindConfig, format, args...)
	err.Component = component
	return err
}
