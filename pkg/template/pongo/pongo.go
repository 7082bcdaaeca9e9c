// Package pongo implements the template engine seam with a pongo2-backed
// template set.
package pongo

import (
	"sync"

	"github.com/flosch/pongo2/v6"

	"github.com/go-mosaic/mosaic/pkg/errors"
	"github.com/go-mosaic/mosaic/pkg/template"
)

// Engine renders template strings through a shared pongo2 template set,
// caching compiled templates by content.
type Engine struct {
	mu    sync.RWMutex
	set   *pongo2.TemplateSet
	cache map[string]*pongo2.Template
}

// Ensure Engine implements the template seam.
var _ template.Engine = (*Engine)(nil)

// New constructs an Engine.
func New() *Engine {
	return &Engine{
		set:   pongo2.NewSet("mosaic", pongo2.DefaultLoader),
		cache: make(map[string]*pongo2.Template),
	}
}

// RenderString compiles the template content (cached) and executes it
// against the data context.
func (e *Engine) RenderString(content string, data any) (string, error) {
	tmpl, err := e.compile(content)
	if err != nil {
		return "", err
	}
	ctx, err := convertToContext(data)
	if err != nil {
		return "", err
	}
	out, err := tmpl.Execute(ctx)
	if err != nil {
		return "", errors.Newf("pongo.RenderString", errors.KindRenderContract, "execute template: %v", err)
	}
	return out, nil
}

// GlobalContext seeds values available to every template.
func (e *Engine) GlobalContext(data map[string]any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.set.Globals == nil {
		e.set.Globals = make(pongo2.Context)
	}
	e.set.Globals.Update(pongo2.Context(data))
}

func (e *Engine) compile(content string) (*pongo2.Template, error) {
	e.mu.RLock()
	if tmpl, ok := e.cache[content]; ok {
		e.mu.RUnlock()
		return tmpl, nil
	}
	e.mu.RUnlock()

	e.mu.Lock()
	defer e.mu.Unlock()
	if tmpl, ok := e.cache[content]; ok {
		return tmpl, nil
	}
	tmpl, err := e.set.FromString(content)
	if err != nil {
		return nil, errors.Newf("pongo.RenderString", errors.KindConfig, "parse template: %v", err)
	}
	e.cache[content] = tmpl
	return tmpl, nil
}

func convertToContext(data any) (pongo2.Context, error) {
	switch v := data.(type) {
	case nil:
		return pongo2.Context{}, nil
	case pongo2.Context:
		return v, nil
	case map[string]any:
		return pongo2.Context(v), nil
	default:
		return nil, errors.Newf("pongo.RenderString", errors.KindConfig, "unsupported data context %T", data)
	}
}
