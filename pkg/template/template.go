// Package template defines the engine seam the component core renders
// through. The core hands a template's content and a data context to the
// engine and receives markup back; it never depends on a concrete engine.
package template

// Engine renders template content against a data context into markup.
type Engine interface {
	RenderString(templateContent string, data any) (string, error)
}

// EngineFunc adapts a function to the Engine interface.
type EngineFunc func(templateContent string, data any) (string, error)

// RenderString calls the wrapped function.
func (f EngineFunc) RenderString(templateContent string, data any) (string, error) {
	return f(templateContent, data)
}
