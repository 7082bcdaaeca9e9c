package errors

import "go.uber.org/zap"

// ZapHandler is a Handler that forwards errors to a zap logger.
type ZapHandler struct {
	Logger *zap.Logger
}

// NewZapHandler wraps a zap logger as an error handler.
// A nil logger falls back to zap.NewNop.
func NewZapHandler(logger *zap.Logger) *ZapHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ZapHandler{Logger: logger}
}

// HandleError logs an Error at error level with structured fields.
func (h *ZapHandler) HandleError(err *Error) {
	if err == nil || h.Logger == nil {
		return
	}
	fields := []zap.Field{
		zap.String("op", err.Op),
		zap.Stringer("kind", err.Kind),
		zap.Error(err.Err),
	}
	if err.Component != "" {
		fields = append(fields, zap.String("component", err.Component))
	}
	if err.StackTrace != "" {
		fields = append(fields, zap.String("stack", err.StackTrace))
	}
	h.Logger.Error("mosaic error", fields...)
}

// HandlePanic logs a PanicError at error level.
func (h *ZapHandler) HandlePanic(err *PanicError) {
	if err == nil || h.Logger == nil {
		return
	}
	h.Logger.Error("mosaic panic",
		zap.String("op", err.Op),
		zap.Any("value", err.Value),
		zap.String("stack", err.StackTrace),
	)
}
