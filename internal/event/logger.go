package event

import (
	"github.com/ThreeDotsLabs/watermill"
	"go.uber.org/zap"
)

// zapAdapter routes watermill logs to zap.
type zapAdapter struct {
	lg *zap.Logger
}

// NewLogger wraps lg as a watermill.LoggerAdapter.
func NewLogger(lg *zap.Logger) watermill.LoggerAdapter {
	return zapAdapter{lg: lg.Named("watermill")}
}

func fields(f watermill.LogFields) []zap.Field {
	out := make([]zap.Field, 0, len(f))
	for k, v := range f {
		out = append(out, zap.Any(k, v))
	}
	return out
}

func (a zapAdapter) Error(msg string, err error, f watermill.LogFields) {
	a.lg.Error(msg, append(fields(f), zap.Error(err))...)
}

func (a zapAdapter) Info(msg string, f watermill.LogFields) {
	a.lg.Info(msg, fields(f)...)
}

func (a zapAdapter) Debug(msg string, f watermill.LogFields) {
	a.lg.Debug(msg, fields(f)...)
}

// Trace is logged at debug level; zap has no lower one.
func (a zapAdapter) Trace(msg string, f watermill.LogFields) {
	a.lg.Debug(msg, fields(f)...)
}

func (a zapAdapter) With(f watermill.LogFields) watermill.LoggerAdapter {
	return zapAdapter{lg: a.lg.With(fields(f)...)}
}
