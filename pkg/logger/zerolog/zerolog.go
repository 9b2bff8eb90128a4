// Package zerolog adapts a zerolog.Logger to the SDK's logger.Logger
// interface for applications already standardized on zerolog.
package zerolog

import (
	"fmt"

	"github.com/rs/zerolog"
)

type Logger struct {
	logger zerolog.Logger
}

// New wraps the given zerolog.Logger.
func New(logger zerolog.Logger) *Logger {
	return &Logger{logger: logger}
}

func (h *Logger) Error(msg string, args ...any) {
	h.emit(h.logger.Error(), msg, args)
}

func (h *Logger) Warn(msg string, args ...any) {
	h.emit(h.logger.Warn(), msg, args)
}

func (h *Logger) Info(msg string, args ...any) {
	h.emit(h.logger.Info(), msg, args)
}

func (h *Logger) Debug(msg string, args ...any) {
	h.emit(h.logger.Debug(), msg, args)
}

// emit translates slog-style alternating key/value args to zerolog fields.
func (h *Logger) emit(ev *zerolog.Event, msg string, args []any) {
	for i := 0; i+1 < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			key = fmt.Sprint(args[i])
		}
		ev = ev.Interface(key, args[i+1])
	}
	if len(args)%2 != 0 {
		ev = ev.Interface("arg", args[len(args)-1])
	}
	ev.Msg(msg)
}
