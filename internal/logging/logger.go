// Package logging builds the slog loggers used by acmekit programs.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/mdobak/go-xerrors"
	slogmulti "github.com/samber/slog-multi"
)

const LevelTrace = slog.Level(-8)

// New returns a logger writing human readable text to console at the given
// level. When jsonOut is non-nil every record is also written to it as JSON.
func New(level slog.Level, console io.Writer, jsonOut io.Writer) *slog.Logger {
	if console == nil {
		console = os.Stderr
	}
	opts := &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: replaceAttr,
	}
	textHandler := slog.NewTextHandler(console, opts)
	if jsonOut == nil {
		return slog.New(textHandler)
	}
	return slog.New(slogmulti.Fanout(
		textHandler,
		slog.NewJSONHandler(jsonOut, opts),
	))
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(discardHandler{})
}

// Error logs err with its stack trace attached.
func Error(logger *slog.Logger, msg string, err error, args ...any) {
	args = append(args, slog.Any("error", xerrors.New(err)))
	logger.Error(msg, args...)
}

func replaceAttr(_ []string, a slog.Attr) slog.Attr {
	if a.Key == slog.LevelKey {
		if level, ok := a.Value.Any().(slog.Level); ok && level == LevelTrace {
			a.Value = slog.StringValue("TRACE")
		}
	}
	return a
}

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }
