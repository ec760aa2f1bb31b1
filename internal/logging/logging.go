// Package logging builds the process logger from a LoggingConfig.
//
// Records go to the given writer as text or JSON. When a Seq URL is
// configured they are also shipped to Seq through a fan-out handler.
package logging

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"time"

	"entitymap/internal/config"

	slogseq "github.com/sokkalf/slog-seq"
)

// multiHandler forwards records to every handler that accepts the level.
type multiHandler struct {
	handlers []slog.Handler
}

func (m *multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range m.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (m *multiHandler) Handle(ctx context.Context, r slog.Record) error {
	var first error
	for _, h := range m.handlers {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (m *multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	handlers := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		handlers[i] = h.WithAttrs(attrs)
	}
	return &multiHandler{handlers: handlers}
}

func (m *multiHandler) WithGroup(name string) slog.Handler {
	handlers := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		handlers[i] = h.WithGroup(name)
	}
	return &multiHandler{handlers: handlers}
}

// ParseLevel converts a level name to slog.Level. Unknown names are info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Setup returns a logger writing to w per cfg and a cleanup function that
// flushes any remote sink. The caller decides whether to slog.SetDefault it.
func Setup(w io.Writer, cfg config.LoggingConfig) (*slog.Logger, func()) {
	opts := &slog.HandlerOptions{Level: ParseLevel(cfg.Level)}

	var local slog.Handler
	if strings.EqualFold(cfg.Format, "json") {
		local = slog.NewJSONHandler(w, opts)
	} else {
		local = slog.NewTextHandler(w, opts)
	}

	if cfg.SeqURL == "" {
		return slog.New(local), func() {}
	}

	_, seq := slogseq.NewLogger(
		cfg.SeqURL,
		slogseq.WithBatchSize(50),
		slogseq.WithFlushInterval(2*time.Second),
		slogseq.WithHandlerOptions(opts),
	)
	if seq == nil {
		return slog.New(local), func() {}
	}

	multi := &multiHandler{handlers: []slog.Handler{local, seq}}
	return slog.New(multi), func() { seq.Close() }
}
