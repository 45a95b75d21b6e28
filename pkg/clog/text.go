// Package clog provides the slog handlers and HTTP middleware used by the
// agent server: a colorized human-readable text handler for development and
// a chi middleware that logs one line per request.
package clog

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/fatih/color"
)

type TextHandlerConfig struct {
	Color bool
	Level *slog.Level
}

type TextHandlerOption func(*TextHandlerConfig)

func WithColor(c bool) TextHandlerOption {
	return func(cfg *TextHandlerConfig) { cfg.Color = c }
}

func WithLevel(level slog.Level) TextHandlerOption {
	return func(cfg *TextHandlerConfig) { cfg.Level = &level }
}

// TextHandler renders records as "TIME LEVEL MESSAGE" followed by sorted
// key=value attribute lines, with the level colorized.
type TextHandler struct {
	cfg   TextHandlerConfig
	attrs []slog.Attr
	group string
	w     io.Writer
	mu    *sync.Mutex
}

func NewTextHandler(w io.Writer, opts ...TextHandlerOption) *TextHandler {
	cfg := TextHandlerConfig{Color: true}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &TextHandler{cfg: cfg, w: w, mu: &sync.Mutex{}}
}

func (h *TextHandler) clone() *TextHandler {
	nh := *h
	nh.attrs = append([]slog.Attr(nil), h.attrs...)
	return &nh
}

func (h *TextHandler) Enabled(_ context.Context, l slog.Level) bool {
	minLevel := slog.LevelInfo
	if h.cfg.Level != nil {
		minLevel = h.cfg.Level.Level()
	}
	return l >= minLevel
}

func (h *TextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	nh := h.clone()
	nh.attrs = append(nh.attrs, attrs...)
	return nh
}

func (h *TextHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	nh := h.clone()
	if nh.group != "" {
		nh.group += "."
	}
	nh.group += name
	return nh
}

func levelColor(l slog.Level) *color.Color {
	switch {
	case l >= slog.LevelError:
		return color.New(color.FgRed)
	case l >= slog.LevelWarn:
		return color.New(color.FgYellow)
	case l >= slog.LevelInfo:
		return color.New(color.FgBlue)
	default:
		return color.New(color.FgCyan)
	}
}

func (h *TextHandler) Handle(_ context.Context, record slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	color.NoColor = !h.cfg.Color

	kv := map[string]string{}
	for _, attr := range h.attrs {
		kv[h.key(attr.Key)] = attr.Value.String()
	}
	record.Attrs(func(attr slog.Attr) bool {
		kv[h.key(attr.Key)] = attr.Value.String()
		return true
	})

	if _, err := fmt.Fprintf(h.w, "%s %s %s",
		record.Time.Format(time.RFC3339),
		levelColor(record.Level).Sprint(record.Level.String()),
		record.Message,
	); err != nil {
		return err
	}

	keys := make([]string, 0, len(kv))
	for k := range kv {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if _, err := fmt.Fprintf(h.w, " %s=%s", k, kv[k]); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(h.w)
	return err
}

func (h *TextHandler) key(k string) string {
	if h.group == "" {
		return k
	}
	return h.group + "." + k
}
