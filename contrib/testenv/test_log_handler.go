package testenv

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// TestLogHandler is a slog.Handler that prints the message index (starting
// from 0), level and message, without the timestamp. Attributes whose value
// differs on every run, such as request ids and wait times, can be dropped
// with WithIgnoreKeys so that test log output is deterministic.
//
// Handlers derived with WithAttrs and WithGroup share the message counter
// of their parent.
type TestLogHandler struct {
	state  *handlerState
	attrs  []slog.Attr
	groups []string
}

type handlerState struct {
	mu     sync.Mutex
	out    io.Writer
	index  int
	minLvl slog.Level
	ignore map[string]bool
}

// DefaultIgnoredKeys are the attributes the proxy fills with per-run values.
var DefaultIgnoredKeys = []string{"request_id", "waited"}

// TestLogHandlerOption is a function that configures a TestLogHandler
type TestLogHandlerOption func(*handlerState)

// WithOutput writes to w instead of standard output.
func WithOutput(w io.Writer) TestLogHandlerOption {
	return func(s *handlerState) {
		s.out = w
	}
}

// WithIgnoreKeys drops attributes with the given keys.
func WithIgnoreKeys(keys ...string) TestLogHandlerOption {
	return func(s *handlerState) {
		for _, k := range keys {
			s.ignore[k] = true
		}
	}
}

// WithIgnoreDebug configures the handler to ignore DEBUG level messages
func WithIgnoreDebug() TestLogHandlerOption {
	return func(s *handlerState) {
		s.minLvl = slog.LevelInfo
	}
}

// NewTestLogHandler creates a handler that drops DefaultIgnoredKeys.
func NewTestLogHandler(opts ...TestLogHandlerOption) *TestLogHandler {
	s := &handlerState{
		out:    os.Stdout,
		minLvl: slog.LevelDebug,
		ignore: make(map[string]bool),
	}
	WithIgnoreKeys(DefaultIgnoredKeys...)(s)
	for _, opt := range opts {
		opt(s)
	}
	return &TestLogHandler{state: s}
}

func (h *TestLogHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.state.minLvl
}

//nolint:gocritic
func (h *TestLogHandler) Handle(_ context.Context, r slog.Record) error {
	var parts []string
	for _, a := range h.attrs {
		parts = h.appendAttr(parts, a, "")
	}
	prefix := ""
	if len(h.groups) > 0 {
		prefix = strings.Join(h.groups, ".") + "."
	}
	r.Attrs(func(a slog.Attr) bool {
		parts = h.appendAttr(parts, a, prefix)
		return true
	})

	h.state.mu.Lock()
	defer h.state.mu.Unlock()
	line := fmt.Sprintf("[%d] %s: %s", h.state.index, r.Level, r.Message)
	if len(parts) > 0 {
		line += " " + strings.Join(parts, ", ")
	}
	h.state.index++
	_, err := fmt.Fprintln(h.state.out, line)
	return err
}

func (h *TestLogHandler) appendAttr(parts []string, a slog.Attr, prefix string) []string {
	a.Value = a.Value.Resolve()
	if a.Value.Kind() == slog.KindGroup {
		for _, ga := range a.Value.Group() {
			parts = h.appendAttr(parts, ga, prefix+a.Key+".")
		}
		return parts
	}
	if h.state.ignore[a.Key] {
		return parts
	}
	return append(parts, fmt.Sprintf("%s%s=%v", prefix, a.Key, a.Value))
}

func (h *TestLogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	prefix := ""
	if len(h.groups) > 0 {
		prefix = strings.Join(h.groups, ".") + "."
	}
	newAttrs := make([]slog.Attr, 0, len(attrs))
	for _, a := range attrs {
		if prefix != "" {
			a = slog.Group(strings.TrimSuffix(prefix, "."), a)
		}
		newAttrs = append(newAttrs, a)
	}
	return &TestLogHandler{
		state:  h.state,
		attrs:  append(h.attrs[:len(h.attrs):len(h.attrs)], newAttrs...),
		groups: h.groups,
	}
}

func (h *TestLogHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &TestLogHandler{
		state:  h.state,
		attrs:  h.attrs,
		groups: append(h.groups[:len(h.groups):len(h.groups)], name),
	}
}
