package utils

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/fluent/fluent-logger-golang/fluent"
)

// FluentConfig holds the Fluent Bit forward-protocol settings.
type FluentConfig struct {
	Host      string
	Port      int
	TagPrefix string
	Level     slog.Leveler
}

// poster is the part of *fluent.Fluent the handler needs.
type poster interface {
	Post(tag string, message interface{}) error
}

// NewFluentHandler connects to Fluent Bit and returns a slog handler that
// ships every record there, plus the client so the caller can close it.
func NewFluentHandler(cfg FluentConfig) (slog.Handler, *fluent.Fluent, error) {
	if cfg.TagPrefix == "" {
		return nil, nil, fmt.Errorf("fluent: tag prefix is required")
	}
	client, err := fluent.New(fluent.Config{
		FluentHost: cfg.Host,
		FluentPort: cfg.Port,
		TagPrefix:  cfg.TagPrefix,
		Async:      true,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("fluent: connect: %w", err)
	}
	return newFluentHandler(client, cfg.Level), client, nil
}

func newFluentHandler(p poster, level slog.Leveler) *fluentHandler {
	if level == nil {
		level = slog.LevelInfo
	}
	return &fluentHandler{client: p, level: level}
}

type fluentHandler struct {
	client poster
	level  slog.Leveler
	attrs  []slog.Attr
	prefix string
}

func (h *fluentHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

// Handle never fails: a dead log shipper must not take the app down.
func (h *fluentHandler) Handle(_ context.Context, r slog.Record) error {
	data := make(map[string]interface{}, len(h.attrs)+r.NumAttrs()+3)
	for _, a := range h.attrs {
		data[a.Key] = a.Value.Resolve().Any()
	}
	r.Attrs(func(a slog.Attr) bool {
		data[h.prefix+a.Key] = a.Value.Resolve().Any()
		return true
	})

	level := strings.ToLower(r.Level.String())
	data["level"] = level
	data["message"] = r.Message
	data["timestamp"] = r.Time.UTC().Format(time.RFC3339Nano)

	_ = h.client.Post(level, data)
	return nil
}

func (h *fluentHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	for _, a := range attrs {
		a.Key = h.prefix + a.Key
		merged = append(merged, a)
	}
	return &fluentHandler{client: h.client, level: h.level, attrs: merged, prefix: h.prefix}
}

func (h *fluentHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &fluentHandler{client: h.client, level: h.level, attrs: h.attrs, prefix: h.prefix + name + "."}
}
