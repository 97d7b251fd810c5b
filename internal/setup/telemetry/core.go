package telemetry

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap/zapcore"
)

// Core implements zapcore.Core to record error entries as OpenTelemetry spans.
type Core struct {
	zapcore.LevelEnabler
	tracer trace.Tracer
}

// NewCore creates a new core that forwards logs to OpenTelemetry.
func NewCore(enab zapcore.LevelEnabler) zapcore.Core {
	return &Core{
		LevelEnabler: enab,
		tracer:       otel.Tracer("github.com/robalyx/guildstats/logs"),
	}
}

func (c *Core) With(_ []zapcore.Field) zapcore.Core {
	return c
}

func (c *Core) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

func (c *Core) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	_, span := c.tracer.Start(context.Background(), "error."+errorCategory(ent.Caller.Function))
	defer span.End()

	enc := zapcore.NewMapObjectEncoder()
	for _, field := range fields {
		field.AddTo(enc)
	}

	attrs := []attribute.KeyValue{
		attribute.String("error.message", ent.Message),
		attribute.String("error.level", ent.Level.String()),
		attribute.String("error.caller", ent.Caller.String()),
		attribute.String("error.logger", ent.LoggerName),
	}
	for k, v := range enc.Fields {
		if s, ok := v.(string); ok {
			attrs = append(attrs, attribute.String(k, s))
		}
	}

	span.SetAttributes(attrs...)
	return nil
}

func (c *Core) Sync() error {
	return nil
}

// errorCategory derives a span name suffix from the calling package.
func errorCategory(function string) string {
	switch {
	case strings.Contains(function, "/internal/discord"):
		return "discord"
	case strings.Contains(function, "/internal/cache"), strings.Contains(function, "/internal/redis"):
		return "cache"
	case strings.Contains(function, "/internal/stats"):
		return "stats"
	case strings.Contains(function, "/internal/rest"):
		return "rest"
	case strings.Contains(function, "/internal/setup"):
		return "setup"
	default:
		return "application"
	}
}
