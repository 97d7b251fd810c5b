package telemetry

import (
	"strings"

	"github.com/getsentry/sentry-go"
	"go.uber.org/zap/zapcore"
)

// SentryCore implements zapcore.Core to forward error entries to Sentry.
type SentryCore struct {
	zapcore.LevelEnabler
	fields []zapcore.Field
}

// NewSentryCore creates a new Core that forwards entries at or above the
// enabled level to the current Sentry hub.
func NewSentryCore(enab zapcore.LevelEnabler) *SentryCore {
	return &SentryCore{LevelEnabler: enab}
}

// With returns a copy of the core carrying the added context fields.
func (c *SentryCore) With(fields []zapcore.Field) zapcore.Core {
	clone := &SentryCore{
		LevelEnabler: c.LevelEnabler,
		fields:       make([]zapcore.Field, 0, len(c.fields)+len(fields)),
	}
	clone.fields = append(clone.fields, c.fields...)
	clone.fields = append(clone.fields, fields...)

	return clone
}

// Check determines whether the supplied Entry should be logged.
func (c *SentryCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}

	return ce
}

// Write captures the entry as a Sentry event.
func (c *SentryCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	hub := sentry.CurrentHub()
	if hub.Client() == nil {
		return nil
	}

	enc := zapcore.NewMapObjectEncoder()

	var errorValues []string

	for _, field := range append(c.fields, fields...) {
		if field.Type == zapcore.ErrorType {
			if err, ok := field.Interface.(error); ok {
				errorValues = append(errorValues, err.Error())
				continue
			}
		}

		field.AddTo(enc)
	}

	event := sentry.NewEvent()
	event.Level = sentryLevel(ent.Level)
	event.Message = ent.Message
	event.Logger = ent.LoggerName
	event.Timestamp = ent.Time

	for k, v := range enc.Fields {
		event.Extra[k] = v
	}

	value := ent.Message
	if len(errorValues) > 0 {
		value += ": " + strings.Join(errorValues, "; ")
	}

	event.Exception = []sentry.Exception{{
		Value:      value,
		Type:       callerFunction(ent.Caller.Function),
		Module:     ent.Caller.File,
		Stacktrace: sentry.NewStacktrace(),
	}}

	hub.CaptureEvent(event)

	return nil
}

// Sync implements zapcore.Core.
func (c *SentryCore) Sync() error {
	return nil
}

func sentryLevel(level zapcore.Level) sentry.Level {
	switch level {
	case zapcore.DebugLevel:
		return sentry.LevelDebug
	case zapcore.InfoLevel:
		return sentry.LevelInfo
	case zapcore.WarnLevel:
		return sentry.LevelWarning
	case zapcore.ErrorLevel:
		return sentry.LevelError
	case zapcore.DPanicLevel, zapcore.PanicLevel, zapcore.FatalLevel:
		return sentry.LevelFatal
	default:
		return sentry.LevelInfo
	}
}

// callerFunction strips the package path from a fully qualified function name.
func callerFunction(function string) string {
	if lastDot := strings.LastIndexByte(function, '.'); lastDot > -1 {
		return function[lastDot+1:]
	}

	return function
}
