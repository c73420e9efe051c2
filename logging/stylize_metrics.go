package logging

import (
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// StylizeMetrics describes one stylization request for the log.
// Implements zapcore.ObjectMarshaler.
//
//	logger.Info("stylization complete", StylizeFields(m))
type StylizeMetrics struct {
	RequestID   string
	Backend     string
	InputBytes  int
	InputWidth  int
	InputHeight int
	OutputBytes int
	Stall       bool
	Prepare     time.Duration
	Duration    time.Duration
	ErrorKind   string
}

// MarshalLogObject encodes durations in milliseconds. Zero-valued optional
// fields are omitted.
func (m StylizeMetrics) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	if m.RequestID != "" {
		enc.AddString("request_id", m.RequestID)
	}
	enc.AddString("backend", m.Backend)
	enc.AddInt("input_bytes", m.InputBytes)
	if m.InputWidth > 0 {
		enc.AddInt("input_width", m.InputWidth)
		enc.AddInt("input_height", m.InputHeight)
	}
	enc.AddInt("output_bytes", m.OutputBytes)
	enc.AddBool("stall", m.Stall)
	enc.AddInt64("prepare_ms", m.Prepare.Milliseconds())
	enc.AddInt64("duration_ms", m.Duration.Milliseconds())
	if m.ErrorKind != "" {
		enc.AddString("error_kind", m.ErrorKind)
	}
	return nil
}

// StylizeFields wraps m as a single "stylize" object field.
func StylizeFields(m StylizeMetrics) zap.Field {
	return zap.Object("stylize", m)
}
