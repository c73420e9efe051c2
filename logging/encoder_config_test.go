package logging

import (
	"testing"
)

func TestEncoderConfigs(t *testing.T) {
	for name, cfg := range map[string]struct {
		timeKey, msgKey, levelKey string
	}{
		"json":    {NewEncoderConfig().TimeKey, NewEncoderConfig().MessageKey, NewEncoderConfig().LevelKey},
		"console": {NewConsoleEncoderConfig().TimeKey, NewConsoleEncoderConfig().MessageKey, NewConsoleEncoderConfig().LevelKey},
	} {
		if cfg.timeKey != FieldTimestamp {
			t.Errorf("%s: TimeKey = %q, want %q", name, cfg.timeKey, FieldTimestamp)
		}
		if cfg.msgKey != FieldMessage {
			t.Errorf("%s: MessageKey = %q, want %q", name, cfg.msgKey, FieldMessage)
		}
		if cfg.levelKey != FieldLevel {
			t.Errorf("%s: LevelKey = %q, want %q", name, cfg.levelKey, FieldLevel)
		}
	}
}

func TestEncoderConfigs_NoNilEncoders(t *testing.T) {
	for _, cfg := range []struct {
		name string
		ok   bool
	}{
		{"json", NewEncoderConfig().EncodeTime != nil && NewEncoderConfig().EncodeLevel != nil},
		{"console", NewConsoleEncoderConfig().EncodeTime != nil && NewConsoleEncoderConfig().EncodeLevel != nil},
	} {
		if !cfg.ok {
			t.Errorf("%s encoder config has nil encoders", cfg.name)
		}
	}
}
