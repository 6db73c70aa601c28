package logger

import (
	"bytes"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"postharvest/pkg/config"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *config.LoggingConfig
		wantErr bool
	}{
		{name: "info level", cfg: &config.LoggingConfig{Level: "info"}},
		{name: "debug level", cfg: &config.LoggingConfig{Level: "debug"}},
		{name: "invalid level", cfg: &config.LoggingConfig{Level: "chatty"}, wantErr: true},
		{name: "with file", cfg: &config.LoggingConfig{Level: "info", File: filepath.Join(t.TempDir(), "logs", "run.log")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := New(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("New() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && logger == nil {
				t.Error("New() returned nil logger")
			}
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		level    string
		expected zerolog.Level
		wantErr  bool
	}{
		{"debug", zerolog.DebugLevel, false},
		{"INFO", zerolog.InfoLevel, false},
		{"warning", zerolog.WarnLevel, false},
		{"error", zerolog.ErrorLevel, false},
		{"off", zerolog.Disabled, false},
		{"", zerolog.InfoLevel, true},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			level, err := parseLogLevel(tt.level)
			if (err != nil) != tt.wantErr {
				t.Errorf("parseLogLevel() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if level != tt.expected {
				t.Errorf("parseLogLevel() = %v, want %v", level, tt.expected)
			}
		})
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, zerolog.WarnLevel)

	log.Info("hidden")
	log.Warn("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
	assert.Contains(t, buf.String(), `"app":"postharvest"`)
}

func TestFieldChaining(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, zerolog.DebugLevel)

	parent := log.WithField("session", "ctf")
	parent.
		WithField("key", "alpha").
		WithFields(map[string]interface{}{"count": 3, "empty": false}).
		Info("key finished")

	out := buf.String()
	assert.Contains(t, out, `"session":"ctf"`)
	assert.Contains(t, out, `"key":"alpha"`)
	assert.Contains(t, out, `"count":3`)
	assert.Contains(t, out, `"empty":false`)

	buf.Reset()
	parent.Info("parent only")
	assert.NotContains(t, buf.String(), `"key":"alpha"`)
}

func TestWithError(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, zerolog.DebugLevel)

	assert.Same(t, log, log.WithError(nil))

	log.WithError(errors.New("disk full")).Error("append failed")
	assert.Contains(t, buf.String(), "disk full")
}

func TestFieldTypes(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, zerolog.DebugLevel)

	log.InfoWithFields("typed", map[string]interface{}{
		"int64":    int64(7),
		"float":    0.5,
		"time":     time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		"duration": 2 * time.Second,
		"strings":  []string{"a", "b"},
		"cause":    errors.New("boom"),
		"custom":   struct{ Name string }{Name: "x"},
	})

	out := buf.String()
	assert.Contains(t, out, `"int64":7`)
	assert.Contains(t, out, `"strings":["a","b"]`)
	assert.Contains(t, out, `"cause":"boom"`)
	assert.Contains(t, out, `"Name":"x"`)
}

func TestOrDefault(t *testing.T) {
	nop := NewNopLogger()
	assert.Same(t, nop, OrDefault(nop))
	assert.NotNil(t, OrDefault(nil))
}

func TestTestLoggerCapturesFields(t *testing.T) {
	tl := NewTestLogger()
	child := tl.WithField("key", "alpha").WithError(errors.New("bad page"))
	child.WarnWithFields("retrying", map[string]interface{}{"attempt": 2})
	tl.Info("plain")

	msgs := tl.GetMessages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "WARN", msgs[0].Level)
	assert.Equal(t, "alpha", msgs[0].Field("key"))
	assert.Equal(t, 2, msgs[0].Field("attempt"))
	require.Error(t, msgs[0].Error)
	assert.True(t, tl.HasMessage("plain"))
	assert.False(t, tl.HasError())
	assert.True(t, strings.Contains(tl.String(), "bad page"))

	tl.Clear()
	assert.Empty(t, tl.GetMessages())
}

func TestNewConsole(t *testing.T) {
	var buf bytes.Buffer
	l, err := NewConsole(&buf, "warn")
	require.NoError(t, err)

	l.Info("hidden")
	l.WithField("key", "fraud").Warn("Key failed")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "Key failed")
	assert.Contains(t, out, "fraud")
	assert.NotContains(t, out, `"app"`)

	_, err = NewConsole(&buf, "chatty")
	assert.Error(t, err)
}
