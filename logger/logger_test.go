package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBufferLogger(level zerolog.Level) (Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return NewZerologLogger(zerolog.New(&buf), "test-service", level), &buf
}

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestZerologLogger(t *testing.T) {
	t.Run("writes message, level, service, and fields", func(t *testing.T) {
		log, buf := newBufferLogger(zerolog.DebugLevel)

		log.Info("session bound", Field{Key: "sid", Value: 7}, Field{Key: "uid", Value: "u1"})

		entry := decodeLine(t, buf)
		assert.Equal(t, "session bound", entry["message"])
		assert.Equal(t, "info", entry["level"])
		assert.Equal(t, "test-service", entry["service"])
		assert.Equal(t, float64(7), entry["sid"])
		assert.Equal(t, "u1", entry["uid"])
	})

	t.Run("filters entries below the configured level", func(t *testing.T) {
		log, buf := newBufferLogger(zerolog.WarnLevel)

		log.Debug("dropped")
		log.Info("dropped")
		assert.Zero(t, buf.Len())

		log.Warn("kept")
		assert.NotZero(t, buf.Len())
	})

	t.Run("with attaches fields to every entry", func(t *testing.T) {
		log, buf := newBufferLogger(zerolog.DebugLevel)
		derived := log.With(Field{Key: "component", Value: "session_service"})

		derived.Error("boom")

		entry := decodeLine(t, buf)
		assert.Equal(t, "session_service", entry["component"])
		assert.Equal(t, "error", entry["level"])
	})

	t.Run("with does not mutate the parent", func(t *testing.T) {
		log, buf := newBufferLogger(zerolog.DebugLevel)
		log.With(Field{Key: "component", Value: "kick_bus"})

		log.Info("plain")

		entry := decodeLine(t, buf)
		_, ok := entry["component"]
		assert.False(t, ok)
	})
}

func TestNopLogger(t *testing.T) {
	log := NewNopLogger()
	require.NotNil(t, log)

	assert.NotPanics(t, func() {
		log.Debug("x")
		log.Info("x", Field{Key: "k", Value: 1})
		log.Warn("x")
		log.Error("x")
		log.With(Field{Key: "k", Value: 1}).Info("x")
	})
}
