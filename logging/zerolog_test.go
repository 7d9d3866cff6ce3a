package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZerologFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewZerolog(zerolog.New(&buf))

	l.Info("read complete", "attempt", 2, "op", "read inference", "err", errors.New("nack"), "latency", 1.5)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "read complete", entry["message"])
	assert.EqualValues(t, 2, entry["attempt"])
	assert.Equal(t, "read inference", entry["op"])
	assert.Equal(t, "nack", entry["err"])
	assert.EqualValues(t, 1.5, entry["latency"])
}

func TestZerologOddKeys(t *testing.T) {
	var buf bytes.Buffer
	l := NewZerolog(zerolog.New(&buf))

	l.Error("dangling", "only-key")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "only-key", entry["extra"])
}

func TestZerologLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	l := NewZerolog(zerolog.New(&buf).Level(zerolog.InfoLevel))

	l.Debug("hidden")
	assert.Zero(t, buf.Len())
}

func TestOrNop(t *testing.T) {
	assert.NotNil(t, OrNop(nil))
	l := NewZerolog(zerolog.Nop())
	assert.Same(t, l, OrNop(l))
}
