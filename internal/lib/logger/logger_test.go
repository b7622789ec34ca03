package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWithWriter_Prod(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(EnvProd, &buf)

	log.Debug("hidden")
	log.Info("visible", "subscriber_id", "42")

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &entry))
	assert.Equal(t, "visible", entry["msg"])
	assert.Equal(t, "42", entry["subscriber_id"])
}

func TestNewWithWriter_Local(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(EnvLocal, &buf)

	log.Debug("debug message")
	assert.Contains(t, buf.String(), "msg=\"debug message\"")
}
