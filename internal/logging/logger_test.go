package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerWritesLevelsAndFields(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, zerolog.InfoLevel)

	l.Debug("hidden %d", 1)
	l.WithField("match_id", "m1").WithFields(map[string]interface{}{"tick": 7}).Warn("PhaseController: %s", "late")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1, "debug is below the level")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "PhaseController: late", entry["message"])
	assert.Equal(t, "m1", entry["match_id"])
	assert.Equal(t, float64(7), entry["tick"])
}

func TestLoggerFieldsAreCopied(t *testing.T) {
	base := New(&bytes.Buffer{}, zerolog.DebugLevel)
	child := base.WithField("a", 1)
	grandchild := child.WithField("b", 2)

	assert.Empty(t, base.Fields())
	assert.Equal(t, map[string]interface{}{"a": 1}, child.Fields())
	assert.Equal(t, map[string]interface{}{"a": 1, "b": 2}, grandchild.Fields())

	child.Fields()["a"] = 99
	assert.Equal(t, 1, child.Fields()["a"])
}
