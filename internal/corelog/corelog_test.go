package corelog

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLevelGateSuppressesBelowThreshold(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "test", DefaultFlags)
	l.SetLevel(LevelWarn)

	l.Debug("should not appear")
	l.Info("should not appear either")
	require.Empty(t, buf.String())

	l.Warn("visible")
	require.True(t, strings.Contains(buf.String(), "visible"))
	require.True(t, strings.Contains(buf.String(), "[WARN]"))
}

func TestDisabledLoggerWritesNothing(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "test", DefaultFlags)
	l.SetEnabled(false)
	l.Error("silenced")
	require.Empty(t, buf.String())
}

func TestPrefixAppearsInOutput(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "renderer", DefaultFlags)
	l.Info("block rendered")
	require.True(t, strings.Contains(buf.String(), "[renderer]"))
}
