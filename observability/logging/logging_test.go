package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetupEmitsStructuredKeys(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup("tipd", "test", Options{Output: &buf})
	logger.Info("tip accepted", slog.String("method", "tip_send"))

	var line map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line))
	require.Equal(t, "tip accepted", line["message"])
	require.Equal(t, "INFO", line["severity"])
	require.Equal(t, "tipd", line["service"])
	require.Equal(t, "test", line["env"])
	require.Contains(t, line, "timestamp")
}

func TestSetupHonoursLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup("tipd", "", Options{Output: &buf, Level: "warn"})
	logger.Info("hidden")
	require.Zero(t, buf.Len())
	logger.Warn("shown")
	require.NotZero(t, buf.Len())
}

func TestSetupWritesFileSink(t *testing.T) {
	var buf bytes.Buffer
	path := filepath.Join(t.TempDir(), "tipd.log")
	logger := Setup("tipd", "", Options{Output: &buf, File: path, MaxSizeMB: 1})
	logger.Info("to file")
	require.FileExists(t, path)
}

func TestMaskField(t *testing.T) {
	require.Equal(t, RedactedValue, MaskField("signature", "0xdeadbeef").Value.String())
	require.Equal(t, "tip_send", MaskField("method", "tip_send").Value.String())
	require.Equal(t, "", MaskField("signature", "").Value.String())
}

func TestMaskToken(t *testing.T) {
	require.Equal(t, "eyJh..."+RedactedValue, MaskToken("eyJhbGciOiJIUzI1NiJ9.payload.sig"))
	require.Equal(t, RedactedValue, MaskToken("short"))
}
