package cli

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/indi-protocol/indi-go/pkg/log"
)

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(&buf, "warn")
	require.NoError(t, err)

	logger.Info("hidden")
	logger.Warn("shown", "device", "CCD Simulator")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `device="CCD Simulator"`)

	_, err = NewLogger(&buf, "chatty")
	assert.Error(t, err)
}

func TestProtocolLogDisabled(t *testing.T) {
	logger, err := NewLogger(&bytes.Buffer{}, "info")
	require.NoError(t, err)

	pl, closeFn, err := ProtocolLog("", log.FileOptions{}, logger)
	require.NoError(t, err)
	assert.Nil(t, pl)
	assert.NoError(t, closeFn())
}

func TestProtocolLogFileAndDebug(t *testing.T) {
	path := filepath.Join(t.TempDir(), "probe.ilog")
	var buf bytes.Buffer
	logger, err := NewLogger(&buf, "debug")
	require.NoError(t, err)

	pl, closeFn, err := ProtocolLog(path, log.FileOptions{}, logger)
	require.NoError(t, err)
	require.IsType(t, &log.MultiLogger{}, pl)

	pl.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: "c1",
		Category:     log.CategoryError,
		Error:        &log.ErrorEventData{Message: "boom"},
	})
	require.NoError(t, closeFn())

	r, err := log.NewReader(path)
	require.NoError(t, err)
	defer r.Close()
	ev, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, "c1", ev.ConnectionID)
	assert.NotEmpty(t, buf.String())
}

func TestProtocolLogBadPath(t *testing.T) {
	_, closeFn, err := ProtocolLog(filepath.Join(t.TempDir(), "missing", "x.ilog"), log.FileOptions{}, nil)
	assert.Error(t, err)
	assert.NotNil(t, closeFn)
}
