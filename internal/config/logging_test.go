package config_test

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/hdscan/internal/config"
)

func TestParseLogLevel(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		input    string
		expected config.LogLevel
	}{
		{"off lowercase", "off", config.LogLevelOff},
		{"off uppercase", "OFF", config.LogLevelOff},
		{"none", "none", config.LogLevelOff},
		{"error", "error", config.LogLevelError},
		{"info", "Info", config.LogLevelInfo},
		{"debug uppercase", "DEBUG", config.LogLevelDebug},
		{"with whitespace", "  debug  ", config.LogLevelDebug},
		{"invalid returns error", "invalid", config.LogLevelError},
		{"empty returns error", "", config.LogLevelError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, config.ParseLogLevel(tt.input))
		})
	}
}

func TestLogLevel_String(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "off", config.LogLevelOff.String())
	assert.Equal(t, "error", config.LogLevelError.String())
	assert.Equal(t, "info", config.LogLevelInfo.String())
	assert.Equal(t, "debug", config.LogLevelDebug.String())
	assert.Equal(t, "error", config.LogLevel(99).String())
}

func TestWriterLogger_Levels(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := config.NewWriterLogger(config.LogLevelInfo, &buf)

	logger.Debug("hidden %d", 1)
	logger.Info("connected to %s", "host:50002")
	logger.Error("query failed: %v", "timeout")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "level=info")
	assert.Contains(t, out, "connected to host:50002")
	assert.Contains(t, out, "level=error")

	buf.Reset()
	logger.SetLevel(config.LogLevelDebug)
	assert.Equal(t, config.LogLevelDebug, logger.Level())
	logger.Debug("now visible")
	assert.Contains(t, buf.String(), "now visible")

	buf.Reset()
	logger.SetLevel(config.LogLevelOff)
	logger.Error("dropped")
	assert.Empty(t, buf.String())
}

func TestWriterLogger_Fields(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := config.NewWriterLogger(config.LogLevelInfo, &buf)
	logger.WithFields(logrus.Fields{"request_id": "abc", "status": 200}).Info("request")

	out := buf.String()
	assert.Contains(t, out, "request_id=abc")
	assert.Contains(t, out, "status=200")
}

func TestLogger_Writer(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := config.NewWriterLogger(config.LogLevelError, &buf)
	n, err := logger.Writer(config.LogLevelError).Write([]byte("from writer\n"))
	require.NoError(t, err)
	assert.Equal(t, 12, n)
	assert.Contains(t, buf.String(), "from writer")
}

func TestNewLogger_File(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "logs", "hdscan.log")
	logger, err := config.NewLogger(config.LogLevelDebug, path, 0, 3)
	require.NoError(t, err)
	assert.Equal(t, path, logger.FilePath())

	logger.Debug("scanning %s", "bip84")
	require.NoError(t, logger.Close())
	require.NoError(t, logger.Close())

	data, err := os.ReadFile(path) //nolint:gosec // test path
	require.NoError(t, err)
	assert.Contains(t, string(data), "scanning bip84")

	// Writes after Close are dropped.
	logger.Error("late")
}

func TestLogger_CloseWhileLogging(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "hdscan.log")
	logger, err := config.NewLogger(config.LogLevelInfo, path, 0, 3)
	require.NoError(t, err)
	logger.Info("first")

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				logger.Info("worker %d line %d", i, j)
			}
		}()
	}
	require.NoError(t, logger.Close())
	wg.Wait()

	data, err := os.ReadFile(path) //nolint:gosec // test path
	require.NoError(t, err)
	assert.Contains(t, string(data), "first")
}

func TestNewLogger_Rotates(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "hdscan.log")
	logger, err := config.NewLogger(config.LogLevelInfo, path, 1, 5)
	require.NoError(t, err)

	line := strings.Repeat("x", 100)
	for i := 0; i < 30; i++ {
		logger.Info("%s", line)
	}
	require.NoError(t, logger.Close())

	rolled, err := filepath.Glob(path + ".*.gz")
	require.NoError(t, err)
	assert.NotEmpty(t, rolled)
}

func TestNewLogger_OffOrNoFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "never.log")
	logger, err := config.NewLogger(config.LogLevelOff, path, 0, 0)
	require.NoError(t, err)
	logger.Error("nothing")
	require.NoError(t, logger.Close())
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	logger, err = config.NewLogger(config.LogLevelDebug, "", 0, 0)
	require.NoError(t, err)
	logger.Debug("nothing")
	assert.Empty(t, logger.FilePath())
}

func TestNullLogger(t *testing.T) {
	t.Parallel()
	logger := config.NullLogger()
	logger.Debug("a")
	logger.Info("b")
	logger.Error("c")
	assert.Equal(t, config.LogLevelOff, logger.Level())
	require.NoError(t, logger.Close())
}
