package build

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestFileConfig() *FileLoggerConfig {
	return &FileLoggerConfig{
		Compressor:     Gzip,
		MaxLogFiles:    DefaultMaxLogFiles,
		MaxLogFileSize: 1,
	}
}

// TestRotatingLogWriter checks that lines reach the log file and that the
// writer discards input before initialisation and after Close.
func TestRotatingLogWriter(t *testing.T) {
	t.Parallel()

	logFile := filepath.Join(t.TempDir(), "logs", "trackerup.log")

	w := NewRotatingLogWriter()
	n, err := w.Write([]byte("dropped\n"))
	require.NoError(t, err)
	require.Equal(t, 8, n)

	require.NoError(t, w.InitLogRotator(newTestFileConfig(), logFile))

	_, err = w.Write([]byte("first line\n"))
	require.NoError(t, err)
	_, err = w.Write([]byte("second line\n"))
	require.NoError(t, err)

	require.NoError(t, w.Close())

	content, err := os.ReadFile(logFile)
	require.NoError(t, err)
	require.Equal(t, "first line\nsecond line\n", string(content))

	n, err = w.Write([]byte("late\n"))
	require.NoError(t, err)
	require.Equal(t, 5, n)
	require.NoError(t, w.Close())
}

// TestRotatingLogWriterFailedRotation makes the rotation fail and checks that
// writers get an error instead of hanging.
func TestRotatingLogWriterFailedRotation(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "logs")
	logFile := filepath.Join(dir, "trackerup.log")

	w := NewRotatingLogWriter()
	require.NoError(t, w.InitLogRotator(newTestFileConfig(), logFile))
	defer func() {
		_ = w.Close()
	}()

	// With the directory gone the log file can no longer be renamed, so
	// the first write crossing the size threshold fails to rotate.
	require.NoError(t, os.RemoveAll(dir))

	line := append(bytes.Repeat([]byte("x"), 1100*1024), '\n')

	errs := make(chan error, 2)
	go func() {
		_, err := w.Write(line)
		errs <- err

		_, err = w.Write([]byte("after the failure\n"))
		errs <- err
	}()

	for i := 0; i < 2; i++ {
		select {
		case err := <-errs:
			require.Error(t, err)

		case <-time.After(5 * time.Second):
			t.Fatalf("write %d blocked after a failed rotation", i)
		}
	}
}
