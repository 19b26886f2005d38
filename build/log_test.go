package build

import (
	"bytes"
	"testing"

	btclogv1 "github.com/btcsuite/btclog"
	"github.com/btcsuite/btclog/v2"
	"github.com/stretchr/testify/require"
)

func newTestManager(buf *bytes.Buffer) *SubLoggerManager {
	cfg := DefaultLogConfig()
	cfg.Console.NoTimestamps = true

	return NewSubLoggerManager(NewDefaultLogHandler(cfg, buf, nil))
}

// TestParseAndSetDebugLevels asserts that global and per-subsystem levels are
// applied and that malformed input is rejected.
func TestParseAndSetDebugLevels(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		level     string
		expectErr bool
		expected  map[string]btclogv1.Level
	}{
		{
			name:  "global level",
			level: "debug",
			expected: map[string]btclogv1.Level{
				"AAAA": btclogv1.LevelDebug,
				"BBBB": btclogv1.LevelDebug,
			},
		},
		{
			name:  "global then subsystem",
			level: "warn,BBBB=trace",
			expected: map[string]btclogv1.Level{
				"AAAA": btclogv1.LevelWarn,
				"BBBB": btclogv1.LevelTrace,
			},
		},
		{
			name:      "unknown level",
			level:     "loud",
			expectErr: true,
		},
		{
			name:      "unknown subsystem",
			level:     "CCCC=info",
			expectErr: true,
		},
		{
			name:      "malformed pair",
			level:     "info,AAAA",
			expectErr: true,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()

			var buf bytes.Buffer
			manager := newTestManager(&buf)
			manager.GenSubLogger("AAAA")
			manager.GenSubLogger("BBBB")

			err := ParseAndSetDebugLevels(test.level, manager)
			if test.expectErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)

			for id, level := range test.expected {
				logger := manager.SubLoggers()[id]
				require.Equal(t, level, logger.Level(), id)
			}
		})
	}
}

// TestSubLoggerOutput checks that a generated sub logger writes tagged lines
// through the shared handler and that GenSubLogger is idempotent.
func TestSubLoggerOutput(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	manager := newTestManager(&buf)

	logger := manager.GenSubLogger("TEST")
	require.Equal(t, logger, manager.GenSubLogger("TEST"))
	require.Equal(t, []string{"TEST"}, manager.SupportedSubsystems())

	logger.Infof("hello %s", "world")
	require.Contains(t, buf.String(), "TEST")
	require.Contains(t, buf.String(), "hello world")

	manager.SetLogLevels("off")
	buf.Reset()
	logger.Errorf("muted")
	require.Empty(t, buf.String())
}

// TestNewSubLoggerWithoutGenerator ensures packages that have not been handed
// a generator get the disabled logger.
func TestNewSubLoggerWithoutGenerator(t *testing.T) {
	t.Parallel()

	require.Equal(t, btclog.Disabled, NewSubLogger("NONE", nil))
}
