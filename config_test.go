package trackerup

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aria2tools/trackerup/tucfg"
	"github.com/aria2tools/trackerup/updater"
	"github.com/stretchr/testify/require"
)

func writeDocument(t *testing.T, name, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	return path
}

// TestLoadConfigCreatesDefault checks that a missing document is written with
// the defaults and the defaults are used.
func TestLoadConfigCreatesDefault(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "conf", "config.json")

	cfg, err := LoadConfig([]string{"-c", path})
	require.NoError(t, err)
	require.True(t, cfg.createdDocument)
	require.Equal(t, updater.ModeConfig, cfg.Mode)
	require.Equal(t, tucfg.DefaultAria2ConfPath, cfg.Aria2ConfPath)
	require.Equal(t, tucfg.DefaultTrackerSources, cfg.TrackerSources)
	require.Equal(t, "info", cfg.DebugLevel)
	require.Equal(t, tucfg.DefaultLogFilename, cfg.LogFile)
	require.False(t, cfg.RPC.Enabled)

	// The written document loads back into the same values.
	reloaded := Config{}
	found, err := loadDocument(path, &reloaded)
	require.NoError(t, err)
	require.True(t, found)

	defaults := DefaultConfig()
	require.Equal(t, defaults.TrackerSources, reloaded.TrackerSources)
	require.Equal(t, defaults.RequestTimeout, reloaded.RequestTimeout)
	require.Equal(t, defaults.Workers, reloaded.Workers)
	require.Equal(t, defaults.RPC, reloaded.RPC)
	require.Equal(t, defaults.BackupSuffix, reloaded.BackupSuffix)
	require.Equal(t, tucfg.DefaultLogFilename, reloaded.LogFile)

	// A second load finds the document.
	cfg, err = LoadConfig([]string{"-c", path})
	require.NoError(t, err)
	require.False(t, cfg.createdDocument)
}

// TestLoadConfigJSONC checks that JSON documents may carry comments and
// trailing commas, and that missing keys keep their defaults.
func TestLoadConfigJSONC(t *testing.T) {
	t.Parallel()

	path := writeDocument(t, "config.json", `{
	// Where aria2 keeps its options.
	"aria2_conf_path": "/etc/aria2/aria2.conf",
	"tracker_sources": [
		"https://lists.example/all.txt", /* primary */
	],
	"max_retries": 0,
	"fetch_workers": 2,
	"rpc": {
		"enabled": true,
		"url": "http://127.0.0.1:6800",
		"secret": "s3cret",
		"timeout": 2.5,
	},
	"update_mode": "HYBRID",
}`)

	cfg, err := LoadConfig([]string{"--config", path})
	require.NoError(t, err)

	require.Equal(t, "/etc/aria2/aria2.conf", cfg.Aria2ConfPath)
	require.Equal(t, []string{"https://lists.example/all.txt"},
		cfg.TrackerSources)
	require.Zero(t, cfg.MaxRetries)
	require.Equal(t, 2, cfg.Workers.Fetch)
	require.Equal(t, updater.ModeHybrid, cfg.Mode)
	require.Equal(t, "hybrid", cfg.UpdateMode)

	require.True(t, cfg.RPC.Enabled)
	require.Equal(t, "http://127.0.0.1:6800/jsonrpc", cfg.RPC.URL)
	require.Equal(t, 2500*time.Millisecond, cfg.RPC.Timeout.Duration())
	require.True(t, cfg.RPC.VerifySSL)

	require.True(t, cfg.BackupEnabled)
	require.Equal(t, tucfg.DefaultRequestTimeout, cfg.RequestTimeout)
	require.Equal(t, tucfg.DefaultLogFilename, cfg.LogFile)
}

// TestLoadConfigLogFile checks that an empty log_file turns file logging off
// and that --log-file wins over the document.
func TestLoadConfigLogFile(t *testing.T) {
	t.Parallel()

	path := writeDocument(t, "config.json", `{"log_file": ""}`)

	cfg, err := LoadConfig([]string{"-c", path})
	require.NoError(t, err)
	require.Empty(t, cfg.LogFile)

	cfg, err = LoadConfig([]string{
		"-c", path, "--log-file", "/var/log/trackerup.log",
	})
	require.NoError(t, err)
	require.Equal(t, "/var/log/trackerup.log", cfg.LogFile)
}

// TestLoadConfigYAML checks YAML documents, including the inlined worker
// options.
func TestLoadConfigYAML(t *testing.T) {
	t.Parallel()

	path := writeDocument(t, "config.yaml", `
aria2_conf_path: /srv/aria2.conf
backup_enabled: false
tracker_sources:
  - https://one.example/list.txt
  - http://two.example/list.txt
request_timeout: 3
fetch_workers: 1
update_mode: rpc
fallback_to_config: false
rpc:
  enabled: true
  url: https://aria2.example:6800/jsonrpc
  verify_ssl: false
  timeout: 4
`)

	cfg, err := LoadConfig([]string{"-c", path})
	require.NoError(t, err)

	require.Equal(t, "/srv/aria2.conf", cfg.Aria2ConfPath)
	require.False(t, cfg.BackupEnabled)
	require.Len(t, cfg.TrackerSources, 2)
	require.Equal(t, 3*time.Second, cfg.RequestTimeout.Duration())
	require.Equal(t, 1, cfg.Workers.Fetch)
	require.Equal(t, updater.ModeRPC, cfg.Mode)
	require.False(t, cfg.FallbackToConfig)
	require.Equal(t, "https://aria2.example:6800/jsonrpc", cfg.RPC.URL)
	require.False(t, cfg.RPC.VerifySSL)
}

// TestLoadConfigFlagOverrides checks that command line options win over the
// document.
func TestLoadConfigFlagOverrides(t *testing.T) {
	t.Parallel()

	path := writeDocument(t, "config.json", `{
		"aria2_conf_path": "/etc/aria2/aria2.conf",
		"log_level": "WARN"
	}`)

	cfg, err := LoadConfig([]string{
		"-c", path,
		"--aria2-conf", "/tmp/other.conf",
		"--no-backup",
		"--rpc",
		"--rpc-secret", "hunter2",
		"--dry-run",
		"--metrics-file", "/tmp/trackerup.prom",
	})
	require.NoError(t, err)

	require.Equal(t, "/tmp/other.conf", cfg.Aria2ConfPath)
	require.False(t, cfg.BackupEnabled)
	require.True(t, cfg.RPC.Enabled)
	require.Equal(t, "hunter2", cfg.RPC.Secret)
	require.Equal(t, updater.ModeRPC, cfg.Mode)
	require.True(t, cfg.DryRun)
	require.Equal(t, "warn", cfg.DebugLevel)
	require.Equal(t, "/tmp/trackerup.prom", cfg.MetricsFile)

	// An explicit mode beats the --rpc shortcut, and verbose beats the
	// document's level.
	cfg, err = LoadConfig([]string{
		"-c", path, "--rpc", "--update-mode", "hybrid", "-v",
	})
	require.NoError(t, err)
	require.Equal(t, updater.ModeHybrid, cfg.Mode)
	require.Equal(t, "debug", cfg.DebugLevel)

	// A URL alone turns RPC on without changing the mode.
	cfg, err = LoadConfig([]string{
		"-c", path, "--rpc-url", "http://10.0.0.2:6800",
	})
	require.NoError(t, err)
	require.True(t, cfg.RPC.Enabled)
	require.Equal(t, "http://10.0.0.2:6800/jsonrpc", cfg.RPC.URL)
	require.Equal(t, updater.ModeConfig, cfg.Mode)

	// --debuglevel is passed through verbatim.
	cfg, err = LoadConfig([]string{
		"-c", path, "--debuglevel", "SRCF=trace,info",
	})
	require.NoError(t, err)
	require.Equal(t, "SRCF=trace,info", cfg.DebugLevel)
}

// TestLoadConfigErrors checks documents and options that must be refused.
func TestLoadConfigErrors(t *testing.T) {
	t.Parallel()

	path := writeDocument(t, "config.json", `{"max_retries": "three"}`)
	_, err := LoadConfig([]string{"-c", path})
	require.ErrorContains(t, err, "unable to parse config document")

	path = writeDocument(t, "config.json", `{}`)
	_, err = LoadConfig([]string{"-c", path, "--update-mode", "both"})
	require.Error(t, err)

	_, err = LoadConfig([]string{"-c", path, "--no-such-flag"})
	require.Error(t, err)
}

// TestValidateConfig covers the value checks.
func TestValidateConfig(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Config)
		errStr string
	}{
		{
			name:   "unknown mode",
			mutate: func(c *Config) { c.UpdateMode = "both" },
			errStr: "both",
		},
		{
			name:   "negative retries",
			mutate: func(c *Config) { c.MaxRetries = -1 },
			errStr: "max_retries",
		},
		{
			name:   "zero timeout",
			mutate: func(c *Config) { c.RequestTimeout = 0 },
			errStr: "request_timeout",
		},
		{
			name:   "negative backoff",
			mutate: func(c *Config) { c.RetryBackoff = -1 },
			errStr: "retry_backoff",
		},
		{
			name:   "no sources",
			mutate: func(c *Config) { c.TrackerSources = nil },
			errStr: "tracker_sources",
		},
		{
			name: "non http source",
			mutate: func(c *Config) {
				c.TrackerSources = []string{"ftp://lists.example"}
			},
			errStr: "invalid tracker source",
		},
		{
			name:   "empty backup suffix",
			mutate: func(c *Config) { c.BackupSuffix = "" },
			errStr: "backup_suffix",
		},
		{
			name:   "no workers",
			mutate: func(c *Config) { c.Workers.Fetch = 0 },
			errStr: "fetch_workers",
		},
		{
			name: "bad rpc url",
			mutate: func(c *Config) {
				c.RPC.Enabled = true
				c.RPC.URL = "ws://localhost:6800"
			},
			errStr: "rpc.url",
		},
		{
			name:   "no aria2 path",
			mutate: func(c *Config) { c.Aria2ConfPath = "" },
			errStr: "aria2_conf_path",
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()

			cfg := DefaultConfig()
			test.mutate(&cfg)

			_, err := ValidateConfig(cfg)
			require.ErrorContains(t, err, test.errStr)
		})
	}

	// Disabled backups do not need a suffix, and a disabled RPC section is
	// not checked.
	cfg := DefaultConfig()
	cfg.BackupEnabled = false
	cfg.BackupSuffix = ""
	cfg.RPC.URL = "not a url"

	validated, err := ValidateConfig(cfg)
	require.NoError(t, err)
	require.Equal(t, updater.ModeConfig, validated.Mode)
}

// TestRunBudget checks that the run budget covers every source and the RPC
// calls.
func TestRunBudget(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.TrackerSources = []string{
		"https://one.example/list.txt", "https://two.example/list.txt",
	}
	cfg.RequestTimeout = 1
	cfg.MaxRetries = 2
	cfg.RetryBackoff = 1
	cfg.MaxBackoff = 30

	// Three one second attempts plus waits of one and two seconds.
	perSource := 3*time.Second + 3*time.Second
	require.Equal(t, 2*perSource+runBudgetSlack, cfg.RunBudget())

	cfg.RPC.Enabled = true
	cfg.RPC.Timeout = 2
	require.Equal(t, 2*perSource+6*time.Second+runBudgetSlack,
		cfg.RunBudget())
}

// TestRedactedConfig checks that the RPC secret never reaches the logs.
func TestRedactedConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.RPC.Secret = "hunter2"

	dump := spewConfig(&cfg).String()
	require.NotContains(t, dump, "hunter2")
	require.Contains(t, dump, "<redacted>")
	require.Equal(t, "hunter2", cfg.RPC.Secret)
}
