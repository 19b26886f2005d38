package trackerup

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aria2tools/trackerup/build"
	"github.com/aria2tools/trackerup/source"
	"github.com/aria2tools/trackerup/tucfg"
	"github.com/aria2tools/trackerup/updater"
	flags "github.com/jessevdk/go-flags"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

const (
	// runBudgetSlack is added on top of the computed worst case duration
	// of a run.
	runBudgetSlack = 30 * time.Second

	// rpcCallsPerRun is the largest number of RPC round trips a run makes:
	// reading the live list, changing it, and one spare.
	rpcCallsPerRun = 3
)

// Options are the command line flags. Any flag that is set overrides the
// matching key of the configuration document.
//
//nolint:lll
type Options struct {
	ShowVersion bool   `short:"V" long:"version" description:"Display version information and exit"`
	ConfigFile  string `short:"c" long:"config" description:"Path to the JSON or YAML configuration document"`
	Aria2Conf   string `long:"aria2-conf" description:"Path to aria2's configuration file, overrides aria2_conf_path"`
	DryRun      bool   `long:"dry-run" description:"Fetch and merge the trackers and show what would change without modifying anything"`
	Verbose     bool   `short:"v" long:"verbose" description:"Log at debug level"`
	DebugLevel  string `long:"debuglevel" description:"Logging level for all subsystems {trace, debug, info, warn, error, critical} -- You may also specify <subsystem>=<level>,<subsystem2>=<level>,... to set the log level for individual subsystems"`
	ListSources bool   `long:"list-sources" description:"List the configured tracker sources and exit"`
	NoBackup    bool   `long:"no-backup" description:"Do not back up aria2's configuration file before changing it"`
	LogFile     string `long:"log-file" description:"Also write logs to this file, overrides log_file"`
	MetricsFile string `long:"metrics-file" description:"Write Prometheus textfile metrics of the run to this file, overrides metrics_file"`

	RPC        bool   `long:"rpc" description:"Enable RPC and update aria2 over RPC unless --update-mode is given"`
	RPCURL     string `long:"rpc-url" description:"aria2 JSON-RPC URL, implies RPC enabled"`
	RPCSecret  string `long:"rpc-secret" description:"aria2 RPC secret, implies RPC enabled"`
	UpdateMode string `long:"update-mode" description:"How to deliver the trackers" choice:"config" choice:"rpc" choice:"hybrid"`
	TestRPC    bool   `long:"test-rpc" description:"Check the RPC connection, show aria2's version and exit"`

	LogConfig *build.LogConfig `group:"logging" namespace:"logging"`
}

// Config is the configuration of a run. The tagged fields make up the
// configuration document; the rest come from the command line.
type Config struct {
	Aria2ConfPath  string        `json:"aria2_conf_path" yaml:"aria2_conf_path"`
	BackupEnabled  bool          `json:"backup_enabled" yaml:"backup_enabled"`
	BackupSuffix   string        `json:"backup_suffix" yaml:"backup_suffix"`
	TrackerSources []string      `json:"tracker_sources" yaml:"tracker_sources"`
	RequestTimeout tucfg.Seconds `json:"request_timeout" yaml:"request_timeout"`
	MaxRetries     int           `json:"max_retries" yaml:"max_retries"`
	RetryBackoff   tucfg.Seconds `json:"retry_backoff" yaml:"retry_backoff"`
	MaxBackoff     tucfg.Seconds `json:"max_backoff" yaml:"max_backoff"`

	tucfg.Workers `yaml:",inline"`

	RPC              tucfg.RPC `json:"rpc" yaml:"rpc"`
	UpdateMode       string    `json:"update_mode" yaml:"update_mode"`
	FallbackToConfig bool      `json:"fallback_to_config" yaml:"fallback_to_config"`

	LogLevel    string `json:"log_level" yaml:"log_level"`
	LogFile     string `json:"log_file" yaml:"log_file"`
	MetricsFile string `json:"metrics_file" yaml:"metrics_file"`

	// ConfigFile is the document the configuration was read from.
	ConfigFile string `json:"-" yaml:"-"`

	// DryRun, ListSources and TestRPC select what Main does.
	DryRun      bool `json:"-" yaml:"-"`
	ListSources bool `json:"-" yaml:"-"`
	TestRPC     bool `json:"-" yaml:"-"`

	// DebugLevel is the level string handed to the loggers.
	DebugLevel string `json:"-" yaml:"-"`

	// Mode is the parsed UpdateMode.
	Mode updater.Mode `json:"-" yaml:"-"`

	// LogConfig holds the console and log file options.
	LogConfig *build.LogConfig `json:"-" yaml:"-"`

	// createdDocument is set when a default document was written because
	// none existed.
	createdDocument bool
}

// DefaultConfig returns all default values for the Config struct.
func DefaultConfig() Config {
	return Config{
		Aria2ConfPath:  tucfg.DefaultAria2ConfPath,
		BackupEnabled:  true,
		BackupSuffix:   tucfg.DefaultBackupSuffix,
		TrackerSources: append([]string(nil), tucfg.DefaultTrackerSources...),
		RequestTimeout: tucfg.DefaultRequestTimeout,
		MaxRetries:     tucfg.DefaultMaxRetries,
		RetryBackoff:   tucfg.DefaultRetryBackoff,
		MaxBackoff:     tucfg.DefaultMaxBackoff,
		Workers: tucfg.Workers{
			Fetch: tucfg.DefaultFetchWorkers,
		},
		RPC:              tucfg.DefaultRPC(),
		UpdateMode:       updater.ModeConfig.String(),
		FallbackToConfig: true,
		LogLevel:         tucfg.DefaultLogLevel,
		LogFile:          tucfg.DefaultLogFilename,
		ConfigFile:       tucfg.DefaultConfigFilename,
		LogConfig:        build.DefaultLogConfig(),
	}
}

// LoadConfig initializes and parses the config using a config document and
// command line options.
//
// The configuration proceeds as follows:
//  1. Start with a default config with sane settings
//  2. Parse the command line to find the config document
//  3. Load the document overwriting defaults with any specified options, or
//     write a default document if there is none
//  4. Apply the command line options on top
func LoadConfig(args []string) (*Config, error) {
	opts := Options{
		ConfigFile: tucfg.DefaultConfigFilename,
		LogConfig:  build.DefaultLogConfig(),
	}
	if _, err := flags.NewParser(&opts, flags.Default).ParseArgs(
		args,
	); err != nil {
		return nil, err
	}

	// Show the version and exit if the version flag was specified.
	if opts.ShowVersion {
		appName := filepath.Base(os.Args[0])
		appName = strings.TrimSuffix(appName, filepath.Ext(appName))
		fmt.Println(appName, "version", build.Version(),
			"commit="+build.Commit)
		os.Exit(0)
	}

	cfg := DefaultConfig()
	cfg.ConfigFile = tucfg.CleanAndExpandPath(opts.ConfigFile)
	cfg.LogConfig = opts.LogConfig

	found, err := loadDocument(cfg.ConfigFile, &cfg)
	if err != nil {
		return nil, err
	}
	if !found {
		// A missing document is fine, but leave one behind for the
		// user to edit. Failing to do so only costs convenience.
		err := writeDefaultDocument(cfg.ConfigFile)
		if err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "unable to write default "+
				"config document: %v\n", err)
		} else {
			cfg.createdDocument = true
		}
	}

	applyOptions(&cfg, &opts)

	return ValidateConfig(cfg)
}

// loadDocument decodes the document at path into cfg. Keys missing from the
// document keep the values already in cfg. It reports false when the document
// does not exist.
func loadDocument(path string, cfg *Config) (bool, error) {
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return false, nil

	case err != nil:
		return false, fmt.Errorf("unable to read config document: %w",
			err)
	}

	if err := decodeDocument(path, data, cfg); err != nil {
		return true, fmt.Errorf("unable to parse config document %s: "+
			"%w", path, err)
	}

	return true, nil
}

// decodeDocument decodes YAML for .yaml and .yml files and JSON otherwise.
// JSON documents may carry comments and trailing commas.
func decodeDocument(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, cfg)

	default:
		return json.Unmarshal(jsonc.ToJSON(data), cfg)
	}
}

// writeDefaultDocument writes the default configuration to path in the format
// its extension asks for.
func writeDefaultDocument(path string) error {
	defaults := DefaultConfig()

	var (
		data []byte
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(&defaults)

	default:
		data, err = json.MarshalIndent(&defaults, "", "  ")
		data = append(data, '\n')
	}
	if err != nil {
		return err
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return err
		}
	}

	return os.WriteFile(path, data, 0600)
}

// applyOptions copies every flag that was set over the document values.
func applyOptions(cfg *Config, opts *Options) {
	if opts.Aria2Conf != "" {
		cfg.Aria2ConfPath = opts.Aria2Conf
	}
	if opts.NoBackup {
		cfg.BackupEnabled = false
	}
	if opts.Verbose {
		cfg.LogLevel = "debug"
	}
	if opts.LogFile != "" {
		cfg.LogFile = opts.LogFile
	}
	if opts.MetricsFile != "" {
		cfg.MetricsFile = opts.MetricsFile
	}

	if opts.RPC {
		cfg.RPC.Enabled = true
	}
	if opts.RPCURL != "" {
		cfg.RPC.URL = opts.RPCURL
		cfg.RPC.Enabled = true
	}
	if opts.RPCSecret != "" {
		cfg.RPC.Secret = opts.RPCSecret
		cfg.RPC.Enabled = true
	}

	switch {
	case opts.UpdateMode != "":
		cfg.UpdateMode = opts.UpdateMode

	case opts.RPC:
		cfg.UpdateMode = updater.ModeRPC.String()
	}

	cfg.DebugLevel = strings.ToLower(cfg.LogLevel)
	if opts.DebugLevel != "" {
		cfg.DebugLevel = opts.DebugLevel
	}

	cfg.DryRun = opts.DryRun
	cfg.ListSources = opts.ListSources
	cfg.TestRPC = opts.TestRPC
}

// ValidateConfig check the given configuration to be sane. This makes sure no
// illegal values or combination of values are set. All file system paths are
// normalized. The cleaned up config is returned on success.
func ValidateConfig(cfg Config) (*Config, error) {
	mode, err := updater.ParseMode(cfg.UpdateMode)
	if err != nil {
		return nil, err
	}
	cfg.Mode = mode
	cfg.UpdateMode = mode.String()

	cfg.Aria2ConfPath = tucfg.CleanAndExpandPath(cfg.Aria2ConfPath)
	cfg.LogFile = tucfg.CleanAndExpandPath(cfg.LogFile)
	cfg.MetricsFile = tucfg.CleanAndExpandPath(cfg.MetricsFile)

	switch {
	case cfg.Aria2ConfPath == "":
		return nil, errors.New("aria2_conf_path must be set")

	case cfg.BackupEnabled && cfg.BackupSuffix == "":
		return nil, errors.New("backup_suffix must not be empty when " +
			"backups are enabled")

	case cfg.RequestTimeout <= 0:
		return nil, fmt.Errorf("request_timeout must be positive, got %v",
			float64(cfg.RequestTimeout))

	case cfg.MaxRetries < 0:
		return nil, fmt.Errorf("max_retries must not be negative, got %d",
			cfg.MaxRetries)

	case cfg.RetryBackoff < 0 || cfg.MaxBackoff < 0:
		return nil, errors.New("retry_backoff and max_backoff must not " +
			"be negative")

	case len(cfg.TrackerSources) == 0:
		return nil, errors.New("tracker_sources must list at least one " +
			"source")
	}

	for _, src := range cfg.TrackerSources {
		if err := validateSourceURL(src); err != nil {
			return nil, err
		}
	}

	if err := cfg.Workers.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.RPC.Validate(); err != nil {
		return nil, err
	}

	if cfg.LogConfig == nil {
		cfg.LogConfig = build.DefaultLogConfig()
	}
	if err := cfg.LogConfig.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// validateSourceURL checks that a tracker source is an absolute http(s) URL.
func validateSourceURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid tracker source %q: %w", raw, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid tracker source %q: must be an "+
			"http or https URL", raw)
	}

	return nil
}

// FetchPolicy returns the retry policy shared by every source.
func (c *Config) FetchPolicy() source.Policy {
	return source.Policy{
		Timeout:    c.RequestTimeout.Duration(),
		MaxRetries: c.MaxRetries,
		Backoff:    c.RetryBackoff.Duration(),
		MaxBackoff: c.MaxBackoff.Duration(),
	}
}

// RunBudget is the wall clock limit of a run: every source exhausting its
// attempts and backoff waits, a few RPC round trips and some slack.
func (c *Config) RunBudget() time.Duration {
	var budget time.Duration
	for _, desc := range source.NewDescriptors(
		c.TrackerSources, c.FetchPolicy(),
	) {
		budget += desc.Budget()
	}

	if c.RPC.Enabled {
		budget += rpcCallsPerRun * c.RPC.Timeout.Duration()
	}

	return budget + runBudgetSlack
}

// redacted returns a copy that is safe to log.
func (c *Config) redacted() Config {
	clean := *c
	if clean.RPC.Secret != "" {
		clean.RPC.Secret = "<redacted>"
	}

	return clean
}
