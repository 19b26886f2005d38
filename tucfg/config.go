package tucfg

import (
	"os"
	"os/user"
	"path/filepath"
	"strings"
	"time"
)

const (
	// DefaultConfigFilename is the default configuration document name
	// trackerup tries to load from the working directory.
	DefaultConfigFilename = "config.json"

	// DefaultAria2ConfPath is where aria2's own configuration file is
	// expected when nothing else is configured.
	DefaultAria2ConfPath = "/opt/aria2/aria2.conf"

	// DefaultBackupSuffix is appended to the aria2 configuration path to
	// name the pre-update copy.
	DefaultBackupSuffix = ".bak"

	// DefaultRequestTimeout bounds each HTTP request to a tracker source.
	DefaultRequestTimeout Seconds = 10

	// DefaultMaxRetries is the number of retries after the first attempt
	// against a tracker source.
	DefaultMaxRetries = 3

	// DefaultRetryBackoff is the wait before the first retry. Later waits
	// double up to DefaultMaxBackoff.
	DefaultRetryBackoff Seconds = 2

	// DefaultMaxBackoff caps the wait between two attempts.
	DefaultMaxBackoff Seconds = 30

	// DefaultLogLevel is the log level used when neither the document nor
	// the command line set one.
	DefaultLogLevel = "info"

	// DefaultLogFilename is the log file written to the working
	// directory when the document does not name one. An empty log_file
	// keeps logs on the console only.
	DefaultLogFilename = "bt_tracker_update.log"
)

// DefaultTrackerSources are the public lists pulled when the document does not
// name any.
var DefaultTrackerSources = []string{
	"https://trackerslist.com/all.txt",
	"https://ngosang.github.io/trackerslist/trackers_all.txt",
}

// Seconds is a duration expressed as a (possibly fractional) number of seconds
// in the configuration document.
type Seconds float64

// Duration converts the value into a time.Duration.
func (s Seconds) Duration() time.Duration {
	return time.Duration(float64(s) * float64(time.Second))
}

// CleanAndExpandPath expands environment variables and leading ~ in the
// passed path, cleans the result, and returns it.
// This function is taken from https://github.com/btcsuite/btcd
func CleanAndExpandPath(path string) string {
	if path == "" {
		return ""
	}

	// Expand initial ~ to OS specific home directory.
	if strings.HasPrefix(path, "~") {
		var homeDir string
		u, err := user.Current()
		if err == nil {
			homeDir = u.HomeDir
		} else {
			homeDir = os.Getenv("HOME")
		}

		path = strings.Replace(path, "~", homeDir, 1)
	}

	// NOTE: The os.ExpandEnv doesn't work with Windows-style %VARIABLE%,
	// but the variables can still be expanded via POSIX-style $VARIABLE.
	return filepath.Clean(os.ExpandEnv(path))
}
