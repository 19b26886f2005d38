package trackerup

import (
	"github.com/aria2tools/trackerup/aria2conf"
	"github.com/aria2tools/trackerup/aria2rpc"
	"github.com/aria2tools/trackerup/build"
	"github.com/aria2tools/trackerup/monitoring"
	"github.com/aria2tools/trackerup/signal"
	"github.com/aria2tools/trackerup/source"
	"github.com/aria2tools/trackerup/tracker"
	"github.com/aria2tools/trackerup/updater"
	"github.com/btcsuite/btclog/v2"
	"github.com/davecgh/go-spew/spew"
)

// Subsystem is the logging subsystem of the root package.
const Subsystem = "TRUP"

// Loggers per subsystem. A single backend logger is created and all subsystem
// loggers created from it will write to the backend. When adding new
// subsystems, add the subsystem logger variable here and to SetupLoggers.
//
// Loggers can not be used before the log rotator has been initialized with a
// log file. This must be performed early during application startup.
var (
	// trupLog is the logger of the root package.
	trupLog = build.NewSubLogger(Subsystem, nil)
)

// SetupLoggers initializes all package-global logger variables.
func SetupLoggers(root *build.SubLoggerManager) {
	// Now that we have the proper root logger, we can replace the
	// placeholder logger.
	trupLog = root.GenSubLogger(Subsystem)

	AddSubLogger(root, tracker.Subsystem, tracker.UseLogger)
	AddSubLogger(root, source.Subsystem, source.UseLogger)
	AddSubLogger(root, aria2conf.Subsystem, aria2conf.UseLogger)
	AddSubLogger(root, aria2rpc.Subsystem, aria2rpc.UseLogger)
	AddSubLogger(root, updater.Subsystem, updater.UseLogger)
	AddSubLogger(root, monitoring.Subsystem, monitoring.UseLogger)
	AddSubLogger(root, signal.Subsystem, signal.UseLogger)
}

// AddSubLogger is a helper method to conveniently create and register the
// logger of one or more sub systems.
func AddSubLogger(root *build.SubLoggerManager, subsystem string,
	useLoggers ...func(btclog.Logger)) {

	// Create and register just a single logger to prevent them from
	// overwriting each other internally.
	logger := root.GenSubLogger(subsystem)
	for _, useLogger := range useLoggers {
		useLogger(logger)
	}
}

// logClosure is used to provide a closure over expensive logging operations so
// don't have to be performed when the logging level doesn't warrant it.
type logClosure func() string

// String invokes the underlying function and returns the result.
func (c logClosure) String() string {
	return c()
}

// newLogClosure returns a new closure over a function that returns a string
// which itself provides a Stringer interface so that it can be used with the
// logging system.
func newLogClosure(c func() string) logClosure {
	return logClosure(c)
}

// spewConfig dumps the configuration with the RPC secret hidden.
func spewConfig(cfg *Config) logClosure {
	return newLogClosure(func() string {
		clean := cfg.redacted()
		return spew.Sdump(&clean)
	})
}
