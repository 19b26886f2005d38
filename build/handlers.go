package build

import (
	"io"

	"github.com/btcsuite/btclog/v2"
)

// NewDefaultLogHandler returns the handler every subsystem logger writes
// through. Lines go to the console and, once the rotator has been initialised,
// to the log file as well.
func NewDefaultLogHandler(cfg *LogConfig, console io.Writer,
	rotator *RotatingLogWriter) btclog.Handler {

	writer := &LogWriter{
		Stdout: console,
	}
	if rotator != nil {
		writer.RotatorPipe = rotator
	}

	return btclog.NewDefaultHandler(writer, cfg.Console.HandlerOptions()...)
}
