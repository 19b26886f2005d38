package trackerup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/aria2tools/trackerup/aria2conf"
	"github.com/aria2tools/trackerup/aria2rpc"
	"github.com/aria2tools/trackerup/build"
	"github.com/aria2tools/trackerup/monitoring"
	"github.com/aria2tools/trackerup/signal"
	"github.com/aria2tools/trackerup/source"
	"github.com/aria2tools/trackerup/tracker"
	"github.com/aria2tools/trackerup/updater"
	"github.com/lightningnetwork/lnd/clock"
)

var (
	// ErrAllChannelsFailed is returned when no channel received the merged
	// tracker list.
	ErrAllChannelsFailed = errors.New("tracker update failed on every " +
		"channel")

	// ErrRPCRequired is returned by the RPC connection test when RPC is
	// disabled.
	ErrRPCRequired = errors.New("rpc must be enabled to test the " +
		"connection, set rpc.enabled or pass --rpc")
)

// Main is the true entry point for trackerup. It's required since defers
// created in the top-level scope of a main method aren't executed if os.Exit()
// is called.
func Main(cfg *Config, interceptor signal.Interceptor) error {
	// Initialize logging first so every later step can report problems.
	// A log file that cannot be opened leaves logging on the console.
	logRotator := build.NewRotatingLogWriter()
	var logFileErr error
	if cfg.LogFile != "" {
		logFileErr = logRotator.InitLogRotator(
			cfg.LogConfig.File, cfg.LogFile,
		)
	}
	defer func() {
		_ = logRotator.Close()
	}()

	logMgr := build.NewSubLoggerManager(build.NewDefaultLogHandler(
		cfg.LogConfig, os.Stdout, logRotator,
	))
	SetupLoggers(logMgr)

	err := build.ParseAndSetDebugLevels(cfg.DebugLevel, logMgr)
	if err != nil {
		return err
	}

	trupLog.Infof("trackerup version %s commit=%s", build.Version(),
		build.Commit)
	if logFileErr != nil {
		trupLog.Warnf("Unable to open log file %s, logging to the "+
			"console only: %v", cfg.LogFile, logFileErr)
	}
	if cfg.createdDocument {
		trupLog.Infof("No configuration document found, wrote the "+
			"defaults to %s", cfg.ConfigFile)
	}
	trupLog.Debugf("Configuration: %v", spewConfig(cfg))

	// The run stops when its budget is spent or a shutdown signal
	// arrives, whichever comes first.
	ctx, cancel := interceptor.Context(context.Background())
	defer cancel()

	budget := cfg.RunBudget()
	ctx, cancelBudget := context.WithTimeout(ctx, budget)
	defer cancelBudget()
	trupLog.Debugf("Run budget is %v", budget)

	r, err := newRunner(cfg, os.Stdout)
	if err != nil {
		return err
	}

	return r.run(ctx)
}

// runner carries out one invocation.
type runner struct {
	cfg *Config

	// out receives the tables meant for the user.
	out io.Writer

	fetcher  *source.Fetcher
	file     *aria2conf.Updater
	recorder *monitoring.Recorder
	clock    clock.Clock

	// rpc is nil when RPC is disabled.
	rpc *aria2rpc.Client
}

// newRunner wires the components described by cfg.
func newRunner(cfg *Config, out io.Writer) (*runner, error) {
	r := &runner{
		cfg: cfg,
		out: out,
		fetcher: source.New(source.Config{
			Workers: cfg.Workers.Fetch,
		}),
		file: &aria2conf.Updater{
			Path:          cfg.Aria2ConfPath,
			BackupEnabled: cfg.BackupEnabled,
			BackupSuffix:  cfg.BackupSuffix,
		},
		recorder: monitoring.NewRecorder(cfg.MetricsFile),
		clock:    clock.NewDefaultClock(),
	}

	if cfg.RPC.Enabled {
		client, err := aria2rpc.New(aria2rpc.Config{
			URL:       cfg.RPC.URL,
			Secret:    cfg.RPC.Secret,
			Timeout:   cfg.RPC.Timeout.Duration(),
			VerifySSL: cfg.RPC.VerifySSL,
		})
		if err != nil {
			return nil, err
		}
		r.rpc = client
	}

	return r, nil
}

// run dispatches to the action selected on the command line.
func (r *runner) run(ctx context.Context) error {
	switch {
	case r.cfg.ListSources:
		printSources(r.out, r.descriptors())
		return nil

	case r.cfg.TestRPC:
		return r.testRPC(ctx)

	case r.cfg.DryRun:
		return r.dryRun(ctx)

	default:
		return r.update(ctx)
	}
}

func (r *runner) descriptors() []source.Descriptor {
	return source.NewDescriptors(r.cfg.TrackerSources, r.cfg.FetchPolicy())
}

// rpcApplier returns the RPC channel, or a nil interface when RPC is
// disabled.
func (r *runner) rpcApplier() updater.Applier {
	if r.rpc == nil {
		return nil
	}

	return aria2rpc.NewUpdater(r.rpc)
}

// testRPC checks the RPC endpoint without changing anything.
func (r *runner) testRPC(ctx context.Context) error {
	if r.rpc == nil {
		return ErrRPCRequired
	}

	status, err := r.rpc.TestConnection(ctx)
	if err != nil {
		return fmt.Errorf("unable to reach aria2 at %s (%s): %w",
			r.rpc.URL(), aria2rpc.ErrorKind(err), err)
	}

	printConnection(r.out, status)

	return nil
}

// fileTrackers returns the trackers configured in the aria2 file. A file that
// cannot be read yields none.
func (r *runner) fileTrackers() []string {
	trackers, err := aria2conf.ReadTrackers(r.file.Path)
	if err != nil {
		trupLog.Warnf("Unable to read configured trackers: %v", err)
		return nil
	}

	trupLog.Debugf("%s lists %d tracker(s)", r.file.Path, len(trackers))

	return trackers
}

// liveTrackers returns the trackers aria2 currently uses.
func (r *runner) liveTrackers(ctx context.Context) ([]string, error) {
	trackers, err := r.rpc.GetTrackers(ctx)
	if err != nil {
		return nil, err
	}

	trupLog.Debugf("aria2 at %s uses %d tracker(s)", r.rpc.URL(),
		len(trackers))

	return trackers, nil
}

// existingTrackers returns the trackers that seed the merge. RPC mode prefers
// the live list and falls back to the file. Hybrid mode starts from the file
// and appends the live list.
func (r *runner) existingTrackers(ctx context.Context) []string {
	switch r.cfg.Mode {
	case updater.ModeRPC:
		if r.rpc != nil {
			live, err := r.liveTrackers(ctx)
			if err == nil {
				return live
			}

			trupLog.Warnf("Unable to read live trackers (%s), using "+
				"%s instead: %v", aria2rpc.ErrorKind(err),
				r.file.Path, err)
		}

		return r.fileTrackers()

	case updater.ModeHybrid:
		existing := r.fileTrackers()
		if r.rpc == nil {
			return existing
		}

		live, err := r.liveTrackers(ctx)
		if err != nil {
			trupLog.Warnf("Unable to read live trackers (%s): %v",
				aria2rpc.ErrorKind(err), err)

			return existing
		}

		return append(existing, live...)

	default:
		return r.fileTrackers()
	}
}

// merge downloads every source and merges the results into existing.
func (r *runner) merge(ctx context.Context,
	existing []string) (*tracker.Set, *tracker.Report, error) {

	descs := r.descriptors()
	trupLog.Infof("Fetching %d tracker source(s)", len(descs))

	results := r.fetcher.FetchAll(ctx, descs)
	merged, report, err := tracker.Aggregate(existing, results)

	for _, src := range report.Sources {
		if src.Err != nil {
			trupLog.Errorf("Source %s failed: %v", src.URL, src.Err)
		}
	}
	if err != nil {
		return nil, report, err
	}

	for _, addr := range report.Added {
		trupLog.Infof("+ %s", addr)
	}
	trupLog.Infof("Merged %d tracker(s): %d configured, %d new, %d of "+
		"%d source(s) failed", merged.Len(), report.Existing,
		len(report.Added), report.FailedSources(), len(report.Sources))

	return merged, report, nil
}

// dryRun fetches and merges, then shows the result without writing anything.
func (r *runner) dryRun(ctx context.Context) error {
	start := r.clock.Now()

	trupLog.Infof("Dry run, aria2 will not be modified")

	merged, report, err := r.merge(ctx, r.existingTrackers(ctx))
	r.record(start, true, merged, report, nil)
	if err != nil {
		return err
	}

	printDryRun(r.out, merged, report)

	return nil
}

// update fetches, merges and delivers the trackers over the configured
// channels.
func (r *runner) update(ctx context.Context) error {
	start := r.clock.Now()

	// Config mode has nowhere else to go, so a missing file stops the run
	// before anything is downloaded.
	if r.cfg.Mode == updater.ModeConfig {
		if err := r.file.Check(); err != nil {
			return fmt.Errorf("aria2 configuration unusable: %w", err)
		}
	}

	merged, report, err := r.merge(ctx, r.existingTrackers(ctx))
	if err != nil {
		r.record(start, false, merged, report, nil)
		return err
	}

	orchestrator := updater.New(updater.Config{
		Mode:             r.cfg.Mode,
		File:             r.file,
		RPC:              r.rpcApplier(),
		FallbackToConfig: r.cfg.FallbackToConfig,
	})
	outcome := orchestrator.Run(ctx, merged.Slice())

	printOutcome(r.out, merged, report, outcome)
	r.record(start, false, merged, report, outcome)

	// Partial success still exits cleanly, the orchestrator already
	// warned about the failed channel.
	if !outcome.Succeeded() {
		return ErrAllChannelsFailed
	}

	return nil
}

// record writes the metrics of the run. Failing to do so is logged only.
func (r *runner) record(start time.Time, dryRun bool, merged *tracker.Set,
	report *tracker.Report, outcome *updater.Outcome) {

	if !r.recorder.Enabled() {
		return
	}

	stats := &monitoring.RunStats{
		Start:  start,
		End:    r.clock.Now(),
		DryRun: dryRun,
	}
	if merged != nil {
		stats.Trackers = merged.Len()
	}
	if report != nil {
		stats.Added = len(report.Added)
		for _, src := range report.Sources {
			stats.Sources = append(stats.Sources, monitoring.SourceStat{
				URL:   src.URL,
				Up:    src.Err == nil,
				Valid: src.Valid,
			})
		}
	}
	if outcome != nil {
		for _, c := range outcome.Channels {
			stats.Channels = append(
				stats.Channels, monitoring.ChannelStat{
					Channel: string(c.Channel),
					Status:  c.Status.String(),
				},
			)
		}
		stats.Result = outcome.Result.String()
	}

	if err := r.recorder.Write(stats); err != nil {
		trupLog.Warnf("Unable to write metrics: %v", err)
	}
}
