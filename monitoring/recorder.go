package monitoring

import (
	"errors"
	"fmt"
	"time"

	"github.com/aria2tools/trackerup/build"
	"github.com/prometheus/client_golang/prometheus"
)

// SourceStat describes one tracker list source of a run.
type SourceStat struct {
	// URL identifies the source.
	URL string

	// Up is true when the source was fetched.
	Up bool

	// Valid is the number of valid trackers it served.
	Valid int
}

// ChannelStat describes one update channel of a run.
type ChannelStat struct {
	// Channel is the channel name, "file" or "rpc".
	Channel string

	// Status is "succeeded", "failed" or "skipped".
	Status string
}

// RunStats is a snapshot of a finished run.
type RunStats struct {
	// Start and End bound the run.
	Start time.Time
	End   time.Time

	// DryRun is set when nothing was written.
	DryRun bool

	// Trackers is the size of the merged tracker set.
	Trackers int

	// Added is the number of trackers that were not configured before.
	Added int

	// Sources holds one entry per configured source.
	Sources []SourceStat

	// Channels holds one entry per update channel that was considered.
	Channels []ChannelStat

	// Result is the overall result name, empty if no update was attempted.
	Result string
}

// ErrNoStats is returned when Write is called without a snapshot.
var ErrNoStats = errors.New("no run stats to record")

// Recorder exports run statistics in the Prometheus text format to a file
// picked up by node_exporter's textfile collector.
type Recorder struct {
	path string
}

// NewRecorder creates a recorder writing to path. An empty path disables it.
func NewRecorder(path string) *Recorder {
	return &Recorder{path: path}
}

// Enabled reports whether the recorder writes anything.
func (r *Recorder) Enabled() bool {
	return r.path != ""
}

// Write replaces the metrics file with the metrics of stats.
func (r *Recorder) Write(stats *RunStats) error {
	if !r.Enabled() {
		return nil
	}
	if stats == nil {
		return ErrNoStats
	}

	registry := prometheus.NewRegistry()
	if err := registry.Register(newRunCollector(stats)); err != nil {
		return fmt.Errorf("unable to register run collector: %w", err)
	}

	if err := prometheus.WriteToTextfile(r.path, registry); err != nil {
		return fmt.Errorf("unable to write metrics to %s: %w", r.path,
			err)
	}

	log.Debugf("Wrote run metrics to %s", r.path)

	return nil
}

// runCollector exposes a RunStats snapshot as constant metrics.
type runCollector struct {
	stats *RunStats

	versionDesc   *prometheus.Desc
	timestampDesc *prometheus.Desc
	durationDesc  *prometheus.Desc
	dryRunDesc    *prometheus.Desc
	trackersDesc  *prometheus.Desc
	addedDesc     *prometheus.Desc
	sourceUpDesc  *prometheus.Desc
	sourceValDesc *prometheus.Desc
	channelDesc   *prometheus.Desc
	resultDesc    *prometheus.Desc
}

func newRunCollector(stats *RunStats) prometheus.Collector {
	return &runCollector{
		stats: stats,
		versionDesc: prometheus.NewDesc(
			"trackerup_version",
			"Version of trackerup that produced the metrics.",
			[]string{"version", "commit"}, nil),
		timestampDesc: prometheus.NewDesc(
			"trackerup_last_run_timestamp_seconds",
			"Unix time the last run finished.",
			nil, nil),
		durationDesc: prometheus.NewDesc(
			"trackerup_last_run_duration_seconds",
			"Wall clock duration of the last run.",
			nil, nil),
		dryRunDesc: prometheus.NewDesc(
			"trackerup_last_run_dry_run",
			"Whether the last run was a dry run.",
			nil, nil),
		trackersDesc: prometheus.NewDesc(
			"trackerup_trackers",
			"Number of trackers in the merged set.",
			nil, nil),
		addedDesc: prometheus.NewDesc(
			"trackerup_trackers_added",
			"Number of trackers added by the last run.",
			nil, nil),
		sourceUpDesc: prometheus.NewDesc(
			"trackerup_source_up",
			"Whether a tracker list source could be fetched.",
			[]string{"source"}, nil),
		sourceValDesc: prometheus.NewDesc(
			"trackerup_source_valid_trackers",
			"Number of valid trackers served by a source.",
			[]string{"source"}, nil),
		channelDesc: prometheus.NewDesc(
			"trackerup_channel_status",
			"Final status of an update channel, 1 for the status it "+
				"ended in.",
			[]string{"channel", "status"}, nil),
		resultDesc: prometheus.NewDesc(
			"trackerup_run_result",
			"Overall result of the last run, 1 for the result it "+
				"ended with.",
			[]string{"result"}, nil),
	}
}

func (c *runCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.versionDesc
	ch <- c.timestampDesc
	ch <- c.durationDesc
	ch <- c.dryRunDesc
	ch <- c.trackersDesc
	ch <- c.addedDesc
	ch <- c.sourceUpDesc
	ch <- c.sourceValDesc
	ch <- c.channelDesc
	ch <- c.resultDesc
}

func (c *runCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.stats

	ch <- prometheus.MustNewConstMetric(
		c.versionDesc, prometheus.GaugeValue, 1, build.Version(),
		build.Commit,
	)
	ch <- prometheus.MustNewConstMetric(
		c.timestampDesc, prometheus.GaugeValue,
		float64(s.End.UnixNano())/float64(time.Second),
	)
	ch <- prometheus.MustNewConstMetric(
		c.durationDesc, prometheus.GaugeValue,
		s.End.Sub(s.Start).Seconds(),
	)
	ch <- prometheus.MustNewConstMetric(
		c.dryRunDesc, prometheus.GaugeValue, boolToFloat(s.DryRun),
	)
	ch <- prometheus.MustNewConstMetric(
		c.trackersDesc, prometheus.GaugeValue, float64(s.Trackers),
	)
	ch <- prometheus.MustNewConstMetric(
		c.addedDesc, prometheus.GaugeValue, float64(s.Added),
	)

	// Duplicate label sets would make the gatherer fail, so only the
	// first entry per source URL is exported.
	seen := make(map[string]struct{}, len(s.Sources))
	for _, src := range s.Sources {
		if _, ok := seen[src.URL]; ok {
			continue
		}
		seen[src.URL] = struct{}{}

		ch <- prometheus.MustNewConstMetric(
			c.sourceUpDesc, prometheus.GaugeValue,
			boolToFloat(src.Up), src.URL,
		)
		ch <- prometheus.MustNewConstMetric(
			c.sourceValDesc, prometheus.GaugeValue,
			float64(src.Valid), src.URL,
		)
	}

	for _, chStat := range s.Channels {
		ch <- prometheus.MustNewConstMetric(
			c.channelDesc, prometheus.GaugeValue, 1, chStat.Channel,
			chStat.Status,
		)
	}

	if s.Result != "" {
		ch <- prometheus.MustNewConstMetric(
			c.resultDesc, prometheus.GaugeValue, 1, s.Result,
		)
	}
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}

	return 0
}
