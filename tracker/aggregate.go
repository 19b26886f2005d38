package tracker

import (
	"errors"

	"github.com/lightningnetwork/lnd/fn/v2"
)

// ErrNoTrackersAvailable is returned when the merge of the configured trackers
// and every source produced nothing. An empty bt-tracker value is never
// written.
var ErrNoTrackersAvailable = errors.New("no trackers available: every " +
	"source failed and none are configured")

// SourceResult is the outcome of downloading one tracker list: either the raw
// candidate lines or the reason the source could not be read.
type SourceResult struct {
	// URL identifies the source.
	URL string

	// Lines holds the candidate lines or the fetch error.
	Lines fn.Result[[]string]
}

// SourceReport summarises what a single source contributed to the merge.
type SourceReport struct {
	// URL identifies the source.
	URL string

	// Err is non-nil when the source could not be fetched.
	Err error

	// Valid is the number of lines that passed validation.
	Valid int

	// Rejected is the number of lines that failed validation.
	Rejected int

	// Added is the number of addresses first seen in this source.
	Added int
}

// Report describes a completed merge.
type Report struct {
	// Existing is the number of configured trackers that seeded the set.
	Existing int

	// DroppedExisting holds configured entries that failed validation and
	// were left out of the set.
	DroppedExisting []string

	// Sources holds one entry per source, in the order given.
	Sources []SourceReport

	// Added lists the addresses appended after the configured ones, in
	// order.
	Added []string
}

// FailedSources returns the number of sources that could not be fetched.
func (r *Report) FailedSources() int {
	var failed int
	for _, src := range r.Sources {
		if src.Err != nil {
			failed++
		}
	}

	return failed
}

// Aggregate merges the configured trackers with the lines pulled from each
// source. The configured trackers come first in their original order, then
// every new valid address in source order. A failed source is recorded in the
// report and skipped. If the resulting set is empty ErrNoTrackersAvailable is
// returned together with the report.
//
// Aggregate is deterministic for fixed inputs and idempotent: feeding the
// returned set back in as existing with the same results yields the same set.
func Aggregate(existing []string,
	results []SourceResult) (*Set, *Report, error) {

	report := &Report{
		Sources: make([]SourceReport, 0, len(results)),
	}

	set := NewSet()
	for _, entry := range existing {
		entry = Normalize(entry)
		if !IsValid(entry) {
			report.DroppedExisting = append(
				report.DroppedExisting, entry,
			)
			log.Warnf("Dropping malformed configured tracker %q",
				entry)

			continue
		}
		set.Add(entry)
	}
	report.Existing = set.Len()

	for _, result := range results {
		srcReport := SourceReport{URL: result.URL}

		lines, err := result.Lines.Unpack()
		if err != nil {
			srcReport.Err = err
			report.Sources = append(report.Sources, srcReport)

			log.Debugf("Skipping failed source %s: %v", result.URL,
				err)

			continue
		}

		for _, line := range lines {
			line = Normalize(line)
			if !IsValid(line) {
				srcReport.Rejected++
				log.Tracef("Rejected line %q from %s", line,
					result.URL)

				continue
			}

			srcReport.Valid++
			if set.Add(line) {
				srcReport.Added++
				report.Added = append(report.Added, line)
			}
		}

		log.Debugf("Source %s: valid=%d rejected=%d new=%d",
			result.URL, srcReport.Valid, srcReport.Rejected,
			srcReport.Added)

		report.Sources = append(report.Sources, srcReport)
	}

	if set.Len() == 0 {
		return nil, report, ErrNoTrackersAvailable
	}

	return set, report, nil
}
