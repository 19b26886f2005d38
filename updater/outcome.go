package updater

import (
	"fmt"
	"strings"
)

// Mode selects which channels a run updates.
type Mode uint8

const (
	// ModeConfig rewrites the aria2 configuration file only.
	ModeConfig Mode = iota

	// ModeRPC changes the live option over JSON-RPC, falling back to the
	// configuration file when allowed.
	ModeRPC

	// ModeHybrid updates both the file and the live option.
	ModeHybrid
)

// String returns the name used for the mode in config documents and flags.
func (m Mode) String() string {
	switch m {
	case ModeConfig:
		return "config"

	case ModeRPC:
		return "rpc"

	case ModeHybrid:
		return "hybrid"

	default:
		return fmt.Sprintf("Mode(%d)", uint8(m))
	}
}

// ParseMode parses a mode name, ignoring case and surrounding whitespace.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "config":
		return ModeConfig, nil

	case "rpc":
		return ModeRPC, nil

	case "hybrid":
		return ModeHybrid, nil

	default:
		return 0, fmt.Errorf("unknown update mode %q, expected one of "+
			"config, rpc or hybrid", s)
	}
}

// Channel identifies one way of delivering trackers to aria2.
type Channel string

const (
	// ChannelFile is the aria2 configuration file.
	ChannelFile Channel = "file"

	// ChannelRPC is aria2's JSON-RPC interface.
	ChannelRPC Channel = "rpc"
)

// Status is the state a channel ended in.
type Status uint8

const (
	// StatusSkipped means the channel was not attempted.
	StatusSkipped Status = iota

	// StatusSucceeded means aria2 received the trackers.
	StatusSucceeded

	// StatusFailed means the attempt failed, see ChannelOutcome.Err.
	StatusFailed
)

// String returns a human readable status.
func (s Status) String() string {
	switch s {
	case StatusSkipped:
		return "skipped"

	case StatusSucceeded:
		return "succeeded"

	case StatusFailed:
		return "failed"

	default:
		return "unknown"
	}
}

// ChannelOutcome records what happened on a single channel.
type ChannelOutcome struct {
	// Channel is the channel the record is about.
	Channel Channel

	// Status is the final state of the channel.
	Status Status

	// Err is set when Status is StatusFailed.
	Err error

	// Fallback is true when the channel ran because the RPC channel
	// failed.
	Fallback bool
}

// Result is the overall verdict of a run.
type Result uint8

const (
	// AllSucceeded means every attempted channel succeeded.
	AllSucceeded Result = iota

	// PartialSuccess means at least one channel succeeded and at least
	// one failed.
	PartialSuccess

	// AllFailed means no channel succeeded.
	AllFailed
)

// String returns the name of the result.
func (r Result) String() string {
	switch r {
	case AllSucceeded:
		return "AllSucceeded"

	case PartialSuccess:
		return "PartialSuccess"

	case AllFailed:
		return "AllFailed"

	default:
		return "unknown result"
	}
}

// Outcome is the record of an update run across every channel.
type Outcome struct {
	// Mode is the mode the run was made in.
	Mode Mode

	// Channels holds one record per channel in the order they were
	// considered.
	Channels []ChannelOutcome

	// Result summarises Channels.
	Result Result
}

// Channel returns the record for ch, if the run considered it.
func (o *Outcome) Channel(ch Channel) (ChannelOutcome, bool) {
	for _, c := range o.Channels {
		if c.Channel == ch {
			return c, true
		}
	}

	return ChannelOutcome{}, false
}

// Succeeded reports whether at least one channel received the trackers.
func (o *Outcome) Succeeded() bool {
	return o.Result != AllFailed
}

// summarize derives the overall result from channel records. Skipped
// channels do not count either way.
func summarize(channels []ChannelOutcome) Result {
	var succeeded, failed int
	for _, c := range channels {
		switch c.Status {
		case StatusSucceeded:
			succeeded++

		case StatusFailed:
			failed++
		}
	}

	switch {
	case succeeded > 0 && failed == 0:
		return AllSucceeded

	case succeeded > 0:
		return PartialSuccess

	default:
		return AllFailed
	}
}
