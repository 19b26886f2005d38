package updater

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// ErrRPCDisabled is recorded for the RPC channel when the run asks for it but
// no RPC endpoint is configured.
var ErrRPCDisabled = errors.New("rpc channel requested but rpc is disabled")

// ErrNoFileChannel is recorded for the file channel when no configuration
// file updater is available.
var ErrNoFileChannel = errors.New("no aria2 configuration file configured")

// Applier delivers a tracker list over one channel.
type Applier interface {
	// Apply hands trackers to aria2. It must not retain the slice.
	Apply(ctx context.Context, trackers []string) error
}

// Config holds the channels an Orchestrator drives and its policy.
type Config struct {
	// Mode selects the channels.
	Mode Mode

	// File updates the configuration file.
	File Applier

	// RPC updates the live option. Nil means RPC is disabled.
	RPC Applier

	// FallbackToConfig makes a failed RPC update in ModeRPC fall back to
	// the configuration file.
	FallbackToConfig bool
}

// Orchestrator applies a merged tracker list over the channels selected by
// the mode. It makes a single pass: retries belong to the channels.
type Orchestrator struct {
	cfg Config
}

// New creates an Orchestrator.
func New(cfg Config) *Orchestrator {
	return &Orchestrator{cfg: cfg}
}

// Run delivers trackers and returns the per channel records together with the
// overall result. Channel errors never escape as errors; they are recorded in
// the outcome.
func (o *Orchestrator) Run(ctx context.Context, trackers []string) *Outcome {
	var channels []ChannelOutcome

	switch o.cfg.Mode {
	case ModeConfig:
		channels = append(channels, o.apply(ctx, ChannelFile, trackers))

	case ModeRPC:
		rpc := o.apply(ctx, ChannelRPC, trackers)
		channels = append(channels, rpc)

		switch {
		case rpc.Status != StatusFailed:
			// Nothing to fall back from.

		case o.cfg.FallbackToConfig:
			log.Warnf("RPC update failed, falling back to the "+
				"configuration file: %v", rpc.Err)

			file := o.apply(ctx, ChannelFile, trackers)
			file.Fallback = true
			channels = append(channels, file)

		default:
			channels = append(channels, ChannelOutcome{
				Channel: ChannelFile,
				Status:  StatusSkipped,
			})
		}

	case ModeHybrid:
		channels = o.runHybrid(ctx, trackers)

	default:
		err := fmt.Errorf("unknown update mode %v", o.cfg.Mode)
		channels = append(channels, ChannelOutcome{
			Channel: ChannelFile, Status: StatusFailed, Err: err,
		})
	}

	outcome := &Outcome{
		Mode:     o.cfg.Mode,
		Channels: channels,
		Result:   summarize(channels),
	}

	switch outcome.Result {
	case AllSucceeded:
		log.Infof("Update finished in %v mode: all channels succeeded",
			o.cfg.Mode)

	case PartialSuccess:
		log.Warnf("Update finished in %v mode with partial success",
			o.cfg.Mode)

	case AllFailed:
		log.Errorf("Update finished in %v mode: every channel failed",
			o.cfg.Mode)
	}

	return outcome
}

// runHybrid updates the file and the live option concurrently. They touch
// disjoint resources so neither waits for the other, and one failing does
// not cancel the other.
func (o *Orchestrator) runHybrid(ctx context.Context,
	trackers []string) []ChannelOutcome {

	if o.cfg.RPC == nil {
		log.Infof("RPC is disabled, hybrid mode updates the " +
			"configuration file only")

		return []ChannelOutcome{
			o.apply(ctx, ChannelFile, trackers),
			{Channel: ChannelRPC, Status: StatusSkipped},
		}
	}

	channels := make([]ChannelOutcome, 2)

	var g errgroup.Group
	g.Go(func() error {
		channels[0] = o.apply(ctx, ChannelFile, trackers)
		return nil
	})
	g.Go(func() error {
		channels[1] = o.apply(ctx, ChannelRPC, trackers)
		return nil
	})

	// Failures are recorded in channels, Wait never reports one.
	_ = g.Wait()

	return channels
}

// apply runs one channel and converts its error into a record.
func (o *Orchestrator) apply(ctx context.Context, ch Channel,
	trackers []string) ChannelOutcome {

	var applier Applier
	switch ch {
	case ChannelFile:
		applier = o.cfg.File
		if applier == nil {
			return failed(ch, ErrNoFileChannel)
		}

	case ChannelRPC:
		applier = o.cfg.RPC
		if applier == nil {
			return failed(ch, ErrRPCDisabled)
		}
	}

	if err := applier.Apply(ctx, trackers); err != nil {
		return failed(ch, err)
	}

	log.Infof("Updated %d tracker(s) via %s channel", len(trackers), ch)

	return ChannelOutcome{Channel: ch, Status: StatusSucceeded}
}

func failed(ch Channel, err error) ChannelOutcome {
	log.Errorf("Update via %s channel failed: %v", ch, err)

	return ChannelOutcome{Channel: ch, Status: StatusFailed, Err: err}
}
