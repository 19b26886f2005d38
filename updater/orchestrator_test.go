package updater

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/aria2tools/trackerup/aria2rpc"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

var errWriteFailed = errors.New("write failed")

// mockApplier records the trackers it was handed and returns err.
type mockApplier struct {
	err error

	mu    sync.Mutex
	calls [][]string
}

func (m *mockApplier) Apply(_ context.Context, trackers []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, append([]string(nil), trackers...))

	return m.err
}

func (m *mockApplier) numCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.calls)
}

var testTrackers = []string{"udp://a:80", "udp://b:80"}

// TestParseMode checks the accepted mode names.
func TestParseMode(t *testing.T) {
	t.Parallel()

	for _, mode := range []Mode{ModeConfig, ModeRPC, ModeHybrid} {
		parsed, err := ParseMode(" " + mode.String() + " ")
		require.NoError(t, err)
		require.Equal(t, mode, parsed)
	}

	parsed, err := ParseMode("HYBRID")
	require.NoError(t, err)
	require.Equal(t, ModeHybrid, parsed)

	_, err = ParseMode("both")
	require.Error(t, err)
}

// TestRun covers the mode state machine.
func TestRun(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		mode       Mode
		fileErr    error
		rpcErr     error
		noRPC      bool
		fallback   bool
		result     Result
		fileCalls  int
		rpcCalls   int
		fileStatus Status
		rpcStatus  Status
	}{
		{
			name:       "config ok",
			mode:       ModeConfig,
			result:     AllSucceeded,
			fileCalls:  1,
			fileStatus: StatusSucceeded,
		},
		{
			name:       "config fails",
			mode:       ModeConfig,
			fileErr:    errWriteFailed,
			result:     AllFailed,
			fileCalls:  1,
			fileStatus: StatusFailed,
		},
		{
			name:       "rpc ok does not touch the file",
			mode:       ModeRPC,
			fallback:   true,
			result:     AllSucceeded,
			rpcCalls:   1,
			fileStatus: StatusSkipped,
			rpcStatus:  StatusSucceeded,
		},
		{
			name:       "rpc fails and falls back",
			mode:       ModeRPC,
			rpcErr:     aria2rpc.ErrUnauthorized,
			fallback:   true,
			result:     PartialSuccess,
			rpcCalls:   1,
			fileCalls:  1,
			fileStatus: StatusSucceeded,
			rpcStatus:  StatusFailed,
		},
		{
			name:       "rpc fails without fallback",
			mode:       ModeRPC,
			rpcErr:     aria2rpc.ErrUnauthorized,
			result:     AllFailed,
			rpcCalls:   1,
			fileStatus: StatusSkipped,
			rpcStatus:  StatusFailed,
		},
		{
			name:       "rpc and fallback both fail",
			mode:       ModeRPC,
			rpcErr:     aria2rpc.ErrUnauthorized,
			fileErr:    errWriteFailed,
			fallback:   true,
			result:     AllFailed,
			rpcCalls:   1,
			fileCalls:  1,
			fileStatus: StatusFailed,
			rpcStatus:  StatusFailed,
		},
		{
			name:       "rpc mode with rpc disabled falls back",
			mode:       ModeRPC,
			noRPC:      true,
			fallback:   true,
			result:     PartialSuccess,
			fileCalls:  1,
			fileStatus: StatusSucceeded,
			rpcStatus:  StatusFailed,
		},
		{
			name:       "hybrid both ok",
			mode:       ModeHybrid,
			result:     AllSucceeded,
			fileCalls:  1,
			rpcCalls:   1,
			fileStatus: StatusSucceeded,
			rpcStatus:  StatusSucceeded,
		},
		{
			name:       "hybrid rpc unauthorized",
			mode:       ModeHybrid,
			rpcErr:     aria2rpc.ErrUnauthorized,
			result:     PartialSuccess,
			fileCalls:  1,
			rpcCalls:   1,
			fileStatus: StatusSucceeded,
			rpcStatus:  StatusFailed,
		},
		{
			name:       "hybrid file fails",
			mode:       ModeHybrid,
			fileErr:    errWriteFailed,
			result:     PartialSuccess,
			fileCalls:  1,
			rpcCalls:   1,
			fileStatus: StatusFailed,
			rpcStatus:  StatusSucceeded,
		},
		{
			name:       "hybrid both fail",
			mode:       ModeHybrid,
			fileErr:    errWriteFailed,
			rpcErr:     aria2rpc.ErrUnauthorized,
			result:     AllFailed,
			fileCalls:  1,
			rpcCalls:   1,
			fileStatus: StatusFailed,
			rpcStatus:  StatusFailed,
		},
		{
			name:       "hybrid without rpc",
			mode:       ModeHybrid,
			noRPC:      true,
			result:     AllSucceeded,
			fileCalls:  1,
			fileStatus: StatusSucceeded,
			rpcStatus:  StatusSkipped,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()

			file := &mockApplier{err: test.fileErr}
			rpc := &mockApplier{err: test.rpcErr}

			cfg := Config{
				Mode:             test.mode,
				File:             file,
				RPC:              rpc,
				FallbackToConfig: test.fallback,
			}
			if test.noRPC {
				cfg.RPC = nil
			}

			outcome := New(cfg).Run(context.Background(), testTrackers)
			require.Equal(t, test.result, outcome.Result)
			require.Equal(t, test.mode, outcome.Mode)
			require.Equal(t, test.fileCalls, file.numCalls())
			require.Equal(t, test.rpcCalls, rpc.numCalls())

			fileOutcome, ok := outcome.Channel(ChannelFile)
			if ok {
				require.Equal(t, test.fileStatus, fileOutcome.Status)
			} else {
				require.Equal(t, StatusSkipped, test.fileStatus)
			}

			rpcOutcome, ok := outcome.Channel(ChannelRPC)
			if ok {
				require.Equal(t, test.rpcStatus, rpcOutcome.Status)
			} else {
				require.Equal(t, StatusSkipped, test.rpcStatus)
			}

			if test.rpcErr != nil && test.rpcCalls > 0 {
				require.ErrorIs(t, rpcOutcome.Err, test.rpcErr)
			}
			if test.noRPC && test.mode == ModeRPC {
				require.ErrorIs(t, rpcOutcome.Err, ErrRPCDisabled)
			}
			if test.mode == ModeRPC && test.fileCalls > 0 {
				require.True(t, fileOutcome.Fallback)
			}

			for _, call := range file.calls {
				require.Equal(t, testTrackers, call)
			}
			for _, call := range rpc.calls {
				require.Equal(t, testTrackers, call)
			}
		})
	}
}

// TestRunProperties checks the fallback rule and the result summary over
// every combination of channel behaviour.
func TestRunProperties(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(t *rapid.T) {
		mode := rapid.SampledFrom(
			[]Mode{ModeConfig, ModeRPC, ModeHybrid},
		).Draw(t, "mode")
		fileFails := rapid.Bool().Draw(t, "fileFails")
		rpcFails := rapid.Bool().Draw(t, "rpcFails")
		rpcEnabled := rapid.Bool().Draw(t, "rpcEnabled")
		fallback := rapid.Bool().Draw(t, "fallback")

		file := &mockApplier{}
		if fileFails {
			file.err = errWriteFailed
		}
		rpc := &mockApplier{}
		if rpcFails {
			rpc.err = aria2rpc.ErrUnauthorized
		}

		cfg := Config{Mode: mode, File: file, FallbackToConfig: fallback}
		if rpcEnabled {
			cfg.RPC = rpc
		}

		outcome := New(cfg).Run(context.Background(), testTrackers)

		var succeeded, failedCount int
		for _, c := range outcome.Channels {
			switch c.Status {
			case StatusSucceeded:
				succeeded++
			case StatusFailed:
				failedCount++
				require.Error(t, c.Err)
			}
		}

		switch outcome.Result {
		case AllSucceeded:
			require.Positive(t, succeeded)
			require.Zero(t, failedCount)
		case PartialSuccess:
			require.Positive(t, succeeded)
			require.Positive(t, failedCount)
		case AllFailed:
			require.Zero(t, succeeded)
		}

		// The file is only written in rpc mode when the rpc channel
		// failed and fallback is allowed.
		if mode == ModeRPC {
			rpcFailed := !rpcEnabled || rpcFails
			expected := 0
			if rpcFailed && fallback {
				expected = 1
			}
			require.Equal(t, expected, file.numCalls())
		} else {
			require.Equal(t, 1, file.numCalls())
		}

		// Config mode never reaches for rpc.
		if mode == ModeConfig {
			require.Zero(t, rpc.numCalls())
		}
	})
}
