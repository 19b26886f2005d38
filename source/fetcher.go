package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aria2tools/trackerup/build"
	"github.com/aria2tools/trackerup/tracker"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/lightningnetwork/lnd/fn/v2"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultMaxBodySize is the largest tracker list accepted, in bytes.
	DefaultMaxBodySize = 8 << 20

	// DefaultWorkers is the number of sources downloaded concurrently when
	// the config does not say otherwise.
	DefaultWorkers = 4
)

// Descriptor names one remote tracker list together with the retry policy
// used to download it. Descriptors are built once per run from the
// configuration and never modified.
type Descriptor struct {
	// URL is the http(s) location of the list.
	URL string

	// Timeout bounds every single attempt.
	Timeout time.Duration

	// MaxRetries is the number of attempts made after the first one.
	MaxRetries int

	// Backoff is the wait before the first retry. Each later wait doubles.
	Backoff time.Duration

	// MaxBackoff caps the wait between attempts. Zero means uncapped.
	MaxBackoff time.Duration
}

// Policy is the retry policy shared by every source of a run.
type Policy struct {
	Timeout    time.Duration
	MaxRetries int
	Backoff    time.Duration
	MaxBackoff time.Duration
}

// NewDescriptors builds one descriptor per url, in order, all sharing the
// given policy.
func NewDescriptors(urls []string, policy Policy) []Descriptor {
	descs := make([]Descriptor, 0, len(urls))
	for _, url := range urls {
		descs = append(descs, Descriptor{
			URL:        url,
			Timeout:    policy.Timeout,
			MaxRetries: policy.MaxRetries,
			Backoff:    policy.Backoff,
			MaxBackoff: policy.MaxBackoff,
		})
	}

	return descs
}

// Attempts returns the total number of requests the descriptor allows.
func (d Descriptor) Attempts() int {
	if d.MaxRetries < 0 {
		return 1
	}

	return d.MaxRetries + 1
}

// backoffBefore returns the wait before the given zero based attempt.
func (d Descriptor) backoffBefore(attempt int) time.Duration {
	if attempt == 0 || d.Backoff <= 0 {
		return 0
	}

	wait := d.Backoff
	for i := 1; i < attempt; i++ {
		wait *= 2
		if d.MaxBackoff > 0 && wait >= d.MaxBackoff {
			return d.MaxBackoff
		}
	}

	if d.MaxBackoff > 0 && wait > d.MaxBackoff {
		return d.MaxBackoff
	}

	return wait
}

// Budget is the longest time Fetch can take for the descriptor: every attempt
// timing out plus every backoff wait.
func (d Descriptor) Budget() time.Duration {
	total := time.Duration(d.Attempts()) * d.Timeout
	for attempt := 1; attempt < d.Attempts(); attempt++ {
		total += d.backoffBefore(attempt)
	}

	return total
}

// Config holds the dependencies of a Fetcher.
type Config struct {
	// Client performs the requests. http.DefaultClient is used when nil.
	Client *http.Client

	// Clock drives the backoff waits.
	Clock clock.Clock

	// Workers bounds the number of concurrent downloads in FetchAll.
	Workers int

	// MaxBodySize is the largest list accepted, in bytes.
	MaxBodySize int64

	// UserAgent is sent with every request.
	UserAgent string
}

// Fetcher downloads tracker lists.
type Fetcher struct {
	cfg Config
}

// New creates a Fetcher, filling in defaults for unset fields.
func New(cfg Config) *Fetcher {
	if cfg.Client == nil {
		cfg.Client = http.DefaultClient
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.NewDefaultClock()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.MaxBodySize <= 0 {
		cfg.MaxBodySize = DefaultMaxBodySize
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = build.UserAgent()
	}

	return &Fetcher{cfg: cfg}
}

// Fetch downloads one list, retrying transient failures with a growing
// backoff, and returns its candidate lines with blanks and comments removed.
// Once the attempts are exhausted a *FetchError is returned.
func (f *Fetcher) Fetch(ctx context.Context, desc Descriptor) ([]string,
	error) {

	if desc.URL == "" {
		return nil, &FetchError{Err: ErrNoURL}
	}

	attempts := desc.Attempts()

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if wait := desc.backoffBefore(attempt); wait > 0 {
			log.Debugf("Waiting %v before retrying %s", wait,
				desc.URL)

			select {
			case <-f.cfg.Clock.TickAfter(wait):
			case <-ctx.Done():
				return nil, &FetchError{
					URL:      desc.URL,
					Attempts: attempt,
					Err:      ctx.Err(),
				}
			}
		}

		log.Infof("Fetching %s (attempt %d/%d)", desc.URL, attempt+1,
			attempts)

		lines, err := f.fetchOnce(ctx, desc)
		if err == nil {
			log.Infof("Fetched %d candidate line(s) from %s",
				len(lines), desc.URL)

			return lines, nil
		}
		lastErr = err

		if !retryable(ctx, err) {
			log.Warnf("Giving up on %s (attempt %d/%d): %v",
				desc.URL, attempt+1, attempts, err)

			return nil, &FetchError{
				URL:      desc.URL,
				Attempts: attempt + 1,
				Err:      err,
			}
		}

		log.Warnf("Attempt %d/%d for %s failed: %v", attempt+1,
			attempts, desc.URL, err)
	}

	log.Errorf("All %d attempt(s) failed, skipping source %s: %v",
		attempts, desc.URL, lastErr)

	return nil, &FetchError{
		URL:      desc.URL,
		Attempts: attempts,
		Err:      lastErr,
	}
}

// fetchOnce performs a single bounded request.
func (f *Fetcher) fetchOnce(ctx context.Context, desc Descriptor) ([]string,
	error) {

	if desc.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, desc.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(
		ctx, http.MethodGet, desc.URL, nil,
	)
	if err != nil {
		return nil, fmt.Errorf("unable to build request: %w", err)
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)
	req.Header.Set("Accept", "text/plain, */*")

	resp, err := f.cfg.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain a little so the connection can be reused.
		_, _ = io.CopyN(io.Discard, resp.Body, 4096)

		return nil, &StatusError{StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.cfg.MaxBodySize+1))
	if err != nil {
		return nil, fmt.Errorf("unable to read body: %w", err)
	}
	if int64(len(body)) > f.cfg.MaxBodySize {
		return nil, fmt.Errorf("%w: limit is %d bytes", ErrBodyTooLarge,
			f.cfg.MaxBodySize)
	}

	return ParseLines(string(body)), nil
}

// FetchAll downloads every source with at most Workers requests in flight.
// The results are returned in the order of descs and a failing source never
// affects another.
func (f *Fetcher) FetchAll(ctx context.Context,
	descs []Descriptor) []tracker.SourceResult {

	results := make([]tracker.SourceResult, len(descs))

	var g errgroup.Group
	g.SetLimit(f.cfg.Workers)

	for i, desc := range descs {
		g.Go(func() error {
			lines, err := f.Fetch(ctx, desc)
			if err != nil {
				results[i] = tracker.SourceResult{
					URL:   desc.URL,
					Lines: fn.Err[[]string](err),
				}

				return nil
			}

			results[i] = tracker.SourceResult{
				URL:   desc.URL,
				Lines: fn.Ok(lines),
			}

			return nil
		})
	}

	// Failures are carried inside the results, so Wait never reports one.
	_ = g.Wait()

	return results
}

// ParseLines splits a tracker list body into candidate lines, dropping blank
// lines and comments. Validation is left to the caller.
func ParseLines(body string) []string {
	raw := strings.Split(body, "\n")

	lines := make([]string, 0, len(raw))
	for _, line := range raw {
		line = tracker.Normalize(line)
		if line == "" || tracker.IsComment(line) {
			continue
		}
		lines = append(lines, line)
	}

	return lines
}

// retryable reports whether another attempt may succeed after err.
func retryable(ctx context.Context, err error) bool {
	// The run itself is being torn down.
	if ctx.Err() != nil {
		return false
	}

	if errors.Is(err, ErrBodyTooLarge) {
		return false
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Transient()
	}

	// Network errors, per attempt timeouts and truncated bodies.
	return true
}
