package tucfg

import "fmt"

// DefaultFetchWorkers is the default maximum number of tracker sources that
// are downloaded at the same time.
const DefaultFetchWorkers = 4

// Workers exposes configuration for the resources consumed by concurrent
// source downloads.
type Workers struct {
	// Fetch is the maximum number of concurrent source downloads.
	Fetch int `json:"fetch_workers" yaml:"fetch_workers"`
}

// Validate checks that every worker count is positive.
func (w *Workers) Validate() error {
	if w.Fetch <= 0 {
		return fmt.Errorf("fetch_workers must be positive, got %d",
			w.Fetch)
	}

	return nil
}
