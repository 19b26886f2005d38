package tucfg

import (
	"fmt"
	"net/url"
	"strings"
)

const (
	// DefaultRPCURL is aria2's default JSON-RPC endpoint.
	DefaultRPCURL = "http://localhost:6800/jsonrpc"

	// DefaultRPCTimeout bounds each JSON-RPC round trip.
	DefaultRPCTimeout Seconds = 10

	// rpcPath is the path aria2 serves JSON-RPC on.
	rpcPath = "/jsonrpc"
)

// RPC holds the options for reaching aria2's JSON-RPC interface.
type RPC struct {
	// Enabled turns the RPC channel on.
	Enabled bool `json:"enabled" yaml:"enabled"`

	// URL is the JSON-RPC endpoint.
	URL string `json:"url" yaml:"url"`

	// Secret is the value of aria2's --rpc-secret. An empty secret means
	// no token is sent.
	Secret string `json:"secret" yaml:"secret"`

	// Timeout bounds each call.
	Timeout Seconds `json:"timeout" yaml:"timeout"`

	// VerifySSL controls TLS certificate verification for https URLs.
	VerifySSL bool `json:"verify_ssl" yaml:"verify_ssl"`
}

// DefaultRPC returns the RPC options used when the document has none.
func DefaultRPC() RPC {
	return RPC{
		Enabled:   false,
		URL:       DefaultRPCURL,
		Timeout:   DefaultRPCTimeout,
		VerifySSL: true,
	}
}

// Validate checks the RPC options. A disabled RPC section is always valid.
func (r *RPC) Validate() error {
	if !r.Enabled {
		return nil
	}

	if r.Timeout <= 0 {
		return fmt.Errorf("rpc.timeout must be positive, got %v",
			float64(r.Timeout))
	}

	normalized, err := NormalizeRPCURL(r.URL)
	if err != nil {
		return err
	}
	r.URL = normalized

	return nil
}

// NormalizeRPCURL validates an aria2 RPC URL and appends the /jsonrpc path
// when it is missing.
func NormalizeRPCURL(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("invalid rpc.url %q: %w", raw, err)
	}

	switch u.Scheme {
	case "http", "https":
	default:
		return "", fmt.Errorf("invalid rpc.url %q: scheme must be "+
			"http or https", raw)
	}

	if u.Host == "" {
		return "", fmt.Errorf("invalid rpc.url %q: missing host", raw)
	}

	if !strings.HasSuffix(u.Path, rpcPath) {
		u.Path = strings.TrimSuffix(u.Path, "/") + rpcPath
	}

	return u.String(), nil
}
