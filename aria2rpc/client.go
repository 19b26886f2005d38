package aria2rpc

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aria2tools/trackerup/build"
	"github.com/aria2tools/trackerup/tracker"
	"github.com/aria2tools/trackerup/tucfg"
	"github.com/decred/dcrd/dcrjson/v4"
	"github.com/google/uuid"
)

const (
	// jsonrpcVersion is the protocol version aria2 speaks.
	jsonrpcVersion = "2.0"

	// maxResponseSize bounds the body read from aria2. getGlobalOption
	// with a long tracker list is the largest answer we expect.
	maxResponseSize = 16 << 20

	// unauthorizedMessage is the error message aria2 returns when the
	// token does not match --rpc-secret.
	unauthorizedMessage = "Unauthorized"

	// trackerOption is the global option holding the tracker list.
	trackerOption = "bt-tracker"
)

// errEmptyResponse is used when a response carries neither a result nor an
// error.
var errEmptyResponse = errors.New("response has neither result nor error")

// aria2 method names.
const (
	methodGetVersion         = "aria2.getVersion"
	methodGetGlobalOption    = "aria2.getGlobalOption"
	methodChangeGlobalOption = "aria2.changeGlobalOption"
)

// Config describes how to reach an aria2 instance.
type Config struct {
	// URL is the JSON-RPC endpoint. A missing /jsonrpc path is added.
	URL string

	// Secret is aria2's --rpc-secret. When empty no token is sent.
	Secret string

	// Timeout bounds every call.
	Timeout time.Duration

	// VerifySSL enables TLS certificate verification for https URLs.
	VerifySSL bool

	// HTTPClient overrides the client built from the fields above. It is
	// mostly useful in tests.
	HTTPClient *http.Client
}

// Client is a minimal aria2 JSON-RPC client covering the calls needed to
// inspect and replace the global tracker list.
type Client struct {
	url     string
	secret  string
	timeout time.Duration
	http    *http.Client
}

// New creates a client for the endpoint described by cfg.
func New(cfg Config) (*Client, error) {
	url, err := tucfg.NormalizeRPCURL(cfg.URL)
	if err != nil {
		return nil, err
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		if !cfg.VerifySSL {
			transport.TLSClientConfig = &tls.Config{
				InsecureSkipVerify: true, //nolint:gosec
			}
		}
		httpClient = &http.Client{Transport: transport}
	}

	return &Client{
		url:     url,
		secret:  cfg.Secret,
		timeout: cfg.Timeout,
		http:    httpClient,
	}, nil
}

// URL returns the normalized endpoint the client talks to.
func (c *Client) URL() string {
	return c.url
}

// rawResponse is the subset of a JSON-RPC response the client looks at.
type rawResponse struct {
	Result json.RawMessage   `json:"result"`
	Error  *dcrjson.RPCError `json:"error"`
}

// call performs a single JSON-RPC call. The secret token, when configured, is
// sent as the first positional parameter as aria2 expects.
func (c *Client) call(ctx context.Context, method string,
	params ...interface{}) (json.RawMessage, error) {

	if c.secret != "" {
		params = append([]interface{}{"token:" + c.secret}, params...)
	}

	// Marshal parameters as "[]" instead of "null" when there are none.
	rawParams := make([]json.RawMessage, 0, len(params))
	for _, param := range params {
		raw, err := json.Marshal(param)
		if err != nil {
			return nil, fmt.Errorf("unable to marshal %s params: %w",
				method, err)
		}
		rawParams = append(rawParams, raw)
	}

	id := uuid.NewString()
	request := &dcrjson.Request{
		Jsonrpc: jsonrpcVersion,
		ID:      id,
		Method:  method,
		Params:  rawParams,
	}
	body, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("unable to marshal %s request: %w",
			method, err)
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	httpReq, err := http.NewRequestWithContext(
		ctx, http.MethodPost, c.url, bytes.NewReader(body),
	)
	if err != nil {
		return nil, &TransportError{URL: c.url, Method: method, Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("User-Agent", build.UserAgent())

	log.Debugf("Calling %s at %s (id=%s)", method, c.url, id)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, &TransportError{URL: c.url, Method: method, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, &TransportError{URL: c.url, Method: method, Err: err}
	}

	return decodeResponse(method, resp.StatusCode, respBody)
}

// decodeResponse classifies an HTTP answer from aria2. aria2 reports call
// errors with a JSON-RPC error object and a 400 status, so the body is
// inspected before the status.
func decodeResponse(method string, status int,
	body []byte) (json.RawMessage, error) {

	var resp rawResponse
	decodeErr := json.Unmarshal(body, &resp)

	switch {
	case decodeErr == nil && resp.Error != nil:
		rpcErr := &ProtocolError{
			Method:     method,
			StatusCode: status,
			Code:       int(resp.Error.Code),
			Message:    resp.Error.Message,
		}
		if strings.EqualFold(resp.Error.Message, unauthorizedMessage) {
			rpcErr.Err = ErrUnauthorized
		}

		return nil, rpcErr

	case status == http.StatusUnauthorized:
		return nil, &ProtocolError{
			Method:     method,
			StatusCode: status,
			Err:        ErrUnauthorized,
		}

	case status != http.StatusOK:
		return nil, &ProtocolError{Method: method, StatusCode: status}

	case decodeErr != nil:
		return nil, &ProtocolError{
			Method:     method,
			StatusCode: status,
			Err:        decodeErr,
		}

	case len(resp.Result) == 0:
		return nil, &ProtocolError{
			Method:     method,
			StatusCode: status,
			Err:        errEmptyResponse,
		}
	}

	return resp.Result, nil
}

// VersionInfo is the answer to aria2.getVersion.
type VersionInfo struct {
	// Version is aria2's version string.
	Version string `json:"version"`

	// EnabledFeatures lists the features aria2 was built with.
	EnabledFeatures []string `json:"enabledFeatures"`
}

// GetVersion calls aria2.getVersion.
func (c *Client) GetVersion(ctx context.Context) (*VersionInfo, error) {
	result, err := c.call(ctx, methodGetVersion)
	if err != nil {
		return nil, err
	}

	var info VersionInfo
	if err := json.Unmarshal(result, &info); err != nil {
		return nil, &ProtocolError{
			Method: methodGetVersion, StatusCode: http.StatusOK, Err: err,
		}
	}

	return &info, nil
}

// GetGlobalOption calls aria2.getGlobalOption and returns every global option.
func (c *Client) GetGlobalOption(ctx context.Context) (map[string]string,
	error) {

	result, err := c.call(ctx, methodGetGlobalOption)
	if err != nil {
		return nil, err
	}

	var options map[string]string
	if err := json.Unmarshal(result, &options); err != nil {
		return nil, &ProtocolError{
			Method:     methodGetGlobalOption,
			StatusCode: http.StatusOK,
			Err:        err,
		}
	}

	return options, nil
}

// ChangeGlobalOption calls aria2.changeGlobalOption with options. aria2
// answers "OK" on success.
func (c *Client) ChangeGlobalOption(ctx context.Context,
	options map[string]string) error {

	result, err := c.call(ctx, methodChangeGlobalOption, options)
	if err != nil {
		return err
	}

	var ack string
	if err := json.Unmarshal(result, &ack); err != nil || ack != "OK" {
		if err == nil {
			err = fmt.Errorf("unexpected result %s", result)
		}

		return &ProtocolError{
			Method:     methodChangeGlobalOption,
			StatusCode: http.StatusOK,
			Err:        err,
		}
	}

	return nil
}

// GetTrackers returns the live bt-tracker list, in order.
func (c *Client) GetTrackers(ctx context.Context) ([]string, error) {
	options, err := c.GetGlobalOption(ctx)
	if err != nil {
		return nil, err
	}

	return tracker.SplitList(options[trackerOption]), nil
}

// SetTrackers replaces the live bt-tracker option with trackers.
func (c *Client) SetTrackers(ctx context.Context, trackers []string) error {
	if len(trackers) == 0 {
		return ErrNoTrackers
	}

	log.Infof("Updating bt-tracker over RPC with %d tracker(s)",
		len(trackers))

	err := c.ChangeGlobalOption(ctx, map[string]string{
		trackerOption: strings.Join(trackers, ","),
	})
	if err != nil {
		return err
	}

	log.Infof("aria2 at %s accepted the new tracker list", c.url)

	return nil
}

// ConnectionStatus is the result of a read-only connectivity check.
type ConnectionStatus struct {
	// URL is the endpoint that was checked.
	URL string

	// Version is the aria2 version.
	Version string

	// EnabledFeatures lists the features aria2 was built with.
	EnabledFeatures []string

	// Trackers is the number of trackers in the live bt-tracker option.
	Trackers int
}

// TestConnection checks that aria2 is reachable and the secret is accepted
// without changing any state.
func (c *Client) TestConnection(ctx context.Context) (*ConnectionStatus,
	error) {

	info, err := c.GetVersion(ctx)
	if err != nil {
		return nil, err
	}
	log.Infof("Connected to aria2 %s at %s", info.Version, c.url)

	trackers, err := c.GetTrackers(ctx)
	if err != nil {
		return nil, err
	}

	return &ConnectionStatus{
		URL:             c.url,
		Version:         info.Version,
		EnabledFeatures: info.EnabledFeatures,
		Trackers:        len(trackers),
	}, nil
}

// ErrorKind names the class of an RPC failure for logs and reports: one of
// "unauthorized", "protocol", "transport" or "other".
func ErrorKind(err error) string {
	var (
		protoErr     *ProtocolError
		transportErr *TransportError
	)
	switch {
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"

	case errors.As(err, &protoErr):
		return "protocol"

	case errors.As(err, &transportErr):
		return "transport"

	default:
		return "other"
	}
}
