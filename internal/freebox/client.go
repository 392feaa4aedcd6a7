package freebox

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/valyala/bytebufferpool"
)

const (
	DefaultBaseURL      = "http://mafreebox.freebox.fr"
	DefaultTimeout      = 5 * time.Second
	DefaultReceiverName = "Freebox Player"

	authHeader = "X-Fbx-App-Auth"
)

// Client talks to a single Freebox. It owns the discovered descriptor and the
// credential fields; concurrent auth flows on one Client are last-writer-wins.
type Client struct {
	baseURL      string
	timeout      time.Duration
	receiverName string
	useHTTPS     bool
	httpClient   *http.Client
	logger       zerolog.Logger

	mu            sync.RWMutex
	descriptor    *DeviceDescriptor
	apiURL        string
	appToken      string
	trackID       int
	authStatus    AuthorizationStatus
	sessionToken  string
	sessionClosed bool
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the discovery address.
func WithBaseURL(base string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(base, "/")
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithReceiverName selects the AirMedia receiver used for playback.
func WithReceiverName(name string) Option {
	return func(c *Client) {
		if name != "" {
			c.receiverName = name
		}
	}
}

// WithHTTPS builds API calls against the box's HTTPS endpoint when the
// descriptor advertises one.
func WithHTTPS(enabled bool) Option {
	return func(c *Client) {
		c.useHTTPS = enabled
	}
}

// WithLogger attaches a logger. The default discards everything.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates a Client in the Unknown state.
func NewClient(opts ...Option) *Client {
	c := &Client{
		baseURL:      DefaultBaseURL,
		timeout:      DefaultTimeout,
		receiverName: DefaultReceiverName,
		httpClient:   &http.Client{},
		logger:       zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ReceiverName returns the receiver targeted by StartPlayback and StopPlayback.
func (c *Client) ReceiverName() string {
	return c.receiverName
}

// Descriptor returns a copy of the cached descriptor, or nil before Discover.
func (c *Client) Descriptor() *DeviceDescriptor {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.descriptor == nil {
		return nil
	}
	d := *c.descriptor
	return &d
}

// TrackID returns the pending authorization id, or 0 when none was requested.
func (c *Client) TrackID() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.trackID
}

// Discover queries the unauthenticated /api_version endpoint and caches the
// descriptor for every later call.
func (c *Client) Discover(ctx context.Context) (*DeviceDescriptor, error) {
	const op = "discover"

	body, status, err := c.send(ctx, op, http.MethodGet, c.baseURL+"/api_version", nil, "")
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDeviceNotFound, err)
	}
	if status < 200 || status > 299 {
		return nil, fmt.Errorf("%w: %w", ErrDeviceNotFound,
			&TransportError{Op: op, StatusCode: status, Err: errors.New(http.StatusText(status))})
	}

	var desc DeviceDescriptor
	if err := json.Unmarshal(body, &desc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDeviceNotFound, malformed(op, err))
	}
	major, err := majorVersion(desc.APIVersion)
	if err != nil || desc.APIBaseURL == "" {
		if err == nil {
			err = errors.New("missing api_base_url")
		}
		return nil, fmt.Errorf("%w: %w", ErrDeviceNotFound, malformed(op, err))
	}

	apiURL := c.baseURL + desc.APIBaseURL + "v" + major + "/"
	if c.useHTTPS && desc.HTTPSAvailable && desc.APIDomain != "" && desc.HTTPSPort > 0 {
		apiURL = fmt.Sprintf("https://%s:%d%sv%s/", desc.APIDomain, desc.HTTPSPort, desc.APIBaseURL, major)
	}

	c.mu.Lock()
	c.descriptor = &desc
	c.apiURL = apiURL
	c.mu.Unlock()

	c.logger.Info().
		Str("uid", desc.UID).
		Str("device_name", desc.DeviceName).
		Str("api_version", desc.APIVersion).
		Msg("freebox discovered")

	d := desc
	return &d, nil
}

func majorVersion(version string) (string, error) {
	major, _, _ := strings.Cut(version, ".")
	if major == "" {
		return "", fmt.Errorf("invalid api_version %q", version)
	}
	for _, r := range major {
		if r < '0' || r > '9' {
			return "", fmt.Errorf("invalid api_version %q", version)
		}
	}
	return major, nil
}

// endpoint returns the absolute URL of an API path, or a precondition error
// when Discover has not succeeded yet.
func (c *Client) endpoint(op, path string) (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.apiURL == "" {
		return "", &PreconditionError{Op: op, Missing: "no device descriptor, run discover first"}
	}
	return c.apiURL + path, nil
}

// call performs one request and decodes the envelope. A nil error means
// success=true; result is left raw for the caller.
func (c *Client) call(ctx context.Context, op, method, path string, payload any, session string) (json.RawMessage, error) {
	target, err := c.endpoint(op, path)
	if err != nil {
		return nil, err
	}

	body, status, err := c.send(ctx, op, method, target, payload, session)
	if err != nil {
		return nil, err
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		if status < 200 || status > 299 {
			return nil, &TransportError{Op: op, StatusCode: status, Err: errors.New(http.StatusText(status))}
		}
		return nil, malformed(op, err)
	}
	if !env.Success {
		return nil, &ApplicationError{Op: op, Code: env.ErrorCode, Message: env.Msg}
	}
	return env.Result, nil
}

// send performs the HTTP exchange and returns the raw body and status code.
func (c *Client) send(ctx context.Context, op, method, target string, payload any, session string) ([]byte, int, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	// buf backs the request body and then the response read, so it goes
	// back to the pool only once the exchange is over.
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	var reqBody io.Reader
	if payload != nil {
		if err := json.NewEncoder(buf).Encode(payload); err != nil {
			return nil, 0, fmt.Errorf("encode %s request: %w", op, err)
		}
		reqBody = bytes.NewReader(buf.B)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reqBody)
	if err != nil {
		return nil, 0, &TransportError{Op: op, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if session != "" {
		req.Header.Set(authHeader, session)
	}

	c.logger.Debug().Str("op", op).Str("method", method).Str("url", target).Msg("freebox request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	resBuf := bytebufferpool.Get()
	defer bytebufferpool.Put(resBuf)
	if _, err := resBuf.ReadFrom(resp.Body); err != nil {
		return nil, resp.StatusCode, &TransportError{Op: op, StatusCode: resp.StatusCode, Err: err}
	}
	return append([]byte(nil), resBuf.B...), resp.StatusCode, nil
}

func decodeResult(op string, raw json.RawMessage, v any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return malformed(op, errors.New("missing result"))
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return malformed(op, err)
	}
	return nil
}
