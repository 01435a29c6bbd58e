package hmr

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	ferrors "git.home.luguber.info/inful/bundledev/internal/foundation/errors"
	"git.home.luguber.info/inful/bundledev/internal/logfields"
)

// Client subscribes to a hub's SSE stream and applies every notification to
// a Runtime. It is the Go counterpart of the browser script, used by the
// listen command and by tests.
type Client struct {
	baseURL    string
	httpClient *http.Client
	runtime    *Runtime
	onResult   func(Notification, Result)
	logger     *slog.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces http.DefaultClient.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(cl *Client) { cl.httpClient = c }
}

// OnResult registers a callback run after each applied notification.
func OnResult(fn func(Notification, Result)) ClientOption {
	return func(cl *Client) { cl.onResult = fn }
}

// WithLogger sets the client logger.
func WithLogger(l *slog.Logger) ClientOption {
	return func(cl *Client) { cl.logger = l }
}

// NewClient returns a client for the development server at baseURL
// (scheme://host:port).
func NewClient(baseURL string, rt *Runtime, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: http.DefaultClient,
		runtime:    rt,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run consumes the stream until ctx is canceled (returns nil) or the
// connection ends (returns an hmr error).
func (c *Client) Run(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+EndpointPath, nil)
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryHMR, "build stream request").Build()
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return ferrors.WrapError(err, ferrors.CategoryHMR, "connect to update stream").
			WithContext("url", req.URL.String()).
			Build()
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return ferrors.HMRError("update stream unavailable").
			WithContext("status", resp.StatusCode).
			Build()
	}

	err = c.consume(resp.Body)
	if ctx.Err() != nil {
		return nil
	}
	if err == nil {
		err = io.ErrUnexpectedEOF
	}
	return ferrors.WrapError(err, ferrors.CategoryHMR, "update stream closed").Build()
}

func (c *Client) consume(r io.Reader) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var data strings.Builder
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if data.Len() > 0 {
				c.dispatch(data.String())
				data.Reset()
			}
		case strings.HasPrefix(line, ":"):
			// comment / heartbeat
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
	return scanner.Err()
}

func (c *Client) dispatch(payload string) {
	n, err := Decode([]byte(payload))
	if err != nil {
		c.logger.Warn("Ignoring malformed notification", logfields.Error(err))
		return
	}
	res := c.runtime.Apply(n)
	if c.onResult != nil {
		c.onResult(n, res)
	}
}

// HTTPLoader returns a Loader fetching module sources from the development
// server's module endpoint.
func HTTPLoader(baseURL string, client *http.Client) Loader {
	if client == nil {
		client = http.DefaultClient
	}
	baseURL = strings.TrimRight(baseURL, "/")
	return func(id, hash string) ([]byte, error) {
		u := baseURL + ModulePathBase + escapeModuleID(id)
		if hash != "" {
			u += "?t=" + url.QueryEscape(hash)
		}
		resp, err := client.Get(u) //nolint:noctx // loader signature carries no context
		if err != nil {
			return nil, err
		}
		defer func() { _ = resp.Body.Close() }()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("module %s: %s", id, resp.Status)
		}
		return io.ReadAll(resp.Body)
	}
}

func escapeModuleID(id string) string {
	parts := strings.Split(id, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}

// IsStreamClosed reports whether err came from the server ending the stream.
func IsStreamClosed(err error) bool {
	return errors.Is(err, io.ErrUnexpectedEOF)
}
