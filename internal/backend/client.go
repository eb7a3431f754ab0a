// Package backend is the HTTP client for the duplicate backend REST API.
package backend

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/eargollo/reclaim/internal/media"
)

// HTTPDoer abstracts http.Client.Do for testing.
type HTTPDoer interface {
	Do(*http.Request) (*http.Response, error)
}

// APIError is a non-2xx response from the backend. Message holds the
// backend's "error" field when the body carried one.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backend returned HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("backend returned HTTP %d: %s", e.StatusCode, e.Message)
}

// ErrorMessage returns the backend-provided message carried by err, or ""
// when err is not an APIError or the backend sent no message.
func ErrorMessage(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	return ""
}

// ServerInfo describes the media server behind the backend.
type ServerInfo struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Client talks to the backend. It is safe for concurrent use.
type Client struct {
	base *url.URL
	http HTTPDoer
}

// Option customises Client construction.
type Option func(*clientOptions)

type clientOptions struct {
	doer        HTTPDoer
	timeout     time.Duration
	insecureTLS bool
}

// WithHTTPClient overrides the HTTP client (used in tests).
func WithHTTPClient(doer HTTPDoer) Option {
	return func(o *clientOptions) { o.doer = doer }
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(o *clientOptions) { o.timeout = d }
}

// WithInsecureTLS disables certificate verification, for backends behind
// self-signed certificates.
func WithInsecureTLS(insecure bool) Option {
	return func(o *clientOptions) { o.insecureTLS = insecure }
}

// New builds a Client for the backend rooted at baseURL. Endpoint paths are
// resolved relative to it, so a base of "http://host/cleanarr/" works.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse backend url: %w", err)
	}
	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}

	o := clientOptions{timeout: 60 * time.Second}
	for _, opt := range opts {
		opt(&o)
	}
	doer := o.doer
	if doer == nil {
		tr := &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   30 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSClientConfig:       &tls.Config{InsecureSkipVerify: o.insecureTLS}, //nolint:gosec
			ForceAttemptHTTP2:     true,
			MaxIdleConns:          100,
			MaxIdleConnsPerHost:   32,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		}
		doer = &http.Client{Transport: tr, Timeout: o.timeout}
	}
	return &Client{base: u, http: doer}, nil
}

// BaseURL returns the normalised backend root.
func (c *Client) BaseURL() string { return c.base.String() }

// ServerInfo handles GET server/info.
func (c *Client) ServerInfo(ctx context.Context) (ServerInfo, error) {
	var info ServerInfo
	err := c.do(ctx, http.MethodGet, "server/info", nil, nil, &info)
	return info, err
}

// DeletedSizes handles GET server/deleted-sizes: library label to bytes
// reclaimed over the backend's lifetime.
func (c *Client) DeletedSizes(ctx context.Context) (map[string]int64, error) {
	sizes := map[string]int64{}
	if err := c.do(ctx, http.MethodGet, "server/deleted-sizes", nil, nil, &sizes); err != nil {
		return nil, err
	}
	return sizes, nil
}

// DupesPage handles GET content/dupes?page=N. An empty result marks the end
// of the data.
func (c *Client) DupesPage(ctx context.Context, page int) ([]media.ContentGroup, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	var groups []media.ContentGroup
	if err := c.do(ctx, http.MethodGet, "content/dupes", q, nil, &groups); err != nil {
		return nil, fmt.Errorf("dupes page %d: %w", page, err)
	}
	return groups, nil
}

// Samples handles GET content/samples.
func (c *Client) Samples(ctx context.Context) ([]media.ContentGroup, error) {
	var groups []media.ContentGroup
	if err := c.do(ctx, http.MethodGet, "content/samples", nil, nil, &groups); err != nil {
		return nil, fmt.Errorf("samples: %w", err)
	}
	return groups, nil
}

type deleteMediaRequest struct {
	LibraryName string `json:"library_name"`
	ContentKey  string `json:"content_key"`
	MediaID     int64  `json:"media_id"`
}

type contentKeyRequest struct {
	ContentKey string `json:"content_key"`
}

// DeleteMedia handles POST delete/media.
func (c *Client) DeleteMedia(ctx context.Context, library, contentKey string, mediaID int64) error {
	body := deleteMediaRequest{LibraryName: library, ContentKey: contentKey, MediaID: mediaID}
	return c.do(ctx, http.MethodPost, "delete/media", nil, body, nil)
}

// Ignore handles POST content/ignore.
func (c *Client) Ignore(ctx context.Context, contentKey string) error {
	return c.do(ctx, http.MethodPost, "content/ignore", nil, contentKeyRequest{ContentKey: contentKey}, nil)
}

// Unignore handles POST content/unignore.
func (c *Client) Unignore(ctx context.Context, contentKey string) error {
	return c.do(ctx, http.MethodPost, "content/unignore", nil, contentKeyRequest{ContentKey: contentKey}, nil)
}

func (c *Client) resolve(path string, q url.Values) string {
	u := c.base.ResolveReference(&url.URL{Path: path})
	if len(q) > 0 {
		u.RawQuery = q.Encode()
	}
	return u.String()
}

// do issues one request. Every call is attempted exactly once.
func (c *Client) do(ctx context.Context, method, path string, q url.Values, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s body: %w", path, err)
		}
		body = bytes.NewReader(payload)
	}

	rawURL := c.resolve(path, q)
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return fmt.Errorf("build request %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	slog.Debug("backend request", "method", method, "url", rawURL, "status", resp.StatusCode, "elapsed", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeAPIError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
	apiErr := &APIError{StatusCode: resp.StatusCode}
	var payload struct {
		Error json.RawMessage `json:"error"`
	}
	if json.Unmarshal(b, &payload) == nil && len(payload.Error) > 0 {
		var msg string
		if json.Unmarshal(payload.Error, &msg) == nil {
			apiErr.Message = strings.TrimSpace(msg)
		}
	}
	return apiErr
}
