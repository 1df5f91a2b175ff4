// SPDX-License-Identifier: Apache-2.0

package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/adiadia/lastseen/internal/domain"
	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
)

const defaultMaxBody = 4 << 20

// StatusError is a non-200 answer from a source.
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: status %d", e.URL, e.Code)
}

// Retryable reports whether another attempt may succeed.
func (e *StatusError) Retryable() bool {
	switch e.Code {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

type ClientConfig struct {
	// Retries after the first attempt. Retries share the caller's deadline.
	Retries   int
	BaseDelay time.Duration
	MaxDelay  time.Duration
	// MaxBodyBytes caps how much of a response is read.
	MaxBodyBytes int64
	UserAgent    string
	Transport    http.RoundTripper
}

// Client performs the GET requests of all HTTP-backed adapters.
type Client struct {
	http      *http.Client
	retry     retrypolicy.RetryPolicy[[]byte]
	maxBody   int64
	userAgent string
}

func NewClient(cfg ClientConfig) *Client {
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 200 * time.Millisecond
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 5 * time.Second
	}
	if cfg.MaxDelay < cfg.BaseDelay {
		cfg.MaxDelay = cfg.BaseDelay
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBody
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "lastseen/1.0"
	}
	transport := cfg.Transport
	if transport == nil {
		transport = &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			DialContext:         (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 60 * time.Second}).DialContext,
			MaxIdleConns:        20,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 5 * time.Second,
		}
	}

	retry := retrypolicy.NewBuilder[[]byte]().
		HandleIf(func(_ []byte, err error) bool {
			return retryable(err)
		}).
		WithBackoff(cfg.BaseDelay, cfg.MaxDelay).
		WithMaxRetries(cfg.Retries).
		WithJitterFactor(0.1).
		Build()

	return &Client{
		// deadlines come from the caller's context
		http:      &http.Client{Transport: transport},
		retry:     retry,
		maxBody:   cfg.MaxBodyBytes,
		userAgent: cfg.UserAgent,
	}
}

// Get returns the body of a 200 response. Any failure is wrapped in
// domain.ErrTransport; the URL in errors has its query stripped so credentials
// never reach logs or stored descriptions.
func (c *Client) Get(ctx context.Context, rawURL string, headers map[string]string) ([]byte, error) {
	display := redactURL(rawURL)

	body, err := failsafe.With(c.retry).WithContext(ctx).Get(func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", c.userAgent)
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, stripURL(err)
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody))
		if err != nil {
			return nil, err
		}
		if resp.StatusCode != http.StatusOK {
			return nil, &StatusError{Code: resp.StatusCode, URL: display}
		}
		return data, nil
	})
	if err != nil {
		var statusErr *StatusError
		if errors.As(err, &statusErr) {
			return nil, fmt.Errorf("%w: %v", domain.ErrTransport, statusErr)
		}
		return nil, fmt.Errorf("%w: GET %s: %v", domain.ErrTransport, display, err)
	}
	return body, nil
}

func retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Retryable()
	}
	return true
}

func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "<invalid url>"
	}
	u.RawQuery = ""
	u.User = nil
	return u.String()
}

// stripURL drops the *url.Error wrapper, whose message repeats the full URL.
func stripURL(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return urlErr.Err
	}
	return err
}
