package pushover

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	DefaultURL     = "https://api.pushover.net/1/messages.json"
	DefaultTimeout = 30 * time.Second

	maxErrorBody = 4 << 10
)

type Config struct {
	AppToken, UserToken string
	URL                 string
	Timeout             time.Duration
}

type Kind int

const (
	KindRequest Kind = iota
	KindHTTP
	KindConnection
	KindTimeout
)

func (k Kind) String() string {
	switch k {
	case KindHTTP:
		return "http"
	case KindConnection:
		return "connection"
	case KindTimeout:
		return "timeout"
	default:
		return "request"
	}
}

// Error is returned by Notify for any failed delivery.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("pushover %s error: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// StatusError carries a non-2xx answer from the API. Errors holds the
// messages from a JSON error response; Body is the raw response otherwise.
type StatusError struct {
	Code   int
	Errors []string
	Body   string
}

func (e *StatusError) Error() string {
	switch {
	case len(e.Errors) > 0:
		return fmt.Sprintf("unexpected status %d: %s", e.Code, strings.Join(e.Errors, "; "))
	case e.Body != "":
		return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Body)
	default:
		return fmt.Sprintf("unexpected status %d", e.Code)
	}
}

type response struct {
	Status  int
	Request string
	Errors  []string
}

type Client struct {
	config Config
	http   *http.Client
}

func New(config Config) *Client {
	if config.URL == "" {
		config.URL = DefaultURL
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	return &Client{config: config, http: &http.Client{Timeout: config.Timeout}}
}

// Notify delivers a single message. It makes exactly one attempt.
func (c *Client) Notify(ctx context.Context, title, message string) error {
	form := url.Values{
		"token":   {c.config.AppToken},
		"user":    {c.config.UserToken},
		"title":   {title},
		"message": {message},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.URL, strings.NewReader(form.Encode()))
	if err != nil {
		return &Error{Kind: KindRequest, Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return &Error{Kind: classify(err), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
		return nil
	}

	// The status alone decides the failure; the body only adds detail.
	statusErr := &StatusError{Code: resp.StatusCode}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		statusErr.Body = fmt.Sprintf("<unreadable body: %v>", err)
		return &Error{Kind: KindHTTP, Err: statusErr}
	}
	var parsed response
	if err := json.Unmarshal(body, &parsed); err == nil && len(parsed.Errors) > 0 {
		statusErr.Errors = parsed.Errors
	} else {
		statusErr.Body = strings.TrimSpace(string(body))
	}
	return &Error{Kind: KindHTTP, Err: statusErr}
}

func classify(err error) Kind {
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return KindConnection
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return KindConnection
	}
	return KindRequest
}
