// Package platform is the client for the forum platform's login and publish API.
package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/hihihowru/forum-autoposter-sub005/internal/breaker"
	"github.com/hihihowru/forum-autoposter-sub005/internal/metrics"
)

// DefaultTimeout bounds a single Platform API call
const DefaultTimeout = 30 * time.Second

// DefaultUserAgent identifies the autoposter to the platform
const DefaultUserAgent = "Mozilla/5.0 (compatible; ForumAutoposter/1.0)"

// maxErrorBody caps how much of an error response is kept in messages
const maxErrorBody = 512

// Session is a login token and its expiry
type Session struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Valid reports whether the session can still be used at now, treating anything
// within skew of expiry as expired
func (s Session) Valid(now time.Time, skew time.Duration) bool {
	if s.Token == "" {
		return false
	}
	if s.ExpiresAt.IsZero() {
		return true
	}
	return now.Add(skew).Before(s.ExpiresAt)
}

// API is the Platform API
type API interface {
	Login(ctx context.Context, credentials string) (Session, error)
	Publish(ctx context.Context, token, title, body string) (string, error)
}

// Options configures a Client
type Options struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
	// HTTPClient overrides the default client
	HTTPClient *http.Client
	Breaker    *gobreaker.CircuitBreaker
	Metrics    *metrics.Registry
}

// Client implements API over HTTP
type Client struct {
	baseURL   string
	timeout   time.Duration
	userAgent string
	http      *http.Client
	cb        *gobreaker.CircuitBreaker
	metrics   *metrics.Registry
	logger    zerolog.Logger
	now       func() time.Time
}

// NewClient creates a Platform API client
func NewClient(opts Options, logger zerolog.Logger) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, fmt.Errorf("platform base URL is required")
	}
	logger = logger.With().Str("component", "platform").Logger()
	c := &Client{
		baseURL:   strings.TrimRight(opts.BaseURL, "/"),
		timeout:   opts.Timeout,
		userAgent: opts.UserAgent,
		http:      opts.HTTPClient,
		cb:        opts.Breaker,
		metrics:   opts.Metrics,
		logger:    logger,
		now:       time.Now,
	}
	if c.timeout <= 0 {
		c.timeout = DefaultTimeout
	}
	if c.userAgent == "" {
		c.userAgent = DefaultUserAgent
	}
	if c.http == nil {
		c.http = &http.Client{}
	}
	if c.cb == nil {
		settings := breaker.DefaultSettings
		settings.IsSuccessful = func(err error) bool {
			return err == nil || errors.Is(err, ErrSessionExpired)
		}
		c.cb = breaker.New("platform", settings, logger)
	}
	return c, nil
}

type loginRequest struct {
	Account  string `json:"account"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

type publishRequest struct {
	Title string `json:"title"`
	Text  string `json:"text"`
}

type publishResponse struct {
	ArticleID string `json:"article_id"`
}

// SplitCredentials parses an "account:password" credential cell
func SplitCredentials(credentials string) (account, password string, err error) {
	account, password, ok := strings.Cut(strings.TrimSpace(credentials), ":")
	if !ok || account == "" || password == "" {
		return "", "", &CredentialsError{Message: `expected "account:password"`}
	}
	return account, password, nil
}

// Login exchanges persona credentials for a session
func (c *Client) Login(ctx context.Context, credentials string) (Session, error) {
	account, password, err := SplitCredentials(credentials)
	if err != nil {
		return Session{}, &PublishError{Op: "login", Message: "bad credentials cell", Cause: err}
	}

	var out loginResponse
	if err := c.call(ctx, "login", "/auth/login", "", loginRequest{Account: account, Password: password}, &out); err != nil {
		return Session{}, err
	}
	if out.AccessToken == "" {
		return Session{}, &PublishError{Op: "login", Message: "empty access token"}
	}

	s := Session{Token: out.AccessToken}
	if out.ExpiresIn > 0 {
		s.ExpiresAt = c.now().Add(time.Duration(out.ExpiresIn) * time.Second).UTC()
	}
	return s, nil
}

// Publish posts an article and returns the platform's post id. A rejected token is
// reported as ErrSessionExpired.
func (c *Client) Publish(ctx context.Context, token, title, body string) (string, error) {
	var out publishResponse
	if err := c.call(ctx, "publish", "/articles", token, publishRequest{Title: title, Text: body}, &out); err != nil {
		return "", err
	}
	if out.ArticleID == "" {
		return "", &PublishError{Op: "publish", Message: "response has no article id"}
	}
	return out.ArticleID, nil
}

func (c *Client) call(ctx context.Context, op, path, token string, in, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	_, err := c.cb.Execute(func() (interface{}, error) {
		return nil, c.do(ctx, op, path, token, in, out)
	})
	c.metrics.ObserveCall("platform", op, start, err)

	if breaker.IsOpen(err) {
		return &PublishError{Op: op, Message: "circuit open", Cause: err}
	}
	return err
}

func (c *Client) do(ctx context.Context, op, path, token string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return &PublishError{Op: op, Message: "failed to encode request", Cause: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return &PublishError{Op: op, Message: "failed to create request", Cause: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &PublishError{
			Op:      op,
			Message: "request failed",
			Timeout: errors.Is(err, context.DeadlineExceeded) || isTimeout(err),
			Cause:   err,
		}
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &PublishError{
			Op:         op,
			StatusCode: resp.StatusCode,
			Message:    "failed to read response",
			Timeout:    errors.Is(err, context.DeadlineExceeded),
			Cause:      err,
		}
	}

	if resp.StatusCode == http.StatusUnauthorized && token != "" {
		return ErrSessionExpired
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &PublishError{Op: op, StatusCode: resp.StatusCode, Message: truncate(strings.TrimSpace(string(data)), maxErrorBody)}
	}

	if err := json.Unmarshal(data, out); err != nil {
		return &PublishError{Op: op, StatusCode: resp.StatusCode, Message: "failed to decode response", Cause: err}
	}
	return nil
}

func isTimeout(err error) bool {
	var te interface{ Timeout() bool }
	return errors.As(err, &te) && te.Timeout()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
