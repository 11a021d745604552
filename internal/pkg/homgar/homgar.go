package homgar

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/anicoll/homgar-integration/internal/pkg/model"
)

const (
	DefaultBaseURL  = "https://region3.homgarus.com"
	DefaultAreaCode = "31"
	defaultTimeout  = 30 * time.Second
)

type client struct {
	baseURL  string
	areaCode string
	http     *http.Client
	limit    *rate.Limiter
	logger   *zap.Logger
	kinds    model.KindResolver
	now      func() time.Time
	store    SessionStore
	session  *sessionManager
}

type Option func(c *client)

func WithBaseURL(u string) Option {
	return func(c *client) {
		c.baseURL = u
	}
}

func WithAreaCode(code string) Option {
	return func(c *client) {
		c.areaCode = code
	}
}

func WithHTTPClient(h *http.Client) Option {
	return func(c *client) {
		c.http = h
	}
}

// WithRateLimit paces outgoing requests, every request waits on the limiter.
func WithRateLimit(l *rate.Limiter) Option {
	return func(c *client) {
		c.limit = l
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(c *client) {
		c.logger = l
	}
}

func WithKindResolver(r model.KindResolver) Option {
	return func(c *client) {
		c.kinds = r
	}
}

// WithSessionStore persists the session between process runs.
func WithSessionStore(s SessionStore) Option {
	return func(c *client) {
		c.store = s
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *client) {
		c.now = now
	}
}

// NewHTTPClient returns an instrumented client that gives up on a request after timeout.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Transport: otelhttp.NewTransport(http.DefaultTransport),
		Timeout:   timeout,
	}
}

// New returns a vendor client without a session, the first EnsureLoggedIn logs in.
func New(opts ...Option) *client {
	c := &client{
		baseURL:  DefaultBaseURL,
		areaCode: DefaultAreaCode,
		http:     NewHTTPClient(defaultTimeout),
		limit:    rate.NewLimiter(rate.Every(200*time.Millisecond), 5),
		logger:   zap.L(), // returns the global logger.
		kinds:    model.NewKindResolver(model.DefaultFlowMeterModelCodes),
		now:      time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	c.session = newSessionManager(c)
	return c
}

// request describes one vendor round trip.
type request struct {
	method string
	path   string
	query  url.Values
	body   any
	auth   bool
}

// do performs r and decodes the envelope data into out.
func (c *client) do(ctx context.Context, r request, token string, out any) error {
	if err := c.limit.Wait(ctx); err != nil {
		return &NetworkError{Path: r.path, Err: err}
	}

	u := c.baseURL + r.path
	if len(r.query) > 0 {
		u += "?" + r.query.Encode()
	}

	var body io.Reader
	if r.body != nil {
		data, err := json.Marshal(r.body)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, r.method, u, body)
	if err != nil {
		return err
	}
	req.Header.Set("lang", "en")
	req.Header.Set("appCode", "1")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if r.auth {
		req.Header.Set("auth", token)
	}

	c.logger.Debug("sending request", zap.String("method", r.method), zap.String("path", r.path))
	res, err := c.http.Do(req)
	if err != nil {
		return &NetworkError{Path: r.path, Err: err}
	}
	defer res.Body.Close()

	data, err := io.ReadAll(res.Body)
	if err != nil {
		return &NetworkError{Path: r.path, Err: err}
	}

	return decode(r.path, res.StatusCode, data, out)
}

// decode maps an HTTP answer onto out or onto the error taxonomy.
func decode(path string, status int, data []byte, out any) error {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fmt.Errorf("%w: %w", errUnauthenticated, &APIError{Path: path, StatusCode: status, Body: data})
	case status == http.StatusNotFound:
		return fmt.Errorf("%w: %w", ErrNotFound, &APIError{Path: path, StatusCode: status, Body: data})
	case status < 200 || status > 299:
		return &APIError{Path: path, StatusCode: status, Body: data}
	}

	env := envelope{}
	if err := json.Unmarshal(data, &env); err != nil || env.Code == nil {
		return &APIError{Path: path, StatusCode: status, Body: data}
	}

	switch *env.Code {
	case codeSuccess:
	case codeTokenInvalid, codeTokenExpired:
		return fmt.Errorf("%w: %w", errUnauthenticated, &APIError{Path: path, StatusCode: status, Code: *env.Code, Message: env.Msg, Body: data})
	case codeNotFound, codeHomeNotExists:
		return fmt.Errorf("%w: %w", ErrNotFound, &APIError{Path: path, StatusCode: status, Code: *env.Code, Message: env.Msg, Body: data})
	default:
		return &APIError{Path: path, StatusCode: status, Code: *env.Code, Message: env.Msg, Body: data}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return &APIError{Path: path, StatusCode: status, Message: "malformed data: " + err.Error(), Body: data}
	}
	return nil
}

// authed runs r with the current session. A rejected session triggers exactly one
// fresh login and one retry; a second rejection is reported as ErrAuth.
func (c *client) authed(ctx context.Context, r request, out any) error {
	r.auth = true
	token, err := c.session.token(ctx)
	if err != nil {
		return err
	}

	err = c.do(ctx, r, token, out)
	if !errors.Is(err, errUnauthenticated) {
		return err
	}

	c.logger.Info("session rejected, logging in again", zap.String("path", r.path), zap.Error(err))
	token, err = c.session.relogin(ctx)
	if err != nil {
		return err
	}

	err = c.do(ctx, r, token, out)
	if errors.Is(err, errUnauthenticated) {
		return fmt.Errorf("%w: session rejected again after a fresh login: %w", ErrAuth, err)
	}
	return err
}

func (c *client) get(ctx context.Context, path string, query url.Values, out any) error {
	return c.authed(ctx, request{method: http.MethodGet, path: path, query: query}, out)
}
