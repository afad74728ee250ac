// Package docstore is the HTTP client for the document API.
package docstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"gosyncmovies/backend"
	"gosyncmovies/internal/metrics"
	"gosyncmovies/internal/utils"
)

func init() {
	backend.RegisterType("docstore", func(cfg backend.RemoteConfig) (backend.Remote, error) {
		return New(cfg)
	})
}

const (
	defaultTimeout = 15 * time.Second
	breakerName    = "docstore"
	maxErrorBody   = 4096
)

// Client talks to a document server. Every call is rate limited and guarded
// by a circuit breaker; failures are returned as *backend.RemoteError.
type Client struct {
	baseURL *url.URL
	http    *http.Client
	limiter *rate.Limiter
	cb      *gobreaker.CircuitBreaker[*http.Response]
	token   func() string
	log     zerolog.Logger
}

// New creates a client from cfg.
func New(cfg backend.RemoteConfig) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("docstore remote requires a url")
	}
	base, err := url.Parse(strings.TrimRight(cfg.URL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid docstore url %q", cfg.URL)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	limit := rate.Inf
	burst := cfg.Burst
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
		if burst <= 0 {
			burst = 1
		}
	}

	c := &Client{
		baseURL: base,
		http:    &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(limit, burst),
		token:   cfg.Token,
		log:     utils.Component("docstore"),
	}

	metrics.SetBreakerState(breakerName, 0)
	c.cb = gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		// Only transport failures and 5xx responses count against the remote.
		IsSuccessful: func(err error) bool {
			return err == nil || !backend.IsNetworkError(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.log.Warn().Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state change")
			metrics.SetBreakerState(name, breakerValue(to))
		},
	})
	return c, nil
}

func breakerValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

// BreakerState reports the circuit breaker state ("closed", "half-open", "open").
func (c *Client) BreakerState() string {
	return c.cb.State().String()
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

func (c *Client) endpoint(parts ...string) string {
	u := *c.baseURL
	escaped := make([]string, len(parts))
	for i, p := range parts {
		escaped[i] = url.PathEscape(p)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/" + strings.Join(escaped, "/")
	return u.String()
}

type request struct {
	op      string
	method  string
	url     string
	body    any
	header  map[string]string
	userID  string
	movieID int64
}

// do performs req and returns the response for any status below 500.
// The caller closes the body.
func (c *Client) do(ctx context.Context, req request) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, backend.NewNetworkError(req.op, err).WithUserID(req.userID).WithMovieID(req.movieID)
	}

	var payload []byte
	if req.body != nil {
		var err error
		payload, err = json.Marshal(req.body)
		if err != nil {
			return nil, backend.NewRemoteError(req.op, 0, "failed to encode request").WithError(err)
		}
	}

	resp, err := c.cb.Execute(func() (*http.Response, error) {
		httpReq, err := http.NewRequestWithContext(ctx, req.method, req.url, bytes.NewReader(payload))
		if err != nil {
			return nil, backend.NewRemoteError(req.op, 0, "failed to build request").WithError(err)
		}
		httpReq.Header.Set("Accept", "application/json")
		if payload != nil {
			httpReq.Header.Set("Content-Type", "application/json")
		}
		if c.token != nil {
			if tok := c.token(); tok != "" {
				httpReq.Header.Set("Authorization", "Bearer "+tok)
			}
		}
		for k, v := range req.header {
			httpReq.Header.Set(k, v)
		}

		resp, err := c.http.Do(httpReq)
		if err != nil {
			return nil, backend.NewNetworkError(req.op, err)
		}
		if resp.StatusCode >= 500 {
			defer resp.Body.Close()
			return nil, statusError(req.op, resp)
		}
		return resp, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			err = backend.NewNetworkError(req.op, fmt.Errorf("circuit breaker: %w", err))
		}
		var re *backend.RemoteError
		if errors.As(err, &re) {
			re.WithUserID(req.userID).WithMovieID(req.movieID)
		}
		c.log.Debug().Err(err).Str("op", req.op).Msg("request failed")
		return nil, err
	}
	return resp, nil
}

func statusError(op string, resp *http.Response) *backend.RemoteError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	msg := http.StatusText(resp.StatusCode)
	var eb struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &eb) == nil && eb.Error != "" {
		msg = eb.Error
	}
	return backend.NewRemoteError(op, resp.StatusCode, msg).WithBody(string(body))
}

func decode(op string, resp *http.Response, out any) error {
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return backend.NewRemoteError(op, resp.StatusCode, "invalid response body").WithError(err)
	}
	return nil
}

// FetchAll returns every movie document of userID.
func (c *Client) FetchAll(ctx context.Context, userID string) ([]backend.MovieRecord, error) {
	resp, err := c.do(ctx, request{
		op:     "FetchAll",
		method: http.MethodGet,
		url:    c.endpoint("v1", "users", userID, "movies"),
		userID: userID,
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, statusError("FetchAll", resp).WithUserID(userID)
	}

	var docs []backend.MovieDocument
	if err := decode("FetchAll", resp, &docs); err != nil {
		return nil, err
	}
	records := make([]backend.MovieRecord, 0, len(docs))
	for _, d := range docs {
		records = append(records, d.Record())
	}
	return records, nil
}

// Put upserts one movie document.
func (c *Client) Put(ctx context.Context, userID string, rec backend.MovieRecord) error {
	resp, err := c.do(ctx, request{
		op:      "Put",
		method:  http.MethodPut,
		url:     c.endpoint("v1", "users", userID, "movies", strconv.FormatInt(rec.ID, 10)),
		body:    backend.ToDocument(rec),
		userID:  userID,
		movieID: rec.ID,
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return statusError("Put", resp).WithUserID(userID).WithMovieID(rec.ID)
	}
	return nil
}

// Delete removes one movie document. A missing document yields a 404 RemoteError.
func (c *Client) Delete(ctx context.Context, userID string, id int64) error {
	resp, err := c.do(ctx, request{
		op:      "Delete",
		method:  http.MethodDelete,
		url:     c.endpoint("v1", "users", userID, "movies", strconv.FormatInt(id, 10)),
		userID:  userID,
		movieID: id,
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return statusError("Delete", resp).WithUserID(userID).WithMovieID(id)
	}
	return nil
}

func (c *Client) profileResponse(op, userID string, resp *http.Response) (*backend.UserProfile, error) {
	defer resp.Body.Close()
	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
	case http.StatusNotFound:
		return nil, statusError(op, resp).WithUserID(userID).WithError(backend.ErrProfileNotFound)
	case http.StatusConflict:
		return nil, statusError(op, resp).WithUserID(userID).WithError(backend.ErrInsufficientCredits)
	default:
		return nil, statusError(op, resp).WithUserID(userID)
	}
	var doc backend.ProfileDocument
	if err := decode(op, resp, &doc); err != nil {
		return nil, err
	}
	p := doc.Profile()
	return &p, nil
}

// GetProfile returns the profile of userID.
func (c *Client) GetProfile(ctx context.Context, userID string) (*backend.UserProfile, error) {
	resp, err := c.do(ctx, request{
		op:     "GetProfile",
		method: http.MethodGet,
		url:    c.endpoint("v1", "users", userID, "profile"),
		userID: userID,
	})
	if err != nil {
		return nil, err
	}
	return c.profileResponse("GetProfile", userID, resp)
}

// CreateProfile creates p unless it exists, returning the stored profile either way.
func (c *Client) CreateProfile(ctx context.Context, p backend.UserProfile) (*backend.UserProfile, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	resp, err := c.do(ctx, request{
		op:     "CreateProfile",
		method: http.MethodPut,
		url:    c.endpoint("v1", "users", p.ID, "profile"),
		body:   backend.ToProfileDocument(p),
		header: map[string]string{"If-None-Match": "*"},
		userID: p.ID,
	})
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusPreconditionFailed {
		resp.Body.Close()
		return c.GetProfile(ctx, p.ID)
	}
	return c.profileResponse("CreateProfile", p.ID, resp)
}

// AdjustCredits adds delta to the user's balance on the server.
func (c *Client) AdjustCredits(ctx context.Context, userID string, delta int) (*backend.UserProfile, error) {
	resp, err := c.do(ctx, request{
		op:     "AdjustCredits",
		method: http.MethodPost,
		url:    c.endpoint("v1", "users", userID, "profile", "credits"),
		body:   backend.CreditDelta{Delta: delta},
		userID: userID,
	})
	if err != nil {
		return nil, err
	}
	return c.profileResponse("AdjustCredits", userID, resp)
}

var _ backend.Remote = (*Client)(nil)
