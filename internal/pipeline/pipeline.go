// Package pipeline wraps every outbound request with two stages: credential
// attachment on the way out and failure classification on the way back.
// Both stages only apply to the owning backend; anything else passes through.
package pipeline

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/client-session-go/internal/metrics"
	"github.com/ovaphlow/pitchfork/client-session-go/internal/platform"
)

// User-facing messages for classified failures.
const (
	MsgSessionExpired = "Your session has expired. Please sign in again."
	MsgForbidden      = "You do not have permission to perform this action."
	MsgNoConnection   = "Could not reach the server. Check your connection."
	MsgRateLimited    = "Too many requests. Please wait a moment and try again."
	MsgUnexpected     = "An unexpected error occurred."
)

// Doer sends a request. *http.Client satisfies it, and so does Pipeline.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Credentials is what the pipeline needs from the credential store.
type Credentials interface {
	Token() (string, bool)
	IsExpired() bool
	Clear()
}

type Options struct {
	// BaseURL of the owning backend, without trailing slash.
	BaseURL string
	// LoginRoute is where a 401 sends the user.
	LoginRoute string
	// ExemptPaths are backend paths (relative to BaseURL) whose failures are
	// returned without any reaction, e.g. the login endpoint.
	ExemptPaths []string

	MaxRetries     int
	RetryBaseDelay time.Duration

	Clock     clockwork.Clock
	Navigator platform.Navigator
	Notifier  platform.Notifier
	Metrics   *metrics.Metrics
	Logger    *zap.SugaredLogger
	// RequestID generates the X-Request-ID of own-backend requests.
	RequestID func() string
}

type Pipeline struct {
	next    Doer
	creds   Credentials
	base    string
	login   string
	exempt  map[string]struct{}
	retries int
	delay   time.Duration
	clock   clockwork.Clock
	nav     platform.Navigator
	notify  platform.Notifier
	metrics *metrics.Metrics
	logger  *zap.SugaredLogger
	reqID   func() string
}

// attempt is the per-request state used to decide attachment and retry.
type attempt struct {
	method     string
	ownBackend bool
	number     int
}

func New(next Doer, creds Credentials, opts Options) *Pipeline {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop().Sugar()
	}
	if opts.Navigator == nil {
		opts.Navigator = platform.NavigatorFunc(func(string) {})
	}
	if opts.Notifier == nil {
		opts.Notifier = platform.NotifierFunc(func(platform.Severity, string) {})
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	exempt := make(map[string]struct{}, len(opts.ExemptPaths))
	for _, p := range opts.ExemptPaths {
		exempt[p] = struct{}{}
	}
	return &Pipeline{
		next:    next,
		creds:   creds,
		base:    strings.TrimRight(opts.BaseURL, "/"),
		login:   opts.LoginRoute,
		exempt:  exempt,
		retries: opts.MaxRetries,
		delay:   opts.RetryBaseDelay,
		clock:   opts.Clock,
		nav:     opts.Navigator,
		notify:  opts.Notifier,
		metrics: opts.Metrics,
		logger:  opts.Logger,
		reqID:   opts.RequestID,
	}
}

// Do runs req through both stages. Requests outside the owning backend are
// handed to the next Doer untouched. For the owning backend a failed exchange
// is returned as *Error after the reaction has run.
func (p *Pipeline) Do(req *http.Request) (*http.Response, error) {
	at := attempt{method: req.Method, ownBackend: p.isOwnBackend(req.URL)}
	if !at.ownBackend {
		return p.next.Do(req)
	}

	out := p.attach(req)
	ctx := req.Context()
	for {
		at.number++
		send, err := p.forAttempt(out, at.number)
		if err != nil {
			return nil, ErrorFromResponse(req, nil, err)
		}
		resp, err := p.next.Do(send)
		if err != nil {
			discard(resp)
			resp = nil
		}
		if err == nil && resp.StatusCode < http.StatusBadRequest {
			return resp, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			// the caller gave up; nothing to classify
			discard(resp)
			return nil, ErrorFromResponse(req, nil, ctxErr)
		}

		status := StatusNoConnection
		if err == nil {
			status = resp.StatusCode
		}
		if at.number <= p.retries && retryable(at.method, status) {
			discard(resp)
			wait := p.delay * time.Duration(at.number)
			p.metrics.Retry()
			p.logger.Warnw("transient failure, retrying",
				"method", at.method, "url", req.URL.Redacted(), "status", status,
				"retry", at.number, "delay_ms", wait.Milliseconds())
			if werr := p.sleep(ctx, wait); werr != nil {
				return nil, ErrorFromResponse(req, nil, werr)
			}
			continue
		}

		perr := ErrorFromResponse(req, resp, err)
		p.react(req, perr)
		return nil, perr
	}
}

// attach copies req and sets the bearer credential when a live token exists.
// It never blocks and never refreshes: an absent or expired token is left for
// the backend to reject.
func (p *Pipeline) attach(req *http.Request) *http.Request {
	out := req.Clone(req.Context())
	if p.reqID != nil && out.Header.Get("X-Request-ID") == "" {
		out.Header.Set("X-Request-ID", p.reqID())
	}
	tok, ok := p.creds.Token()
	if !ok || p.creds.IsExpired() {
		p.logger.Debugw("no live credential, sending without bearer", "url", req.URL.Redacted())
		return out
	}
	out.Header.Set("Authorization", "Bearer "+tok)
	return out
}

// forAttempt returns the request for the given attempt, rewinding the body on retries.
func (p *Pipeline) forAttempt(req *http.Request, n int) (*http.Request, error) {
	if n == 1 || req.Body == nil || req.Body == http.NoBody {
		return req, nil
	}
	if req.GetBody == nil {
		return nil, errors.New("request body cannot be replayed")
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, err
	}
	r := req.Clone(req.Context())
	r.Body = body
	return r, nil
}

type silentKey struct{}

// Silent returns a context whose requests are classified and returned as
// *Error like any other, but never clear the credential, navigate or notify.
func Silent(ctx context.Context) context.Context {
	return context.WithValue(ctx, silentKey{}, true)
}

func isSilent(ctx context.Context) bool {
	v, _ := ctx.Value(silentKey{}).(bool)
	return v
}

func (p *Pipeline) react(req *http.Request, e *Error) {
	p.metrics.Failure(e.Status)
	if p.isExempt(req.URL) {
		p.logger.Debugw("failure on exempt path, no reaction", "url", e.URL, "status", e.Status)
		return
	}
	if isSilent(req.Context()) {
		p.logger.Debugw("failure on silent request, no reaction", "url", e.URL, "status", e.Status)
		return
	}
	switch e.Status {
	case http.StatusUnauthorized:
		// clear and navigate directly: going through logout would navigate twice
		p.creds.Clear()
		p.metrics.Logout(metrics.ReasonUnauthorized)
		p.logger.Infow("session rejected by backend", "url", e.URL)
		p.nav.GoTo(p.login)
		p.notify.Notify(platform.SeverityError, MsgSessionExpired)
	case http.StatusForbidden:
		p.notify.Notify(platform.SeverityError, MsgForbidden)
	case StatusNoConnection:
		p.notify.Notify(platform.SeverityError, MsgNoConnection)
	case http.StatusTooManyRequests:
		p.notify.Notify(platform.SeverityError, MsgRateLimited)
	default:
		msg := e.Message
		if msg == "" {
			msg = MsgUnexpected
		}
		p.notify.Notify(platform.SeverityError, msg)
	}
}

func (p *Pipeline) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-p.clock.After(d):
		return nil
	}
}

// isOwnBackend requires the base URL to be followed by a path, query or
// nothing, so "https://api.example.com" does not match "https://api.example.com.evil".
func (p *Pipeline) isOwnBackend(u *url.URL) bool {
	if p.base == "" || u == nil {
		return false
	}
	s := u.String()
	if !strings.HasPrefix(s, p.base) {
		return false
	}
	rest := s[len(p.base):]
	return rest == "" || rest[0] == '/' || rest[0] == '?' || rest[0] == '#'
}

func (p *Pipeline) isExempt(u *url.URL) bool {
	if len(p.exempt) == 0 {
		return false
	}
	rest := strings.TrimPrefix(u.String(), p.base)
	if i := strings.IndexAny(rest, "?#"); i >= 0 {
		rest = rest[:i]
	}
	_, ok := p.exempt[rest]
	return ok
}

func retryable(method string, status int) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
	default:
		return false
	}
	switch status {
	case StatusNoConnection, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

func discard(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
	resp.Body.Close()
}
