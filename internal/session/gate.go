package session

import (
	"context"
	"errors"
	"slices"
	"sync"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/client-session-go/internal/credential"
	"github.com/ovaphlow/pitchfork/client-session-go/internal/metrics"
	"github.com/ovaphlow/pitchfork/client-session-go/internal/pipeline"
	"github.com/ovaphlow/pitchfork/client-session-go/internal/platform"
)

// ErrInvalidLoginResponse is returned when the backend accepted the
// credentials but did not send back a token and a user.
var ErrInvalidLoginResponse = errors.New("login response without token or user")

// Credentials is the part of the credential store the gate relies on.
type Credentials interface {
	Save(token string, user *credential.User)
	Token() (string, bool)
	Clear()
	IsExpired() bool
	Subscribe(fn func(credential.Event)) (unsubscribe func())
}

// API is the backend client used for login and profile checks.
type API interface {
	Get(ctx context.Context, path string, out any) error
	Post(ctx context.Context, path string, in, out any) error
}

type Options struct {
	LoginPath   string
	ProfilePath string
	LoginRoute  string
	HomeRoute   string

	Navigator platform.Navigator
	Metrics   *metrics.Metrics
	Logger    *zap.SugaredLogger
}

// LoginRequest is the body sent to the login endpoint.
type LoginRequest struct {
	Correo     string `json:"correo"`
	Contrasena string `json:"contrasena"`
}

// LoginResponse is the body returned by a successful login.
type LoginResponse struct {
	Token string           `json:"token"`
	User  *credential.User `json:"user"`
}

// Gate owns the authenticated user and every session transition. All reads
// are derived from the credential store on each call, so expiry is noticed
// without a network round trip.
type Gate struct {
	mu    sync.RWMutex
	state State
	user  *credential.User

	creds  Credentials
	api    API
	opts   Options
	logger *zap.SugaredLogger

	subsMu sync.Mutex
	subs   map[int]func(Snapshot)
	nextID int

	unwatch func()
}

func NewGate(creds Credentials, api API, opts Options) *Gate {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop().Sugar()
	}
	if opts.Navigator == nil {
		opts.Navigator = platform.NavigatorFunc(func(string) {})
	}
	g := &Gate{
		state:  Unauthenticated,
		creds:  creds,
		api:    api,
		opts:   opts,
		logger: opts.Logger,
		subs:   make(map[int]func(Snapshot)),
	}
	// a clear from anywhere (e.g. a 401 in the pipeline) drops the user too
	g.unwatch = creds.Subscribe(func(e credential.Event) {
		if e == credential.EventCleared {
			g.drop()
		}
	})
	return g
}

// Close detaches the gate from the credential store.
func (g *Gate) Close() { g.unwatch() }

// Login authenticates against the backend. Errors are returned as the
// pipeline produced them; nothing is retried.
func (g *Gate) Login(ctx context.Context, correo, contrasena string) (*credential.User, error) {
	var resp LoginResponse
	if err := g.api.Post(ctx, g.opts.LoginPath, LoginRequest{Correo: correo, Contrasena: contrasena}, &resp); err != nil {
		g.logger.Infow("login failed", "err", err)
		return nil, err
	}
	if resp.Token == "" || resp.User == nil {
		return nil, ErrInvalidLoginResponse
	}
	g.creds.Save(resp.Token, resp.User)
	g.set(Authenticated, resp.User)
	g.logger.Infow("login succeeded", "user_id", resp.User.ID, "role", resp.User.Role)
	return cloneUser(resp.User), nil
}

// Logout ends the session on user request and navigates to the login route.
func (g *Gate) Logout() { g.EndSession(metrics.ReasonUser) }

// EndSession clears every piece of session state and navigates to the login
// route exactly once. reason is recorded in metrics and logs.
func (g *Gate) EndSession(reason string) {
	g.creds.Clear()
	g.drop()
	g.opts.Metrics.Logout(reason)
	g.logger.Infow("session ended", "reason", reason)
	g.opts.Navigator.GoTo(g.opts.LoginRoute)
}

// ValidateSession checks a persisted credential once, at startup. It never
// navigates or notifies: on any failure, including a 401 from the backend,
// state is cleared silently and false is returned.
func (g *Gate) ValidateSession(ctx context.Context) bool {
	tok, ok := g.creds.Token()
	if !ok || g.creds.IsExpired() {
		g.silentClear()
		return false
	}

	g.setState(Revalidating)
	var u credential.User
	if err := g.api.Get(pipeline.Silent(ctx), g.opts.ProfilePath, &u); err != nil {
		g.logger.Infow("session revalidation failed", "err", err)
		g.silentClear()
		return false
	}
	if cur, ok := g.creds.Token(); !ok || cur != tok {
		// cleared or replaced while the profile call was in flight
		g.logger.Debugw("credential changed during revalidation")
		if !ok {
			g.silentClear()
			return false
		}
		if g.User() == nil {
			g.setState(Unauthenticated)
			return false
		}
		g.setState(Authenticated)
		return g.IsAuthenticated()
	}
	g.creds.Save(tok, &u)
	g.set(Authenticated, &u)
	return true
}

// IsAuthenticated is true while a user is loaded and the credential is not
// expired. It is evaluated on every call.
func (g *Gate) IsAuthenticated() bool {
	return g.User() != nil && !g.creds.IsExpired()
}

// HasRole reports whether the current user holds one of roles.
func (g *Gate) HasRole(roles ...string) bool {
	u := g.User()
	return u != nil && slices.Contains(roles, u.Role)
}

// User returns a copy of the session user, or nil.
func (g *Gate) User() *credential.User {
	g.mu.RLock()
	u := g.user
	g.mu.RUnlock()
	if u == nil {
		return nil
	}
	if _, ok := g.creds.Token(); !ok {
		return nil
	}
	return cloneUser(u)
}

// State returns the current state.
func (g *Gate) State() State {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.state
}

// Snapshot returns the current state and user together.
func (g *Gate) Snapshot() Snapshot {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return Snapshot{State: g.state, User: cloneUser(g.user)}
}

// Subscribe registers fn for every change of state or user.
func (g *Gate) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	g.subsMu.Lock()
	id := g.nextID
	g.nextID++
	g.subs[id] = fn
	g.subsMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			g.subsMu.Lock()
			delete(g.subs, id)
			g.subsMu.Unlock()
		})
	}
}

// GuardEntry decides access to an authenticated area. On denial state is
// cleared without navigating; the caller performs the redirect.
func (g *Gate) GuardEntry() Decision {
	if g.IsAuthenticated() {
		return Allow()
	}
	g.silentClear()
	return RedirectTo(g.opts.LoginRoute)
}

// GuardRole decides access to an area restricted to allowed roles. An
// authenticated user without the role goes to the home route, not to login.
func (g *Gate) GuardRole(allowed ...string) Decision {
	if g.HasRole(allowed...) {
		return Allow()
	}
	return RedirectTo(g.opts.HomeRoute)
}

func (g *Gate) silentClear() {
	g.creds.Clear()
	g.drop()
}

func (g *Gate) drop() {
	g.set(Unauthenticated, nil)
}

func (g *Gate) setState(s State) {
	g.mu.Lock()
	if g.state == s {
		g.mu.Unlock()
		return
	}
	g.state = s
	snap := Snapshot{State: s, User: cloneUser(g.user)}
	g.mu.Unlock()
	g.publish(snap)
}

func (g *Gate) set(s State, u *credential.User) {
	g.mu.Lock()
	if g.state == s && u == nil && g.user == nil {
		g.mu.Unlock()
		return
	}
	g.state = s
	g.user = cloneUser(u)
	snap := Snapshot{State: s, User: cloneUser(u)}
	g.mu.Unlock()
	g.publish(snap)
}

func (g *Gate) publish(s Snapshot) {
	g.subsMu.Lock()
	fns := make([]func(Snapshot), 0, len(g.subs))
	for _, fn := range g.subs {
		fns = append(fns, fn)
	}
	g.subsMu.Unlock()
	for _, fn := range fns {
		fn(s)
	}
}

func cloneUser(u *credential.User) *credential.User {
	if u == nil {
		return nil
	}
	cp := *u
	return &cp
}
