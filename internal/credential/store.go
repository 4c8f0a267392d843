package credential

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// DefaultSafetyMargin is subtracted from a token's exp so that a request is
// never sent with a token that expires while in flight.
const DefaultSafetyMargin = 60 * time.Second

const defaultStorageTimeout = 2 * time.Second

// Options configures a Store. Zero values select the defaults.
type Options struct {
	Storage        Storage
	Clock          clockwork.Clock
	SafetyMargin   time.Duration
	StorageTimeout time.Duration
	Logger         *zap.SugaredLogger
}

// Store is the single owner of the raw token, its decoded claims and the
// user profile persisted next to it. Storage failures are never surfaced:
// the store degrades to memory-only.
type Store struct {
	mu     sync.RWMutex
	token  string
	claims *Claims
	user   *User

	storage Storage
	clock   clockwork.Clock
	margin  int64
	timeout time.Duration
	logger  *zap.SugaredLogger

	subsMu sync.Mutex
	subs   map[int]func(Event)
	nextID int
}

func NewStore(opts Options) *Store {
	if opts.Storage == nil {
		opts.Storage = NewMemoryStorage()
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.SafetyMargin <= 0 {
		opts.SafetyMargin = DefaultSafetyMargin
	}
	if opts.StorageTimeout <= 0 {
		opts.StorageTimeout = defaultStorageTimeout
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop().Sugar()
	}
	return &Store{
		storage: opts.Storage,
		clock:   opts.Clock,
		margin:  int64(opts.SafetyMargin / time.Second),
		timeout: opts.StorageTimeout,
		logger:  opts.Logger,
		subs:    make(map[int]func(Event)),
	}
}

// Save replaces the credential in memory and in storage.
func (s *Store) Save(token string, user *User) {
	var raw string
	if user != nil {
		if b, err := json.Marshal(user); err == nil {
			raw = string(b)
		}
	}
	s.mu.Lock()
	s.setLocked(token, user.clone())
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	if err := s.storage.Store(ctx, token, raw); err != nil {
		s.logger.Debugw("credential storage write failed, keeping memory only", "err", err)
	}
	cancel()
	s.mu.Unlock()

	s.emit(EventSaved)
}

// Token returns the current token, rehydrating from storage after a reload.
func (s *Store) Token() (string, bool) {
	s.mu.RLock()
	tok := s.token
	s.mu.RUnlock()
	if tok != "" {
		return tok, true
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token != "" {
		return s.token, true
	}
	s.rehydrateLocked()
	return s.token, s.token != ""
}

// Clear wipes memory and storage. It is idempotent and never fails.
func (s *Store) Clear() {
	s.mu.Lock()
	held := s.token != "" || s.user != nil
	s.token, s.claims, s.user = "", nil, nil
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	if err := s.storage.Clear(ctx); err != nil {
		s.logger.Debugw("credential storage clear failed", "err", err)
	}
	cancel()
	s.mu.Unlock()

	if held {
		s.emit(EventCleared)
	}
}

// PersistedUser returns the profile saved alongside the token.
func (s *Store) PersistedUser() (*User, bool) {
	if _, ok := s.Token(); !ok {
		return nil, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return nil, false
	}
	return s.user.clone(), true
}

// Claims returns the decoded claims of the current token.
func (s *Store) Claims() (Claims, bool) {
	if _, ok := s.Token(); !ok {
		return Claims{}, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.claims == nil {
		return Claims{}, false
	}
	return *s.claims, true
}

// IsExpired is true when there is no token, the token cannot be decoded, it
// carries no exp, or now is within the safety margin of exp.
func (s *Store) IsExpired() bool {
	c, ok := s.Claims()
	if !ok || !c.HasExpiry() {
		return true
	}
	return s.clock.Now().Unix() >= c.ExpiresAt-s.margin
}

// SecondsRemaining returns max(0, exp-now), or -1 without usable claims.
func (s *Store) SecondsRemaining() int64 {
	c, ok := s.Claims()
	if !ok || !c.HasExpiry() {
		return -1
	}
	left := c.ExpiresAt - s.clock.Now().Unix()
	if left < 0 {
		return 0
	}
	return left
}

// Subscribe registers fn for change events. Events are delivered
// synchronously after the store lock is released.
func (s *Store) Subscribe(fn func(Event)) (unsubscribe func()) {
	s.subsMu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.subsMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.subsMu.Lock()
			delete(s.subs, id)
			s.subsMu.Unlock()
		})
	}
}

func (s *Store) emit(e Event) {
	s.subsMu.Lock()
	fns := make([]func(Event), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subsMu.Unlock()
	for _, fn := range fns {
		fn(e)
	}
}

func (s *Store) setLocked(token string, user *User) {
	s.token = token
	s.user = user
	s.claims = nil
	if c, ok := DecodeClaims(token); ok {
		s.claims = &c
	}
}

func (s *Store) rehydrateLocked() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	tok, raw, err := s.storage.Load(ctx)
	if err != nil {
		s.logger.Debugw("credential storage read failed", "err", err)
		return
	}
	if tok == "" {
		return
	}
	var user *User
	if raw != "" {
		var u User
		if err := json.Unmarshal([]byte(raw), &u); err != nil {
			s.logger.Debugw("persisted user is not valid json, ignoring it", "err", err)
		} else {
			user = &u
		}
	}
	s.setLocked(tok, user)
	s.logger.Debugw("credential rehydrated from storage", "has_user", user != nil)
}
