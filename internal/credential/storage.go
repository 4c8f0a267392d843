package credential

import (
	"context"
	"errors"
	"sync"
)

// Persisted keys. Token and user are always written and cleared together.
const (
	KeyToken = "auth_token"
	KeyUser  = "auth_user"
)

// ErrStorageUnavailable is returned by storages that cannot persist anything,
// e.g. a disabled or over-quota backing store.
var ErrStorageUnavailable = errors.New("credential storage unavailable")

// Storage is the tab-scoped fallback behind the in-memory credential.
// An empty token means nothing is persisted.
type Storage interface {
	Load(ctx context.Context) (token string, user string, err error)
	Store(ctx context.Context, token string, user string) error
	Clear(ctx context.Context) error
}

// MemoryStorage keeps the pair in process memory.
type MemoryStorage struct {
	mu    sync.Mutex
	token string
	user  string
}

func NewMemoryStorage() *MemoryStorage { return &MemoryStorage{} }

func (m *MemoryStorage) Load(ctx context.Context) (string, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token, m.user, nil
}

func (m *MemoryStorage) Store(ctx context.Context, token, user string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token, m.user = token, user
	return nil
}

func (m *MemoryStorage) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token, m.user = "", ""
	return nil
}

// UnavailableStorage fails every call.
type UnavailableStorage struct{}

func (UnavailableStorage) Load(context.Context) (string, string, error) {
	return "", "", ErrStorageUnavailable
}

func (UnavailableStorage) Store(context.Context, string, string) error {
	return ErrStorageUnavailable
}

func (UnavailableStorage) Clear(context.Context) error { return ErrStorageUnavailable }
