package backend

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrBadCredentials = errors.New("invalid credentials")
	ErrDisabled       = errors.New("user disabled")
	ErrInvalidToken   = errors.New("invalid token")
	ErrRevoked        = errors.New("session revoked")
	ErrUserNotFound   = errors.New("user not found")
)

// PasswordHasher defines minimal hashing interface.
type PasswordHasher interface {
	Hash(pw string) (string, error)
	Verify(hash, pw string) bool
}

// BcryptHasher implementation.
type BcryptHasher struct{ Cost int }

func (b BcryptHasher) Hash(pw string) (string, error) {
	cost := b.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	h, err := bcrypt.GenerateFromPassword([]byte(pw), cost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

func (b BcryptHasher) Verify(hash, pw string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pw)) == nil
}

// Directory is an in-memory account store keyed by lower-cased email.
type Directory struct {
	mu       sync.RWMutex
	hasher   PasswordHasher
	byCorreo map[string]*Account
	byID     map[int64]*Account
	nextID   int64
}

func NewDirectory(hasher PasswordHasher) *Directory {
	if hasher == nil {
		hasher = BcryptHasher{}
	}
	return &Directory{
		hasher:   hasher,
		byCorreo: make(map[string]*Account),
		byID:     make(map[int64]*Account),
	}
}

// Add creates an active account and returns its ID.
func (d *Directory) Add(correo, password, displayName, role string, companyID int64) (int64, error) {
	correo = strings.ToLower(strings.TrimSpace(correo))
	if correo == "" {
		return 0, errors.New("correo required")
	}
	hash, err := d.hasher.Hash(password)
	if err != nil {
		return 0, fmt.Errorf("hash password: %w", err)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.byCorreo[correo]; ok {
		return 0, fmt.Errorf("account %s already exists", correo)
	}
	d.nextID++
	a := &Account{
		ID:           d.nextID,
		Correo:       correo,
		PasswordHash: hash,
		DisplayName:  displayName,
		Role:         role,
		CompanyID:    companyID,
		Status:       "active",
	}
	d.byCorreo[correo] = a
	d.byID[a.ID] = a
	return a.ID, nil
}

// SetRole changes the role of an account; later tokens and profiles carry it.
func (d *Directory) SetRole(id int64, role string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	a, ok := d.byID[id]
	if !ok {
		return ErrUserNotFound
	}
	a.Role = role
	return nil
}

// Disable blocks future logins of an account.
func (d *Directory) Disable(id int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	a, ok := d.byID[id]
	if !ok {
		return ErrUserNotFound
	}
	a.Status = "disabled"
	return nil
}

func (d *Directory) Get(id int64) (Account, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	a, ok := d.byID[id]
	if !ok {
		return Account{}, ErrUserNotFound
	}
	return *a, nil
}

// Authenticate checks an email and password pair.
func (d *Directory) Authenticate(_ context.Context, correo, password string) (Account, error) {
	correo = strings.ToLower(strings.TrimSpace(correo))
	if correo == "" {
		return Account{}, ErrBadCredentials
	}
	d.mu.RLock()
	a, ok := d.byCorreo[correo]
	var acc Account
	if ok {
		acc = *a
	}
	d.mu.RUnlock()
	if !ok {
		// avoid user enumeration
		return Account{}, ErrBadCredentials
	}
	if acc.Status == "disabled" {
		return Account{}, ErrDisabled
	}
	if !d.hasher.Verify(acc.PasswordHash, password) {
		return Account{}, ErrBadCredentials
	}
	return acc, nil
}

// AccessClaims are the claims carried by tokens issued here.
type AccessClaims struct {
	jwt.RegisteredClaims
	Role      string `json:"role"`
	TenantID  string `json:"tenantId"`
	SessionID string `json:"sid"`
}

// TokenService manages the signing key and token issuance.
type TokenService struct {
	key    *rsa.PrivateKey
	kid    string
	issuer string
	ttl    time.Duration
	clock  clockwork.Clock

	mu      sync.Mutex
	revoked map[string]struct{}
}

func NewTokenService(issuer string, ttl time.Duration, clock clockwork.Clock) (*TokenService, error) {
	k, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, err
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	// kid is base64 of the first bytes of SHA256 over the modulus
	h := sha256.Sum256(k.PublicKey.N.Bytes())
	kid := base64.RawURLEncoding.EncodeToString(h[:8])
	return &TokenService{
		key:     k,
		kid:     kid,
		issuer:  issuer,
		ttl:     ttl,
		clock:   clock,
		revoked: make(map[string]struct{}),
	}, nil
}

// TTL returns the lifetime of issued tokens.
func (s *TokenService) TTL() time.Duration { return s.ttl }

// JWKS returns a minimal JWKS containing the public key.
func (s *TokenService) JWKS() map[string]any {
	pub := s.key.PublicKey
	jwk := map[string]any{
		"kty": "RSA",
		"use": "sig",
		"alg": "RS256",
		"kid": s.kid,
		"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
		"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
	}
	return map[string]any{"keys": []any{jwk}}
}

// Issue creates an access token for the account with a fresh session ID.
func (s *TokenService) Issue(a Account) (string, error) {
	now := s.clock.Now()
	claims := AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   strconv.FormatInt(a.ID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
		Role:      a.Role,
		TenantID:  strconv.FormatInt(a.CompanyID, 10),
		SessionID: uuid.NewString(),
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = s.kid
	return tok.SignedString(s.key)
}

// Verify checks signature, issuer and expiry against the service clock and
// rejects revoked sessions.
func (s *TokenService) Verify(token string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return &s.key.PublicKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.clock.Now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	s.mu.Lock()
	_, gone := s.revoked[claims.SessionID]
	s.mu.Unlock()
	if gone {
		return nil, ErrRevoked
	}
	return claims, nil
}

// Revoke invalidates a session ID.
func (s *TokenService) Revoke(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revoked[sessionID] = struct{}{}
}
