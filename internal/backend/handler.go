package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"
)

type ctxKey struct{}

// Handler exposes the dev backend endpoints.
type Handler struct {
	dir    *Directory
	tokens *TokenService
	logger *zap.SugaredLogger

	mu       sync.Mutex
	products []Product
	// faults holds statuses returned, in order, before normal handling resumes
	faults []int
}

func NewHandler(dir *Directory, tokens *TokenService, logger *zap.SugaredLogger) *Handler {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Handler{
		dir:    dir,
		tokens: tokens,
		logger: logger,
		products: []Product{
			{ID: 1, Name: "Cemento gris 50kg", Price: 189.5, CompanyID: 1},
			{ID: 2, Name: "Varilla 3/8", Price: 142, CompanyID: 1},
			{ID: 3, Name: "Block 15x20x40", Price: 14.9, CompanyID: 2},
		},
	}
}

// FailNext makes the next protected requests answer with the given statuses.
func (h *Handler) FailNext(statuses ...int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.faults = append(h.faults, statuses...)
}

// LoginRequest login payload.
type LoginRequest struct {
	Correo     string `json:"correo"`
	Contrasena string `json:"contrasena"`
}

// LoginResponse carries the token and the profile of the signed-in user.
type LoginResponse struct {
	Token string  `json:"token"`
	User  Profile `json:"user"`
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Debugw("invalid login payload", "err", err)
		h.writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	acc, err := h.dir.Authenticate(r.Context(), req.Correo, req.Contrasena)
	if err != nil {
		h.logger.Debugw("login failed", "correo", req.Correo, "err", err)
		switch {
		case errors.Is(err, ErrBadCredentials):
			h.writeError(w, http.StatusUnauthorized, "Credenciales inválidas")
		case errors.Is(err, ErrDisabled):
			h.writeError(w, http.StatusForbidden, "account disabled")
		default:
			h.writeError(w, http.StatusInternalServerError, "login failed")
		}
		return
	}
	tok, err := h.tokens.Issue(acc)
	if err != nil {
		h.logger.Warnw("token issue failed", "err", err)
		h.writeError(w, http.StatusInternalServerError, "login failed")
		return
	}
	h.writeJSON(w, http.StatusOK, LoginResponse{Token: tok, User: acc.Profile()})
}

// Me returns the current profile, read fresh from the directory.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())
	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		h.writeError(w, http.StatusUnauthorized, "invalid subject")
		return
	}
	acc, err := h.dir.Get(id)
	if err != nil {
		h.writeError(w, http.StatusUnauthorized, "unknown user")
		return
	}
	h.writeJSON(w, http.StatusOK, acc.Profile())
}

// Logout revokes the session of the presented token.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	h.tokens.Revoke(claimsFrom(r.Context()).SessionID)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	tenant, _ := strconv.ParseInt(claimsFrom(r.Context()).TenantID, 10, 64)
	h.mu.Lock()
	out := make([]Product, 0, len(h.products))
	for _, p := range h.products {
		if p.CompanyID == tenant {
			out = append(out, p)
		}
	}
	h.mu.Unlock()
	h.writeJSON(w, http.StatusOK, out)
}

// DeleteProduct is restricted to admins.
func (h *Handler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	if claimsFrom(r.Context()).Role != "admin" {
		h.writeError(w, http.StatusForbidden, "admin role required")
		return
	}
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, p := range h.products {
		if p.ID == id {
			h.products = append(h.products[:i], h.products[i+1:]...)
			w.WriteHeader(http.StatusNoContent)
			return
		}
	}
	h.writeError(w, http.StatusNotFound, "product not found")
}

func (h *Handler) JWKS(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.tokens.JWKS())
}

// RequireAuth verifies the bearer token and stores its claims in the request
// context.
func (h *Handler) RequireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if status, ok := h.nextFault(); ok {
			h.writeError(w, status, http.StatusText(status))
			return
		}
		auth := r.Header.Get("Authorization")
		if auth == "" || !strings.HasPrefix(strings.ToLower(auth), "bearer ") {
			h.writeError(w, http.StatusUnauthorized, "missing token")
			return
		}
		claims, err := h.tokens.Verify(strings.TrimSpace(auth[len("bearer "):]))
		if err != nil {
			h.logger.Debugw("token rejected", "err", err)
			h.writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, claims)))
	}
}

func (h *Handler) nextFault() (int, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.faults) == 0 {
		return 0, false
	}
	s := h.faults[0]
	h.faults = h.faults[1:]
	return s, true
}

func claimsFrom(ctx context.Context) *AccessClaims {
	if c, ok := ctx.Value(ctxKey{}).(*AccessClaims); ok {
		return c
	}
	return &AccessClaims{}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, map[string]string{"message": msg})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
