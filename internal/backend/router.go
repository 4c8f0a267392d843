package backend

import (
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// statusWriter remembers the status the handler answered with.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (sw *statusWriter) WriteHeader(code int) {
	if sw.status == 0 {
		sw.status = code
	}
	sw.ResponseWriter.WriteHeader(code)
}

func (sw *statusWriter) Write(b []byte) (int, error) {
	if sw.status == 0 {
		sw.status = http.StatusOK
	}
	return sw.ResponseWriter.Write(b)
}

// accessLog echoes the client's X-Request-ID and logs every exchange with it,
// at info for 4xx and 5xx and at debug otherwise.
func accessLog(logger *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			reqID := r.Header.Get("X-Request-ID")
			if reqID != "" {
				w.Header().Set("X-Request-ID", reqID)
			}
			sw := &statusWriter{ResponseWriter: w}
			next.ServeHTTP(sw, r)
			if sw.status == 0 {
				sw.status = http.StatusOK
			}

			log := logger.Debugw
			if sw.status >= http.StatusBadRequest {
				log = logger.Infow
			}
			log("request",
				"method", r.Method,
				"path", r.URL.Path,
				"request_id", reqID,
				"bearer", strings.HasPrefix(r.Header.Get("Authorization"), "Bearer "),
				"status", sw.status,
				"elapsed", time.Since(start),
			)
		})
	}
}

// noStore keeps tokens and profiles out of any HTTP cache.
func noStore(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		next.ServeHTTP(w, r)
	})
}

// RegisterRoutes mounts the backend under prefix (e.g. "/api").
func RegisterRoutes(logger *zap.SugaredLogger, h *Handler, prefix string) http.Handler {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	mux := http.NewServeMux()

	mux.HandleFunc("GET "+prefix+"/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("GET "+prefix+"/.well-known/jwks.json", h.JWKS)
	mux.HandleFunc("POST "+prefix+"/auth/login", h.Login)
	mux.HandleFunc("GET "+prefix+"/auth/me", h.RequireAuth(h.Me))
	mux.HandleFunc("POST "+prefix+"/auth/logout", h.RequireAuth(h.Logout))
	mux.HandleFunc("GET "+prefix+"/products", h.RequireAuth(h.ListProducts))
	mux.HandleFunc("DELETE "+prefix+"/products/{id}", h.RequireAuth(h.DeleteProduct))

	return accessLog(logger)(noStore(mux))
}
