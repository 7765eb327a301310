package httpapi

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"botpanel/internal/config"
	"botpanel/internal/metrics"
)

const sessionCookieName = "session_token"

// requireAdmin gates the admin surface. Session mode accepts the session
// cookie or a bearer token; basic mode compares credentials in constant
// time against the configured pair.
func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.authMode == config.AuthModeBasic {
			user, pass, ok := r.BasicAuth()
			if !ok || !constantTimeEqual(user, s.adminUser) || !constantTimeEqual(pass, s.adminPass) {
				metrics.Global().AuthFailures.Inc()
				w.Header().Set("WWW-Authenticate", `Basic realm="admin"`)
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
			return
		}

		token := sessionToken(r)
		ok, err := s.store.ValidateSession(r.Context(), token)
		if err != nil {
			s.writeStoreError(w, err)
			return
		}
		if !ok {
			metrics.Global().AuthFailures.Inc()
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requireBotSecret gates the bot surface on the shared-secret header.
// Failures are 403, not 401: the bot is a different trust domain and
// never holds admin credentials.
func (s *Server) requireBotSecret(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := r.Header.Get("X-Bot-Secret")
		if !constantTimeEqual(got, s.botSecret) {
			metrics.Global().AuthFailures.Inc()
			writeError(w, http.StatusForbidden, "forbidden")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func sessionToken(r *http.Request) string {
	if c, err := r.Cookie(sessionCookieName); err == nil && c.Value != "" {
		return c.Value
	}
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}

func constantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
