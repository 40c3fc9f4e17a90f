package ws

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/breaktools/meffec/internal/metrics"
	"github.com/rs/zerolog"
)

var ErrNoSecret = errors.New("relay token is not configured")

// Gate admits HTTP requests carrying the relay's shared token. It runs
// before the websocket upgrade, so a rejected connection never becomes a
// session.
type Gate struct {
	token   []byte
	log     zerolog.Logger
	metrics *metrics.Metrics
}

func NewGate(token string, log zerolog.Logger, m *metrics.Metrics) (*Gate, error) {
	if token == "" {
		return nil, ErrNoSecret
	}
	return &Gate{token: []byte(token), log: log, metrics: m}, nil
}

// Authorize checks the token query parameter, the X-Meffec-Token header and
// a bearer Authorization header. Legacy controllers send "?token=$<token>",
// so the query value also matches with one leading "$" removed.
func (g *Gate) Authorize(r *http.Request) bool {
	query := r.URL.Query().Get("token")
	if g.matches(query) {
		return true
	}
	if stripped, ok := strings.CutPrefix(query, "$"); ok && g.matches(stripped) {
		return true
	}
	if g.matches(r.Header.Get("X-Meffec-Token")) {
		return true
	}
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") && g.matches(strings.TrimPrefix(auth, "Bearer ")) {
		return true
	}
	return false
}

// Middleware rejects unauthorized requests with 401.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !g.Authorize(r) {
			g.log.Warn().Str("remote", r.RemoteAddr).Str("path", r.URL.Path).Msg("rejected connection with invalid or missing token")
			g.metrics.HandshakeRejected()
			http.Error(w, "Invalid or missing token", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (g *Gate) matches(candidate string) bool {
	if candidate == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(candidate), g.token) == 1
}
