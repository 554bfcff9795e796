package httpadapter

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/PabloGalante/stacks/internal/domain"
	"github.com/PabloGalante/stacks/internal/observability"
)

const maxUserIDLen = 128

type ctxUserKey struct{}

func withUser(ctx context.Context, id domain.UserID) context.Context {
	return context.WithValue(ctx, ctxUserKey{}, id)
}

// userFromContext returns the verified owner id, or "".
func userFromContext(ctx context.Context) domain.UserID {
	id, _ := ctx.Value(ctxUserKey{}).(domain.UserID)
	return id
}

// Sign computes the X-User-Signature value for userID under key. The
// gateway in front of the service signs with the same function.
func Sign(key, userID string) string {
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write([]byte(userID))
	return hex.EncodeToString(mac.Sum(nil))
}

type authenticator struct {
	keys []string
}

func newAuthenticator(keys []string) *authenticator {
	return &authenticator{keys: keys}
}

// verify resolves the caller from X-User-ID. With signing keys configured
// the X-User-Signature header must match one of them.
func (a *authenticator) verify(r *http.Request) (domain.UserID, bool) {
	userID := strings.TrimSpace(r.Header.Get("X-User-ID"))
	if userID == "" || len(userID) > maxUserIDLen {
		return "", false
	}
	if len(a.keys) == 0 {
		return domain.UserID(userID), true
	}

	sig := strings.TrimSpace(r.Header.Get("X-User-Signature"))
	if sig == "" {
		return "", false
	}
	for _, k := range a.keys {
		if hmac.Equal([]byte(Sign(k, userID)), []byte(sig)) {
			return domain.UserID(userID), true
		}
	}
	return "", false
}

func (s *Server) authed(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, ok := s.auth.verify(r)
		if !ok {
			observability.LoggerFromContext(r.Context()).Warnw("unauthenticated request",
				"path", r.URL.Path,
				"remote", r.RemoteAddr,
			)
			writeError(w, r, domain.ErrUnauthenticated)
			return
		}
		next.ServeHTTP(w, r.WithContext(withUser(r.Context(), userID)))
	})
}

func (s *Server) limited(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow(string(userFromContext(r.Context()))) {
			writeError(w, r, domain.ErrRateLimited)
			return
		}
		next(w, r)
	}
}

// ─────────────────────────────────────────────
// Per-owner rate limiting
// ─────────────────────────────────────────────

type limiterEntry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

type limiterPool struct {
	mu        sync.Mutex
	m         map[string]*limiterEntry
	rps       float64
	burst     int
	idle      time.Duration
	lastSweep time.Time
	now       func() time.Time
}

func newLimiterPool(rps float64, burst int, idle time.Duration) *limiterPool {
	if rps <= 0 {
		rps = 5
	}
	if burst <= 0 {
		burst = 10
	}
	return &limiterPool{
		m:     make(map[string]*limiterEntry),
		rps:   rps,
		burst: burst,
		idle:  idle,
		now:   time.Now,
	}
}

func (p *limiterPool) get(key string) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	if now.Sub(p.lastSweep) > p.idle {
		for k, e := range p.m {
			if now.Sub(e.lastSeen) > p.idle {
				delete(p.m, k)
			}
		}
		p.lastSweep = now
	}

	if e, ok := p.m[key]; ok {
		e.lastSeen = now
		return e.lim
	}
	l := rate.NewLimiter(rate.Limit(p.rps), p.burst)
	p.m[key] = &limiterEntry{lim: l, lastSeen: now}
	return l
}

func (p *limiterPool) Allow(key string) bool {
	return p.get(key).Allow()
}

func (p *limiterPool) size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.m)
}
