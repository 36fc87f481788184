package handlers

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/campus-merch/api/internal/platform/httpx"
	"github.com/campus-merch/api/internal/platform/requestctx"
)

// actorLimiter is a fixed window counter keyed by the authenticated actor. It is process local;
// each instance enforces its own budget.
type actorLimiter struct {
	limit  int
	window time.Duration
	clock  func() time.Time

	mu    sync.Mutex
	store map[string]window
}

type window struct {
	count int
	reset time.Time
}

func newActorLimiter(limit int, every time.Duration, clock func() time.Time) *actorLimiter {
	if limit <= 0 || every <= 0 {
		return nil
	}
	if clock == nil {
		clock = time.Now
	}
	return &actorLimiter{
		limit:  limit,
		window: every,
		clock:  clock,
		store:  make(map[string]window),
	}
}

// allow records a hit for key and reports whether it fits the budget, with the time until the
// window resets.
func (l *actorLimiter) allow(key string) (bool, time.Duration) {
	if l == nil {
		return true, 0
	}
	if key == "" {
		key = "anonymous"
	}
	now := l.clock()
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.store[key]
	if !ok || !now.Before(entry.reset) {
		l.store[key] = window{count: 1, reset: now.Add(l.window)}
		l.pruneLocked(now)
		return true, 0
	}
	if entry.count >= l.limit {
		return false, entry.reset.Sub(now)
	}
	entry.count++
	l.store[key] = entry
	return true, 0
}

func (l *actorLimiter) pruneLocked(now time.Time) {
	for key, entry := range l.store {
		if !now.Before(entry.reset) {
			delete(l.store, key)
		}
	}
}

// middleware answers 429 with Retry-After once the actor exhausts the window.
func (l *actorLimiter) middleware(next http.Handler) http.Handler {
	if l == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, _ := requestctx.ActorFrom(r.Context())
		ok, retry := l.allow(actor.ID)
		if !ok {
			seconds := int(retry.Round(time.Second) / time.Second)
			w.Header().Set("Retry-After", strconv.Itoa(max(seconds, 1)))
			httpx.WriteError(r.Context(), w, httpx.NewError("rate_limited", "too many requests, slow down", http.StatusTooManyRequests))
			return
		}
		next.ServeHTTP(w, r)
	})
}
