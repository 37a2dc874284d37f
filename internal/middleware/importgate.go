// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package middleware

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	"golang.org/x/sync/semaphore"

	"catalogadmin/internal/metrics"
)

// ImportLimits bounds the imports a single client may run.
type ImportLimits struct {
	// MaxActive is how many imports may stream at once. Each one holds a
	// database connection per chunk for as long as the upload takes.
	MaxActive int
	// PerWindow is how many imports may start within Window.
	PerWindow int
	Window    time.Duration
}

// busyRetryAfter is advertised to a client that is at MaxActive; how long
// its running import will take is unknown.
const busyRetryAfter = 30 * time.Second

// rejection names why an import was refused.
type rejection string

const (
	rejectBusy rejection = "busy"
	rejectRate rejection = "rate"
)

func (r rejection) message() string {
	if r == rejectBusy {
		return "An import is already running for this client. Please wait for it to finish."
	}
	return "Too many imports. Please try again later."
}

// importSlots are the concurrent import slots of one client.
type importSlots struct {
	sem     *semaphore.Weighted
	holders int
}

// ImportGate admits import requests per client IP. A client is refused while
// it has MaxActive imports streaming, or once it has started PerWindow
// imports within Window. Starts are counted by a ulule limiter whose store
// may be shared between server instances; running imports are local.
type ImportGate struct {
	limits ImportLimits
	starts *limiter.Limiter
	now    func() time.Time

	mu      sync.Mutex
	clients map[string]*importSlots
}

// NewImportGate returns a gate enforcing l, counting starts in store. A nil
// store keeps the counts in memory. Non-positive limits fall back to one
// import at a time, one per minute.
func NewImportGate(l ImportLimits, store limiter.Store) *ImportGate {
	if l.MaxActive < 1 {
		l.MaxActive = 1
	}
	if l.PerWindow < 1 {
		l.PerWindow = 1
	}
	if l.Window <= 0 {
		l.Window = time.Minute
	}
	if store == nil {
		store = memory.NewStoreWithOptions(limiter.StoreOptions{
			Prefix:          "catalog:import-gate",
			CleanUpInterval: l.Window,
		})
	}
	return &ImportGate{
		limits:  l,
		starts:  limiter.New(store, limiter.Rate{Period: l.Window, Limit: int64(l.PerWindow)}),
		now:     time.Now,
		clients: make(map[string]*importSlots),
	}
}

// acquire admits an import for key. When admitted, release must be called
// once the import is over; otherwise release is nil and reason and wait say
// why and for how long.
func (g *ImportGate) acquire(ctx context.Context, key string) (release func(), reason rejection, wait time.Duration) {
	g.mu.Lock()
	slots := g.clients[key]
	if slots == nil {
		slots = &importSlots{sem: semaphore.NewWeighted(int64(g.limits.MaxActive))}
		g.clients[key] = slots
	}
	if !slots.sem.TryAcquire(1) {
		g.mu.Unlock()
		return nil, rejectBusy, busyRetryAfter
	}
	slots.holders++
	g.mu.Unlock()

	var once sync.Once
	release = func() {
		once.Do(func() {
			g.mu.Lock()
			defer g.mu.Unlock()
			slots.sem.Release(1)
			if slots.holders--; slots.holders == 0 {
				delete(g.clients, key)
			}
		})
	}

	lctx, err := g.starts.Get(ctx, key)
	if err != nil {
		// A shared store that is down must not stop imports altogether.
		slog.Warn("import rate store unavailable, admitting", "ip", key, "error", err)
		return release, "", 0
	}
	if lctx.Reached {
		release()
		return nil, rejectRate, time.Unix(lctx.Reset, 0).Sub(g.now())
	}
	return release, "", 0
}

// Middleware admits the wrapped import handler through the gate. Refused
// requests get a JSON 429 with Retry-After; admitted ones hold their slot
// until the handler returns, which for a streamed import is the end of the
// run.
func (g *ImportGate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		release, reason, wait := g.acquire(r.Context(), ip)
		if release == nil {
			metrics.RecordImportRejected(string(reason))
			slog.Warn("import refused", "ip", ip, "reason", reason, "retry_after", wait)
			w.Header().Set("Retry-After", strconv.Itoa(retrySeconds(wait)))
			writeError(w, http.StatusTooManyRequests, reason.message())
			return
		}

		metrics.AddActiveImports(1)
		defer func() {
			metrics.AddActiveImports(-1)
			release()
		}()
		next.ServeHTTP(w, r)
	})
}

func retrySeconds(d time.Duration) int {
	return max(1, int((d+time.Second-1)/time.Second))
}

// clientIP returns the originating client address. The leftmost
// X-Forwarded-For entry wins, then X-Real-IP, then the connection's host.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
