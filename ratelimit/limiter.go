// ABOUTME: Per-key sliding-window rate limiter with block-on-exceed
// ABOUTME: Category config table, read-only status, and periodic sweep

package ratelimit

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Category groups requests under a shared limit configuration.
type Category string

// Built-in categories. Additional ones can be registered with SetConfig.
const (
	CategoryAuth   Category = "auth"
	CategoryAPI    Category = "api"
	CategoryUpload Category = "upload"
	CategorySearch Category = "search"
)

// Config is the per-category limit. A zero BlockDuration means the category
// never blocks: over-limit requests are denied until the window rolls over.
// Changes apply to subsequent checks only.
type Config struct {
	MaxRequests   int
	Window        time.Duration
	BlockDuration time.Duration
}

// Result reports the outcome of a limit check or status query.
// BlockedUntil is zero unless an exceed-block is active.
type Result struct {
	Allowed      bool
	Remaining    int
	ResetTime    time.Time
	BlockedUntil time.Time
}

// RetryAfter returns how long until the caller may try again. Zero when the
// request was allowed.
func (r Result) RetryAfter() time.Duration {
	if r.Allowed {
		return 0
	}
	until := r.ResetTime
	if r.BlockedUntil.After(until) {
		until = r.BlockedUntil
	}
	d := time.Until(until)
	if d < 0 {
		return 0
	}
	return d
}

// ErrRateLimited is returned by Enforce when a check is denied.
var ErrRateLimited = errors.New("rate limit exceeded")

// entry tracks one (category, key) window.
type entry struct {
	count        int
	resetAt      time.Time
	blockedUntil time.Time
}

// Limiter enforces per-(category, key) request quotas. Each Check both
// inspects and consumes one slot; Status is the read-only variant. A
// background sweep bounds map growth by dropping fully-expired entries.
type Limiter struct {
	mu      sync.Mutex
	entries map[string]*entry
	configs map[Category]Config
	stop    chan struct{}
	once    sync.Once
}

const sweepInterval = time.Minute

// New creates a limiter with the default category table and starts the
// background sweep. Call Close when done to stop the sweep goroutine.
func New() *Limiter {
	l := &Limiter{
		entries: make(map[string]*entry),
		configs: map[Category]Config{
			CategoryAuth:   {MaxRequests: 5, Window: 15 * time.Minute, BlockDuration: 30 * time.Minute},
			CategoryAPI:    {MaxRequests: 100, Window: time.Minute, BlockDuration: 5 * time.Minute},
			CategoryUpload: {MaxRequests: 10, Window: time.Minute, BlockDuration: 10 * time.Minute},
			CategorySearch: {MaxRequests: 30, Window: time.Minute},
		},
		stop: make(chan struct{}),
	}
	go l.sweepLoop()
	return l
}

// SetConfig registers or replaces a category's limits.
func (l *Limiter) SetConfig(cat Category, cfg Config) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.configs[cat] = cfg
}

// Check consumes one request slot for (cat, key) and reports whether the
// request is allowed. There is no separate peek: every call counts.
// Unconfigured categories are not limited.
func (l *Limiter) Check(key string, cat Category) Result {
	l.mu.Lock()
	defer l.mu.Unlock()

	cfg, ok := l.configs[cat]
	if !ok {
		return Result{Allowed: true, Remaining: -1}
	}

	now := time.Now()
	k := entryKey(cat, key)
	e, exists := l.entries[k]

	// Active block denies outright, no accounting.
	if exists && now.Before(e.blockedUntil) {
		return Result{ResetTime: e.resetAt, BlockedUntil: e.blockedUntil}
	}

	// Start a new window if none exists or the current one expired. Any
	// lapsed block necessarily has a lapsed window too, so the entry is
	// replaced wholesale.
	// Use !now.Before (>=) so the boundary instant starts a new window.
	if !exists || !now.Before(e.resetAt) {
		e = &entry{count: 1, resetAt: now.Add(cfg.Window)}
		l.entries[k] = e
		return Result{Allowed: true, Remaining: cfg.MaxRequests - 1, ResetTime: e.resetAt}
	}

	e.count++
	if e.count <= cfg.MaxRequests {
		return Result{Allowed: true, Remaining: cfg.MaxRequests - e.count, ResetTime: e.resetAt}
	}

	// Limit exceeded within the window. Categories with a block duration
	// lock the key out past the window; the rest deny until rollover.
	if cfg.BlockDuration > 0 {
		e.blockedUntil = now.Add(cfg.BlockDuration)
		slog.Warn("rate limit exceeded, key blocked",
			"category", cat, "key", key, "blocked_until", e.blockedUntil)
	} else {
		slog.Debug("rate limit exceeded", "category", cat, "key", key, "reset", e.resetAt)
	}
	return Result{ResetTime: e.resetAt, BlockedUntil: e.blockedUntil}
}

// Status reports the current state for (cat, key) without consuming a slot.
// Keys with no entry (or an expired one) get a full-allowance snapshot.
func (l *Limiter) Status(key string, cat Category) Result {
	l.mu.Lock()
	defer l.mu.Unlock()

	cfg, ok := l.configs[cat]
	if !ok {
		return Result{Allowed: true, Remaining: -1}
	}

	now := time.Now()
	e, exists := l.entries[entryKey(cat, key)]
	if exists && now.Before(e.blockedUntil) {
		return Result{ResetTime: e.resetAt, BlockedUntil: e.blockedUntil}
	}
	if !exists || !now.Before(e.resetAt) {
		return Result{Allowed: true, Remaining: cfg.MaxRequests}
	}

	remaining := cfg.MaxRequests - e.count
	if remaining < 0 {
		remaining = 0
	}
	return Result{Allowed: remaining > 0, Remaining: remaining, ResetTime: e.resetAt}
}

// Reset deletes the entry for (cat, key), lifting any window or block
// immediately. Used for trusted events such as a completed password reset.
func (l *Limiter) Reset(key string, cat Category) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.entries, entryKey(cat, key))
}

// ClearAll drops every entry across all categories.
func (l *Limiter) ClearAll() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = make(map[string]*entry)
}

// Enforce is a Check that converts a denial into an error with a
// human-readable retry hint.
func (l *Limiter) Enforce(key string, cat Category) error {
	res := l.Check(key, cat)
	if res.Allowed {
		return nil
	}
	return fmt.Errorf("%w: try again in %s", ErrRateLimited, formatRetry(res.RetryAfter()))
}

// Close stops the background sweep. Safe to call more than once.
func (l *Limiter) Close() {
	l.once.Do(func() { close(l.stop) })
}

func (l *Limiter) sweepLoop() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-l.stop:
			return
		case now := <-ticker.C:
			l.sweep(now)
		}
	}
}

// sweep removes entries whose window AND block have both lapsed. Entries
// still inside a window or block must survive so denial state is preserved.
func (l *Limiter) sweep(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for k, e := range l.entries {
		if !now.Before(e.resetAt) && !now.Before(e.blockedUntil) {
			delete(l.entries, k)
		}
	}
}

func entryKey(cat Category, key string) string {
	return string(cat) + ":" + key
}

// formatRetry renders a duration as coarse human-friendly text for
// "try again in N" messaging.
func formatRetry(d time.Duration) string {
	switch {
	case d >= time.Minute:
		return fmt.Sprintf("%d minutes", int((d+time.Minute-1)/time.Minute))
	case d >= time.Second:
		return fmt.Sprintf("%d seconds", int((d+time.Second-1)/time.Second))
	default:
		return "a moment"
	}
}
