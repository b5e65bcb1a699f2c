package prompt

import (
	"log/slog"
	"sync"
	"time"
)

// timerEntry tracks information about a scheduled timer
type timerEntry struct {
	timer       *time.Timer
	scheduledAt time.Time
	expiresAt   time.Time
}

// expiryTimer arms one timeout per pending collection, keyed by task id.
type expiryTimer struct {
	timers map[string]*timerEntry
	mu     sync.RWMutex
}

func newExpiryTimer() *expiryTimer {
	return &expiryTimer{
		timers: make(map[string]*timerEntry),
	}
}

// schedule runs fn after delay unless the timer is cancelled first.
func (t *expiryTimer) schedule(id string, delay time.Duration, fn func()) time.Time {
	now := time.Now()
	expiresAt := now.Add(delay)

	timer := time.AfterFunc(delay, func() {
		slog.Debug("expiryTimer firing", "id", id)
		t.mu.Lock()
		delete(t.timers, id)
		t.mu.Unlock()
		fn()
	})

	t.mu.Lock()
	if old, ok := t.timers[id]; ok {
		old.timer.Stop()
	}
	t.timers[id] = &timerEntry{
		timer:       timer,
		scheduledAt: now,
		expiresAt:   expiresAt,
	}
	t.mu.Unlock()

	slog.Debug("expiryTimer scheduled", "id", id, "delay", delay)
	return expiresAt
}

// reset pushes the expiry of an armed timer delay into the future. It
// reports false when the timer already fired or was cancelled.
func (t *expiryTimer) reset(id string, delay time.Duration) (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.timers[id]
	if !ok || !entry.timer.Stop() {
		return time.Time{}, false
	}
	entry.scheduledAt = time.Now()
	entry.expiresAt = entry.scheduledAt.Add(delay)
	entry.timer.Reset(delay)
	return entry.expiresAt, true
}

// cancel stops the timer for id, if any.
func (t *expiryTimer) cancel(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if entry, ok := t.timers[id]; ok {
		entry.timer.Stop()
		delete(t.timers, id)
	}
}

// expiresAt returns when the timer for id fires.
func (t *expiryTimer) expiresAt(id string) (time.Time, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	entry, ok := t.timers[id]
	if !ok {
		return time.Time{}, false
	}
	return entry.expiresAt, true
}

// stop cancels all timers.
func (t *expiryTimer) stop() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, entry := range t.timers {
		entry.timer.Stop()
	}
	slog.Debug("expiryTimer stopped all timers", "count", len(t.timers))
	t.timers = make(map[string]*timerEntry)
}
