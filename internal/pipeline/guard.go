package pipeline

import (
	"sync"
	"time"
)

// Guard suppresses repeated submissions of the same trip id inside a
// cooldown window. Uploaders retry aggressively and the same trip can arrive
// over REST, Kafka and the spool directory.
type Guard struct {
	mu       sync.Mutex
	last     map[string]time.Time
	cooldown time.Duration
	now      func() time.Time
}

func NewGuard(cooldown time.Duration) *Guard {
	return &Guard{
		last:     make(map[string]time.Time),
		cooldown: cooldown,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Allow reports whether key may proceed and records it when it may.
func (g *Guard) Allow(key string) bool {
	if g == nil || g.cooldown <= 0 || key == "" {
		return true
	}
	now := g.now()
	g.mu.Lock()
	defer g.mu.Unlock()
	if ts, ok := g.last[key]; ok && now.Sub(ts) < g.cooldown {
		return false
	}
	g.last[key] = now
	g.prune(now)
	return true
}

// Forget releases key so a corrected resubmission is not blocked.
func (g *Guard) Forget(key string) {
	if g == nil {
		return
	}
	g.mu.Lock()
	delete(g.last, key)
	g.mu.Unlock()
}

func (g *Guard) prune(now time.Time) {
	if len(g.last) < 1024 {
		return
	}
	for k, ts := range g.last {
		if now.Sub(ts) >= g.cooldown {
			delete(g.last, k)
		}
	}
}
