package rate

import (
	"context"
	"sync"
	"time"
)

// MemoryLimiter: el mismo fixed window, in-process. Para despliegues de
// un solo nodo sin Redis.
type MemoryLimiter struct {
	Max    int64
	Window time.Duration

	mu      sync.Mutex
	windows map[string]*window
}

type window struct {
	start time.Time
	hits  int64
}

func NewMemoryLimiter(max int, windowSize time.Duration) *MemoryLimiter {
	return &MemoryLimiter{
		Max:     int64(max),
		Window:  windowSize,
		windows: make(map[string]*window),
	}
}

func (l *MemoryLimiter) Allow(_ context.Context, key string) (Result, error) {
	now := time.Now().UTC()
	winStart := now.Truncate(l.Window)

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[key]
	if !ok || !w.start.Equal(winStart) {
		// Ventana nueva; de paso, barrer ventanas viejas de otras keys
		if len(l.windows) > 10_000 {
			for k, old := range l.windows {
				if !old.start.Equal(winStart) {
					delete(l.windows, k)
				}
			}
		}
		w = &window{start: winStart}
		l.windows[key] = w
	}
	w.hits++

	remaining := l.Max - w.hits
	if remaining < 0 {
		remaining = 0
	}
	ttl := l.Window - now.Sub(winStart)

	res := Result{
		Allowed:     w.hits <= l.Max,
		Remaining:   remaining,
		CurrentHits: w.hits,
		WindowTTL:   ttl,
	}
	if !res.Allowed {
		res.RetryAfter = ttl
	}
	return res, nil
}
