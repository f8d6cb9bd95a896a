package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Monitor watches venue adapter liveness. Adapters call Touch after every
// successful cycle; when one goes quiet for longer than staleAfter the monitor
// raises an alert (deduplicated by the notifier's cooldown).
type Monitor struct {
	notifier   *Notifier
	staleAfter time.Duration
	log        *slog.Logger

	mu   sync.Mutex
	last map[string]time.Time
	now  func() time.Time
}

func NewMonitor(notifier *Notifier, staleAfter time.Duration, log *slog.Logger) *Monitor {
	return &Monitor{
		notifier:   notifier,
		staleAfter: staleAfter,
		log:        log,
		last:       make(map[string]time.Time),
		now:        time.Now,
	}
}

// Touch records a successful cycle for an adapter and registers it for
// staleness tracking.
func (m *Monitor) Touch(adapter string) {
	m.mu.Lock()
	m.last[adapter] = m.now()
	m.mu.Unlock()
}

// Run checks liveness until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	interval := m.staleAfter / 2
	if interval < time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for adapter, age := range m.stale() {
				m.log.Warn("venue adapter is stale", "adapter", adapter, "age", age)
				m.notifier.Alert("stale:"+adapter,
					fmt.Sprintf("odds-engine: no data from %s for %s", adapter, age.Round(time.Second)))
			}
		}
	}
}

func (m *Monitor) stale() map[string]time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]time.Duration)
	now := m.now()
	for adapter, last := range m.last {
		if age := now.Sub(last); age > m.staleAfter {
			out[adapter] = age
		}
	}
	return out
}
