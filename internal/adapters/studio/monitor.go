package studio

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/PabloGalante/robovibe-agent/internal/observability"
)

// Monitor polls the liveness probe in the background and caches the result.
type Monitor struct {
	client    *Client
	interval  time.Duration
	connected atomic.Bool
}

func NewMonitor(client *Client, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Monitor{client: client, interval: interval}
}

// Run probes immediately and then every interval until ctx is done.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.Probe(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Probe(ctx)
		}
	}
}

// Probe runs one liveness check and records its result.
func (m *Monitor) Probe(ctx context.Context) bool {
	ok := m.client.Status(ctx)
	if prev := m.connected.Swap(ok); prev != ok {
		observability.Logger().Info("studio connectivity changed", "connected", ok, "url", m.client.BaseURL())
	}
	if ok {
		observability.StudioConnected.Set(1)
	} else {
		observability.StudioConnected.Set(0)
	}
	return ok
}

// Connected returns the last probe result.
func (m *Monitor) Connected() bool {
	return m.connected.Load()
}
