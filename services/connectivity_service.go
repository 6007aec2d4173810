package services

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Pinger reports whether the backend is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ConnectivityMonitor polls the backend and publishes online/offline
// transitions. The mutation coordinator consults it to refuse pin creation
// while offline; serving cached assets is the service worker's job, not ours.
type ConnectivityMonitor struct {
	pinger   Pinger
	interval time.Duration

	// dispatchMu serializes transitions end to end; mu only guards the
	// fields, so handlers may call back into Online.
	dispatchMu sync.Mutex
	mu         sync.Mutex
	online     bool
	handlers   []func(online bool)
}

func NewConnectivityMonitor(pinger Pinger, interval time.Duration) *ConnectivityMonitor {
	return &ConnectivityMonitor{
		pinger:   pinger,
		interval: interval,
		online:   true,
	}
}

// Online reports the last observed connectivity state.
func (m *ConnectivityMonitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// OnConnectivityChange registers a handler for online/offline transitions.
// Dispatch is serialized.
func (m *ConnectivityMonitor) OnConnectivityChange(handler func(online bool)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers = append(m.handlers, handler)
}

// Start polls until ctx is done.
func (m *ConnectivityMonitor) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.check(ctx)
			}
		}
	}()
}

func (m *ConnectivityMonitor) check(ctx context.Context) {
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	online := m.pinger.Ping(pingCtx) == nil
	m.setOnline(online)
}

func (m *ConnectivityMonitor) setOnline(online bool) {
	m.dispatchMu.Lock()
	defer m.dispatchMu.Unlock()

	m.mu.Lock()
	if online == m.online {
		m.mu.Unlock()
		return
	}
	m.online = online
	handlers := m.handlers
	m.mu.Unlock()

	if online {
		log.Info().Msg("backend reachable again")
	} else {
		log.Warn().Msg("backend unreachable, going offline")
	}
	for _, handler := range handlers {
		handler(online)
	}
}
