package proxy

import (
	"math/rand/v2"
	"sync"
	"time"
)

// Manager hands out proxies round-robin and user agents at random. A proxy
// reported as failing is benched and skipped until its bench time passes.
type Manager struct {
	mu      sync.Mutex
	proxies []string
	agents  []string
	next    int
	benched map[string]time.Time
	now     func() time.Time
}

// NewManager returns a manager over the configured proxies and user agents.
// Either list may be empty; a nil *Manager behaves like an empty one.
func NewManager(proxies, userAgents []string) *Manager {
	return &Manager{
		proxies: append([]string(nil), proxies...),
		agents:  append([]string(nil), userAgents...),
		benched: make(map[string]time.Time),
		now:     time.Now,
	}
}

// GetProxy returns the next usable proxy URL, or "" for a direct connection.
// When every proxy is benched the rotation continues regardless.
func (m *Manager) GetProxy() string {
	if m == nil || len(m.proxies) == 0 {
		return ""
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for range m.proxies {
		p := m.advanceLocked()
		until, ok := m.benched[p]
		if !ok {
			return p
		}
		if !now.Before(until) {
			delete(m.benched, p)
			return p
		}
	}
	return m.advanceLocked()
}

func (m *Manager) advanceLocked() string {
	p := m.proxies[m.next]
	m.next = (m.next + 1) % len(m.proxies)
	return p
}

// Bench takes proxy out of rotation for d.
func (m *Manager) Bench(proxy string, d time.Duration) {
	if m == nil || proxy == "" {
		return
	}
	m.mu.Lock()
	m.benched[proxy] = m.now().Add(d)
	m.mu.Unlock()
}

// GetUserAgent returns a random user agent, or "" to keep the client default.
func (m *Manager) GetUserAgent() string {
	if m == nil || len(m.agents) == 0 {
		return ""
	}
	return m.agents[rand.IntN(len(m.agents))]
}
