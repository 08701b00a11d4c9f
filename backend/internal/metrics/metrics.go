// Package metrics counts relay events for the /metrics endpoint.
package metrics

import "sync"

// Event names.
const (
	Connections          = "connections"
	Disconnections       = "disconnections"
	RoomsCreated         = "rooms_created"
	RoomJoins            = "room_joins"
	RoomLeaves           = "room_leaves"
	RoomsSwept           = "rooms_swept"
	MessagesRelayed      = "messages_relayed"
	DroppedInvalid       = "dropped_invalid"
	DroppedRateLimited   = "dropped_rate_limited"
	DroppedNotInRoom     = "dropped_not_in_room"
	DroppedUnknownTarget = "dropped_unknown_target"
	ClientsEvicted       = "clients_evicted"
)

// Metrics is a concurrency-safe counter registry.
type Metrics struct {
	mu sync.Mutex
	m  map[string]uint64
}

func New() *Metrics {
	return &Metrics{
		m: make(map[string]uint64),
	}
}

// Inc is a no-op on a nil registry so components can run without metrics.
func (m *Metrics) Inc(name string) {
	m.Add(name, 1)
}

func (m *Metrics) Add(name string, delta uint64) {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.m[name] += delta
	m.mu.Unlock()
}

func (m *Metrics) Get(name string) uint64 {
	if m == nil {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.m[name]
}

func (m *Metrics) Snapshot() map[string]uint64 {
	out := make(map[string]uint64)
	if m == nil {
		return out
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range m.m {
		out[k] = v
	}
	return out
}
