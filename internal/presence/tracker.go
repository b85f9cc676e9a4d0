// Package presence keeps the roster of live notification stream
// connections.
//
// The stream handlers register a connection when it opens, report every
// delivery attempt, and remove it when the handler returns. Operators read
// the roster through GET /v1/admin/connections.
package presence

import (
	"sort"
	"sync"
	"time"
)

// Transports a connection can use.
const (
	TransportSSE = "sse"
	TransportWS  = "ws"
)

// Entry is a snapshot of one live connection.
type Entry struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	Transport    string    `json:"transport"`
	RemoteAddr   string    `json:"remote_addr,omitempty"`
	ConnectedAt  time.Time `json:"connected_at"`
	LastDelivery time.Time `json:"last_delivery,omitzero"`
	Delivered    int64     `json:"delivered"`
	Dropped      int64     `json:"dropped"`
	IdleSecs     float64   `json:"idle_secs"` // seconds since the last delivery or connect
}

// Conn describes a connection being registered.
type Conn struct {
	ID         string
	UserID     string
	Transport  string
	RemoteAddr string
}

// Tracker maintains an in-memory roster of live connections.
type Tracker struct {
	mu    sync.RWMutex
	conns map[string]*connState
	now   func() time.Time
}

type connState struct {
	userID       string
	transport    string
	remoteAddr   string
	connectedAt  time.Time
	lastDelivery time.Time
	delivered    int64
	dropped      int64
}

// New creates an empty tracker.
func New() *Tracker {
	return &Tracker{
		conns: make(map[string]*connState),
		now:   time.Now,
	}
}

// Connect registers a connection. Registering an existing id resets it.
func (t *Tracker) Connect(c Conn) {
	if c.ID == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.conns[c.ID] = &connState{
		userID:      c.UserID,
		transport:   c.Transport,
		remoteAddr:  c.RemoteAddr,
		connectedAt: t.now(),
	}
}

// Disconnect removes a connection. Unknown ids are ignored.
func (t *Tracker) Disconnect(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.conns, id)
}

// RecordDelivery counts one delivery attempt for a connection. A dropped
// delivery is one the connection's queue could not accept.
func (t *Tracker) RecordDelivery(id string, dropped bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	state, ok := t.conns[id]
	if !ok {
		return
	}
	if dropped {
		state.dropped++
		return
	}
	state.delivered++
	state.lastDelivery = t.now()
}

// Count returns the number of live connections.
func (t *Tracker) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.conns)
}

// Roster returns a snapshot of live connections, most recently connected
// first. A non-empty userID restricts the roster to that user.
func (t *Tracker) Roster(userID string) []Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()

	now := t.now()
	entries := make([]Entry, 0, len(t.conns))
	for id, state := range t.conns {
		if userID != "" && state.userID != userID {
			continue
		}
		last := state.connectedAt
		if state.lastDelivery.After(last) {
			last = state.lastDelivery
		}
		entries = append(entries, Entry{
			ID:           id,
			UserID:       state.userID,
			Transport:    state.transport,
			RemoteAddr:   state.remoteAddr,
			ConnectedAt:  state.connectedAt,
			LastDelivery: state.lastDelivery,
			Delivered:    state.delivered,
			Dropped:      state.dropped,
			IdleSecs:     now.Sub(last).Seconds(),
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].ConnectedAt.Equal(entries[j].ConnectedAt) {
			return entries[i].ID < entries[j].ID
		}
		return entries[i].ConnectedAt.After(entries[j].ConnectedAt)
	})
	return entries
}
