package signaling

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/BioHazard786/Huddle/backend/internal/clock"
	"github.com/BioHazard786/Huddle/backend/internal/metrics"
	"github.com/BioHazard786/Huddle/internal/roomcode"
	"github.com/rs/zerolog/log"
)

// DefaultRetention is how long an empty room is kept before the sweep drops it.
const DefaultRetention = 24 * time.Hour

var ErrInvalidRoomID = errors.New("invalid room id")

// JoinResult describes the effect of a Join.
type JoinResult struct {
	RoomID string

	// Existing holds the members that were present before the join,
	// ordered by join time. It never contains the joiner.
	Existing []Participant

	// Rejoined is set when the participant was already in RoomID.
	Rejoined bool

	// Left is non-nil when the join moved the participant out of another room.
	Left *LeaveResult
}

// LeaveResult describes a participant's removal from a room.
type LeaveResult struct {
	RoomID      string
	Participant Participant

	// Remaining are the members still in the room after the removal.
	Remaining []Participant
}

// Registry owns the room table and the participant to room index. All
// access goes through its methods, which are safe for concurrent use.
type Registry struct {
	mu      sync.Mutex
	rooms   map[string]*Room
	members map[string]string
	seq     uint64

	clock     clock.Clock
	retention time.Duration
	metrics   *metrics.Metrics
}

// NewRegistry returns an empty registry. A nil clock uses wall time and a
// non-positive retention uses DefaultRetention.
func NewRegistry(c clock.Clock, retention time.Duration, m *metrics.Metrics) *Registry {
	if c == nil {
		c = clock.RealClock{}
	}
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Registry{
		rooms:     make(map[string]*Room),
		members:   make(map[string]string),
		clock:     c,
		retention: retention,
		metrics:   m,
	}
}

// CreateRoom registers an empty room under a fresh code.
func (r *Registry) CreateRoom() string {
	r.mu.Lock()
	defer r.mu.Unlock()

	for {
		id := roomcode.Generate()
		if _, taken := r.rooms[id]; taken {
			continue
		}
		r.rooms[id] = newRoom(id, r.clock.Now())
		r.metrics.Inc(metrics.RoomsCreated)
		return id
	}
}

// Join places participantID in roomID, creating the room if needed.
func (r *Registry) Join(roomID, participantID, name string) (JoinResult, error) {
	roomID = strings.TrimSpace(roomID)
	if roomID == "" || participantID == "" {
		return JoinResult{}, ErrInvalidRoomID
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	res := JoinResult{RoomID: roomID}

	if current, ok := r.members[participantID]; ok {
		if current == roomID {
			room := r.rooms[roomID]
			p := room.participants[participantID]
			p.Name = name
			res.Rejoined = true
			res.Existing = without(room.members(), participantID)
			return res, nil
		}
		if left, ok := r.removeLocked(participantID); ok {
			res.Left = &left
		}
	}

	now := r.clock.Now()
	room, ok := r.rooms[roomID]
	if !ok {
		room = newRoom(roomID, now)
		r.rooms[roomID] = room
		r.metrics.Inc(metrics.RoomsCreated)
	}

	res.Existing = room.members()

	r.seq++
	room.participants[participantID] = &Participant{
		ID:       participantID,
		Name:     name,
		JoinedAt: now,
		seq:      r.seq,
	}
	room.emptySince = time.Time{}
	r.members[participantID] = roomID
	r.metrics.Inc(metrics.RoomJoins)

	return res, nil
}

// Leave removes participantID from its room. The second call for the same
// participant reports false and changes nothing.
func (r *Registry) Leave(participantID string) (LeaveResult, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.removeLocked(participantID)
}

func (r *Registry) removeLocked(participantID string) (LeaveResult, bool) {
	roomID, ok := r.members[participantID]
	if !ok {
		return LeaveResult{}, false
	}
	delete(r.members, participantID)

	room, ok := r.rooms[roomID]
	if !ok {
		return LeaveResult{}, false
	}
	p, ok := room.participants[participantID]
	if !ok {
		return LeaveResult{}, false
	}
	delete(room.participants, participantID)
	if len(room.participants) == 0 {
		room.emptySince = r.clock.Now()
	}
	r.metrics.Inc(metrics.RoomLeaves)

	return LeaveResult{
		RoomID:      roomID,
		Participant: *p,
		Remaining:   room.members(),
	}, true
}

// Get returns a summary of roomID.
func (r *Registry) Get(roomID string) (Summary, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[roomID]
	if !ok {
		return Summary{}, false
	}
	return room.summary(), true
}

// Members returns the participants of roomID ordered by join time.
func (r *Registry) Members(roomID string) []Participant {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[roomID]
	if !ok {
		return nil
	}
	return room.members()
}

// RoomOf returns the room participantID is in.
func (r *Registry) RoomOf(participantID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.members[participantID]
	return id, ok
}

// Stats reports the number of rooms and of participants across all rooms.
func (r *Registry) Stats() (rooms, participants int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms), len(r.members)
}

// Sweep deletes rooms that have been empty for at least the retention
// window and returns their ids.
func (r *Registry) Sweep() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock.Now()
	var swept []string
	for id, room := range r.rooms {
		if len(room.participants) > 0 || room.emptySince.IsZero() {
			continue
		}
		if now.Sub(room.emptySince) >= r.retention {
			delete(r.rooms, id)
			swept = append(swept, id)
		}
	}
	if len(swept) > 0 {
		r.metrics.Add(metrics.RoomsSwept, uint64(len(swept)))
	}
	return swept
}

// RunSweeper calls Sweep every interval until ctx is done.
func (r *Registry) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if swept := r.Sweep(); len(swept) > 0 {
				log.Info().Strs("rooms", swept).Msg("Swept empty rooms")
			}
		}
	}
}

func without(ps []Participant, id string) []Participant {
	out := ps[:0]
	for _, p := range ps {
		if p.ID != id {
			out = append(out, p)
		}
	}
	return out
}
