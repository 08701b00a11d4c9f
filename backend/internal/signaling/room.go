package signaling

import (
	"sort"
	"time"

	"github.com/BioHazard786/Huddle/internal/wire"
)

// Participant is one connection's membership in a room.
type Participant struct {
	ID       string
	Name     string
	JoinedAt time.Time

	// seq breaks ties between joins stamped with the same instant.
	seq uint64
}

// Public is the view of p that is sent to other clients.
func (p Participant) Public() wire.Participant {
	return wire.Participant{ID: p.ID, Name: p.Name}
}

// Room is a set of participants sharing a code.
type Room struct {
	ID        string
	CreatedAt time.Time

	participants map[string]*Participant

	// emptySince is the instant the room last had no participants. It is
	// zero while anyone is inside.
	emptySince time.Time
}

func newRoom(id string, now time.Time) *Room {
	return &Room{
		ID:           id,
		CreatedAt:    now,
		participants: make(map[string]*Participant),
		emptySince:   now,
	}
}

// members returns the room's participants ordered by join time.
func (r *Room) members() []Participant {
	out := make([]Participant, 0, len(r.participants))
	for _, p := range r.participants {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}

// Summary is what the REST surface reports about a room.
type Summary struct {
	RoomID           string    `json:"roomId"`
	ParticipantCount int       `json:"participantCount"`
	CreatedAt        time.Time `json:"createdAt"`
}

func (r *Room) summary() Summary {
	return Summary{
		RoomID:           r.ID,
		ParticipantCount: len(r.participants),
		CreatedAt:        r.CreatedAt,
	}
}
