package room

import (
	"sort"
	"time"

	"github.com/DoyleJ11/planning-poker-backend/internal/geometry"
)

type Phase string

const (
	PhaseVoting   Phase = "voting"
	PhaseRevealed Phase = "revealed"
)

type Participant struct {
	ID          string
	Name        string
	IsSpectator bool
	IsCreator   bool
	Vote        string // "" means no vote
	IsConnected bool
	Position    geometry.Point

	seq uint64
}

func (p *Participant) HasVoted() bool { return p.Vote != "" }

type Room struct {
	ID           string
	Name         string
	CardSetType  CardSetType
	Phase        Phase
	CurrentIssue string
	Participants map[string]*Participant
	CreatorID    string // "" while no connected participant could take over
	CreatedAt    time.Time
	FightEnabled bool
}

// Members returns the participants in join order.
func (r *Room) Members() []*Participant {
	out := make([]*Participant, 0, len(r.Participants))
	for _, p := range r.Participants {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}

// positions returns the positions of every participant except skipID.
func (r *Room) positions(skipID string) []geometry.Point {
	out := make([]geometry.Point, 0, len(r.Participants))
	for id, p := range r.Participants {
		if id == skipID {
			continue
		}
		out = append(out, p.Position)
	}
	return out
}

// findDisconnected returns the first disconnected participant called name,
// in join order.
func (r *Room) findDisconnected(name string) *Participant {
	for _, p := range r.Members() {
		if p.Name == name && !p.IsConnected {
			return p
		}
	}
	return nil
}
