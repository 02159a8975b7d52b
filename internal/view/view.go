package view

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/DoyleJ11/planning-poker-backend/internal/geometry"
	"github.com/DoyleJ11/planning-poker-backend/internal/room"
	"github.com/DoyleJ11/planning-poker-backend/pkg/types"
)

// ToRoomView projects r for the connection forConnID. Other participants'
// votes stay hidden until the room is revealed; HasVoted is always exposed.
// The result shares no memory with r.
func ToRoomView(r *room.Room, forConnID string) types.RoomView {
	members := r.Members()
	v := types.RoomView{
		ID:           r.ID,
		Name:         r.Name,
		CardSetType:  string(r.CardSetType),
		Phase:        string(r.Phase),
		CurrentIssue: r.CurrentIssue,
		CreatorID:    r.CreatorID,
		FightEnabled: r.FightEnabled,
		Participants: make([]types.ParticipantView, 0, len(members)),
	}
	for _, p := range members {
		pv := types.ParticipantView{
			ID:          p.ID,
			Name:        p.Name,
			IsSpectator: p.IsSpectator,
			IsCreator:   p.IsCreator,
			HasVoted:    p.HasVoted(),
			IsConnected: p.IsConnected,
			Position:    Position(p.Position),
		}
		if p.HasVoted() && (r.Phase == room.PhaseRevealed || p.ID == forConnID) {
			vote := p.Vote
			pv.Vote = &vote
		}
		v.Participants = append(v.Participants, pv)
	}
	return v
}

func Position(p geometry.Point) types.Position {
	return types.Position{X: p.X, Y: p.Y}
}

// ComputeResults tallies the votes of non-spectators. Values that parse as
// numbers feed the average, rounded to one decimal; the rest only count
// towards the distribution.
func ComputeResults(participants map[string]*room.Participant) types.VoteResults {
	res := types.VoteResults{Distribution: map[string]int{}}
	var sum float64
	var n int
	for _, p := range participants {
		if p.IsSpectator || !p.HasVoted() {
			continue
		}
		res.Distribution[p.Vote]++
		if f, ok := numeric(p.Vote); ok {
			sum += f
			n++
		}
	}
	if n > 0 {
		avg := math.Floor(sum/float64(n)*10+0.5) / 10
		res.Average = &avg
	}
	return res
}

// leadingNumber matches the decimal number a vote starts with, so "5pts"
// counts as 5 and "0x10" as 0.
var leadingNumber = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?`)

func numeric(s string) (float64, bool) {
	m := leadingNumber.FindString(strings.TrimLeftFunc(s, unicode.IsSpace))
	if m == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(m, 64)
	if err != nil || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
