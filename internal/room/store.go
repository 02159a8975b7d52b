package room

import (
	"time"

	"github.com/DoyleJ11/planning-poker-backend/internal/geometry"
)

const DefaultGracePeriod = 60 * time.Second

type Timer interface {
	Stop() bool
}

// Scheduler runs f after d. Callbacks must be delivered on the goroutine that
// owns the Store.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type graceTimer struct {
	timer Timer
}

// Store is the registry of live rooms. It is not safe for concurrent use:
// one goroutine owns it and every mutation runs to completion on it.
//
// Invariant: every byConn entry names a room that holds that connection as a
// participant, and every participant of every room has a byConn entry. Only
// index and unindex touch byConn.
type Store struct {
	rooms  map[string]*Room
	byConn map[string]string
	grace  map[string]*graceTimer

	sched       Scheduler
	gracePeriod time.Duration
	newID       func() (string, error)
	now         func() time.Time
	onExpire    func(roomID string, removed *Participant)
	seq         uint64
}

type Option func(*Store)

func WithGracePeriod(d time.Duration) Option {
	return func(s *Store) { s.gracePeriod = d }
}

func WithIDGenerator(f func() (string, error)) Option {
	return func(s *Store) { s.newID = f }
}

// WithExpiryHook registers f to run after a grace period expires and the
// participant has been removed. roomID may name a room that no longer exists.
func WithExpiryHook(f func(roomID string, removed *Participant)) Option {
	return func(s *Store) { s.onExpire = f }
}

func NewStore(sched Scheduler, opts ...Option) *Store {
	s := &Store{
		rooms:       make(map[string]*Room),
		byConn:      make(map[string]string),
		grace:       make(map[string]*graceTimer),
		sched:       sched,
		gracePeriod: DefaultGracePeriod,
		newID:       GenerateID,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) index(connID, roomID string) { s.byConn[connID] = roomID }

func (s *Store) unindex(connID string) { delete(s.byConn, connID) }

func (s *Store) Get(roomID string) (*Room, bool) {
	r, ok := s.rooms[roomID]
	return r, ok
}

func (s *Store) Exists(roomID string) bool {
	_, ok := s.rooms[roomID]
	return ok
}

// RoomOf returns the room the connection currently sits in.
func (s *Store) RoomOf(connID string) (*Room, bool) {
	rid, ok := s.byConn[connID]
	if !ok {
		return nil, false
	}
	r, ok := s.rooms[rid]
	return r, ok
}

func (s *Store) NumRooms() int { return len(s.rooms) }

func (s *Store) member(connID string) (*Room, *Participant, error) {
	r, ok := s.RoomOf(connID)
	if !ok {
		return nil, nil, ErrNotInRoom
	}
	p, ok := r.Participants[connID]
	if !ok {
		return nil, nil, ErrNotInRoom
	}
	return r, p, nil
}

func (s *Store) creator(connID string) (*Room, error) {
	r, _, err := s.member(connID)
	if err != nil {
		return nil, err
	}
	if r.CreatorID != connID {
		return nil, ErrNotCreator
	}
	return r, nil
}

func (s *Store) allocateID() (string, error) {
	for i := 0; i < maxIDAttempts; i++ {
		id, err := s.newID()
		if err != nil {
			return "", err
		}
		if !s.Exists(id) {
			return id, nil
		}
	}
	return "", ErrIDSpace
}

func (s *Store) newParticipant(r *Room, connID, name string, spectator bool) *Participant {
	s.seq++
	p := &Participant{
		ID:          connID,
		Name:        name,
		IsSpectator: spectator,
		IsConnected: true,
		Position:    geometry.SpawnPosition(len(r.Participants), len(r.Participants)+1, r.positions("")),
		seq:         s.seq,
	}
	r.Participants[connID] = p
	s.index(connID, r.ID)
	return p
}

// CreateRoom registers a new room with connID as its only participant and creator.
func (s *Store) CreateRoom(roomName string, cardSet CardSetType, userName, connID string) (*Room, error) {
	if _, ok := s.byConn[connID]; ok {
		return nil, ErrInOtherRoom
	}
	id, err := s.allocateID()
	if err != nil {
		return nil, err
	}
	r := &Room{
		ID:           id,
		Name:         roomName,
		CardSetType:  cardSet,
		Phase:        PhaseVoting,
		Participants: make(map[string]*Participant),
		CreatorID:    connID,
		CreatedAt:    s.now(),
		FightEnabled: true,
	}
	s.rooms[id] = r
	p := s.newParticipant(r, connID, userName, false)
	p.IsCreator = true
	return r, nil
}

// JoinRoom adds connID to the room. Joining again with the same connection
// refreshes the existing seat instead of creating a second one.
func (s *Store) JoinRoom(roomID, userName string, isSpectator bool, connID string) (*Room, error) {
	r, ok := s.rooms[roomID]
	if !ok {
		return nil, ErrRoomNotFound
	}
	if rid, ok := s.byConn[connID]; ok && rid != roomID {
		return nil, ErrInOtherRoom
	}
	if p, ok := r.Participants[connID]; ok {
		s.cancelGrace(connID)
		p.Name = userName
		p.IsConnected = true
		return r, nil
	}
	s.newParticipant(r, connID, userName, isSpectator)
	return r, nil
}

// CastVote records value as the caller's vote; an empty value clears it.
// Votes are accepted in either phase.
func (s *Store) CastVote(connID, value string) (*Room, error) {
	r, p, err := s.member(connID)
	if err != nil {
		return nil, err
	}
	if p.IsSpectator {
		return nil, ErrSpectator
	}
	p.Vote = value
	return r, nil
}

func (s *Store) RevealVotes(connID string) (*Room, error) {
	r, err := s.creator(connID)
	if err != nil {
		return nil, err
	}
	r.Phase = PhaseRevealed
	return r, nil
}

func (s *Store) ResetVotes(connID string) (*Room, error) {
	r, err := s.creator(connID)
	if err != nil {
		return nil, err
	}
	r.Phase = PhaseVoting
	for _, p := range r.Participants {
		p.Vote = ""
	}
	return r, nil
}

func (s *Store) SetIssue(connID, issue string) (*Room, error) {
	r, err := s.creator(connID)
	if err != nil {
		return nil, err
	}
	r.CurrentIssue = issue
	return r, nil
}

func (s *Store) ToggleFight(connID string) (*Room, error) {
	r, err := s.creator(connID)
	if err != nil {
		return nil, err
	}
	r.FightEnabled = !r.FightEnabled
	return r, nil
}

// MovePlayer commits the nearest collision-free point to (x, y) and returns
// the position actually stored.
func (s *Store) MovePlayer(connID string, x, y float64) (*Room, geometry.Point, error) {
	r, p, err := s.member(connID)
	if err != nil {
		return nil, geometry.Point{}, err
	}
	p.Position = geometry.ResolveMove(geometry.Point{X: x, Y: y}, r.positions(connID))
	return r, p.Position, nil
}

// HandleDisconnect marks the participant as away and schedules its removal
// after the grace period.
func (s *Store) HandleDisconnect(connID string) (*Room, bool) {
	r, p, err := s.member(connID)
	if err != nil {
		return nil, false
	}
	p.IsConnected = false

	s.cancelGrace(connID)
	g := &graceTimer{}
	s.grace[connID] = g
	g.timer = s.sched.AfterFunc(s.gracePeriod, func() { s.expire(connID, g) })
	return r, true
}

func (s *Store) cancelGrace(connID string) {
	if g, ok := s.grace[connID]; ok {
		if g.timer != nil {
			g.timer.Stop()
		}
		delete(s.grace, connID)
	}
}

func (s *Store) expire(connID string, g *graceTimer) {
	// A reconnect or a newer disconnect replaces or removes the entry, which
	// turns this callback into a no-op.
	if s.grace[connID] != g {
		return
	}
	delete(s.grace, connID)

	r, p, err := s.member(connID)
	if err != nil || p.IsConnected {
		return
	}
	s.remove(r, p)
	if s.onExpire != nil {
		s.onExpire(r.ID, p)
	}
}

// HandleReconnect moves the first disconnected participant named userName to
// newConnID, keeping vote, position and roles. It reports false when nobody
// matches, or when newConnID already has a seat somewhere, so the caller can
// fall back to a fresh join.
func (s *Store) HandleReconnect(roomID, newConnID, userName string) (*Room, bool) {
	r, ok := s.rooms[roomID]
	if !ok {
		return nil, false
	}
	if _, seated := s.byConn[newConnID]; seated {
		return nil, false
	}
	p := r.findDisconnected(userName)
	if p == nil {
		return nil, false
	}
	oldID := p.ID
	s.cancelGrace(oldID)

	delete(r.Participants, oldID)
	s.unindex(oldID)

	p.ID = newConnID
	p.IsConnected = true
	r.Participants[newConnID] = p
	s.index(newConnID, roomID)

	if r.CreatorID == oldID {
		r.CreatorID = newConnID
	}
	return r, true
}

// Leave removes the connection right away. The room is returned only if it
// still exists afterwards.
func (s *Store) Leave(connID string) (*Room, bool) {
	r, p, err := s.member(connID)
	if err != nil {
		return nil, false
	}
	s.cancelGrace(connID)
	s.remove(r, p)
	if !s.Exists(r.ID) {
		return nil, false
	}
	return r, true
}

func (s *Store) remove(r *Room, p *Participant) {
	delete(r.Participants, p.ID)
	s.unindex(p.ID)

	if len(r.Participants) == 0 {
		delete(s.rooms, r.ID)
		return
	}

	if r.CreatorID == p.ID {
		r.CreatorID = ""
	}
	if r.CreatorID != "" {
		return
	}
	// Hand the role to any connected participant. If nobody is connected the
	// room stays without a creator until a later removal finds someone.
	for _, next := range r.Members() {
		if next.IsConnected {
			next.IsCreator = true
			r.CreatorID = next.ID
			return
		}
	}
}
