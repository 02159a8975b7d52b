package hub

import (
	"errors"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"

	"github.com/DoyleJ11/planning-poker-backend/internal/archive"
	"github.com/DoyleJ11/planning-poker-backend/internal/room"
	"github.com/DoyleJ11/planning-poker-backend/internal/types"
	"github.com/DoyleJ11/planning-poker-backend/internal/view"
	api "github.com/DoyleJ11/planning-poker-backend/pkg/types"
)

// Input limits, in runes.
const (
	MaxRoomName = 64
	MaxUserName = 32
	MaxIssue    = 256
	MaxEmoji    = 16
	MaxVote     = 16
)

const (
	msgMalformed        = "Malformed message."
	msgUnknownEvent     = "Unknown event."
	msgCreateRequired   = "Room name and user name are required."
	msgJoinRequired     = "Room ID and user name are required."
	msgUnknownCardSet   = "Unknown card set."
	msgRoomNotFound     = "Room not found."
	msgCouldNotCreate   = "Could not create room."
	msgCouldNotJoinRoom = "Could not join room."
)

// clean normalizes a name to NFC, trims it and cuts it to limit runes.
func clean(s string, limit int) string {
	return strings.TrimSpace(truncate(strings.TrimSpace(norm.NFC.String(s)), limit))
}

// truncate cuts s to at most limit runes and leaves it otherwise untouched.
func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	return string([]rune(s)[:limit])
}

func normalizeRoomID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

func (h *Hub) dispatch(connID string, frame []byte) {
	msg, err := types.DecodeClientMessage(frame)
	if err != nil {
		h.log.Debug("bad frame", zap.String("conn_id", connID), zap.Error(err))
		h.sendError(connID, msgMalformed)
		return
	}

	switch msg.Type {
	case api.IntentCreateRoom:
		handle(h, connID, msg, h.createRoom)
	case api.IntentJoinRoom:
		handle(h, connID, msg, h.joinRoom)
	case api.IntentLeaveRoom:
		h.leaveRoom(connID)
	case api.IntentCastVote:
		handle(h, connID, msg, h.castVote)
	case api.IntentRevealVotes:
		h.revealVotes(connID)
	case api.IntentResetVotes:
		h.mutate(connID, msg.Type, h.store.ResetVotes)
	case api.IntentSetIssue:
		handle(h, connID, msg, h.setIssue)
	case api.IntentToggleFight:
		h.mutate(connID, msg.Type, h.store.ToggleFight)
	case api.IntentMovePlayer:
		handle(h, connID, msg, h.movePlayer)
	case api.IntentThrowEmoji:
		handle(h, connID, msg, h.throwEmoji)
	case api.IntentUseSkill:
		handle(h, connID, msg, h.useSkill)
	default:
		h.log.Debug("unknown event", zap.String("conn_id", connID), zap.String("event", msg.Type))
		h.sendError(connID, msgUnknownEvent)
	}
}

// handle decodes the payload of msg and passes it to fn.
func handle[T any](h *Hub, connID string, msg types.ClientMessage, fn func(string, T)) {
	data, err := types.DecodeData[T](msg)
	if err != nil {
		h.log.Debug("bad payload", zap.String("conn_id", connID), zap.String("event", msg.Type), zap.Error(err))
		h.sendError(connID, msgMalformed)
		return
	}
	fn(connID, data)
}

// reject maps a store error to what the caller gets to see. Not-found
// surfaces as room:error; permission and membership failures are dropped.
func (h *Hub) reject(connID, event string, err error) {
	fields := []zap.Field{zap.String("conn_id", connID), zap.String("event", event), zap.Error(err)}
	switch {
	case errors.Is(err, room.ErrRoomNotFound):
		h.sendError(connID, msgRoomNotFound)
	case errors.Is(err, room.ErrIDSpace):
		h.log.Error("room id space exhausted", fields...)
		h.sendError(connID, msgCouldNotCreate)
	case errors.Is(err, room.ErrNotCreator), errors.Is(err, room.ErrNotInRoom), errors.Is(err, room.ErrSpectator):
		h.log.Debug("intent rejected", fields...)
	default:
		h.log.Warn("intent failed", fields...)
	}
}

// mutate runs a store operation that takes no arguments and broadcasts the
// resulting state on success.
func (h *Hub) mutate(connID, event string, op func(string) (*room.Room, error)) {
	r, err := op(connID)
	if err != nil {
		h.reject(connID, event, err)
		return
	}
	h.broadcastState(r)
}

// leaveCurrent removes connID from whatever room it sits in, unless that is keep.
func (h *Hub) leaveCurrent(connID, keep string) {
	cur, ok := h.store.RoomOf(connID)
	if !ok || cur.ID == keep {
		return
	}
	id := cur.ID
	if r, ok := h.store.Leave(connID); ok {
		h.broadcastState(r)
	}
	h.log.Info("left room", zap.String("conn_id", connID), zap.String("room_id", id))
}

func (h *Hub) createRoom(connID string, in api.CreateRoom) {
	roomName := clean(in.RoomName, MaxRoomName)
	userName := clean(in.UserName, MaxUserName)
	if roomName == "" || userName == "" {
		h.sendError(connID, msgCreateRequired)
		return
	}
	cardSet, ok := room.ParseCardSet(strings.TrimSpace(in.CardSetType))
	if !ok {
		h.sendError(connID, msgUnknownCardSet)
		return
	}

	h.leaveCurrent(connID, "")
	r, err := h.store.CreateRoom(roomName, cardSet, userName, connID)
	if err != nil {
		h.reject(connID, api.IntentCreateRoom, err)
		return
	}
	h.log.Info("room created", zap.String("conn_id", connID), zap.String("room_id", r.ID))
	h.send(connID, api.EventRoomCreated, api.RoomCreated{RoomID: r.ID})
	h.broadcastState(r)
}

func (h *Hub) joinRoom(connID string, in api.JoinRoom) {
	roomID := normalizeRoomID(in.RoomID)
	userName := clean(in.UserName, MaxUserName)
	if roomID == "" || userName == "" {
		h.sendError(connID, msgJoinRequired)
		return
	}
	if !h.store.Exists(roomID) {
		h.sendError(connID, msgRoomNotFound)
		return
	}

	h.leaveCurrent(connID, roomID)
	r, ok := h.store.HandleReconnect(roomID, connID, userName)
	if ok {
		h.log.Info("reconnected", zap.String("conn_id", connID), zap.String("room_id", roomID))
	} else {
		var err error
		r, err = h.store.JoinRoom(roomID, userName, in.IsSpectator, connID)
		if err != nil {
			if errors.Is(err, room.ErrRoomNotFound) {
				h.sendError(connID, msgRoomNotFound)
				return
			}
			h.log.Warn("join failed", zap.String("conn_id", connID), zap.String("room_id", roomID), zap.Error(err))
			h.sendError(connID, msgCouldNotJoinRoom)
			return
		}
		h.log.Info("joined", zap.String("conn_id", connID), zap.String("room_id", roomID))
	}

	h.broadcastState(r)
	if r.Phase == room.PhaseRevealed {
		h.send(connID, api.EventVoteResults, view.ComputeResults(r.Participants))
	}
}

func (h *Hub) leaveRoom(connID string) {
	if _, ok := h.store.RoomOf(connID); !ok {
		h.log.Debug("leave without room", zap.String("conn_id", connID))
		return
	}
	h.leaveCurrent(connID, "")
}

// castVote stores the value exactly as sent. Values longer than MaxVote are
// dropped rather than cut, so a vote never changes meaning.
func (h *Hub) castVote(connID string, in api.CastVote) {
	if utf8.RuneCountInString(in.Value) > MaxVote {
		h.log.Debug("vote too long", zap.String("conn_id", connID), zap.Int("runes", utf8.RuneCountInString(in.Value)))
		return
	}
	r, err := h.store.CastVote(connID, in.Value)
	if err != nil {
		h.reject(connID, api.IntentCastVote, err)
		return
	}
	h.broadcastState(r)
}

func (h *Hub) revealVotes(connID string) {
	r, err := h.store.RevealVotes(connID)
	if err != nil {
		h.reject(connID, api.IntentRevealVotes, err)
		return
	}
	results := view.ComputeResults(r.Participants)
	h.broadcastState(r)
	h.broadcast(r, api.EventVoteResults, results)
	h.record(r, results)
}

func (h *Hub) record(r *room.Room, results api.VoteResults) {
	if h.archive == nil {
		return
	}
	voters := 0
	for _, n := range results.Distribution {
		voters += n
	}
	ok := h.archive.Record(archive.Round{
		RoomID:       r.ID,
		RoomName:     r.Name,
		Issue:        r.CurrentIssue,
		CardSet:      string(r.CardSetType),
		Average:      results.Average,
		Distribution: results.Distribution,
		Voters:       voters,
		RevealedAt:   h.now(),
	})
	if !ok {
		h.log.Debug("round not archived", zap.String("room_id", r.ID))
	}
}

func (h *Hub) setIssue(connID string, in api.SetIssue) {
	issue := truncate(in.Issue, MaxIssue)
	r, err := h.store.SetIssue(connID, issue)
	if err != nil {
		h.reject(connID, api.IntentSetIssue, err)
		return
	}
	h.broadcastState(r)
}

func (h *Hub) movePlayer(connID string, in api.MovePlayer) {
	r, pos, err := h.store.MovePlayer(connID, in.X, in.Y)
	if err != nil {
		h.reject(connID, api.IntentMovePlayer, err)
		return
	}
	h.broadcast(r, api.EventPlayerMoved, api.PlayerMoved{PlayerID: connID, X: pos.X, Y: pos.Y})
}

// endpoints resolves the caller and target inside the caller's room.
func (h *Hub) endpoints(connID, targetID string) (*room.Room, *room.Participant, *room.Participant, bool) {
	r, ok := h.store.RoomOf(connID)
	if !ok {
		return nil, nil, nil, false
	}
	from, ok := r.Participants[connID]
	if !ok {
		return nil, nil, nil, false
	}
	to, ok := r.Participants[targetID]
	if !ok {
		return nil, nil, nil, false
	}
	return r, from, to, true
}

func (h *Hub) throwEmoji(connID string, in api.ThrowEmoji) {
	emoji := clean(in.Emoji, MaxEmoji)
	if emoji == "" {
		return
	}
	r, from, to, ok := h.endpoints(connID, in.TargetID)
	if !ok {
		h.log.Debug("emoji dropped", zap.String("conn_id", connID), zap.String("target_id", in.TargetID))
		return
	}
	h.broadcast(r, api.EventEmojiReceived, api.EmojiReceived{
		ID:       h.newEventID(),
		FromID:   from.ID,
		TargetID: to.ID,
		Emoji:    emoji,
		FromPos:  view.Position(from.Position),
		ToPos:    view.Position(to.Position),
	})
}

func (h *Hub) useSkill(connID string, in api.UseSkill) {
	if !in.Skill.Valid() {
		h.log.Debug("unknown skill", zap.String("conn_id", connID), zap.String("skill", string(in.Skill)))
		return
	}
	r, from, to, ok := h.endpoints(connID, in.TargetID)
	if !ok {
		h.log.Debug("skill dropped", zap.String("conn_id", connID), zap.String("target_id", in.TargetID))
		return
	}
	h.broadcast(r, api.EventSkillReceived, api.SkillReceived{
		ID:       h.newEventID(),
		FromID:   from.ID,
		TargetID: to.ID,
		Skill:    in.Skill,
		FromPos:  view.Position(from.Position),
		ToPos:    view.Position(to.Position),
	})
}
