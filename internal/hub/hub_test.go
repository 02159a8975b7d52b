package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/planning-poker-backend/internal/archive"
	"github.com/DoyleJ11/planning-poker-backend/internal/types"
	api "github.com/DoyleJ11/planning-poker-backend/pkg/types"
)

const wait = time.Second

type recordingArchiver struct {
	rounds chan archive.Round
}

func (a *recordingArchiver) Record(r archive.Round) bool {
	select {
	case a.rounds <- r:
		return true
	default:
		return false
	}
}

func newTestHub(t *testing.T, opts Options) *Hub {
	t.Helper()
	if opts.IDGenerator == nil {
		opts.IDGenerator = func() (string, error) { return "abc123", nil }
	}
	if opts.NewEventID == nil {
		n := 0
		opts.NewEventID = func() string { n++; return fmt.Sprintf("evt-%d", n) }
	}
	h := NewHub(context.Background(), opts)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), wait)
		defer cancel()
		_ = h.Stop(ctx)
	})
	return h
}

func connect(t *testing.T, h *Hub, connID string) chan types.ServerMessage {
	t.Helper()
	out := make(chan types.ServerMessage, 64)
	require.True(t, h.Send(Connect{ConnID: connID, Outbox: out}))
	return out
}

func sendIntent(t *testing.T, h *Hub, connID, typ string, data any) {
	t.Helper()
	frame := map[string]any{"type": typ}
	if data != nil {
		frame["data"] = data
	}
	b, err := json.Marshal(frame)
	require.NoError(t, err)
	require.True(t, h.Send(FromClient{ConnID: connID, Frame: b}))
}

// recv returns the next event on ch, failing after a timeout so tests never hang.
func recv(t *testing.T, ch <-chan types.ServerMessage) types.ServerMessage {
	t.Helper()
	select {
	case m, ok := <-ch:
		if !ok {
			t.Fatalf("client outbox closed unexpectedly")
		}
		return m
	case <-time.After(wait):
		t.Fatalf("timed out waiting for event")
		return types.ServerMessage{}
	}
}

func recvType[T any](t *testing.T, ch <-chan types.ServerMessage, typ string) T {
	t.Helper()
	m := recv(t, ch)
	require.Equal(t, typ, m.Type, "unexpected event: %+v", m)
	data, ok := m.Data.(T)
	require.True(t, ok, "payload of %s is %T", typ, m.Data)
	return data
}

func recvState(t *testing.T, ch <-chan types.ServerMessage) api.RoomView {
	t.Helper()
	return recvType[api.RoomView](t, ch, api.EventRoomState)
}

func recvError(t *testing.T, ch <-chan types.ServerMessage) string {
	t.Helper()
	return recvType[api.RoomError](t, ch, api.EventRoomError).Message
}

func recvNone(t *testing.T, ch <-chan types.ServerMessage, within time.Duration) {
	t.Helper()
	select {
	case m, ok := <-ch:
		if !ok {
			return
		}
		t.Fatalf("expected no event within %v, got %+v", within, m)
	case <-time.After(within):
	}
}

func findParticipant(t *testing.T, v api.RoomView, id string) api.ParticipantView {
	t.Helper()
	for _, p := range v.Participants {
		if p.ID == id {
			return p
		}
	}
	t.Fatalf("participant %q not in view %+v", id, v)
	return api.ParticipantView{}
}

// setupRoom creates room abc123 owned by alice (conn a) and joins bob (conn b).
func setupRoom(t *testing.T, h *Hub) (a, b chan types.ServerMessage) {
	t.Helper()
	a = connect(t, h, "a")
	b = connect(t, h, "b")

	sendIntent(t, h, "a", api.IntentCreateRoom, api.CreateRoom{RoomName: "Sprint 12", UserName: "alice"})
	recvType[api.RoomCreated](t, a, api.EventRoomCreated)
	recvState(t, a)

	sendIntent(t, h, "b", api.IntentJoinRoom, api.JoinRoom{RoomID: "abc123", UserName: "bob"})
	recvState(t, a)
	recvState(t, b)
	return a, b
}

func TestCreateRoom_CreatorGetsIDAndState(t *testing.T) {
	h := newTestHub(t, Options{})
	a := connect(t, h, "a")

	sendIntent(t, h, "a", api.IntentCreateRoom, api.CreateRoom{RoomName: "  Sprint 12 ", CardSetType: "tshirt", UserName: " alice "})

	created := recvType[api.RoomCreated](t, a, api.EventRoomCreated)
	assert.Equal(t, "abc123", created.RoomID)

	v := recvState(t, a)
	assert.Equal(t, "Sprint 12", v.Name)
	assert.Equal(t, "tshirt", v.CardSetType)
	assert.Equal(t, "voting", v.Phase)
	assert.Equal(t, "a", v.CreatorID)
	assert.True(t, v.FightEnabled)
	require.Len(t, v.Participants, 1)
	assert.Equal(t, "alice", v.Participants[0].Name)
	assert.True(t, v.Participants[0].IsCreator)
	assert.False(t, v.Participants[0].IsSpectator)
}

func TestCreateRoom_Validation(t *testing.T) {
	cases := []struct {
		name string
		in   api.CreateRoom
		want string
	}{
		{name: "blank room name", in: api.CreateRoom{RoomName: "   ", UserName: "alice"}, want: msgCreateRequired},
		{name: "blank user name", in: api.CreateRoom{RoomName: "r", UserName: ""}, want: msgCreateRequired},
		{name: "unknown card set", in: api.CreateRoom{RoomName: "r", UserName: "alice", CardSetType: "primes"}, want: msgUnknownCardSet},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newTestHub(t, Options{})
			a := connect(t, h, "a")
			sendIntent(t, h, "a", api.IntentCreateRoom, tc.in)
			assert.Equal(t, tc.want, recvError(t, a))
			recvNone(t, a, 50*time.Millisecond)
		})
	}
}

func TestDispatch_MalformedAndUnknown(t *testing.T) {
	h := newTestHub(t, Options{})
	a := connect(t, h, "a")

	require.True(t, h.Send(FromClient{ConnID: "a", Frame: []byte("{not json")}))
	assert.Equal(t, msgMalformed, recvError(t, a))

	require.True(t, h.Send(FromClient{ConnID: "a", Frame: []byte(`{"type":"room:create","data":"oops"}`)}))
	assert.Equal(t, msgMalformed, recvError(t, a))

	sendIntent(t, h, "a", "room:explode", nil)
	assert.Equal(t, msgUnknownEvent, recvError(t, a))
}

func TestJoinRoom_NotFoundAndRequired(t *testing.T) {
	h := newTestHub(t, Options{})
	a := connect(t, h, "a")

	sendIntent(t, h, "a", api.IntentJoinRoom, api.JoinRoom{RoomID: "nope00", UserName: "alice"})
	assert.Equal(t, msgRoomNotFound, recvError(t, a))

	sendIntent(t, h, "a", api.IntentJoinRoom, api.JoinRoom{RoomID: " ", UserName: "alice"})
	assert.Equal(t, msgJoinRequired, recvError(t, a))
}

func TestJoinRoom_NormalizesRoomID(t *testing.T) {
	h := newTestHub(t, Options{})
	a := connect(t, h, "a")
	b := connect(t, h, "b")

	sendIntent(t, h, "a", api.IntentCreateRoom, api.CreateRoom{RoomName: "r", UserName: "alice"})
	recv(t, a)
	recv(t, a)

	sendIntent(t, h, "b", api.IntentJoinRoom, api.JoinRoom{RoomID: "  ABC123 ", UserName: "bob", IsSpectator: true})
	va := recvState(t, a)
	vb := recvState(t, b)
	assert.Len(t, va.Participants, 2)
	assert.Equal(t, "abc123", vb.ID)
	assert.True(t, findParticipant(t, vb, "b").IsSpectator)
}

func TestVoteVisibilityAndReveal(t *testing.T) {
	arch := &recordingArchiver{rounds: make(chan archive.Round, 1)}
	h := newTestHub(t, Options{Archiver: arch})
	a, b := setupRoom(t, h)

	sendIntent(t, h, "a", api.IntentSetIssue, api.SetIssue{Issue: "PROJ-1 login page"})
	recvState(t, a)
	recvState(t, b)

	sendIntent(t, h, "b", api.IntentCastVote, api.CastVote{Value: "8"})
	va := recvState(t, a)
	vb := recvState(t, b)

	bobForAlice := findParticipant(t, va, "b")
	assert.True(t, bobForAlice.HasVoted)
	assert.Nil(t, bobForAlice.Vote)
	bobForBob := findParticipant(t, vb, "b")
	require.NotNil(t, bobForBob.Vote)
	assert.Equal(t, "8", *bobForBob.Vote)

	sendIntent(t, h, "a", api.IntentCastVote, api.CastVote{Value: "5"})
	recvState(t, a)
	recvState(t, b)

	sendIntent(t, h, "a", api.IntentRevealVotes, nil)
	for _, ch := range []chan types.ServerMessage{a, b} {
		v := recvState(t, ch)
		assert.Equal(t, "revealed", v.Phase)
		for _, p := range v.Participants {
			require.NotNil(t, p.Vote)
		}
		res := recvType[api.VoteResults](t, ch, api.EventVoteResults)
		require.NotNil(t, res.Average)
		assert.Equal(t, 6.5, *res.Average)
		assert.Equal(t, map[string]int{"5": 1, "8": 1}, res.Distribution)
	}

	select {
	case round := <-arch.rounds:
		assert.Equal(t, "abc123", round.RoomID)
		assert.Equal(t, "Sprint 12", round.RoomName)
		assert.Equal(t, "PROJ-1 login page", round.Issue)
		assert.Equal(t, "fibonacci", round.CardSet)
		assert.Equal(t, 2, round.Voters)
	case <-time.After(wait):
		t.Fatalf("round was not archived")
	}

	sendIntent(t, h, "a", api.IntentResetVotes, nil)
	v := recvState(t, b)
	assert.Equal(t, "voting", v.Phase)
	for _, p := range v.Participants {
		assert.False(t, p.HasVoted)
	}
}

func TestCreatorOnlyIntentsAreSilentForOthers(t *testing.T) {
	h := newTestHub(t, Options{})
	a, b := setupRoom(t, h)

	for _, intent := range []string{api.IntentRevealVotes, api.IntentResetVotes, api.IntentToggleFight} {
		sendIntent(t, h, "b", intent, nil)
	}
	sendIntent(t, h, "b", api.IntentSetIssue, api.SetIssue{Issue: "hijack"})

	recvNone(t, a, 50*time.Millisecond)
	recvNone(t, b, 50*time.Millisecond)
}

func TestToggleFight(t *testing.T) {
	h := newTestHub(t, Options{})
	a, b := setupRoom(t, h)

	sendIntent(t, h, "a", api.IntentToggleFight, nil)
	assert.False(t, recvState(t, a).FightEnabled)
	assert.False(t, recvState(t, b).FightEnabled)
}

func TestLateJoinerGetsResults(t *testing.T) {
	h := newTestHub(t, Options{})
	a, b := setupRoom(t, h)

	sendIntent(t, h, "a", api.IntentCastVote, api.CastVote{Value: "3"})
	recvState(t, a)
	recvState(t, b)
	sendIntent(t, h, "a", api.IntentRevealVotes, nil)
	for _, ch := range []chan types.ServerMessage{a, b} {
		recvState(t, ch)
		recv(t, ch)
	}

	c := connect(t, h, "c")
	sendIntent(t, h, "c", api.IntentJoinRoom, api.JoinRoom{RoomID: "abc123", UserName: "carol"})
	recvState(t, c)
	res := recvType[api.VoteResults](t, c, api.EventVoteResults)
	assert.Equal(t, map[string]int{"3": 1}, res.Distribution)

	recvState(t, a)
	recvNone(t, a, 50*time.Millisecond)
}

func TestMovePlayer_BroadcastsResolvedPosition(t *testing.T) {
	h := newTestHub(t, Options{})
	a, b := setupRoom(t, h)

	sendIntent(t, h, "b", api.IntentMovePlayer, api.MovePlayer{X: -100, Y: 10000})
	for _, ch := range []chan types.ServerMessage{a, b} {
		moved := recvType[api.PlayerMoved](t, ch, api.EventPlayerMoved)
		assert.Equal(t, "b", moved.PlayerID)
		assert.Equal(t, 40.0, moved.X)
		assert.Equal(t, 460.0, moved.Y)
	}
}

func TestThrowEmojiAndSkill(t *testing.T) {
	h := newTestHub(t, Options{})
	a, b := setupRoom(t, h)

	sendIntent(t, h, "a", api.IntentThrowEmoji, api.ThrowEmoji{TargetID: "b", Emoji: "🎉"})
	var first api.EmojiReceived
	for _, ch := range []chan types.ServerMessage{a, b} {
		first = recvType[api.EmojiReceived](t, ch, api.EventEmojiReceived)
		assert.Equal(t, "evt-1", first.ID)
		assert.Equal(t, "a", first.FromID)
		assert.Equal(t, "b", first.TargetID)
		assert.NotEqual(t, first.FromPos, first.ToPos)
	}

	sendIntent(t, h, "b", api.IntentUseSkill, api.UseSkill{TargetID: "a", Skill: api.SkillFireball})
	for _, ch := range []chan types.ServerMessage{a, b} {
		got := recvType[api.SkillReceived](t, ch, api.EventSkillReceived)
		assert.Equal(t, "evt-2", got.ID)
		assert.Equal(t, api.SkillFireball, got.Skill)
		assert.Equal(t, first.ToPos, got.FromPos)
	}

	sendIntent(t, h, "b", api.IntentUseSkill, api.UseSkill{TargetID: "a", Skill: "nuke"})
	sendIntent(t, h, "b", api.IntentThrowEmoji, api.ThrowEmoji{TargetID: "ghost", Emoji: "🎉"})
	sendIntent(t, h, "b", api.IntentThrowEmoji, api.ThrowEmoji{TargetID: "a", Emoji: "  "})
	recvNone(t, a, 50*time.Millisecond)
}

func TestDisconnectThenReconnectKeepsSeat(t *testing.T) {
	h := newTestHub(t, Options{GracePeriod: time.Minute})
	a, b := setupRoom(t, h)

	sendIntent(t, h, "a", api.IntentCastVote, api.CastVote{Value: "13"})
	recvState(t, a)
	recvState(t, b)

	require.True(t, h.Send(Disconnect{ConnID: "a"}))
	v := recvState(t, b)
	assert.False(t, findParticipant(t, v, "a").IsConnected)
	assert.Equal(t, "a", v.CreatorID)

	a2 := connect(t, h, "a2")
	sendIntent(t, h, "a2", api.IntentJoinRoom, api.JoinRoom{RoomID: "abc123", UserName: "alice"})
	v = recvState(t, b)
	assert.Equal(t, "a2", v.CreatorID)
	assert.Len(t, v.Participants, 2)

	mine := findParticipant(t, recvState(t, a2), "a2")
	assert.True(t, mine.IsConnected)
	assert.True(t, mine.IsCreator)
	require.NotNil(t, mine.Vote)
	assert.Equal(t, "13", *mine.Vote)
}

func TestGraceExpiryRemovesAndTransfersCreator(t *testing.T) {
	h := newTestHub(t, Options{GracePeriod: 20 * time.Millisecond})
	_, b := setupRoom(t, h)

	require.True(t, h.Send(Disconnect{ConnID: "a"}))
	recvState(t, b)

	v := recvState(t, b)
	require.Len(t, v.Participants, 1)
	assert.Equal(t, "b", v.CreatorID)
	assert.True(t, v.Participants[0].IsCreator)
}

func TestGraceExpiryClosesEmptyRoom(t *testing.T) {
	h := newTestHub(t, Options{GracePeriod: 20 * time.Millisecond})
	a := connect(t, h, "a")
	sendIntent(t, h, "a", api.IntentCreateRoom, api.CreateRoom{RoomName: "r", UserName: "alice"})
	recv(t, a)
	recv(t, a)

	require.True(t, h.Send(Disconnect{ConnID: "a"}))
	require.Eventually(t, func() bool {
		reply := make(chan *api.RoomInfo, 1)
		if !h.Send(GetRoom{RoomID: "abc123", Reply: reply}) {
			return false
		}
		return <-reply == nil
	}, wait, 10*time.Millisecond)
}

func TestLeaveRoom(t *testing.T) {
	h := newTestHub(t, Options{})
	a, b := setupRoom(t, h)

	sendIntent(t, h, "a", api.IntentLeaveRoom, nil)
	v := recvState(t, b)
	require.Len(t, v.Participants, 1)
	assert.Equal(t, "b", v.CreatorID)
	recvNone(t, a, 50*time.Millisecond)
}

func TestCreateWhileSeatedLeavesOldRoom(t *testing.T) {
	ids := []string{"room01", "room02"}
	h := newTestHub(t, Options{IDGenerator: func() (string, error) {
		id := ids[0]
		ids = ids[1:]
		return id, nil
	}})
	a := connect(t, h, "a")
	b := connect(t, h, "b")

	sendIntent(t, h, "a", api.IntentCreateRoom, api.CreateRoom{RoomName: "first", UserName: "alice"})
	recv(t, a)
	recv(t, a)
	sendIntent(t, h, "b", api.IntentJoinRoom, api.JoinRoom{RoomID: "room01", UserName: "bob"})
	recv(t, a)
	recv(t, b)

	sendIntent(t, h, "b", api.IntentCreateRoom, api.CreateRoom{RoomName: "second", UserName: "bob"})
	v := recvState(t, a)
	assert.Len(t, v.Participants, 1)

	assert.Equal(t, "room02", recvType[api.RoomCreated](t, b, api.EventRoomCreated).RoomID)
	assert.Equal(t, "second", recvState(t, b).Name)
}

func TestSlowClientIsDropped(t *testing.T) {
	h := newTestHub(t, Options{})
	slow := make(chan types.ServerMessage)
	require.True(t, h.Send(Connect{ConnID: "slow", Outbox: slow}))

	sendIntent(t, h, "slow", api.IntentCreateRoom, api.CreateRoom{RoomName: "r", UserName: "sloth"})

	// Nobody reads slow until the loop has handled the create.
	stats := make(chan Stats, 1)
	require.True(t, h.Send(GetStats{Reply: stats}))
	assert.Equal(t, Stats{Rooms: 1, Clients: 0}, <-stats)

	_, ok := <-slow
	assert.False(t, ok, "outbox should be closed")
}

func lookup(t *testing.T, h *Hub, id string) *api.RoomInfo {
	t.Helper()
	reply := make(chan *api.RoomInfo, 1)
	require.True(t, h.Send(GetRoom{RoomID: id, Reply: reply}))
	select {
	case info := <-reply:
		return info
	case <-time.After(wait):
		t.Fatalf("timed out waiting for room info")
		return nil
	}
}

func TestGetRoom(t *testing.T) {
	h := newTestHub(t, Options{})
	setupRoom(t, h)

	info := lookup(t, h, " ABC123")
	require.NotNil(t, info)
	assert.Equal(t, api.RoomInfo{ID: "abc123", Name: "Sprint 12", CardSetType: "fibonacci", Participants: 2}, *info)
	assert.Nil(t, lookup(t, h, "zzz999"))
}

func TestStopClosesOutboxes(t *testing.T) {
	h := NewHub(context.Background(), Options{})
	a := connect(t, h, "a")
	stats := make(chan Stats, 1)
	require.True(t, h.Send(GetStats{Reply: stats}))
	require.Equal(t, 1, (<-stats).Clients)

	ctx, cancel := context.WithTimeout(context.Background(), wait)
	defer cancel()
	require.NoError(t, h.Stop(ctx))

	_, ok := <-a
	assert.False(t, ok)
	assert.False(t, h.Send(Disconnect{ConnID: "a"}))
}

func TestClean(t *testing.T) {
	assert.Equal(t, "bob", clean("  bob\t", MaxUserName))
	assert.Equal(t, strings.Repeat("é", 4), clean(strings.Repeat("é", 6), 4))
	assert.Equal(t, "ab", clean("ab   cd", 4))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "  a b ", truncate("  a b ", 10))
	assert.Equal(t, " éé", truncate(" éééé", 3))
}

func TestSetIssue_StoredVerbatim(t *testing.T) {
	h := newTestHub(t, Options{})
	a, b := setupRoom(t, h)

	sendIntent(t, h, "a", api.IntentSetIssue, api.SetIssue{Issue: "  PROJ-7:\tfix login  "})
	assert.Equal(t, "  PROJ-7:\tfix login  ", recvState(t, a).CurrentIssue)
	recvState(t, b)

	long := strings.Repeat("x", MaxIssue+10)
	sendIntent(t, h, "a", api.IntentSetIssue, api.SetIssue{Issue: long})
	assert.Equal(t, long[:MaxIssue], recvState(t, a).CurrentIssue)
}

func TestCastVote_StoredVerbatimAndOverlongDropped(t *testing.T) {
	h := newTestHub(t, Options{})
	a, b := setupRoom(t, h)

	sendIntent(t, h, "b", api.IntentCastVote, api.CastVote{Value: " 5 "})
	recvState(t, a)
	mine := findParticipant(t, recvState(t, b), "b")
	require.NotNil(t, mine.Vote)
	assert.Equal(t, " 5 ", *mine.Vote)

	sendIntent(t, h, "b", api.IntentCastVote, api.CastVote{Value: strings.Repeat("9", MaxVote+1)})
	recvNone(t, a, 50*time.Millisecond)
	recvNone(t, b, 50*time.Millisecond)
}
