package types

// Client -> Server intents.
const (
	IntentCreateRoom  = "room:create"
	IntentJoinRoom    = "room:join"
	IntentLeaveRoom   = "room:leave"
	IntentCastVote    = "vote:cast"
	IntentRevealVotes = "vote:reveal"
	IntentResetVotes  = "vote:reset"
	IntentSetIssue    = "issue:set"
	IntentMovePlayer  = "player:move"
	IntentThrowEmoji  = "emoji:throw"
	IntentUseSkill    = "skill:use"
	IntentToggleFight = "fight:toggle"
)

// Server -> Client events.
const (
	EventRoomCreated   = "room:created"
	EventRoomState     = "room:state"
	EventRoomError     = "room:error"
	EventVoteResults   = "vote:results"
	EventPlayerMoved   = "player:moved"
	EventEmojiReceived = "emoji:received"
	EventSkillReceived = "skill:received"
)

type CreateRoom struct {
	RoomName    string `json:"roomName"`
	CardSetType string `json:"cardSetType"`
	UserName    string `json:"userName"`
}

type JoinRoom struct {
	RoomID      string `json:"roomId"`
	UserName    string `json:"userName"`
	IsSpectator bool   `json:"isSpectator"`
}

type CastVote struct {
	Value string `json:"value"`
}

type SetIssue struct {
	Issue string `json:"issue"`
}

type MovePlayer struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type ThrowEmoji struct {
	TargetID string `json:"targetId"`
	Emoji    string `json:"emoji"`
}

type SkillType string

const (
	SkillFireball SkillType = "fireball"
	SkillFreeze   SkillType = "freeze"
	SkillZap      SkillType = "zap"
	SkillHeal     SkillType = "heal"
)

func (s SkillType) Valid() bool {
	switch s {
	case SkillFireball, SkillFreeze, SkillZap, SkillHeal:
		return true
	}
	return false
}

type UseSkill struct {
	TargetID string    `json:"targetId"`
	Skill    SkillType `json:"skill"`
}

type RoomCreated struct {
	RoomID string `json:"roomId"`
}

type RoomError struct {
	Message string `json:"message"`
}

type PlayerMoved struct {
	PlayerID string  `json:"playerId"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
}

type EmojiReceived struct {
	ID       string   `json:"id"`
	FromID   string   `json:"fromId"`
	TargetID string   `json:"targetId"`
	Emoji    string   `json:"emoji"`
	FromPos  Position `json:"fromPos"`
	ToPos    Position `json:"toPos"`
}

type SkillReceived struct {
	ID       string    `json:"id"`
	FromID   string    `json:"fromId"`
	TargetID string    `json:"targetId"`
	Skill    SkillType `json:"skill"`
	FromPos  Position  `json:"fromPos"`
	ToPos    Position  `json:"toPos"`
}
