package types

type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// RoomView is the per-viewer room state sent with room:state. Vote is null
// for other participants until the room is revealed.
type RoomView struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	CardSetType  string            `json:"cardSetType"`
	Phase        string            `json:"phase"`
	CurrentIssue string            `json:"currentIssue"`
	CreatorID    string            `json:"creatorId"`
	FightEnabled bool              `json:"fightEnabled"`
	Participants []ParticipantView `json:"participants"`
}

type ParticipantView struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	IsSpectator bool     `json:"isSpectator"`
	IsCreator   bool     `json:"isCreator"`
	Vote        *string  `json:"vote"`
	HasVoted    bool     `json:"hasVoted"`
	IsConnected bool     `json:"isConnected"`
	Position    Position `json:"position"`
}

type VoteResults struct {
	Average      *float64       `json:"average"`
	Distribution map[string]int `json:"distribution"`
}

// RoomInfo is the public summary served by GET /api/rooms/{roomId}.
type RoomInfo struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	CardSetType  string `json:"cardSetType"`
	Participants int    `json:"participants"`
}

// Health is the body of GET /healthz.
type Health struct {
	Status  string `json:"status"`
	Rooms   int    `json:"rooms"`
	Clients int    `json:"clients"`
}
