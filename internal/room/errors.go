package room

import "errors"

var (
	ErrRoomNotFound = errors.New("room not found")
	ErrNotInRoom    = errors.New("connection is not in a room")
	ErrNotCreator   = errors.New("only the room creator can do that")
	ErrSpectator    = errors.New("spectators cannot vote")
	ErrIDSpace      = errors.New("could not allocate a free room id")
	ErrInOtherRoom  = errors.New("connection already belongs to another room")
)
