package types

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ClientMessage is one inbound frame: an intent name plus its raw payload.
type ClientMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type ServerMessage struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

var ErrEmptyFrame = errors.New("empty frame")

func DecodeClientMessage(b []byte) (ClientMessage, error) {
	if len(b) == 0 {
		return ClientMessage{}, ErrEmptyFrame
	}
	var m ClientMessage
	if err := json.Unmarshal(b, &m); err != nil {
		return ClientMessage{}, err
	}
	if m.Type == "" {
		return ClientMessage{}, fmt.Errorf("frame without type")
	}
	return m, nil
}

// DecodeData unmarshals the payload of m into T. A missing payload yields
// the zero value so intents without arguments decode cleanly.
func DecodeData[T any](m ClientMessage) (T, error) {
	var out T
	if len(m.Data) == 0 || string(m.Data) == "null" {
		return out, nil
	}
	if err := json.Unmarshal(m.Data, &out); err != nil {
		return out, fmt.Errorf("decode %s payload: %w", m.Type, err)
	}
	return out, nil
}
