package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// MessageType identifies websocket payload variants.
type MessageType string

const (
	TypeUserTurn  MessageType = "user_turn"
	TypePing      MessageType = "ping"
	TypeKeepAlive MessageType = "keep_alive"
	TypeDelta     MessageType = "delta"
	TypeDone      MessageType = "done"
	TypeError     MessageType = "error"
)

var ErrUnsupportedType = errors.New("unsupported message type")

type Envelope struct {
	Type MessageType `json:"type"`
}

// UserTurn starts a turn. ChatID may be omitted when the connection is
// already bound to a chat.
type UserTurn struct {
	Type      MessageType `json:"type"`
	ChatID    string      `json:"chat_id,omitempty"`
	UserInput string      `json:"user_input"`
}

type Ping struct {
	Type MessageType `json:"type"`
}

// StreamMessage is every server-to-client message of a streamed turn.
type StreamMessage struct {
	Type   MessageType `json:"type"`
	ChatID string      `json:"chat_id,omitempty"`
	TurnID string      `json:"turn_id,omitempty"`
	Delta  string      `json:"delta,omitempty"`
	Done   bool        `json:"done,omitempty"`
	Error  string      `json:"error,omitempty"`
}

func ParseClientMessage(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeUserTurn:
		var msg UserTurn
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		msg.UserInput = strings.TrimSpace(msg.UserInput)
		if msg.UserInput == "" {
			return nil, errors.New("invalid user_turn: empty user_input")
		}
		return msg, nil
	case TypePing:
		return Ping{Type: TypePing}, nil
	default:
		return nil, ErrUnsupportedType
	}
}
