package session

import "time"

// Chat is the activity record of one conversation.
type Chat struct {
	ID             string    `json:"chat_id"`
	ActiveTurnID   string    `json:"active_turn_id,omitempty"`
	Turns          int       `json:"turns"`
	StartedAt      time.Time `json:"started_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
}
