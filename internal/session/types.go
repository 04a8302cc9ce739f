package session

import "time"

type Status string

const (
	StatusActive Status = "active"
	StatusEnded  Status = "ended"
)

// Speech lists the platform speech engines a client announced.
type Speech struct {
	Recognition bool `json:"recognition"`
	Synthesis   bool `json:"synthesis"`
}

// Connection is one live WebSocket client of the session view.
type Connection struct {
	ID             string    `json:"connection_id"`
	AccountID      string    `json:"account_id"`
	Status         Status    `json:"status"`
	Speech         Speech    `json:"speech"`
	MessagesIn     int       `json:"messages_in"`
	ConnectedAt    time.Time `json:"connected_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
	EndReason      string    `json:"end_reason,omitempty"`
}
