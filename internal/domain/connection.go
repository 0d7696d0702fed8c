package domain

import "time"

// ConnStatus describes the connection loop of one symbol.
type ConnStatus struct {
	Symbol     string        `json:"symbol"`
	State      ConnStateEnum `json:"state"`
	SessionID  string        `json:"session_id,omitempty"`
	Attempts   int           `json:"attempts"`
	Reconnects int           `json:"reconnects"`
	LastError  string        `json:"last_error,omitempty"`
	Since      time.Time     `json:"since"`
}
