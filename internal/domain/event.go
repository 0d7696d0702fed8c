package domain

import "time"

type FeedEventKind string

const (
	EventSubscribed    FeedEventKind = "subscribed"
	EventInfo          FeedEventKind = "info"
	EventError         FeedEventKind = "error"
	EventReconnect     FeedEventKind = "reconnect"
	EventResubscribe   FeedEventKind = "resubscribe"
	EventConnectGiveUp FeedEventKind = "give_up"
)

// FeedEvent is a lifecycle record kept for observability. It never carries
// book contents.
type FeedEvent struct {
	ID        int64         `json:"id"`
	SessionID string        `json:"session_id"`
	Symbol    string        `json:"symbol"`
	ChannelID int64         `json:"channel_id"`
	Kind      FeedEventKind `json:"kind"`
	Code      int           `json:"code"`
	Message   string        `json:"message"`
	CreatedAt time.Time     `json:"created_at"`
}
