package domain

// Message is one decoded frame from the exchange feed, either an EventMessage
// or a DataMessage.
type Message interface {
	isMessage()
}

type EventMessage struct {
	Event     string
	ChannelID int64
	Channel   string
	Symbol    string
	Code      int
	HasCode   bool
	Msg       string
	Version   int
	// Platform is the platform status from the version banner, -1 when absent.
	Platform  int
}

// DataMessage carries a snapshot, a single update or a heartbeat for a channel.
// Entries are kept undecoded so each one can be validated on its own.
type DataMessage struct {
	ChannelID int64
	Heartbeat bool
	Snapshot  bool
	Entries   []any
}

func (EventMessage) isMessage() {}
func (DataMessage) isMessage() {}

// Subscription is one book channel request. Prec, Freq and Len are passed to
// the exchange as-is.
type Subscription struct {
	Symbol string
	Prec   string
	Freq   string
	Len    string
}
