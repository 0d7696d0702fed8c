package domain

type BookStateEnum int

const (
	Uninitialized BookStateEnum = iota
	Subscribed
	Synchronized
)

func (e BookStateEnum) String() string {
	return []string{"uninitialized", "subscribed", "synchronized"}[e]
}

func (e BookStateEnum) MarshalText() ([]byte, error) {
	return []byte(e.String()), nil
}

type ConnStateEnum int

const (
	Connecting ConnStateEnum = iota
	Subscribing
	Streaming
	Backoff
	Closed
)

func (e ConnStateEnum) String() string {
	return []string{"connecting", "subscribing", "streaming", "backoff", "closed"}[e]
}

func (e ConnStateEnum) MarshalText() ([]byte, error) {
	return []byte(e.String()), nil
}

// Info codes sent by the exchange on the control channel.
const (
	InfoReconnect        = 20051
	InfoMaintenanceStart = 20060
	InfoMaintenanceEnd   = 20061
)

const PlatformMaintenance = 0
