package bitfinex

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"crypto-orderbook-slippage/internal/domain"
)

const heartbeatMarker = "hb"

var ErrUnknownFrame = errors.New("unknown bitfinex frame")

// Decode parses one websocket text frame. Numbers inside book entries stay
// json.Number so prices keep the exact text the exchange sent.
func Decode(raw []byte) (domain.Message, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty frame", ErrUnknownFrame)
	}

	switch raw[0] {
	case '{':
		return decodeEvent(raw)
	case '[':
		return decodeData(raw)
	default:
		return nil, fmt.Errorf("%w: %.32s", ErrUnknownFrame, raw)
	}
}

func decodeEvent(raw []byte) (domain.Message, error) {
	var event BitfinexEvent
	if err := json.Unmarshal(raw, &event); err != nil {
		return nil, fmt.Errorf("failed to unmarshal bitfinex event: %w", err)
	}

	msg := domain.EventMessage{
		Event:     event.Event,
		ChannelID: event.ChanId,
		Channel:   event.Channel,
		Symbol:    event.Symbol,
		Msg:       event.Msg,
		Version:   event.Version,
		Platform:  -1,
	}
	if event.Code != nil {
		msg.Code, msg.HasCode = *event.Code, true
	}
	if event.Platform != nil {
		msg.Platform = event.Platform.Status
	}
	return msg, nil
}

func decodeData(raw []byte) (domain.Message, error) {
	var frame bitfinexFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return nil, fmt.Errorf("failed to unmarshal bitfinex frame: %w", err)
	}
	if len(frame) < 2 {
		return nil, fmt.Errorf("%w: %d elements", ErrUnknownFrame, len(frame))
	}

	msg := domain.DataMessage{}
	if err := json.Unmarshal(frame[0], &msg.ChannelID); err != nil {
		return nil, fmt.Errorf("%w: channel id %s", ErrUnknownFrame, frame[0])
	}

	var marker string
	if err := json.Unmarshal(frame[1], &marker); err == nil {
		if marker != heartbeatMarker {
			return nil, fmt.Errorf("%w: marker %q", ErrUnknownFrame, marker)
		}
		msg.Heartbeat = true
		return msg, nil
	}

	dec := json.NewDecoder(bytes.NewReader(frame[1]))
	dec.UseNumber()
	var payload []any
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode bitfinex book payload: %w", err)
	}

	// A snapshot is a list of entries, an update is a single flat entry. One
	// nested element is enough to make it a snapshot; its bad entries are
	// skipped later.
	if len(payload) == 0 || hasNested(payload) {
		msg.Snapshot = true
		msg.Entries = payload
		return msg, nil
	}
	msg.Entries = []any{payload}
	return msg, nil
}

func hasNested(payload []any) bool {
	for _, element := range payload {
		if _, ok := element.([]any); ok {
			return true
		}
	}
	return false
}
