package bitfinex

import (
	"encoding/json"

	"crypto-orderbook-slippage/internal/domain"
)

const bitfinexWebsocketUrl = "wss://api-pub.bitfinex.com/ws/2"

type BitfinexSubscribeRequest struct {
	Event   string `json:"event"`
	Channel string `json:"channel"`
	Symbol  string `json:"symbol"`
	Prec    string `json:"prec,omitempty"`
	Freq    string `json:"freq,omitempty"`
	Len     string `json:"len,omitempty"`
}

func newSubscribeRequest(sub domain.Subscription) BitfinexSubscribeRequest {
	return BitfinexSubscribeRequest{
		Event:   "subscribe",
		Channel: "book",
		Symbol:  sub.Symbol,
		Prec:    sub.Prec,
		Freq:    sub.Freq,
		Len:     sub.Len,
	}
}

type BitfinexEvent struct {
	Event    string            `json:"event"`
	Channel  string            `json:"channel"`
	ChanId   int64             `json:"chanId"`
	Symbol   string            `json:"symbol"`
	Code     *int              `json:"code"`
	Msg      string            `json:"msg"`
	Version  int               `json:"version"`
	Platform *BitfinexPlatform `json:"platform"`
}

type BitfinexPlatform struct {
	Status int `json:"status"`
}

// bitfinexFrame is a data frame: [chanId, payload, ...].
type bitfinexFrame []json.RawMessage
