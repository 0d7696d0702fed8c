package domain

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	// Data for an unknown channel, or an update before the book's first snapshot.
	ErrProtocolOrdering = errors.New("protocol ordering violation")
	// A single book entry failed shape or type validation; the rest of its batch still applies.
	ErrMalformedUpdate = errors.New("malformed book update")
	ErrCrossedLevel    = errors.New("price level crossed sides")

	ErrInsufficientLiquidity = errors.New("insufficient liquidity")
	ErrEmptyBook             = errors.New("order book side is empty")
	ErrInvalidVolume         = errors.New("volume must be positive")
	ErrBookNotFound          = errors.New("order book not found")

	ErrConnection           = errors.New("feed connection failed")
	ErrResubscribeRequired  = errors.New("channel must be resubscribed")
	ErrSubscriptionRejected = errors.New("subscription rejected")
	ErrChannelRegistered    = errors.New("channel already registered")
)

type ProtocolOrderingError struct {
	ChannelID int64
	Symbol    string
	Reason    string
}

func (e *ProtocolOrderingError) Error() string {
	if e.Symbol == "" {
		return fmt.Sprintf("protocol ordering violation on channel %d: %s", e.ChannelID, e.Reason)
	}
	return fmt.Sprintf("protocol ordering violation on channel %d (%s): %s", e.ChannelID, e.Symbol, e.Reason)
}

func (e *ProtocolOrderingError) Unwrap() error { return ErrProtocolOrdering }

type MalformedUpdateError struct {
	Index  int
	Entry  any
	Reason string
}

func (e *MalformedUpdateError) Error() string {
	return fmt.Sprintf("malformed book entry #%d %v: %s", e.Index, e.Entry, e.Reason)
}

func (e *MalformedUpdateError) Unwrap() error { return ErrMalformedUpdate }

type InsufficientLiquidityError struct {
	Requested decimal.Decimal
	Available decimal.Decimal
}

func (e *InsufficientLiquidityError) Error() string {
	return fmt.Sprintf("insufficient liquidity: requested %s, book depth %s", e.Requested, e.Available)
}

func (e *InsufficientLiquidityError) Unwrap() error { return ErrInsufficientLiquidity }
