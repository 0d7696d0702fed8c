package domain

import (
	"fmt"
	"strings"
)

type SideEnum int

const (
	Bid SideEnum = iota
	Ask
)

func (e SideEnum) String() string {
	return []string{"bid", "ask"}[e]
}

func (e SideEnum) Opposite() SideEnum {
	if e == Bid {
		return Ask
	}
	return Bid
}

func (e SideEnum) MarshalText() ([]byte, error) {
	return []byte(e.String()), nil
}

func (e *SideEnum) UnmarshalText(text []byte) error {
	side, err := ParseSide(string(text))
	if err != nil {
		return err
	}
	*e = side
	return nil
}

// ParseSide accepts "bid"/"sell" for the bid side and "ask"/"buy" for the ask side.
func ParseSide(s string) (SideEnum, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "bid", "bids", "sell":
		return Bid, nil
	case "ask", "asks", "buy":
		return Ask, nil
	}
	return 0, fmt.Errorf("unknown book side %q", s)
}
