package feed

import (
	"encoding/json"
	"errors"
	"fmt"

	"crypto-orderbook-slippage/internal/domain"
	"crypto-orderbook-slippage/internal/orderbook"

	"github.com/shopspring/decimal"
)

// parseEntries turns raw [price, count, amount] triples into level changes.
// Bad triples are reported and left out.
func parseEntries(entries []any) ([]orderbook.Change, error) {
	changes := make([]orderbook.Change, 0, len(entries))
	var errs []error
	for i, entry := range entries {
		change, reason := parseEntry(entry)
		if reason != "" {
			errs = append(errs, &domain.MalformedUpdateError{Index: i, Entry: entry, Reason: reason})
			continue
		}
		changes = append(changes, change)
	}
	return changes, errors.Join(errs...)
}

func parseEntry(entry any) (orderbook.Change, string) {
	triple, ok := entry.([]any)
	if !ok {
		return orderbook.Change{}, fmt.Sprintf("expected [price, count, amount], got %T", entry)
	}
	if len(triple) != 3 {
		return orderbook.Change{}, fmt.Sprintf("expected 3 fields, got %d", len(triple))
	}

	var fields [3]decimal.Decimal
	for i, name := range []string{"price", "count", "amount"} {
		value, err := toDecimal(triple[i])
		if err != nil {
			return orderbook.Change{}, name + ": " + err.Error()
		}
		fields[i] = value
	}
	price, count, amount := fields[0], fields[1], fields[2]

	if !price.IsPositive() {
		return orderbook.Change{}, "price must be positive"
	}
	if amount.IsZero() {
		return orderbook.Change{}, "amount is zero"
	}

	// Positive amounts are bids, negative are asks. With count 0 the amount
	// is the deletion flag: 1 removes a bid, -1 removes an ask.
	side := domain.Ask
	if amount.IsPositive() {
		side = domain.Bid
	}
	if count.IsZero() {
		return orderbook.Change{Side: side, Price: price, Volume: decimal.Zero}, ""
	}
	return orderbook.Change{Side: side, Price: price, Volume: amount.Abs()}, ""
}

func toDecimal(v any) (decimal.Decimal, error) {
	switch n := v.(type) {
	case json.Number:
		return decimal.NewFromString(n.String())
	case float64:
		return decimal.NewFromFloat(n), nil
	case int:
		return decimal.NewFromInt(int64(n)), nil
	case int64:
		return decimal.NewFromInt(n), nil
	case decimal.Decimal:
		return n, nil
	default:
		return decimal.Zero, fmt.Errorf("expected a number, got %T", v)
	}
}
