package asset

import "fmt"

// Status defines whether an asset is currently accepted for new orders
type Status int8

const (
	Listed   Status = iota // Accepted as the offered side of new orders
	Delisted               // Existing orders still settle, new deposits rejected
)

func (s Status) String() string {
	switch s {
	case Listed:
		return "Listed"
	case Delisted:
		return "Delisted"
	default:
		return "Unknown"
	}
}

// Asset describes one entry of the recognized-asset allow-list.
// Only recognized assets may be deposited into escrow, and each carries
// its own minimum deposit so the book cannot fill up with dust orders.
type Asset struct {
	Symbol string // "GOLD", "SILVER", ...

	// MinOrderAmount is the smallest offered amount accepted for this
	// asset, in the asset's base units.
	MinOrderAmount int64

	// Decimals is display precision only; all amounts are integer base units.
	Decimals int8

	Status Status
}

// New validates and builds an allow-list entry.
func New(symbol string, minOrderAmount int64, decimals int8) (*Asset, error) {
	if symbol == "" {
		return nil, fmt.Errorf("asset symbol must not be empty")
	}
	if minOrderAmount <= 0 {
		return nil, fmt.Errorf("asset %s: min order amount must be positive, got %d", symbol, minOrderAmount)
	}
	if decimals < 0 {
		return nil, fmt.Errorf("asset %s: negative decimals %d", symbol, decimals)
	}
	return &Asset{
		Symbol:         symbol,
		MinOrderAmount: minOrderAmount,
		Decimals:       decimals,
		Status:         Listed,
	}, nil
}

// Accepts reports whether amount is a valid offered amount for this asset.
func (a *Asset) Accepts(amount int64) bool {
	return a.Status == Listed && amount >= a.MinOrderAmount
}
