package book

import "github.com/ethereum/go-ethereum/common"

// AssetTransfer is the custody collaborator: it moves funds between
// external holders and the escrow custody account and reports
// insufficient-balance / insufficient-allowance failures without partial
// effect.
type AssetTransfer interface {
	// Pull moves funds from an external holder into custody. Requires
	// prior authorization by the holder.
	Pull(asset string, from common.Address, amount int64) error

	// Push moves funds from custody to a recipient.
	Push(asset string, to common.Address, amount int64) error

	// Custody reports the escrowed balance of one asset.
	Custody(asset string) int64
}

// MovementKind distinguishes the two transfer directions of a settlement.
type MovementKind int8

const (
	MovePull MovementKind = iota // Party -> custody
	MovePush                     // custody -> Party
)

// Movement is one leg of a settlement.
type Movement struct {
	Kind   MovementKind
	Asset  string
	Party  common.Address
	Amount int64
}

// Settler is the all-or-nothing settlement extension: either every
// movement applies or none does. The engine prefers it for execute so a
// failed leg can never leave a half-settled swap; collaborators that
// cannot offer it fall back to the sequential Pull/Push path.
type Settler interface {
	Settle(movements []Movement) error
}
