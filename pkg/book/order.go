package book

import (
	"encoding/binary"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/crypto/sha3"
)

// Order is one open escrow swap: the maker has already deposited
// OfferedAmount of OfferedAsset into custody and will hand it to whoever
// pays RequestedAmount of RequestedAsset. Immutable once created; it leaves
// the book atomically on cancel or execute, never in between.
type Order struct {
	ID common.Hash `json:"id"`

	OfferedAsset  string `json:"offeredAsset"`
	OfferedAmount int64  `json:"offeredAmount"`

	RequestedAsset  string `json:"requestedAsset"`
	RequestedAmount int64  `json:"requestedAmount"`

	// Maker is the only party authorized to cancel.
	Maker common.Address `json:"maker"`

	// CreatedAt is Unix milliseconds at creation
	CreatedAt int64 `json:"createdAt"`
}

// newOrderID derives an opaque order id from the engine's monotonic
// sequence, the maker, the creation timestamp and both asset symbols,
// keccak-hashed into a fixed-width value. Collisions are treated as
// negligible.
func newOrderID(seq uint64, maker common.Address, createdAt int64, offeredAsset, requestedAsset string) common.Hash {
	var buf [16]byte
	binary.BigEndian.PutUint64(buf[:8], seq)
	binary.BigEndian.PutUint64(buf[8:], uint64(createdAt))

	h := sha3.NewLegacyKeccak256()
	h.Write(buf[:])
	h.Write(maker.Bytes())
	h.Write([]byte(offeredAsset))
	h.Write([]byte{0})
	h.Write([]byte(requestedAsset))

	return common.BytesToHash(h.Sum(nil))
}
