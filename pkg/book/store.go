package book

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Store holds the open orders as a compact slice plus an id -> position
// index for O(1) lookup and removal. Removal is swap-remove: the last
// order moves into the freed slot, so iteration order reflects removals,
// not creation order.
//
// Absence is reported through the map's explicit second return value, so
// position 0 is never ambiguous with "not found".
//
// Store is not internally locked; the engine owns synchronization.
type Store struct {
	orders []Order
	index  map[common.Hash]int // id -> position in orders
}

// NewStore creates an empty order store
func NewStore() *Store {
	return &Store{
		index: make(map[common.Hash]int),
	}
}

// Insert appends the order and records its position.
// The caller guarantees the id is unique; Insert cannot fail.
func (s *Store) Insert(o Order) int {
	pos := len(s.orders)
	s.orders = append(s.orders, o)
	s.index[o.ID] = pos
	return pos
}

// FindPosition returns the current position of the order with the given id.
func (s *Store) FindPosition(id common.Hash) (int, bool) {
	pos, ok := s.index[id]
	return pos, ok
}

// RemoveAt deletes the order at pos by swap-remove: the last order moves
// into pos, its index entry is repointed, and the slice shrinks by one.
func (s *Store) RemoveAt(pos int) error {
	if pos < 0 || pos >= len(s.orders) {
		return fmt.Errorf("%w: position %d, length %d", ErrIndexOutOfBounds, pos, len(s.orders))
	}

	delete(s.index, s.orders[pos].ID)

	last := len(s.orders) - 1
	if pos != last {
		s.orders[pos] = s.orders[last]
		s.index[s.orders[pos].ID] = pos
	}
	s.orders = s.orders[:last]

	return nil
}

// Get returns the order at pos. The caller must hold a valid position.
func (s *Store) Get(pos int) Order {
	return s.orders[pos]
}

// Len returns the number of open orders
func (s *Store) Len() int {
	return len(s.orders)
}

// Slice returns up to limit orders starting at offset, in current store
// order. Rejects a limit exceeding the store length or an offset past the
// end; the effective end is clamped to the store length, so a page that
// straddles the end returns only the available tail.
func (s *Store) Slice(offset, limit int) ([]Order, error) {
	n := len(s.orders)
	if limit < 0 || offset < 0 {
		return nil, fmt.Errorf("%w: negative paging offset=%d limit=%d", ErrInvalidInput, offset, limit)
	}
	if limit > n {
		return nil, fmt.Errorf("%w: limit %d exceeds order count %d", ErrInvalidInput, limit, n)
	}
	if offset >= n {
		return nil, fmt.Errorf("%w: offset %d past order count %d", ErrInvalidInput, offset, n)
	}

	end := offset + limit
	if end > n {
		end = n
	}

	out := make([]Order, end-offset)
	copy(out, s.orders[offset:end])
	return out, nil
}
