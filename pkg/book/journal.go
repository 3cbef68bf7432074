package book

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/cockroachdb/pebble"
	"github.com/ethereum/go-ethereum/common"
)

// Pebble key schema:
//   "ord:{id}"                  open order, deleted on settle/cancel
//   "trade:{timestamp}:{id}"    executed swap history, timestamp zero-padded
//                               so iteration order is chronological
//   "meta:seq"                  engine id sequence counter
const (
	prefixOrder = "ord:"
	prefixTrade = "trade:"
	keySeq      = "meta:seq"
)

func orderKey(id common.Hash) []byte {
	return []byte(fmt.Sprintf("%s%s", prefixOrder, id.Hex()))
}

func tradeKey(executedAt int64, id common.Hash) []byte {
	return []byte(fmt.Sprintf("%s%020d:%s", prefixTrade, executedAt, id.Hex()))
}

func journalUpperBound(prefix []byte) []byte {
	bound := make([]byte, len(prefix))
	copy(bound, prefix)
	bound[len(bound)-1]++
	return bound
}

// Journal gives the in-memory order store crash durability: open orders
// are persisted on insert and deleted on removal, executed swaps are
// appended as history, and the id sequence counter survives restarts.
type Journal struct {
	db *pebble.DB
}

// NewJournal opens the order journal database
func NewJournal(dbPath string) (*Journal, error) {
	opts := &pebble.Options{
		Cache:                 pebble.NewCache(32 << 20),
		MemTableSize:          16 << 20,
		L0CompactionThreshold: 2,
		L0StopWritesThreshold: 12,
		MaxOpenFiles:          1000,
	}

	db, err := pebble.Open(dbPath, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal db at %s: %w", dbPath, err)
	}

	return &Journal{db: db}, nil
}

// Close closes the database
func (j *Journal) Close() error {
	return j.db.Close()
}

// SaveOrder persists an open order
func (j *Journal) SaveOrder(o Order) error {
	data, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("failed to marshal order: %w", err)
	}
	if err := j.db.Set(orderKey(o.ID), data, pebble.Sync); err != nil {
		return fmt.Errorf("failed to save order: %w", err)
	}
	return nil
}

// DeleteOrder removes a canceled order
func (j *Journal) DeleteOrder(id common.Hash) error {
	if err := j.db.Delete(orderKey(id), pebble.Sync); err != nil {
		return fmt.Errorf("failed to delete order: %w", err)
	}
	return nil
}

// SettleOrder removes an executed order and appends its trade record in
// one atomic batch, so history and the open set can never disagree.
func (j *Journal) SettleOrder(trade Trade) error {
	data, err := json.Marshal(trade)
	if err != nil {
		return fmt.Errorf("failed to marshal trade: %w", err)
	}

	batch := j.db.NewBatch()
	defer batch.Close()

	if err := batch.Delete(orderKey(trade.OrderID), nil); err != nil {
		return fmt.Errorf("failed to batch order delete: %w", err)
	}
	if err := batch.Set(tradeKey(trade.ExecutedAt, trade.OrderID), data, nil); err != nil {
		return fmt.Errorf("failed to batch trade: %w", err)
	}

	return batch.Commit(pebble.Sync)
}

// LoadOrders returns every open order for startup store rebuild
func (j *Journal) LoadOrders() ([]Order, error) {
	prefix := []byte(prefixOrder)
	iter, err := j.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: journalUpperBound(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open order iterator: %w", err)
	}
	defer iter.Close()

	var orders []Order
	for iter.First(); iter.Valid(); iter.Next() {
		var o Order
		if err := json.Unmarshal(iter.Value(), &o); err != nil {
			continue // Skip invalid entries
		}
		orders = append(orders, o)
	}

	return orders, nil
}

// LoadRecentTrades returns the most recent trades, newest first
func (j *Journal) LoadRecentTrades(limit int) ([]Trade, error) {
	prefix := []byte(prefixTrade)
	iter, err := j.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: journalUpperBound(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open trade iterator: %w", err)
	}
	defer iter.Close()

	var trades []Trade
	for iter.Last(); iter.Valid() && len(trades) < limit; iter.Prev() {
		var t Trade
		if err := json.Unmarshal(iter.Value(), &t); err != nil {
			continue
		}
		trades = append(trades, t)
	}

	return trades, nil
}

// SaveSeq persists the engine's id sequence counter
func (j *Journal) SaveSeq(seq uint64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], seq)
	if err := j.db.Set([]byte(keySeq), buf[:], pebble.Sync); err != nil {
		return fmt.Errorf("failed to save seq: %w", err)
	}
	return nil
}

// LoadSeq returns the persisted sequence counter, zero if never written
func (j *Journal) LoadSeq() (uint64, error) {
	data, closer, err := j.db.Get([]byte(keySeq))
	if err == pebble.ErrNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get seq: %w", err)
	}
	defer closer.Close()

	if len(data) != 8 {
		return 0, fmt.Errorf("corrupt seq entry: %d bytes", len(data))
	}
	return binary.BigEndian.Uint64(data), nil
}
