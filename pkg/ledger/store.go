package ledger

import (
	"encoding/json"
	"fmt"

	"github.com/cockroachdb/pebble"
)

// Store provides Pebble-based persistence for ledger accounts.
// Thread-safe by construction: all calls go through the Ledger's mutex.
type Store struct {
	db *pebble.DB
}

// NewStore opens a Pebble database at the given path
func NewStore(dbPath string) (*Store, error) {
	opts := &pebble.Options{
		Cache:                 pebble.NewCache(64 << 20), // 64MB cache
		MemTableSize:          32 << 20,                  // 32MB memtable
		L0CompactionThreshold: 2,
		L0StopWritesThreshold: 12,
		MaxOpenFiles:          1000,
		BytesPerSync:          512 << 10, // 512KB
	}

	db, err := pebble.Open(dbPath, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble db at %s: %w", dbPath, err)
	}

	return &Store{db: db}, nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveAccount persists an account to Pebble
func (s *Store) SaveAccount(acc *Account) error {
	data, err := json.Marshal(acc)
	if err != nil {
		return fmt.Errorf("failed to marshal account: %w", err)
	}

	if err := s.db.Set(accountKey(acc.Address), data, pebble.Sync); err != nil {
		return fmt.Errorf("failed to save account: %w", err)
	}

	return nil
}

// SaveAccounts persists a group of accounts in one atomic batch, so a
// multi-account transfer can never half-land on disk.
func (s *Store) SaveAccounts(accs []*Account) error {
	batch := s.db.NewBatch()
	defer batch.Close()

	for _, acc := range accs {
		data, err := json.Marshal(acc)
		if err != nil {
			return fmt.Errorf("failed to marshal account %s: %w", acc.Address.Hex(), err)
		}
		if err := batch.Set(accountKey(acc.Address), data, nil); err != nil {
			return fmt.Errorf("failed to batch account %s: %w", acc.Address.Hex(), err)
		}
	}

	return batch.Commit(pebble.Sync)
}

// LoadAllAccounts scans every persisted account (startup warm-up)
func (s *Store) LoadAllAccounts() ([]*Account, error) {
	prefix := accountPrefix()
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open account iterator: %w", err)
	}
	defer iter.Close()

	var accounts []*Account
	for iter.First(); iter.Valid(); iter.Next() {
		var acc Account
		if err := json.Unmarshal(iter.Value(), &acc); err != nil {
			continue // Skip invalid entries
		}
		if acc.Balances == nil {
			acc.Balances = make(map[string]int64)
		}
		if acc.Allowances == nil {
			acc.Allowances = make(map[string]int64)
		}
		accounts = append(accounts, &acc)
	}

	return accounts, nil
}

