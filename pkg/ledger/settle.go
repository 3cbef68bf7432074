package ledger

import (
	"fmt"

	"github.com/uhyunpark/swapbook/pkg/book"
)

// The ledger is the engine's custody collaborator.
var (
	_ book.AssetTransfer = (*Ledger)(nil)
	_ book.Settler       = (*Ledger)(nil)
)

// Settle applies a group of movements atomically: every leg is staged
// against copies of the touched accounts first, so a failing leg rejects
// the whole group with no effect, and the staged result commits to cache
// and Pebble as one batch.
func (l *Ledger) Settle(movements []book.Movement) error {
	if len(movements) == 0 {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	// Stage on clones, custody included.
	staged := make(map[string]*Account) // hex address -> clone
	touch := func(acc *Account) *Account {
		key := acc.Address.Hex()
		if cp, ok := staged[key]; ok {
			return cp
		}
		cp := acc.clone()
		staged[key] = cp
		return cp
	}

	cust := touch(l.getAccountLocked(l.custody))

	for i, m := range movements {
		if m.Amount < 0 {
			return fmt.Errorf("movement %d: negative amount %d", i, m.Amount)
		}
		if m.Amount == 0 {
			continue
		}

		switch m.Kind {
		case book.MovePull:
			holder := touch(l.getAccountLocked(m.Party))
			if holder.Balances[m.Asset] < m.Amount {
				return fmt.Errorf("%w: %s has %d %s, need %d", ErrInsufficientBalance, m.Party.Hex(), holder.Balances[m.Asset], m.Asset, m.Amount)
			}
			if holder.Allowances[m.Asset] < m.Amount {
				return fmt.Errorf("%w: %s approved %d %s, need %d", ErrInsufficientAllowance, m.Party.Hex(), holder.Allowances[m.Asset], m.Asset, m.Amount)
			}
			holder.Balances[m.Asset] -= m.Amount
			holder.Allowances[m.Asset] -= m.Amount
			cust.Balances[m.Asset] += m.Amount

		case book.MovePush:
			if cust.Balances[m.Asset] < m.Amount {
				return fmt.Errorf("%w: custody has %d %s, need %d", ErrInsufficientBalance, cust.Balances[m.Asset], m.Asset, m.Amount)
			}
			recipient := touch(l.getAccountLocked(m.Party))
			cust.Balances[m.Asset] -= m.Amount
			recipient.Balances[m.Asset] += m.Amount

		default:
			return fmt.Errorf("movement %d: unknown kind %d", i, m.Kind)
		}
	}

	// Persist every touched account in one batch, then swap the staged
	// clones into the cache.
	accs := make([]*Account, 0, len(staged))
	for _, cp := range staged {
		accs = append(accs, cp)
	}
	if err := l.store.SaveAccounts(accs); err != nil {
		return fmt.Errorf("failed to commit settlement: %w", err)
	}

	for _, cp := range staged {
		l.accounts[cp.Address] = cp
	}
	return nil
}
