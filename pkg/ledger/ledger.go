package ledger

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// Transfer failure kinds. Both are reported without partial effect:
// a failed Pull or Push leaves every balance untouched.
var (
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrInsufficientAllowance = errors.New("insufficient allowance")
)

// accountStore is the persistence surface the ledger writes through.
// *Store implements it; tests substitute failing writers.
type accountStore interface {
	SaveAccount(acc *Account) error
	SaveAccounts(accs []*Account) error
	LoadAllAccounts() ([]*Account, error)
	Close() error
}

// Ledger is the asset-transfer collaborator: it owns every holder's
// per-asset balance and the escrow custody account that funds sit in
// between order creation and settlement. In-memory cache + Pebble
// persistence.
//
// Every mutation stages clones of the touched accounts, persists the
// clones, and swaps them into the cache only after the write commits.
// A failed write therefore has no effect in memory or on disk.
type Ledger struct {
	mu       sync.RWMutex
	accounts map[common.Address]*Account
	store    accountStore
	custody  common.Address
}

// NewLedger opens the ledger database and warms the account cache.
func NewLedger(dbPath string, custody common.Address) (*Ledger, error) {
	store, err := NewStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create store: %w", err)
	}

	accounts, err := store.LoadAllAccounts()
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to load accounts: %w", err)
	}

	l := &Ledger{
		accounts: make(map[common.Address]*Account),
		store:    store,
		custody:  custody,
	}
	for _, acc := range accounts {
		l.accounts[acc.Address] = acc
	}

	return l, nil
}

// Close closes the underlying Pebble database
func (l *Ledger) Close() error {
	return l.store.Close()
}

// CustodyAddress returns the address funds are escrowed under
func (l *Ledger) CustodyAddress() common.Address {
	return l.custody
}

// getAccountLocked returns the cached account, creating it if needed.
// Assumes l.mu is held.
func (l *Ledger) getAccountLocked(addr common.Address) *Account {
	acc, exists := l.accounts[addr]
	if !exists {
		acc = NewAccount(addr)
		l.accounts[addr] = acc
	}
	return acc
}

// custodyGuard rejects operations that address the custody account as an
// external party; funds enter and leave custody only through Pull/Push.
func (l *Ledger) custodyGuard(addr common.Address) error {
	if addr == l.custody {
		return fmt.Errorf("custody account %s is not an external holder", addr.Hex())
	}
	return nil
}

// Deposit credits an external holder (bridge-in).
func (l *Ledger) Deposit(addr common.Address, asset string, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("deposit amount must be positive: %d", amount)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.custodyGuard(addr); err != nil {
		return err
	}

	acc := l.getAccountLocked(addr).clone()
	if acc.Balances[asset] > math.MaxInt64-amount {
		return fmt.Errorf("balance overflow: %s holds %d %s", addr.Hex(), acc.Balances[asset], asset)
	}
	acc.Balances[asset] += amount

	if err := l.store.SaveAccount(acc); err != nil {
		return fmt.Errorf("failed to persist deposit: %w", err)
	}
	l.accounts[addr] = acc
	return nil
}

// Withdraw debits an external holder (bridge-out).
func (l *Ledger) Withdraw(addr common.Address, asset string, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("withdraw amount must be positive: %d", amount)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.custodyGuard(addr); err != nil {
		return err
	}

	acc := l.getAccountLocked(addr).clone()
	if acc.Balances[asset] < amount {
		return fmt.Errorf("%w: have %d %s, need %d", ErrInsufficientBalance, acc.Balances[asset], asset, amount)
	}
	acc.Balances[asset] -= amount

	if err := l.store.SaveAccount(acc); err != nil {
		return fmt.Errorf("failed to persist withdraw: %w", err)
	}
	l.accounts[addr] = acc
	return nil
}

// Approve sets (not adds) the amount custody may pull from holder.
func (l *Ledger) Approve(holder common.Address, asset string, amount int64) error {
	if amount < 0 {
		return fmt.Errorf("allowance cannot be negative: %d", amount)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.custodyGuard(holder); err != nil {
		return err
	}

	acc := l.getAccountLocked(holder).clone()
	acc.Allowances[asset] = amount

	if err := l.store.SaveAccount(acc); err != nil {
		return fmt.Errorf("failed to persist approval: %w", err)
	}
	l.accounts[holder] = acc
	return nil
}

// BalanceOf returns a holder's balance of one asset
func (l *Ledger) BalanceOf(addr common.Address, asset string) int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()

	acc, exists := l.accounts[addr]
	if !exists {
		return 0
	}
	return acc.Balance(asset)
}

// Allowance returns what custody may still pull from holder
func (l *Ledger) Allowance(holder common.Address, asset string) int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()

	acc, exists := l.accounts[holder]
	if !exists {
		return 0
	}
	return acc.Allowance(asset)
}

// Custody returns the escrowed balance of one asset
func (l *Ledger) Custody(asset string) int64 {
	return l.BalanceOf(l.custody, asset)
}

// Pull moves funds from an external holder into escrow custody.
// Requires prior Approve by the holder. All-or-nothing: balance and
// allowance are checked before either side is touched, both account
// writes land in one Pebble batch, and the cache is updated only after
// the batch commits.
func (l *Ledger) Pull(asset string, from common.Address, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("pull amount must be positive: %d", amount)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.custodyGuard(from); err != nil {
		return err
	}

	holder := l.getAccountLocked(from).clone()
	if holder.Balances[asset] < amount {
		return fmt.Errorf("%w: %s has %d %s, need %d", ErrInsufficientBalance, from.Hex(), holder.Balances[asset], asset, amount)
	}
	if holder.Allowances[asset] < amount {
		return fmt.Errorf("%w: %s approved %d %s, need %d", ErrInsufficientAllowance, from.Hex(), holder.Allowances[asset], asset, amount)
	}

	cust := l.getAccountLocked(l.custody).clone()
	if cust.Balances[asset] > math.MaxInt64-amount {
		return fmt.Errorf("balance overflow: custody holds %d %s", cust.Balances[asset], asset)
	}

	holder.Balances[asset] -= amount
	holder.Allowances[asset] -= amount
	cust.Balances[asset] += amount

	if err := l.store.SaveAccounts([]*Account{holder, cust}); err != nil {
		return fmt.Errorf("failed to persist pull: %w", err)
	}
	l.accounts[from] = holder
	l.accounts[l.custody] = cust
	return nil
}

// Push moves funds from escrow custody to a recipient.
// All-or-nothing, same staging and batch discipline as Pull.
func (l *Ledger) Push(asset string, to common.Address, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("push amount must be positive: %d", amount)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.custodyGuard(to); err != nil {
		return err
	}

	cust := l.getAccountLocked(l.custody).clone()
	if cust.Balances[asset] < amount {
		return fmt.Errorf("%w: custody has %d %s, need %d", ErrInsufficientBalance, cust.Balances[asset], asset, amount)
	}

	recipient := l.getAccountLocked(to).clone()
	if recipient.Balances[asset] > math.MaxInt64-amount {
		return fmt.Errorf("balance overflow: %s holds %d %s", to.Hex(), recipient.Balances[asset], asset)
	}

	cust.Balances[asset] -= amount
	recipient.Balances[asset] += amount

	if err := l.store.SaveAccounts([]*Account{cust, recipient}); err != nil {
		return fmt.Errorf("failed to persist push: %w", err)
	}
	l.accounts[l.custody] = cust
	l.accounts[to] = recipient
	return nil
}

// Balances returns a copy of a holder's full balance map
func (l *Ledger) Balances(addr common.Address) map[string]int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()

	acc, exists := l.accounts[addr]
	if !exists {
		return map[string]int64{}
	}

	out := make(map[string]int64, len(acc.Balances))
	for asset, bal := range acc.Balances {
		out[asset] = bal
	}
	return out
}

// Count returns the number of accounts the ledger has seen
func (l *Ledger) Count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.accounts)
}
