package ledger

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Account tracks per-asset balances for one holder, plus the spending
// allowance the holder has granted to the escrow custody account.
// All amounts are integer base units of the named asset.
type Account struct {
	Address common.Address

	// Balances per asset symbol (e.g. "GOLD" -> 600)
	Balances map[string]int64

	// Allowances per asset symbol granted to custody. Pull consumes
	// allowance and balance together, ERC-20 style.
	Allowances map[string]int64
}

// NewAccount creates an account with no balances
func NewAccount(addr common.Address) *Account {
	return &Account{
		Address:    addr,
		Balances:   make(map[string]int64),
		Allowances: make(map[string]int64),
	}
}

// clone returns a deep copy. Mutations work on clones that replace the
// cached account only after the write commits.
func (a *Account) clone() *Account {
	cp := NewAccount(a.Address)
	for asset, bal := range a.Balances {
		cp.Balances[asset] = bal
	}
	for asset, allow := range a.Allowances {
		cp.Allowances[asset] = allow
	}
	return cp
}

// Balance returns the holder's balance of one asset (zero if never funded).
func (a *Account) Balance(asset string) int64 {
	return a.Balances[asset]
}

// Allowance returns what custody may still pull of one asset.
func (a *Account) Allowance(asset string) int64 {
	return a.Allowances[asset]
}

// Validate checks account invariants
func (a *Account) Validate() error {
	for asset, bal := range a.Balances {
		if bal < 0 {
			return fmt.Errorf("negative balance for %s: %d", asset, bal)
		}
	}
	for asset, allow := range a.Allowances {
		if allow < 0 {
			return fmt.Errorf("negative allowance for %s: %d", asset, allow)
		}
	}
	return nil
}
