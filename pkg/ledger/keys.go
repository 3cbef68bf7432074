package ledger

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Pebble key schema.
// Accounts are keyed by address so a single point lookup restores a holder;
// the shared prefix supports a full range scan at startup.

const prefixAccount = "acc:"

// accountKey returns the key for an account
// Format: "acc:{address}"
func accountKey(addr common.Address) []byte {
	return []byte(fmt.Sprintf("%s%s", prefixAccount, addr.Hex()))
}

// accountPrefix returns the prefix covering every account key
func accountPrefix() []byte {
	return []byte(prefixAccount)
}

// keyUpperBound returns the exclusive upper bound for a prefix scan
func keyUpperBound(prefix []byte) []byte {
	bound := make([]byte, len(prefix))
	copy(bound, prefix)
	bound[len(bound)-1]++
	return bound
}
