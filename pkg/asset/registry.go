package asset

import (
	"fmt"
	"sync"
)

// Registry manages the recognized-asset allow-list in a thread-safe manner.
// The engine consults it on every create; unknown symbols are rejected.
type Registry struct {
	mu     sync.RWMutex
	assets map[string]*Asset // symbol -> asset
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		assets: make(map[string]*Asset),
	}
}

// Register adds an asset to the allow-list.
// Returns error if an asset with the same symbol already exists.
func (r *Registry) Register(a *Asset) error {
	if a == nil {
		return fmt.Errorf("cannot register nil asset")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.assets[a.Symbol]; exists {
		return fmt.Errorf("asset %s already registered", a.Symbol)
	}

	r.assets[a.Symbol] = a
	return nil
}

// Get retrieves an asset by symbol.
// Returns error if the asset is not on the allow-list.
func (r *Registry) Get(symbol string) (*Asset, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, exists := r.assets[symbol]
	if !exists {
		return nil, fmt.Errorf("asset %s not recognized", symbol)
	}

	return a, nil
}

// List returns all registered assets.
// Returns a copy of the slice to avoid concurrent modification.
func (r *Registry) List() []*Asset {
	r.mu.RLock()
	defer r.mu.RUnlock()

	assets := make([]*Asset, 0, len(r.assets))
	for _, a := range r.assets {
		assets = append(assets, a)
	}

	return assets
}

// SetStatus changes the listing status of an asset.
// Used to stop accepting new deposits of an asset without touching live orders.
func (r *Registry) SetStatus(symbol string, status Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, exists := r.assets[symbol]
	if !exists {
		return fmt.Errorf("asset %s not recognized", symbol)
	}

	a.Status = status
	return nil
}

// Exists checks if a symbol is on the allow-list
func (r *Registry) Exists(symbol string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.assets[symbol]
	return exists
}

// Count returns the number of recognized assets
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.assets)
}
