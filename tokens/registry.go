// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package tokens provides the asset metadata registry consulted by the
// oracle when validating token configurations.
package tokens

import (
	"errors"
	"sync"

	"github.com/luxfi/ids"
	"github.com/luxfi/math/set"
)

const maxDecimals = 18

var (
	ErrTokenNotFound    = errors.New("token not found")
	ErrEmptyTokenID     = errors.New("empty token ID")
	ErrDecimalsTooLarge = errors.New("token decimals exceed maximum")
)

// Token describes a priced asset.
type Token struct {
	ID       ids.ID `json:"id"`
	Symbol   string `json:"symbol"`
	Decimals uint8  `json:"decimals"`
}

// BaseUnit returns 10^decimals.
func BaseUnit(decimals uint8) (uint64, error) {
	if decimals > maxDecimals {
		return 0, ErrDecimalsTooLarge
	}
	unit := uint64(1)
	for i := uint8(0); i < decimals; i++ {
		unit *= 10
	}
	return unit, nil
}

// Registry is an in-memory token metadata store. Registration is
// last-write-wins, mirroring how the external metadata source behaves.
type Registry struct {
	mu     sync.RWMutex
	tokens map[ids.ID]Token
	listed set.Set[ids.ID]
}

// NewRegistry creates an empty token registry.
func NewRegistry() *Registry {
	return &Registry{
		tokens: make(map[ids.ID]Token),
		listed: make(set.Set[ids.ID]),
	}
}

// Register upserts a token record.
func (r *Registry) Register(token Token) error {
	if token.ID == ids.Empty {
		return ErrEmptyTokenID
	}
	if token.Decimals > maxDecimals {
		return ErrDecimalsTooLarge
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.tokens[token.ID] = token
	r.listed.Add(token.ID)
	return nil
}

// Get returns the token record for an asset.
func (r *Registry) Get(asset ids.ID) (Token, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	token, ok := r.tokens[asset]
	if !ok {
		return Token{}, ErrTokenNotFound
	}
	return token, nil
}

// BaseUnit returns 10^decimals for a registered asset.
func (r *Registry) BaseUnit(asset ids.ID) (uint64, error) {
	token, err := r.Get(asset)
	if err != nil {
		return 0, err
	}
	return BaseUnit(token.Decimals)
}

// List returns the IDs of all registered tokens.
func (r *Registry) List() []ids.ID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.listed.List()
}

// Len returns the number of registered tokens.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tokens)
}
