// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package feed defines the read-only view of pool state the oracle consumes,
// and the adapter backing it with in-process liquidity pools.
package feed

import (
	"errors"

	"github.com/holiman/uint256"
	"github.com/luxfi/ids"
	"github.com/luxfi/oracle/liquidity"
)

var ErrUnknownSide = errors.New("feed: unknown accumulator side")

// Side selects which of the pool's two price accumulators to read.
type Side uint8

const (
	// SidePrice0 is the accumulator of token0 priced in token1.
	SidePrice0 Side = iota
	// SidePrice1 is the accumulator of token1 priced in token0.
	SidePrice1
)

// Adapter is the oracle's read-only capability over a pool: reserves as of
// the pool's last update, and the cumulative price accumulator as of that
// same moment. Implementations never mutate pool state, and the last-update
// timestamp may be arbitrarily stale.
type Adapter interface {
	Reserves(pool ids.ID) (reserve0, reserve1, lastUpdate uint64, err error)
	CumulativePrice(pool ids.ID, side Side) (*uint256.Int, error)
}

var _ Adapter = (*PoolFeed)(nil)

// PoolFeed adapts a liquidity.Manager to the Adapter interface.
type PoolFeed struct {
	pools *liquidity.Manager
}

// NewPoolFeed creates a feed over the given pool manager.
func NewPoolFeed(pools *liquidity.Manager) *PoolFeed {
	return &PoolFeed{pools: pools}
}

func (f *PoolFeed) Reserves(pool ids.ID) (uint64, uint64, uint64, error) {
	return f.pools.Reserves(pool)
}

func (f *PoolFeed) CumulativePrice(pool ids.ID, side Side) (*uint256.Int, error) {
	switch side {
	case SidePrice0:
		return f.pools.Price0Cumulative(pool)
	case SidePrice1:
		return f.pools.Price1Cumulative(pool)
	default:
		return nil, ErrUnknownSide
	}
}
