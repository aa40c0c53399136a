// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package liquidity implements constant-product pair pools that maintain
// UQ112x112 cumulative price accumulators, the on-pool state the oracle
// reads through its feed adapter.
package liquidity

import (
	"crypto/sha256"
	"errors"
	"sync"

	"github.com/holiman/uint256"
	"github.com/luxfi/ids"
	safemath "github.com/luxfi/math"

	"github.com/luxfi/oracle/uq112"
	"github.com/luxfi/oracle/utils/timer/mockable"
)

var (
	ErrPoolNotFound  = errors.New("pool not found")
	ErrPoolExists    = errors.New("pool already exists")
	ErrSameToken     = errors.New("cannot create pool with same token")
	ErrInvalidAmount = errors.New("invalid amount")
	ErrUnknownToken  = errors.New("token not in pool")
)

// Pool is a two-token constant-product pool. Price0Cumulative integrates the
// instantaneous price of token0 in token1 (reserve1/reserve0) over seconds;
// Price1Cumulative integrates the reciprocal.
type Pool struct {
	ID     ids.ID `json:"id"`
	Token0 ids.ID `json:"token0"`
	Token1 ids.ID `json:"token1"`

	Reserve0 uint64 `json:"reserve0"`
	Reserve1 uint64 `json:"reserve1"`
	FeeBps   uint16 `json:"feeBps"`

	Price0Cumulative   *uint256.Int `json:"price0Cumulative"`
	Price1Cumulative   *uint256.Int `json:"price1Cumulative"`
	BlockTimestampLast uint64       `json:"blockTimestampLast"`

	CreatedAt uint64 `json:"createdAt"`
}

func (p *Pool) clone() Pool {
	cp := *p
	cp.Price0Cumulative = new(uint256.Int).Set(p.Price0Cumulative)
	cp.Price1Cumulative = new(uint256.Int).Set(p.Price1Cumulative)
	return cp
}

// PairID derives the deterministic pool ID for a canonical token pair.
func PairID(token0, token1 ids.ID) ids.ID {
	data := make([]byte, 0, 64)
	data = append(data, token0[:]...)
	data = append(data, token1[:]...)
	return ids.ID(sha256.Sum256(data))
}

// Manager owns all pair pools.
type Manager struct {
	mu         sync.RWMutex
	clock      *mockable.Clock
	pools      map[ids.ID]*Pool
	pairToPool map[string]ids.ID
}

// NewManager creates a new pool manager reading time from clock.
func NewManager(clock *mockable.Clock) *Manager {
	return &Manager{
		clock:      clock,
		pools:      make(map[ids.ID]*Pool),
		pairToPool: make(map[string]ids.ID),
	}
}

// CreatePool creates a pool for the token pair with the given initial
// reserves. Tokens are stored in canonical order regardless of argument
// order.
func (m *Manager) CreatePool(token0, token1 ids.ID, reserve0, reserve1 uint64, feeBps uint16) (Pool, error) {
	if token0 == token1 {
		return Pool{}, ErrSameToken
	}
	if token0.Compare(token1) > 0 {
		token0, token1 = token1, token0
		reserve0, reserve1 = reserve1, reserve0
	}
	if reserve0 == 0 || reserve1 == 0 {
		return Pool{}, ErrInvalidAmount
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	pairKey := makePairKey(token0, token1)
	if _, exists := m.pairToPool[pairKey]; exists {
		return Pool{}, ErrPoolExists
	}

	now := m.clock.Unix()
	pool := &Pool{
		ID:                 PairID(token0, token1),
		Token0:             token0,
		Token1:             token1,
		Reserve0:           reserve0,
		Reserve1:           reserve1,
		FeeBps:             feeBps,
		Price0Cumulative:   new(uint256.Int),
		Price1Cumulative:   new(uint256.Int),
		BlockTimestampLast: now,
		CreatedAt:          now,
	}
	m.pools[pool.ID] = pool
	m.pairToPool[pairKey] = pool.ID
	return pool.clone(), nil
}

// GetPool returns a snapshot of the pool.
func (m *Manager) GetPool(id ids.ID) (Pool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	pool, ok := m.pools[id]
	if !ok {
		return Pool{}, ErrPoolNotFound
	}
	return pool.clone(), nil
}

// PoolByPair returns a snapshot of the pool for a token pair, in either
// argument order.
func (m *Manager) PoolByPair(tokenA, tokenB ids.ID) (Pool, error) {
	if tokenA.Compare(tokenB) > 0 {
		tokenA, tokenB = tokenB, tokenA
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.pairToPool[makePairKey(tokenA, tokenB)]
	if !ok {
		return Pool{}, ErrPoolNotFound
	}
	return m.pools[id].clone(), nil
}

// Reserves returns the pool reserves together with the timestamp of the last
// pool update. The accumulators are not brought forward; callers extrapolate
// over the gap themselves.
func (m *Manager) Reserves(id ids.ID) (uint64, uint64, uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	pool, ok := m.pools[id]
	if !ok {
		return 0, 0, 0, ErrPoolNotFound
	}
	return pool.Reserve0, pool.Reserve1, pool.BlockTimestampLast, nil
}

// Price0Cumulative returns the token0 price accumulator as of the pool's
// last update.
func (m *Manager) Price0Cumulative(id ids.ID) (*uint256.Int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	pool, ok := m.pools[id]
	if !ok {
		return nil, ErrPoolNotFound
	}
	return new(uint256.Int).Set(pool.Price0Cumulative), nil
}

// Price1Cumulative returns the token1 price accumulator as of the pool's
// last update.
func (m *Manager) Price1Cumulative(id ids.ID) (*uint256.Int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	pool, ok := m.pools[id]
	if !ok {
		return nil, ErrPoolNotFound
	}
	return new(uint256.Int).Set(pool.Price1Cumulative), nil
}

// Swap trades amountIn of tokenIn against the pool, constant product with
// the pool fee. Accumulators accrue at the pre-trade price before reserves
// move.
func (m *Manager) Swap(id ids.ID, tokenIn ids.ID, amountIn uint64) (uint64, error) {
	if amountIn == 0 {
		return 0, ErrInvalidAmount
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	pool, ok := m.pools[id]
	if !ok {
		return 0, ErrPoolNotFound
	}
	if err := m.accrue(pool); err != nil {
		return 0, err
	}

	var reserveIn, reserveOut uint64
	switch tokenIn {
	case pool.Token0:
		reserveIn, reserveOut = pool.Reserve0, pool.Reserve1
	case pool.Token1:
		reserveIn, reserveOut = pool.Reserve1, pool.Reserve0
	default:
		return 0, ErrUnknownToken
	}

	// amountOut = reserveOut * effectiveIn / (reserveIn + effectiveIn)
	effectiveIn := new(uint256.Int).SetUint64(amountIn)
	effectiveIn.Mul(effectiveIn, uint256.NewInt(uint64(10_000-pool.FeeBps)))
	effectiveIn.Div(effectiveIn, uint256.NewInt(10_000))

	numerator := new(uint256.Int).Mul(new(uint256.Int).SetUint64(reserveOut), effectiveIn)
	denominator := new(uint256.Int).Add(new(uint256.Int).SetUint64(reserveIn), effectiveIn)
	amountOut := new(uint256.Int).Div(numerator, denominator).Uint64()
	if amountOut == 0 || amountOut >= reserveOut {
		return 0, ErrInvalidAmount
	}

	newReserveIn, err := safemath.Add64(reserveIn, amountIn)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	if tokenIn == pool.Token0 {
		pool.Reserve0 = newReserveIn
		pool.Reserve1 -= amountOut
	} else {
		pool.Reserve1 = newReserveIn
		pool.Reserve0 -= amountOut
	}
	return amountOut, nil
}

// SetReserves replaces the pool reserves, accruing the accumulators at the
// old price first. It models liquidity provision changing the ratio.
func (m *Manager) SetReserves(id ids.ID, reserve0, reserve1 uint64) error {
	if reserve0 == 0 || reserve1 == 0 {
		return ErrInvalidAmount
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	pool, ok := m.pools[id]
	if !ok {
		return ErrPoolNotFound
	}
	if err := m.accrue(pool); err != nil {
		return err
	}
	pool.Reserve0 = reserve0
	pool.Reserve1 = reserve1
	return nil
}

// Sync brings the pool's accumulators forward to the current time without
// touching reserves.
func (m *Manager) Sync(id ids.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	pool, ok := m.pools[id]
	if !ok {
		return ErrPoolNotFound
	}
	return m.accrue(pool)
}

// accrue integrates the current instantaneous price into both accumulators
// over the time since the last pool update. Must be called with the lock
// held.
func (m *Manager) accrue(pool *Pool) error {
	now := m.clock.Unix()
	if now <= pool.BlockTimestampLast {
		return nil
	}
	elapsed := now - pool.BlockTimestampLast
	if pool.Reserve0 != 0 && pool.Reserve1 != 0 {
		if err := accrueSide(pool.Price0Cumulative, pool.Reserve1, pool.Reserve0, elapsed); err != nil {
			return err
		}
		if err := accrueSide(pool.Price1Cumulative, pool.Reserve0, pool.Reserve1, elapsed); err != nil {
			return err
		}
	}
	pool.BlockTimestampLast = now
	return nil
}

func accrueSide(acc *uint256.Int, numerator, denominator, elapsed uint64) error {
	price, err := uq112.Fraction(numerator, denominator)
	if err != nil {
		return err
	}
	delta, err := uq112.MulUint64(price, elapsed)
	if err != nil {
		return err
	}
	sum, err := uq112.Add(acc, delta)
	if err != nil {
		return err
	}
	acc.Set(sum)
	return nil
}

func makePairKey(token0, token1 ids.ID) string {
	return token0.String() + "-" + token1.String()
}
