// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package feed

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/ids"
	"github.com/luxfi/oracle/liquidity"
	"github.com/luxfi/oracle/utils/timer/mockable"
)

func TestPoolFeed(t *testing.T) {
	require := require.New(t)

	clock := &mockable.Clock{}
	clock.Set(time.Unix(1_700_000_000, 0))
	pools := liquidity.NewManager(clock)
	pool, err := pools.CreatePool(ids.GenerateTestID(), ids.GenerateTestID(), 100, 400, 30)
	require.NoError(err)

	f := NewPoolFeed(pools)

	r0, r1, ts, err := f.Reserves(pool.ID)
	require.NoError(err)
	require.Equal(uint64(100), r0)
	require.Equal(uint64(400), r1)
	require.Equal(clock.Unix(), ts)

	// The feed reports accumulators as of the last pool update, without
	// bringing them forward.
	clock.Advance(30 * time.Second)
	acc, err := f.CumulativePrice(pool.ID, SidePrice0)
	require.NoError(err)
	require.True(acc.IsZero())

	acc, err = f.CumulativePrice(pool.ID, SidePrice1)
	require.NoError(err)
	require.True(acc.IsZero())

	_, err = f.CumulativePrice(pool.ID, Side(7))
	require.ErrorIs(err, ErrUnknownSide)

	_, _, _, err = f.Reserves(ids.GenerateTestID())
	require.ErrorIs(err, liquidity.ErrPoolNotFound)
}
