// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package ledger

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/holiman/uint256"
	"github.com/luxfi/ids"
)

func obsAt(ts uint64, acc uint64) Observation {
	// Accumulator value acc * 2^112.
	return Observation{
		Timestamp:   ts,
		Accumulator: new(uint256.Int).Lsh(uint256.NewInt(acc), 112),
	}
}

func TestSeedAndBaseline(t *testing.T) {
	require := require.New(t)

	l := New(0)
	asset := ids.GenerateTestID()

	require.False(l.Has(asset))
	_, err := l.Baseline(asset)
	require.ErrorIs(err, ErrNotSeeded)

	require.NoError(l.Seed(asset, obsAt(1000, 0)))
	require.True(l.Has(asset))
	require.ErrorIs(l.Seed(asset, obsAt(1001, 1)), ErrAlreadySeeded)

	baseline, err := l.Baseline(asset)
	require.NoError(err)
	require.Equal(uint64(1000), baseline.Timestamp)

	start, err := l.WindowStart(asset)
	require.NoError(err)
	require.Zero(start)

	window, err := l.Window(asset)
	require.NoError(err)
	require.Len(window, 1)
}

func TestSeedRejectsNilAccumulator(t *testing.T) {
	require := require.New(t)

	l := New(0)
	require.ErrorIs(l.Seed(ids.GenerateTestID(), Observation{Timestamp: 1}), ErrNilAccumulator)
}

func TestRestore(t *testing.T) {
	require := require.New(t)

	l := New(0)
	asset := ids.GenerateTestID()

	require.ErrorIs(l.Restore(asset, 0, nil), ErrNotSeeded)
	require.ErrorIs(l.Restore(asset, 0, []Observation{{Timestamp: 1}}), ErrNilAccumulator)
	require.ErrorIs(
		l.Restore(asset, 0, []Observation{obsAt(1000, 0), obsAt(900, 1)}),
		ErrTimeRegression,
	)

	window := []Observation{obsAt(1000, 0), obsAt(1100, 100)}
	require.NoError(l.Restore(asset, 7, window))
	require.ErrorIs(l.Restore(asset, 7, window), ErrAlreadySeeded)
	require.ErrorIs(l.Seed(asset, obsAt(1200, 200)), ErrAlreadySeeded)

	baseline, err := l.Baseline(asset)
	require.NoError(err)
	require.Equal(uint64(1000), baseline.Timestamp)

	start, err := l.WindowStart(asset)
	require.NoError(err)
	require.Equal(uint64(7), start)

	head, err := l.Head(asset)
	require.NoError(err)
	require.Equal(uint64(1100), head.Timestamp)
}

func TestApplyKeepsBaselineInsideWindow(t *testing.T) {
	require := require.New(t)

	l := New(0)
	asset := ids.GenerateTestID()
	require.NoError(l.Seed(asset, obsAt(1000, 0)))

	// Fresh observation, baseline age within the anchor period: no advance.
	advanced, baseline, err := l.Apply(asset, obsAt(1100, 100), 900)
	require.NoError(err)
	require.False(advanced)
	require.Equal(uint64(1000), baseline.Timestamp)
}

func TestApplyAdvancesPastStaleBaseline(t *testing.T) {
	require := require.New(t)

	l := New(0)
	asset := ids.GenerateTestID()
	require.NoError(l.Seed(asset, obsAt(1000, 0)))

	_, _, err := l.Apply(asset, obsAt(1101, 101), 900)
	require.NoError(err)

	// The new observation makes the seed 903s old: the cursor advances past
	// it to the next entry, not to the new observation itself.
	advanced, baseline, err := l.Apply(asset, obsAt(1903, 903), 900)
	require.NoError(err)
	require.True(advanced)
	require.Equal(uint64(1101), baseline.Timestamp)

	start, err := l.WindowStart(asset)
	require.NoError(err)
	require.Equal(uint64(1), start)

	// Skipped slots are cleared but never handed to another asset.
	window, err := l.Window(asset)
	require.NoError(err)
	require.Len(window, 2)
	require.Equal(uint64(1101), window[0].Timestamp)
	require.Equal(uint64(1903), window[1].Timestamp)
}

func TestApplyKeepsFreshObservationsOnRotation(t *testing.T) {
	require := require.New(t)

	l := New(0)
	asset := ids.GenerateTestID()
	require.NoError(l.Seed(asset, obsAt(1000, 0)))

	// Frequent updates fill the window without advancing the cursor.
	for ts := uint64(1100); ts <= 1900; ts += 100 {
		advanced, _, err := l.Apply(asset, obsAt(ts, ts-1000), 900)
		require.NoError(err)
		require.False(advanced)
	}

	// The seed is the only entry older than the anchor period. The cursor
	// skips it alone; the nine fresher observations stay in the window, so
	// the averaging interval remains near the anchor period.
	advanced, baseline, err := l.Apply(asset, obsAt(1901, 901), 900)
	require.NoError(err)
	require.True(advanced)
	require.Equal(uint64(1100), baseline.Timestamp)

	start, err := l.WindowStart(asset)
	require.NoError(err)
	require.Equal(uint64(1), start)

	window, err := l.Window(asset)
	require.NoError(err)
	require.Len(window, 10)
	require.Equal(uint64(1100), window[0].Timestamp)
	require.Equal(uint64(1901), window[len(window)-1].Timestamp)
}

func TestApplyStaleBaselineStaysWhenItIsTheOnlyHistory(t *testing.T) {
	require := require.New(t)

	l := New(0)
	asset := ids.GenerateTestID()
	require.NoError(l.Seed(asset, obsAt(1000, 0)))

	// The seed is 2000s old, but it is also the pre-append head. The cursor
	// stays so the next update still has a positive-length interval.
	advanced, baseline, err := l.Apply(asset, obsAt(3000, 2000), 900)
	require.NoError(err)
	require.False(advanced)
	require.Equal(uint64(1000), baseline.Timestamp)

	// On the following sparse update the cursor advances to the previous
	// head even though that baseline is itself older than the anchor period.
	advanced, baseline, err = l.Apply(asset, obsAt(6000, 5000), 900)
	require.NoError(err)
	require.True(advanced)
	require.Equal(uint64(3000), baseline.Timestamp)
}

func TestPreviewMatchesApply(t *testing.T) {
	require := require.New(t)

	l := New(0)
	asset := ids.GenerateTestID()
	require.NoError(l.Seed(asset, obsAt(1000, 0)))
	_, _, err := l.Apply(asset, obsAt(1101, 101), 900)
	require.NoError(err)

	obs := obsAt(1903, 903)
	window, start, advanced, err := l.Preview(asset, obs, 900)
	require.NoError(err)
	require.True(advanced)
	require.Equal(uint64(1), start)
	require.Len(window, 2)
	require.Equal(uint64(1101), window[0].Timestamp)
	require.Equal(uint64(1903), window[1].Timestamp)

	// Preview did not mutate.
	baseline, err := l.Baseline(asset)
	require.NoError(err)
	require.Equal(uint64(1000), baseline.Timestamp)

	gotAdvanced, gotBaseline, err := l.Apply(asset, obs, 900)
	require.NoError(err)
	require.Equal(advanced, gotAdvanced)
	require.Equal(window[0], gotBaseline)

	gotWindow, err := l.Window(asset)
	require.NoError(err)
	require.Equal(window, gotWindow)
}

func TestApplyRejectsTimeRegression(t *testing.T) {
	require := require.New(t)

	l := New(0)
	asset := ids.GenerateTestID()
	require.NoError(l.Seed(asset, obsAt(1000, 0)))

	_, _, err := l.Apply(asset, obsAt(999, 1), 900)
	require.ErrorIs(err, ErrTimeRegression)

	// Equal timestamps are allowed: within-second updates are non-decreasing.
	_, _, err = l.Apply(asset, obsAt(1000, 0), 900)
	require.NoError(err)
}

func TestRetentionCompaction(t *testing.T) {
	require := require.New(t)

	l := New(4)
	asset := ids.GenerateTestID()
	require.NoError(l.Seed(asset, obsAt(0, 0)))

	// Sparse updates each advance the cursor; the backing log compacts once
	// it outgrows the cap, while the absolute window start keeps increasing.
	ts := uint64(0)
	var lastStart uint64
	for i := 0; i < 16; i++ {
		ts += 1000
		_, _, err := l.Apply(asset, obsAt(ts, ts), 900)
		require.NoError(err)

		start, err := l.WindowStart(asset)
		require.NoError(err)
		require.GreaterOrEqual(start, lastStart)
		lastStart = start

		window, err := l.Window(asset)
		require.NoError(err)
		require.LessOrEqual(len(window), 4)
	}
	require.Equal(uint64(15), lastStart)
}

func TestAssetsAreIndependent(t *testing.T) {
	require := require.New(t)

	l := New(0)
	a := ids.GenerateTestID()
	b := ids.GenerateTestID()
	require.NoError(l.Seed(a, obsAt(1000, 0)))
	require.NoError(l.Seed(b, obsAt(2000, 7)))

	_, _, err := l.Apply(a, obsAt(3000, 2000), 900)
	require.NoError(err)

	baseline, err := l.Baseline(b)
	require.NoError(err)
	require.Equal(uint64(2000), baseline.Timestamp)
	require.Equal(obsAt(2000, 7).Accumulator, baseline.Accumulator)
}
