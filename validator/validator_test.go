// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package validator

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/holiman/uint256"
	"github.com/luxfi/ids"
)

const ratioScale = 1_000_000_000_000_000_000 // 1e18

func newTestValidator(t *testing.T, asset ids.ID) *Validator {
	t.Helper()
	v := New(ratioScale)
	require.NoError(t, v.SetConfigs([]Config{{
		Asset:      asset,
		LowerBound: 8 * ratioScale / 10,  // 0.8
		UpperBound: 12 * ratioScale / 10, // 1.2
	}}))
	return v
}

func TestSetConfigs(t *testing.T) {
	require := require.New(t)

	v := New(ratioScale)
	require.ErrorIs(v.SetConfigs(nil), ErrEmptyBatch)
	require.ErrorIs(v.SetConfigs([]Config{{LowerBound: 1, UpperBound: 2}}), ErrZeroAsset)

	asset := ids.GenerateTestID()
	require.ErrorIs(
		v.SetConfigs([]Config{{Asset: asset, LowerBound: 0, UpperBound: 2}}),
		ErrInvalidBounds,
	)
	require.ErrorIs(
		v.SetConfigs([]Config{{Asset: asset, LowerBound: 2, UpperBound: 2}}),
		ErrInvalidBounds,
	)

	// A bad entry rejects the whole batch.
	good := Config{Asset: asset, LowerBound: 1, UpperBound: 2}
	bad := Config{Asset: ids.GenerateTestID(), LowerBound: 3, UpperBound: 2}
	require.ErrorIs(v.SetConfigs([]Config{good, bad}), ErrInvalidBounds)
	_, err := v.Config(asset)
	require.ErrorIs(err, ErrNoValidationConfig)

	require.NoError(v.SetConfigs([]Config{good}))
	cfg, err := v.Config(asset)
	require.NoError(err)
	require.Equal(good, cfg)
}

func TestValidateWithinBand(t *testing.T) {
	require := require.New(t)

	asset := ids.GenerateTestID()
	v := newTestValidator(t, asset)
	anchor := uint256.NewInt(ratioScale) // price 1.0 at 18 decimals

	ok, err := v.Validate(asset, uint256.NewInt(ratioScale), anchor)
	require.NoError(err)
	require.True(ok)

	// Slightly off but inside the band.
	ok, err = v.Validate(asset, uint256.NewInt(11*ratioScale/10), anchor)
	require.NoError(err)
	require.True(ok)

	ok, err = v.Validate(asset, uint256.NewInt(9*ratioScale/10), anchor)
	require.NoError(err)
	require.True(ok)
}

func TestValidateRejectsOutOfBand(t *testing.T) {
	require := require.New(t)

	asset := ids.GenerateTestID()
	v := newTestValidator(t, asset)
	anchor := uint256.NewInt(ratioScale)

	// reported = anchor * 100/79 -> anchor/reported = 0.79, below 0.8.
	reported := new(uint256.Int).Div(
		new(uint256.Int).Mul(anchor, uint256.NewInt(100)),
		uint256.NewInt(79),
	)
	ok, err := v.Validate(asset, reported, anchor)
	require.NoError(err)
	require.False(ok)

	// reported = anchor * 100/121 -> anchor/reported = 1.21, above 1.2.
	reported = new(uint256.Int).Div(
		new(uint256.Int).Mul(anchor, uint256.NewInt(100)),
		uint256.NewInt(121),
	)
	ok, err = v.Validate(asset, reported, anchor)
	require.NoError(err)
	require.False(ok)
}

func TestValidateBoundaryInclusive(t *testing.T) {
	require := require.New(t)

	asset := ids.GenerateTestID()
	v := newTestValidator(t, asset)

	// anchor 12.0, reported 10.0 -> ratio exactly 1.2 (upper bound).
	anchor := uint256.NewInt(12 * ratioScale)
	ok, err := v.Validate(asset, uint256.NewInt(10*ratioScale), anchor)
	require.NoError(err)
	require.True(ok)

	// anchor 12.0, reported 15.0 -> ratio exactly 0.8 (lower bound).
	ok, err = v.Validate(asset, uint256.NewInt(15*ratioScale), anchor)
	require.NoError(err)
	require.True(ok)
}

func TestValidateDegenerateInputs(t *testing.T) {
	require := require.New(t)

	asset := ids.GenerateTestID()
	v := newTestValidator(t, asset)
	anchor := uint256.NewInt(ratioScale)

	_, err := v.Validate(ids.GenerateTestID(), anchor, anchor)
	require.ErrorIs(err, ErrNoValidationConfig)

	_, err = v.Validate(asset, anchor, uint256.NewInt(0))
	require.ErrorIs(err, ErrZeroAnchorPrice)

	_, err = v.Validate(asset, anchor, nil)
	require.ErrorIs(err, ErrZeroAnchorPrice)

	ok, err := v.Validate(asset, uint256.NewInt(0), anchor)
	require.NoError(err)
	require.False(ok)
}
