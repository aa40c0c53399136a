// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package validator checks reported prices against an anchor price within
// configured per-asset bound ratios.
package validator

import (
	"errors"
	"sync"

	"github.com/holiman/uint256"
	"github.com/luxfi/ids"
)

var (
	ErrEmptyBatch         = errors.New("validator: empty config batch")
	ErrZeroAsset          = errors.New("validator: zero asset ID")
	ErrInvalidBounds      = errors.New("validator: invalid bound ratios")
	ErrNoValidationConfig = errors.New("validator: no validation config for asset")
	ErrZeroAnchorPrice    = errors.New("validator: zero anchor price")
	ErrRatioOverflow      = errors.New("validator: ratio computation overflow")
)

// Config holds the per-asset tolerance band. Bounds are fixed-point ratios
// of anchor to reported price, scaled so that 1.0 equals the validator's
// ratio scale.
type Config struct {
	Asset      ids.ID `json:"asset"`
	LowerBound uint64 `json:"lowerBound"`
	UpperBound uint64 `json:"upperBound"`
}

// Validator is a stateless-per-call bound checker with a RWMutex-guarded
// config table.
type Validator struct {
	mu      sync.RWMutex
	scale   *uint256.Int
	configs map[ids.ID]Config
}

// New creates a validator whose bound ratios are scaled by ratioScale
// (1.0 == ratioScale).
func New(ratioScale uint64) *Validator {
	return &Validator{
		scale:   new(uint256.Int).SetUint64(ratioScale),
		configs: make(map[ids.ID]Config),
	}
}

// VerifyConfigs checks a config batch without applying it.
func VerifyConfigs(configs []Config) error {
	if len(configs) == 0 {
		return ErrEmptyBatch
	}
	for _, cfg := range configs {
		if cfg.Asset == ids.Empty {
			return ErrZeroAsset
		}
		if cfg.LowerBound == 0 || cfg.LowerBound >= cfg.UpperBound {
			return ErrInvalidBounds
		}
	}
	return nil
}

// SetConfigs upserts validation configs. The batch is validated up front and
// applied atomically: a bad entry rejects the whole batch.
func (v *Validator) SetConfigs(configs []Config) error {
	if err := VerifyConfigs(configs); err != nil {
		return err
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	for _, cfg := range configs {
		v.configs[cfg.Asset] = cfg
	}
	return nil
}

// Config returns the stored validation config for an asset.
func (v *Validator) Config(asset ids.ID) (Config, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	cfg, ok := v.configs[asset]
	if !ok {
		return Config{}, ErrNoValidationConfig
	}
	return cfg, nil
}

// Validate reports whether reported lies within the asset's tolerance band
// around anchor: lowerBound <= anchor*scale/reported <= upperBound, bounds
// inclusive. A zero reported price is always out of band; a zero anchor
// price cannot form a band and is an error.
func (v *Validator) Validate(asset ids.ID, reported, anchor *uint256.Int) (bool, error) {
	cfg, err := v.Config(asset)
	if err != nil {
		return false, err
	}
	if anchor == nil || anchor.IsZero() {
		return false, ErrZeroAnchorPrice
	}
	if reported == nil || reported.IsZero() {
		return false, nil
	}

	ratio, overflow := new(uint256.Int).MulOverflow(anchor, v.scale)
	if overflow {
		return false, ErrRatioOverflow
	}
	ratio.Div(ratio, reported)

	if ratio.CmpUint64(cfg.LowerBound) < 0 {
		return false, nil
	}
	if ratio.CmpUint64(cfg.UpperBound) > 0 {
		return false, nil
	}
	return true, nil
}
