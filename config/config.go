// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package config defines configuration types for the oracle engine.
package config

import (
	"github.com/luxfi/ids"
)

// Config contains engine-level configuration parameters.
type Config struct {
	// NativeAsset is the distinguished quote asset that native-quoted token
	// prices are composed against.
	NativeAsset ids.ID `json:"nativeAsset"`

	// RatioScale is the fixed-point scale of bound ratios (1.0 == RatioScale).
	RatioScale uint64 `json:"ratioScale"`

	// RetentionCap bounds the number of observation slots retained per asset
	// before reclaimed slots are compacted away.
	RetentionCap int `json:"retentionCap"`

	// EventHistorySize bounds the in-memory event history.
	EventHistorySize int `json:"eventHistorySize"`
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() Config {
	return Config{
		RatioScale:       1_000_000_000_000_000_000, // 1e18
		RetentionCap:     1000,
		EventHistorySize: 1024,
	}
}
