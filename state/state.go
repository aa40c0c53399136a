// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package state persists oracle state: token configs, observation windows,
// anchor prices and validation configs.
package state

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/holiman/uint256"
	"github.com/luxfi/database"
	"github.com/luxfi/ids"
	"github.com/luxfi/oracle/ledger"
	"github.com/luxfi/oracle/validator"
)

var (
	ErrNotFound       = errors.New("state: record not found")
	ErrStateCorrupted = errors.New("state: record corrupted")

	// Database prefixes
	prefixTokenConfig      = []byte("tokencfg:")
	prefixAnchorPrice      = []byte("anchor:")
	prefixWindow           = []byte("window:")
	prefixValidationConfig = []byte("validcfg:")
)

const (
	flagNativeQuoted = 1 << 0
	flagReversed     = 1 << 1
)

// TokenConfig is the per-asset oracle configuration.
type TokenConfig struct {
	Asset        ids.ID `json:"asset"`
	Pool         ids.ID `json:"pool"`
	BaseUnit     uint64 `json:"baseUnit"`     // 10^decimals of the asset
	AnchorPeriod uint64 `json:"anchorPeriod"` // seconds
	NativeQuoted bool   `json:"nativeQuoted"` // pool prices the asset in the native quote asset
	Reversed     bool   `json:"reversed"`     // read the pool's opposite accumulator side
}

// AnchorPrice is the published TWAP for an asset, scaled by the asset's base
// unit. A zero price means not yet ready.
type AnchorPrice struct {
	Asset      ids.ID       `json:"asset"`
	Price      *uint256.Int `json:"price"`
	LastUpdate uint64       `json:"lastUpdate"`
}

// State reads and writes oracle records on a database. Callers that need
// multi-record atomicity hand it a versioned database and commit themselves.
type State struct {
	db database.Database
}

// New creates a state store over db.
func New(db database.Database) *State {
	return &State{db: db}
}

// PutTokenConfig stores a token config keyed by asset.
func (s *State) PutTokenConfig(cfg TokenConfig) error {
	data := make([]byte, 0, 81)
	data = append(data, cfg.Asset[:]...)
	data = append(data, cfg.Pool[:]...)
	data = binary.BigEndian.AppendUint64(data, cfg.BaseUnit)
	data = binary.BigEndian.AppendUint64(data, cfg.AnchorPeriod)
	var flags byte
	if cfg.NativeQuoted {
		flags |= flagNativeQuoted
	}
	if cfg.Reversed {
		flags |= flagReversed
	}
	data = append(data, flags)
	return s.db.Put(makeKey(prefixTokenConfig, cfg.Asset), data)
}

// GetTokenConfig returns the stored token config for an asset.
func (s *State) GetTokenConfig(asset ids.ID) (TokenConfig, error) {
	data, err := s.db.Get(makeKey(prefixTokenConfig, asset))
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return TokenConfig{}, ErrNotFound
		}
		return TokenConfig{}, err
	}
	return decodeTokenConfig(data)
}

// TokenConfigs returns all stored token configs.
func (s *State) TokenConfigs() ([]TokenConfig, error) {
	iter := s.db.NewIteratorWithPrefix(prefixTokenConfig)
	defer iter.Release()

	var configs []TokenConfig
	for iter.Next() {
		cfg, err := decodeTokenConfig(iter.Value())
		if err != nil {
			return nil, err
		}
		configs = append(configs, cfg)
	}
	return configs, iter.Error()
}

func decodeTokenConfig(data []byte) (TokenConfig, error) {
	if len(data) != 81 {
		return TokenConfig{}, ErrStateCorrupted
	}
	var cfg TokenConfig
	copy(cfg.Asset[:], data[:32])
	copy(cfg.Pool[:], data[32:64])
	cfg.BaseUnit = binary.BigEndian.Uint64(data[64:72])
	cfg.AnchorPeriod = binary.BigEndian.Uint64(data[72:80])
	flags := data[80]
	cfg.NativeQuoted = flags&flagNativeQuoted != 0
	cfg.Reversed = flags&flagReversed != 0
	return cfg, nil
}

// PutAnchorPrice stores the published anchor price for an asset.
func (s *State) PutAnchorPrice(anchor AnchorPrice) error {
	if anchor.Price == nil {
		return fmt.Errorf("%w: nil anchor price", ErrStateCorrupted)
	}
	data := make([]byte, 0, 72)
	data = append(data, anchor.Asset[:]...)
	price := anchor.Price.Bytes32()
	data = append(data, price[:]...)
	data = binary.BigEndian.AppendUint64(data, anchor.LastUpdate)
	return s.db.Put(makeKey(prefixAnchorPrice, anchor.Asset), data)
}

// GetAnchorPrice returns the stored anchor price for an asset.
func (s *State) GetAnchorPrice(asset ids.ID) (AnchorPrice, error) {
	data, err := s.db.Get(makeKey(prefixAnchorPrice, asset))
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return AnchorPrice{}, ErrNotFound
		}
		return AnchorPrice{}, err
	}
	if len(data) != 72 {
		return AnchorPrice{}, ErrStateCorrupted
	}
	var anchor AnchorPrice
	copy(anchor.Asset[:], data[:32])
	anchor.Price = new(uint256.Int).SetBytes(data[32:64])
	anchor.LastUpdate = binary.BigEndian.Uint64(data[64:72])
	return anchor, nil
}

// PutWindow stores an asset's live observation window and absolute window
// start.
func (s *State) PutWindow(asset ids.ID, windowStart uint64, window []ledger.Observation) error {
	data := make([]byte, 0, 12+len(window)*40)
	data = binary.BigEndian.AppendUint64(data, windowStart)
	data = binary.BigEndian.AppendUint32(data, uint32(len(window)))
	for _, obs := range window {
		if obs.Accumulator == nil {
			return fmt.Errorf("%w: nil accumulator", ErrStateCorrupted)
		}
		data = binary.BigEndian.AppendUint64(data, obs.Timestamp)
		acc := obs.Accumulator.Bytes32()
		data = append(data, acc[:]...)
	}
	return s.db.Put(makeKey(prefixWindow, asset), data)
}

// GetWindow returns an asset's stored observation window.
func (s *State) GetWindow(asset ids.ID) (uint64, []ledger.Observation, error) {
	data, err := s.db.Get(makeKey(prefixWindow, asset))
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return 0, nil, ErrNotFound
		}
		return 0, nil, err
	}
	if len(data) < 12 {
		return 0, nil, ErrStateCorrupted
	}
	windowStart := binary.BigEndian.Uint64(data[:8])
	count := int(binary.BigEndian.Uint32(data[8:12]))
	if len(data) != 12+count*40 {
		return 0, nil, ErrStateCorrupted
	}

	window := make([]ledger.Observation, 0, count)
	offset := 12
	for i := 0; i < count; i++ {
		window = append(window, ledger.Observation{
			Timestamp:   binary.BigEndian.Uint64(data[offset : offset+8]),
			Accumulator: new(uint256.Int).SetBytes(data[offset+8 : offset+40]),
		})
		offset += 40
	}
	return windowStart, window, nil
}

// PutValidationConfig stores a bound validator config keyed by asset.
func (s *State) PutValidationConfig(cfg validator.Config) error {
	data := make([]byte, 0, 48)
	data = append(data, cfg.Asset[:]...)
	data = binary.BigEndian.AppendUint64(data, cfg.LowerBound)
	data = binary.BigEndian.AppendUint64(data, cfg.UpperBound)
	return s.db.Put(makeKey(prefixValidationConfig, cfg.Asset), data)
}

// GetValidationConfig returns the stored validation config for an asset.
func (s *State) GetValidationConfig(asset ids.ID) (validator.Config, error) {
	data, err := s.db.Get(makeKey(prefixValidationConfig, asset))
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return validator.Config{}, ErrNotFound
		}
		return validator.Config{}, err
	}
	return decodeValidationConfig(data)
}

// ValidationConfigs returns all stored validation configs.
func (s *State) ValidationConfigs() ([]validator.Config, error) {
	iter := s.db.NewIteratorWithPrefix(prefixValidationConfig)
	defer iter.Release()

	var configs []validator.Config
	for iter.Next() {
		cfg, err := decodeValidationConfig(iter.Value())
		if err != nil {
			return nil, err
		}
		configs = append(configs, cfg)
	}
	return configs, iter.Error()
}

func decodeValidationConfig(data []byte) (validator.Config, error) {
	if len(data) != 48 {
		return validator.Config{}, ErrStateCorrupted
	}
	var cfg validator.Config
	copy(cfg.Asset[:], data[:32])
	cfg.LowerBound = binary.BigEndian.Uint64(data[32:40])
	cfg.UpperBound = binary.BigEndian.Uint64(data[40:48])
	return cfg, nil
}

func makeKey(prefix []byte, asset ids.ID) []byte {
	key := make([]byte, 0, len(prefix)+32)
	key = append(key, prefix...)
	return append(key, asset[:]...)
}
