// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package oracle implements a manipulation-resistant TWAP price oracle over
// pair-pool cumulative price accumulators, plus a bound validator that checks
// reported prices against the published anchors.
package oracle

import (
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/holiman/uint256"
	"github.com/luxfi/database"
	"github.com/luxfi/database/versiondb"
	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	"github.com/luxfi/math/set"
	"github.com/luxfi/metric"
	"github.com/luxfi/pubsub"

	"github.com/luxfi/oracle/config"
	"github.com/luxfi/oracle/feed"
	"github.com/luxfi/oracle/ledger"
	"github.com/luxfi/oracle/metrics"
	"github.com/luxfi/oracle/state"
	"github.com/luxfi/oracle/tokens"
	"github.com/luxfi/oracle/uq112"
	"github.com/luxfi/oracle/utils/timer/mockable"
	"github.com/luxfi/oracle/validator"
)

var (
	ErrZeroAddress       = errors.New("oracle: zero identifier")
	ErrAnchorPeriodZero  = errors.New("oracle: zero anchor period")
	ErrDecimalMismatch   = errors.New("oracle: base unit does not match token decimals")
	ErrEmptyBatch        = errors.New("oracle: empty config batch")
	ErrNotConfigured     = errors.New("oracle: asset not configured")
	ErrMissingQuoteAsset = errors.New("oracle: native quote asset unavailable")
	ErrPriceNotReady     = errors.New("oracle: anchor price not ready")
	ErrZeroReserve       = errors.New("oracle: empty reserve on priced side")
)

// Engine owns token configurations, observation windows and published anchor
// prices. Every mutation is all-or-nothing: staged against the versioned
// database, committed, and only then reflected in memory.
type Engine struct {
	cfg      config.Config
	log      log.Logger
	clock    *mockable.Clock
	feed     feed.Adapter
	registry *tokens.Registry

	db      *versiondb.Database
	state   *state.State
	ledger  *ledger.Ledger
	bounds  *validator.Validator
	metrics *metrics.Metrics
	pubsub  *pubsub.Server

	mu      sync.RWMutex
	configs map[ids.ID]state.TokenConfig
	anchors map[ids.ID]state.AnchorPrice
	events  []Event
}

// New creates an engine over db, reading pool state through adapter and token
// metadata from registry. Previously persisted configs, windows and anchors
// are restored. A nil clock reads wall time.
func New(
	cfg config.Config,
	db database.Database,
	adapter feed.Adapter,
	registry *tokens.Registry,
	clock *mockable.Clock,
	registerer metric.Registerer,
	logger log.Logger,
) (*Engine, error) {
	defaults := config.DefaultConfig()
	if cfg.RatioScale == 0 {
		cfg.RatioScale = defaults.RatioScale
	}
	if cfg.RetentionCap <= 0 {
		cfg.RetentionCap = defaults.RetentionCap
	}
	if cfg.EventHistorySize <= 0 {
		cfg.EventHistorySize = defaults.EventHistorySize
	}
	if clock == nil {
		clock = &mockable.Clock{}
	}

	m, err := metrics.New(registerer)
	if err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	vdb := versiondb.New(db)
	e := &Engine{
		cfg:      cfg,
		log:      logger,
		clock:    clock,
		feed:     adapter,
		registry: registry,
		db:       vdb,
		state:    state.New(vdb),
		ledger:   ledger.New(cfg.RetentionCap),
		bounds:   validator.New(cfg.RatioScale),
		metrics:  m,
		pubsub:   pubsub.New(logger),
		configs:  make(map[ids.ID]state.TokenConfig),
		anchors:  make(map[ids.ID]state.AnchorPrice),
	}
	if err := e.restore(); err != nil {
		return nil, fmt.Errorf("failed to restore oracle state: %w", err)
	}
	return e, nil
}

// restore loads persisted state into memory.
func (e *Engine) restore() error {
	configs, err := e.state.TokenConfigs()
	if err != nil {
		return err
	}
	for _, cfg := range configs {
		e.configs[cfg.Asset] = cfg

		windowStart, window, err := e.state.GetWindow(cfg.Asset)
		switch {
		case err == nil:
			if err := e.ledger.Restore(cfg.Asset, windowStart, window); err != nil {
				return err
			}
		case !errors.Is(err, state.ErrNotFound):
			return err
		}

		anchor, err := e.state.GetAnchorPrice(cfg.Asset)
		switch {
		case err == nil:
			e.anchors[cfg.Asset] = anchor
		case !errors.Is(err, state.ErrNotFound):
			return err
		}
	}

	validationConfigs, err := e.state.ValidationConfigs()
	if err != nil {
		return err
	}
	if len(validationConfigs) > 0 {
		if err := e.bounds.SetConfigs(validationConfigs); err != nil {
			return err
		}
	}

	e.metrics.ConfiguredAssets.Set(float64(len(e.configs)))
	if len(e.configs) > 0 {
		e.log.Info("restored oracle state",
			"tokenConfigs", len(e.configs),
			"anchors", len(e.anchors),
			"validationConfigs", len(validationConfigs),
		)
	}
	return nil
}

// Clock returns the engine's clock.
func (e *Engine) Clock() *mockable.Clock {
	return e.clock
}

// EventsHandler returns the HTTP handler for event subscriptions.
func (e *Engine) EventsHandler() http.Handler {
	return e.pubsub
}

// SetConfig writes a single token configuration.
func (e *Engine) SetConfig(cfg state.TokenConfig) error {
	return e.SetConfigs([]state.TokenConfig{cfg})
}

// SetConfigs writes a batch of token configurations atomically: the whole
// batch is validated, staged and committed before any of it becomes visible,
// and any failure leaves every asset untouched. Reconfiguring an asset keeps
// its observation history; a duplicate asset within the batch resolves
// last-write-wins. The first configuration of an asset seeds its window with
// an observation taken from the pool at the current time.
func (e *Engine) SetConfigs(cfgs []state.TokenConfig) error {
	if len(cfgs) == 0 {
		return ErrEmptyBatch
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.clock.Unix()

	type stagedConfig struct {
		cfg  state.TokenConfig
		seed *ledger.Observation
	}

	// Validate everything before touching any state.
	staged := make([]stagedConfig, 0, len(cfgs))
	index := make(map[ids.ID]int, len(cfgs))
	for _, cfg := range cfgs {
		if cfg.Asset == ids.Empty || cfg.Pool == ids.Empty {
			return ErrZeroAddress
		}
		if cfg.AnchorPeriod == 0 {
			return fmt.Errorf("%w: asset %s", ErrAnchorPeriodZero, cfg.Asset)
		}
		if cfg.NativeQuoted && (e.cfg.NativeAsset == ids.Empty || cfg.Asset == e.cfg.NativeAsset) {
			return fmt.Errorf("%w: asset %s cannot be quoted in the native asset", ErrMissingQuoteAsset, cfg.Asset)
		}
		baseUnit, err := e.registry.BaseUnit(cfg.Asset)
		if err != nil {
			return fmt.Errorf("asset %s: %w", cfg.Asset, err)
		}
		if baseUnit != cfg.BaseUnit {
			return fmt.Errorf("%w: asset %s has base unit %d, config says %d",
				ErrDecimalMismatch, cfg.Asset, baseUnit, cfg.BaseUnit)
		}

		if i, ok := index[cfg.Asset]; ok {
			staged[i] = stagedConfig{cfg: cfg}
			continue
		}
		index[cfg.Asset] = len(staged)
		staged = append(staged, stagedConfig{cfg: cfg})
	}

	// Seed windows for assets seen for the first time, reading the pool at
	// the final config for the asset. An unreadable pool rejects the batch.
	newAssets := make(set.Set[ids.ID], len(staged))
	for i, sc := range staged {
		if e.ledger.Has(sc.cfg.Asset) {
			continue
		}
		acc, err := e.currentCumulativePrice(sc.cfg, now)
		if err != nil {
			return fmt.Errorf("failed to seed asset %s: %w", sc.cfg.Asset, err)
		}
		staged[i].seed = &ledger.Observation{Timestamp: now, Accumulator: acc}
		newAssets.Add(sc.cfg.Asset)
	}

	// Persist, then commit, then mirror into memory.
	for _, sc := range staged {
		if err := e.state.PutTokenConfig(sc.cfg); err != nil {
			e.db.Abort()
			return err
		}
		if sc.seed != nil {
			if err := e.state.PutWindow(sc.cfg.Asset, 0, []ledger.Observation{*sc.seed}); err != nil {
				e.db.Abort()
				return err
			}
		}
	}
	if err := e.db.Commit(); err != nil {
		e.db.Abort()
		return err
	}

	for _, sc := range staged {
		e.configs[sc.cfg.Asset] = sc.cfg
		if sc.seed != nil {
			if err := e.ledger.Seed(sc.cfg.Asset, *sc.seed); err != nil {
				// Cannot happen: the asset was absent under the same lock.
				e.log.Error("seeding committed asset failed",
					"asset", sc.cfg.Asset,
					"error", err,
				)
			}
		}
		e.emitLocked(ConfigSet{
			Asset:        sc.cfg.Asset,
			Pool:         sc.cfg.Pool,
			AnchorPeriod: sc.cfg.AnchorPeriod,
			NativeQuoted: sc.cfg.NativeQuoted,
			Reversed:     sc.cfg.Reversed,
			Timestamp:    now,
		})
		e.log.Info("token config set",
			"asset", sc.cfg.Asset,
			"pool", sc.cfg.Pool,
			"anchorPeriod", sc.cfg.AnchorPeriod,
			"nativeQuoted", sc.cfg.NativeQuoted,
			"reversed", sc.cfg.Reversed,
			"seeded", newAssets.Contains(sc.cfg.Asset),
		)
	}
	e.metrics.ConfiguredAssets.Set(float64(len(e.configs)))
	return nil
}

// GetConfig returns the token configuration for an asset.
func (e *Engine) GetConfig(asset ids.ID) (state.TokenConfig, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	cfg, ok := e.configs[asset]
	if !ok {
		return state.TokenConfig{}, fmt.Errorf("%w: %s", ErrNotConfigured, asset)
	}
	return cfg, nil
}

// Assets returns the IDs of all configured assets.
func (e *Engine) Assets() []ids.ID {
	e.mu.RLock()
	defer e.mu.RUnlock()

	assets := make([]ids.ID, 0, len(e.configs))
	for asset := range e.configs {
		assets = append(assets, asset)
	}
	return assets
}

// UpdateTwap recomputes and publishes the anchor price for an asset from the
// time-weighted average over its observation window, appending the current
// accumulator reading as a new observation. If no time has elapsed since the
// window head the call is a no-op returning the current anchor, which is a
// zero price before the first publication. Any failure leaves the asset's
// state untouched.
func (e *Engine) UpdateTwap(asset ids.ID) (state.AnchorPrice, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	cfg, ok := e.configs[asset]
	if !ok {
		return state.AnchorPrice{}, fmt.Errorf("%w: %s", ErrNotConfigured, asset)
	}

	anchor, err := e.updateLocked(cfg)
	if err != nil {
		e.metrics.NumUpdateFailures.Inc()
		e.log.Debug("twap update failed",
			"asset", asset,
			"error", err,
		)
		return state.AnchorPrice{}, err
	}
	return cloneAnchor(anchor), nil
}

func (e *Engine) updateLocked(cfg state.TokenConfig) (state.AnchorPrice, error) {
	now := e.clock.Unix()

	currentAcc, err := e.currentCumulativePrice(cfg, now)
	if err != nil {
		return state.AnchorPrice{}, err
	}
	baseline, err := e.ledger.Baseline(cfg.Asset)
	if err != nil {
		return state.AnchorPrice{}, err
	}
	if now < baseline.Timestamp {
		return state.AnchorPrice{}, ledger.ErrTimeRegression
	}

	elapsed := now - baseline.Timestamp
	if elapsed == 0 {
		// Nothing to average over. Keep the window and anchor as they are;
		// before the first publication the anchor is a zero price.
		anchor, ok := e.anchors[cfg.Asset]
		if !ok {
			return state.AnchorPrice{Asset: cfg.Asset, Price: new(uint256.Int)}, nil
		}
		return anchor, nil
	}

	delta, err := uq112.Sub(currentAcc, baseline.Accumulator)
	if err != nil {
		return state.AnchorPrice{}, err
	}
	raw, err := uq112.DivUint64(delta, elapsed)
	if err != nil {
		return state.AnchorPrice{}, err
	}
	price, err := uq112.Decode(raw, cfg.BaseUnit)
	if err != nil {
		return state.AnchorPrice{}, err
	}
	if cfg.NativeQuoted {
		price, err = e.composeNativeLocked(price)
		if err != nil {
			return state.AnchorPrice{}, err
		}
	}

	obs := ledger.Observation{Timestamp: now, Accumulator: currentAcc}
	window, windowStart, advanced, err := e.ledger.Preview(cfg.Asset, obs, cfg.AnchorPeriod)
	if err != nil {
		return state.AnchorPrice{}, err
	}
	anchor := state.AnchorPrice{
		Asset:      cfg.Asset,
		Price:      price,
		LastUpdate: now,
	}

	if err := e.state.PutWindow(cfg.Asset, windowStart, window); err != nil {
		e.db.Abort()
		return state.AnchorPrice{}, err
	}
	if err := e.state.PutAnchorPrice(anchor); err != nil {
		e.db.Abort()
		return state.AnchorPrice{}, err
	}
	if err := e.db.Commit(); err != nil {
		e.db.Abort()
		return state.AnchorPrice{}, err
	}

	// Committed. Mirror into memory; Apply rechecks exactly what Preview
	// accepted, so it cannot fail here.
	_, newBaseline, err := e.ledger.Apply(cfg.Asset, obs, cfg.AnchorPeriod)
	if err != nil {
		return state.AnchorPrice{}, err
	}
	e.anchors[cfg.Asset] = anchor

	if advanced {
		e.metrics.NumWindowAdvances.Inc()
		e.emitLocked(WindowUpdated{
			Asset:                  cfg.Asset,
			WindowStartTimestamp:   newBaseline.Timestamp,
			WindowStartAccumulator: newBaseline.Accumulator,
			Timestamp:              now,
			Accumulator:            new(uint256.Int).Set(currentAcc),
		})
	}
	e.metrics.NumPriceUpdates.Inc()
	e.emitLocked(PriceUpdated{
		Asset:       cfg.Asset,
		Price:       new(uint256.Int).Set(price),
		WindowStart: baseline.Timestamp,
		Timestamp:   now,
	})
	e.log.Debug("anchor price updated",
		"asset", cfg.Asset,
		"price", price.String(),
		"elapsed", elapsed,
		"windowAdvanced", advanced,
	)
	return anchor, nil
}

// composeNativeLocked converts a pool-quoted average into the native quote by
// multiplying with the native asset's anchor price. The quote anchor is read
// by value here, so a later quote update never retroactively changes this
// asset's price.
func (e *Engine) composeNativeLocked(avg *uint256.Int) (*uint256.Int, error) {
	quoteCfg, ok := e.configs[e.cfg.NativeAsset]
	if !ok {
		return nil, fmt.Errorf("%w: not configured", ErrMissingQuoteAsset)
	}
	quoteAnchor, ok := e.anchors[e.cfg.NativeAsset]
	if !ok || quoteAnchor.Price == nil || quoteAnchor.Price.IsZero() {
		return nil, fmt.Errorf("%w: no anchor price", ErrMissingQuoteAsset)
	}

	price, overflow := new(uint256.Int).MulOverflow(avg, quoteAnchor.Price)
	if overflow {
		return nil, uq112.ErrOverflow
	}
	return price.Div(price, new(uint256.Int).SetUint64(quoteCfg.BaseUnit)), nil
}

// currentCumulativePrice reads the asset's accumulator side from its pool and
// extrapolates it to now at the pool's current spot price.
func (e *Engine) currentCumulativePrice(cfg state.TokenConfig, now uint64) (*uint256.Int, error) {
	reserve0, reserve1, lastUpdate, err := e.feed.Reserves(cfg.Pool)
	if err != nil {
		return nil, err
	}

	side := feed.SidePrice0
	selfReserve, otherReserve := reserve0, reserve1
	if cfg.Reversed {
		side = feed.SidePrice1
		selfReserve, otherReserve = reserve1, reserve0
	}
	if selfReserve == 0 {
		return nil, fmt.Errorf("%w: pool %s", ErrZeroReserve, cfg.Pool)
	}

	acc, err := e.feed.CumulativePrice(cfg.Pool, side)
	if err != nil {
		return nil, err
	}
	if now <= lastUpdate {
		return acc, nil
	}

	spot, err := uq112.Fraction(otherReserve, selfReserve)
	if err != nil {
		return nil, err
	}
	gap, err := uq112.MulUint64(spot, now-lastUpdate)
	if err != nil {
		return nil, err
	}
	return uq112.Add(acc, gap)
}

// GetPrice returns the published anchor price for an asset, scaled by the
// asset's base unit.
func (e *Engine) GetPrice(asset ids.ID) (*uint256.Int, error) {
	anchor, err := e.GetAnchor(asset)
	if err != nil {
		return nil, err
	}
	return anchor.Price, nil
}

// GetAnchor returns the published anchor record for an asset.
func (e *Engine) GetAnchor(asset ids.ID) (state.AnchorPrice, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if _, ok := e.configs[asset]; !ok {
		return state.AnchorPrice{}, fmt.Errorf("%w: %s", ErrNotConfigured, asset)
	}
	anchor, ok := e.anchors[asset]
	if !ok || anchor.Price == nil || anchor.Price.IsZero() {
		return state.AnchorPrice{}, fmt.Errorf("%w: %s", ErrPriceNotReady, asset)
	}
	return cloneAnchor(anchor), nil
}

// SetValidationConfigs writes a batch of bound validator configs atomically.
func (e *Engine) SetValidationConfigs(cfgs []validator.Config) error {
	if err := validator.VerifyConfigs(cfgs); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	for _, cfg := range cfgs {
		if err := e.state.PutValidationConfig(cfg); err != nil {
			e.db.Abort()
			return err
		}
	}
	if err := e.db.Commit(); err != nil {
		e.db.Abort()
		return err
	}
	if err := e.bounds.SetConfigs(cfgs); err != nil {
		return err
	}
	for _, cfg := range cfgs {
		e.log.Info("validation config set",
			"asset", cfg.Asset,
			"lowerBound", cfg.LowerBound,
			"upperBound", cfg.UpperBound,
		)
	}
	return nil
}

// GetValidationConfig returns the bound validator config for an asset.
func (e *Engine) GetValidationConfig(asset ids.ID) (validator.Config, error) {
	return e.bounds.Config(asset)
}

// Validate checks a reported price against the asset's published anchor
// within its configured bound ratios.
func (e *Engine) Validate(asset ids.ID, reported *uint256.Int) (bool, error) {
	e.mu.RLock()
	anchor := e.anchors[asset].Price
	e.mu.RUnlock()

	e.metrics.NumValidations.Inc()
	ok, err := e.bounds.Validate(asset, reported, anchor)
	if err != nil {
		return false, err
	}
	if !ok {
		e.metrics.NumValidationRejects.Inc()
		reportedStr := "0"
		if reported != nil {
			reportedStr = reported.String()
		}
		e.log.Debug("reported price rejected",
			"asset", asset,
			"reported", reportedStr,
		)
	}
	return ok, nil
}

// Events returns a copy of the most recent events, oldest first. A limit of
// zero or less returns the whole retained history.
func (e *Engine) Events(limit int) []Event {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if limit <= 0 || limit > len(e.events) {
		limit = len(e.events)
	}
	events := make([]Event, limit)
	copy(events, e.events[len(e.events)-limit:])
	return events
}

// emitLocked records an event in the bounded history and publishes it to
// subscribers. Must be called with the engine lock held.
func (e *Engine) emitLocked(ev Event) {
	if len(e.events) >= e.cfg.EventHistorySize {
		e.events = append(e.events[:0], e.events[1:]...)
	}
	e.events = append(e.events, ev)
	e.pubsub.Publish(NewEventFilterer(ev))
}

func cloneAnchor(anchor state.AnchorPrice) state.AnchorPrice {
	if anchor.Price != nil {
		anchor.Price = new(uint256.Int).Set(anchor.Price)
	}
	return anchor
}
