// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package ledger maintains per-asset histories of cumulative-price
// accumulator snapshots and the sliding window over them.
//
// Each asset owns an append-only sequence of observations and a windowStart
// cursor marking the current baseline. The cursor only ever moves forward:
// when a freshly appended observation leaves entries older than the asset's
// anchor period, the cursor advances past exactly those stale entries and
// the skipped slots are cleared. Observations still inside the window are
// never skipped, so frequent updates cannot shrink the averaging interval
// below the anchor period. The entry at the cursor is always usable as a
// baseline, even when infrequent updates leave it older than the anchor
// period.
package ledger

import (
	"errors"
	"sync"

	"github.com/holiman/uint256"
	"github.com/luxfi/ids"
)

const defaultRetentionCap = 1000

var (
	ErrNotSeeded      = errors.New("ledger: asset not seeded")
	ErrAlreadySeeded  = errors.New("ledger: asset already seeded")
	ErrNilAccumulator = errors.New("ledger: nil accumulator")
	ErrTimeRegression = errors.New("ledger: observation timestamp regressed")
)

// Observation is a snapshot of a pool's cumulative price accumulator.
type Observation struct {
	Timestamp   uint64       // unix seconds
	Accumulator *uint256.Int // UQ112x112
}

func (o Observation) clone() Observation {
	return Observation{
		Timestamp:   o.Timestamp,
		Accumulator: new(uint256.Int).Set(o.Accumulator),
	}
}

type assetLedger struct {
	entries []Observation
	cursor  int    // index of the window start within entries
	pruned  uint64 // slots reclaimed by compaction before entries[0]
}

// windowStart returns the absolute position of the cursor over the full
// logical history, so callers observe a monotonically increasing value even
// after compaction.
func (l *assetLedger) windowStart() uint64 {
	return l.pruned + uint64(l.cursor)
}

// Ledger tracks observation windows for any number of assets.
type Ledger struct {
	mu           sync.RWMutex
	assets       map[ids.ID]*assetLedger
	retentionCap int
}

// New creates an empty ledger. retentionCap bounds the number of observation
// slots held per asset; values below 2 fall back to the default.
func New(retentionCap int) *Ledger {
	if retentionCap < 2 {
		retentionCap = defaultRetentionCap
	}
	return &Ledger{
		assets:       make(map[ids.ID]*assetLedger),
		retentionCap: retentionCap,
	}
}

// Has reports whether the asset has a seeded history.
func (l *Ledger) Has(asset ids.ID) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.assets[asset]
	return ok
}

// Seed installs the first observation for an asset. The seed becomes the
// initial baseline.
func (l *Ledger) Seed(asset ids.ID, obs Observation) error {
	if obs.Accumulator == nil {
		return ErrNilAccumulator
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.assets[asset]; ok {
		return ErrAlreadySeeded
	}
	l.assets[asset] = &assetLedger{
		entries: []Observation{obs.clone()},
	}
	return nil
}

// Restore installs a previously persisted window for an asset: the baseline
// first, followed by newer observations, with windowStart giving the
// baseline's absolute position in the asset's history.
func (l *Ledger) Restore(asset ids.ID, windowStart uint64, window []Observation) error {
	if len(window) == 0 {
		return ErrNotSeeded
	}
	for i, obs := range window {
		if obs.Accumulator == nil {
			return ErrNilAccumulator
		}
		if i > 0 && obs.Timestamp < window[i-1].Timestamp {
			return ErrTimeRegression
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.assets[asset]; ok {
		return ErrAlreadySeeded
	}
	entries := make([]Observation, 0, len(window))
	for _, obs := range window {
		entries = append(entries, obs.clone())
	}
	l.assets[asset] = &assetLedger{
		entries: entries,
		pruned:  windowStart,
	}
	return nil
}

// Baseline returns the observation at the current window start.
func (l *Ledger) Baseline(asset ids.ID) (Observation, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	al, ok := l.assets[asset]
	if !ok {
		return Observation{}, ErrNotSeeded
	}
	return al.entries[al.cursor].clone(), nil
}

// Head returns the newest observation.
func (l *Ledger) Head(asset ids.ID) (Observation, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	al, ok := l.assets[asset]
	if !ok {
		return Observation{}, ErrNotSeeded
	}
	return al.entries[len(al.entries)-1].clone(), nil
}

// WindowStart returns the absolute index of the current baseline within the
// asset's full logical history.
func (l *Ledger) WindowStart(asset ids.ID) (uint64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	al, ok := l.assets[asset]
	if !ok {
		return 0, ErrNotSeeded
	}
	return al.windowStart(), nil
}

// Window returns a copy of the live window, baseline first.
func (l *Ledger) Window(asset ids.ID) ([]Observation, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	al, ok := l.assets[asset]
	if !ok {
		return nil, ErrNotSeeded
	}
	window := make([]Observation, 0, len(al.entries)-al.cursor)
	for _, obs := range al.entries[al.cursor:] {
		window = append(window, obs.clone())
	}
	return window, nil
}

// Preview computes, without mutating the ledger, the live window and window
// start that Apply would produce for the given observation. Callers use it to
// stage durable state before committing the in-memory append.
func (l *Ledger) Preview(asset ids.ID, obs Observation, anchorPeriod uint64) ([]Observation, uint64, bool, error) {
	if obs.Accumulator == nil {
		return nil, 0, false, ErrNilAccumulator
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	al, ok := l.assets[asset]
	if !ok {
		return nil, 0, false, ErrNotSeeded
	}
	if obs.Timestamp < al.entries[len(al.entries)-1].Timestamp {
		return nil, 0, false, ErrTimeRegression
	}

	cursor, advanced := nextCursor(al.entries, al.cursor, obs, anchorPeriod)
	window := make([]Observation, 0, len(al.entries)-cursor+1)
	for _, o := range al.entries[cursor:] {
		window = append(window, o.clone())
	}
	window = append(window, obs.clone())
	return window, al.pruned + uint64(cursor), advanced, nil
}

// Apply appends the observation and advances the window start past entries
// staled by it, clearing each skipped slot. It reports whether the cursor
// advanced and returns the resulting baseline.
func (l *Ledger) Apply(asset ids.ID, obs Observation, anchorPeriod uint64) (bool, Observation, error) {
	if obs.Accumulator == nil {
		return false, Observation{}, ErrNilAccumulator
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	al, ok := l.assets[asset]
	if !ok {
		return false, Observation{}, ErrNotSeeded
	}
	if obs.Timestamp < al.entries[len(al.entries)-1].Timestamp {
		return false, Observation{}, ErrTimeRegression
	}

	cursor, advanced := nextCursor(al.entries, al.cursor, obs, anchorPeriod)
	al.entries = append(al.entries, obs.clone())
	for i := al.cursor; i < cursor; i++ {
		al.entries[i] = Observation{}
	}
	al.cursor = cursor

	// Reclaim cleared slots once the backing array outgrows the cap.
	if al.cursor > 0 && len(al.entries) > l.retentionCap {
		al.pruned += uint64(al.cursor)
		al.entries = append(al.entries[:0], al.entries[al.cursor:]...)
		al.cursor = 0
	}

	return advanced, al.entries[al.cursor].clone(), nil
}

// nextCursor returns the cursor position after appending obs. The cursor
// advances past every entry aged strictly beyond the anchor period relative
// to obs, stopping at the first entry still inside the window. It never
// passes the pre-append head, so a usable baseline with positive elapsed
// time always remains even when the whole history is stale.
func nextCursor(entries []Observation, cursor int, obs Observation, anchorPeriod uint64) (int, bool) {
	head := len(entries) - 1
	next := cursor
	for next < head && obs.Timestamp-entries[next].Timestamp > anchorPeriod {
		next++
	}
	return next, next != cursor
}
