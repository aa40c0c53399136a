// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package oracle

import (
	"github.com/holiman/uint256"
	"github.com/luxfi/ids"
	"github.com/luxfi/pubsub"
)

// EventType discriminates oracle events.
type EventType string

const (
	EventConfigSet     EventType = "configSet"
	EventWindowUpdated EventType = "windowUpdated"
	EventPriceUpdated  EventType = "priceUpdated"
)

// Event is an oracle state transition published to subscribers.
type Event interface {
	Type() EventType
	AssetID() ids.ID
}

// ConfigSet is emitted when a token configuration is written.
type ConfigSet struct {
	Asset        ids.ID `json:"asset"`
	Pool         ids.ID `json:"pool"`
	AnchorPeriod uint64 `json:"anchorPeriod"`
	NativeQuoted bool   `json:"nativeQuoted"`
	Reversed     bool   `json:"reversed"`
	Timestamp    uint64 `json:"timestamp"`
}

func (ConfigSet) Type() EventType { return EventConfigSet }
func (e ConfigSet) AssetID() ids.ID { return e.Asset }

// WindowUpdated is emitted when an update advances an asset's observation
// window. WindowStartTimestamp and WindowStartAccumulator describe the new
// baseline; Timestamp and Accumulator describe the observation that forced
// the advance.
type WindowUpdated struct {
	Asset                  ids.ID       `json:"asset"`
	WindowStartTimestamp   uint64       `json:"windowStartTimestamp"`
	WindowStartAccumulator *uint256.Int `json:"windowStartAccumulator"`
	Timestamp              uint64       `json:"timestamp"`
	Accumulator            *uint256.Int `json:"accumulator"`
}

func (WindowUpdated) Type() EventType { return EventWindowUpdated }
func (e WindowUpdated) AssetID() ids.ID { return e.Asset }

// PriceUpdated is emitted when an anchor price is published. WindowStart is
// the timestamp of the baseline the average was taken against.
type PriceUpdated struct {
	Asset       ids.ID       `json:"asset"`
	Price       *uint256.Int `json:"price"`
	WindowStart uint64       `json:"windowStart"`
	Timestamp   uint64       `json:"timestamp"`
}

func (PriceUpdated) Type() EventType { return EventPriceUpdated }
func (e PriceUpdated) AssetID() ids.ID { return e.Asset }

type eventFilterer struct {
	ev Event
}

// NewEventFilterer returns a pubsub filterer that matches subscribers
// filtering on the event's asset ID bytes.
func NewEventFilterer(ev Event) pubsub.Filterer {
	return &eventFilterer{ev: ev}
}

// Filter implements pubsub.Filterer.
func (f *eventFilterer) Filter(filters []pubsub.Filter) ([]bool, interface{}) {
	resp := make([]bool, len(filters))
	asset := f.ev.AssetID()
	for i, filter := range filters {
		resp[i] = filter.Check(asset[:])
	}
	return resp, f.ev
}
