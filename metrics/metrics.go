// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package metrics

import (
	"github.com/luxfi/metric"
)

// Metrics tracks oracle activity.
type Metrics struct {
	// NumPriceUpdates counts successful anchor price publications.
	NumPriceUpdates metric.Counter
	// NumWindowAdvances counts updates that moved an asset's window start.
	NumWindowAdvances metric.Counter
	// NumUpdateFailures counts updates aborted with no state change.
	NumUpdateFailures metric.Counter
	// NumValidations counts bound validations performed.
	NumValidations metric.Counter
	// NumValidationRejects counts validations that fell outside the band.
	NumValidationRejects metric.Counter
	// ConfiguredAssets tracks the number of assets with a token config.
	ConfiguredAssets metric.Gauge
}

// New creates and registers oracle metrics.
func New(registerer metric.Registerer) (*Metrics, error) {
	m := &Metrics{
		NumPriceUpdates: metric.NewCounter(metric.CounterOpts{
			Name: "oracle_price_updates",
			Help: "Number of successful anchor price updates",
		}),
		NumWindowAdvances: metric.NewCounter(metric.CounterOpts{
			Name: "oracle_window_advances",
			Help: "Number of updates that advanced an observation window",
		}),
		NumUpdateFailures: metric.NewCounter(metric.CounterOpts{
			Name: "oracle_update_failures",
			Help: "Number of anchor price updates aborted with no state change",
		}),
		NumValidations: metric.NewCounter(metric.CounterOpts{
			Name: "oracle_validations",
			Help: "Number of bound validations performed",
		}),
		NumValidationRejects: metric.NewCounter(metric.CounterOpts{
			Name: "oracle_validation_rejects",
			Help: "Number of bound validations outside the tolerance band",
		}),
		ConfiguredAssets: metric.NewGauge(metric.GaugeOpts{
			Name: "oracle_configured_assets",
			Help: "Number of assets with a token config",
		}),
	}

	for _, counter := range []metric.Counter{
		m.NumPriceUpdates,
		m.NumWindowAdvances,
		m.NumUpdateFailures,
		m.NumValidations,
		m.NumValidationRejects,
	} {
		if err := registerer.Register(metric.AsCollector(counter)); err != nil {
			return nil, err
		}
	}
	if err := registerer.Register(metric.AsCollector(m.ConfiguredAssets)); err != nil {
		return nil, err
	}
	return m, nil
}
