// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package api

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/database/memdb"
	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	"github.com/luxfi/metric"

	"github.com/luxfi/oracle"
	"github.com/luxfi/oracle/config"
	"github.com/luxfi/oracle/feed"
	"github.com/luxfi/oracle/liquidity"
	"github.com/luxfi/oracle/tokens"
	"github.com/luxfi/oracle/utils/json"
	"github.com/luxfi/oracle/utils/timer/mockable"
)

var (
	tokenX = ids.ID{1}
	tokenY = ids.ID{2}
)

// newTestService builds a service over an engine reading an X/Y pool with
// reserves 2/8, so the spot price of X is 4 Y per X.
func newTestService(t *testing.T) (*Service, *mockable.Clock, ids.ID) {
	require := require.New(t)

	clock := &mockable.Clock{}
	clock.Set(time.Unix(1000, 0))

	pools := liquidity.NewManager(clock)
	registry := tokens.NewRegistry()
	require.NoError(registry.Register(tokens.Token{ID: tokenX, Symbol: "XTK", Decimals: 2}))
	require.NoError(registry.Register(tokens.Token{ID: tokenY, Symbol: "YTK", Decimals: 2}))

	pool, err := pools.CreatePool(tokenX, tokenY, 2, 8, 0)
	require.NoError(err)

	engine, err := oracle.New(
		config.DefaultConfig(),
		memdb.New(),
		feed.NewPoolFeed(pools),
		registry,
		clock,
		metric.NewRegistry(),
		log.NewNoOpLogger(),
	)
	require.NoError(err)

	return NewService(engine, log.NewNoOpLogger()), clock, pool.ID
}

func TestServiceFlow(t *testing.T) {
	require := require.New(t)

	service, clock, poolID := newTestService(t)

	var pingReply PingReply
	require.NoError(service.Ping(nil, nil, &pingReply))
	require.True(pingReply.Success)

	cfg := TokenConfig{
		Asset:        tokenX,
		Pool:         poolID,
		BaseUnit:     100,
		AnchorPeriod: 900,
	}
	var setReply SetConfigsReply
	require.NoError(service.SetConfigs(nil, &SetConfigsArgs{
		Configs: []TokenConfig{cfg},
	}, &setReply))
	require.Equal(json.Uint64(1), setReply.Updated)

	var cfgReply GetConfigReply
	require.NoError(service.GetConfig(nil, &GetConfigArgs{Asset: tokenX}, &cfgReply))
	require.Equal(cfg, cfgReply.Config)

	var assetsReply AssetsReply
	require.NoError(service.Assets(nil, nil, &assetsReply))
	require.Equal([]ids.ID{tokenX}, assetsReply.Assets)

	var priceReply GetPriceReply
	err := service.GetPrice(nil, &GetPriceArgs{Asset: tokenX}, &priceReply)
	require.ErrorIs(err, oracle.ErrPriceNotReady)

	clock.Advance(100 * time.Second)
	var updateReply UpdateTwapReply
	require.NoError(service.UpdateTwap(nil, &UpdateTwapArgs{Asset: tokenX}, &updateReply))
	require.Equal("400", updateReply.Price)
	require.Equal(json.Uint64(1100), updateReply.LastUpdate)

	require.NoError(service.GetPrice(nil, &GetPriceArgs{Asset: tokenX}, &priceReply))
	require.Equal("400", priceReply.Price)
	require.Equal(json.Uint64(1100), priceReply.LastUpdate)

	var validationReply SetValidationConfigsReply
	require.NoError(service.SetValidationConfigs(nil, &SetValidationConfigsArgs{
		Configs: []ValidationConfig{{
			Asset:      tokenX,
			LowerBound: 800_000_000_000_000_000,
			UpperBound: 1_200_000_000_000_000_000,
		}},
	}, &validationReply))

	var validateReply ValidateReply
	require.NoError(service.Validate(nil, &ValidateArgs{Asset: tokenX, Reported: "400"}, &validateReply))
	require.True(validateReply.Valid)
	require.NoError(service.Validate(nil, &ValidateArgs{Asset: tokenX, Reported: "900"}, &validateReply))
	require.False(validateReply.Valid)

	err = service.Validate(nil, &ValidateArgs{Asset: tokenX, Reported: "not-a-number"}, &validateReply)
	require.Error(err)

	var eventsReply GetEventsReply
	require.NoError(service.GetEvents(nil, &GetEventsArgs{Limit: 1}, &eventsReply))
	require.Len(eventsReply.Events, 1)
	require.Equal(oracle.EventPriceUpdated, eventsReply.Events[0].Type)

	require.NoError(service.GetEvents(nil, &GetEventsArgs{}, &eventsReply))
	require.Len(eventsReply.Events, 2) // configSet, priceUpdated
}

func TestHTTPHandler(t *testing.T) {
	require := require.New(t)

	service, clock, poolID := newTestService(t)
	var setReply SetConfigsReply
	require.NoError(service.SetConfigs(nil, &SetConfigsArgs{
		Configs: []TokenConfig{{
			Asset:        tokenX,
			Pool:         poolID,
			BaseUnit:     100,
			AnchorPeriod: 900,
		}},
	}, &setReply))
	clock.Advance(100 * time.Second)

	handler, err := NewHTTPHandler(service.engine, log.NewNoOpLogger())
	require.NoError(err)
	server := httptest.NewServer(handler)
	defer server.Close()

	body := fmt.Sprintf(
		`{"jsonrpc":"2.0","method":"oracle.updateTwap","params":{"asset":%q},"id":1}`,
		tokenX,
	)
	resp, err := http.Post(server.URL+"/rpc", "application/json", strings.NewReader(body))
	require.NoError(err)
	defer resp.Body.Close()

	require.Equal(http.StatusOK, resp.StatusCode)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(err)
	require.Contains(string(raw), `"price":"400"`)
	require.Contains(string(raw), `"lastUpdate":"1100"`)
}
