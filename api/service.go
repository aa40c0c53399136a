// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package api exposes the oracle engine over JSON-RPC, with a pubsub endpoint
// for event subscriptions.
package api

import (
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gorilla/rpc/v2"
	"github.com/holiman/uint256"
	"github.com/luxfi/ids"
	"github.com/luxfi/log"

	"github.com/luxfi/oracle"
	"github.com/luxfi/oracle/state"
	"github.com/luxfi/oracle/utils/json"
	"github.com/luxfi/oracle/validator"
)

// Service is the JSON-RPC handler for the oracle.
type Service struct {
	log    log.Logger
	engine *oracle.Engine
}

// NewService creates the RPC service over engine.
func NewService(engine *oracle.Engine, logger log.Logger) *Service {
	return &Service{
		log:    logger,
		engine: engine,
	}
}

// NewHTTPHandler returns a router serving the JSON-RPC service under /rpc and
// event subscriptions under /events.
func NewHTTPHandler(engine *oracle.Engine, logger log.Logger) (http.Handler, error) {
	codec := json.NewCodec()
	server := rpc.NewServer()
	server.RegisterCodec(codec, "application/json")
	server.RegisterCodec(codec, "application/json;charset=UTF-8")
	if err := server.RegisterService(NewService(engine, logger), "oracle"); err != nil {
		return nil, err
	}

	router := mux.NewRouter()
	router.Handle("/rpc", server)
	router.Handle("/events", engine.EventsHandler())
	return router, nil
}

type PingReply struct {
	Success bool `json:"success"`
}

// Ping reports whether the service is reachable.
func (s *Service) Ping(_ *http.Request, _ *struct{}, reply *PingReply) error {
	s.log.Debug("API called", "service", "oracle", "method", "ping")

	reply.Success = true
	return nil
}

// TokenConfig is the wire form of a token configuration.
type TokenConfig struct {
	Asset        ids.ID      `json:"asset"`
	Pool         ids.ID      `json:"pool"`
	BaseUnit     json.Uint64 `json:"baseUnit"`
	AnchorPeriod json.Uint64 `json:"anchorPeriod"`
	NativeQuoted bool        `json:"nativeQuoted"`
	Reversed     bool        `json:"reversed"`
}

func (c TokenConfig) toState() state.TokenConfig {
	return state.TokenConfig{
		Asset:        c.Asset,
		Pool:         c.Pool,
		BaseUnit:     uint64(c.BaseUnit),
		AnchorPeriod: uint64(c.AnchorPeriod),
		NativeQuoted: c.NativeQuoted,
		Reversed:     c.Reversed,
	}
}

func toWireConfig(cfg state.TokenConfig) TokenConfig {
	return TokenConfig{
		Asset:        cfg.Asset,
		Pool:         cfg.Pool,
		BaseUnit:     json.Uint64(cfg.BaseUnit),
		AnchorPeriod: json.Uint64(cfg.AnchorPeriod),
		NativeQuoted: cfg.NativeQuoted,
		Reversed:     cfg.Reversed,
	}
}

type SetConfigsArgs struct {
	Configs []TokenConfig `json:"configs"`
}

type SetConfigsReply struct {
	Updated json.Uint64 `json:"updated"`
}

// SetConfigs writes a batch of token configurations atomically.
func (s *Service) SetConfigs(_ *http.Request, args *SetConfigsArgs, reply *SetConfigsReply) error {
	s.log.Debug("API called", "service", "oracle", "method", "setConfigs", "configs", len(args.Configs))

	cfgs := make([]state.TokenConfig, 0, len(args.Configs))
	for _, cfg := range args.Configs {
		cfgs = append(cfgs, cfg.toState())
	}
	if err := s.engine.SetConfigs(cfgs); err != nil {
		return err
	}
	reply.Updated = json.Uint64(len(args.Configs))
	return nil
}

type GetConfigArgs struct {
	Asset ids.ID `json:"asset"`
}

type GetConfigReply struct {
	Config TokenConfig `json:"config"`
}

// GetConfig returns the token configuration for an asset.
func (s *Service) GetConfig(_ *http.Request, args *GetConfigArgs, reply *GetConfigReply) error {
	s.log.Debug("API called", "service", "oracle", "method", "getConfig", "asset", args.Asset)

	cfg, err := s.engine.GetConfig(args.Asset)
	if err != nil {
		return err
	}
	reply.Config = toWireConfig(cfg)
	return nil
}

type AssetsReply struct {
	Assets []ids.ID `json:"assets"`
}

// Assets returns the IDs of all configured assets.
func (s *Service) Assets(_ *http.Request, _ *struct{}, reply *AssetsReply) error {
	s.log.Debug("API called", "service", "oracle", "method", "assets")

	reply.Assets = s.engine.Assets()
	return nil
}

type UpdateTwapArgs struct {
	Asset ids.ID `json:"asset"`
}

type UpdateTwapReply struct {
	Price      string      `json:"price"`
	LastUpdate json.Uint64 `json:"lastUpdate"`
}

// UpdateTwap recomputes and publishes the anchor price for an asset.
func (s *Service) UpdateTwap(_ *http.Request, args *UpdateTwapArgs, reply *UpdateTwapReply) error {
	s.log.Debug("API called", "service", "oracle", "method", "updateTwap", "asset", args.Asset)

	anchor, err := s.engine.UpdateTwap(args.Asset)
	if err != nil {
		return err
	}
	reply.Price = anchor.Price.Dec()
	reply.LastUpdate = json.Uint64(anchor.LastUpdate)
	return nil
}

type GetPriceArgs struct {
	Asset ids.ID `json:"asset"`
}

type GetPriceReply struct {
	Price      string      `json:"price"`
	LastUpdate json.Uint64 `json:"lastUpdate"`
}

// GetPrice returns the published anchor price for an asset.
func (s *Service) GetPrice(_ *http.Request, args *GetPriceArgs, reply *GetPriceReply) error {
	s.log.Debug("API called", "service", "oracle", "method", "getPrice", "asset", args.Asset)

	anchor, err := s.engine.GetAnchor(args.Asset)
	if err != nil {
		return err
	}
	reply.Price = anchor.Price.Dec()
	reply.LastUpdate = json.Uint64(anchor.LastUpdate)
	return nil
}

// ValidationConfig is the wire form of a bound validator configuration.
type ValidationConfig struct {
	Asset      ids.ID      `json:"asset"`
	LowerBound json.Uint64 `json:"lowerBound"`
	UpperBound json.Uint64 `json:"upperBound"`
}

type SetValidationConfigsArgs struct {
	Configs []ValidationConfig `json:"configs"`
}

type SetValidationConfigsReply struct {
	Updated json.Uint64 `json:"updated"`
}

// SetValidationConfigs writes a batch of bound validator configs atomically.
func (s *Service) SetValidationConfigs(_ *http.Request, args *SetValidationConfigsArgs, reply *SetValidationConfigsReply) error {
	s.log.Debug("API called", "service", "oracle", "method", "setValidationConfigs", "configs", len(args.Configs))

	cfgs := make([]validator.Config, 0, len(args.Configs))
	for _, cfg := range args.Configs {
		cfgs = append(cfgs, validator.Config{
			Asset:      cfg.Asset,
			LowerBound: uint64(cfg.LowerBound),
			UpperBound: uint64(cfg.UpperBound),
		})
	}
	if err := s.engine.SetValidationConfigs(cfgs); err != nil {
		return err
	}
	reply.Updated = json.Uint64(len(args.Configs))
	return nil
}

type ValidateArgs struct {
	Asset    ids.ID `json:"asset"`
	Reported string `json:"reported"`
}

type ValidateReply struct {
	Valid bool `json:"valid"`
}

// Validate checks a reported price against the asset's anchor bounds.
func (s *Service) Validate(_ *http.Request, args *ValidateArgs, reply *ValidateReply) error {
	s.log.Debug("API called", "service", "oracle", "method", "validate", "asset", args.Asset)

	reported, err := uint256.FromDecimal(args.Reported)
	if err != nil {
		return fmt.Errorf("invalid reported price %q: %w", args.Reported, err)
	}
	valid, err := s.engine.Validate(args.Asset, reported)
	if err != nil {
		return err
	}
	reply.Valid = valid
	return nil
}

// Event wraps an engine event with its type tag for clients.
type Event struct {
	Type  oracle.EventType `json:"type"`
	Event oracle.Event     `json:"event"`
}

type GetEventsArgs struct {
	Limit json.Uint64 `json:"limit"`
}

type GetEventsReply struct {
	Events []Event `json:"events"`
}

// GetEvents returns the most recent events, oldest first. A zero limit
// returns the whole retained history.
func (s *Service) GetEvents(_ *http.Request, args *GetEventsArgs, reply *GetEventsReply) error {
	s.log.Debug("API called", "service", "oracle", "method", "getEvents", "limit", uint64(args.Limit))

	events := s.engine.Events(int(args.Limit))
	reply.Events = make([]Event, 0, len(events))
	for _, ev := range events {
		reply.Events = append(reply.Events, Event{
			Type:  ev.Type(),
			Event: ev,
		})
	}
	return nil
}
