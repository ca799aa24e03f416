// Package service implements the tracked-market lifecycle use cases shared by
// the Telegram front-end and the ops API.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/polyalert/internal/domain"
	"github.com/alanyoungcy/polyalert/internal/trigger"
)

// AddMarketRequest describes a new subscription.
type AddMarketRequest struct {
	UserID      int64
	MarketID    string
	URL         string
	TargetPrice int
}

// MarketService creates, edits and removes tracked markets. Every use case
// receives its store and gateway through the constructor.
type MarketService struct {
	markets domain.TrackedMarketStore
	gateway domain.MarketDataGateway
	prices  domain.PriceCache
	logger  *slog.Logger
}

// NewMarketService creates a MarketService. prices may be nil when no price
// cache is configured.
func NewMarketService(
	markets domain.TrackedMarketStore,
	gateway domain.MarketDataGateway,
	prices domain.PriceCache,
	logger *slog.Logger,
) *MarketService {
	return &MarketService{
		markets: markets,
		gateway: gateway,
		prices:  prices,
		logger:  logger.With(slog.String("component", "market_service")),
	}
}

// Add starts tracking a market for a user. The trigger direction is inferred
// from the live price: a target above it waits for a rise, otherwise a fall.
func (s *MarketService) Add(ctx context.Context, req AddMarketRequest) (domain.TrackedMarket, error) {
	if !trigger.ValidTarget(req.TargetPrice) {
		return domain.TrackedMarket{}, fmt.Errorf("market_service: add: %w", domain.ErrInvalidTargetPrice)
	}

	existing, err := s.CheckExists(ctx, req.UserID, req.MarketID)
	if err != nil {
		return domain.TrackedMarket{}, err
	}
	if existing != nil {
		return domain.TrackedMarket{}, &domain.MarketAlreadyExistsError{
			MarketID:   req.MarketID,
			ExistingID: existing.ID,
		}
	}

	info, err := s.gateway.GetMarketInfo(ctx, req.MarketID)
	if err != nil {
		return domain.TrackedMarket{}, fmt.Errorf("market_service: add: %w", err)
	}
	if info.TokenID == "" {
		return domain.TrackedMarket{}, fmt.Errorf("market_service: add %s: %w", req.MarketID, domain.ErrTokenIDNotFound)
	}

	current := trigger.ToPercent(info.Price)
	created, err := s.markets.Create(ctx, domain.TrackedMarket{
		UserID:      req.UserID,
		MarketID:    req.MarketID,
		TokenID:     info.TokenID,
		URL:         req.URL,
		Title:       info.Title,
		TargetPrice: req.TargetPrice,
		Condition:   trigger.InferCondition(req.TargetPrice, current),
		Active:      true,
	})
	if err != nil {
		return domain.TrackedMarket{}, fmt.Errorf("market_service: add: %w", err)
	}

	s.logger.InfoContext(ctx, "market tracked",
		slog.Int64("tracked_id", created.ID),
		slog.Int64("user_id", created.UserID),
		slog.String("market_id", created.MarketID),
		slog.Int("target", created.TargetPrice),
		slog.String("condition", string(created.Condition)),
		slog.Float64("current", current),
	)
	return created, nil
}

// UpdateTargetPrice moves the target of a tracked market and re-infers the
// trigger direction from a fresh price. Gateway errors are returned as-is so
// the caller can report them; no stale price is substituted.
func (s *MarketService) UpdateTargetPrice(ctx context.Context, id int64, target int) (domain.TrackedMarket, error) {
	if !trigger.ValidTarget(target) {
		return domain.TrackedMarket{}, fmt.Errorf("market_service: update %d: %w", id, domain.ErrInvalidTargetPrice)
	}

	m, err := s.Get(ctx, id)
	if err != nil {
		return domain.TrackedMarket{}, err
	}

	info, err := s.gateway.GetMarketInfo(ctx, m.MarketID)
	if err != nil {
		return domain.TrackedMarket{}, fmt.Errorf("market_service: update %d: %w", id, err)
	}
	cond := trigger.InferCondition(target, trigger.ToPercent(info.Price))

	updated, err := s.markets.UpdateTargetPrice(ctx, id, target, cond)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.TrackedMarket{}, fmt.Errorf("market_service: update %d: %w", id, domain.ErrMarketNotFound)
		}
		return domain.TrackedMarket{}, fmt.Errorf("market_service: update %d: %w", id, err)
	}
	return updated, nil
}

// ToggleMonitoring switches monitoring on or off. It returns nil without an
// error when the tracked market does not exist.
func (s *MarketService) ToggleMonitoring(ctx context.Context, id int64, active bool) (*domain.TrackedMarket, error) {
	m, err := s.markets.UpdateStatus(ctx, id, active)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("market_service: toggle %d: %w", id, err)
	}
	return &m, nil
}

// Delete stops tracking a market. Deleting an unknown id succeeds.
func (s *MarketService) Delete(ctx context.Context, id int64) error {
	if err := s.markets.Delete(ctx, id); err != nil {
		return fmt.Errorf("market_service: delete %d: %w", id, err)
	}
	return nil
}

// Get returns a tracked market or domain.ErrMarketNotFound.
func (s *MarketService) Get(ctx context.Context, id int64) (domain.TrackedMarket, error) {
	m, err := s.markets.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.TrackedMarket{}, fmt.Errorf("market_service: tracked market %d: %w", id, domain.ErrMarketNotFound)
		}
		return domain.TrackedMarket{}, fmt.Errorf("market_service: get %d: %w", id, err)
	}
	return m, nil
}

// List returns a user's tracked markets, newest first.
func (s *MarketService) List(ctx context.Context, userID int64) ([]domain.TrackedMarket, error) {
	markets, err := s.markets.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("market_service: list for user %d: %w", userID, err)
	}
	return markets, nil
}

// CheckExists returns the user's existing subscription to marketID, or nil.
func (s *MarketService) CheckExists(ctx context.Context, userID int64, marketID string) (*domain.TrackedMarket, error) {
	m, err := s.markets.GetByUserAndMarketID(ctx, userID, marketID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("market_service: check %s for user %d: %w", marketID, userID, err)
	}
	return &m, nil
}

// EventMarkets lists the open sub-markets of an event.
func (s *MarketService) EventMarkets(ctx context.Context, slug string) ([]domain.MarketOption, error) {
	options, err := s.gateway.GetEventMarkets(ctx, slug)
	if err != nil {
		return nil, fmt.Errorf("market_service: event %s: %w", slug, err)
	}
	return options, nil
}

// MarketInfo returns live metadata for an external market.
func (s *MarketService) MarketInfo(ctx context.Context, marketID string) (domain.MarketInfo, error) {
	info, err := s.gateway.GetMarketInfo(ctx, marketID)
	if err != nil {
		return domain.MarketInfo{}, fmt.Errorf("market_service: info %s: %w", marketID, err)
	}
	return info, nil
}

// LastPrices returns the last price (percent) the monitor observed for each
// market, keyed by tracked id. Markets without a cached price are omitted and
// a cache failure yields an empty map.
func (s *MarketService) LastPrices(ctx context.Context, markets []domain.TrackedMarket) map[int64]float64 {
	out := make(map[int64]float64)
	if s.prices == nil || len(markets) == 0 {
		return out
	}

	tokens := make([]string, 0, len(markets))
	for _, m := range markets {
		if m.HasToken() {
			tokens = append(tokens, m.TokenID)
		}
	}
	prices, err := s.prices.GetPrices(ctx, tokens)
	if err != nil {
		s.logger.WarnContext(ctx, "price cache read failed", slog.String("error", err.Error()))
		return out
	}
	for _, m := range markets {
		if p, ok := prices[m.TokenID]; ok && m.HasToken() {
			out[m.ID] = trigger.ToPercent(p)
		}
	}
	return out
}
