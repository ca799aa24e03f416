package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/polyalert/internal/domain"
)

// MarketService defines the methods that the market handler requires from the
// service layer. It is declared locally so the handler package does not depend
// on the concrete service implementation.
type MarketService interface {
	Get(ctx context.Context, id int64) (domain.TrackedMarket, error)
	List(ctx context.Context, userID int64) ([]domain.TrackedMarket, error)
	LastPrices(ctx context.Context, markets []domain.TrackedMarket) map[int64]float64
}

// MarketHandler serves read-only tracked-market endpoints for operators.
type MarketHandler struct {
	markets MarketService
	logger  *slog.Logger
}

// NewMarketHandler creates a MarketHandler with the given service and logger.
func NewMarketHandler(markets MarketService, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{
		markets: markets,
		logger:  logHandler(logger, "markets"),
	}
}

// trackedMarketJSON is the wire form of a tracked market.
type trackedMarketJSON struct {
	ID          int64     `json:"id"`
	UserID      int64     `json:"user_id"`
	MarketID    string    `json:"market_id"`
	TokenID     string    `json:"token_id,omitempty"`
	URL         string    `json:"url"`
	Title       string    `json:"title,omitempty"`
	TargetPrice int       `json:"target_price"`
	Condition   string    `json:"condition"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
	LastPrice   *float64  `json:"last_price,omitempty"`
}

func toJSON(m domain.TrackedMarket, last map[int64]float64) trackedMarketJSON {
	out := trackedMarketJSON{
		ID:          m.ID,
		UserID:      m.UserID,
		MarketID:    m.MarketID,
		TokenID:     m.TokenID,
		URL:         m.URL,
		Title:       m.Title,
		TargetPrice: m.TargetPrice,
		Condition:   string(m.Condition),
		Active:      m.Active,
		CreatedAt:   m.CreatedAt,
	}
	if p, ok := last[m.ID]; ok {
		out.LastPrice = &p
	}
	return out
}

// listMarketsResponse wraps the list endpoint output with metadata.
type listMarketsResponse struct {
	Markets []trackedMarketJSON `json:"markets"`
	Total   int                 `json:"total"`
}

// ListUserMarkets returns a user's tracked markets, newest first, with the
// last observed price when the price cache knows it.
// GET /api/users/{id}/markets
func (h *MarketHandler) ListUserMarkets(w http.ResponseWriter, r *http.Request) {
	userID, ok := int64Param(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	markets, err := h.markets.List(r.Context(), userID)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list markets failed",
			slog.Int64("user_id", userID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list markets")
		return
	}

	last := h.markets.LastPrices(r.Context(), markets)
	out := make([]trackedMarketJSON, 0, len(markets))
	for _, m := range markets {
		out = append(out, toJSON(m, last))
	}
	writeJSON(w, http.StatusOK, listMarketsResponse{Markets: out, Total: len(out)})
}

// GetMarket returns a single tracked market by its id.
// GET /api/markets/{id}
func (h *MarketHandler) GetMarket(w http.ResponseWriter, r *http.Request) {
	id, ok := int64Param(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid market id")
		return
	}

	m, err := h.markets.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrMarketNotFound) {
			writeError(w, http.StatusNotFound, "market not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "get market failed",
			slog.Int64("tracked_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get market")
		return
	}

	last := h.markets.LastPrices(r.Context(), []domain.TrackedMarket{m})
	writeJSON(w, http.StatusOK, toJSON(m, last))
}
