package polymarket

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/tidwall/gjson"

	"github.com/alanyoungcy/polyalert/internal/domain"
)

const (
	defaultMarketTitle   = "Unknown Market"
	defaultEventQuestion = "Unknown Question"
)

// GammaClient is the REST client for the Polymarket Gamma API, which
// provides market and event metadata.
type GammaClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewGammaClient creates a new Gamma API client.
//
// baseURL is the Gamma API root, e.g. "https://gamma-api.polymarket.com".
func NewGammaClient(baseURL string, httpClient *http.Client, logger *slog.Logger) *GammaClient {
	return &GammaClient{
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     logger.With(slog.String("component", "gamma")),
	}
}

// GetMarketInfo returns the title, Yes price and feed token of a market.
// A market whose price cannot be resolved is returned with Price 0 and a
// warning is logged; callers decide what a zero price means for them.
func (g *GammaClient) GetMarketInfo(ctx context.Context, marketID string) (domain.MarketInfo, error) {
	path := fmt.Sprintf("/markets/%s", url.PathEscape(marketID))

	body, err := g.doGet(ctx, path)
	if err != nil {
		return domain.MarketInfo{}, fmt.Errorf("polymarket/gamma: get market %s: %w", marketID, err)
	}
	if !gjson.ValidBytes(body) {
		return domain.MarketInfo{}, fmt.Errorf("polymarket/gamma: decode market %s: %w: invalid json", marketID, domain.ErrMarketAPI)
	}

	market := gjson.ParseBytes(body)
	price, source := resolvePrice(market)
	if source == sourceNone {
		g.logger.Warn("no price found for market", slog.String("market_id", marketID))
	} else {
		g.logger.Debug("resolved market price",
			slog.String("market_id", marketID),
			slog.String("source", source),
			slog.Float64("price", price),
		)
	}

	title := market.Get("question").String()
	if title == "" {
		title = defaultMarketTitle
	}

	return domain.MarketInfo{
		MarketID: marketID,
		Title:    title,
		Price:    price,
		TokenID:  firstTokenID(market),
		Slug:     market.Get("slug").String(),
	}, nil
}

// GetEventMarkets returns the still-open sub-markets of the event with the
// given slug. Only markets explicitly reported as not closed are included.
func (g *GammaClient) GetEventMarkets(ctx context.Context, slug string) ([]domain.MarketOption, error) {
	params := url.Values{}
	params.Set("slug", slug)

	body, err := g.doGet(ctx, "/events?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("polymarket/gamma: get event %s: %w", slug, err)
	}

	events := gjson.ParseBytes(body)
	if !events.IsArray() {
		return nil, fmt.Errorf("polymarket/gamma: decode event %s: %w: expected array", slug, domain.ErrMarketAPI)
	}
	list := events.Array()
	if len(list) == 0 {
		return nil, fmt.Errorf("polymarket/gamma: %w: slug=%s", domain.ErrMarketNotFound, slug)
	}

	var options []domain.MarketOption
	for _, m := range list[0].Get("markets").Array() {
		if m.Get("closed").Type != gjson.False {
			continue
		}
		question := m.Get("question").String()
		if question == "" {
			question = defaultEventQuestion
		}
		active := true
		if a := m.Get("active"); a.Exists() {
			active = a.Bool()
		}
		options = append(options, domain.MarketOption{
			ID:       m.Get("id").String(),
			Question: question,
			Active:   active,
		})
	}
	return options, nil
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// doGet sends an unauthenticated GET request to the Gamma API. Transport
// failures and non-2xx responses are reported as domain.ErrMarketAPI.
func (g *GammaClient) doGet(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: http request: %w", domain.ErrMarketAPI, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %w", domain.ErrMarketAPI, err)
	}

	if err := checkHTTPStatus(resp.StatusCode, body); err != nil {
		return nil, err
	}

	return body, nil
}
