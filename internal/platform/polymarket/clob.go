package polymarket

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/tidwall/gjson"

	"github.com/alanyoungcy/polyalert/internal/domain"
)

// ClobClient is the REST client for the public price endpoints of the
// Polymarket CLOB API.
type ClobClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClobClient creates a new CLOB API client.
//
// baseURL is the CLOB API root, e.g. "https://clob.polymarket.com".
func NewClobClient(baseURL string, httpClient *http.Client, logger *slog.Logger) *ClobClient {
	return &ClobClient{
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     logger.With(slog.String("component", "clob")),
	}
}

// NewHTTPClient returns the shared client used by both APIs. Every request
// is bounded by timeout.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}

// GetPricesBatch fetches the SELL price of every token in one request.
//
// The call never fails: transport errors, non-2xx responses and undecodable
// bodies are logged and yield an empty map. Tokens whose SELL price is
// missing or unparsable are omitted.
func (c *ClobClient) GetPricesBatch(ctx context.Context, tokenIDs []string) (map[string]float64, error) {
	prices := make(map[string]float64, len(tokenIDs))
	if len(tokenIDs) == 0 {
		return prices, nil
	}

	reqs := make([]priceRequest, 0, len(tokenIDs))
	for _, id := range tokenIDs {
		reqs = append(reqs, priceRequest{TokenID: id, Side: sideSell})
	}

	body, err := c.doPost(ctx, "/prices", reqs)
	if err != nil {
		c.logger.Warn("batch price request failed",
			slog.Int("tokens", len(tokenIDs)),
			slog.String("error", err.Error()),
		)
		return prices, nil
	}

	parsed := gjson.ParseBytes(body)
	if !parsed.IsObject() {
		c.logger.Warn("unexpected batch price payload", slog.Int("bytes", len(body)))
		return prices, nil
	}

	parsed.ForEach(func(token, sides gjson.Result) bool {
		sell := sides.Get(sideSell)
		if !truthy(sell) {
			return true
		}
		p, ok := flexFloat(sell)
		if !ok {
			c.logger.Debug("unparsable sell price",
				slog.String("token_id", token.String()),
				slog.String("raw", sell.Raw),
			)
			return true
		}
		prices[token.String()] = p
		return true
	})

	return prices, nil
}

// doPost sends a JSON POST request to the CLOB API.
func (c *ClobClient) doPost(ctx context.Context, path string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: http request: %w", domain.ErrMarketAPI, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %w", domain.ErrMarketAPI, err)
	}

	if err := checkHTTPStatus(resp.StatusCode, respBody); err != nil {
		return nil, err
	}

	return respBody, nil
}

// checkHTTPStatus maps non-2xx status codes to domain errors. Every failure
// wraps domain.ErrMarketAPI; the more specific sentinels are added where a
// caller may want to tell them apart.
func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	bodyStr := string(body)
	if len(bodyStr) > 256 {
		bodyStr = bodyStr[:256]
	}
	switch statusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %w: %s", domain.ErrMarketAPI, domain.ErrNotFound, bodyStr)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %w: %s", domain.ErrMarketAPI, domain.ErrUnauthorized, bodyStr)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %w: %s", domain.ErrMarketAPI, domain.ErrRateLimited, bodyStr)
	default:
		return fmt.Errorf("%w: HTTP %d: %s", domain.ErrMarketAPI, statusCode, bodyStr)
	}
}
