package polymarket

import (
	"log/slog"
	"time"

	"github.com/alanyoungcy/polyalert/internal/domain"
)

// Gateway combines the Gamma metadata client and the CLOB price client into
// a single domain.MarketDataGateway.
type Gateway struct {
	*GammaClient
	*ClobClient
}

var _ domain.MarketDataGateway = (*Gateway)(nil)

// NewGateway builds both clients on one shared http.Client.
func NewGateway(gammaHost, clobHost string, timeout time.Duration, logger *slog.Logger) *Gateway {
	httpClient := NewHTTPClient(timeout)
	return &Gateway{
		GammaClient: NewGammaClient(gammaHost, httpClient, logger),
		ClobClient:  NewClobClient(clobHost, httpClient, logger),
	}
}
