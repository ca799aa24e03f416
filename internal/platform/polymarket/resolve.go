package polymarket

import (
	"strings"

	"github.com/tidwall/gjson"
)

// Price sources, in the order they are consulted.
const (
	sourceBestAsk       = "bestAsk"
	sourceOutcomePrices = "outcomePrices"
	sourceOutcomes      = "outcomes"
	sourceAlternate     = "alternate"
	sourceNone          = "none"
)

// alternateKeys are consulted last. Only the first key present is tried.
var alternateKeys = []string{"yesPrice", "currentPrice", "lastTradePrice"}

// outcomePriceKeys are the per-outcome price fields, first truthy wins.
var outcomePriceKeys = []string{"price", "currentPrice", "lastPrice"}

// resolvePrice walks the price sources of a gamma market payload and returns
// the first non-zero price together with the source it came from. A zero
// price with sourceNone means nothing usable was found.
func resolvePrice(market gjson.Result) (float64, string) {
	if p := bestAskPrice(market); p != 0 {
		return p, sourceBestAsk
	}
	if p := firstOutcomePrice(market); p != 0 {
		return p, sourceOutcomePrices
	}
	if p := yesOutcomePrice(market); p != 0 {
		return p, sourceOutcomes
	}
	if p := alternatePrice(market); p != 0 {
		return p, sourceAlternate
	}
	return 0, sourceNone
}

func bestAskPrice(market gjson.Result) float64 {
	r := market.Get("bestAsk")
	if !r.Exists() || r.Type == gjson.Null {
		return 0
	}
	p, _ := flexFloat(r)
	return p
}

func firstOutcomePrice(market gjson.Result) float64 {
	prices := flexArray(market.Get("outcomePrices"))
	if len(prices) == 0 {
		return 0
	}
	p, _ := flexFloat(prices[0])
	return p
}

// yesOutcomePrice scans outcomes for the first entry naming "yes". A bare
// string entry matches but carries no price, which ends the scan.
func yesOutcomePrice(market gjson.Result) float64 {
	for _, outcome := range flexArray(market.Get("outcomes")) {
		switch {
		case outcome.IsObject():
			if !containsYes(outcome.Get("name").String()) {
				continue
			}
			for _, key := range outcomePriceKeys {
				if v := outcome.Get(key); truthy(v) {
					p, _ := flexFloat(v)
					return p
				}
			}
			return 0
		case outcome.Type == gjson.String:
			if containsYes(outcome.Str) {
				return 0
			}
		}
	}
	return 0
}

func alternatePrice(market gjson.Result) float64 {
	for _, key := range alternateKeys {
		r := market.Get(key)
		if !r.Exists() {
			continue
		}
		p, _ := flexFloat(r)
		return p
	}
	return 0
}

// firstTokenID returns the first clobTokenIds entry, or "" when absent.
func firstTokenID(market gjson.Result) string {
	ids := flexArray(market.Get("clobTokenIds"))
	if len(ids) == 0 {
		return ""
	}
	return strings.TrimSpace(ids[0].String())
}

func containsYes(name string) bool {
	return strings.Contains(strings.ToLower(name), "yes")
}
