package domain

import "time"

// Condition is the direction in which a tracked price must cross its target.
type Condition string

const (
	// ConditionLE fires when the price falls to or below the target.
	ConditionLE Condition = "le"
	// ConditionGE fires when the price rises to or above the target.
	ConditionGE Condition = "ge"
)

// Valid reports whether c is one of the known conditions.
func (c Condition) Valid() bool {
	return c == ConditionLE || c == ConditionGE
}

// Symbol renders the condition for humans.
func (c Condition) Symbol() string {
	if c == ConditionGE {
		return "≥"
	}
	return "≤"
}

// TrackedMarket is one user's subscription to the price of one external
// market. TokenID and Title are optional; empty means absent.
type TrackedMarket struct {
	ID          int64
	UserID      int64
	MarketID    string
	TokenID     string
	URL         string
	Title       string
	TargetPrice int // percent, 0..100
	Condition   Condition
	Active      bool
	CreatedAt   time.Time
}

// HasToken reports whether the market has a price-feed token and can
// therefore be monitored.
func (m TrackedMarket) HasToken() bool {
	return m.TokenID != ""
}

// DisplayTitle returns the title, falling back to the external market id.
func (m TrackedMarket) DisplayTitle() string {
	if m.Title != "" {
		return m.Title
	}
	return m.MarketID
}

// MarketInfo is a snapshot of an external market as reported by the gamma API.
// Price is a probability in [0,1]; zero means no price could be resolved.
type MarketInfo struct {
	MarketID string
	Title    string
	Price    float64
	TokenID  string
	Slug     string
}

// MarketOption is one selectable sub-market of an event.
type MarketOption struct {
	ID       string
	Question string
	Active   bool
}
