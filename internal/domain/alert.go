package domain

import (
	"context"
	"time"
)

// Alert describes a tracked market whose trigger fired on a monitor tick.
type Alert struct {
	TrackedID    int64
	UserID       int64
	MarketID     string
	Title        string
	URL          string
	PricePercent float64
	TargetPrice  int
	Condition    Condition
	FiredAt      time.Time
}

// AlertNotifier delivers fired alerts to their owners.
type AlertNotifier interface {
	SendAlert(ctx context.Context, alert Alert) error
}
