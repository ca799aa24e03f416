package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrRateLimited         = errors.New("rate limited")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrInvalidMarketURL    = errors.New("invalid polymarket url")
	ErrInvalidTargetPrice  = errors.New("target price must be between 0 and 100")
	ErrMarketNotFound      = errors.New("market not found")
	ErrMarketAlreadyExists = errors.New("market already tracked")
	ErrMarketAPI           = errors.New("polymarket api error")
	ErrTokenIDNotFound     = errors.New("yes outcome token id not found")
)

// MarketAlreadyExistsError is returned when a user tries to track a market
// they already track. It matches ErrMarketAlreadyExists under errors.Is.
type MarketAlreadyExistsError struct {
	MarketID   string
	ExistingID int64
}

func (e *MarketAlreadyExistsError) Error() string {
	return fmt.Sprintf("market %s already tracked as #%d", e.MarketID, e.ExistingID)
}

// Is reports whether target is ErrMarketAlreadyExists.
func (e *MarketAlreadyExistsError) Is(target error) bool {
	return target == ErrMarketAlreadyExists
}
