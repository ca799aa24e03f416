package bot

import (
	"errors"

	"github.com/alanyoungcy/polyalert/internal/domain"
)

var (
	errSelectionExpired = errors.New("selection expired")
	errBadPayload       = errors.New("malformed button payload")
)

// userMessage renders err for the chat. Unknown errors get a generic text.
func userMessage(err error) string {
	switch {
	case errors.Is(err, domain.ErrInvalidTargetPrice):
		return "Target price must be between 0 and 100."
	case errors.Is(err, domain.ErrMarketAlreadyExists):
		return "You are already tracking this market."
	case errors.Is(err, domain.ErrMarketNotFound), errors.Is(err, domain.ErrNotFound):
		return "Market not found."
	case errors.Is(err, domain.ErrTokenIDNotFound):
		return "Could not find the 'Yes' outcome token for this market."
	case errors.Is(err, domain.ErrInvalidMarketURL):
		return "The provided Polymarket URL is invalid. Please make sure it's a correct event URL."
	case errors.Is(err, domain.ErrMarketAPI):
		return "Polymarket API error, please try again in a moment."
	case errors.Is(err, errSelectionExpired):
		return "This selection has expired. Send the event link again."
	case errors.Is(err, errBadPayload):
		return "This button is no longer valid."
	default:
		return "Something went wrong. Please try again later."
	}
}

// isUnexpected reports whether err is not one of the known user-facing
// failures.
func isUnexpected(err error) bool {
	return userMessage(err) == userMessage(nil)
}
