package service

import (
	"fmt"
	"regexp"

	"github.com/alanyoungcy/polyalert/internal/domain"
)

var eventURLPattern = regexp.MustCompile(`https?://(?:www\.)?polymarket\.com/event/([a-zA-Z0-9_-]+)`)

const eventURLBase = "https://polymarket.com/event/"

// ParseEventURL extracts the first Polymarket event link from text. It
// returns the event slug and the canonical event URL.
func ParseEventURL(text string) (slug, canonical string, err error) {
	m := eventURLPattern.FindStringSubmatch(text)
	if m == nil {
		return "", "", fmt.Errorf("parse %q: %w", text, domain.ErrInvalidMarketURL)
	}
	return m[1], eventURLBase + m[1], nil
}

// LooksLikeEventURL reports whether text contains a Polymarket event link.
func LooksLikeEventURL(text string) bool {
	return eventURLPattern.MatchString(text)
}
