package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/polyalert/internal/domain"
)

func TestParseEventURL(t *testing.T) {
	tests := []struct {
		in   string
		slug string
	}{
		{"https://polymarket.com/event/fed-rate-cut", "fed-rate-cut"},
		{"http://www.polymarket.com/event/a_b-1?tid=9", "a_b-1"},
		{"look at https://polymarket.com/event/x/y please", "x"},
	}
	for _, tt := range tests {
		slug, canonical, err := ParseEventURL(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.slug, slug)
		assert.Equal(t, "https://polymarket.com/event/"+tt.slug, canonical)
		assert.True(t, LooksLikeEventURL(tt.in))
	}
}

func TestParseEventURLRejects(t *testing.T) {
	for _, in := range []string{
		"",
		"polymarket.com/event/x",
		"https://polymarket.com/markets/x",
		"https://notpolymarket.org/event/x",
	} {
		_, _, err := ParseEventURL(in)
		assert.ErrorIs(t, err, domain.ErrInvalidMarketURL, in)
		assert.False(t, LooksLikeEventURL(in), in)
	}
}
