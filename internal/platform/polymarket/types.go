package polymarket

import (
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// Gamma responses are loosely typed: numbers may arrive as JSON numbers or
// numeric strings, and list fields sometimes arrive JSON-encoded inside a
// string. The helpers below normalise those shapes.

// priceRequest is one entry of the CLOB POST /prices body.
type priceRequest struct {
	TokenID string `json:"token_id"`
	Side    string `json:"side"`
}

const sideSell = "SELL"

// flexFloat reads a number or numeric string. ok is false for anything else.
func flexFloat(r gjson.Result) (float64, bool) {
	switch r.Type {
	case gjson.Number:
		return r.Num, true
	case gjson.String:
		f, err := strconv.ParseFloat(strings.TrimSpace(r.Str), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// flexArray reads a JSON array or a string holding a JSON array.
func flexArray(r gjson.Result) []gjson.Result {
	if r.IsArray() {
		return r.Array()
	}
	if r.Type == gjson.String {
		inner := gjson.Parse(r.Str)
		if inner.IsArray() {
			return inner.Array()
		}
	}
	return nil
}

// truthy mirrors the loose truthiness the Gamma payloads are written against:
// null, false, zero and empty strings count as absent.
func truthy(r gjson.Result) bool {
	switch r.Type {
	case gjson.Null:
		return false
	case gjson.False:
		return false
	case gjson.Number:
		return r.Num != 0
	case gjson.String:
		return r.Str != ""
	case gjson.True:
		return true
	default:
		if r.IsArray() {
			return len(r.Array()) > 0
		}
		if r.IsObject() {
			return len(r.Map()) > 0
		}
		return false
	}
}
