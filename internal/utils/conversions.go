package utils

import (
	"encoding/json"
	"strconv"
)

// Int64FromAny coerces the numeric shapes produced by JSON decoding
// (float64, json.Number, quoted strings) into an int64. Returns false
// when the value is missing or not a number.
func Int64FromAny(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case float64:
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return i, true
	case string:
		i, err := strconv.ParseInt(n, 10, 64)
		if err != nil {
			return 0, false
		}
		return i, true
	default:
		return 0, false
	}
}
