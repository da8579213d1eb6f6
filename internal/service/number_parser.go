package service

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// ParseLocalizedNumber converts a measurement to a float64. Strings may use either a comma or a
// dot as decimal separator. Anything that does not parse to a finite number yields 0, so a blank
// or half-typed cell reads as zero in every derived value.
func ParseLocalizedNumber(value any) float64 {
	switch v := value.(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int8:
		return float64(v)
	case int16:
		return float64(v)
	case int32:
		return float64(v)
	case int64:
		return float64(v)
	case uint:
		return float64(v)
	case uint8:
		return float64(v)
	case uint16:
		return float64(v)
	case uint32:
		return float64(v)
	case uint64:
		return float64(v)
	case json.Number:
		return parseNumericString(string(v))
	case string:
		return parseNumericString(v)
	default:
		return 0
	}
}

func parseNumericString(s string) float64 {
	normalized := strings.TrimSpace(strings.Replace(s, ",", ".", 1))
	if normalized == "" {
		return 0
	}

	f, err := strconv.ParseFloat(normalized, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}
