package config

import (
	"fmt"
	"strconv"
	"unicode"
)

// Seconds per expiry unit. "m" is minutes and "M" is months (30 days);
// units are case-sensitive.
var expiryUnits = map[byte]int64{
	's': 1,
	'm': 60,
	'h': 3600,
	'd': 86400,
	'M': 2592000,
	'y': 31536000,
}

// ParseExpirySeconds converts an expiry string like "15m", "30d" or "3600"
// into a number of seconds. A bare integer is taken as seconds. An unknown
// unit or malformed value is an error rather than a silent default.
func ParseExpirySeconds(value string) (int64, error) {
	if value == "" {
		return 0, fmt.Errorf("empty expiry value")
	}

	last := value[len(value)-1]
	if unicode.IsDigit(rune(last)) {
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid expiry value %q: %w", value, err)
		}
		if n < 0 {
			return 0, fmt.Errorf("negative expiry value %q", value)
		}
		return n, nil
	}

	mult, ok := expiryUnits[last]
	if !ok {
		return 0, fmt.Errorf("unknown expiry unit %q in %q", string(last), value)
	}

	n, err := strconv.ParseInt(value[:len(value)-1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid expiry value %q: %w", value, err)
	}
	if n < 0 {
		return 0, fmt.Errorf("negative expiry value %q", value)
	}

	return n * mult, nil
}
