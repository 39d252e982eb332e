package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

var intervalUnits = map[byte]time.Duration{
	'm': time.Minute,
	'h': time.Hour,
	'd': 24 * time.Hour,
	'w': 7 * 24 * time.Hour,
}

// parseInterval reads the catalog's interval notation ("2m", "3h", "7d", "1w").
func parseInterval(interval string) (time.Duration, error) {
	interval = strings.TrimSpace(interval)
	if len(interval) < 2 {
		return 0, fmt.Errorf("interval %q: want <count><unit>", interval)
	}

	unit, ok := intervalUnits[interval[len(interval)-1]]
	if !ok {
		return 0, fmt.Errorf("interval %q: unit must be one of m, h, d, w", interval)
	}

	count, err := strconv.Atoi(interval[:len(interval)-1])
	if err != nil {
		return 0, fmt.Errorf("interval %q: count is not a whole number", interval)
	}
	if count <= 0 {
		return 0, fmt.Errorf("interval %q: count must be positive", interval)
	}

	return time.Duration(count) * unit, nil
}
