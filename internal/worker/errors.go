package worker

import "strings"

// isRetryableMessage reports whether an unclassified error looks like
// contention or a dropped connection rather than bad data
func isRetryableMessage(err error) bool {
	if err == nil {
		return false
	}

	msg := strings.ToLower(err.Error())

	for _, pattern := range []string{
		"not found",
		"invalid",
		"malformed",
		"forbidden",
		"is nil",
		"not configured",
	} {
		if strings.Contains(msg, pattern) {
			return false
		}
	}

	for _, pattern := range []string{
		"database is locked",
		"database table is locked",
		"sqlite_busy",
		"timeout",
		"connection refused",
		"connection reset",
		"i/o timeout",
		"broken pipe",
	} {
		if strings.Contains(msg, pattern) {
			return true
		}
	}

	return false
}
