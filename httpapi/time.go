package httpapi

import "time"

// parseTime accepts RFC3339, the one wire format every handler above
// that takes a timestamp (CreateBatch's publishAt) uses.
func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}
