package models

import (
	"time"
)

// Now returns the current time in UTC
func Now() time.Time {
	return time.Now().UTC()
}

// FormatTime formats a time.Time according to RFC3339
func FormatTime(t time.Time) string {
	return t.Format(time.RFC3339)
}

// FromUnixMillis converts a device timestamp in epoch milliseconds to UTC
func FromUnixMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
