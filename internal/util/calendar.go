package util

import "time"

// Crypto markets trade continuously, so a daily bar covers one UTC day.

// SessionStart returns the start of the UTC day containing t.
func SessionStart(t time.Time) time.Time {
	return t.UTC().Truncate(24 * time.Hour)
}

// NextSessionStart returns the start of the UTC day after the one containing t.
func NextSessionStart(t time.Time) time.Time {
	return SessionStart(t).Add(24 * time.Hour)
}

// IsCompleteDailyBar reports whether the daily bar stamped barTime has closed
// as of now.
func IsCompleteDailyBar(barTime, now time.Time) bool {
	return !now.Before(NextSessionStart(barTime))
}
