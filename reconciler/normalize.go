package reconciler

import "github.com/autoapitester/api-acceptor/types"

// NormalizeDaily converts a user-facing "HH:MM" string into a stored
// time-of-day. Unparsable input yields nil rather than an error: the job
// becomes a daily schedule without a fixed time instead of failing the
// whole upsert.
func NormalizeDaily(hhmm string) *types.TimeOfDay {
	tod, err := types.ParseTimeOfDay(hhmm)
	if err != nil {
		return nil
	}
	return &tod
}

// NormalizeInterval converts a value-plus-unit interval into stored minutes.
// A positive value in hours is multiplied by 60; anything else, including a
// nil value, passes through unchanged. Never fails.
func NormalizeInterval(value *int, unit string) *int {
	if unit == "hours" && value != nil && *value > 0 {
		minutes := *value * 60
		return &minutes
	}
	return value
}
