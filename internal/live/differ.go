// Package live detects live-stream state transitions.
package live

import "bili_bot/internal/model"

// Diff compares the current live flag with the stored one.
func Diff(current, stored bool) model.Transition {
	switch {
	case current && !stored:
		return model.WentLive
	case !current && stored:
		return model.WentOffline
	default:
		return model.TransitionNone
	}
}

// Apply returns the live flag to store after transition t.
func Apply(t model.Transition, stored bool) bool {
	switch t {
	case model.WentLive:
		return true
	case model.WentOffline:
		return false
	default:
		return stored
	}
}
