package search

import (
	"math"
	"time"
)

// DecayDays is the e-folding time of the recency prior: a session this many
// days old weighs 1/e (about 0.37) of a fresh one.
const DecayDays = 30.0

// Temporal returns exp(-age_days / DecayDays) for a document written at ts,
// evaluated at now. Timestamps in the future count as age zero.
func Temporal(ts, now time.Time) float64 {
	age := now.Sub(ts).Hours() / 24
	if age < 0 {
		age = 0
	}
	return math.Exp(-age / DecayDays)
}
