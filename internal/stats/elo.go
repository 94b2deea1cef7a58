package stats

import "math"

// ExpectedScore returns player A's expected score against player B per the
// standard Elo formula.
func ExpectedScore(ratingA, ratingB float64) float64 {
	return 1.0 / (1.0 + math.Pow(10, (ratingB-ratingA)/400.0))
}

// ComputeEloUpdate applies one symmetric Elo update for a single game
// between A and B, where scoreA is A's result (1=win, 0.5=draw, 0=loss).
func ComputeEloUpdate(ratingA, ratingB, scoreA, kFactor float64) (newA, newB float64) {
	expectedA := ExpectedScore(ratingA, ratingB)
	expectedB := 1.0 - expectedA
	scoreB := 1.0 - scoreA
	newA = ratingA + kFactor*(scoreA-expectedA)
	newB = ratingB + kFactor*(scoreB-expectedB)
	return newA, newB
}
