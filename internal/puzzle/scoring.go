package puzzle

import "math"

// applyCorrectPlacement credits a placement adjudicated correct: base
// points, both placement counters, the streak, and any streak bonus.
func applyCorrectPlacement(rec *ScoreRecord, points int, sc Scoring) {
	rec.Score += points
	rec.CorrectPlacements++
	rec.TotalPlacements++
	rec.Streak++
	rec.Score += streakBonus(rec.Streak, sc)
	rec.Accuracy = accuracyOf(rec.CorrectPlacements, rec.TotalPlacements)
}

// applyIncorrectPlacement debits a placement-tied penalty and resets the
// streak. Penalties that are not placements (checkerFail, and the passWrong
// charged to the decider) adjust Score directly and must not come through
// here, or the placement counters drift.
func applyIncorrectPlacement(rec *ScoreRecord, penalty int) {
	rec.Score += penalty
	rec.TotalPlacements++
	rec.Streak = 0
	rec.Accuracy = accuracyOf(rec.CorrectPlacements, rec.TotalPlacements)
}

// streakBonus is floor(streak/threshold) · 2 · multiplier once the streak
// reaches the mode's threshold.
func streakBonus(streak int, sc Scoring) int {
	if sc.StreakBonusThreshold <= 0 || streak < sc.StreakBonusThreshold {
		return 0
	}
	return int(math.Round(float64(2*(streak/sc.StreakBonusThreshold)) * sc.StreakMultiplier))
}

func accuracyOf(correct, total int) int {
	if total <= 0 {
		return 100
	}
	return int(math.Round(100 * float64(correct) / float64(total)))
}
