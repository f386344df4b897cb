package puzzle

import "testing"

func TestStreakBonus(t *testing.T) {
	tests := []struct {
		streak     int
		threshold  int
		multiplier float64
		want       int
	}{
		{0, 3, 1, 0},
		{2, 3, 1, 0},
		{3, 3, 1, 2},
		{4, 3, 1, 2},
		{5, 3, 1, 2},
		{6, 3, 1, 4},
		{3, 3, 1.5, 3},
		{6, 3, 1.5, 6},
		{2, 2, 2, 4},
		{4, 2, 2, 8},
		{5, 2, 2, 8},
	}
	for _, test := range tests {
		sc := Scoring{StreakBonusThreshold: test.threshold, StreakMultiplier: test.multiplier}
		if got := streakBonus(test.streak, sc); got != test.want {
			t.Errorf("streakBonus(%d, t=%d, m=%.1f): expected %d, got %d",
				test.streak, test.threshold, test.multiplier, test.want, got)
		}
	}
}

func TestAccuracyRounding(t *testing.T) {
	tests := []struct {
		correct, total, want int
	}{
		{0, 0, 100}, // no placements yet counts as perfect
		{0, 1, 0},
		{1, 1, 100},
		{1, 2, 50},
		{1, 3, 33},
		{2, 3, 67},
		{5, 6, 83},
		{7, 9, 78},
	}
	for _, test := range tests {
		if got := accuracyOf(test.correct, test.total); got != test.want {
			t.Errorf("accuracyOf(%d, %d): expected %d, got %d", test.correct, test.total, test.want, got)
		}
	}
}

func TestApplyCorrectPlacement(t *testing.T) {
	sc := Scoring{StreakBonusThreshold: 3, StreakMultiplier: 1}
	rec := ScoreRecord{Accuracy: 100}

	applyCorrectPlacement(&rec, 10, sc)
	applyCorrectPlacement(&rec, 10, sc)
	if rec.Score != 20 || rec.Streak != 2 {
		t.Fatalf("Expected 20 points and streak 2, got %+v", rec)
	}
	applyCorrectPlacement(&rec, 10, sc)
	if rec.Score != 32 {
		t.Errorf("Expected the third placement to land the bonus (32 points), got %d", rec.Score)
	}
	if rec.CorrectPlacements != 3 || rec.TotalPlacements != 3 || rec.Accuracy != 100 {
		t.Errorf("Unexpected counters %+v", rec)
	}
}

func TestApplyIncorrectPlacementResetsStreak(t *testing.T) {
	rec := ScoreRecord{Score: 20, Streak: 2, CorrectPlacements: 2, TotalPlacements: 2, Accuracy: 100}

	applyIncorrectPlacement(&rec, -3)
	if rec.Score != 17 {
		t.Errorf("Expected 17 points, got %d", rec.Score)
	}
	if rec.Streak != 0 {
		t.Errorf("Expected the streak reset, got %d", rec.Streak)
	}
	if rec.CorrectPlacements != 2 || rec.TotalPlacements != 3 {
		t.Errorf("Unexpected counters %+v", rec)
	}
	if rec.Accuracy != 67 {
		t.Errorf("Expected accuracy 67, got %d", rec.Accuracy)
	}
}
