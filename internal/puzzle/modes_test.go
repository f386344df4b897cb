package puzzle

import "testing"

func TestLookupModeFallsBackToClassic(t *testing.T) {
	tests := []struct {
		name string
		id   ModeID
		want ModeID
	}{
		{"classic", ModeClassic, ModeClassic},
		{"super", ModeSuper, ModeSuper},
		{"sage", ModeSage, ModeSage},
		{"single", ModeSingle, ModeSingle},
		{"disabled savant", ModeSavant, ModeClassic},
		{"unknown id", ModeID("speedrun"), ModeClassic},
		{"empty id", ModeID(""), ModeClassic},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := LookupMode(test.id); got.ID != test.want {
				t.Errorf("Expected %s, got %s", test.want, got.ID)
			}
		})
	}
}

func TestModeScoringValues(t *testing.T) {
	tests := []struct {
		id             ModeID
		checkCorrect   int
		checkerSuccess int
		checkerFail    int
		passWrong      int
		threshold      int
		multiplier     float64
	}{
		{ModeClassic, 10, 5, -2, -3, 3, 1},
		{ModeSuper, 15, 8, -3, -5, 3, 1.5},
		{ModeSage, 20, 10, -5, -8, 2, 2},
	}
	for _, test := range tests {
		t.Run(string(test.id), func(t *testing.T) {
			sc := LookupMode(test.id).Scoring
			if sc.CheckCorrect != test.checkCorrect {
				t.Errorf("CheckCorrect: expected %d, got %d", test.checkCorrect, sc.CheckCorrect)
			}
			if sc.CheckerSuccess != test.checkerSuccess {
				t.Errorf("CheckerSuccess: expected %d, got %d", test.checkerSuccess, sc.CheckerSuccess)
			}
			if sc.CheckerFail != test.checkerFail {
				t.Errorf("CheckerFail: expected %d, got %d", test.checkerFail, sc.CheckerFail)
			}
			if sc.PassWrong != test.passWrong {
				t.Errorf("PassWrong: expected %d, got %d", test.passWrong, sc.PassWrong)
			}
			if sc.StreakBonusThreshold != test.threshold {
				t.Errorf("StreakBonusThreshold: expected %d, got %d", test.threshold, sc.StreakBonusThreshold)
			}
			if sc.StreakMultiplier != test.multiplier {
				t.Errorf("StreakMultiplier: expected %v, got %v", test.multiplier, sc.StreakMultiplier)
			}
		})
	}
}

func TestSingleModeIsSoloAndSelfScored(t *testing.T) {
	m := LookupMode(ModeSingle)
	if m.Features.Multiplayer {
		t.Error("Expected single mode to disable multiplayer")
	}
	if m.Scoring.CorrectPiece != 10 || m.Scoring.WrongPiece != -2 {
		t.Errorf("Unexpected solo scoring %+v", m.Scoring)
	}
}

func TestModesListsOnlyEnabled(t *testing.T) {
	modes := Modes()
	want := []ModeID{ModeClassic, ModeSuper, ModeSage, ModeSingle}
	if len(modes) != len(want) {
		t.Fatalf("Expected %d modes, got %d", len(want), len(modes))
	}
	for i, id := range want {
		if modes[i].ID != id {
			t.Errorf("Expected %s at position %d, got %s", id, i, modes[i].ID)
		}
		if !modes[i].Enabled {
			t.Errorf("Expected %s enabled", id)
		}
	}
}
