package puzzle

import (
	"errors"
	"math/rand"
	"testing"
	"time"
)

// TestCheckInvariantsAcceptsFreshGame verifies a dealt game satisfies every
// structural invariant before any move is made.
func TestCheckInvariantsAcceptsFreshGame(t *testing.T) {
	e := testEngine(t, 3, 3, 2)
	s, err := e.Initialize(ModeClassic)
	if err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	if err := CheckInvariants(e.Catalog(), s); err != nil {
		t.Errorf("Expected a fresh game to pass, got %v", err)
	}
}

// TestCheckInvariantsRejections corrupts one property at a time and checks
// the violation is pinned to the right invariant.
func TestCheckInvariantsRejections(t *testing.T) {
	e := testEngine(t, 3, 3, 2)
	base, err := e.Initialize(ModeClassic)
	if err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	tests := []struct {
		name      string
		corrupt   func(s *State)
		invariant string
	}{
		{"unknown status", func(s *State) { s.Status = Status("paused") }, "status"},
		{"grid too short", func(s *State) { s.Grid = s.Grid[:8] }, "grid_shape"},
		{"zero rack capacity", func(s *State) { s.RackCap = 0 }, "rack_capacity"},
		{"piece in two places", func(s *State) { s.Grid[0] = s.Racks[SeatA][0] }, "identity"},
		{"piece outside the catalog", func(s *State) { s.Racks[SeatA][0] = 99 }, "identity"},
		{"vanished piece", func(s *State) { s.Racks[SeatA][0] = EmptyCell }, "conservation"},
		{"rack past capacity", func(s *State) {
			s.Racks[SeatA] = append(s.Racks[SeatA], s.Pool[0], s.Pool[1])
			s.Pool = s.Pool[2:]
		}, "rack_capacity"},
		{"pending without a piece on the grid", func(s *State) {
			s.Pending = &PendingCheck{Player: SeatA, PieceID: s.Racks[SeatA][0], GridIndex: 0}
		}, "pending"},
		{"pending index out of range", func(s *State) {
			s.Pending = &PendingCheck{Player: SeatA, PieceID: s.Racks[SeatA][0], GridIndex: 40}
		}, "pending"},
		{"pending in a completed game", func(s *State) {
			s.Grid[0] = s.Racks[SeatA][0]
			s.Racks[SeatA][0] = EmptyCell
			s.Pending = &PendingCheck{Player: SeatA, PieceID: s.Grid[0], GridIndex: 0}
			s.Status = StatusCompleted
		}, "pending"},
		{"correct above total", func(s *State) { s.Scores[SeatB].CorrectPlacements = 2 }, "score_counters"},
		{"streak above correct", func(s *State) { s.Scores[SeatB].Streak = 1 }, "score_counters"},
		{"accuracy off formula", func(s *State) {
			s.Scores[SeatA].TotalPlacements = 2
			s.Scores[SeatA].CorrectPlacements = 1
			s.Scores[SeatA].Accuracy = 100
		}, "accuracy"},
		{"hints overspent", func(s *State) { s.Scores[SeatA].HintsUsed = MaxHintsPerGame + 1 }, "hint_budget"},
		{"history sequence gap", func(s *State) {
			s.History = []MoveRecord{{Seq: 2, Type: MoveTypePlace, Player: SeatA}}
		}, "history"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			s := base.Clone()
			test.corrupt(&s)
			err := CheckInvariants(e.Catalog(), s)
			if err == nil {
				t.Fatal("Expected a violation")
			}
			var v *InvariantViolation
			if !errors.As(err, &v) {
				t.Fatalf("Expected an InvariantViolation, got %T: %v", err, err)
			}
			if v.Invariant != test.invariant {
				t.Errorf("Expected invariant %q, got %q (%v)", test.invariant, v.Invariant, err)
			}
		})
	}
}

// TestCheckInvariantsAllowsOverflowByOne covers the rejected-return corner:
// a rack may briefly hold capacity+1 pieces.
func TestCheckInvariantsAllowsOverflowByOne(t *testing.T) {
	e := testEngine(t, 3, 3, 2)
	s, err := e.Initialize(ModeClassic)
	if err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	s.Racks[SeatA] = append(s.Racks[SeatA], s.Pool[0])
	s.Pool = s.Pool[1:]
	if err := CheckInvariants(e.Catalog(), s); err != nil {
		t.Errorf("Expected capacity+1 tolerated, got %v", err)
	}
}

// TestInvariantsHoldThroughRandomPlay drives a full game with random legal
// commands and checks every intermediate state.
func TestInvariantsHoldThroughRandomPlay(t *testing.T) {
	for _, seed := range []int64{1, 7, 42} {
		rng := rand.New(rand.NewSource(seed))
		e := NewEngine(
			testCatalog(t, 4, 4),
			WithRackCapacity(3),
			WithRand(rng),
			WithClock(func() time.Time { return time.Unix(1700000000, 0) }),
		)
		s, err := e.Initialize(ModeClassic)
		if err != nil {
			t.Fatalf("Seed %d: Initialize failed: %v", seed, err)
		}

		for step := 0; step < 400 && s.Status == StatusActive; step++ {
			if s.Pending != nil {
				decision := DecisionCheck
				if rng.Intn(2) == 0 {
					decision = DecisionPass
				}
				s, _, err = e.Decide(s, s.Pending.Player.Other(), decision)
				if err != nil {
					t.Fatalf("Seed %d step %d: Decide failed: %v", seed, step, err)
				}
			} else {
				player := s.Turn
				var pieces []int
				for _, id := range s.Racks[player] {
					if id != EmptyCell {
						pieces = append(pieces, id)
					}
				}
				var cells []int
				for i, id := range s.Grid {
					if id == EmptyCell {
						cells = append(cells, i)
					}
				}
				if len(pieces) == 0 || len(cells) == 0 {
					break
				}
				s, _, err = e.Place(s, player, pieces[rng.Intn(len(pieces))], cells[rng.Intn(len(cells))])
				if err != nil {
					t.Fatalf("Seed %d step %d: Place failed: %v", seed, step, err)
				}
			}
			if err := CheckInvariants(e.Catalog(), s); err != nil {
				t.Fatalf("Seed %d step %d: %v", seed, step, err)
			}
		}
	}
}
