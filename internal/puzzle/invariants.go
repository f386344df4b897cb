package puzzle

import "fmt"

// InvariantViolation identifies which structural rule a state breaks. The
// Invariant field is a short stable id suitable for logs.
type InvariantViolation struct {
	Invariant string
	Detail    string
}

func (v *InvariantViolation) Error() string {
	return fmt.Sprintf("invariant %s violated: %s", v.Invariant, v.Detail)
}

func violation(invariant, format string, args ...any) *InvariantViolation {
	return &InvariantViolation{Invariant: invariant, Detail: fmt.Sprintf(format, args...)}
}

// CheckInvariants verifies the structural rules every committed state must
// satisfy: piece conservation, identity uniqueness, rack capacity, pending
// consistency, and score arithmetic. Snapshot imports run it before
// accepting a state.
func CheckInvariants(catalog *PieceSet, s State) error {
	switch s.Status {
	case StatusSetup, StatusActive, StatusCompleted:
	default:
		return violation("status", "unknown status %q", s.Status)
	}
	n := catalog.Size()
	if len(s.Grid) != n {
		return violation("grid_shape", "grid has %d cells, catalog has %d pieces", len(s.Grid), n)
	}
	if s.RackCap <= 0 {
		return violation("rack_capacity", "rack capacity %d", s.RackCap)
	}

	seen := make([]bool, n)
	count := 0
	note := func(id int, where string) error {
		if !catalog.Contains(id) {
			return violation("identity", "unknown piece %d in %s", id, where)
		}
		if seen[id] {
			return violation("identity", "piece %d appears more than once (last seen in %s)", id, where)
		}
		seen[id] = true
		count++
		return nil
	}
	for i, id := range s.Grid {
		if id == EmptyCell {
			continue
		}
		if err := note(id, fmt.Sprintf("grid cell %d", i)); err != nil {
			return err
		}
	}
	for seat := SeatA; seat <= SeatB; seat++ {
		held := 0
		for _, id := range s.Racks[seat] {
			if id == EmptyCell {
				continue
			}
			held++
			if err := note(id, fmt.Sprintf("player %s's rack", seat)); err != nil {
				return err
			}
		}
		// A rejected return into a freshly refilled rack may run one over
		// capacity until the next placement.
		if held > s.RackCap+1 {
			return violation("rack_capacity", "player %s holds %d pieces, capacity %d", seat, held, s.RackCap)
		}
	}
	for _, id := range s.Pool {
		if err := note(id, "pool"); err != nil {
			return err
		}
	}
	if count != n {
		return violation("conservation", "%d of %d pieces accounted for", count, n)
	}

	if p := s.Pending; p != nil {
		if s.Status != StatusActive {
			return violation("pending", "pending check outside an active game")
		}
		if p.GridIndex < 0 || p.GridIndex >= n {
			return violation("pending", "pending grid index %d out of range", p.GridIndex)
		}
		if s.Grid[p.GridIndex] != p.PieceID {
			return violation("pending", "pending piece %d is not at cell %d", p.PieceID, p.GridIndex)
		}
	}

	for seat := SeatA; seat <= SeatB; seat++ {
		rec := s.Scores[seat]
		if rec.CorrectPlacements < 0 || rec.TotalPlacements < 0 || rec.CorrectPlacements > rec.TotalPlacements {
			return violation("score_counters", "player %s placement counters %d/%d", seat, rec.CorrectPlacements, rec.TotalPlacements)
		}
		if rec.Streak < 0 || rec.Streak > rec.CorrectPlacements {
			return violation("score_counters", "player %s streak %d exceeds correct placements %d", seat, rec.Streak, rec.CorrectPlacements)
		}
		if want := accuracyOf(rec.CorrectPlacements, rec.TotalPlacements); rec.Accuracy != want {
			return violation("accuracy", "player %s accuracy %d, expected %d", seat, rec.Accuracy, want)
		}
		if rec.HintsUsed < 0 || rec.HintsUsed > MaxHintsPerGame {
			return violation("hint_budget", "player %s has %d hints recorded", seat, rec.HintsUsed)
		}
	}

	for i, mv := range s.History {
		if mv.Seq != i+1 {
			return violation("history", "move at index %d has seq %d", i, mv.Seq)
		}
	}
	return nil
}
