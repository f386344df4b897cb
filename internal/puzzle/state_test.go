package puzzle

import (
	"encoding/json"
	"testing"
)

func TestCloneIsIndependent(t *testing.T) {
	s := twoByTwoState(ModeClassic)
	s.Pool = []int{9}
	s.Pending = &PendingCheck{Player: SeatA, PieceID: 0, GridIndex: 0}
	s.History = []MoveRecord{{Seq: 1, Type: MoveTypePlace, Player: SeatA}}

	c := s.Clone()
	c.Grid[0] = 7
	c.Racks[SeatA][0] = 7
	c.Pool[0] = 7
	c.Pending.PieceID = 7
	c.History[0].Seq = 7

	if s.Grid[0] != EmptyCell {
		t.Error("Clone shares the grid")
	}
	if s.Racks[SeatA][0] != 0 {
		t.Error("Clone shares a rack")
	}
	if s.Pool[0] != 9 {
		t.Error("Clone shares the pool")
	}
	if s.Pending.PieceID != 0 {
		t.Error("Clone shares the pending check")
	}
	if s.History[0].Seq != 1 {
		t.Error("Clone shares the history")
	}
}

func TestSeatJSON(t *testing.T) {
	b, err := json.Marshal(SeatB)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if string(b) != `"B"` {
		t.Errorf(`Expected "B", got %s`, b)
	}

	for _, test := range []struct {
		in   string
		want Seat
	}{
		{`"A"`, SeatA},
		{`"B"`, SeatB},
		{`0`, SeatA},
		{`1`, SeatB},
	} {
		var seat Seat
		if err := json.Unmarshal([]byte(test.in), &seat); err != nil {
			t.Errorf("Unmarshal(%s) failed: %v", test.in, err)
			continue
		}
		if seat != test.want {
			t.Errorf("Unmarshal(%s): expected %s, got %s", test.in, test.want, seat)
		}
	}

	for _, bad := range []string{`"C"`, `2`, `true`} {
		var seat Seat
		if err := json.Unmarshal([]byte(bad), &seat); err == nil {
			t.Errorf("Expected Unmarshal(%s) to fail", bad)
		}
	}
}

func TestSeatOther(t *testing.T) {
	if SeatA.Other() != SeatB || SeatB.Other() != SeatA {
		t.Error("Other is not an involution on the two seats")
	}
}

func TestParseSeat(t *testing.T) {
	if seat, ok := ParseSeat("A"); !ok || seat != SeatA {
		t.Errorf("Expected seat A, got %v (ok=%v)", seat, ok)
	}
	if seat, ok := ParseSeat("B"); !ok || seat != SeatB {
		t.Errorf("Expected seat B, got %v (ok=%v)", seat, ok)
	}
	if _, ok := ParseSeat("a"); ok {
		t.Error("Expected lowercase rejected")
	}
	if _, ok := ParseSeat(""); ok {
		t.Error("Expected the empty string rejected")
	}
}

// TestWireFieldNames pins the JSON field names the replication layer and web
// clients rely on.
func TestWireFieldNames(t *testing.T) {
	rec := ScoreRecord{Score: 12, Streak: 2, CorrectPlacements: 3, TotalPlacements: 4, Accuracy: 75, HintsUsed: 1}
	b, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	var fields map[string]interface{}
	if err := json.Unmarshal(b, &fields); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	for _, key := range []string{"score", "streak", "correctPlacements", "totalPlacements", "accuracy", "hintsUsed"} {
		if _, ok := fields[key]; !ok {
			t.Errorf("ScoreRecord is missing field %q", key)
		}
	}

	pending := PendingCheck{Player: SeatB, PieceID: 5, GridIndex: 9, Correct: true, Timestamp: "2024-03-01T12:00:00Z"}
	b, err = json.Marshal(pending)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	fields = nil
	if err := json.Unmarshal(b, &fields); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if fields["player"] != "B" {
		t.Errorf(`Expected player "B", got %v`, fields["player"])
	}
	for _, key := range []string{"pieceId", "gridIndex", "correct", "timestamp"} {
		if _, ok := fields[key]; !ok {
			t.Errorf("PendingCheck is missing field %q", key)
		}
	}

	// A placement record has no decision; the field must stay off the wire.
	move := MoveRecord{Seq: 1, Type: MoveTypePlace, Player: SeatA, PieceID: 2, GridIndex: 3, Result: ResultPendingCheck, At: "2024-03-01T12:00:00Z"}
	b, err = json.Marshal(move)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	fields = nil
	if err := json.Unmarshal(b, &fields); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if _, ok := fields["decision"]; ok {
		t.Error("Expected decision omitted from a place record")
	}
	for _, key := range []string{"seq", "type", "player", "pieceId", "gridIndex", "result", "at"} {
		if _, ok := fields[key]; !ok {
			t.Errorf("MoveRecord is missing field %q", key)
		}
	}
}
