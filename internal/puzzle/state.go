package puzzle

import (
	"encoding/json"
	"fmt"
)

type Status string

const (
	StatusSetup     Status = "setup"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
)

// Seat identifies one of the two player positions.
type Seat int

const (
	SeatA Seat = 0
	SeatB Seat = 1
)

func (s Seat) Other() Seat {
	if s == SeatA {
		return SeatB
	}
	return SeatA
}

func (s Seat) String() string {
	if s == SeatA {
		return "A"
	}
	return "B"
}

// ParseSeat accepts the wire names "A" and "B".
func ParseSeat(v string) (Seat, bool) {
	switch v {
	case "A":
		return SeatA, true
	case "B":
		return SeatB, true
	}
	return SeatA, false
}

// MarshalJSON writes seats by their wire names.
func (s Seat) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON accepts "A"/"B" and, tolerantly, the indices 0/1.
func (s *Seat) UnmarshalJSON(b []byte) error {
	var name string
	if err := json.Unmarshal(b, &name); err == nil {
		seat, ok := ParseSeat(name)
		if !ok {
			return fmt.Errorf("unknown seat %q", name)
		}
		*s = seat
		return nil
	}
	var idx int
	if err := json.Unmarshal(b, &idx); err == nil && (idx == 0 || idx == 1) {
		*s = Seat(idx)
		return nil
	}
	return fmt.Errorf("unparseable seat %s", string(b))
}

// Decision is the adjudicator's call on a pending placement.
type Decision string

const (
	DecisionCheck Decision = "check"
	DecisionPass  Decision = "pass"
)

// ResultTag labels the outcome of a placement or decision in the move
// history. The pending tag marks a placement still awaiting adjudication.
type ResultTag string

const (
	ResultPendingCheck    ResultTag = "pending_check"
	ResultFailedCheck     ResultTag = "failed_check"
	ResultSuccessfulCheck ResultTag = "successful_check"
	ResultPassedCorrect   ResultTag = "opponent_passed_correct"
	ResultPassedIncorrect ResultTag = "opponent_passed_incorrect"
	ResultPlacedCorrect   ResultTag = "placed_correct"
	ResultPlacedIncorrect ResultTag = "placed_incorrect"
)

// ScoreRecord is one player's running score and placement statistics.
type ScoreRecord struct {
	Score             int `json:"score"`
	Streak            int `json:"streak"`
	CorrectPlacements int `json:"correctPlacements"`
	TotalPlacements   int `json:"totalPlacements"`
	Accuracy          int `json:"accuracy"`
	HintsUsed         int `json:"hintsUsed"`
}

// PendingCheck records the single placement awaiting adjudication. Correct
// is precomputed at placement time so both peers resolve identically.
type PendingCheck struct {
	Player    Seat   `json:"player"`
	PieceID   int    `json:"pieceId"`
	GridIndex int    `json:"gridIndex"`
	Correct   bool   `json:"correct"`
	Timestamp string `json:"timestamp"`
}

type MoveType string

const (
	MoveTypePlace  MoveType = "place"
	MoveTypeDecide MoveType = "decide"
)

// MoveRecord is one entry of the append-only move history.
type MoveRecord struct {
	Seq       int       `json:"seq"`
	Type      MoveType  `json:"type"`
	Player    Seat      `json:"player"`
	PieceID   int       `json:"pieceId"`
	GridIndex int       `json:"gridIndex"`
	Decision  Decision  `json:"decision,omitempty"`
	Result    ResultTag `json:"result,omitempty"`
	At        string    `json:"at"`
}

// TerminateReason explains how a completed game ended.
type TerminateReason string

const (
	ReasonFinished TerminateReason = "finished"
	ReasonTimeout  TerminateReason = "timeout"
	ReasonForfeit  TerminateReason = "forfeit"
)

// State is the full replicated game state. It is a value: engine commands
// return fresh copies and never mutate their input, so callers may hold
// snapshots without locking.
type State struct {
	Status    Status
	Mode      ModeID
	RackCap   int
	Grid      []int // piece id per cell, EmptyCell when unoccupied
	Racks     [2][]int
	Pool      []int
	Scores    [2]ScoreRecord
	Turn      Seat
	Pending   *PendingCheck
	History   []MoveRecord
	TimerLeft int // seconds; zero when untimed or expired
	EndReason TerminateReason
}

// Clone deep-copies every mutable field.
func (s State) Clone() State {
	ns := s
	ns.Grid = append([]int(nil), s.Grid...)
	for i := range s.Racks {
		ns.Racks[i] = append([]int(nil), s.Racks[i]...)
	}
	ns.Pool = append([]int(nil), s.Pool...)
	ns.History = append([]MoveRecord(nil), s.History...)
	if s.Pending != nil {
		p := *s.Pending
		ns.Pending = &p
	}
	return ns
}

// RackCount returns the number of occupied slots in seat's rack.
func (s State) RackCount(seat Seat) int {
	return rackCount(s.Racks[seat])
}

// GridCount returns the number of occupied grid cells.
func (s State) GridCount() int {
	n := 0
	for _, id := range s.Grid {
		if id != EmptyCell {
			n++
		}
	}
	return n
}

func rackCount(rack []int) int {
	n := 0
	for _, id := range rack {
		if id != EmptyCell {
			n++
		}
	}
	return n
}

func rackIndexOf(rack []int, pieceID int) int {
	for i, id := range rack {
		if id == pieceID {
			return i
		}
	}
	return -1
}
