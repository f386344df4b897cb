// Package replicate keeps peer game replicas convergent by exchanging
// full-state snapshots. Imports are tolerant of malformed cells and alien
// piece ids but reject any snapshot whose reconstructed state breaks a
// structural invariant, so a corrupt peer can never poison a healthy one.
package replicate

import (
	"encoding/json"

	"github.com/Big-debs/jigsawverse-sub000/internal/puzzle"
)

// GridCell is one wire grid slot: null when empty, otherwise an object
// naming the piece and its solved position.
type GridCell struct {
	Filled          bool
	ID              int
	CorrectPosition int
}

func (c GridCell) MarshalJSON() ([]byte, error) {
	if !c.Filled {
		return []byte("null"), nil
	}
	return json.Marshal(struct {
		ID              int `json:"id"`
		CorrectPosition int `json:"correctPosition"`
	}{c.ID, c.CorrectPosition})
}

// UnmarshalJSON never fails: a cell that is not null and not an object with
// integer id and correctPosition fields decodes as empty.
func (c *GridCell) UnmarshalJSON(b []byte) error {
	*c = GridCell{}
	var cell struct {
		ID              *json.Number `json:"id"`
		CorrectPosition *json.Number `json:"correctPosition"`
	}
	if err := json.Unmarshal(b, &cell); err != nil || cell.ID == nil || cell.CorrectPosition == nil {
		return nil
	}
	id, err := cell.ID.Int64()
	if err != nil {
		return nil
	}
	pos, err := cell.CorrectPosition.Int64()
	if err != nil {
		return nil
	}
	c.Filled = true
	c.ID = int(id)
	c.CorrectPosition = int(pos)
	return nil
}

// RackEntry is one wire rack or pool slot: null when empty, otherwise a
// bare piece id. Decoding also accepts the {"id": n} object form older
// clients send.
type RackEntry struct {
	Filled bool
	ID     int
}

func (e RackEntry) MarshalJSON() ([]byte, error) {
	if !e.Filled {
		return []byte("null"), nil
	}
	return json.Marshal(e.ID)
}

func (e *RackEntry) UnmarshalJSON(b []byte) error {
	*e = RackEntry{}
	var bare json.Number
	if err := json.Unmarshal(b, &bare); err == nil {
		if id, err := bare.Int64(); err == nil {
			e.Filled = true
			e.ID = int(id)
		}
		return nil
	}
	var obj struct {
		ID *json.Number `json:"id"`
	}
	if err := json.Unmarshal(b, &obj); err != nil || obj.ID == nil {
		return nil
	}
	id, err := obj.ID.Int64()
	if err != nil {
		return nil
	}
	e.Filled = true
	e.ID = int(id)
	return nil
}

// ScorePair carries both players' score records.
type ScorePair struct {
	PlayerA puzzle.ScoreRecord `json:"playerA"`
	PlayerB puzzle.ScoreRecord `json:"playerB"`
}

// Snapshot is the complete replicated form of a game. Piece image data is
// deliberately absent: each peer slices its own copy of the source image,
// so snapshots stay small and the tile payload never crosses the wire.
type Snapshot struct {
	Grid           []GridCell           `json:"grid"`
	PlayerARack    []RackEntry          `json:"playerARack"`
	PlayerBRack    []RackEntry          `json:"playerBRack"`
	PiecePool      []RackEntry          `json:"piecePool"`
	CurrentTurn    string               `json:"currentTurn"`
	PendingCheck   *puzzle.PendingCheck `json:"pendingCheck"`
	MoveHistory    []puzzle.MoveRecord  `json:"moveHistory"`
	TimerRemaining int                  `json:"timerRemaining"`
	Scores         ScorePair            `json:"scores"`
	Mode           string               `json:"mode"`
	Status         string               `json:"status,omitempty"`
	RackCapacity   int                  `json:"rackCapacity,omitempty"`
	EndReason      string               `json:"endReason,omitempty"`
	EmittedAt      string               `json:"emittedAt,omitempty"`
}

// Export renders a state onto the wire. Grid cells carry the solved
// position from the catalog so a spectator client can paint progress
// without its own copy of the piece set.
func Export(catalog *puzzle.PieceSet, s puzzle.State) Snapshot {
	snap := Snapshot{
		Grid:           make([]GridCell, len(s.Grid)),
		PlayerARack:    exportRack(s.Racks[puzzle.SeatA]),
		PlayerBRack:    exportRack(s.Racks[puzzle.SeatB]),
		PiecePool:      exportRack(s.Pool),
		CurrentTurn:    s.Turn.String(),
		MoveHistory:    append([]puzzle.MoveRecord{}, s.History...),
		TimerRemaining: s.TimerLeft,
		Scores: ScorePair{
			PlayerA: s.Scores[puzzle.SeatA],
			PlayerB: s.Scores[puzzle.SeatB],
		},
		Mode:         string(s.Mode),
		Status:       string(s.Status),
		RackCapacity: s.RackCap,
		EndReason:    string(s.EndReason),
	}
	for i, id := range s.Grid {
		if id == puzzle.EmptyCell {
			continue
		}
		pos := id
		if p, ok := catalog.Piece(id); ok {
			pos = p.CorrectPos
		}
		snap.Grid[i] = GridCell{Filled: true, ID: id, CorrectPosition: pos}
	}
	if s.Pending != nil {
		p := *s.Pending
		snap.PendingCheck = &p
	}
	return snap
}

func exportRack(rack []int) []RackEntry {
	entries := make([]RackEntry, len(rack))
	for i, id := range rack {
		if id != puzzle.EmptyCell {
			entries[i] = RackEntry{Filled: true, ID: id}
		}
	}
	return entries
}

// Import reconstructs a state from the wire, dropping pieces the local
// catalog does not know and reporting their ids. The rebuilt state is then
// checked against every structural invariant; a violation rejects the whole
// snapshot with a snapshot_rejected error and the violation as its cause.
func Import(catalog *puzzle.PieceSet, snap Snapshot) (puzzle.State, []int, error) {
	var dropped []int

	s := puzzle.State{
		Status:    puzzle.Status(snap.Status),
		Mode:      puzzle.ModeID(snap.Mode),
		RackCap:   snap.RackCapacity,
		Grid:      make([]int, len(snap.Grid)),
		TimerLeft: snap.TimerRemaining,
		EndReason: puzzle.TerminateReason(snap.EndReason),
	}
	if s.Status == "" {
		// Early peers omit the status field; an in-flight game is active.
		s.Status = puzzle.StatusActive
	}
	if s.Mode == "" {
		s.Mode = puzzle.ModeClassic
	}
	if s.TimerLeft < 0 {
		s.TimerLeft = 0
	}

	for i, cell := range snap.Grid {
		s.Grid[i] = puzzle.EmptyCell
		if !cell.Filled {
			continue
		}
		if !catalog.Contains(cell.ID) {
			dropped = append(dropped, cell.ID)
			continue
		}
		s.Grid[i] = cell.ID
	}
	s.Racks[puzzle.SeatA] = importRack(catalog, snap.PlayerARack, &dropped)
	s.Racks[puzzle.SeatB] = importRack(catalog, snap.PlayerBRack, &dropped)
	for _, entry := range snap.PiecePool {
		if !entry.Filled {
			continue
		}
		if !catalog.Contains(entry.ID) {
			dropped = append(dropped, entry.ID)
			continue
		}
		s.Pool = append(s.Pool, entry.ID)
	}

	if s.RackCap <= 0 {
		if n := len(snap.PlayerARack); n > 0 {
			s.RackCap = n
		} else {
			s.RackCap = puzzle.DefaultRackCapacity
		}
	}
	if seat, ok := puzzle.ParseSeat(snap.CurrentTurn); ok {
		s.Turn = seat
	}
	if snap.PendingCheck != nil {
		p := *snap.PendingCheck
		s.Pending = &p
	}
	if len(snap.MoveHistory) > 0 {
		s.History = append([]puzzle.MoveRecord(nil), snap.MoveHistory...)
	}
	s.Scores[puzzle.SeatA] = snap.Scores.PlayerA
	s.Scores[puzzle.SeatB] = snap.Scores.PlayerB

	if err := puzzle.CheckInvariants(catalog, s); err != nil {
		return puzzle.State{}, dropped, puzzle.WrapError(puzzle.KindSnapshotRejected, err)
	}
	return s, dropped, nil
}

func importRack(catalog *puzzle.PieceSet, entries []RackEntry, dropped *[]int) []int {
	if len(entries) == 0 {
		return nil
	}
	rack := make([]int, len(entries))
	for i, entry := range entries {
		rack[i] = puzzle.EmptyCell
		if !entry.Filled {
			continue
		}
		if !catalog.Contains(entry.ID) {
			*dropped = append(*dropped, entry.ID)
			continue
		}
		rack[i] = entry.ID
	}
	return rack
}
