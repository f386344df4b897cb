package puzzle

import (
	"fmt"
	"math/rand"
	"time"
)

// DefaultRackCapacity is the number of rack slots each player holds.
const DefaultRackCapacity = 10

// Engine is the sole authority over game state transitions. Commands are
// pure: each takes a state value and returns a fresh one together with an
// outcome record, leaving the input untouched. The engine performs no I/O
// and no logging.
type Engine struct {
	catalog *PieceSet
	rackCap int
	rng     *rand.Rand
	now     func() time.Time
}

type EngineOption func(*Engine)

// WithRackCapacity overrides the default ten-slot rack, for boards too
// small to seat two full racks.
func WithRackCapacity(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.rackCap = n
		}
	}
}

// WithRand injects a seeded source for deterministic shuffles and hint
// piece picks.
func WithRand(r *rand.Rand) EngineOption {
	return func(e *Engine) { e.rng = r }
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

// NewEngine builds an engine around an immutable piece catalog.
func NewEngine(catalog *PieceSet, opts ...EngineOption) *Engine {
	e := &Engine{
		catalog: catalog,
		rackCap: DefaultRackCapacity,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Catalog returns the piece catalog the engine adjudicates against.
func (e *Engine) Catalog() *PieceSet { return e.catalog }

// RackCapacity returns the configured rack size.
func (e *Engine) RackCapacity() int { return e.rackCap }

func (e *Engine) timestamp() string {
	return e.now().UTC().Format(time.RFC3339)
}

// Initialize deals a fresh game: pieces shuffled uniformly into the pool, a
// full rack drawn for each seated player, player A to move. Single-player
// modes seat only player A.
func (e *Engine) Initialize(mode ModeID) (State, error) {
	m := LookupMode(mode)
	n := e.catalog.Size()
	need := 2 * e.rackCap
	if !m.Features.Multiplayer {
		need = e.rackCap
	}
	if n < need {
		return State{}, fmt.Errorf("need at least %d pieces for racks of %d, got %d", need, e.rackCap, n)
	}

	ids := e.catalog.IDs()
	e.rng.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })

	s := State{
		Status:  StatusActive,
		Mode:    m.ID,
		RackCap: e.rackCap,
		Grid:    make([]int, n),
		Turn:    SeatA,
	}
	for i := range s.Grid {
		s.Grid[i] = EmptyCell
	}
	s.Racks[SeatA] = append([]int(nil), ids[:e.rackCap]...)
	if m.Features.Multiplayer {
		s.Racks[SeatB] = append([]int(nil), ids[e.rackCap:2*e.rackCap]...)
		s.Pool = append([]int(nil), ids[2*e.rackCap:]...)
	} else {
		s.Racks[SeatB] = make([]int, e.rackCap)
		for i := range s.Racks[SeatB] {
			s.Racks[SeatB][i] = EmptyCell
		}
		s.Pool = append([]int(nil), ids[e.rackCap:]...)
	}
	for i := range s.Scores {
		s.Scores[i] = ScoreRecord{Accuracy: 100}
	}
	return s, nil
}

// PlaceOutcome reports a committed placement.
type PlaceOutcome struct {
	Player    Seat
	PieceID   int
	GridIndex int
	Correct   bool
	Result    ResultTag
	Returned  bool // single-player wrong piece bounced back to the rack
	Refilled  bool
}

// Place moves a piece from the player's rack onto an empty grid cell. In
// multiplayer modes no points move yet: the placement hangs as the
// PendingCheck until the opponent decides. Single-player placements
// self-resolve immediately.
func (e *Engine) Place(s State, player Seat, pieceID, gridIndex int) (State, PlaceOutcome, error) {
	if s.Status != StatusActive {
		return s, PlaceOutcome{}, Errorf(KindGameNotActive, "game is %s", s.Status)
	}
	if s.Pending != nil {
		return s, PlaceOutcome{}, Errorf(KindPendingResolution, "placement of piece %d awaits a decision", s.Pending.PieceID)
	}
	if player != s.Turn {
		return s, PlaceOutcome{}, Errorf(KindNotYourTurn, "it is player %s's turn", s.Turn)
	}
	if gridIndex < 0 || gridIndex >= len(s.Grid) {
		return s, PlaceOutcome{}, Errorf(KindInvalidPosition, "grid index %d outside 0..%d", gridIndex, len(s.Grid)-1)
	}
	if s.Grid[gridIndex] != EmptyCell {
		return s, PlaceOutcome{}, Errorf(KindPositionOccupied, "cell %d already holds piece %d", gridIndex, s.Grid[gridIndex])
	}
	slot := rackIndexOf(s.Racks[player], pieceID)
	if slot < 0 {
		return s, PlaceOutcome{}, Errorf(KindPieceNotFound, "piece %d is not in player %s's rack", pieceID, player)
	}
	piece, ok := e.catalog.Piece(pieceID)
	if !ok {
		return s, PlaceOutcome{}, Errorf(KindPieceNotFound, "piece %d is not in the catalog", pieceID)
	}

	ns := s.Clone()
	ns.Racks[player][slot] = EmptyCell
	ns.Grid[gridIndex] = pieceID
	correct := piece.CorrectPos == gridIndex
	out := PlaceOutcome{Player: player, PieceID: pieceID, GridIndex: gridIndex, Correct: correct}

	mode := LookupMode(s.Mode)
	at := e.timestamp()
	if mode.Features.Multiplayer {
		ns.Pending = &PendingCheck{
			Player:    player,
			PieceID:   pieceID,
			GridIndex: gridIndex,
			Correct:   correct,
			Timestamp: at,
		}
		out.Result = ResultPendingCheck
	} else if correct {
		applyCorrectPlacement(&ns.Scores[player], mode.Scoring.CorrectPiece, mode.Scoring)
		out.Result = ResultPlacedCorrect
	} else {
		applyIncorrectPlacement(&ns.Scores[player], mode.Scoring.WrongPiece)
		ns.Grid[gridIndex] = EmptyCell
		returnToRack(&ns, player, pieceID)
		out.Result = ResultPlacedIncorrect
		out.Returned = true
	}

	ns.History = append(ns.History, MoveRecord{
		Seq:       len(ns.History) + 1,
		Type:      MoveTypePlace,
		Player:    player,
		PieceID:   pieceID,
		GridIndex: gridIndex,
		Result:    out.Result,
		At:        at,
	})
	out.Refilled = refillIfEmpty(&ns, player)
	finalize(&ns)
	return ns, out, nil
}

// DecideOutcome reports an adjudicated placement.
type DecideOutcome struct {
	Decider   Seat
	Placer    Seat
	Decision  Decision
	Result    ResultTag
	PieceID   int
	GridIndex int
	Correct   bool
	Returned  bool
	Refilled  bool
	Completed bool
}

// Decide resolves the pending placement. Checking a correct placement
// backfires on the checker; passing a wrong one costs both players. Every
// resolution clears the pending check and hands the turn to the decider.
func (e *Engine) Decide(s State, decider Seat, decision Decision) (State, DecideOutcome, error) {
	if s.Status != StatusActive {
		return s, DecideOutcome{}, Errorf(KindGameNotActive, "game is %s", s.Status)
	}
	if s.Pending == nil {
		return s, DecideOutcome{}, Errorf(KindNoPendingCheck, "no placement awaits a decision")
	}
	if decider == s.Pending.Player {
		return s, DecideOutcome{}, Errorf(KindWrongDecider, "player %s cannot adjudicate their own placement", decider)
	}
	if decision != DecisionCheck && decision != DecisionPass {
		return s, DecideOutcome{}, fmt.Errorf("unknown decision %q", decision)
	}

	ns := s.Clone()
	pending := *ns.Pending
	placer := pending.Player
	sc := LookupMode(s.Mode).Scoring

	out := DecideOutcome{
		Decider:   decider,
		Placer:    placer,
		Decision:  decision,
		PieceID:   pending.PieceID,
		GridIndex: pending.GridIndex,
		Correct:   pending.Correct,
	}
	switch {
	case decision == DecisionCheck && pending.Correct:
		out.Result = ResultFailedCheck
		applyCorrectPlacement(&ns.Scores[placer], sc.CheckCorrect, sc)
		ns.Scores[decider].Score += sc.CheckerFail
	case decision == DecisionCheck && !pending.Correct:
		out.Result = ResultSuccessfulCheck
		ns.Grid[pending.GridIndex] = EmptyCell
		returnToRack(&ns, placer, pending.PieceID)
		out.Returned = true
		ns.Scores[decider].Score += sc.CheckerSuccess
	case decision == DecisionPass && pending.Correct:
		out.Result = ResultPassedCorrect
	default: // pass on an incorrect placement
		out.Result = ResultPassedIncorrect
		ns.Grid[pending.GridIndex] = EmptyCell
		returnToRack(&ns, placer, pending.PieceID)
		out.Returned = true
		applyIncorrectPlacement(&ns.Scores[placer], sc.PassWrong)
		ns.Scores[decider].Score += sc.PassWrong
	}

	ns.Pending = nil
	ns.Turn = decider
	ns.History = append(ns.History, MoveRecord{
		Seq:       len(ns.History) + 1,
		Type:      MoveTypeDecide,
		Player:    decider,
		PieceID:   pending.PieceID,
		GridIndex: pending.GridIndex,
		Decision:  decision,
		Result:    out.Result,
		At:        e.timestamp(),
	})
	out.Refilled = refillIfEmpty(&ns, placer)
	out.Completed = finalize(&ns)
	return ns, out, nil
}

// UseHint charges the player's score and hint budget for a hint payload.
// Placement statistics are untouched.
func (e *Engine) UseHint(s State, player Seat, kind HintKind) (State, Hint, error) {
	if s.Status != StatusActive {
		return s, Hint{}, Errorf(KindGameNotActive, "game is %s", s.Status)
	}
	cost, ok := HintCost(kind)
	if !ok {
		return s, Hint{}, fmt.Errorf("unknown hint kind %q", kind)
	}
	if s.Scores[player].HintsUsed >= MaxHintsPerGame {
		return s, Hint{}, Errorf(KindHintBudgetExhausted, "player %s has used all %d hints", player, MaxHintsPerGame)
	}
	hint, err := e.buildHint(s, player, kind, cost)
	if err != nil {
		return s, Hint{}, err
	}

	ns := s.Clone()
	ns.Scores[player].Score -= cost
	ns.Scores[player].HintsUsed++
	return ns, hint, nil
}

// Tick decrements the game timer, clamping at zero. The engine never
// expires a game itself; the scheduler observes the clock and calls
// Terminate on expiry.
func (e *Engine) Tick(s State, seconds int) State {
	if s.Status != StatusActive || seconds <= 0 || s.TimerLeft <= 0 {
		return s
	}
	ns := s.Clone()
	ns.TimerLeft -= seconds
	if ns.TimerLeft < 0 {
		ns.TimerLeft = 0
	}
	return ns
}

// Terminate forces completion, with the winner resolved from current
// scores. An unresolved pending check is discarded; its piece keeps the
// cell it occupied.
func (e *Engine) Terminate(s State, reason TerminateReason) (State, error) {
	if s.Status != StatusActive {
		return s, Errorf(KindGameNotActive, "game is %s", s.Status)
	}
	if reason == "" {
		reason = ReasonFinished
	}
	ns := s.Clone()
	ns.Status = StatusCompleted
	ns.Pending = nil
	ns.EndReason = reason
	return ns, nil
}

// IsComplete reports whether the game is over: the grid is full, the pool
// and both racks are exhausted, or play was terminated early. An
// unresolved pending check defers completion until decided, because a
// rejected placement sends its piece back off the grid.
func IsComplete(s State) bool {
	if s.Status == StatusCompleted {
		return true
	}
	return s.Pending == nil && terminalPosition(s)
}

// Winner names the outcome of a completed game.
type Winner string

const (
	WinnerA   Winner = "A"
	WinnerB   Winner = "B"
	WinnerTie Winner = "tie"
)

// WinnerOf adjudicates a completed game by score. The second return is
// false while the game is still in play.
func WinnerOf(s State) (Winner, bool) {
	if s.Status != StatusCompleted {
		return "", false
	}
	a, b := s.Scores[SeatA].Score, s.Scores[SeatB].Score
	switch {
	case a > b:
		return WinnerA, true
	case b > a:
		return WinnerB, true
	default:
		return WinnerTie, true
	}
}

func terminalPosition(s State) bool {
	full := true
	for _, id := range s.Grid {
		if id == EmptyCell {
			full = false
			break
		}
	}
	if full {
		return true
	}
	return len(s.Pool) == 0 && rackCount(s.Racks[SeatA]) == 0 && rackCount(s.Racks[SeatB]) == 0
}

func finalize(s *State) bool {
	if s.Status != StatusActive || s.Pending != nil || !terminalPosition(*s) {
		return false
	}
	s.Status = StatusCompleted
	s.EndReason = ReasonFinished
	return true
}

// refillIfEmpty draws from the pool only once a rack is entirely empty.
func refillIfEmpty(s *State, seat Seat) bool {
	if rackCount(s.Racks[seat]) > 0 || len(s.Pool) == 0 {
		return false
	}
	refillRack(s, seat)
	return true
}

// refillRack fills empty slots left to right from the front of the pool,
// stopping at capacity or pool exhaustion. The relative order of occupied
// slots survives.
func refillRack(s *State, seat Seat) {
	rack := s.Racks[seat]
	held := rackCount(rack)
	for i := range rack {
		if held >= s.RackCap || len(s.Pool) == 0 {
			break
		}
		if rack[i] != EmptyCell {
			continue
		}
		rack[i] = s.Pool[0]
		s.Pool = s.Pool[1:]
		held++
	}
}

// returnToRack puts a rejected piece into the first empty slot, appending
// one if a refill already topped the rack up.
func returnToRack(s *State, seat Seat, pieceID int) {
	rack := s.Racks[seat]
	for i := range rack {
		if rack[i] == EmptyCell {
			rack[i] = pieceID
			return
		}
	}
	s.Racks[seat] = append(rack, pieceID)
}
