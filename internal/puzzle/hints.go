package puzzle

import "fmt"

// MaxHintsPerGame caps hint usage per player per game.
const MaxHintsPerGame = 5

// HintKind selects a hint strategy.
type HintKind string

const (
	HintPosition HintKind = "position"
	HintEdge     HintKind = "edge"
	HintCorner   HintKind = "corner"
	HintRegion   HintKind = "region"
)

var hintCosts = map[HintKind]int{
	HintPosition: 5,
	HintEdge:     2,
	HintCorner:   3,
	HintRegion:   5,
}

// HintCost returns the score cost of a hint kind.
func HintCost(kind HintKind) (int, bool) {
	c, ok := hintCosts[kind]
	return c, ok
}

// Region is a clamped bounding box of grid rows and columns.
type Region struct {
	RowMin int `json:"rowMin"`
	RowMax int `json:"rowMax"`
	ColMin int `json:"colMin"`
	ColMax int `json:"colMax"`
}

// Hint is the payload returned by UseHint. PieceID and CorrectPosition are
// EmptyCell for the kinds that name a set of pieces instead of one. Hints
// only ever describe the requesting player's own rack.
type Hint struct {
	Kind            HintKind `json:"kind"`
	Cost            int      `json:"cost"`
	PieceID         int      `json:"pieceId"`
	CorrectPosition int      `json:"correctPosition"`
	PieceIDs        []int    `json:"pieceIds,omitempty"`
	Region          *Region  `json:"region,omitempty"`
}

func (e *Engine) buildHint(s State, player Seat, kind HintKind, cost int) (Hint, error) {
	hint := Hint{Kind: kind, Cost: cost, PieceID: EmptyCell, CorrectPosition: EmptyCell}
	switch kind {
	case HintPosition:
		p, err := e.randomRackPiece(s, player)
		if err != nil {
			return Hint{}, err
		}
		hint.PieceID = p.ID
		hint.CorrectPosition = p.CorrectPos
	case HintEdge:
		hint.PieceIDs = e.rackPieceIDs(s, player, Piece.IsStrictEdge)
	case HintCorner:
		hint.PieceIDs = e.rackPieceIDs(s, player, Piece.IsCorner)
	case HintRegion:
		p, err := e.randomRackPiece(s, player)
		if err != nil {
			return Hint{}, err
		}
		hint.PieceID = p.ID
		hint.Region = e.regionAround(p)
	default:
		return Hint{}, fmt.Errorf("unknown hint kind %q", kind)
	}
	return hint, nil
}

// randomRackPiece picks one occupied slot uniformly from the player's rack.
func (e *Engine) randomRackPiece(s State, player Seat) (Piece, error) {
	var ids []int
	for _, id := range s.Racks[player] {
		if id != EmptyCell {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return Piece{}, Errorf(KindPieceNotFound, "player %s's rack is empty", player)
	}
	id := ids[e.rng.Intn(len(ids))]
	p, ok := e.catalog.Piece(id)
	if !ok {
		return Piece{}, Errorf(KindPieceNotFound, "piece %d is not in the catalog", id)
	}
	return p, nil
}

func (e *Engine) rackPieceIDs(s State, player Seat, match func(Piece) bool) []int {
	ids := make([]int, 0, len(s.Racks[player]))
	for _, id := range s.Racks[player] {
		if id == EmptyCell {
			continue
		}
		if p, ok := e.catalog.Piece(id); ok && match(p) {
			ids = append(ids, id)
		}
	}
	return ids
}

// regionAround clamps a 3x3 box around the piece's correct cell.
func (e *Engine) regionAround(p Piece) *Region {
	return &Region{
		RowMin: max(0, p.Row-1),
		RowMax: min(e.catalog.Rows()-1, p.Row+1),
		ColMin: max(0, p.Col-1),
		ColMax: min(e.catalog.Cols()-1, p.Col+1),
	}
}
