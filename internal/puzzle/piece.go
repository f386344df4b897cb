package puzzle

import "fmt"

// EmptyCell marks an unoccupied grid cell or rack slot.
const EmptyCell = -1

// SliceMeta describes one piece as produced by the image slicer: identity
// and geometry only. ImageData is an opaque local reference and never
// crosses the wire.
type SliceMeta struct {
	ID        int    `json:"id"`
	Row       int    `json:"row"`
	Col       int    `json:"col"`
	Top       bool   `json:"top"`
	Bottom    bool   `json:"bottom"`
	Left      bool   `json:"left"`
	Right     bool   `json:"right"`
	ImageData string `json:"imageData,omitempty"`
}

// Piece is immutable after catalog construction. The edge flags record
// which grid borders the piece touches.
type Piece struct {
	ID         int
	CorrectPos int
	Row        int
	Col        int
	Top        bool
	Bottom     bool
	Left       bool
	Right      bool
	ImageData  string
}

// IsEdge reports whether the piece touches any grid border.
func (p Piece) IsEdge() bool {
	return p.Top || p.Bottom || p.Left || p.Right
}

func (p Piece) edgeCount() int {
	n := 0
	for _, f := range [4]bool{p.Top, p.Bottom, p.Left, p.Right} {
		if f {
			n++
		}
	}
	return n
}

// IsStrictEdge reports a border piece that is not a corner.
func (p Piece) IsStrictEdge() bool {
	return p.edgeCount() == 1
}

// IsCorner reports a piece touching two adjacent grid borders.
func (p Piece) IsCorner() bool {
	if p.edgeCount() != 2 {
		return false
	}
	// Opposite flags (single-row or single-column boards) are not corners.
	return (p.Top || p.Bottom) && (p.Left || p.Right)
}

// PieceSet is the immutable per-game piece catalog, injected into the
// engine at game start. Both peers must derive the identical catalog from
// the shared source image; lookup is by dense id.
type PieceSet struct {
	rows   int
	cols   int
	pieces []Piece
}

// NewPieceSet validates slice metadata and builds the catalog. Ids must be
// dense over 0..rows·cols−1 with every cell covered exactly once.
func NewPieceSet(rows, cols int, metas []SliceMeta) (*PieceSet, error) {
	if rows < 1 || cols < 1 {
		return nil, fmt.Errorf("invalid grid dimensions %dx%d", rows, cols)
	}
	n := rows * cols
	if len(metas) != n {
		return nil, fmt.Errorf("catalog needs %d pieces for a %dx%d grid, got %d", n, rows, cols, len(metas))
	}
	pieces := make([]Piece, n)
	seen := make([]bool, n)
	for _, m := range metas {
		if m.ID < 0 || m.ID >= n {
			return nil, fmt.Errorf("piece id %d outside dense range 0..%d", m.ID, n-1)
		}
		if seen[m.ID] {
			return nil, fmt.Errorf("duplicate piece id %d", m.ID)
		}
		if m.Row < 0 || m.Row >= rows || m.Col < 0 || m.Col >= cols {
			return nil, fmt.Errorf("piece %d has out-of-range cell (%d,%d)", m.ID, m.Row, m.Col)
		}
		seen[m.ID] = true
		pieces[m.ID] = Piece{
			ID:         m.ID,
			CorrectPos: m.Row*cols + m.Col,
			Row:        m.Row,
			Col:        m.Col,
			Top:        m.Top,
			Bottom:     m.Bottom,
			Left:       m.Left,
			Right:      m.Right,
			ImageData:  m.ImageData,
		}
	}
	return &PieceSet{rows: rows, cols: cols, pieces: pieces}, nil
}

func (ps *PieceSet) Rows() int { return ps.rows }

func (ps *PieceSet) Cols() int { return ps.cols }

// Size returns the piece count N, which equals the grid cell count.
func (ps *PieceSet) Size() int { return len(ps.pieces) }

// Piece returns the catalog entry for id.
func (ps *PieceSet) Piece(id int) (Piece, bool) {
	if id < 0 || id >= len(ps.pieces) {
		return Piece{}, false
	}
	return ps.pieces[id], true
}

// Contains reports whether id names a catalog piece.
func (ps *PieceSet) Contains(id int) bool {
	return id >= 0 && id < len(ps.pieces)
}

// IDs returns every piece id in ascending order.
func (ps *PieceSet) IDs() []int {
	ids := make([]int, len(ps.pieces))
	for i := range ids {
		ids[i] = i
	}
	return ids
}
