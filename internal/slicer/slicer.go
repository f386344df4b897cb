// Package slicer cuts a source image reference into the per-piece metadata
// a game catalog is built from. Pieces are numbered row-major so a piece's
// id doubles as its solved grid index.
package slicer

import (
	"fmt"

	"github.com/Big-debs/jigsawverse-sub000/internal/puzzle"
)

const (
	MinDimension = 2
	MaxDimension = 12
)

// Slicer produces fixed-size piece grids.
type Slicer struct {
	rows int
	cols int
}

// New validates the board dimensions once so every slice is cheap.
func New(rows, cols int) (*Slicer, error) {
	if rows < MinDimension || rows > MaxDimension {
		return nil, fmt.Errorf("rows must be between %d and %d, got %d", MinDimension, MaxDimension, rows)
	}
	if cols < MinDimension || cols > MaxDimension {
		return nil, fmt.Errorf("cols must be between %d and %d, got %d", MinDimension, MaxDimension, cols)
	}
	return &Slicer{rows: rows, cols: cols}, nil
}

func (s *Slicer) Rows() int { return s.rows }

func (s *Slicer) Cols() int { return s.cols }

// Slice cuts the image reference into rows*cols pieces. The per-piece image
// data is an addressable tile reference; it stays on the serving side and
// never enters a replicated snapshot.
func (s *Slicer) Slice(imageRef string) []puzzle.SliceMeta {
	metas := make([]puzzle.SliceMeta, 0, s.rows*s.cols)
	for r := 0; r < s.rows; r++ {
		for c := 0; c < s.cols; c++ {
			id := r*s.cols + c
			metas = append(metas, puzzle.SliceMeta{
				ID:        id,
				Row:       r,
				Col:       c,
				Top:       r == 0,
				Bottom:    r == s.rows-1,
				Left:      c == 0,
				Right:     c == s.cols-1,
				ImageData: fmt.Sprintf("%s#%d", imageRef, id),
			})
		}
	}
	return metas
}

// Catalog slices the image and assembles the immutable piece set in one
// step.
func (s *Slicer) Catalog(imageRef string) (*puzzle.PieceSet, error) {
	return puzzle.NewPieceSet(s.rows, s.cols, s.Slice(imageRef))
}
