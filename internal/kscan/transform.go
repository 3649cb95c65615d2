package kscan

import (
	"errors"
	"fmt"
	"math"
)

// NoPosition is returned by a Transform for coordinates it does not map.
const NoPosition int32 = -1

var ErrInvalidMatrix = errors.New("kscan: invalid matrix transform")

// Transform maps a scanned row/column to a logical position.
type Transform interface {
	RowColumnToPosition(row, column uint32) int32
}

// RC is one matrix coordinate.
type RC struct {
	Row    uint32 `json:"row"`
	Column uint32 `json:"column"`
}

// MatrixTransform is table driven: the index of a coordinate in the map is
// its position. With an empty map positions are laid out row-major over
// Rows x Columns.
type MatrixTransform struct {
	rows, columns uint32
	lookup        map[RC]int32
}

func NewMatrixTransform(rows, columns uint32, m []RC) (*MatrixTransform, error) {
	if len(m) == 0 && (rows == 0 || columns == 0) {
		return nil, fmt.Errorf("%w: %dx%d matrix without a map", ErrInvalidMatrix, rows, columns)
	}
	if uint64(rows)*uint64(columns) > math.MaxInt32 {
		return nil, fmt.Errorf("%w: %dx%d matrix exceeds the position range", ErrInvalidMatrix, rows, columns)
	}

	t := &MatrixTransform{rows: rows, columns: columns}
	if len(m) == 0 {
		return t, nil
	}

	t.lookup = make(map[RC]int32, len(m))
	for i, rc := range m {
		if prev, dup := t.lookup[rc]; dup {
			return nil, fmt.Errorf("%w: row %d column %d mapped to both %d and %d",
				ErrInvalidMatrix, rc.Row, rc.Column, prev, i)
		}
		t.lookup[rc] = int32(i)
	}
	return t, nil
}

func (t *MatrixTransform) RowColumnToPosition(row, column uint32) int32 {
	if t.lookup != nil {
		if pos, ok := t.lookup[RC{Row: row, Column: column}]; ok {
			return pos
		}
		return NoPosition
	}
	if row >= t.rows || column >= t.columns {
		return NoPosition
	}
	return int32(uint64(row)*uint64(t.columns) + uint64(column))
}
