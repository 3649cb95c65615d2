package merge

import (
	"errors"
	"fmt"
)

// ErrOddMap is returned by ParseMap when the flat list does not hold whole pairs.
var ErrOddMap = errors.New("merge: map must hold from/to pairs")

// Pair routes a secondary physical position onto a primary one.
type Pair struct {
	From uint32 `json:"from"`
	To   uint32 `json:"to"`
}

// Table is the immutable merge configuration. The zero value is an empty
// table, which routes nothing through the registry.
type Table struct {
	pairs []Pair
}

// NewTable copies pairs into a Table.
func NewTable(pairs []Pair) Table {
	return Table{pairs: append([]Pair(nil), pairs...)}
}

// ParseMap builds a Table from a devicetree-style flat list
// <from to from to ...>.
func ParseMap(flat []uint32) (Table, error) {
	if len(flat)%2 != 0 {
		return Table{}, fmt.Errorf("%w: got %d values", ErrOddMap, len(flat))
	}
	pairs := make([]Pair, 0, len(flat)/2)
	for i := 0; i < len(flat); i += 2 {
		pairs = append(pairs, Pair{From: flat[i], To: flat[i+1]})
	}
	return Table{pairs: pairs}, nil
}

func (t Table) Len() int { return len(t.pairs) }

// Pairs returns a copy of the table entries in configuration order.
func (t Table) Pairs() []Pair {
	return append([]Pair(nil), t.pairs...)
}

// Resolve returns the effective position and whether position takes part in
// merging at all. A from position resolves to its to; a to position resolves
// to itself. The first matching from wins.
func (t Table) Resolve(position uint32) (effective uint32, participant bool) {
	for _, p := range t.pairs {
		if p.From == position {
			return p.To, true
		}
	}
	for _, p := range t.pairs {
		if p.To == position {
			return position, true
		}
	}
	return position, false
}
