// Package sequence computes gapless orderings of playlist entries.
//
// Nothing here touches storage: callers load the current order, ask for the new one, and
// persist the resulting placements.
package sequence

import "errors"

// ErrInvalidRange is returned when a move names an empty or out-of-bounds range.
var ErrInvalidRange = errors.New("invalid range")

// Placement is an item together with its zero-based position.
type Placement[T any] struct {
	Item     T
	Position int
}

// Move relocates entries[rangeStart : rangeStart+rangeLength] so that the block lands in
// front of the element that was at insertBefore in the original order. The moved block
// keeps its internal order.
//
// insertBefore is rebased by rangeLength when it lies after the block. A target past the
// end of the remaining list appends the block. A target strictly inside the block leaves
// the order unchanged.
func Move[T any](entries []T, rangeStart, rangeLength, insertBefore int) ([]T, error) {
	if rangeStart < 0 || rangeLength < 1 || insertBefore < 0 {
		return nil, ErrInvalidRange
	}
	if rangeStart >= len(entries) || rangeStart+rangeLength > len(entries) {
		return nil, ErrInvalidRange
	}

	end := rangeStart + rangeLength
	if insertBefore > rangeStart && insertBefore < end {
		return append([]T(nil), entries...), nil
	}

	moving := entries[rangeStart:end]

	rest := make([]T, 0, len(entries)-rangeLength)
	rest = append(rest, entries[:rangeStart]...)
	rest = append(rest, entries[end:]...)

	if insertBefore >= end {
		insertBefore -= rangeLength
	}
	if insertBefore > len(rest) {
		insertBefore = len(rest)
	}

	out := make([]T, 0, len(entries))
	out = append(out, rest[:insertBefore]...)
	out = append(out, moving...)
	out = append(out, rest[insertBefore:]...)
	return out, nil
}

// Renumber assigns positions 0..n-1 to entries in their given order.
func Renumber[T any](entries []T) []Placement[T] {
	out := make([]Placement[T], len(entries))
	for i, e := range entries {
		out[i] = Placement[T]{Item: e, Position: i}
	}
	return out
}
