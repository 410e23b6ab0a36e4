package series

import (
	"fmt"
	"iter"
)

// Split yields successive aligned windows over the inputs. All inputs must
// have the same logical length. Each window is one series per input, all of
// identical length, and each window is fully contained in a single part of
// every input: the window length is the longest prefix that does not cross a
// part boundary anywhere.
//
// This is the only way the engine aligns heterogeneous columns for joint
// evaluation. Windows preserve the row order of every input, and all cursors
// exhaust simultaneously because the totals are equal.
func Split(inputs []Multi) iter.Seq[[]Series] {
	return func(yield func([]Series) bool) {
		if len(inputs) == 0 {
			yield(nil)
			return
		}
		length := inputs[0].Len()
		for _, m := range inputs[1:] {
			if m.Len() != length {
				panic(fmt.Sprintf("aligned inputs must have equal lengths, got %d and %d", length, m.Len()))
			}
		}
		type position struct {
			part  int
			start int
		}
		positions := make([]position, len(inputs))
		window := make([]Series, len(inputs))
		for {
			// Find the shortest remaining run within the current parts.
			shortest := -1
			for i, m := range inputs {
				pos := positions[i]
				if pos.part >= len(m.parts) {
					return
				}
				remaining := m.parts[pos.part].Len() - pos.start
				if shortest < 0 || remaining < shortest {
					shortest = remaining
				}
			}
			// Slice everything to the shortest run and advance the cursors.
			for i, m := range inputs {
				pos := &positions[i]
				part := m.parts[pos.part]
				window[i] = part.Slice(pos.start, pos.start+shortest)
				if remaining := part.Len() - pos.start; remaining > shortest {
					pos.start += shortest
				} else {
					pos.part++
					pos.start = 0
				}
			}
			if !yield(window) {
				return
			}
		}
	}
}

// Map applies f to every aligned window of the inputs and concatenates the
// results into one multi-series. The number of series passed to f equals the
// number of inputs.
func Map(f func([]Series) (Multi, error), inputs ...Multi) (Multi, error) {
	var result Multi
	for window := range Split(inputs) {
		mapped, err := f(window)
		if err != nil {
			return Multi{}, err
		}
		result.Splice(mapped)
	}
	return result, nil
}

// Map1 is Map over a single input.
func Map1(m Multi, f func(Series) (Multi, error)) (Multi, error) {
	return Map(func(window []Series) (Multi, error) {
		return f(window[0])
	}, m)
}

// Map2 is Map over two inputs.
func Map2(x, y Multi, f func(Series, Series) (Multi, error)) (Multi, error) {
	return Map(func(window []Series) (Multi, error) {
		return f(window[0], window[1])
	}, x, y)
}
