package fuzz

import (
	"strconv"
)

// numberNeighbors returns the arithmetic neighborhood of a numeric string.
func numberNeighbors(value string) ([]string, bool) {
	num, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, false
	}

	half := num / 2
	if num == 0 {
		half = 0
	}

	neighbors := []float64{num - 1, num + 1, -num, num * 2, half}
	out := make([]string, 0, len(neighbors))
	for _, n := range neighbors {
		out = append(out, strconv.FormatFloat(n, 'f', -1, 64))
	}
	return out, true
}
