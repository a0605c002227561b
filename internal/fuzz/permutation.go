package fuzz

import (
	"strings"
)

var delimiters = []string{" ", "-", "_", ".", "/", "\\", "|", ",", ";"}

// permutationFuzzing rearranges the base value: character permutations for
// short inputs, word permutations for 2-5 word strings, delimiter
// substitutions, reverse, and ten random shuffles.
func (f *Fuzzer) permutationFuzzing(base string) []string {
	var perms []string

	// Character permutations only while the factorial stays small.
	if n := len(base); n > 0 && n <= 6 {
		perms = append(perms, charPermutations(base, 100)...)
	}

	words := strings.Fields(base)
	if len(words) >= 2 && len(words) <= 5 {
		for _, perm := range wordPermutations(words) {
			perms = append(perms, strings.Join(perm, " "))
		}
	}

	for _, delim := range delimiters {
		perms = append(perms, strings.ReplaceAll(base, " ", delim))
	}

	perms = append(perms, reverse(base))

	for i := 0; i < 10; i++ {
		chars := []rune(base)
		f.rng.Shuffle(len(chars), func(a, b int) {
			chars[a], chars[b] = chars[b], chars[a]
		})
		perms = append(perms, string(chars))
	}

	return perms
}

// charPermutations enumerates permutations of the characters of s in a
// stable order, stopping at limit.
func charPermutations(s string, limit int) []string {
	var out []string
	runes := []rune(s)
	var walk func(prefix []rune, rest []rune)
	walk = func(prefix, rest []rune) {
		if len(out) >= limit {
			return
		}
		if len(rest) == 0 {
			out = append(out, string(prefix))
			return
		}
		for i := range rest {
			next := make([]rune, 0, len(rest)-1)
			next = append(next, rest[:i]...)
			next = append(next, rest[i+1:]...)
			head := make([]rune, len(prefix), len(prefix)+1)
			copy(head, prefix)
			walk(append(head, rest[i]), next)
		}
	}
	walk(nil, runes)
	return out
}

// wordPermutations enumerates all orderings of words (at most 5! = 120).
func wordPermutations(words []string) [][]string {
	if len(words) <= 1 {
		return [][]string{words}
	}
	var out [][]string
	for i, w := range words {
		rest := make([]string, 0, len(words)-1)
		rest = append(rest, words[:i]...)
		rest = append(rest, words[i+1:]...)
		for _, perm := range wordPermutations(rest) {
			out = append(out, append([]string{w}, perm...))
		}
	}
	return out
}
