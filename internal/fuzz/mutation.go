package fuzz

import (
	"net/url"
	"strconv"
	"strings"
	"unicode"
)

// interestingValues replace, prefix or suffix the base value.
var interestingValues = []string{
	"", "0", "1", "-1", "null", "undefined", "NaN",
	"true", "false", "[]", "{}",
	"\x00", "\xff", " ", "\t", "\n", "\r\n",
}

var specialChars = []string{"<", ">", `"`, "'", "&", ";", "|", "\x00", "\n"}

// mutator is one mutation strategy. A nil-ok result means the strategy did
// not apply to this value (a transient miss, not an error); the runner skips
// it and carries on.
type mutator func(f *Fuzzer, value string) (string, bool)

var mutators = []mutator{
	(*Fuzzer).bitFlip,
	(*Fuzzer).byteFlip,
	(*Fuzzer).arithmetic,
	(*Fuzzer).interesting,
	(*Fuzzer).dictionaryInsert,
	(*Fuzzer).havoc,
}

// mutationFuzzing mutates base with every strategy, then applies the fixed
// character, length, case and encoding families.
func (f *Fuzzer) mutationFuzzing(base string) []string {
	var mutations []string

	for _, mutate := range mutators {
		if mutated, ok := mutate(f, base); ok && mutated != base {
			mutations = append(mutations, mutated)
		}
	}

	// Character mutations on the first ten positions.
	limit := len(base)
	if limit > 10 {
		limit = 10
	}
	for i := 0; i < limit; i++ {
		if len(base) > 1 {
			mutations = append(mutations, base[:i]+base[i+1:])
		}
		mutations = append(mutations, base[:i]+string(base[i])+base[i:])
		for _, ch := range specialChars {
			mutations = append(mutations, base[:i]+ch+base[i+1:])
		}
	}

	// Length mutations.
	mutations = append(mutations,
		strings.Repeat(base, 2),
		strings.Repeat(base, 10),
		strings.Repeat(base, 100),
		base[:len(base)/2],
		"",
	)

	// Case mutations.
	mutations = append(mutations,
		strings.ToUpper(base),
		strings.ToLower(base),
		swapCase(base),
	)

	// Encoding mutations.
	encoded := url.QueryEscape(base)
	mutations = append(mutations,
		encoded,
		url.QueryEscape(encoded),
		strings.ReplaceAll(base, " ", "+"),
		strings.ReplaceAll(base, " ", "%20"),
	)

	return mutations
}

// bitFlip flips one bit at a random byte offset. Invalid UTF-8 produced by
// the flip is replaced with the replacement character.
func (f *Fuzzer) bitFlip(value string) (string, bool) {
	if value == "" {
		return "", false
	}
	raw := []byte(value)
	raw[f.rng.Intn(len(raw))] ^= 1 << uint(f.rng.Intn(8))
	return strings.ToValidUTF8(string(raw), "�"), true
}

// byteFlip XORs one random byte with 0xFF.
func (f *Fuzzer) byteFlip(value string) (string, bool) {
	if value == "" {
		return "", false
	}
	raw := []byte(value)
	raw[f.rng.Intn(len(raw))] ^= 0xFF
	return strings.ToValidUTF8(string(raw), "�"), true
}

// arithmetic applies +-k, *k, /2 or negation when the value parses as an
// integer.
func (f *Fuzzer) arithmetic(value string) (string, bool) {
	num, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return "", false
	}
	half := num / 2
	if num <= 1 {
		half = 1
	}
	candidates := []int64{
		num + int64(1+f.rng.Intn(100)),
		num - int64(1+f.rng.Intn(100)),
		num * int64(2+f.rng.Intn(9)),
		half,
		-num,
	}
	return strconv.FormatInt(candidates[f.rng.Intn(len(candidates))], 10), true
}

// interesting replaces the value with, or splices around it, a member of the
// canonical interesting-value set.
func (f *Fuzzer) interesting(value string) (string, bool) {
	pick := interestingValues[f.rng.Intn(len(interestingValues))]
	switch {
	case f.rng.Float64() < 0.3:
		return pick, true
	case f.rng.Float64() < 0.5:
		return value + pick, true
	default:
		return pick + value, true
	}
}

// dictionaryInsert splices a random dictionary token at a random position.
func (f *Fuzzer) dictionaryInsert(value string) (string, bool) {
	category := dictionaryOrder[f.rng.Intn(len(dictionaryOrder))]
	entries := dictionaries[category]
	token := entries[f.rng.Intn(len(entries))]
	if value == "" {
		return token, true
	}
	pos := f.rng.Intn(len(value) + 1)
	return value[:pos] + token + value[pos:], true
}

// havoc composes one to five random transforms.
func (f *Fuzzer) havoc(value string) (string, bool) {
	if value == "" {
		return "", false
	}

	transforms := []func(string) string{
		func(s string) string { return s + s },
		reverse,
		strings.ToUpper,
		strings.ToLower,
		func(s string) string { return strings.ReplaceAll(s, " ", "") },
		interleaveSpaces,
		url.QueryEscape,
		func(s string) string { return s + "\x00" },
		func(s string) string { return "<" + s + ">" },
		func(s string) string {
			if len(s) > 1 {
				return s[1:]
			}
			return s
		},
		func(s string) string {
			if len(s) > 1 {
				return s[:len(s)-1]
			}
			return s
		},
	}

	mutated := value
	rounds := 1 + f.rng.Intn(5)
	for i := 0; i < rounds; i++ {
		mutated = transforms[f.rng.Intn(len(transforms))](mutated)
	}
	return mutated, true
}

func reverse(s string) string {
	runes := []rune(s)
	for i, j := 0, len(runes)-1; i < j; i, j = i+1, j-1 {
		runes[i], runes[j] = runes[j], runes[i]
	}
	return string(runes)
}

func interleaveSpaces(s string) string {
	var b strings.Builder
	for i, r := range s {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteRune(r)
	}
	return b.String()
}

func swapCase(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case unicode.IsUpper(r):
			return unicode.ToLower(r)
		case unicode.IsLower(r):
			return unicode.ToUpper(r)
		}
		return r
	}, s)
}
