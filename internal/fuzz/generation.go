package fuzz

import (
	"strings"
)

const printableChars = " !\"#$%&'()*+,-./0123456789:;<=>?@ABCDEFGHIJKLMNOPQRSTUVWXYZ[\\]^_`abcdefghijklmnopqrstuvwxyz{|}~"
const alphanumericChars = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

var overflowSizes = []int{100, 255, 256, 1023, 1024, 4095, 4096, 65535, 65536}

// generationFuzzing emits payloads built from scratch: runs, random strings,
// format specifiers, overflow buffers and unicode edge cases.
func (f *Fuzzer) generationFuzzing() []string {
	var generated []string

	for _, length := range []int{1, 10, 100, 1000, 10000} {
		generated = append(generated,
			strings.Repeat("A", length),
			f.randomString(printableChars, length),
			f.randomString(alphanumericChars, length),
		)
	}

	// Format strings.
	for i := 0; i < 5; i++ {
		generated = append(generated, "%s", "%d", "%x", "%n", "%p")
	}
	generated = append(generated,
		strings.Repeat("%s", 100),
		strings.Repeat("%n", 10),
	)

	// Buffer overflow attempts.
	for _, size := range overflowSizes {
		generated = append(generated,
			strings.Repeat("A", size),
			strings.Repeat("\x41", size),
			strings.Repeat("\x00", size),
		)
	}

	// Sentinel patterns.
	generated = append(generated,
		strings.Repeat("A", 100)+strings.Repeat("B", 100),
		"\x41\x41\x41\x41",
		"\xde\xad\xbe\xef",
	)

	// Null bytes and terminators.
	generated = append(generated, "\x00", "%00", "test\x00test")

	// Unicode edge cases: emoji, RTL override, the zero-width no-break
	// space (doubles as the BOM), the UTF-16 surrogate boundary as raw
	// bytes, and the highest BMP code point.
	generated = append(generated,
		"\U0001F4A9",
		"\u202e",
		"\ufeff",
		"\xed\xa0\x80",
		"\uffff",
	)

	return generated
}

func (f *Fuzzer) randomString(alphabet string, length int) string {
	var b strings.Builder
	b.Grow(length)
	for i := 0; i < length; i++ {
		b.WriteByte(alphabet[f.rng.Intn(len(alphabet))])
	}
	return b.String()
}
