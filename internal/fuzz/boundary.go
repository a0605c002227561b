package fuzz

import (
	"strings"
)

// boundaryFuzzing emits integer, float, string-length and date/time edges.
// Pure: no RNG involved.
func boundaryFuzzing() []string {
	boundaries := []string{
		// Integer boundaries at widths 8/16/32/64.
		"0", "-1", "1",
		"127", "128", "-128", "-129",
		"255", "256", "-255", "-256",
		"32767", "32768", "-32768", "-32769",
		"65535", "65536", "-65535", "-65536",
		"2147483647", "2147483648", "-2147483648", "-2147483649",
		"4294967295", "4294967296",
		"9223372036854775807", "-9223372036854775808",

		// IEEE-754 edges.
		"0.0", "-0.0",
		"Infinity", "-Infinity", "NaN",
		"1.7976931348623157e+308",
		"2.2250738585072014e-308",
		"1e308", "-1e308",
	}

	// String lengths at 2^i +- 1 for i = 0..19.
	for i := 0; i < 20; i++ {
		length := 1 << uint(i)
		boundaries = append(boundaries,
			strings.Repeat("A", length),
			strings.Repeat("A", length-1),
			strings.Repeat("A", length+1),
		)
	}

	// Date and time edges.
	boundaries = append(boundaries,
		"1970-01-01", "2038-01-19",
		"0000-00-00", "9999-12-31",
		"00:00:00", "23:59:59",
	)

	return boundaries
}
