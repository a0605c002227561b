package fuzz

// Category dictionaries used by dictionary fuzzing and the dictionary-insert
// mutation. Order matters: categories and entries are walked in declaration
// order so seeded runs stay reproducible.
var dictionaryOrder = []string{
	"sql", "xss", "command", "format", "special", "unicode", "numbers", "paths",
}

var dictionaries = map[string][]string{
	"sql": {
		"'", `"`, "' OR '1'='1", "admin'--", "1=1", "OR 1=1",
		"UNION SELECT", "DROP TABLE", "; DELETE FROM", "' AND '1'='2",
		"/*!50000", "CONCAT(", "GROUP BY", "HAVING", "ORDER BY",
	},
	"xss": {
		"<script>", "</script>", "alert(", "javascript:", "onerror=",
		"onload=", "<img", "<svg", "<iframe", "document.cookie",
		"eval(", "String.fromCharCode", "<body", "onclick=",
	},
	"command": {
		";", "|", "&", "&&", "||", "`", "$(", ")",
		"ls", "cat", "whoami", "id", "sleep", "ping",
		"/etc/passwd", "C:\\Windows\\", "../", "..\\",
	},
	"format": {
		"%s", "%d", "%x", "%n", "%p", "{{", "}}", "${",
		"#{", "<%= ", "%>", "[[", "]]", "{$", "$}",
	},
	"special": {
		"\x00", "\r\n", "\n", "\r", "\t", "\x0b", "\x0c",
		"\x1b", "\x7f", "\xff", "\x01", "\x02", "\x03",
	},
	"unicode": {
		"\u0000", "\uffff", "\u0001", "\u00ff", "\u0100",
		"\ufffd", "\ufeff", "\u202e",
	},
	"numbers": {
		"0", "-1", "1", "255", "256", "65535", "65536",
		"2147483647", "-2147483648", "4294967295", "4294967296",
		"NaN", "Infinity", "-Infinity", "1e308", "-1e308",
	},
	"paths": {
		".", "..", "/", "\\", "//", "\\\\", "../../../",
		"..\\..\\..\\", "C:", "D:", "/etc/", "/var/", "/tmp/",
	},
}

// dictionaryFuzzing emits the first ten entries of every category on their
// own and spliced around the base value, plus twenty random cross-category
// combinations of 2-5 tokens.
func (f *Fuzzer) dictionaryFuzzing(base string) []string {
	var fuzzed []string

	for _, category := range dictionaryOrder {
		entries := dictionaries[category]
		limit := len(entries)
		if limit > 10 {
			limit = 10
		}
		for _, entry := range entries[:limit] {
			fuzzed = append(fuzzed, entry, base+entry, entry+base)
			if len(base) > 2 {
				mid := len(base) / 2
				fuzzed = append(fuzzed, base[:mid]+entry+base[mid:])
			}
		}
	}

	for i := 0; i < 20; i++ {
		combo := ""
		tokens := 2 + f.rng.Intn(4)
		for j := 0; j < tokens; j++ {
			category := dictionaryOrder[f.rng.Intn(len(dictionaryOrder))]
			entries := dictionaries[category]
			combo += entries[f.rng.Intn(len(entries))]
		}
		fuzzed = append(fuzzed, combo)
	}

	return fuzzed
}
