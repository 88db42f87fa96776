package sqlcheck

import (
	"strings"

	libinjection "github.com/corazawaf/libinjection-go"
)

// injectionShaped runs libinjection over string literals embedded in the
// generated SQL. A model echoing user input into a literal can reproduce
// an injection payload; that is an automatic syntax failure.
func injectionShaped(sql string) bool {
	for _, literal := range stringLiterals(sql) {
		if isSQLi, _ := libinjection.IsSQLi(literal); isSQLi {
			return true
		}
	}
	return false
}

// stringLiterals extracts the contents of single-quoted literals.
func stringLiterals(sql string) []string {
	var literals []string
	var current strings.Builder
	inSingle := false
	var prev rune
	for _, ch := range sql {
		if inSingle {
			if ch == '\'' && prev != '\\' {
				literals = append(literals, current.String())
				current.Reset()
				inSingle = false
			} else {
				current.WriteRune(ch)
			}
		} else if ch == '\'' {
			inSingle = true
		}
		prev = ch
	}
	return literals
}
