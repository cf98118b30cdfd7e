package sandbox

import (
	"fmt"
	"strings"
	"unicode"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokNewline
	tokIdent
	tokNumber
	tokString
	tokPunct
)

type token struct {
	kind tokenKind
	text string
}

// lex tokenizes source into a flat token stream. Newlines are significant
// (they terminate statements); all other whitespace is insignificant.
// Comments start with '#' and run to end of line, matching the source
// register the whitelist was designed against.
func lex(source string) ([]token, error) {
	var toks []token
	runes := []rune(source)
	i := 0
	n := len(runes)
	for i < n {
		c := runes[i]
		switch {
		case c == '#':
			for i < n && runes[i] != '\n' {
				i++
			}
		case c == '\n':
			toks = append(toks, token{tokNewline, "\n"})
			i++
		case unicode.IsSpace(c):
			i++
		case unicode.IsDigit(c):
			start := i
			for i < n && (unicode.IsDigit(runes[i]) || runes[i] == '.') {
				i++
			}
			toks = append(toks, token{tokNumber, string(runes[start:i])})
		case unicode.IsLetter(c) || c == '_':
			start := i
			for i < n && (unicode.IsLetter(runes[i]) || unicode.IsDigit(runes[i]) || runes[i] == '_') {
				i++
			}
			toks = append(toks, token{tokIdent, string(runes[start:i])})
		case c == '.':
			// Attribute access is deliberately unsupported: a bare '.' not
			// part of a number is a lex error, so there is no way to write
			// foo.bar and reach outside the sandbox's namespace.
			return nil, fmt.Errorf("unexpected '.' at offset %d", i)
		case c == '"' || c == '\'':
			quote := c
			i++
			start := i
			for i < n && runes[i] != quote {
				i++
			}
			if i >= n {
				return nil, fmt.Errorf("unterminated string literal")
			}
			toks = append(toks, token{tokString, string(runes[start:i])})
			i++
		case strings.ContainsRune("+-*/%()[]{}:,=<>!", c):
			two := ""
			if i+1 < n {
				two = string(runes[i : i+2])
			}
			switch two {
			case "==", "!=", "<=", ">=":
				toks = append(toks, token{tokPunct, two})
				i += 2
			default:
				toks = append(toks, token{tokPunct, string(c)})
				i++
			}
		default:
			return nil, fmt.Errorf("unexpected character %q at offset %d", c, i)
		}
	}
	toks = append(toks, token{tokEOF, ""})
	return toks, nil
}
