package rules

import (
	"fmt"
	"strings"
	"unicode"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokNumber
	tokString
	tokBool
	tokAnd    // and, &&
	tokOr     // or, ||
	tokNot    // not, !
	tokEq     // ==
	tokNeq    // !=
	tokLt     // <
	tokLte    // <=
	tokGt     // >
	tokGte    // >=
	tokPlus   // +
	tokMinus  // -
	tokStar   // *
	tokSlash  // /
	tokPct    // %
	tokLParen // (
	tokRParen // )
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

// lex splits a rule expression into tokens. Anything outside the small
// operator/literal/identifier vocabulary is a lex error, which keeps the
// grammar closed: there is no way to spell a call, index, or import.
func lex(input string) ([]token, error) {
	var toks []token
	i := 0
	n := len(input)
	for i < n {
		c := rune(input[i])
		switch {
		case unicode.IsSpace(c):
			i++
		case c == '(':
			toks = append(toks, token{tokLParen, "(", i})
			i++
		case c == ')':
			toks = append(toks, token{tokRParen, ")", i})
			i++
		case c == '+':
			toks = append(toks, token{tokPlus, "+", i})
			i++
		case c == '-':
			toks = append(toks, token{tokMinus, "-", i})
			i++
		case c == '*':
			toks = append(toks, token{tokStar, "*", i})
			i++
		case c == '/':
			toks = append(toks, token{tokSlash, "/", i})
			i++
		case c == '%':
			toks = append(toks, token{tokPct, "%", i})
			i++
		case c == '=':
			if i+1 < n && input[i+1] == '=' {
				toks = append(toks, token{tokEq, "==", i})
				i += 2
			} else {
				return nil, fmt.Errorf("position %d: single '=' is not an operator", i)
			}
		case c == '!':
			if i+1 < n && input[i+1] == '=' {
				toks = append(toks, token{tokNeq, "!=", i})
				i += 2
			} else {
				toks = append(toks, token{tokNot, "!", i})
				i++
			}
		case c == '<':
			if i+1 < n && input[i+1] == '=' {
				toks = append(toks, token{tokLte, "<=", i})
				i += 2
			} else {
				toks = append(toks, token{tokLt, "<", i})
				i++
			}
		case c == '>':
			if i+1 < n && input[i+1] == '=' {
				toks = append(toks, token{tokGte, ">=", i})
				i += 2
			} else {
				toks = append(toks, token{tokGt, ">", i})
				i++
			}
		case c == '&':
			if i+1 < n && input[i+1] == '&' {
				toks = append(toks, token{tokAnd, "&&", i})
				i += 2
			} else {
				return nil, fmt.Errorf("position %d: single '&' is not an operator", i)
			}
		case c == '|':
			if i+1 < n && input[i+1] == '|' {
				toks = append(toks, token{tokOr, "||", i})
				i += 2
			} else {
				return nil, fmt.Errorf("position %d: single '|' is not an operator", i)
			}
		case c == '\'' || c == '"':
			lit, next, err := lexString(input, i)
			if err != nil {
				return nil, err
			}
			toks = append(toks, token{tokString, lit, i})
			i = next
		case unicode.IsDigit(c):
			start := i
			for i < n && (unicode.IsDigit(rune(input[i])) || input[i] == '.') {
				i++
			}
			toks = append(toks, token{tokNumber, input[start:i], start})
		case unicode.IsLetter(c) || c == '_':
			start := i
			for i < n && isIdentChar(rune(input[i])) {
				i++
			}
			word := input[start:i]
			switch strings.ToLower(word) {
			case "and":
				toks = append(toks, token{tokAnd, word, start})
			case "or":
				toks = append(toks, token{tokOr, word, start})
			case "not":
				toks = append(toks, token{tokNot, word, start})
			case "true", "false":
				toks = append(toks, token{tokBool, strings.ToLower(word), start})
			default:
				toks = append(toks, token{tokIdent, word, start})
			}
		default:
			return nil, fmt.Errorf("position %d: unexpected character %q", i, c)
		}
	}
	toks = append(toks, token{tokEOF, "", n})
	return toks, nil
}

func lexString(input string, start int) (string, int, error) {
	quote := input[start]
	i := start + 1
	for i < len(input) {
		if input[i] == quote {
			return input[start+1 : i], i + 1, nil
		}
		i++
	}
	return "", 0, fmt.Errorf("position %d: unterminated string", start)
}

// isIdentChar allows dotted paths as single identifiers: damage.count is
// one token, not an attribute access.
func isIdentChar(c rune) bool {
	return unicode.IsLetter(c) || unicode.IsDigit(c) || c == '_' || c == '.'
}
