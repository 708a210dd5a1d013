package history

import (
	"fmt"
	"strings"
	"unicode"
)

// tokenKind classifies lexer output.
type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokString
	tokNumber
	tokPunct
)

func (k tokenKind) String() string {
	switch k {
	case tokEOF:
		return "end of statement"
	case tokIdent:
		return "identifier"
	case tokString:
		return "string"
	case tokNumber:
		return "number"
	case tokPunct:
		return "punctuation"
	}
	return "unknown"
}

// token is one lexical unit of a migration statement. Identifier text is
// lowercased so keyword matching and name normalization are uniform; string
// tokens carry the unescaped value without quotes.
type token struct {
	kind tokenKind
	text string
}

// lex splits a single SQL statement into tokens. The grammar is small and
// fixed, so anything outside it (operators, dollar quoting, comments) is a
// lex error that the caller downgrades to an unrecognized-shape warning.
func lex(input string) ([]token, error) {
	var toks []token
	runes := []rune(input)
	i := 0

	for i < len(runes) {
		r := runes[i]
		switch {
		case unicode.IsSpace(r):
			i++

		case r == '\'':
			val, next, err := lexString(runes, i)
			if err != nil {
				return nil, err
			}
			toks = append(toks, token{kind: tokString, text: val})
			i = next

		case unicode.IsLetter(r) || r == '_':
			start := i
			for i < len(runes) && (unicode.IsLetter(runes[i]) || unicode.IsDigit(runes[i]) || runes[i] == '_') {
				i++
			}
			toks = append(toks, token{kind: tokIdent, text: strings.ToLower(string(runes[start:i]))})

		case unicode.IsDigit(r) || (r == '-' && i+1 < len(runes) && unicode.IsDigit(runes[i+1])):
			start := i
			i++
			for i < len(runes) && (unicode.IsDigit(runes[i]) || runes[i] == '.') {
				i++
			}
			toks = append(toks, token{kind: tokNumber, text: string(runes[start:i])})

		case r == '(' || r == ')' || r == ',':
			toks = append(toks, token{kind: tokPunct, text: string(r)})
			i++

		case r == ':' && i+1 < len(runes) && runes[i+1] == ':':
			toks = append(toks, token{kind: tokPunct, text: "::"})
			i += 2

		default:
			return nil, fmt.Errorf("unexpected character %q", string(r))
		}
	}

	return append(toks, token{kind: tokEOF}), nil
}

// lexString reads a single-quoted literal starting at runes[start], handling
// the doubled-quote escape. Returns the unescaped value and the index after
// the closing quote.
func lexString(runes []rune, start int) (string, int, error) {
	var sb strings.Builder
	i := start + 1
	for i < len(runes) {
		if runes[i] == '\'' {
			if i+1 < len(runes) && runes[i+1] == '\'' {
				sb.WriteByte('\'')
				i += 2
				continue
			}
			return sb.String(), i + 1, nil
		}
		sb.WriteRune(runes[i])
		i++
	}
	return "", 0, fmt.Errorf("unterminated string literal")
}
