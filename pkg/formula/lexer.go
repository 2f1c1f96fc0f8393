package formula

import (
	"strconv"
	"strings"
	"unicode"
)

type tokenKind int

const (
	tokenNumber tokenKind = iota
	tokenIdent
	tokenPlus
	tokenMinus
	tokenStar
	tokenSlash
	tokenLeftParen
	tokenRightParen
	tokenComma
	tokenEOF
)

type token struct {
	kind  tokenKind
	text  string
	value float64
	pos   int
}

// operators that exist in common expression languages but sit outside the
// closed set; reported as UnsupportedOperator rather than a generic parse
// failure so template authors get an actionable message
const unsupportedOperatorChars = "%^&|!<>=~?"

type lexer struct {
	input string
	pos   int
}

func newLexer(input string) *lexer {
	return &lexer{input: input}
}

func (l *lexer) tokenize() ([]token, error) {
	var tokens []token
	for {
		tok, err := l.next()
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, tok)
		if tok.kind == tokenEOF {
			return tokens, nil
		}
	}
}

func (l *lexer) next() (token, error) {
	for l.pos < len(l.input) && unicode.IsSpace(rune(l.input[l.pos])) {
		l.pos++
	}
	if l.pos >= len(l.input) {
		return token{kind: tokenEOF, pos: l.pos}, nil
	}

	start := l.pos
	ch := l.input[l.pos]

	switch ch {
	case '+':
		l.pos++
		return token{kind: tokenPlus, text: "+", pos: start}, nil
	case '-':
		l.pos++
		return token{kind: tokenMinus, text: "-", pos: start}, nil
	case '*':
		l.pos++
		return token{kind: tokenStar, text: "*", pos: start}, nil
	case '/':
		l.pos++
		return token{kind: tokenSlash, text: "/", pos: start}, nil
	case '(':
		l.pos++
		return token{kind: tokenLeftParen, text: "(", pos: start}, nil
	case ')':
		l.pos++
		return token{kind: tokenRightParen, text: ")", pos: start}, nil
	case ',':
		l.pos++
		return token{kind: tokenComma, text: ",", pos: start}, nil
	}

	if strings.ContainsRune(unsupportedOperatorChars, rune(ch)) {
		return token{}, &UnsupportedOperatorError{Operator: string(ch)}
	}

	if ch >= '0' && ch <= '9' {
		return l.lexNumber(start)
	}

	if isIdentStart(rune(ch)) {
		for l.pos < len(l.input) && isIdentPart(rune(l.input[l.pos])) {
			l.pos++
		}
		return token{kind: tokenIdent, text: l.input[start:l.pos], pos: start}, nil
	}

	// Everything else (quotes, dots outside numbers, brackets, ...) is
	// outside the language entirely
	return token{}, &ForbiddenConstructError{Construct: string(ch)}
}

func (l *lexer) lexNumber(start int) (token, error) {
	seenDot := false
	for l.pos < len(l.input) {
		c := l.input[l.pos]
		if c >= '0' && c <= '9' {
			l.pos++
			continue
		}
		if c == '.' && !seenDot {
			seenDot = true
			l.pos++
			continue
		}
		break
	}
	text := l.input[start:l.pos]
	value, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return token{}, &SyntaxError{Message: "invalid number '" + text + "'", Position: start}
	}
	return token{kind: tokenNumber, text: text, value: value, pos: start}, nil
}

func isIdentStart(r rune) bool {
	return r == '_' || unicode.IsLetter(r)
}

func isIdentPart(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}
