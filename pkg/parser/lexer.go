package parser

import (
	"fmt"
	"strings"
	"unicode"
)

type TokenType string

const (
	TokenIdentifier TokenType = "IDENTIFIER"
	TokenString     TokenType = "STRING"
	TokenNumber     TokenType = "NUMBER"
	TokenLBrace     TokenType = "LBRACE"
	TokenRBrace     TokenType = "RBRACE"
	TokenLBracket   TokenType = "LBRACKET"
	TokenRBracket   TokenType = "RBRACKET"
	TokenEquals     TokenType = "EQUALS"
	TokenComma      TokenType = "COMMA"
	TokenNewline    TokenType = "NEWLINE"
	TokenEOF        TokenType = "EOF"
	TokenError      TokenType = "ERROR"
)

type Token struct {
	Type    TokenType
	Literal string
	Line    int
	Column  int
}

// Lexer turns rigz source into tokens. Newlines are significant (they end
// a statement) so they are emitted as tokens; `;` is treated as a newline.
type Lexer struct {
	input        string
	position     int
	readPosition int
	ch           byte
	line         int
	col          int
}

func NewLexer(input string) *Lexer {
	l := &Lexer{input: input, line: 1, col: 0}
	l.readChar()
	return l
}

func (l *Lexer) readChar() {
	if l.readPosition >= len(l.input) {
		l.ch = 0
	} else {
		l.ch = l.input[l.readPosition]
	}
	l.position = l.readPosition
	l.readPosition++
	l.col++
}

func (l *Lexer) NextToken() Token {
	if msg := l.skipWhitespaceAndComments(); msg != "" {
		return Token{Type: TokenError, Literal: msg, Line: l.line, Column: l.col}
	}

	if l.atEOF() {
		return Token{Type: TokenEOF, Line: l.line, Column: l.col}
	}

	var tok Token
	switch l.ch {
	case '\n', ';':
		tok = l.newToken(TokenNewline, string(l.ch))
		if l.ch == '\n' {
			l.line++
			l.col = 0
			l.readChar()
			return tok
		}
	case '{':
		tok = l.newToken(TokenLBrace, "{")
	case '}':
		tok = l.newToken(TokenRBrace, "}")
	case '[':
		tok = l.newToken(TokenLBracket, "[")
	case ']':
		tok = l.newToken(TokenRBracket, "]")
	case '=':
		tok = l.newToken(TokenEquals, "=")
	case ',':
		tok = l.newToken(TokenComma, ",")
	case '"', '\'':
		tok = Token{Type: TokenString, Line: l.line, Column: l.col}
		lit, ok := l.readString(l.ch)
		if !ok {
			tok.Type = TokenError
			tok.Literal = "unterminated string"
			return tok
		}
		tok.Literal = lit
		return tok
	default:
		if isDigit(l.ch) || (l.ch == '-' && isDigit(l.peekChar())) {
			tok = Token{Type: TokenNumber, Line: l.line, Column: l.col}
			tok.Literal = l.readNumber()
			return tok
		}
		if isIdentStart(l.ch) {
			tok = Token{Type: TokenIdentifier, Line: l.line, Column: l.col}
			tok.Literal = l.readIdentifier()
			return tok
		}
		tok = l.newToken(TokenError, fmt.Sprintf("unexpected character %q", l.ch))
	}

	l.readChar()
	return tok
}

func (l *Lexer) newToken(tokenType TokenType, lit string) Token {
	return Token{Type: tokenType, Literal: lit, Line: l.line, Column: l.col}
}

func (l *Lexer) readIdentifier() string {
	position := l.position
	for isIdentPart(l.ch) {
		l.readChar()
	}
	return l.input[position:l.position]
}

func (l *Lexer) readNumber() string {
	position := l.position
	if l.ch == '-' {
		l.readChar()
	}
	for isDigit(l.ch) || l.ch == '_' {
		l.readChar()
	}
	if l.ch == '.' && isDigit(l.peekChar()) {
		l.readChar()
		for isDigit(l.ch) || l.ch == '_' {
			l.readChar()
		}
	}
	return l.input[position:l.position]
}

func (l *Lexer) readString(quote byte) (string, bool) {
	l.readChar() // opening quote
	var sb strings.Builder

	for l.ch != quote {
		if l.atEOF() {
			return sb.String(), false
		}
		if l.ch == '\\' {
			l.readChar()
			if l.atEOF() {
				return sb.String(), false
			}
			switch l.ch {
			case 'n':
				sb.WriteByte('\n')
			case 't':
				sb.WriteByte('\t')
			case 'r':
				sb.WriteByte('\r')
			case '"', '\'', '\\':
				sb.WriteByte(l.ch)
			default:
				sb.WriteByte('\\')
				sb.WriteByte(l.ch)
			}
		} else {
			if l.ch == '\n' {
				l.line++
				l.col = 0
			}
			sb.WriteByte(l.ch)
		}
		l.readChar()
	}

	l.readChar() // closing quote
	return sb.String(), true
}

// skipWhitespaceAndComments stops at newlines. It returns a non-empty
// message for an unterminated block comment.
func (l *Lexer) skipWhitespaceAndComments() string {
	for {
		if l.ch != '\n' && unicode.IsSpace(rune(l.ch)) {
			l.readChar()
			continue
		}
		if l.ch == '/' && l.peekChar() == '/' || l.ch == '#' {
			for l.ch != '\n' && !l.atEOF() {
				l.readChar()
			}
			continue
		}
		if l.ch == '/' && l.peekChar() == '*' {
			l.readChar()
			l.readChar()
			for !(l.ch == '*' && l.peekChar() == '/') {
				if l.atEOF() {
					return "unterminated block comment"
				}
				if l.ch == '\n' {
					l.line++
					l.col = 0
				}
				l.readChar()
			}
			l.readChar()
			l.readChar()
			continue
		}
		return ""
	}
}

// atEOF distinguishes the end of input from a NUL byte in it.
func (l *Lexer) atEOF() bool { return l.position >= len(l.input) }

func (l *Lexer) peekChar() byte {
	if l.readPosition >= len(l.input) {
		return 0
	}
	return l.input[l.readPosition]
}

func isLetter(ch byte) bool {
	return 'a' <= ch && ch <= 'z' || 'A' <= ch && ch <= 'Z'
}

func isDigit(ch byte) bool {
	return '0' <= ch && ch <= '9'
}

// Symbols may be prefixed with ':' and dotted (module.symbol).
func isIdentStart(ch byte) bool {
	return isLetter(ch) || ch == '_' || ch == ':' || ch == '$'
}

func isIdentPart(ch byte) bool {
	return isIdentStart(ch) || isDigit(ch) || ch == '.' || ch == '-' || ch == '!' || ch == '?'
}
