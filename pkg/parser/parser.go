// Package parser turns rigz source text into Programs: ordered lists of
// function call statements.
//
//	puts 'Hello World'
//	let { accounts = [1, 2, 3] }
//	allow { variables { account = one_of [1, 2, 3] } }
//
// A statement is a symbol, comma separated arguments and an optional
// trailing `{ ... }` or `[ ... ]` block, all on one line (blocks may span
// lines). A block literal in the last position is the statement's
// definition; to pass it as a plain argument, follow it with a comma.
package parser

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"rigz/pkg/value"
)

type Config struct {
	// Use64BitNumbers parses integers as Long and decimals as Double.
	// Otherwise integers are Int (Long when they do not fit) and decimals
	// are Float.
	Use64BitNumbers bool `json:"use_64_bit_numbers"`
}

// Program is one source unit.
type Program struct {
	Name       string
	Statements []value.FunctionCall
}

// Error is a parse failure with its source position.
type Error struct {
	Filename string
	Line     int
	Col      int
	Message  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s:%d:%d: %s", e.Filename, e.Line, e.Col, e.Message)
}

// ParseFile reads and parses path. The program is named after the file.
func ParseFile(path string, cfg Config) (Program, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Program{}, err
	}
	return Parse(filepath.Base(path), string(data), cfg)
}

func Parse(name, src string, cfg Config) (Program, error) {
	p := &parser{filename: name, cfg: cfg}
	l := NewLexer(src)
	for {
		tok := l.NextToken()
		if tok.Type == TokenError {
			return Program{}, p.errorAt(tok, "%s", tok.Literal)
		}
		p.toks = append(p.toks, tok)
		if tok.Type == TokenEOF {
			break
		}
	}

	prog := Program{Name: name}
	for {
		p.skipNewlines()
		if p.peek().Type == TokenEOF {
			return prog, nil
		}
		stmt, err := p.statement()
		if err != nil {
			return Program{}, err
		}
		prog.Statements = append(prog.Statements, stmt)
	}
}

type parser struct {
	filename string
	cfg      Config
	toks     []Token
	pos      int
}

func (p *parser) peek() Token { return p.toks[p.pos] }

func (p *parser) next() Token {
	tok := p.toks[p.pos]
	if tok.Type != TokenEOF {
		p.pos++
	}
	return tok
}

func (p *parser) skipNewlines() {
	for p.peek().Type == TokenNewline {
		p.next()
	}
}

func (p *parser) errorAt(tok Token, format string, args ...any) error {
	return &Error{Filename: p.filename, Line: tok.Line, Col: tok.Column, Message: fmt.Sprintf(format, args...)}
}

func (p *parser) expect(tt TokenType) (Token, error) {
	tok := p.next()
	if tok.Type != tt {
		return tok, p.errorAt(tok, "expected %s, got %s", tt, describe(tok))
	}
	return tok, nil
}

func describe(tok Token) string {
	switch tok.Type {
	case TokenEOF:
		return "end of input"
	case TokenNewline:
		return "end of line"
	}
	return fmt.Sprintf("%s %q", tok.Type, tok.Literal)
}

func isKeyword(s string) bool {
	return s == "true" || s == "false" || s == "none"
}

func (p *parser) statement() (value.FunctionCall, error) {
	tok := p.next()
	if tok.Type != TokenIdentifier || isKeyword(tok.Literal) {
		return value.FunctionCall{}, p.errorAt(tok, "expected symbol, got %s", describe(tok))
	}
	fc := value.FunctionCall{Name: tok.Literal}

	var (
		args      []value.Value
		lastBlock *value.Definition
	)
	for {
		switch p.peek().Type {
		case TokenNewline, TokenEOF:
			if lastBlock != nil {
				args = args[:len(args)-1]
				fc.Definition = *lastBlock
			}
			fc.Args = args
			return fc, nil
		}

		if len(args) > 0 {
			if t := p.peek().Type; lastBlock == nil && (t == TokenLBrace || t == TokenLBracket) {
				def, err := p.nestedCall(fc.Name)
				if err != nil {
					return value.FunctionCall{}, err
				}
				if tok := p.peek(); tok.Type != TokenNewline && tok.Type != TokenEOF {
					return value.FunctionCall{}, p.errorAt(tok, "expected end of statement, got %s", describe(tok))
				}
				fc.Args = args
				fc.Definition = def.Definition
				return fc, nil
			}
			if _, err := p.expect(TokenComma); err != nil {
				return value.FunctionCall{}, err
			}
			lastBlock = nil
			// A trailing comma may continue the statement on the next line.
			p.skipNewlines()
		}

		start := p.peek().Type
		v, err := p.value()
		if err != nil {
			return value.FunctionCall{}, err
		}
		args = append(args, v)

		switch start {
		case TokenLBrace:
			m, _ := v.AsObject()
			d := value.One(m)
			lastBlock = &d
		case TokenLBracket:
			items, _ := v.AsList()
			d := value.Many(items)
			lastBlock = &d
		}
	}
}

// value parses one literal, block or call-valued identifier.
func (p *parser) value() (value.Value, error) {
	tok := p.peek()
	switch tok.Type {
	case TokenString:
		p.next()
		return value.String(tok.Literal), nil
	case TokenNumber:
		p.next()
		return p.number(tok)
	case TokenLBrace:
		m, err := p.object()
		if err != nil {
			return value.None(), err
		}
		return value.Object(m), nil
	case TokenLBracket:
		items, err := p.list()
		if err != nil {
			return value.None(), err
		}
		return value.List(items), nil
	case TokenIdentifier:
		p.next()
		switch tok.Literal {
		case "true":
			return value.Bool(true), nil
		case "false":
			return value.Bool(false), nil
		case "none":
			return value.None(), nil
		}
		fc, err := p.nestedCall(tok.Literal)
		if err != nil {
			return value.None(), err
		}
		return value.Call(fc), nil
	}
	p.next()
	return value.None(), p.errorAt(tok, "expected value, got %s", describe(tok))
}

// nestedCall is an identifier in value position, optionally followed by
// a block that becomes its definition.
func (p *parser) nestedCall(name string) (value.FunctionCall, error) {
	fc := value.FunctionCall{Name: name}
	switch p.peek().Type {
	case TokenLBrace:
		m, err := p.object()
		if err != nil {
			return fc, err
		}
		fc.Definition = value.One(m)
	case TokenLBracket:
		items, err := p.list()
		if err != nil {
			return fc, err
		}
		fc.Definition = value.Many(items)
	}
	return fc, nil
}

func (p *parser) number(tok Token) (value.Value, error) {
	lit := strings.ReplaceAll(tok.Literal, "_", "")
	if strings.Contains(lit, ".") {
		if p.cfg.Use64BitNumbers {
			f, err := strconv.ParseFloat(lit, 64)
			if err != nil {
				return value.None(), p.errorAt(tok, "invalid number %q", tok.Literal)
			}
			return value.Double(f), nil
		}
		f, err := strconv.ParseFloat(lit, 32)
		if err != nil {
			return value.None(), p.errorAt(tok, "invalid number %q", tok.Literal)
		}
		return value.Float(float32(f)), nil
	}

	n, err := strconv.ParseInt(lit, 10, 64)
	if err != nil {
		return value.None(), p.errorAt(tok, "invalid number %q", tok.Literal)
	}
	if !p.cfg.Use64BitNumbers && n >= -1<<31 && n <= 1<<31-1 {
		return value.Int(int32(n)), nil
	}
	return value.Long(n), nil
}

// object parses `{ key = value, name { ... } }`. Entries are separated by
// commas or newlines. An entry without `=` is a nested call keyed by its
// own name.
func (p *parser) object() (map[string]value.Value, error) {
	if _, err := p.expect(TokenLBrace); err != nil {
		return nil, err
	}
	m := map[string]value.Value{}
	for {
		p.skipSeparators()
		tok := p.next()
		switch tok.Type {
		case TokenRBrace:
			return m, nil
		case TokenIdentifier, TokenString:
		default:
			return nil, p.errorAt(tok, "expected key, got %s", describe(tok))
		}

		if p.peek().Type == TokenEquals {
			p.next()
			v, err := p.value()
			if err != nil {
				return nil, err
			}
			m[tok.Literal] = v
			continue
		}
		if tok.Type == TokenString {
			nt := p.peek()
			return nil, p.errorAt(nt, "expected =, got %s", describe(nt))
		}
		fc, err := p.nestedCall(tok.Literal)
		if err != nil {
			return nil, err
		}
		m[tok.Literal] = value.Call(fc)
	}
}

func (p *parser) list() ([]value.Value, error) {
	if _, err := p.expect(TokenLBracket); err != nil {
		return nil, err
	}
	items := []value.Value{}
	for {
		p.skipSeparators()
		if p.peek().Type == TokenRBracket {
			p.next()
			return items, nil
		}
		v, err := p.value()
		if err != nil {
			return nil, err
		}
		items = append(items, v)
		if t := p.peek().Type; t != TokenComma && t != TokenNewline && t != TokenRBracket {
			tok := p.next()
			return nil, p.errorAt(tok, "expected , or ], got %s", describe(tok))
		}
	}
}

func (p *parser) skipSeparators() {
	for t := p.peek().Type; t == TokenNewline || t == TokenComma; t = p.peek().Type {
		p.next()
	}
}
