// Package boolexp parses and serializes the boolean lock-expression
// mini-language stored inside lock attribute text. A nil tree is the
// TRUE expression (unlocked). Attribute-name leaves resolve through the
// database's attribute registry, minting new user attributes for unseen
// names, which is why every entry point takes the database.
package boolexp

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/crystal-mush/mushdb/pkg/gamedb"
)

// Lock expression token characters.
const (
	NotToken   = '!'
	AndToken   = '&'
	OrToken    = '|'
	IndirToken = '@'
	CarryToken = '+'
	IsToken    = '='
	OwnerToken = '$'
)

// ParseError reports malformed lock text with its position. Line counts
// newlines seen inside the expression; Offset is bytes from the start of
// the expression.
type ParseError struct {
	Line   int
	Offset int
	Msg    string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("boolexp: %s (line %d, offset %d)", e.Msg, e.Line, e.Offset)
}

type parser struct {
	r      *bufio.Reader
	db     *gamedb.Database
	line   int
	offset int
}

func (p *parser) errf(format string, args ...interface{}) error {
	return &ParseError{Line: p.line, Offset: p.offset, Msg: fmt.Sprintf(format, args...)}
}

func (p *parser) readByte() (byte, error) {
	b, err := p.r.ReadByte()
	if err != nil {
		return 0, err
	}
	p.offset++
	if b == '\n' {
		p.line++
	}
	return b, nil
}

func (p *parser) unreadByte(b byte) {
	p.r.UnreadByte()
	p.offset--
	if b == '\n' {
		p.line--
	}
}

func (p *parser) peekByte() (byte, error) {
	b, err := p.r.Peek(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// Read parses one lock expression from r, leaving the terminating
// newline unconsumed. The flatfile reader shares its buffered reader
// with this parser so header locks can be decoded in-stream.
func Read(db *gamedb.Database, r *bufio.Reader) (*gamedb.BoolExp, error) {
	p := &parser{r: r, db: db}
	return p.parseExpr()
}

// Parse parses a complete lock expression from a string.
func Parse(db *gamedb.Database, s string) (*gamedb.BoolExp, error) {
	if !strings.HasSuffix(s, "\n") {
		s += "\n"
	}
	p := &parser{r: bufio.NewReader(strings.NewReader(s)), db: db}
	b, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if c, err := p.readByte(); err != nil || c != '\n' {
		return nil, p.errf("trailing garbage after expression")
	}
	return b, nil
}

func (p *parser) parseExpr() (*gamedb.BoolExp, error) {
	c, err := p.readByte()
	if err != nil {
		return nil, p.errf("unexpected end of input")
	}

	switch c {
	case '\n':
		p.unreadByte(c)
		return nil, nil

	case '(':
		return p.parseGroup()

	case '-':
		// Obsolete NOTHING key. Eat through the newline.
		for {
			c, err = p.readByte()
			if err != nil {
				return nil, p.errf("unexpected end of input in obsolete key")
			}
			if c == '\n' {
				p.unreadByte(c)
				return nil, nil
			}
		}

	case '"':
		p.unreadByte(c)
		return p.parseQuotedLeaf()

	default:
		p.unreadByte(c)
		return p.parseLeaf()
	}
}

func (p *parser) parseGroup() (*gamedb.BoolExp, error) {
	c, err := p.readByte()
	if err != nil {
		return nil, p.errf("unexpected end of input after '('")
	}

	var unary gamedb.BoolExpType
	switch c {
	case NotToken:
		unary = gamedb.BoolNot
	case IndirToken:
		unary = gamedb.BoolIndir
	case IsToken:
		unary = gamedb.BoolIs
	case CarryToken:
		unary = gamedb.BoolCarry
	case OwnerToken:
		unary = gamedb.BoolOwner
	default:
		// Binary group: sub1 (&||) sub2
		p.unreadByte(c)
		sub1, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		op, err := p.skipNewlineByte()
		if err != nil {
			return nil, p.errf("unexpected end of input in group")
		}
		b := &gamedb.BoolExp{Sub1: sub1}
		switch op {
		case AndToken:
			b.Type = gamedb.BoolAnd
		case OrToken:
			b.Type = gamedb.BoolOr
		default:
			return nil, p.errf("expected '&' or '|', got %q", op)
		}
		if b.Sub2, err = p.parseExpr(); err != nil {
			return nil, err
		}
		return b, p.expectCloseParen()
	}

	sub, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	return &gamedb.BoolExp{Type: unary, Sub1: sub}, p.expectCloseParen()
}

// skipNewlineByte reads the next byte, treating a single newline as
// insignificant, matching the legacy reader's tolerance for line breaks
// before operators and closing parens.
func (p *parser) skipNewlineByte() (byte, error) {
	c, err := p.readByte()
	if err != nil {
		return 0, err
	}
	if c == '\n' {
		return p.readByte()
	}
	return c, nil
}

func (p *parser) expectCloseParen() error {
	c, err := p.skipNewlineByte()
	if err != nil {
		return p.errf("unexpected end of input, want ')'")
	}
	if c != ')' {
		return p.errf("expected ')', got %q", c)
	}
	return nil
}

// parseQuotedLeaf handles a quoted attribute name followed by ':' or '/'
// and the lock text, as written by dialects with quoted strings.
func (p *parser) parseQuotedLeaf() (*gamedb.BoolExp, error) {
	name, err := p.readQuoted()
	if err != nil {
		return nil, err
	}
	anum, err := p.db.MkAttr(name)
	if err != nil {
		return nil, p.errf("bad attribute name %q", name)
	}
	c, err := p.readByte()
	if err != nil {
		return nil, p.errf("unexpected end of input after quoted attribute")
	}
	b := &gamedb.BoolExp{Thing: anum}
	switch c {
	case ':':
		b.Type = gamedb.BoolAttr
	case '/':
		b.Type = gamedb.BoolEval
	default:
		return nil, p.errf("expected ':' or '/' after quoted attribute, got %q", c)
	}
	if next, err := p.peekByte(); err == nil && next == '"' {
		if b.StrVal, err = p.readQuoted(); err != nil {
			return nil, err
		}
	} else {
		b.StrVal = p.readLockText()
	}
	return b, nil
}

// parseLeaf handles a bare dbref constant, or a bare attribute name or
// number followed by ':' (attribute lock) or '/' (eval lock).
func (p *parser) parseLeaf() (*gamedb.BoolExp, error) {
	c, err := p.readByte()
	if err != nil {
		return nil, p.errf("unexpected end of input")
	}

	b := &gamedb.BoolExp{Type: gamedb.BoolConst}
	switch {
	case c >= '0' && c <= '9':
		b.Thing = int(c - '0')
		for {
			c, err = p.readByte()
			if err != nil {
				return nil, p.errf("unexpected end of input in number")
			}
			if c < '0' || c > '9' {
				break
			}
			b.Thing = b.Thing*10 + int(c-'0')
		}

	case (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z'):
		var name strings.Builder
		name.WriteByte(c)
		for {
			c, err = p.readByte()
			if err != nil {
				return nil, p.errf("unexpected end of input in attribute name")
			}
			if c == '\n' || c == ':' || c == '/' {
				break
			}
			name.WriteByte(c)
		}
		anum, err := p.db.MkAttr(name.String())
		if err != nil {
			return nil, p.errf("bad attribute name %q", name.String())
		}
		b.Thing = anum

	default:
		return nil, p.errf("unexpected character %q in expression", c)
	}

	if c == ':' || c == '/' {
		if c == '/' {
			b.Type = gamedb.BoolEval
		} else {
			b.Type = gamedb.BoolAttr
		}
		b.StrVal = p.readLockText()
		return b, nil
	}
	p.unreadByte(c)
	return b, nil
}

// readLockText reads lock text up to the next terminator without
// consuming it.
func (p *parser) readLockText() string {
	var s strings.Builder
	for {
		c, err := p.readByte()
		if err != nil {
			return s.String()
		}
		if c == '\n' || c == ')' || c == OrToken || c == AndToken {
			p.unreadByte(c)
			return s.String()
		}
		s.WriteByte(c)
	}
}

// readQuoted reads a "..." string where backslash escapes the next byte.
func (p *parser) readQuoted() (string, error) {
	c, err := p.readByte()
	if err != nil || c != '"' {
		return "", p.errf("expected quoted string")
	}
	var s strings.Builder
	for {
		c, err = p.readByte()
		if err != nil {
			return "", p.errf("unterminated quoted string")
		}
		switch c {
		case '"':
			return s.String(), nil
		case '\\':
			c, err = p.readByte()
			if err != nil {
				return "", p.errf("unterminated quoted string")
			}
			s.WriteByte(c)
		default:
			s.WriteByte(c)
		}
	}
}

// Eval walks a lock tree against an accessor. The host object for INDIR
// and ATR lookups comes from the database; text comparison for ATR locks
// is exact after case folding, the historic wildcard matcher staying
// with the command layer.
func Eval(db *gamedb.Database, player gamedb.DBRef, b *gamedb.BoolExp) bool {
	if b == nil {
		return true
	}
	switch b.Type {
	case gamedb.BoolAnd:
		return Eval(db, player, b.Sub1) && Eval(db, player, b.Sub2)
	case gamedb.BoolOr:
		return Eval(db, player, b.Sub1) || Eval(db, player, b.Sub2)
	case gamedb.BoolNot:
		return !Eval(db, player, b.Sub1)
	case gamedb.BoolConst:
		return int(player) == b.Thing
	case gamedb.BoolOwner:
		if b.Sub1 == nil || b.Sub1.Type != gamedb.BoolConst {
			return false
		}
		p, ok := db.Objects[player]
		target, ok2 := db.Objects[gamedb.DBRef(b.Sub1.Thing)]
		return ok && ok2 && p.Owner == target.Owner
	case gamedb.BoolCarry:
		if b.Sub1 == nil || b.Sub1.Type != gamedb.BoolConst {
			return false
		}
		p, ok := db.Objects[player]
		if !ok {
			return false
		}
		for ref := p.Contents; ref >= 0; {
			if int(ref) == b.Sub1.Thing {
				return true
			}
			o, ok := db.Objects[ref]
			if !ok {
				break
			}
			ref = o.Next
		}
		return false
	case gamedb.BoolIs:
		if b.Sub1 == nil || b.Sub1.Type != gamedb.BoolConst {
			return false
		}
		return int(player) == b.Sub1.Thing
	case gamedb.BoolAttr:
		p, ok := db.Objects[player]
		if !ok {
			return false
		}
		v, ok := p.GetAttr(b.Thing)
		return ok && strings.EqualFold(v, b.StrVal)
	default:
		// INDIR and EVAL need the expression evaluator; locked.
		return false
	}
}
