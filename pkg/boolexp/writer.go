package boolexp

import (
	"strconv"
	"strings"

	"github.com/crystal-mush/mushdb/pkg/gamedb"
)

// Unparse serializes a lock tree back to its text form. The text is
// always re-derived from the tree; ATR and EVAL leaves use the current
// canonical name for the attribute number, falling back to the bare
// number when no name is registered. A nil tree yields "".
func Unparse(db *gamedb.Database, b *gamedb.BoolExp) string {
	var s strings.Builder
	unparse(&s, db, b)
	return s.String()
}

func unparse(s *strings.Builder, db *gamedb.Database, b *gamedb.BoolExp) {
	if b == nil {
		return
	}
	switch b.Type {
	case gamedb.BoolIs:
		unary(s, db, IsToken, b)
	case gamedb.BoolCarry:
		unary(s, db, CarryToken, b)
	case gamedb.BoolIndir:
		unary(s, db, IndirToken, b)
	case gamedb.BoolOwner:
		unary(s, db, OwnerToken, b)
	case gamedb.BoolNot:
		unary(s, db, NotToken, b)
	case gamedb.BoolAnd:
		binary(s, db, AndToken, b)
	case gamedb.BoolOr:
		binary(s, db, OrToken, b)
	case gamedb.BoolConst:
		s.WriteString(strconv.Itoa(b.Thing))
	case gamedb.BoolAttr:
		leaf(s, db, ':', b)
	case gamedb.BoolEval:
		leaf(s, db, '/', b)
	}
}

func unary(s *strings.Builder, db *gamedb.Database, tok byte, b *gamedb.BoolExp) {
	s.WriteByte('(')
	s.WriteByte(tok)
	unparse(s, db, b.Sub1)
	s.WriteByte(')')
}

func binary(s *strings.Builder, db *gamedb.Database, tok byte, b *gamedb.BoolExp) {
	s.WriteByte('(')
	unparse(s, db, b.Sub1)
	s.WriteByte(tok)
	unparse(s, db, b.Sub2)
	s.WriteByte(')')
}

func leaf(s *strings.Builder, db *gamedb.Database, sep byte, b *gamedb.BoolExp) {
	if name := db.AttrName(b.Thing); name != "" {
		s.WriteString(name)
	} else {
		s.WriteString(strconv.Itoa(b.Thing))
	}
	s.WriteByte(sep)
	s.WriteString(b.StrVal)
}
