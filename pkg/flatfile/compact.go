package flatfile

import (
	"github.com/crystal-mush/mushdb/pkg/gamedb"
)

// CleanTable is the attribute renumbering state built for a clean dump.
// NewNum maps old attribute number to output number, with 0 meaning the
// number is unused and its definition gets dropped. OldNum maps an
// output slot back to the definition that now lives there. Restricted
// to the used set, NewNum is a bijection: every used number maps to
// exactly one output number and no two collide.
type CleanTable struct {
	NewNum   []int
	OldNum   []int
	NextAttr int // first self-mapped slot, the new next-free number

	Deleted    int // vattr definitions dropped
	Renumbered int // vattr definitions that moved
}

// Map returns the output number for an old attribute number. Numbers
// outside the table (builtins below the user range are inside it) pass
// through unchanged.
func (t *CleanTable) Map(num int) int {
	if t == nil || num < 0 || num >= len(t.NewNum) {
		return num
	}
	if n := t.NewNum[num]; n != 0 {
		return n
	}
	return num
}

// BuildCleanTable computes the renumbering for a clean dump: mark every
// attribute number referenced by a live object as used (builtins are
// always used), then pair each unused slot from the bottom of the user
// range with the nearest used slot walking down from the top, recording
// the moves. Only numeric labels change; the attribute text itself is
// untouched.
func BuildCleanTable(db *gamedb.Database) *CleanTable {
	t := &CleanTable{
		NewNum: make([]int, db.NextAttr),
		OldNum: make([]int, db.NextAttr),
	}

	for n := 0; n < gamedb.A_USER_START && n < db.NextAttr; n++ {
		t.NewNum[n] = n
	}
	for _, obj := range db.Objects {
		for _, a := range obj.Attrs {
			if a.Number >= 0 && a.Number < db.NextAttr {
				t.NewNum[a.Number] = a.Number
				t.OldNum[a.Number] = a.Number
			}
		}
	}

	for _, vp := range db.AttrDefs() {
		if vp.Number < db.NextAttr && t.NewNum[vp.Number] == 0 {
			t.Deleted++
		}
	}

	// Pair free low slots with used high slots.
	for n, end := gamedb.A_USER_START, db.NextAttr-1; n < db.NextAttr && n < end; n++ {
		if t.NewNum[n] != 0 {
			continue
		}
		for end > n && t.NewNum[end] == 0 {
			end--
		}
		if end > n {
			t.OldNum[n] = end
			t.NewNum[end] = n
			t.NewNum[n] = n
			end--
		}
	}

	for n := gamedb.A_USER_START; n < db.NextAttr; n++ {
		if t.NewNum[n] != n && t.NewNum[n] != 0 {
			if db.AttrDef(n) != nil {
				t.Renumbered++
			}
		}
	}

	anxt := gamedb.A_USER_START
	for anxt < db.NextAttr && t.NewNum[anxt] == anxt {
		anxt++
	}
	t.NextAttr = anxt

	return t
}
