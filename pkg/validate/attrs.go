package validate

import (
	"fmt"

	"github.com/crystal-mush/mushdb/pkg/boolexp"
	"github.com/crystal-mush/mushdb/pkg/gamedb"
)

// AttrNumberChecker flags attribute numbers that fall outside the
// allocated range or sit in the user range without a definition.
type AttrNumberChecker struct{}

func (c *AttrNumberChecker) Name() string { return "attr-numbers" }

func (c *AttrNumberChecker) Check(db *gamedb.Database) []Finding {
	var findings []Finding
	for _, obj := range db.Objects {
		if obj.IsGoing() {
			continue
		}
		for _, a := range obj.Attrs {
			switch {
			case a.Number >= db.NextAttr:
				findings = append(findings, Finding{
					Category:    CatAttrNumber,
					Severity:    SevError,
					ObjectRef:   obj.DBRef,
					AttrNum:     a.Number,
					Description: fmt.Sprintf("#%d attribute %d is past the allocation watermark %d", obj.DBRef, a.Number, db.NextAttr),
				})
			case a.Number >= gamedb.A_USER_START:
				def := db.AttrDef(a.Number)
				if def == nil || def.Deleted() {
					findings = append(findings, Finding{
						Category:    CatAttrNumber,
						Severity:    SevWarning,
						ObjectRef:   obj.DBRef,
						AttrNum:     a.Number,
						Description: fmt.Sprintf("#%d attribute %d has no definition", obj.DBRef, a.Number),
					})
				}
			}
		}
	}
	return findings
}

// LockChecker parses every lock-bearing attribute and reports the ones
// that fail. An unparsable lock falls open in the running game.
type LockChecker struct{}

func (c *LockChecker) Name() string { return "locks" }

func (c *LockChecker) Check(db *gamedb.Database) []Finding {
	var findings []Finding
	for _, obj := range db.Objects {
		if obj.IsGoing() {
			continue
		}
		for _, a := range obj.Attrs {
			if a.Value == "" || !isLockAttr(db, a.Number) {
				continue
			}
			if _, err := boolexp.Parse(db, a.Value); err != nil {
				findings = append(findings, Finding{
					Category:    CatLock,
					Severity:    SevWarning,
					ObjectRef:   obj.DBRef,
					AttrNum:     a.Number,
					Description: fmt.Sprintf("#%d %s lock does not parse: %v", obj.DBRef, db.AttrName(a.Number), err),
				})
			}
		}
	}
	return findings
}

func isLockAttr(db *gamedb.Database, num int) bool {
	if flags, ok := gamedb.WellKnownAttrFlags[num]; ok {
		return flags&gamedb.AFIsLock != 0
	}
	if def := db.AttrDef(num); def != nil {
		return def.Flags&gamedb.AFIsLock != 0
	}
	return false
}
