package validate

import (
	"fmt"

	"github.com/crystal-mush/mushdb/pkg/gamedb"
)

// IntegrityChecker verifies that every object reference points at a
// live object and that the contents and exits chains terminate.
type IntegrityChecker struct{}

func (c *IntegrityChecker) Name() string { return "integrity" }

func (c *IntegrityChecker) Check(db *gamedb.Database) []Finding {
	var findings []Finding

	exists := func(ref gamedb.DBRef) bool {
		obj, ok := db.Objects[ref]
		return ok && !obj.IsGoing()
	}

	dangling := func(obj *gamedb.Object, what string, ref gamedb.DBRef, sev Severity) {
		findings = append(findings, Finding{
			Category:    CatDanglingRef,
			Severity:    sev,
			ObjectRef:   obj.DBRef,
			Description: fmt.Sprintf("#%d %s #%d does not exist", obj.DBRef, what, ref),
		})
	}

	for _, obj := range db.Objects {
		if obj.IsGoing() {
			continue
		}
		if obj.Location != gamedb.Nothing && obj.Location != gamedb.Ambiguous && obj.Location != gamedb.Home && !exists(obj.Location) {
			dangling(obj, "location", obj.Location, SevError)
		}
		if obj.Contents != gamedb.Nothing && !exists(obj.Contents) {
			dangling(obj, "contents head", obj.Contents, SevError)
		}
		if obj.Exits != gamedb.Nothing && !exists(obj.Exits) {
			dangling(obj, "exits head", obj.Exits, SevError)
		}
		if obj.Next != gamedb.Nothing && !exists(obj.Next) {
			dangling(obj, "next", obj.Next, SevError)
		}
		if obj.Link != gamedb.Nothing && obj.Link != gamedb.Home && !exists(obj.Link) {
			dangling(obj, "link", obj.Link, SevWarning)
		}
		if obj.Parent != gamedb.Nothing && !exists(obj.Parent) {
			dangling(obj, "parent", obj.Parent, SevError)
		}
		if obj.Zone != gamedb.Nothing && !exists(obj.Zone) {
			dangling(obj, "zone", obj.Zone, SevWarning)
		}
		if obj.Owner != gamedb.Nothing {
			if owner, ok := db.Objects[obj.Owner]; !ok {
				dangling(obj, "owner", obj.Owner, SevError)
			} else if owner.ObjType() != gamedb.TypePlayer && obj.Owner != 1 {
				findings = append(findings, Finding{
					Category:    CatDanglingRef,
					Severity:    SevWarning,
					ObjectRef:   obj.DBRef,
					Description: fmt.Sprintf("#%d owner #%d is not a player (type=%s)", obj.DBRef, obj.Owner, owner.ObjType()),
				})
			}
		}

		findings = append(findings, c.checkChain(db, obj, "contents", obj.Contents)...)
		findings = append(findings, c.checkChain(db, obj, "exits", obj.Exits)...)
	}
	return findings
}

// checkChain follows a Next chain looking for a cycle. Dangling links
// mid-chain are already reported per object, so the walk just stops
// there.
func (c *IntegrityChecker) checkChain(db *gamedb.Database, obj *gamedb.Object, what string, head gamedb.DBRef) []Finding {
	seen := make(map[gamedb.DBRef]bool)
	for ref := head; ref != gamedb.Nothing; {
		if seen[ref] {
			return []Finding{{
				Category:    CatChainLoop,
				Severity:    SevError,
				ObjectRef:   obj.DBRef,
				Description: fmt.Sprintf("#%d %s chain loops at #%d", obj.DBRef, what, ref),
			}}
		}
		seen[ref] = true
		next, ok := db.Objects[ref]
		if !ok {
			return nil
		}
		ref = next.Next
	}
	return nil
}
