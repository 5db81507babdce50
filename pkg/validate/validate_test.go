package validate

import (
	"strings"
	"testing"
	"time"

	"github.com/crystal-mush/mushdb/pkg/gamedb"
)

func mkobj(ref gamedb.DBRef, name string, typ gamedb.ObjectType) *gamedb.Object {
	when := time.Unix(1, 0)
	o := &gamedb.Object{
		DBRef: ref, Name: name,
		Location: gamedb.Nothing, Zone: gamedb.Nothing, Contents: gamedb.Nothing,
		Exits: gamedb.Nothing, Link: gamedb.Nothing, Next: gamedb.Nothing,
		Owner: 1, Parent: gamedb.Nothing,
		LastAccess: when, LastMod: when, Created: when,
	}
	o.Flags[0] = int(typ)
	return o
}

func cleanDB() *gamedb.Database {
	db := gamedb.NewDatabase()
	room := mkobj(0, "Limbo", gamedb.TypeRoom)
	player := mkobj(1, "Wizard", gamedb.TypePlayer)
	room.Contents = 1
	player.Location = 0
	db.Objects[0] = room
	db.Objects[1] = player
	db.Size = 2
	return db
}

func countCat(findings []Finding, cat Category) int {
	n := 0
	for _, f := range findings {
		if f.Category == cat {
			n++
		}
	}
	return n
}

func TestCleanDatabaseHasNoFindings(t *testing.T) {
	findings := New(cleanDB()).Run()
	if len(findings) != 0 {
		var b strings.Builder
		Report(&b, findings)
		t.Fatalf("unexpected findings:\n%s", b.String())
	}
}

func TestDanglingReferences(t *testing.T) {
	db := cleanDB()
	obj := mkobj(2, "Adrift", gamedb.TypeThing)
	obj.Location = 99
	obj.Parent = 98
	obj.Zone = 97
	db.Objects[2] = obj
	db.Size = 3

	findings := New(db).Run()
	if n := countCat(findings, CatDanglingRef); n != 3 {
		t.Fatalf("dangling findings = %d, want 3:\n%+v", n, findings)
	}
	var sawWarn, sawErr bool
	for _, f := range findings {
		if f.Severity == SevWarning {
			sawWarn = true
		} else {
			sawErr = true
		}
	}
	if !sawWarn || !sawErr {
		t.Error("expected both a zone warning and location/parent errors")
	}
}

func TestGoingObjectsIgnored(t *testing.T) {
	db := cleanDB()
	obj := mkobj(2, "Doomed", gamedb.TypeThing)
	obj.Location = 99
	obj.Flags[0] |= gamedb.FlagGoing
	db.Objects[2] = obj

	if findings := New(db).Run(); len(findings) != 0 {
		t.Fatalf("going object reported: %+v", findings)
	}
}

func TestContentsChainLoop(t *testing.T) {
	db := cleanDB()
	a := mkobj(2, "A", gamedb.TypeThing)
	b := mkobj(3, "B", gamedb.TypeThing)
	a.Location, b.Location = 0, 0
	db.Objects[0].Contents = 2
	a.Next = 3
	b.Next = 2 // loop
	db.Objects[2] = a
	db.Objects[3] = b
	db.Size = 4

	findings := New(db).Run()
	if countCat(findings, CatChainLoop) == 0 {
		t.Fatalf("loop not detected: %+v", findings)
	}
}

func TestAttrNumberFindings(t *testing.T) {
	db := cleanDB()
	db.NextAttr = 260
	db.Objects[1].SetAttr(258, "no definition")
	db.Objects[1].SetAttr(500, "past watermark")

	findings := New(db).Run()
	if n := countCat(findings, CatAttrNumber); n != 2 {
		t.Fatalf("attr findings = %d, want 2:\n%+v", n, findings)
	}
	for _, f := range findings {
		if f.AttrNum == 500 && f.Severity != SevError {
			t.Error("watermark violation should be an error")
		}
		if f.AttrNum == 258 && f.Severity != SevWarning {
			t.Error("missing definition should be a warning")
		}
	}
}

func TestUnparsableLock(t *testing.T) {
	db := cleanDB()
	db.Objects[0].SetAttr(gamedb.A_LOCK, "(1")

	findings := New(db).Run()
	if countCat(findings, CatLock) != 1 {
		t.Fatalf("lock findings: %+v", findings)
	}
}

func TestSummary(t *testing.T) {
	db := cleanDB()
	obj := mkobj(2, "Adrift", gamedb.TypeThing)
	obj.Location = 99
	obj.Zone = 97
	db.Objects[2] = obj

	v := New(db)
	v.Run()
	errs, warns := v.Summary()
	if errs != 1 || warns != 1 {
		t.Errorf("summary = %d errors %d warnings", errs, warns)
	}
}
