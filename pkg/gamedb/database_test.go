package gamedb

import "testing"

func TestAllocAttrSkipsReservedSlots(t *testing.T) {
	db := NewDatabase()
	if db.NextAttr != A_USER_START {
		t.Fatalf("NextAttr = %d, want %d", db.NextAttr, A_USER_START)
	}

	// 256 has its low seven bits clear, so the very first alloc already
	// skips one slot.
	v, err := db.AllocAttr("shoesize", 0)
	if err != nil {
		t.Fatalf("AllocAttr: %v", err)
	}
	if v.Number != A_USER_START+1 {
		t.Errorf("first alloc = %d, want %d", v.Number, A_USER_START+1)
	}
	if v.Name != "SHOESIZE" {
		t.Errorf("name = %q, want uppercased", v.Name)
	}

	// Push the counter to a slot with low seven bits clear and confirm
	// it is skipped.
	db.NextAttr = 384
	v, err = db.AllocAttr("hat", 0)
	if err != nil {
		t.Fatalf("AllocAttr: %v", err)
	}
	if v.Number != 385 {
		t.Errorf("alloc at reserved slot = %d, want 385", v.Number)
	}
}

func TestDefineAttrNameCollision(t *testing.T) {
	db := NewDatabase()
	if _, err := db.DefineAttr(300, "COLOR", 0); err != nil {
		t.Fatalf("DefineAttr: %v", err)
	}
	if _, err := db.DefineAttr(301, "COLOR", 0); err == nil {
		t.Errorf("expected error redefining COLOR under a new number")
	}

	// Redefining the same number is a replace, not a collision.
	if _, err := db.DefineAttr(300, "COLOUR", 0); err != nil {
		t.Fatalf("DefineAttr replace: %v", err)
	}
	if db.AttrDefByName("COLOR") != nil {
		t.Errorf("old name still resolves after replace")
	}
	if got := db.AttrDefByName("COLOUR"); got == nil || got.Number != 300 {
		t.Errorf("new name does not resolve to 300: %+v", got)
	}
}

func TestDeleteAttrTombstones(t *testing.T) {
	db := NewDatabase()
	v, err := db.DefineAttr(300, "DOOMED", 0)
	if err != nil {
		t.Fatalf("DefineAttr: %v", err)
	}
	db.DeleteAttr(300)
	if !v.Deleted() {
		t.Errorf("definition not tombstoned")
	}
	if db.AttrDefByName("DOOMED") != nil {
		t.Errorf("name still resolves after delete")
	}
	// The number stays reserved: the definition is still visible by number.
	if db.AttrDef(300) == nil {
		t.Errorf("number mapping removed, want tombstone kept")
	}
}

func TestMkAttrPrefersBuiltins(t *testing.T) {
	db := NewDatabase()
	num, err := db.MkAttr("desc")
	if err != nil {
		t.Fatalf("MkAttr: %v", err)
	}
	if num != 6 {
		t.Errorf("MkAttr(desc) = %d, want builtin 6", num)
	}

	num, err = db.MkAttr("frobnitz")
	if err != nil {
		t.Fatalf("MkAttr: %v", err)
	}
	if num < A_USER_START {
		t.Errorf("minted number %d below user range", num)
	}
	again, err := db.MkAttr("FROBNITZ")
	if err != nil {
		t.Fatalf("MkAttr: %v", err)
	}
	if again != num {
		t.Errorf("second lookup minted a new number: %d != %d", again, num)
	}
}

func TestObjectAttrListStaysSorted(t *testing.T) {
	o := &Object{}
	o.SetAttr(300, "c")
	o.SetAttr(6, "a")
	o.SetAttr(42, "b")
	for i := 1; i < len(o.Attrs); i++ {
		if o.Attrs[i-1].Number >= o.Attrs[i].Number {
			t.Fatalf("attr list out of order: %+v", o.Attrs)
		}
	}

	if v, ok := o.GetAttr(42); !ok || v != "b" {
		t.Errorf("GetAttr(42) = %q, %v", v, ok)
	}
	if _, ok := o.GetAttr(7); ok {
		t.Errorf("GetAttr(7) found, want absent")
	}

	// Setting empty text clears the entry.
	o.SetAttr(42, "")
	if _, ok := o.GetAttr(42); ok {
		t.Errorf("attr 42 still present after empty set")
	}
	o.ClearAttr(9999) // no-op
	if len(o.Attrs) != 2 {
		t.Errorf("len(Attrs) = %d, want 2", len(o.Attrs))
	}
}
