package gamedb

import (
	"fmt"
	"sort"
	"strings"
)

// VAttr is a user-defined (named) attribute definition. Deleting a vattr
// sets AFDeleted rather than removing the entry; the number stays
// reserved until a compaction pass reclaims it.
type VAttr struct {
	Number int
	Name   string
	Flags  int
}

// Deleted reports whether the definition is a tombstone.
func (v *VAttr) Deleted() bool {
	return v.Flags&AFDeleted != 0
}

var wellKnownByName = func() map[string]int {
	m := make(map[string]int, len(WellKnownAttrs))
	for num, name := range WellKnownAttrs {
		m[name] = num
	}
	return m
}()

// Database holds the complete in-memory game state: the object table
// indexed by dbref, the user attribute registry, and the header fields
// carried through dumps. All state lives here; there are no package
// globals, so independent databases can coexist in one process.
type Database struct {
	Version       int
	Format        int
	Flags         int
	Size          int
	NextAttr      int
	RecordPlayers int
	ModuleCount   int
	Objects       map[DBRef]*Object

	attrByNum  map[int]*VAttr
	attrByName map[string]*VAttr
}

// NewDatabase creates an empty Database.
func NewDatabase() *Database {
	return &Database{
		NextAttr:   A_USER_START,
		Objects:    make(map[DBRef]*Object),
		attrByNum:  make(map[int]*VAttr),
		attrByName: make(map[string]*VAttr),
	}
}

// NormalizeAttrName uppercases a user attribute name and truncates it to
// the wire-format limit.
func NormalizeAttrName(name string) string {
	name = strings.ToUpper(strings.TrimSpace(name))
	if len(name) >= VNameSize {
		name = name[:VNameSize-1]
	}
	return name
}

// DefineAttr registers a user attribute under an explicit number, as the
// flatfile reader does for +A records. An existing definition under the
// same number is replaced; a live definition under the same name but a
// different number is an error.
func (db *Database) DefineAttr(num int, name string, flags int) (*VAttr, error) {
	name = NormalizeAttrName(name)
	if name == "" {
		return nil, fmt.Errorf("gamedb: empty attribute name for attr %d", num)
	}
	if prev, ok := db.attrByName[name]; ok && prev.Number != num && !prev.Deleted() {
		return nil, fmt.Errorf("gamedb: attribute name %s already in use by attr %d", name, prev.Number)
	}
	if prev, ok := db.attrByNum[num]; ok {
		delete(db.attrByName, prev.Name)
	}
	v := &VAttr{Number: num, Name: name, Flags: flags}
	db.attrByNum[num] = v
	db.attrByName[name] = v
	if num >= db.NextAttr {
		db.NextAttr = num + 1
	}
	return v, nil
}

// AllocAttr mints a new user attribute from the next-free counter.
// Numbers whose low seven bits are zero are skipped; the historical
// storage format reserved those slots.
func (db *Database) AllocAttr(name string, flags int) (*VAttr, error) {
	num := db.NextAttr
	db.NextAttr++
	if num&0x7f == 0 {
		num = db.NextAttr
		db.NextAttr++
	}
	return db.DefineAttr(num, name, flags|AFDirty)
}

// MkAttr resolves an attribute name to its number, minting a new user
// attribute when the name is unseen. Built-in names take precedence.
func (db *Database) MkAttr(name string) (int, error) {
	name = NormalizeAttrName(name)
	if name == "" {
		return 0, fmt.Errorf("gamedb: empty attribute name")
	}
	if num, ok := wellKnownByName[name]; ok {
		return num, nil
	}
	if v, ok := db.attrByName[name]; ok && !v.Deleted() {
		return v.Number, nil
	}
	v, err := db.AllocAttr(name, 0)
	if err != nil {
		return 0, err
	}
	return v.Number, nil
}

// DeleteAttr tombstones a user attribute definition. Deleting an
// unknown number is a no-op.
func (db *Database) DeleteAttr(num int) {
	if v, ok := db.attrByNum[num]; ok {
		v.Flags |= AFDeleted
		delete(db.attrByName, v.Name)
	}
}

// AttrDef returns the user attribute definition for a number, or nil.
func (db *Database) AttrDef(num int) *VAttr {
	return db.attrByNum[num]
}

// AttrDefByName returns the live user attribute definition for a name.
func (db *Database) AttrDefByName(name string) *VAttr {
	v := db.attrByName[NormalizeAttrName(name)]
	if v == nil || v.Deleted() {
		return nil
	}
	return v
}

// AttrDefs returns all user attribute definitions, tombstones included,
// sorted by number.
func (db *Database) AttrDefs() []*VAttr {
	defs := make([]*VAttr, 0, len(db.attrByNum))
	for _, v := range db.attrByNum {
		defs = append(defs, v)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Number < defs[j].Number })
	return defs
}

// AttrName returns the canonical name for an attribute number, checking
// built-ins first, or "" if the number is unregistered.
func (db *Database) AttrName(num int) string {
	if name, ok := WellKnownAttrs[num]; ok {
		return name
	}
	if v, ok := db.attrByNum[num]; ok && !v.Deleted() {
		return v.Name
	}
	return ""
}

// MaxDBRef returns one past the highest dbref present.
func (db *Database) MaxDBRef() int {
	top := 0
	for ref := range db.Objects {
		if int(ref) >= top {
			top = int(ref) + 1
		}
	}
	return top
}

// CountPlayers returns the number of live player objects.
func (db *Database) CountPlayers() int {
	n := 0
	for _, obj := range db.Objects {
		if obj.ObjType() == TypePlayer && !obj.IsGoing() {
			n++
		}
	}
	return n
}

// GetAttr returns the attribute text stored on an object, with a found
// flag. Absent attributes are a normal result, never an error.
func (o *Object) GetAttr(num int) (string, bool) {
	i := sort.Search(len(o.Attrs), func(i int) bool { return o.Attrs[i].Number >= num })
	if i < len(o.Attrs) && o.Attrs[i].Number == num {
		return o.Attrs[i].Value, true
	}
	return "", false
}

// SetAttr stores attribute text on an object, keeping the attribute list
// ordered by number. Empty text clears the attribute.
func (o *Object) SetAttr(num int, value string) {
	if value == "" {
		o.ClearAttr(num)
		return
	}
	i := sort.Search(len(o.Attrs), func(i int) bool { return o.Attrs[i].Number >= num })
	if i < len(o.Attrs) && o.Attrs[i].Number == num {
		o.Attrs[i].Value = value
		return
	}
	o.Attrs = append(o.Attrs, Attribute{})
	copy(o.Attrs[i+1:], o.Attrs[i:])
	o.Attrs[i] = Attribute{Number: num, Value: value}
}

// ClearAttr removes an attribute from an object. Clearing an absent
// attribute is a no-op.
func (o *Object) ClearAttr(num int) {
	i := sort.Search(len(o.Attrs), func(i int) bool { return o.Attrs[i].Number >= num })
	if i < len(o.Attrs) && o.Attrs[i].Number == num {
		o.Attrs = append(o.Attrs[:i], o.Attrs[i+1:]...)
	}
}
