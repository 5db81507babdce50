package kvdb

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/crystal-mush/mushdb/pkg/events"
	"github.com/crystal-mush/mushdb/pkg/gamedb"
	"github.com/crystal-mush/mushdb/pkg/kvstore"
)

func testDB(t *testing.T) *gamedb.Database {
	t.Helper()
	db := gamedb.NewDatabase()
	db.Size = 151
	db.NextAttr = 258
	db.RecordPlayers = 1

	if _, err := db.DefineAttr(256, "COLOR", gamedb.AFVisual); err != nil {
		t.Fatalf("DefineAttr: %v", err)
	}
	if _, err := db.DefineAttr(257, "MOOD", 0); err != nil {
		t.Fatalf("DefineAttr: %v", err)
	}

	when := time.Unix(1234567890, 0)
	mkobj := func(ref gamedb.DBRef, name string, typ gamedb.ObjectType) *gamedb.Object {
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

	limbo := mkobj(0, "Limbo", gamedb.TypeRoom)
	limbo.Contents = 1
	limbo.SetAttr(gamedb.A_LOCK, "1")
	limbo.SetAttr(6, "The void.")
	limbo.Lock = &gamedb.BoolExp{Type: gamedb.BoolConst, Thing: 1}

	wizard := mkobj(1, "Wizard", gamedb.TypePlayer)
	wizard.Location = 0
	wizard.Pennies = 100
	wizard.SetAttr(256, "red")

	// Far enough out to land in a different object block.
	distant := mkobj(150, "Distant Gadget", gamedb.TypeThing)
	distant.SetAttr(257, "grumpy")

	db.Objects[0] = limbo
	db.Objects[1] = wizard
	db.Objects[150] = distant
	return db
}

func openMem(t *testing.T) *DB {
	t.Helper()
	store := kvstore.NewMem()
	if err := store.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return New(store, t.TempDir())
}

func TestLoadEmptyStore(t *testing.T) {
	d := openMem(t)
	if _, err := d.Load(context.Background()); !errors.Is(err, ErrNoMeta) {
		t.Fatalf("err = %v, want ErrNoMeta", err)
	}
}

func TestDumpLoadRoundTrip(t *testing.T) {
	d := openMem(t)
	src := testDB(t)

	if err := d.Dump(context.Background(), src); err != nil {
		t.Fatalf("Dump: %v", err)
	}
	db, err := d.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if db.Size != 151 || db.NextAttr != 258 || db.RecordPlayers != 1 {
		t.Errorf("header: size %d next %d record %d", db.Size, db.NextAttr, db.RecordPlayers)
	}
	if db.AttrName(256) != "COLOR" || db.AttrName(257) != "MOOD" {
		t.Errorf("defs: %q %q", db.AttrName(256), db.AttrName(257))
	}
	if def := db.AttrDef(256); def == nil || def.Flags != gamedb.AFVisual {
		t.Errorf("def flags: %+v", db.AttrDef(256))
	}

	limbo := db.Objects[0]
	if limbo == nil || limbo.Name != "Limbo" || limbo.Contents != 1 {
		t.Fatalf("Limbo = %+v", limbo)
	}
	if !limbo.Lock.Equal(&gamedb.BoolExp{Type: gamedb.BoolConst, Thing: 1}) {
		t.Errorf("lock not rebuilt: %+v", limbo.Lock)
	}
	if v, _ := limbo.GetAttr(6); v != "The void." {
		t.Errorf("desc = %q", v)
	}
	if db.Objects[1].Pennies != 100 {
		t.Errorf("pennies = %d", db.Objects[1].Pennies)
	}
	if !db.Objects[1].LastAccess.Equal(time.Unix(1234567890, 0)) {
		t.Errorf("access time = %v", db.Objects[1].LastAccess)
	}
	distant := db.Objects[150]
	if distant == nil {
		t.Fatal("object in second block lost")
	}
	if v, _ := distant.GetAttr(257); v != "grumpy" {
		t.Errorf("distant attr = %q", v)
	}
}

func TestDumpKeepsExactSize(t *testing.T) {
	d := openMem(t)
	src := testDB(t)

	// Object #150 sits at Size-1; the stored header must not grow past
	// the declared size on a plain round trip.
	if err := d.Dump(context.Background(), src); err != nil {
		t.Fatalf("Dump: %v", err)
	}
	db, err := d.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if db.Size != 151 {
		t.Errorf("size = %d, want 151", db.Size)
	}

	// A header that understates the populated range is widened to one
	// past the highest dbref.
	src.Size = 100
	if err := d.Dump(context.Background(), src); err != nil {
		t.Fatalf("second Dump: %v", err)
	}
	db, err = d.Load(context.Background())
	if err != nil {
		t.Fatalf("second Load: %v", err)
	}
	if db.Size != 151 {
		t.Errorf("widened size = %d, want 151", db.Size)
	}
}

func TestDumpDropsGoingObjects(t *testing.T) {
	d := openMem(t)
	src := testDB(t)

	if err := d.Dump(context.Background(), src); err != nil {
		t.Fatalf("Dump: %v", err)
	}
	src.Objects[150].Flags[0] |= gamedb.FlagGoing
	if err := d.Dump(context.Background(), src); err != nil {
		t.Fatalf("second Dump: %v", err)
	}

	db, err := d.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, ok := db.Objects[150]; ok {
		t.Error("going object still stored")
	}
	raw, err := d.Store().Get(kvstore.RefKey(150), kvstore.TypeAttribute)
	if err != nil || raw != nil {
		t.Errorf("stale attribute rollup: %v %v", raw, err)
	}
}

func TestDumpCleansStaleGenerations(t *testing.T) {
	d := openMem(t)
	src := testDB(t)
	if err := d.Dump(context.Background(), src); err != nil {
		t.Fatalf("Dump: %v", err)
	}

	// A much smaller successor database.
	small := gamedb.NewDatabase()
	small.Size = 1
	obj := testDB(t).Objects[0]
	obj.Contents = gamedb.Nothing
	small.Objects[0] = obj

	if err := d.Dump(context.Background(), small); err != nil {
		t.Fatalf("small Dump: %v", err)
	}
	db, err := d.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(db.Objects) != 1 {
		t.Errorf("object count = %d, want 1", len(db.Objects))
	}
	raw, err := d.Store().Get(kvstore.RefKey(150/objectBlockSize), kvstore.TypeObject)
	if err != nil || raw != nil {
		t.Errorf("stale object block survived: %v %v", raw, err)
	}
}

// failingStore wraps a backend and fails every object-block write.
type failingStore struct {
	kvstore.Backend
}

func (s *failingStore) Put(key, data []byte, rt kvstore.RecordType) error {
	if rt == kvstore.TypeObject {
		return fmt.Errorf("disk on fire")
	}
	return s.Backend.Put(key, data, rt)
}

func TestDumpAccumulatesFailures(t *testing.T) {
	store := kvstore.NewMem()
	if err := store.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	d := New(&failingStore{Backend: store}, t.TempDir())

	err := d.Dump(context.Background(), testDB(t))
	var de *DumpError
	if !errors.As(err, &de) {
		t.Fatalf("err = %v, want DumpError", err)
	}
	if de.Failed == 0 || de.First == nil {
		t.Errorf("DumpError = %+v", de)
	}
	// The info record still landed; the next load sees the store as
	// initialized rather than empty.
	if _, err := d.Load(context.Background()); errors.Is(err, ErrNoMeta) {
		t.Error("info record missing after partial dump")
	}
}

// echoModule persists one line of private state.
type echoModule struct {
	state string
}

func (m *echoModule) DumpFlatfile(f *os.File) error {
	_, err := fmt.Fprintf(f, "+V1\n%s\n", m.state)
	return err
}

func (m *echoModule) LoadFlatfile(f *os.File) error {
	data, err := io.ReadAll(f)
	if err != nil {
		return err
	}
	_, err = fmt.Sscanf(string(data), "+V1\n%s\n", &m.state)
	return err
}

func TestModuleFlatfiles(t *testing.T) {
	dir := t.TempDir()
	store := kvstore.NewMem()
	if err := store.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	d := New(store, dir)

	mod := &echoModule{state: "hello"}
	if err := d.RegisterModule("echo", mod); err != nil {
		t.Fatalf("RegisterModule: %v", err)
	}
	if err := d.RegisterModule("echo", mod); err == nil {
		t.Error("duplicate registration accepted")
	}

	if err := d.Dump(context.Background(), testDB(t)); err != nil {
		t.Fatalf("Dump: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "mod_echo.db")); err != nil {
		t.Fatalf("module flatfile missing: %v", err)
	}

	mod.state = ""
	if _, err := d.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if mod.state != "hello" {
		t.Errorf("module state = %q", mod.state)
	}
}

func TestLifecycleEvents(t *testing.T) {
	d := openMem(t)
	bus := events.NewBus()
	var seen []events.Event
	bus.SubscribeGlobal(events.Func(func(ev events.Event) {
		seen = append(seen, ev)
	}))
	d.SetBus(bus)

	if err := d.Dump(context.Background(), testDB(t)); err != nil {
		t.Fatalf("Dump: %v", err)
	}
	if _, err := d.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}

	var types []events.Type
	for _, ev := range seen {
		types = append(types, ev.Type)
	}
	want := []events.Type{events.EvDumpStart, events.EvDumpDone, events.EvLoadDone}
	if len(types) != len(want) {
		t.Fatalf("event types = %v, want %v", types, want)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Fatalf("event types = %v, want %v", types, want)
		}
	}
	if seen[1].Objects != 3 {
		t.Errorf("dump event objects = %d, want 3", seen[1].Objects)
	}
	if seen[2].AttrDefs != 2 {
		t.Errorf("load event attr defs = %d, want 2", seen[2].AttrDefs)
	}
}

func TestOpenUnknownBackend(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Backend = "gdbm"
	if _, err := Open(cfg); err == nil {
		t.Fatal("unknown backend accepted")
	}
}

func TestOpenBoltBackend(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DataDir = t.TempDir()
	d, err := Open(cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer d.Close()

	if err := d.Dump(context.Background(), testDB(t)); err != nil {
		t.Fatalf("Dump: %v", err)
	}
	db, err := d.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if db.Objects[0].Name != "Limbo" {
		t.Errorf("reload through bolt lost data")
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db.yaml")
	if err := os.WriteFile(path, []byte("backend: map\nmap_size: 8192\n"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Backend != "map" || cfg.MapSize != 8192 {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.DBFile != "netmush.kv" {
		t.Errorf("default db_file lost: %q", cfg.DBFile)
	}
}
