// Package kvdb moves the whole object database between memory and a
// kvstore backend. A load boots the in-memory Database at startup; a
// dump writes it back, either on a timer or on demand. Dumps never
// stop at the first bad record: failures are counted and reported
// after the pass so one corrupt object cannot block persistence of
// the rest.
package kvdb

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/crystal-mush/mushdb/pkg/boolexp"
	"github.com/crystal-mush/mushdb/pkg/events"
	"github.com/crystal-mush/mushdb/pkg/gamedb"
	"github.com/crystal-mush/mushdb/pkg/kvstore"
)

// DB ties a storage backend to the load/dump machinery.
type DB struct {
	store   kvstore.Backend
	dataDir string
	metrics *Metrics
	bus     *events.Bus

	// dumpMu serializes dumps so a timed dump and a manual one can
	// never interleave their writes.
	dumpMu sync.Mutex

	modMu   sync.Mutex
	modules []namedModule

	autoMu    sync.Mutex
	intervalc chan time.Duration
	stopc     chan struct{}
}

// New wraps an already-configured backend. The data directory holds
// module-private flatfiles.
func New(store kvstore.Backend, dataDir string) *DB {
	return &DB{store: store, dataDir: dataDir}
}

// Open builds the backend named by the configuration, points it at the
// configured file and initializes it.
func Open(cfg *Config) (*DB, error) {
	var store kvstore.Backend
	switch cfg.Backend {
	case "bolt":
		store = kvstore.NewBolt(kvstore.BoltOptions{})
	case "map":
		store = kvstore.NewMap(kvstore.MapOptions{InitialSize: cfg.MapSize})
	case "mem":
		store = kvstore.NewMem()
	default:
		return nil, fmt.Errorf("kvdb: unknown backend %q", cfg.Backend)
	}

	if cfg.Backend != "mem" {
		if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
			return nil, fmt.Errorf("kvdb: data directory: %w", err)
		}
		if err := store.SetFile(cfg.Path()); err != nil {
			return nil, err
		}
	}
	if err := store.Init(); err != nil {
		return nil, err
	}
	store.SetSync(cfg.Sync)
	return New(store, cfg.DataDir), nil
}

// Store exposes the underlying backend.
func (d *DB) Store() kvstore.Backend { return d.store }

// SetMetrics attaches registered metrics; nil disables them.
func (d *DB) SetMetrics(m *Metrics) { d.metrics = m }

// SetBus attaches an event bus for lifecycle notifications; nil
// disables them.
func (d *DB) SetBus(b *events.Bus) { d.bus = b }

// Close stops the timed dump and closes the backend.
func (d *DB) Close() error {
	d.StopAutoDump()
	return d.store.Close()
}

// Optimize compacts the backend file.
func (d *DB) Optimize() error {
	d.dumpMu.Lock()
	defer d.dumpMu.Unlock()
	if err := d.store.Optimize(); err != nil {
		return err
	}
	d.bus.Emit(events.Event{Type: events.EvOptimize})
	return nil
}

// DumpError reports a dump that finished but could not write every
// record.
type DumpError struct {
	Failed int
	First  error
}

func (e *DumpError) Error() string {
	return fmt.Sprintf("kvdb: dump finished with %d failed records (first: %v)", e.Failed, e.First)
}

func (e *DumpError) Unwrap() error { return e.First }

// Load boots a Database from the store. A store with no database info
// record returns ErrNoMeta, which callers treat as "new game".
func (d *DB) Load(ctx context.Context) (*gamedb.Database, error) {
	raw, err := d.store.Get(metaKey, kvstore.TypeDBInfo)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, ErrNoMeta
	}
	m, err := decodeMeta(raw)
	if err != nil {
		return nil, err
	}

	db := gamedb.NewDatabase()
	db.Size = m.Size
	db.NextAttr = m.NextAttr
	db.RecordPlayers = m.RecordPlayers
	db.ModuleCount = len(d.modules)

	attrDefs := 0
	for idx := 0; idx < numBlocks(m.NextAttr, atrNumBlockSize); idx++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		raw, err := d.store.Get(kvstore.RefKey(idx), kvstore.TypeAttrNum)
		if err != nil {
			return nil, err
		}
		if raw == nil {
			continue
		}
		defs, err := decodeAttrDefBlock(raw)
		if err != nil {
			return nil, fmt.Errorf("kvdb: attribute block %d: %w", idx, err)
		}
		for _, def := range defs {
			if _, err := db.DefineAttr(def.Number, def.Name, def.Flags); err != nil {
				log.Printf("kvdb: bad attribute definition %d: %v", def.Number, err)
				continue
			}
			attrDefs++
		}
	}

	for idx := 0; idx < numBlocks(m.Size, objectBlockSize); idx++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		raw, err := d.store.Get(kvstore.RefKey(idx), kvstore.TypeObject)
		if err != nil {
			return nil, err
		}
		if raw == nil {
			continue
		}
		objs, err := decodeObjectBlock(raw)
		if err != nil {
			return nil, fmt.Errorf("kvdb: object block %d: %w", idx, err)
		}
		for _, obj := range objs {
			if err := d.loadAttrs(obj); err != nil {
				return nil, err
			}
			db.Objects[obj.DBRef] = obj
			if int(obj.DBRef) >= db.Size {
				db.Size = int(obj.DBRef) + 1
			}
		}
	}

	// Rebuild lock trees from the stored lock text.
	for _, obj := range db.Objects {
		if text, ok := obj.GetAttr(gamedb.A_LOCK); ok && text != "" {
			lock, err := boolexp.Parse(db, text)
			if err != nil {
				log.Printf("kvdb: object #%d has an unparsable lock %q: %v", obj.DBRef, text, err)
				continue
			}
			obj.Lock = lock
		}
	}

	if err := d.loadModules(); err != nil {
		return nil, err
	}

	d.metrics.observeLoad(len(db.Objects), attrDefs)
	d.bus.Emit(events.Event{Type: events.EvLoadDone, Objects: len(db.Objects), AttrDefs: attrDefs})
	return db, nil
}

func (d *DB) loadAttrs(obj *gamedb.Object) error {
	raw, err := d.store.Get(kvstore.RefKey(int(obj.DBRef)), kvstore.TypeAttribute)
	if err != nil {
		return err
	}
	if raw == nil {
		return nil
	}
	attrs, err := gamedb.DecodeAttrBlock(raw)
	if err != nil {
		return fmt.Errorf("kvdb: attributes of #%d: %w", obj.DBRef, err)
	}
	obj.Attrs = attrs
	return nil
}

// Dump writes the database back to the store. The info record goes
// last so a crash mid-dump leaves the previous generation readable.
func (d *DB) Dump(ctx context.Context, db *gamedb.Database) error {
	d.dumpMu.Lock()
	defer d.dumpMu.Unlock()

	start := time.Now()
	d.bus.Emit(events.Event{Type: events.EvDumpStart, Objects: len(db.Objects)})
	failed := 0
	var first error
	record := func(err error) {
		failed++
		if first == nil {
			first = err
		}
	}

	var old *meta
	if raw, err := d.store.Get(metaKey, kvstore.TypeDBInfo); err == nil && raw != nil {
		old, _ = decodeMeta(raw)
	}

	size := db.Size
	if max := db.MaxDBRef(); max > size {
		size = max
	}

	// Attribute definition blocks.
	defBlocks := make(map[int][]*gamedb.VAttr)
	for _, def := range db.AttrDefs() {
		if def.Deleted() {
			continue
		}
		idx := def.Number / atrNumBlockSize
		defBlocks[idx] = append(defBlocks[idx], def)
	}
	attrBlockCount := numBlocks(db.NextAttr, atrNumBlockSize)
	for idx := 0; idx < attrBlockCount; idx++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if defs := defBlocks[idx]; len(defs) > 0 {
			if err := d.store.Put(kvstore.RefKey(idx), encodeAttrDefBlock(defs), kvstore.TypeAttrNum); err != nil {
				record(err)
			}
		} else if err := d.store.Del(kvstore.RefKey(idx), kvstore.TypeAttrNum); err != nil {
			record(err)
		}
	}

	// Object header blocks, Going objects left out.
	written := 0
	objBlocks := make(map[int][]*gamedb.Object)
	for ref := 0; ref < size; ref++ {
		obj, ok := db.Objects[gamedb.DBRef(ref)]
		if !ok || obj.IsGoing() {
			continue
		}
		objBlocks[ref/objectBlockSize] = append(objBlocks[ref/objectBlockSize], obj)
	}
	objBlockCount := numBlocks(size, objectBlockSize)
	for idx := 0; idx < objBlockCount; idx++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if objs := objBlocks[idx]; len(objs) > 0 {
			if err := d.store.Put(kvstore.RefKey(idx), encodeObjectBlock(objs), kvstore.TypeObject); err != nil {
				record(err)
			} else {
				written += len(objs)
			}
		} else if err := d.store.Del(kvstore.RefKey(idx), kvstore.TypeObject); err != nil {
			record(err)
		}
	}

	// Per-object attribute text.
	attrSpan := size
	if old != nil && old.Size > attrSpan {
		attrSpan = old.Size
	}
	for ref := 0; ref < attrSpan; ref++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		obj, ok := db.Objects[gamedb.DBRef(ref)]
		if ok && !obj.IsGoing() && len(obj.Attrs) > 0 {
			if err := d.store.Put(kvstore.RefKey(ref), gamedb.EncodeAttrBlock(obj.Attrs), kvstore.TypeAttribute); err != nil {
				record(err)
			}
		} else if err := d.store.Del(kvstore.RefKey(ref), kvstore.TypeAttribute); err != nil {
			record(err)
		}
	}

	// Drop blocks a previous, larger generation left behind.
	if old != nil {
		for idx := attrBlockCount; idx < numBlocks(old.NextAttr, atrNumBlockSize); idx++ {
			if err := d.store.Del(kvstore.RefKey(idx), kvstore.TypeAttrNum); err != nil {
				record(err)
			}
		}
		for idx := objBlockCount; idx < numBlocks(old.Size, objectBlockSize); idx++ {
			if err := d.store.Del(kvstore.RefKey(idx), kvstore.TypeObject); err != nil {
				record(err)
			}
		}
	}

	moduleTop := int(kvstore.TypeModuleBase)
	if old != nil && old.ModuleTop > moduleTop {
		moduleTop = old.ModuleTop
	}
	m := &meta{
		Version:       metaVersion,
		Size:          size,
		NextAttr:      db.NextAttr,
		RecordPlayers: db.RecordPlayers,
		ModuleTop:     moduleTop,
	}
	if err := d.store.Put(metaKey, encodeMeta(m), kvstore.TypeDBInfo); err != nil {
		return fmt.Errorf("kvdb: database info record: %w", err)
	}

	if err := d.dumpModules(); err != nil {
		record(err)
	}

	d.metrics.observeDump(time.Since(start), written, failed)
	if failed > 0 {
		err := &DumpError{Failed: failed, First: first}
		d.bus.Emit(events.Event{Type: events.EvDumpFailed, Objects: written, Took: time.Since(start), Err: err})
		return err
	}
	d.bus.Emit(events.Event{Type: events.EvDumpDone, Objects: written, Took: time.Since(start)})
	return nil
}

// StartAutoDump begins timed dumps of the database src returns. The
// interval can be adjusted live with SetDumpInterval; a nonpositive
// interval parks the timer.
func (d *DB) StartAutoDump(src func() *gamedb.Database, interval time.Duration) {
	d.autoMu.Lock()
	defer d.autoMu.Unlock()
	if d.stopc != nil {
		return
	}
	d.stopc = make(chan struct{})
	d.intervalc = make(chan time.Duration, 1)

	go func(stopc chan struct{}, intervalc chan time.Duration) {
		timer := time.NewTimer(parkNonpositive(interval))
		defer timer.Stop()
		for {
			select {
			case <-stopc:
				return
			case interval = <-intervalc:
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(parkNonpositive(interval))
			case <-timer.C:
				if err := d.Dump(context.Background(), src()); err != nil {
					log.Printf("kvdb: timed dump: %v", err)
				}
				timer.Reset(parkNonpositive(interval))
			}
		}
	}(d.stopc, d.intervalc)
}

// StopAutoDump halts timed dumps. Safe to call when none are running.
func (d *DB) StopAutoDump() {
	d.autoMu.Lock()
	defer d.autoMu.Unlock()
	if d.stopc != nil {
		close(d.stopc)
		d.stopc = nil
		d.intervalc = nil
	}
}

// SetDumpInterval adjusts the timed-dump period without restarting.
func (d *DB) SetDumpInterval(interval time.Duration) {
	d.autoMu.Lock()
	defer d.autoMu.Unlock()
	if d.intervalc == nil {
		return
	}
	select {
	case d.intervalc <- interval:
	default:
	}
}

// ApplyConfig applies the configuration fields that are safe to change
// on a live database.
func (d *DB) ApplyConfig(cfg *Config) {
	d.store.SetSync(cfg.Sync)
	d.SetDumpInterval(time.Duration(cfg.DumpInterval) * time.Second)
	d.bus.Emit(events.Event{Type: events.EvConfigReload})
}

func parkNonpositive(interval time.Duration) time.Duration {
	if interval <= 0 {
		// Park the timer far out; SetDumpInterval wakes it.
		return 365 * 24 * time.Hour
	}
	return interval
}

func (d *DB) modulePath(name string) string {
	return filepath.Join(d.dataDir, "mod_"+name+".db")
}
