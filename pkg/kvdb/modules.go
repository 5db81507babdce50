package kvdb

import (
	"fmt"
	"os"
	"sort"

	"github.com/crystal-mush/mushdb/pkg/events"
)

// Module is the persistence hook for a subsystem that keeps private
// state outside the object database, in its own flatfile next to the
// main one. Dump hooks run right after a core dump; load hooks run
// right after a core load.
type Module interface {
	LoadFlatfile(f *os.File) error
	DumpFlatfile(f *os.File) error
}

type namedModule struct {
	name string
	mod  Module
}

// RegisterModule adds a module under a unique name. The name becomes
// part of the module's flatfile name, mod_<name>.db.
func (d *DB) RegisterModule(name string, mod Module) error {
	d.modMu.Lock()
	defer d.modMu.Unlock()
	for _, nm := range d.modules {
		if nm.name == name {
			return fmt.Errorf("kvdb: module %q already registered", name)
		}
	}
	d.modules = append(d.modules, namedModule{name: name, mod: mod})
	sort.Slice(d.modules, func(i, j int) bool { return d.modules[i].name < d.modules[j].name })
	return nil
}

// loadModules feeds each module its flatfile. A missing file means the
// module has no state yet and is not an error.
func (d *DB) loadModules() error {
	d.modMu.Lock()
	mods := append([]namedModule(nil), d.modules...)
	d.modMu.Unlock()

	for _, nm := range mods {
		f, err := os.Open(d.modulePath(nm.name))
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return fmt.Errorf("kvdb: module %s: %w", nm.name, err)
		}
		lerr := nm.mod.LoadFlatfile(f)
		f.Close()
		if lerr != nil {
			return fmt.Errorf("kvdb: module %s load: %w", nm.name, lerr)
		}
		d.bus.Emit(events.Event{Type: events.EvModuleLoad, Module: nm.name})
	}
	return nil
}

// dumpModules writes each module's flatfile. The first failure is
// returned but every module still gets its turn.
func (d *DB) dumpModules() error {
	d.modMu.Lock()
	mods := append([]namedModule(nil), d.modules...)
	d.modMu.Unlock()

	var first error
	for _, nm := range mods {
		f, err := os.Create(d.modulePath(nm.name))
		if err == nil {
			err = nm.mod.DumpFlatfile(f)
			if cerr := f.Close(); err == nil {
				err = cerr
			}
		}
		if err != nil {
			if first == nil {
				first = fmt.Errorf("kvdb: module %s dump: %w", nm.name, err)
			}
			continue
		}
		d.bus.Emit(events.Event{Type: events.EvModuleDump, Module: nm.name})
	}
	return first
}
