// Package events carries structured storage lifecycle notifications.
// The database layer emits an event when it loads, dumps, optimizes,
// or reloads configuration; subscribers (loggers, metrics bridges,
// progress displays) decide how to present each one.
package events

import "time"

// Type classifies events for subscriber filtering.
type Type int

const (
	EvLoadDone     Type = iota // Database finished loading
	EvDumpStart                // Dump began
	EvDumpDone                 // Dump finished cleanly
	EvDumpFailed               // Dump finished with failed records
	EvOptimize                 // Store compaction ran
	EvConfigReload             // Storage configuration was re-applied
	EvModuleLoad               // A module flatfile was read
	EvModuleDump               // A module flatfile was written
)

// String returns a human-readable name for the event type.
func (t Type) String() string {
	switch t {
	case EvLoadDone:
		return "load_done"
	case EvDumpStart:
		return "dump_start"
	case EvDumpDone:
		return "dump_done"
	case EvDumpFailed:
		return "dump_failed"
	case EvOptimize:
		return "optimize"
	case EvConfigReload:
		return "config_reload"
	case EvModuleLoad:
		return "module_load"
	case EvModuleDump:
		return "module_dump"
	default:
		return "unknown"
	}
}

// Event is a structured storage notification that flows through the
// bus. Fields beyond Type are filled where they make sense: Objects
// and AttrDefs for loads and dumps, Module for module events, Err for
// failures.
type Event struct {
	Type     Type
	Objects  int
	AttrDefs int
	Module   string
	Took     time.Duration
	Err      error
}
