// Package validate runs consistency checks over a loaded database.
// Findings are advisory: a database that fails every check still loads
// and converts, the checks just tell the operator what an in-game
// cleanup pass should look at.
package validate

import (
	"fmt"
	"io"
	"sort"

	"github.com/crystal-mush/mushdb/pkg/gamedb"
)

// Category classifies a finding.
type Category int

const (
	CatDanglingRef Category = iota
	CatChainLoop
	CatAttrNumber
	CatLock
)

func (c Category) String() string {
	switch c {
	case CatDanglingRef:
		return "dangling-ref"
	case CatChainLoop:
		return "chain-loop"
	case CatAttrNumber:
		return "attr-number"
	case CatLock:
		return "lock"
	default:
		return "unknown"
	}
}

// Severity indicates how serious a finding is.
type Severity int

const (
	SevError   Severity = iota // broken once the game runs
	SevWarning                 // worth reviewing
)

func (s Severity) String() string {
	if s == SevError {
		return "error"
	}
	return "warning"
}

// Finding is a single issue detected in the database.
type Finding struct {
	Category    Category
	Severity    Severity
	ObjectRef   gamedb.DBRef
	AttrNum     int
	Description string
}

// Checker is one validation pass.
type Checker interface {
	Name() string
	Check(db *gamedb.Database) []Finding
}

// Validator runs all registered checkers against a database.
type Validator struct {
	db       *gamedb.Database
	checkers []Checker
	findings []Finding
}

// New creates a Validator with the built-in checkers.
func New(db *gamedb.Database) *Validator {
	return &Validator{
		db: db,
		checkers: []Checker{
			&IntegrityChecker{},
			&AttrNumberChecker{},
			&LockChecker{},
		},
	}
}

// Run executes every checker and returns findings sorted by dbref then
// attribute number.
func (v *Validator) Run() []Finding {
	v.findings = nil
	for _, c := range v.checkers {
		v.findings = append(v.findings, c.Check(v.db)...)
	}
	sort.Slice(v.findings, func(i, j int) bool {
		if v.findings[i].ObjectRef != v.findings[j].ObjectRef {
			return v.findings[i].ObjectRef < v.findings[j].ObjectRef
		}
		return v.findings[i].AttrNum < v.findings[j].AttrNum
	})
	return v.findings
}

// Findings returns the results of the last Run.
func (v *Validator) Findings() []Finding { return v.findings }

// Summary counts findings per severity.
func (v *Validator) Summary() (errors, warnings int) {
	for _, f := range v.findings {
		if f.Severity == SevError {
			errors++
		} else {
			warnings++
		}
	}
	return errors, warnings
}

// Report writes findings in a one-line-per-finding format.
func Report(w io.Writer, findings []Finding) {
	for _, f := range findings {
		fmt.Fprintf(w, "%s [%s] #%d: %s\n", f.Severity, f.Category, f.ObjectRef, f.Description)
	}
}
