package flatfile

import (
	"fmt"
	"strings"

	"github.com/crystal-mush/mushdb/pkg/gamedb"
)

// unscrambleAttrNum remaps attribute numbers that foreign servers
// assigned differently. Only the 2.x dialect needs this.
func unscrambleAttrNum(format, attrnum int) int {
	if format != FMush {
		return attrnum
	}
	switch attrnum {
	case 208:
		return gamedb.A_NEWOBJS
	case 209:
		return gamedb.A_LCON_FMT
	case 210:
		return gamedb.A_LEXITS_FMT
	case 211:
		return gamedb.A_PROGCMD
	default:
		return attrnum
	}
}

// fixTypedQuotas fans a player's single combined quota out into the
// five typed slots, for sources that predate per-type quotas. The
// relative quota ends up wrong for some players; an in-game
// @quota/fix sorts that out.
func fixTypedQuotas(db *gamedb.Database) {
	for _, obj := range db.Objects {
		if obj.ObjType() != gamedb.TypePlayer {
			continue
		}
		q, _ := obj.GetAttr(gamedb.A_QUOTA)
		rq, _ := obj.GetAttr(gamedb.A_RQUOTA)
		if q == "" {
			q = "1"
		}
		if rq == "" {
			rq = "0"
		}
		obj.SetAttr(gamedb.A_QUOTA, fmt.Sprintf("%s %s %s %s %s", q, q, q, q, q))
		obj.SetAttr(gamedb.A_RQUOTA, fmt.Sprintf("%s %s %s %s %s", rq, rq, rq, rq, rq))
	}
}

// fixMuxZones converts MUX-style zones: every zoned object becomes
// control-permitting, and every zone master object gets its enter lock
// copied onto its control lock.
func fixMuxZones(db *gamedb.Database) {
	zmarks := make(map[gamedb.DBRef]bool)
	for _, obj := range db.Objects {
		if obj.Zone != gamedb.Nothing {
			obj.Flags[1] |= gamedb.Flag2ControlOK
			zmarks[obj.Zone] = true
		}
	}
	for ref := range zmarks {
		zmo, ok := db.Objects[ref]
		if !ok {
			continue
		}
		if enter, ok := zmo.GetAttr(gamedb.A_LENTER); ok {
			zmo.SetAttr(gamedb.A_LCONTROL, enter)
		}
	}
}

// upgradeFlags converts foreign flag words to the current layout.
// Returns the possibly-adjusted words plus a power bit to set for the
// 2.2 WATCHER -> Builder power migration.
func upgradeFlags(format, version int, f1, f2, f3 int, isPlayer bool) (nf1, nf2, nf3 int, builderPower bool) {
	// 2.2 second-word bit positions that moved in 3.0.
	const (
		mushRoyalty    = gamedb.FlagRoyalty
		mushAuditorium = 0x00000100
		mushAnsi       = 0x00000200
		mushHeadFlag   = 0x00002000
		mushFixed      = 0x00004000
		mushStaff      = 0x00008000
		mushHasDaily   = 0x00010000
		mushGagged     = 0x00040000
		mushWatcher    = 0x00080000
	)

	switch {
	case format == FMush && version >= 3:
		nf1, nf2, nf3 = f1, f2, 0
		if nf1&mushRoyalty != 0 {
			nf1 &^= mushRoyalty
			nf2 |= gamedb.Flag2ControlOK
		}
		if nf2&gamedb.Flag2HasCommands != 0 {
			nf2 &^= gamedb.Flag2HasCommands
			nf2 |= gamedb.Flag2NoBleed
		}
		if nf2&mushAuditorium != 0 {
			nf2 &^= mushAuditorium
			nf2 |= gamedb.Flag2ZoneParent
		}
		if nf2&mushAnsi != 0 {
			nf2 &^= mushAnsi
			nf2 |= gamedb.Flag2StopMatch
		}
		if nf2&mushHeadFlag != 0 {
			nf2 &^= mushHeadFlag
			nf2 |= gamedb.Flag2HasCommands
		}
		if nf2&mushFixed != 0 {
			nf2 &^= mushFixed
			nf2 |= gamedb.Flag2Bounce
		}
		if nf2&mushStaff != 0 {
			nf2 &= mushStaff
			nf2 |= gamedb.Flag2HTML
		}
		if nf2&mushHasDaily != 0 {
			nf2 &^= mushHasDaily
		}
		if nf2&mushGagged != 0 {
			nf2 &^= mushGagged
			nf2 |= gamedb.Flag2Ansi
		}
		if nf2&mushWatcher != 0 {
			nf2 &^= mushWatcher
			builderPower = true
		}

	case format == FMux:
		nf1, nf2, nf3 = f1, f2, f3
		if nf2&gamedb.Flag2ZoneParent != 0 {
			// Was NO_COMMAND under MUX; clear it.
			nf2 &^= gamedb.Flag2ZoneParent
		} else {
			nf2 |= gamedb.Flag2HasCommands
		}
		if nf2&gamedb.Flag2Watcher != 0 {
			// Was the do-nothing COMPRESS flag.
			nf2 &^= gamedb.Flag2Watcher
		}
		if f1&gamedb.FlagMonitor != 0 && isPlayer {
			nf2 |= gamedb.Flag2Watcher
		}

	default:
		// Native database: clear the redirection marker, nothing is
		// redirected at startup.
		const hasRedirect = 0x00000800
		nf1, nf2, nf3 = f1, f2, f3&^hasRedirect
	}

	nf2 &^= gamedb.Flag2Floating // obsolete
	return nf1, nf2, nf3, builderPower
}

// sanitizeName truncates a name at the first newline; header names must
// stay single-line.
func sanitizeName(name string) string {
	if i := strings.IndexByte(name, '\n'); i >= 0 {
		return name[:i]
	}
	return name
}
