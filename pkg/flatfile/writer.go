package flatfile

import (
	"bufio"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/crystal-mush/mushdb/pkg/boolexp"
	"github.com/crystal-mush/mushdb/pkg/gamedb"
)

// WriteOptions selects the dialect features of an output dump.
// Zero-value fields fall back to the current defaults.
type WriteOptions struct {
	Flags   int  // feature flag set, UnloadFlags when zero
	Version int  // format version, OutputVersion when zero
	Clean   bool // renumber user attributes into a packed range
}

// Writer emits a database as a flatfile in the current dialect.
type Writer struct {
	w     *bufio.Writer
	db    *gamedb.Database
	flags int
	table *CleanTable
}

// Write dumps db to w.
func Write(w io.Writer, db *gamedb.Database, opts WriteOptions) error {
	flags := opts.Flags
	if flags == 0 {
		flags = UnloadFlags
	}
	version := opts.Version
	if version == 0 {
		version = OutputVersion
	}

	fw := &Writer{
		w:     bufio.NewWriterSize(w, 256*1024),
		db:    db,
		flags: flags,
	}
	if opts.Clean {
		fw.table = BuildCleanTable(db)
	}

	fw.writeAll(version)
	if err := fw.w.Flush(); err != nil {
		return fmt.Errorf("flatfile: write: %w", err)
	}
	return nil
}

// Save writes the dump to a temporary file and renames it into place.
func Save(path string, db *gamedb.Database, opts WriteOptions) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp*")
	if err != nil {
		return fmt.Errorf("flatfile: save: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := Write(tmp, db, opts); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("flatfile: save: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("flatfile: save: %w", err)
	}
	return nil
}

func (fw *Writer) writeAll(version int) {
	fmt.Fprintf(fw.w, "+T%d\n", fw.flags|version)
	fmt.Fprintf(fw.w, "+S%d\n", fw.db.Size)

	nextAttr := fw.db.NextAttr
	if fw.table != nil {
		nextAttr = fw.table.NextAttr
	}
	fmt.Fprintf(fw.w, "+N%d\n", nextAttr)
	fmt.Fprintf(fw.w, "-R%d\n", fw.db.RecordPlayers)

	fw.writeAttrDefs(nextAttr)

	refs := make([]gamedb.DBRef, 0, len(fw.db.Objects))
	for ref := range fw.db.Objects {
		refs = append(refs, ref)
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i] < refs[j] })
	for _, ref := range refs {
		obj := fw.db.Objects[ref]
		if obj.IsGoing() {
			continue
		}
		fw.writeObject(obj)
	}

	fw.w.WriteString(endOfDumpMarker + "\n")
}

// writeAttrDefs emits the +A definition lines, renumbered when a
// clean table is active. Tombstoned definitions are never written.
func (fw *Writer) writeAttrDefs(nextAttr int) {
	if fw.table != nil {
		for i := gamedb.A_USER_START; i < nextAttr; i++ {
			old := fw.table.OldNum[i]
			if old == 0 {
				continue
			}
			def := fw.db.AttrDef(old)
			if def == nil || def.Deleted() {
				continue
			}
			fw.writeAttrDef(i, def)
		}
		return
	}
	for _, def := range fw.db.AttrDefs() {
		if def.Deleted() {
			continue
		}
		fw.writeAttrDef(def.Number, def)
	}
}

func (fw *Writer) writeAttrDef(num int, def *gamedb.VAttr) {
	fmt.Fprintf(fw.w, "+A%d\n", num)
	fw.writeString(fmt.Sprintf("%d:%s", def.Flags, def.Name))
}

func (fw *Writer) writeObject(obj *gamedb.Object) {
	flags := fw.flags
	nameInAttrs := flags&VGDBM != 0 && flags&VAtrName != 0

	fmt.Fprintf(fw.w, "!%d\n", int(obj.DBRef))
	if !nameInAttrs {
		fw.writeString(obj.Name)
	}
	fw.writeRef(obj.Location)
	if flags&VZone != 0 {
		fw.writeRef(obj.Zone)
	}
	fw.writeRef(obj.Contents)
	fw.writeRef(obj.Exits)
	if flags&VLink != 0 {
		fw.writeRef(obj.Link)
	}
	fw.writeRef(obj.Next)
	if flags&VAtrKey == 0 {
		fw.writeLock(obj)
	}
	fw.writeRef(obj.Owner)
	if flags&VParent != 0 {
		fw.writeRef(obj.Parent)
	}
	if flags&VAtrMoney == 0 {
		fw.writeInt(obj.Pennies)
	}
	fw.writeInt(obj.Flags[0])
	if flags&VXFlags != 0 {
		fw.writeInt(obj.Flags[1])
	}
	if flags&V3Flags != 0 {
		fw.writeInt(obj.Flags[2])
	}
	if flags&VPowers != 0 {
		fw.writeInt(obj.Powers[0])
		fw.writeInt(obj.Powers[1])
	}
	if flags&VTimestamps != 0 {
		fw.writeLong(obj.LastAccess.Unix())
		fw.writeLong(obj.LastMod.Unix())
	}
	if flags&VCreateTime != 0 {
		fw.writeLong(obj.Created.Unix())
	}
	if flags&VGDBM == 0 {
		fw.writeAttrList(obj)
	}
}

// writeLock emits the in-stream lock expression and its newline.
func (fw *Writer) writeLock(obj *gamedb.Object) {
	lock := obj.Lock
	if lock == nil {
		if text, ok := obj.GetAttr(gamedb.A_LOCK); ok {
			parsed, err := boolexp.Parse(fw.db, text)
			if err != nil {
				log.Printf("flatfile: object #%d has an unparsable lock %q, written unlocked: %v", obj.DBRef, text, err)
			} else {
				lock = parsed
			}
		}
	}
	fw.w.WriteString(boolexp.Unparse(fw.db, lock))
	fw.w.WriteByte('\n')
}

// writeAttrList emits the > entries and the < terminator. The lock
// attribute only rides here when locks are not in the header, and the
// money attribute only when pennies are not.
func (fw *Writer) writeAttrList(obj *gamedb.Object) {
	if fw.flags&VAtrMoney != 0 {
		fmt.Fprintf(fw.w, ">%d\n", gamedb.A_MONEY)
		fw.writeString(strconv.Itoa(obj.Pennies))
	}
	for _, a := range obj.Attrs {
		switch a.Number {
		case gamedb.A_LIST, gamedb.A_MONEY, gamedb.A_NAME:
			continue
		case gamedb.A_LOCK:
			if fw.flags&VAtrKey == 0 {
				continue
			}
		}
		fmt.Fprintf(fw.w, ">%d\n", fw.table.Map(a.Number))
		fw.writeString(a.Value)
	}
	fw.w.WriteString("<\n")
}

func (fw *Writer) writeRef(ref gamedb.DBRef) {
	fmt.Fprintf(fw.w, "%d\n", int(ref))
}

func (fw *Writer) writeInt(v int) {
	fmt.Fprintf(fw.w, "%d\n", v)
}

func (fw *Writer) writeLong(v int64) {
	fmt.Fprintf(fw.w, "%d\n", v)
}

// writeString emits one value string, quoted when the dialect calls
// for it. Only the quote and backslash are escaped; newlines pass
// through raw.
func (fw *Writer) writeString(s string) {
	if fw.flags&VQuoted == 0 {
		fw.w.WriteString(s)
		fw.w.WriteByte('\n')
		return
	}
	fw.w.WriteByte('"')
	if strings.ContainsAny(s, `"\`) {
		for i := 0; i < len(s); i++ {
			if s[i] == '"' || s[i] == '\\' {
				fw.w.WriteByte('\\')
			}
			fw.w.WriteByte(s[i])
		}
	} else {
		fw.w.WriteString(s)
	}
	fw.w.WriteString("\"\n")
}
