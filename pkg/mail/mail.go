// Package mail persists player mailboxes in a module-private flatfile
// next to the main database.
package mail

import (
	"os"
	"sort"
	"time"

	"github.com/crystal-mush/mushdb/pkg/gamedb"
)

// Message flags.
const (
	IsRead  = 0x0001
	Cleared = 0x0002
	Urgent  = 0x0004
	Safe    = 0x0008
	Forward = 0x0010
	Reply   = 0x0020
)

// Message is one mail message in a player's mailbox. Each recipient
// holds their own copy with independent read and folder state.
type Message struct {
	ID      int // per-player sequential number
	From    gamedb.DBRef
	To      []gamedb.DBRef
	CC      []gamedb.DBRef
	Subject string
	Body    string
	Time    time.Time
	Flags   int
	Folder  int // 0 to 14
}

// System is the mail subsystem state. It satisfies the database module
// hook, so registering it gets mod_mail.db written and read around
// core dumps.
type System struct {
	Boxes map[gamedb.DBRef][]Message
}

// NewSystem returns an empty mail system.
func NewSystem() *System {
	return &System{Boxes: make(map[gamedb.DBRef][]Message)}
}

// Deliver appends a message to a player's mailbox, assigning the next
// sequential number.
func (s *System) Deliver(player gamedb.DBRef, msg Message) {
	box := s.Boxes[player]
	msg.ID = 1
	if n := len(box); n > 0 {
		msg.ID = box[n-1].ID + 1
	}
	s.Boxes[player] = append(box, msg)
}

// Expunge removes cleared messages from a player's mailbox and returns
// how many went.
func (s *System) Expunge(player gamedb.DBRef) int {
	box := s.Boxes[player]
	kept := box[:0]
	for _, m := range box {
		if m.Flags&Cleared == 0 {
			kept = append(kept, m)
		}
	}
	gone := len(box) - len(kept)
	if len(kept) == 0 {
		delete(s.Boxes, player)
	} else {
		s.Boxes[player] = kept
	}
	return gone
}

// ExpireBefore clears messages older than the cutoff, sparing the ones
// marked safe. Returns the count cleared.
func (s *System) ExpireBefore(cutoff time.Time) int {
	n := 0
	for player, box := range s.Boxes {
		for i := range box {
			m := &box[i]
			if m.Flags&(Safe|Cleared) == 0 && m.Time.Before(cutoff) {
				m.Flags |= Cleared
				n++
			}
		}
		s.Boxes[player] = box
	}
	return n
}

// players returns mailbox owners in dbref order for stable output.
func (s *System) players() []gamedb.DBRef {
	refs := make([]gamedb.DBRef, 0, len(s.Boxes))
	for ref := range s.Boxes {
		refs = append(refs, ref)
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i] < refs[j] })
	return refs
}

// LoadFlatfile replaces the system state with the file's contents.
func (s *System) LoadFlatfile(f *os.File) error {
	boxes, err := Read(f)
	if err != nil {
		return err
	}
	s.Boxes = boxes
	return nil
}

// DumpFlatfile writes the system state out.
func (s *System) DumpFlatfile(f *os.File) error {
	return Write(f, s)
}
