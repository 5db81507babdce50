// Package comsys persists channel definitions and player
// subscriptions in a module-private flatfile next to the main
// database.
package comsys

import (
	"os"

	"github.com/crystal-mush/mushdb/pkg/gamedb"
)

// Channel is a comsys channel definition.
type Channel struct {
	Name            string
	Owner           gamedb.DBRef
	Flags           int
	Charge          int
	ChargeCollected int
	NumSent         int
	Description     string
	Header          string // ANSI prefix for messages
	JoinLock        string // lock expression text
	TransLock       string
	RecvLock        string
}

// Alias is a player's subscription to a channel.
type Alias struct {
	Player      gamedb.DBRef
	Channel     string
	Alias       string
	Title       string
	IsListening bool
}

// Channel flags.
const (
	ChanPublic   = 0x00000010 // anyone can join
	ChanLoud     = 0x00000020 // show connects and disconnects
	ChanPJoin    = 0x00000040 // per-player join lock
	ChanPTrans   = 0x00000080 // per-player transmit lock
	ChanPRecv    = 0x00000100 // per-player receive lock
	ChanObject   = 0x00000200 // objects can join
	ChanNoTitles = 0x00000400 // suppress titles
)

// System is the channel subsystem state. It satisfies the database
// module hook, so registering it gets mod_comsys.db written and read
// around core dumps.
type System struct {
	Channels []Channel
	Aliases  []Alias
}

// LoadFlatfile replaces the system state with the file's contents.
func (s *System) LoadFlatfile(f *os.File) error {
	channels, aliases, err := Read(f)
	if err != nil {
		return err
	}
	s.Channels = channels
	s.Aliases = aliases
	return nil
}

// DumpFlatfile writes the system state out.
func (s *System) DumpFlatfile(f *os.File) error {
	return Write(f, s.Channels, s.Aliases)
}

// Find returns the named channel, or nil.
func (s *System) Find(name string) *Channel {
	for i := range s.Channels {
		if s.Channels[i].Name == name {
			return &s.Channels[i]
		}
	}
	return nil
}

// Subscriptions returns a player's aliases.
func (s *System) Subscriptions(player gamedb.DBRef) []Alias {
	var out []Alias
	for _, a := range s.Aliases {
		if a.Player == player {
			out = append(out, a)
		}
	}
	return out
}
