package comsys

import (
	"bytes"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func sampleSystem() *System {
	return &System{
		Channels: []Channel{
			{
				Name: "Public", Owner: 1, Flags: ChanPublic | ChanLoud,
				Charge: 0, NumSent: 4242,
				Description: "General chatter.",
				Header:      "\x1b[32m[Public]\x1b[0m",
				JoinLock:    "", TransLock: "!2", RecvLock: "",
			},
			{
				Name: "Staff", Owner: 1, Flags: 0,
				Description: "Staff only.",
				JoinLock:    "=1\n|=2",
			},
		},
		Aliases: []Alias{
			{Player: 2, Channel: "Public", Alias: "pub", Title: "the Curious", IsListening: true},
			{Player: 3, Channel: "Staff", Alias: "st", IsListening: false},
		},
	}
}

func TestRoundTrip(t *testing.T) {
	src := sampleSystem()

	var buf bytes.Buffer
	if err := Write(&buf, src.Channels, src.Aliases); err != nil {
		t.Fatalf("Write: %v", err)
	}
	channels, aliases, err := Read(&buf)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}

	if !reflect.DeepEqual(channels, src.Channels) {
		t.Errorf("channels changed:\n got %+v\nwant %+v", channels, src.Channels)
	}
	if !reflect.DeepEqual(aliases, src.Aliases) {
		t.Errorf("aliases changed:\n got %+v\nwant %+v", aliases, src.Aliases)
	}
}

func TestANSIHeaderEscaping(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, sampleSystem().Channels, nil); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if bytes.ContainsRune(buf.Bytes(), '\x1b') {
		t.Error("raw escape byte written to flatfile")
	}
	channels, _, err := Read(&buf)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if channels[0].Header != "\x1b[32m[Public]\x1b[0m" {
		t.Errorf("header = %q", channels[0].Header)
	}
}

func TestModuleHooks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mod_comsys.db")

	src := sampleSystem()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := src.DumpFlatfile(f); err != nil {
		t.Fatalf("DumpFlatfile: %v", err)
	}
	f.Close()

	var loaded System
	f, err = os.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer f.Close()
	if err := loaded.LoadFlatfile(f); err != nil {
		t.Fatalf("LoadFlatfile: %v", err)
	}
	if loaded.Find("Staff") == nil {
		t.Fatal("Staff channel lost")
	}
	if got := loaded.Subscriptions(2); len(got) != 1 || got[0].Alias != "pub" {
		t.Errorf("subscriptions = %+v", got)
	}
}

func TestReadRejectsGarbage(t *testing.T) {
	if _, _, err := Read(bytes.NewReader([]byte("not a comsys file\n"))); err == nil {
		t.Fatal("garbage accepted")
	}
}
