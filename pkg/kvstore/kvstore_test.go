package kvstore

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
)

func openBackends(t *testing.T) map[string]Backend {
	t.Helper()
	dir := t.TempDir()
	backends := map[string]Backend{
		"bolt": NewBolt(BoltOptions{}),
		"map":  NewMap(MapOptions{InitialSize: 1 << 16}),
		"mem":  NewMem(),
	}
	for name, b := range backends {
		if err := b.SetFile(filepath.Join(dir, name+".db")); err != nil {
			t.Fatalf("%s: SetFile: %v", name, err)
		}
		if err := b.Init(); err != nil {
			t.Fatalf("%s: Init: %v", name, err)
		}
	}
	return backends
}

func TestBackendContract(t *testing.T) {
	backends := openBackends(t)
	for name, b := range backends {
		t.Run(name, func(t *testing.T) {
			defer b.Close()
			key := RefKey(7)

			// Absence is not an error.
			v, err := b.Get(key, TypeObject)
			if err != nil {
				t.Fatalf("Get absent: %v", err)
			}
			if v != nil {
				t.Fatalf("Get absent = %v, want nil", v)
			}

			// Deleting an absent key succeeds.
			if err := b.Del(key, TypeObject); err != nil {
				t.Fatalf("Del absent: %v", err)
			}

			if err := b.Put(key, []byte("hello"), TypeObject); err != nil {
				t.Fatalf("Put: %v", err)
			}
			v, err = b.Get(key, TypeObject)
			if err != nil || !bytes.Equal(v, []byte("hello")) {
				t.Fatalf("Get = %q, %v", v, err)
			}

			// Same logical key under another type is a distinct record.
			v, err = b.Get(key, TypeAttribute)
			if err != nil || v != nil {
				t.Fatalf("Get other type = %q, %v, want absent", v, err)
			}

			// Replace.
			if err := b.Put(key, []byte("world"), TypeObject); err != nil {
				t.Fatalf("Put replace: %v", err)
			}
			v, _ = b.Get(key, TypeObject)
			if !bytes.Equal(v, []byte("world")) {
				t.Fatalf("Get after replace = %q", v)
			}

			if err := b.Del(key, TypeObject); err != nil {
				t.Fatalf("Del: %v", err)
			}
			v, err = b.Get(key, TypeObject)
			if err != nil || v != nil {
				t.Fatalf("Get after del = %q, %v", v, err)
			}

			if err := b.Optimize(); err != nil {
				t.Fatalf("Optimize: %v", err)
			}

			// SetFile after Init is rejected.
			if err := b.SetFile("elsewhere.db"); !errors.Is(err, ErrAlreadyInit) {
				t.Fatalf("SetFile after Init = %v, want ErrAlreadyInit", err)
			}
		})
	}
}

func TestCompositeKeyDistinct(t *testing.T) {
	type pair struct {
		key []byte
		rt  RecordType
	}
	pairs := []pair{
		{RefKey(0), TypeDBInfo},
		{RefKey(0), TypeObject},
		{RefKey(1), TypeObject},
		{[]byte("TM3"), TypeDBInfo},
		{[]byte("TM3"), TypeAttrNum},
		{[]byte{}, TypeDBInfo},
		{RefKey(256), TypeAttribute},
		{RefKey(256), TypeModuleBase},
	}
	seen := make(map[string]pair)
	for _, p := range pairs {
		enc := string(CompositeKey(p.key, p.rt))
		if prev, dup := seen[enc]; dup {
			t.Errorf("collision: %v and %v both encode to %q", prev, p, enc)
		}
		seen[enc] = p
	}
}

func TestMapGrowth(t *testing.T) {
	s := NewMap(MapOptions{InitialSize: 4096})
	if err := s.SetFile(filepath.Join(t.TempDir(), "grow.db")); err != nil {
		t.Fatal(err)
	}
	if err := s.Init(); err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	s.SetSync(false)

	// Each record is ~1KB; the initial 4KB map must grow several times
	// before the 16x ceiling stops it.
	payload := bytes.Repeat([]byte("x"), 1024)
	var stored int
	var full bool
	for i := 0; i < 200; i++ {
		err := s.Put(RefKey(i), payload, TypeObject)
		if err == nil {
			stored++
			continue
		}
		if !errors.Is(err, ErrStoreFull) {
			t.Fatalf("Put %d: %v, want ErrStoreFull", i, err)
		}
		full = true
		// The failed write must not be partially visible.
		if v, gerr := s.Get(RefKey(i), TypeObject); gerr != nil || v != nil {
			t.Fatalf("failed Put left visible data: %q, %v", v, gerr)
		}
		break
	}
	if !full {
		t.Fatalf("store never filled after %d writes", stored)
	}
	if stored < 10 {
		t.Fatalf("stored only %d records, growth did not happen", stored)
	}

	// Everything stored before the ceiling stays readable.
	for i := 0; i < stored; i++ {
		v, err := s.Get(RefKey(i), TypeObject)
		if err != nil || !bytes.Equal(v, payload) {
			t.Fatalf("record %d lost after growth: %v", i, err)
		}
	}

	// Growth never succeeds again once the ceiling is hit.
	if err := s.Put([]byte("one-more"), payload, TypeObject); !errors.Is(err, ErrStoreFull) {
		t.Fatalf("Put after ceiling = %v, want ErrStoreFull", err)
	}
}

func TestMapPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "persist.db")

	s := NewMap(MapOptions{InitialSize: 1 << 16})
	if err := s.SetFile(path); err != nil {
		t.Fatal(err)
	}
	if err := s.Init(); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 20; i++ {
		if err := s.Put(RefKey(i), []byte(fmt.Sprintf("val-%d", i)), TypeObject); err != nil {
			t.Fatal(err)
		}
	}
	// Overwrite and delete to leave dead records for the scan to skip.
	if err := s.Put(RefKey(3), []byte("rewritten"), TypeObject); err != nil {
		t.Fatal(err)
	}
	if err := s.Del(RefKey(5), TypeObject); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	s = NewMap(MapOptions{InitialSize: 1 << 16})
	if err := s.SetFile(path); err != nil {
		t.Fatal(err)
	}
	if err := s.Init(); err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	v, err := s.Get(RefKey(3), TypeObject)
	if err != nil || string(v) != "rewritten" {
		t.Errorf("Get(3) = %q, %v", v, err)
	}
	if v, _ := s.Get(RefKey(5), TypeObject); v != nil {
		t.Errorf("deleted key resurrected: %q", v)
	}
	if v, _ := s.Get(RefKey(19), TypeObject); string(v) != "val-19" {
		t.Errorf("Get(19) = %q", v)
	}

	// Optimize drops dead space and keeps all live records.
	if err := s.Optimize(); err != nil {
		t.Fatalf("Optimize: %v", err)
	}
	if v, _ := s.Get(RefKey(3), TypeObject); string(v) != "rewritten" {
		t.Errorf("Get(3) after optimize = %q", v)
	}
	if v, _ := s.Get(RefKey(5), TypeObject); v != nil {
		t.Errorf("deleted key back after optimize: %q", v)
	}
}

func TestBoltPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bolt.db")
	s := NewBolt(BoltOptions{})
	if err := s.SetFile(path); err != nil {
		t.Fatal(err)
	}
	if err := s.Init(); err != nil {
		t.Fatal(err)
	}
	if err := s.Put([]byte("TM3"), []byte("meta"), TypeDBInfo); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	s = NewBolt(BoltOptions{})
	if err := s.SetFile(path); err != nil {
		t.Fatal(err)
	}
	if err := s.Init(); err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	v, err := s.Get([]byte("TM3"), TypeDBInfo)
	if err != nil || string(v) != "meta" {
		t.Fatalf("Get after reopen = %q, %v", v, err)
	}
}

func TestInitWithoutFile(t *testing.T) {
	for name, b := range map[string]Backend{
		"bolt": NewBolt(BoltOptions{}),
		"map":  NewMap(MapOptions{}),
	} {
		if err := b.Init(); !errors.Is(err, ErrNoFile) {
			t.Errorf("%s: Init without SetFile = %v, want ErrNoFile", name, err)
		}
	}
}
