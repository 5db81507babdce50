package kvstore

import (
	"fmt"
	"os"
	"time"

	bbolt "go.etcd.io/bbolt"
)

var boltBucket = []byte("records")

// BoltOptions tunes the embedded single-file backend.
type BoltOptions struct {
	// InitialMmapSize preallocates the mmap so early growth does not
	// block readers. Zero uses the bbolt default.
	InitialMmapSize int
	// OpenTimeout bounds the wait for the file lock. Zero means 1s.
	OpenTimeout time.Duration
}

// Bolt is the embedded single-file backend. All records live in one
// bucket under composite keys. The file must never be opened by two
// processes at once; the open timeout only turns that mistake into an
// error instead of a hang.
type Bolt struct {
	path string
	opts BoltOptions
	db   *bbolt.DB
}

// NewBolt returns an unopened embedded backend.
func NewBolt(opts BoltOptions) *Bolt {
	return &Bolt{opts: opts}
}

// SetFile configures the backing path. It fails once Init has run.
func (s *Bolt) SetFile(path string) error {
	if s.db != nil {
		return ErrAlreadyInit
	}
	s.path = path
	return nil
}

// Init opens or creates the store.
func (s *Bolt) Init() error {
	if s.db != nil {
		return ErrAlreadyInit
	}
	if s.path == "" {
		return ErrNoFile
	}
	timeout := s.opts.OpenTimeout
	if timeout == 0 {
		timeout = time.Second
	}
	db, err := bbolt.Open(s.path, 0600, &bbolt.Options{
		Timeout:         timeout,
		InitialMmapSize: s.opts.InitialMmapSize,
	})
	if err != nil {
		return fmt.Errorf("kvstore: open %s: %w", s.path, err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(boltBucket)
		return err
	})
	if err != nil {
		db.Close()
		return fmt.Errorf("kvstore: create bucket: %w", err)
	}
	s.db = db
	return nil
}

func (s *Bolt) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// SetSync toggles fsync-per-commit. Turning sync off trades durability
// for dump throughput; the dump orchestrator restores it afterwards.
func (s *Bolt) SetSync(sync bool) {
	if s.db != nil {
		s.db.NoSync = !sync
	}
}

// Optimize copy-compacts the store into a fresh file and swaps it in.
// Best effort: on any failure the original file is left untouched.
func (s *Bolt) Optimize() error {
	if s.db == nil {
		return nil
	}
	tmp := s.path + ".compact"
	dst, err := bbolt.Open(tmp, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return fmt.Errorf("kvstore: optimize open: %w", err)
	}
	if err := bbolt.Compact(dst, s.db, 0); err != nil {
		dst.Close()
		os.Remove(tmp)
		return fmt.Errorf("kvstore: compact: %w", err)
	}
	if err := dst.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("kvstore: optimize close: %w", err)
	}
	noSync := s.db.NoSync
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("kvstore: optimize swap: %w", err)
	}
	s.db = nil
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		// Reopen the original so the store stays usable.
		if rerr := s.Init(); rerr != nil {
			return fmt.Errorf("kvstore: optimize rename: %v, reopen: %w", err, rerr)
		}
		s.db.NoSync = noSync
		return fmt.Errorf("kvstore: optimize rename: %w", err)
	}
	if err := s.Init(); err != nil {
		return err
	}
	s.db.NoSync = noSync
	return nil
}

func (s *Bolt) Get(key []byte, rt RecordType) ([]byte, error) {
	if s.db == nil {
		return nil, ErrNoFile
	}
	var out []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(boltBucket).Get(CompositeKey(key, rt))
		if v != nil {
			// bbolt slices are only valid inside the transaction.
			out = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("kvstore: get: %w", err)
	}
	return out, nil
}

func (s *Bolt) Put(key, data []byte, rt RecordType) error {
	if s.db == nil {
		return ErrNoFile
	}
	err := s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(boltBucket).Put(CompositeKey(key, rt), data)
	})
	if err != nil {
		return fmt.Errorf("kvstore: put: %w", err)
	}
	return nil
}

func (s *Bolt) Del(key []byte, rt RecordType) error {
	if s.db == nil {
		return ErrNoFile
	}
	err := s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(boltBucket).Delete(CompositeKey(key, rt))
	})
	if err != nil {
		return fmt.Errorf("kvstore: del: %w", err)
	}
	return nil
}
