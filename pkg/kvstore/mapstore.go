package kvstore

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

var mapMagic = []byte("MMKV")

const (
	mapHeaderSize = 16 // magic, format version, used offset
	recHeaderSize = 12 // flags, key length, value length
	recTombstone  = 1

	// DefaultMapSize is the initial capacity of the memory-mapped
	// backend. The map grows by doubling up to GrowthLimit times this.
	DefaultMapSize = 2 << 20
	// GrowthLimit caps total growth of the map relative to its initial
	// size. Past the ceiling, over-capacity writes fail for the rest of
	// the environment's lifetime.
	GrowthLimit = 16
)

// MapOptions tunes the memory-mapped backend.
type MapOptions struct {
	// InitialSize is the map capacity at open. Zero uses DefaultMapSize.
	InitialSize int64
}

type recRef struct {
	off int64 // value offset in the map
	len int64
}

// Map is the memory-mapped backend. Records append into a file-backed
// mmap region with an in-memory key directory rebuilt by a scan at
// open. Each Put or Del is one small self-contained write: the
// directory and the committed-length header only move after the record
// bytes are fully down, so a crash mid-write never exposes a partial
// record.
type Map struct {
	path    string
	opts    MapOptions
	f       *os.File
	mem     []byte
	size    int64
	ceiling int64
	used    int64
	sync    bool
	index   map[string]recRef
}

// NewMap returns an unopened memory-mapped backend.
func NewMap(opts MapOptions) *Map {
	return &Map{opts: opts, sync: true}
}

func (s *Map) SetFile(path string) error {
	if s.f != nil {
		return ErrAlreadyInit
	}
	s.path = path
	return nil
}

func (s *Map) Init() error {
	if s.f != nil {
		return ErrAlreadyInit
	}
	if s.path == "" {
		return ErrNoFile
	}
	initial := s.opts.InitialSize
	if initial <= 0 {
		initial = DefaultMapSize
	}
	f, err := os.OpenFile(s.path, os.O_RDWR|os.O_CREATE, 0600)
	if err != nil {
		return fmt.Errorf("kvstore: open %s: %w", s.path, err)
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("kvstore: stat %s: %w", s.path, err)
	}
	size := st.Size()
	fresh := size == 0
	if size < initial {
		size = initial
		if err := f.Truncate(size); err != nil {
			f.Close()
			return fmt.Errorf("kvstore: grow %s: %w", s.path, err)
		}
	}
	mem, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return fmt.Errorf("kvstore: mmap %s: %w", s.path, err)
	}

	s.f = f
	s.mem = mem
	s.size = size
	s.ceiling = initial * GrowthLimit
	if s.ceiling < size {
		s.ceiling = size
	}
	s.index = make(map[string]recRef)

	if fresh {
		copy(s.mem[0:4], mapMagic)
		binary.BigEndian.PutUint32(s.mem[4:8], 1)
		s.setUsed(mapHeaderSize)
		return nil
	}
	return s.scan()
}

func (s *Map) setUsed(used int64) {
	s.used = used
	binary.BigEndian.PutUint64(s.mem[8:16], uint64(used))
}

// scan rebuilds the key directory from the committed region.
func (s *Map) scan() error {
	if !bytes.Equal(s.mem[0:4], mapMagic) {
		return fmt.Errorf("kvstore: %s is not a map store", s.path)
	}
	used := int64(binary.BigEndian.Uint64(s.mem[8:16]))
	if used < mapHeaderSize || used > s.size {
		return fmt.Errorf("kvstore: %s: corrupt committed length %d", s.path, used)
	}
	off := int64(mapHeaderSize)
	for off < used {
		if used-off < recHeaderSize {
			return fmt.Errorf("kvstore: %s: truncated record at %d", s.path, off)
		}
		flags := binary.BigEndian.Uint32(s.mem[off:])
		klen := int64(binary.BigEndian.Uint32(s.mem[off+4:]))
		vlen := int64(binary.BigEndian.Uint32(s.mem[off+8:]))
		if off+recHeaderSize+klen+vlen > used {
			return fmt.Errorf("kvstore: %s: truncated record at %d", s.path, off)
		}
		key := string(s.mem[off+recHeaderSize : off+recHeaderSize+klen])
		if flags&recTombstone != 0 {
			delete(s.index, key)
		} else {
			s.index[key] = recRef{off: off + recHeaderSize + klen, len: vlen}
		}
		off += recHeaderSize + klen + vlen
	}
	s.used = used
	return nil
}

func (s *Map) Close() error {
	if s.f == nil {
		return nil
	}
	var first error
	if err := unix.Msync(s.mem, unix.MS_SYNC); err != nil {
		first = fmt.Errorf("kvstore: msync: %w", err)
	}
	if err := unix.Munmap(s.mem); err != nil && first == nil {
		first = fmt.Errorf("kvstore: munmap: %w", err)
	}
	if err := s.f.Close(); err != nil && first == nil {
		first = fmt.Errorf("kvstore: close: %w", err)
	}
	s.f = nil
	s.mem = nil
	s.index = nil
	return first
}

// SetSync toggles a synchronous flush after every write.
func (s *Map) SetSync(sync bool) {
	s.sync = sync
}

func (s *Map) Get(key []byte, rt RecordType) ([]byte, error) {
	if s.f == nil {
		return nil, ErrNoFile
	}
	ref, ok := s.index[string(CompositeKey(key, rt))]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), s.mem[ref.off:ref.off+ref.len]...), nil
}

func (s *Map) Put(key, data []byte, rt RecordType) error {
	if s.f == nil {
		return ErrNoFile
	}
	ck := CompositeKey(key, rt)
	if err := s.appendRecord(0, ck, data); err != nil {
		return err
	}
	s.index[string(ck)] = recRef{
		off: s.used - int64(len(data)),
		len: int64(len(data)),
	}
	return nil
}

func (s *Map) Del(key []byte, rt RecordType) error {
	if s.f == nil {
		return ErrNoFile
	}
	ck := CompositeKey(key, rt)
	if _, ok := s.index[string(ck)]; !ok {
		return nil
	}
	if err := s.appendRecord(recTombstone, ck, nil); err != nil {
		return err
	}
	delete(s.index, string(ck))
	return nil
}

// appendRecord writes one record past the committed region, growing the
// map as needed, and commits it by advancing the length header.
func (s *Map) appendRecord(flags uint32, ck, data []byte) error {
	need := int64(recHeaderSize + len(ck) + len(data))
	for s.used+need > s.size {
		if err := s.grow(); err != nil {
			return err
		}
	}
	off := s.used
	binary.BigEndian.PutUint32(s.mem[off:], flags)
	binary.BigEndian.PutUint32(s.mem[off+4:], uint32(len(ck)))
	binary.BigEndian.PutUint32(s.mem[off+8:], uint32(len(data)))
	copy(s.mem[off+recHeaderSize:], ck)
	copy(s.mem[off+recHeaderSize+int64(len(ck)):], data)
	s.setUsed(off + need)
	if s.sync {
		if err := unix.Msync(s.mem, unix.MS_SYNC); err != nil {
			return fmt.Errorf("kvstore: msync: %w", err)
		}
	}
	return nil
}

// grow doubles the map, bounded by the ceiling. Growth happens inline
// on the calling goroutine; the failing write retries after each step.
func (s *Map) grow() error {
	if s.size >= s.ceiling {
		return fmt.Errorf("kvstore: %s at %d bytes: %w", s.path, s.size, ErrStoreFull)
	}
	newSize := s.size * 2
	if newSize > s.ceiling {
		newSize = s.ceiling
	}
	if err := unix.Munmap(s.mem); err != nil {
		return fmt.Errorf("kvstore: munmap for grow: %w", err)
	}
	s.mem = nil
	if err := s.f.Truncate(newSize); err != nil {
		return fmt.Errorf("kvstore: grow %s to %d: %w", s.path, newSize, err)
	}
	mem, err := unix.Mmap(int(s.f.Fd()), 0, int(newSize), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return fmt.Errorf("kvstore: remap %s: %w", s.path, err)
	}
	s.mem = mem
	s.size = newSize
	return nil
}

// Optimize rewrites live records front-to-back, dropping dead space
// left by overwrites and tombstones. The map size is not shrunk.
func (s *Map) Optimize() error {
	if s.f == nil {
		return nil
	}
	// Walk committed records in file order, keeping only the copy the
	// directory still points at. File order keeps the rewrite stable.
	type liveRec struct {
		key string
		val []byte
	}
	var live []liveRec
	off := int64(mapHeaderSize)
	for off < s.used {
		klen := int64(binary.BigEndian.Uint32(s.mem[off+4:]))
		vlen := int64(binary.BigEndian.Uint32(s.mem[off+8:]))
		key := string(s.mem[off+recHeaderSize : off+recHeaderSize+klen])
		valOff := off + recHeaderSize + klen
		if ref, ok := s.index[key]; ok && ref.off == valOff {
			live = append(live, liveRec{
				key: key,
				val: append([]byte(nil), s.mem[valOff:valOff+vlen]...),
			})
		}
		off += recHeaderSize + klen + vlen
	}

	s.setUsed(mapHeaderSize)
	s.index = make(map[string]recRef, len(live))
	for _, rec := range live {
		if err := s.appendRecord(0, []byte(rec.key), rec.val); err != nil {
			return err
		}
		s.index[rec.key] = recRef{off: s.used - int64(len(rec.val)), len: int64(len(rec.val))}
	}
	if err := unix.Msync(s.mem, unix.MS_SYNC); err != nil {
		return fmt.Errorf("kvstore: msync: %w", err)
	}
	return nil
}
