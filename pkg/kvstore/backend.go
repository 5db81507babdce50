// Package kvstore provides the pluggable key-value storage layer the
// game database persists through. Exactly one backend is active per
// running server; all operations are synchronous and individually
// atomic, with no transaction spanning a whole dump.
package kvstore

import (
	"encoding/binary"
	"errors"
)

// RecordType tags the kind of record stored under a composite key.
type RecordType uint32

const (
	TypeDBInfo RecordType = iota
	TypeAttrNum
	TypeObject
	TypeAttribute

	// TypeModuleBase is the first tag available to registered modules.
	TypeModuleBase RecordType = 64
)

// ErrStoreFull is returned by the memory-mapped backend once its growth
// ceiling is reached and a write still does not fit.
var ErrStoreFull = errors.New("kvstore: store full")

// ErrAlreadyInit is returned by SetFile after Init has run.
var ErrAlreadyInit = errors.New("kvstore: store already initialized")

// ErrNoFile is returned by Init when no backing path was configured.
var ErrNoFile = errors.New("kvstore: no backing file configured")

// Backend is the storage contract. Get on an absent key returns
// (nil, nil); Del on an absent key succeeds. Init failure is fatal at
// startup and is the caller's decision to act on.
type Backend interface {
	SetFile(path string) error
	Init() error
	Close() error
	Optimize() error
	SetSync(sync bool)

	Get(key []byte, rt RecordType) ([]byte, error)
	Put(key, data []byte, rt RecordType) error
	Del(key []byte, rt RecordType) error
}

// CompositeKey merges a logical key with its record type tag into the
// byte string the backend stores. The tag is appended fixed-width, so
// distinct (key, type) pairs always yield distinct byte strings. A
// fresh slice is built per call; composite keys are never cached.
func CompositeKey(key []byte, rt RecordType) []byte {
	ck := make([]byte, 0, len(key)+4)
	ck = append(ck, key...)
	return binary.BigEndian.AppendUint32(ck, uint32(rt))
}

// RefKey encodes a dbref or block index as a fixed-width logical key.
func RefKey(n int) []byte {
	var k [8]byte
	binary.BigEndian.PutUint64(k[:], uint64(n))
	return k[:]
}
