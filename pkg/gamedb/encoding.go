package gamedb

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"
)

// ErrShortRecord is returned when a stored blob ends before its declared
// contents. Callers treat it as corruption, distinct from "not found".
var ErrShortRecord = errors.New("gamedb: truncated record")

const objectBlobVersion = 1

// EncodeObject packs the scalar fields of an object into a fixed-layout
// blob for the KV path. Attribute text travels separately as the
// per-object attribute block; the parsed Lock is not stored, its text
// lives in the lock attribute.
func EncodeObject(o *Object) []byte {
	buf := make([]byte, 0, 1+2+len(o.Name)+17*8)
	buf = append(buf, objectBlobVersion)
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(o.Name)))
	buf = append(buf, o.Name...)
	for _, v := range []int64{
		int64(o.Location), int64(o.Zone), int64(o.Contents),
		int64(o.Exits), int64(o.Link), int64(o.Next),
		int64(o.Owner), int64(o.Parent), int64(o.Pennies),
		int64(o.Flags[0]), int64(o.Flags[1]), int64(o.Flags[2]),
		int64(o.Powers[0]), int64(o.Powers[1]),
		unixOrZero(o.LastAccess), unixOrZero(o.LastMod), unixOrZero(o.Created),
	} {
		buf = binary.BigEndian.AppendUint64(buf, uint64(v))
	}
	return buf
}

// DecodeObject unpacks an object header blob. The dbref comes from the
// storage key, not the blob.
func DecodeObject(ref DBRef, data []byte) (*Object, error) {
	if len(data) < 3 {
		return nil, fmt.Errorf("object #%d: %w", ref, ErrShortRecord)
	}
	if data[0] != objectBlobVersion {
		return nil, fmt.Errorf("object #%d: unknown record version %d", ref, data[0])
	}
	nameLen := int(binary.BigEndian.Uint16(data[1:3]))
	data = data[3:]
	if len(data) < nameLen+17*8 {
		return nil, fmt.Errorf("object #%d: %w", ref, ErrShortRecord)
	}
	o := &Object{DBRef: ref, Name: string(data[:nameLen])}
	data = data[nameLen:]
	fields := make([]int64, 17)
	for i := range fields {
		fields[i] = int64(binary.BigEndian.Uint64(data[i*8:]))
	}
	o.Location = DBRef(fields[0])
	o.Zone = DBRef(fields[1])
	o.Contents = DBRef(fields[2])
	o.Exits = DBRef(fields[3])
	o.Link = DBRef(fields[4])
	o.Next = DBRef(fields[5])
	o.Owner = DBRef(fields[6])
	o.Parent = DBRef(fields[7])
	o.Pennies = int(fields[8])
	o.Flags[0] = int(fields[9])
	o.Flags[1] = int(fields[10])
	o.Flags[2] = int(fields[11])
	o.Powers[0] = int(fields[12])
	o.Powers[1] = int(fields[13])
	o.LastAccess = timeOrZero(fields[14])
	o.LastMod = timeOrZero(fields[15])
	o.Created = timeOrZero(fields[16])
	return o, nil
}

// EncodeAttrBlock rolls an object's attribute list into one blob:
// a count, then per attribute its number and length-prefixed text.
// The list is stored in number order so lookups can binary search.
func EncodeAttrBlock(attrs []Attribute) []byte {
	size := 4
	for _, a := range attrs {
		size += 8 + len(a.Value)
	}
	buf := make([]byte, 0, size)
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(attrs)))
	for _, a := range attrs {
		buf = binary.BigEndian.AppendUint32(buf, uint32(a.Number))
		buf = binary.BigEndian.AppendUint32(buf, uint32(len(a.Value)))
		buf = append(buf, a.Value...)
	}
	return buf
}

// DecodeAttrBlock unrolls an attribute blob.
func DecodeAttrBlock(data []byte) ([]Attribute, error) {
	if len(data) < 4 {
		return nil, ErrShortRecord
	}
	count := int(binary.BigEndian.Uint32(data))
	data = data[4:]
	// A corrupt count must not drive the allocation; every entry costs
	// at least 8 bytes, so the remaining data bounds it.
	capHint := count
	if max := len(data) / 8; capHint > max {
		capHint = max
	}
	attrs := make([]Attribute, 0, capHint)
	for i := 0; i < count; i++ {
		if len(data) < 8 {
			return nil, ErrShortRecord
		}
		num := int(binary.BigEndian.Uint32(data))
		vlen := int(binary.BigEndian.Uint32(data[4:]))
		data = data[8:]
		if len(data) < vlen {
			return nil, ErrShortRecord
		}
		attrs = append(attrs, Attribute{Number: num, Value: string(data[:vlen])})
		data = data[vlen:]
	}
	return attrs, nil
}

func unixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

func timeOrZero(sec int64) time.Time {
	if sec == 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0)
}
