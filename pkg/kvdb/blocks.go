package kvdb

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/crystal-mush/mushdb/pkg/gamedb"
)

// Records are grouped into fixed-capacity blocks so a dump touches a
// bounded number of keys regardless of how sparse the number space is.
// Capacities are derived from a nominal disk block the way the C
// servers sized their GDBM entries.
const (
	dbBlockSize = 4096

	atrNumBlockSize = (dbBlockSize - 32) / (8 + gamedb.VNameSize)
	objectBlockSize = (dbBlockSize - 32) / 160
)

// metaKey is the well-known key of the database info record.
var metaKey = []byte("TM3")

const metaVersion = 1

// ErrNoMeta is returned by Load when the store has no database info
// record, meaning it was never initialized with a dump.
var ErrNoMeta = errors.New("kvdb: store has no database info record")

var errShortBlock = errors.New("kvdb: truncated block record")

// meta is the database info record: the handful of header values the
// flatfile carries in its +S/+N/-R lines, plus the module record-type
// watermark.
type meta struct {
	Version       int
	Size          int
	NextAttr      int
	RecordPlayers int
	ModuleTop     int
}

func encodeMeta(m *meta) []byte {
	buf := make([]byte, 20)
	binary.BigEndian.PutUint32(buf[0:], uint32(m.Version))
	binary.BigEndian.PutUint32(buf[4:], uint32(m.Size))
	binary.BigEndian.PutUint32(buf[8:], uint32(m.NextAttr))
	binary.BigEndian.PutUint32(buf[12:], uint32(m.RecordPlayers))
	binary.BigEndian.PutUint32(buf[16:], uint32(m.ModuleTop))
	return buf
}

func decodeMeta(data []byte) (*meta, error) {
	if len(data) < 20 {
		return nil, fmt.Errorf("kvdb: database info record is %d bytes: %w", len(data), errShortBlock)
	}
	m := &meta{
		Version:       int(binary.BigEndian.Uint32(data[0:])),
		Size:          int(binary.BigEndian.Uint32(data[4:])),
		NextAttr:      int(binary.BigEndian.Uint32(data[8:])),
		RecordPlayers: int(binary.BigEndian.Uint32(data[12:])),
		ModuleTop:     int(binary.BigEndian.Uint32(data[16:])),
	}
	if m.Version != metaVersion {
		return nil, fmt.Errorf("kvdb: database info version %d not supported", m.Version)
	}
	return m, nil
}

// numBlocks is the block count covering entry numbers [0, total).
func numBlocks(total, blockSize int) int {
	return total/blockSize + 1
}

// encodeAttrDefBlock packs attribute definitions into one block value:
// number, flags, then the length-prefixed name, per definition.
func encodeAttrDefBlock(defs []*gamedb.VAttr) []byte {
	var buf []byte
	for _, def := range defs {
		buf = binary.BigEndian.AppendUint32(buf, uint32(def.Number))
		buf = binary.BigEndian.AppendUint32(buf, uint32(def.Flags))
		buf = append(buf, byte(len(def.Name)))
		buf = append(buf, def.Name...)
	}
	return buf
}

func decodeAttrDefBlock(data []byte) ([]*gamedb.VAttr, error) {
	var defs []*gamedb.VAttr
	for len(data) > 0 {
		if len(data) < 9 {
			return nil, errShortBlock
		}
		num := int(binary.BigEndian.Uint32(data[0:]))
		flags := int(binary.BigEndian.Uint32(data[4:]))
		nameLen := int(data[8])
		data = data[9:]
		if len(data) < nameLen {
			return nil, errShortBlock
		}
		defs = append(defs, &gamedb.VAttr{
			Number: num,
			Name:   string(data[:nameLen]),
			Flags:  flags,
		})
		data = data[nameLen:]
	}
	return defs, nil
}

// encodeObjectBlock packs object header records into one block value:
// dbref, blob length, blob, per object.
func encodeObjectBlock(objs []*gamedb.Object) []byte {
	var buf []byte
	for _, obj := range objs {
		blob := gamedb.EncodeObject(obj)
		buf = binary.BigEndian.AppendUint32(buf, uint32(obj.DBRef))
		buf = binary.BigEndian.AppendUint32(buf, uint32(len(blob)))
		buf = append(buf, blob...)
	}
	return buf
}

func decodeObjectBlock(data []byte) ([]*gamedb.Object, error) {
	var objs []*gamedb.Object
	for len(data) > 0 {
		if len(data) < 8 {
			return nil, errShortBlock
		}
		ref := gamedb.DBRef(binary.BigEndian.Uint32(data[0:]))
		blobLen := int(binary.BigEndian.Uint32(data[4:]))
		data = data[8:]
		if len(data) < blobLen {
			return nil, errShortBlock
		}
		obj, err := gamedb.DecodeObject(ref, data[:blobLen])
		if err != nil {
			return nil, err
		}
		objs = append(objs, obj)
		data = data[blobLen:]
	}
	return objs, nil
}
