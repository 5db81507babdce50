// Package flatfile reads and writes the portable text serialization of
// the whole object database. Three historical dialects are supported on
// read, selected by the header's second character; the feature-flag
// bitmask carried in the header is the single source of truth for which
// optional per-object fields appear, on both read and write.
package flatfile

import "fmt"

// Version feature flags. The low byte is the dialect version number;
// the rest select optional fields and encodings.
const (
	VMask        = 0x000000ff
	VZone        = 0x00000100
	VLink        = 0x00000200
	VGDBM        = 0x00000400
	VAtrName     = 0x00000800
	VAtrKey      = 0x00001000
	VParent      = 0x00002000
	VAtrMoney    = 0x00008000
	VXFlags      = 0x00010000
	VPowers      = 0x00020000
	V3Flags      = 0x00040000
	VQuoted      = 0x00080000
	VTQuotas     = 0x00100000
	VTimestamps  = 0x00200000
	VVisualAttrs = 0x00400000
	VCreateTime  = 0x00800000
	VDBClean     = 0x80000000
)

// MandFlags are the fields every current-dialect dump carries.
const MandFlags = VLink | VParent | VXFlags | VZone | VPowers | V3Flags |
	VQuoted | VTQuotas | VTimestamps | VVisualAttrs | VCreateTime

// OutputFlags is the flag set for dumps feeding the KV store path,
// where names, locks and money ride in the attribute list.
const OutputFlags = MandFlags | VGDBM | VAtrKey | VAtrName | VAtrMoney

// UnloadFlags is the flag set for portable exports.
const UnloadFlags = MandFlags

// OutputVersion is the dialect version number written in the low byte.
const OutputVersion = 1

// Database source formats.
const (
	FUnknown  = 0
	FMush     = 1 // TinyMUSH 2.x (+V header)
	FMuse     = 2
	FMud      = 3
	FMuck     = 4
	FMux      = 5 // TinyMUX (+X header)
	FTinyMUSH = 6 // TinyMUSH 3 (+T header)
)

// FormatName names a source format for log and summary output.
func FormatName(format int) string {
	switch format {
	case FMush:
		return "TinyMUSH 2.x"
	case FMux:
		return "TinyMUX"
	case FTinyMUSH:
		return "TinyMUSH 3"
	default:
		return "unknown"
	}
}

const endOfDumpMarker = "***END OF DUMP***"

// ParseError reports malformed flatfile input with its position.
// Object is the dbref being read when the error struck, or -1.
type ParseError struct {
	Line   int
	Object int
	Msg    string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Object >= 0 {
		return fmt.Sprintf("flatfile: line %d, object #%d: %s", e.Line, e.Object, e.Msg)
	}
	return fmt.Sprintf("flatfile: line %d: %s", e.Line, e.Msg)
}

func (e *ParseError) Unwrap() error { return e.Err }
