package flatfile

import (
	"bufio"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/crystal-mush/mushdb/pkg/boolexp"
	"github.com/crystal-mush/mushdb/pkg/gamedb"
)

// Parser reads a flatfile and produces a Database. Field layout is
// driven entirely by the feature flags decoded from the header.
type Parser struct {
	reader  *bufio.Reader
	db      *gamedb.Database
	line    int
	current int // dbref being read, -1 outside object records

	format  int
	version int
	flags   int

	headerSeen   bool
	sizeSeen     bool
	nextAttrSeen bool

	readAttribs    bool
	readName       bool
	readZone       bool
	readLink       bool
	readKey        bool
	readParent     bool
	readMoney      bool
	readExtFlags   bool
	read3Flags     bool
	readTimestamps bool
	readCreateTime bool
	readNewStrings bool
	readPowers     bool
	hasTypedQuotas bool
	hasVisualAttrs bool
}

// Load reads a flatfile from disk and returns a populated Database.
func Load(path string) (*gamedb.Database, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("flatfile: open: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse reads a flatfile from the given reader.
func Parse(r io.Reader) (*gamedb.Database, error) {
	p := &Parser{
		reader:      bufio.NewReaderSize(r, 256*1024),
		db:          gamedb.NewDatabase(),
		line:        1,
		current:     -1,
		format:      FUnknown,
		readAttribs: true,
		readName:    true,
		readKey:     true,
		readMoney:   true,
	}
	if err := p.parse(); err != nil {
		return nil, err
	}
	return p.db, nil
}

func (p *Parser) errf(format string, args ...interface{}) error {
	return &ParseError{Line: p.line, Object: p.current, Msg: fmt.Sprintf(format, args...)}
}

func (p *Parser) wrap(err error, what string) error {
	return &ParseError{Line: p.line, Object: p.current, Msg: what + ": " + err.Error(), Err: err}
}

func (p *Parser) parse() error {
	for {
		ch, err := p.peekByte()
		if err == io.EOF {
			return p.errf("unexpected end of file, no end-of-dump marker")
		}
		if err != nil {
			return p.wrap(err, "read")
		}

		switch ch {
		case '+':
			if err := p.parseHeader(); err != nil {
				return err
			}
		case '-':
			if err := p.parseMiscTag(); err != nil {
				return err
			}
		case '!':
			if err := p.parseObject(); err != nil {
				return err
			}
		case '*':
			if err := p.parseEndMarker(); err != nil {
				return err
			}
			p.repair()
			return nil
		case '\n', '\r':
			p.readLine()
		default:
			return p.errf("illegal character %q", ch)
		}
	}
}

// parseHeader handles '+' lines: dialect headers +T/+V/+X, size +S,
// next-free attr +N, attribute definitions +A, freed slots +F.
func (p *Parser) parseHeader() error {
	p.readByte() // '+'
	ch, err := p.readByte()
	if err != nil {
		return p.wrap(err, "header")
	}

	switch ch {
	case 'T', 'V', 'X':
		if p.headerSeen {
			log.Printf("flatfile: line %d: duplicate version header, ignored", p.line)
			p.readLine()
			return nil
		}
		p.headerSeen = true
		val, err := p.readInt()
		if err != nil {
			return p.wrap(err, "version header")
		}
		p.applyVersionFlags(ch, val)

	case 'S':
		val, err := p.readInt()
		if err != nil {
			return p.wrap(err, "size header")
		}
		if p.sizeSeen {
			log.Printf("flatfile: line %d: duplicate size entry, ignored", p.line)
		} else {
			p.db.Size = val
		}
		p.sizeSeen = true

	case 'N':
		val, err := p.readInt()
		if err != nil {
			return p.wrap(err, "next-attr header")
		}
		if p.nextAttrSeen {
			log.Printf("flatfile: line %d: duplicate next free vattr entry, ignored", p.line)
		} else {
			p.db.NextAttr = val
		}
		p.nextAttrSeen = true

	case 'A':
		return p.parseAttrDef()

	case 'F':
		if _, err := p.readInt(); err != nil {
			return p.wrap(err, "free-slot header")
		}

	default:
		log.Printf("flatfile: line %d: unexpected header character %q, ignored", p.line, ch)
		p.readLine()
	}
	return nil
}

func (p *Parser) applyVersionFlags(dialect byte, val int) {
	p.flags = val &^ VMask
	p.version = val & VMask
	p.db.Flags = p.flags
	p.db.Version = p.version

	if val&VGDBM != 0 {
		p.readAttribs = false
		p.readName = val&VAtrName == 0
	}
	p.readZone = val&VZone != 0
	p.readLink = val&VLink != 0
	p.readKey = val&VAtrKey == 0
	p.readParent = val&VParent != 0
	p.readMoney = val&VAtrMoney == 0
	p.readExtFlags = val&VXFlags != 0
	p.hasTypedQuotas = val&VTQuotas != 0
	p.readTimestamps = val&VTimestamps != 0
	p.hasVisualAttrs = val&VVisualAttrs != 0
	p.readCreateTime = val&VCreateTime != 0

	switch dialect {
	case 'T':
		p.format = FTinyMUSH
	case 'V':
		p.format = FMush
	case 'X':
		p.format = FMux
	}
	if dialect != 'V' {
		p.read3Flags = val&V3Flags != 0
		p.readPowers = val&VPowers != 0
		p.readNewStrings = val&VQuoted != 0
	}
	p.db.Format = p.format
}

// parseAttrDef handles +A<num> followed by a "flags:name" string.
func (p *Parser) parseAttrDef() error {
	num, err := p.readInt()
	if err != nil {
		return p.wrap(err, "attr def number")
	}
	str, err := p.readString()
	if err != nil {
		return p.wrap(err, "attr def string")
	}

	aflags := 0
	name := str
	if len(str) > 0 && str[0] >= '0' && str[0] <= '9' {
		i := 0
		for i < len(str) && str[i] >= '0' && str[i] <= '9' {
			aflags = aflags*10 + int(str[i]-'0')
			i++
		}
		if i < len(str) && str[i] == ':' {
			i++
		}
		name = str[i:]
		if !p.hasVisualAttrs {
			// Older dumps only knew ODark; everything else was
			// visible. Translate to the visual-attr model.
			if aflags&gamedb.AFODark != 0 {
				aflags &^= gamedb.AFODark
			} else {
				aflags |= gamedb.AFVisual
			}
		}
	}
	if _, err := p.db.DefineAttr(num, name, aflags); err != nil {
		log.Printf("flatfile: line %d: bad attribute definition %d: %v", p.line, num, err)
	}
	return nil
}

func (p *Parser) parseMiscTag() error {
	p.readByte() // '-'
	ch, err := p.readByte()
	if err != nil {
		return p.wrap(err, "misc tag")
	}
	switch ch {
	case 'R':
		val, err := p.readInt()
		if err != nil {
			return p.wrap(err, "record-players tag")
		}
		p.db.RecordPlayers = val
	default:
		p.readLine()
	}
	return nil
}

// parseObject reads one !<dbref> record with the fields the active
// feature flags select.
func (p *Parser) parseObject() error {
	if p.format == FUnknown {
		// Headerless file: assume the current dialect, version 1.
		p.format = FTinyMUSH
		p.version = 1
		p.db.Format = p.format
		p.db.Version = 1
	}

	p.readByte() // '!'
	ref, err := p.readInt()
	if err != nil {
		return p.wrap(err, "object dbref")
	}
	p.current = ref
	defer func() { p.current = -1 }()

	obj := &gamedb.Object{
		DBRef:    gamedb.DBRef(ref),
		Location: gamedb.Nothing,
		Zone:     gamedb.Nothing,
		Contents: gamedb.Nothing,
		Exits:    gamedb.Nothing,
		Link:     gamedb.Nothing,
		Next:     gamedb.Nothing,
		Owner:    gamedb.Nothing,
		Parent:   gamedb.Nothing,
	}

	if p.readName {
		name, err := p.readString()
		if err != nil {
			return p.wrap(err, "name")
		}
		obj.Name = sanitizeName(name)
	}
	if obj.Location, err = p.readRef("location"); err != nil {
		return err
	}
	if p.readZone {
		if obj.Zone, err = p.readRef("zone"); err != nil {
			return err
		}
	}
	if obj.Contents, err = p.readRef("contents"); err != nil {
		return err
	}
	if obj.Exits, err = p.readRef("exits"); err != nil {
		return err
	}
	if p.readLink {
		if obj.Link, err = p.readRef("link"); err != nil {
			return err
		}
	}
	if obj.Next, err = p.readRef("next"); err != nil {
		return err
	}

	if p.readKey {
		lock, err := p.readBoolExp()
		if err != nil {
			return err
		}
		obj.Lock = lock
		if lock != nil {
			obj.SetAttr(gamedb.A_LOCK, boolexp.Unparse(p.db, lock))
		}
	}

	if obj.Owner, err = p.readRef("owner"); err != nil {
		return err
	}
	if p.readParent {
		if obj.Parent, err = p.readRef("parent"); err != nil {
			return err
		}
	}
	if p.readMoney {
		if obj.Pennies, err = p.readIntField("pennies"); err != nil {
			return err
		}
	}

	f1, err := p.readIntField("flags")
	if err != nil {
		return err
	}
	f2, f3 := 0, 0
	if p.readExtFlags {
		if f2, err = p.readIntField("flags2"); err != nil {
			return err
		}
	}
	if p.read3Flags {
		if f3, err = p.readIntField("flags3"); err != nil {
			return err
		}
	}
	isPlayer := gamedb.ObjectType(f1&gamedb.TypeMask) == gamedb.TypePlayer
	var builderPower bool
	obj.Flags[0], obj.Flags[1], obj.Flags[2], builderPower =
		upgradeFlags(p.format, p.version, f1, f2, f3, isPlayer)

	if p.readPowers {
		if obj.Powers[0], err = p.readIntField("powers"); err != nil {
			return err
		}
		if obj.Powers[1], err = p.readIntField("powers2"); err != nil {
			return err
		}
	}
	if builderPower {
		obj.Powers[1] |= gamedb.Pow2Builder
	}

	if p.readTimestamps {
		acc, err := p.readLongField("access time")
		if err != nil {
			return err
		}
		mod, err := p.readLongField("mod time")
		if err != nil {
			return err
		}
		obj.LastAccess = time.Unix(acc, 0)
		obj.LastMod = time.Unix(mod, 0)
	} else {
		now := time.Now()
		obj.LastAccess, obj.LastMod = now, now
	}
	if p.readCreateTime {
		created, err := p.readLongField("create time")
		if err != nil {
			return err
		}
		obj.Created = time.Unix(created, 0)
	} else {
		obj.Created = obj.LastAccess
	}

	if p.readAttribs {
		if err := p.readAttrList(obj); err != nil {
			return err
		}
	}

	// Fold fields that rode in the attribute list back into the record.
	if !p.readName {
		if name, ok := obj.GetAttr(gamedb.A_NAME); ok {
			obj.Name = sanitizeName(name)
			obj.ClearAttr(gamedb.A_NAME)
		}
	}
	if !p.readMoney {
		if money, ok := obj.GetAttr(gamedb.A_MONEY); ok {
			obj.Pennies, _ = strconv.Atoi(money)
			obj.ClearAttr(gamedb.A_MONEY)
		}
	}

	if _, dup := p.db.Objects[obj.DBRef]; dup {
		log.Printf("flatfile: line %d: duplicate object #%d, record dropped", p.line, ref)
		return nil
	}
	p.db.Objects[obj.DBRef] = obj
	if int(obj.DBRef) >= p.db.Size {
		p.db.Size = int(obj.DBRef) + 1
	}
	return nil
}

// readAttrList reads > entries until the < terminator.
func (p *Parser) readAttrList(obj *gamedb.Object) error {
	for {
		ch, err := p.readByte()
		if err != nil {
			return p.errf("unexpected end of file in attribute list")
		}
		switch ch {
		case '>':
			num, err := p.readInt()
			if err != nil {
				return p.wrap(err, "attribute number")
			}
			num = unscrambleAttrNum(p.format, num)
			val, err := p.readString()
			if err != nil {
				return p.wrap(err, "attribute value")
			}
			if num > 0 {
				obj.SetAttr(num, val)
			}
			// Nonpositive numbers are silently discarded.
		case '<':
			if next, err := p.peekByte(); err == nil && next == '\n' {
				p.readByte()
			} else {
				log.Printf("flatfile: line %d: no line feed after attribute list of #%d", p.line, p.current)
			}
			return nil
		case '\n':
			// Stray newlines appear in some historical dumps.
		default:
			log.Printf("flatfile: line %d: bad character %q in attribute list of #%d, value skipped", p.line, ch, p.current)
			p.readString()
		}
	}
}

// readBoolExp reads an in-stream lock expression and its terminator.
func (p *Parser) readBoolExp() (*gamedb.BoolExp, error) {
	b, err := boolexp.Read(p.db, p.reader)
	if err != nil {
		return nil, &ParseError{Line: p.line, Object: p.current, Msg: "lock: " + err.Error(), Err: err}
	}
	ch, err := p.readByte()
	if err != nil || ch != '\n' {
		return nil, p.errf("missing newline after lock expression")
	}
	// A second newline may follow; older writers emitted one.
	if next, err := p.peekByte(); err == nil && next == '\n' {
		p.readByte()
	}
	return b, nil
}

func (p *Parser) parseEndMarker() error {
	line, err := p.readLine()
	if err != nil && err != io.EOF {
		return p.wrap(err, "end marker")
	}
	if line != endOfDumpMarker {
		return p.errf("bad end-of-dump marker %q", line)
	}
	return nil
}

// repair applies the dialect fixups that need the whole database.
func (p *Parser) repair() {
	if !p.hasTypedQuotas {
		fixTypedQuotas(p.db)
	}
	if p.format == FMux {
		fixMuxZones(p.db)
	}
}

// --- low-level input helpers ---

func (p *Parser) peekByte() (byte, error) {
	b, err := p.reader.Peek(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (p *Parser) readByte() (byte, error) {
	b, err := p.reader.ReadByte()
	if b == '\n' {
		p.line++
	}
	return b, err
}

// readLine reads through the newline, returning the content before it.
func (p *Parser) readLine() (string, error) {
	line, err := p.reader.ReadString('\n')
	if strings.HasSuffix(line, "\n") {
		p.line++
	}
	return strings.TrimRight(line, "\r\n"), err
}

func (p *Parser) readInt() (int, error) {
	line, err := p.readLine()
	if err != nil && err != io.EOF {
		return 0, err
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return 0, fmt.Errorf("empty numeric field")
	}
	return strconv.Atoi(line)
}

func (p *Parser) readRef(what string) (gamedb.DBRef, error) {
	n, err := p.readInt()
	if err != nil {
		return gamedb.Nothing, p.wrap(err, what)
	}
	return gamedb.DBRef(n), nil
}

func (p *Parser) readIntField(what string) (int, error) {
	n, err := p.readInt()
	if err != nil {
		return 0, p.wrap(err, what)
	}
	return n, nil
}

func (p *Parser) readLongField(what string) (int64, error) {
	line, err := p.readLine()
	if err != nil && err != io.EOF {
		return 0, p.wrap(err, what)
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return 0, p.errf("empty %s field", what)
	}
	v, perr := strconv.ParseInt(line, 10, 64)
	if perr != nil {
		return 0, p.wrap(perr, what)
	}
	return v, nil
}

// readString reads one value string: a plain newline-terminated line,
// or a quoted string when the dialect uses them. Inside quotes a
// backslash escapes the next byte and raw newlines are preserved.
func (p *Parser) readString() (string, error) {
	if !p.readNewStrings {
		return p.readLine()
	}
	ch, err := p.peekByte()
	if err != nil {
		return "", err
	}
	if ch != '"' {
		return p.readLine()
	}

	p.readByte() // opening quote
	var buf strings.Builder
	for {
		b, err := p.readByte()
		if err != nil {
			return "", p.errf("unterminated quoted string")
		}
		switch b {
		case '"':
			if next, err := p.peekByte(); err == nil && (next == '\n' || next == '\r') {
				p.readLine()
			}
			return buf.String(), nil
		case '\\':
			next, err := p.readByte()
			if err != nil {
				return "", p.errf("unterminated quoted string")
			}
			buf.WriteByte(next)
		default:
			buf.WriteByte(b)
		}
	}
}
