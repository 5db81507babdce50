package comsys

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/crystal-mush/mushdb/pkg/gamedb"
)

const endMarker = "*** END OF DUMP ***"

// Read parses a mod_comsys.db file: a +V4 channel section, a +V1
// alias section, and the end marker.
func Read(r io.Reader) ([]Channel, []Alias, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	if !scanner.Scan() {
		return nil, nil, fmt.Errorf("comsys: empty file")
	}
	line := strings.TrimSpace(scanner.Text())
	if !strings.HasPrefix(line, "+V") {
		return nil, nil, fmt.Errorf("comsys: expected +V header, got %q", line)
	}

	var channels []Channel
	for scanner.Scan() {
		line = strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "+V") {
			break // alias section header
		}
		ch, err := readChannel(line, scanner)
		if err != nil {
			return nil, nil, fmt.Errorf("comsys: channel: %w", err)
		}
		channels = append(channels, ch)
	}

	var aliases []Alias
	for scanner.Scan() {
		line = strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == endMarker {
			break
		}
		alias, err := readAlias(line, scanner)
		if err != nil {
			return nil, nil, fmt.Errorf("comsys: alias: %w", err)
		}
		aliases = append(aliases, alias)
	}

	return channels, aliases, scanner.Err()
}

// Write emits the flatfile Read understands.
func Write(w io.Writer, channels []Channel, aliases []Alias) error {
	bw := bufio.NewWriter(w)

	fmt.Fprintf(bw, "+V4\n")
	for _, ch := range channels {
		fmt.Fprintf(bw, "%q\n", ch.Name)
		fmt.Fprintf(bw, "%d\n", int(ch.Owner))
		fmt.Fprintf(bw, "%d\n", ch.Flags)
		fmt.Fprintf(bw, "%d\n", ch.Charge)
		fmt.Fprintf(bw, "%d\n", ch.ChargeCollected)
		fmt.Fprintf(bw, "%d\n", ch.NumSent)
		fmt.Fprintf(bw, "%q\n", ch.Description)
		fmt.Fprintf(bw, "%q\n", escapeANSI(ch.Header))
		writeLock(bw, ch.JoinLock)
		writeLock(bw, ch.TransLock)
		writeLock(bw, ch.RecvLock)
		bw.WriteString("<\n")
	}

	fmt.Fprintf(bw, "+V1\n")
	for _, a := range aliases {
		fmt.Fprintf(bw, "%d\n", int(a.Player))
		fmt.Fprintf(bw, "%q\n", a.Channel)
		fmt.Fprintf(bw, "%q\n", a.Alias)
		fmt.Fprintf(bw, "%q\n", a.Title)
		listening := 0
		if a.IsListening {
			listening = 1
		}
		fmt.Fprintf(bw, "%d\n", listening)
		bw.WriteString("<\n")
	}

	fmt.Fprintf(bw, "%s\n", endMarker)
	return bw.Flush()
}

func writeLock(w *bufio.Writer, lock string) {
	if lock != "" {
		w.WriteString(lock)
		w.WriteByte('\n')
	}
	w.WriteString("-\n")
}

// readChannel parses one channel record; the quoted name line has
// already been read.
func readChannel(nameLine string, scanner *bufio.Scanner) (Channel, error) {
	var ch Channel
	ch.Name = unquote(nameLine)

	fields := []struct {
		name string
		dst  *int
	}{
		{"owner", nil},
		{"flags", &ch.Flags},
		{"charge", &ch.Charge},
		{"charge_collected", &ch.ChargeCollected},
		{"num_sent", &ch.NumSent},
	}
	for _, f := range fields {
		if !scanner.Scan() {
			return ch, fmt.Errorf("unexpected EOF reading channel %s", f.name)
		}
		v, err := strconv.Atoi(strings.TrimSpace(scanner.Text()))
		if err != nil {
			return ch, fmt.Errorf("bad channel %s %q: %w", f.name, scanner.Text(), err)
		}
		if f.dst != nil {
			*f.dst = v
		} else {
			ch.Owner = gamedb.DBRef(v)
		}
	}

	if !scanner.Scan() {
		return ch, fmt.Errorf("unexpected EOF reading channel description")
	}
	ch.Description = unquote(strings.TrimSpace(scanner.Text()))

	if !scanner.Scan() {
		return ch, fmt.Errorf("unexpected EOF reading channel header")
	}
	ch.Header = unescapeANSI(unquote(strings.TrimSpace(scanner.Text())))

	ch.JoinLock = readLockUntilDash(scanner)
	ch.TransLock = readLockUntilDash(scanner)
	ch.RecvLock = readLockUntilDash(scanner)

	for scanner.Scan() {
		if strings.TrimSpace(scanner.Text()) == "<" {
			break
		}
	}
	return ch, nil
}

// readLockUntilDash collects lock text up to the "-" separator line.
func readLockUntilDash(scanner *bufio.Scanner) string {
	var parts []string
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "-" {
			break
		}
		if line != "" {
			parts = append(parts, line)
		}
	}
	return strings.Join(parts, "\n")
}

// readAlias parses one alias record; the player dbref line has
// already been read.
func readAlias(dbrefLine string, scanner *bufio.Scanner) (Alias, error) {
	var a Alias

	ref, err := strconv.Atoi(strings.TrimSpace(dbrefLine))
	if err != nil {
		return a, fmt.Errorf("bad player dbref %q: %w", dbrefLine, err)
	}
	a.Player = gamedb.DBRef(ref)

	read := func(what string) (string, error) {
		if !scanner.Scan() {
			return "", fmt.Errorf("unexpected EOF reading alias %s", what)
		}
		return strings.TrimSpace(scanner.Text()), nil
	}

	line, err := read("channel")
	if err != nil {
		return a, err
	}
	a.Channel = unquote(line)

	if line, err = read("name"); err != nil {
		return a, err
	}
	a.Alias = unquote(line)

	if line, err = read("title"); err != nil {
		return a, err
	}
	a.Title = unquote(line)

	if line, err = read("listening flag"); err != nil {
		return a, err
	}
	a.IsListening = line == "1"

	for scanner.Scan() {
		if strings.TrimSpace(scanner.Text()) == "<" {
			break
		}
	}
	return a, nil
}

// unquote removes surrounding double quotes and their escapes.
func unquote(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		if u, err := strconv.Unquote(s); err == nil {
			return u
		}
		return s[1 : len(s)-1]
	}
	return s
}

// The on-disk form carries ESC as the \e sequence.
func unescapeANSI(s string) string {
	return strings.ReplaceAll(s, `\e`, "\x1b")
}

func escapeANSI(s string) string {
	return strings.ReplaceAll(s, "\x1b", `\e`)
}
