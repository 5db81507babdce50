package mail

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/crystal-mush/mushdb/pkg/gamedb"
)

const endMarker = "*** END OF DUMP ***"

// Write emits every mailbox: one !<player> record per message, body
// carried as a counted block of raw lines.
func Write(w io.Writer, s *System) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "+V1\n")

	for _, player := range s.players() {
		for _, m := range s.Boxes[player] {
			fmt.Fprintf(bw, "!%d\n", int(player))
			fmt.Fprintf(bw, "%d\n", m.ID)
			fmt.Fprintf(bw, "%d\n", int(m.From))
			fmt.Fprintf(bw, "%d\n", m.Flags)
			fmt.Fprintf(bw, "%d\n", m.Folder)
			fmt.Fprintf(bw, "%d\n", m.Time.Unix())
			fmt.Fprintf(bw, "%q\n", m.Subject)
			fmt.Fprintf(bw, "T%s\n", joinRefs(m.To))
			fmt.Fprintf(bw, "C%s\n", joinRefs(m.CC))
			body := splitBody(m.Body)
			fmt.Fprintf(bw, "B%d\n", len(body))
			for _, line := range body {
				bw.WriteString(line)
				bw.WriteByte('\n')
			}
			bw.WriteString("<\n")
		}
	}

	fmt.Fprintf(bw, "%s\n", endMarker)
	return bw.Flush()
}

// Read parses the file Write emits.
func Read(r io.Reader) (map[gamedb.DBRef][]Message, error) {
	boxes := make(map[gamedb.DBRef][]Message)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	if !scanner.Scan() {
		return nil, fmt.Errorf("mail: empty file")
	}
	if line := strings.TrimSpace(scanner.Text()); !strings.HasPrefix(line, "+V") {
		return nil, fmt.Errorf("mail: expected +V header, got %q", line)
	}

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == endMarker {
			return boxes, scanner.Err()
		}
		if !strings.HasPrefix(line, "!") {
			return nil, fmt.Errorf("mail: expected message record, got %q", line)
		}
		player, err := strconv.Atoi(line[1:])
		if err != nil {
			return nil, fmt.Errorf("mail: bad player dbref %q: %w", line, err)
		}
		msg, err := readMessage(scanner)
		if err != nil {
			return nil, fmt.Errorf("mail: player #%d: %w", player, err)
		}
		boxes[gamedb.DBRef(player)] = append(boxes[gamedb.DBRef(player)], msg)
	}
	return nil, fmt.Errorf("mail: missing end marker")
}

func readMessage(scanner *bufio.Scanner) (Message, error) {
	var m Message

	next := func(what string) (string, error) {
		if !scanner.Scan() {
			return "", fmt.Errorf("unexpected EOF reading %s", what)
		}
		return scanner.Text(), nil
	}
	nextInt := func(what string) (int, error) {
		line, err := next(what)
		if err != nil {
			return 0, err
		}
		v, err := strconv.Atoi(strings.TrimSpace(line))
		if err != nil {
			return 0, fmt.Errorf("bad %s %q: %w", what, line, err)
		}
		return v, nil
	}

	var err error
	if m.ID, err = nextInt("id"); err != nil {
		return m, err
	}
	from, err := nextInt("sender")
	if err != nil {
		return m, err
	}
	m.From = gamedb.DBRef(from)
	if m.Flags, err = nextInt("flags"); err != nil {
		return m, err
	}
	if m.Folder, err = nextInt("folder"); err != nil {
		return m, err
	}
	when, err := nextInt("time")
	if err != nil {
		return m, err
	}
	m.Time = time.Unix(int64(when), 0)

	line, err := next("subject")
	if err != nil {
		return m, err
	}
	if m.Subject, err = strconv.Unquote(strings.TrimSpace(line)); err != nil {
		return m, fmt.Errorf("bad subject %q: %w", line, err)
	}

	if line, err = next("recipient list"); err != nil {
		return m, err
	}
	if !strings.HasPrefix(line, "T") {
		return m, fmt.Errorf("expected recipient list, got %q", line)
	}
	m.To = parseRefs(line[1:])

	if line, err = next("carbon-copy list"); err != nil {
		return m, err
	}
	if !strings.HasPrefix(line, "C") {
		return m, fmt.Errorf("expected carbon-copy list, got %q", line)
	}
	m.CC = parseRefs(line[1:])

	if line, err = next("body header"); err != nil {
		return m, err
	}
	if !strings.HasPrefix(line, "B") {
		return m, fmt.Errorf("expected body header, got %q", line)
	}
	count, err := strconv.Atoi(line[1:])
	if err != nil {
		return m, fmt.Errorf("bad body line count %q: %w", line, err)
	}
	lines := make([]string, 0, count)
	for i := 0; i < count; i++ {
		body, err := next("body line")
		if err != nil {
			return m, err
		}
		lines = append(lines, body)
	}
	m.Body = strings.Join(lines, "\n")

	if line, err = next("terminator"); err != nil {
		return m, err
	}
	if strings.TrimSpace(line) != "<" {
		return m, fmt.Errorf("expected record terminator, got %q", line)
	}
	return m, nil
}

func joinRefs(refs []gamedb.DBRef) string {
	var b strings.Builder
	for i, ref := range refs {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(strconv.Itoa(int(ref)))
	}
	return b.String()
}

func parseRefs(s string) []gamedb.DBRef {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	var refs []gamedb.DBRef
	for _, field := range strings.Fields(s) {
		if v, err := strconv.Atoi(field); err == nil {
			refs = append(refs, gamedb.DBRef(v))
		}
	}
	return refs
}

func splitBody(body string) []string {
	if body == "" {
		return nil
	}
	return strings.Split(body, "\n")
}
