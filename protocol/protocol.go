package protocol

import (
	"errors"
	"strings"
)

var (
	ErrInvalidPacket = errors.New("invalid packet format")
)

// Packet types of the relay line protocol.
const (
	TypeHello  = "hello"
	TypeUpdate = "update"
	TypeTyping = "typing"
	TypePing   = "ping"
	TypePong   = "pong"
	TypeOk     = "ok"
	TypeFail   = "fail"
	TypeBye    = "bye"
)

// Packet is one line of the relay protocol: TYPE|FIELD|FIELD|...\n
// Fields are unescaped.
type Packet struct {
	Type   string
	Fields []string
}

// Field returns the i-th field or "" if absent.
func (p *Packet) Field(i int) string {
	if i < 0 || i >= len(p.Fields) {
		return ""
	}
	return p.Fields[i]
}

// ParsePacket splits a line on unescaped '|' and unescapes every part.
func ParsePacket(line string) (*Packet, error) {
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return nil, ErrInvalidPacket
	}

	parts := decodeFields(line)
	if parts[0] == "" {
		return nil, ErrInvalidPacket
	}
	pkt := &Packet{Type: parts[0]}
	if len(parts) > 1 {
		pkt.Fields = parts[1:]
	}
	return pkt, nil
}

// FormatPacket builds a line with every field escaped separately.
func FormatPacket(pktType string, fields ...string) string {
	var b strings.Builder
	b.WriteString(Escape(pktType))
	for _, field := range fields {
		b.WriteByte('|')
		b.WriteString(Escape(field))
	}
	b.WriteByte('\n')
	return b.String()
}

var escaper = strings.NewReplacer(
	`\`, `\\`,
	`|`, `\|`,
	`,`, `\,`,
	"\n", `\n`,
	"\r", `\r`,
)

// unescapes maps the character after a backslash to what it stands for.
var unescapes = map[byte]byte{
	'\\': '\\',
	'|':  '|',
	',':  ',',
	'n':  '\n',
	'r':  '\r',
}

// Escape escapes the line protocol's special characters.
func Escape(s string) string {
	return escaper.Replace(s)
}

func unescape(s string) string {
	return decode(s, false)[0]
}

func decodeFields(s string) []string {
	return decode(s, true)
}

// decode unescapes s, splitting on unescaped '|' when split is set. Unknown
// escapes and a trailing lone backslash are kept as written.
func decode(s string, split bool) []string {
	var (
		fields []string
		cur    strings.Builder
	)
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '\\' && i+1 < len(s):
			i++
			if r, ok := unescapes[s[i]]; ok {
				cur.WriteByte(r)
			} else {
				cur.WriteByte('\\')
				cur.WriteByte(s[i])
			}
		case c == '|' && split:
			fields = append(fields, cur.String())
			cur.Reset()
		default:
			cur.WriteByte(c)
		}
	}
	return append(fields, cur.String())
}
