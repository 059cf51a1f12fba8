package proto

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	ErrMalformed   = errors.New("proto: malformed frame")
	ErrUnknownType = errors.New("proto: unknown message type")
)

// EncodeString frames s as "<spaces> <s> " where <spaces> is the number of
// space characters inside s. The count lets a reader find the end of s
// without any escaping.
func EncodeString(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 4)
	b.WriteString(strconv.Itoa(strings.Count(s, " ")))
	b.WriteByte(' ')
	b.WriteString(s)
	b.WriteByte(' ')
	return b.String()
}

// DecodeString decodes a single framed string. Trailing bytes after the
// frame are an error; use a Decoder for payloads carrying several fields.
func DecodeString(framed string) (string, error) {
	d := NewDecoder(framed)
	s, err := d.String()
	if err != nil {
		return "", err
	}
	if d.Rest() != "" {
		return "", fmt.Errorf("%w: %d trailing bytes", ErrMalformed, len(d.Rest()))
	}
	return s, nil
}

// Decoder reads consecutive fields out of a payload.
type Decoder struct {
	s   string
	pos int
}

func NewDecoder(payload string) *Decoder {
	return &Decoder{s: payload}
}

// String reads one framed string.
func (d *Decoder) String() (string, error) {
	rest := d.s[d.pos:]
	sp := strings.IndexByte(rest, ' ')
	if sp <= 0 {
		return "", fmt.Errorf("%w: missing space count", ErrMalformed)
	}
	n, err := strconv.Atoi(rest[:sp])
	if err != nil || n < 0 || rest[0] == '+' {
		return "", fmt.Errorf("%w: bad space count %q", ErrMalformed, rest[:sp])
	}

	body := rest[sp+1:]
	end := -1
	seen := 0
	for i := 0; i < len(body); i++ {
		if body[i] != ' ' {
			continue
		}
		if seen == n {
			end = i
			break
		}
		seen++
	}
	if end < 0 {
		return "", fmt.Errorf("%w: unterminated string", ErrMalformed)
	}

	d.pos += sp + 1 + end + 1
	return body[:end], nil
}

// Char reads a single character field followed by a space or the end of
// the payload.
func (d *Decoder) Char() (byte, error) {
	rest := d.s[d.pos:]
	if rest == "" {
		return 0, fmt.Errorf("%w: missing field", ErrMalformed)
	}
	if len(rest) > 1 && rest[1] != ' ' {
		return 0, fmt.Errorf("%w: field longer than one character", ErrMalformed)
	}
	c := rest[0]
	if c == ' ' {
		return 0, fmt.Errorf("%w: empty field", ErrMalformed)
	}
	d.pos++
	if len(rest) > 1 {
		d.pos++
	}
	return c, nil
}

// Rest returns everything not consumed yet.
func (d *Decoder) Rest() string { return d.s[d.pos:] }
