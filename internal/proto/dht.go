package proto

import (
	"fmt"
	"strings"
)

// Answer is the tri-state reply of E/F and R/S exchanges.
type Answer byte

const (
	AnswerYes     Answer = 'Y' // key present
	AnswerNo      Answer = 'N' // authoritatively absent
	AnswerUnknown Answer = '?' // not an authority for the key
)

// WriteResult is the reply code of a W request.
type WriteResult byte

const (
	WriteAdded    WriteResult = 'A'
	WriteReplaced WriteResult = 'R'
	WriteRejected WriteResult = 'X'
)

// CASResult is the reply code of a C request.
type CASResult byte

const (
	CASReplaced CASResult = 'R'
	CASAdded    CASResult = 'A'
	CASMismatch CASResult = 'N'
	CASRejected CASResult = 'X'
)

// PeerAddr is one entry of a nearest-node reply.
type PeerAddr struct {
	Name string
	Addr string // host:port
}

func NameResponse(name string) string { return EncodeString(name) }

func ParseNameResponse(p string) (string, error) { return DecodeString(p) }

// NearestRequest carries the target hash as 64 hex characters.
func NearestRequest(hashHex string) string { return EncodeString(hashHex) }

func ParseNearestRequest(p string) (string, error) { return DecodeString(p) }

func NearestResponse(peers []PeerAddr) string {
	var b strings.Builder
	for _, p := range peers {
		b.WriteString(EncodeString(p.Name))
		b.WriteString(EncodeString(p.Addr))
	}
	return b.String()
}

func ParseNearestResponse(p string) ([]PeerAddr, error) {
	d := NewDecoder(p)
	var out []PeerAddr
	for d.Rest() != "" {
		name, err := d.String()
		if err != nil {
			return nil, err
		}
		addr, err := d.String()
		if err != nil {
			return nil, err
		}
		out = append(out, PeerAddr{Name: name, Addr: addr})
	}
	return out, nil
}

// KeyRequest is the payload of E and R requests.
func KeyRequest(key string) string { return EncodeString(key) }

func ParseKeyRequest(p string) (string, error) { return DecodeString(p) }

func ExistsResponse(a Answer) string { return string(rune(a)) }

func ParseExistsResponse(p string) (Answer, error) {
	d := NewDecoder(p)
	c, err := d.Char()
	if err != nil {
		return 0, err
	}
	if d.Rest() != "" {
		return 0, fmt.Errorf("%w: trailing bytes after answer", ErrMalformed)
	}
	return parseAnswer(c)
}

func ReadResponse(a Answer, value string) string {
	if a != AnswerYes {
		value = ""
	}
	return string(rune(a)) + " " + EncodeString(value)
}

func ParseReadResponse(p string) (Answer, string, error) {
	d := NewDecoder(p)
	c, err := d.Char()
	if err != nil {
		return 0, "", err
	}
	a, err := parseAnswer(c)
	if err != nil {
		return 0, "", err
	}
	if d.Rest() == "" {
		if a == AnswerYes {
			return 0, "", fmt.Errorf("%w: missing value", ErrMalformed)
		}
		return a, "", nil
	}
	v, err := d.String()
	if err != nil {
		return 0, "", err
	}
	return a, v, nil
}

func WriteRequest(key, value string) string {
	return EncodeString(key) + EncodeString(value)
}

func ParseWriteRequest(p string) (key, value string, err error) {
	d := NewDecoder(p)
	if key, err = d.String(); err != nil {
		return "", "", err
	}
	if value, err = d.String(); err != nil {
		return "", "", err
	}
	if d.Rest() != "" {
		return "", "", fmt.Errorf("%w: trailing bytes after value", ErrMalformed)
	}
	return key, value, nil
}

func WriteResponse(r WriteResult) string { return string(rune(r)) }

func ParseWriteResponse(p string) (WriteResult, error) {
	c, err := singleChar(p)
	if err != nil {
		return 0, err
	}
	switch r := WriteResult(c); r {
	case WriteAdded, WriteReplaced, WriteRejected:
		return r, nil
	default:
		return 0, fmt.Errorf("%w: write result %q", ErrMalformed, c)
	}
}

func CASRequest(key, current, next string) string {
	return EncodeString(key) + EncodeString(current) + EncodeString(next)
}

func ParseCASRequest(p string) (key, current, next string, err error) {
	d := NewDecoder(p)
	if key, err = d.String(); err != nil {
		return "", "", "", err
	}
	if current, err = d.String(); err != nil {
		return "", "", "", err
	}
	if next, err = d.String(); err != nil {
		return "", "", "", err
	}
	if d.Rest() != "" {
		return "", "", "", fmt.Errorf("%w: trailing bytes after new value", ErrMalformed)
	}
	return key, current, next, nil
}

func CASResponse(r CASResult) string { return string(rune(r)) }

func ParseCASResponse(p string) (CASResult, error) {
	c, err := singleChar(p)
	if err != nil {
		return 0, err
	}
	switch r := CASResult(c); r {
	case CASReplaced, CASAdded, CASMismatch, CASRejected:
		return r, nil
	default:
		return 0, fmt.Errorf("%w: cas result %q", ErrMalformed, c)
	}
}

// RelayPayload wraps an already rendered message for the named target.
func RelayPayload(target, inner string) string {
	return EncodeString(target) + inner
}

// ParseRelayPayload splits a V payload into the target name and the raw
// embedded message.
func ParseRelayPayload(p string) (target, inner string, err error) {
	d := NewDecoder(p)
	if target, err = d.String(); err != nil {
		return "", "", err
	}
	inner = d.Rest()
	if inner == "" {
		return "", "", fmt.Errorf("%w: relay without embedded message", ErrMalformed)
	}
	return target, inner, nil
}

// InnermostType follows nested relay envelopes and returns the type of the
// message finally delivered.
func InnermostType(raw string) (Type, bool) {
	for depth := 0; depth < 32; depth++ {
		m, err := Parse([]byte(raw))
		if err != nil {
			return 0, false
		}
		if m.Type != MsgRelay {
			return m.Type, true
		}
		_, inner, err := ParseRelayPayload(m.Payload)
		if err != nil {
			return 0, false
		}
		raw = inner
	}
	return 0, false
}

func parseAnswer(c byte) (Answer, error) {
	switch a := Answer(c); a {
	case AnswerYes, AnswerNo, AnswerUnknown:
		return a, nil
	default:
		return 0, fmt.Errorf("%w: answer %q", ErrMalformed, c)
	}
}

func singleChar(p string) (byte, error) {
	d := NewDecoder(p)
	c, err := d.Char()
	if err != nil {
		return 0, err
	}
	if d.Rest() != "" {
		return 0, fmt.Errorf("%w: trailing bytes after result", ErrMalformed)
	}
	return c, nil
}
