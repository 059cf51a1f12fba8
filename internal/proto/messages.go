package proto

import (
	"fmt"
	"strings"
)

// Type is the one-character message tag.
type Type byte

const (
	MsgNameRequest     Type = 'G'
	MsgNameResponse    Type = 'H'
	MsgNearestRequest  Type = 'N'
	MsgNearestResponse Type = 'O'
	MsgExistsRequest   Type = 'E'
	MsgExistsResponse  Type = 'F'
	MsgReadRequest     Type = 'R'
	MsgReadResponse    Type = 'S'
	MsgWriteRequest    Type = 'W'
	MsgWriteResponse   Type = 'X'
	MsgCASRequest      Type = 'C'
	MsgCASResponse     Type = 'D'
	MsgRelay           Type = 'V'
	MsgInformation     Type = 'I'
)

// TxIDLen is the fixed transaction id width.
const TxIDLen = 2

func (t Type) String() string { return string(rune(t)) }

// Known reports whether t belongs to the message catalogue.
func (t Type) Known() bool {
	switch t {
	case MsgNameRequest, MsgNameResponse,
		MsgNearestRequest, MsgNearestResponse,
		MsgExistsRequest, MsgExistsResponse,
		MsgReadRequest, MsgReadResponse,
		MsgWriteRequest, MsgWriteResponse,
		MsgCASRequest, MsgCASResponse,
		MsgRelay, MsgInformation:
		return true
	default:
		return false
	}
}

// Response returns the reply type for a request type.
func (t Type) Response() (Type, bool) {
	switch t {
	case MsgNameRequest:
		return MsgNameResponse, true
	case MsgNearestRequest:
		return MsgNearestResponse, true
	case MsgExistsRequest:
		return MsgExistsResponse, true
	case MsgReadRequest:
		return MsgReadResponse, true
	case MsgWriteRequest:
		return MsgWriteResponse, true
	case MsgCASRequest:
		return MsgCASResponse, true
	default:
		return 0, false
	}
}

// IsResponse reports whether t answers some request.
func (t Type) IsResponse() bool {
	switch t {
	case MsgNameResponse, MsgNearestResponse, MsgExistsResponse,
		MsgReadResponse, MsgWriteResponse, MsgCASResponse:
		return true
	default:
		return false
	}
}

// Message is one datagram: "<txid> <type>[ <payload>]".
type Message struct {
	TxID    string
	Type    Type
	Payload string
}

// ValidTxID reports whether id is two printable, non-space ASCII characters.
func ValidTxID(id string) bool {
	if len(id) != TxIDLen {
		return false
	}
	for i := 0; i < len(id); i++ {
		if id[i] <= ' ' || id[i] > '~' {
			return false
		}
	}
	return true
}

// Parse decodes a datagram. The payload is kept verbatim.
func Parse(b []byte) (Message, error) {
	s := string(b)
	if len(s) < TxIDLen+2 || s[TxIDLen] != ' ' {
		return Message{}, fmt.Errorf("%w: short frame", ErrMalformed)
	}
	txid := s[:TxIDLen]
	if !ValidTxID(txid) {
		return Message{}, fmt.Errorf("%w: bad txid %q", ErrMalformed, txid)
	}
	t := Type(s[TxIDLen+1])
	rest := s[TxIDLen+2:]
	if rest != "" {
		if rest[0] != ' ' {
			return Message{}, fmt.Errorf("%w: type longer than one character", ErrMalformed)
		}
		rest = rest[1:]
	}
	if !t.Known() {
		return Message{}, fmt.Errorf("%w: %q", ErrUnknownType, t)
	}
	return Message{TxID: txid, Type: t, Payload: rest}, nil
}

// String renders the wire form.
func (m Message) String() string {
	var b strings.Builder
	b.Grow(TxIDLen + 3 + len(m.Payload))
	b.WriteString(m.TxID)
	b.WriteByte(' ')
	b.WriteByte(byte(m.Type))
	if m.Payload != "" {
		b.WriteByte(' ')
		b.WriteString(m.Payload)
	}
	return b.String()
}

func (m Message) Bytes() []byte { return []byte(m.String()) }

// WithTxID returns a copy of m carrying id.
func (m Message) WithTxID(id string) Message {
	m.TxID = id
	return m
}
