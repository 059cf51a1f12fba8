package proto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	m, err := Parse([]byte("ab G"))
	require.NoError(t, err)
	assert.Equal(t, Message{TxID: "ab", Type: MsgNameRequest}, m)

	m, err = Parse([]byte("x! W 0 D:k 1 a b "))
	require.NoError(t, err)
	assert.Equal(t, "x!", m.TxID)
	assert.Equal(t, MsgWriteRequest, m.Type)
	assert.Equal(t, "0 D:k 1 a b ", m.Payload)
	assert.Equal(t, "x! W 0 D:k 1 a b ", m.String())
}

func TestParse_Rejects(t *testing.T) {
	for _, raw := range []string{"", "ab", "abG", "a G", "ab GG", "a  G"} {
		_, err := Parse([]byte(raw))
		assert.ErrorIs(t, err, ErrMalformed, "raw %q", raw)
	}
	_, err := Parse([]byte("ab Q"))
	assert.ErrorIs(t, err, ErrUnknownType)
}

func TestType_Response(t *testing.T) {
	pairs := map[Type]Type{
		MsgNameRequest:    MsgNameResponse,
		MsgNearestRequest: MsgNearestResponse,
		MsgExistsRequest:  MsgExistsResponse,
		MsgReadRequest:    MsgReadResponse,
		MsgWriteRequest:   MsgWriteResponse,
		MsgCASRequest:     MsgCASResponse,
	}
	for req, resp := range pairs {
		got, ok := req.Response()
		require.True(t, ok)
		assert.Equal(t, resp, got)
		assert.True(t, resp.IsResponse())
	}
	_, ok := MsgRelay.Response()
	assert.False(t, ok)
	_, ok = MsgInformation.Response()
	assert.False(t, ok)
}

func TestPayloads(t *testing.T) {
	peers := []PeerAddr{{Name: "N:a", Addr: "127.0.0.1:20110"}, {Name: "N:b c", Addr: "10.0.0.2:20111"}}
	got, err := ParseNearestResponse(NearestResponse(peers))
	require.NoError(t, err)
	assert.Equal(t, peers, got)

	empty, err := ParseNearestResponse("")
	require.NoError(t, err)
	assert.Empty(t, empty)

	a, v, err := ParseReadResponse(ReadResponse(AnswerYes, "some value"))
	require.NoError(t, err)
	assert.Equal(t, AnswerYes, a)
	assert.Equal(t, "some value", v)

	a, v, err = ParseReadResponse(ReadResponse(AnswerNo, "ignored"))
	require.NoError(t, err)
	assert.Equal(t, AnswerNo, a)
	assert.Empty(t, v)

	k, val, err := ParseWriteRequest(WriteRequest("D:k", "v w"))
	require.NoError(t, err)
	assert.Equal(t, "D:k", k)
	assert.Equal(t, "v w", val)

	k, cur, next, err := ParseCASRequest(CASRequest("D:k", "old", "new value"))
	require.NoError(t, err)
	assert.Equal(t, []string{"D:k", "old", "new value"}, []string{k, cur, next})

	wr, err := ParseWriteResponse("R")
	require.NoError(t, err)
	assert.Equal(t, WriteReplaced, wr)
	_, err = ParseWriteResponse("Q")
	assert.ErrorIs(t, err, ErrMalformed)

	cr, err := ParseCASResponse("N")
	require.NoError(t, err)
	assert.Equal(t, CASMismatch, cr)

	ans, err := ParseExistsResponse("?")
	require.NoError(t, err)
	assert.Equal(t, AnswerUnknown, ans)
}

func TestRelayPayload(t *testing.T) {
	inner := Message{TxID: "zz", Type: MsgReadRequest, Payload: KeyRequest("D:k")}.String()
	outer := Message{TxID: "q1", Type: MsgRelay, Payload: RelayPayload("N:target node", inner)}

	parsed, err := Parse(outer.Bytes())
	require.NoError(t, err)
	target, raw, err := ParseRelayPayload(parsed.Payload)
	require.NoError(t, err)
	assert.Equal(t, "N:target node", target)
	assert.Equal(t, inner, raw)

	typ, ok := InnermostType(outer.String())
	require.True(t, ok)
	assert.Equal(t, MsgReadRequest, typ)

	twice := Message{TxID: "q2", Type: MsgRelay, Payload: RelayPayload("N:hop", outer.String())}
	typ, ok = InnermostType(twice.String())
	require.True(t, ok)
	assert.Equal(t, MsgReadRequest, typ)

	_, _, err = ParseRelayPayload(EncodeString("N:x"))
	assert.ErrorIs(t, err, ErrMalformed)
}
