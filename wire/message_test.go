package wire_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/firi/golsp/wire"
)

func TestDecodeRequest(t *testing.T) {
	msg, err := wire.Decode([]byte(`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"foo":1}}`))
	require.NoError(t, err)

	req, ok := msg.(*wire.Request)
	require.True(t, ok, "expected *wire.Request, got %T", msg)
	assert.Equal(t, "initialize", req.Method)
	assert.True(t, req.ID.Equal(wire.NewNumberID(1)))
}

func TestDecodeNotification(t *testing.T) {
	msg, err := wire.Decode([]byte(`{"jsonrpc":"2.0","method":"exit"}`))
	require.NoError(t, err)

	note, ok := msg.(*wire.Notification)
	require.True(t, ok, "expected *wire.Notification, got %T", msg)
	assert.Equal(t, "exit", note.Method)
}

func TestDecodeResponseSuccess(t *testing.T) {
	msg, err := wire.Decode([]byte(`{"jsonrpc":"2.0","id":"abc","result":{"ok":true}}`))
	require.NoError(t, err)

	resp, ok := msg.(*wire.Response)
	require.True(t, ok, "expected *wire.Response, got %T", msg)
	assert.True(t, resp.ID.Equal(wire.NewStringID("abc")))
	assert.Nil(t, resp.Outcome.Err)
	assert.JSONEq(t, `{"ok":true}`, string(resp.Outcome.Result))
}

func TestDecodeResponseError(t *testing.T) {
	msg, err := wire.Decode([]byte(`{"jsonrpc":"2.0","id":2,"error":{"code":-32601,"message":"nope"}}`))
	require.NoError(t, err)

	resp := msg.(*wire.Response)
	require.NotNil(t, resp.Outcome.Err)
	assert.Equal(t, wire.CodeMethodNotFound, resp.Outcome.Err.Code)
}

func TestDecodeEmptyBodyIsParseError(t *testing.T) {
	_, err := wire.Decode([]byte(``))
	require.Error(t, err)
	rpcErr, ok := err.(*wire.Error)
	require.True(t, ok)
	assert.Equal(t, wire.CodeParseError, rpcErr.Code)
}

func TestDecodeMessageWithNeitherMethodNorID(t *testing.T) {
	_, err := wire.Decode([]byte(`{"jsonrpc":"2.0"}`))
	require.Error(t, err)
	rpcErr := err.(*wire.Error)
	assert.Equal(t, wire.CodeInvalidRequest, rpcErr.Code)
}

func TestDecodeBatchPreservesOrderAndIsolatesFailures(t *testing.T) {
	msg, err := wire.Decode([]byte(`[
		{"jsonrpc":"2.0","id":1,"method":"a"},
		{"not":"a valid rpc message"},
		{"jsonrpc":"2.0","id":2,"method":"b"}
	]`))
	require.NoError(t, err)

	batch, ok := msg.(wire.Batch)
	require.True(t, ok)
	require.Len(t, batch, 3)

	req1, ok := batch[0].(*wire.Request)
	require.True(t, ok)
	assert.Equal(t, "a", req1.Method)

	errResp, ok := batch[1].(*wire.Response)
	require.True(t, ok)
	require.NotNil(t, errResp.Outcome.Err)
	assert.Equal(t, wire.CodeInvalidRequest, errResp.Outcome.Err.Code)

	req2, ok := batch[2].(*wire.Request)
	require.True(t, ok)
	assert.Equal(t, "b", req2.Method)
}

func TestEncodeRequestAlwaysCarriesVersion(t *testing.T) {
	raw, err := wire.Encode(&wire.Request{ID: wire.NewNumberID(7), Method: "m"})
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "2.0", decoded["jsonrpc"])
	assert.Equal(t, "m", decoded["method"])
	assert.EqualValues(t, 7, decoded["id"])
}

func TestEncodeBatchOfResponses(t *testing.T) {
	batch := wire.Batch{
		&wire.Response{ID: wire.NewNumberID(1), Outcome: wire.Outcome{Result: json.RawMessage(`1`)}},
		&wire.Response{ID: wire.NewNumberID(2), Outcome: wire.Outcome{Err: wire.NewError(wire.CodeInternalError, "boom")}},
	}
	raw, err := wire.Encode(batch)
	require.NoError(t, err)

	var decoded []map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	require.Len(t, decoded, 2)
	assert.EqualValues(t, 1, decoded[0]["id"])
	assert.EqualValues(t, 2, decoded[1]["id"])
}

func TestIDRoundTrip(t *testing.T) {
	for _, id := range []wire.ID{wire.NewNumberID(42), wire.NewStringID("xyz")} {
		raw, err := id.MarshalJSON()
		require.NoError(t, err)

		var got wire.ID
		require.NoError(t, got.UnmarshalJSON(raw))
		assert.True(t, id.Equal(got))
	}
}

func TestIDDistinguishesStringFromNumberLookAlikes(t *testing.T) {
	numeric := wire.NewNumberID(1)
	stringy := wire.NewStringID("1")
	assert.False(t, numeric.Equal(stringy))
}
