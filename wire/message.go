// Package wire implements the JSON-RPC 2.0 message model: the tagged-union
// Message shape (Request, Notification, Response, Batch) and the framing-
// independent Decode/Encode pair that (de)serializes it. It knows nothing
// about transport framing (see package codec) or about correlating
// responses to requests (see package jsonrpc).
package wire

import (
	"bytes"
	"encoding/json"

	"golang.org/x/xerrors"
)

// Version is the only "jsonrpc" value this package ever writes.
const Version = "2.0"

// version is a zero-sized marker that always encodes as the literal string
// "2.0". Decoding is lenient: a missing or mismatched version is tolerated,
// since real peers are inconsistent about it and rejecting the message
// outright would be more surprising than useful.
type version struct{}

func (version) MarshalJSON() ([]byte, error) { return json.Marshal(Version) }

func (*version) UnmarshalJSON(data []byte) error { return nil }

// Message is a decoded JSON-RPC message: *Request, *Notification, *Response,
// or Batch. The set is closed; callers type-switch on it.
type Message interface {
	isMessage()
}

// Request is an inbound or outbound call that expects a Response.
type Request struct {
	ID     ID
	Method string
	Params json.RawMessage
}

func (*Request) isMessage() {}

// Notification is a fire-and-forget call; it carries no ID and gets no
// Response, successful or not.
type Notification struct {
	Method string
	Params json.RawMessage
}

func (*Notification) isMessage() {}

// Outcome is the result half of a Response: exactly one of Result or Err
// is set.
type Outcome struct {
	Result json.RawMessage
	Err    *Error
}

// Response answers a Request previously sent with the same ID.
type Response struct {
	ID      ID
	Outcome Outcome
}

func (*Response) isMessage() {}

// Batch is an ordered sequence of messages delivered as a single JSON array.
// wire.Decode produces a Batch when the top-level JSON value is an array;
// wire.Encode accepts one only to answer a batch of requests with a single
// combined array of responses — it is never used to send a batch of
// outbound requests.
type Batch []Message

func (Batch) isMessage() {}

// wireMsg is the shape every concrete message marshals to and unmarshals
// from; a single struct overlaying Request/Notification/Response lets one
// Unmarshal classify which variant arrived.
type wireMsg struct {
	Jsonrpc version         `json:"jsonrpc"`
	ID      *ID             `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// Decode classifies and parses a single JSON-RPC payload (the already
// length-delimited body of one frame). A malformed individual message
// within an otherwise well-formed batch does not fail the whole batch;
// it is reported as an embedded *Response carrying the same error Decode
// returns for that message on its own (ParseError or InvalidRequest).
func Decode(data []byte) (Message, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, NewError(CodeParseError, "empty message body")
	}
	if trimmed[0] == '[' {
		var raws []json.RawMessage
		if err := json.Unmarshal(trimmed, &raws); err != nil {
			return nil, NewError(CodeParseError, "invalid batch: %s", err)
		}
		batch := make(Batch, 0, len(raws))
		for _, raw := range raws {
			msg, err := Decode(raw)
			if err != nil {
				rpcErr := AsError(err)
				batch = append(batch, &Response{Outcome: Outcome{Err: rpcErr}})
				continue
			}
			batch = append(batch, msg)
		}
		return batch, nil
	}

	var w wireMsg
	if err := json.Unmarshal(trimmed, &w); err != nil {
		return nil, NewError(CodeParseError, "invalid message: %s", err)
	}

	switch {
	case w.Method != "" && w.ID != nil:
		return &Request{ID: *w.ID, Method: w.Method, Params: w.Params}, nil
	case w.Method != "":
		return &Notification{Method: w.Method, Params: w.Params}, nil
	case w.ID != nil:
		return &Response{ID: *w.ID, Outcome: Outcome{Result: w.Result, Err: w.Error}}, nil
	default:
		return nil, NewError(CodeInvalidRequest, "message has neither method nor id")
	}
}

// Encode serializes a single Message (or a Batch of Responses) into the
// bytes a codec.Encoder frames and writes.
func Encode(m Message) ([]byte, error) {
	switch v := m.(type) {
	case *Request:
		id := v.ID
		return json.Marshal(wireMsg{ID: &id, Method: v.Method, Params: v.Params})
	case *Notification:
		return json.Marshal(wireMsg{Method: v.Method, Params: v.Params})
	case *Response:
		id := v.ID
		return json.Marshal(wireMsg{ID: &id, Result: v.Outcome.Result, Error: v.Outcome.Err})
	case Batch:
		parts := make([]json.RawMessage, 0, len(v))
		for _, item := range v {
			raw, err := Encode(item)
			if err != nil {
				return nil, xerrors.Errorf("wire: encode batch item: %w", err)
			}
			parts = append(parts, raw)
		}
		return json.Marshal(parts)
	default:
		return nil, xerrors.Errorf("wire: unknown message type %T", m)
	}
}
