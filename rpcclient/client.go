// Package rpcclient is the server-to-client handle: the sugar a request
// or notification handler uses to call back into the peer (showMessage,
// publishDiagnostics, workspace/configuration, and friends) over the same
// duplex connection the inbound request arrived on.
package rpcclient

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"
	"golang.org/x/xerrors"

	"github.com/firi/golsp/internal/idgen"
	"github.com/firi/golsp/jsonrpc"
	"github.com/firi/golsp/wire"
)

// Client is cheap to copy and safe to share across goroutines: every
// instance wraps the same underlying Conn and id generator.
type Client struct {
	conn   *jsonrpc.Conn
	ids    *idgen.Generator
	logger *zap.Logger
}

func New(conn *jsonrpc.Conn, ids *idgen.Generator, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{conn: conn, ids: ids, logger: logger}
}

// Clone returns a Client bound to the same connection. It exists to make
// explicit that sharing a Client across goroutines needs no extra care.
func (c *Client) Clone() *Client {
	return &Client{conn: c.conn, ids: c.ids, logger: c.logger}
}

// Notify sends a fire-and-forget notification to the peer.
func (c *Client) Notify(ctx context.Context, method string, params interface{}) error {
	raw, err := marshalParams(params)
	if err != nil {
		return err
	}
	return c.conn.Send(&wire.Notification{Method: method, Params: raw})
}

// Request sends a request to the peer and blocks for its response,
// unmarshaling the result into out (which may be nil if the caller does
// not care about the result shape). Cancelling ctx abandons the wait and
// releases the pending slot; it does not cancel the remote side.
func (c *Client) Request(ctx context.Context, method string, params interface{}, out interface{}) error {
	raw, err := marshalParams(params)
	if err != nil {
		return err
	}

	id := wire.NewNumberID(c.ids.Next())
	ch := c.conn.RegisterPending(id)

	if err := c.conn.Send(&wire.Request{ID: id, Method: method, Params: raw}); err != nil {
		c.conn.CancelPending(id)
		return err
	}

	select {
	case outcome, ok := <-ch:
		if !ok {
			return xerrors.New("rpcclient: pending slot closed without a response")
		}
		if outcome.Err != nil {
			return outcome.Err
		}
		if out != nil && len(outcome.Result) > 0 {
			if err := json.Unmarshal(outcome.Result, out); err != nil {
				return xerrors.Errorf("rpcclient: unmarshal result for %s: %w", method, err)
			}
		}
		return nil
	case <-ctx.Done():
		c.conn.CancelPending(id)
		return ctx.Err()
	}
}

func marshalParams(params interface{}) (json.RawMessage, error) {
	if params == nil {
		return nil, nil
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, xerrors.Errorf("rpcclient: marshal params: %w", err)
	}
	return raw, nil
}
