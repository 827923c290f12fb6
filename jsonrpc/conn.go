// Package jsonrpc implements the bidirectional peer: one duplex byte
// stream carrying both inbound (server-serving-client) and outbound
// (client-handle-serving-server) JSON-RPC traffic. It classifies inbound
// frames (the demultiplexer), hands requests and notifications off to
// whatever the dispatcher registered, routes inbound responses back to
// whichever outbound call is waiting on them (the response router), and
// serializes all outbound writes through a single multiplexed queue.
//
// Conn deliberately knows nothing about LSP method semantics or session
// lifecycle; that belongs to package dispatch and package session.
package jsonrpc

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/xerrors"

	"github.com/firi/golsp/codec"
	"github.com/firi/golsp/wire"
)

// RequestFunc handles one inbound request. It must eventually answer it
// via Conn.Reply (directly or indirectly) — Conn does not infer a default
// reply from a handler that simply returns.
type RequestFunc func(ctx context.Context, req *wire.Request)

// NotificationFunc handles one inbound notification.
type NotificationFunc func(ctx context.Context, note *wire.Notification)

// Conn is one JSON-RPC peer over a framed duplex stream.
type Conn struct {
	dec    *codec.Decoder
	enc    *codec.Encoder
	logger *zap.Logger

	outbound chan []byte
	closeOnce sync.Once
	closed   chan struct{}

	onRequest      RequestFunc
	onNotification NotificationFunc

	pendingOut sync.Map // wire.ID -> chan wire.Outcome

	batchMu    sync.Mutex
	batchByID  map[wire.ID]*batchState
}

// batchState aggregates the individual replies to the requests inside one
// inbound Batch so they can be answered with a single combined array, in
// the same order they arrived, with notifications omitted.
type batchState struct {
	mu       sync.Mutex
	slots    []wire.Message
	ids      map[wire.ID]int
	pending  int
}

const defaultOutboundCapacity = 256

// NewConn wires a Conn to a decoder/encoder pair. outboundCapacity bounds
// how many frames may be queued for writing before Send blocks; 0 selects
// a sane default.
func NewConn(dec *codec.Decoder, enc *codec.Encoder, logger *zap.Logger, outboundCapacity int) *Conn {
	if outboundCapacity <= 0 {
		outboundCapacity = defaultOutboundCapacity
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Conn{
		dec:       dec,
		enc:       enc,
		logger:    logger,
		outbound:  make(chan []byte, outboundCapacity),
		closed:    make(chan struct{}),
		batchByID: make(map[wire.ID]*batchState),
	}
}

// OnRequest registers the dispatcher's entry point for inbound requests.
// Must be called before ReadLoop starts.
func (c *Conn) OnRequest(fn RequestFunc) { c.onRequest = fn }

// OnNotification registers the dispatcher's entry point for inbound
// notifications. Must be called before ReadLoop starts.
func (c *Conn) OnNotification(fn NotificationFunc) { c.onNotification = fn }

// Send enqueues an outbound message for the write loop. It blocks if the
// outbound queue is full, which is also how backpressure reaches callers
// that issue outbound requests from inside a request handler.
func (c *Conn) Send(m wire.Message) error {
	data, err := wire.Encode(m)
	if err != nil {
		return xerrors.Errorf("jsonrpc: encode outbound message: %w", err)
	}
	select {
	case c.outbound <- data:
		return nil
	case <-c.closed:
		return ErrClosed
	}
}

// Reply answers an inbound request by id. If id belongs to a batch still
// being assembled, the reply is held until every request in that batch
// has replied, then flushed as one combined array.
func (c *Conn) Reply(id wire.ID, result []byte, rpcErr *wire.Error) error {
	if !id.IsValid() {
		return nil // nothing to reply to (shouldn't happen for a real request)
	}
	resp := &wire.Response{ID: id, Outcome: wire.Outcome{Result: result, Err: rpcErr}}

	if bs := c.takeBatchSlot(id); bs != nil {
		bs.mu.Lock()
		idx := bs.ids[id]
		bs.slots[idx] = resp
		bs.pending--
		var flush wire.Batch
		if bs.pending == 0 {
			flush = make(wire.Batch, 0, len(bs.slots))
			for _, m := range bs.slots {
				if m != nil {
					flush = append(flush, m)
				}
			}
		}
		bs.mu.Unlock()
		if flush != nil {
			return c.Send(flush)
		}
		return nil
	}

	return c.Send(resp)
}

func (c *Conn) takeBatchSlot(id wire.ID) *batchState {
	c.batchMu.Lock()
	defer c.batchMu.Unlock()
	bs, ok := c.batchByID[id]
	if !ok {
		return nil
	}
	delete(c.batchByID, id)
	return bs
}

// RegisterPending allocates a slot awaiting the response to an outbound
// request with the given id, used by rpcclient before sending the request
// so there is no race between send and reply arriving.
func (c *Conn) RegisterPending(id wire.ID) <-chan wire.Outcome {
	ch := make(chan wire.Outcome, 1)
	c.pendingOut.Store(id, ch)
	return ch
}

// CancelPending releases a pending slot without expecting a reply, e.g.
// because the caller's context was cancelled.
func (c *Conn) CancelPending(id wire.ID) {
	c.pendingOut.Delete(id)
}

// FailAllPending completes every outstanding outbound request with err,
// used when the session is tearing down and no more responses will ever
// arrive.
func (c *Conn) FailAllPending(err *wire.Error) {
	c.pendingOut.Range(func(key, value interface{}) bool {
		id := key.(wire.ID)
		ch := value.(chan wire.Outcome)
		c.pendingOut.Delete(id)
		select {
		case ch <- wire.Outcome{Err: err}:
		default:
		}
		return true
	})
}

// Close shuts the outbound queue down. It is idempotent.
func (c *Conn) Close() {
	c.closeOnce.Do(func() { close(c.closed) })
}
