package jsonrpc

import (
	"context"

	"go.uber.org/zap"

	"github.com/firi/golsp/codec"
	"github.com/firi/golsp/wire"
)

// ReadLoop is the inbound demultiplexer: it decodes frames in arrival
// order, classifies each as Request/Notification/Response/Batch, and
// hands requests and notifications to the registered callbacks. It
// returns when the underlying stream fails fatally; a malformed
// individual frame is reported back to the peer as a ParseError and does
// not stop the loop.
func (c *Conn) ReadLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		raw, err := c.dec.Decode()
		if err != nil {
			if ferr, ok := asFrameError(err); ok {
				c.logger.Warn("frame error, continuing", zap.Error(ferr))
				_ = c.Send(&wire.Response{Outcome: wire.Outcome{Err: wire.NewError(wire.CodeParseError, "%s", ferr.Error())}})
				continue
			}
			return err
		}

		msg, err := wire.Decode(raw)
		if err != nil {
			c.logger.Warn("decode error, continuing", zap.Error(err))
			_ = c.Send(&wire.Response{Outcome: wire.Outcome{Err: wire.AsError(err)}})
			continue
		}

		c.dispatchInbound(ctx, msg)
	}
}

func asFrameError(err error) (*codec.FrameError, bool) {
	fe, ok := err.(*codec.FrameError)
	return fe, ok
}

func (c *Conn) dispatchInbound(ctx context.Context, msg wire.Message) {
	switch m := msg.(type) {
	case *wire.Request:
		c.deliverRequest(ctx, m)
	case *wire.Notification:
		if c.onNotification != nil {
			c.onNotification(ctx, m)
		}
	case *wire.Response:
		c.routeResponse(m)
	case wire.Batch:
		c.dispatchBatch(ctx, m)
	}
}

func (c *Conn) deliverRequest(ctx context.Context, req *wire.Request) {
	if c.onRequest != nil {
		c.onRequest(ctx, req)
		return
	}
	_ = c.Reply(req.ID, nil, wire.NewError(wire.CodeMethodNotFound, "no dispatcher bound"))
}

func (c *Conn) dispatchBatch(ctx context.Context, batch wire.Batch) {
	bs := &batchState{
		slots: make([]wire.Message, len(batch)),
		ids:   make(map[wire.ID]int),
	}
	for i, item := range batch {
		if req, ok := item.(*wire.Request); ok {
			bs.ids[req.ID] = i
			bs.pending++
		}
	}

	if bs.pending == 0 {
		// No requests to answer; nothing to aggregate, just deliver.
		for _, item := range batch {
			c.dispatchInbound(ctx, item)
		}
		return
	}

	c.batchMu.Lock()
	for id := range bs.ids {
		c.batchByID[id] = bs
	}
	c.batchMu.Unlock()

	for _, item := range batch {
		c.dispatchInbound(ctx, item)
	}
}

func (c *Conn) routeResponse(resp *wire.Response) {
	v, ok := c.pendingOut.LoadAndDelete(resp.ID)
	if !ok {
		c.logger.Warn("response for unknown id, discarding", zap.Stringer("id", resp.ID))
		return
	}
	ch := v.(chan wire.Outcome)
	select {
	case ch <- resp.Outcome:
	default:
		// Slot abandoned (caller's context was already cancelled).
	}
}

// WriteLoop is the outbound multiplexer: every producer — replies from
// the dispatcher, requests and notifications from a client handle — sends
// on the same channel, so this loop gets FIFO-by-enqueue-order delivery
// for free and is the only goroutine that ever touches the encoder.
func (c *Conn) WriteLoop(ctx context.Context) error {
	for {
		select {
		case frame, ok := <-c.outbound:
			if !ok {
				return nil
			}
			if err := c.enc.Encode(frame); err != nil {
				return err
			}
		case <-c.closed:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
