package dispatch

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/firi/golsp/session"
	"github.com/firi/golsp/wire"
)

func (d *Dispatcher) handleRequest(ctx context.Context, req *wire.Request) {
	method := req.Method

	verdict, rpcErr := d.sess.AdmitRequest(method)
	if verdict == session.Reject {
		d.reply(req.ID, nil, rpcErr)
		return
	}

	handler, ok := d.handlers.requests[method]
	if !ok {
		d.reply(req.ID, nil, wire.NewError(wire.CodeMethodNotFound, "method not found: %s", method))
		// An unregistered `initialize` still leaves the machine in
		// Initializing; let CompleteInitialize revert it.
		d.sess.CompleteInitialize(method, false)
		return
	}

	// Acquiring the semaphore before reading the next frame is what makes
	// this the backpressure gate: a full handler pool stalls the read
	// loop that calls us, rather than buffering unboundedly.
	if err := d.sem.Acquire(d.sess.RootContext(), 1); err != nil {
		return // session exiting; drop the request, nothing to answer into
	}

	reqCtx, cancel := context.WithCancel(d.sess.RootContext())
	d.pendingIn.Store(req.ID, cancel)

	go d.runRequest(reqCtx, cancel, req, handler)
}

func (d *Dispatcher) runRequest(ctx context.Context, cancel context.CancelFunc, req *wire.Request, handler RequestHandler) {
	defer func() {
		d.pendingIn.Delete(req.ID)
		d.sem.Release(1)
		cancel()
		if r := recover(); r != nil {
			d.logger.Error("handler panic", zap.Any("panic", r), zap.String("method", req.Method))
			d.reply(req.ID, nil, wire.NewError(wire.CodeInternalError, "internal error"))
		}
	}()

	result, err := handler(ctx, d.client, req.Params)
	d.sess.CompleteInitialize(req.Method, err == nil)

	// Only this goroutine ever replies for req.ID, so there's no lock to
	// take here; the only question is which verdict it observes. Checking
	// ctx.Err() right after the handler returns means a $/cancelRequest
	// that lands before this line wins even if the handler already
	// produced a result, and one that lands after loses to that result —
	// a handler that itself notices ctx.Err() and returns it gets the
	// same treatment via this same check.
	if ctx.Err() == context.Canceled {
		d.reply(req.ID, nil, wire.NewError(wire.CodeRequestCancelled, "request cancelled"))
		return
	}

	if err != nil {
		d.reply(req.ID, nil, wire.AsError(err))
		return
	}

	raw, merr := json.Marshal(result)
	if merr != nil {
		d.reply(req.ID, nil, wire.NewError(wire.CodeInternalError, "marshal result for %s: %s", req.Method, merr))
		return
	}
	d.reply(req.ID, raw, nil)
}

func (d *Dispatcher) handleNotification(ctx context.Context, note *wire.Notification) {
	if note.Method == wire.MethodCancelRequest {
		d.handleCancel(note.Params)
		return
	}

	verdict := d.sess.AdmitNotification(note.Method)
	if verdict == session.Drop {
		return
	}

	if note.Method == wire.MethodExit {
		d.sess.Exit()
		return
	}

	handler, ok := d.handlers.notifications[note.Method]
	if !ok {
		return
	}

	go func() {
		defer func() {
			if r := recover(); r != nil {
				d.logger.Error("notification handler panic", zap.Any("panic", r), zap.String("method", note.Method))
			}
		}()
		handler(d.sess.RootContext(), d.client, note.Params)
	}()
}

func (d *Dispatcher) handleCancel(raw json.RawMessage) {
	if !d.sess.AdmitCancel() {
		return
	}
	var params struct {
		ID wire.ID `json:"id"`
	}
	if err := json.Unmarshal(raw, &params); err != nil {
		return
	}
	if v, ok := d.pendingIn.Load(params.ID); ok {
		v.(context.CancelFunc)()
	}
}

// reply sends a response through the bound connection, dropping it
// silently once the session has exited — there is no peer left listening.
func (d *Dispatcher) reply(id wire.ID, result []byte, rpcErr *wire.Error) {
	if d.sess.IsExited() {
		return
	}
	if err := d.conn.Reply(id, result, rpcErr); err != nil {
		d.logger.Warn("failed to send reply", zap.Error(err))
	}
}
