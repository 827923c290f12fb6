// Package lspserver wires the framing codec, the bidirectional peer, the
// dispatcher, and the client handle together into the single entry point
// an embedder calls per connection: Serve.
package lspserver

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/firi/golsp/codec"
	"github.com/firi/golsp/dispatch"
	"github.com/firi/golsp/internal/idgen"
	"github.com/firi/golsp/jsonrpc"
	"github.com/firi/golsp/rpcclient"
	"github.com/firi/golsp/session"
	"github.com/firi/golsp/wire"
)

// Option configures a Server.
type Option func(*Server)

func WithLogger(l *zap.Logger) Option { return func(s *Server) { s.logger = l } }

// WithOutboundCapacity bounds the outbound multiplexer queue. This is also
// effectively the backpressure budget: a Dispatcher built with a larger
// concurrency than this will still never get ahead of what the write side
// can drain, since both block on the same kind of channel capacity.
func WithOutboundCapacity(n int) Option { return func(s *Server) { s.outboundCapacity = n } }

func WithConcurrency(n int64) Option { return func(s *Server) { s.concurrency = n } }

// WithDrainTimeout bounds how long Serve waits for in-flight handlers to
// finish once exit is received, before returning regardless.
func WithDrainTimeout(d time.Duration) Option { return func(s *Server) { s.drainTimeout = d } }

const (
	defaultOutboundCapacity = 256
	defaultConcurrency      = 64
	defaultDrainTimeout     = 2 * time.Second
)

// Server runs one CORE session lifecycle per Serve call: it owns none of
// the byte-stream concerns (stdio, socket, websocket, in-memory pipe are
// all just io.ReadWriter to it).
type Server struct {
	catalog  *dispatch.Catalog
	handlers *dispatch.Handlers
	logger   *zap.Logger

	outboundCapacity int
	concurrency      int64
	drainTimeout     time.Duration
}

func New(catalog *dispatch.Catalog, handlers *dispatch.Handlers, opts ...Option) *Server {
	s := &Server{
		catalog:          catalog,
		handlers:         handlers,
		logger:           zap.NewNop(),
		outboundCapacity: defaultOutboundCapacity,
		concurrency:      defaultConcurrency,
		drainTimeout:     defaultDrainTimeout,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Serve runs a single session over rw until the peer sends exit (or the
// stream fails). The returned exitCode is the process-exit-code contract
// from spec §6: 0 only if shutdown preceded exit, 1 otherwise. Serve
// returns promptly once exit is processed; it does not wait for a reader
// goroutine that may be blocked on a stream the peer never closes, beyond
// the brief drain window given to in-flight handlers.
func (s *Server) Serve(ctx context.Context, rw io.ReadWriter) (exitCode int, err error) {
	sessionID := uuid.NewString()
	logger := s.logger.With(zap.String("session", sessionID))

	sess := session.New(ctx)
	dec := codec.NewDecoder(rw)
	enc := codec.NewEncoder(rw)
	conn := jsonrpc.NewConn(dec, enc, logger, s.outboundCapacity)
	client := rpcclient.New(conn, idgen.New(), logger)

	disp := dispatch.New(s.catalog, s.handlers,
		dispatch.WithLogger(logger),
		dispatch.WithConcurrency(s.concurrency),
	)
	disp.Bind(conn, sess, client)

	g, gctx := errgroup.WithContext(sess.RootContext())
	g.Go(func() error { return conn.ReadLoop(gctx) })
	g.Go(func() error { return conn.WriteLoop(gctx) })

	runErr := make(chan error, 1)
	go func() { runErr <- g.Wait() }()

	select {
	case <-sess.RootContext().Done():
		// exit notification processed: don't wait on readLoop, it may be
		// blocked on a read the embedder's stream never satisfies again.
		drainCtx, cancel := context.WithTimeout(context.Background(), s.drainTimeout)
		if derr := disp.Drain(drainCtx); derr != nil {
			logger.Warn("handlers still in flight at exit", zap.Error(derr))
		}
		cancel()
	case err = <-runErr:
		if errors.Is(err, context.Canceled) {
			err = nil
		}
	}

	conn.Close()
	conn.FailAllPending(wire.NewError(wire.CodeRequestCancelled, "session exited"))

	return sess.ExitCode(), err
}
