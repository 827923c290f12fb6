package dispatch_test

import (
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/firi/golsp/codec"
	"github.com/firi/golsp/dispatch"
	"github.com/firi/golsp/internal/idgen"
	"github.com/firi/golsp/jsonrpc"
	"github.com/firi/golsp/rpcclient"
	"github.com/firi/golsp/session"
	"github.com/firi/golsp/wire"
)

// harness drives a Dispatcher from the peer side of an in-memory pipe, the
// way lspserver.Server would over a real stream.
type harness struct {
	peer *jsonrpc.Conn
	sess *session.Machine
}

func newHarness(t *testing.T, catalog *dispatch.Catalog, handlers *dispatch.Handlers, opts ...dispatch.Option) *harness {
	t.Helper()
	serverR, peerW := io.Pipe()
	peerR, serverW := io.Pipe()

	logger := zap.NewNop()
	serverConn := jsonrpc.NewConn(codec.NewDecoder(serverR), codec.NewEncoder(serverW), logger, 16)
	peerConn := jsonrpc.NewConn(codec.NewDecoder(peerR), codec.NewEncoder(peerW), logger, 16)

	sess := session.New(context.Background())
	client := rpcclient.New(serverConn, idgen.New(), logger)

	d := dispatch.New(catalog, handlers, opts...)
	d.Bind(serverConn, sess, client)

	ctx := sess.RootContext()
	go serverConn.ReadLoop(ctx)
	go serverConn.WriteLoop(ctx)
	go peerConn.ReadLoop(ctx)
	go peerConn.WriteLoop(ctx)

	return &harness{peer: peerConn, sess: sess}
}

func (h *harness) request(t *testing.T, id wire.ID, method string, params interface{}) wire.Outcome {
	t.Helper()
	raw, err := json.Marshal(params)
	require.NoError(t, err)
	ch := h.peer.RegisterPending(id)
	require.NoError(t, h.peer.Send(&wire.Request{ID: id, Method: method, Params: raw}))
	select {
	case outcome := <-ch:
		return outcome
	case <-time.After(2 * time.Second):
		t.Fatalf("no response to %s within deadline", method)
		return wire.Outcome{}
	}
}

func initializeCatalog() *dispatch.Catalog {
	return dispatch.NewCatalog(
		dispatch.MethodSpec{Name: wire.MethodInitialize, Kind: dispatch.KindRequest, Required: true},
		dispatch.MethodSpec{Name: wire.MethodShutdown, Kind: dispatch.KindRequest, Required: true},
		dispatch.MethodSpec{Name: "textDocument/hover", Kind: dispatch.KindRequest},
		dispatch.MethodSpec{Name: "textDocument/slow", Kind: dispatch.KindRequest},
	)
}

func TestRequestBeforeInitializeIsRejected(t *testing.T) {
	h := newHarness(t, initializeCatalog(), dispatch.NewHandlers())
	outcome := h.request(t, wire.NewNumberID(1), "textDocument/hover", nil)
	require.NotNil(t, outcome.Err)
	assert.Equal(t, wire.CodeServerNotInitialized, outcome.Err.Code)
}

func TestHandlerDispatchAfterInitialize(t *testing.T) {
	handlers := dispatch.NewHandlers()
	dispatch.TypedRequest(handlers, "textDocument/hover", func(ctx context.Context, c *rpcclient.Client, p struct{}) (string, error) {
		return "hovered", nil
	})

	h := newHarness(t, initializeCatalog(), handlers)

	init := h.request(t, wire.NewNumberID(1), wire.MethodInitialize, nil)
	require.Nil(t, init.Err)

	hover := h.request(t, wire.NewNumberID(2), "textDocument/hover", struct{}{})
	require.Nil(t, hover.Err)
	assert.JSONEq(t, `"hovered"`, string(hover.Result))
}

func TestUnknownMethodIsMethodNotFound(t *testing.T) {
	handlers := dispatch.NewHandlers()
	h := newHarness(t, initializeCatalog(), handlers)

	init := h.request(t, wire.NewNumberID(1), wire.MethodInitialize, nil)
	require.Nil(t, init.Err)

	outcome := h.request(t, wire.NewNumberID(2), "nonexistent/method", nil)
	require.NotNil(t, outcome.Err)
	assert.Equal(t, wire.CodeMethodNotFound, outcome.Err.Code)
}

func TestPanicInHandlerBecomesInternalError(t *testing.T) {
	handlers := dispatch.NewHandlers()
	handlers.Request("textDocument/hover", func(ctx context.Context, c *rpcclient.Client, raw json.RawMessage) (interface{}, error) {
		panic("boom")
	})

	h := newHarness(t, initializeCatalog(), handlers)
	init := h.request(t, wire.NewNumberID(1), wire.MethodInitialize, nil)
	require.Nil(t, init.Err)

	outcome := h.request(t, wire.NewNumberID(2), "textDocument/hover", nil)
	require.NotNil(t, outcome.Err)
	assert.Equal(t, wire.CodeInternalError, outcome.Err.Code)
}

func TestDoubleInitializeOverWireIsRejected(t *testing.T) {
	h := newHarness(t, initializeCatalog(), dispatch.NewHandlers())

	init := h.request(t, wire.NewNumberID(1), wire.MethodInitialize, nil)
	require.Nil(t, init.Err)

	again := h.request(t, wire.NewNumberID(2), wire.MethodInitialize, nil)
	require.NotNil(t, again.Err)
	assert.Equal(t, wire.CodeInvalidRequest, again.Err.Code)
}

func TestCancelRequestCancelsInFlightHandler(t *testing.T) {
	started := make(chan struct{})
	handlers := dispatch.NewHandlers()
	dispatch.TypedRequest(handlers, "textDocument/slow", func(ctx context.Context, c *rpcclient.Client, p struct{}) (string, error) {
		close(started)
		<-ctx.Done()
		return "", ctx.Err()
	})

	h := newHarness(t, initializeCatalog(), handlers)
	init := h.request(t, wire.NewNumberID(1), wire.MethodInitialize, nil)
	require.Nil(t, init.Err)

	id := wire.NewNumberID(2)
	ch := h.peer.RegisterPending(id)
	require.NoError(t, h.peer.Send(&wire.Request{ID: id, Method: "textDocument/slow"}))

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("handler never started")
	}

	cancelParams, err := json.Marshal(struct {
		ID wire.ID `json:"id"`
	}{ID: id})
	require.NoError(t, err)
	require.NoError(t, h.peer.Send(&wire.Notification{Method: wire.MethodCancelRequest, Params: cancelParams}))

	select {
	case outcome := <-ch:
		require.NotNil(t, outcome.Err)
		assert.Equal(t, wire.CodeRequestCancelled, outcome.Err.Code)
	case <-time.After(2 * time.Second):
		t.Fatal("cancelled request never replied")
	}
}

func TestMissingRequiredHandlersGetFrameworkDefaults(t *testing.T) {
	h := newHarness(t, initializeCatalog(), dispatch.NewHandlers())

	init := h.request(t, wire.NewNumberID(1), wire.MethodInitialize, nil)
	require.Nil(t, init.Err)

	shutdown := h.request(t, wire.NewNumberID(2), wire.MethodShutdown, nil)
	require.Nil(t, shutdown.Err)
}

func TestConcurrencyLimitStallsBeyondCapacity(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{}, 10)
	handlers := dispatch.NewHandlers()
	dispatch.TypedRequest(handlers, "textDocument/slow", func(ctx context.Context, c *rpcclient.Client, p struct{}) (string, error) {
		entered <- struct{}{}
		<-release
		return "done", nil
	})

	h := newHarness(t, initializeCatalog(), handlers, dispatch.WithConcurrency(1))
	init := h.request(t, wire.NewNumberID(1), wire.MethodInitialize, nil)
	require.Nil(t, init.Err)

	id1, id2 := wire.NewNumberID(2), wire.NewNumberID(3)
	ch1 := h.peer.RegisterPending(id1)
	ch2 := h.peer.RegisterPending(id2)
	require.NoError(t, h.peer.Send(&wire.Request{ID: id1, Method: "textDocument/slow"}))
	require.NoError(t, h.peer.Send(&wire.Request{ID: id2, Method: "textDocument/slow"}))

	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("first handler never started")
	}

	select {
	case <-entered:
		t.Fatal("second handler must not start while concurrency=1 slot is held")
	case <-time.After(200 * time.Millisecond):
	}

	close(release)

	for _, ch := range []<-chan wire.Outcome{ch1, ch2} {
		select {
		case outcome := <-ch:
			require.Nil(t, outcome.Err)
		case <-time.After(2 * time.Second):
			t.Fatal("request never completed after releasing the slot")
		}
	}
}
