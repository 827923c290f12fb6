// Package dispatch routes inbound requests and notifications to
// registered handlers, enforces the session lifecycle gate before a
// handler ever runs, tracks per-request cancellation, and throttles how
// many requests may be in flight at once.
package dispatch

import (
	"context"
	"encoding/json"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/firi/golsp/jsonrpc"
	"github.com/firi/golsp/rpcclient"
	"github.com/firi/golsp/session"
	"github.com/firi/golsp/wire"
)

// Kind says whether a catalog entry is a request (expects a reply) or a
// notification (does not).
type Kind int

const (
	KindRequest Kind = iota
	KindNotification
)

// MethodSpec describes one method's shape in the abstract, independent of
// any concrete handler. Required initialize and shutdown requests get a
// framework-supplied default handler if the embedder never registers one,
// so a bare Dispatcher still satisfies the lifecycle contract out of the
// box; other required methods get no default.
type MethodSpec struct {
	Name     string
	Kind     Kind
	Required bool
}

// Catalog is the set of methods a Dispatcher knows the shape of. It does
// not carry parameter/result Go types — those live in the registered
// handler via TypedRequest/TypedNotification — only enough to classify
// unregistered methods and to seed required-method defaults.
type Catalog struct {
	methods map[string]MethodSpec
}

func NewCatalog(specs ...MethodSpec) *Catalog {
	c := &Catalog{methods: make(map[string]MethodSpec, len(specs))}
	for _, s := range specs {
		c.methods[s.Name] = s
	}
	return c
}

func (c *Catalog) Lookup(name string) (MethodSpec, bool) {
	s, ok := c.methods[name]
	return s, ok
}

func (c *Catalog) Required() []MethodSpec {
	var out []MethodSpec
	for _, s := range c.methods {
		if s.Required {
			out = append(out, s)
		}
	}
	return out
}

// RequestHandler answers one request given its raw, not-yet-decoded
// params. TypedRequest wraps a concretely-typed function into this shape.
type RequestHandler func(ctx context.Context, client *rpcclient.Client, params json.RawMessage) (interface{}, error)

// NotificationHandler handles one notification given its raw params.
type NotificationHandler func(ctx context.Context, client *rpcclient.Client, params json.RawMessage)

// Handlers is the capability set a Dispatcher invokes: a record of
// method-name-keyed handler functions rather than a deep interface
// hierarchy, so an embedder only ever wires up the methods it cares about.
type Handlers struct {
	requests      map[string]RequestHandler
	notifications map[string]NotificationHandler
}

func NewHandlers() *Handlers {
	return &Handlers{
		requests:      make(map[string]RequestHandler),
		notifications: make(map[string]NotificationHandler),
	}
}

func (h *Handlers) Request(method string, fn RequestHandler) *Handlers {
	h.requests[method] = fn
	return h
}

func (h *Handlers) Notification(method string, fn NotificationHandler) *Handlers {
	h.notifications[method] = fn
	return h
}

// TypedRequest registers a concretely-typed request handler, handling the
// json.RawMessage <-> P unmarshal (and the resulting InvalidParams error)
// for the caller.
func TypedRequest[P any, R any](h *Handlers, method string, fn func(ctx context.Context, client *rpcclient.Client, params P) (R, error)) *Handlers {
	return h.Request(method, func(ctx context.Context, client *rpcclient.Client, raw json.RawMessage) (interface{}, error) {
		var p P
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &p); err != nil {
				return nil, wire.NewError(wire.CodeInvalidParams, "invalid params for %s: %s", method, err)
			}
		}
		return fn(ctx, client, p)
	})
}

// TypedNotification registers a concretely-typed notification handler.
// Unmarshal failures are silently ignored — a notification has no way to
// report an error back to the peer — and fn still runs with whatever part
// of params did decode.
func TypedNotification[P any](h *Handlers, method string, fn func(ctx context.Context, client *rpcclient.Client, params P)) *Handlers {
	return h.Notification(method, func(ctx context.Context, client *rpcclient.Client, raw json.RawMessage) {
		var p P
		if len(raw) > 0 {
			_ = json.Unmarshal(raw, &p)
		}
		fn(ctx, client, p)
	})
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

func WithLogger(l *zap.Logger) Option { return func(d *Dispatcher) { d.logger = l } }

// WithConcurrency bounds how many requests may be dispatched to handlers
// concurrently before a new inbound request blocks the read loop — the
// mechanism backpressure rides on.
func WithConcurrency(n int64) Option { return func(d *Dispatcher) { d.concurrency = n } }

const defaultConcurrency = 64

// Dispatcher ties a Catalog and a Handlers capability set to a live
// session once Bind is called.
type Dispatcher struct {
	catalog     *Catalog
	handlers    *Handlers
	logger      *zap.Logger
	concurrency int64
	sem         *semaphore.Weighted

	conn    *jsonrpc.Conn
	sess    *session.Machine
	client  *rpcclient.Client

	pendingIn sync.Map // wire.ID -> context.CancelFunc
}

func New(catalog *Catalog, handlers *Handlers, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		catalog:     catalog,
		handlers:    handlers,
		logger:      zap.NewNop(),
		concurrency: defaultConcurrency,
	}
	for _, o := range opts {
		o(d)
	}
	d.applyDefaults()
	d.sem = semaphore.NewWeighted(d.concurrency)
	return d
}

// applyDefaults fills in framework-supplied handlers for any required
// catalog method the embedder never registered, so a Dispatcher built
// from an empty Handlers still honors the lifecycle contract.
func (d *Dispatcher) applyDefaults() {
	for _, spec := range d.catalog.Required() {
		if spec.Kind != KindRequest {
			continue
		}
		if _, ok := d.handlers.requests[spec.Name]; ok {
			continue
		}
		switch spec.Name {
		case wire.MethodInitialize:
			d.handlers.requests[spec.Name] = defaultInitializeHandler
		case wire.MethodShutdown:
			d.handlers.requests[spec.Name] = defaultShutdownHandler
		}
	}
}

func defaultInitializeHandler(context.Context, *rpcclient.Client, json.RawMessage) (interface{}, error) {
	return struct {
		Capabilities struct{} `json:"capabilities"`
	}{}, nil
}

func defaultShutdownHandler(context.Context, *rpcclient.Client, json.RawMessage) (interface{}, error) {
	return nil, nil
}

// Bind wires the dispatcher to a live connection, session, and client
// handle, and installs itself as the connection's inbound callbacks. It
// is called once per Serve invocation — a Dispatcher built with New can
// be reused across many Bind calls, e.g. one per accepted connection.
func (d *Dispatcher) Bind(conn *jsonrpc.Conn, sess *session.Machine, client *rpcclient.Client) {
	d.conn = conn
	d.sess = sess
	d.client = client
	conn.OnRequest(d.handleRequest)
	conn.OnNotification(d.handleNotification)
}
