// Package session implements the LSP lifecycle state machine:
// Uninitialized -> Initializing -> Initialized -> ShutdownRequested -> Exited.
// It owns the session's root context, whose cancellation is the single
// broadcast signal that unwinds every pending-in handler and every
// outstanding outbound request when the session exits.
package session

import (
	"context"

	"go.uber.org/atomic"

	"github.com/firi/golsp/wire"
)

// State is a point in the session lifecycle.
type State int32

const (
	Uninitialized State = iota
	Initializing
	Initialized
	ShutdownRequested
	Exited
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Initializing:
		return "initializing"
	case Initialized:
		return "initialized"
	case ShutdownRequested:
		return "shutdown-requested"
	case Exited:
		return "exited"
	default:
		return "unknown"
	}
}

// Verdict is what the dispatcher should do with an inbound message given
// the current lifecycle state.
type Verdict int

const (
	// Admit: hand the message to its registered handler.
	Admit Verdict = iota
	// Reject: a request that must be answered with an error instead of
	// being dispatched.
	Reject
	// Drop: a notification that is silently discarded.
	Drop
)

// Machine is the single owner of a session's lifecycle state and root
// context. State transitions happen via atomic compare-and-swap rather
// than a single dedicated goroutine: the gating in AdmitRequest already
// guarantees at most one initialize (and at most one shutdown-triggering
// request) is ever in flight, so CAS gives the same single-writer effect
// without forcing every transition onto one goroutine.
type Machine struct {
	state    atomic.Int32
	exitCode atomic.Int32
	rootCtx  context.Context
	cancel   context.CancelFunc
}

// New creates a Machine rooted under parent. Cancelling parent has the
// same effect as the session reaching Exited.
func New(parent context.Context) *Machine {
	ctx, cancel := context.WithCancel(parent)
	m := &Machine{rootCtx: ctx, cancel: cancel}
	m.state.Store(int32(Uninitialized))
	m.exitCode.Store(1)
	return m
}

// Snapshot returns the current state. Safe for concurrent use.
func (m *Machine) Snapshot() State { return State(m.state.Load()) }

// RootContext is cancelled the moment the session reaches Exited.
func (m *Machine) RootContext() context.Context { return m.rootCtx }

func (m *Machine) IsExited() bool { return m.Snapshot() == Exited }

// AdmitRequest applies the request side of the lifecycle table. It is the
// one place a request-driven state transition happens (Uninitialized ->
// Initializing on `initialize`, Initialized -> ShutdownRequested on
// `shutdown`), so it must run before the request reaches any handler.
func (m *Machine) AdmitRequest(method string) (Verdict, *wire.Error) {
	switch m.Snapshot() {
	case Uninitialized:
		if method == wire.MethodInitialize {
			if m.state.CompareAndSwap(int32(Uninitialized), int32(Initializing)) {
				return Admit, nil
			}
			// Lost the race to another initialize; fall through as if
			// we'd observed Initializing to begin with.
		}
		if method == wire.MethodInitialize {
			return Reject, wire.NewError(wire.CodeInvalidRequest, "initialize already in progress")
		}
		return Reject, wire.NewError(wire.CodeServerNotInitialized, "server has not been initialized")

	case Initializing:
		if method == wire.MethodInitialize {
			return Reject, wire.NewError(wire.CodeInvalidRequest, "initialize already in progress")
		}
		return Reject, wire.NewError(wire.CodeServerNotInitialized, "server has not been initialized")

	case Initialized:
		if method == wire.MethodInitialize {
			return Reject, wire.NewError(wire.CodeInvalidRequest, "server has already been initialized")
		}
		if method == wire.MethodShutdown {
			m.state.CompareAndSwap(int32(Initialized), int32(ShutdownRequested))
		}
		return Admit, nil

	case ShutdownRequested:
		return Reject, wire.NewError(wire.CodeInvalidRequest, "server is shutting down")

	default: // Exited
		return Reject, wire.NewError(wire.CodeInvalidRequest, "server has exited")
	}
}

// CompleteInitialize finalizes the Initializing state once the initialize
// handler returns: success moves to Initialized, failure reverts to
// Uninitialized so a client may retry. No-op for any other method.
func (m *Machine) CompleteInitialize(method string, ok bool) {
	if method != wire.MethodInitialize {
		return
	}
	if ok {
		m.state.CompareAndSwap(int32(Initializing), int32(Initialized))
	} else {
		m.state.CompareAndSwap(int32(Initializing), int32(Uninitialized))
	}
}

// AdmitNotification applies the notification side of the lifecycle table.
// `exit` is always admitted, even before initialization, since it is the
// only way to unwedge a session that never got going.
func (m *Machine) AdmitNotification(method string) Verdict {
	if method == wire.MethodExit {
		return Admit
	}
	if m.Snapshot() == Uninitialized {
		return Drop
	}
	return Admit
}

// AdmitCancel reports whether $/cancelRequest is accepted in the current
// state. It is intentionally stricter than general notifications: a
// cancellation only makes sense once a request could actually be pending.
func (m *Machine) AdmitCancel() bool {
	switch m.Snapshot() {
	case Initialized, ShutdownRequested:
		return true
	default:
		return false
	}
}

// Exit moves the session to Exited, fixes its exit code (0 only if
// shutdown was requested first), and cancels the root context — the
// single broadcast signal every derived context listens for.
func (m *Machine) Exit() {
	prior := State(m.state.Swap(int32(Exited)))
	if prior == ShutdownRequested {
		m.exitCode.Store(0)
	} else {
		m.exitCode.Store(1)
	}
	m.cancel()
}

// ExitCode mirrors the process exit code an embedder should return from
// main after Serve completes: 1 unless the client went through shutdown
// before exit.
func (m *Machine) ExitCode() int { return int(m.exitCode.Load()) }
