package session_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/firi/golsp/session"
	"github.com/firi/golsp/wire"
)

func TestLifecycleHappyPath(t *testing.T) {
	m := session.New(context.Background())
	assert.Equal(t, session.Uninitialized, m.Snapshot())

	verdict, rpcErr := m.AdmitRequest(wire.MethodInitialize)
	require.Equal(t, session.Admit, verdict)
	require.Nil(t, rpcErr)
	assert.Equal(t, session.Initializing, m.Snapshot())

	m.CompleteInitialize(wire.MethodInitialize, true)
	assert.Equal(t, session.Initialized, m.Snapshot())

	verdict, rpcErr = m.AdmitRequest("textDocument/hover")
	require.Equal(t, session.Admit, verdict)
	require.Nil(t, rpcErr)

	verdict, rpcErr = m.AdmitRequest(wire.MethodShutdown)
	require.Equal(t, session.Admit, verdict)
	require.Nil(t, rpcErr)
	assert.Equal(t, session.ShutdownRequested, m.Snapshot())

	m.Exit()
	assert.Equal(t, session.Exited, m.Snapshot())
	assert.Equal(t, 0, m.ExitCode(), "shutdown preceded exit, exit code must be 0")
}

func TestEarlyRequestRejectedBeforeInitialize(t *testing.T) {
	m := session.New(context.Background())

	verdict, rpcErr := m.AdmitRequest("textDocument/hover")
	assert.Equal(t, session.Reject, verdict)
	require.NotNil(t, rpcErr)
	assert.Equal(t, wire.CodeServerNotInitialized, rpcErr.Code)
}

func TestDoubleInitializeRejected(t *testing.T) {
	m := session.New(context.Background())
	_, _ = m.AdmitRequest(wire.MethodInitialize)
	m.CompleteInitialize(wire.MethodInitialize, true)

	verdict, rpcErr := m.AdmitRequest(wire.MethodInitialize)
	assert.Equal(t, session.Reject, verdict)
	require.NotNil(t, rpcErr)
	assert.Equal(t, wire.CodeInvalidRequest, rpcErr.Code)
}

func TestConcurrentInitializeOnlyOneAdmitted(t *testing.T) {
	m := session.New(context.Background())

	verdict1, _ := m.AdmitRequest(wire.MethodInitialize)
	verdict2, rpcErr2 := m.AdmitRequest(wire.MethodInitialize)

	assert.Equal(t, session.Admit, verdict1)
	assert.Equal(t, session.Reject, verdict2)
	require.NotNil(t, rpcErr2)
}

func TestFailedInitializeRevertsToUninitialized(t *testing.T) {
	m := session.New(context.Background())
	_, _ = m.AdmitRequest(wire.MethodInitialize)
	m.CompleteInitialize(wire.MethodInitialize, false)
	assert.Equal(t, session.Uninitialized, m.Snapshot())
}

func TestExitWithoutShutdownExitsNonZero(t *testing.T) {
	m := session.New(context.Background())
	m.Exit()
	assert.Equal(t, 1, m.ExitCode())
}

func TestExitCancelsRootContext(t *testing.T) {
	m := session.New(context.Background())
	done := m.RootContext().Done()

	select {
	case <-done:
		t.Fatal("root context should not be cancelled before exit")
	default:
	}

	m.Exit()

	select {
	case <-done:
	default:
		t.Fatal("root context must be cancelled on exit")
	}
}

func TestCancelRequestOnlyAdmittedAfterInitialized(t *testing.T) {
	m := session.New(context.Background())
	assert.False(t, m.AdmitCancel())

	_, _ = m.AdmitRequest(wire.MethodInitialize)
	m.CompleteInitialize(wire.MethodInitialize, true)
	assert.True(t, m.AdmitCancel())
}

func TestExitAlwaysAdmittedEvenUninitialized(t *testing.T) {
	m := session.New(context.Background())
	assert.Equal(t, session.Admit, m.AdmitNotification(wire.MethodExit))
}
