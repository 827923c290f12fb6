package jsonrpc

import (
	"bytes"
	"context"
	"sync"
	"testing"
)

func testCtx(t *testing.T) context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return ctx
}

// capturingWriter accumulates everything written to it so a test can
// later decode complete frames out of the accumulated bytes.
type capturingWriter struct {
	mu  sync.Mutex
	buf bytes.Buffer
	out *[][]byte
}

func (w *capturingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buf.Write(p)
	return len(p), nil
}

func (w *capturingWriter) bytesSoFar() []byte {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]byte(nil), w.buf.Bytes()...)
}
