package jsonrpc

import "errors"

// ErrClosed is returned by Send once the connection has been closed.
var ErrClosed = errors.New("jsonrpc: connection closed")
