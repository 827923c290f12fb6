// Package idgen generates the monotonically increasing request ids a
// client handle stamps on outbound requests.
package idgen

import "go.uber.org/atomic"

// Generator hands out strictly increasing int64 ids starting at 1. It
// never wraps in practice: at one allocation per nanosecond it would take
// centuries to exhaust.
type Generator struct {
	next atomic.Int64
}

func New() *Generator { return &Generator{} }

func (g *Generator) Next() int64 { return g.next.Inc() }
