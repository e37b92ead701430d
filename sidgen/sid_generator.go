// Package sidgen generates session ids for transport layers. A frontend
// assigns each accepted connection a sid before registering it with the
// session registry; the registry itself assumes sids are pre-validated unique.
package sidgen

import "sync/atomic"

// Generator mints monotonically increasing uint32 session ids in a
// concurrency-safe manner. The starting value is set at construction and the
// first Next() returns startValue+1, so constructing with 0 reserves sid 0
// as an "invalid" marker.
type Generator struct {
	sid atomic.Uint32
}

// New creates a Generator that will mint sids starting from startValue+1.
// The generator is safe for concurrent use.
//
// Parameters:
//   - startValue: The value to initialize the counter to; the first Next()
//     will return startValue+1
//
// Returns:
//   - A new Generator instance
func New(startValue uint32) *Generator {
	gen := &Generator{}
	gen.sid.Store(startValue)
	return gen
}

// Next returns the next session id by atomically incrementing the internal
// counter. It is safe for concurrent use by multiple goroutines. The counter
// wraps around after the full uint32 range; a frontend process is expected to
// be restarted long before 2^32 connections have been accepted.
//
// Returns:
//   - The next uint32 session id
func (g *Generator) Next() uint32 {
	return g.sid.Add(1)
}
