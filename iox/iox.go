// Package iox holds small cleanup helpers for deferred Close calls
// whose errors carry no signal.
package iox

import "io"

// DiscardClose closes c, dropping the error. Meant for response bodies
// and similar resources where a failed Close changes nothing:
//
//	defer iox.DiscardClose(resp.Body)
func DiscardClose(c io.Closer) { _ = c.Close() }

// CloseFunc wraps c's Close in a zero-argument func, the shape
// t.Cleanup and b.Cleanup want:
//
//	t.Cleanup(iox.CloseFunc(client))
func CloseFunc(c io.Closer) func() {
	return func() { _ = c.Close() }
}

// DiscardErr runs fn and drops its error. The non-Close counterpart of
// DiscardClose, for teardown calls like Flush or Sync:
//
//	defer iox.DiscardErr(w.Flush)
func DiscardErr(fn func() error) { _ = fn() }
