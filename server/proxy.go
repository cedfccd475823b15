package server

import "github.com/chantype/sessio/session"

// Proxy is the client-facing handle for initiating a new connection to a
// Server. It is deliberately opaque about which Server it belongs to:
// the only way to reach one is through Start's init callback or a clone
// of an existing Proxy, per spec.md's scoping rule.
type Proxy[Connect, Resume session.Session, D any] struct {
	ref *senderRef[Connect, Resume]
}

// Clone hands a duplicate Proxy to a sub-scope, letting e.g. a listener
// loop retain the original while handing each accepted transport its own
// handle. Mirrors registry's pattern of handing out fresh handles rather
// than sharing one across goroutines.
func (p *Proxy[Connect, Resume, D]) Clone(f func(*Proxy[Connect, Resume, D])) {
	f(&Proxy[Connect, Resume, D]{ref: p.ref.clone()})
}

// Connect consumes p, forks the Connect protocol, deposits the
// server-side endpoint into the server's inbox, and returns the
// caller-side endpoint. ConnectDual must name the dual of whatever
// Connect protocol the Server was declared with; Go's lack of an
// associated Dual type means this is supplied explicitly rather than
// derived, matching session.Fork's own explicit-dual-parameter shape
// (see DESIGN.md's OQ-4 entry).
func Connect[Connect, Resume session.Session, D any, ConnectDual session.Session](
	p *Proxy[Connect, Resume, D],
) session.Chan[ConnectDual] {
	return session.Fork[ConnectDual, Connect](func(serverSide session.Chan[Connect]) {
		p.ref.sendConnect(serverSide)
	})
}
