package server

import "github.com/chantype/sessio/session"

// Connection is the client-facing handle for resuming a suspended
// interaction, handed out by Server.Suspend. Only the sub-scope it was
// constructed in can see it, so a caller can never hold both a
// Connection and the Server it belongs to — see Server.Suspend.
type Connection[Connect, Resume session.Session, D any] struct {
	ref *senderRef[Connect, Resume]
	id  int64
}

// Resume consumes c, forks the Resume protocol, deposits the server-side
// endpoint (plus c's filed id) into the server's inbox, and returns the
// caller-side endpoint. ResumeDual must name the dual of the Server's
// Resume protocol, supplied explicitly for the same reason as
// server.Connect's ConnectDual.
func Resume[Connect, Resume session.Session, D any, ResumeDual session.Session](
	c *Connection[Connect, Resume, D],
) session.Chan[ResumeDual] {
	return session.Fork[ResumeDual, Resume](func(serverSide session.Chan[Resume]) {
		c.ref.sendResume(serverSide, c.id)
	})
}
