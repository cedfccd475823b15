package server

import (
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/chantype/sessio/session"
)

// transitionBody is the payload of one exchange arriving at the inbox:
// either a new Connect session or a resumed Resume session plus the
// opaque id the connection's data was filed under.
type transitionBody[Connect, Resume session.Session] interface {
	isTransitionBody()
}

// connID is a per-transition correlation identifier, stamped the moment a
// Connect or Resume is deposited into the inbox — the same role the
// teacher's registry.Hub gives a uuid.UUID keying each connection, kept
// here as a correlation id threaded onto Poll's events rather than as the
// inbox's own lookup key (that role is filled by the opaque int64 id).
type connID = uuid.UUID

type connectBody[Connect session.Session] struct {
	session session.Chan[Connect]
	connID  connID
}

func (connectBody[Connect]) isTransitionBody() {}

type resumeBody[Resume session.Session] struct {
	session session.Chan[Resume]
	id      int64
	connID  connID
}

func (resumeBody[Resume]) isTransitionBody() {}

// exchange travels down the inbox channel carrying both the transition
// and a fresh sender reference, so whichever goroutine receives it can
// reinstall that reference as its own — see inbox.release and Server.Poll.
type exchange[Connect, Resume session.Session] struct {
	ref  *senderRef[Connect, Resume]
	body transitionBody[Connect, Resume]
}

// inbox is the zero-capacity handoff point described in spec.md §4.4: a
// plain channel (grounded on the teacher's Cell.mailbox, see DESIGN.md)
// whose liveness is reference counted the way Rust's mpsc::Sender is.
// Every live Proxy or Connection owns exactly one senderRef; the channel
// is closed the instant the count drops to zero, which is how poll
// reports end-of-stream instead of blocking forever.
type inbox[Connect, Resume session.Session] struct {
	ch       chan exchange[Connect, Resume]
	refs     atomic.Int64
	closeOne sync.Once
}

func newInbox[Connect, Resume session.Session]() *inbox[Connect, Resume] {
	return &inbox[Connect, Resume]{ch: make(chan exchange[Connect, Resume])}
}

// newRef mints one outstanding sender reference. A cleanup is attached so
// that a reference abandoned without ever being used (the Go analogue of
// a Rust value going out of scope without being sent) still releases its
// count once garbage collected, instead of leaking the inbox open
// forever — the same best-effort mechanism session.Fork uses for leak
// diagnostics, except here the release is load-bearing, not just a log
// line: it is what lets poll observe end-of-stream.
func (ib *inbox[Connect, Resume]) newRef() *senderRef[Connect, Resume] {
	ib.refs.Add(1)
	released := &atomic.Bool{}
	r := &senderRef[Connect, Resume]{ib: ib, released: released}
	runtime.AddCleanup(r, func(c refCleanup[Connect, Resume]) {
		if c.released.CompareAndSwap(false, true) {
			c.ib.release()
		}
	}, refCleanup[Connect, Resume]{ib: ib, released: released})
	return r
}

type refCleanup[Connect, Resume session.Session] struct {
	ib       *inbox[Connect, Resume]
	released *atomic.Bool
}

// release drops one outstanding reference, closing the channel once none
// remain.
func (ib *inbox[Connect, Resume]) release() {
	if ib.refs.Add(-1) == 0 {
		ib.closeOne.Do(func() { close(ib.ch) })
	}
}

// senderRef is one outstanding permission to deposit an exchange into the
// inbox — the Go stand-in for a cloned Rust mpsc::Sender.
type senderRef[Connect, Resume session.Session] struct {
	ib       *inbox[Connect, Resume]
	released *atomic.Bool
}

// clone mints an independent reference that must separately be consumed
// or released; it does not affect r itself.
func (r *senderRef[Connect, Resume]) clone() *senderRef[Connect, Resume] {
	return r.ib.newRef()
}

// release marks r consumed, idempotently: a manual release followed by
// the GC cleanup (or vice versa) only decrements the inbox once.
func (r *senderRef[Connect, Resume]) release() {
	if r.released.CompareAndSwap(false, true) {
		r.ib.release()
	}
}

// sendConnect deposits a Connect transition and consumes r, handing the
// server a freshly cloned reference to reinstall in its place — mirrors
// Proxy::connect's one-shot `sender.clone()` + `try_send` + implicit drop.
func (r *senderRef[Connect, Resume]) sendConnect(s session.Chan[Connect]) {
	fresh := r.clone()
	r.ib.ch <- exchange[Connect, Resume]{ref: fresh, body: connectBody[Connect]{session: s, connID: uuid.New()}}
	r.release()
}

// sendResume is sendConnect's counterpart for a resumed connection.
func (r *senderRef[Connect, Resume]) sendResume(s session.Chan[Resume], id int64) {
	fresh := r.clone()
	r.ib.ch <- exchange[Connect, Resume]{ref: fresh, body: resumeBody[Resume]{session: s, id: id, connID: uuid.New()}}
	r.release()
}
