// Package server implements the many-clients-one-coordinator pattern of
// spec.md §4.4: a Server polls an inbox fed by Proxy (new connections)
// and Connection (resumed ones), each turn itself a typed session.
//
// Adapted from the teacher's internal/domain/registry package: Server is
// registry.Hub generalized from a sync.Map keyed by uuid.UUID to an
// opaque monotonic int64 key, and from a fixed event.Eventer payload to
// an arbitrary pair of session protocols plus connection data D.
package server

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/chantype/sessio/session"
)

var tracer = otel.Tracer("github.com/chantype/sessio/server")

// Event is what Poll returns: either a new client connecting, or an
// existing one resuming with its previously suspended data.
type Event[Connect, Resume session.Session, D any] interface {
	isEvent()
}

// ConnectEvent carries the server-side endpoint of a freshly connected
// client's protocol, stamped with a correlation id a logger or tracer can
// key on across the connect/resume chain.
type ConnectEvent[Connect, Resume session.Session, D any] struct {
	Session session.Chan[Connect]
	ConnID  uuid.UUID
}

func (ConnectEvent[Connect, Resume, D]) isEvent() {}

// ResumeEvent carries the server-side endpoint of a resumed client's
// protocol, plus the data it handed over when it suspended.
type ResumeEvent[Connect, Resume session.Session, D any] struct {
	Session session.Chan[Resume]
	Data    D
	ConnID  uuid.UUID
}

func (ResumeEvent[Connect, Resume, D]) isEvent() {}

// Server is the single coordinator: it owns the inbox, the table of
// suspended connection data, and (by construction) is never co-visible
// with a Proxy or Connection it has handed out — see Start and Suspend.
type Server[Connect, Resume session.Session, D any] struct {
	inbox  *inbox[Connect, Resume]
	own    *senderRef[Connect, Resume]
	data   map[int64]D
	nextID int64
	audit  *resumeAudit
	logger *slog.Logger
}

// Option configures a Server, following the teacher's functional-options
// convention (internal/domain/registry/options.go).
type Option[Connect, Resume session.Session, D any] func(*Server[Connect, Resume, D])

// WithLogger overrides the slog.Logger used for diagnostic warnings.
func WithLogger[Connect, Resume session.Session, D any](l *slog.Logger) Option[Connect, Resume, D] {
	return func(s *Server[Connect, Resume, D]) { s.logger = l }
}

// WithAuditWindow sizes the best-effort suspend/resume latency cache
// (see audit.go). Defaults to 1024 entries.
func WithAuditWindow[Connect, Resume session.Session, D any](size int) Option[Connect, Resume, D] {
	return func(s *Server[Connect, Resume, D]) { s.audit = newResumeAudit(size) }
}

// Start builds a Server and hands a Proxy for it to init, synchronously,
// before returning — the continuation-passing discipline of spec.md's
// scoping rule: init's scope is the only place that Proxy is visible,
// keeping callers from stashing a Server and a Proxy together where a
// Connection could later deadlock the pair (see Suspend).
func Start[Connect, Resume session.Session, D any](
	init func(*Proxy[Connect, Resume, D]),
	opts ...Option[Connect, Resume, D],
) *Server[Connect, Resume, D] {
	ib := newInbox[Connect, Resume]()
	s := &Server[Connect, Resume, D]{
		inbox:  ib,
		own:    ib.newRef(),
		data:   make(map[int64]D),
		audit:  newResumeAudit(0),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	init(&Proxy[Connect, Resume, D]{ref: ib.newRef()})
	return s
}

// Suspend files data under a fresh id and hands a Connection that, once
// resumed, will deliver that data back via Poll. f's scope is the only
// place the Connection is visible, for the same deadlock-avoidance
// reason as Start.
func (s *Server[Connect, Resume, D]) Suspend(data D, f func(*Connection[Connect, Resume, D])) {
	id := s.nextID
	s.nextID++
	s.data[id] = data
	s.audit.recordSuspend(id)
	f(&Connection[Connect, Resume, D]{ref: s.inbox.newRef(), id: id})
}

// Poll awaits the next Connect or Resume event. It returns false once
// every Proxy and Connection handed out by this Server has been
// consumed or dropped and none remain live — the inbox's reference count
// having reached zero (see inbox.go) — mirroring the Rust original's
// `Option<(Server, Transition)>` via a dropped-to-zero mpsc::Sender.
//
// poll releases the server's own retained reference before awaiting so
// that an otherwise-idle inbox can actually reach zero and close, then
// reinstalls whatever fresh reference arrived piggybacked on the next
// exchange — see original_source/src/server.rs's poll for the algorithm
// this reproduces without Rust's reference-counted channel primitive.
func (s *Server[Connect, Resume, D]) Poll(ctx context.Context) (Event[Connect, Resume, D], bool) {
	ctx, span := tracer.Start(ctx, "server.Poll")
	defer span.End()

	s.own.release()

	var ex exchange[Connect, Resume]
	var ok bool
	select {
	case ex, ok = <-s.inbox.ch:
	case <-ctx.Done():
		span.SetStatus(codes.Error, ctx.Err().Error())
		return nil, false
	}
	if !ok {
		span.SetAttributes(attribute.Bool("sessio.server.closed", true))
		return nil, false
	}
	s.own = ex.ref

	switch body := ex.body.(type) {
	case connectBody[Connect]:
		span.SetAttributes(
			attribute.String("sessio.server.event", "connect"),
			attribute.String("sessio.server.conn_id", body.connID.String()),
		)
		return ConnectEvent[Connect, Resume, D]{Session: body.session, ConnID: body.connID}, true
	case resumeBody[Resume]:
		span.SetAttributes(
			attribute.String("sessio.server.event", "resume"),
			attribute.String("sessio.server.conn_id", body.connID.String()),
		)
		data, found := s.data[body.id]
		if !found {
			panic(fmt.Sprintf("server: resume for unknown connection id %d", body.id))
		}
		delete(s.data, body.id)
		if age, ok := s.audit.recordResume(body.id); ok {
			s.logger.Debug("server: connection resumed",
				slog.Int64("id", body.id), slog.Duration("suspended_for", age))
		}
		return ResumeEvent[Connect, Resume, D]{Session: body.session, Data: data, ConnID: body.connID}, true
	default:
		panic("server: unrecognized transition body")
	}
}
