// Package session implements session-typed message passing: each endpoint
// of a communication is represented by a Go value whose type describes the
// remaining protocol, so that the sequence and payload types of an exchange
// are fixed at compile time and a finished protocol can only be End.
//
// Go has no linear type system, so nothing stops a Chan from being used
// twice or never used at all the way a borrow checker or a uniqueness type
// would. Session leans on the type parameter to keep the *shape* of a
// protocol checked by the compiler, and falls back to a runtime panic (see
// exchange.go) for the one property Go genuinely cannot express: that an
// endpoint is consumed exactly once.
package session

import (
	"fmt"
	"log/slog"
	"reflect"
	"runtime"
	"strings"
	"sync/atomic"
)

// Session is implemented by every protocol marker type: End, Recv, Send and
// Either. It carries no behavior; it exists only to bound the type
// parameter on Chan so that arbitrary types cannot masquerade as a
// protocol step.
type Session interface {
	isSession()
}

// End marks the end of a session. There is nothing left to send or receive.
type End struct{}

func (End) isSession() {}

// Recv is the marker type for "receive a T, then continue as S".
type Recv[T any, S Session] struct{}

func (Recv[T, S]) isSession() {}

// Send is the marker type for "send a T, then continue as S".
type Send[T any, S Session] struct{}

func (Send[T, S]) isSession() {}

// Either is the marker type for a branch point: the sending side picks one
// of L or R via ChooseLeft/ChooseRight, the receiving side finds out which
// one via Offer.
type Either[L Session, R Session] struct{}

func (Either[L, R]) isSession() {}

// wireMsg is the one-shot cell's payload: either a real delivery (val,
// paired with a freshly minted channel for the continuation) or a Link
// redirect to a different cell. Every cell is written to exactly once,
// matching the one-shot oneshot channel of original_source/src/session.rs.
type wireMsg struct {
	isLink bool
	val    any
	next   chan wireMsg // set when !isLink
	link   chan wireMsg // set when isLink
}

// Chan is one endpoint of a session step. Its type parameter S is the
// protocol remaining from this point on. Unlike a value that carries the
// whole session's transport for its lifetime, a Chan's underlying channel
// is a single-use cell: Send/Recv mint a fresh cell for whatever comes
// next rather than reusing this one, which is what lets Link redirect a
// still-pending step without racing a later one.
//
// A Chan must be used by exactly one goroutine, exactly once: after
// calling Send or Recv on a Chan[Send[T,S]]/Chan[Recv[T,S]] the original
// value must be discarded in favor of the Chan[S] it returned. Go's lack
// of linear types means nothing stops a caller from keeping the old value
// around; consume (called by every exchange operation) poisons it instead,
// so a second use panics rather than silently racing or double-sending
// into a cell whose single slot is already spoken for.
type Chan[S Session] struct {
	raw      chan wireMsg
	guard    *guard
	consumed *atomic.Bool
}

// consume marks c used, panicking if it already was. Every operation that
// reads or writes c.raw calls this first.
func (c Chan[S]) consume() {
	if !c.consumed.CompareAndSwap(false, true) {
		panic(fmt.Sprintf("session: %T endpoint reused after being consumed", *new(S)))
	}
}

// guard backs the leak diagnostic attached by Fork: if every cell along a
// session is garbage collected before any of them reaches End, that almost
// always means a goroutine leaked waiting on the other side.
type guard struct {
	closed *atomic.Bool
}

func newCell() chan wireMsg {
	return make(chan wireMsg, 1)
}

func wrap[S Session](raw chan wireMsg, g *guard) Chan[S] {
	return Chan[S]{raw: raw, guard: g, consumed: &atomic.Bool{}}
}

// Fork creates a fresh session channel of type S and synchronously invokes f
// with its dual end, typed D, before returning the S end to the caller.
// "Synchronously" means f has already run to completion by the time Fork
// returns; if f wants the dual side to run concurrently it must hand the
// Chan[D] off to a Spawner itself — Fork never starts a goroutine on its
// own.
//
// Go's generics cannot compute "the dual of S" as a type, so D is an
// explicit second type parameter rather than a derived one. The caller is
// responsible for supplying the correct dual; an incorrect D surfaces as a
// failed type assertion the first time the protocol is used, not at the
// Fork call site.
func Fork[S Session, D Session](f func(Chan[D])) Chan[S] {
	raw := newCell()
	closed := &atomic.Bool{}
	g := &guard{closed: closed}
	runtime.AddCleanup(g, warnLeaked, leakReport{protocol: fmt.Sprintf("%T", *new(S)), closed: closed})
	f(wrap[D](raw, g))
	return wrap[S](raw, g)
}

type leakReport struct {
	protocol string
	closed   *atomic.Bool
}

func warnLeaked(r leakReport) {
	if r.closed.Load() {
		return
	}
	slog.Warn("session: channel garbage collected before reaching End",
		slog.String("protocol", r.protocol))
}

type shape int

const (
	shapeUnknown shape = iota
	shapeEnd
	shapeRecv
	shapeSend
)

// shapeOf recognizes End, Recv[T,S] and Send[T,S]; Either and any other
// Session type report shapeUnknown. This is the "runtime type switch over a small
// closed set of constructors" that stands in for the compile-time dual
// computation Go's generics cannot express (see DESIGN.md OQ-4).
func shapeOf[S Session]() shape {
	name := reflect.TypeFor[S]().Name()
	switch {
	case name == "End":
		return shapeEnd
	case strings.HasPrefix(name, "Recv["):
		return shapeRecv
	case strings.HasPrefix(name, "Send["):
		return shapeSend
	default:
		return shapeUnknown
	}
}

// Link splices two dual session channels together: whichever third party
// is waiting to read from the Send-shaped endpoint's cell (b's when S is
// Recv, a's when S is Send) is transparently redirected to read from the
// other endpoint's cell instead, so that the real peers on either side end
// up communicating directly, even though the two endpoints were never
// constructed from the same Fork call.
//
// a and b must be a dual pair of Recv/Send (or End, a no-op); passing any
// other Session shape panics.
func Link[S Session, D Session](a Chan[S], b Chan[D]) {
	a.consume()
	b.consume()
	switch shapeOf[S]() {
	case shapeEnd:
		return
	case shapeRecv:
		// b is Send-shaped: its cell is the one a third party is already
		// waiting to read. Redirect that read to a's cell, whose real
		// writer has not fired yet.
		b.raw <- wireMsg{isLink: true, link: a.raw}
	case shapeSend:
		a.raw <- wireMsg{isLink: true, link: b.raw}
	default:
		panic(fmt.Sprintf("session: Link: %T is not Recv, Send, or End", *new(S)))
	}
}

// Close marks a finished session as done, satisfying the leak diagnostic.
func Close(c Chan[End]) {
	if c.guard != nil {
		c.guard.closed.Store(true)
	}
}
