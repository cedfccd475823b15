// Package queue layers a FIFO stream of values on top of session: Dequeue
// is a Recv of a tagged union (one item plus the rest of the queue, or a
// close signal), so popping the whole stream back-to-back needs nothing
// beyond the one-shot cells session.Chan already provides per step.
package queue

import "github.com/chantype/sessio/session"

// QueueStep is the payload exchanged on every Dequeue step: either the
// next item plus a handle for the rest of the stream, or a close signal.
type QueueStep[T any, S session.Session] interface {
	isQueueStep()
}

// Item is one element of the stream plus the continuation for popping the
// rest of it.
type Item[T any, S session.Session] struct {
	Value T
	Rest  Dequeue[T, S]
}

func (Item[T, S]) isQueueStep() {}

// Closed signals the end of the stream. Cont is only meaningful when S is
// session.End in this package: sessio narrows general post-queue
// continuations (S != End) out of scope, since none of the scenarios in
// spec.md need a queue that hands off to further protocol steps — see
// DESIGN.md.
type Closed[T any, S session.Session] struct {
	Cont S
}

func (Closed[T, S]) isQueueStep() {}

// Dequeue is the consuming end of a queue: receive a QueueStep, repeat.
type Dequeue[T any, S session.Session] = session.Chan[session.Recv[QueueStep[T, S], session.End]]

// Enqueue is the producing end of a queue: send a QueueStep, repeat.
type Enqueue[T any, S session.Session] = session.Chan[session.Send[QueueStep[T, S], session.End]]

// Push enqueues one item and returns a new handle for further pushes. Like
// Send, it never blocks: Item's Rest is a freshly forked Dequeue cell, so a
// slow popper never holds up the next Push.
func Push[T any, S session.Session](e Enqueue[T, S], v T) Enqueue[T, S] {
	return session.Fork[session.Send[QueueStep[T, S], session.End], session.Recv[QueueStep[T, S], session.End]](
		func(d Dequeue[T, S]) {
			session.Send1[QueueStep[T, S]](e, Item[T, S]{Value: v, Rest: d})
		},
	)
}

// Close1 terminates a queue whose continuation is session.End — the only
// form of close sessio implements (see Closed's doc comment).
func Close1[T any](e Enqueue[T, session.End]) {
	session.Send1[QueueStep[T, session.End]](e, Closed[T, session.End]{})
}

// Pop receives the next step of the queue: either an item and the rest of
// the stream, or the close signal.
func Pop[T any, S session.Session](d Dequeue[T, S]) QueueStep[T, S] {
	return session.Recv1(d)
}

// Fold left-folds over the stream, awaiting each item in order, and
// returns the accumulator together with the Cont carried by the Closed
// step.
func Fold[T, A any, S session.Session](d Dequeue[T, S], init A, f func(A, T) A) (A, S) {
	acc := init
	cur := d
	for {
		switch step := Pop[T, S](cur).(type) {
		case Item[T, S]:
			acc = f(acc, step.Value)
			cur = step.Rest
		case Closed[T, S]:
			return acc, step.Cont
		}
	}
}

// Fold1 is Fold specialized to a queue closed with Close1.
func Fold1[T, A any](d Dequeue[T, session.End], init A, f func(A, T) A) A {
	acc, _ := Fold[T, A, session.End](d, init, f)
	return acc
}

// ForEach runs f for each item in issue order, awaiting completion before
// consuming the next, and returns the Cont carried by the Closed step.
func ForEach[T any, S session.Session](d Dequeue[T, S], f func(T)) S {
	cur := d
	for {
		switch step := Pop[T, S](cur).(type) {
		case Item[T, S]:
			f(step.Value)
			cur = step.Rest
		case Closed[T, S]:
			return step.Cont
		}
	}
}

// ForEach1 is ForEach specialized to a queue closed with Close1.
func ForEach1[T any](d Dequeue[T, session.End], f func(T)) {
	ForEach[T, session.End](d, f)
}
