package session

import "fmt"

// Send1 sends a value and ends the session. It is the common case where a
// Send is immediately followed by End.
func Send1[T any](c Chan[Send[T, End]], v T) {
	c.consume()
	c.raw <- wireMsg{val: v, next: closedNext}
}

// Recv1 receives a value and ends the session.
func Recv1[T any](c Chan[Recv[T, End]]) T {
	c.consume()
	v, _ := recvCell[T](c.raw)
	return v
}

// SendNext sends a value and returns the channel for whatever comes next.
// The continuation is a freshly minted cell, not c's own cell, so that a
// pending Link on c never races a later step.
func SendNext[T any, S Session](c Chan[Send[T, S]], v T) Chan[S] {
	c.consume()
	next := newCell()
	c.raw <- wireMsg{val: v, next: next}
	return wrap[S](next, c.guard)
}

// RecvNext receives a value and returns it along with the channel for
// whatever comes next.
func RecvNext[T any, S Session](c Chan[Recv[T, S]]) (T, Chan[S]) {
	c.consume()
	v, next := recvCell[T](c.raw)
	return v, wrap[S](next, c.guard)
}

// closedNext is delivered as the "next" cell of a Send1: nothing ever
// reads from it since the protocol ends there.
var closedNext = make(chan wireMsg)

// recvCell follows any chain of Link redirects before returning the first
// real delivery. The chain is finite because each Link consumes exactly
// one cell and never creates a new one (universal property 6).
func recvCell[T any](raw chan wireMsg) (T, chan wireMsg) {
	cur := raw
	for {
		msg := <-cur
		if msg.isLink {
			cur = msg.link
			continue
		}
		v, ok := msg.val.(T)
		if !ok {
			panic(fmt.Sprintf("session: expected payload of type %T, got %T", v, msg.val))
		}
		return v, msg.next
	}
}

// ChooseLeft commits an Either session to its left-hand branch.
func ChooseLeft[L, R Session](c Chan[Either[L, R]]) Chan[L] {
	c.consume()
	next := newCell()
	c.raw <- wireMsg{val: true, next: next}
	return wrap[L](next, c.guard)
}

// ChooseRight commits an Either session to its right-hand branch.
func ChooseRight[L, R Session](c Chan[Either[L, R]]) Chan[R] {
	c.consume()
	next := newCell()
	c.raw <- wireMsg{val: false, next: next}
	return wrap[R](next, c.guard)
}

// Offer receives the other side's branch choice and dispatches to onLeft or
// onRight with the appropriately typed continuation. CPS is used here
// rather than a (bool, Chan[?]) return because Go cannot express "one of
// two different instantiations of Chan" as a single return type.
func Offer[L, R Session, Out any](c Chan[Either[L, R]], onLeft func(Chan[L]) Out, onRight func(Chan[R]) Out) Out {
	c.consume()
	choice, next := recvCell[bool](c.raw)
	if choice {
		return onLeft(wrap[L](next, c.guard))
	}
	return onRight(wrap[R](next, c.guard))
}
