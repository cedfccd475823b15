package server

import (
	"context"
	"testing"
	"time"

	"github.com/chantype/sessio/session"
)

const testTimeout = time.Second

type connectRecv = session.Recv[string, session.End]
type connectSend = session.Send[string, session.End]
type resumeRecv = session.Recv[int, session.End]
type resumeSend = session.Send[int, session.End]

func pollCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), testTimeout)
}

func TestConnectEventDelivery(t *testing.T) {
	s := Start[connectRecv, resumeRecv, string](func(p *Proxy[connectRecv, resumeRecv, string]) {
		go func() {
			c := Connect[connectRecv, resumeRecv, string, connectSend](p)
			session.Send1(c, "hello")
		}()
	})

	ctx, cancel := pollCtx()
	defer cancel()
	ev, ok := s.Poll(ctx)
	if !ok {
		t.Fatal("poll returned end-of-stream unexpectedly")
	}
	ce, ok := ev.(ConnectEvent[connectRecv, resumeRecv, string])
	if !ok {
		t.Fatalf("event = %T, want ConnectEvent", ev)
	}
	if msg := session.Recv1(ce.Session); msg != "hello" {
		t.Fatalf("message = %q, want %q", msg, "hello")
	}
}

func TestSuspendResumeRoundTrip(t *testing.T) {
	s := Start[connectRecv, resumeRecv, string](func(*Proxy[connectRecv, resumeRecv, string]) {})

	resumed := make(chan struct{})
	s.Suspend("state-A", func(conn *Connection[connectRecv, resumeRecv, string]) {
		go func() {
			c := Resume[connectRecv, resumeRecv, string, resumeSend](conn)
			session.Send1(c, 42)
			close(resumed)
		}()
	})

	ctx, cancel := pollCtx()
	defer cancel()
	ev, ok := s.Poll(ctx)
	if !ok {
		t.Fatal("poll returned end-of-stream unexpectedly")
	}
	re, ok := ev.(ResumeEvent[connectRecv, resumeRecv, string])
	if !ok {
		t.Fatalf("event = %T, want ResumeEvent", ev)
	}
	if re.Data != "state-A" {
		t.Fatalf("data = %q, want %q", re.Data, "state-A")
	}
	if val := session.Recv1(re.Session); val != 42 {
		t.Fatalf("value = %d, want 42", val)
	}

	select {
	case <-resumed:
	case <-time.After(testTimeout):
		t.Fatal("timed out waiting for resume sender to finish")
	}
}

// TestPollEndsWhenAllHandlesConsumed exercises the reference-counted
// shutdown: once the only Proxy handed out has been consumed and its
// descendant reference reinstalled and then released on the next poll,
// the inbox has no live senders left and poll must report end-of-stream
// rather than block forever.
func TestPollEndsWhenAllHandlesConsumed(t *testing.T) {
	s := Start[connectRecv, resumeRecv, string](func(p *Proxy[connectRecv, resumeRecv, string]) {
		go func() {
			c := Connect[connectRecv, resumeRecv, string, connectSend](p)
			session.Send1(c, "only")
		}()
	})

	ctx, cancel := pollCtx()
	defer cancel()
	if _, ok := s.Poll(ctx); !ok {
		t.Fatal("first poll should deliver the connect event")
	}

	ctx2, cancel2 := pollCtx()
	defer cancel2()
	if _, ok := s.Poll(ctx2); ok {
		t.Fatal("second poll should observe end-of-stream")
	}
}

func TestProxyClone(t *testing.T) {
	results := make(chan string, 2)
	s := Start[connectRecv, resumeRecv, string](func(p *Proxy[connectRecv, resumeRecv, string]) {
		p.Clone(func(p2 *Proxy[connectRecv, resumeRecv, string]) {
			go func() {
				c := Connect[connectRecv, resumeRecv, string, connectSend](p2)
				session.Send1(c, "clone")
			}()
		})
		go func() {
			c := Connect[connectRecv, resumeRecv, string, connectSend](p)
			session.Send1(c, "original")
		}()
	})

	for i := 0; i < 2; i++ {
		ctx, cancel := pollCtx()
		ev, ok := s.Poll(ctx)
		cancel()
		if !ok {
			t.Fatal("poll returned end-of-stream before both connects arrived")
		}
		ce := ev.(ConnectEvent[connectRecv, resumeRecv, string])
		results <- session.Recv1(ce.Session)
	}
	close(results)

	seen := map[string]bool{}
	for msg := range results {
		seen[msg] = true
	}
	if !seen["original"] || !seen["clone"] {
		t.Fatalf("seen = %v, want both original and clone", seen)
	}
}
