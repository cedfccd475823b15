package server

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// auditEntry records when a connection id was suspended, purely for
// diagnosing how long a resume round-trip took. It never gates
// correctness: the authoritative per-connection payload lives in
// Server.data, which is never LRU-evicted.
type auditEntry struct {
	suspendedAt time.Time
}

// resumeAudit is a bounded, best-effort window onto recent suspend/resume
// pairs, grounded on the teacher's taste for sized in-memory structures on
// hot paths (Cell's mailboxSize option). A resume whose id has aged out
// of this cache is still served correctly from Server.data; only the
// latency log line is lost.
type resumeAudit struct {
	cache *lru.Cache[int64, auditEntry]
}

func newResumeAudit(size int) *resumeAudit {
	if size <= 0 {
		size = 1024
	}
	c, err := lru.New[int64, auditEntry](size)
	if err != nil {
		// Only returns an error for size <= 0, which is excluded above.
		panic(err)
	}
	return &resumeAudit{cache: c}
}

func (a *resumeAudit) recordSuspend(id int64) {
	a.cache.Add(id, auditEntry{suspendedAt: time.Now()})
}

// recordResume returns how long id sat suspended, if it is still within
// the audit window.
func (a *resumeAudit) recordResume(id int64) (time.Duration, bool) {
	entry, ok := a.cache.Get(id)
	if !ok {
		return 0, false
	}
	a.cache.Remove(id)
	return time.Since(entry.suspendedAt), true
}
