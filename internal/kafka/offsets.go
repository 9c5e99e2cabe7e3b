package kafka

import (
	"sync"

	"github.com/segmentio/kafka-go"
)

type partition struct {
	topic string
	id    int
}

func partitionOf(m kafka.Message) partition { return partition{topic: m.Topic, id: m.Partition} }

type pendingOffset struct {
	msg  kafka.Message
	done bool
}

// offsetTracker remembers, per partition, the fetched messages still in
// flight in fetch order. Lanes finish out of order; the committable offset
// only moves past a message once every earlier one of its partition is done.
type offsetTracker struct {
	mu       sync.Mutex
	inflight map[partition][]pendingOffset
}

func newOffsetTracker() *offsetTracker {
	return &offsetTracker{inflight: make(map[partition][]pendingOffset)}
}

func (t *offsetTracker) fetched(m kafka.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p := partitionOf(m)
	q := t.inflight[p]
	// rebalance: reader rewound to the last commit, old entries are gone for good
	if n := len(q); n > 0 && m.Offset <= q[n-1].msg.Offset {
		q = nil
	}
	t.inflight[p] = append(q, pendingOffset{msg: m})
}

// done marks m handled. It returns the last message of the now fully handled
// prefix of m's partition, or false when nothing new can be committed.
func (t *offsetTracker) done(m kafka.Message) (kafka.Message, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p := partitionOf(m)
	q := t.inflight[p]
	for i := range q {
		if q[i].msg.Offset == m.Offset {
			q[i].done = true
			break
		}
	}
	n := 0
	for n < len(q) && q[n].done {
		n++
	}
	if n == 0 {
		return kafka.Message{}, false
	}
	last := q[n-1].msg
	if n == len(q) {
		delete(t.inflight, p)
	} else {
		t.inflight[p] = q[n:]
	}
	return last, true
}
