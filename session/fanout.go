package session

import (
	"sync"

	"github.com/parleyhq/parley/transcript"
)

// Fanout delivers transcript snapshots to every subscriber without
// blocking the publisher. Each subscriber holds a one-slot mailbox;
// when a subscriber lags, stale snapshots are replaced by newer ones,
// so a consumer always wakes to the latest view and never stalls the
// payload path.
type Fanout struct {
	mu     sync.Mutex
	subs   []chan transcript.Snapshot
	closed bool
}

// NewFanout creates an empty fanout.
func NewFanout() *Fanout {
	return &Fanout{}
}

// Subscribe registers a new subscriber. The returned channel is closed
// by Close. Subscribing after Close returns a closed channel.
func (f *Fanout) Subscribe() <-chan transcript.Snapshot {
	ch := make(chan transcript.Snapshot, 1)

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		close(ch)
		return ch
	}
	f.subs = append(f.subs, ch)
	return ch
}

// Publish delivers a snapshot to all subscribers, coalescing per
// subscriber: an unread stale snapshot is replaced, never queued.
func (f *Fanout) Publish(snap transcript.Snapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}

	for _, ch := range f.subs {
		select {
		case ch <- snap:
		default:
			// Drop the stale snapshot, then deliver the new one.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap:
			default:
			}
		}
	}
}

// Close closes all subscriber channels. Publish after Close is a no-op.
func (f *Fanout) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	for _, ch := range f.subs {
		close(ch)
	}
	f.subs = nil
}
