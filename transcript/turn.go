package transcript

import (
	"sort"
	"strings"
	"time"

	"github.com/parleyhq/parley/types"
)

// turn holds the reassembly state for one conversational turn.
// Owned exclusively by the Engine; never handed out directly.
type turn struct {
	id  int64
	uid string

	// text is the contiguously applied content. Monotonically extended
	// until the turn reaches a terminal status.
	text string

	// nextOrder is the next expected ordering index (text mode).
	nextOrder int64

	// words buffers tokens keyed by start timestamp (words mode).
	// Text is rebuilt in key order on every insert, so a token that
	// arrives late still lands in its timestamp slot.
	words map[int64]string
	// finalSeen records that the closing token arrived (words mode).
	// The turn finalizes once the settle window elapses, leaving room
	// for stragglers with earlier timestamps.
	finalSeen bool

	// pending parks out-of-order fragments keyed by ordering index
	// until the gap closes (text mode only).
	pending        map[int64]types.Fragment
	firstPendingAt time.Time

	status types.MessageStatus
}

func newTurn(id int64, uid string) *turn {
	return &turn{
		id:      id,
		uid:     uid,
		words:   make(map[int64]string),
		pending: make(map[int64]types.Fragment),
		status:  types.StatusInProgress,
	}
}

// applyResult reports what a fragment application did, for metrics and
// change tracking.
type applyResult int

const (
	applyIgnored applyResult = iota
	applyAppended
	applyParked
)

// applySequenced merges a text-mode fragment. In-order fragments append
// immediately and drain any now-contiguous pending fragments;
// out-of-order fragments are parked. Duplicates are ignored.
func (t *turn) applySequenced(frag types.Fragment, now time.Time) applyResult {
	if t.status.IsTerminal() {
		return applyIgnored
	}
	if frag.Order < t.nextOrder {
		return applyIgnored
	}

	if frag.Order > t.nextOrder {
		if _, seen := t.pending[frag.Order]; seen {
			return applyIgnored
		}
		t.pending[frag.Order] = frag
		if t.firstPendingAt.IsZero() {
			t.firstPendingAt = now
		}
		return applyParked
	}

	t.append(frag)

	// Drain fragments made contiguous by this append.
	for !t.status.IsTerminal() {
		next, ok := t.pending[t.nextOrder]
		if !ok {
			break
		}
		delete(t.pending, t.nextOrder)
		t.append(next)
	}
	if len(t.pending) == 0 {
		t.firstPendingAt = time.Time{}
	}
	return applyAppended
}

// applyTimed merges a words-mode fragment. Each token slots into the
// word buffer at its start timestamp and the text is rebuilt in
// timestamp order, so delivery order does not matter. A repeated
// timestamp is a re-delivery and is ignored. The closing token does
// not finalize the turn by itself; it opens the settle window and the
// sweep completes the turn once that window elapses.
func (t *turn) applyTimed(frag types.Fragment, now time.Time) applyResult {
	if t.status.IsTerminal() {
		return applyIgnored
	}
	if _, seen := t.words[frag.Order]; seen {
		return applyIgnored
	}

	t.words[frag.Order] = frag.Text
	t.rebuildText()
	if frag.IsFinal {
		t.finalSeen = true
		if t.firstPendingAt.IsZero() {
			t.firstPendingAt = now
		}
	}
	return applyAppended
}

// rebuildText reconstructs the turn text from the word buffer in
// timestamp order.
func (t *turn) rebuildText() {
	keys := make([]int64, 0, len(t.words))
	for k := range t.words {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(t.words[k])
	}
	t.text = b.String()
}

// append applies an in-order fragment and advances the expected index.
func (t *turn) append(frag types.Fragment) {
	t.text += frag.Text
	t.nextOrder = frag.Order + 1
	if frag.IsFinal {
		t.complete()
	}
}

// complete finalizes the turn, discarding any parked fragments and the
// word buffer.
func (t *turn) complete() {
	t.status = types.StatusComplete
	t.pending = nil
	t.words = nil
	t.firstPendingAt = time.Time{}
}

// interrupt finalizes an in-progress turn as cut off.
// Returns false if the turn was already terminal.
func (t *turn) interrupt() bool {
	if t.status.IsTerminal() {
		return false
	}
	t.status = types.StatusInterrupted
	t.pending = nil
	t.words = nil
	t.firstPendingAt = time.Time{}
	return true
}

// pendingExpired reports whether the turn has waited past timeout to
// finalize: parked text fragments whose gap never closed, or a word
// stream whose settle window elapsed after the closing token.
func (t *turn) pendingExpired(now time.Time, timeout time.Duration) bool {
	if t.status.IsTerminal() || t.firstPendingAt.IsZero() {
		return false
	}
	return now.Sub(t.firstPendingAt) >= timeout
}

// message returns an immutable copy of the turn's renderable state.
func (t *turn) message() types.Message {
	return types.Message{
		TurnID: t.id,
		UID:    t.uid,
		Text:   t.text,
		Status: t.status,
	}
}
