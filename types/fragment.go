package types

// ProtocolVersion is the fragment wire protocol version.
// The client rejects frames carrying a different version.
const ProtocolVersion = "1.0.0"

// FrameType discriminates fragment frame payloads on the wire.
type FrameType string

// Frame type constants.
const (
	// FrameTypeText carries an already-chunked text piece ordered by
	// sequence index.
	FrameTypeText FrameType = "fragment_text"
	// FrameTypeWords carries word tokens ordered by start timestamp.
	FrameTypeWords FrameType = "fragment_words"
	// FrameTypeInterrupt signals that an in-progress turn was cut off.
	FrameTypeInterrupt FrameType = "interrupt"
)

// TranscriptMode selects the fragment granularity for a session.
// Fixed at engine construction.
type TranscriptMode string

const (
	// ModeText reassembles chunked text fragments by sequence index.
	ModeText TranscriptMode = "text"
	// ModeWords reassembles word tokens by start timestamp.
	ModeWords TranscriptMode = "words"
)

// Valid reports whether m is a known transcript mode.
func (m TranscriptMode) Valid() bool {
	return m == ModeText || m == ModeWords
}

// Word is a single token in a word-mode fragment.
type Word struct {
	// Text is the token text, including any trailing separator.
	Text string `msgpack:"text"`
	// StartMS is the token start offset in milliseconds from turn start.
	// Word-mode ordering key.
	StartMS int64 `msgpack:"start_ms"`
}

// FragmentFrame is the decoded wire form of one message fragment.
// All fields use msgpack tags to match the channel's binary encoding.
type FragmentFrame struct {
	// ProtocolVersion is the fragment protocol version.
	ProtocolVersion string `msgpack:"protocol_version"`
	// Type is the frame type discriminator.
	Type FrameType `msgpack:"type"`
	// TurnID groups fragments belonging to one conversational turn.
	TurnID int64 `msgpack:"turn_id"`
	// UID is the producer identity in canonical string form.
	UID string `msgpack:"uid"`
	// Seq is the ordering index within the turn (text mode).
	Seq int64 `msgpack:"seq"`
	// Text is the fragment's text piece (text mode).
	Text string `msgpack:"text"`
	// Words holds word tokens (words mode); empty in text mode.
	Words []Word `msgpack:"words,omitempty"`
	// IsFinal marks the fragment that completes the turn.
	IsFinal bool `msgpack:"is_final"`
}

// InterruptFrame signals an explicit interruption of an in-progress turn.
type InterruptFrame struct {
	ProtocolVersion string    `msgpack:"protocol_version"`
	Type            FrameType `msgpack:"type"`
	TurnID          int64     `msgpack:"turn_id"`
}

// Fragment is one normalized piece of a turn's content after decode.
// Both wire shapes reduce to this: Order is the sequence index in text
// mode and the word start timestamp in words mode.
type Fragment struct {
	TurnID  int64
	UID     string
	Order   int64
	Text    string
	IsFinal bool
}

// Fragments converts a decoded frame into normalized fragments according
// to the given mode. A words-mode frame yields one fragment per token,
// with IsFinal set only on the last.
func (f *FragmentFrame) Fragments(mode TranscriptMode) []Fragment {
	if mode == ModeWords && f.Type == FrameTypeWords {
		out := make([]Fragment, 0, len(f.Words))
		for i, w := range f.Words {
			out = append(out, Fragment{
				TurnID:  f.TurnID,
				UID:     f.UID,
				Order:   w.StartMS,
				Text:    w.Text,
				IsFinal: f.IsFinal && i == len(f.Words)-1,
			})
		}
		return out
	}
	return []Fragment{{
		TurnID:  f.TurnID,
		UID:     f.UID,
		Order:   f.Seq,
		Text:    f.Text,
		IsFinal: f.IsFinal,
	}}
}
