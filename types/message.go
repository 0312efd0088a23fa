package types

// MessageStatus is the lifecycle state of a reassembled message.
type MessageStatus string

// Message status constants. A message transitions from in_progress to
// exactly one terminal state, never backward.
const (
	StatusInProgress  MessageStatus = "in_progress"
	StatusComplete    MessageStatus = "complete"
	StatusInterrupted MessageStatus = "interrupted"
)

// IsTerminal reports whether s is a terminal status.
func (s MessageStatus) IsTerminal() bool {
	return s == StatusComplete || s == StatusInterrupted
}

// Message is the reassembled, renderable unit of a conversation turn.
// Exactly one message per turn ID exists at any time; its text is
// monotonically extended until the status becomes terminal.
type Message struct {
	// TurnID identifies the conversational turn.
	TurnID int64 `json:"turn_id"`
	// UID is the producer identity in canonical string form.
	UID string `json:"uid"`
	// Text is the content merged so far.
	Text string `json:"text"`
	// Status is the lifecycle state.
	Status MessageStatus `json:"status"`
}

// Role classifies a message's speaker for presentation.
type Role string

const (
	RoleAssistant Role = "assistant"
	RoleUser      Role = "user"
)

// RoleOf classifies uid against the agent identity. The reserved
// identity "0" and the configured agent identity are assistant; all
// other identities are user. Both sides must already be canonical
// (see CanonicalUID).
func RoleOf(uid, agentUID string) Role {
	if uid == ReservedAgentUID || (agentUID != "" && uid == agentUID) {
		return RoleAssistant
	}
	return RoleUser
}
