package types

import (
	"strconv"
	"strings"
)

// ReservedAgentUID is the channel identity reserved for the assistant
// when no explicit agent identity has been assigned yet.
const ReservedAgentUID = "0"

// CanonicalUID normalizes a channel identity to its canonical string
// form. Identities arrive as numbers on the wire and as strings from
// configuration and the agent service; all comparisons happen on the
// canonical form. Numeric strings are reduced ("007" == "7"), other
// strings are trimmed and passed through.
func CanonicalUID(raw string) string {
	s := strings.TrimSpace(raw)
	if n, err := strconv.ParseUint(s, 10, 64); err == nil {
		return strconv.FormatUint(n, 10)
	}
	return s
}

// CanonicalUIDFromInt normalizes a numeric channel identity.
func CanonicalUIDFromInt(n uint64) string {
	return strconv.FormatUint(n, 10)
}
