package types

// Version is the canonical project version.
// CLI and wire protocol docs reference this constant; the fragment
// protocol carries its own version (ProtocolVersion).
const Version = "0.3.0"
