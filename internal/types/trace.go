package types

// EventKind labels one entry of the parser's balance trace.
type EventKind string

const (
	EventBraceOpen    EventKind = "brace_open"
	EventBraceClose   EventKind = "brace_close"
	EventBracketOpen  EventKind = "bracket_open"
	EventBracketClose EventKind = "bracket_close"
	EventMathOpen     EventKind = "math_open"
	EventMathClose    EventKind = "math_close"
	EventEnvBegin     EventKind = "env_begin"
	EventEnvEnd       EventKind = "env_end"
)

// BalanceEvent records one delimiter observation made by the parser's scan.
// The validator re-derives balance and nesting checks from this trace instead
// of re-scanning raw text, so the scanning rules live in exactly one place.
type BalanceEvent struct {
	Kind EventKind `json:"kind"`
	Pos  int       `json:"pos"`
	// Name holds the environment name for env events and the delimiter text
	// ("$", "$$", "\\(", "\\[") for math events.
	Name string `json:"name,omitempty"`
}
