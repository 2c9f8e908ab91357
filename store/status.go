package store

import "github.com/grailbio/base/errors"

// Status is the run state of a sample.
type Status string

const (
	Queued          Status = "QUEUED"
	Assembling      Status = "ASSEMBLING"
	WaitingToParse  Status = "WAITING_TO_PARSE"
	ParsingVariants Status = "PARSING_VARIANTS"
	Completed       Status = "COMPLETED"
	Failed          Status = "FAILED"
)

// successor is the only state each non-terminal state may advance to, other
// than Failed.
var successor = map[Status]Status{
	Queued:          Assembling,
	Assembling:      WaitingToParse,
	WaitingToParse:  ParsingVariants,
	ParsingVariants: Completed,
}

// Terminal reports whether s admits no further transitions.
func (s Status) Terminal() bool { return s == Completed || s == Failed }

// CanTransition reports whether a run in state s may move to next. Runs only
// move forward, one step at a time, or fail from any non-terminal state.
// Returning to Queued is not a transition; see Store.ResetStatus.
func (s Status) CanTransition(next Status) bool {
	if s.Terminal() {
		return false
	}
	return next == Failed || successor[s] == next
}

// ParseStatus converts a stored status string.
func ParseStatus(v string) (Status, error) {
	switch s := Status(v); s {
	case Queued, Assembling, WaitingToParse, ParsingVariants, Completed, Failed:
		return s, nil
	}
	return "", errors.E(errors.Invalid, "unknown run status", v)
}
