package models

import "strings"

// Decision is a reviewer's verdict on an announced track.
type Decision int

const (
	DecisionUnrecognized Decision = iota
	DecisionApprove
	DecisionReject
)

func (d Decision) String() string {
	switch d {
	case DecisionApprove:
		return "approve"
	case DecisionReject:
		return "reject"
	default:
		return "unrecognized"
	}
}

// ParseDecision maps a reviewer reply onto a Decision. Matching is
// case-insensitive and ignores surrounding whitespace. Anything outside the
// accepted vocabulary is DecisionUnrecognized, which callers must ignore
// rather than treat as a rejection.
func ParseDecision(text string) Decision {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "yes", "y", "approve":
		return DecisionApprove
	case "no", "n", "reject", "skip":
		return DecisionReject
	default:
		return DecisionUnrecognized
	}
}
