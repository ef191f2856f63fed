package domain

import (
	"errors"
	"time"
)

// PendingState is the lifecycle state of a pending confirmation.
type PendingState string

const (
	PendingOpen      PendingState = "open"
	PendingConfirmed PendingState = "confirmed"
	PendingExpired   PendingState = "expired"
)

// PendingConfirmation holds the top ranked candidates for a query while they
// await a user decision. The repository is the sole authority for the
// Open->Confirmed transition; at most one confirm attempt ever succeeds.
type PendingConfirmation struct {
	ID            string            `json:"id"`
	Query         SearchQuery       `json:"query"`
	Candidates    []ScoredCandidate `json:"candidates"`
	State         PendingState      `json:"state"`
	SelectedIndex int               `json:"selectedIndex"`
	CreatedAt     time.Time         `json:"createdAt"`
	ConfirmedAt   *time.Time        `json:"confirmedAt,omitempty"`
}

// MaxPendingCandidates caps how many ranked candidates a pending record keeps.
const MaxPendingCandidates = 5

// Validate checks domain invariants for PendingConfirmation.
func (p PendingConfirmation) Validate() error {
	if p.ID == "" {
		return errors.New("pending id is required")
	}
	if len(p.Candidates) == 0 {
		return errors.New("pending record needs at least one candidate")
	}
	if len(p.Candidates) > MaxPendingCandidates {
		return errors.New("pending record holds too many candidates")
	}
	switch p.State {
	case PendingOpen, PendingConfirmed, PendingExpired:
	case "":
		return errors.New("state is required")
	default:
		return errors.New("invalid state: " + string(p.State))
	}
	return nil
}
