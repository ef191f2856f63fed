package domain

import "time"

// HistoryOutcome records whether the external link-resolve and push calls
// both succeeded for a confirmed candidate.
type HistoryOutcome string

const (
	OutcomeSucceeded HistoryOutcome = "succeeded"
	OutcomeFailed    HistoryOutcome = "failed"
)

// HistoryRecord is one entry of the append-only download ledger. Never
// mutated or deleted except by the retention sweep.
type HistoryRecord struct {
	ID          string          `json:"id"`
	QueryKey    string          `json:"queryKey"`
	Chosen      ScoredCandidate `json:"chosen"`
	Outcome     HistoryOutcome  `json:"outcome"`
	PackageID   string          `json:"packageId,omitempty"`
	Error       string          `json:"error,omitempty"`
	CompletedAt time.Time       `json:"completedAt"`
}

// HistoryFilter narrows history listings.
type HistoryFilter struct {
	QueryKey string
	Outcome  HistoryOutcome
	Limit    int
}
