package domain

import "time"

// Import record sources
const (
	SourceMatches     = "matches"
	SourcePredictions = "predictions"
)

// ImportCounts tallies what happened to the records of one kind
type ImportCounts struct {
	Created   int `json:"created"`
	Updated   int `json:"updated"`
	Unchanged int `json:"unchanged"`
	Rejected  int `json:"rejected"`
}

// Add records one outcome
func (c *ImportCounts) Add(outcome UpsertOutcome) {
	switch outcome {
	case OutcomeCreated:
		c.Created++
	case OutcomeUpdated:
		c.Updated++
	case OutcomeUnchanged:
		c.Unchanged++
	}
}

// Rejection is a source record that could not be applied
type Rejection struct {
	Source string `json:"source"`
	Line   int    `json:"line"`
	Reason string `json:"reason"`
}

// ImportReport summarises a reconciliation run
type ImportReport struct {
	ID          string       `json:"id"`
	StartedAt   time.Time    `json:"started_at"`
	FinishedAt  time.Time    `json:"finished_at"`
	Matches     ImportCounts `json:"matches"`
	Predictions ImportCounts `json:"predictions"`
	Users       ImportCounts `json:"users"`
	Rejected    []Rejection  `json:"rejected"`
}

// Changed reports whether the run created or updated anything
func (r ImportReport) Changed() bool {
	return r.Matches.Created+r.Matches.Updated+r.Predictions.Created+r.Predictions.Updated > 0
}
