// Package report records what an initialization run did so operators can
// inspect the last run without re-reading logs.
package report

import "time"

// Step kinds
const (
	KindCollection = "collection"
	KindIndex      = "index"
	KindUser       = "user"
)

// Outcome of a single step.
type Outcome string

const (
	OutcomeCreated Outcome = "created"
	OutcomeExists  Outcome = "exists"
	OutcomeFailed  Outcome = "failed"
	OutcomeSkipped Outcome = "skipped"
)

// Step is one action taken against the database.
type Step struct {
	Kind    string  `json:"kind"`
	Target  string  `json:"target"`
	Outcome Outcome `json:"outcome"`
	Message string  `json:"message,omitempty"`
}

// RunReport summarizes one initialization run.
type RunReport struct {
	Database   string    `json:"database"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Steps      []Step    `json:"steps"`
	// Completed is false when a fatal step aborted the run.
	Completed bool   `json:"completed"`
	Error     string `json:"error,omitempty"`
}

// New starts a report for the given database.
func New(database string, startedAt time.Time) *RunReport {
	return &RunReport{Database: database, StartedAt: startedAt}
}

// Add appends a step.
func (r *RunReport) Add(kind, target string, outcome Outcome, message string) {
	r.Steps = append(r.Steps, Step{Kind: kind, Target: target, Outcome: outcome, Message: message})
}

// Finish stamps the end of the run. A nil err marks the run completed.
func (r *RunReport) Finish(finishedAt time.Time, err error) {
	r.FinishedAt = finishedAt
	r.Completed = err == nil
	if err != nil {
		r.Error = err.Error()
	}
}

// Count returns how many steps of a kind ended with the given outcome.
func (r *RunReport) Count(kind string, outcome Outcome) int {
	n := 0
	for _, s := range r.Steps {
		if s.Kind == kind && s.Outcome == outcome {
			n++
		}
	}
	return n
}

// Duration is the wall time of the run, zero until Finish is called.
func (r *RunReport) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
