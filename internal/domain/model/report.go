package model

import "time"

// Report is the result of running a plan.
type Report struct {
	RunID    string        `json:"run_id"`
	Plan     string        `json:"plan"`
	Started  time.Time     `json:"started"`
	Finished time.Time     `json:"finished"`
	Duration time.Duration `json:"duration_ns"`
	Summary  Summary       `json:"summary"`
	Outcomes []Outcome     `json:"outcomes"`
}

// OK reports whether every job succeeded or was skipped as a duplicate.
func (r *Report) OK() bool { return r.Summary.Unsuccessful() == 0 }
