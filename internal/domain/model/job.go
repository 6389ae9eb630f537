// Package model contains domain models passed between layers.
package model

import (
	"strconv"
	"time"

	"github.com/okian/broutes/pkg/args"
)

// Job is one route invocation scheduled by a plan.
type Job struct {
	ID       string   // unique id; repeated ids are skipped within a run
	Plan     string   // plan the job was expanded from
	Step     string   // step id within the plan
	Seq      int      // submission order, starting at 0
	Route    string   // catalog route name
	Method   string   // HTTP method
	Scenario string   // optional scenario name
	Group    string   // optional scenario group
	Args     args.Map // call-site arguments, merged last
}

// Outcome statuses.
const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"   // transport, argument or hook error
	StatusRejected  = "rejected" // response received but expectations unmet
	StatusSkipped   = "skipped"  // duplicate job id
)

// Outcome records the result of running a Job.
type Outcome struct {
	JobID      string        `json:"job_id"`
	Seq        int           `json:"seq"`
	Step       string        `json:"step,omitempty"`
	Route      string        `json:"route"`
	Method     string        `json:"method"`
	Scenario   string        `json:"scenario,omitempty"`
	Group      string        `json:"group,omitempty"`
	RequestID  string        `json:"request_id,omitempty"`
	URL        string        `json:"url,omitempty"`
	Status     string        `json:"status"`
	StatusCode int           `json:"status_code,omitempty"`
	Duration   time.Duration `json:"duration_ns"`
	Error      string        `json:"error,omitempty"`
	Failures   []string      `json:"failures,omitempty"`
	Finished   time.Time     `json:"finished"`
}

// OK reports whether the job succeeded.
func (o Outcome) OK() bool { return o.Status == StatusSucceeded }

// Summary aggregates outcomes.
type Summary struct {
	Total     int            `json:"total"`
	Succeeded int            `json:"succeeded"`
	Failed    int            `json:"failed"`
	Rejected  int            `json:"rejected"`
	Skipped   int            `json:"skipped"`
	ByStatus  map[string]int `json:"by_status_code"`
}

// Add counts o into s.
func (s *Summary) Add(o Outcome) {
	if s.ByStatus == nil {
		s.ByStatus = make(map[string]int)
	}
	s.Total++
	switch o.Status {
	case StatusSucceeded:
		s.Succeeded++
	case StatusRejected:
		s.Rejected++
	case StatusSkipped:
		s.Skipped++
	default:
		s.Failed++
	}
	if o.StatusCode > 0 {
		s.ByStatus[strconv.Itoa(o.StatusCode)]++
	}
}

// Unsuccessful returns the number of failed or rejected jobs.
func (s Summary) Unsuccessful() int { return s.Failed + s.Rejected }
