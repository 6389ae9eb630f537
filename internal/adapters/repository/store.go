// Package repository stores job outcomes for a run.
package repository

import (
	"context"

	"github.com/okian/broutes/internal/domain/model"
)

// Filter narrows List results. Zero fields match everything.
type Filter struct {
	Status string
	Route  string
	Limit  int
}

// Store provides read/write access to run outcomes.
type Store interface {
	// Put stores o, replacing any outcome with the same job id.
	Put(ctx context.Context, o model.Outcome) error

	// Get returns the outcome for a job id or ErrNotFound.
	Get(ctx context.Context, jobID string) (model.Outcome, error)

	// List returns matching outcomes ordered by submission sequence.
	List(ctx context.Context, f Filter) ([]model.Outcome, error)

	// Summary aggregates every stored outcome.
	Summary(ctx context.Context) model.Summary

	Count(ctx context.Context) int

	// Reset drops every outcome.
	Reset(ctx context.Context)
}
