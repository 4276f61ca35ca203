package evaluators

import (
	"context"

	"github.com/ogulcanaydogan/opsalert/pkg/model"
)

// Evaluator is a named rule that materializes pending alerts when a business
// condition holds. Evaluators never deliver anything themselves.
type Evaluator interface {
	// Name returns the rule identifier (e.g., "payment_overdue").
	Name() string

	// Evaluate inserts zero or more pending alerts and returns how many were
	// created. Re-running it for facts already materialized creates nothing.
	Evaluate(ctx context.Context) (int, error)
}

// Sink receives the alerts an evaluator produces.
type Sink interface {
	InsertIfAbsent(ctx context.Context, alert *model.NewAlert) (*model.Alert, error)
}
