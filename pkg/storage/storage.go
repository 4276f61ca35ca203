package storage

import (
	"context"
	"time"

	"github.com/ogulcanaydogan/opsalert/pkg/model"
)

// Store defines the persistence layer for alerts.
type Store interface {
	// InsertIfAbsent creates a pending alert unless one with the same
	// condition key already exists, in which case it returns (nil, nil).
	InsertIfAbsent(ctx context.Context, alert *model.NewAlert) (*model.Alert, error)

	// ListPendingCreatedSince returns pending alerts created at or after
	// since, oldest first.
	ListPendingCreatedSince(ctx context.Context, since time.Time) ([]model.Alert, error)

	// UpdateStatus moves an alert to sent or failed in a single-row update.
	// Returns model.ErrNotFound for unknown ids and model.ErrAlreadyProcessed
	// when the alert is already sent.
	UpdateStatus(ctx context.Context, id string, status model.Status, update model.StatusUpdate) error

	// GetAlert retrieves an alert by id.
	GetAlert(ctx context.Context, id string) (*model.Alert, error)

	// ListAlerts returns alerts matching the filter, newest first.
	ListAlerts(ctx context.Context, filter model.AlertFilter) ([]model.Alert, error)

	// Close releases resources.
	Close() error
}
