package alerts

import (
	"errors"
	"fmt"

	"github.com/ogulcanaydogan/opsalert/pkg/model"
)

var (
	// ErrWebhookDelivery marks a failed primary webhook call.
	ErrWebhookDelivery = errors.New("webhook delivery failed")
	// ErrStoreWrite marks a status write that failed after the delivery outcome was known.
	ErrStoreWrite = errors.New("alert status write failed")
)

// DeliveryError describes a failed primary delivery. The alert has been marked failed.
type DeliveryError struct {
	AlertID    string
	Endpoint   string
	StatusCode int
	Err        error
}

func (e *DeliveryError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("deliver alert %s to %s: status %d", e.AlertID, e.Endpoint, e.StatusCode)
	}
	return fmt.Sprintf("deliver alert %s to %s: %v", e.AlertID, e.Endpoint, e.Err)
}

func (e *DeliveryError) Unwrap() []error { return []error{ErrWebhookDelivery, e.Err} }

// StoreWriteError means the recorded status of an alert may not match what
// happened on the wire. Delivered reports whether the webhook accepted it.
type StoreWriteError struct {
	AlertID   string
	Status    model.Status
	Delivered bool
	Err       error
}

func (e *StoreWriteError) Error() string {
	return fmt.Sprintf("record alert %s as %s (delivered=%t): %v", e.AlertID, e.Status, e.Delivered, e.Err)
}

func (e *StoreWriteError) Unwrap() []error { return []error{ErrStoreWrite, e.Err} }
