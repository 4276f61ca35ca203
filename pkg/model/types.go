package model

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound is returned when an alert id does not exist.
	ErrNotFound = errors.New("alert not found")

	// ErrAlreadyProcessed is returned when an alert has already been sent.
	ErrAlreadyProcessed = errors.New("alert already processed")
)

// AlertType identifies the business condition behind an alert.
type AlertType string

const (
	TypePaymentOverdue  AlertType = "payment_overdue"
	TypeRenewalUpcoming AlertType = "renewal_upcoming"
	TypeServiceExpired  AlertType = "service_expired"
	TypeStageChange     AlertType = "stage_change"
	TypeStageOverdue    AlertType = "stage_overdue"
	TypeNewSale         AlertType = "new_sale"
)

// AllAlertTypes returns every known alert type.
func AllAlertTypes() []AlertType {
	return []AlertType{
		TypePaymentOverdue,
		TypeRenewalUpcoming,
		TypeServiceExpired,
		TypeStageChange,
		TypeStageOverdue,
		TypeNewSale,
	}
}

// Valid reports whether t is one of the known alert types.
func (t AlertType) Valid() bool {
	for _, known := range AllAlertTypes() {
		if t == known {
			return true
		}
	}
	return false
}

// Status is the delivery state of an alert.
type Status string

const (
	StatusPending Status = "pending"
	StatusSent    Status = "sent"
	StatusFailed  Status = "failed"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusSent, StatusFailed:
		return true
	}
	return false
}

// Metadata carries type-specific fields such as stage number or program day.
type Metadata map[string]any

// String returns the value for key formatted as a string, or "" when absent.
func (m Metadata) String(key string) string {
	v, ok := m[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	if f, ok := v.(float64); ok && f == float64(int64(f)) {
		return fmt.Sprintf("%d", int64(f))
	}
	return fmt.Sprint(v)
}

// Int returns the value for key as an int. JSON numbers decode as float64.
func (m Metadata) Int(key string) int {
	switch v := m[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

// Alert is one detected business condition and its delivery state.
type Alert struct {
	ID             string     `json:"id" db:"id"`
	Type           AlertType  `json:"alert_type" db:"alert_type"`
	ConditionKey   string     `json:"condition_key" db:"condition_key"`
	Title          string     `json:"title" db:"title"`
	Message        string     `json:"message" db:"message"`
	Status         Status     `json:"status" db:"status"`
	ClientID       string     `json:"client_id,omitempty" db:"client_id"`
	SubscriptionID string     `json:"subscription_id,omitempty" db:"subscription_id"`
	InstallmentID  string     `json:"installment_id,omitempty" db:"installment_id"`
	Metadata       Metadata   `json:"metadata,omitempty" db:"metadata"`
	WebhookURL     string     `json:"webhook_url,omitempty" db:"webhook_url"`
	Attempts       int        `json:"attempts" db:"attempts"`
	LastError      string     `json:"last_error,omitempty" db:"last_error"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
	SentAt         *time.Time `json:"sent_at,omitempty" db:"sent_at"`
}

// NewAlert is what an evaluator hands to the store to materialize an alert.
type NewAlert struct {
	Type           AlertType
	ConditionKey   string
	Title          string
	Message        string
	ClientID       string
	SubscriptionID string
	InstallmentID  string
	Metadata       Metadata
}

// StatusUpdate holds the optional fields written alongside a status change.
type StatusUpdate struct {
	SentAt     *time.Time
	WebhookURL string
	LastError  string
}

// AlertFilter controls which alerts are listed.
type AlertFilter struct {
	Status Status    `json:"status,omitempty"`
	Type   AlertType `json:"alert_type,omitempty"`
	Limit  int       `json:"limit,omitempty"`
}
