package alerts

import (
	"errors"
	"fmt"

	"github.com/ogulcanaydogan/opsalert/pkg/model"
)

// ErrUnroutable is returned for alert types without a route.
var ErrUnroutable = errors.New("no route for alert type")

// EndpointKind names an outbound webhook destination.
type EndpointKind string

const (
	EndpointAlerts          EndpointKind = "alerts"
	EndpointStageChange     EndpointKind = "stage_change"
	EndpointPhaseActivation EndpointKind = "phase_activation"
)

// Endpoints maps destinations to their configured URLs.
type Endpoints struct {
	Alerts          string
	StageChange     string
	PhaseActivation string
}

// URL returns the configured URL for kind, or "" when it is not configured.
func (e Endpoints) URL(kind EndpointKind) string {
	switch kind {
	case EndpointAlerts:
		return e.Alerts
	case EndpointStageChange:
		return e.StageChange
	case EndpointPhaseActivation:
		return e.PhaseActivation
	}
	return ""
}

// Route is where an alert type is delivered and how its payload is built.
type Route struct {
	Endpoint EndpointKind
	Build    func(a *model.Alert) any

	// PhaseActivation adds the best-effort phase activation call after a
	// successful primary delivery.
	PhaseActivation bool
}

var routes = map[model.AlertType]Route{
	model.TypePaymentOverdue:  {Endpoint: EndpointAlerts, Build: buildGeneric},
	model.TypeRenewalUpcoming: {Endpoint: EndpointAlerts, Build: buildGeneric},
	model.TypeServiceExpired:  {Endpoint: EndpointAlerts, Build: buildGeneric},
	model.TypeNewSale:         {Endpoint: EndpointAlerts, Build: buildGeneric},
	model.TypeStageChange:     {Endpoint: EndpointStageChange, Build: buildStage, PhaseActivation: true},
	model.TypeStageOverdue:    {Endpoint: EndpointStageChange, Build: buildStage},
}

// RouteFor resolves the delivery route of an alert type.
func RouteFor(t model.AlertType) (Route, error) {
	r, ok := routes[t]
	if !ok {
		return Route{}, fmt.Errorf("%w: %q", ErrUnroutable, t)
	}
	return r, nil
}

var colors = map[model.AlertType]string{
	model.TypePaymentOverdue:  "danger",
	model.TypeRenewalUpcoming: "warning",
	model.TypeServiceExpired:  "danger",
	model.TypeNewSale:         "good",
}

var labels = map[model.AlertType]string{
	model.TypePaymentOverdue:  "Payment overdue",
	model.TypeRenewalUpcoming: "Renewal upcoming",
	model.TypeServiceExpired:  "Service expired",
	model.TypeNewSale:         "New sale",
	model.TypeStageChange:     "Stage change",
	model.TypeStageOverdue:    "Stage overdue",
}

// ColorFor returns the display color of an alert type; warning by default.
func ColorFor(t model.AlertType) string {
	if c, ok := colors[t]; ok {
		return c
	}
	return "warning"
}

// LabelFor returns the human label of an alert type; the raw type by default.
func LabelFor(t model.AlertType) string {
	if l, ok := labels[t]; ok {
		return l
	}
	return string(t)
}
