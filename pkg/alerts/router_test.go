package alerts_test

import (
	"testing"

	"github.com/ogulcanaydogan/opsalert/pkg/alerts"
	"github.com/ogulcanaydogan/opsalert/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRouteFor_EveryTypeRouted(t *testing.T) {
	for _, at := range model.AllAlertTypes() {
		r, err := alerts.RouteFor(at)
		require.NoError(t, err, at)
		assert.NotNil(t, r.Build, at)
		assert.NotEmpty(t, r.Endpoint, at)
	}
}

func TestRouteFor_Endpoints(t *testing.T) {
	tests := []struct {
		typ             model.AlertType
		endpoint        alerts.EndpointKind
		phaseActivation bool
	}{
		{model.TypePaymentOverdue, alerts.EndpointAlerts, false},
		{model.TypeRenewalUpcoming, alerts.EndpointAlerts, false},
		{model.TypeServiceExpired, alerts.EndpointAlerts, false},
		{model.TypeNewSale, alerts.EndpointAlerts, false},
		{model.TypeStageChange, alerts.EndpointStageChange, true},
		{model.TypeStageOverdue, alerts.EndpointStageChange, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.typ), func(t *testing.T) {
			r, err := alerts.RouteFor(tt.typ)
			require.NoError(t, err)
			assert.Equal(t, tt.endpoint, r.Endpoint)
			assert.Equal(t, tt.phaseActivation, r.PhaseActivation)
		})
	}
}

func TestRouteFor_Unknown(t *testing.T) {
	_, err := alerts.RouteFor("carrier_pigeon")
	assert.ErrorIs(t, err, alerts.ErrUnroutable)
}

func TestColorAndLabel(t *testing.T) {
	assert.Equal(t, "danger", alerts.ColorFor(model.TypePaymentOverdue))
	assert.Equal(t, "warning", alerts.ColorFor(model.TypeRenewalUpcoming))
	assert.Equal(t, "danger", alerts.ColorFor(model.TypeServiceExpired))
	assert.Equal(t, "good", alerts.ColorFor(model.TypeNewSale))
	assert.Equal(t, "warning", alerts.ColorFor(model.TypeStageOverdue))

	assert.Equal(t, "Payment overdue", alerts.LabelFor(model.TypePaymentOverdue))
	assert.Equal(t, "something_else", alerts.LabelFor("something_else"))
}

func TestEndpoints_URL(t *testing.T) {
	e := alerts.Endpoints{Alerts: "a", StageChange: "s", PhaseActivation: "p"}
	assert.Equal(t, "a", e.URL(alerts.EndpointAlerts))
	assert.Equal(t, "s", e.URL(alerts.EndpointStageChange))
	assert.Equal(t, "p", e.URL(alerts.EndpointPhaseActivation))
	assert.Empty(t, e.URL("other"))
}
