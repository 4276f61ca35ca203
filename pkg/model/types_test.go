package model_test

import (
	"testing"

	"github.com/ogulcanaydogan/opsalert/pkg/model"
	"github.com/stretchr/testify/assert"
)

func TestAlertType_Valid(t *testing.T) {
	for _, at := range model.AllAlertTypes() {
		assert.True(t, at.Valid(), string(at))
	}
	assert.False(t, model.AlertType("unknown").Valid())
	assert.False(t, model.AlertType("").Valid())
}

func TestStatus_Valid(t *testing.T) {
	assert.True(t, model.StatusPending.Valid())
	assert.True(t, model.StatusSent.Valid())
	assert.True(t, model.StatusFailed.Valid())
	assert.False(t, model.Status("sending").Valid())
}

func TestMetadata_Accessors(t *testing.T) {
	m := model.Metadata{
		"stage_name":   "Onboarding",
		"stage_number": float64(3),
		"program_day":  12,
		"nil_value":    nil,
	}

	assert.Equal(t, "Onboarding", m.String("stage_name"))
	assert.Equal(t, "3", m.String("stage_number"))
	assert.Equal(t, "", m.String("missing"))
	assert.Equal(t, "", m.String("nil_value"))

	assert.Equal(t, 3, m.Int("stage_number"))
	assert.Equal(t, 12, m.Int("program_day"))
	assert.Equal(t, 0, m.Int("stage_name"))
}

func TestMetadata_NilMap(t *testing.T) {
	var m model.Metadata
	assert.Equal(t, "", m.String("anything"))
	assert.Equal(t, 0, m.Int("anything"))
}
