package evaluators_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ogulcanaydogan/opsalert/pkg/evaluators"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadRules(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	data := []byte(`
payment_overdue:
  grace_days: 3
renewal_upcoming:
  lead_days: 14
service_expired:
  enabled: false
stage:
  default_discord_channel: "#programs"
`)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	rules, err := evaluators.LoadRules(path)
	require.NoError(t, err)
	assert.True(t, rules.PaymentOverdue.Enabled)
	assert.Equal(t, 3, rules.PaymentOverdue.GraceDays)
	assert.Equal(t, 7, rules.PaymentOverdue.ReminderIntervalDays)
	assert.Equal(t, 14, rules.RenewalUpcoming.LeadDays)
	assert.False(t, rules.ServiceExpired.Enabled)
	assert.True(t, rules.Stage.Enabled)
	assert.Equal(t, "#programs", rules.Stage.DefaultDiscordChannel)
}

func TestLoadRules_FileNotFound(t *testing.T) {
	_, err := evaluators.LoadRules("/nonexistent/rules.yaml")
	assert.Error(t, err)
}

func TestLoadRules_InvalidYAML(t *testing.T) {
	_, err := evaluators.LoadRulesFromBytes([]byte("invalid: [yaml"))
	assert.Error(t, err)
}

func TestLoadRules_Validation(t *testing.T) {
	_, err := evaluators.LoadRulesFromBytes([]byte("renewal_upcoming:\n  lead_days: 0\n"))
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "lead_days")

	_, err = evaluators.LoadRulesFromBytes([]byte("payment_overdue:\n  reminder_interval_days: -1\n"))
	assert.Error(t, err)

	_, err = evaluators.LoadRulesFromBytes([]byte("payment_overdue:\n  grace_days: -2\n"))
	assert.Error(t, err)
}

func TestDefaultRules(t *testing.T) {
	rules := evaluators.DefaultRules()
	require.NoError(t, rules.Validate())
	assert.True(t, rules.PaymentOverdue.Enabled)
	assert.True(t, rules.RenewalUpcoming.Enabled)
	assert.True(t, rules.ServiceExpired.Enabled)
	assert.True(t, rules.Stage.Enabled)
}
