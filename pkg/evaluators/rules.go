package evaluators

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Rules holds the tunables of the built-in evaluators.
type Rules struct {
	PaymentOverdue  PaymentOverdueRule  `yaml:"payment_overdue"`
	RenewalUpcoming RenewalUpcomingRule `yaml:"renewal_upcoming"`
	ServiceExpired  ServiceExpiredRule  `yaml:"service_expired"`
	Stage           StageRule           `yaml:"stage"`
}

type PaymentOverdueRule struct {
	Enabled              bool `yaml:"enabled"`
	GraceDays            int  `yaml:"grace_days"`
	ReminderIntervalDays int  `yaml:"reminder_interval_days"`
}

type RenewalUpcomingRule struct {
	Enabled  bool `yaml:"enabled"`
	LeadDays int  `yaml:"lead_days"`
}

type ServiceExpiredRule struct {
	Enabled bool `yaml:"enabled"`
}

type StageRule struct {
	Enabled               bool   `yaml:"enabled"`
	DefaultDiscordChannel string `yaml:"default_discord_channel"`
}

// DefaultRules returns the rule set used when no rules file is configured.
func DefaultRules() *Rules {
	return &Rules{
		PaymentOverdue:  PaymentOverdueRule{Enabled: true, GraceDays: 0, ReminderIntervalDays: 7},
		RenewalUpcoming: RenewalUpcomingRule{Enabled: true, LeadDays: 7},
		ServiceExpired:  ServiceExpiredRule{Enabled: true},
		Stage:           StageRule{Enabled: true},
	}
}

// LoadRules reads a YAML rules file on top of the defaults.
func LoadRules(path string) (*Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules file %s: %w", path, err)
	}
	rules, err := LoadRulesFromBytes(data)
	if err != nil {
		return nil, fmt.Errorf("rules file %s: %w", path, err)
	}
	return rules, nil
}

// LoadRulesFromBytes parses YAML rules data on top of the defaults.
func LoadRulesFromBytes(data []byte) (*Rules, error) {
	rules := DefaultRules()
	if err := yaml.Unmarshal(data, rules); err != nil {
		return nil, fmt.Errorf("parse rules data: %w", err)
	}
	if err := rules.Validate(); err != nil {
		return nil, err
	}
	return rules, nil
}

// Validate rejects settings that would make a rule misbehave.
func (r *Rules) Validate() error {
	if r.PaymentOverdue.GraceDays < 0 {
		return fmt.Errorf("payment_overdue.grace_days must not be negative")
	}
	if r.PaymentOverdue.ReminderIntervalDays <= 0 {
		return fmt.Errorf("payment_overdue.reminder_interval_days must be positive")
	}
	if r.RenewalUpcoming.LeadDays <= 0 {
		return fmt.Errorf("renewal_upcoming.lead_days must be positive")
	}
	return nil
}
