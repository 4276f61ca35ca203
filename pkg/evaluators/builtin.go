package evaluators

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ogulcanaydogan/opsalert/pkg/clock"
	"github.com/ogulcanaydogan/opsalert/pkg/model"
	"github.com/ogulcanaydogan/opsalert/pkg/storage"
	"go.uber.org/zap"
)

const dateLayout = "2006-01-02"

// Source is the store surface the built-in rules need: the shared SQL
// handle for reading business tables and the alert sink for writing.
type Source interface {
	Sink
	DB() *sql.DB
	Dialect() storage.Dialect
}

// base carries what every built-in rule shares.
type base struct {
	src    Source
	clock  clock.Clock
	logger *zap.Logger
}

func (b base) today() time.Time {
	now := b.clock.Now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

func (b base) query(ctx context.Context, q string, args ...any) (*sql.Rows, error) {
	return b.src.DB().QueryContext(ctx, b.src.Dialect().Rebind(q), args...)
}

// emit inserts each candidate and counts the ones that were new.
func (b base) emit(ctx context.Context, rule string, candidates []*model.NewAlert) (int, error) {
	created := 0
	for _, c := range candidates {
		a, err := b.src.InsertIfAbsent(ctx, c)
		if err != nil {
			return created, fmt.Errorf("%s: %w", rule, err)
		}
		if a == nil {
			continue
		}
		created++
		b.logger.Debug("alert created",
			zap.String("rule", rule),
			zap.String("alert_id", a.ID),
			zap.String("alert_type", string(a.Type)),
			zap.String("condition_key", a.ConditionKey),
		)
	}
	return created, nil
}

// NewBuiltins registers the enabled built-in rules in their fixed order:
// payment_overdue, renewal_upcoming, service_expired, stage.
func NewBuiltins(src Source, rules *Rules, clk clock.Clock, logger *zap.Logger) (*Registry, error) {
	if rules == nil {
		rules = DefaultRules()
	}
	if clk == nil {
		clk = clock.SystemClock{}
	}
	b := base{src: src, clock: clk, logger: logger}

	var all []Evaluator
	if rules.PaymentOverdue.Enabled {
		all = append(all, &PaymentOverdue{base: b, rule: rules.PaymentOverdue})
	}
	if rules.RenewalUpcoming.Enabled {
		all = append(all, &RenewalUpcoming{base: b, rule: rules.RenewalUpcoming})
	}
	if rules.ServiceExpired.Enabled {
		all = append(all, &ServiceExpired{base: b})
	}
	if rules.Stage.Enabled {
		all = append(all, &Stage{base: b, rule: rules.Stage})
	}

	reg := NewRegistry()
	for _, e := range all {
		if err := reg.Register(e); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

func daysBetween(from, to time.Time) int {
	return int(to.Sub(from).Hours() / 24)
}

func parseDate(s string) (time.Time, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return t, nil
}

// PaymentOverdue flags unpaid installments past their due date plus grace.
// One reminder is produced per reminder interval while the installment stays unpaid.
type PaymentOverdue struct {
	base
	rule PaymentOverdueRule
}

func (e *PaymentOverdue) Name() string { return "payment_overdue" }

func (e *PaymentOverdue) Evaluate(ctx context.Context) (int, error) {
	today := e.today()
	cutoff := today.AddDate(0, 0, -e.rule.GraceDays).Format(dateLayout)

	rows, err := e.query(ctx,
		`SELECT i.id, i.subscription_id, s.client_id, c.name, i.amount, i.due_date
		 FROM installments i
		 JOIN subscriptions s ON s.id = i.subscription_id
		 JOIN clients c ON c.id = s.client_id
		 WHERE i.paid_at IS NULL AND i.due_date < ?
		 ORDER BY i.due_date, i.id`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("query overdue installments: %w", err)
	}
	defer rows.Close()

	var candidates []*model.NewAlert
	for rows.Next() {
		var (
			id, subID, clientID, clientName, dueDate string
			amount                                   float64
		)
		if err := rows.Scan(&id, &subID, &clientID, &clientName, &amount, &dueDate); err != nil {
			return 0, fmt.Errorf("scan installment row: %w", err)
		}
		due, err := parseDate(dueDate)
		if err != nil {
			return 0, err
		}
		overdue := daysBetween(due, today)
		bucket := (overdue - e.rule.GraceDays - 1) / e.rule.ReminderIntervalDays

		candidates = append(candidates, &model.NewAlert{
			Type:           model.TypePaymentOverdue,
			ConditionKey:   fmt.Sprintf("payment_overdue:%s:%d", id, bucket),
			Title:          "Payment overdue",
			Message:        fmt.Sprintf("%s: installment of %.2f due %s is %d days overdue", clientName, amount, dueDate, overdue),
			ClientID:       clientID,
			SubscriptionID: subID,
			InstallmentID:  id,
			Metadata: model.Metadata{
				"client_name":  clientName,
				"amount":       amount,
				"due_date":     dueDate,
				"days_overdue": overdue,
			},
		})
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("iterate installments: %w", err)
	}
	rows.Close()

	return e.emit(ctx, e.Name(), candidates)
}

// RenewalUpcoming flags active subscriptions ending within the lead window.
type RenewalUpcoming struct {
	base
	rule RenewalUpcomingRule
}

func (e *RenewalUpcoming) Name() string { return "renewal_upcoming" }

func (e *RenewalUpcoming) Evaluate(ctx context.Context) (int, error) {
	today := e.today()
	horizon := today.AddDate(0, 0, e.rule.LeadDays)

	rows, err := e.query(ctx,
		`SELECT s.id, s.client_id, c.name, s.plan, s.end_date
		 FROM subscriptions s
		 JOIN clients c ON c.id = s.client_id
		 WHERE s.status = 'active' AND s.end_date >= ? AND s.end_date <= ?
		 ORDER BY s.end_date, s.id`,
		today.Format(dateLayout), horizon.Format(dateLayout))
	if err != nil {
		return 0, fmt.Errorf("query upcoming renewals: %w", err)
	}
	defer rows.Close()

	var candidates []*model.NewAlert
	for rows.Next() {
		var subID, clientID, clientName, plan, endDate string
		if err := rows.Scan(&subID, &clientID, &clientName, &plan, &endDate); err != nil {
			return 0, fmt.Errorf("scan subscription row: %w", err)
		}
		end, err := parseDate(endDate)
		if err != nil {
			return 0, err
		}
		left := daysBetween(today, end)

		candidates = append(candidates, &model.NewAlert{
			Type:           model.TypeRenewalUpcoming,
			ConditionKey:   fmt.Sprintf("renewal_upcoming:%s:%s", subID, endDate),
			Title:          "Renewal upcoming",
			Message:        fmt.Sprintf("%s: %s plan ends on %s (%d days left)", clientName, plan, endDate, left),
			ClientID:       clientID,
			SubscriptionID: subID,
			Metadata: model.Metadata{
				"client_name": clientName,
				"plan":        plan,
				"end_date":    endDate,
				"days_left":   left,
			},
		})
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("iterate subscriptions: %w", err)
	}
	rows.Close()

	return e.emit(ctx, e.Name(), candidates)
}

// ServiceExpired flags subscriptions still marked active after their end date.
type ServiceExpired struct {
	base
}

func (e *ServiceExpired) Name() string { return "service_expired" }

func (e *ServiceExpired) Evaluate(ctx context.Context) (int, error) {
	today := e.today()

	rows, err := e.query(ctx,
		`SELECT s.id, s.client_id, c.name, s.plan, s.end_date
		 FROM subscriptions s
		 JOIN clients c ON c.id = s.client_id
		 WHERE s.status = 'active' AND s.end_date < ?
		 ORDER BY s.end_date, s.id`,
		today.Format(dateLayout))
	if err != nil {
		return 0, fmt.Errorf("query expired services: %w", err)
	}
	defer rows.Close()

	var candidates []*model.NewAlert
	for rows.Next() {
		var subID, clientID, clientName, plan, endDate string
		if err := rows.Scan(&subID, &clientID, &clientName, &plan, &endDate); err != nil {
			return 0, fmt.Errorf("scan subscription row: %w", err)
		}
		end, err := parseDate(endDate)
		if err != nil {
			return 0, err
		}

		candidates = append(candidates, &model.NewAlert{
			Type:           model.TypeServiceExpired,
			ConditionKey:   fmt.Sprintf("service_expired:%s:%s", subID, endDate),
			Title:          "Service expired",
			Message:        fmt.Sprintf("%s: %s plan expired on %s", clientName, plan, endDate),
			ClientID:       clientID,
			SubscriptionID: subID,
			Metadata: model.Metadata{
				"client_name":  clientName,
				"plan":         plan,
				"end_date":     endDate,
				"days_expired": daysBetween(end, today),
			},
		})
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("iterate subscriptions: %w", err)
	}
	rows.Close()

	return e.emit(ctx, e.Name(), candidates)
}

// Stage watches program stages: the stage running today produces a
// stage_change alert once, and a stage past its end without completion
// produces a stage_overdue alert once.
type Stage struct {
	base
	rule StageRule
}

func (e *Stage) Name() string { return "stage" }

type stageRow struct {
	subID, clientID, clientName, channel string
	number                               int
	name, startDate, endDate, subStart   string
}

func (e *Stage) Evaluate(ctx context.Context) (int, error) {
	today := e.today()
	day := today.Format(dateLayout)

	current, err := e.stages(ctx, `ps.start_date <= ? AND ps.end_date >= ?`, day, day)
	if err != nil {
		return 0, err
	}
	late, err := e.stages(ctx, `ps.end_date < ? AND ps.completed_at IS NULL`, day)
	if err != nil {
		return 0, err
	}

	var candidates []*model.NewAlert
	for _, r := range current {
		a, err := e.alertFor(model.TypeStageChange, r, today)
		if err != nil {
			return 0, err
		}
		candidates = append(candidates, a)
	}
	for _, r := range late {
		a, err := e.alertFor(model.TypeStageOverdue, r, today)
		if err != nil {
			return 0, err
		}
		candidates = append(candidates, a)
	}

	return e.emit(ctx, e.Name(), candidates)
}

func (e *Stage) stages(ctx context.Context, where string, args ...any) ([]stageRow, error) {
	rows, err := e.query(ctx,
		`SELECT ps.subscription_id, s.client_id, c.name, c.discord_channel,
		        ps.stage_number, ps.stage_name, ps.start_date, ps.end_date, s.start_date
		 FROM program_stages ps
		 JOIN subscriptions s ON s.id = ps.subscription_id
		 JOIN clients c ON c.id = s.client_id
		 WHERE s.status = 'active' AND `+where+`
		 ORDER BY ps.subscription_id, ps.stage_number`, args...)
	if err != nil {
		return nil, fmt.Errorf("query program stages: %w", err)
	}
	defer rows.Close()

	var out []stageRow
	for rows.Next() {
		var r stageRow
		if err := rows.Scan(&r.subID, &r.clientID, &r.clientName, &r.channel,
			&r.number, &r.name, &r.startDate, &r.endDate, &r.subStart); err != nil {
			return nil, fmt.Errorf("scan stage row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (e *Stage) alertFor(t model.AlertType, r stageRow, today time.Time) (*model.NewAlert, error) {
	subStart, err := parseDate(r.subStart)
	if err != nil {
		return nil, err
	}
	channel := r.channel
	if channel == "" {
		channel = e.rule.DefaultDiscordChannel
	}

	title := fmt.Sprintf("Stage %d: %s", r.number, r.name)
	message := fmt.Sprintf("%s entered stage %d (%s), %s to %s", r.clientName, r.number, r.name, r.startDate, r.endDate)
	if t == model.TypeStageOverdue {
		title = fmt.Sprintf("Stage %d overdue: %s", r.number, r.name)
		message = fmt.Sprintf("%s has not completed stage %d (%s), due %s", r.clientName, r.number, r.name, r.endDate)
	}

	return &model.NewAlert{
		Type:           t,
		ConditionKey:   fmt.Sprintf("%s:%s:%d", t, r.subID, r.number),
		Title:          title,
		Message:        message,
		ClientID:       r.clientID,
		SubscriptionID: r.subID,
		Metadata: model.Metadata{
			"client_name":     r.clientName,
			"stage_number":    r.number,
			"stage_name":      r.name,
			"start_date":      r.startDate,
			"end_date":        r.endDate,
			"program_day":     daysBetween(subStart, today) + 1,
			"discord_channel": channel,
		},
	}, nil
}
