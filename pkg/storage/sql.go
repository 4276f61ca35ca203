package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ogulcanaydogan/opsalert/pkg/clock"
	"github.com/ogulcanaydogan/opsalert/pkg/model"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

const alertColumns = `id, alert_type, condition_key, title, message, status,
	client_id, subscription_id, installment_id, metadata, webhook_url,
	attempts, last_error, created_at, sent_at`

// SQLStore implements Store on top of database/sql.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
	clock   clock.Clock
}

var _ Store = (*SQLStore)(nil)

// Open connects to the configured backend and applies migrations. For SQLite
// dsn is a file path; for PostgreSQL it is a lib/pq connection string.
func Open(driver, dsn string, clk clock.Clock) (*SQLStore, error) {
	d, err := ParseDialect(driver)
	if err != nil {
		return nil, err
	}
	if d == DialectPostgres {
		return NewPostgres(dsn, clk)
	}
	return NewSQLite(dsn, clk)
}

// NewSQLite opens or creates an SQLite database at the given path.
func NewSQLite(dbPath string, clk clock.Clock) (*SQLStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Enable WAL mode for concurrent reads
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if err := runMigrations(db, DialectSQLite); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return New(db, DialectSQLite, clk), nil
}

// NewPostgres connects to PostgreSQL and applies migrations.
func NewPostgres(dsn string, clk clock.Clock) (*SQLStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if err := runMigrations(db, DialectPostgres); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return New(db, DialectPostgres, clk), nil
}

// New wraps an already opened handle. Migrations are not applied.
func New(db *sql.DB, d Dialect, clk clock.Clock) *SQLStore {
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &SQLStore{db: db, dialect: d, clock: clk}
}

// DB exposes the shared handle for rule queries.
func (s *SQLStore) DB() *sql.DB { return s.db }

// Dialect returns the SQL flavour of the handle.
func (s *SQLStore) Dialect() Dialect { return s.dialect }

func (s *SQLStore) InsertIfAbsent(ctx context.Context, in *model.NewAlert) (*model.Alert, error) {
	if !in.Type.Valid() {
		return nil, fmt.Errorf("insert alert: unknown alert type %q", in.Type)
	}
	if in.ConditionKey == "" {
		return nil, errors.New("insert alert: condition key is required")
	}

	alert := &model.Alert{
		ID:             uuid.New().String(),
		Type:           in.Type,
		ConditionKey:   in.ConditionKey,
		Title:          in.Title,
		Message:        in.Message,
		Status:         model.StatusPending,
		ClientID:       in.ClientID,
		SubscriptionID: in.SubscriptionID,
		InstallmentID:  in.InstallmentID,
		Metadata:       in.Metadata,
		CreatedAt:      s.clock.Now().UTC(),
	}

	meta, err := encodeMetadata(alert.Metadata)
	if err != nil {
		return nil, err
	}

	res, err := s.db.ExecContext(ctx, s.dialect.Rebind(
		`INSERT INTO alerts (id, alert_type, condition_key, title, message, status,
			client_id, subscription_id, installment_id, metadata, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT DO NOTHING`),
		alert.ID, string(alert.Type), alert.ConditionKey, alert.Title, alert.Message,
		string(alert.Status), alert.ClientID, alert.SubscriptionID, alert.InstallmentID,
		meta, alert.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert alert: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("check rows affected: %w", err)
	}
	if n == 0 {
		return nil, nil
	}
	return alert, nil
}

func (s *SQLStore) ListPendingCreatedSince(ctx context.Context, since time.Time) ([]model.Alert, error) {
	rows, err := s.db.QueryContext(ctx, s.dialect.Rebind(
		`SELECT `+alertColumns+` FROM alerts
		 WHERE status = ? AND created_at >= ?
		 ORDER BY created_at ASC, id ASC`),
		string(model.StatusPending), since.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("list pending alerts: %w", err)
	}
	return scanAlerts(rows)
}

func (s *SQLStore) UpdateStatus(ctx context.Context, id string, status model.Status, update model.StatusUpdate) error {
	var (
		sentAt     any
		webhookURL string
	)
	switch status {
	case model.StatusSent:
		t := s.clock.Now().UTC()
		if update.SentAt != nil {
			t = update.SentAt.UTC()
		}
		sentAt = t
		webhookURL = update.WebhookURL
	case model.StatusFailed:
	default:
		return fmt.Errorf("update alert %s: invalid target status %q", id, status)
	}

	res, err := s.db.ExecContext(ctx, s.dialect.Rebind(
		`UPDATE alerts
		 SET status = ?, sent_at = ?, webhook_url = ?, last_error = ?, attempts = attempts + 1
		 WHERE id = ? AND status <> ?`),
		string(status), sentAt, webhookURL, update.LastError, id, string(model.StatusSent),
	)
	if err != nil {
		return fmt.Errorf("update alert status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if n > 0 {
		return nil
	}

	var current string
	err = s.db.QueryRowContext(ctx, s.dialect.Rebind(`SELECT status FROM alerts WHERE id = ?`), id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("alert %q: %w", id, model.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("check alert status: %w", err)
	}
	return fmt.Errorf("alert %q: %w", id, model.ErrAlreadyProcessed)
}

func (s *SQLStore) GetAlert(ctx context.Context, id string) (*model.Alert, error) {
	row := s.db.QueryRowContext(ctx, s.dialect.Rebind(`SELECT `+alertColumns+` FROM alerts WHERE id = ?`), id)
	a, err := scanAlert(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("alert %q: %w", id, model.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get alert: %w", err)
	}
	return a, nil
}

func (s *SQLStore) ListAlerts(ctx context.Context, filter model.AlertFilter) ([]model.Alert, error) {
	query := "SELECT " + alertColumns + " FROM alerts"
	where, args := buildWhereClause(filter)
	if where != "" {
		query += " WHERE " + where
	}
	query += " ORDER BY created_at DESC, id DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, s.dialect.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	return scanAlerts(rows)
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

// buildWhereClause constructs a SQL WHERE clause from an AlertFilter.
func buildWhereClause(filter model.AlertFilter) (string, []any) {
	var conditions []string
	var args []any

	if filter.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.Type != "" {
		conditions = append(conditions, "alert_type = ?")
		args = append(args, string(filter.Type))
	}

	return strings.Join(conditions, " AND "), args
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAlert(row rowScanner) (*model.Alert, error) {
	var (
		a      model.Alert
		typ    string
		status string
		meta   string
		sentAt sql.NullTime
	)
	if err := row.Scan(&a.ID, &typ, &a.ConditionKey, &a.Title, &a.Message, &status,
		&a.ClientID, &a.SubscriptionID, &a.InstallmentID, &meta, &a.WebhookURL,
		&a.Attempts, &a.LastError, &a.CreatedAt, &sentAt); err != nil {
		return nil, err
	}
	a.Type = model.AlertType(typ)
	a.Status = model.Status(status)
	a.CreatedAt = a.CreatedAt.UTC()
	if sentAt.Valid {
		t := sentAt.Time.UTC()
		a.SentAt = &t
	}
	if meta != "" && meta != "{}" {
		if err := json.Unmarshal([]byte(meta), &a.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata for %s: %w", a.ID, err)
		}
	}
	return &a, nil
}

func scanAlerts(rows *sql.Rows) ([]model.Alert, error) {
	defer rows.Close()

	var alerts []model.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("scan alert row: %w", err)
		}
		alerts = append(alerts, *a)
	}
	return alerts, rows.Err()
}

func encodeMetadata(m model.Metadata) (string, error) {
	if len(m) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("encode metadata: %w", err)
	}
	return string(b), nil
}
