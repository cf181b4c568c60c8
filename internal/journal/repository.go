// Package journal records checkout attempts and the outbox of checkout events.
package journal

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/go_storefront/domain"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"
)

//go:embed migrations
var migrationsFS embed.FS

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

var (
	ErrAttemptNotFound   = errors.New("checkout attempt not found")
	ErrAttemptCompleted  = errors.New("checkout attempt already completed")
	ErrUnsupportedDriver = errors.New("unsupported journal driver")
)

// Attempt is one run of the checkout sequence for a session.
type Attempt struct {
	ID           string
	SessionID    string
	UserID       string
	Status       domain.CheckoutStatus
	Step         string
	RemoteCartID string
	OrderID      string
	ItemCount    int
	LocalTotal   decimal.Decimal
	ChargedTotal decimal.NullDecimal
	ErrorMessage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type OutboxEvent struct {
	ID          int64
	AggregateID string
	EventType   string
	Payload     json.RawMessage
	CreatedAt   time.Time
}

type Config struct {
	Driver string
	DSN    string
}

type Repository struct {
	db     *sql.DB
	driver string
}

func NewRepository(cfg Config) (*Repository, error) {
	if cfg.Driver != DriverSQLite && cfg.Driver != DriverPostgres {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, cfg.Driver)
	}

	db, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if cfg.Driver == DriverSQLite {
		// sqlite allows a single writer
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(20)
		db.SetMaxIdleConns(5)
	}
	return &Repository{db: db, driver: cfg.Driver}, nil
}

func (r *Repository) RunMigrations() error {
	var (
		driver database.Driver
		err    error
	)
	switch r.driver {
	case DriverPostgres:
		driver, err = postgres.WithInstance(r.db, &postgres.Config{MigrationsTable: "journal_schema_migrations"})
	default:
		driver, err = sqlite.WithInstance(r.db, &sqlite.Config{})
	}
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	src, err := iofs.New(migrationsFS, "migrations/"+r.driver)
	if err != nil {
		return fmt.Errorf("could not open migrations: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, r.driver, driver)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", err)
	}
	return nil
}

func (r *Repository) CreateAttempt(ctx context.Context, a *Attempt) error {
	now := time.Now().UTC()
	a.CreatedAt, a.UpdatedAt = now, now

	query := `INSERT INTO checkout_attempts (id, session_id, user_id, status, step, item_count, local_total, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := r.db.ExecContext(ctx, query,
		a.ID,
		a.SessionID,
		a.UserID,
		string(a.Status),
		a.Step,
		a.ItemCount,
		a.LocalTotal,
		a.CreatedAt,
		a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert checkout attempt: %w", err)
	}
	return nil
}

// UpdateAttempt records the step being run and the remote identifiers known so far.
func (r *Repository) UpdateAttempt(ctx context.Context, id, step, remoteCartID, orderID string) error {
	query := `UPDATE checkout_attempts
	          SET step = $1, remote_cart_id = $2, order_id = $3, updated_at = $4
	          WHERE id = $5`

	res, err := r.db.ExecContext(ctx, query, step, remoteCartID, orderID, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update checkout attempt: %w", err)
	}
	return expectOneRow(res)
}

// TouchAttempt marks a running attempt as alive.
func (r *Repository) TouchAttempt(ctx context.Context, id string) error {
	query := `UPDATE checkout_attempts SET updated_at = $1 WHERE id = $2 AND status = $3`

	res, err := r.db.ExecContext(ctx, query, time.Now().UTC(), id, string(domain.CheckoutStatusSubmitting))
	if err != nil {
		return fmt.Errorf("touch checkout attempt: %w", err)
	}
	return expectRunning(ctx, r.db, res, id)
}

// CompleteAttempt stores the final state of a and enqueues event in the same
// transaction. Only a SUBMITTING attempt can be completed, so an attempt has
// exactly one outcome event; a second completion returns ErrAttemptCompleted.
func (r *Repository) CompleteAttempt(ctx context.Context, a *Attempt, event *OutboxEvent) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	a.UpdatedAt = now

	update := `UPDATE checkout_attempts
	           SET status = $1, step = $2, remote_cart_id = $3, order_id = $4, charged_total = $5, error_message = $6, updated_at = $7
	           WHERE id = $8 AND status = $9`
	res, err := tx.ExecContext(ctx, update,
		string(a.Status),
		a.Step,
		a.RemoteCartID,
		a.OrderID,
		a.ChargedTotal,
		a.ErrorMessage,
		now,
		a.ID,
		string(domain.CheckoutStatusSubmitting))
	if err != nil {
		return fmt.Errorf("complete checkout attempt: %w", err)
	}
	if err := expectRunning(ctx, tx, res, a.ID); err != nil {
		return err
	}

	insert := `INSERT INTO checkout_outbox (aggregate_id, event_type, payload, created_at)
	           VALUES ($1, $2, $3, $4)`
	if _, err := tx.ExecContext(ctx, insert, event.AggregateID, event.EventType, string(event.Payload), now); err != nil {
		return fmt.Errorf("insert outbox event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (r *Repository) GetAttempt(ctx context.Context, id string) (*Attempt, error) {
	query := `SELECT ` + attemptColumns + ` FROM checkout_attempts WHERE id = $1`

	a, err := scanAttempt(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAttemptNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query checkout attempt: %w", err)
	}
	return a, nil
}

// ListAttempts returns the attempts of a session, newest first.
func (r *Repository) ListAttempts(ctx context.Context, sessionID string) ([]*Attempt, error) {
	query := `SELECT ` + attemptColumns + ` FROM checkout_attempts
	          WHERE session_id = $1 ORDER BY created_at DESC, id`

	rows, err := r.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query checkout attempts: %w", err)
	}
	defer rows.Close()

	attempts := []*Attempt{}
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, fmt.Errorf("scan checkout attempt: %w", err)
		}
		attempts = append(attempts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return attempts, nil
}

// GetStaleAttempts returns attempts still SUBMITTING that were last touched
// before cutoff, which happens when the process died mid-checkout.
func (r *Repository) GetStaleAttempts(ctx context.Context, cutoff time.Time, limit int) ([]*Attempt, error) {
	query := `SELECT ` + attemptColumns + ` FROM checkout_attempts
	          WHERE status = $1 AND updated_at < $2
	          ORDER BY updated_at
	          LIMIT $3`

	rows, err := r.db.QueryContext(ctx, query, string(domain.CheckoutStatusSubmitting), cutoff.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("query stale attempts: %w", err)
	}
	defer rows.Close()

	var attempts []*Attempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, fmt.Errorf("scan checkout attempt: %w", err)
		}
		attempts = append(attempts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return attempts, nil
}

func (r *Repository) GetUnprocessedEvents(ctx context.Context, limit int) ([]*OutboxEvent, error) {
	query := `SELECT id, aggregate_id, event_type, payload, created_at
	          FROM checkout_outbox
	          WHERE processed_at IS NULL
	          ORDER BY id
	          LIMIT $1`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query outbox events: %w", err)
	}
	defer rows.Close()

	var events []*OutboxEvent
	for rows.Next() {
		var (
			e       OutboxEvent
			payload []byte
		)
		if err := rows.Scan(&e.ID, &e.AggregateID, &e.EventType, &payload, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan outbox event: %w", err)
		}
		e.Payload = payload
		events = append(events, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return events, nil
}

func (r *Repository) MarkEventAsProcessed(ctx context.Context, id int64) error {
	query := `UPDATE checkout_outbox SET processed_at = $1 WHERE id = $2`
	if _, err := r.db.ExecContext(ctx, query, time.Now().UTC(), id); err != nil {
		return fmt.Errorf("mark outbox event %d: %w", id, err)
	}
	return nil
}

func (r *Repository) Close() error {
	return r.db.Close()
}

const attemptColumns = `id, session_id, user_id, status, step, remote_cart_id, order_id,
	item_count, local_total, charged_total, error_message, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAttempt(row rowScanner) (*Attempt, error) {
	var (
		a      Attempt
		status string
	)
	err := row.Scan(
		&a.ID,
		&a.SessionID,
		&a.UserID,
		&status,
		&a.Step,
		&a.RemoteCartID,
		&a.OrderID,
		&a.ItemCount,
		&a.LocalTotal,
		&a.ChargedTotal,
		&a.ErrorMessage,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	a.Status = domain.CheckoutStatus(status)
	return &a, nil
}

type rowQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// expectRunning tells a missing attempt apart from one that is no longer
// SUBMITTING when an update guarded on status matched nothing.
func expectRunning(ctx context.Context, q rowQuerier, res sql.Result, id string) error {
	err := expectOneRow(res)
	if !errors.Is(err, ErrAttemptNotFound) {
		return err
	}
	var exists int
	row := q.QueryRowContext(ctx, `SELECT 1 FROM checkout_attempts WHERE id = $1`, id)
	if scanErr := row.Scan(&exists); scanErr != nil {
		return err
	}
	return ErrAttemptCompleted
}

func expectOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrAttemptNotFound
	}
	return nil
}
