// Package mysql implements a workflow engine storage backend using MySQL.
package mysql

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"time"

	"github.com/roomworks/roomflow/engine/storage"
	"github.com/roomworks/roomflow/workflow"
)

// Schema contains the MySQL schema for the engine storage.
//
//go:embed schema.sql
var Schema string

const mySQLTimestampFormat = "2006-01-02 15:04:05"

// MySQLStorage implements a storage.AllStorage using MySQL.
type MySQLStorage struct {
	db *sql.DB
}

type config struct {
	driver string
	dsn    string
	db     *sql.DB
}

// Option allows configuring a MySQLStorage.
type Option func(*config)

// WithDSN sets the storage MySQL data source name.
func WithDSN(dsn string) Option {
	return func(c *config) {
		c.dsn = dsn
	}
}

// WithDriver sets a custom MySQL driver for the storage.
// Default driver is "mysql" but is ignored if WithDB is used.
func WithDriver(driver string) Option {
	return func(c *config) {
		c.driver = driver
	}
}

// WithDB sets a custom MySQL *sql.DB to the storage.
// If set, driver passed via WithDriver is ignored.
func WithDB(db *sql.DB) Option {
	return func(c *config) {
		c.db = db
	}
}

// New creates and returns a new MySQLStorage.
func New(opts ...Option) (*MySQLStorage, error) {
	cfg := &config{driver: "mysql"}
	for _, opt := range opts {
		opt(cfg)
	}
	var err error
	if cfg.db == nil {
		cfg.db, err = sql.Open(cfg.driver, cfg.dsn)
		if err != nil {
			return nil, err
		}
	}
	if err = cfg.db.Ping(); err != nil {
		return nil, err
	}
	return &MySQLStorage{db: cfg.db}, nil
}

// txcb executes SQL within transactions when wrapped in tx().
type txcb func(ctx context.Context, tx *sql.Tx) error

// tx wraps g in transactions using db.
// If g returns an err the transaction will be rolled back; otherwise committed.
func tx(ctx context.Context, db *sql.DB, g txcb) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("tx begin: %w", err)
	}
	if err = g(ctx, tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("tx rollback: %w; while trying to handle error: %v", rbErr, err)
		}
		return fmt.Errorf("tx rolled back: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("tx commit: %w", err)
	}
	return nil
}

// StoreInstance implements the storage interface method.
func (s *MySQLStorage) StoreInstance(ctx context.Context, inst *workflow.Instance) error {
	if inst == nil {
		return storage.ErrEmptyInstance
	}
	if inst.ID == "" {
		return storage.ErrMissingInstanceID
	}
	raw, err := json.Marshal(inst)
	if err != nil {
		return fmt.Errorf("marshal instance: %w", err)
	}
	_, err = s.db.ExecContext(
		ctx, `
INSERT INTO instances
    (id, template_name, unit_ref, pipeline_status, instance)
VALUES
    (?, ?, ?, ?, ?) AS new
ON DUPLICATE KEY UPDATE
    pipeline_status = new.pipeline_status,
    instance = new.instance;`,
		inst.ID,
		inst.TemplateName,
		inst.UnitRef,
		uint(inst.Pipeline.Status),
		raw,
	)
	return err
}

// RetrieveInstance implements the storage interface method.
func (s *MySQLStorage) RetrieveInstance(ctx context.Context, id string) (*workflow.Instance, error) {
	if id == "" {
		return nil, storage.ErrMissingInstanceID
	}
	var raw []byte
	err := s.db.QueryRowContext(
		ctx,
		`SELECT instance FROM instances WHERE id = ?;`,
		id,
	).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: instance %s", storage.ErrNotFound, id)
	} else if err != nil {
		return nil, err
	}
	inst := new(workflow.Instance)
	if err = json.Unmarshal(raw, inst); err != nil {
		return nil, fmt.Errorf("unmarshal instance: %w", err)
	}
	return inst, nil
}

// RetrievePendingInstances implements the storage interface method.
func (s *MySQLStorage) RetrievePendingInstances(ctx context.Context, templateName string) ([]*workflow.Instance, error) {
	query := `SELECT instance FROM instances WHERE pipeline_status = ?`
	args := []interface{}{uint(workflow.StatusInStage)}
	if templateName != "" {
		query += ` AND template_name = ?`
		args = append(args, templateName)
	}
	rows, err := s.db.QueryContext(ctx, query+`;`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var pending []*workflow.Instance
	for rows.Next() {
		var raw []byte
		if err = rows.Scan(&raw); err != nil {
			return pending, err
		}
		inst := new(workflow.Instance)
		if err = json.Unmarshal(raw, inst); err != nil {
			return pending, fmt.Errorf("unmarshal instance: %w", err)
		}
		pending = append(pending, inst)
	}
	return pending, rows.Err()
}

// AppendAuditEvent implements the storage interface method.
func (s *MySQLStorage) AppendAuditEvent(ctx context.Context, unitRef string, ev *storage.AuditEvent) error {
	if unitRef == "" {
		return storage.ErrMissingUnitRef
	}
	if err := ev.Validate(); err != nil {
		return fmt.Errorf("validating audit event: %w", err)
	}
	_, err := s.db.ExecContext(
		ctx, `
INSERT INTO audit_events
    (unit_ref, actor, action, ref, reason, at)
VALUES
    (?, ?, ?, ?, ?, ?);`,
		unitRef,
		ev.Actor,
		string(ev.Action),
		ev.Ref,
		sqlNullString(ev.Reason),
		ev.At.UTC().Format(mySQLTimestampFormat),
	)
	return err
}

// RetrieveAuditEvents implements the storage interface method.
func (s *MySQLStorage) RetrieveAuditEvents(ctx context.Context, unitRef string) ([]storage.AuditEvent, error) {
	if unitRef == "" {
		return nil, storage.ErrMissingUnitRef
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT actor, action, ref, reason, at FROM audit_events WHERE unit_ref = ? ORDER BY seq;`,
		unitRef,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	events := []storage.AuditEvent{}
	for rows.Next() {
		var ev storage.AuditEvent
		var action string
		var reason sql.NullString
		var at string
		if err = rows.Scan(&ev.Actor, &action, &ev.Ref, &reason, &at); err != nil {
			return events, err
		}
		ev.Action = storage.AuditAction(action)
		ev.Reason = reason.String
		if ev.At, err = time.Parse(mySQLTimestampFormat, at); err != nil {
			return events, fmt.Errorf("parsing event time: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// StoreCheck implements the storage interface method.
func (s *MySQLStorage) StoreCheck(ctx context.Context, c *storage.Check) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("validating check: %w", err)
	}
	_, err := s.db.ExecContext(
		ctx, `
INSERT INTO checks
    (id, instance_id, step_index, kind, not_until)
VALUES
    (?, ?, ?, ?, ?) AS new
ON DUPLICATE KEY UPDATE
    step_index = new.step_index,
    kind = new.kind,
    not_until = new.not_until;`,
		c.ID,
		c.InstanceID,
		c.StepIndex,
		c.Kind,
		sqlNullTime(c.NotUntil.UTC()),
	)
	return err
}

// RetrieveDueChecks implements the storage interface method.
// Retrieved checks are deleted within the same transaction (permanently claimed).
func (s *MySQLStorage) RetrieveDueChecks(ctx context.Context, now time.Time) ([]*storage.Check, error) {
	var due []*storage.Check
	err := tx(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		rows, err := tx.QueryContext(
			ctx, `
SELECT id, instance_id, step_index, kind
FROM checks
WHERE not_until IS NULL OR not_until <= ?
FOR UPDATE;`,
			now.UTC().Format(mySQLTimestampFormat),
		)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			c := new(storage.Check)
			if err = rows.Scan(&c.ID, &c.InstanceID, &c.StepIndex, &c.Kind); err != nil {
				return err
			}
			due = append(due, c)
		}
		if err = rows.Err(); err != nil {
			return err
		}
		for _, c := range due {
			if _, err = tx.ExecContext(ctx, `DELETE FROM checks WHERE id = ?;`, c.ID); err != nil {
				return fmt.Errorf("claiming check %s: %w", c.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return due, nil
}

// CancelChecks implements the storage interface method.
func (s *MySQLStorage) CancelChecks(ctx context.Context, instanceID string, stepIndex int) error {
	if instanceID == "" {
		return storage.ErrMissingInstanceID
	}
	query := `DELETE FROM checks WHERE instance_id = ?`
	args := []interface{}{instanceID}
	if stepIndex >= 0 {
		query += ` AND step_index = ?`
		args = append(args, stepIndex)
	}
	_, err := s.db.ExecContext(ctx, query+`;`, args...)
	return err
}

// sqlNullString sets Valid to true if s is not empty.
func sqlNullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// sqlNullTime sets Valid to true if t is not zero.
func sqlNullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Valid: !t.IsZero(), Time: t}
}
