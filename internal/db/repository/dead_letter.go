package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/JoshuaRamirez/ACS-sub004/internal/db"
	"github.com/JoshuaRamirez/ACS-sub004/internal/domain"
)

// DeadLetterRepo stores failed commands in the failed_commands table.
type DeadLetterRepo struct {
	write *sql.DB
	read  *sql.DB
}

var _ domain.DeadLetterRepository = (*DeadLetterRepo)(nil)

// NewDeadLetterRepo creates a DeadLetterRepo over the given pools.
func NewDeadLetterRepo(pools *db.Pools) *DeadLetterRepo {
	return &DeadLetterRepo{write: pools.Write, read: pools.Read}
}

const failedCommandColumns = `id, tenant_id, command_type, command_data, attempt_number, last_error,
	first_failure_time, last_failure_time, expires_at`

const liveFilter = `expires_at > ?
	AND (? IS NULL OR tenant_id = ?)
	AND (? IS NULL OR command_type = ?)`

func filterArgs(f domain.DeadLetterFilter, now time.Time) []interface{} {
	tenant := nullableString(f.TenantID)
	commandType := nullableString(f.CommandType)
	return []interface{}{formatTime(now), tenant, tenant, commandType, commandType}
}

// Enqueue inserts a failed command, assigning an ID when it has none.
func (r *DeadLetterRepo) Enqueue(ctx context.Context, c *domain.FailedCommand) (*domain.FailedCommand, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	stored := *c
	if stored.ID == "" {
		stored.ID = domain.NewID()
	}
	if stored.LastFailureTime.IsZero() {
		stored.LastFailureTime = stored.FirstFailureTime
	}

	_, err := r.write.ExecContext(ctx, `
		INSERT INTO failed_commands (`+failedCommandColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		stored.ID, stored.TenantID, stored.CommandType, stored.CommandData,
		stored.AttemptNumber, stored.LastError,
		formatTime(stored.FirstFailureTime), formatTime(stored.LastFailureTime), formatTime(stored.ExpiresAt),
	)
	if err != nil {
		return nil, mapDBError(err, "dead letter %q", stored.ID)
	}
	return r.get(ctx, r.write, stored.ID, stored.FirstFailureTime.Add(-time.Nanosecond))
}

// Get returns a live entry by ID.
func (r *DeadLetterRepo) Get(ctx context.Context, id string, now time.Time) (*domain.FailedCommand, error) {
	return r.get(ctx, r.read, id, now)
}

func (r *DeadLetterRepo) get(ctx context.Context, q *sql.DB, id string, now time.Time) (*domain.FailedCommand, error) {
	row := q.QueryRowContext(ctx, `
		SELECT `+failedCommandColumns+`
		FROM failed_commands
		WHERE id = ? AND expires_at > ?`, id, formatTime(now))
	c, err := scanFailedCommand(row)
	if err != nil {
		return nil, mapDBError(err, "dead letter %q not found", id)
	}
	return c, nil
}

// Peek returns a page of live entries and the total number matching filter.
func (r *DeadLetterRepo) Peek(ctx context.Context, filter domain.DeadLetterFilter, now time.Time) ([]domain.FailedCommand, int64, error) {
	args := filterArgs(filter, now)

	var total int64
	if err := r.read.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM failed_commands WHERE `+liveFilter, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count dead letters: %w", err)
	}

	out, err := r.list(ctx, r.read, filter, now)
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (r *DeadLetterRepo) list(ctx context.Context, q interface {
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
}, filter domain.DeadLetterFilter, now time.Time) ([]domain.FailedCommand, error) {
	args := append(filterArgs(filter, now), filter.Page.Limit(), filter.Page.Offset())
	rows, err := q.QueryContext(ctx, `
		SELECT `+failedCommandColumns+`
		FROM failed_commands
		WHERE `+liveFilter+`
		ORDER BY first_failure_time, id
		LIMIT ? OFFSET ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("list dead letters: %w", err)
	}
	defer rows.Close()

	var out []domain.FailedCommand
	for rows.Next() {
		c, err := scanFailedCommand(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list dead letters: %w", err)
	}
	return out, nil
}

// Dequeue deletes and returns a page of live entries in one transaction.
func (r *DeadLetterRepo) Dequeue(ctx context.Context, filter domain.DeadLetterFilter, now time.Time) ([]domain.FailedCommand, error) {
	tx, err := r.write.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin dequeue: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	out, err := r.list(ctx, tx, filter, now)
	if err != nil {
		return nil, err
	}
	for _, c := range out {
		if _, err := tx.ExecContext(ctx, `DELETE FROM failed_commands WHERE id = ?`, c.ID); err != nil {
			return nil, fmt.Errorf("dequeue %s: %w", c.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit dequeue: %w", err)
	}
	return out, nil
}

// RecordAttempt bumps the attempt number of a live entry and stores the latest error.
func (r *DeadLetterRepo) RecordAttempt(ctx context.Context, id string, lastError string, at time.Time) (*domain.FailedCommand, error) {
	res, err := r.write.ExecContext(ctx, `
		UPDATE failed_commands
		SET attempt_number = attempt_number + 1, last_error = ?, last_failure_time = ?
		WHERE id = ? AND expires_at > ?`,
		lastError, formatTime(at), id, formatTime(at))
	if err != nil {
		return nil, fmt.Errorf("record attempt %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, domain.ErrNotFound("dead letter %q not found", id)
	}
	return r.get(ctx, r.write, id, at)
}

// Remove deletes an entry by ID.
func (r *DeadLetterRepo) Remove(ctx context.Context, id string) error {
	res, err := r.write.ExecContext(ctx, `DELETE FROM failed_commands WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("remove dead letter %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound("dead letter %q not found", id)
	}
	return nil
}

// PurgeExpired deletes entries whose expiry is at or before now.
func (r *DeadLetterRepo) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.write.ExecContext(ctx,
		`DELETE FROM failed_commands WHERE expires_at <= ?`, formatTime(now))
	if err != nil {
		return 0, fmt.Errorf("purge expired dead letters: %w", err)
	}
	return res.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanFailedCommand(s rowScanner) (*domain.FailedCommand, error) {
	var (
		c                   domain.FailedCommand
		first, last, expiry string
	)
	if err := s.Scan(&c.ID, &c.TenantID, &c.CommandType, &c.CommandData, &c.AttemptNumber,
		&c.LastError, &first, &last, &expiry); err != nil {
		return nil, err
	}
	var err error
	if c.FirstFailureTime, err = parseTime(first); err != nil {
		return nil, err
	}
	if c.LastFailureTime, err = parseTime(last); err != nil {
		return nil, err
	}
	if c.ExpiresAt, err = parseTime(expiry); err != nil {
		return nil, err
	}
	return &c, nil
}
