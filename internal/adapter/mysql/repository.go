package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"casetimer/internal/domain"
	"casetimer/internal/ports"
)

// Client implements ports.Repository on top of MySQL.
type Client struct {
	db  *sql.DB
	log *slog.Logger
}

// Pool sizes the connection pool. Zero fields take conservative defaults.
type Pool struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

func (p Pool) withDefaults() Pool {
	if p.MaxOpenConns <= 0 {
		p.MaxOpenConns = 10
	}
	if p.MaxIdleConns <= 0 {
		p.MaxIdleConns = 5
	}
	if p.MaxIdleConns > p.MaxOpenConns {
		p.MaxIdleConns = p.MaxOpenConns
	}
	if p.ConnMaxLifetime <= 0 {
		p.ConnMaxLifetime = 30 * time.Minute
	}
	return p
}

// NewClient opens a MySQL connection using the provided DSN.
// Example DSN: user:pass@tcp(host:3306)/dbname?parseTime=true&multiStatements=true
func NewClient(ctx context.Context, dsn string, pool Pool, log *slog.Logger) (*Client, error) {
	if dsn == "" {
		return nil, errors.New("mysql: DSN is required")
	}
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}
	pool = pool.withDefaults()
	db.SetMaxOpenConns(pool.MaxOpenConns)
	db.SetMaxIdleConns(pool.MaxIdleConns)
	db.SetConnMaxLifetime(pool.ConnMaxLifetime)

	c, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(c); err != nil {
		db.Close()
		return nil, err
	}
	return &Client{db: db, log: log}, nil
}

// GetTimeTracking reads the case row and all of its stage rows.
func (c *Client) GetTimeTracking(ctx context.Context, caseID string) (domain.TimeTrackingRecord, error) {
	rec := domain.TimeTrackingRecord{CaseID: caseID, StageTimes: make(map[domain.Stage]domain.StageTimeRecord)}

	var totalMs int64
	err := c.db.QueryRowContext(ctx,
		"SELECT total_ms, last_updated FROM time_tracking WHERE case_id = ?", caseID,
	).Scan(&totalMs, &rec.LastUpdated)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.TimeTrackingRecord{}, ports.ErrNotFound
	}
	if err != nil {
		return domain.TimeTrackingRecord{}, err
	}
	rec.TotalTime = time.Duration(totalMs) * time.Millisecond
	rec.LastUpdated = rec.LastUpdated.UTC()

	rows, err := c.db.QueryContext(ctx, `
SELECT stage, start_time, end_time, total_ms, actor_id, actor_name
FROM stage_times
WHERE case_id = ?`, caseID)
	if err != nil {
		return domain.TimeTrackingRecord{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			stage      string
			start, end sql.NullTime
			ms         int64
			actorID    sql.NullString
			actorName  sql.NullString
		)
		if err := rows.Scan(&stage, &start, &end, &ms, &actorID, &actorName); err != nil {
			return domain.TimeTrackingRecord{}, err
		}
		s, err := domain.ParseStage(stage)
		if err != nil {
			c.log.Warn("skipping stage row", slog.String("case", caseID), slog.String("error", err.Error()))
			continue
		}
		rec.StageTimes[s] = domain.StageTimeRecord{
			StartTime: nullTime(start),
			EndTime:   nullTime(end),
			TotalTime: time.Duration(ms) * time.Millisecond,
			ActorID:   actorID.String,
			ActorName: actorName.String,
		}
	}
	return rec, rows.Err()
}

// UpsertStage writes one stage row and refreshes the case total in a single transaction.
func (c *Client) UpsertStage(ctx context.Context, caseID string, stage domain.Stage, st domain.StageTimeRecord, at time.Time) error {
	tx, err := c.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}
	// The parent row must exist before the stage row references it.
	const upsertCase = `
INSERT INTO time_tracking (case_id, total_ms, last_updated)
VALUES (?, 0, ?)
ON DUPLICATE KEY UPDATE last_updated=VALUES(last_updated);
`
	if _, err := tx.ExecContext(ctx, upsertCase, caseID, at.UTC()); err != nil {
		tx.Rollback()
		return err
	}

	const upsertStage = `
INSERT INTO stage_times
  (case_id, stage, start_time, end_time, total_ms, actor_id, actor_name)
VALUES
  (?, ?, ?, ?, ?, ?, ?)
ON DUPLICATE KEY UPDATE
  start_time=VALUES(start_time),
  end_time=VALUES(end_time),
  total_ms=VALUES(total_ms),
  actor_id=VALUES(actor_id),
  actor_name=VALUES(actor_name);
`
	if _, err := tx.ExecContext(ctx, upsertStage,
		caseID,
		stage.String(),
		timeArg(st.StartTime),
		timeArg(st.EndTime),
		st.TotalTime.Milliseconds(),
		stringArg(st.ActorID),
		stringArg(st.ActorName),
	); err != nil {
		tx.Rollback()
		return fmt.Errorf("mysql: upsert stage %s: %w", stage, err)
	}

	const refreshTotal = `
UPDATE time_tracking
SET total_ms = (SELECT COALESCE(SUM(total_ms), 0) FROM stage_times WHERE case_id = ?)
WHERE case_id = ?;
`
	if _, err := tx.ExecContext(ctx, refreshTotal, caseID, caseID); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	c.log.Debug("mysql stage upserted", slog.String("case", caseID), slog.String("stage", stage.String()))
	return nil
}

// Close closes the underlying DB. Not wired via interface to keep ports minimal.
func (c *Client) Close() error { return c.db.Close() }

func nullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}

func timeArg(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func stringArg(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
