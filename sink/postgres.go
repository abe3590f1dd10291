package sink

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/chrisconley/accountant/internal"
	"github.com/chrisconley/accountant/specs"
	"github.com/google/uuid"
	_ "github.com/lib/pq"
)

const createUsageTable = `
CREATE TABLE IF NOT EXISTS shared_resource_usage (
	shared_resource_id TEXT NOT NULL,
	app_feature        TEXT NOT NULL,
	usage_unit         TEXT NOT NULL,
	bucket_start       TIMESTAMPTZ NOT NULL,
	amount             BIGINT NOT NULL,
	updated_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (shared_resource_id, app_feature, usage_unit, bucket_start)
)`

// createSubmissionTable records which (flush, key) pairs have been applied.
// Rows are only needed while a flush can still be retried; operators may
// delete rows with an old bucket_start.
const createSubmissionTable = `
CREATE TABLE IF NOT EXISTS shared_resource_usage_submissions (
	flush_id           UUID NOT NULL,
	shared_resource_id TEXT NOT NULL,
	app_feature        TEXT NOT NULL,
	usage_unit         TEXT NOT NULL,
	bucket_start       TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (flush_id, shared_resource_id, app_feature, usage_unit, bucket_start)
)`

// Amounts are added on conflict so buckets re-emitted by later flushes
// accumulate the way the broker consumers would. The claimed CTE makes a
// resubmission within one flush a no-op.
const upsertUsage = `
WITH claimed AS (
	INSERT INTO shared_resource_usage_submissions (flush_id, shared_resource_id, app_feature, usage_unit, bucket_start)
	VALUES ($6, $1, $2, $3, $4)
	ON CONFLICT DO NOTHING
	RETURNING 1
)
INSERT INTO shared_resource_usage (shared_resource_id, app_feature, usage_unit, bucket_start, amount)
SELECT $1::text, $2::text, $3::text, $4::timestamptz, $5::bigint FROM claimed
ON CONFLICT (shared_resource_id, app_feature, usage_unit, bucket_start)
DO UPDATE SET amount = shared_resource_usage.amount + EXCLUDED.amount,
	updated_at = NOW()`

// Postgres writes each usage record straight into a table. Delivery is
// synchronous, so Flush has nothing to wait for.
type Postgres struct {
	db *sql.DB
}

// NewPostgres takes ownership of db: Close closes it.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// OpenPostgres connects with the lib/pq driver and verifies the connection.
func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: open postgres: %w", specs.ErrSinkUnavailable, err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: ping postgres: %w", specs.ErrSinkUnavailable, err)
	}
	return NewPostgres(db), nil
}

func (p *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, createUsageTable); err != nil {
		return fmt.Errorf("%w: create usage table: %w", specs.ErrSinkUnavailable, err)
	}
	if _, err := p.db.ExecContext(ctx, createSubmissionTable); err != nil {
		return fmt.Errorf("%w: create submission table: %w", specs.ErrSinkUnavailable, err)
	}
	return nil
}

// Submit adds the payload's amount to its row. Submitting the same payload
// twice under one flush id, as a retry after an ambiguous failure does,
// applies it once. Without a flush id in ctx every call is applied.
func (p *Postgres) Submit(ctx context.Context, payload []byte) error {
	message, err := internal.ParseMessage(payload)
	if err != nil {
		return fmt.Errorf("%w: %w", specs.ErrSinkRejected, err)
	}
	flushID, ok := specs.FlushIDFromContext(ctx)
	if !ok {
		flushID = uuid.New()
	}

	_, err = p.db.ExecContext(ctx, upsertUsage,
		message.SharedResourceID,
		message.AppFeature,
		message.UsageUnit,
		time.Unix(message.Timestamp, 0).UTC(),
		message.Amount,
		flushID.String(),
	)
	if err != nil {
		return fmt.Errorf("%w: upsert usage for %s: %w", specs.ErrSinkUnavailable, message.SharedResourceID, err)
	}
	return nil
}

func (p *Postgres) Flush(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", specs.ErrSinkUnavailable, err)
	}
	return nil
}

func (p *Postgres) Close() error {
	return p.db.Close()
}
