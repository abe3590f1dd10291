package sink

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/chrisconley/accountant/specs"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockPostgres(t *testing.T) (*Postgres, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewPostgres(db), mock
}

func TestPostgres(t *testing.T) {
	t.Run("upserts the decoded record under its flush id", func(t *testing.T) {
		p, mock := newMockPostgres(t)
		id := uuid.New()
		mock.ExpectExec(regexp.QuoteMeta(upsertUsage)).
			WithArgs("blob-storage", "search", specs.UnitBytes, bucketStart, int64(1024), id.String()).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := p.Submit(specs.ContextWithFlushID(context.Background(), id), newPayload(t, "blob-storage", 1024))

		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("a resubmission under the same flush id is applied once", func(t *testing.T) {
		p, mock := newMockPostgres(t)
		id := uuid.New()
		ctx := specs.ContextWithFlushID(context.Background(), id)
		payload := newPayload(t, "blob-storage", 1024)
		mock.ExpectExec(regexp.QuoteMeta(upsertUsage)).
			WithArgs("blob-storage", "search", specs.UnitBytes, bucketStart, int64(1024), id.String()).
			WillReturnError(errors.New("i/o timeout"))
		mock.ExpectExec(regexp.QuoteMeta(upsertUsage)).
			WithArgs("blob-storage", "search", specs.UnitBytes, bucketStart, int64(1024), id.String()).
			WillReturnResult(sqlmock.NewResult(0, 0))

		first := p.Submit(ctx, payload)
		second := p.Submit(ctx, payload)

		assert.ErrorIs(t, first, specs.ErrSinkUnavailable)
		assert.NoError(t, second, "an already claimed submission is not an error")
		assert.NoError(t, mock.ExpectationsWereMet())
		assert.Contains(t, upsertUsage, "ON CONFLICT DO NOTHING")
	})

	t.Run("without a flush id every submission gets its own", func(t *testing.T) {
		p, mock := newMockPostgres(t)
		mock.ExpectExec(regexp.QuoteMeta(upsertUsage)).
			WithArgs("blob-storage", "search", specs.UnitBytes, bucketStart, int64(1), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, p.Submit(context.Background(), newPayload(t, "blob-storage", 1)))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rejects payloads that do not decode", func(t *testing.T) {
		p, mock := newMockPostgres(t)

		err := p.Submit(context.Background(), []byte(`{"amount":1}`))

		assert.ErrorIs(t, err, specs.ErrSinkRejected)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("wraps database failures as unavailable", func(t *testing.T) {
		p, mock := newMockPostgres(t)
		mock.ExpectExec(regexp.QuoteMeta(upsertUsage)).WillReturnError(errors.New("connection reset"))

		err := p.Submit(context.Background(), newPayload(t, "blob-storage", 1))

		assert.ErrorIs(t, err, specs.ErrSinkUnavailable)
		assert.ErrorContains(t, err, "connection reset")
	})

	t.Run("creates the usage table", func(t *testing.T) {
		p, mock := newMockPostgres(t)
		mock.ExpectExec(regexp.QuoteMeta(createUsageTable)).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec(regexp.QuoteMeta(createSubmissionTable)).WillReturnResult(sqlmock.NewResult(0, 0))

		require.NoError(t, p.EnsureSchema(context.Background()))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
