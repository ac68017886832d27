package sqlite

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/tabletop/internal/apperror"
	"github.com/sakif/tabletop/internal/model"
)

func newMockDB(t *testing.T) (*DB, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return newDB(conn), mock
}

func TestWithTx_CommitsOnSuccess(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE games SET rating_count = rating_count WHERE id = \?`).
		WithArgs(int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := db.withTx(context.Background(), func(tx dbtx) error {
		return lockGame(context.Background(), tx, 7)
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTx_RollsBackOnError(t *testing.T) {
	db, mock := newMockDB(t)
	boom := errors.New("boom")

	mock.ExpectBegin()
	mock.ExpectRollback()

	err := db.withTx(context.Background(), func(tx dbtx) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTx_RollsBackOnPanic(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectBegin()
	mock.ExpectRollback()

	assert.Panics(t, func() {
		_ = db.withTx(context.Background(), func(tx dbtx) error { panic("bad") })
	})
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTx_CommitFailureIsReturned(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectBegin()
	mock.ExpectCommit().WillReturnError(errors.New("disk full"))

	err := db.withTx(context.Background(), func(tx dbtx) error { return nil })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "committing transaction")
}

func TestSubmitRating_StorageFailureRollsBack(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE games SET rating_count = rating_count`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT 1 FROM users WHERE id = \?`).
		WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))
	mock.ExpectQuery(`SELECT rating FROM user_game_ratings`).
		WillReturnRows(sqlmock.NewRows([]string{"rating"}))
	mock.ExpectExec(`INSERT INTO user_game_ratings`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE games\s+SET total_rating_score = total_rating_score \+ \?`).
		WithArgs(int64(6), int64(1), int64(3)).
		WillReturnError(errors.New("database is locked"))
	mock.ExpectRollback()

	_, err := db.SubmitRating(context.Background(), 1, 3, 6)
	require.Error(t, err)
	assert.False(t, apperror.IsApp(err), "driver failures stay uncategorised until the service layer")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRemoveRating_AppliesNegativeDelta(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE games SET rating_count = rating_count`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT rating FROM user_game_ratings`).
		WillReturnRows(sqlmock.NewRows([]string{"rating"}).AddRow(4))
	mock.ExpectExec(`DELETE FROM user_game_ratings`).
		WithArgs(int64(1), int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE games\s+SET total_rating_score`).
		WithArgs(int64(-4), int64(-1), int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT total_rating_score, rating_count FROM games`).
		WillReturnRows(sqlmock.NewRows([]string{"total_rating_score", "rating_count"}).AddRow(16, 2))
	mock.ExpectCommit()

	agg, err := db.RemoveRating(context.Background(), 1, 3)
	require.NoError(t, err)
	assert.Equal(t, model.NewAggregate(3, 16, 2), agg)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAddToCollection_CanceledContext(t *testing.T) {
	db, mock := newMockDB(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := db.AddToCollection(ctx, 1, model.CollectionOwned, 2)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NoError(t, mock.ExpectationsWereMet())
}
