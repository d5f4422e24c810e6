package database

import (
	"context"
	"errors"
	"testing"

	apperrors "trainer-match-workers/internal/common/errors"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresClient_PingFailureIsConnectionError(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()

	cause := errors.New("connection refused")
	mock.ExpectPing().WillReturnError(cause)

	err = (&PostgresClient{DB: db}).Ping(context.Background())
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeDatabaseConnectionFailed))
	assert.ErrorIs(t, err, cause)
}

func TestPostgresClient_Ping(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectPing()

	assert.NoError(t, (&PostgresClient{DB: db}).Ping(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
