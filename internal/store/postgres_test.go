package store

import (
	"context"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/airqa/inspect-cli/internal/model"
)

func TestPostgresRecordPointObservation(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`INSERT INTO point_stats`).
		WithArgs("客厅", 0.05, 1, 0).
		WillReturnRows(pgxmock.NewRows([]string{"usage_count"}).AddRow(int64(1)))

	s := NewPostgresFromPool(mock)
	created, err := s.RecordPointObservation(context.Background(), "客厅", 0.05, model.CheckInitial)
	require.NoError(t, err)
	assert.True(t, created)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRecordPointObservationExisting(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`INSERT INTO point_stats`).
		WithArgs("客厅", 0.07, 0, 1).
		WillReturnRows(pgxmock.NewRows([]string{"usage_count"}).AddRow(int64(4)))

	s := NewPostgresFromPool(mock)
	created, err := s.RecordPointObservation(context.Background(), "客厅", 0.07, model.CheckRecheck)
	require.NoError(t, err)
	assert.False(t, created)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGetDefaultConfigNone(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`SELECT (.+) FROM service_configs WHERE is_active AND is_default`).
		WillReturnRows(pgxmock.NewRows([]string{"id"}))

	s := NewPostgresFromPool(mock)
	cfg, err := s.GetDefaultConfig(context.Background())
	require.NoError(t, err)
	assert.Nil(t, cfg)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresDeleteConfigNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec(`DELETE FROM service_configs`).
		WithArgs("missing").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	s := NewPostgresFromPool(mock)
	err = s.DeleteConfig(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
