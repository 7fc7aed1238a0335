package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/airqa/inspect-cli/internal/model"
)

// PgxIface is the subset of pgxpool.Pool the store uses. pgxmock satisfies
// it, which keeps the Postgres store testable without a live database.
type PgxIface interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// PostgresStore implements Store on a pgx connection pool.
type PostgresStore struct {
	pool PgxIface
}

// NewPostgres connects a pool to the given DSN and verifies connectivity.
func NewPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse dsn")
	}
	cfg.MaxConns = 8
	cfg.MaxConnLifetime = time.Hour

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: connect")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresFromPool wraps an existing pool. Used by tests with pgxmock.
func NewPostgresFromPool(pool PgxIface) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS service_configs (
	id               UUID PRIMARY KEY,
	name             TEXT NOT NULL UNIQUE,
	provider         TEXT NOT NULL,
	api_format       TEXT NOT NULL,
	api_base_url     TEXT NOT NULL,
	api_key          TEXT NOT NULL,
	model_name       TEXT NOT NULL,
	timeout_secs     BIGINT NOT NULL DEFAULT 30,
	max_retries      INT NOT NULL DEFAULT 3,
	priority         INT NOT NULL DEFAULT 100,
	is_active        BOOLEAN NOT NULL DEFAULT TRUE,
	is_default       BOOLEAN NOT NULL DEFAULT FALSE,
	success_count    BIGINT NOT NULL DEFAULT 0,
	failure_count    BIGINT NOT NULL DEFAULT 0,
	last_used_at     TIMESTAMPTZ,
	last_test_at     TIMESTAMPTZ,
	last_test_result TEXT NOT NULL DEFAULT '',
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_configs_one_default
	ON service_configs(is_default) WHERE is_default;
CREATE INDEX IF NOT EXISTS idx_configs_priority ON service_configs(priority);

CREATE TABLE IF NOT EXISTS usage_logs (
	id          UUID PRIMARY KEY,
	config_id   TEXT,
	config_name TEXT NOT NULL,
	kind        TEXT NOT NULL,
	success     BOOLEAN NOT NULL,
	latency_ms  BIGINT NOT NULL DEFAULT 0,
	error       TEXT NOT NULL DEFAULT '',
	detail      TEXT NOT NULL DEFAULT '',
	"user"      TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_usage_logs_config ON usage_logs(config_name, created_at);

CREATE TABLE IF NOT EXISTS point_stats (
	name          TEXT PRIMARY KEY,
	usage_count   BIGINT NOT NULL DEFAULT 0,
	total_value   DOUBLE PRECISION NOT NULL DEFAULT 0,
	avg_value     DOUBLE PRECISION NOT NULL DEFAULT 0,
	initial_count BIGINT NOT NULL DEFAULT 0,
	recheck_count BIGINT NOT NULL DEFAULT 0,
	last_used_at  TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_point_stats_usage ON point_stats(usage_count DESC, last_used_at DESC);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

const postgresConfigCols = `id, name, provider, api_format, api_base_url, api_key, model_name,
	timeout_secs, max_retries, priority, is_active, is_default,
	success_count, failure_count, last_used_at, last_test_at, last_test_result, created_at`

func scanPostgresConfig(row pgx.Row) (*model.ServiceConfig, error) {
	var (
		cfg         model.ServiceConfig
		timeoutSecs int64
	)
	err := row.Scan(
		&cfg.ID, &cfg.Name, &cfg.Provider, &cfg.Format, &cfg.BaseURL, &cfg.APIKey, &cfg.Model,
		&timeoutSecs, &cfg.MaxRetries, &cfg.Priority, &cfg.Active, &cfg.Default,
		&cfg.SuccessCount, &cfg.FailureCount, &cfg.LastUsedAt, &cfg.LastTestAt, &cfg.LastTestResult, &cfg.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	cfg.Timeout = time.Duration(timeoutSecs) * time.Second
	return &cfg, nil
}

func (s *PostgresStore) ListActiveConfigs(ctx context.Context) ([]model.ServiceConfig, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+postgresConfigCols+` FROM service_configs WHERE is_active ORDER BY priority ASC, created_at DESC`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list active configs")
	}
	defer rows.Close()

	var configs []model.ServiceConfig
	for rows.Next() {
		cfg, err := scanPostgresConfig(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan config")
		}
		configs = append(configs, *cfg)
	}
	return configs, eris.Wrap(rows.Err(), "postgres: iterate configs")
}

func (s *PostgresStore) GetDefaultConfig(ctx context.Context) (*model.ServiceConfig, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+postgresConfigCols+` FROM service_configs WHERE is_active AND is_default ORDER BY priority ASC LIMIT 1`)
	cfg, err := scanPostgresConfig(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get default config")
	}
	return cfg, nil
}

func (s *PostgresStore) GetConfigByName(ctx context.Context, name string) (*model.ServiceConfig, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+postgresConfigCols+` FROM service_configs WHERE name = $1`, name)
	cfg, err := scanPostgresConfig(row)
	if err == pgx.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get config %s", name)
	}
	return cfg, nil
}

func (s *PostgresStore) SaveConfig(ctx context.Context, cfg *model.ServiceConfig) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin save config")
	}
	defer tx.Rollback(ctx)

	var existingID string
	err = tx.QueryRow(ctx, `SELECT id FROM service_configs WHERE name = $1`, cfg.Name).Scan(&existingID)
	switch {
	case err == pgx.ErrNoRows:
		cfg.ID = uuid.New().String()
		cfg.CreatedAt = time.Now().UTC()
	case err != nil:
		return eris.Wrap(err, "postgres: lookup config")
	default:
		cfg.ID = existingID
	}

	if cfg.Default {
		if _, err := tx.Exec(ctx,
			`UPDATE service_configs SET is_default = FALSE WHERE is_default AND id != $1`, cfg.ID); err != nil {
			return eris.Wrap(err, "postgres: clear previous default")
		}
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO service_configs (id, name, provider, api_format, api_base_url, api_key, model_name,
			timeout_secs, max_retries, priority, is_active, is_default, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			provider = EXCLUDED.provider,
			api_format = EXCLUDED.api_format,
			api_base_url = EXCLUDED.api_base_url,
			api_key = EXCLUDED.api_key,
			model_name = EXCLUDED.model_name,
			timeout_secs = EXCLUDED.timeout_secs,
			max_retries = EXCLUDED.max_retries,
			priority = EXCLUDED.priority,
			is_active = EXCLUDED.is_active,
			is_default = EXCLUDED.is_default`,
		cfg.ID, cfg.Name, cfg.Provider, string(cfg.Format), cfg.BaseURL, cfg.APIKey, cfg.Model,
		int64(cfg.Timeout/time.Second), cfg.MaxRetries, cfg.Priority, cfg.Active, cfg.Default, cfg.CreatedAt)
	if err != nil {
		return eris.Wrapf(err, "postgres: save config %s", cfg.Name)
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit save config")
}

func (s *PostgresStore) DeleteConfig(ctx context.Context, name string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM service_configs WHERE name = $1`, name)
	if err != nil {
		return eris.Wrapf(err, "postgres: delete config %s", name)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) RecordSuccess(ctx context.Context, configID string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE service_configs SET success_count = success_count + 1, last_used_at = now() WHERE id = $1`, configID)
	return eris.Wrapf(err, "postgres: record success %s", configID)
}

func (s *PostgresStore) RecordFailure(ctx context.Context, configID string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE service_configs SET failure_count = failure_count + 1 WHERE id = $1`, configID)
	return eris.Wrapf(err, "postgres: record failure %s", configID)
}

func (s *PostgresStore) RecordTestResult(ctx context.Context, configID string, result string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE service_configs SET last_test_at = now(), last_test_result = $1 WHERE id = $2`, result, configID)
	return eris.Wrapf(err, "postgres: record test result %s", configID)
}

func (s *PostgresStore) AppendUsageLog(ctx context.Context, entry model.UsageLogEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO usage_logs (id, config_id, config_name, kind, success, latency_ms, error, detail, "user", created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		entry.ID, entry.ConfigID, entry.ConfigName, string(entry.Kind), entry.Success,
		entry.LatencyMS, entry.Error, entry.Detail, entry.User, entry.CreatedAt)
	return eris.Wrap(err, "postgres: append usage log")
}

func (s *PostgresStore) RecordPointObservation(ctx context.Context, name string, value float64, checkType model.CheckType) (bool, error) {
	initialInc, recheckInc := 0, 0
	if checkType == model.CheckRecheck {
		recheckInc = 1
	} else {
		initialInc = 1
	}

	var usageCount int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO point_stats (name, usage_count, total_value, avg_value, initial_count, recheck_count, last_used_at)
		VALUES ($1, 1, $2, $2, $3, $4, now())
		ON CONFLICT (name) DO UPDATE SET
			usage_count = point_stats.usage_count + 1,
			total_value = point_stats.total_value + EXCLUDED.total_value,
			avg_value = (point_stats.total_value + EXCLUDED.total_value) / (point_stats.usage_count + 1),
			initial_count = point_stats.initial_count + EXCLUDED.initial_count,
			recheck_count = point_stats.recheck_count + EXCLUDED.recheck_count,
			last_used_at = now()
		RETURNING usage_count`,
		name, value, initialInc, recheckInc).Scan(&usageCount)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: record point %s", name)
	}
	return usageCount == 1, nil
}

func (s *PostgresStore) GetPointStat(ctx context.Context, name string) (*model.PointStat, error) {
	var stat model.PointStat
	err := s.pool.QueryRow(ctx, `
		SELECT name, usage_count, total_value, avg_value, initial_count, recheck_count, last_used_at
		FROM point_stats WHERE name = $1`, name).Scan(
		&stat.Name, &stat.UsageCount, &stat.TotalValue, &stat.AvgValue,
		&stat.InitialCount, &stat.RecheckCount, &stat.LastUsedAt)
	if err == pgx.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get point stat %s", name)
	}
	return &stat, nil
}

func (s *PostgresStore) ListPointStats(ctx context.Context, limit int) ([]model.PointStat, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT name, usage_count, total_value, avg_value, initial_count, recheck_count, last_used_at
		FROM point_stats ORDER BY usage_count DESC, last_used_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list point stats")
	}
	defer rows.Close()

	var stats []model.PointStat
	for rows.Next() {
		var stat model.PointStat
		if err := rows.Scan(&stat.Name, &stat.UsageCount, &stat.TotalValue, &stat.AvgValue,
			&stat.InitialCount, &stat.RecheckCount, &stat.LastUsedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan point stat")
		}
		stats = append(stats, stat)
	}
	return stats, eris.Wrap(rows.Err(), "postgres: iterate point stats")
}
