package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/airqa/inspect-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS service_configs (
	id               TEXT PRIMARY KEY,
	name             TEXT NOT NULL UNIQUE,
	provider         TEXT NOT NULL,
	api_format       TEXT NOT NULL,
	api_base_url     TEXT NOT NULL,
	api_key          TEXT NOT NULL,
	model_name       TEXT NOT NULL,
	timeout_secs     INTEGER NOT NULL DEFAULT 30,
	max_retries      INTEGER NOT NULL DEFAULT 3,
	priority         INTEGER NOT NULL DEFAULT 100,
	is_active        INTEGER NOT NULL DEFAULT 1,
	is_default       INTEGER NOT NULL DEFAULT 0,
	success_count    INTEGER NOT NULL DEFAULT 0,
	failure_count    INTEGER NOT NULL DEFAULT 0,
	last_used_at     DATETIME,
	last_test_at     DATETIME,
	last_test_result TEXT NOT NULL DEFAULT '',
	created_at       DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_configs_one_default
	ON service_configs(is_default) WHERE is_default = 1;
CREATE INDEX IF NOT EXISTS idx_configs_priority ON service_configs(priority);

CREATE TABLE IF NOT EXISTS usage_logs (
	id          TEXT PRIMARY KEY,
	config_id   TEXT,
	config_name TEXT NOT NULL,
	kind        TEXT NOT NULL,
	success     INTEGER NOT NULL,
	latency_ms  INTEGER NOT NULL DEFAULT 0,
	error       TEXT NOT NULL DEFAULT '',
	detail      TEXT NOT NULL DEFAULT '',
	user        TEXT NOT NULL DEFAULT '',
	created_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_usage_logs_config ON usage_logs(config_name, created_at);

CREATE TABLE IF NOT EXISTS point_stats (
	name          TEXT PRIMARY KEY,
	usage_count   INTEGER NOT NULL DEFAULT 0,
	total_value   REAL NOT NULL DEFAULT 0,
	avg_value     REAL NOT NULL DEFAULT 0,
	initial_count INTEGER NOT NULL DEFAULT 0,
	recheck_count INTEGER NOT NULL DEFAULT 0,
	last_used_at  DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_point_stats_usage ON point_stats(usage_count DESC, last_used_at DESC);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const sqliteConfigCols = `id, name, provider, api_format, api_base_url, api_key, model_name,
	timeout_secs, max_retries, priority, is_active, is_default,
	success_count, failure_count, last_used_at, last_test_at, last_test_result, created_at`

func scanSQLiteConfig(row interface{ Scan(...any) error }) (*model.ServiceConfig, error) {
	var (
		cfg         model.ServiceConfig
		timeoutSecs int64
		lastUsed    sql.NullTime
		lastTest    sql.NullTime
	)
	err := row.Scan(
		&cfg.ID, &cfg.Name, &cfg.Provider, &cfg.Format, &cfg.BaseURL, &cfg.APIKey, &cfg.Model,
		&timeoutSecs, &cfg.MaxRetries, &cfg.Priority, &cfg.Active, &cfg.Default,
		&cfg.SuccessCount, &cfg.FailureCount, &lastUsed, &lastTest, &cfg.LastTestResult, &cfg.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	cfg.Timeout = time.Duration(timeoutSecs) * time.Second
	if lastUsed.Valid {
		t := lastUsed.Time
		cfg.LastUsedAt = &t
	}
	if lastTest.Valid {
		t := lastTest.Time
		cfg.LastTestAt = &t
	}
	return &cfg, nil
}

func (s *SQLiteStore) ListActiveConfigs(ctx context.Context) ([]model.ServiceConfig, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqliteConfigCols+` FROM service_configs WHERE is_active = 1 ORDER BY priority ASC, created_at DESC`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list active configs")
	}
	defer rows.Close()

	var configs []model.ServiceConfig
	for rows.Next() {
		cfg, err := scanSQLiteConfig(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan config")
		}
		configs = append(configs, *cfg)
	}
	return configs, eris.Wrap(rows.Err(), "sqlite: iterate configs")
}

func (s *SQLiteStore) GetDefaultConfig(ctx context.Context) (*model.ServiceConfig, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqliteConfigCols+` FROM service_configs WHERE is_active = 1 AND is_default = 1 ORDER BY priority ASC LIMIT 1`)
	cfg, err := scanSQLiteConfig(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get default config")
	}
	return cfg, nil
}

func (s *SQLiteStore) GetConfigByName(ctx context.Context, name string) (*model.ServiceConfig, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqliteConfigCols+` FROM service_configs WHERE name = ?`, name)
	cfg, err := scanSQLiteConfig(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get config %s", name)
	}
	return cfg, nil
}

func (s *SQLiteStore) SaveConfig(ctx context.Context, cfg *model.ServiceConfig) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin save config")
	}
	defer tx.Rollback()

	var existingID string
	err = tx.QueryRowContext(ctx, `SELECT id FROM service_configs WHERE name = ?`, cfg.Name).Scan(&existingID)
	switch {
	case err == sql.ErrNoRows:
		cfg.ID = uuid.New().String()
		cfg.CreatedAt = time.Now().UTC()
	case err != nil:
		return eris.Wrap(err, "sqlite: lookup config")
	default:
		cfg.ID = existingID
	}

	if cfg.Default {
		// Exactly one default at a time; the partial unique index enforces it,
		// this keeps the swap atomic.
		if _, err := tx.ExecContext(ctx,
			`UPDATE service_configs SET is_default = 0 WHERE is_default = 1 AND id != ?`, cfg.ID); err != nil {
			return eris.Wrap(err, "sqlite: clear previous default")
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO service_configs (id, name, provider, api_format, api_base_url, api_key, model_name,
			timeout_secs, max_retries, priority, is_active, is_default, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			provider = excluded.provider,
			api_format = excluded.api_format,
			api_base_url = excluded.api_base_url,
			api_key = excluded.api_key,
			model_name = excluded.model_name,
			timeout_secs = excluded.timeout_secs,
			max_retries = excluded.max_retries,
			priority = excluded.priority,
			is_active = excluded.is_active,
			is_default = excluded.is_default`,
		cfg.ID, cfg.Name, cfg.Provider, string(cfg.Format), cfg.BaseURL, cfg.APIKey, cfg.Model,
		int64(cfg.Timeout/time.Second), cfg.MaxRetries, cfg.Priority, cfg.Active, cfg.Default, cfg.CreatedAt)
	if err != nil {
		return eris.Wrapf(err, "sqlite: save config %s", cfg.Name)
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit save config")
}

func (s *SQLiteStore) DeleteConfig(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM service_configs WHERE name = ?`, name)
	if err != nil {
		return eris.Wrapf(err, "sqlite: delete config %s", name)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: delete rows affected")
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) RecordSuccess(ctx context.Context, configID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE service_configs SET success_count = success_count + 1, last_used_at = ? WHERE id = ?`,
		time.Now().UTC(), configID)
	return eris.Wrapf(err, "sqlite: record success %s", configID)
}

func (s *SQLiteStore) RecordFailure(ctx context.Context, configID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE service_configs SET failure_count = failure_count + 1 WHERE id = ?`, configID)
	return eris.Wrapf(err, "sqlite: record failure %s", configID)
}

func (s *SQLiteStore) RecordTestResult(ctx context.Context, configID string, result string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE service_configs SET last_test_at = ?, last_test_result = ? WHERE id = ?`,
		time.Now().UTC(), result, configID)
	return eris.Wrapf(err, "sqlite: record test result %s", configID)
}

func (s *SQLiteStore) AppendUsageLog(ctx context.Context, entry model.UsageLogEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO usage_logs (id, config_id, config_name, kind, success, latency_ms, error, detail, user, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.ConfigID, entry.ConfigName, string(entry.Kind), entry.Success,
		entry.LatencyMS, entry.Error, entry.Detail, entry.User, entry.CreatedAt)
	return eris.Wrap(err, "sqlite: append usage log")
}

func (s *SQLiteStore) RecordPointObservation(ctx context.Context, name string, value float64, checkType model.CheckType) (bool, error) {
	initialInc, recheckInc := 0, 0
	if checkType == model.CheckRecheck {
		recheckInc = 1
	} else {
		initialInc = 1
	}

	// The single upsert statement keeps increment-and-average atomic under
	// concurrent writers; unqualified columns on the right-hand side refer to
	// the pre-update row.
	var usageCount int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO point_stats (name, usage_count, total_value, avg_value, initial_count, recheck_count, last_used_at)
		VALUES (?, 1, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			usage_count = usage_count + 1,
			total_value = total_value + excluded.total_value,
			avg_value = (total_value + excluded.total_value) / (usage_count + 1),
			initial_count = initial_count + excluded.initial_count,
			recheck_count = recheck_count + excluded.recheck_count,
			last_used_at = excluded.last_used_at
		RETURNING usage_count`,
		name, value, value, initialInc, recheckInc, time.Now().UTC()).Scan(&usageCount)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: record point %s", name)
	}
	return usageCount == 1, nil
}

func (s *SQLiteStore) GetPointStat(ctx context.Context, name string) (*model.PointStat, error) {
	var stat model.PointStat
	err := s.db.QueryRowContext(ctx, `
		SELECT name, usage_count, total_value, avg_value, initial_count, recheck_count, last_used_at
		FROM point_stats WHERE name = ?`, name).Scan(
		&stat.Name, &stat.UsageCount, &stat.TotalValue, &stat.AvgValue,
		&stat.InitialCount, &stat.RecheckCount, &stat.LastUsedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get point stat %s", name)
	}
	return &stat, nil
}

func (s *SQLiteStore) ListPointStats(ctx context.Context, limit int) ([]model.PointStat, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, usage_count, total_value, avg_value, initial_count, recheck_count, last_used_at
		FROM point_stats ORDER BY usage_count DESC, last_used_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list point stats")
	}
	defer rows.Close()

	var stats []model.PointStat
	for rows.Next() {
		var stat model.PointStat
		if err := rows.Scan(&stat.Name, &stat.UsageCount, &stat.TotalValue, &stat.AvgValue,
			&stat.InitialCount, &stat.RecheckCount, &stat.LastUsedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan point stat")
		}
		stats = append(stats, stat)
	}
	return stats, eris.Wrap(rows.Err(), "sqlite: iterate point stats")
}
