// Package store persists provider configurations, usage audit logs, and
// point-learning statistics.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/airqa/inspect-cli/internal/model"
)

// ErrNotFound is returned when a named config does not exist.
var ErrNotFound = eris.New("store: not found")

// Store defines the persistence interface consumed by the orchestration core.
type Store interface {
	// Service configs
	ListActiveConfigs(ctx context.Context) ([]model.ServiceConfig, error) // priority ascending
	GetDefaultConfig(ctx context.Context) (*model.ServiceConfig, error)  // nil when none
	GetConfigByName(ctx context.Context, name string) (*model.ServiceConfig, error)
	// SaveConfig inserts or updates a config. Setting Default atomically
	// clears the flag on every other row.
	SaveConfig(ctx context.Context, cfg *model.ServiceConfig) error
	DeleteConfig(ctx context.Context, name string) error
	RecordSuccess(ctx context.Context, configID string) error
	RecordFailure(ctx context.Context, configID string) error
	RecordTestResult(ctx context.Context, configID string, result string) error

	// Usage audit
	AppendUsageLog(ctx context.Context, entry model.UsageLogEntry) error

	// Point learning. RecordPointObservation applies one atomic
	// increment-and-average update for a point name, creating the row on
	// first sighting. Concurrent callers for the same name must not lose
	// increments.
	RecordPointObservation(ctx context.Context, name string, value float64, checkType model.CheckType) (created bool, err error)
	GetPointStat(ctx context.Context, name string) (*model.PointStat, error)
	// ListPointStats returns stats ordered by usage count descending, ties
	// broken by most recent use.
	ListPointStats(ctx context.Context, limit int) ([]model.PointStat, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
