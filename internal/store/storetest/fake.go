// Package storetest provides an in-memory Store for tests.
package storetest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/airqa/inspect-cli/internal/model"
	"github.com/airqa/inspect-cli/internal/store"
)

// Fake is a thread-safe in-memory store.Store.
type Fake struct {
	mu      sync.Mutex
	configs map[string]*model.ServiceConfig // by name
	points  map[string]*model.PointStat
	Logs    []model.UsageLogEntry

	// Error hooks for fault injection.
	SaveErr    error
	DefaultErr error
}

func New() *Fake {
	return &Fake{
		configs: make(map[string]*model.ServiceConfig),
		points:  make(map[string]*model.PointStat),
	}
}

// Seed inserts configs directly, assigning IDs when missing.
func (f *Fake) Seed(cfgs ...model.ServiceConfig) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range cfgs {
		c := cfgs[i]
		if c.ID == "" {
			c.ID = uuid.New().String()
		}
		if c.Default {
			// Same single-default invariant SaveConfig and the real
			// stores' unique index enforce.
			for _, existing := range f.configs {
				existing.Default = false
			}
		}
		f.configs[c.Name] = &c
	}
}

func (f *Fake) ListActiveConfigs(ctx context.Context) ([]model.ServiceConfig, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.ServiceConfig
	for _, c := range f.configs {
		if c.Active {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Priority < out[j].Priority })
	return out, nil
}

func (f *Fake) GetDefaultConfig(ctx context.Context) (*model.ServiceConfig, error) {
	if f.DefaultErr != nil {
		return nil, f.DefaultErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.configs {
		if c.Active && c.Default {
			cp := *c
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *Fake) GetConfigByName(ctx context.Context, name string) (*model.ServiceConfig, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.configs[name]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (f *Fake) SaveConfig(ctx context.Context, cfg *model.ServiceConfig) error {
	if f.SaveErr != nil {
		return f.SaveErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if existing, ok := f.configs[cfg.Name]; ok {
		cfg.ID = existing.ID
	} else if cfg.ID == "" {
		cfg.ID = uuid.New().String()
		cfg.CreatedAt = time.Now().UTC()
	}
	if cfg.Default {
		for _, c := range f.configs {
			if c.ID != cfg.ID {
				c.Default = false
			}
		}
	}
	cp := *cfg
	f.configs[cfg.Name] = &cp
	return nil
}

func (f *Fake) DeleteConfig(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.configs[name]; !ok {
		return store.ErrNotFound
	}
	delete(f.configs, name)
	return nil
}

func (f *Fake) RecordSuccess(ctx context.Context, configID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.configs {
		if c.ID == configID {
			c.SuccessCount++
			now := time.Now().UTC()
			c.LastUsedAt = &now
		}
	}
	return nil
}

func (f *Fake) RecordFailure(ctx context.Context, configID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.configs {
		if c.ID == configID {
			c.FailureCount++
		}
	}
	return nil
}

func (f *Fake) RecordTestResult(ctx context.Context, configID string, result string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.configs {
		if c.ID == configID {
			now := time.Now().UTC()
			c.LastTestAt = &now
			c.LastTestResult = result
		}
	}
	return nil
}

func (f *Fake) AppendUsageLog(ctx context.Context, entry model.UsageLogEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	f.Logs = append(f.Logs, entry)
	return nil
}

// LogsOfKind returns recorded usage entries of one kind.
func (f *Fake) LogsOfKind(kind model.CallKind) []model.UsageLogEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.UsageLogEntry
	for _, e := range f.Logs {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

func (f *Fake) RecordPointObservation(ctx context.Context, name string, value float64, checkType model.CheckType) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	stat, ok := f.points[name]
	if !ok {
		stat = &model.PointStat{Name: name}
		f.points[name] = stat
	}
	stat.UsageCount++
	stat.TotalValue += value
	stat.AvgValue = stat.TotalValue / float64(stat.UsageCount)
	if checkType == model.CheckRecheck {
		stat.RecheckCount++
	} else {
		stat.InitialCount++
	}
	stat.LastUsedAt = time.Now().UTC()
	return !ok, nil
}

func (f *Fake) GetPointStat(ctx context.Context, name string) (*model.PointStat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	stat, ok := f.points[name]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *stat
	return &cp, nil
}

func (f *Fake) ListPointStats(ctx context.Context, limit int) ([]model.PointStat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.PointStat
	for _, s := range f.points {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UsageCount != out[j].UsageCount {
			return out[i].UsageCount > out[j].UsageCount
		}
		return out[i].LastUsedAt.After(out[j].LastUsedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *Fake) Migrate(ctx context.Context) error { return nil }
func (f *Fake) Close() error                      { return nil }
