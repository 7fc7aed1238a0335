// Package resolve selects the active AI service configuration through a
// tiered lookup: cached selection, registry default, config-file default,
// then the static environment fallback.
package resolve

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/airqa/inspect-cli/internal/config"
	"github.com/airqa/inspect-cli/internal/model"
	"github.com/airqa/inspect-cli/internal/store"
)

// ErrNoConfig is returned when no tier yields a usable configuration.
var ErrNoConfig = eris.New("resolve: no AI service configuration available")

// GlobalKey is the cache key used when no per-user scope is given.
const GlobalKey = "global"

// Resolver resolves and caches the active service configuration per scope key.
type Resolver struct {
	store store.Store
	cfg   *config.Config
	log   *zap.Logger

	mu    sync.Mutex
	cache map[string]model.ServiceConfig
}

func New(st store.Store, cfg *config.Config, log *zap.Logger) *Resolver {
	return &Resolver{
		store: st,
		cfg:   cfg,
		log:   log,
		cache: make(map[string]model.ServiceConfig),
	}
}

func cacheKey(user string) string {
	if user == "" {
		return GlobalKey
	}
	return user
}

// Resolve returns the active configuration for the given scope. The result
// is a copy; mutating it does not affect the cache.
func (r *Resolver) Resolve(ctx context.Context, user string) (*model.ServiceConfig, error) {
	key := cacheKey(user)

	r.mu.Lock()
	if cached, ok := r.cache[key]; ok {
		r.mu.Unlock()
		return &cached, nil
	}
	r.mu.Unlock()

	cfg, err := r.lookup(ctx)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.cache[key] = *cfg
	r.mu.Unlock()

	r.log.Debug("resolved active config",
		zap.String("scope", key),
		zap.String("config", cfg.Name),
		zap.String("provider", cfg.Provider))
	return cfg, nil
}

// lookup walks the registry default, best active registry entry, file
// default, and env fallback tiers.
func (r *Resolver) lookup(ctx context.Context) (*model.ServiceConfig, error) {
	cfg, err := r.store.GetDefaultConfig(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "resolve: registry default")
	}
	if cfg != nil {
		return cfg, nil
	}

	// No default flagged: fall back to the lowest-priority active entry.
	active, err := r.store.ListActiveConfigs(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "resolve: active configs")
	}
	if len(active) > 0 {
		return &active[0], nil
	}

	if file := r.cfg.FileDefault(); file != nil {
		return file, nil
	}

	if fb := r.cfg.Providers.Fallback.ServiceConfig(); fb != nil {
		r.log.Warn("no configured default, using environment fallback",
			zap.String("config", fb.Name))
		return fb, nil
	}

	return nil, ErrNoConfig
}

// ResolveByName returns a specific configuration, checking the registry first
// and then the config file.
func (r *Resolver) ResolveByName(ctx context.Context, name string) (*model.ServiceConfig, error) {
	cfg, err := r.store.GetConfigByName(ctx, name)
	if err == nil {
		return cfg, nil
	}
	if !eris.Is(err, store.ErrNotFound) {
		return nil, eris.Wrapf(err, "resolve: config %s", name)
	}
	if file := r.cfg.FileEntry(name); file != nil {
		return file, nil
	}
	return nil, eris.Wrapf(store.ErrNotFound, "resolve: config %s", name)
}

// Switch installs cfg as the cached active configuration for the scope and
// records an audit entry. Callers invalidate any derived client caches
// themselves; switching has no other side effects.
func (r *Resolver) Switch(ctx context.Context, user string, cfg *model.ServiceConfig, reason string) error {
	key := cacheKey(user)

	r.mu.Lock()
	r.cache[key] = *cfg
	r.mu.Unlock()

	r.log.Info("switched active config",
		zap.String("scope", key),
		zap.String("config", cfg.Name),
		zap.String("reason", reason))

	entry := model.UsageLogEntry{
		ConfigID:   cfg.ID,
		ConfigName: cfg.Name,
		Kind:       model.CallSwitch,
		Success:    true,
		Detail:     reason,
		User:       user,
		CreatedAt:  time.Now().UTC(),
	}
	if err := r.store.AppendUsageLog(ctx, entry); err != nil {
		// Audit failures do not block the switch itself.
		r.log.Warn("switch audit log failed", zap.Error(err))
	}
	return nil
}

// SetDefault marks the named registry config as the default and clears all
// cached selections so the next Resolve sees it.
func (r *Resolver) SetDefault(ctx context.Context, name string) error {
	cfg, err := r.store.GetConfigByName(ctx, name)
	if err != nil {
		return eris.Wrapf(err, "resolve: set default %s", name)
	}
	cfg.Default = true
	cfg.Active = true
	if err := r.store.SaveConfig(ctx, cfg); err != nil {
		return eris.Wrapf(err, "resolve: set default %s", name)
	}
	r.ClearCache()
	return nil
}

// Invalidate drops the cached selection for one scope.
func (r *Resolver) Invalidate(user string) {
	r.mu.Lock()
	delete(r.cache, cacheKey(user))
	r.mu.Unlock()
}

// ClearCache drops every cached selection.
func (r *Resolver) ClearCache() {
	r.mu.Lock()
	r.cache = make(map[string]model.ServiceConfig)
	r.mu.Unlock()
}
