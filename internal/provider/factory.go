package provider

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/airqa/inspect-cli/internal/model"
	"github.com/airqa/inspect-cli/internal/resolve"
)

// Factory builds and caches clients for resolved configurations. Invalidation
// is explicit: after a config switch the caller drops the affected scope.
type Factory struct {
	resolver *resolve.Resolver
	log      *zap.Logger
	opts     []Option

	mu      sync.Mutex
	clients map[string]Client
}

func NewFactory(resolver *resolve.Resolver, log *zap.Logger, opts ...Option) *Factory {
	return &Factory{
		resolver: resolver,
		log:      log,
		opts:     opts,
		clients:  make(map[string]Client),
	}
}

// GetClient returns a client for the scope's active configuration, reusing a
// cached client while the resolved config is unchanged.
func (f *Factory) GetClient(ctx context.Context, user string) (Client, error) {
	cfg, err := f.resolver.Resolve(ctx, user)
	if err != nil {
		return nil, err
	}

	key := scopeKey(user)
	f.mu.Lock()
	defer f.mu.Unlock()

	if cached, ok := f.clients[key]; ok && sameConfig(cached.Config(), *cfg) {
		return cached, nil
	}

	client, err := New(*cfg, f.opts...)
	if err != nil {
		return nil, err
	}
	f.clients[key] = client
	f.log.Debug("built provider client",
		zap.String("scope", key),
		zap.String("config", cfg.Name),
		zap.String("format", string(cfg.Format)))
	return client, nil
}

// SwitchTo makes the named config the scope's active selection and returns a
// client built from it, replacing the scope's cached client. The client is
// built first so an unusable config never becomes the selection.
func (f *Factory) SwitchTo(ctx context.Context, name, user string) (Client, error) {
	cfg, err := f.resolver.ResolveByName(ctx, name)
	if err != nil {
		return nil, err
	}
	client, err := New(*cfg, f.opts...)
	if err != nil {
		return nil, err
	}
	if err := f.resolver.Switch(ctx, user, cfg, "selected "+name); err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.clients[scopeKey(user)] = client
	f.mu.Unlock()
	return client, nil
}

// GetClientByName returns an uncached client for a specific named config.
func (f *Factory) GetClientByName(ctx context.Context, name string) (Client, error) {
	cfg, err := f.resolver.ResolveByName(ctx, name)
	if err != nil {
		return nil, err
	}
	return New(*cfg, f.opts...)
}

// Invalidate drops the cached client for one scope.
func (f *Factory) Invalidate(user string) {
	f.mu.Lock()
	delete(f.clients, scopeKey(user))
	f.mu.Unlock()
}

// InvalidateAll drops every cached client.
func (f *Factory) InvalidateAll() {
	f.mu.Lock()
	f.clients = make(map[string]Client)
	f.mu.Unlock()
}

func scopeKey(user string) string {
	if user == "" {
		return resolve.GlobalKey
	}
	return user
}

func sameConfig(a, b model.ServiceConfig) bool {
	return a.Name == b.Name &&
		a.Format == b.Format &&
		a.BaseURL == b.BaseURL &&
		a.APIKey == b.APIKey &&
		a.Model == b.Model
}
