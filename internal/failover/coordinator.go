// Package failover switches the active AI service to the best surviving
// candidate after a provider failure.
package failover

import (
	"context"
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/airqa/inspect-cli/internal/config"
	"github.com/airqa/inspect-cli/internal/health"
	"github.com/airqa/inspect-cli/internal/model"
	"github.com/airqa/inspect-cli/internal/resolve"
	"github.com/airqa/inspect-cli/internal/store"
)

// ErrExhausted is returned when no candidate survives probing.
var ErrExhausted = eris.New("failover: no healthy candidate available")

// ProbeFunc tests connectivity for one candidate. Injected to keep the
// coordinator independent of client construction.
type ProbeFunc func(ctx context.Context, cfg model.ServiceConfig) error

// Coordinator walks failover candidates in priority order.
type Coordinator struct {
	store    store.Store
	resolver *resolve.Resolver
	monitor  *health.Monitor
	cfg      *config.Config
	probe    ProbeFunc
	log      *zap.Logger
}

func New(st store.Store, resolver *resolve.Resolver, monitor *health.Monitor, cfg *config.Config, probe ProbeFunc, log *zap.Logger) *Coordinator {
	return &Coordinator{
		store:    st,
		resolver: resolver,
		monitor:  monitor,
		cfg:      cfg,
		probe:    probe,
		log:      log,
	}
}

// HandleFailure records the failure and switches the scope to the first
// candidate whose probe succeeds. Candidates are the active registry and
// config-file entries, priority ascending, with the failed config excluded.
// The static environment fallback is tried last. Returns the new active
// config, or ErrExhausted when every candidate fails.
func (c *Coordinator) HandleFailure(ctx context.Context, failed model.ServiceConfig, user string, cause error) (*model.ServiceConfig, error) {
	c.log.Warn("provider failure, starting failover",
		zap.String("failed", failed.Name),
		zap.String("scope", scopeLabel(user)),
		zap.Error(cause))

	// The failed call itself was already tracked by the call path; mark the
	// forced failover in the config's error window.
	c.monitor.NoteFailure(failed.Name, cause)

	candidates, err := c.candidates(ctx, failed)
	if err != nil {
		return nil, err
	}

	for _, candidate := range candidates {
		if err := c.probeCandidate(ctx, candidate, user); err != nil {
			c.log.Warn("failover candidate probe failed",
				zap.String("candidate", candidate.Name),
				zap.Error(err))
			continue
		}
		if err := c.switchTo(ctx, candidate, user, failed.Name); err != nil {
			return nil, err
		}
		return &candidate, nil
	}

	if fb := c.cfg.Providers.Fallback.ServiceConfig(); fb != nil && fb.Name != failed.Name {
		if err := c.probeCandidate(ctx, *fb, user); err == nil {
			if err := c.switchTo(ctx, *fb, user, failed.Name); err != nil {
				return nil, err
			}
			return fb, nil
		}
	}

	return nil, ErrExhausted
}

// candidates merges registry and config-file entries, dropping the failed
// config and deduplicating by name (registry wins).
func (c *Coordinator) candidates(ctx context.Context, failed model.ServiceConfig) ([]model.ServiceConfig, error) {
	stored, err := c.store.ListActiveConfigs(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "failover: list candidates")
	}

	seen := make(map[string]bool, len(stored)+1)
	seen[failed.Name] = true

	var out []model.ServiceConfig
	for _, cfg := range stored {
		if seen[cfg.Name] {
			continue
		}
		seen[cfg.Name] = true
		out = append(out, cfg)
	}
	for _, entry := range c.cfg.Providers.Entries {
		sc := entry.ServiceConfig()
		if seen[sc.Name] || !sc.Active {
			continue
		}
		seen[sc.Name] = true
		out = append(out, sc)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority < out[j].Priority })
	return out, nil
}

// probeCandidate tests one candidate under its own timeout and records the
// probe outcome in the health monitor.
func (c *Coordinator) probeCandidate(ctx context.Context, candidate model.ServiceConfig, user string) error {
	probeCtx := ctx
	if candidate.Timeout > 0 {
		var cancel context.CancelFunc
		probeCtx, cancel = context.WithTimeout(ctx, candidate.Timeout)
		defer cancel()
	}
	return c.monitor.Track(probeCtx, candidate, model.CallProbe, user, func(ctx context.Context) error {
		return c.probe(ctx, candidate)
	})
}

func (c *Coordinator) switchTo(ctx context.Context, candidate model.ServiceConfig, user, failedName string) error {
	c.log.Info("failover switch",
		zap.String("from", failedName),
		zap.String("to", candidate.Name),
		zap.Int("priority", candidate.Priority))
	return c.resolver.Switch(ctx, user, &candidate, "failover from "+failedName)
}

func scopeLabel(user string) string {
	if user == "" {
		return resolve.GlobalKey
	}
	return user
}
