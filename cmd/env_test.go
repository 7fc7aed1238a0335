//go:build !integration

package main

import (
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/airqa/inspect-cli/internal/config"
	"github.com/airqa/inspect-cli/internal/consensus"
	"github.com/airqa/inspect-cli/internal/failover"
	"github.com/airqa/inspect-cli/internal/health"
	"github.com/airqa/inspect-cli/internal/model"
	"github.com/airqa/inspect-cli/internal/points"
	"github.com/airqa/inspect-cli/internal/provider"
	"github.com/airqa/inspect-cli/internal/resolve"
	"github.com/airqa/inspect-cli/internal/store/storetest"
)

// testConfig installs a config with millisecond pacing so command tests
// never sit out the production attempt delay.
func testConfig() *config.Config {
	c := &config.Config{}
	c.OCR.Attempts = 2
	c.OCR.AttemptDelaySec = 0.001
	c.OCR.PromptPoints = 20
	c.OCR.Threshold = points.DefaultThreshold
	return c
}

// testEnv wires the command environment against a fake store the same way
// initEnv does against a real one. Callers must set the global cfg first.
func testEnv(st *storetest.Fake) *appEnv {
	log := zap.NewNop()
	resolver := resolve.New(st, cfg, log)
	monitor := health.NewMonitor(st, log)
	factory := provider.NewFactory(resolver, log)
	coord := failover.New(st, resolver, monitor, cfg, provider.ProbeConfig, log)
	pts := points.NewService(st, log)
	return &appEnv{
		Store:        st,
		Resolver:     resolver,
		Monitor:      monitor,
		Factory:      factory,
		Failover:     coord,
		Points:       pts,
		Orchestrator: consensus.NewOrchestrator(factory, coord, monitor, pts, log),
	}
}

func seedGemini(st *storetest.Fake, baseURL string) {
	st.Seed(model.ServiceConfig{
		Name: "primary", Provider: "gemini", Format: model.FormatGemini,
		BaseURL: baseURL, APIKey: "k", Model: "m",
		Timeout: 5 * time.Second, MaxRetries: 1, Priority: 10,
		Active: true, Default: true,
	})
}

func geminiJSON(text string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"candidates": []map[string]any{
				{"content": map[string]any{"parts": []map[string]any{{"text": text}}}},
			},
		})
	}
}
