// Package points learns detection point names and values across inspections
// and infers the check type from measured values.
package points

import (
	"context"

	"go.uber.org/zap"

	"github.com/airqa/inspect-cli/internal/model"
	"github.com/airqa/inspect-cli/internal/store"
)

// DefaultThreshold separates pre-treatment readings from post-treatment ones.
const DefaultThreshold = 0.080

// defaultPoints are the common room names suggested before any learning.
var defaultPoints = []string{
	"客厅", "主卧", "次卧", "次卧1", "次卧2",
	"儿童房", "书房", "衣帽间", "厨房", "餐厅",
}

// Suggestion is one candidate point name with its learned weight.
type Suggestion struct {
	Name       string  `json:"point_name"`
	UsageCount int64   `json:"usage_count"`
	AvgValue   float64 `json:"avg_value"`
	Confidence float64 `json:"confidence"`
	Source     string  `json:"source"` // "learned" or "default"
}

// InferenceStats describes how a check-type inference was reached.
type InferenceStats struct {
	HighCount   int     `json:"high_count"`
	LowCount    int     `json:"low_count"`
	Threshold   float64 `json:"threshold"`
	TotalPoints int     `json:"total_points"`
	AvgValue    float64 `json:"avg_value"`
	MaxValue    float64 `json:"max_value"`
	MinValue    float64 `json:"min_value"`
	// NoData marks an inference made with no usable point values, which is
	// distinct from a genuine tie.
	NoData bool `json:"no_data"`
	Tie    bool `json:"tie"`
}

// Service persists point observations and serves suggestions.
type Service struct {
	store store.Store
	log   *zap.Logger
}

func NewService(st store.Store, log *zap.Logger) *Service {
	return &Service{store: st, log: log}
}

// Update records one observation per point. Individual failures are logged
// and skipped so one bad point never loses the rest of the batch.
func (s *Service) Update(ctx context.Context, points map[string]float64, checkType model.CheckType) {
	for name, value := range points {
		if name == "" {
			continue
		}
		created, err := s.store.RecordPointObservation(ctx, name, value, checkType)
		if err != nil {
			s.log.Warn("point learning update failed",
				zap.String("point", name),
				zap.Error(err))
			continue
		}
		if created {
			s.log.Info("learned new point", zap.String("point", name))
		}
	}
}

// Suggest returns up to limit point names, learned names first ranked by
// usage, padded with defaults. Names in exclude are skipped.
func (s *Service) Suggest(ctx context.Context, exclude []string, limit int) ([]Suggestion, error) {
	if limit <= 0 {
		limit = 10
	}
	skip := make(map[string]bool, len(exclude))
	for _, name := range exclude {
		skip[name] = true
	}

	stats, err := s.store.ListPointStats(ctx, limit+len(exclude))
	if err != nil {
		return nil, err
	}

	var out []Suggestion
	for _, stat := range stats {
		if skip[stat.Name] || len(out) >= limit {
			continue
		}
		skip[stat.Name] = true
		out = append(out, Suggestion{
			Name:       stat.Name,
			UsageCount: stat.UsageCount,
			AvgValue:   stat.AvgValue,
			Confidence: learnedConfidence(stat.UsageCount),
			Source:     "learned",
		})
	}

	for _, name := range defaultPoints {
		if len(out) >= limit {
			break
		}
		if skip[name] {
			continue
		}
		skip[name] = true
		out = append(out, Suggestion{Name: name, Confidence: 0.3, Source: "default"})
	}

	return out, nil
}

// Stats returns the learned records, most used first.
func (s *Service) Stats(ctx context.Context, limit int) ([]model.PointStat, error) {
	return s.store.ListPointStats(ctx, limit)
}

func learnedConfidence(usage int64) float64 {
	c := float64(usage) / 10.0
	if c > 1.0 {
		return 1.0
	}
	return c
}

// InferCheckType classifies an inspection as initial or recheck from its
// point values. Values above the threshold indicate untreated air, so a
// majority above means an initial check. Ties and empty input default to
// initial, with confidence 0.5 and 0 respectively.
func InferCheckType(points map[string]float64, threshold float64) (model.CheckType, float64, InferenceStats) {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	stats := InferenceStats{Threshold: threshold}

	if len(points) == 0 {
		stats.NoData = true
		return model.CheckInitial, 0, stats
	}

	var sum float64
	first := true
	for _, value := range points {
		if value > threshold {
			stats.HighCount++
		} else {
			stats.LowCount++
		}
		sum += value
		if first || value > stats.MaxValue {
			stats.MaxValue = value
		}
		if first || value < stats.MinValue {
			stats.MinValue = value
		}
		first = false
	}
	stats.TotalPoints = stats.HighCount + stats.LowCount
	stats.AvgValue = sum / float64(stats.TotalPoints)

	total := float64(stats.TotalPoints)
	switch {
	case stats.HighCount > stats.LowCount:
		return model.CheckInitial, float64(stats.HighCount) / total, stats
	case stats.LowCount > stats.HighCount:
		return model.CheckRecheck, float64(stats.LowCount) / total, stats
	default:
		stats.Tie = true
		return model.CheckInitial, 0.5, stats
	}
}
