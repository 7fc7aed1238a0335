package points

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/airqa/inspect-cli/internal/model"
	"github.com/airqa/inspect-cli/internal/store/storetest"
)

func TestInferCheckTypeMajorityHigh(t *testing.T) {
	ct, conf, stats := InferCheckType(map[string]float64{
		"客厅": 0.12, "主卧": 0.10, "书房": 0.05,
	}, 0.080)

	assert.Equal(t, model.CheckInitial, ct)
	assert.InDelta(t, 2.0/3.0, conf, 1e-9)
	assert.Equal(t, 2, stats.HighCount)
	assert.Equal(t, 1, stats.LowCount)
	assert.False(t, stats.Tie)
	assert.False(t, stats.NoData)
	assert.InDelta(t, 0.12, stats.MaxValue, 1e-9)
	assert.InDelta(t, 0.05, stats.MinValue, 1e-9)
}

func TestInferCheckTypeMajorityLow(t *testing.T) {
	ct, conf, stats := InferCheckType(map[string]float64{
		"客厅": 0.03, "主卧": 0.04, "书房": 0.12,
	}, 0.080)

	assert.Equal(t, model.CheckRecheck, ct)
	assert.InDelta(t, 2.0/3.0, conf, 1e-9)
	assert.Equal(t, 1, stats.HighCount)
}

func TestInferCheckTypeTieDefaultsInitial(t *testing.T) {
	ct, conf, stats := InferCheckType(map[string]float64{
		"客厅": 0.12, "主卧": 0.03,
	}, 0.080)

	assert.Equal(t, model.CheckInitial, ct)
	assert.InDelta(t, 0.5, conf, 1e-9)
	assert.True(t, stats.Tie)
	assert.False(t, stats.NoData)
}

func TestInferCheckTypeNoData(t *testing.T) {
	ct, conf, stats := InferCheckType(nil, 0.080)

	assert.Equal(t, model.CheckInitial, ct)
	assert.Zero(t, conf)
	assert.True(t, stats.NoData)
	assert.False(t, stats.Tie)
}

func TestInferCheckTypeBoundaryValueCountsLow(t *testing.T) {
	// A value exactly at the threshold is not above it.
	_, _, stats := InferCheckType(map[string]float64{"客厅": 0.080}, 0.080)
	assert.Equal(t, 1, stats.LowCount)
	assert.Zero(t, stats.HighCount)
}

func TestUpdateRecordsObservations(t *testing.T) {
	st := storetest.New()
	svc := NewService(st, zap.NewNop())
	ctx := context.Background()

	svc.Update(ctx, map[string]float64{"客厅": 0.09, "主卧": 0.07}, model.CheckInitial)
	svc.Update(ctx, map[string]float64{"客厅": 0.05}, model.CheckRecheck)

	stat, err := st.GetPointStat(ctx, "客厅")
	require.NoError(t, err)
	assert.Equal(t, int64(2), stat.UsageCount)
	assert.InDelta(t, 0.07, stat.AvgValue, 1e-9)
	assert.Equal(t, int64(1), stat.InitialCount)
	assert.Equal(t, int64(1), stat.RecheckCount)
}

func TestSuggestRanksLearnedAndPadsDefaults(t *testing.T) {
	st := storetest.New()
	svc := NewService(st, zap.NewNop())
	ctx := context.Background()

	for i := 0; i < 12; i++ {
		_, err := st.RecordPointObservation(ctx, "阳台", 0.06, model.CheckInitial)
		require.NoError(t, err)
	}
	_, err := st.RecordPointObservation(ctx, "地下室", 0.05, model.CheckInitial)
	require.NoError(t, err)

	got, err := svc.Suggest(ctx, nil, 5)
	require.NoError(t, err)
	require.Len(t, got, 5)

	assert.Equal(t, "阳台", got[0].Name)
	assert.Equal(t, "learned", got[0].Source)
	assert.InDelta(t, 1.0, got[0].Confidence, 1e-9) // capped at 12/10

	assert.Equal(t, "地下室", got[1].Name)
	assert.InDelta(t, 0.1, got[1].Confidence, 1e-9)

	for _, s := range got[2:] {
		assert.Equal(t, "default", s.Source)
		assert.InDelta(t, 0.3, s.Confidence, 1e-9)
	}
}

func TestSuggestExcludesExisting(t *testing.T) {
	st := storetest.New()
	svc := NewService(st, zap.NewNop())
	ctx := context.Background()

	_, err := st.RecordPointObservation(ctx, "客厅", 0.06, model.CheckInitial)
	require.NoError(t, err)

	got, err := svc.Suggest(ctx, []string{"客厅", "主卧"}, 3)
	require.NoError(t, err)
	for _, s := range got {
		assert.NotEqual(t, "客厅", s.Name)
		assert.NotEqual(t, "主卧", s.Name)
	}
}
