package consensus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/airqa/inspect-cli/internal/model"
)

func attempt(n int, conf float64, phone string, points map[string]float64) *model.OCRAttempt {
	return &model.OCRAttempt{
		Phone:       phone,
		Date:        "2026-06-21",
		Temperature: "25",
		Humidity:    "60",
		CheckType:   model.CheckInitial,
		Points:      points,
		Confidence:  conf,
		Attempt:     n,
	}
}

func TestAnalyzeDetectsScalarConflicts(t *testing.T) {
	a := attempt(1, 0.9, "13812345678", nil)
	b := attempt(2, 0.9, "13812345679", nil)

	report := Analyze([]*model.OCRAttempt{a, b})
	require.Contains(t, report.Fields, "phone")
	conflict := report.Fields["phone"]
	assert.ElementsMatch(t, []string{"13812345678", "13812345679"}, conflict.Values)
	assert.Equal(t, 1, conflict.Occurrences["13812345678"])
	assert.NotContains(t, report.Fields, "date")
}

func TestAnalyzeIgnoresEmptyValues(t *testing.T) {
	a := attempt(1, 0.9, "13812345678", nil)
	b := attempt(2, 0.9, "", nil)

	report := Analyze([]*model.OCRAttempt{a, b})
	assert.True(t, report.Empty())
}

func TestAnalyzePointSpread(t *testing.T) {
	a := attempt(1, 0.9, "13812345678", map[string]float64{"客厅": 0.10, "主卧": 0.05})
	b := attempt(2, 0.9, "13812345678", map[string]float64{"客厅": 0.12, "主卧": 0.05})

	report := Analyze([]*model.OCRAttempt{a, b})
	require.Contains(t, report.Points, "客厅")
	pc := report.Points["客厅"]
	assert.InDelta(t, 0.11, pc.Average, 1e-9)
	assert.InDelta(t, 0.02, pc.Variance, 1e-9)
	assert.NotContains(t, report.Points, "主卧")
}

func TestMergeMajorityVoteWins(t *testing.T) {
	a := attempt(1, 0.9, "13812345678", nil)
	b := attempt(2, 0.85, "13812345678", nil)
	c := attempt(3, 0.95, "13899999999", nil)

	result := Merge([]*model.OCRAttempt{a, b, c})
	assert.True(t, result.HasConflicts)
	// Two attempts agree; the lone high-confidence outlier loses.
	assert.Equal(t, "13812345678", result.Phone)
	assert.Equal(t, 3, result.AttemptsUsed)
}

func TestMergeTieBreaksByConfidence(t *testing.T) {
	a := attempt(1, 0.85, "13811111111", nil)
	b := attempt(2, 0.9, "13822222222", nil)

	result := Merge([]*model.OCRAttempt{a, b})
	assert.Equal(t, "13822222222", result.Phone)

	// Same inputs in any order produce the same winner.
	result = Merge([]*model.OCRAttempt{b, a})
	assert.Equal(t, "13822222222", result.Phone)
}

func TestMergeAveragesConflictingPoints(t *testing.T) {
	a := attempt(1, 0.9, "13812345678", map[string]float64{"客厅": 0.10})
	b := attempt(2, 0.9, "13812345678", map[string]float64{"客厅": 0.12, "书房": 0.04})

	result := Merge([]*model.OCRAttempt{a, b})
	assert.InDelta(t, 0.11, result.Points["客厅"], 1e-9)
	// Union of names: a point read by one attempt survives the merge.
	assert.InDelta(t, 0.04, result.Points["书房"], 1e-9)
}

func TestMergeSeedsFromHighestConfidence(t *testing.T) {
	a := attempt(1, 0.85, "", nil)
	a.Temperature = "24"
	b := attempt(2, 0.9, "", nil)
	b.Temperature = "" // only a read the temperature

	result := Merge([]*model.OCRAttempt{a, b})
	// Base comes from b, but the unconflicted temperature is not erased by
	// the vote since empty values never count.
	assert.False(t, result.HasConflicts)
	assert.Equal(t, "", result.Temperature)
}

func TestMergeSingleAttemptPassesThrough(t *testing.T) {
	a := attempt(1, 0.9, "13812345678", map[string]float64{"客厅": 0.1})

	result := Merge([]*model.OCRAttempt{a})
	assert.False(t, result.HasConflicts)
	assert.Equal(t, "13812345678", result.Phone)
	assert.Equal(t, 1, result.AttemptsUsed)
	assert.InDelta(t, 0.1, result.Points["客厅"], 1e-9)
}
