package consensus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/airqa/inspect-cli/internal/model"
)

var parseNow = time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

func TestParseStripsCodeFences(t *testing.T) {
	raw := "```json\n{\"phone\": \"17778632107\", \"date\": \"06-21\", \"temperature\": \"25\", \"humidity\": \"60\", \"check_type\": \"initial\", \"points\": {\"客厅\": 0.103, \"主卧\": \"0.095\"}}\n```"

	attempt, fromJSON := Parse(raw, parseNow)
	assert.True(t, fromJSON)
	assert.Equal(t, "17778632107", attempt.Phone)
	assert.Equal(t, "2026-06-21", attempt.Date)
	assert.Equal(t, "25", attempt.Temperature)
	assert.Equal(t, "60", attempt.Humidity)
	assert.Equal(t, model.CheckInitial, attempt.CheckType)
	assert.InDelta(t, 0.103, attempt.Points["客厅"], 1e-9)
	assert.InDelta(t, 0.095, attempt.Points["主卧"], 1e-9)
	assert.Equal(t, raw, attempt.RawText)
}

func TestParseAcceptsPointsDataKey(t *testing.T) {
	raw := `{"phone": "", "points_data": {"书房": 0.042}}`

	attempt, fromJSON := Parse(raw, parseNow)
	assert.True(t, fromJSON)
	assert.InDelta(t, 0.042, attempt.Points["书房"], 1e-9)
}

func TestParsePhoneSweepOnEmptyField(t *testing.T) {
	// Valid JSON with an empty phone field; the number appears in another
	// field of the raw response.
	raw := `{"phone": "", "date": "联系 13812345678", "points": {}}`

	attempt, fromJSON := Parse(raw, parseNow)
	assert.True(t, fromJSON)
	assert.Equal(t, "13812345678", attempt.Phone)
}

func TestParseTextFallbackExtractsFields(t *testing.T) {
	text := "检测报告 电话 13912345678 日期 6-3 温度: 25.5 湿度: 60 复检 客厅 0.045 主卧 0.039"

	attempt, fromJSON := Parse(text, parseNow)
	assert.False(t, fromJSON)
	assert.Equal(t, "13912345678", attempt.Phone)
	assert.Equal(t, "2026-06-03", attempt.Date)
	assert.Equal(t, "25.5", attempt.Temperature)
	assert.Equal(t, "60", attempt.Humidity)
	assert.Equal(t, model.CheckRecheck, attempt.CheckType)
	require.NotEmpty(t, attempt.Points)
	assert.InDelta(t, 0.045, attempt.Points["客厅"], 1e-9)
	assert.InDelta(t, 0.039, attempt.Points["主卧"], 1e-9)
}

func TestParseNumericPayloadValues(t *testing.T) {
	raw := `{"phone": 13812345678, "temperature": 25, "humidity": 60.5, "points": {"客厅": 0.1}}`

	attempt, fromJSON := Parse(raw, parseNow)
	assert.True(t, fromJSON)
	assert.Equal(t, "13812345678", attempt.Phone)
	assert.Equal(t, "25", attempt.Temperature)
	assert.Equal(t, "60.5", attempt.Humidity)
}

func TestNormalizeDate(t *testing.T) {
	assert.Equal(t, "", normalizeDate("", parseNow))
	assert.Equal(t, "2026-06-21", normalizeDate("06-21", parseNow))
	assert.Equal(t, "2026-06-03", normalizeDate("6-3", parseNow))
	assert.Equal(t, "2025-06-21", normalizeDate("2025-06-21", parseNow))
	assert.Equal(t, "unknown", normalizeDate("unknown", parseNow))
}

func TestNormalizeCheckTypeChineseLabels(t *testing.T) {
	assert.Equal(t, model.CheckRecheck, normalizeCheckType("复检"))
	assert.Equal(t, model.CheckRecheck, normalizeCheckType("recheck"))
	assert.Equal(t, model.CheckInitial, normalizeCheckType("初检"))
	assert.Equal(t, model.CheckInitial, normalizeCheckType(""))
}
