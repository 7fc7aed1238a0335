// Package consensus runs multi-attempt OCR batches, parses provider output,
// and merges the attempts into one agreed result.
package consensus

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/airqa/inspect-cli/internal/model"
)

// textExtractConfidence is the baseline for regex-based text extraction,
// used when the provider did not return parseable JSON.
const textExtractConfidence = 0.8

var (
	phoneRe    = regexp.MustCompile(`1[3-9]\d{9}`)
	dateRe     = regexp.MustCompile(`(\d{1,2})-(\d{1,2})`)
	tempRe     = regexp.MustCompile(`温度[：:]\s*(\d+\.?\d*)`)
	humidityRe = regexp.MustCompile(`湿度[：:]\s*(\d+\.?\d*)`)
	numberRe   = regexp.MustCompile(`\d+\.?\d*`)
)

// fallbackPointNames are assigned in order to orphan values found during
// text extraction.
var fallbackPointNames = []string{"客厅", "主卧", "次卧", "厨房", "书房", "卫生间"}

type responsePayload struct {
	Phone       any            `json:"phone"`
	Date        any            `json:"date"`
	Temperature any            `json:"temperature"`
	Humidity    any            `json:"humidity"`
	CheckType   string         `json:"check_type"`
	Points      map[string]any `json:"points"`
	PointsData  map[string]any `json:"points_data"`
}

// Parse turns one raw provider response into an attempt. Markdown code
// fences are stripped first; when the body is not valid JSON the regex
// text extractor takes over. fromJSON reports which path produced the
// result so callers can assign the right confidence.
func Parse(text string, now time.Time) (attempt *model.OCRAttempt, fromJSON bool) {
	cleaned := strings.TrimSpace(text)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	if strings.HasPrefix(cleaned, "{") {
		var payload responsePayload
		if err := json.Unmarshal([]byte(cleaned), &payload); err == nil {
			return fromPayload(payload, text, now), true
		}
	}
	return extractFromText(text, now), false
}

func fromPayload(p responsePayload, raw string, now time.Time) *model.OCRAttempt {
	points := p.Points
	if len(points) == 0 {
		points = p.PointsData
	}

	attempt := &model.OCRAttempt{
		Phone:       asString(p.Phone),
		Date:        normalizeDate(asString(p.Date), now),
		Temperature: asString(p.Temperature),
		Humidity:    asString(p.Humidity),
		CheckType:   normalizeCheckType(p.CheckType),
		Points:      make(map[string]float64, len(points)),
		RawText:     raw,
	}

	for name, value := range points {
		if v, ok := asFloat(value); ok {
			attempt.Points[name] = v
		}
	}

	// Handwritten phone numbers often land outside the JSON; sweep the raw
	// response when the field came back empty.
	if attempt.Phone == "" {
		attempt.Phone = phoneRe.FindString(raw)
	}
	return attempt
}

// extractFromText is the regex fallback for free-form responses.
func extractFromText(text string, now time.Time) *model.OCRAttempt {
	attempt := &model.OCRAttempt{
		CheckType: model.CheckInitial,
		Points:    make(map[string]float64),
		RawText:   text,
	}

	attempt.Phone = phoneRe.FindString(text)

	if m := dateRe.FindStringSubmatch(text); m != nil {
		attempt.Date = normalizeDate(pad2(m[1])+"-"+pad2(m[2]), now)
	}
	if m := tempRe.FindStringSubmatch(text); m != nil {
		attempt.Temperature = m[1]
	}
	if m := humidityRe.FindStringSubmatch(text); m != nil {
		attempt.Humidity = m[1]
	}
	if strings.Contains(text, "复检") || strings.Contains(text, "复查") {
		attempt.CheckType = model.CheckRecheck
	}

	// Formaldehyde readings fall in a narrow band; everything else in the
	// text (phones, dates, percentages) sits outside it.
	var values []float64
	for _, num := range numberRe.FindAllString(text, -1) {
		v, err := strconv.ParseFloat(num, 64)
		if err != nil {
			continue
		}
		if v >= 0.001 && v <= 1.0 {
			values = append(values, v)
		}
	}
	for i, v := range values {
		if i >= len(fallbackPointNames) {
			break
		}
		attempt.Points[fallbackPointNames[i]] = v
	}

	return attempt
}

// normalizeDate expands MM-DD readings to a full date in the current year.
// Already-complete dates and unrecognized strings pass through unchanged.
func normalizeDate(date string, now time.Time) string {
	date = strings.TrimSpace(date)
	if date == "" {
		return ""
	}
	if len(date) > 7 && strings.Count(date, "-") == 2 {
		return date
	}
	if strings.Contains(date, "-") && len(date) <= 5 {
		parts := strings.SplitN(date, "-", 2)
		month := pad2(parts[0])
		day := pad2(parts[1])
		return fmt.Sprintf("%d-%s-%s", now.Year(), month, day)
	}
	return date
}

func pad2(s string) string {
	if len(s) == 1 {
		return "0" + s
	}
	return s
}

func normalizeCheckType(s string) model.CheckType {
	switch strings.TrimSpace(s) {
	case string(model.CheckRecheck), "复检", "复查":
		return model.CheckRecheck
	default:
		return model.CheckInitial
	}
}

func asString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}

func asFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	default:
		return 0, false
	}
}
