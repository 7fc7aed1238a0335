package model

import "time"

// CheckType classifies an inspection as an initial visit or a follow-up
// recheck after remediation.
type CheckType string

const (
	CheckInitial CheckType = "initial"
	CheckRecheck CheckType = "recheck"
)

// OCRAttempt holds the parsed fields of a single recognition call. Attempts
// exist only in memory for the duration of one multi-attempt batch.
type OCRAttempt struct {
	Phone       string             `json:"phone"`
	Date        string             `json:"date"`
	Temperature string             `json:"temperature"`
	Humidity    string             `json:"humidity"`
	CheckType   CheckType          `json:"check_type"`
	Points      map[string]float64 `json:"points_data"`
	RawText     string             `json:"raw_response"`
	Confidence  float64            `json:"confidence_score"`
	Attempt     int                `json:"attempt"`
}

// FieldConflict records the distinct values seen for one scalar field across
// a batch, with how often each occurred.
type FieldConflict struct {
	Values      []string       `json:"values"`
	Occurrences map[string]int `json:"occurrences"`
}

// PointConflict records disagreement over one detection point's value.
// Variance is the max-min spread, not a statistical variance.
type PointConflict struct {
	Values   []float64 `json:"values"`
	Average  float64   `json:"average"`
	Variance float64   `json:"variance"`
}

// ConflictReport collects every field-level disagreement found by the
// consensus analyzer.
type ConflictReport struct {
	Fields map[string]FieldConflict `json:"fields,omitempty"`
	Points map[string]PointConflict `json:"points,omitempty"`
}

// Empty reports whether no conflicts were recorded.
func (r ConflictReport) Empty() bool {
	return len(r.Fields) == 0 && len(r.Points) == 0
}

// ConsensusResult is the merged outcome of a multi-attempt batch.
type ConsensusResult struct {
	OCRAttempt

	HasConflicts bool           `json:"has_conflicts"`
	Conflicts    ConflictReport `json:"conflict_details"`
	AttemptsUsed int            `json:"attempts_used"`

	// Check-type inference over the merged point values. When the OCR-read
	// check type disagrees with the inferred one, the inferred type wins and
	// the original reading is preserved in OCRCheckType.
	InferredCheckType   CheckType `json:"inferred_check_type,omitempty"`
	CheckTypeConfidence float64   `json:"check_type_confidence,omitempty"`
	CheckTypeConflict   bool      `json:"check_type_conflict,omitempty"`
	OCRCheckType        CheckType `json:"ocr_check_type,omitempty"`
}

// PointStat is the learned statistical record for one detection point name.
// AvgValue is always TotalValue/UsageCount after every update.
type PointStat struct {
	Name         string    `json:"point_name"`
	UsageCount   int64     `json:"usage_count"`
	TotalValue   float64   `json:"total_value"`
	AvgValue     float64   `json:"avg_value"`
	InitialCount int64     `json:"initial_count"`
	RecheckCount int64     `json:"recheck_count"`
	LastUsedAt   time.Time `json:"last_used_at"`
}
