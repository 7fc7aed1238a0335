package consensus

import (
	"sort"

	"github.com/airqa/inspect-cli/internal/model"
)

// scalarFields are the per-attempt fields checked for disagreement, in
// report order.
var scalarFields = []string{"phone", "date", "temperature", "humidity", "check_type"}

func scalarValue(a *model.OCRAttempt, field string) string {
	switch field {
	case "phone":
		return a.Phone
	case "date":
		return a.Date
	case "temperature":
		return a.Temperature
	case "humidity":
		return a.Humidity
	case "check_type":
		return string(a.CheckType)
	}
	return ""
}

func setScalar(a *model.OCRAttempt, field, value string) {
	switch field {
	case "phone":
		a.Phone = value
	case "date":
		a.Date = value
	case "temperature":
		a.Temperature = value
	case "humidity":
		a.Humidity = value
	case "check_type":
		a.CheckType = model.CheckType(value)
	}
}

// Analyze reports every disagreement between attempts. Empty scalar values
// do not count as disagreement; a field read by only one attempt is not a
// conflict.
func Analyze(attempts []*model.OCRAttempt) model.ConflictReport {
	report := model.ConflictReport{}
	if len(attempts) <= 1 {
		return report
	}

	for _, field := range scalarFields {
		occurrences := make(map[string]int)
		for _, a := range attempts {
			if v := scalarValue(a, field); v != "" {
				occurrences[v]++
			}
		}
		if len(occurrences) > 1 {
			if report.Fields == nil {
				report.Fields = make(map[string]model.FieldConflict)
			}
			values := make([]string, 0, len(occurrences))
			for v := range occurrences {
				values = append(values, v)
			}
			sort.Strings(values)
			report.Fields[field] = model.FieldConflict{Values: values, Occurrences: occurrences}
		}
	}

	for name, values := range collectPoints(attempts) {
		if !allEqual(values) {
			if report.Points == nil {
				report.Points = make(map[string]model.PointConflict)
			}
			report.Points[name] = model.PointConflict{
				Values:   distinct(values),
				Average:  mean(values),
				Variance: spread(values),
			}
		}
	}

	return report
}

// Merge combines attempts into one result: the highest-confidence attempt
// seeds the base, conflicting scalars are settled by majority vote, and
// conflicting point values are averaged. On a vote tie the value from the
// highest-confidence attempt wins, which keeps merges deterministic.
func Merge(attempts []*model.OCRAttempt) *model.ConsensusResult {
	report := Analyze(attempts)

	best := bestAttempt(attempts)
	result := &model.ConsensusResult{
		OCRAttempt:   *best,
		HasConflicts: !report.Empty(),
		Conflicts:    report,
		AttemptsUsed: len(attempts),
	}

	// Merged points are the union across attempts, averaging where values
	// disagree.
	merged := make(map[string]float64)
	for name, values := range collectPoints(attempts) {
		merged[name] = mean(values)
	}
	result.Points = merged

	for field, conflict := range report.Fields {
		setScalar(&result.OCRAttempt, field, settleVote(conflict.Occurrences, attempts, field))
	}

	return result
}

// bestAttempt returns the highest-confidence attempt, preferring earlier
// attempts on equal confidence.
func bestAttempt(attempts []*model.OCRAttempt) *model.OCRAttempt {
	best := attempts[0]
	for _, a := range attempts[1:] {
		if a.Confidence > best.Confidence {
			best = a
		}
	}
	return best
}

// settleVote picks the most common value; among tied values the one read by
// the most confident attempt wins.
func settleVote(occurrences map[string]int, attempts []*model.OCRAttempt, field string) string {
	maxCount := 0
	for _, n := range occurrences {
		if n > maxCount {
			maxCount = n
		}
	}

	tied := make(map[string]bool)
	for v, n := range occurrences {
		if n == maxCount {
			tied[v] = true
		}
	}

	var winner string
	winnerConf := -1.0
	for _, a := range attempts {
		v := scalarValue(a, field)
		if tied[v] && a.Confidence > winnerConf {
			winner = v
			winnerConf = a.Confidence
		}
	}
	return winner
}

func collectPoints(attempts []*model.OCRAttempt) map[string][]float64 {
	all := make(map[string][]float64)
	for _, a := range attempts {
		for name, value := range a.Points {
			all[name] = append(all[name], value)
		}
	}
	return all
}

func allEqual(values []float64) bool {
	for _, v := range values[1:] {
		if v != values[0] {
			return false
		}
	}
	return true
}

func distinct(values []float64) []float64 {
	seen := make(map[float64]bool, len(values))
	var out []float64
	for _, v := range values {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	sort.Float64s(out)
	return out
}

func mean(values []float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// spread is the max-min distance, the disagreement measure reported to the
// reviewer.
func spread(values []float64) float64 {
	min, max := values[0], values[0]
	for _, v := range values[1:] {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	return max - min
}
