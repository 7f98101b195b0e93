package views

import (
	"strconv"
	"strings"
	"time"

	"github.com/opsboard/opsboard/internal/http/viewmodels"
)

const emptyCell = "—"

func FormatInt(v int) string {
	return strconv.Itoa(v)
}

// FormatTime renders t in UTC, or a dash for the zero time.
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return emptyCell
	}
	return t.UTC().Format("2006-01-02 15:04 UTC")
}

func FormatDate(t time.Time) string {
	if t.IsZero() {
		return emptyCell
	}
	return t.UTC().Format("2006-01-02")
}

func OrDash(v string) string {
	if strings.TrimSpace(v) == "" {
		return emptyCell
	}
	return v
}

// Humanize turns snake or kebab case identifiers into title case words.
func Humanize(kind string) string {
	kind = strings.TrimSpace(kind)
	if kind == "" {
		return emptyCell
	}

	parts := strings.FieldsFunc(strings.ToLower(kind), func(r rune) bool {
		return r == '_' || r == ':' || r == '-'
	})
	for idx, part := range parts {
		parts[idx] = strings.ToUpper(part[:1]) + part[1:]
	}
	if len(parts) == 0 {
		return kind
	}
	return strings.Join(parts, " ")
}

// ScoreGrade buckets a hygiene score for styling.
func ScoreGrade(score int) string {
	switch {
	case score >= 90:
		return "good"
	case score >= 70:
		return "fair"
	default:
		return "poor"
	}
}

func ReportTitle(data viewmodels.SecurityReportData) string {
	if strings.TrimSpace(data.Title) == "" {
		return "Security report"
	}
	return data.Title
}

// SeverityTotals is the severity table row in column order.
func SeverityTotals(data viewmodels.SecurityReportData) []int {
	return []int{data.Critical, data.High, data.Medium, data.Low, data.Open, data.Patched}
}
