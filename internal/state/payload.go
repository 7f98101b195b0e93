package state

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	fallbackVulnerabilityTitle = "Unknown vulnerability"
	fallbackExternalRef        = "N/A"
)

var jsonNull = []byte("null")

// scanPayload is the vendor response:
// {"response":{"vulnerabilities":{"vulnerability": <object|array>}}}.
// A level that is missing or not an object counts as absent, which yields an
// empty list.
type scanPayload struct {
	Response objectOrAbsent[scanResponse] `json:"response"`
}

type scanResponse struct {
	Vulnerabilities objectOrAbsent[scanVulnerabilities] `json:"vulnerabilities"`
}

type scanVulnerabilities struct {
	Vulnerability vulnerabilityList `json:"vulnerability"`
}

func (p scanPayload) entries() vulnerabilityList {
	resp := p.Response.Value
	if resp == nil || resp.Vulnerabilities.Value == nil {
		return nil
	}
	return resp.Vulnerabilities.Value.Vulnerability
}

// objectOrAbsent holds a decoded JSON object. Any other JSON value leaves
// Value nil.
type objectOrAbsent[T any] struct {
	Value *T
}

func (o *objectOrAbsent[T]) UnmarshalJSON(b []byte) error {
	o.Value = nil
	b = bytes.TrimSpace(b)
	if len(b) == 0 || b[0] != '{' {
		return nil
	}
	var v T
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	o.Value = &v
	return nil
}

// vulnerabilityList is either a single vendor entry or a list of them.
// Entries that are not objects are kept as empty entries so they surface
// with placeholder values.
type vulnerabilityList []rawVulnerability

func (l *vulnerabilityList) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, jsonNull) {
		*l = nil
		return nil
	}
	switch b[0] {
	case '{':
		var one rawVulnerability
		if err := json.Unmarshal(b, &one); err != nil {
			return err
		}
		*l = vulnerabilityList{one}
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(b, &items); err != nil {
			return err
		}
		out := make(vulnerabilityList, 0, len(items))
		for _, item := range items {
			var entry rawVulnerability
			if trimmed := bytes.TrimSpace(item); len(trimmed) > 0 && trimmed[0] == '{' {
				if err := json.Unmarshal(trimmed, &entry); err != nil {
					return err
				}
			}
			out = append(out, entry)
		}
		*l = out
	default:
		*l = nil
	}
	return nil
}

// rawVulnerability carries every vendor spelling seen for each field.
type rawVulnerability struct {
	Name       flexString `json:"vulnerability_name"`
	Title      flexString `json:"title"`
	Severity   flexString `json:"severity"`
	Risk       flexString `json:"risk"`
	CVEID      flexString `json:"cve_id"`
	CVE        flexString `json:"cve"`
	DetectedAt flexString `json:"detected_at"`
	FirstSeen  flexString `json:"first_seen"`
	HostName   flexString `json:"host_name"`
	Host       flexString `json:"host"`
}

// flexString accepts a JSON string, number or bool. Anything else decodes
// to "".
type flexString string

func (s *flexString) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch x := v.(type) {
	case string:
		*s = flexString(strings.TrimSpace(x))
	case float64:
		*s = flexString(strconv.FormatFloat(x, 'f', -1, 64))
	case bool:
		*s = flexString(strconv.FormatBool(x))
	default:
		*s = ""
	}
	return nil
}

func firstNonEmpty(values ...flexString) string {
	for _, v := range values {
		if v != "" {
			return string(v)
		}
	}
	return ""
}

// NormalizeScan maps a vendor scan response to vulnerabilities. Ids are
// vuln-1, vuln-2, ... in payload order. completedAt stands in for missing or
// unparseable detection times. A body that is not JSON is an error; an empty
// body or missing fields yield an empty result.
func NormalizeScan(body []byte, completedAt time.Time) ([]Vulnerability, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 || bytes.Equal(body, jsonNull) {
		return []Vulnerability{}, nil
	}
	var payload scanPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode scan response: %w", err)
	}

	entries := payload.entries()
	out := make([]Vulnerability, 0, len(entries))
	for i, raw := range entries {
		out = append(out, raw.normalize(i+1, completedAt))
	}
	return out, nil
}

func (raw rawVulnerability) normalize(seq int, completedAt time.Time) Vulnerability {
	title := firstNonEmpty(raw.Name, raw.Title)
	if title == "" {
		title = fallbackVulnerabilityTitle
	}
	ref := firstNonEmpty(raw.CVEID, raw.CVE)
	if ref == "" {
		ref = fallbackExternalRef
	}
	detectedAt, ok := parseDetectedAt(firstNonEmpty(raw.DetectedAt, raw.FirstSeen))
	if !ok {
		detectedAt = completedAt
	}
	return Vulnerability{
		ID:          "vuln-" + strconv.Itoa(seq),
		Title:       title,
		Severity:    ClassifySeverity(firstNonEmpty(raw.Severity, raw.Risk)),
		ExternalRef: ref,
		Status:      VulnOpen,
		DetectedAt:  detectedAt,
		Host:        firstNonEmpty(raw.HostName, raw.Host),
	}
}

// ClassifySeverity matches raw case-insensitively against critical, high and
// medium in that order; anything else is low.
func ClassifySeverity(raw string) Severity {
	s := strings.ToLower(raw)
	switch {
	case strings.Contains(s, "critical"):
		return SeverityCritical
	case strings.Contains(s, "high"):
		return SeverityHigh
	case strings.Contains(s, "medium"):
		return SeverityMedium
	default:
		return SeverityLow
	}
}

var detectedAtLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseDetectedAt(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range detectedAtLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil && secs > 0 {
		return time.Unix(secs, 0).UTC(), true
	}
	return time.Time{}, false
}
