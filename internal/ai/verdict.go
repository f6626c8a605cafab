package ai

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

const maxKeywords = 20

// Verdict is the model's structured judgement of one listing. Scores are within [0, 100].
type Verdict struct {
	ListingID         string   `json:"listingId"`
	IsRelevant        bool     `json:"isRelevant"`
	ConfidenceScore   int      `json:"confidenceScore"`
	UrgencyScore      int      `json:"urgencyScore"`
	QualityScore      int      `json:"qualityScore"`
	ExtractedKeywords []string `json:"extractedKeywords"`
	Rationale         string   `json:"rationale,omitempty"`
	Model             string   `json:"model,omitempty"`
	Raw               string   `json:"-"`
}

// ParseVerdict reads the JSON verdict out of a model answer. Code fences and prose around
// the object are tolerated. An answer without a relevance decision is malformed.
func ParseVerdict(raw string) (*Verdict, error) {
	cleaned := extractJSON(raw)

	var data map[string]any
	if err := json.Unmarshal([]byte(cleaned), &data); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}

	relevant, ok := lookup(data, "relevant", "is_relevant", "isRelevant")
	if !ok {
		return nil, fmt.Errorf("%w: missing relevant field", ErrMalformedOutput)
	}
	isRelevant, ok := coerceBool(relevant)
	if !ok {
		return nil, fmt.Errorf("%w: relevant is %v", ErrMalformedOutput, relevant)
	}

	confidence, _ := lookup(data, "confidence", "confidence_score", "confidenceScore")
	urgency, _ := lookup(data, "urgency", "urgency_score", "urgencyScore")
	quality, _ := lookup(data, "quality", "quality_score", "qualityScore")
	keywords, _ := lookup(data, "keywords", "extracted_keywords", "extractedKeywords")
	rationale, _ := lookup(data, "rationale", "reason")

	return &Verdict{
		IsRelevant:        isRelevant,
		ConfidenceScore:   score(coerceFloat(confidence)),
		UrgencyScore:      score(coerceFloat(urgency)),
		QualityScore:      score(coerceFloat(quality)),
		ExtractedKeywords: coerceKeywords(keywords),
		Rationale:         coerceString(rationale),
		Raw:               raw,
	}, nil
}

func lookup(data map[string]any, keys ...string) (any, bool) {
	for _, key := range keys {
		if v, ok := data[key]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

func extractJSON(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```json")
		raw = strings.TrimPrefix(raw, "```")
		raw = strings.TrimSpace(raw)
		if idx := strings.LastIndex(raw, "```"); idx != -1 {
			raw = raw[:idx]
		}
	}
	raw = strings.Trim(raw, "`")
	raw = strings.TrimSpace(raw)

	// Some models wrap the object in prose.
	if !strings.HasPrefix(raw, "{") {
		start := strings.Index(raw, "{")
		end := strings.LastIndex(raw, "}")
		if start != -1 && end > start {
			raw = raw[start : end+1]
		}
	}
	return raw
}

// score turns a model number into an integer percentage. Values in (0, 1] are fractions.
func score(v float64) int {
	if math.IsNaN(v) || v <= 0 {
		return 0
	}
	if v <= 1 {
		v *= 100
	}
	if v > 100 {
		v = 100
	}
	return int(math.Round(v))
}

func coerceBool(v any) (bool, bool) {
	switch val := v.(type) {
	case bool:
		return val, true
	case string:
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "true", "yes", "1":
			return true, true
		case "false", "no", "0":
			return false, true
		}
		return false, false
	case float64:
		return val != 0, true
	default:
		return false, false
	}
}

func coerceFloat(v any) float64 {
	switch val := v.(type) {
	case float64:
		return val
	case int:
		return float64(val)
	case string:
		trimmed := strings.TrimSuffix(strings.TrimSpace(val), "%")
		if trimmed == "" {
			return math.NaN()
		}
		f, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return math.NaN()
		}
		return f
	default:
		return math.NaN()
	}
}

func coerceString(v any) string {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case fmt.Stringer:
		return strings.TrimSpace(val.String())
	default:
		if v == nil {
			return ""
		}
		bytes, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(bytes)
	}
}

// coerceKeywords accepts a JSON array or a comma separated string. The result is trimmed,
// de-duplicated case-insensitively and keeps the model's order.
func coerceKeywords(v any) []string {
	var raw []string
	switch val := v.(type) {
	case []any:
		for _, item := range val {
			raw = append(raw, coerceString(item))
		}
	case string:
		raw = strings.Split(val, ",")
	}

	out := make([]string, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for _, kw := range raw {
		kw = strings.TrimSpace(kw)
		if kw == "" {
			continue
		}
		key := strings.ToLower(kw)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, kw)
		if len(out) == maxKeywords {
			break
		}
	}
	return out
}
