package ai

import (
	"errors"
	"reflect"
	"testing"
)

func TestParseVerdict(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Verdict
	}{
		{
			name: "plain object",
			raw:  `{"relevant": true, "confidence": 87, "urgency": 40, "quality": 70, "keywords": ["go", "kubernetes"], "rationale": "good match"}`,
			want: Verdict{IsRelevant: true, ConfidenceScore: 87, UrgencyScore: 40, QualityScore: 70, ExtractedKeywords: []string{"go", "kubernetes"}, Rationale: "good match"},
		},
		{
			name: "code fence and fractions",
			raw:  "```json\n{\"is_relevant\": \"yes\", \"confidence_score\": 0.9, \"quality_score\": \"55%\"}\n```",
			want: Verdict{IsRelevant: true, ConfidenceScore: 90, QualityScore: 55, ExtractedKeywords: []string{}},
		},
		{
			name: "prose around object",
			raw:  `Here is my answer: {"relevant": false, "confidence": 250, "keywords": "Go, go , SQL"} Hope it helps.`,
			want: Verdict{IsRelevant: false, ConfidenceScore: 100, ExtractedKeywords: []string{"Go", "SQL"}},
		},
		{
			name: "negative scores clamp",
			raw:  `{"isRelevant": 0, "urgency": -5}`,
			want: Verdict{ExtractedKeywords: []string{}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseVerdict(tt.raw)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.Raw != tt.raw {
				t.Fatalf("raw answer not kept: %q", got.Raw)
			}
			got.Raw = ""
			if !reflect.DeepEqual(*got, tt.want) {
				t.Fatalf("unexpected verdict:\n got %+v\nwant %+v", *got, tt.want)
			}
		})
	}
}

func TestParseVerdictMalformed(t *testing.T) {
	for _, raw := range []string{
		"",
		"not json at all",
		`{"confidence": 80}`,
		`{"relevant": "maybe"}`,
		`{"relevant": null}`,
	} {
		if _, err := ParseVerdict(raw); !errors.Is(err, ErrMalformedOutput) {
			t.Fatalf("expected malformed output for %q, got %v", raw, err)
		}
	}
}

func TestCoerceKeywordsLimit(t *testing.T) {
	items := make([]any, 0, maxKeywords+5)
	for i := 0; i < maxKeywords+5; i++ {
		items = append(items, string(rune('a'+i)))
	}

	got := coerceKeywords(items)
	if len(got) != maxKeywords {
		t.Fatalf("expected %d keywords, got %d", maxKeywords, len(got))
	}
}
