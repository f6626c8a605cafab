package listing

import (
	"regexp"
	"strconv"
	"strings"
)

var salaryNumberRe = regexp.MustCompile(`(?i)(\d[\d,.\s]*\d|\d)\s*(k\b)?`)

// FormatSalary renders a numeric range the way listings display it.
// Zero bounds are unknown; an empty string means no salary.
func FormatSalary(min, max float64, currency string) string {
	currency = strings.TrimSpace(currency)
	var text string
	switch {
	case min > 0 && max > 0 && min != max:
		text = formatAmount(min) + "–" + formatAmount(max)
	case min > 0:
		if max > 0 {
			text = formatAmount(min)
		} else {
			text = "from " + formatAmount(min)
		}
	case max > 0:
		text = "up to " + formatAmount(max)
	default:
		return ""
	}
	if currency != "" {
		text += " " + strings.ToUpper(currency)
	}
	return text
}

// ParseSalaryText extracts at most two amounts from a free text salary such as
// "$50k - $70k" or "от 120 000 руб.". A single amount is returned as both bounds.
func ParseSalaryText(text string) (min, max float64, ok bool) {
	matches := salaryNumberRe.FindAllStringSubmatch(text, -1)
	var amounts []float64
	for _, m := range matches {
		amount, err := parseAmount(m[1])
		if err != nil || amount <= 0 {
			continue
		}
		if m[2] != "" {
			amount *= 1000
		}
		amounts = append(amounts, amount)
		if len(amounts) == 2 {
			break
		}
	}

	switch len(amounts) {
	case 0:
		return 0, 0, false
	case 1:
		return amounts[0], amounts[0], true
	default:
		if amounts[0] > amounts[1] {
			amounts[0], amounts[1] = amounts[1], amounts[0]
		}
		return amounts[0], amounts[1], true
	}
}

func parseAmount(raw string) (float64, error) {
	raw = strings.Join(strings.Fields(raw), "")
	// Thousand separators: "50,000" and "50.000" both mean fifty thousand.
	// A trailing group of one or two digits is a decimal part.
	if idx := strings.LastIndexAny(raw, ",."); idx >= 0 && len(raw)-idx-1 <= 2 {
		raw = strings.NewReplacer(",", "", ".", "").Replace(raw[:idx]) + "." + raw[idx+1:]
	} else {
		raw = strings.NewReplacer(",", "", ".", "").Replace(raw)
	}
	return strconv.ParseFloat(raw, 64)
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
