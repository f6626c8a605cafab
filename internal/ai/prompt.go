package ai

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/spigell/job-aggregator/internal/listing"
	"github.com/spigell/job-aggregator/internal/utils"
)

//go:embed prompt.md
var systemPrompt string

const maxDescriptionRunes = 4000

// SystemPrompt is the fixed instruction sent with every classification.
func SystemPrompt() string {
	return strings.TrimSpace(systemPrompt)
}

func buildPrompt(l *listing.Listing, hints Hints) string {
	var b strings.Builder

	b.WriteString("Seeker preferences:\n")
	writeList(&b, "Keywords", hints.Keywords)
	writeList(&b, "Locations", hints.Locations)
	writeList(&b, "Job types", hints.JobTypes)
	if profile := strings.TrimSpace(hints.Profile); profile != "" {
		fmt.Fprintf(&b, "- Profile: %s\n", profile)
	}

	b.WriteString("\nListing:\n")
	writeField(&b, "Title", l.Title)
	writeField(&b, "Company", l.Company)
	writeField(&b, "Location", l.Location)
	writeField(&b, "Salary", l.Salary)
	writeField(&b, "Job type", l.JobType)
	if l.PublishedAt != nil {
		writeField(&b, "Published", l.PublishedAt.Format("2006-01-02"))
	}
	writeField(&b, "Description", utils.TruncateForLog(l.Description, maxDescriptionRunes))

	b.WriteString("\nJSON Response:")
	return b.String()
}

func writeList(b *strings.Builder, name string, values []string) {
	if len(values) == 0 {
		fmt.Fprintf(b, "- %s: any\n", name)
		return
	}
	fmt.Fprintf(b, "- %s: %s\n", name, strings.Join(values, ", "))
}

func writeField(b *strings.Builder, name, value string) {
	value = strings.TrimSpace(value)
	if value == "" {
		value = "unknown"
	}
	fmt.Fprintf(b, "%s: %s\n", name, value)
}
