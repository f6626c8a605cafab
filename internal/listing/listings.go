package listing

import (
	"encoding/json"
	"fmt"
	"os"
)

// Listings is an ordered collection of listings.
type Listings struct {
	Items []*Listing `json:"items"`
}

func (ls *Listings) Len() int {
	return len(ls.Items)
}

// ReportBySource groups a printable summary of every listing under its source.
func (ls *Listings) ReportBySource() map[Source][]map[string]string {
	report := make(map[Source][]map[string]string)
	for _, l := range ls.Items {
		entry := map[string]string{
			"title":    l.Title,
			"company":  l.Company,
			"location": l.Location,
			"salary":   l.Salary,
			"url":      l.URL,
		}
		if l.PublishedAt != nil {
			entry["published"] = l.PublishedAt.Format("2006-01-02")
		}
		entry["completeness"] = fmt.Sprintf("%d/6", l.Completeness())
		report[l.Source] = append(report[l.Source], entry)
	}
	return report
}

func (ls *Listings) DumpToTmpFile() (string, error) {
	file, err := os.CreateTemp("", "listings_*.json")
	if err != nil {
		return "", err
	}
	defer file.Close()

	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	if err := enc.Encode(ls); err != nil {
		return "", err
	}
	return file.Name(), nil
}
