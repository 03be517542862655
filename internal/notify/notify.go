// Package notify holds the pieces shared by Notifier implementations.
package notify

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/tejaschuahan/job-scraper-bot/internal/scraper"
)

// EnrichedDeliverer is implemented by notifiers that can attach an
// enrichment summary to the job card.
type EnrichedDeliverer interface {
	DeliverEnriched(ctx context.Context, userID string, record scraper.JobRecord, summary string) error
}

var printer = message.NewPrinter(language.English)

// FormatSalary renders a band as "$80,000 - $100,000", or "" for nil.
func FormatSalary(r *scraper.SalaryRange) string {
	if r == nil {
		return ""
	}
	if r.Min == r.Max {
		return printer.Sprintf("$%.0f", r.Min)
	}
	return printer.Sprintf("$%.0f - $%.0f", r.Min, r.Max)
}

// PlainCard renders a record as unformatted text.
func PlainCard(r scraper.JobRecord, summary string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "New job: %s\n", r.Title)
	fmt.Fprintf(&b, "Company: %s\n", r.Company)
	if r.Location != "" {
		fmt.Fprintf(&b, "Location: %s\n", r.Location)
	}
	if s := FormatSalary(r.Salary); s != "" {
		fmt.Fprintf(&b, "Salary: %s\n", s)
	}
	fmt.Fprintf(&b, "Source: %s\n", r.Source)
	if summary != "" {
		fmt.Fprintf(&b, "\n%s\n", summary)
	}
	fmt.Fprintf(&b, "\n%s", r.URL)
	return b.String()
}
