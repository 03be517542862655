package notify

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tejaschuahan/job-scraper-bot/internal/scraper"
)

func TestFormatSalary(t *testing.T) {
	t.Parallel()
	assert.Empty(t, FormatSalary(nil))
	assert.Equal(t, "$85,000", FormatSalary(&scraper.SalaryRange{Min: 85000, Max: 85000}))
	assert.Equal(t, "$80,000 - $100,000", FormatSalary(&scraper.SalaryRange{Min: 80000, Max: 100000}))
}

func TestPlainCard(t *testing.T) {
	t.Parallel()
	card := PlainCard(scraper.JobRecord{
		Title: "Data Analyst", Company: "Acme", URL: "https://x/1", Source: "remotive",
		Salary: &scraper.SalaryRange{Min: 90000, Max: 90000},
	}, "• SQL")
	assert.Contains(t, card, "New job: Data Analyst")
	assert.Contains(t, card, "Salary: $90,000")
	assert.Contains(t, card, "• SQL")
	assert.NotContains(t, card, "Location:")
}
