package session

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// DefaultMaxQueries caps the expanded query set.
const DefaultMaxQueries = 5

type roleFamily struct {
	role    string
	related []string
}

// roleFamilies is ordered; substring matching takes the first hit.
var roleFamilies = []roleFamily{
	{"data analyst", []string{"data analyst", "business analyst", "business intelligence analyst", "bi analyst", "insights analyst", "reporting analyst", "analytics engineer"}},
	{"data scientist", []string{"data scientist", "machine learning engineer", "ai engineer", "research scientist", "quantitative analyst", "decision scientist", "statistical analyst"}},
	{"data engineer", []string{"data engineer", "analytics engineer", "big data engineer", "etl developer", "data platform engineer", "database engineer"}},
	{"business analyst", []string{"business analyst", "data analyst", "product analyst", "operations analyst", "process analyst", "systems analyst", "functional analyst"}},
	{"financial analyst", []string{"financial analyst", "finance analyst", "investment analyst", "risk analyst", "credit analyst", "quantitative analyst", "treasury analyst"}},
	{"product analyst", []string{"product analyst", "product manager", "business analyst", "data analyst", "growth analyst", "metrics analyst"}},
	{"marketing analyst", []string{"marketing analyst", "digital marketing analyst", "market research analyst", "growth analyst", "performance analyst", "seo analyst"}},
	{"operations analyst", []string{"operations analyst", "business analyst", "process analyst", "supply chain analyst", "logistics analyst", "operational excellence analyst"}},
	{"power bi developer", []string{"power bi developer", "business intelligence developer", "bi developer", "tableau developer", "data visualization specialist", "reporting developer"}},
	{"tableau developer", []string{"tableau developer", "power bi developer", "business intelligence developer", "data visualization specialist", "bi developer", "analytics developer"}},
}

// SuggestedRoles lists the roles with a known expansion, in display form.
func SuggestedRoles() []string {
	out := make([]string, 0, len(roleFamilies))
	for _, f := range roleFamilies {
		out = append(out, DisplayRole(f.role))
	}
	return out
}

// Expand returns the literal role followed by related queries, at most max
// entries. Known roles use the expansion table, partial matches use the
// first family whose name contains or is contained in the role, anything
// else gets simple variations.
func Expand(role string, max int) []string {
	if max <= 0 {
		max = DefaultMaxQueries
	}
	role = strings.Join(strings.Fields(strings.ToLower(role)), " ")
	if role == "" {
		return nil
	}

	var candidates []string
	for _, f := range roleFamilies {
		if f.role == role {
			candidates = f.related
			break
		}
	}
	if candidates == nil {
		for _, f := range roleFamilies {
			if strings.Contains(role, f.role) || strings.Contains(f.role, role) {
				candidates = append([]string{role}, f.related...)
				break
			}
		}
	}
	if candidates == nil {
		candidates = variations(role)
	}

	out := make([]string, 0, max)
	seen := make(map[string]struct{}, max)
	for _, q := range append([]string{role}, candidates...) {
		if _, dup := seen[q]; dup {
			continue
		}
		seen[q] = struct{}{}
		out = append(out, q)
		if len(out) == max {
			break
		}
	}
	return out
}

func variations(role string) []string {
	out := []string{role}
	if strings.Contains(role, "analyst") {
		if !strings.Contains(role, "data") {
			out = append(out, "data "+role)
		}
		if !strings.Contains(role, "business") {
			out = append(out, "business "+role)
		}
	}
	if strings.Contains(role, "engineer") && !strings.Contains(role, "data") {
		out = append(out, "data "+role)
	}
	if strings.Contains(role, "developer") {
		out = append(out, strings.ReplaceAll(role, "developer", "engineer"))
	}
	return out
}

// DisplayRole title-cases a role for messages ("data analyst" → "Data Analyst").
// A Caser holds state, so each call builds its own.
func DisplayRole(role string) string {
	return cases.Title(language.English).String(role)
}
