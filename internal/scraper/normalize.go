package scraper

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/tejaschuahan/job-scraper-bot/internal/hash/sha256"
)

// ErrIncompleteRecord is returned by Normalize when a required field is empty.
var ErrIncompleteRecord = errors.New("record requires title, company and url")

var (
	nonWord    = regexp.MustCompile(`[^\p{L}\p{N}\s]+`)
	digitGroup = regexp.MustCompile(`\d+(?:\.\d+)?`)
)

// Normalize trims and collapses whitespace in the display fields and verifies
// that title, company and url are present.
func Normalize(r JobRecord) (JobRecord, error) {
	r.Title = collapse(r.Title)
	r.Company = collapse(r.Company)
	r.URL = strings.TrimSpace(r.URL)
	r.Location = collapse(r.Location)
	r.Description = strings.TrimSpace(r.Description)
	r.JobType = collapse(r.JobType)
	if r.Title == "" || r.Company == "" || r.URL == "" {
		return r, ErrIncompleteRecord
	}
	return r, nil
}

// Fingerprint returns the SHA-256 hex digest of the lower-cased,
// whitespace-normalized (title, company, url) triple.
func Fingerprint(r JobRecord) string {
	key := strings.ToLower(collapse(r.Title)) + "||" +
		strings.ToLower(collapse(r.Company)) + "||" +
		strings.ToLower(strings.Join(strings.Fields(r.URL), ""))
	return sha256.Sum([]byte(key))
}

// Fold lower-cases s and strips combining marks so "Café" matches "cafe".
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(out)
}

// ParseSalary extracts an annual salary band from free text such as
// "$80k - $100k" or "25/hour". It returns nil when no number is present.
func ParseSalary(text string) *SalaryRange {
	s := strings.ToLower(strings.TrimSpace(text))
	if s == "" {
		return nil
	}
	s = strings.NewReplacer("$", "", ",", "", "€", "", "£", "", "₹", "").Replace(s)
	matches := digitGroup.FindAllStringIndex(s, 2)
	if len(matches) == 0 {
		return nil
	}
	values := make([]float64, 0, len(matches))
	for _, m := range matches {
		v, err := strconv.ParseFloat(s[m[0]:m[1]], 64)
		if err != nil {
			continue
		}
		if m[1] < len(s) && s[m[1]] == 'k' {
			v *= 1000
		}
		values = append(values, v)
	}
	if len(values) == 0 {
		return nil
	}
	if strings.Contains(s, "hour") || strings.Contains(s, "hr") {
		for i := range values {
			values[i] *= 40 * 52
		}
	}
	r := SalaryRange{Min: values[0], Max: values[0]}
	if len(values) == 2 {
		r.Max = values[1]
		if r.Max < r.Min {
			r.Min, r.Max = r.Max, r.Min
		}
	}
	return &r
}

// IsSimilar reports whether two postings look like the same job: same company
// and at least 70% word overlap between their titles.
func IsSimilar(a, b JobRecord) bool {
	if !strings.EqualFold(collapse(a.Company), collapse(b.Company)) {
		return false
	}
	wa := titleWords(a.Title)
	wb := titleWords(b.Title)
	if len(wa) == 0 || len(wb) == 0 {
		return false
	}
	shared := 0
	for w := range wa {
		if _, ok := wb[w]; ok {
			shared++
		}
	}
	smaller := min(len(wa), len(wb))
	return float64(shared)/float64(smaller) > 0.7
}

func titleWords(title string) map[string]struct{} {
	clean := nonWord.ReplaceAllString(strings.ToLower(title), "")
	out := make(map[string]struct{})
	for _, w := range strings.Fields(clean) {
		out[w] = struct{}{}
	}
	return out
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
