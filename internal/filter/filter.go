// Package filter evaluates job records against a FilterSpec. Evaluation is a
// pure function of its inputs.
package filter

import (
	"strings"

	"github.com/tejaschuahan/job-scraper-bot/internal/scraper"
)

// DefaultRemoteIndicators are the location substrings that mark remote work
// when a spec does not configure its own.
var DefaultRemoteIndicators = []string{"remote", "work from home", "wfh", "telecommute", "anywhere"}

// Reason names the first check a record failed.
type Reason string

// Rejection reasons, in evaluation order.
const (
	Accepted         Reason = ""
	NoIncludeKeyword Reason = "include_keywords"
	ExcludedKeyword  Reason = "exclude_keywords"
	LocationMismatch Reason = "locations"
	ExcludedLocation Reason = "exclude_locations"
	NotRemote        Reason = "remote_only"
	SalaryOutOfRange Reason = "salary"
	JobTypeMismatch  Reason = "job_types"
	LevelMismatch    Reason = "experience_levels"
)

// Accepts reports whether record passes spec.
func Accepts(record scraper.JobRecord, spec scraper.FilterSpec) bool {
	return Evaluate(record, spec) == Accepted
}

// Evaluate runs the checks in order and returns the first failing one, or
// Accepted. Text comparisons fold case and diacritics.
func Evaluate(record scraper.JobRecord, spec scraper.FilterSpec) Reason {
	text := scraper.Fold(record.Title + " " + record.Description)
	location := scraper.Fold(record.Location)

	if len(spec.IncludeKeywords) > 0 && !containsAny(text, spec.IncludeKeywords) {
		return NoIncludeKeyword
	}
	if containsAny(text, spec.ExcludeKeywords) {
		return ExcludedKeyword
	}
	if len(spec.Locations) > 0 && !containsAny(location, spec.Locations) {
		return LocationMismatch
	}
	if containsAny(location, spec.ExcludeLocations) {
		return ExcludedLocation
	}
	if spec.RemoteOnly {
		indicators := spec.RemoteIndicators
		if len(indicators) == 0 {
			indicators = DefaultRemoteIndicators
		}
		if !containsAny(location, indicators) {
			return NotRemote
		}
	}
	// Unknown salary passes.
	if record.Salary != nil && (spec.MinSalary > 0 || spec.MaxSalary > 0) {
		if !record.Salary.Within(spec.MinSalary, spec.MaxSalary) {
			return SalaryOutOfRange
		}
	}
	if len(spec.JobTypes) > 0 && !containsAny(scraper.Fold(record.JobType)+" "+text, spec.JobTypes) {
		return JobTypeMismatch
	}
	if len(spec.ExperienceLevels) > 0 && !containsAny(text, spec.ExperienceLevels) {
		return LevelMismatch
	}
	return Accepted
}

func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		if strings.Contains(haystack, scraper.Fold(n)) {
			return true
		}
	}
	return false
}

// Merge overlays user onto defaults: non-empty lists and set bounds in user
// win, RemoteOnly is true if either sets it.
func Merge(defaults, user scraper.FilterSpec) scraper.FilterSpec {
	out := defaults
	if len(user.IncludeKeywords) > 0 {
		out.IncludeKeywords = user.IncludeKeywords
	}
	if len(user.ExcludeKeywords) > 0 {
		out.ExcludeKeywords = user.ExcludeKeywords
	}
	if len(user.Locations) > 0 {
		out.Locations = user.Locations
	}
	if len(user.ExcludeLocations) > 0 {
		out.ExcludeLocations = user.ExcludeLocations
	}
	if len(user.RemoteIndicators) > 0 {
		out.RemoteIndicators = user.RemoteIndicators
	}
	if len(user.JobTypes) > 0 {
		out.JobTypes = user.JobTypes
	}
	if len(user.ExperienceLevels) > 0 {
		out.ExperienceLevels = user.ExperienceLevels
	}
	if user.MinSalary > 0 {
		out.MinSalary = user.MinSalary
	}
	if user.MaxSalary > 0 {
		out.MaxSalary = user.MaxSalary
	}
	out.RemoteOnly = defaults.RemoteOnly || user.RemoteOnly
	return out
}
