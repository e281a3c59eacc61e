// Package filter narrows an already fetched dashboard listing. It never
// touches the server-computed summary counters.
package filter

import (
	"strings"
	"time"

	"exceptionforms/models"
)

// Filter holds the list filters. Zero values match everything.
type Filter struct {
	Search     string
	Status     models.Status
	FormType   models.FormType
	Employee   string
	PassNumber string
	Title      string
	Location   string
	JobNumber  string
	From       time.Time
	To         time.Time
}

// searchable lists the fields the free-text search looks at.
func searchable(item *models.FormListItem) []string {
	return []string{
		item.PassNumber,
		item.Title,
		item.EmployeeName,
		item.ActualOTDate,
		item.Div,
		item.Comments,
		item.FileName,
		item.Location,
		item.JobNumber,
		string(item.Status),
		string(item.FormType),
	}
}

// Match reports whether item passes every set filter.
func (f Filter) Match(item *models.FormListItem) bool {
	if f.FormType != "" && !matchFormType(f.FormType, item.FormType) {
		return false
	}
	if f.Status != "" && !strings.EqualFold(string(f.Status), string(item.Status)) {
		return false
	}
	if !contains(item.EmployeeName, f.Employee) ||
		!contains(item.PassNumber, f.PassNumber) ||
		!contains(item.Title, f.Title) ||
		!contains(item.Location, f.Location) ||
		!contains(item.JobNumber, f.JobNumber) {
		return false
	}
	if !f.From.IsZero() && item.UploadDate.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && item.UploadDate.After(f.To) {
		return false
	}

	if q := strings.TrimSpace(f.Search); q != "" {
		for _, v := range searchable(item) {
			if contains(v, q) {
				return true
			}
		}
		return false
	}
	return true
}

// Apply returns the items that match f, preserving order.
func (f Filter) Apply(items []models.FormListItem) []models.FormListItem {
	out := make([]models.FormListItem, 0, len(items))
	for i := range items {
		if f.Match(&items[i]) {
			out = append(out, items[i])
		}
	}
	return out
}

// matchFormType treats a missing form type as hourly.
func matchFormType(want, got models.FormType) bool {
	if got == "" {
		got = models.FormTypeHourly
	}
	return want == got
}

func contains(value, needle string) bool {
	needle = strings.TrimSpace(needle)
	if needle == "" {
		return true
	}
	return strings.Contains(strings.ToLower(value), strings.ToLower(needle))
}
