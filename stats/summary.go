package stats

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"exceptionforms/extraction"
	"exceptionforms/models"
)

// counter counts occurrences and remembers first-seen order so that ties
// resolve to the value seen first.
type counter struct {
	counts map[string]int
	order  []string
}

func newCounter() *counter {
	return &counter{counts: make(map[string]int)}
}

func (c *counter) add(v string) {
	v = strings.TrimSpace(v)
	if v == "" {
		return
	}
	if _, ok := c.counts[v]; !ok {
		c.order = append(c.order, v)
	}
	c.counts[v]++
}

func (c *counter) top() (string, int) {
	best, n := "N/A", 0
	for _, v := range c.order {
		if c.counts[v] > n {
			best, n = v, c.counts[v]
		}
	}
	return best, n
}

// Summarize computes the dashboard counters over the processed records in
// records. formType and mode are the filters the records were selected
// with. Pure mode reads the raw extraction payload and skips records
// without one; every other mode reads the stored, reviewer-edited columns
// and rows.
func Summarize(records []models.FormRecord, formType models.FormType, mode models.ExtractionMode) models.DashboardSummary {
	var (
		total     int
		minutes   int
		jobs      []string
		positions = newCounter()
		locations = newCounter()
		reasons   = make(map[string]int)
	)

	for i := range records {
		rec := &records[i]
		if rec.Status != models.StatusProcessed {
			continue
		}

		var raw map[string]any
		if mode == models.ModePure {
			if payload := rec.RawFor(mode); payload != nil {
				if err := json.Unmarshal(payload, &raw); err != nil {
					raw = nil
				}
			}
			if raw == nil {
				continue
			}
		}
		total++

		var f facts
		if rec.FormType == models.FormTypeSupervisor {
			f = supervisorFacts(rec, raw)
		} else {
			f = hourlyFacts(rec, raw)
		}

		minutes += f.minutes
		jobs = append(jobs, f.jobs...)
		positions.add(f.position)
		for _, loc := range f.locations {
			locations.add(loc)
		}
		for _, r := range f.reasons {
			reasons[r]++
		}
	}

	unique := make(map[string]struct{}, len(jobs))
	for _, j := range jobs {
		unique[j] = struct{}{}
	}

	summary := models.DashboardSummary{
		TotalForms:           total,
		TotalOvertime:        FormatMinutes(minutes),
		TotalOvertimeMinutes: minutes,
		TotalJobNumbers:      len(jobs),
		UniqueJobNumbers:     len(unique),
	}
	summary.MostRelevantPosition.Position, summary.MostRelevantPosition.Count = positions.top()
	summary.MostRelevantLocation.Location, summary.MostRelevantLocation.Count = locations.top()

	if formType != models.FormTypeHourly {
		top := models.ReasonCount{Reason: "N/A"}
		for _, r := range extraction.ReasonLabels {
			if reasons[r.Field] > top.Count {
				top = models.ReasonCount{Reason: r.Label, Count: reasons[r.Field]}
			}
		}
		summary.MostCommonReason = &top
	}
	return summary
}

type facts struct {
	minutes   int
	jobs      []string
	position  string
	locations []string
	reasons   []string
}

func supervisorFacts(rec *models.FormRecord, raw map[string]any) facts {
	var f facts
	f.position = "Supervisor"
	if rec.Title != "" {
		f.position = rec.Title
	}

	if raw == nil {
		f.minutes = ParseOvertime(rec.OvertimeHours)
		if rec.JobNumber != "" {
			f.jobs = []string{rec.JobNumber}
		}
		f.locations = distinct(rec.ReportLoc, rec.OvertimeLocation)
		f.reasons = rec.Reasons()
		return f
	}

	f.minutes = ParseOvertime(extraction.Lookup(raw, extraction.OvertimeKeys...))
	if job := extraction.Lookup(raw, extraction.JobNumberKeys...); job != "" {
		f.jobs = []string{job}
	}
	if title := extraction.Lookup(raw, extraction.TitleKeys...); title != "" && rec.Title == "" {
		f.position = title
	}
	if loc := extraction.Lookup(raw, extraction.LocationKeys...); loc != "" {
		f.locations = []string{loc}
	} else {
		f.locations = distinct(
			extraction.Lookup(raw, extraction.ReportLocKeys...),
			extraction.Lookup(raw, extraction.OvertimeLocKeys...),
		)
	}
	if text := extraction.Lookup(raw, extraction.ReasonTextKeys...); text != "" {
		f.reasons = []string{extraction.ClassifyReason(text)}
	} else {
		f.reasons = rec.Reasons()
	}
	return f
}

func hourlyFacts(rec *models.FormRecord, raw map[string]any) facts {
	f := facts{position: rec.Title}

	if raw == nil {
		for _, row := range rec.Rows {
			f.add(row.OvertimeHH, row.OvertimeMM, row.TAJobNo, row.LineLocation)
		}
		return f
	}

	if title := extraction.Lookup(raw, extraction.TitleKeys...); title != "" {
		f.position = title
	}

	rows, _ := raw["rows"].([]any)
	for _, item := range rows {
		row, ok := item.(map[string]any)
		if !ok {
			continue
		}
		f.add(
			extraction.Lookup(row, "overtime_hh"),
			extraction.Lookup(row, "overtime_mm"),
			extraction.Lookup(row, "ta_job_no", "job_number", "job"),
			extraction.Lookup(row, extraction.LocationKeys...),
		)
	}
	if len(rows) == 0 {
		f.minutes = ParseOvertime(extraction.Lookup(raw, extraction.OvertimeKeys...))
		if job := extraction.Lookup(raw, extraction.JobNumberKeys...); job != "" {
			f.jobs = append(f.jobs, job)
		}
		if loc := extraction.Lookup(raw, extraction.LocationKeys...); loc != "" {
			f.locations = append(f.locations, loc)
		}
	}
	return f
}

func (f *facts) add(hh, mm, job, location string) {
	f.minutes += atoi(hh)*60 + atoi(mm)
	if job = strings.TrimSpace(job); job != "" {
		f.jobs = append(f.jobs, job)
	}
	if location = strings.TrimSpace(location); location != "" {
		f.locations = append(f.locations, location)
	}
}

func distinct(values ...string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v != "" && !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}

func atoi(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0
	}
	return n
}

// ParseOvertime converts an overtime value to minutes. Accepted forms are
// whole or decimal hours ("3", "1.5"), "H:MM" and sums such as "1:30 + 2".
// Unparseable values count as zero.
func ParseOvertime(s string) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}

	total := 0
	for _, part := range strings.Split(s, "+") {
		m, ok := parseDuration(strings.TrimSpace(part))
		if !ok {
			return 0
		}
		total += m
	}
	return total
}

func parseDuration(s string) (int, bool) {
	if h, m, found := strings.Cut(s, ":"); found {
		hours, err1 := strconv.Atoi(strings.TrimSpace(h))
		mins, err2 := strconv.Atoi(strings.TrimSpace(m))
		if err1 != nil || err2 != nil {
			return 0, false
		}
		return hours*60 + mins, true
	}
	hours, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return int(math.Round(hours * 60)), true
}

// FormatMinutes renders minutes as "Xh Ym".
func FormatMinutes(minutes int) string {
	return fmt.Sprintf("%dh %dm", minutes/60, minutes%60)
}
