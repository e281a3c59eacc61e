package extraction

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Key variants used for flexible lookups against raw extraction payloads.
var (
	PassNumberKeys = []string{"pass_number", "pass", "pass_no", "pass no", "passnumber", "pass number"}
	EmployeeKeys   = []string{"employee_name", "employee name", "name", "employee"}
	TitleKeys      = []string{"title", "position", "job_title", "role", "job title", "employee_title", "employee title"}
	OvertimeKeys   = []string{
		"overtime_hours", "overtime", "hours", "ot_hours", "ot", "total_overtime", "overtime total",
		"ot total", "ot time", "total ot", "total_ot", "ot time (hh:mm)", "overtime (hh:mm)",
	}
	JobNumberKeys = []string{
		"job_number", "job no", "job_no", "job", "job#", "job #", "job number", "ta_job_no", "ta job no",
		"jobnum", "jobnumber", "job id", "jobid",
	}
	LocationKeys = []string{"line_location", "location", "line/location", "line location"}
	ReportLocKeys = []string{
		"report_loc", "report loc.", "report location", "reportloc", "report station", "reporting location",
	}
	OvertimeLocKeys = []string{
		"overtime_location", "overtime location", "overtimelocation", "ot_location", "otloc", "ot location",
		"ot station", "overtime station",
	}
	DateOfOvertimeKeys = []string{"date_of_overtime", "date of overtime", "date"}
	ActualOTDateKeys   = []string{"actual_ot_date", "actual ot date", "ot date"}
	DivKeys            = []string{"div", "division"}
	CommentsKeys       = []string{"comments", "comment", "remarks"}
	ReasonTextKeys     = []string{"reason_for_overtime", "reason for overtime", "reason"}
)

// normalizeKey reduces an extracted key to the form used by keyMap.
func normalizeKey(k string) string {
	switch k {
	case "RC#":
		return "rc"
	case "REPORT LOC.":
		return "report_loc"
	case "S/M":
		return "sm"
	}
	r := strings.NewReplacer(" ", "_", ".", "", "#", "", "/", "_", "'", "", "-", "_")
	return strings.Trim(r.Replace(strings.ToLower(strings.TrimSpace(k))), "_")
}

// lookupKey is the looser normalisation used by Lookup.
func lookupKey(k string) string {
	r := strings.NewReplacer(" ", "", "_", "", "-", "")
	return r.Replace(strings.ToLower(k))
}

// Lookup returns the first non-empty value found in data under any of keys,
// comparing keys case-insensitively and ignoring spaces, underscores and
// hyphens.
func Lookup(data map[string]any, keys ...string) string {
	if len(data) == 0 {
		return ""
	}
	norm := make(map[string]any, len(data))
	for k, v := range data {
		nk := lookupKey(k)
		if _, seen := norm[nk]; !seen {
			norm[nk] = v
		}
	}
	for _, key := range keys {
		if v, ok := norm[lookupKey(key)]; ok {
			if s := Stringify(v); s != "" {
				return s
			}
		}
	}
	return ""
}

// Stringify renders an extracted value as the text stored in a form field.
func Stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		s := strings.TrimSpace(t)
		if s == "None" || s == "null" {
			return ""
		}
		return s
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	case []any:
		parts := make([]string, 0, len(t))
		for _, item := range t {
			if s := Stringify(item); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ", ")
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

func truthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case float64:
		return t != 0
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "true", "1", "yes", "on", "x", "checked":
			return true
		}
	}
	return false
}

// keyMap maps normalised extracted keys to form and row field names.
var keyMap = map[string]string{
	"reg":                  "reg",
	"reg_assignment":       "regular_assignment",
	"regular_assignment":   "regular_assignment",
	"assignment":           "pass_number",
	"pass":                 "pass_number",
	"pass_number":          "pass_number",
	"passnumber":           "pass_number",
	"employee_pass":        "pass_number",
	"employee_pass_number": "pass_number",
	"rc":                   "rc_number",
	"rc_number":            "rc_number",
	"rc_no":                "rc_number",
	"rcnumber":             "rc_number",
	"employee_rc":          "rc_number",
	"employee_rc_number":   "rc_number",
	"employee_name":        "employee_name",
	"employeename":         "employee_name",
	"name":                 "employee_name",
	"employee_title":       "title",
	"title":                "title",
	"job":                  "job_number",
	"job_number":           "job_number",
	"job_no":               "job_number",
	"jobnumber":            "job_number",
	"rbg":                  "job_number",
	"overtime_location":    "overtime_location",
	"overtimelocation":     "overtime_location",
	"report_loc":           "report_loc",
	"reportloc":            "report_loc",
	"report_location":      "report_loc",
	"reportlocation":       "report_loc",
	"report_time":          "report_time",
	"reporttime":           "report_time",
	"relief_time":          "relief_time",
	"relieftime":           "relief_time",
	"overtime_hours":       "overtime_hours",
	"overtimehours":        "overtime_hours",
	"date_of_overtime":     "date_of_overtime",
	"w_t":                  "date_of_overtime",
	"rdos":                 "rdos",
	"rdo_s":                "rdos",
	"rduos":                "rdos",
	"sm":                   "rdos",
	"employee_rdo":         "rdos",
	"comments":             "comments",
	"acct":                 "acct_number",
	"acct_number":          "acct_number",
	"account_number":       "acct_number",
	"accountnumber":        "acct_number",
	"amount":               "amount",
	"entered_into_uts":     "entered_into_uts",

	"supervisors_signature":                     "superintendent_authorization_signature",
	"superintendent_authorization_signature":    "superintendent_authorization_signature",
	"superintendents_authorization___signature": "superintendent_authorization_signature",
	"superintendent_authorization_pass":         "superintendent_authorization_pass",
	"superintendents_authorization___pass":      "superintendent_authorization_pass",
	"superintendent_authorization_date":         "superintendent_authorization_date",
	"superintendents_authorization___date":      "superintendent_authorization_date",

	"report":             "report",
	"relief":             "relief",
	"todays_date":        "todays_date",
	"actual_ot_date":     "actual_ot_date",
	"div":                "div",
	"oto":                "oto",
	"oto_amount_saved":   "oto_amount_saved",
	"entered_in_uts":     "entered_in_uts",
	"supv_name":          "supervisor_name",
	"supervisor_name":    "supervisor_name",
	"pass_no":            "supervisor_pass_no",
	"supervisor_pass_no": "supervisor_pass_no",

	"code":                   "code",
	"exception_code":         "code",
	"code_description":       "code_description",
	"line_location":          "line_location",
	"line_loc":               "line_location",
	"run_no":                 "run_no",
	"exception_time_from_hh": "exception_time_from_hh",
	"exception_time_from_mm": "exception_time_from_mm",
	"exception_time_to_hh":   "exception_time_to_hh",
	"exception_time_to_mm":   "exception_time_to_mm",
	"overtime_hh":            "overtime_hh",
	"overtime_mm":            "overtime_mm",
	"bonus_hh":               "bonus_hh",
	"bonus_mm":               "bonus_mm",
	"nite_diff_hh":           "nite_diff_hh",
	"nite_diff_mm":           "nite_diff_mm",
	"ta_job_no":              "ta_job_no",
}

// checkboxMap maps reason checkbox keys to reason fields.
var checkboxMap = map[string]string{
	"rdo":                "reason_rdo",
	"absentee_coverage":  "reason_absentee_coverage",
	"no_lunch":           "reason_no_lunch",
	"early_report":       "reason_early_report",
	"late_clear":         "reason_late_clear",
	"save_as_oto":        "reason_save_as_oto",
	"capital_support_go": "reason_capital_support_go",
	"other":              "reason_other",
}

// checkboxField resolves a reason name in any casing ("noLunch",
// "no lunch", "NO_LUNCH") to its reason field.
func checkboxField(name string) (string, bool) {
	compact := strings.ReplaceAll(normalizeKey(name), "_", "")
	for k, field := range checkboxMap {
		if strings.ReplaceAll(k, "_", "") == compact {
			return field, true
		}
	}
	return "", false
}
