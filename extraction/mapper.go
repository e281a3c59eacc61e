package extraction

import (
	"sort"
	"strings"

	"exceptionforms/models"
)

func formFieldPtrs(f *models.FormFields) map[string]*string {
	return map[string]*string{
		"pass_number":                            &f.PassNumber,
		"title":                                  &f.Title,
		"employee_name":                          &f.EmployeeName,
		"rdos":                                   &f.RDOs,
		"actual_ot_date":                         &f.ActualOTDate,
		"div":                                    &f.Div,
		"comments":                               &f.Comments,
		"supervisor_name":                        &f.SupervisorName,
		"supervisor_pass_no":                     &f.SupervisorPassNo,
		"oto":                                    &f.OTO,
		"oto_amount_saved":                       &f.OTOAmountSaved,
		"entered_in_uts":                         &f.EnteredInUTS,
		"regular_assignment":                     &f.RegularAssignment,
		"report":                                 &f.Report,
		"relief":                                 &f.Relief,
		"todays_date":                            &f.TodaysDate,
		"reg":                                    &f.Reg,
		"superintendent_authorization_signature": &f.SuperintendentAuthorizationSignature,
		"superintendent_authorization_pass":      &f.SuperintendentAuthorizationPass,
		"superintendent_authorization_date":      &f.SuperintendentAuthorizationDate,
		"entered_into_uts":                       &f.EnteredIntoUTS,
		"overtime_hours":                         &f.OvertimeHours,
		"report_loc":                             &f.ReportLoc,
		"overtime_location":                      &f.OvertimeLocation,
		"report_time":                            &f.ReportTime,
		"relief_time":                            &f.ReliefTime,
		"date_of_overtime":                       &f.DateOfOvertime,
		"job_number":                             &f.JobNumber,
		"rc_number":                              &f.RCNumber,
		"acct_number":                            &f.AcctNumber,
		"amount":                                 &f.Amount,
	}
}

func rowFieldPtrs(r *models.FormRow) map[string]*string {
	return map[string]*string{
		"code":                   &r.Code,
		"code_description":       &r.CodeDescription,
		"line_location":          &r.LineLocation,
		"run_no":                 &r.RunNo,
		"exception_time_from_hh": &r.ExceptionTimeFromHH,
		"exception_time_from_mm": &r.ExceptionTimeFromMM,
		"exception_time_to_hh":   &r.ExceptionTimeToHH,
		"exception_time_to_mm":   &r.ExceptionTimeToMM,
		"overtime_hh":            &r.OvertimeHH,
		"overtime_mm":            &r.OvertimeMM,
		"bonus_hh":               &r.BonusHH,
		"bonus_mm":               &r.BonusMM,
		"nite_diff_hh":           &r.NiteDiffHH,
		"nite_diff_mm":           &r.NiteDiffMM,
		"ta_job_no":              &r.TAJobNo,
	}
}

// MapEntry converts one raw extracted form into mapped header fields and
// rows. Keys are visited in sorted order and the first value found for a
// field wins.
func MapEntry(data map[string]any, formType models.FormType) (models.FormFields, []models.FormRow) {
	var fields models.FormFields
	var flatRow models.FormRow
	formPtrs := formFieldPtrs(&fields)
	rowPtrs := rowFieldPtrs(&flatRow)

	set := func(target, value string) {
		if value == "" {
			return
		}
		if p, ok := formPtrs[target]; ok && *p == "" {
			*p = value
			return
		}
		if p, ok := rowPtrs[target]; ok && *p == "" {
			*p = value
		}
	}

	flat := flatten(data, "")
	keys := make([]string, 0, len(flat))
	for k := range flat {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		v := flat[k]
		norm := normalizeKey(k)

		switch {
		case norm == "reason_for_overtime" || norm == "reasons":
			applyReasonList(&fields, v)
		case norm == "reason":
			if text := Stringify(v); text != "" {
				fields.SetReason(ClassifyReason(text), true)
			}
		case strings.HasPrefix(norm, "reason_for_overtime_"):
			if field, ok := checkboxField(strings.TrimPrefix(norm, "reason_for_overtime_")); ok && truthy(v) {
				fields.SetReason(field, true)
			}
		case strings.HasPrefix(norm, "reasonforovertime_"):
			if field, ok := checkboxField(strings.TrimPrefix(norm, "reasonforovertime_")); ok && truthy(v) {
				fields.SetReason(field, true)
			}
		case strings.HasPrefix(norm, "reason_"):
			if truthy(v) {
				fields.SetReason(norm, true)
			}
		case norm == "date":
			if formType == models.FormTypeSupervisor {
				set("date_of_overtime", Stringify(v))
			} else {
				set("todays_date", Stringify(v))
			}
		case norm == "superintendents_authorization" || norm == "superintendent_authorization":
			pass, date, _ := strings.Cut(Stringify(v), " ")
			set("superintendent_authorization_pass", pass)
			set("superintendent_authorization_date", strings.TrimSpace(date))
		default:
			if target, ok := keyMap[norm]; ok {
				set(target, Stringify(v))
			} else if field, ok := checkboxMap[norm]; ok && truthy(v) {
				fields.SetReason(field, true)
			}
		}
	}

	// Dashboard fields are filled from looser key variants when the
	// strict mapping found nothing.
	set("overtime_hours", Lookup(data, OvertimeKeys...))
	set("job_number", Lookup(data, JobNumberKeys...))
	set("title", Lookup(data, TitleKeys...))
	set("report_loc", Lookup(data, ReportLocKeys...))
	set("overtime_location", Lookup(data, OvertimeLocKeys...))

	if formType == models.FormTypeSupervisor {
		return fields, nil
	}

	rows := mapRows(data)
	if len(rows) == 0 && !rowEmpty(flatRow) {
		rows = []models.FormRow{flatRow}
	}
	return fields, rows
}

func applyReasonList(fields *models.FormFields, v any) {
	var reasons []any
	switch t := v.(type) {
	case []any:
		reasons = t
	case string:
		reasons = []any{t}
	default:
		return
	}
	for _, r := range reasons {
		text := Stringify(r)
		if text == "" {
			continue
		}
		if field, ok := checkboxField(text); ok {
			fields.SetReason(field, true)
			continue
		}
		fields.SetReason(ClassifyReason(text), true)
	}
}

func mapRows(data map[string]any) []models.FormRow {
	var list []any
	for _, key := range []string{"rows", "exception_rows", "exceptions"} {
		if l, ok := data[key].([]any); ok {
			list = l
			break
		}
	}

	var rows []models.FormRow
	for _, item := range list {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		var row models.FormRow
		ptrs := rowFieldPtrs(&row)
		for k, v := range obj {
			target, ok := keyMap[normalizeKey(k)]
			if !ok {
				continue
			}
			if p, ok := ptrs[target]; ok && *p == "" {
				*p = Stringify(v)
			}
		}
		if !rowEmpty(row) {
			rows = append(rows, row)
		}
	}
	return rows
}

func rowEmpty(r models.FormRow) bool {
	for _, p := range rowFieldPtrs(&r) {
		if strings.TrimSpace(*p) != "" {
			return false
		}
	}
	return true
}

// flatten joins nested object keys with "_". Lists of objects (rows,
// entries) are left to the callers that understand them.
func flatten(data map[string]any, prefix string) map[string]any {
	out := make(map[string]any, len(data))
	for k, v := range data {
		key := k
		if prefix != "" {
			key = prefix + "_" + k
		}
		switch t := v.(type) {
		case map[string]any:
			if strings.HasPrefix(normalizeKey(k), "superintendent") {
				for sub, sv := range t {
					out["superintendent_authorization_"+sub] = sv
				}
				continue
			}
			for fk, fv := range flatten(t, key) {
				out[fk] = fv
			}
		case []any:
			if len(t) > 0 {
				if _, isObj := t[0].(map[string]any); isObj {
					continue
				}
			}
			out[key] = v
		default:
			out[key] = v
		}
	}
	return out
}

// ClassifyReason buckets free text into one of the reason fields.
func ClassifyReason(text string) string {
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "rdo"):
		return "reason_rdo"
	case strings.Contains(lower, "absentee") || strings.Contains(lower, "coverage"):
		return "reason_absentee_coverage"
	case strings.Contains(lower, "lunch"):
		return "reason_no_lunch"
	case strings.Contains(lower, "early") && strings.Contains(lower, "report"):
		return "reason_early_report"
	case strings.Contains(lower, "late") && strings.Contains(lower, "clear"):
		return "reason_late_clear"
	case strings.Contains(lower, "oto"):
		return "reason_save_as_oto"
	case strings.Contains(lower, "capital") || strings.Contains(lower, "support"):
		return "reason_capital_support_go"
	}
	return "reason_other"
}

// ReasonLabels gives the display label of each reason field, in form order.
var ReasonLabels = []struct {
	Field string
	Label string
}{
	{"reason_rdo", "RDO"},
	{"reason_absentee_coverage", "Absentee Coverage"},
	{"reason_no_lunch", "No Lunch"},
	{"reason_early_report", "Early Report"},
	{"reason_late_clear", "Late Clear"},
	{"reason_save_as_oto", "Save as OTO"},
	{"reason_capital_support_go", "Capital Support / GO"},
	{"reason_other", "Other"},
}

// Overlay copies header values found in a raw payload over fields. It is
// used to present a record in pure mode.
func Overlay(fields *models.FormFields, raw map[string]any) {
	if len(raw) == 0 {
		return
	}
	put := func(dst *string, keys []string) {
		if v := Lookup(raw, keys...); v != "" {
			*dst = v
		}
	}
	put(&fields.PassNumber, PassNumberKeys)
	put(&fields.Title, TitleKeys)
	put(&fields.EmployeeName, EmployeeKeys)
	put(&fields.ActualOTDate, ActualOTDateKeys)
	put(&fields.DateOfOvertime, DateOfOvertimeKeys)
	put(&fields.Div, DivKeys)
	put(&fields.Comments, CommentsKeys)
	put(&fields.OvertimeHours, OvertimeKeys)
	put(&fields.JobNumber, JobNumberKeys)
	put(&fields.ReportLoc, ReportLocKeys)
	put(&fields.OvertimeLocation, OvertimeLocKeys)
}
