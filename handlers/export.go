package handlers

import (
	"encoding/csv"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"exceptionforms/database"
	"exceptionforms/extraction"
	"exceptionforms/models"

	"go.uber.org/zap"
)

var exportHeader = []string{
	"Form ID", "Form Type", "Status",
	"Overtime Hours", "Date of Overtime", "Job Number", "RC Number", "Acct Number", "Amount",
	"Report Loc", "Overtime Location", "Report Time", "Relief Time", "Reasons",
	"Pass Number", "Employee Name", "Title", "RDOs", "Actual OT Date", "Div", "Comments",
	"Supervisor Name", "Supervisor Pass No", "OTO", "OTO Amount Saved", "Entered in UTS",
	"Regular Assignment", "Report", "Relief", "Today's Date",
	"Reg", "Superintendent Signature", "Superintendent Pass", "Superintendent Date", "Entered into UTS",
	"File Name", "Uploaded By", "Extraction Mode", "Upload Date", "Raw Data",
	"Exception Code", "Code Description", "Line/Location", "Run No",
	"Exception Time From (HH:MM)", "Exception Time To (HH:MM)", "Overtime Hours (HH:MM)",
	"Bonus Hours (HH:MM)", "Nite Diff Hours (HH:MM)", "TA Job No",
}

// exportFileName is exception_forms[_<type>][_<mode>].csv.
func exportFileName(formType models.FormType, mode models.ExtractionMode) string {
	name := "exception_forms"
	if formType != "" {
		name += "_" + string(formType)
	}
	if mode != models.ModeNone {
		name += "_" + string(mode)
	}
	return name + ".csv"
}

func hhmm(hh, mm string) string {
	if hh == "" && mm == "" {
		return ""
	}
	if hh == "" {
		hh = "00"
	}
	if mm == "" {
		mm = "00"
	}
	return hh + ":" + mm
}

func reasonLabels(f *models.FormFields) string {
	checked := make(map[string]bool)
	for _, key := range f.Reasons() {
		checked[key] = true
	}
	var labels []string
	for _, r := range extraction.ReasonLabels {
		if checked[r.Field] {
			labels = append(labels, r.Label)
		}
	}
	return strings.Join(labels, "; ")
}

func exportLines(rec *models.FormRecord, mode models.ExtractionMode) [][]string {
	f := presentedFields(rec, mode)
	rawMode := mode
	if rawMode == models.ModeNone {
		rawMode = models.ModeMapped
	}
	formType := rec.FormType
	if formType == "" {
		formType = models.FormTypeHourly
	}

	head := []string{
		strconv.FormatUint(uint64(rec.ID), 10), string(formType), string(rec.Status),
		f.OvertimeHours, f.DateOfOvertime, f.JobNumber, f.RCNumber, f.AcctNumber, f.Amount,
		f.ReportLoc, f.OvertimeLocation, f.ReportTime, f.ReliefTime, reasonLabels(&f),
		f.PassNumber, f.EmployeeName, f.Title, f.RDOs, f.ActualOTDate, f.Div, f.Comments,
		f.SupervisorName, f.SupervisorPassNo, f.OTO, f.OTOAmountSaved, f.EnteredInUTS,
		f.RegularAssignment, f.Report, f.Relief, f.TodaysDate,
		f.Reg, f.SuperintendentAuthorizationSignature, f.SuperintendentAuthorizationPass,
		f.SuperintendentAuthorizationDate, f.EnteredIntoUTS,
		rec.FileName, rec.Username, string(rec.ExtractionMode), rec.UploadDate.Format(time.RFC3339),
		string(rec.RawFor(rawMode)),
	}

	if len(rec.Rows) == 0 {
		return [][]string{append(head, make([]string, 10)...)}
	}

	lines := make([][]string, 0, len(rec.Rows))
	for _, row := range rec.Rows {
		line := make([]string, 0, len(exportHeader))
		line = append(line, head...)
		line = append(line,
			row.Code,
			row.CodeDescription,
			row.LineLocation,
			row.RunNo,
			hhmm(row.ExceptionTimeFromHH, row.ExceptionTimeFromMM),
			hhmm(row.ExceptionTimeToHH, row.ExceptionTimeToMM),
			hhmm(row.OvertimeHH, row.OvertimeMM),
			hhmm(row.BonusHH, row.BonusMM),
			hhmm(row.NiteDiffHH, row.NiteDiffMM),
			row.TAJobNo,
		)
		lines = append(lines, line)
	}
	return lines
}

// ExportCSV streams the forms visible under ?form_type and
// ?extraction_mode, one line per row.
func (h *FormHandler) ExportCSV(w http.ResponseWriter, r *http.Request) {
	formType, err := queryFormType(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	mode, err := queryMode(r, models.ModeNone)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	records, err := loadForms(database.GetDB().WithContext(r.Context()), formType, mode)
	if err != nil {
		writeDBError(w, err, "Forms")
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", exportFileName(formType, mode)))

	writer := csv.NewWriter(w)
	defer writer.Flush()

	// Write header
	if err := writer.Write(exportHeader); err != nil {
		h.log.Error("failed to write export", zap.Error(err))
		return
	}

	// Write data
	for i := range records {
		if err := writer.WriteAll(exportLines(&records[i], mode)); err != nil {
			h.log.Error("failed to write export", zap.Error(err))
			return
		}
	}
}
