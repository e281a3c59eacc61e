package extraction

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"exceptionforms/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode_StripsCodeFence(t *testing.T) {
	data, err := Decode([]byte("```json\n{\"PASS\": \"12345\"}\n```"))
	require.NoError(t, err)
	assert.Equal(t, "12345", data["PASS"])
}

func TestDecode_Errors(t *testing.T) {
	_, err := Decode([]byte("   "))
	assert.ErrorIs(t, err, ErrEmptyOutput)

	_, err = Decode([]byte("not json"))
	assert.Error(t, err)
}

func TestProcess_SupervisorEntriesMergeEmployee(t *testing.T) {
	raw := `{
		"employee": {"PASS": "555", "EMPLOYEE NAME": "Pat Doe", "TITLE": "Track Supervisor"},
		"entries": [
			{"DATE OF OVERTIME": "07/06/25", "JOB #": "J-1", "OVERTIME HOURS": "2:30", "REASON FOR OVERTIME": "Absentee coverage"},
			{"DATE OF OVERTIME": "07/07/25", "JOB #": "J-2", "OVERTIME HOURS": "1", "reason": "late clear", "RC#": "77"}
		]
	}`

	entries, err := Process([]byte(raw), models.FormTypeSupervisor)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	first := entries[0]
	assert.Equal(t, "555", first.Fields.PassNumber)
	assert.Equal(t, "Pat Doe", first.Fields.EmployeeName)
	assert.Equal(t, "Track Supervisor", first.Fields.Title)
	assert.Equal(t, "07/06/25", first.Fields.DateOfOvertime)
	assert.Equal(t, "J-1", first.Fields.JobNumber)
	assert.Equal(t, "2:30", first.Fields.OvertimeHours)
	assert.True(t, first.Fields.ReasonAbsenteeCoverage)
	assert.Empty(t, first.Rows)

	second := entries[1]
	assert.Equal(t, "555", second.Fields.PassNumber)
	assert.Equal(t, "77", second.Fields.RCNumber)
	assert.True(t, second.Fields.ReasonLateClear)
	assert.Equal(t, "Pat Doe", second.Pure["EMPLOYEE NAME"])
}

func TestProcess_HourlyRows(t *testing.T) {
	raw := `{
		"pass_number": "1001", "title": "Conductor", "employee_name": "Sam Roe", "comments": "signal delay",
		"rows": [
			{"code": "11", "line_location": "Jamaica", "overtime_hh": "1", "overtime_mm": "30", "ta_job_no": "T-9"},
			{"code": ""}
		]
	}`

	entries, err := Process([]byte(raw), models.FormTypeHourly)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	e := entries[0]
	assert.Equal(t, "1001", e.Fields.PassNumber)
	assert.Equal(t, "signal delay", e.Fields.Comments)
	require.Len(t, e.Rows, 1)
	assert.Equal(t, "Jamaica", e.Rows[0].LineLocation)
	assert.Equal(t, "30", e.Rows[0].OvertimeMM)
	assert.Equal(t, "T-9", e.Rows[0].TAJobNo)

	mapped, err := e.MappedJSON()
	require.NoError(t, err)
	assert.Contains(t, string(mapped), `"pass_number":"1001"`)
	assert.Contains(t, string(mapped), `"rows":[`)
}

func TestMapEntry_FlatHourlyRow(t *testing.T) {
	fields, rows := MapEntry(map[string]any{"PASS": "9", "code": "A1", "overtime_hh": 2.0}, models.FormTypeHourly)
	assert.Equal(t, "9", fields.PassNumber)
	require.Len(t, rows, 1)
	assert.Equal(t, "A1", rows[0].Code)
	assert.Equal(t, "2", rows[0].OvertimeHH)
}

func TestMapEntry_ReasonObjectAndAuthorization(t *testing.T) {
	data := map[string]any{
		"reasonForOvertime":              map[string]any{"noLunch": true, "capitalSupportGo": false},
		"superintendent's authorization": "713026 07/06/25",
		"S/M":                            "SAT/SUN",
		"ACCT #":                         "4410",
	}
	fields, _ := MapEntry(data, models.FormTypeSupervisor)

	assert.True(t, fields.ReasonNoLunch)
	assert.False(t, fields.ReasonCapitalSupportGO)
	assert.Equal(t, "713026", fields.SuperintendentAuthorizationPass)
	assert.Equal(t, "07/06/25", fields.SuperintendentAuthorizationDate)
	assert.Equal(t, "SAT/SUN", fields.RDOs)
	assert.Equal(t, "4410", fields.AcctNumber)
}

func TestClassifyReason(t *testing.T) {
	cases := map[string]string{
		"RDO day":              "reason_rdo",
		"coverage for absence": "reason_absentee_coverage",
		"No lunch taken":       "reason_no_lunch",
		"early report":         "reason_early_report",
		"Late clear of train":  "reason_late_clear",
		"save as oto":          "reason_save_as_oto",
		"capital project":      "reason_capital_support_go",
		"snow":                 "reason_other",
	}
	for text, want := range cases {
		assert.Equal(t, want, ClassifyReason(text), text)
	}
}

func TestLookup_FlexibleKeys(t *testing.T) {
	data := map[string]any{"Job-Number": "J7", "OVERTIME HOURS": 3.5, "empty": ""}
	assert.Equal(t, "J7", Lookup(data, JobNumberKeys...))
	assert.Equal(t, "3.5", Lookup(data, OvertimeKeys...))
	assert.Equal(t, "", Lookup(data, "empty", "missing"))
}

func TestOverlay_PureSupervisorKeys(t *testing.T) {
	fields := models.FormFields{PassNumber: "mapped", Comments: "keep"}
	Overlay(&fields, map[string]any{"PASS": "raw-1", "EMPLOYEE NAME": "Raw Name", "DATE OF OVERTIME": "01/02/25", "DIV": "B"})

	assert.Equal(t, "raw-1", fields.PassNumber)
	assert.Equal(t, "Raw Name", fields.EmployeeName)
	assert.Equal(t, "01/02/25", fields.DateOfOvertime)
	assert.Equal(t, "B", fields.Div)
	assert.Equal(t, "keep", fields.Comments)
}

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "123", DisplayName(Entry{Fields: models.FormFields{PassNumber: "123"}}, "scan.pdf"))
	assert.Equal(t, "form-a", DisplayName(Entry{Pure: map[string]any{"filename": "form-a"}}, "scan.pdf"))
	assert.Equal(t, "scan.pdf", DisplayName(Entry{}, "scan.pdf"))
	assert.Equal(t, "N/A", DisplayName(Entry{}, ""))
}

func TestHTTPExtractor(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		assert.Equal(t, "supervisor", r.FormValue("form_type"))
		f, hdr, err := r.FormFile("file")
		if !assert.NoError(t, err) {
			return
		}
		defer f.Close()
		body, _ := io.ReadAll(f)
		assert.Equal(t, "scan.pdf", hdr.Filename)
		assert.Equal(t, "PDFDATA", string(body))
		_, _ = w.Write([]byte(`{"PASS":"1"}`))
	}))
	defer srv.Close()

	ex := NewHTTPExtractor(srv.URL, "key", time.Second)
	out, err := ex.Extract(context.Background(), models.FormTypeSupervisor, "scan.pdf", strings.NewReader("PDFDATA"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"PASS":"1"}`, string(out))
}

func TestHTTPExtractor_ErrorsAndUnconfigured(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewHTTPExtractor(srv.URL, "", time.Second).Extract(context.Background(), models.FormTypeHourly, "a.png", strings.NewReader("x"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")

	_, err = NewHTTPExtractor("", "", time.Second).Extract(context.Background(), models.FormTypeHourly, "a.png", strings.NewReader("x"))
	assert.ErrorIs(t, err, ErrNotConfigured)
}
