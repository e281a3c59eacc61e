package handlers

import (
	"encoding/csv"
	"net/http"
	"strconv"
	"strings"
	"testing"
	"time"

	"exceptionforms/database"
	"exceptionforms/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

type seeded struct {
	mapped, legacy, pure, combined, pending models.FormRecord
}

func seedForms(t *testing.T) seeded {
	t.Helper()
	now := time.Now().UTC()
	return seeded{
		mapped: createForm(t, models.FormRecord{
			FormType: models.FormTypeHourly, Status: models.StatusProcessed, ExtractionMode: models.ModeMapped,
			FormFields:       models.FormFields{PassNumber: "1001", Title: "Conductor", Comments: "late train"},
			RawExtractedData: datatypes.JSON(`{"pass_number":"1001"}`),
			Rows:             []models.FormRow{{LineLocation: "Jamaica", OvertimeHH: "1", OvertimeMM: "30", TAJobNo: "T-1"}},
			UploadDate:       now.Add(-4 * time.Hour),
		}),
		legacy: createForm(t, models.FormRecord{
			Status: models.StatusProcessed, FormFields: models.FormFields{PassNumber: "1002"},
			UploadDate: now.Add(-3 * time.Hour),
		}),
		pure: createForm(t, models.FormRecord{
			FormType: models.FormTypeSupervisor, Status: models.StatusProcessed, ExtractionMode: models.ModePure,
			RawExtractedData: datatypes.JSON(`{"PASS":"777","OVERTIME HOURS":"2:00","JOB #":"J-7"}`),
			UploadDate:       now.Add(-2 * time.Hour),
		}),
		combined: createForm(t, models.FormRecord{
			FormType: models.FormTypeSupervisor, Status: models.StatusProcessed, ExtractionMode: models.ModeCombined,
			FormFields:             models.FormFields{PassNumber: "888", OvertimeHours: "1", JobNumber: "J-8"},
			RawExtractedDataPure:   datatypes.JSON(`{"PASS":"888-raw","OVERTIME HOURS":"1"}`),
			RawExtractedDataMapped: datatypes.JSON(`{"pass_number":"888","overtime_hours":"1"}`),
			UploadDate:             now.Add(-time.Hour),
		}),
		pending: createForm(t, models.FormRecord{
			FormType: models.FormTypeHourly, Status: models.StatusPending, ExtractionMode: models.ModeMapped,
			FileName: "scan.pdf", UploadDate: now,
		}),
	}
}

func dashboardIDs(t *testing.T, h http.Handler, query string) (models.Dashboard, []uint) {
	t.Helper()
	rec := doJSON(t, h, http.MethodGet, "/api/dashboard"+query, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	dash := decodeBody[models.Dashboard](t, rec)
	ids := make([]uint, 0, len(dash.Forms))
	for _, f := range dash.Forms {
		ids = append(ids, f.ID)
	}
	return dash, ids
}

func TestDashboard_ModeAndTypeScopes(t *testing.T) {
	cfg := setupTestDB(t)
	user := createUser(t, "reviewer", models.RoleReviewer, models.ModeMapped)
	s := seedForms(t)
	h := testRouter(cfg, user, nil)

	_, all := dashboardIDs(t, h, "")
	assert.Len(t, all, 5)

	_, pure := dashboardIDs(t, h, "?extraction_mode=pure")
	assert.ElementsMatch(t, []uint{s.pure.ID, s.combined.ID}, pure)

	_, mapped := dashboardIDs(t, h, "?extraction_mode=mapped")
	assert.ElementsMatch(t, []uint{s.mapped.ID, s.legacy.ID, s.combined.ID, s.pending.ID}, mapped)

	_, sup := dashboardIDs(t, h, "?form_type=supervisor&extraction_mode=mapped")
	assert.Equal(t, []uint{s.combined.ID}, sup)

	_, hourly := dashboardIDs(t, h, "?form_type=hourly")
	assert.ElementsMatch(t, []uint{s.mapped.ID, s.legacy.ID, s.pending.ID}, hourly)

	rec := doJSON(t, h, http.MethodGet, "/api/dashboard?extraction_mode=raw", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDashboard_PureOverlayAndSummary(t *testing.T) {
	cfg := setupTestDB(t)
	user := createUser(t, "reviewer", models.RoleReviewer, models.ModePure)
	s := seedForms(t)
	h := testRouter(cfg, user, nil)

	dash, ids := dashboardIDs(t, h, "?form_type=supervisor&extraction_mode=pure")
	assert.Equal(t, []uint{s.combined.ID, s.pure.ID}, ids)
	assert.Equal(t, models.ModePure, dash.Mode)
	assert.Equal(t, "888-raw", dash.Forms[0].PassNumber)
	assert.Equal(t, "777", dash.Forms[1].PassNumber)
	assert.Equal(t, "J-7", dash.Forms[1].JobNumber)

	assert.Equal(t, 2, dash.TotalForms)
	assert.Equal(t, 180, dash.TotalOvertimeMinutes)
	require.NotNil(t, dash.MostCommonReason)

	hourly, _ := dashboardIDs(t, h, "?form_type=hourly&extraction_mode=mapped")
	assert.Equal(t, 2, hourly.TotalForms, "pending records are listed but not counted")
	assert.Len(t, hourly.Forms, 3)
	assert.Nil(t, hourly.MostCommonReason)
}

func TestGetForm_RawPayloadPerMode(t *testing.T) {
	cfg := setupTestDB(t)
	user := createUser(t, "reviewer", models.RoleReviewer, models.ModeMapped)
	s := seedForms(t)
	h := testRouter(cfg, user, nil)

	rec := doJSON(t, h, http.MethodGet, "/api/form/"+itoa(s.mapped.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decodeBody[models.FormDetail](t, rec)
	assert.Equal(t, "1001", got.Form.PassNumber)
	assert.JSONEq(t, `{"pass_number":"1001"}`, got.Form.RawExtractedData)
	assert.Equal(t, []models.ExtractionMode{models.ModeMapped}, got.RawDataModes)
	require.Len(t, got.Rows, 1)
	assert.Equal(t, "Jamaica", got.Rows[0].LineLocation)

	rec = doJSON(t, h, http.MethodGet, "/api/form/"+itoa(s.mapped.ID)+"?extraction_mode=pure", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got = decodeBody[models.FormDetail](t, rec)
	assert.Empty(t, got.Form.RawExtractedData)
	assert.Equal(t, models.ModePure, got.Mode)

	rec = doJSON(t, h, http.MethodGet, "/api/form/"+itoa(s.combined.ID)+"?extraction_mode=pure", nil)
	got = decodeBody[models.FormDetail](t, rec)
	assert.JSONEq(t, `{"PASS":"888-raw","OVERTIME HOURS":"1"}`, got.Form.RawExtractedData)
	assert.Equal(t, "888-raw", got.Form.PassNumber)
	assert.Equal(t, []models.ExtractionMode{models.ModePure, models.ModeMapped}, got.RawDataModes)
	assert.NotNil(t, got.Rows)

	rec = doJSON(t, h, http.MethodGet, "/api/form/9999", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = doJSON(t, h, http.MethodGet, "/api/form/abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdateForm_ReplacesRowsAndAudits(t *testing.T) {
	cfg := setupTestDB(t)
	user := createUser(t, "editor", models.RoleReviewer, models.ModeMapped)
	s := seedForms(t)
	h := testRouter(cfg, user, nil)

	update := models.FormUpdate{
		Form: models.FormView{
			Status:     models.StatusProcessed,
			FormFields: models.FormFields{PassNumber: "2002", Comments: "fixed"},
		},
		Rows: []models.FormRow{
			{ID: 55, Code: "A", LineLocation: "Hunts Point"},
			{Code: "B", LineLocation: "Pelham"},
		},
	}
	rec := doJSON(t, h, http.MethodPut, "/api/form/"+itoa(s.mapped.ID), update)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Form updated successfully.", decodeBody[messageResponse](t, rec).Message)

	var stored models.FormRecord
	require.NoError(t, database.GetDB().Preload("Rows", orderedRows).First(&stored, s.mapped.ID).Error)
	assert.Equal(t, "2002", stored.PassNumber)
	assert.Equal(t, "fixed", stored.Comments)
	require.Len(t, stored.Rows, 2)
	assert.Equal(t, "Hunts Point", stored.Rows[0].LineLocation)
	assert.Equal(t, "Pelham", stored.Rows[1].LineLocation)

	var rowCount int64
	database.GetDB().Model(&models.FormRow{}).Where("form_id = ?", s.mapped.ID).Count(&rowCount)
	assert.Equal(t, int64(2), rowCount)

	logs, err := database.RecentAudit(database.GetDB(), 1)
	require.NoError(t, err)
	assert.Equal(t, models.ActionEdit, logs[0].Action)
	assert.Equal(t, "editor", logs[0].Username)
	assert.Equal(t, s.mapped.ID, logs[0].TargetID)
}

func TestUpdateForm_SupervisorDropsRows(t *testing.T) {
	cfg := setupTestDB(t)
	user := createUser(t, "editor", models.RoleReviewer, models.ModeMapped)
	s := seedForms(t)
	h := testRouter(cfg, user, nil)

	update := models.FormUpdate{
		Form: models.FormView{FormType: models.FormTypeSupervisor, FormFields: models.FormFields{PassNumber: "888"}},
		Rows: []models.FormRow{{Code: "X"}},
	}
	rec := doJSON(t, h, http.MethodPut, "/api/form/"+itoa(s.mapped.ID), update)
	require.Equal(t, http.StatusOK, rec.Code)

	var stored models.FormRecord
	require.NoError(t, database.GetDB().First(&stored, s.mapped.ID).Error)
	assert.Equal(t, models.FormTypeSupervisor, stored.FormType)

	var rowCount int64
	database.GetDB().Model(&models.FormRow{}).Where("form_id = ?", s.mapped.ID).Count(&rowCount)
	assert.Zero(t, rowCount)
}

func TestUpdateForm_Validation(t *testing.T) {
	cfg := setupTestDB(t)
	user := createUser(t, "editor", models.RoleReviewer, models.ModeMapped)
	s := seedForms(t)
	h := testRouter(cfg, user, nil)
	path := "/api/form/" + itoa(s.combined.ID)

	rec := doJSON(t, h, http.MethodPut, path, models.FormUpdate{Form: models.FormView{Status: "done"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, h, http.MethodPut, path, models.FormUpdate{Form: models.FormView{FormType: "weekly"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, h, http.MethodPut, path, models.FormUpdate{Form: models.FormView{RawExtractedData: "[1,2]"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, h, http.MethodPut, "/api/form/9999", models.FormUpdate{})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// A valid raw edit lands in the slot of the requested mode.
	rec = doJSON(t, h, http.MethodPut, path+"?extraction_mode=pure",
		models.FormUpdate{Form: models.FormView{RawExtractedData: `{"PASS":"999"}`}})
	require.Equal(t, http.StatusOK, rec.Code)
	var stored models.FormRecord
	require.NoError(t, database.GetDB().First(&stored, s.combined.ID).Error)
	assert.JSONEq(t, `{"PASS":"999"}`, string(stored.RawExtractedDataPure))
	assert.JSONEq(t, `{"pass_number":"888","overtime_hours":"1"}`, string(stored.RawExtractedDataMapped))
}

func TestUpdateForm_PureSaveKeepsMappedEdits(t *testing.T) {
	cfg := setupTestDB(t)
	user := createUser(t, "editor", models.RoleReviewer, models.ModeMapped)
	s := seedForms(t)
	h := testRouter(cfg, user, nil)
	path := "/api/form/" + itoa(s.combined.ID)

	mapped := decodeBody[models.FormDetail](t, doJSON(t, h, http.MethodGet, path+"?extraction_mode=mapped", nil))
	edit := models.FormUpdate{Form: mapped.Form, Rows: mapped.Rows}
	edit.Form.PassNumber = "888-fixed"
	rec := doJSON(t, h, http.MethodPut, path+"?extraction_mode=mapped", edit)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	pure := decodeBody[models.FormDetail](t, doJSON(t, h, http.MethodGet, path+"?extraction_mode=pure", nil))
	assert.Equal(t, "888-raw", pure.Form.PassNumber)
	edit = models.FormUpdate{Form: pure.Form, Rows: pure.Rows}
	edit.Form.Comments = "checked against scan"
	rec = doJSON(t, h, http.MethodPut, path+"?extraction_mode=pure", edit)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var stored models.FormRecord
	require.NoError(t, database.GetDB().First(&stored, s.combined.ID).Error)
	assert.Equal(t, "888-fixed", stored.PassNumber)
	assert.Equal(t, "checked against scan", stored.Comments)
	assert.JSONEq(t, `{"PASS":"888-raw","OVERTIME HOURS":"1"}`, string(stored.RawExtractedDataPure))
}

func TestUpdateForm_SummaryFollowsEdits(t *testing.T) {
	cfg := setupTestDB(t)
	user := createUser(t, "editor", models.RoleReviewer, models.ModeMapped)
	form := createForm(t, models.FormRecord{
		FormType: models.FormTypeHourly, Status: models.StatusProcessed, ExtractionMode: models.ModeCombined,
		FormFields:             models.FormFields{PassNumber: "1001", Title: "Conductor"},
		RawExtractedDataPure:   datatypes.JSON(`{"pass_number":"1001","title":"Conductor"}`),
		RawExtractedDataMapped: datatypes.JSON(`{"pass_number":"1001","title":"Conductor","rows":[{"overtime_hh":"1","overtime_mm":"30","line_location":"Jamaica"}]}`),
		Rows:                   []models.FormRow{{OvertimeHH: "1", OvertimeMM: "30", LineLocation: "Jamaica", TAJobNo: "T-1"}},
	})
	h := testRouter(cfg, user, nil)
	path := "/api/form/" + itoa(form.ID)

	detail := decodeBody[models.FormDetail](t, doJSON(t, h, http.MethodGet, path, nil))
	edit := models.FormUpdate{Form: detail.Form, Rows: detail.Rows}
	edit.Form.Title = "Engineer"
	edit.Rows[0].OvertimeHH = "5"
	edit.Rows[0].OvertimeMM = "0"
	edit.Rows[0].LineLocation = "Harlem"
	rec := doJSON(t, h, http.MethodPut, path, edit)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	dash, _ := dashboardIDs(t, h, "?form_type=hourly&extraction_mode=mapped")
	require.Len(t, dash.Forms, 1)
	assert.Equal(t, "Engineer", dash.Forms[0].Title)
	assert.Equal(t, "5h 0m", dash.TotalOvertime)
	assert.Equal(t, models.PositionCount{Position: "Engineer", Count: 1}, dash.MostRelevantPosition)
	assert.Equal(t, models.LocationCount{Location: "Harlem", Count: 1}, dash.MostRelevantLocation)

	var stored models.FormRecord
	require.NoError(t, database.GetDB().First(&stored, form.ID).Error)
	assert.Contains(t, string(stored.RawExtractedDataMapped), `"Harlem"`)
	assert.NotContains(t, string(stored.RawExtractedDataPure), "Engineer")
}

func TestDeleteForm(t *testing.T) {
	cfg := setupTestDB(t)
	user := createUser(t, "reviewer", models.RoleReviewer, models.ModeMapped)
	s := seedForms(t)
	h := testRouter(cfg, user, nil)

	rec := doJSON(t, h, http.MethodDelete, "/api/form/"+itoa(s.legacy.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Form deleted successfully.", decodeBody[messageResponse](t, rec).Message)

	rec = doJSON(t, h, http.MethodGet, "/api/form/"+itoa(s.legacy.ID), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, h, http.MethodDelete, "/api/form/"+itoa(s.legacy.ID), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	assert.Equal(t, []string{models.ActionDelete}, auditActions(t))
}

func TestExportCSV(t *testing.T) {
	cfg := setupTestDB(t)
	user := createUser(t, "reviewer", models.RoleReviewer, models.ModeMapped)
	s := seedForms(t)
	h := testRouter(cfg, user, nil)

	rec := doJSON(t, h, http.MethodGet, "/api/forms/export?form_type=hourly&extraction_mode=mapped", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "exception_forms_hourly_mapped.csv")

	lines, err := csv.NewReader(strings.NewReader(rec.Body.String())).ReadAll()
	require.NoError(t, err)
	require.Len(t, lines, 4, "header plus three hourly records")
	assert.Equal(t, exportHeader, lines[0])
	for _, line := range lines {
		assert.Len(t, line, len(exportHeader))
	}

	var mappedLine []string
	for _, line := range lines[1:] {
		if line[0] == itoa(s.mapped.ID) {
			mappedLine = line
		}
	}
	require.NotNil(t, mappedLine)
	assert.Equal(t, "1:30", mappedLine[len(mappedLine)-4])
	assert.Equal(t, "T-1", mappedLine[len(mappedLine)-1])

	assert.Equal(t, "exception_forms.csv", exportFileName("", models.ModeNone))
	assert.Equal(t, "exception_forms_pure.csv", exportFileName("", models.ModePure))
}

func TestCleanupDuplicates(t *testing.T) {
	cfg := setupTestDB(t)
	admin := createUser(t, "boss", models.RoleAdmin, models.ModeMapped)
	h := testRouter(cfg, admin, nil)

	fields := models.FormFields{PassNumber: "5", OvertimeHours: "2", DateOfOvertime: "07/01/25", JobNumber: "J"}
	first := createForm(t, models.FormRecord{FormType: models.FormTypeSupervisor, Status: models.StatusProcessed, FormFields: fields})
	second := createForm(t, models.FormRecord{FormType: models.FormTypeSupervisor, Status: models.StatusProcessed, FormFields: fields})
	other := fields
	other.JobNumber = "K"
	createForm(t, models.FormRecord{FormType: models.FormTypeSupervisor, Status: models.StatusProcessed, FormFields: other})

	rec := doJSON(t, h, http.MethodPost, "/api/forms/cleanup-duplicates", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeBody[cleanupResponse](t, rec)
	assert.Equal(t, 1, resp.DeletedCount)
	assert.Equal(t, int64(3), resp.CountBefore)
	assert.Equal(t, int64(2), resp.CountAfter)

	assert.NoError(t, database.GetDB().First(&models.FormRecord{}, first.ID).Error)
	assert.Error(t, database.GetDB().First(&models.FormRecord{}, second.ID).Error)
	assert.Equal(t, []string{models.ActionCleanup}, auditActions(t))
}

func TestExtractionMode(t *testing.T) {
	cfg := setupTestDB(t)
	user := createUser(t, "reviewer", models.RoleReviewer, "")
	h := testRouter(cfg, user, nil)

	rec := doJSON(t, h, http.MethodGet, "/api/extraction-mode", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decodeBody[modeResponse](t, rec)
	assert.Equal(t, models.ModeMapped, got.Mode)
	assert.Contains(t, got.Description, "pure")

	rec = doJSON(t, h, http.MethodPost, "/api/extraction-mode", map[string]string{"mode": "pure"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.ModePure, decodeBody[modeResponse](t, rec).Mode)

	var stored models.User
	require.NoError(t, database.GetDB().First(&stored, user.ID).Error)
	assert.Equal(t, models.ModePure, stored.ExtractionMode)

	for _, bad := range []string{"", "combined", "raw"} {
		rec = doJSON(t, h, http.MethodPost, "/api/extraction-mode", map[string]string{"mode": bad})
		assert.Equal(t, http.StatusBadRequest, rec.Code, bad)
	}
}

func TestAuditTrail(t *testing.T) {
	cfg := setupTestDB(t)
	user := createUser(t, "reviewer", models.RoleReviewer, models.ModeMapped)
	h := testRouter(cfg, user, nil)

	for i := 1; i <= 3; i++ {
		require.NoError(t, database.RecordAudit(database.GetDB(), "reviewer", models.ActionEdit, models.TargetForm, uint(i), "Form edited"))
	}

	rec := doJSON(t, h, http.MethodGet, "/api/audit-trail?limit=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeBody[struct {
		Logs []models.AuditEntry `json:"logs"`
	}](t, rec)
	require.Len(t, resp.Logs, 2)
	assert.Equal(t, "form:3", resp.Logs[0].Target)
	assert.Equal(t, "reviewer", resp.Logs[0].User)

	rec = doJSON(t, h, http.MethodGet, "/api/audit-trail?limit=zero", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func itoa(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}
