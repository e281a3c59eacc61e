package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"reflect"

	"exceptionforms/config"
	"exceptionforms/database"
	"exceptionforms/extraction"
	"exceptionforms/logger"
	"exceptionforms/middleware"
	"exceptionforms/models"
	"exceptionforms/stats"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type FormHandler struct {
	config *config.Config
	log    *zap.Logger
}

func NewFormHandler(cfg *config.Config) *FormHandler {
	return &FormHandler{
		config: cfg,
		log:    logger.Named("forms"),
	}
}

func orderedRows(db *gorm.DB) *gorm.DB {
	return db.Order("position asc, id asc")
}

// loadForms returns the records visible under formType and mode, newest
// upload first.
func loadForms(db *gorm.DB, formType models.FormType, mode models.ExtractionMode) ([]models.FormRecord, error) {
	var records []models.FormRecord
	err := db.Preload("Rows", orderedRows).
		Scopes(database.FormTypeScope(formType), database.ModeScope(mode)).
		Order("upload_date desc, id desc").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load forms: %w", err)
	}
	return records, nil
}

// decodeRaw parses a stored payload. Payloads that are not a JSON object
// are treated as absent.
func decodeRaw(raw datatypes.JSON) map[string]any {
	if raw == nil {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}

// presentedFields returns the header fields shown for rec under mode. In
// pure mode values found in the raw payload replace the mapped columns.
func presentedFields(rec *models.FormRecord, mode models.ExtractionMode) models.FormFields {
	fields := rec.FormFields
	if mode == models.ModePure {
		extraction.Overlay(&fields, decodeRaw(rec.RawFor(mode)))
	}
	return fields
}

func listItem(rec *models.FormRecord, mode models.ExtractionMode) models.FormListItem {
	shown := *rec
	shown.FormFields = presentedFields(rec, mode)

	item := models.FormListItem{
		ID:             rec.ID,
		FormType:       rec.FormType,
		Status:         rec.Status,
		PassNumber:     shown.PassNumber,
		Title:          shown.Title,
		EmployeeName:   shown.EmployeeName,
		ActualOTDate:   shown.ActualOTDate,
		Div:            shown.Div,
		Comments:       shown.Comments,
		FileName:       rec.FileName,
		UploadDate:     rec.UploadDate,
		ExtractionMode: rec.ExtractionMode,
		Location:       shown.Location(),
		JobNumber:      shown.PrimaryJobNumber(),
	}
	if rec.FormType == models.FormTypeSupervisor {
		item.OvertimeHours = shown.OvertimeHours
		if item.ActualOTDate == "" {
			item.ActualOTDate = shown.DateOfOvertime
		}
	}
	if item.FormType == "" {
		item.FormType = models.FormTypeHourly
	}
	return item
}

func detail(rec *models.FormRecord, mode models.ExtractionMode) models.FormDetail {
	view := models.FormView{
		ID:             rec.ID,
		FormType:       rec.FormType,
		Status:         rec.Status,
		Username:       rec.Username,
		FileName:       rec.FileName,
		UploadDate:     rec.UploadDate,
		ExtractionMode: rec.ExtractionMode,
		FormFields:     presentedFields(rec, mode),
	}
	if raw := rec.RawFor(mode); raw != nil {
		view.RawExtractedData = string(raw)
	}

	rows := rec.Rows
	if rows == nil {
		rows = []models.FormRow{}
	}
	return models.FormDetail{
		Form:         view,
		Rows:         rows,
		Mode:         mode,
		RawDataModes: rec.RawModes(),
	}
}

// Dashboard lists the forms visible under ?form_type and ?extraction_mode
// together with the summary over the processed ones.
func (h *FormHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
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

	resp := models.Dashboard{
		DashboardSummary: stats.Summarize(records, formType, mode),
		Mode:             mode,
		Forms:            make([]models.FormListItem, 0, len(records)),
	}
	for i := range records {
		resp.Forms = append(resp.Forms, listItem(&records[i], mode))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *FormHandler) GetForm(w http.ResponseWriter, r *http.Request) {
	id, err := formID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	mode, err := queryMode(r, models.ModeMapped)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var rec models.FormRecord
	if err := database.GetDB().WithContext(r.Context()).Preload("Rows", orderedRows).First(&rec, id).Error; err != nil {
		writeDBError(w, err, "Form")
		return
	}
	writeJSON(w, http.StatusOK, detail(&rec, mode))
}

// UpdateForm replaces the header fields and rows of a form. A non-empty
// raw_extracted_data replaces the payload for ?extraction_mode.
func (h *FormHandler) UpdateForm(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	id, err := formID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	mode, err := queryMode(r, models.ModeMapped)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req models.FormUpdate
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	db := database.GetDB().WithContext(r.Context())
	var rec models.FormRecord
	if err := db.First(&rec, id).Error; err != nil {
		writeDBError(w, err, "Form")
		return
	}

	// The header values the editor was shown under mode.
	shown := presentedFields(&rec, mode)

	if req.Form.Status != "" {
		if !req.Form.Status.Valid() {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid status %q", req.Form.Status))
			return
		}
		rec.Status = req.Form.Status
	}
	if req.Form.FormType != "" {
		ft, err := models.ParseFormType(string(req.Form.FormType))
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		rec.FormType = ft
	}
	rawEdited := false
	if req.Form.RawExtractedData != "" {
		payload := decodeRaw(datatypes.JSON(req.Form.RawExtractedData))
		if payload == nil {
			writeError(w, http.StatusBadRequest, "raw_extracted_data must be a JSON object")
			return
		}
		rawEdited = !reflect.DeepEqual(payload, decodeRaw(rec.RawFor(mode)))
		rec.SetRaw(mode, datatypes.JSON(req.Form.RawExtractedData))
	}

	// Pure mode shows raw values over the mapped columns, so only the
	// fields the reviewer actually changed reach the columns.
	if mode == models.ModePure {
		rec.FormFields.ApplyEdits(shown, req.Form.FormFields)
	} else {
		rec.FormFields = req.Form.FormFields
	}
	rec.Rows = req.Rows
	rec.Normalize()

	if mode != models.ModePure && rec.ExtractionMode == models.ModeCombined && !rawEdited {
		mapped, err := extraction.Entry{Fields: rec.FormFields, Rows: rec.Rows}.MappedJSON()
		if err != nil {
			writeDBError(w, fmt.Errorf("failed to encode mapped payload: %w", err), "Form")
			return
		}
		rec.RawExtractedDataMapped = datatypes.JSON(mapped)
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Save(&rec).Error; err != nil {
			return err
		}
		if err := tx.Where("form_id = ?", rec.ID).Delete(&models.FormRow{}).Error; err != nil {
			return err
		}
		if len(rec.Rows) > 0 {
			if err := tx.Create(&rec.Rows).Error; err != nil {
				return err
			}
		}
		return database.RecordAudit(tx, user.Username, models.ActionEdit, models.TargetForm, rec.ID,
			fmt.Sprintf("Form edited: %d rows", len(rec.Rows)))
	})
	if err != nil {
		writeDBError(w, fmt.Errorf("failed to update form %d: %w", id, err), "Form")
		return
	}

	h.log.Info("form updated", zap.Uint("id", rec.ID), zap.String("user", user.Username))
	writeJSON(w, http.StatusOK, messageResponse{Message: "Form updated successfully."})
}

func (h *FormHandler) DeleteForm(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	id, err := formID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	db := database.GetDB().WithContext(r.Context())
	var rec models.FormRecord
	if err := db.First(&rec, id).Error; err != nil {
		writeDBError(w, err, "Form")
		return
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&rec).Error; err != nil {
			return err
		}
		return database.RecordAudit(tx, user.Username, models.ActionDelete, models.TargetForm, rec.ID,
			"Form deleted: "+displayName(&rec))
	})
	if err != nil {
		writeDBError(w, fmt.Errorf("failed to delete form %d: %w", id, err), "Form")
		return
	}

	h.log.Info("form deleted", zap.Uint("id", rec.ID), zap.String("user", user.Username))
	writeJSON(w, http.StatusOK, messageResponse{Message: "Form deleted successfully."})
}

type cleanupResponse struct {
	Message      string `json:"message"`
	DeletedCount int    `json:"deleted_count"`
	CountBefore  int64  `json:"count_before"`
	CountAfter   int64  `json:"count_after"`
}

// CleanupDuplicates removes supervisor forms that repeat the pass number,
// overtime hours, date and job number of an older form. The oldest copy
// is kept.
func (h *FormHandler) CleanupDuplicates(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	db := database.GetDB().WithContext(r.Context())

	var resp cleanupResponse
	err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.FormRecord{}).Count(&resp.CountBefore).Error; err != nil {
			return err
		}

		var candidates []models.FormRecord
		err := tx.Scopes(database.FormTypeScope(models.FormTypeSupervisor)).
			Where("pass_number <> '' AND overtime_hours <> '' AND date_of_overtime <> '' AND job_number <> ''").
			Order("id asc").
			Find(&candidates).Error
		if err != nil {
			return err
		}

		kept := make(map[string]uint)
		for i := range candidates {
			rec := &candidates[i]
			key := rec.PassNumber + "\x00" + rec.OvertimeHours + "\x00" + rec.DateOfOvertime + "\x00" + rec.JobNumber
			original, seen := kept[key]
			if !seen {
				kept[key] = rec.ID
				continue
			}
			if err := tx.Delete(rec).Error; err != nil {
				return err
			}
			if err := database.RecordAudit(tx, user.Username, models.ActionCleanup, models.TargetForm, rec.ID,
				fmt.Sprintf("Duplicate of form %d removed", original)); err != nil {
				return err
			}
			resp.DeletedCount++
		}

		return tx.Model(&models.FormRecord{}).Count(&resp.CountAfter).Error
	})
	if err != nil {
		writeDBError(w, fmt.Errorf("duplicate cleanup failed: %w", err), "Forms")
		return
	}

	resp.Message = "Duplicate cleanup completed"
	h.log.Info("duplicate cleanup", zap.Int("deleted", resp.DeletedCount), zap.String("user", user.Username))
	writeJSON(w, http.StatusOK, resp)
}

func displayName(rec *models.FormRecord) string {
	switch {
	case rec.PassNumber != "":
		return rec.PassNumber
	case rec.FileName != "":
		return rec.FileName
	}
	return "N/A"
}
