package handlers

import (
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"time"

	"exceptionforms/config"
	"exceptionforms/database"
	"exceptionforms/extraction"
	"exceptionforms/logger"
	"exceptionforms/middleware"
	"exceptionforms/models"
	"exceptionforms/storage"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var errAllDuplicates = errors.New("every form in the file is already stored")

type UploadHandler struct {
	config    *config.Config
	store     *storage.Store
	extractor extraction.Extractor
	log       *zap.Logger
}

func NewUploadHandler(cfg *config.Config, store *storage.Store, extractor extraction.Extractor) *UploadHandler {
	return &UploadHandler{
		config:    cfg,
		store:     store,
		extractor: extractor,
		log:       logger.Named("upload"),
	}
}

type uploadResponse struct {
	Message string `json:"message"`
	Success int    `json:"success"`
	Failed  int    `json:"failed"`
	FormIDs []uint `json:"form_ids"`
}

// Upload takes the form type from the form_type field, hourly by default.
func (h *UploadHandler) Upload(w http.ResponseWriter, r *http.Request) {
	h.handle(w, r, "")
}

func (h *UploadHandler) UploadHourly(w http.ResponseWriter, r *http.Request) {
	h.handle(w, r, models.FormTypeHourly)
}

func (h *UploadHandler) UploadSupervisor(w http.ResponseWriter, r *http.Request) {
	h.handle(w, r, models.FormTypeSupervisor)
}

func (h *UploadHandler) handle(w http.ResponseWriter, r *http.Request, formType models.FormType) {
	user := middleware.GetUserFromContext(r.Context())

	if err := r.ParseMultipartForm(h.config.MaxUploadBytes()); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "Upload exceeds the size limit")
			return
		}
		writeError(w, http.StatusBadRequest, "No file(s) part in the request.")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	if formType == "" {
		ft, err := models.ParseFormType(r.FormValue("form_type"))
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		formType = ft
	}

	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		files = r.MultipartForm.File["file"]
	}
	if len(files) == 0 {
		writeError(w, http.StatusBadRequest, "No file(s) part in the request.")
		return
	}

	resp := uploadResponse{Message: "Batch upload complete", FormIDs: []uint{}}
	for _, fh := range files {
		ids, err := h.processFile(r.Context(), user, formType, fh)
		resp.FormIDs = append(resp.FormIDs, ids...)
		if err != nil {
			resp.Failed++
			middleware.UploadsTotal.WithLabelValues(string(formType), "failed").Inc()
			h.log.Warn("upload failed",
				zap.String("file", fh.Filename),
				zap.String("form_type", string(formType)),
				zap.Error(err))
			continue
		}
		resp.Success++
		middleware.UploadsTotal.WithLabelValues(string(formType), "success").Inc()
	}

	writeJSON(w, http.StatusOK, resp)
}

// processFile stores one scan, records it as pending and runs extraction.
// It returns the ids of every record created for the file.
func (h *UploadHandler) processFile(ctx context.Context, user *models.User, formType models.FormType, fh *multipart.FileHeader) ([]uint, error) {
	if !storage.Allowed(fh.Filename) {
		return nil, fmt.Errorf("%s: %w", fh.Filename, storage.ErrUnsupportedType)
	}

	src, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open upload: %w", err)
	}
	stored, err := h.store.Save(string(formType), fh.Filename, src)
	_ = src.Close()
	if err != nil {
		return nil, err
	}

	db := database.GetDB().WithContext(ctx)
	rec := models.FormRecord{
		FormType:       formType,
		Status:         models.StatusPending,
		Username:       user.Username,
		FileName:       fh.Filename,
		StoredFile:     stored,
		UploadDate:     time.Now().UTC(),
		ExtractionMode: user.Mode(),
	}
	rec.Normalize()

	err = db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&rec).Error; err != nil {
			return err
		}
		return database.RecordAudit(tx, user.Username, models.ActionUpload, models.TargetForm, rec.ID,
			"Form uploaded: "+fh.Filename)
	})
	if err != nil {
		_ = h.store.Remove(stored)
		return nil, fmt.Errorf("failed to record upload: %w", err)
	}

	ids, err := h.extract(ctx, db, user, &rec)
	switch {
	case errors.Is(err, extraction.ErrNotConfigured):
		return []uint{rec.ID}, nil
	case errors.Is(err, errAllDuplicates):
		return nil, err
	case err != nil && len(ids) == 0:
		h.markError(db, &rec, err)
		return []uint{rec.ID}, err
	}
	return ids, err
}

func (h *UploadHandler) extract(ctx context.Context, db *gorm.DB, user *models.User, rec *models.FormRecord) ([]uint, error) {
	if h.extractor == nil {
		return nil, extraction.ErrNotConfigured
	}

	content, err := h.store.Open(rec.StoredFile)
	if err != nil {
		return nil, err
	}
	defer content.Close()

	ctx, cancel := context.WithTimeout(ctx, h.config.ExtractorTimeout)
	defer cancel()

	raw, err := h.extractor.Extract(ctx, rec.FormType, rec.FileName, content)
	if err != nil {
		return nil, err
	}
	entries, err := extraction.Process(raw, rec.FormType)
	if err != nil {
		return nil, err
	}

	var ids []uint
	for _, entry := range entries {
		if user.Mode() == models.ModeMapped {
			dup, err := isDuplicate(db, rec.FormType, &entry.Fields)
			if err != nil {
				return ids, err
			}
			if dup {
				middleware.UploadsTotal.WithLabelValues(string(rec.FormType), "duplicate").Inc()
				h.log.Info("duplicate form skipped",
					zap.String("file", rec.FileName),
					zap.String("pass_number", entry.Fields.PassNumber))
				continue
			}
		}

		target := rec
		if len(ids) > 0 {
			target = &models.FormRecord{
				FormType:   rec.FormType,
				Username:   rec.Username,
				FileName:   rec.FileName,
				StoredFile: rec.StoredFile,
				UploadDate: rec.UploadDate,
			}
		}
		if err := applyEntry(target, entry); err != nil {
			return ids, err
		}
		if err := saveExtracted(db, user, target, entry, rec.FileName); err != nil {
			return ids, err
		}
		ids = append(ids, target.ID)
	}

	if len(ids) == 0 {
		// Nothing new in this file; drop the placeholder record.
		err := db.Transaction(func(tx *gorm.DB) error {
			if err := tx.Delete(rec).Error; err != nil {
				return err
			}
			return database.RecordAudit(tx, user.Username, models.ActionDelete, models.TargetForm, rec.ID,
				"Duplicate upload discarded: "+rec.FileName)
		})
		if err != nil {
			return nil, err
		}
		return nil, errAllDuplicates
	}
	return ids, nil
}

func applyEntry(rec *models.FormRecord, entry extraction.Entry) error {
	pure, err := entry.PureJSON()
	if err != nil {
		return fmt.Errorf("failed to encode pure payload: %w", err)
	}
	mapped, err := entry.MappedJSON()
	if err != nil {
		return fmt.Errorf("failed to encode mapped payload: %w", err)
	}

	rec.Status = models.StatusProcessed
	rec.ExtractionMode = models.ModeCombined
	rec.FormFields = entry.Fields
	rec.Rows = append([]models.FormRow(nil), entry.Rows...)
	rec.RawExtractedDataPure = datatypes.JSON(pure)
	rec.RawExtractedDataMapped = datatypes.JSON(mapped)
	rec.Normalize()
	return nil
}

// saveExtracted writes an extracted entry. The placeholder record is
// updated in place; additional entries from the same file become new
// records with their own upload audit entry.
func saveExtracted(db *gorm.DB, user *models.User, rec *models.FormRecord, entry extraction.Entry, fileName string) error {
	return db.Transaction(func(tx *gorm.DB) error {
		if rec.ID == 0 {
			if err := tx.Omit(clause.Associations).Create(rec).Error; err != nil {
				return err
			}
			if err := database.RecordAudit(tx, user.Username, models.ActionUpload, models.TargetForm, rec.ID,
				"Form uploaded: "+extraction.DisplayName(entry, fileName)); err != nil {
				return err
			}
		} else if err := tx.Omit(clause.Associations).Save(rec).Error; err != nil {
			return err
		}

		if err := tx.Where("form_id = ?", rec.ID).Delete(&models.FormRow{}).Error; err != nil {
			return err
		}
		for i := range rec.Rows {
			rec.Rows[i].FormID = rec.ID
		}
		if len(rec.Rows) > 0 {
			return tx.Create(&rec.Rows).Error
		}
		return nil
	})
}

func (h *UploadHandler) markError(db *gorm.DB, rec *models.FormRecord, cause error) {
	err := db.Model(rec).Updates(map[string]any{
		"status":   models.StatusError,
		"comments": cause.Error(),
	}).Error
	if err != nil {
		h.log.Error("failed to mark form as failed", zap.Uint("id", rec.ID), zap.Error(err))
	}
}

// isDuplicate reports whether a form with the same pass number, overtime
// hours and date of overtime is already stored for formType.
func isDuplicate(db *gorm.DB, formType models.FormType, f *models.FormFields) (bool, error) {
	if f.PassNumber == "" {
		return false, nil
	}
	var n int64
	err := db.Model(&models.FormRecord{}).
		Scopes(database.FormTypeScope(formType)).
		Where("pass_number = ? AND overtime_hours = ? AND date_of_overtime = ?", f.PassNumber, f.OvertimeHours, f.DateOfOvertime).
		Count(&n).Error
	if err != nil {
		return false, fmt.Errorf("duplicate check failed: %w", err)
	}
	return n > 0, nil
}
