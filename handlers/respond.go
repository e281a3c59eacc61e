package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"exceptionforms/logger"
	"exceptionforms/models"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type errorResponse struct {
	Error string `json:"error"`
}

type messageResponse struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("failed to encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeDBError maps a storage error to a response. Missing records are 404,
// anything else is logged and reported as 500.
func writeDBError(w http.ResponseWriter, err error, what string) {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		writeError(w, http.StatusNotFound, what+" not found")
		return
	}
	logger.Error("database error", zap.String("target", what), zap.Error(err))
	writeError(w, http.StatusInternalServerError, "Internal server error")
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func formID(r *http.Request) (uint, error) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 32)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid form id %q", chi.URLParam(r, "id"))
	}
	return uint(id), nil
}

// queryMode reads ?extraction_mode, falling back to def when absent.
func queryMode(r *http.Request, def models.ExtractionMode) (models.ExtractionMode, error) {
	raw := r.URL.Query().Get("extraction_mode")
	if raw == "" {
		return def, nil
	}
	return models.ParseMode(raw)
}

// queryFormType reads ?form_type. Absent means every form type.
func queryFormType(r *http.Request) (models.FormType, error) {
	raw := r.URL.Query().Get("form_type")
	if raw == "" {
		return "", nil
	}
	return models.ParseFormType(raw)
}
