package handlers

import (
	"fmt"
	"net/http"

	"exceptionforms/database"
	"exceptionforms/middleware"
	"exceptionforms/models"
)

var modeDescriptions = map[string]string{
	"pure":   "Raw extraction output shown as captured, without field mapping",
	"mapped": "Extraction output mapped onto the form's database fields",
}

type modeResponse struct {
	Mode        models.ExtractionMode `json:"mode"`
	Description map[string]string     `json:"description,omitempty"`
	Message     string                `json:"message,omitempty"`
}

// ModeHandler reads and sets the caller's extraction mode preference.
type ModeHandler struct{}

func NewModeHandler() *ModeHandler {
	return &ModeHandler{}
}

func (h *ModeHandler) Get(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	writeJSON(w, http.StatusOK, modeResponse{
		Mode:        user.Mode(),
		Description: modeDescriptions,
	})
}

func (h *ModeHandler) Set(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())

	var req struct {
		Mode string `json:"mode"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	mode, err := models.ParseMode(req.Mode)
	if err != nil || mode == models.ModeNone {
		writeError(w, http.StatusBadRequest, "Invalid extraction mode. Must be 'pure' or 'mapped'")
		return
	}

	err = database.GetDB().WithContext(r.Context()).
		Model(user).Update("extraction_mode", mode).Error
	if err != nil {
		writeDBError(w, err, "User")
		return
	}
	user.ExtractionMode = mode

	writeJSON(w, http.StatusOK, modeResponse{
		Mode:    mode,
		Message: fmt.Sprintf("Extraction mode set to %s", mode),
	})
}
