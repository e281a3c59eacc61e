package handlers

import (
	"net/http"
	"strconv"

	"exceptionforms/database"
	"exceptionforms/models"
)

const (
	defaultAuditLimit = 500
	maxAuditLimit     = 5000
)

type AuditHandler struct{}

func NewAuditHandler() *AuditHandler {
	return &AuditHandler{}
}

// List returns the newest audit entries, ?limit of them (500 by default).
func (h *AuditHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := defaultAuditLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxAuditLimit)
	}

	logs, err := database.RecentAudit(database.GetDB().WithContext(r.Context()), limit)
	if err != nil {
		writeDBError(w, err, "Audit log")
		return
	}

	entries := make([]models.AuditEntry, 0, len(logs))
	for i := range logs {
		entries = append(entries, logs[i].Entry())
	}
	writeJSON(w, http.StatusOK, struct {
		Logs []models.AuditEntry `json:"logs"`
	}{entries})
}
