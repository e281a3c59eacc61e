package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"exceptionforms/config"
	"exceptionforms/database"
	"exceptionforms/extraction"
	"exceptionforms/middleware"
	"exceptionforms/models"
	"exceptionforms/ratelimit"
	"exceptionforms/storage"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func testConfig(t *testing.T) *config.Config {
	return &config.Config{
		DBType:           "sqlite",
		DatabaseURL:      ":memory:",
		DBMaxOpenConns:   1,
		DBLogLevel:       "silent",
		AdminPassword:    "admin-pass",
		JWTSecret:        "test-secret",
		JWTExpiration:    time.Hour,
		UploadDir:        t.TempDir(),
		MaxUploadMB:      8,
		ExtractorTimeout: 5 * time.Second,
		LoginRateLimit:   3,
		LoginRateWindow:  time.Minute,
	}
}

func setupTestDB(t *testing.T) *config.Config {
	t.Helper()
	cfg := testConfig(t)
	require.NoError(t, database.Init(cfg))
	t.Cleanup(func() { _ = database.Close() })
	middleware.SetJWTSecret(cfg.JWTSecret)
	return cfg
}

func createUser(t *testing.T, username string, role models.Role, mode models.ExtractionMode) *models.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("password1"), bcrypt.MinCost)
	require.NoError(t, err)
	user := &models.User{
		Username:       username,
		PasswordHash:   string(hash),
		Role:           role,
		ExtractionMode: mode,
	}
	require.NoError(t, database.GetDB().Create(user).Error)
	return user
}

func createForm(t *testing.T, rec models.FormRecord) models.FormRecord {
	t.Helper()
	if rec.UploadDate.IsZero() {
		rec.UploadDate = time.Now().UTC()
	}
	rec.Normalize()
	require.NoError(t, database.GetDB().Create(&rec).Error)
	return rec
}

type fakeExtractor struct {
	out   string
	err   error
	calls int
}

func (f *fakeExtractor) Extract(_ context.Context, _ models.FormType, _ string, content io.Reader) ([]byte, error) {
	f.calls++
	if _, err := io.ReadAll(content); err != nil {
		return nil, err
	}
	return []byte(f.out), f.err
}

// testRouter mounts the API handlers with user already authenticated.
func testRouter(cfg *config.Config, user *models.User, ext extraction.Extractor) http.Handler {
	forms := NewFormHandler(cfg)
	uploads := NewUploadHandler(cfg, storage.New(cfg.UploadDir), ext)
	modes := NewModeHandler()
	audit := NewAuditHandler()

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(middleware.WithUser(req.Context(), user)))
		})
	})
	r.Post("/upload", uploads.Upload)
	r.Post("/upload/hourly", uploads.UploadHourly)
	r.Post("/upload/supervisor", uploads.UploadSupervisor)
	r.Get("/api/dashboard", forms.Dashboard)
	r.Get("/api/form/{id}", forms.GetForm)
	r.Put("/api/form/{id}", forms.UpdateForm)
	r.Delete("/api/form/{id}", forms.DeleteForm)
	r.Get("/api/forms/export", forms.ExportCSV)
	r.Post("/api/forms/cleanup-duplicates", forms.CleanupDuplicates)
	r.Get("/api/extraction-mode", modes.Get)
	r.Post("/api/extraction-mode", modes.Set)
	r.Get("/api/audit-trail", audit.List)
	return r
}

func authRouter(cfg *config.Config) http.Handler {
	auth := NewAuthHandler(cfg, ratelimit.NewMemory(cfg.LoginRateWindow, cfg.LoginRateLimit))

	r := chi.NewRouter()
	r.Post("/api/login", auth.Login)
	r.Post("/api/register", auth.Register)
	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthMiddleware)
		r.Post("/api/logout", auth.Logout)
		r.Get("/api/me", auth.Me)
		r.Post("/api/change-password", auth.ChangePassword)
	})
	return r
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

// multipartRequest builds an upload with one part per file name under field.
func multipartRequest(t *testing.T, path, field string, extra map[string]string, names ...string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range extra {
		require.NoError(t, mw.WriteField(k, v))
	}
	for _, name := range names {
		part, err := mw.CreateFormFile(field, name)
		require.NoError(t, err)
		_, err = part.Write([]byte("%PDF-1.4 scan"))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func auditActions(t *testing.T) []string {
	t.Helper()
	logs, err := database.RecentAudit(database.GetDB(), 100)
	require.NoError(t, err)
	out := make([]string, 0, len(logs))
	for _, l := range logs {
		out = append(out, l.Action)
	}
	return out
}
