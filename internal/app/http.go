package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"docrepo/internal/docengine"
	"docrepo/internal/export"
	"docrepo/internal/identity"
	"docrepo/internal/search"
)

// HTTPServer exposes the docengine operations table (spec §6) over HTTP,
// plus the supplemental search and export surfaces.
type HTTPServer struct {
	service    *Service
	corsOrigin string
}

func NewHTTPServer(service *Service, corsOrigin string) *HTTPServer {
	return &HTTPServer{service: service, corsOrigin: corsOrigin}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		status := "ready"
		statusCode := http.StatusOK
		checks := map[string]any{"repositories": map[string]any{"status": "ok"}}
		if err := s.service.Ping(ctx); err != nil {
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable
			checks["repositories"] = map[string]any{"status": "error", "error": err.Error()}
		}
		writeJSON(w, statusCode, map[string]any{"ok": status == "ready", "status": status, "checks": checks})
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/whoami" {
		s.handleWhoAmI(w, r)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/search" {
		s.handleSearch(w, r)
		return
	}

	segments := splitPath(r.URL.Path)
	// Expect /api/projects/{projectID}/...
	if len(segments) >= 3 && segments[0] == "api" && segments[1] == "projects" {
		projectID := segments[2]
		rest := segments[3:]
		s.routeProject(w, r, projectID, rest)
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) routeProject(w http.ResponseWriter, r *http.Request, projectID string, rest []string) {
	ctx := s.withCallerIdentity(r)

	switch {
	case len(rest) == 1 && rest[0] == "documents" && r.Method == http.MethodGet:
		s.handleListDocuments(w, r.WithContext(ctx), projectID)
		return
	case len(rest) >= 2 && rest[0] == "documents" && r.Method == http.MethodGet:
		s.handleGetDocument(w, r.WithContext(ctx), projectID, strings.Join(rest[1:], "/"))
		return
	case len(rest) >= 2 && rest[0] == "documents" && r.Method == http.MethodPut:
		s.handleUpdateDocument(w, r.WithContext(ctx), projectID, strings.Join(rest[1:], "/"))
		return
	case len(rest) >= 2 && rest[0] == "documents" && r.Method == http.MethodPost:
		s.handleCreateFile(w, r.WithContext(ctx), projectID, strings.Join(rest[1:], "/"))
		return
	case len(rest) == 1 && rest[0] == "branches" && r.Method == http.MethodGet:
		s.handleListBranches(w, r.WithContext(ctx), projectID)
		return
	case len(rest) == 1 && rest[0] == "branch" && r.Method == http.MethodGet:
		s.handleGetBranch(w, r.WithContext(ctx), projectID)
		return
	case len(rest) == 1 && rest[0] == "branch" && r.Method == http.MethodPost:
		s.handleSwitchBranch(w, r.WithContext(ctx), projectID)
		return
	case len(rest) == 1 && rest[0] == "sync" && r.Method == http.MethodGet:
		s.handleSyncStatus(w, r.WithContext(ctx), projectID)
		return
	case len(rest) == 1 && rest[0] == "sync" && r.Method == http.MethodPost:
		s.handleSync(w, r.WithContext(ctx), projectID)
		return
	case len(rest) >= 2 && rest[0] == "export" && r.Method == http.MethodGet:
		s.handleExport(w, r.WithContext(ctx), projectID, strings.Join(rest[1:], "/"))
		return
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleListDocuments(w http.ResponseWriter, r *http.Request, projectID string) {
	docs, err := s.service.ListDocuments(r.Context(), projectID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": docs})
}

func (s *HTTPServer) handleGetDocument(w http.ResponseWriter, r *http.Request, projectID, relativePath string) {
	doc, err := s.service.GetDocument(r.Context(), projectID, relativePath)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *HTTPServer) handleUpdateDocument(w http.ResponseWriter, r *http.Request, projectID, relativePath string) {
	var body struct {
		Content string `json:"content"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	result, err := s.service.UpdateDocument(r.Context(), projectID, relativePath, body.Content)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *HTTPServer) handleCreateFile(w http.ResponseWriter, r *http.Request, projectID, relativePath string) {
	var body struct {
		Content string `json:"content"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	result, err := s.service.CreateFile(r.Context(), projectID, relativePath, body.Content)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (s *HTTPServer) handleListBranches(w http.ResponseWriter, r *http.Request, projectID string) {
	branches, err := s.service.ListBranches(r.Context(), projectID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"branches": branches})
}

func (s *HTTPServer) handleGetBranch(w http.ResponseWriter, r *http.Request, projectID string) {
	info, err := s.service.GetBranch(r.Context(), projectID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *HTTPServer) handleSwitchBranch(w http.ResponseWriter, r *http.Request, projectID string) {
	var body struct {
		Name string `json:"name"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	if err := s.service.SwitchBranch(r.Context(), projectID, body.Name); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleSyncStatus(w http.ResponseWriter, r *http.Request, projectID string) {
	status, err := s.service.SyncStatus(r.Context(), projectID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *HTTPServer) handleSync(w http.ResponseWriter, r *http.Request, projectID string) {
	var body struct {
		AllowRebase bool `json:"allowRebase"`
	}
	_ = decodeBody(r, &body)
	status, err := s.service.Sync(r.Context(), projectID, body.AllowRebase)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *HTTPServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := search.Query{
		ProjectID: r.URL.Query().Get("projectId"),
		Text:      r.URL.Query().Get("q"),
		FileType:  r.URL.Query().Get("fileType"),
		Limit:     queryInt(r, "limit", 20),
		Offset:    queryInt(r, "offset", 0),
	}
	resp := s.service.Search(r.Context(), q)
	writeJSON(w, http.StatusOK, resp)
}

func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request, projectID, relativePath string) {
	format := export.Format(r.URL.Query().Get("format"))
	if format == "" {
		format = export.FormatPDF
	}
	result, err := s.service.Export(r.Context(), projectID, relativePath, format)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	w.Header().Set("Content-Type", result.MimeType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.Data)
}

func (s *HTTPServer) handleWhoAmI(w http.ResponseWriter, r *http.Request) {
	ctx := s.withCallerIdentity(r)
	caller, ok := identity.CallerFromContext(ctx)
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{"authenticated": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"authenticated": true, "name": caller.Name, "email": caller.Email})
}

// withCallerIdentity resolves the request's bearer token (if any) to a
// commit identity and attaches it to the request context so docengine
// attributes writes to the authenticated caller rather than the
// repository's default identity (spec §4.4 step 7).
func (s *HTTPServer) withCallerIdentity(r *http.Request) context.Context {
	token := bearerToken(r)
	if token == "" {
		return r.Context()
	}
	caller, err := s.service.ResolveCaller(token)
	if err != nil {
		return r.Context()
	}
	ctx := identity.ContextWithCaller(r.Context(), caller)
	return docengine.ContextWithIdentity(ctx, caller)
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		log.Info().
			Str("request_id", requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", writer.status).
			Dur("duration", time.Since(started)).
			Msg("http request")
	})
}

type requestIDKey struct{}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{"code": code, "error": message}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func writeDomainError(w http.ResponseWriter, err error) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		writeError(w, domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details)
		return
	}
	writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func queryInt(r *http.Request, key string, fallback int) int {
	value := r.URL.Query().Get(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}
