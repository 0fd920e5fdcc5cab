package app

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"docrepo/internal/docengine"
	"docrepo/internal/export"
	"docrepo/internal/identity"
)

func initTestRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	repo, err := git.PlainInitWithOptions(dir, &git.PlainInitOptions{
		InitOptions: git.InitOptions{
			DefaultBranch: plumbing.NewBranchReferenceName("main"),
		},
	})
	if err != nil {
		t.Fatalf("git init: %v", err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		t.Fatalf("worktree: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "README.md"), []byte("# Hi\n"), 0o644); err != nil {
		t.Fatalf("seed file: %v", err)
	}
	if _, err := wt.Add("."); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := wt.Commit("docs: add README.md", &git.CommitOptions{
		Author: &object.Signature{Name: "Avery", Email: "avery@example.com", When: time.Now()},
	}); err != nil {
		t.Fatalf("commit: %v", err)
	}
	return dir
}

func newTestServer(t *testing.T, identityReg *identity.Registry) *HTTPServer {
	t.Helper()
	dir := initTestRepo(t)
	engine, err := docengine.New(docengine.Config{
		ProjectID:    "demo",
		WorktreePath: dir,
		DocsBranch:   "main",
	}, docengine.NewArbiter())
	if err != nil {
		t.Fatalf("New engine: %v", err)
	}
	projects := map[string]*Project{
		"demo": {Engine: engine, Export: export.NewService("demo", engine)},
	}
	service := NewService(projects, nil, identityReg)
	return NewHTTPServer(service, "*")
}

func doRequest(h http.Handler, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, nil)
	rec := doRequest(s.Handler(), http.MethodGet, "/api/health", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestReady(t *testing.T) {
	s := newTestServer(t, nil)
	rec := doRequest(s.Handler(), http.MethodGet, "/api/ready", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
}

func TestListDocuments(t *testing.T) {
	s := newTestServer(t, nil)
	rec := doRequest(s.Handler(), http.MethodGet, "/api/projects/demo/documents", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var body struct {
		Documents []docengine.Document `json:"documents"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(body.Documents) != 1 || body.Documents[0].RelativePath != "README.md" {
		t.Fatalf("documents = %+v", body.Documents)
	}
}

func TestListDocuments_UnknownProject(t *testing.T) {
	s := newTestServer(t, nil)
	rec := doRequest(s.Handler(), http.MethodGet, "/api/projects/does-not-exist/documents", nil, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestCreateAndGetDocument(t *testing.T) {
	s := newTestServer(t, nil)
	h := s.Handler()

	createRec := doRequest(h, http.MethodPost, "/api/projects/demo/documents/guide.md",
		map[string]string{"content": "# Guide\n"}, nil)
	if createRec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body = %s", createRec.Code, createRec.Body.String())
	}

	getRec := doRequest(h, http.MethodGet, "/api/projects/demo/documents/guide.md", nil, nil)
	if getRec.Code != http.StatusOK {
		t.Fatalf("get status = %d", getRec.Code)
	}
	var doc docengine.DocumentContent
	if err := json.Unmarshal(getRec.Body.Bytes(), &doc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if doc.Content != "# Guide\n" {
		t.Fatalf("content = %q", doc.Content)
	}
}

func TestCreateFile_AlreadyExists(t *testing.T) {
	s := newTestServer(t, nil)
	h := s.Handler()

	rec := doRequest(h, http.MethodPost, "/api/projects/demo/documents/README.md",
		map[string]string{"content": "duplicate"}, nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
}

func TestUpdateDocument_InvalidPath(t *testing.T) {
	s := newTestServer(t, nil)
	rec := doRequest(s.Handler(), http.MethodPut, "/api/projects/demo/documents/../etc/passwd",
		map[string]string{"content": "x"}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
}

func TestListBranchesAndGetBranch(t *testing.T) {
	s := newTestServer(t, nil)
	h := s.Handler()

	branchesRec := doRequest(h, http.MethodGet, "/api/projects/demo/branches", nil, nil)
	if branchesRec.Code != http.StatusOK {
		t.Fatalf("branches status = %d", branchesRec.Code)
	}

	currentRec := doRequest(h, http.MethodGet, "/api/projects/demo/branch", nil, nil)
	if currentRec.Code != http.StatusOK {
		t.Fatalf("branch status = %d", currentRec.Code)
	}
	var info docengine.CurrentBranchInfo
	if err := json.Unmarshal(currentRec.Body.Bytes(), &info); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if info.Name != "main" || !info.IsDocsBranch {
		t.Fatalf("info = %+v", info)
	}
}

func TestSwitchBranch_Unknown(t *testing.T) {
	s := newTestServer(t, nil)
	rec := doRequest(s.Handler(), http.MethodPost, "/api/projects/demo/branch",
		map[string]string{"name": "does-not-exist"}, nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
}

func TestSyncStatus_NoRemote(t *testing.T) {
	s := newTestServer(t, nil)
	rec := doRequest(s.Handler(), http.MethodGet, "/api/projects/demo/sync", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var status docengine.SyncStatus
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if status.HasRemote {
		t.Fatal("expected HasRemote=false")
	}
	if status.CanSync {
		t.Fatal("expected CanSync=false with no remote configured")
	}
	if !strings.Contains(rec.Body.String(), `"can_sync"`) {
		t.Fatalf("expected wire field can_sync in response body, got %s", rec.Body.String())
	}
}

func TestSearch_DisabledReturnsEmpty(t *testing.T) {
	s := newTestServer(t, nil)
	rec := doRequest(s.Handler(), http.MethodGet, "/api/search?q=guide", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp struct {
		Results []any `json:"results"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(resp.Results) != 0 {
		t.Fatalf("expected no results with search disabled, got %+v", resp.Results)
	}
}

func TestWhoAmI_Unauthenticated(t *testing.T) {
	s := newTestServer(t, nil)
	rec := doRequest(s.Handler(), http.MethodGet, "/api/whoami", nil, nil)
	var body struct {
		Authenticated bool `json:"authenticated"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body.Authenticated {
		t.Fatal("expected unauthenticated without a bearer token")
	}
}

func TestWhoAmI_ResolvesBearerToken(t *testing.T) {
	reg, err := identity.NewRegistry([]identity.TokenEntry{
		{Token: "ci-secret", Name: "CI Pipeline", Email: "ci@example.com"},
	})
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	s := newTestServer(t, reg)
	rec := doRequest(s.Handler(), http.MethodGet, "/api/whoami", nil, map[string]string{
		"Authorization": "Bearer ci-secret",
	})
	var body struct {
		Authenticated bool   `json:"authenticated"`
		Name          string `json:"name"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !body.Authenticated || body.Name != "CI Pipeline" {
		t.Fatalf("body = %+v", body)
	}
}

func TestUpdateDocument_AttributesCommitToCaller(t *testing.T) {
	reg, err := identity.NewRegistry([]identity.TokenEntry{
		{Token: "ci-secret", Name: "Jamie", Email: "jamie@example.com"},
	})
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	s := newTestServer(t, reg)
	rec := doRequest(s.Handler(), http.MethodPut, "/api/projects/demo/documents/README.md",
		map[string]string{"content": "# Updated\n"}, map[string]string{"Authorization": "Bearer ci-secret"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
}
