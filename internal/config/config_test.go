package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()
	if cfg.DocsBranch != "main" {
		t.Fatalf("DocsBranch = %q, want main", cfg.DocsBranch)
	}
	if cfg.RemoteName != "origin" {
		t.Fatalf("RemoteName = %q, want origin", cfg.RemoteName)
	}
	if cfg.LockTimeout <= 0 || cfg.RemoteTimeout <= 0 || cfg.CacheTTL <= 0 {
		t.Fatalf("expected positive durations, got %+v", cfg)
	}
}

func TestLoad_ReadsProjectsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "projects.json")
	data, _ := json.Marshal([]ProjectRepo{{ProjectID: "demo", Path: "/repos/demo"}})
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write projects file: %v", err)
	}

	t.Setenv("DOCREPO_PROJECTS_FILE", path)
	cfg := Load()
	if len(cfg.Projects) != 1 || cfg.Projects[0].ProjectID != "demo" {
		t.Fatalf("projects = %+v", cfg.Projects)
	}
}

func TestGetenvList_SplitsAndTrims(t *testing.T) {
	t.Setenv("DOCREPO_EXTRA_IGNORED_DIRS", "vendor, .cache ,tmp")
	cfg := Load()
	want := []string{"vendor", ".cache", "tmp"}
	if len(cfg.ExtraIgnored) != len(want) {
		t.Fatalf("ExtraIgnored = %v", cfg.ExtraIgnored)
	}
	for i := range want {
		if cfg.ExtraIgnored[i] != want[i] {
			t.Fatalf("ExtraIgnored = %v, want %v", cfg.ExtraIgnored, want)
		}
	}
}
