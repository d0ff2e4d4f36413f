package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/eargollo/tracenav/internal/config"
	"github.com/eargollo/tracenav/internal/scan"
	"github.com/eargollo/tracenav/internal/trace"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_DefaultsApplied(t *testing.T) {
	path := writeConfig(t, "projects:\n  - name: app\n    root: /src/app\n")

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPAddr == "" {
		t.Error("expected default http_addr to be set")
	}
	if cfg.HistoryRetentionDays != 30 {
		t.Errorf("history_retention_days = %d, want 30", cfg.HistoryRetentionDays)
	}
	if len(cfg.Locales) != len(trace.DefaultLocales) {
		t.Errorf("got %d locales, want the defaults", len(cfg.Locales))
	}
	if cfg.ScanWorkers.Walkers == 0 || cfg.ScanWorkers.Matchers == 0 {
		t.Error("expected default worker counts")
	}
	if cfg.RescanSchedule != "" {
		t.Errorf("rescan_schedule = %q, want off by default", cfg.RescanSchedule)
	}
}

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DBPath == "" || len(cfg.Projects) != 0 {
		t.Errorf("unexpected config for missing file: %+v", cfg)
	}
}

func TestLoad_EmptyFile(t *testing.T) {
	if _, err := config.Load(writeConfig(t, "")); err != nil {
		t.Fatalf("Load: %v", err)
	}
}

func TestLoad_UnknownFieldRejected(t *testing.T) {
	_, err := config.Load(writeConfig(t, "scan_paths:\n  - /tmp\n"))
	if err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestLoad_RelativeRootsResolved(t *testing.T) {
	path := writeConfig(t, `
solution_root: /work/Shop
projects:
  - name: web
    root: src/Web
  - name: abs
    root: /elsewhere/Lib
`)
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got, want := cfg.Projects[0].Root, filepath.Join("/work/Shop", "src", "Web"); got != want {
		t.Errorf("web root = %q, want %q", got, want)
	}
	if got := cfg.Projects[1].Root; got != "/elsewhere/Lib" {
		t.Errorf("abs root = %q, want unchanged", got)
	}
}

func TestLoad_RootEscapingSolutionRejected(t *testing.T) {
	path := writeConfig(t, "solution_root: /work/Shop\nprojects:\n  - name: up\n    root: ../../etc\n")
	if _, err := config.Load(path); err == nil {
		t.Fatal("expected error for root above solution_root")
	}
}

func TestValidate(t *testing.T) {
	cfg := &config.Config{
		Locales: trace.DefaultLocales,
		Projects: []config.Project{
			{Name: "app", Root: "/a"},
			{Name: "app", Root: "/b"},
			{Name: "", Root: "/c"},
			{Name: "glob", Root: "/d", Include: []string{"[*.cs"}},
			{Name: "noroot"},
		},
	}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation errors")
	}
	for _, want := range []string{"duplicate name", "name is required", `project "glob"`, "root is required"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %q", err, want)
		}
	}

	bad := &config.Config{Locales: []trace.Locale{{Name: "x"}}}
	if bad.Validate() == nil {
		t.Error("expected error for a locale without words")
	}
	negative := &config.Config{Locales: trace.DefaultLocales, MaxHitsPerFile: -1}
	if err := negative.Validate(); err == nil || !strings.Contains(err.Error(), "max_hits_per_file") {
		t.Errorf("Validate() = %v, want a max_hits_per_file error", err)
	}
}

func TestLoad_MaxHitsPerFile(t *testing.T) {
	path := writeConfig(t, "max_hits_per_file: 5\n")

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.MaxHitsPerFile != 5 {
		t.Errorf("max_hits_per_file = %d, want 5", cfg.MaxHitsPerFile)
	}
}

func TestScanProjects(t *testing.T) {
	cfg := &config.Config{Projects: []config.Project{
		{Name: "web", Root: "/w", Include: []string{"**/*.cs"}, UseGitignore: true},
		{Name: "lib", Root: "/l"},
	}}

	all, err := cfg.ScanProjects()
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 || all[0].Name != "web" || !all[0].Gitignore {
		t.Errorf("ScanProjects() = %+v", all)
	}

	picked, err := cfg.ScanProjects("lib", "web")
	if err != nil {
		t.Fatal(err)
	}
	if picked[0].Name != "lib" || picked[1].Name != "web" {
		t.Errorf("order not preserved: %+v", picked)
	}

	_, err = cfg.ScanProjects("nope")
	if !errors.Is(err, scan.ErrInvalidArgument) {
		t.Errorf("unknown project error = %v, want ErrInvalidArgument", err)
	}
}
