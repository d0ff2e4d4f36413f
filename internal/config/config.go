package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/eargollo/tracenav/internal/scan"
	"github.com/eargollo/tracenav/internal/trace"
	"github.com/eargollo/tracenav/internal/workspace"
)

// Config holds all configuration loaded from config.yaml.
type Config struct {
	HTTPAddr             string         `yaml:"http_addr"              json:"-"`
	DBPath               string         `yaml:"db_path"                json:"-"`
	LogLevel             string         `yaml:"log_level"              json:"-"`
	SolutionRoot         string         `yaml:"solution_root"          json:"solution_root"`
	Projects             []Project      `yaml:"projects"               json:"projects"`
	Locales              []trace.Locale `yaml:"locales"                json:"locales"`
	RescanSchedule       string         `yaml:"rescan_schedule"        json:"rescan_schedule"`
	HistoryRetentionDays int            `yaml:"history_retention_days" json:"history_retention_days"`
	ContentCacheSize     int            `yaml:"content_cache_size"     json:"content_cache_size"`
	ScanWorkers          ScanWorkers    `yaml:"scan_workers"           json:"scan_workers"`
	MaxHitsPerFile       int            `yaml:"max_hits_per_file"      json:"max_hits_per_file"`
	WatchFiles           bool           `yaml:"watch_files"            json:"watch_files"`
	Navigator            Navigator      `yaml:"navigator"              json:"navigator"`
}

// Project is one searchable project of the solution.
type Project struct {
	Name         string   `yaml:"name"          json:"name"`
	Root         string   `yaml:"root"          json:"root"`
	Include      []string `yaml:"include"       json:"include,omitempty"`
	Exclude      []string `yaml:"exclude"       json:"exclude,omitempty"`
	UseGitignore bool     `yaml:"use_gitignore" json:"use_gitignore"`
}

// ScanWorkers holds concurrency knobs for enumeration and matching.
type ScanWorkers struct {
	Walkers  int `yaml:"walkers"  json:"walkers"`
	Matchers int `yaml:"matchers" json:"matchers"`
}

// Navigator configures how documents are opened. An empty Command only logs.
type Navigator struct {
	Command []string `yaml:"command" json:"command"`
}

// applyDefaults fills zero/empty fields with sensible defaults.
func (c *Config) applyDefaults() {
	if c.HTTPAddr == "" {
		c.HTTPAddr = "127.0.0.1:8765"
	}
	if c.DBPath == "" {
		c.DBPath = "tracenav.db"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if len(c.Locales) == 0 {
		c.Locales = append([]trace.Locale(nil), trace.DefaultLocales...)
	}
	if c.HistoryRetentionDays == 0 {
		c.HistoryRetentionDays = 30
	}
	if c.ContentCacheSize == 0 {
		c.ContentCacheSize = 2048
	}
	if c.ScanWorkers.Walkers == 0 {
		c.ScanWorkers.Walkers = 4
	}
	if c.ScanWorkers.Matchers == 0 {
		c.ScanWorkers.Matchers = 4
	}
}

// resolveRoots makes relative project roots absolute against the solution
// root, or against the config file's directory when no solution root is set.
func (c *Config) resolveRoots(configDir string) error {
	base := c.SolutionRoot
	if base == "" {
		base = configDir
	}
	if base != "" && !filepath.IsAbs(base) {
		abs, err := filepath.Abs(base)
		if err != nil {
			return err
		}
		base = abs
	}
	if c.SolutionRoot != "" {
		c.SolutionRoot = base
	}
	for i := range c.Projects {
		p := &c.Projects[i]
		if p.Root == "" || filepath.IsAbs(p.Root) {
			continue
		}
		abs, err := workspace.AbsolutePath(p.Root, base)
		if err != nil {
			return fmt.Errorf("project %q: %w", p.Name, err)
		}
		p.Root = abs
	}
	return nil
}

// Validate reports every configuration problem at once.
func (c *Config) Validate() error {
	var errs []error
	seen := make(map[string]bool, len(c.Projects))
	for i, p := range c.Projects {
		switch {
		case p.Name == "":
			errs = append(errs, fmt.Errorf("projects[%d]: name is required", i))
		case seen[p.Name]:
			errs = append(errs, fmt.Errorf("projects[%d]: duplicate name %q", i, p.Name))
		}
		seen[p.Name] = true
		if p.Root == "" {
			errs = append(errs, fmt.Errorf("project %q: root is required", p.Name))
		}
		if err := workspace.ValidatePatterns(p.Include, p.Exclude); err != nil {
			errs = append(errs, fmt.Errorf("project %q: %w", p.Name, err))
		}
	}
	if _, err := trace.NewClassifier(c.Locales...); err != nil {
		errs = append(errs, err)
	}
	if c.HistoryRetentionDays < 0 {
		errs = append(errs, errors.New("history_retention_days must not be negative"))
	}
	if c.ScanWorkers.Walkers < 0 || c.ScanWorkers.Matchers < 0 {
		errs = append(errs, errors.New("scan_workers must not be negative"))
	}
	if c.MaxHitsPerFile < 0 {
		errs = append(errs, errors.New("max_hits_per_file must not be negative"))
	}
	return errors.Join(errs...)
}

// ScanProjects converts the configured projects for the scan manager. With
// names, only those projects are returned, in the order given; unknown names
// are an error.
func (c *Config) ScanProjects(names ...string) ([]scan.Project, error) {
	byName := make(map[string]Project, len(c.Projects))
	for _, p := range c.Projects {
		byName[p.Name] = p
	}
	pick := c.Projects
	if len(names) > 0 {
		pick = make([]Project, 0, len(names))
		for _, n := range names {
			p, ok := byName[n]
			if !ok {
				return nil, fmt.Errorf("%w: unknown project %q", scan.ErrInvalidArgument, n)
			}
			pick = append(pick, p)
		}
	}
	out := make([]scan.Project, len(pick))
	for i, p := range pick {
		out[i] = scan.Project{
			Name:      p.Name,
			Root:      p.Root,
			Include:   p.Include,
			Exclude:   p.Exclude,
			Gitignore: p.UseGitignore,
		}
	}
	return out, nil
}

// Load reads and parses the YAML config file at path.
// If the file does not exist, Load returns a default Config so the server
// can start without a config file.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		var cfg Config
		cfg.applyDefaults()
		return &cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open config %q: %w", path, err)
	}
	defer f.Close()

	var cfg Config
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse config %q: %w", path, err)
	}
	cfg.applyDefaults()
	if err := cfg.resolveRoots(filepath.Dir(path)); err != nil {
		return nil, fmt.Errorf("config %q: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %q: %w", path, err)
	}
	return &cfg, nil
}
