// Package config loads and validates the settings that govern how a
// repository is ingested, locked, and persisted.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

// Config holds every recognized option from the repository's configuration
// surface: project location, ingest limits, and pipeline tuning.
type Config struct {
	Project Project
	Index   Index
	Pipeline Pipeline
	Include []string
	Exclude []string
}

// Project describes the directory tree the repository ingests.
type Project struct {
	Root string
	Name string
}

// Index controls the bulk-reparse file walk.
type Index struct {
	MaxFileSize      int64
	FollowSymlinks   bool
	RespectGitignore bool
}

// Pipeline controls the ingest/update pipeline (C5) and snapshot I/O (C6).
type Pipeline struct {
	// SnapshotPath is the on-disk snapshot location. Empty disables
	// load-on-init / save-on-dispose.
	SnapshotPath string

	// Parallelism is the producer pool worker count. 0 means hardware
	// parallelism (runtime.GOMAXPROCS(0)).
	Parallelism int

	// LockRecursion enables recursive acquisition of the global scope lock.
	LockRecursion bool

	// ScanIntervalSeconds is the poll interval for the directory-watcher
	// collaborator (internal/watch).
	ScanIntervalSeconds float64
}

// DefaultExclude lists the directories and file types that are never worth
// feeding to a parser: version control metadata, dependency trees, build
// output, and binary/media formats.
func DefaultExclude() []string {
	return []string{
		"**/.git/**",
		"**/node_modules/**",
		"**/vendor/**",
		"**/dist/**",
		"**/build/**",
		"**/target/**",
		"**/bin/**",
		"**/obj/**",
		"**/.cache/**",
		"**/*.min.js",
		"**/*.so",
		"**/*.dll",
		"**/*.dylib",
		"**/*.exe",
		"**/*.class",
		"**/*.jar",
	}
}

// Default returns a Config with the repository's built-in defaults rooted
// at root.
func Default(root string) *Config {
	return &Config{
		Project: Project{Root: root},
		Index: Index{
			MaxFileSize:      10 * 1024 * 1024,
			FollowSymlinks:   false,
			RespectGitignore: true,
		},
		Pipeline: Pipeline{
			Parallelism:         runtime.GOMAXPROCS(0),
			LockRecursion:       true,
			ScanIntervalSeconds: 60,
		},
		Include: []string{},
		Exclude: DefaultExclude(),
	}
}

// Load reads configuration for root, checking a project-local
// .scopegraph.kdl before a per-user ~/.scopegraph.kdl, and falling back to
// Default when neither exists.
func Load(root string) (*Config, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve project root: %w", err)
	}

	cfg := Default(absRoot)

	if home, err := os.UserHomeDir(); err == nil {
		if base, err := LoadKDL(home); err == nil && base != nil {
			cfg = mergeConfigs(cfg, base)
		}
	}

	if project, err := LoadKDL(absRoot); err != nil {
		return nil, err
	} else if project != nil {
		project.Project.Root = absRoot
		cfg = mergeConfigs(cfg, project)
	}

	return cfg, nil
}

// mergeConfigs overlays override onto base: override's non-zero/non-empty
// string and numeric fields win, its boolean fields are always copied (a
// KDL file starts from the default booleans, so an absent key keeps the
// default), and Exclude lists are unioned rather than replaced so a
// project file adds to, rather than discards, inherited exclusions.
func mergeConfigs(base, override *Config) *Config {
	merged := *base

	if override.Project.Root != "" {
		merged.Project.Root = override.Project.Root
	}
	if override.Project.Name != "" {
		merged.Project.Name = override.Project.Name
	}
	if override.Index.MaxFileSize != 0 {
		merged.Index.MaxFileSize = override.Index.MaxFileSize
	}
	merged.Index.FollowSymlinks = override.Index.FollowSymlinks
	merged.Index.RespectGitignore = override.Index.RespectGitignore

	if override.Pipeline.SnapshotPath != "" {
		merged.Pipeline.SnapshotPath = override.Pipeline.SnapshotPath
	}
	if override.Pipeline.Parallelism != 0 {
		merged.Pipeline.Parallelism = override.Pipeline.Parallelism
	}
	if override.Pipeline.ScanIntervalSeconds != 0 {
		merged.Pipeline.ScanIntervalSeconds = override.Pipeline.ScanIntervalSeconds
	}
	merged.Pipeline.LockRecursion = override.Pipeline.LockRecursion

	if len(override.Include) > 0 {
		merged.Include = override.Include
	}

	seen := make(map[string]bool, len(merged.Exclude))
	union := make([]string, 0, len(merged.Exclude)+len(override.Exclude))
	for _, p := range merged.Exclude {
		if !seen[p] {
			seen[p] = true
			union = append(union, p)
		}
	}
	for _, p := range override.Exclude {
		if !seen[p] {
			seen[p] = true
			union = append(union, p)
		}
	}
	merged.Exclude = union

	return &merged
}
