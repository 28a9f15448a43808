package config

import (
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
	gitignore "github.com/sabhiram/go-gitignore"
)

// Matcher decides whether a path encountered during a bulk-reparse walk
// should be fed to the ingest pipeline.
type Matcher struct {
	include  []string
	exclude  []string
	ignore   *gitignore.GitIgnore
	rootPath string
}

// NewMatcher builds a Matcher from cfg, loading root's .gitignore when
// cfg.Index.RespectGitignore is set.
func NewMatcher(cfg *Config) *Matcher {
	m := &Matcher{
		include:  cfg.Include,
		exclude:  cfg.Exclude,
		rootPath: cfg.Project.Root,
	}

	if cfg.Index.RespectGitignore {
		gitignorePath := filepath.Join(cfg.Project.Root, ".gitignore")
		if _, err := os.Stat(gitignorePath); err == nil {
			if ign, err := gitignore.CompileIgnoreFile(gitignorePath); err == nil {
				m.ignore = ign
			}
		}
	}

	return m
}

// ShouldIngest reports whether path (relative to the project root) should be
// parsed. Exclude patterns win over include patterns; an empty include list
// means everything not excluded is ingested.
func (m *Matcher) ShouldIngest(relPath string) bool {
	slashPath := filepath.ToSlash(relPath)

	for _, pattern := range m.exclude {
		if matched, _ := doublestar.Match(pattern, slashPath); matched {
			return false
		}
	}

	if m.ignore != nil && m.ignore.MatchesPath(slashPath) {
		return false
	}

	if len(m.include) == 0 {
		return true
	}

	for _, pattern := range m.include {
		if matched, _ := doublestar.Match(pattern, slashPath); matched {
			return true
		}
	}
	return false
}
