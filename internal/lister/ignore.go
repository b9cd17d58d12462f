package lister

import (
	"bufio"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/openmined/treesync/internal/utils"
	gitignore "github.com/sabhiram/go-gitignore"
)

// IgnoreFileName holds extra gitignore-style rules at the root of a synced tree.
const IgnoreFileName = ".treesyncignore"

var defaultIgnoreLines = []string{
	// treesync
	IgnoreFileName,
	utils.LockFileName,
	// editors
	"*.swp",
	"*.swx",
	"*~",
	".#*",
	"4913",
	// vcs
	".git/",
	".hg/",
	// OS-specific
	".DS_Store",
	"Thumbs.db",
	"Icon",
}

type IgnoreList struct {
	baseDir string
	ignore  *gitignore.GitIgnore
}

func NewIgnoreList(baseDir string) *IgnoreList {
	return &IgnoreList{baseDir: baseDir}
}

// Load compiles the default rules plus the rules of the ignore file, if any.
func (s *IgnoreList) Load() {
	ignorePath := filepath.Join(s.baseDir, IgnoreFileName)
	ignoreLines := append([]string(nil), defaultIgnoreLines...)

	if utils.FileExists(ignorePath) {
		ignoreLines = append(ignoreLines, readRules(ignorePath)...)
	}

	s.ignore = gitignore.CompileIgnoreLines(ignoreLines...)
}

func readRules(path string) []string {
	file, err := os.Open(path)
	if err != nil {
		slog.Warn("lister ignore file open", "path", path, "error", err)
		return nil
	}
	defer file.Close()

	var rules []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		if line := scanner.Text(); line != "" {
			rules = append(rules, line)
		}
	}
	if err := scanner.Err(); err != nil {
		slog.Warn("lister ignore file read", "path", path, "error", err)
	}
	return rules
}

// ShouldIgnore reports whether the root-relative, forward-slash path matches a rule.
func (s *IgnoreList) ShouldIgnore(rel string) bool {
	if s.ignore == nil {
		s.Load()
	}
	return s.ignore.MatchesPath(rel)
}

// ShouldIgnorePath is ShouldIgnore applied to rel and to every parent
// directory of rel, so files under an ignored directory match too.
func (s *IgnoreList) ShouldIgnorePath(rel string) bool {
	if s.ShouldIgnore(rel) {
		return true
	}
	for i := 0; i < len(rel); i++ {
		if rel[i] == '/' && s.ShouldIgnore(rel[:i+1]) {
			return true
		}
	}
	return false
}
