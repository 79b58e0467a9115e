package discover

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	ignore "github.com/sabhiram/go-gitignore"

	"github.com/codegraphhq/codegraph/internal/lang"
)

// IGNORE_PATTERNS are directory names to skip during discovery.
var IGNORE_PATTERNS = map[string]bool{
	".cache": true, ".eclipse": true, ".eggs": true,
	".env": true, ".git": true, ".gradle": true, ".hg": true,
	".idea": true, ".maven": true, ".mypy_cache": true, ".nox": true,
	".npm": true, ".nyc_output": true, ".pnpm-store": true,
	".pytest_cache": true, ".ruff_cache": true, ".svn": true,
	".tmp": true, ".tox": true, ".venv": true, ".vs": true,
	".vscode": true, ".yarn": true, "__pycache__": true,
	"bower_components": true, "build": true, "coverage": true,
	"dist": true, "env": true, "htmlcov": true, "node_modules": true,
	"obj": true, "out": true, "Pods": true, "site-packages": true,
	"target": true, "temp": true, "tmp": true, "vendor": true,
	"venv": true,
}

// IGNORE_SUFFIXES are file suffixes to skip.
var IGNORE_SUFFIXES = map[string]bool{
	".tmp": true, "~": true, ".pyc": true, ".pyo": true, ".min.js": true,
	".o": true, ".a": true, ".so": true, ".dll": true, ".class": true,
}

// FileInfo represents a discovered source file.
type FileInfo struct {
	Path     string        // absolute path
	RelPath  string        // relative to repo root, slash-separated
	Language lang.Language // detected language
}

// Options configures file discovery.
type Options struct {
	IgnoreFile string // path to a .cgrignore file; defaults to <repo>/.cgrignore
	MaxBytes   int64  // skip files larger than this; 0 means no limit
}

// Discover walks a repository and returns the source files the extractors
// can handle. Patterns from .gitignore and .cgrignore at the repo root are
// honored in addition to the built-in ignore sets.
func Discover(ctx context.Context, repoPath string, opts *Options) ([]FileInfo, error) {
	repoPath, err := filepath.Abs(repoPath)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	matcher := loadIgnoreMatchers(repoPath, opts)
	var maxBytes int64
	if opts != nil {
		maxBytes = opts.MaxBytes
	}

	var files []FileInfo
	err = filepath.Walk(repoPath, func(path string, info os.FileInfo, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if walkErr != nil {
			return filepath.SkipDir
		}
		rel, _ := filepath.Rel(repoPath, path)
		rel = filepath.ToSlash(rel)

		if info.IsDir() {
			if rel != "." && (IGNORE_PATTERNS[info.Name()] || matches(matcher, rel+"/")) {
				return filepath.SkipDir
			}
			return nil
		}

		for suffix := range IGNORE_SUFFIXES {
			if strings.HasSuffix(path, suffix) {
				return nil
			}
		}
		if matches(matcher, rel) {
			return nil
		}
		if maxBytes > 0 && info.Size() > maxBytes {
			return nil
		}

		l, ok := lang.LanguageForExtension(filepath.Ext(path))
		if !ok {
			return nil
		}
		files = append(files, FileInfo{
			Path:     path,
			RelPath:  rel,
			Language: l,
		})
		return nil
	})
	return files, err
}

// loadIgnoreMatchers compiles .gitignore plus .cgrignore into one matcher.
func loadIgnoreMatchers(repoPath string, opts *Options) *ignore.GitIgnore {
	var lines []string
	lines = appendIgnoreLines(lines, filepath.Join(repoPath, ".gitignore"))

	cgrPath := filepath.Join(repoPath, ".cgrignore")
	if opts != nil && opts.IgnoreFile != "" {
		cgrPath = opts.IgnoreFile
	}
	lines = appendIgnoreLines(lines, cgrPath)

	if len(lines) == 0 {
		return nil
	}
	return ignore.CompileIgnoreLines(lines...)
}

func appendIgnoreLines(lines []string, path string) []string {
	data, err := os.ReadFile(path)
	if err != nil {
		return lines
	}
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line != "" && !strings.HasPrefix(line, "#") {
			lines = append(lines, line)
		}
	}
	return lines
}

func matches(matcher *ignore.GitIgnore, rel string) bool {
	return matcher != nil && matcher.MatchesPath(rel)
}
