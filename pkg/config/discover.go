package config

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/polisai/huntgen/pkg/domain"
)

// DefaultSearchDirs are tried in order when no config path is given.
var DefaultSearchDirs = []string{"configs", "config", filepath.Join("data", "configs")}

// IsScenarioFile reports whether path has a YAML extension.
func IsScenarioFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yml" || ext == ".yaml"
}

// Discover returns the scenario files under path. A file is returned as is;
// a directory is walked recursively for *.yml and *.yaml files, sorted.
func Discover(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("discover %s: %w", path, err)
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	var files []string
	err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && IsScenarioFile(p) {
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("discover %s: %w", path, err)
	}
	slices.Sort(files)
	if len(files) == 0 {
		return nil, fmt.Errorf("discover %s: %w", path, domain.ErrNoScenarioConfig)
	}
	return files, nil
}

// AutoDiscover tries each search directory in turn and returns the files of
// the first one that holds scenarios.
func AutoDiscover(dirs ...string) ([]string, error) {
	if len(dirs) == 0 {
		dirs = DefaultSearchDirs
	}
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		files, err := Discover(dir)
		if err == nil {
			return files, nil
		}
	}
	return nil, fmt.Errorf("searched %s: %w", strings.Join(dirs, ", "), domain.ErrNoScenarioConfig)
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
