// Package catalog loads workflow definitions from YAML configuration,
// validates them at startup, and serves them read-only to the transition
// engine. A malformed definition refuses process startup.
package catalog

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/schoolops/caseflow/internal/domain/workflow"
)

// definitionFile is the on-disk shape: one file may declare any number of
// categories.
type definitionFile struct {
	Workflows []workflow.Definition `yaml:"workflows"`
}

// LoadFile parses a single YAML file of workflow definitions.
func LoadFile(path string) ([]workflow.Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	var file definitionFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	return file.Workflows, nil
}

// LoadDir recursively scans a directory for *.yaml and *.yml files and
// collects all definitions they declare.
func LoadDir(dir string) ([]workflow.Definition, error) {
	var defs []workflow.Definition

	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}

		fileDefs, err := LoadFile(path)
		if err != nil {
			return err
		}
		defs = append(defs, fileDefs...)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning directory %s: %w", dir, err)
	}

	return defs, nil
}

// Load reads definitions from the given path (file or directory) and builds
// a validated catalog.
func Load(path string) (*Catalog, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}

	var defs []workflow.Definition
	if info.IsDir() {
		defs, err = LoadDir(path)
	} else {
		defs, err = LoadFile(path)
	}
	if err != nil {
		return nil, err
	}

	return New(defs)
}
