package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// LHCIConfig represents the parts of a Lighthouse CI config (.lighthouserc)
// that say where reports end up on disk.
type LHCIConfig struct {
	CI struct {
		Collect *struct {
			NumberOfRuns int `yaml:"numberOfRuns"`
		} `yaml:"collect"`
		Upload struct {
			Target    string `yaml:"target"`
			OutputDir string `yaml:"outputDir"`
		} `yaml:"upload"`
	} `yaml:"ci"`
}

// lhciCollectDir is where `lhci collect` writes reports, relative to the
// directory it runs in.
const lhciCollectDir = ".lighthouseci"

// lhciConfigNames are the config file names Lighthouse CI looks for.
// JavaScript configs are not evaluated.
var lhciConfigNames = []string{
	".lighthouserc.json", ".lighthouserc.yml", ".lighthouserc.yaml",
	"lighthouserc.json", "lighthouserc.yml", "lighthouserc.yaml",
	".lighthouserc",
}

// ParseLHCIConfig reads a Lighthouse CI config file and returns the
// directories its reports are written to: the filesystem upload target's
// outputDir and, when a collect section exists, the .lighthouseci directory.
// Relative paths resolve against the config file's directory. JSON configs
// parse as YAML.
func ParseLHCIConfig(configPath string) ([]string, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read lighthouse ci config: %w", err)
	}

	var config LHCIConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse lighthouse ci config: %w", err)
	}

	base := filepath.Dir(configPath)
	resolve := func(dir string) string {
		if filepath.IsAbs(dir) {
			return filepath.Clean(dir)
		}
		return filepath.Join(base, dir)
	}

	var dirs []string
	upload := config.CI.Upload
	if upload.OutputDir != "" && (upload.Target == "" || upload.Target == "filesystem") {
		dirs = append(dirs, resolve(upload.OutputDir))
	}
	if config.CI.Collect != nil {
		dirs = appendUnique(dirs, resolve(lhciCollectDir))
	}

	return dirs, nil
}

// FindLHCIConfig returns the first Lighthouse CI config file in dir.
func FindLHCIConfig(dir string) (string, error) {
	for _, name := range lhciConfigNames {
		path := filepath.Join(dir, name)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path, nil
		}
	}
	return "", os.ErrNotExist
}
