package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/tobert/chainscope/internal/storage"
)

// Config holds the runtime configuration for the chainscope server.
// It can be populated from CLI flags, config files, or both.
type Config struct {
	// Comment field for user documentation (ignored by the application)
	Comment string `json:"comment,omitempty" yaml:"comment,omitempty"`

	// Run history
	HistorySize int    `json:"history_size,omitempty" yaml:"history_size,omitempty" validate:"gte=0,lte=100000"`
	DataDir     string `json:"data_dir,omitempty" yaml:"data_dir,omitempty"` // badger directory; empty = memory only

	// Report discovery
	ReportDirs  []string `json:"report_dirs,omitempty" yaml:"report_dirs,omitempty" validate:"dive,required"`
	LHCIConfig  string   `json:"lhci_config,omitempty" yaml:"lhci_config,omitempty"` // .lighthouserc to read outputDir from
	ReportLabel string   `json:"report_label,omitempty" yaml:"report_label,omitempty"`

	// MCP transport configuration
	Transport string `json:"transport,omitempty" yaml:"transport,omitempty" validate:"omitempty,oneof=stdio http"`
	HTTPHost  string `json:"http_host,omitempty" yaml:"http_host,omitempty"`
	HTTPPort  int    `json:"http_port,omitempty" yaml:"http_port,omitempty" validate:"gte=0,lte=65535"`
	Stateless bool   `json:"stateless,omitempty" yaml:"stateless,omitempty"` // Run HTTP transport in stateless mode

	// Web UI configuration
	WebUIPort int    `json:"webui_port,omitempty" yaml:"webui_port,omitempty" validate:"gte=0,lte=65535"` // 0 = same port as HTTP
	WebUIHost string `json:"webui_host,omitempty" yaml:"webui_host,omitempty"`

	// Default collector for export_otlp
	OTLPEndpoint string `json:"otlp_endpoint,omitempty" yaml:"otlp_endpoint,omitempty" validate:"omitempty,hostname_port"`

	// Logging configuration
	Verbose bool `json:"verbose,omitempty" yaml:"verbose,omitempty"`
}

var configValidate = validator.New()

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() *Config {
	return &Config{
		HistorySize: storage.DefaultHistorySize,
		Transport:   "stdio",
		HTTPHost:    "127.0.0.1",
		HTTPPort:    4390,
		Stateless:   false,
		WebUIPort:   0,
		WebUIHost:   "127.0.0.1",
		Verbose:     false,
	}
}

// Validate checks field ranges and enumerations.
func (c *Config) Validate() error {
	if err := configValidate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, len(verrs))
			for i, fe := range verrs {
				msgs[i] = fmt.Sprintf("%s: failed %q (got %v)", fe.Namespace(), fe.Tag(), fe.Value())
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// LoadConfigFromFile loads configuration from a JSON or YAML file at the
// given path. The format is picked by extension; anything that is not
// .yaml or .yml is read as JSON.
func LoadConfigFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &config)
	default:
		err = json.Unmarshal(data, &config)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	return &config, nil
}

// projectConfigNames are the per-project config file names, in lookup order.
var projectConfigNames = []string{".chainscope.json", ".chainscope.yaml", ".chainscope.yml"}

// FindProjectConfig searches for a .chainscope.{json,yaml,yml} config file.
// It starts in the current directory and walks up looking for the file,
// stopping when it finds a .git directory (project root) or reaches root.
func FindProjectConfig() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get working directory: %w", err)
	}

	for {
		for _, name := range projectConfigNames {
			configPath := filepath.Join(dir, name)
			if _, err := os.Stat(configPath); err == nil {
				return configPath, nil
			}
		}

		// Check if we're at a git repo root (stop here even if no config)
		if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
			break
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", os.ErrNotExist
}

// GlobalConfigPath returns the path to the global config file:
// ~/.config/chainscope/config.json, or config.yaml when only that exists.
func GlobalConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	dir := filepath.Join(home, ".config", "chainscope")
	for _, name := range []string{"config.json", "config.yaml", "config.yml"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err == nil {
			return filepath.Join(dir, name)
		}
	}
	return filepath.Join(dir, "config.json")
}

// MergeConfigs merges two configs with the overlay taking precedence.
// Fields in overlay override corresponding fields in base.
// Returns a new Config with the merged values.
func MergeConfigs(base, overlay *Config) *Config {
	if base == nil {
		base = &Config{}
	}
	if overlay == nil {
		return base
	}

	merged := *base

	if overlay.HistorySize > 0 {
		merged.HistorySize = overlay.HistorySize
	}
	if overlay.DataDir != "" {
		merged.DataDir = overlay.DataDir
	}
	if overlay.Verbose {
		merged.Verbose = overlay.Verbose
	}

	// Report directories accumulate across layers
	if len(overlay.ReportDirs) > 0 {
		merged.ReportDirs = appendUnique(append([]string(nil), base.ReportDirs...), overlay.ReportDirs...)
	}
	if overlay.LHCIConfig != "" {
		merged.LHCIConfig = overlay.LHCIConfig
	}
	if overlay.ReportLabel != "" {
		merged.ReportLabel = overlay.ReportLabel
	}

	// Merge HTTP transport settings
	if overlay.Transport != "" {
		merged.Transport = overlay.Transport
	}
	if overlay.HTTPHost != "" {
		merged.HTTPHost = overlay.HTTPHost
	}
	if overlay.HTTPPort > 0 {
		merged.HTTPPort = overlay.HTTPPort
	}
	if overlay.Stateless {
		merged.Stateless = overlay.Stateless
	}

	// Merge Web UI settings
	if overlay.WebUIPort > 0 {
		merged.WebUIPort = overlay.WebUIPort
	}
	if overlay.WebUIHost != "" {
		merged.WebUIHost = overlay.WebUIHost
	}

	if overlay.OTLPEndpoint != "" {
		merged.OTLPEndpoint = overlay.OTLPEndpoint
	}

	return &merged
}

func appendUnique(dst []string, values ...string) []string {
	for _, v := range values {
		dup := false
		for _, have := range dst {
			if have == v {
				dup = true
				break
			}
		}
		if !dup {
			dst = append(dst, v)
		}
	}
	return dst
}

// LoadEffectiveConfig loads the effective configuration by merging:
// 1. Built-in defaults
// 2. Global config file (if exists)
// 3. Project config file (if exists)
// 4. Explicit config file (if specified via configPath)
// Later sources override earlier ones. The result is validated.
func LoadEffectiveConfig(configPath string) (*Config, error) {
	config := DefaultConfig()

	// Layer 2: Global config (optional, errors ignored)
	if globalPath := GlobalConfigPath(); globalPath != "" {
		if globalCfg, err := LoadConfigFromFile(globalPath); err == nil {
			config = MergeConfigs(config, globalCfg)
		}
	}

	// Layer 3: Project config (if exists and no explicit path)
	if configPath == "" {
		if projectPath, err := FindProjectConfig(); err == nil {
			projectCfg, err := LoadConfigFromFile(projectPath)
			if err != nil {
				return nil, fmt.Errorf("failed to load project config: %w", err)
			}
			config = MergeConfigs(config, projectCfg)
		}
	} else {
		explicitCfg, err := LoadConfigFromFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
		config = MergeConfigs(config, explicitCfg)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}
