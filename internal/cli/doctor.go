package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"slices"

	"github.com/urfave/cli/v3"
)

// DoctorCommand returns the CLI command definition for the 'doctor' subcommand.
// This command runs diagnostic checks to verify chainscope is properly configured.
func DoctorCommand(version string) *cli.Command {
	return &cli.Command{
		Name:  "doctor",
		Usage: "Diagnose common setup and configuration issues",
		Description: `Run checks to verify chainscope is wired into your agent.

This command checks:
  - Binary location and permissions
  - Agent MCP configuration (a "chainscope" server entry)
  - chainscope config files and the directories they name
  - Optional report producers (lighthouse, lhci)

Exit codes:
  0 - All critical checks passed
  1 - One or more issues found`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Usage: "Explicit config file to check instead of the discovered ones",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			configPath := cmd.String("config")
			return runDoctor(os.Stdout, version, &realFsUtils{}, func() (*Config, error) {
				return LoadEffectiveConfig(configPath)
			})
		},
	}
}

type checkStatus string

const (
	statusPass checkStatus = "pass"
	statusWarn checkStatus = "warn"
	statusFail checkStatus = "fail"
)

func (s checkStatus) icon() string {
	switch s {
	case statusPass:
		return "✓"
	case statusWarn:
		return "⚠"
	default:
		return "✗"
	}
}

type checkResult struct {
	Name       string
	Status     checkStatus
	Message    string
	Suggestion string
}

func pass(name, format string, args ...any) checkResult {
	return checkResult{Name: name, Status: statusPass, Message: fmt.Sprintf(format, args...)}
}

type fsUtils interface {
	Executable() (string, error)
	Stat(name string) (os.FileInfo, error)
	ReadFile(name string) ([]byte, error)
	UserHomeDir() (string, error)
	Getwd() (string, error)
	LookPath(file string) (string, error)
}

type realFsUtils struct{}

func (r *realFsUtils) Executable() (string, error)           { return os.Executable() }
func (r *realFsUtils) Stat(name string) (os.FileInfo, error) { return os.Stat(name) }
func (r *realFsUtils) ReadFile(name string) ([]byte, error)  { return os.ReadFile(name) }
func (r *realFsUtils) UserHomeDir() (string, error)          { return os.UserHomeDir() }
func (r *realFsUtils) Getwd() (string, error)                { return os.Getwd() }
func (r *realFsUtils) LookPath(file string) (string, error)  { return exec.LookPath(file) }

// doctor holds what the checks inspect.
type doctor struct {
	fs     fsUtils
	cfg    *Config // nil when the config failed to load
	cfgErr error
}

func runDoctor(w io.Writer, version string, utils fsUtils, loadConfig func() (*Config, error)) error {
	fmt.Fprintf(w, "🔍 chainscope doctor v%s\n\n", version)

	d := &doctor{fs: utils}
	d.cfg, d.cfgErr = loadConfig()

	checks := []func() checkResult{
		d.checkBinary,
		d.checkMCPConfig,
		d.checkConfig,
		d.checkReportDirs,
		d.checkDataDir,
		d.checkLighthouse,
		d.checkLHCI,
	}

	var warns, fails int
	for _, check := range checks {
		result := check()
		fmt.Fprintf(w, "%s %s\n", result.Status.icon(), result.Message)
		if result.Suggestion != "" {
			fmt.Fprintf(w, "  %s\n", result.Suggestion)
		}
		switch result.Status {
		case statusWarn:
			warns++
		case statusFail:
			fails++
		}
	}

	fmt.Fprintln(w)
	if fails > 0 {
		fmt.Fprintf(w, "❌ Found %d issue(s) that need attention\n", fails)
		if warns > 0 {
			fmt.Fprintf(w, "⚠️  %d warning(s)\n", warns)
		}
		return fmt.Errorf("found %d issues that need attention", fails)
	}

	if warns > 0 {
		fmt.Fprintf(w, "✅ All critical checks passed!\n")
		fmt.Fprintf(w, "⚠️  %d optional warning(s)\n", warns)
	} else {
		fmt.Fprintf(w, "✅ All checks passed!\n")
	}
	fmt.Fprintf(w, "💡 Run 'chainscope serve --verbose' to start the server\n")
	return nil
}

// executable returns the absolute path of the running binary.
func (d *doctor) executable() (string, error) {
	exe, err := d.fs.Executable()
	if err != nil {
		return "", err
	}
	if abs, err := filepath.Abs(exe); err == nil {
		exe = abs
	}
	return exe, nil
}

func (d *doctor) checkBinary() checkResult {
	exe, err := d.executable()
	if err != nil {
		return checkResult{
			Name:       "binary",
			Status:     statusFail,
			Message:    "Could not determine binary location",
			Suggestion: fmt.Sprintf("Error: %v", err),
		}
	}

	info, err := d.fs.Stat(exe)
	if err != nil || info == nil {
		return checkResult{
			Name:       "binary",
			Status:     statusFail,
			Message:    fmt.Sprintf("Could not stat binary %s", exe),
			Suggestion: fmt.Sprintf("Error: %v", err),
		}
	}
	if info.Mode()&0o111 == 0 {
		return checkResult{
			Name:       "binary",
			Status:     statusFail,
			Message:    fmt.Sprintf("Binary %s is not executable", exe),
			Suggestion: fmt.Sprintf("Run: chmod +x %s", exe),
		}
	}

	return pass("binary", "Binary: %s", exe)
}

// agentConfig is one place an MCP agent keeps its server list.
type agentConfig struct {
	Agent string
	Path  string
}

// agentConfigs lists agent MCP config files, project-level first.
func (d *doctor) agentConfigs() []agentConfig {
	var configs []agentConfig

	if cwd, err := d.fs.Getwd(); err == nil && cwd != "" {
		configs = append(configs,
			agentConfig{"Gemini CLI", filepath.Join(cwd, ".gemini", "settings.json")},
			agentConfig{"Claude Code", filepath.Join(cwd, ".claude", "settings.json")},
			agentConfig{"Claude Code", filepath.Join(cwd, ".mcp.json")},
		)
	}

	home, err := d.fs.UserHomeDir()
	if err != nil {
		return configs
	}
	if runtime.GOOS == "windows" {
		appData := os.Getenv("APPDATA")
		if appData == "" {
			appData = filepath.Join(home, "AppData", "Roaming")
		}
		configs = append(configs, agentConfig{"Claude Code", filepath.Join(appData, "Claude Code", "mcp_settings.json")})
	} else {
		configs = append(configs, agentConfig{"Claude Code", filepath.Join(home, ".config", "claude-code", "mcp_settings.json")})
	}
	configs = append(configs, agentConfig{"Gemini CLI", filepath.Join(home, ".gemini", "settings.json")})

	return configs
}

// mcpSettings is the shared shape of agent MCP config files.
type mcpSettings struct {
	MCPServers map[string]struct {
		Command string   `json:"command"`
		Args    []string `json:"args"`
	} `json:"mcpServers"`
}

func (d *doctor) checkMCPConfig() checkResult {
	configs := d.agentConfigs()
	if len(configs) == 0 {
		return checkResult{
			Name:    "mcp_config",
			Status:  statusFail,
			Message: "Could not determine agent config locations",
		}
	}

	var found *agentConfig
	for i := range configs {
		if _, err := d.fs.Stat(configs[i].Path); err == nil {
			found = &configs[i]
			break
		}
	}

	exe, _ := d.executable()

	if found == nil {
		suggestion := "MCP config not found. Checked:\n"
		for _, c := range configs {
			suggestion += fmt.Sprintf("  - %s\n", c.Path)
		}
		suggestion += fmt.Sprintf(`
  Example entry:
  {
    "mcpServers": {
      "chainscope": {
        "command": "%s",
        "args": ["serve", "--report-dir", ".lighthouseci"]
      }
    }
  }`, exe)
		return checkResult{
			Name:       "mcp_config",
			Status:     statusFail,
			Message:    "MCP config not found",
			Suggestion: suggestion,
		}
	}

	data, err := d.fs.ReadFile(found.Path)
	if err != nil {
		return checkResult{
			Name:       "mcp_config",
			Status:     statusFail,
			Message:    "Could not read MCP config",
			Suggestion: fmt.Sprintf("Error reading %s: %v", found.Path, err),
		}
	}

	var settings mcpSettings
	if err := json.Unmarshal(data, &settings); err != nil {
		return checkResult{
			Name:       "mcp_config",
			Status:     statusFail,
			Message:    "MCP config is not valid JSON",
			Suggestion: fmt.Sprintf("Error parsing %s: %v", found.Path, err),
		}
	}

	msg := fmt.Sprintf("%s config found: %s", found.Agent, found.Path)
	if settings.MCPServers == nil {
		return checkResult{
			Name:       "mcp_config",
			Status:     statusWarn,
			Message:    msg,
			Suggestion: "Config does not contain an 'mcpServers' section",
		}
	}

	entry, ok := settings.MCPServers["chainscope"]
	if !ok {
		return checkResult{
			Name:       "mcp_config",
			Status:     statusWarn,
			Message:    msg,
			Suggestion: "Config does not contain a 'chainscope' server entry - add chainscope to use this tool",
		}
	}

	if entry.Command != "" && exe != "" && entry.Command != exe {
		return checkResult{
			Name:    "mcp_config",
			Status:  statusWarn,
			Message: msg,
			Suggestion: fmt.Sprintf("Config command (%s) differs from current binary (%s)\n  Update config to use current binary if needed",
				entry.Command, exe),
		}
	}
	if !slices.Contains(entry.Args, "serve") {
		return checkResult{
			Name:       "mcp_config",
			Status:     statusWarn,
			Message:    msg,
			Suggestion: "The chainscope entry should pass \"serve\" as its first argument",
		}
	}

	return pass("mcp_config", "%s", msg)
}

func (d *doctor) checkConfig() checkResult {
	if d.cfgErr != nil {
		return checkResult{
			Name:       "config",
			Status:     statusFail,
			Message:    "chainscope config is invalid",
			Suggestion: d.cfgErr.Error(),
		}
	}
	return pass("config", "Config OK (transport %s, history %d runs)", d.cfg.Transport, d.cfg.HistorySize)
}

func (d *doctor) checkReportDirs() checkResult {
	if d.cfg == nil {
		return checkResult{Name: "report_dirs", Status: statusWarn, Message: "Report directories not checked (config invalid)"}
	}
	if len(d.cfg.ReportDirs) == 0 && d.cfg.LHCIConfig == "" {
		return pass("report_dirs", "No report directories configured (agents can still call analyze_report)")
	}

	var missing []string
	for _, dir := range d.cfg.ReportDirs {
		if info, err := d.fs.Stat(dir); err != nil || info == nil || !info.IsDir() {
			missing = append(missing, dir)
		}
	}
	if d.cfg.LHCIConfig != "" {
		if _, err := d.fs.Stat(d.cfg.LHCIConfig); err != nil {
			missing = append(missing, d.cfg.LHCIConfig)
		}
	}

	if len(missing) > 0 {
		return checkResult{
			Name:       "report_dirs",
			Status:     statusFail,
			Message:    fmt.Sprintf("%d configured report path(s) missing", len(missing)),
			Suggestion: fmt.Sprintf("Missing: %v\n  serve refuses to start until these exist", missing),
		}
	}
	return pass("report_dirs", "Report directories: %d configured", len(d.cfg.ReportDirs))
}

func (d *doctor) checkDataDir() checkResult {
	if d.cfg == nil || d.cfg.DataDir == "" {
		return pass("data_dir", "Run history: memory only")
	}

	// badger creates the directory, so an existing parent is enough
	for _, p := range []string{d.cfg.DataDir, filepath.Dir(d.cfg.DataDir)} {
		if info, err := d.fs.Stat(p); err == nil && info != nil && info.IsDir() {
			return pass("data_dir", "Run history persisted in %s", d.cfg.DataDir)
		}
	}
	return checkResult{
		Name:       "data_dir",
		Status:     statusFail,
		Message:    fmt.Sprintf("Data directory %s cannot be created", d.cfg.DataDir),
		Suggestion: fmt.Sprintf("Run: mkdir -p %s", d.cfg.DataDir),
	}
}

func (d *doctor) checkLighthouse() checkResult {
	return d.optionalBinary("lighthouse", `lighthouse produces the reports chainscope analyzes.
  Install with: npm install -g lighthouse
  Then: lighthouse https://example.com --output=json --output-path=./reports/home.report.json`)
}

func (d *doctor) checkLHCI() checkResult {
	return d.optionalBinary("lhci", `Lighthouse CI is optional; point --lhci-config at your .lighthouserc to watch its reports.
  Install with: npm install -g @lhci/cli`)
}

func (d *doctor) optionalBinary(binary, suggestion string) checkResult {
	if path, err := d.fs.LookPath(binary); err == nil {
		return pass(binary, "Optional: %s found at %s", binary, path)
	}
	return checkResult{
		Name:       binary,
		Status:     statusWarn,
		Message:    fmt.Sprintf("Optional: %s not found", binary),
		Suggestion: suggestion,
	}
}
