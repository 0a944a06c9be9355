package cli

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type mockFsUtils struct {
	executable    string
	executableErr error
	statMap       map[string]os.FileInfo
	statErr       error
	readFileMap   map[string][]byte
	readFileErr   error
	homeDir       string
	homeDirErr    error
	cwd           string
	cwdErr        error
	lookPathMap   map[string]string
	lookPathErr   error
}

func (m *mockFsUtils) Executable() (string, error) { return m.executable, m.executableErr }
func (m *mockFsUtils) Stat(name string) (os.FileInfo, error) {
	if info, ok := m.statMap[name]; ok {
		return info, nil
	}
	return nil, m.statErr
}
func (m *mockFsUtils) ReadFile(name string) ([]byte, error) {
	if content, ok := m.readFileMap[name]; ok {
		return content, nil
	}
	return nil, m.readFileErr
}
func (m *mockFsUtils) UserHomeDir() (string, error) { return m.homeDir, m.homeDirErr }
func (m *mockFsUtils) Getwd() (string, error)       { return m.cwd, m.cwdErr }
func (m *mockFsUtils) LookPath(file string) (string, error) {
	if path, ok := m.lookPathMap[file]; ok {
		return path, nil
	}
	return "", m.lookPathErr
}

// mockFileInfo implements os.FileInfo for testing purposes
type mockFileInfo struct {
	name    string
	size    int64
	mode    os.FileMode
	modTime time.Time
	isDir   bool
}

func (m *mockFileInfo) Name() string       { return m.name }
func (m *mockFileInfo) Size() int64        { return m.size }
func (m *mockFileInfo) Mode() os.FileMode  { return m.mode }
func (m *mockFileInfo) ModTime() time.Time { return m.modTime }
func (m *mockFileInfo) IsDir() bool        { return m.isDir }
func (m *mockFileInfo) Sys() any           { return nil }

const testBinary = "/usr/local/bin/chainscope"

func defaultConfig() (*Config, error) { return DefaultConfig(), nil }

func TestDoctorCommand(t *testing.T) {
	// Test case 1: No agent config, lighthouse and lhci not found
	// This should result in a failure for MCP config and warnings for both binaries
	mockUtils1 := &mockFsUtils{
		executable: testBinary,
		homeDir:    "/home/testuser",
		cwd:        "/home/testuser/project",
		statMap: map[string]os.FileInfo{
			testBinary: &mockFileInfo{mode: 0755},
		},
		statErr:     os.ErrNotExist, // Simulate no config file for other paths
		lookPathErr: os.ErrNotExist, // Simulate lighthouse and lhci not found
	}

	var out bytes.Buffer
	err := runDoctor(&out, "test-version", mockUtils1, defaultConfig)

	assert.Error(t, err)
	assert.Contains(t, out.String(), "🔍 chainscope doctor vtest-version")
	assert.Contains(t, out.String(), "✗ MCP config not found")
	assert.Contains(t, out.String(), `"chainscope": {`)
	assert.Contains(t, out.String(), "⚠ Optional: lighthouse not found")
	assert.Contains(t, out.String(), "⚠ Optional: lhci not found")
	assert.Contains(t, out.String(), "✓ Run history: memory only")
	assert.Contains(t, out.String(), "❌ Found 1 issue(s) that need attention")
	assert.Contains(t, out.String(), "⚠️  2 warning(s)")

	// Test case 2: .gemini/settings.json exists, lighthouse and lhci found (mocked)
	// This should result in all checks passing
	geminiSettings := filepath.Join("/home/testuser/project", ".gemini", "settings.json")
	mockUtils2 := &mockFsUtils{
		executable: testBinary,
		homeDir:    "/home/testuser",
		cwd:        "/home/testuser/project",
		statMap: map[string]os.FileInfo{
			geminiSettings: &mockFileInfo{mode: 0644},
			testBinary:     &mockFileInfo{mode: 0755},
		},
		statErr: os.ErrNotExist,
		readFileMap: map[string][]byte{
			geminiSettings: []byte(`{
				"mcpServers": {
					"chainscope": {
						"command": "/usr/local/bin/chainscope",
						"args": ["serve"]
					}
				}
			}`),
		},
		lookPathMap: map[string]string{
			"lighthouse": "/usr/local/bin/lighthouse",
			"lhci":       "/usr/local/bin/lhci",
		},
	}

	out.Reset()
	err = runDoctor(&out, "test-version", mockUtils2, defaultConfig)

	assert.NoError(t, err)
	assert.Contains(t, out.String(), "✓ Gemini CLI config found: ")
	assert.Contains(t, out.String(), "✓ Optional: lighthouse found at /usr/local/bin/lighthouse")
	assert.Contains(t, out.String(), "✓ Optional: lhci found at /usr/local/bin/lhci")
	assert.Contains(t, out.String(), "✅ All checks passed!")
}

func TestDoctorBinaryNotExecutable(t *testing.T) {
	d := &doctor{fs: &mockFsUtils{
		executable: testBinary,
		statMap:    map[string]os.FileInfo{testBinary: &mockFileInfo{mode: 0644}},
	}}

	result := d.checkBinary()
	assert.Equal(t, statusFail, result.Status)
	assert.Contains(t, result.Suggestion, "chmod +x")

	d.fs = &mockFsUtils{executableErr: errors.New("no /proc")}
	assert.Equal(t, statusFail, d.checkBinary().Status)
}

func TestCheckMCPConfigEntries(t *testing.T) {
	settings := filepath.Join("/home/testuser/project", ".claude", "settings.json")

	tests := []struct {
		name       string
		content    string
		wantStatus checkStatus
		wantText   string
	}{
		{
			name:       "invalid json",
			content:    `{"mcpServers": `,
			wantStatus: statusFail,
			wantText:   "not valid JSON",
		},
		{
			name:       "no servers section",
			content:    `{}`,
			wantStatus: statusWarn,
			wantText:   "'mcpServers'",
		},
		{
			name:       "missing chainscope entry",
			content:    `{"mcpServers": {"other": {"command": "/bin/other"}}}`,
			wantStatus: statusWarn,
			wantText:   "'chainscope' server entry",
		},
		{
			name:       "different binary",
			content:    `{"mcpServers": {"chainscope": {"command": "/opt/old/chainscope", "args": ["serve"]}}}`,
			wantStatus: statusWarn,
			wantText:   "differs from current binary",
		},
		{
			name:       "missing serve argument",
			content:    `{"mcpServers": {"chainscope": {"command": "/usr/local/bin/chainscope"}}}`,
			wantStatus: statusWarn,
			wantText:   `"serve"`,
		},
		{
			name:       "matching binary",
			content:    `{"mcpServers": {"chainscope": {"command": "/usr/local/bin/chainscope", "args": ["serve", "--verbose"]}}}`,
			wantStatus: statusPass,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &doctor{fs: &mockFsUtils{
				executable: testBinary,
				homeDir:    "/home/testuser",
				cwd:        "/home/testuser/project",
				statMap: map[string]os.FileInfo{
					settings: &mockFileInfo{mode: 0644},
				},
				statErr:     os.ErrNotExist,
				readFileMap: map[string][]byte{settings: []byte(tt.content)},
			}}

			result := d.checkMCPConfig()
			assert.Equal(t, tt.wantStatus, result.Status)
			if tt.wantText != "" {
				assert.Contains(t, result.Message+" "+result.Suggestion, tt.wantText)
			}
			if tt.wantStatus != statusFail {
				assert.Contains(t, result.Message, "Claude Code config found")
			}
		})
	}
}

func TestCheckConfigAndDirectories(t *testing.T) {
	fs := &mockFsUtils{
		statMap: map[string]os.FileInfo{
			"/srv/reports": &mockFileInfo{isDir: true},
			"/var/lib":     &mockFileInfo{isDir: true},
		},
		statErr: os.ErrNotExist,
	}

	d := &doctor{fs: fs, cfgErr: errors.New("invalid config: Config.Transport: failed \"oneof\"")}
	assert.Equal(t, statusFail, d.checkConfig().Status)
	assert.Equal(t, statusWarn, d.checkReportDirs().Status)
	assert.Equal(t, statusPass, d.checkDataDir().Status, "memory only without config")

	cfg := DefaultConfig()
	cfg.ReportDirs = []string{"/srv/reports"}
	cfg.DataDir = "/var/lib/chainscope"
	d = &doctor{fs: fs, cfg: cfg}
	assert.Equal(t, statusPass, d.checkConfig().Status)
	assert.Equal(t, statusPass, d.checkReportDirs().Status)
	assert.Equal(t, statusPass, d.checkDataDir().Status, "parent exists")

	cfg.ReportDirs = append(cfg.ReportDirs, "/srv/missing")
	cfg.LHCIConfig = "/srv/.lighthouserc.yml"
	result := d.checkReportDirs()
	assert.Equal(t, statusFail, result.Status)
	assert.Contains(t, result.Message, "2 configured report path(s) missing")

	cfg.DataDir = "/nope/deeper/chainscope"
	assert.Equal(t, statusFail, d.checkDataDir().Status)
}
