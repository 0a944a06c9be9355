package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLHCIConfig(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		want    []string // relative to the config directory
	}{
		{
			name: "yaml filesystem upload with collect",
			file: ".lighthouserc.yml",
			content: `ci:
  collect:
    numberOfRuns: 3
    url:
      - https://example.com/
  upload:
    target: filesystem
    outputDir: ./lhci-reports
`,
			want: []string{"lhci-reports", ".lighthouseci"},
		},
		{
			name:    "json config",
			file:    ".lighthouserc.json",
			content: `{"ci": {"upload": {"target": "filesystem", "outputDir": "reports"}}}`,
			want:    []string{"reports"},
		},
		{
			name:    "temporary public storage upload",
			file:    "lighthouserc.json",
			content: `{"ci": {"collect": {}, "upload": {"target": "temporary-public-storage"}}}`,
			want:    []string{".lighthouseci"},
		},
		{
			name:    "nothing configured",
			file:    ".lighthouserc.yaml",
			content: "ci: {}\n",
			want:    nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			path := filepath.Join(dir, tt.file)
			writeFile(t, path, tt.content)

			got, err := ParseLHCIConfig(path)
			require.NoError(t, err)

			var want []string
			for _, w := range tt.want {
				want = append(want, filepath.Join(dir, w))
			}
			assert.Equal(t, want, got)
		})
	}
}

func TestParseLHCIConfigAbsoluteOutputDir(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(t.TempDir(), "out")
	path := filepath.Join(dir, ".lighthouserc.json")
	writeFile(t, path, `{"ci": {"upload": {"outputDir": "`+filepath.ToSlash(out)+`"}}}`)

	got, err := ParseLHCIConfig(path)
	require.NoError(t, err)
	assert.Equal(t, []string{out}, got)
}

func TestParseLHCIConfigErrors(t *testing.T) {
	_, err := ParseLHCIConfig(filepath.Join(t.TempDir(), "missing.yml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), ".lighthouserc.yml")
	writeFile(t, path, "ci: [unclosed\n")
	_, err = ParseLHCIConfig(path)
	assert.Error(t, err)
}

func TestFindLHCIConfig(t *testing.T) {
	dir := t.TempDir()
	_, err := FindLHCIConfig(dir)
	assert.ErrorIs(t, err, os.ErrNotExist)

	writeFile(t, filepath.Join(dir, "lighthouserc.yaml"), "ci: {}\n")
	writeFile(t, filepath.Join(dir, ".lighthouserc.json"), "{}")

	path, err := FindLHCIConfig(dir)
	require.NoError(t, err)
	assert.Equal(t, ".lighthouserc.json", filepath.Base(path), "dotfile json wins")
}
