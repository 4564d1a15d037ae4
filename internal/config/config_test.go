package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/lspbridge/internal/lsp"
)

const sample = `
verbosity = 2
snippet_support = true
hover_precedence = "reverse"

[server]
session = "main"
timeout = 30

[language.go]
filetypes = ["go"]
roots = ["go.mod", ".git"]
command = "gopls"
args = ["serve"]
offset_encoding = "utf-8"

[language.go.initialization_options]
usePlaceholders = true

[language.rust]
filetypes = ["rust"]
roots = ["Cargo.toml"]
command = "rust-analyzer"
`

func TestParse(t *testing.T) {
	cfg, err := Parse("sample", []byte(sample))
	require.NoError(t, err)

	assert.Equal(t, 2, cfg.Verbosity)
	assert.True(t, cfg.SnippetSupport)
	assert.Equal(t, "reverse", cfg.HoverPrecedence)
	assert.Equal(t, "main", cfg.Server.Session)
	assert.Equal(t, 30*time.Second, cfg.Timeout())

	goCfg := cfg.Language["go"]
	assert.Equal(t, "gopls", goCfg.Command)
	assert.Equal(t, []string{"serve"}, goCfg.Args)
	assert.Equal(t, lsp.OffsetEncodingUTF8, goCfg.OffsetEncoding)
	assert.Equal(t, map[string]any{"usePlaceholders": true}, goCfg.InitializationOptions)

	assert.Equal(t, lsp.OffsetEncodingUTF16, cfg.Language["rust"].OffsetEncoding, "utf-16 is the default")
	assert.Equal(t, []string{"go", "rust"}, cfg.LanguageNames())
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantErr error
		wantMsg string
	}{
		{
			name:    "syntax",
			data:    "[language.go\ncommand = 1",
			wantMsg: "parse error in test at line 1",
		},
		{
			name:    "bad encoding",
			data:    "[language.go]\nfiletypes=[\"go\"]\nroots=[\"x\"]\ncommand=\"gopls\"\noffset_encoding=\"utf-32\"",
			wantMsg: "utf-32",
		},
		{
			name:    "no languages",
			data:    "verbosity = 1",
			wantErr: ErrValidationFailed,
		},
		{
			name:    "missing command",
			data:    "[language.go]\nfiletypes=[\"go\"]\nroots=[\"x\"]",
			wantErr: ErrValidationFailed,
			wantMsg: "language.go.command",
		},
		{
			name:    "bad root glob",
			data:    "[language.go]\nfiletypes=[\"go\"]\nroots=[\"[\"]\ncommand=\"gopls\"",
			wantErr: ErrValidationFailed,
			wantMsg: "language.go.roots",
		},
		{
			name:    "duplicate filetype",
			data:    "[language.a]\nfiletypes=[\"x\"]\nroots=[\"r\"]\ncommand=\"a\"\n[language.b]\nfiletypes=[\"x\"]\nroots=[\"r\"]\ncommand=\"b\"",
			wantErr: ErrValidationFailed,
			wantMsg: "already handled by a",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse("test", []byte(tt.data))
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
			if tt.wantMsg != "" {
				assert.Contains(t, err.Error(), tt.wantMsg)
			}
		})
	}
}

func TestParse_ParseErrorPosition(t *testing.T) {
	_, err := Parse("cfg.toml", []byte("verbosity = 1\nserver = [\n"))
	var perr *ParseError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "cfg.toml", perr.Path)
	assert.Positive(t, perr.Line)
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()

	_, err := Load(filepath.Join(dir, "missing.toml"))
	assert.ErrorIs(t, err, ErrFileNotFound)

	path := filepath.Join(dir, "lspbridge.toml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o600))
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, cfg.Language, 2)
}

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	name, lang, ok := cfg.LanguageForFiletype("cpp")
	require.True(t, ok)
	assert.Equal(t, "c_cpp", name)
	assert.Equal(t, "clangd", lang.Command)
	assert.Equal(t, lsp.OffsetEncodingUTF8, lang.OffsetEncoding)

	_, _, ok = cfg.LanguageForFiletype("cobol")
	assert.False(t, ok)
	assert.Zero(t, cfg.Timeout())
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"LSPBRIDGE_SESSION":   "other",
		"LSPBRIDGE_TIMEOUT":   "5",
		"LSPBRIDGE_VERBOSITY": "3",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg := Default()
	require.NoError(t, cfg.ApplyEnv(lookup))
	assert.Equal(t, "other", cfg.Server.Session)
	assert.Equal(t, 5*time.Second, cfg.Timeout())
	assert.Equal(t, 3, cfg.Verbosity)

	env["LSPBRIDGE_TIMEOUT"] = "soon"
	assert.ErrorIs(t, cfg.ApplyEnv(lookup), ErrValidationFailed)
}
