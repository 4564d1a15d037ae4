package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"sort"
	"time"

	"github.com/gobwas/glob"
	"github.com/pelletier/go-toml/v2"

	"github.com/dshills/lspbridge/internal/lsp"
)

// Config is the bridge configuration.
type Config struct {
	Language       map[string]LanguageConfig `toml:"language"`
	Server         ServerConfig              `toml:"server"`
	Verbosity      int                       `toml:"verbosity"`
	SnippetSupport bool                      `toml:"snippet_support"`
	// HoverPrecedence is the default precedence used when a hover request
	// does not name one. Empty means the built-in default.
	HoverPrecedence string `toml:"hover_precedence"`
}

// ServerConfig configures the bridge process itself.
type ServerConfig struct {
	Session string `toml:"session"`
	// Timeout is the number of seconds a request may wait for its response.
	// Zero disables the timeout.
	Timeout int `toml:"timeout"`
}

// LanguageConfig describes how to run the language server for one language.
type LanguageConfig struct {
	Filetypes             []string           `toml:"filetypes"`
	Roots                 []string           `toml:"roots"`
	Command               string             `toml:"command"`
	Args                  []string           `toml:"args"`
	InitializationOptions map[string]any     `toml:"initialization_options"`
	OffsetEncoding        lsp.OffsetEncoding `toml:"offset_encoding"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Language: map[string]LanguageConfig{
			"go": {
				Filetypes: []string{"go"},
				Roots:     []string{"go.mod", ".git"},
				Command:   "gopls",
			},
			"rust": {
				Filetypes: []string{"rust"},
				Roots:     []string{"Cargo.toml"},
				Command:   "rust-analyzer",
			},
			"python": {
				Filetypes: []string{"python"},
				Roots:     []string{"requirements.txt", "setup.py", "pyproject.toml", ".git"},
				Command:   "pylsp",
			},
			"c_cpp": {
				Filetypes:      []string{"c", "cpp"},
				Roots:          []string{"compile_commands.json", ".clangd", ".git"},
				Command:        "clangd",
				OffsetEncoding: lsp.OffsetEncodingUTF8,
			},
		},
	}
}

// Load reads and validates the configuration file at path.
// A missing file yields ErrFileNotFound.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}
	return Parse(path, data)
}

// Parse decodes and validates configuration data. source names the data in
// error messages.
func Parse(source string, data []byte) (*Config, error) {
	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		perr := &ParseError{Path: source, Message: err.Error(), Err: err}
		var derr *toml.DecodeError
		if errors.As(err, &derr) {
			perr.Line, perr.Column = derr.Position()
		}
		return nil, perr
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the configuration for missing or malformed settings.
// All problems are reported, joined.
func (c *Config) Validate() error {
	var errs []error
	if len(c.Language) == 0 {
		errs = append(errs, &ValidationError{Path: "language", Message: "no languages configured", Code: ErrCodeRequiredMissing})
	}
	if c.Server.Timeout < 0 {
		errs = append(errs, &ValidationError{Path: "server.timeout", Message: "must not be negative", Value: c.Server.Timeout, Code: ErrCodeOutOfRange})
	}

	owner := make(map[string]string)
	for _, name := range c.LanguageNames() {
		lang := c.Language[name]
		path := "language." + name
		if lang.Command == "" {
			errs = append(errs, &ValidationError{Path: path + ".command", Message: "required", Code: ErrCodeRequiredMissing})
		}
		if len(lang.Filetypes) == 0 {
			errs = append(errs, &ValidationError{Path: path + ".filetypes", Message: "at least one filetype required", Code: ErrCodeRequiredMissing})
		}
		if len(lang.Roots) == 0 {
			errs = append(errs, &ValidationError{Path: path + ".roots", Message: "at least one root pattern required", Code: ErrCodeRequiredMissing})
		}
		for _, pattern := range lang.Roots {
			if _, err := glob.Compile(pattern); err != nil {
				errs = append(errs, &ValidationError{Path: path + ".roots", Message: err.Error(), Value: pattern, Code: ErrCodePatternMismatch})
			}
		}
		for _, ft := range lang.Filetypes {
			if other, ok := owner[ft]; ok {
				errs = append(errs, &ValidationError{Path: path + ".filetypes", Message: "filetype already handled by " + other, Value: ft, Code: ErrCodeInvalidEnum})
				continue
			}
			owner[ft] = name
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrValidationFailed, errors.Join(errs...))
	}
	return nil
}

// LanguageNames returns the configured language names in sorted order.
func (c *Config) LanguageNames() []string {
	names := make([]string, 0, len(c.Language))
	for name := range c.Language {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LanguageForFiletype returns the language that handles filetype.
func (c *Config) LanguageForFiletype(filetype string) (string, LanguageConfig, bool) {
	for _, name := range c.LanguageNames() {
		lang := c.Language[name]
		if slices.Contains(lang.Filetypes, filetype) {
			return name, lang, true
		}
	}
	return "", LanguageConfig{}, false
}

// Timeout returns the request timeout, zero when disabled.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.Server.Timeout) * time.Second
}
