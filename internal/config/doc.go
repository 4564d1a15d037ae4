// Package config loads the bridge configuration.
//
// The configuration is a single TOML file:
//
//	verbosity = 1
//	hover_precedence = "default"
//
//	[server]
//	timeout = 30
//
//	[language.go]
//	filetypes = ["go"]
//	roots = ["go.mod", ".git"]
//	command = "gopls"
//	offset_encoding = "utf-16"
//
//	[language.go.initialization_options]
//	usePlaceholders = true
//
// A few settings can be overridden from the environment (see ApplyEnv).
// Root detection (FindRoot) matches the entries of each ancestor directory
// of a buffer against the language's root globs.
package config
