package config

import (
	"fmt"
	"os"
	"strconv"
)

// EnvPrefix is the prefix of environment variables that override settings.
const EnvPrefix = "LSPBRIDGE_"

// ApplyEnv overrides settings from LSPBRIDGE_SESSION, LSPBRIDGE_TIMEOUT and
// LSPBRIDGE_VERBOSITY. lookup is os.LookupEnv outside of tests; nil means
// os.LookupEnv. Empty values are treated as set.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if lookup == nil {
		lookup = os.LookupEnv
	}

	if v, ok := lookup(EnvPrefix + "SESSION"); ok {
		c.Server.Session = v
	}
	if v, ok := lookup(EnvPrefix + "TIMEOUT"); ok {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return &ValidationError{Path: "server.timeout", Message: fmt.Sprintf("invalid %sTIMEOUT", EnvPrefix), Value: v, Code: ErrCodeOutOfRange}
		}
		c.Server.Timeout = n
	}
	if v, ok := lookup(EnvPrefix + "VERBOSITY"); ok {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return &ValidationError{Path: "verbosity", Message: fmt.Sprintf("invalid %sVERBOSITY", EnvPrefix), Value: v, Code: ErrCodeOutOfRange}
		}
		c.Verbosity = n
	}
	return nil
}
