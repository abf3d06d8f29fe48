package internal

import (
	"fmt"
	"os"
	"strconv"
)

// Verbosity selects how much output the process produces
type Verbosity int

const (
	VerbosityNormal Verbosity = iota
	VerbosityVerbose
	VerbosityQuiet
)

// String returns the string representation of the verbosity
func (v Verbosity) String() string {
	switch v {
	case VerbosityVerbose:
		return "verbose"
	case VerbosityQuiet:
		return "quiet"
	default:
		return "normal"
	}
}

// Config holds the global command line configuration
type Config struct {
	Verbose           bool
	Quiet             bool
	Lang              string
	ExperimentalFixes bool

	// Login method
	Credentials string
	Anonymous   bool

	// Network
	Proxy      string
	UserAgent  string
	SpeedLimit string
	Timeout    int
	Threads    int
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Timeout: 30,
		Threads: 4,
	}
}

// LoadFromEnv fills unset values from environment variables.
// Login credentials are only ever taken from flags.
func (c *Config) LoadFromEnv() {
	if c.Proxy == "" {
		c.Proxy = os.Getenv("CRUNCHY_CLI_PROXY")
	}

	if c.UserAgent == "" {
		c.UserAgent = os.Getenv("CRUNCHY_CLI_USER_AGENT")
	}

	if c.SpeedLimit == "" {
		c.SpeedLimit = os.Getenv("CRUNCHY_CLI_SPEED_LIMIT")
	}

	if c.Lang == "" {
		c.Lang = os.Getenv("CRUNCHY_CLI_LANG")
	}

	if timeout := os.Getenv("CRUNCHY_CLI_TIMEOUT"); timeout != "" {
		if t, err := strconv.Atoi(timeout); err == nil && t > 0 {
			c.Timeout = t
		}
	}

	if threads := os.Getenv("CRUNCHY_CLI_THREADS"); threads != "" {
		if t, err := strconv.Atoi(threads); err == nil && t > 0 && t <= 32 {
			c.Threads = t
		}
	}
}

// Verbosity returns the selected output verbosity
func (c *Config) Verbosity() Verbosity {
	switch {
	case c.Verbose:
		return VerbosityVerbose
	case c.Quiet:
		return VerbosityQuiet
	default:
		return VerbosityNormal
	}
}

// ValidateConfig validates the configuration values
func (c *Config) ValidateConfig() error {
	if c.Verbose && c.Quiet {
		return NewValidationError("verbosity", "Output cannot be verbose ('-v') and quiet ('-q') at the same time")
	}

	if c.Timeout < 1 {
		return NewValidationErrorWithValue("timeout", fmt.Sprintf("invalid timeout: %d (must be > 0)", c.Timeout), c.Timeout)
	}

	if c.Threads < 1 || c.Threads > 32 {
		return NewValidationErrorWithValue("threads", fmt.Sprintf("invalid thread count: %d (must be 1-32)", c.Threads), c.Threads)
	}

	return nil
}
