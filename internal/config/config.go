// Package config holds the parsed, immutable option set every other
// package reads from: one struct built once at startup and passed down
// explicitly, rather than a scatter of process-global variables.
package config

import (
	"os"
	"time"

	"github.com/distccd-go/distccd/internal/access"
)

// Config is the fully resolved set of options for one distccd process.
type Config struct {
	// Listener
	Addr           string
	Port           int
	NoDetach       bool
	DeferAccept    bool
	DeferAcceptSec int

	// Access control
	Allow *access.AllowList

	// Auth
	RequireAuth   bool
	Principal     string
	BlacklistPath string
	WhitelistPath string

	// Worker pool
	MaxWorkers    int
	MaxRequests   int
	MaxLifetime   time.Duration
	ShutdownGrace time.Duration

	// Compiler
	PATH          string
	AllowAbsolute bool

	// Paths
	TempBase   string
	MonitorDir string
	PidFile    string
	LogFile    string
	LogFormat  string
	LogLevel   string
}

// Defaults mirrors distccd's historical defaults: 4 workers, 50 requests
// or 60 seconds per worker (whichever bound is reached last), port 3632.
func Defaults() Config {
	return Config{
		Port:          3632,
		MaxWorkers:    4,
		MaxRequests:   50,
		MaxLifetime:   60 * time.Second,
		ShutdownGrace: 5 * time.Second,
		LogFormat:     "text",
		LogLevel:      "info",
	}
}

// EnvOverrides applies environment variables distccd reads directly rather
// than through a CLI flag: TMPDIR, DISTCCD_PATH, DISTCCD_PRINCIPAL,
// DISTCC_TCP_DEFER_ACCEPT.
func (c *Config) EnvOverrides() {
	if v := os.Getenv("TMPDIR"); v != "" {
		c.TempBase = v
	}
	if v := os.Getenv("DISTCCD_PATH"); v != "" {
		c.PATH = v
	}
	if v := os.Getenv("DISTCCD_PRINCIPAL"); v != "" {
		c.Principal = v
		c.RequireAuth = true
	}
	if v := os.Getenv("DISTCC_TCP_DEFER_ACCEPT"); v != "" {
		c.DeferAccept = true
	}
}
