// Package config defines elm-pilot configuration.
package config

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/adrg/xdg"
)

// File represents the user configuration file.
type File struct {
	// Path to the elm-analyzer binary. Empty means auto-resolve
	// (installed binary, then development build).
	ServerPath string

	// Annotate declarations with clickable reference counts.
	ReferenceCounts bool

	// Initial set of workspace directories.
	WorkspaceDirectories []string

	// Root directory used for LSP initialization.
	RootDirectory string

	// Minimum log level (trace, debug, info, warn, error).
	LogLevel string
}

// Config configures elm-pilot.
type Config struct {
	File

	// Show current configuration and exit
	ShowConfig bool

	// Print more messages to stderr
	Verbose bool
}

// Default returns the default Config.
func Default() *Config {
	rootDir := "/"
	if runtime.GOOS == "windows" {
		rootDir = `C:\`
	}
	return &Config{
		File: File{
			ServerPath:      "",
			ReferenceCounts: true,
			RootDirectory:   rootDir,
			LogLevel:        "info",
		},
	}
}

// DataDir returns the per-install storage directory that downloaded
// binaries are kept in.
func DataDir() string {
	return filepath.Join(xdg.DataHome, "elm-pilot")
}

func userConfigFilename() string {
	return filepath.Join(xdg.ConfigHome, "elm-pilot", "config.toml")
}

// Load loads Config from the file system, falling back to defaults for
// a missing file or missing keys.
func Load() (*Config, error) {
	filename := userConfigFilename()
	if _, err := os.Stat(filename); os.IsNotExist(err) {
		return Default(), nil
	}
	return LoadFile(filename)
}

// LoadFile loads Config from filename. Keys absent from the file keep
// their default values.
func LoadFile(filename string) (*Config, error) {
	def := Default()

	b, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	var f File
	if err := toml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("failed to parse %v: %v", filename, err)
	}
	cfg := &Config{File: f}
	if cfg.RootDirectory == "" {
		cfg.RootDirectory = def.RootDirectory
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = def.LogLevel
	}
	if !keyPresent(b, "ReferenceCounts") {
		cfg.ReferenceCounts = def.ReferenceCounts
	}
	return cfg, nil
}

// keyPresent reports whether the TOML document sets key, so booleans
// that default to true survive an absent key.
func keyPresent(doc []byte, key string) bool {
	var m map[string]interface{}
	if err := toml.Unmarshal(doc, &m); err != nil {
		return false
	}
	_, ok := m[key]
	return ok
}

// Write writes Config to writer w.
func Write(w io.Writer, cfg *Config) error {
	fmt.Fprintf(w, "# Configuration file location: %v\n\n", userConfigFilename())
	return toml.NewEncoder(w).Encode(cfg.File)
}

// ParseFlags parses command line flags and updates Config.
func (cfg *Config) ParseFlags(f *flag.FlagSet, arguments []string) error {
	var workspaces string

	f.StringVar(&cfg.ServerPath, "server.path", cfg.ServerPath,
		"path to the elm-analyzer binary (empty means auto-resolve)")
	f.BoolVar(&cfg.ReferenceCounts, "annotations", cfg.ReferenceCounts,
		"annotate declarations with reference counts")
	f.StringVar(&cfg.RootDirectory, "rootdir", cfg.RootDirectory,
		"root directory used for LSP initialization")
	f.StringVar(&workspaces, "workspaces", "",
		"colon-separated list of initial workspace directories")
	f.BoolVar(&cfg.Verbose, "v", cfg.Verbose, "Verbose output")
	f.BoolVar(&cfg.ShowConfig, "showconfig", false, "show configuration values and exit")

	if err := f.Parse(arguments); err != nil {
		return err
	}
	if len(workspaces) > 0 {
		cfg.WorkspaceDirectories = strings.Split(workspaces, ":")
	}
	return nil
}
