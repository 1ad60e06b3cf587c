package install

import (
	"os"
	"path/filepath"

	"github.com/elm-pilot/elm-pilot/internal/platform"
)

// Source records where a resolved binary path came from.
type Source int

const (
	// SourceConfigured is a user-supplied path from configuration.
	SourceConfigured Source = iota

	// SourceInstalled is a binary previously downloaded into the
	// storage directory.
	SourceInstalled

	// SourceDevBuild is a sibling development build next to the
	// client's own install directory.
	SourceDevBuild
)

func (s Source) String() string {
	switch s {
	case SourceConfigured:
		return "configured"
	case SourceInstalled:
		return "installed"
	case SourceDevBuild:
		return "dev build"
	}
	return "unknown"
}

// Location is a resolved binary path and its provenance.
type Location struct {
	Path   string
	Source Source
}

// Locator resolves the elm-analyzer executable path. Locate is called
// fresh on every lifecycle transition that needs a path; results are
// never cached because configuration and installed state may change
// between restarts.
type Locator struct {
	// ConfiguredPath is the user-supplied override. Empty means
	// auto-resolve.
	ConfiguredPath string

	// DataDir is the per-install storage directory that Install
	// downloads into.
	DataDir string

	// ClientDir is the directory the client itself is installed in;
	// development builds are located relative to it.
	ClientDir string

	Target platform.Target
}

// Locate returns the executable path to run, trying sources in strict
// precedence: configured path (only if it exists), installed binary,
// development sibling build (release preferred over debug). The second
// return value is false when no binary was found, which is not an
// error: the caller decides whether to prompt for installation.
func (l *Locator) Locate() (Location, bool) {
	if l.ConfiguredPath != "" && exists(l.ConfiguredPath) {
		return Location{Path: l.ConfiguredPath, Source: SourceConfigured}, true
	}

	if p := l.InstalledPath(); exists(p) {
		return Location{Path: p, Source: SourceInstalled}, true
	}

	name := BinaryName(l.Target)
	for _, build := range []string{"release", "debug"} {
		p := filepath.Join(l.ClientDir, "..", BinaryBaseName, "target", build, name)
		if exists(p) {
			return Location{Path: p, Source: SourceDevBuild}, true
		}
	}

	return Location{}, false
}

// InstalledPath returns the path Install writes the binary to, whether
// or not it exists.
func (l *Locator) InstalledPath() string {
	return filepath.Join(l.DataDir, BinaryName(l.Target))
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
