// Package install resolves, downloads, and installs the elm-analyzer
// binary for the current platform.
package install

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/elm-pilot/elm-pilot/internal/platform"
)

const (
	// BinaryBaseName is the base name of the elm-analyzer executable.
	// Release assets are named BinaryBaseName-<target>, with an ".exe"
	// suffix on the Windows target only.
	BinaryBaseName = "elm-analyzer"

	repoAPIEndpoint = "https://api.github.com/repos/elm-analyzer/elm-analyzer"

	// LatestReleaseEndpoint serves metadata about the most recent
	// elm-analyzer release.
	LatestReleaseEndpoint = repoAPIEndpoint + "/releases/latest"

	userAgent = "elm-pilot"

	binaryPerms = 0o755

	versionFile = "version"
)

// BinaryName returns the name of the executable for target.
func BinaryName(target platform.Target) string {
	if target.IsWindows() {
		return BinaryBaseName + ".exe"
	}
	return BinaryBaseName
}

// AssetName returns the release asset name for target.
func AssetName(target platform.Target) string {
	if target.IsWindows() {
		return BinaryBaseName + "-" + string(target) + ".exe"
	}
	return BinaryBaseName + "-" + string(target)
}

// Installer downloads elm-analyzer release binaries into a storage
// directory.
type Installer struct {
	Target platform.Target
	Dir    string // per-install storage directory

	// Endpoint is the release metadata URL. Defaults to
	// LatestReleaseEndpoint.
	Endpoint string

	// HTTPClient defaults to http.DefaultClient.
	HTTPClient *http.Client

	Log zerolog.Logger
}

func (ins *Installer) endpoint() string {
	if ins.Endpoint != "" {
		return ins.Endpoint
	}
	return LatestReleaseEndpoint
}

func (ins *Installer) httpClient() *http.Client {
	if ins.HTTPClient != nil {
		return ins.HTTPClient
	}
	return http.DefaultClient
}

// Install fetches the latest release, downloads the asset matching the
// installer's target into the storage directory, and returns the path
// of the installed binary. A single attempt is made; the caller may
// retry by calling Install again.
func (ins *Installer) Install(ctx context.Context) (string, error) {
	rel, err := FetchLatestRelease(ctx, ins.httpClient(), ins.endpoint())
	if err != nil {
		return "", err
	}

	want := AssetName(ins.Target)
	var asset *ReleaseAsset
	for i := range rel.Assets {
		if rel.Assets[i].Name == want {
			asset = &rel.Assets[i]
			break
		}
	}
	if asset == nil {
		var names []string
		for _, a := range rel.Assets {
			names = append(names, a.Name)
		}
		return "", errors.Errorf("release %v has no asset %q (available: %v)",
			rel.Tag, want, strings.Join(names, ", "))
	}

	if err := os.MkdirAll(ins.Dir, 0o755); err != nil {
		return "", errors.Wrap(err, "failed to create storage directory")
	}
	dest := filepath.Join(ins.Dir, BinaryName(ins.Target))

	ins.Log.Info().
		Str("tag", rel.Tag).
		Str("asset", asset.Name).
		Str("dest", dest).
		Msg("downloading elm-analyzer")

	executable := !ins.Target.IsWindows()
	if err := download(ctx, ins.httpClient(), asset.DownloadURL, dest, executable); err != nil {
		return "", err
	}
	if err := writeInstalledTag(ins.Dir, rel.Tag); err != nil {
		ins.Log.Warn().Err(err).Msg("failed to record installed version")
	}
	return dest, nil
}
