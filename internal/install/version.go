package install

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/Masterminds/semver/v3"
)

func writeInstalledTag(dir, tag string) error {
	return os.WriteFile(filepath.Join(dir, versionFile), []byte(tag+"\n"), 0o644)
}

// InstalledTag returns the release tag recorded at install time, or ""
// if no install has been recorded.
func InstalledTag(dir string) string {
	b, err := os.ReadFile(filepath.Join(dir, versionFile))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(b))
}

// UpdateAvailable reports whether the latest published release is newer
// than the one recorded in the storage directory. Tags that do not
// parse as semantic versions compare by inequality only.
func (ins *Installer) UpdateAvailable(ctx context.Context) (latest string, available bool, err error) {
	rel, err := FetchLatestRelease(ctx, ins.httpClient(), ins.endpoint())
	if err != nil {
		return "", false, err
	}
	installed := InstalledTag(ins.Dir)
	if installed == "" {
		return rel.Tag, true, nil
	}

	iv, ierr := semver.NewVersion(installed)
	lv, lerr := semver.NewVersion(rel.Tag)
	if ierr != nil || lerr != nil {
		return rel.Tag, rel.Tag != installed, nil
	}
	return rel.Tag, lv.GreaterThan(iv), nil
}
