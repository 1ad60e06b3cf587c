// Package platform maps the host operating system and CPU architecture
// to the canonical target identifier used to name elm-analyzer release
// binaries.
package platform

import "fmt"

// Target identifies an {OS, architecture} combination for which an
// elm-analyzer binary is distributed.
type Target string

const (
	DarwinARM64 Target = "darwin-arm64"
	DarwinX64   Target = "darwin-x64"
	LinuxX64    Target = "linux-x64"
	Win32X64    Target = "win32-x64"
)

// IsWindows reports whether t is the Windows target. Release binaries
// for Windows carry an ".exe" suffix and no executable permission bit.
func (t Target) IsWindows() bool {
	return t == Win32X64
}

// Resolve returns the canonical target for the given GOOS and GOARCH
// values. There is no fallback: combinations without a published binary
// are an error.
func Resolve(goos, goarch string) (Target, error) {
	switch goos {
	case "darwin":
		switch goarch {
		case "arm64":
			return DarwinARM64, nil
		case "amd64":
			return DarwinX64, nil
		}
	case "linux":
		if goarch == "amd64" {
			return LinuxX64, nil
		}
	case "windows":
		if goarch == "amd64" {
			return Win32X64, nil
		}
	}
	return "", fmt.Errorf("no elm-analyzer binary is published for %v/%v", goos, goarch)
}
