package platform

import "testing"

func TestResolve(t *testing.T) {
	for _, tc := range []struct {
		goos, goarch string
		target       Target
	}{
		{"darwin", "arm64", DarwinARM64},
		{"darwin", "amd64", DarwinX64},
		{"linux", "amd64", LinuxX64},
		{"windows", "amd64", Win32X64},
	} {
		target, err := Resolve(tc.goos, tc.goarch)
		if err != nil {
			t.Errorf("Resolve(%q, %q) failed: %v", tc.goos, tc.goarch, err)
			continue
		}
		if target != tc.target {
			t.Errorf("Resolve(%q, %q) is %q; expected %q", tc.goos, tc.goarch, target, tc.target)
		}
	}
}

func TestResolveUnsupported(t *testing.T) {
	for _, tc := range []struct {
		goos, goarch string
	}{
		{"linux", "arm64"},
		{"linux", "386"},
		{"windows", "arm64"},
		{"freebsd", "amd64"},
		{"plan9", "amd64"},
	} {
		target, err := Resolve(tc.goos, tc.goarch)
		if err == nil {
			t.Errorf("Resolve(%q, %q) is %q; expected an error", tc.goos, tc.goarch, target)
		}
	}
}

func TestIsWindows(t *testing.T) {
	if DarwinARM64.IsWindows() || LinuxX64.IsWindows() {
		t.Errorf("non-Windows target reported as Windows")
	}
	if !Win32X64.IsWindows() {
		t.Errorf("win32-x64 not reported as Windows")
	}
}
