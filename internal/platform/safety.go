package platform

import (
	"os"
	"path/filepath"
	"strings"
)

// IsDevRun reports whether the binary was built by `go run` or `go test`.
func IsDevRun() bool {
	exe, err := os.Executable()
	if err != nil {
		return false
	}
	if strings.HasPrefix(strings.ToLower(exe), strings.ToLower(os.TempDir())) {
		return true
	}
	return strings.HasSuffix(exe, ".test") || strings.HasSuffix(exe, ".test.exe")
}

// ResolvePath returns the project directory to operate on. With sandbox
// set, paths outside the system temp directory are re-rooted under
// <tmp>/brewing-dev so development runs never touch a real project.
func ResolvePath(userPath string, sandbox bool) string {
	if userPath == "" {
		userPath = "."
	}
	if !sandbox {
		return userPath
	}

	clean := filepath.Clean(userPath)
	if abs, err := filepath.Abs(clean); err == nil {
		clean = abs
	}
	if rel, err := filepath.Rel(os.TempDir(), clean); err == nil && !strings.HasPrefix(rel, "..") {
		return clean
	}

	name := filepath.Base(clean)
	if name == "." || name == string(os.PathSeparator) || name == "" {
		name = "default"
	}
	return filepath.Join(os.TempDir(), "brewing-dev", name)
}
