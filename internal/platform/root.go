package platform

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/aretw0/brewing/pkg/adapters/fs"
)

// ErrRootNotFound is returned by FindRoot when no enclosing project exists.
var ErrRootNotFound = errors.New("brewing project not found")

// FindRoot looks upwards from startDir for a directory holding a .brewing
// directory and returns its absolute path.
func FindRoot(startDir string) (string, error) {
	return findRoot(startDir, fs.DefaultSystemDir)
}

func findRoot(startDir, marker string) (string, error) {
	abs, err := filepath.Abs(startDir)
	if err != nil {
		return "", err
	}

	dir := abs
	for {
		if isDir(filepath.Join(dir, marker)) {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", ErrRootNotFound
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
