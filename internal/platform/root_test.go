package platform

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFindRoot(t *testing.T) {
	// /tmp/
	//   repo/ (.brewing)
	//     subdir/
	//       nested/
	//   empty/

	baseDir := t.TempDir()
	repoDir := filepath.Join(baseDir, "repo")
	subDir := filepath.Join(repoDir, "subdir")
	nestedDir := filepath.Join(subDir, "nested")
	emptyDir := filepath.Join(baseDir, "empty")

	if err := os.MkdirAll(nestedDir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(emptyDir, 0755); err != nil {
		t.Fatal(err)
	}

	if err := os.Mkdir(filepath.Join(repoDir, ".brewing"), 0755); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name      string
		startPath string
		wantRoot  string
		wantErr   bool
	}{
		{
			name:      "Start at Root",
			startPath: repoDir,
			wantRoot:  repoDir,
			wantErr:   false,
		},
		{
			name:      "Start in Subdir",
			startPath: subDir,
			wantRoot:  repoDir,
			wantErr:   false,
		},
		{
			name:      "Start Nested Deeply",
			startPath: nestedDir,
			wantRoot:  repoDir,
			wantErr:   false,
		},
		{
			name:      "No Root Found",
			startPath: emptyDir,
			wantRoot:  "",
			wantErr:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FindRoot(tt.startPath)
			if (err != nil) != tt.wantErr {
				t.Errorf("FindRoot() error = %v, wantErr %v", err, tt.wantErr)
				return
			}

			if got != "" {
				if filepath.Clean(got) != filepath.Clean(tt.wantRoot) {
					t.Errorf("FindRoot() = %v, want %v", got, tt.wantRoot)
				}
			}
		})
	}
}

func TestFindRoot_IgnoresMarkerFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ".brewing"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := FindRoot(dir); err != ErrRootNotFound {
		t.Errorf("FindRoot() error = %v, want %v", err, ErrRootNotFound)
	}
}

func TestResolvePath(t *testing.T) {
	inside := filepath.Join(os.TempDir(), "some-project")
	if got := ResolvePath(inside, true); got != inside {
		t.Errorf("ResolvePath(%q) = %q, paths under the temp dir are kept", inside, got)
	}

	if got := ResolvePath("relative/app", false); got != "relative/app" {
		t.Errorf("ResolvePath without sandbox = %q", got)
	}
	if got := ResolvePath("", false); got != "." {
		t.Errorf("ResolvePath(\"\") = %q, want \".\"", got)
	}

	outside := filepath.Join(string(os.PathSeparator), "srv", "app")
	want := filepath.Join(os.TempDir(), "brewing-dev", "app")
	if got := ResolvePath(outside, true); got != want {
		t.Errorf("ResolvePath(%q) = %q, want %q", outside, got, want)
	}
}
