package testutil

import (
	"os"
	"path"
	"path/filepath"
	"testing"

	"github.com/APTrust/evidence-services/util"
)

func PathToTestData() string {
	return path.Join(util.ProjectRoot(), "testdata")
}

func PathToConfigDir() string {
	return path.Join(PathToTestData(), "config")
}

// WriteArtifact writes size zero bytes to name inside a fresh temp
// dir and returns the full path. The dir is removed when t finishes.
func WriteArtifact(t *testing.T, name string, size int) string {
	t.Helper()
	artifactPath := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(artifactPath, make([]byte, size), 0644); err != nil {
		t.Fatalf("Cannot write test artifact %s: %v", artifactPath, err)
	}
	return artifactPath
}
