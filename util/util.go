package util

import (
	"fmt"
	"io"
	"os"
	"os/user"
	"path"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"github.com/APTrust/evidence-services/constants"
)

var reUUID = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)
var reLowerHex = regexp.MustCompile(`^[0-9a-f]+$`)

// StringListContains returns true if the list of strings contains item.
func StringListContains(list []string, item string) bool {
	if list != nil {
		for i := range list {
			if list[i] == item {
				return true
			}
		}
	}
	return false
}

// StripExtension returns filePath without its final extension.
// "/tmp/recording_17.mp4" becomes "/tmp/recording_17". Dots in
// directory names are left alone.
func StripExtension(filePath string) string {
	return strings.TrimSuffix(filePath, filepath.Ext(filePath))
}

// ManifestPathFor returns the path of the forensic manifest sidecar
// for the artifact at artifactPath.
func ManifestPathFor(artifactPath string) string {
	return StripExtension(artifactPath) + constants.ManifestSuffix
}

// CustodyLogPathFor returns the path of the chain of custody sidecar
// for the artifact at artifactPath.
func CustodyLogPathFor(artifactPath string) string {
	return StripExtension(artifactPath) + constants.CustodyLogSuffix
}

// SignaturePathFor returns the path of the custody log signature
// for the artifact at artifactPath.
func SignaturePathFor(artifactPath string) string {
	return StripExtension(artifactPath) + constants.SignatureSuffix
}

// LooksLikeUUID returns true if uuid looks like a valid lowercase UUID.
func LooksLikeUUID(uuid string) bool {
	return reUUID.MatchString(uuid)
}

// LooksLikeDigest returns true if digest is lowercase hex of exactly
// the specified length.
func LooksLikeDigest(digest string, length int) bool {
	return len(digest) == length && reLowerHex.MatchString(digest)
}

// FileExists returns true if the file at filePath exists.
func FileExists(filePath string) bool {
	_, err := os.Stat(filePath)
	return err == nil
}

// ExpandTilde expands a leading tilde in filePath to the current
// user's home directory.
func ExpandTilde(filePath string) (string, error) {
	if !strings.HasPrefix(filePath, "~") {
		return filePath, nil
	}
	usr, err := user.Current()
	if err != nil {
		return "", err
	}
	return filepath.Join(usr.HomeDir, strings.TrimPrefix(filePath, "~")), nil
}

// WriteFileAtomic writes data to a temp file in the same directory as
// filePath, then renames it into place. Readers see either the old
// file or the complete new one, never a partial write.
func WriteFileAtomic(filePath string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(filePath)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(filePath)+".*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	_, err = tmp.Write(data)
	if err == nil {
		err = tmp.Sync()
	}
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err == nil {
		err = os.Chmod(tmpName, perm)
	}
	if err == nil {
		err = os.Rename(tmpName, filePath)
	}
	if err != nil {
		os.Remove(tmpName)
	}
	return err
}

// CopyFile copies the file at src to dest, returning the number of
// bytes copied.
func CopyFile(dest, src string) (int64, error) {
	srcFile, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer srcFile.Close()
	destFile, err := os.Create(dest)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(destFile, srcFile)
	if closeErr := destFile.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return n, fmt.Errorf("Error copying %s to %s: %v", src, dest, err)
	}
	return n, nil
}

// ProjectRoot returns the absolute path to the root of this project.
func ProjectRoot() string {
	_, thisFile, _, _ := runtime.Caller(0)
	absPath, _ := filepath.Abs(path.Join(thisFile, "..", ".."))
	return absPath
}
