package digest

import (
	"crypto/sha256"
	"crypto/sha512"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/APTrust/evidence-services/models/common"
	"github.com/APTrust/evidence-services/models/evidence"
	"github.com/APTrust/evidence-services/util"
)

// Engine computes content digests for artifacts and writes their
// manifest sidecars.
type Engine struct {
	// Clock supplies the manifest's created_at time. Tests replace it.
	Clock func() time.Time
}

// NewEngine returns an Engine that stamps manifests with the
// current UTC time.
func NewEngine() *Engine {
	return &Engine{
		Clock: func() time.Time { return time.Now().UTC() },
	}
}

// ComputeDigests streams the artifact once through both SHA-256 and
// SHA-512.
func (e *Engine) ComputeDigests(artifactPath string) (evidence.DigestPair, error) {
	pair := evidence.DigestPair{}
	file, err := os.Open(artifactPath)
	if err != nil {
		return pair, common.IOError(fmt.Sprintf("Cannot open %s", artifactPath), err)
	}
	defer file.Close()

	sha256Hash := sha256.New()
	sha512Hash := sha512.New()
	multiWriter := io.MultiWriter(sha256Hash, sha512Hash)
	_, err = io.Copy(multiWriter, file)
	if err != nil {
		return pair, common.IOError(fmt.Sprintf("Error streaming %s through hash functions", artifactPath), err)
	}
	pair.Sha256 = fmt.Sprintf("%x", sha256Hash.Sum(nil))
	pair.Sha512 = fmt.Sprintf("%x", sha512Hash.Sum(nil))
	return pair, nil
}

// Verify recomputes the artifact's SHA-256 and compares it to
// expectedSha256. Case is ignored on the expected value.
func (e *Engine) Verify(artifactPath, expectedSha256 string) (bool, error) {
	digests, err := e.ComputeDigests(artifactPath)
	if err != nil {
		return false, err
	}
	return digests.Sha256 == strings.ToLower(strings.TrimSpace(expectedSha256)), nil
}

// BuildManifest writes the manifest sidecar for the artifact and
// returns its path. Any existing manifest is replaced wholesale.
func (e *Engine) BuildManifest(artifactPath string, digests evidence.DigestPair, metadata map[string]interface{}) (string, error) {
	stat, err := os.Stat(artifactPath)
	if err != nil {
		return "", common.IOError(fmt.Sprintf("Cannot stat %s", artifactPath), err)
	}
	manifest := &evidence.ForensicManifest{
		CreatedAt: e.Clock(),
		FileSize:  stat.Size(),
		Filename:  filepath.Base(artifactPath),
		Metadata:  metadata,
		Sha256:    digests.Sha256,
		Sha512:    digests.Sha512,
	}
	data, err := manifest.ToJSON()
	if err != nil {
		return "", common.IOError("Cannot serialize manifest", err)
	}
	manifestPath := util.ManifestPathFor(artifactPath)
	err = util.WriteFileAtomic(manifestPath, data, 0644)
	if err != nil {
		return "", common.IOError(fmt.Sprintf("Cannot write manifest %s", manifestPath), err)
	}
	return manifestPath, nil
}

// ReadManifest loads the manifest sidecar for the artifact.
func (e *Engine) ReadManifest(artifactPath string) (*evidence.ForensicManifest, error) {
	manifestPath := util.ManifestPathFor(artifactPath)
	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return nil, common.IOError(fmt.Sprintf("Cannot read manifest %s", manifestPath), err)
	}
	manifest, err := evidence.ManifestFromJSON(data)
	if err != nil {
		return nil, common.NewError(common.ErrMalformedResponse,
			fmt.Sprintf("Cannot parse manifest %s", manifestPath), err, true)
	}
	return manifest, nil
}

// ProofOfExistence returns the hex SHA-256 of sha256Hash, a pipe, and
// the timestamp as Unix seconds in shortest decimal form with at least
// one fractional digit: 1765447200.0, 1765447200.5. Anyone holding the
// digest and the time can recompute it.
func ProofOfExistence(sha256Hash string, timestamp time.Time) string {
	combined := sha256Hash + "|" + EpochString(timestamp)
	sum := sha256.Sum256([]byte(combined))
	return fmt.Sprintf("%x", sum)
}

// EpochString renders timestamp the way ProofOfExistence hashes it.
func EpochString(timestamp time.Time) string {
	epoch := float64(timestamp.Unix()) + float64(timestamp.Nanosecond())/float64(time.Second)
	formatted := strconv.FormatFloat(epoch, 'f', -1, 64)
	if !strings.Contains(formatted, ".") {
		formatted += ".0"
	}
	return formatted
}
