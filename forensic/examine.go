package forensic

import (
	"fmt"

	"github.com/APTrust/evidence-services/constants"
	"github.com/APTrust/evidence-services/models/common"
)

// VerifyArtifact checks the artifact against the SHA-256 in its
// manifest sidecar and records the result as INTEGRITY_VERIFIED.
// A mismatch is not an error. It returns false with a nil error.
func VerifyArtifact(digester Digester, ledger CustodyLedger, artifactID, artifactPath string) (bool, error) {
	manifest, err := digester.ReadManifest(artifactPath)
	if err != nil {
		return false, err
	}
	if manifest.Sha256 == "" {
		return false, common.NewError(common.ErrMalformedResponse,
			fmt.Sprintf("Manifest for %s has no sha256", artifactPath), nil, false)
	}
	ok, err := digester.Verify(artifactPath, manifest.Sha256)
	if err != nil {
		return false, err
	}
	details := fmt.Sprintf("SHA-256 matches manifest: %s", manifest.Sha256)
	if !ok {
		details = fmt.Sprintf("SHA-256 MISMATCH: manifest has %s", manifest.Sha256)
	}
	if err = ledger.Append(artifactID, constants.ActionIntegrityVerified, details); err != nil {
		return ok, err
	}
	return ok, ledger.Flush(artifactID)
}
