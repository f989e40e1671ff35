package forensic

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"
	"time"

	"github.com/APTrust/evidence-services/constants"
	"github.com/APTrust/evidence-services/models/common"
	"github.com/APTrust/evidence-services/models/evidence"
	"github.com/APTrust/evidence-services/util"
)

var readmeTemplate = template.Must(template.New("readme").Funcs(template.FuncMap{
	"date":     formatDate,
	"duration": formatDuration,
}).Parse(`FORENSIC SCREEN RECORDING PACKAGE
==================================

Recording ID: {{.Record.ArtifactID}}
Created: {{date .Record.CreatedAt}}
Duration: {{duration .Record.DurationSeconds}}

FILES INCLUDED:
- {{.Record.FileName}} - Original video recording
- {{.ManifestName}} - Cryptographic manifest
- {{.CustodyLogName}} - Chain of custody log
- README.txt - This file

VERIFICATION:

SHA-256 Hash: {{.Record.Digests.Sha256}}
SHA-512 Hash: {{.Record.Digests.Sha512}}
Proof of Existence: {{.Record.ProofOfExistence}}

To verify file integrity, calculate the SHA-256 hash of the video file
and compare it to the hash above. Any difference indicates tampering.

macOS/Linux: shasum -a 256 "{{.Record.FileName}}"
Windows: certutil -hashfile "{{.Record.FileName}}" SHA256

TIMESTAMP VERIFICATION:

NTP Server: {{or .Record.Timestamp.NTPServer "N/A"}}
NTP Timestamp: {{date .Record.Timestamp.NTPTimestamp}}
Device Time: {{date .Record.Timestamp.DeviceTimestamp}}
Timestamp Authority: {{or .Record.Timestamp.TSAURL "N/A"}}
{{- if .Record.Timestamp.TSAResponse}}
Timestamp Token SHA-256: {{.Record.Timestamp.TSAResponseSha256}}
{{- end}}

DEVICE INFORMATION:

Model: {{.Record.Device.Model}}
OS Version: {{.Record.Device.OSVersion}}
App Version: {{.Record.Device.AppVersion}}
Screen Resolution: {{.Record.Device.ScreenResolution}}

CHAIN OF CUSTODY:

Total Events: {{.TotalEvents}}
See {{.CustodyLogName}} for the detailed event log.

LEGAL NOTICE:

This recording was created with forensic verification features to ensure
authenticity and integrity for potential legal proceedings. The cryptographic
hashes, timestamp verification, and chain of custody log provide evidence
that the file has not been altered since creation.
`))

type readmeData struct {
	CustodyLogName string
	ManifestName   string
	Record         *evidence.EvidenceRecord
	TotalEvents    int
}

// ExportPackage copies the artifact, its manifest and a fresh export
// of its custody log into ForensicExport_<id> under exportRoot, adds a
// README, and returns the package directory.
func ExportPackage(record *evidence.EvidenceRecord, ledger CustodyLedger, exportRoot string) (string, error) {
	packageDir := filepath.Join(exportRoot, constants.ExportDirPrefix+record.ArtifactID)
	if err := os.MkdirAll(packageDir, 0755); err != nil {
		return "", common.IOError(fmt.Sprintf("Cannot create %s", packageDir), err)
	}
	if _, err := util.CopyFile(filepath.Join(packageDir, record.FileName), record.FilePath); err != nil {
		return "", common.IOError("Cannot copy artifact into package", err)
	}
	manifestPath := record.ManifestPath
	if manifestPath == "" {
		manifestPath = util.ManifestPathFor(record.FilePath)
	}
	manifestName := filepath.Base(manifestPath)
	if _, err := util.CopyFile(filepath.Join(packageDir, manifestName), manifestPath); err != nil {
		return "", common.IOError("Cannot copy manifest into package", err)
	}
	custodyPath, err := ledger.ExportLog(record.ArtifactID)
	if err != nil {
		return "", err
	}
	custodyName := filepath.Base(custodyPath)
	if _, err := util.CopyFile(filepath.Join(packageDir, custodyName), custodyPath); err != nil {
		return "", common.IOError("Cannot copy custody log into package", err)
	}

	readme := &strings.Builder{}
	err = readmeTemplate.Execute(readme, readmeData{
		CustodyLogName: custodyName,
		ManifestName:   manifestName,
		Record:         record,
		TotalEvents:    len(ledger.Events(record.ArtifactID)),
	})
	if err != nil {
		return "", common.NewError(common.ErrMisuse, "Cannot render package README", err, true)
	}
	readmePath := filepath.Join(packageDir, constants.ReadmeFileName)
	if err = util.WriteFileAtomic(readmePath, []byte(readme.String()), 0644); err != nil {
		return "", common.IOError(fmt.Sprintf("Cannot write %s", readmePath), err)
	}
	err = ledger.Append(record.ArtifactID, constants.ActionPackageExported,
		fmt.Sprintf("Forensic package exported to %s", packageDir))
	return packageDir, err
}

// VerifyRecord recomputes the artifact's SHA-256 and compares it with
// the digest in the record.
func VerifyRecord(digester Digester, record *evidence.EvidenceRecord) (bool, error) {
	if record.FilePath == "" {
		return false, common.NewError(common.ErrMisuse,
			fmt.Sprintf("Record %s has no file path", record.ArtifactID), nil, false)
	}
	return digester.Verify(record.FilePath, record.Digests.Sha256)
}

func formatDate(ts time.Time) string {
	if ts.IsZero() {
		return "N/A"
	}
	return ts.UTC().Format("Jan 2, 2006 at 3:04:05 PM UTC")
}

func formatDuration(seconds float64) string {
	d := time.Duration(seconds * float64(time.Second)).Round(time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", int(d.Hours()), int(d.Minutes())%60, int(d.Seconds())%60)
}
