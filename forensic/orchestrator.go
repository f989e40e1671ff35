package forensic

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/APTrust/evidence-services/constants"
	"github.com/APTrust/evidence-services/digest"
	"github.com/APTrust/evidence-services/models/common"
	"github.com/APTrust/evidence-services/models/evidence"
	"github.com/APTrust/evidence-services/timeauth"
	"github.com/APTrust/evidence-services/util"
	"github.com/op/go-logging"
)

// Digester computes digests and writes manifests. digest.Engine
// implements this.
type Digester interface {
	ComputeDigests(artifactPath string) (evidence.DigestPair, error)
	BuildManifest(artifactPath string, digests evidence.DigestPair, metadata map[string]interface{}) (string, error)
	Verify(artifactPath, expectedSha256 string) (bool, error)
	ReadManifest(artifactPath string) (*evidence.ForensicManifest, error)
}

// TimeAuthority supplies verified time and timestamp tokens.
// timeauth.Client implements this.
type TimeAuthority interface {
	GetVerifiedTime(ctx context.Context) (time.Time, string, error)
	RequestTimestampToken(ctx context.Context, hash string) (string, []byte, error)
}

// CustodyLedger records custody events. custody.Ledger implements this.
type CustodyLedger interface {
	Append(artifactID, action, details string, actor ...string) error
	Events(artifactID string) []evidence.CustodyEvent
	ExportLog(artifactID string) (string, error)
	Flush(artifactID string) error
}

// FormatIdentifier identifies file formats. util.FormatIdentifier
// implements this.
type FormatIdentifier interface {
	Identify(filePath string) (*util.IdRecord, error)
}

// Capture is what the capture pipeline hands over once recording has
// stopped.
type Capture struct {
	ArtifactID string
	Device     evidence.DeviceInfo
	Duration   time.Duration
	Metadata   map[string]string
	Path       string
	StartedAt  time.Time
}

// StepResult is the outcome of one evidence step. Err is nil if the
// step succeeded.
type StepResult struct {
	Detail    string
	Err       error
	Mandatory bool
	Name      string
}

func (r StepResult) Succeeded() bool {
	return r.Err == nil
}

// Outcome lists the steps that ran, in order. Record is set only if
// every mandatory step succeeded.
type Outcome struct {
	Record *evidence.EvidenceRecord
	Steps  []StepResult
}

// Step returns the result of the named step, or nil if it didn't run.
func (o *Outcome) Step(name string) *StepResult {
	for i := range o.Steps {
		if o.Steps[i].Name == name {
			return &o.Steps[i]
		}
	}
	return nil
}

// Orchestrator turns a finished capture into an EvidenceRecord.
type Orchestrator struct {
	// Clock reads the device clock for comparison with NTP time.
	Clock func() time.Time

	Digester Digester
	Ledger   CustodyLedger
	Logger   *logging.Logger
	Time     TimeAuthority

	// Formats is optional. If nil, format identification is skipped.
	Formats FormatIdentifier
}

func NewOrchestrator(digester Digester, timeAuthority TimeAuthority, ledger CustodyLedger, formats FormatIdentifier, logger *logging.Logger) *Orchestrator {
	return &Orchestrator{
		Clock:    func() time.Time { return time.Now().UTC() },
		Digester: digester,
		Formats:  formats,
		Ledger:   ledger,
		Logger:   logger,
		Time:     timeAuthority,
	}
}

// run holds what earlier steps learned for use by later ones.
type run struct {
	ctx     context.Context
	capture *Capture
	o       *Orchestrator

	deviceTime   time.Time
	digests      evidence.DigestPair
	fileSize     int64
	format       *util.IdRecord
	manifestPath string
	ntpServer    string
	ntpTime      time.Time
	proof        string
	record       *evidence.EvidenceRecord
	tsaResponse  []byte
	tsaURL       string
}

// Run executes the evidence steps in order. A mandatory failure stops
// the run and returns a *common.Error. Cancelling ctx stops the run
// before the next step and returns ctx's error. Either way, the
// returned Outcome says which steps ran.
func (o *Orchestrator) Run(ctx context.Context, capture *Capture) (*Outcome, error) {
	outcome := &Outcome{Steps: make([]StepResult, 0, len(constants.EvidenceSteps))}
	r := &run{ctx: ctx, capture: capture, o: o}
	artifactID := "<none>"
	if capture != nil {
		artifactID = capture.ArtifactID
	}
	handlers := map[string]func() (string, error){
		constants.StepPrecondition:   r.checkPrecondition,
		constants.StepDigest:         r.computeDigests,
		constants.StepVerifiedTime:   r.verifyTime,
		constants.StepTimestampTSA:   r.requestToken,
		constants.StepFileFacts:      r.statArtifact,
		constants.StepFormat:         r.identifyFormat,
		constants.StepManifest:       r.buildManifest,
		constants.StepAssembleRecord: r.assembleRecord,
	}
	for _, step := range constants.EvidenceSteps {
		if err := ctx.Err(); err != nil {
			o.Logger.Warningf("Evidence generation for %s cancelled before %s", artifactID, step.Name)
			return outcome, err
		}
		detail, err := handlers[step.Name]()
		outcome.Steps = append(outcome.Steps, StepResult{
			Detail:    detail,
			Err:       err,
			Mandatory: step.Mandatory,
			Name:      step.Name,
		})
		if err == nil {
			o.Logger.Debugf("%s: %s succeeded. %s", artifactID, step.Name, detail)
			continue
		}
		if step.Mandatory {
			o.Logger.Errorf("%s: mandatory step %s failed: %v", artifactID, step.Name, err)
			return outcome, typedError(step.Name, err)
		}
		o.Logger.Warningf("%s: optional step %s failed: %v", artifactID, step.Name, err)
	}
	outcome.Record = r.record
	return outcome, nil
}

func (r *run) checkPrecondition() (string, error) {
	c := r.capture
	if c == nil || c.ArtifactID == "" || c.Path == "" {
		return "", common.NewError(common.ErrMisuse, "Capture must have an artifact id and path", nil, true)
	}
	events := r.o.Ledger.Events(c.ArtifactID)
	for _, required := range []string{constants.ActionRecordingStart, constants.ActionRecordingComplete} {
		found := false
		for _, event := range events {
			if event.Action == required {
				found = true
				break
			}
		}
		if !found {
			return "", common.NewError(common.ErrMisuse,
				fmt.Sprintf("Custody log for %s has no %s event. Evidence is generated only after capture stops.", c.ArtifactID, required),
				nil, true)
		}
	}
	return fmt.Sprintf("Custody log has %d capture events", len(events)), nil
}

func (r *run) computeDigests() (string, error) {
	id := r.capture.ArtifactID
	if err := r.o.Ledger.Append(id, constants.ActionHashGenerationStart, "Generating cryptographic hashes"); err != nil {
		return "", err
	}
	digests, err := r.o.Digester.ComputeDigests(r.capture.Path)
	if err != nil {
		return "", err
	}
	r.digests = digests
	detail := fmt.Sprintf("SHA-256: %s", digests.Sha256)
	return detail, r.o.Ledger.Append(id, constants.ActionHashGenerationComplete, detail)
}

func (r *run) verifyTime() (string, error) {
	id := r.capture.ArtifactID
	if err := r.o.Ledger.Append(id, constants.ActionTimestampVerificationStart, "Requesting timestamp verification from NTP"); err != nil {
		return "", err
	}
	ntpTime, server, err := r.o.Time.GetVerifiedTime(r.ctx)
	if err != nil {
		return "", err
	}
	r.deviceTime = r.o.Clock()
	r.ntpTime = ntpTime
	r.ntpServer = server
	r.proof = digest.ProofOfExistence(r.digests.Sha256, ntpTime)
	return fmt.Sprintf("%s from %s", ntpTime.Format(time.RFC3339), server),
		r.o.Ledger.Append(id, constants.ActionTimestampVerificationComplete,
			fmt.Sprintf("NTP timestamp obtained from %s", server))
}

// requestToken never returns an error for a missing token. The
// failure goes into the custody log instead.
func (r *run) requestToken() (string, error) {
	id := r.capture.ArtifactID
	tsaURL, response, err := r.o.Time.RequestTimestampToken(r.ctx, r.digests.Sha256)
	if err != nil {
		appendErr := r.o.Ledger.Append(id, constants.ActionTSATokenFailed,
			fmt.Sprintf("Failed to obtain timestamp token: %v", err))
		if appendErr != nil {
			r.o.Logger.Warningf("Could not record TSA failure for %s: %v", id, appendErr)
		}
		return "", err
	}
	r.tsaURL = tsaURL
	r.tsaResponse = response
	return fmt.Sprintf("%d bytes from %s", len(response), tsaURL),
		r.o.Ledger.Append(id, constants.ActionTSATokenReceived,
			fmt.Sprintf("Timestamp token received from %s", tsaURL))
}

func (r *run) statArtifact() (string, error) {
	stat, err := os.Stat(r.capture.Path)
	if err != nil {
		return "", common.IOError(fmt.Sprintf("Cannot stat %s", r.capture.Path), err)
	}
	r.fileSize = stat.Size()
	return fmt.Sprintf("%d bytes", r.fileSize), nil
}

func (r *run) identifyFormat() (string, error) {
	if r.o.Formats == nil {
		return "Skipped: no format identifier configured", nil
	}
	record, err := r.o.Formats.Identify(r.capture.Path)
	if err != nil {
		return "", err
	}
	if !record.Succeeded {
		return "", fmt.Errorf("format of %s not identified", filepath.Base(r.capture.Path))
	}
	r.format = record
	detail := record.Description()
	return detail, r.o.Ledger.Append(r.capture.ArtifactID, constants.ActionFormatIdentified, detail)
}

func (r *run) buildManifest() (string, error) {
	manifestPath, err := r.o.Digester.BuildManifest(r.capture.Path, r.digests, r.manifestMetadata())
	if err != nil {
		return "", err
	}
	r.manifestPath = manifestPath
	return manifestPath, r.o.Ledger.Append(r.capture.ArtifactID, constants.ActionManifestCreated,
		fmt.Sprintf("Forensic manifest created at %s", filepath.Base(manifestPath)))
}

// manifestMetadata returns the fields we add to the manifest on top
// of the required ones. Caller supplied metadata wins on collision.
func (r *run) manifestMetadata() map[string]interface{} {
	c := r.capture
	metadata := map[string]interface{}{
		"app_version":        c.Device.AppVersion,
		"artifact_id":        c.ArtifactID,
		"device_model":       c.Device.Model,
		"duration_seconds":   c.Duration.Seconds(),
		"ntp_server":         r.ntpServer,
		"ntp_timestamp":      r.ntpTime.UTC().Format(time.RFC3339),
		"os_version":         c.Device.OSVersion,
		"proof_of_existence": r.proof,
		"screen_resolution":  c.Device.ScreenResolution,
	}
	if r.format != nil {
		metadata["file_format"] = r.format.Puid
	}
	if r.tsaURL != "" {
		metadata["tsa_url"] = r.tsaURL
	}
	for key, value := range c.Metadata {
		metadata[key] = value
	}
	return metadata
}

func (r *run) assembleRecord() (string, error) {
	c := r.capture
	if !r.digests.Valid() {
		return "", common.NewError(common.ErrMisuse,
			fmt.Sprintf("Digests for %s are not well formed", c.ArtifactID), nil, true)
	}
	if err := r.o.Ledger.Flush(c.ArtifactID); err != nil {
		// The in-memory log is what goes into the record.
		r.o.Logger.Warningf("Custody sidecar for %s is behind: %v", c.ArtifactID, err)
	}
	fileFormat := ""
	if r.format != nil {
		fileFormat = r.format.Puid
	}
	r.record = evidence.NewEvidenceRecord(evidence.EvidenceRecord{
		ArtifactID:       c.ArtifactID,
		CreatedAt:        c.StartedAt.UTC(),
		CustodyLog:       r.o.Ledger.Events(c.ArtifactID),
		Device:           c.Device,
		Digests:          r.digests,
		DurationSeconds:  c.Duration.Seconds(),
		FileFormat:       fileFormat,
		FileName:         filepath.Base(c.Path),
		FilePath:         c.Path,
		FileSize:         r.fileSize,
		IsOriginalFile:   true,
		ManifestPath:     r.manifestPath,
		Metadata:         c.Metadata,
		OriginalFileHash: r.digests.Sha256,
		ProofOfExistence: r.proof,
		Timestamp: timeauth.BuildTimestampProof(
			r.digests.Sha256,
			r.deviceTime,
			r.ntpTime,
			r.ntpServer,
			r.tsaURL,
			r.tsaResponse),
	})
	return fmt.Sprintf("Record has %d custody events", len(r.record.CustodyLog)), nil
}

// typedError makes sure a mandatory failure reaches the caller as a
// *common.Error.
func typedError(stepName string, err error) error {
	var e *common.Error
	if errors.As(err, &e) {
		return err
	}
	return common.NewError(common.ErrIO, fmt.Sprintf("%s failed", stepName), err, true)
}
