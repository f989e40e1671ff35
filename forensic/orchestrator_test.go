package forensic_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/APTrust/evidence-services/constants"
	"github.com/APTrust/evidence-services/custody"
	"github.com/APTrust/evidence-services/digest"
	"github.com/APTrust/evidence-services/forensic"
	"github.com/APTrust/evidence-services/models/common"
	"github.com/APTrust/evidence-services/timeauth"
	"github.com/APTrust/evidence-services/util"
	"github.com/APTrust/evidence-services/util/logger"
	"github.com/APTrust/evidence-services/util/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ntpTime = testutil.CaptureStart.Add(95 * time.Second)

type fakeFormats struct {
	record *util.IdRecord
	err    error
}

func (f *fakeFormats) Identify(filePath string) (*util.IdRecord, error) {
	return f.record, f.err
}

type fixture struct {
	artifactPath string
	capture      *forensic.Capture
	ledger       *custody.Ledger
	orchestrator *forensic.Orchestrator
}

// newFixture wires real components to local fake NTP and TSA servers.
func newFixture(t *testing.T, ntpServers, tsaURLs []string) *fixture {
	log := logger.DiscardLogger("forensic_test")
	artifactPath := testutil.WriteArtifact(t, "recording.mov", 1000)

	ledger := custody.NewLedger(log)
	ledger.Clock = testutil.StepClock(testutil.CaptureStart, time.Second)
	ledger.Identity = custody.StaticActor(testutil.Actor)
	t.Cleanup(ledger.Close)
	require.Nil(t, ledger.Track(testutil.ArtifactID, artifactPath))

	engine := digest.NewEngine()
	engine.Clock = func() time.Time { return testutil.CaptureStart.Add(2 * time.Minute) }
	client := timeauth.NewClient(ntpServers, tsaURLs, 300*time.Millisecond, 500*time.Millisecond, log)

	orchestrator := forensic.NewOrchestrator(engine, client, ledger, nil, log)
	orchestrator.Clock = func() time.Time { return testutil.CaptureStart.Add(90 * time.Second) }
	return &fixture{
		artifactPath: artifactPath,
		capture: &forensic.Capture{
			ArtifactID: testutil.ArtifactID,
			Device:     testutil.GetDeviceInfo(),
			Duration:   90 * time.Second,
			Metadata:   map[string]string{"case_number": "2025-041", "device_model": "Override"},
			Path:       artifactPath,
			StartedAt:  testutil.CaptureStart,
		},
		ledger:       ledger,
		orchestrator: orchestrator,
	}
}

func (f *fixture) recordCapture(t *testing.T) {
	require.Nil(t, f.ledger.Append(testutil.ArtifactID, constants.ActionRecordingStart, "Screen capture started"))
	require.Nil(t, f.ledger.Append(testutil.ArtifactID, constants.ActionRecordingComplete, "Screen capture stopped"))
}

func actions(f *fixture) []string {
	events := f.ledger.Events(testutil.ArtifactID)
	list := make([]string, len(events))
	for i, event := range events {
		list[i] = event.Action
	}
	return list
}

func TestRunProducesRecord(t *testing.T) {
	ntp := testutil.NewNTPServer(testutil.NTPTimeResponder(ntpTime))
	defer ntp.Close()
	tsa := httptest.NewServer(testutil.HttpStringResponder(nil, "token"))
	defer tsa.Close()

	f := newFixture(t, []string{ntp.Addr}, []string{tsa.URL})
	f.recordCapture(t)
	outcome, err := f.orchestrator.Run(context.Background(), f.capture)
	require.Nil(t, err)
	require.NotNil(t, outcome.Record)
	assert.Equal(t, len(constants.EvidenceSteps), len(outcome.Steps))
	for _, step := range outcome.Steps {
		assert.True(t, step.Succeeded(), step.Name)
	}

	record := outcome.Record
	assert.Equal(t, testutil.ArtifactID, record.ArtifactID)
	assert.Equal(t, testutil.ZeroSha256, record.Digests.Sha256)
	assert.Equal(t, testutil.ZeroSha512, record.Digests.Sha512)
	assert.EqualValues(t, 1000, record.FileSize)
	assert.Equal(t, "recording.mov", record.FileName)
	assert.Equal(t, 90.0, record.DurationSeconds)
	assert.Equal(t, ntpTime, record.Timestamp.NTPTimestamp)
	assert.Equal(t, ntp.Addr, record.Timestamp.NTPServer)
	assert.Equal(t, 5.0, record.Timestamp.TimeDifferenceSeconds())
	assert.Equal(t, tsa.URL, record.Timestamp.TSAURL)
	assert.Equal(t, "token", string(record.Timestamp.TSAResponse))
	assert.Equal(t, digest.ProofOfExistence(testutil.ZeroSha256, ntpTime), record.ProofOfExistence)
	assert.True(t, record.IsOriginalFile)
	assert.Equal(t, testutil.ZeroSha256, record.OriginalFileHash)

	assert.Equal(t, []string{
		constants.ActionRecordingStart,
		constants.ActionRecordingComplete,
		constants.ActionHashGenerationStart,
		constants.ActionHashGenerationComplete,
		constants.ActionTimestampVerificationStart,
		constants.ActionTimestampVerificationComplete,
		constants.ActionTSATokenReceived,
		constants.ActionManifestCreated,
	}, actions(f))
	assert.Equal(t, f.ledger.Events(testutil.ArtifactID), record.CustodyLog)
	assert.Equal(t, "SHA-256: "+testutil.ZeroSha256, record.CustodyLog[3].Details)
	assert.True(t, f.ledger.VerifyIntegrity(testutil.ArtifactID).IsValid)

	data, err := os.ReadFile(record.ManifestPath)
	require.Nil(t, err)
	manifest := make(map[string]interface{})
	require.Nil(t, json.Unmarshal(data, &manifest))
	assert.EqualValues(t, 1000, manifest["file_size"])
	assert.Equal(t, testutil.ZeroSha256, manifest["sha256"])
	assert.Equal(t, "2025-12-11T10:01:35Z", manifest["ntp_timestamp"])
	assert.Equal(t, ntp.Addr, manifest["ntp_server"])
	assert.Equal(t, tsa.URL, manifest["tsa_url"])
	assert.Equal(t, "2025-041", manifest["case_number"])
	assert.Equal(t, "Override", manifest["device_model"])
	assert.Equal(t, record.ProofOfExistence, manifest["proof_of_existence"])
	assert.NotContains(t, manifest, "file_format")
}

func TestRunAbortsWhenNTPFails(t *testing.T) {
	silent := testutil.NewNTPServer(testutil.NTPSilentResponder())
	defer silent.Close()
	tsa := httptest.NewServer(testutil.HttpStringResponder(nil, "token"))
	defer tsa.Close()

	f := newFixture(t, []string{silent.Addr, "127.0.0.1:1"}, []string{tsa.URL})
	f.recordCapture(t)
	outcome, err := f.orchestrator.Run(context.Background(), f.capture)
	require.NotNil(t, err)
	assert.True(t, common.IsKind(err, common.ErrTimeUnavailable))
	assert.Nil(t, outcome.Record)

	step := outcome.Step(constants.StepVerifiedTime)
	require.NotNil(t, step)
	assert.False(t, step.Succeeded())
	assert.True(t, step.Mandatory)
	assert.Nil(t, outcome.Step(constants.StepManifest))
	assert.False(t, util.FileExists(util.ManifestPathFor(f.artifactPath)))
	assert.NotContains(t, actions(f), constants.ActionTimestampVerificationComplete)
}

func TestRunSurvivesTSAFailure(t *testing.T) {
	ntp := testutil.NewNTPServer(testutil.NTPTimeResponder(ntpTime))
	defer ntp.Close()
	broken := httptest.NewServer(testutil.HttpStatusResponder(http.StatusServiceUnavailable, "down"))
	defer broken.Close()

	f := newFixture(t, []string{ntp.Addr}, []string{broken.URL})
	f.recordCapture(t)
	outcome, err := f.orchestrator.Run(context.Background(), f.capture)
	require.Nil(t, err)
	require.NotNil(t, outcome.Record)
	assert.Equal(t, "", outcome.Record.Timestamp.TSAURL)
	assert.Nil(t, outcome.Record.Timestamp.TSAResponse)

	step := outcome.Step(constants.StepTimestampTSA)
	require.NotNil(t, step)
	assert.False(t, step.Succeeded())
	assert.False(t, step.Mandatory)
	assert.True(t, common.IsKind(step.Err, common.ErrNoTimestampAuthority))

	assert.Contains(t, actions(f), constants.ActionTSATokenFailed)
	assert.NotContains(t, actions(f), constants.ActionTSATokenReceived)
	assert.Contains(t, actions(f), constants.ActionManifestCreated)
	assert.True(t, util.FileExists(outcome.Record.ManifestPath))
}

func TestRunRequiresCaptureEvents(t *testing.T) {
	f := newFixture(t, nil, nil)
	require.Nil(t, f.ledger.Append(testutil.ArtifactID, constants.ActionRecordingStart, "started"))
	outcome, err := f.orchestrator.Run(context.Background(), f.capture)
	require.NotNil(t, err)
	assert.True(t, common.IsKind(err, common.ErrMisuse))
	assert.Nil(t, outcome.Record)
	assert.Equal(t, 1, len(outcome.Steps))
	assert.Equal(t, []string{constants.ActionRecordingStart}, actions(f))
}

func TestRunAbortsWhenArtifactMissing(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.recordCapture(t)
	require.Nil(t, os.Remove(f.artifactPath))
	outcome, err := f.orchestrator.Run(context.Background(), f.capture)
	require.NotNil(t, err)
	assert.True(t, common.IsKind(err, common.ErrIO))
	assert.Nil(t, outcome.Record)
	assert.NotContains(t, actions(f), constants.ActionHashGenerationComplete)
}

func TestRunCancelled(t *testing.T) {
	ntp := testutil.NewNTPServer(testutil.NTPTimeResponder(ntpTime))
	defer ntp.Close()
	f := newFixture(t, []string{ntp.Addr}, nil)
	f.recordCapture(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	outcome, err := f.orchestrator.Run(ctx, f.capture)
	require.NotNil(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, outcome.Record)
	assert.Empty(t, outcome.Steps)
}

func TestRunWithFormatIdentification(t *testing.T) {
	ntp := testutil.NewNTPServer(testutil.NTPTimeResponder(ntpTime))
	defer ntp.Close()

	f := newFixture(t, []string{ntp.Addr}, nil)
	f.orchestrator.Formats = &fakeFormats{record: &util.IdRecord{
		Format:    "Quicktime",
		MimeType:  "video/quicktime",
		Puid:      "x-fmt/384",
		Succeeded: true,
	}}
	f.recordCapture(t)
	outcome, err := f.orchestrator.Run(context.Background(), f.capture)
	require.Nil(t, err)
	assert.Equal(t, "x-fmt/384", outcome.Record.FileFormat)
	assert.Contains(t, actions(f), constants.ActionFormatIdentified)

	manifest, err := digest.NewEngine().ReadManifest(f.artifactPath)
	require.Nil(t, err)
	assert.Equal(t, "x-fmt/384", manifest.Metadata["file_format"])
}

func TestRunFormatFailureIsOptional(t *testing.T) {
	ntp := testutil.NewNTPServer(testutil.NTPTimeResponder(ntpTime))
	defer ntp.Close()

	f := newFixture(t, []string{ntp.Addr}, nil)
	f.orchestrator.Formats = &fakeFormats{err: fmt.Errorf("signature file is corrupt")}
	f.recordCapture(t)
	outcome, err := f.orchestrator.Run(context.Background(), f.capture)
	require.Nil(t, err)
	require.NotNil(t, outcome.Record)
	assert.Equal(t, "", outcome.Record.FileFormat)
	step := outcome.Step(constants.StepFormat)
	require.NotNil(t, step)
	assert.False(t, step.Succeeded())
	assert.NotContains(t, actions(f), constants.ActionFormatIdentified)
}

func TestRunRejectsEmptyCapture(t *testing.T) {
	f := newFixture(t, nil, nil)
	_, err := f.orchestrator.Run(context.Background(), &forensic.Capture{})
	assert.True(t, common.IsKind(err, common.ErrMisuse))
	_, err = f.orchestrator.Run(context.Background(), nil)
	assert.True(t, common.IsKind(err, common.ErrMisuse))
}
