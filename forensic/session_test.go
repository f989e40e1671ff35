package forensic_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/APTrust/evidence-services/constants"
	"github.com/APTrust/evidence-services/custody"
	"github.com/APTrust/evidence-services/forensic"
	"github.com/APTrust/evidence-services/models/common"
	"github.com/APTrust/evidence-services/util"
	"github.com/APTrust/evidence-services/util/logger"
	"github.com/APTrust/evidence-services/util/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureLedger(t *testing.T) *custody.Ledger {
	ledger := custody.NewLedger(logger.DiscardLogger("session_test"))
	ledger.Clock = testutil.StepClock(testutil.CaptureStart, 45*time.Second)
	ledger.Identity = custody.StaticActor(testutil.Actor)
	t.Cleanup(ledger.Close)
	return ledger
}

func TestStartAndStopCapture(t *testing.T) {
	ledger := captureLedger(t)
	artifactPath := filepath.Join(t.TempDir(), "recording.mov")

	artifactID, err := forensic.StartCapture(ledger, artifactPath, "")
	require.Nil(t, err)
	assert.True(t, util.LooksLikeUUID(artifactID))
	assert.True(t, util.FileExists(util.CustodyLogPathFor(artifactPath)))
	events := ledger.Events(artifactID)
	require.Equal(t, 1, len(events))
	assert.Equal(t, constants.ActionRecordingStart, events[0].Action)
	assert.Equal(t, "Screen capture started", events[0].Details)

	// The recording must exist before the session can stop.
	device := testutil.GetDeviceInfo()
	_, err = forensic.StopCapture(ledger, artifactID, artifactPath, device, nil)
	assert.True(t, common.IsKind(err, common.ErrIO))

	artifactPath = testutil.WriteArtifact(t, "recording.mov", 1000)
	require.Nil(t, ledger.Relocate(artifactID, artifactPath))
	msg, err := forensic.StopCapture(ledger, artifactID, artifactPath, device,
		map[string]string{"case_number": "2025-041"})
	require.Nil(t, err)
	assert.Equal(t, artifactID, msg.ArtifactID)
	assert.Equal(t, artifactPath, msg.Path)
	assert.Equal(t, testutil.CaptureStart, msg.StartedAt)
	assert.Equal(t, 45*time.Second, msg.Duration())
	assert.Equal(t, device, msg.Device)
	assert.Equal(t, "2025-041", msg.Metadata["case_number"])
	assert.True(t, ledger.HasAction(artifactID, constants.ActionRecordingComplete))
	assert.True(t, util.FileExists(util.CustodyLogPathFor(artifactPath)))
}

func TestStartCaptureAssignsNewIDs(t *testing.T) {
	ledger := captureLedger(t)
	dir := t.TempDir()
	first, err := forensic.StartCapture(ledger, filepath.Join(dir, "one.mov"), "Window capture")
	require.Nil(t, err)
	second, err := forensic.StartCapture(ledger, filepath.Join(dir, "two.mov"), "")
	require.Nil(t, err)
	assert.NotEqual(t, first, second)
	assert.Equal(t, "Window capture", ledger.Events(first)[0].Details)

	_, err = forensic.StartCapture(ledger, "", "")
	assert.True(t, common.IsKind(err, common.ErrMisuse))
}

func TestStopCaptureRequiresStart(t *testing.T) {
	ledger := captureLedger(t)
	artifactPath := testutil.WriteArtifact(t, "recording.mov", 10)
	require.Nil(t, ledger.Track(testutil.ArtifactID, artifactPath))
	_, err := forensic.StopCapture(ledger, testutil.ArtifactID, artifactPath, testutil.GetDeviceInfo(), nil)
	assert.True(t, common.IsKind(err, common.ErrMisuse))
	assert.Empty(t, ledger.Events(testutil.ArtifactID))
}
