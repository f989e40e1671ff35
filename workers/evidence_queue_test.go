package workers_test

import (
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/APTrust/evidence-services/constants"
	"github.com/APTrust/evidence-services/custody"
	"github.com/APTrust/evidence-services/models/common"
	"github.com/APTrust/evidence-services/models/evidence"
	"github.com/APTrust/evidence-services/network"
	"github.com/APTrust/evidence-services/util"
	"github.com/APTrust/evidence-services/util/logger"
	"github.com/APTrust/evidence-services/util/testutil"
	"github.com/APTrust/evidence-services/workers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSidecar(t *testing.T, artifactPath, artifactID string, actions ...string) {
	ledger := custody.NewLedger(logger.DiscardLogger("queue_test"))
	ledger.Identity = custody.StaticActor(testutil.Actor)
	ledger.Clock = testutil.StepClock(testutil.CaptureStart, 45*time.Second)
	defer ledger.Close()
	require.Nil(t, ledger.Track(artifactID, artifactPath))
	for _, action := range actions {
		require.Nil(t, ledger.Append(artifactID, action, "capture pipeline"))
	}
	_, err := ledger.ExportLog(artifactID)
	require.Nil(t, err)
}

func TestEvidenceQueueRunOnce(t *testing.T) {
	evidenceDir := t.TempDir()
	recorder := testutil.NewRequestRecorder(testutil.HttpStringResponder(nil, "OK"))
	nsqd := httptest.NewServer(recorder)
	defer nsqd.Close()

	// Ready: recording stopped, no manifest.
	ready := filepath.Join(evidenceDir, "ready.mov")
	require.Nil(t, os.WriteFile(ready, []byte("video"), 0644))
	writeSidecar(t, ready, "ready-id",
		constants.ActionRecordingStart, constants.ActionRecordingComplete)

	// Still recording.
	recording := filepath.Join(evidenceDir, "recording.mov")
	require.Nil(t, os.WriteFile(recording, []byte("video"), 0644))
	writeSidecar(t, recording, "recording-id", constants.ActionRecordingStart)

	// Already has evidence.
	done := filepath.Join(evidenceDir, "done.mov")
	require.Nil(t, os.WriteFile(done, []byte("video"), 0644))
	writeSidecar(t, done, "done-id",
		constants.ActionRecordingStart, constants.ActionRecordingComplete, constants.ActionManifestCreated)

	// Artifact is gone.
	missing := filepath.Join(evidenceDir, "missing.mov")
	writeSidecar(t, missing, "missing-id",
		constants.ActionRecordingStart, constants.ActionRecordingComplete)

	_context := &common.Context{
		Config: &common.Config{
			AppVersion:    "2.1.0",
			EvidenceDir:   evidenceDir,
			QueueInterval: time.Minute,
		},
		Logger:    logger.DiscardLogger("queue_test"),
		NSQClient: network.NewNSQClient(nsqd.URL),
	}
	queue := workers.NewEvidenceQueue(_context)
	assert.Equal(t, 1, queue.RunOnce())

	requests := recorder.Requests()
	require.Equal(t, 1, len(requests))
	assert.Equal(t, "/pub?topic="+constants.TopicEvidence, requests[0].URL)
	msg, err := evidence.CaptureMessageFromJSON([]byte(requests[0].Body))
	require.Nil(t, err)
	assert.Equal(t, "ready-id", msg.ArtifactID)
	assert.Equal(t, ready, msg.Path)
	assert.Equal(t, 45.0, msg.DurationSeconds)
	assert.True(t, msg.StartedAt.Equal(testutil.CaptureStart))
	assert.Equal(t, "2.1.0", msg.Device.AppVersion)

	// Second scan doesn't queue it again.
	assert.Equal(t, 0, queue.RunOnce())
	assert.Equal(t, 1, len(recorder.Requests()))
}

func TestEvidenceQueueSkipsWhenManifestExists(t *testing.T) {
	evidenceDir := t.TempDir()
	recorder := testutil.NewRequestRecorder(testutil.HttpStringResponder(nil, "OK"))
	nsqd := httptest.NewServer(recorder)
	defer nsqd.Close()

	artifact := filepath.Join(evidenceDir, "clip.mp4")
	require.Nil(t, os.WriteFile(artifact, []byte("video"), 0644))
	require.Nil(t, os.WriteFile(util.ManifestPathFor(artifact), []byte("{}"), 0644))
	writeSidecar(t, artifact, "clip-id",
		constants.ActionRecordingStart, constants.ActionRecordingComplete)

	_context := &common.Context{
		Config:    &common.Config{EvidenceDir: evidenceDir},
		Logger:    logger.DiscardLogger("queue_test"),
		NSQClient: network.NewNSQClient(nsqd.URL),
	}
	assert.Equal(t, 0, workers.NewEvidenceQueue(_context).RunOnce())
	assert.Empty(t, recorder.Requests())
}
