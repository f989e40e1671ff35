package forensic

import (
	"fmt"
	"time"

	"github.com/APTrust/evidence-services/constants"
	"github.com/APTrust/evidence-services/models/common"
	"github.com/APTrust/evidence-services/models/evidence"
	"github.com/APTrust/evidence-services/util"
	"github.com/google/uuid"
)

// CaptureLedger is the part of custody.Ledger that capture sessions
// need on top of CustodyLedger.
type CaptureLedger interface {
	CustodyLedger
	Track(artifactID, artifactPath string) error
}

// StartCapture assigns a new artifact id to the recording at
// artifactPath, logs RECORDING_START and writes the custody sidecar.
// The recording itself does not have to exist yet.
func StartCapture(ledger CaptureLedger, artifactPath, details string) (string, error) {
	if artifactPath == "" {
		return "", common.NewError(common.ErrMisuse, "Capture needs an artifact path", nil, true)
	}
	artifactID := uuid.NewString()
	if err := ledger.Track(artifactID, artifactPath); err != nil {
		return "", err
	}
	if details == "" {
		details = "Screen capture started"
	}
	if err := ledger.Append(artifactID, constants.ActionRecordingStart, details); err != nil {
		return "", err
	}
	if _, err := ledger.ExportLog(artifactID); err != nil {
		return "", err
	}
	return artifactID, nil
}

// StopCapture logs RECORDING_COMPLETE for a session started by
// StartCapture and returns the message that hands the recording to
// the evidence worker. Duration runs from the RECORDING_START event
// to the RECORDING_COMPLETE event.
func StopCapture(ledger CaptureLedger, artifactID, artifactPath string, device evidence.DeviceInfo, metadata map[string]string) (*evidence.CaptureMessage, error) {
	startedAt, found := firstAction(ledger.Events(artifactID), constants.ActionRecordingStart)
	if !found {
		return nil, common.NewError(common.ErrMisuse,
			fmt.Sprintf("Cannot stop capture %s: it was never started", artifactID), nil, true)
	}
	if !util.FileExists(artifactPath) {
		return nil, common.IOError(fmt.Sprintf("Recording %s does not exist", artifactPath), nil)
	}
	if err := ledger.Append(artifactID, constants.ActionRecordingComplete, "Screen capture stopped"); err != nil {
		return nil, err
	}
	if _, err := ledger.ExportLog(artifactID); err != nil {
		return nil, err
	}
	stoppedAt, _ := firstAction(ledger.Events(artifactID), constants.ActionRecordingComplete)
	msg := &evidence.CaptureMessage{
		ArtifactID:      artifactID,
		Device:          device,
		DurationSeconds: stoppedAt.Sub(startedAt).Seconds(),
		Metadata:        metadata,
		Path:            artifactPath,
		StartedAt:       startedAt,
	}
	return msg, msg.Validate()
}

func firstAction(events []evidence.CustodyEvent, action string) (time.Time, bool) {
	for _, event := range events {
		if event.Action == action {
			return event.Timestamp, true
		}
	}
	return time.Time{}, false
}
