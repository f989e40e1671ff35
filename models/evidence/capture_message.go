package evidence

import (
	"encoding/json"
	"fmt"
	"time"
)

// CaptureMessage is what the capture pipeline puts into NSQ once a
// recording has stopped and its RECORDING_START and
// RECORDING_COMPLETE events are in the custody sidecar.
type CaptureMessage struct {
	ArtifactID      string            `json:"artifact_id"`
	Device          DeviceInfo        `json:"device"`
	DurationSeconds float64           `json:"duration_seconds"`
	Metadata        map[string]string `json:"metadata,omitempty"`
	Path            string            `json:"path"`
	StartedAt       time.Time         `json:"started_at"`
}

func CaptureMessageFromJSON(data []byte) (*CaptureMessage, error) {
	msg := &CaptureMessage{}
	if err := json.Unmarshal(data, msg); err != nil {
		return nil, err
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return msg, nil
}

func (m *CaptureMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// Validate checks that the message names an artifact we can find.
func (m *CaptureMessage) Validate() error {
	if m.ArtifactID == "" {
		return fmt.Errorf("capture message is missing artifact_id")
	}
	if m.Path == "" {
		return fmt.Errorf("capture message for %s is missing path", m.ArtifactID)
	}
	if m.StartedAt.IsZero() {
		return fmt.Errorf("capture message for %s is missing started_at", m.ArtifactID)
	}
	return nil
}

// Duration returns DurationSeconds as a time.Duration.
func (m *CaptureMessage) Duration() time.Duration {
	return time.Duration(m.DurationSeconds * float64(time.Second))
}
