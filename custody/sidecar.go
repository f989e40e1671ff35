package custody

import (
	"encoding/json"
	"path/filepath"
	"time"

	"github.com/APTrust/evidence-services/constants"
	"github.com/APTrust/evidence-services/models/evidence"
)

// Fields are in alphabetical order so encoding/json emits sorted keys.
type sidecarEvent struct {
	Action    string `json:"action"`
	Details   string `json:"details"`
	Timestamp string `json:"timestamp"`
	User      string `json:"user"`
}

type sidecarLog struct {
	ArtifactID  string         `json:"artifact_id"`
	Events      []sidecarEvent `json:"events"`
	FileName    string         `json:"file_name"`
	FileURL     string         `json:"file_url"`
	TotalEvents int            `json:"total_events"`
}

// MarshalLog renders a custody log in sidecar format.
func MarshalLog(artifactID, artifactPath string, events []evidence.CustodyEvent) ([]byte, error) {
	log := sidecarLog{
		ArtifactID:  artifactID,
		Events:      make([]sidecarEvent, len(events)),
		FileName:    filepath.Base(artifactPath),
		FileURL:     artifactPath,
		TotalEvents: len(events),
	}
	for i, event := range events {
		user := event.Actor
		if user == "" {
			user = constants.UnknownUser
		}
		log.Events[i] = sidecarEvent{
			Action:    event.Action,
			Details:   event.Details,
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			User:      user,
		}
	}
	return json.MarshalIndent(log, "", "  ")
}

// UnmarshalLog parses a custody sidecar. Entries with a missing
// action or an unreadable timestamp are skipped, and their count is
// returned as skipped.
func UnmarshalLog(data []byte) (artifactID string, events []evidence.CustodyEvent, skipped int, err error) {
	var raw struct {
		ArtifactID string            `json:"artifact_id"`
		Events     []json.RawMessage `json:"events"`
	}
	if err = json.Unmarshal(data, &raw); err != nil {
		return "", nil, 0, err
	}
	events = make([]evidence.CustodyEvent, 0, len(raw.Events))
	for _, item := range raw.Events {
		var se sidecarEvent
		if json.Unmarshal(item, &se) != nil || se.Action == "" {
			skipped++
			continue
		}
		ts, parseErr := time.Parse(time.RFC3339, se.Timestamp)
		if parseErr != nil {
			skipped++
			continue
		}
		events = append(events, evidence.NewCustodyEvent(ts, se.Action, se.Details, se.User))
	}
	return raw.ArtifactID, events, skipped, nil
}
