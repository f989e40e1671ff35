package evidence

import (
	"encoding/json"
	"time"
)

// DeviceInfo describes the machine and application that captured
// the artifact.
type DeviceInfo struct {
	AppVersion       string `json:"app_version"`
	Model            string `json:"model"`
	OSVersion        string `json:"os_version"`
	ScreenResolution string `json:"screen_resolution"`
}

// EvidenceRecord is the finished product of evidence generation for
// one capture. Build it with NewEvidenceRecord and treat it as read
// only from then on.
type EvidenceRecord struct {
	ArtifactID       string            `json:"artifact_id"`
	CreatedAt        time.Time         `json:"created_at"`
	CustodyLog       []CustodyEvent    `json:"custody_log"`
	Device           DeviceInfo        `json:"device"`
	Digests          DigestPair        `json:"digests"`
	DurationSeconds  float64           `json:"duration_seconds"`
	FileFormat       string            `json:"file_format,omitempty"`
	FileName         string            `json:"file_name"`
	FilePath         string            `json:"file_path"`
	FileSize         int64             `json:"file_size"`
	IsOriginalFile   bool              `json:"is_original_file"`
	ManifestPath     string            `json:"manifest_path"`
	Metadata         map[string]string `json:"metadata,omitempty"`
	OriginalFileHash string            `json:"original_file_hash"`
	ProofOfExistence string            `json:"proof_of_existence"`
	Timestamp        TimestampProof    `json:"timestamp"`
}

// NewEvidenceRecord returns a copy of params with its own custody
// log, metadata map and TSA response, so nothing the caller holds
// can change the record afterward.
func NewEvidenceRecord(params EvidenceRecord) *EvidenceRecord {
	record := params
	record.CustodyLog = CopyEvents(params.CustodyLog)
	if params.Metadata != nil {
		record.Metadata = make(map[string]string, len(params.Metadata))
		for key, value := range params.Metadata {
			record.Metadata[key] = value
		}
	}
	if params.Timestamp.TSAResponse != nil {
		record.Timestamp.TSAResponse = append([]byte(nil), params.Timestamp.TSAResponse...)
	}
	if record.OriginalFileHash == "" {
		record.OriginalFileHash = params.Digests.Sha256
	}
	return &record
}

// Events returns a copy of the custody log snapshot.
func (r *EvidenceRecord) Events() []CustodyEvent {
	return CopyEvents(r.CustodyLog)
}

func EvidenceRecordFromJSON(jsonData string) (*EvidenceRecord, error) {
	record := &EvidenceRecord{}
	err := json.Unmarshal([]byte(jsonData), record)
	if err != nil {
		return nil, err
	}
	return record, nil
}

func (r *EvidenceRecord) ToJSON() (string, error) {
	bytes, err := json.Marshal(r)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}
