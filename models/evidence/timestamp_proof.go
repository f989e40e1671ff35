package evidence

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// TimestampProof records where the verified time for an artifact
// came from. TSAURL and TSAResponse are empty when no timestamp
// authority answered.
type TimestampProof struct {
	DeviceTimestamp time.Time `json:"device_timestamp"`
	FileHash        string    `json:"file_hash"`
	NTPServer       string    `json:"ntp_server"`
	NTPTimestamp    time.Time `json:"ntp_timestamp"`
	TSAResponse     []byte    `json:"tsa_response,omitempty"`
	TSAURL          string    `json:"tsa_url,omitempty"`
}

// TimeDifferenceSeconds returns how far the device clock was behind
// the NTP clock. Negative values mean the device was ahead.
func (p TimestampProof) TimeDifferenceSeconds() float64 {
	return p.NTPTimestamp.Sub(p.DeviceTimestamp).Seconds()
}

// HasTSAToken returns true if a timestamp authority responded.
func (p TimestampProof) HasTSAToken() bool {
	return p.TSAURL != ""
}

// TSAResponseSha256 returns the hex SHA-256 of the timestamp
// authority's response, or an empty string if there is none.
func (p TimestampProof) TSAResponseSha256() string {
	if p.TSAResponse == nil {
		return ""
	}
	sum := sha256.Sum256(p.TSAResponse)
	return hex.EncodeToString(sum[:])
}

// Document returns the proof as a flat map, suitable for JSON
// export alongside the manifest.
func (p TimestampProof) Document() map[string]interface{} {
	doc := map[string]interface{}{
		"device_time":             p.DeviceTimestamp.UTC().Format(time.RFC3339),
		"file_hash":               p.FileHash,
		"ntp_server":              p.NTPServer,
		"ntp_time":                p.NTPTimestamp.UTC().Format(time.RFC3339),
		"time_difference_seconds": p.TimeDifferenceSeconds(),
	}
	if p.TSAURL != "" {
		doc["timestamp_authority"] = p.TSAURL
	}
	if p.TSAResponse != nil {
		doc["tsa_response_size"] = len(p.TSAResponse)
		doc["tsa_response_sha256"] = p.TSAResponseSha256()
	}
	return doc
}
