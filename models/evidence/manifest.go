package evidence

import (
	"encoding/json"
	"fmt"
	"time"
)

// ForensicManifest describes the contents of a manifest sidecar.
// Metadata holds every key other than the five required fields.
type ForensicManifest struct {
	CreatedAt time.Time
	FileSize  int64
	Filename  string
	Metadata  map[string]interface{}
	Sha256    string
	Sha512    string
}

// ToMap merges the required fields with Metadata. Metadata wins when
// a key appears in both.
func (m *ForensicManifest) ToMap() map[string]interface{} {
	data := map[string]interface{}{
		"created_at": m.CreatedAt.UTC().Format(time.RFC3339),
		"file_size":  m.FileSize,
		"filename":   m.Filename,
		"sha256":     m.Sha256,
		"sha512":     m.Sha512,
	}
	for key, value := range m.Metadata {
		data[key] = value
	}
	return data
}

// ToJSON returns the manifest as indented JSON with sorted keys.
func (m *ForensicManifest) ToJSON() ([]byte, error) {
	return json.MarshalIndent(m.ToMap(), "", "  ")
}

// ManifestFromJSON parses a manifest sidecar.
func ManifestFromJSON(data []byte) (*ForensicManifest, error) {
	raw := make(map[string]interface{})
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	m := &ForensicManifest{Metadata: make(map[string]interface{})}
	for key, value := range raw {
		var ok = true
		switch key {
		case "created_at":
			var s string
			if s, ok = value.(string); ok {
				ts, err := time.Parse(time.RFC3339, s)
				if err != nil {
					return nil, fmt.Errorf("manifest created_at: %v", err)
				}
				m.CreatedAt = ts
			}
		case "file_size":
			var size float64
			if size, ok = value.(float64); ok {
				m.FileSize = int64(size)
			}
		case "filename":
			m.Filename, ok = value.(string)
		case "sha256":
			m.Sha256, ok = value.(string)
		case "sha512":
			m.Sha512, ok = value.(string)
		default:
			m.Metadata[key] = value
		}
		if !ok {
			return nil, fmt.Errorf("manifest field %s has unexpected type %T", key, value)
		}
	}
	return m, nil
}
