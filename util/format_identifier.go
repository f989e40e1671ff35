package util

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/richardlehane/siegfried"
)

// IdRecord describes siegfried's assessment of a file's format.
type IdRecord struct {
	Basis     string
	Format    string
	MimeType  string
	Puid      string
	Succeeded bool
	Warning   string
}

// FormatIdentifier identifies file formats with a siegfried
// signature file (usually default.sig). Screen recordings should come
// back as MPEG-4 (fmt/199) or QuickTime (x-fmt/384), and the result
// goes into the forensic manifest so a reviewer can see what kind of
// file the digests describe.
type FormatIdentifier struct {
	sf *siegfried.Siegfried
}

// NewFormatIdentifier loads the siegfried signature file at
// signaturePath.
func NewFormatIdentifier(signaturePath string) (*FormatIdentifier, error) {
	if signaturePath == "" {
		return nil, fmt.Errorf("Siegfried signature path cannot be empty")
	}
	sf, err := siegfried.Load(signaturePath)
	if err != nil {
		return nil, fmt.Errorf("Cannot load siegfried signature file %s: %v", signaturePath, err)
	}
	return &FormatIdentifier{sf: sf}, nil
}

// Identify returns an IdRecord for the file at filePath. If siegfried
// read the file but could not match it, IdRecord.Succeeded is false.
// If the file could not be read at all, this returns an error.
func (f *FormatIdentifier) Identify(filePath string) (*IdRecord, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	ids, err := f.sf.Identify(file, filepath.Base(filePath), "")
	if err != nil {
		return nil, fmt.Errorf("Siegfried could not identify %s: %v", filePath, err)
	}
	if len(ids) == 0 {
		return &IdRecord{Succeeded: false}, nil
	}
	record := ParseLabels(f.sf.Label(ids[0]))
	record.Succeeded = ids[0].Known()
	return record, nil
}

// ParseLabels converts siegfried's label/value pairs into an IdRecord.
func ParseLabels(labels [][2]string) *IdRecord {
	record := &IdRecord{}
	for _, pair := range labels {
		switch pair[0] {
		case "id":
			record.Puid = pair[1]
		case "format":
			record.Format = pair[1]
		case "mime":
			record.MimeType = pair[1]
		case "basis":
			record.Basis = pair[1]
		case "warning":
			record.Warning = pair[1]
		}
	}
	return record
}

// Description returns a one-line summary suitable for a custody event.
func (r *IdRecord) Description() string {
	if !r.Succeeded {
		return "Format not identified"
	}
	return fmt.Sprintf("%s (%s, %s)", r.Format, r.Puid, r.MimeType)
}
