package profile

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Loader resolves a patient's background document for prompt context.
type Loader interface {
	PatientInfo(patientID string) (string, error)
}

// DirLoader reads profiles from <root>/<patient-id>/patient_info.md.
type DirLoader struct {
	Root string
}

func NewDirLoader(root string) *DirLoader {
	return &DirLoader{Root: root}
}

// PatientInfo returns the profile document, or "" when none exists for the
// patient. Other read failures are errors.
func (l *DirLoader) PatientInfo(patientID string) (string, error) {
	if l.Root == "" || patientID == "" {
		return "", nil
	}
	// Guard against path traversal in caller-supplied ids.
	if patientID != filepath.Base(patientID) || strings.ContainsAny(patientID, `/\`) {
		return "", fmt.Errorf("invalid patient id %q", patientID)
	}
	data, err := os.ReadFile(filepath.Join(l.Root, patientID, "patient_info.md"))
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read profile: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// Static returns a fixed document for every patient, for tests and replay.
type Static string

func (s Static) PatientInfo(string) (string, error) {
	return string(s), nil
}
