package profile

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDirLoaderReadsProfile(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "PT001")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	doc := "# Patient\n58M, hypertension, on lisinopril.\n"
	if err := os.WriteFile(filepath.Join(dir, "patient_info.md"), []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	l := NewDirLoader(root)
	got, err := l.PatientInfo("PT001")
	if err != nil {
		t.Fatalf("PatientInfo: %v", err)
	}
	if got != "# Patient\n58M, hypertension, on lisinopril." {
		t.Errorf("unexpected profile: %q", got)
	}
}

func TestDirLoaderMissingProfileIsEmpty(t *testing.T) {
	l := NewDirLoader(t.TempDir())
	got, err := l.PatientInfo("NOONE")
	if err != nil || got != "" {
		t.Errorf("got %q, %v; want empty, nil", got, err)
	}
}

func TestDirLoaderRejectsTraversal(t *testing.T) {
	l := NewDirLoader(t.TempDir())
	if _, err := l.PatientInfo("../etc"); err == nil {
		t.Fatal("traversal id accepted")
	}
}

func TestStaticLoader(t *testing.T) {
	got, err := Static("fixed").PatientInfo("anyone")
	if err != nil || got != "fixed" {
		t.Errorf("got %q, %v", got, err)
	}
}
