package oracle

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultRegistryCoversAllNames(t *testing.T) {
	r := DefaultRegistry("test-model")
	for _, name := range AllNames() {
		spec, ok := r[name]
		if !ok {
			t.Errorf("oracle %s missing from default registry", name)
			continue
		}
		if spec.Model != "test-model" || spec.Instruction == "" {
			t.Errorf("oracle %s has incomplete spec: %+v", name, spec)
		}
	}
	if len(r) != len(AllNames()) {
		t.Errorf("registry has %d entries, want %d", len(r), len(AllNames()))
	}
}

func TestLoadInstructionsOverridesFromFiles(t *testing.T) {
	dir := t.TempDir()
	custom := "Custom supervisor instruction."
	path := filepath.Join(dir, string(CompletionSupervisor)+".md")
	if err := os.WriteFile(path, []byte(custom), 0o644); err != nil {
		t.Fatal(err)
	}

	r := DefaultRegistry("m")
	if err := r.LoadInstructions(dir); err != nil {
		t.Fatalf("LoadInstructions: %v", err)
	}

	if got := r[CompletionSupervisor].Instruction; got != custom {
		t.Errorf("instruction not overridden: %q", got)
	}
	// A name with no file keeps its default.
	if r[Consolidator].Instruction == "" || r[Consolidator].Instruction == custom {
		t.Errorf("default instruction disturbed: %q", r[Consolidator].Instruction)
	}
}

func TestSetModelOverride(t *testing.T) {
	r := DefaultRegistry("base")
	r.SetModel(DiagnoserHepato, "bigger-model")
	r.SetModel(Name("ghost"), "ignored")

	if r[DiagnoserHepato].Model != "bigger-model" {
		t.Errorf("model override lost: %q", r[DiagnoserHepato].Model)
	}
	if r[DiagnoserGeneral].Model != "base" {
		t.Errorf("unrelated model changed: %q", r[DiagnoserGeneral].Model)
	}
}

func TestUnmarshalJSONRepairsTruncatedOutput(t *testing.T) {
	// Model output cut off mid-object: repairable.
	raw := `{"end": true, "state": "end"`
	var v CompletionVerdict
	if err := unmarshalJSON([]byte(raw), &v); err != nil {
		t.Fatalf("unmarshalJSON: %v", err)
	}
	if !v.End || v.State != "end" {
		t.Errorf("repaired decode wrong: %+v", v)
	}
}

func TestUnmarshalJSONTypeMismatchStillFails(t *testing.T) {
	var v CompletionVerdict
	if err := unmarshalJSON([]byte(`{"end": "yes"}`), &v); err == nil {
		t.Fatal("type mismatch should not be repaired away")
	}
}
