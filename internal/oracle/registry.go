package oracle

import (
	"fmt"
	"os"
	"path/filepath"
)

// #region names

// Name identifies a registered oracle. New oracle types are added by
// registering a spec, not by extending the orchestration loop.
type Name string

const (
	DiagnoserHepato      Name = "diagnoser-hepato"
	DiagnoserGeneral     Name = "diagnoser-general"
	Consolidator         Name = "consolidator"
	QuestionMerger       Name = "question-merger"
	AnswerChecker        Name = "answer-checker"
	CompletionSupervisor Name = "completion-supervisor"
	TranscriptStructurer Name = "transcript-structurer"
	QuestionEnricher     Name = "question-enricher"
	Analytics            Name = "analytics"
	EducationGenerator   Name = "education-generator"
	ChecklistGenerator   Name = "checklist-generator"
	ReportGenerator      Name = "report-generator"
)

// AllNames lists every registered oracle in a stable order.
func AllNames() []Name {
	return []Name{
		DiagnoserHepato, DiagnoserGeneral, Consolidator, QuestionMerger,
		AnswerChecker, CompletionSupervisor, TranscriptStructurer,
		QuestionEnricher, Analytics, EducationGenerator,
		ChecklistGenerator, ReportGenerator,
	}
}

// #endregion

// #region spec

// Spec is the per-oracle configuration: which model serves it and the
// system instruction it runs under. Instruction wording is an external
// concern; defaults here are the minimal stand-ins used when no prompt
// file is provided.
type Spec struct {
	Model       string
	Instruction string
}

// Registry maps oracle names to their specs.
type Registry map[Name]Spec

// #endregion

// #region defaults

var defaultInstructions = map[Name]string{
	DiagnoserHepato:      "You are a hepatology diagnostician. Propose diagnoses with supporting indicators.",
	DiagnoserGeneral:     "You are a general medicine diagnostician. Propose diagnoses with supporting indicators.",
	Consolidator:         "Merge new candidate diagnoses into the master pool by clinical equivalence. Reuse existing did values; mark each indicator confirmed or unconfirmed.",
	QuestionMerger:       "Rank the interview questions from most to least important for the current differential.",
	AnswerChecker:        "Identify which pool questions the transcript has answered, and extract the answers.",
	CompletionSupervisor: "Decide whether the medical interview is complete. Return end=true only when the differential is sufficiently explored.",
	TranscriptStructurer: "Attribute the raw transcript text to NURSE and PATIENT turns, preserving prior structure.",
	QuestionEnricher:     "For each question, produce a short headline, clinical domain, intent, and tags.",
	Analytics:            "Score the consultation: coverage, empathy, efficiency, red-flag handling.",
	EducationGenerator:   "Suggest patient education points relevant to the conversation that have not been offered yet.",
	ChecklistGenerator:   "Produce a clinical audit checklist for the completed session.",
	ReportGenerator:      "Produce a comprehensive consultation report for the completed session.",
}

// DefaultRegistry returns a registry serving every oracle with the given
// model and the built-in instructions.
func DefaultRegistry(model string) Registry {
	r := make(Registry, len(defaultInstructions))
	for name, inst := range defaultInstructions {
		r[name] = Spec{Model: model, Instruction: inst}
	}
	return r
}

// #endregion

// #region prompt-files

// LoadInstructions overrides registry instructions from <dir>/<name>.md
// files. Missing files keep their defaults; an unreadable file is an error.
func (r Registry) LoadInstructions(dir string) error {
	if dir == "" {
		return nil
	}
	for name, spec := range r {
		path := filepath.Join(dir, string(name)+".md")
		data, err := os.ReadFile(path)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return fmt.Errorf("read instruction %s: %w", path, err)
		}
		spec.Instruction = string(data)
		r[name] = spec
	}
	return nil
}

// SetModel overrides the model for one oracle. Unknown names are ignored.
func (r Registry) SetModel(name Name, model string) {
	if spec, ok := r[name]; ok && model != "" {
		spec.Model = model
		r[name] = spec
	}
}

// #endregion
