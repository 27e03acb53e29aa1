package oracle

import (
	"context"

	"github.com/medforce/intake-orchestrator/internal/pool"
)

// #region responses

// DiagnosisCandidate is one proposed diagnosis from a diagnoser oracle.
// Indicators are plain strings here; the consolidator is what turns them
// into confirmed/unconfirmed pairs.
type DiagnosisCandidate struct {
	DID              string   `json:"did"`
	Diagnosis        string   `json:"diagnosis"`
	IndicatorsPoint  []string `json:"indicators_point"`
	Reasoning        string   `json:"reasoning"`
	FollowupQuestion string   `json:"followup_question"`
}

// AnsweredQuestion links a pool qid to an answer found in the transcript.
type AnsweredQuestion struct {
	QID    string `json:"qid"`
	Answer string `json:"answer"`
}

// CompletionVerdict is the supervisor oracle's judgment.
type CompletionVerdict struct {
	End   bool   `json:"end"`
	State string `json:"state"` // "start" | "mid" | "end"
}

// HighlightSpan marks a clinically notable span inside a structured line.
type HighlightSpan struct {
	Level string `json:"level"` // "danger" | "warning"
	Text  string `json:"text"`
}

// StructuredLine is one turn of the structured transcript view.
type StructuredLine struct {
	Role       string          `json:"role"`
	Message    string          `json:"message"`
	Highlights []HighlightSpan `json:"highlights"`
}

// Scorecard is the analytics oracle's consultation scorecard. Shape is
// oracle-defined; the core only stores and forwards it.
type Scorecard map[string]any

// Artifact is a checklist or report object produced at finalization.
type Artifact map[string]any

// ErrorArtifact is the documented fallback for a failed finalization oracle.
func ErrorArtifact(err error) Artifact {
	return Artifact{"error": err.Error()}
}

// #endregion

// #region final-state

// FinalState is the full accumulated session state handed to the
// checklist and report generators.
type FinalState struct {
	Transcript []StructuredLine       `json:"transcript"`
	Diagnoses  []pool.DiagnosisRecord `json:"diagnosis_list"`
	Questions  []pool.QuestionRecord  `json:"question_list"`
	Education  []pool.EducationPoint  `json:"education_list"`
	Analytics  Scorecard              `json:"analytics"`
}

// #endregion

// #region interface

// Oracles is the reasoning-service boundary consumed by the engine.
// Every method is a pure request→response call that may fail or time out;
// the caller resolves failures to the documented fallback for that call.
type Oracles interface {
	Diagnose(ctx context.Context, name Name, transcriptText, patientInfo string) ([]DiagnosisCandidate, error)
	Consolidate(ctx context.Context, existing []pool.BasicDiagnosis, candidates []DiagnosisCandidate) ([]pool.DiagnosisRecord, error)
	MergeQuestions(ctx context.Context, transcriptText string, diagnoses []pool.BasicDiagnosis, questions []pool.RankedQuestion) ([]pool.RankedQuestion, error)
	CheckAnswers(ctx context.Context, transcriptText string, questions []pool.RankedQuestion) ([]AnsweredQuestion, error)
	CheckCompletion(ctx context.Context, transcriptText string, diagnoses []pool.BasicDiagnosis) (CompletionVerdict, error)
	StructureTranscript(ctx context.Context, prior []StructuredLine, newText string) ([]StructuredLine, error)
	EnrichQuestions(ctx context.Context, questions []pool.RankedQuestion) ([]pool.Enrichment, error)
	Analyze(ctx context.Context, structured []StructuredLine) (Scorecard, error)
	GenerateEducation(ctx context.Context, structured []StructuredLine, offered []pool.EducationPoint) ([]pool.EducationPoint, error)
	GenerateChecklist(ctx context.Context, state FinalState) (Artifact, error)
	GenerateReport(ctx context.Context, state FinalState) (Artifact, error)
}

// #endregion
