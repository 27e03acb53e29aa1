package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/packages/param"

	"github.com/medforce/intake-orchestrator/internal/pool"
)

var _ Oracles = (*Client)(nil)

// #region client

// Client serves every registered oracle over a chat-completions API with
// structured (json_schema) output. One client, one registry; the registry
// entry for each name decides model and instruction.
type Client struct {
	oai      openai.Client
	registry Registry
	timeout  time.Duration
}

// NewClient creates an oracle client. timeout bounds each individual call.
func NewClient(oai openai.Client, registry Registry, timeout time.Duration) *Client {
	return &Client{oai: oai, registry: registry, timeout: timeout}
}

// #endregion

// #region invoke

// section is one labeled block of the user prompt.
type section struct {
	label string
	value any
}

func (c *Client) invoke(ctx context.Context, name Name, schema map[string]any, sections []section, out any) error {
	spec, ok := c.registry[name]
	if !ok {
		return fmt.Errorf("oracle %s not registered", name)
	}

	var b strings.Builder
	for _, s := range sections {
		b.WriteString(s.label)
		b.WriteString(":\n")
		switch v := s.value.(type) {
		case string:
			b.WriteString(v)
		default:
			data, err := json.Marshal(v)
			if err != nil {
				return fmt.Errorf("%s: marshal %s: %w", name, s.label, err)
			}
			b.Write(data)
		}
		b.WriteString("\n\n")
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	// A nil schema means the oracle defines its own object shape; strict
	// schema mode requires a fixed property set, so those calls fall back
	// to plain JSON-object output.
	format := openai.ChatCompletionNewParamsResponseFormatUnion{
		OfJSONObject: &openai.ResponseFormatJSONObjectParam{},
	}
	if schema != nil {
		format = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
				JSONSchema: openai.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:   string(name),
					Schema: schema,
					Strict: param.NewOpt(true),
				},
			},
		}
	}

	resp, err := c.oai.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(spec.Model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(spec.Instruction),
			openai.UserMessage(b.String()),
		},
		ResponseFormat: format,
		Temperature:    param.NewOpt(0.1),
	})
	if err != nil {
		return fmt.Errorf("%s call: %w", name, err)
	}
	if len(resp.Choices) == 0 {
		return fmt.Errorf("%s: no choices", name)
	}
	choice := resp.Choices[0]
	if choice.Message.Refusal != "" {
		return fmt.Errorf("%s: blocked: %s", name, choice.Message.Refusal)
	}
	if choice.Message.Content == "" {
		return fmt.Errorf("%s: empty content", name)
	}
	if err := unmarshalJSON([]byte(choice.Message.Content), out); err != nil {
		return fmt.Errorf("%s: decode response: %w", name, err)
	}
	return nil
}

// #endregion

// #region diagnosis

// Diagnose runs one diagnoser variant over the transcript and patient context.
func (c *Client) Diagnose(ctx context.Context, name Name, transcriptText, patientInfo string) ([]DiagnosisCandidate, error) {
	var out struct {
		DiagnosisList []DiagnosisCandidate `json:"diagnosis_list"`
	}
	err := c.invoke(ctx, name, diagnoseSchema(), []section{
		{"Patient Info", patientInfo},
		{"Transcript", transcriptText},
	}, &out)
	if err != nil {
		return nil, err
	}
	return out.DiagnosisList, nil
}

// Consolidate merges candidates into the master pool, returning the full
// replacement pool with confirmed/unconfirmed indicators.
func (c *Client) Consolidate(ctx context.Context, existing []pool.BasicDiagnosis, candidates []DiagnosisCandidate) ([]pool.DiagnosisRecord, error) {
	var out struct {
		DiagnosisList []pool.DiagnosisRecord `json:"diagnosis_list"`
	}
	err := c.invoke(ctx, Consolidator, consolidateSchema(), []section{
		{"Diagnosis Pool", existing},
		{"New Diagnosis List", candidates},
	}, &out)
	if err != nil {
		return nil, err
	}
	return out.DiagnosisList, nil
}

// #endregion

// #region questions

// MergeQuestions returns the authoritative ranked question list.
func (c *Client) MergeQuestions(ctx context.Context, transcriptText string, diagnoses []pool.BasicDiagnosis, questions []pool.RankedQuestion) ([]pool.RankedQuestion, error) {
	var out struct {
		Questions []pool.RankedQuestion `json:"questions"`
	}
	err := c.invoke(ctx, QuestionMerger, mergeQuestionsSchema(), []section{
		{"Diagnosis Pool", diagnoses},
		{"Question Pool", questions},
		{"Transcript", transcriptText},
	}, &out)
	if err != nil {
		return nil, err
	}
	return out.Questions, nil
}

// CheckAnswers reports which pool questions the transcript has answered.
func (c *Client) CheckAnswers(ctx context.Context, transcriptText string, questions []pool.RankedQuestion) ([]AnsweredQuestion, error) {
	var out struct {
		Answers []AnsweredQuestion `json:"answers"`
	}
	err := c.invoke(ctx, AnswerChecker, answerCheckSchema(), []section{
		{"Question Pool", questions},
		{"Transcript", transcriptText},
	}, &out)
	if err != nil {
		return nil, err
	}
	return out.Answers, nil
}

// EnrichQuestions produces per-question metadata.
func (c *Client) EnrichQuestions(ctx context.Context, questions []pool.RankedQuestion) ([]pool.Enrichment, error) {
	var out struct {
		Questions []pool.Enrichment `json:"questions"`
	}
	err := c.invoke(ctx, QuestionEnricher, enrichSchema(), []section{
		{"Question List", questions},
	}, &out)
	if err != nil {
		return nil, err
	}
	return out.Questions, nil
}

// #endregion

// #region supervision

// CheckCompletion asks the supervisor whether the interview is done.
func (c *Client) CheckCompletion(ctx context.Context, transcriptText string, diagnoses []pool.BasicDiagnosis) (CompletionVerdict, error) {
	var out CompletionVerdict
	err := c.invoke(ctx, CompletionSupervisor, completionSchema(), []section{
		{"Hypothesis Diagnosis Data", diagnoses},
		{"Ongoing Interview Transcript", transcriptText},
	}, &out)
	if err != nil {
		return CompletionVerdict{}, err
	}
	return out, nil
}

// StructureTranscript attributes raw text to speaker turns.
func (c *Client) StructureTranscript(ctx context.Context, prior []StructuredLine, newText string) ([]StructuredLine, error) {
	var out struct {
		Transcript []StructuredLine `json:"transcript"`
	}
	err := c.invoke(ctx, TranscriptStructurer, structureSchema(), []section{
		{"Prior Structured Transcript", prior},
		{"New Raw Text", newText},
	}, &out)
	if err != nil {
		return nil, err
	}
	return out.Transcript, nil
}

// Analyze produces the consultation scorecard.
func (c *Client) Analyze(ctx context.Context, structured []StructuredLine) (Scorecard, error) {
	var out Scorecard
	err := c.invoke(ctx, Analytics, nil, []section{
		{"Structured Transcript", structured},
	}, &out)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GenerateEducation suggests advisory points not yet offered.
func (c *Client) GenerateEducation(ctx context.Context, structured []StructuredLine, offered []pool.EducationPoint) ([]pool.EducationPoint, error) {
	var out struct {
		Points []pool.EducationPoint `json:"points"`
	}
	err := c.invoke(ctx, EducationGenerator, educationSchema(), []section{
		{"Structured Transcript", structured},
		{"Already Offered Points", offered},
	}, &out)
	if err != nil {
		return nil, err
	}
	return out.Points, nil
}

// #endregion

// #region finalization

// GenerateChecklist produces the clinical audit checklist.
func (c *Client) GenerateChecklist(ctx context.Context, state FinalState) (Artifact, error) {
	var out Artifact
	err := c.invoke(ctx, ChecklistGenerator, nil, []section{
		{"Session State", state},
	}, &out)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GenerateReport produces the comprehensive consultation report.
func (c *Client) GenerateReport(ctx context.Context, state FinalState) (Artifact, error) {
	var out Artifact
	err := c.invoke(ctx, ReportGenerator, nil, []section{
		{"Session State", state},
	}, &out)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// #endregion
