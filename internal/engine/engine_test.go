package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/medforce/intake-orchestrator/internal/oracle"
	"github.com/medforce/intake-orchestrator/internal/pool"
	"github.com/medforce/intake-orchestrator/internal/publish"
	"github.com/medforce/intake-orchestrator/internal/transcript"
)

// #region stub

// stubOracles answers every call from configurable funcs; unset funcs
// return empty results.
type stubOracles struct {
	diagnose    func(name oracle.Name) ([]oracle.DiagnosisCandidate, error)
	consolidate func(existing []pool.BasicDiagnosis, cands []oracle.DiagnosisCandidate) ([]pool.DiagnosisRecord, error)
	merge       func(questions []pool.RankedQuestion) ([]pool.RankedQuestion, error)
	answers     func() ([]oracle.AnsweredQuestion, error)
	completion  func() (oracle.CompletionVerdict, error)
	structure   func() ([]oracle.StructuredLine, error)

	checklistHits   atomic.Int32
	reportHits      atomic.Int32
	checklistCtxErr error
}

func (s *stubOracles) Diagnose(_ context.Context, name oracle.Name, _, _ string) ([]oracle.DiagnosisCandidate, error) {
	if s.diagnose != nil {
		return s.diagnose(name)
	}
	return nil, nil
}

func (s *stubOracles) Consolidate(_ context.Context, existing []pool.BasicDiagnosis, cands []oracle.DiagnosisCandidate) ([]pool.DiagnosisRecord, error) {
	if s.consolidate != nil {
		return s.consolidate(existing, cands)
	}
	var recs []pool.DiagnosisRecord
	for _, c := range cands {
		var ind []pool.IndicatorPoint
		for _, p := range c.IndicatorsPoint {
			ind = append(ind, pool.IndicatorPoint{Criterion: p, Confirmed: true})
		}
		recs = append(recs, pool.DiagnosisRecord{
			DID: c.DID, Diagnosis: c.Diagnosis, Indicators: ind,
			FollowupQuestion: c.FollowupQuestion,
		})
	}
	return recs, nil
}

func (s *stubOracles) MergeQuestions(_ context.Context, _ string, _ []pool.BasicDiagnosis, questions []pool.RankedQuestion) ([]pool.RankedQuestion, error) {
	if s.merge != nil {
		return s.merge(questions)
	}
	return questions, nil
}

func (s *stubOracles) CheckAnswers(_ context.Context, _ string, _ []pool.RankedQuestion) ([]oracle.AnsweredQuestion, error) {
	if s.answers != nil {
		return s.answers()
	}
	return nil, nil
}

func (s *stubOracles) CheckCompletion(_ context.Context, _ string, _ []pool.BasicDiagnosis) (oracle.CompletionVerdict, error) {
	if s.completion != nil {
		return s.completion()
	}
	return oracle.CompletionVerdict{State: "start"}, nil
}

func (s *stubOracles) StructureTranscript(_ context.Context, _ []oracle.StructuredLine, _ string) ([]oracle.StructuredLine, error) {
	if s.structure != nil {
		return s.structure()
	}
	return nil, nil
}

func (s *stubOracles) EnrichQuestions(_ context.Context, _ []pool.RankedQuestion) ([]pool.Enrichment, error) {
	return nil, nil
}

func (s *stubOracles) Analyze(_ context.Context, _ []oracle.StructuredLine) (oracle.Scorecard, error) {
	return nil, nil
}

func (s *stubOracles) GenerateEducation(_ context.Context, _ []oracle.StructuredLine, _ []pool.EducationPoint) ([]pool.EducationPoint, error) {
	return nil, nil
}

func (s *stubOracles) GenerateChecklist(ctx context.Context, _ oracle.FinalState) (oracle.Artifact, error) {
	s.checklistHits.Add(1)
	s.checklistCtxErr = ctx.Err()
	return oracle.Artifact{"ok": true}, nil
}

func (s *stubOracles) GenerateReport(_ context.Context, _ oracle.FinalState) (oracle.Artifact, error) {
	s.reportHits.Add(1)
	return oracle.Artifact{"ok": true}, nil
}

var _ oracle.Oracles = (*stubOracles)(nil)

// #endregion

// #region helpers

func newTestEngine(t *testing.T, stub *stubOracles, seed []string) *Engine {
	t.Helper()
	cfg := DefaultConfig()
	cfg.StatusPath = filepath.Join(t.TempDir(), "status_update.json")
	deps := Deps{
		Feed:    transcript.NewFeed(),
		Oracles: stub,
		Hub:     publish.NewHub(),
	}
	return New(cfg, deps, "TEST1", "patient info", seed)
}

// #endregion

// #region trigger-tests

func TestTriggerRequiresGrowthPastThreshold(t *testing.T) {
	e := newTestEngine(t, &stubOracles{}, nil)
	now := time.Now()
	e.lastCycleAt = now.Add(-time.Minute)

	e.deps.Feed.AppendOrUpdate(transcript.RolePatient, "short", true)
	if reason, ok := e.shouldTrigger(now); !ok || reason != "new-entry" {
		t.Errorf("sealed entry should trigger: %q, %v", reason, ok)
	}

	// Absorb the entry, then grow past the threshold.
	e.lastChars = e.deps.Feed.SealedChars()
	e.lastSealed = e.deps.Feed.SealedCount()
	if _, ok := e.shouldTrigger(now); ok {
		t.Error("no growth should not trigger")
	}

	e.deps.Feed.AppendOrUpdate(transcript.RolePatient, strings.Repeat("x", 25), true)
	if reason, ok := e.shouldTrigger(now); !ok || reason != "growth" {
		t.Errorf("25 chars of growth should trigger: %q, %v", reason, ok)
	}
}

func TestCooldownSuppressesTrigger(t *testing.T) {
	e := newTestEngine(t, &stubOracles{}, nil)
	e.deps.Feed.AppendOrUpdate(transcript.RolePatient, strings.Repeat("x", 100), true)

	e.lastCycleAt = time.Now()
	if _, ok := e.shouldTrigger(time.Now()); ok {
		t.Error("trigger inside cooldown")
	}
	if _, ok := e.shouldTrigger(time.Now().Add(6 * time.Second)); !ok {
		t.Error("trigger after cooldown should fire")
	}
}

// #endregion

// #region cycle-tests

func TestCyclePushesHighestRankedQuestion(t *testing.T) {
	stub := &stubOracles{}
	e := newTestEngine(t, stub, []string{"Any fever?", "Any chest pain?"})

	e.runCycle(context.Background(), "initial")

	if e.finished {
		t.Fatal("finished with questions remaining")
	}
	data, err := os.ReadFile(e.cfg.StatusPath)
	if err != nil {
		t.Fatalf("status record not written: %v", err)
	}
	if !strings.Contains(string(data), "Any fever?") {
		t.Errorf("status lacks top question: %s", data)
	}
	if e.pendingQID == "" {
		t.Error("pushed question not tracked for ask marking")
	}

	// Next cycle must mark it asked and move on.
	pushed := e.pendingQID
	e.runCycle(context.Background(), "growth")
	for _, q := range e.questions.Snapshot() {
		if q.QID == pushed && q.Status == pool.StatusPending {
			t.Error("pushed question still pending after next cycle")
		}
	}
}

func TestAnswersAdvanceQuestionStatus(t *testing.T) {
	stub := &stubOracles{}
	e := newTestEngine(t, stub, []string{"Any fever?"})
	e.runCycle(context.Background(), "initial")

	qid := e.questions.Snapshot()[0].QID
	stub.answers = func() ([]oracle.AnsweredQuestion, error) {
		return []oracle.AnsweredQuestion{{QID: qid, Answer: "No fever."}}, nil
	}

	e.runCycle(context.Background(), "growth")
	q := e.questions.Snapshot()[0]
	if q.Status != pool.StatusAnswered || q.Answer != "No fever." {
		t.Errorf("answer not applied: %+v", q)
	}
}

func TestConsolidationSeedsFollowUps(t *testing.T) {
	stub := &stubOracles{
		diagnose: func(name oracle.Name) ([]oracle.DiagnosisCandidate, error) {
			if name != oracle.DiagnoserHepato {
				return nil, nil
			}
			return []oracle.DiagnosisCandidate{{
				DID: "AAAAA", Diagnosis: "Acute hepatitis",
				IndicatorsPoint:  []string{"jaundice"},
				FollowupQuestion: "Any recent travel?",
			}}, nil
		},
	}
	e := newTestEngine(t, stub, []string{"Any fever?"})
	e.runCycle(context.Background(), "initial")

	if e.diagnoses.Len() != 1 {
		t.Fatalf("diagnosis pool has %d records", e.diagnoses.Len())
	}
	found := false
	for _, q := range e.questions.Snapshot() {
		if q.Content == "Any recent travel?" {
			found = true
		}
	}
	if !found {
		t.Error("follow-up question not added to pool")
	}
}

func TestForcedFinishWhenPoolExhausted(t *testing.T) {
	stub := &stubOracles{
		merge: func([]pool.RankedQuestion) ([]pool.RankedQuestion, error) { return nil, nil },
	}
	e := newTestEngine(t, stub, nil)

	e.runCycle(context.Background(), "initial")
	if !e.finished {
		t.Fatal("empty question pool must force finish")
	}
	if e.CurrentPhase() != PhaseEnd {
		t.Errorf("phase %s, want end", e.CurrentPhase())
	}

	data, err := os.ReadFile(e.cfg.StatusPath)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"is_finished": true`) {
		t.Errorf("status not marked finished: %s", data)
	}
}

func TestPhaseNeverRegresses(t *testing.T) {
	states := []string{"mid", "start", "garbage", "end"}
	i := 0
	stub := &stubOracles{
		completion: func() (oracle.CompletionVerdict, error) {
			s := states[i]
			if i < len(states)-1 {
				i++
			}
			return oracle.CompletionVerdict{State: s}, nil
		},
	}
	e := newTestEngine(t, stub, []string{"q1", "q2", "q3", "q4", "q5"})

	e.runCycle(context.Background(), "initial")
	if e.CurrentPhase() != PhaseMid {
		t.Fatalf("phase %s after mid verdict", e.CurrentPhase())
	}
	e.runCycle(context.Background(), "growth") // verdict says start
	if e.CurrentPhase() != PhaseMid {
		t.Errorf("phase regressed to %s", e.CurrentPhase())
	}
	e.runCycle(context.Background(), "growth") // garbage ignored
	if e.CurrentPhase() != PhaseMid {
		t.Errorf("junk verdict moved phase to %s", e.CurrentPhase())
	}
}

func TestOracleFailureDegradesNotAborts(t *testing.T) {
	stub := &stubOracles{
		diagnose: func(oracle.Name) ([]oracle.DiagnosisCandidate, error) {
			return nil, errors.New("upstream 500")
		},
		completion: func() (oracle.CompletionVerdict, error) {
			return oracle.CompletionVerdict{}, errors.New("timeout")
		},
	}
	e := newTestEngine(t, stub, []string{"Any fever?"})

	e.runCycle(context.Background(), "initial")

	if e.finished {
		t.Error("failed supervisor must not finish the interview")
	}
	if e.CurrentPhase() != PhaseMid {
		t.Errorf("failed supervisor should fall back to mid, got %s", e.CurrentPhase())
	}
	if e.diagnoses.Len() != 0 {
		t.Error("failed diagnosers should leave the pool untouched")
	}
	if _, err := os.ReadFile(e.cfg.StatusPath); err != nil {
		t.Errorf("cycle should still publish status: %v", err)
	}
}

func TestSupervisorFallbackNeverRegressesPhase(t *testing.T) {
	failing := false
	stub := &stubOracles{
		completion: func() (oracle.CompletionVerdict, error) {
			if failing {
				return oracle.CompletionVerdict{}, errors.New("timeout")
			}
			return oracle.CompletionVerdict{State: "end"}, nil
		},
	}
	e := newTestEngine(t, stub, []string{"q1", "q2", "q3"})

	e.runCycle(context.Background(), "initial")
	if e.CurrentPhase() != PhaseEnd {
		t.Fatalf("phase %s after end verdict", e.CurrentPhase())
	}

	// A later supervisor failure falls back to mid but must not pull the
	// phase backwards.
	failing = true
	e.runCycle(context.Background(), "growth")
	if e.CurrentPhase() != PhaseEnd {
		t.Errorf("fallback regressed phase to %s", e.CurrentPhase())
	}
}

func TestDangerHighlightLevelPreserved(t *testing.T) {
	stub := &stubOracles{
		structure: func() ([]oracle.StructuredLine, error) {
			return []oracle.StructuredLine{{
				Role:    "PATIENT",
				Message: "I have been vomiting blood since this morning.",
				Highlights: []oracle.HighlightSpan{
					{Level: "danger", Text: "vomiting blood"},
					{Text: "since this morning"}, // level omitted
				},
			}}, nil
		},
	}
	e := newTestEngine(t, stub, []string{"Any fever?"})
	e.deps.Feed.AppendOrUpdate(transcript.RolePatient, "I have been vomiting blood since this morning.", true)

	e.runCycle(context.Background(), "initial")

	entries := e.deps.Feed.Snapshot()
	if len(entries) != 1 || len(entries[0].Highlights) != 2 {
		t.Fatalf("highlights not attached: %+v", entries)
	}
	if got := entries[0].Highlights[0]; got.Level != "danger" || got.Text != "vomiting blood" {
		t.Errorf("red-flag span lost its level: %+v", got)
	}
	if got := entries[0].Highlights[1]; got.Level != "warning" {
		t.Errorf("missing level should default to warning: %+v", got)
	}
}

// #endregion

// #region finalize-tests

func TestFinalizeRunsExactlyOnce(t *testing.T) {
	stub := &stubOracles{}
	e := newTestEngine(t, stub, nil)
	e.finished = true

	e.finalize(context.Background())
	e.finalize(context.Background())

	if got := stub.checklistHits.Load(); got != 1 {
		t.Errorf("checklist generated %d times", got)
	}
	if got := stub.reportHits.Load(); got != 1 {
		t.Errorf("report generated %d times", got)
	}
}

func TestFinalizeDetachedFromCanceledContext(t *testing.T) {
	stub := &stubOracles{}
	e := newTestEngine(t, stub, nil)
	e.finished = true

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	e.finalize(ctx)

	if stub.checklistHits.Load() != 1 {
		t.Fatal("finalize did not run")
	}
	if stub.checklistCtxErr != nil {
		t.Errorf("generators saw a dead context: %v", stub.checklistCtxErr)
	}
}

func TestRunFinishesAndFinalizes(t *testing.T) {
	stub := &stubOracles{
		merge: func([]pool.RankedQuestion) ([]pool.RankedQuestion, error) { return nil, nil },
	}
	e := newTestEngine(t, stub, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stub.checklistHits.Load() != 1 {
		t.Error("Run did not finalize")
	}
}

// #endregion
