package engine

// #region imports
import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/medforce/intake-orchestrator/internal/oracle"
	"github.com/medforce/intake-orchestrator/internal/pool"
	"github.com/medforce/intake-orchestrator/internal/publish"
	"github.com/medforce/intake-orchestrator/internal/session"
	"github.com/medforce/intake-orchestrator/internal/transcript"
)

// #endregion

// #region fan-out

// fanOutResult collects the parallel oracle outputs for one cycle. A nil
// field means that oracle failed and its fallback applies.
type fanOutResult struct {
	hepato     []oracle.DiagnosisCandidate
	general    []oracle.DiagnosisCandidate
	answers    []oracle.AnsweredQuestion
	verdict    oracle.CompletionVerdict
	verdictOK  bool
	structured []oracle.StructuredLine
	analytics  oracle.Scorecard
	education  []pool.EducationPoint

	failures []string
}

// fanOut launches the independent oracles concurrently and waits for all of
// them. Each goroutine writes only its own result slot; failure names are
// gathered afterwards from the error slots.
func (e *Engine) fanOut(ctx context.Context, fullText string) fanOutResult {
	var res fanOutResult
	errs := make([]error, 7)
	names := []oracle.Name{
		oracle.DiagnoserHepato, oracle.DiagnoserGeneral, oracle.AnswerChecker,
		oracle.CompletionSupervisor, oracle.TranscriptStructurer,
		oracle.Analytics, oracle.EducationGenerator,
	}

	questions := e.questions.Basic()
	diagnoses := e.diagnoses.Basic()
	prior := e.structured
	offered := e.education.Offered()

	var wg sync.WaitGroup
	wg.Add(7)
	go func() {
		defer wg.Done()
		res.hepato, errs[0] = e.deps.Oracles.Diagnose(ctx, oracle.DiagnoserHepato, fullText, e.patientInfo)
	}()
	go func() {
		defer wg.Done()
		res.general, errs[1] = e.deps.Oracles.Diagnose(ctx, oracle.DiagnoserGeneral, fullText, e.patientInfo)
	}()
	go func() {
		defer wg.Done()
		res.answers, errs[2] = e.deps.Oracles.CheckAnswers(ctx, fullText, questions)
	}()
	go func() {
		defer wg.Done()
		res.verdict, errs[3] = e.deps.Oracles.CheckCompletion(ctx, fullText, diagnoses)
		res.verdictOK = errs[3] == nil
	}()
	go func() {
		defer wg.Done()
		res.structured, errs[4] = e.deps.Oracles.StructureTranscript(ctx, prior, fullText)
	}()
	go func() {
		defer wg.Done()
		res.analytics, errs[5] = e.deps.Oracles.Analyze(ctx, prior)
	}()
	go func() {
		defer wg.Done()
		res.education, errs[6] = e.deps.Oracles.GenerateEducation(ctx, prior, offered)
	}()
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			log.Printf("[ENGINE] oracle %s failed: %v", names[i], err)
			res.failures = append(res.failures, string(names[i]))
		}
	}
	return res
}

// #endregion

// #region cycle

// runCycle executes one full analysis pass: parallel oracle fan-out, then
// the serialized merge of every result into the pools, then publication.
// Oracle failures degrade that slice of the cycle and never abort it.
func (e *Engine) runCycle(ctx context.Context, reason string) {
	e.cycleNum++
	fullText := e.deps.Feed.FullText()
	chars := e.deps.Feed.SealedChars()
	sealed := e.deps.Feed.SealedCount()
	log.Printf("[ENGINE] cycle %d (%s): %d sealed chars", e.cycleNum, reason, chars)

	// The question pushed last cycle has been put to the patient by now.
	if e.pendingQID != "" {
		e.questions.UpdateStatus(e.pendingQID, pool.StatusAsked)
		e.pendingQID = ""
	}

	res := e.fanOut(ctx, fullText)
	failures := res.failures

	// Structured view replaces wholesale; its highlights decorate the feed.
	if res.structured != nil {
		e.structured = res.structured
		e.attachHighlights(res.structured)
	}
	if res.analytics != nil {
		e.analytics = res.analytics
	}

	// Answers land before re-ranking so the merger sees current status.
	for _, a := range res.answers {
		if !e.questions.UpdateAnswer(a.QID, a.Answer) {
			log.Printf("[ENGINE] answer for unknown qid %s dropped", a.QID)
		}
	}

	// Consolidation replaces the diagnosis pool and seeds follow-ups.
	candidates := append(append([]oracle.DiagnosisCandidate(nil), res.hepato...), res.general...)
	if len(candidates) > 0 {
		recs, err := e.deps.Oracles.Consolidate(ctx, e.diagnoses.Basic(), candidates)
		if err != nil {
			log.Printf("[ENGINE] oracle %s failed: %v", oracle.Consolidator, err)
			failures = append(failures, string(oracle.Consolidator))
		} else {
			e.diagnoses.SetConsolidated(recs)
			var followups []string
			for _, r := range recs {
				if r.FollowupQuestion != "" {
					followups = append(followups, r.FollowupQuestion)
				}
			}
			if n := e.questions.AddFollowUps(followups); n > 0 {
				log.Printf("[ENGINE] %d follow-up questions added", n)
			}
		}
	}

	// Question re-rank, then enrichment of whatever the merge produced.
	merged, err := e.deps.Oracles.MergeQuestions(ctx, fullText, e.diagnoses.Basic(), e.questions.Basic())
	if err != nil {
		log.Printf("[ENGINE] oracle %s failed: %v", oracle.QuestionMerger, err)
		failures = append(failures, string(oracle.QuestionMerger))
	} else {
		e.questions.AddRanked(merged)
		if enr, err := e.deps.Oracles.EnrichQuestions(ctx, e.questions.Basic()); err != nil {
			log.Printf("[ENGINE] oracle %s failed: %v", oracle.QuestionEnricher, err)
			failures = append(failures, string(oracle.QuestionEnricher))
		} else {
			e.questions.ApplyEnrichment(enr)
		}
	}

	e.education.AddNewPoints(res.education)
	eduPoint := e.education.PickAndMarkOffered()

	// Completion: the phase only moves forward, and running out of unasked
	// questions finishes the interview regardless of the supervisor. A
	// failed supervisor falls back to {end:false, state:mid} so the phase
	// still leaves "start" while the oracle is down.
	verdict := res.verdict
	if !res.verdictOK {
		verdict = oracle.CompletionVerdict{End: false, State: string(PhaseMid)}
	}
	e.advancePhase(Phase(verdict.State))
	if verdict.End {
		e.finished = true
	}
	nextQ := e.questions.HighRank(1)
	if nextQ == nil && !e.finished {
		log.Printf("[ENGINE] question pool exhausted, forcing finish")
		e.finished = true
	}
	if e.finished {
		e.advancePhase(PhaseEnd)
	}

	ranked := e.diagnoses.Ranked()
	e.publishCycle(ranked, nextQ, eduPoint)
	e.archiveSealed()
	e.logCycle(reason, chars, failures, ranked)

	e.lastChars = chars
	e.lastSealed = sealed
	e.lastCycleAt = time.Now()
}

func (e *Engine) advancePhase(next Phase) {
	if _, ok := phaseOrder[next]; !ok {
		return
	}
	if phaseOrder[next] > phaseOrder[e.phase] {
		e.phase = next
	}
}

// attachHighlights copies the structurer's spans for the latest turn onto
// the feed so archived entries carry them.
func (e *Engine) attachHighlights(lines []oracle.StructuredLine) {
	if len(lines) == 0 {
		return
	}
	last := lines[len(lines)-1]
	if len(last.Highlights) == 0 {
		return
	}
	spans := make([]transcript.Highlight, 0, len(last.Highlights))
	for _, h := range last.Highlights {
		level := h.Level
		if level == "" {
			level = "warning"
		}
		spans = append(spans, transcript.Highlight{Level: level, Text: h.Text})
	}
	e.deps.Feed.AttachHighlights(spans)
}

// #endregion

// #region publish

func (e *Engine) publishCycle(ranked []pool.DiagnosisRecord, nextQ *pool.QuestionRecord, eduPoint *pool.EducationPoint) {
	hub := e.deps.Hub
	hub.Broadcast(publish.Message{Type: publish.TypeChat, Data: e.structured})
	hub.Broadcast(publish.Message{Type: publish.TypeDiagnosis, Data: ranked})
	hub.Broadcast(publish.Message{Type: publish.TypeQuestions, Data: e.questions.Snapshot()})
	if e.analytics != nil {
		hub.Broadcast(publish.Message{Type: publish.TypeAnalytics, Data: e.analytics})
	}
	if eduPoint != nil {
		hub.Broadcast(publish.Message{Type: publish.TypeEducation, Data: eduPoint})
	}

	status := publish.StatusRecord{IsFinished: e.finished}
	if nextQ != nil {
		status.Question = &nextQ.Content
		e.pendingQID = nextQ.QID
	}
	if eduPoint != nil {
		status.Education = &eduPoint.Content
	}
	hub.Broadcast(publish.Message{Type: publish.TypeStatus, Data: status})
	if err := publish.WriteStatus(e.cfg.StatusPath, status); err != nil {
		log.Printf("[ENGINE] status write failed: %v", err)
	}
}

// archiveSealed persists feed entries that sealed since the last cycle.
func (e *Engine) archiveSealed() {
	if e.deps.Store == nil {
		return
	}
	entries := e.deps.Feed.Snapshot()
	for ; e.archivedCount < len(entries); e.archivedCount++ {
		if err := e.deps.Store.SealEntry(e.sessionID, entries[e.archivedCount]); err != nil {
			log.Printf("[ENGINE] archive entry failed: %v", err)
			return
		}
	}
}

func (e *Engine) logCycle(reason string, chars int, failures []string, ranked []pool.DiagnosisRecord) {
	if e.deps.Store == nil {
		return
	}
	diagJSON, err := json.Marshal(ranked)
	if err != nil {
		diagJSON = nil
	}
	rec := session.CycleRecord{
		SessionID:      e.sessionID,
		CycleNum:       e.cycleNum,
		TriggerReason:  reason,
		SealedChars:    chars,
		OracleFailures: failures,
		DiagnosisJSON:  string(diagJSON),
		Phase:          string(e.phase),
		Finished:       e.finished,
	}
	if err := e.deps.Store.LogCycle(rec); err != nil {
		log.Printf("[ENGINE] cycle log failed: %v", err)
	}
}

// #endregion

// #region finalize

const finalizeTimeout = 2 * time.Minute

// finalize runs the one-shot wrap-up: checklist and report generation over
// the full session state. A failed generator yields an error artifact in
// its place; finalization itself never reruns. The generators get a fresh
// deadline detached from the loop context, so a shutdown-triggered
// finalize is not stillborn on an already-canceled context.
func (e *Engine) finalize(ctx context.Context) {
	e.finalizeOnce.Do(func() {
		log.Printf("[ENGINE] session %s finalizing", e.sessionID)

		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
		defer cancel()

		state := oracle.FinalState{
			Transcript: e.structured,
			Diagnoses:  e.diagnoses.Ranked(),
			Questions:  e.questions.Snapshot(),
			Education:  e.education.Snapshot(),
			Analytics:  e.analytics,
		}

		checklist, err := e.deps.Oracles.GenerateChecklist(ctx, state)
		if err != nil {
			log.Printf("[ENGINE] oracle %s failed: %v", oracle.ChecklistGenerator, err)
			checklist = oracle.ErrorArtifact(err)
		}
		report, err := e.deps.Oracles.GenerateReport(ctx, state)
		if err != nil {
			log.Printf("[ENGINE] oracle %s failed: %v", oracle.ReportGenerator, err)
			report = oracle.ErrorArtifact(err)
		}

		if e.deps.Store != nil {
			if err := e.deps.Store.SaveArtifact(e.sessionID, "checklist", checklist); err != nil {
				log.Printf("[ENGINE] save checklist: %v", err)
			}
			if err := e.deps.Store.SaveArtifact(e.sessionID, "report", report); err != nil {
				log.Printf("[ENGINE] save report: %v", err)
			}
			if err := e.deps.Store.FinishSession(e.sessionID); err != nil {
				log.Printf("[ENGINE] finish session: %v", err)
			}
		}

		e.deps.Hub.Broadcast(publish.Message{Type: publish.TypeChecklist, Data: checklist})
		e.deps.Hub.Broadcast(publish.Message{Type: publish.TypeReport, Data: report})
		log.Printf("[ENGINE] session %s finalized", e.sessionID)
	})
}

// #endregion
