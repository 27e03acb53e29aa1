package engine

// #region imports
import (
	"context"
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

// #region phases

// Phase is the interview stage reported by the completion supervisor.
// Transitions only move forward; a supervisor verdict that would regress
// the phase is ignored.
type Phase string

const (
	PhaseStart Phase = "start"
	PhaseMid   Phase = "mid"
	PhaseEnd   Phase = "end"
)

var phaseOrder = map[Phase]int{
	PhaseStart: 0,
	PhaseMid:   1,
	PhaseEnd:   2,
}

// #endregion

// #region config

// Config tunes the analysis trigger.
type Config struct {
	GrowthThreshold int           // sealed chars of growth that force a cycle
	Cooldown        time.Duration // minimum spacing between cycles
	IdlePoll        time.Duration // trigger re-check interval
	StatusPath      string        // where the per-cycle status record goes
}

// DefaultConfig returns the production trigger settings.
func DefaultConfig() Config {
	return Config{
		GrowthThreshold: 20,
		Cooldown:        5 * time.Second,
		IdlePoll:        1 * time.Second,
		StatusPath:      "./status_update.json",
	}
}

// #endregion

// #region engine

// Deps wires the engine to its collaborators.
type Deps struct {
	Feed    *transcript.Feed
	Oracles oracle.Oracles
	Hub     *publish.Hub
	Store   *session.Store
}

// Engine drives the analysis loop for one session: it watches the
// transcript feed, runs oracle cycles when enough new speech has sealed,
// serializes the merge of their results into the pools, and publishes each
// cycle's outcome. All pool mutation happens on the engine goroutine.
type Engine struct {
	cfg  Config
	deps Deps

	sessionID   string
	patientInfo string

	diagnoses *pool.DiagnosisPool
	questions *pool.QuestionPool
	education *pool.EducationPool

	structured []oracle.StructuredLine
	analytics  oracle.Scorecard

	phase    Phase
	finished bool

	cycleNum      int
	lastCycleAt   time.Time
	lastChars     int
	lastSealed    int
	archivedCount int

	pendingQID string // question pushed last cycle, marked asked next cycle

	finalizeOnce sync.Once
}

// New creates an engine for one session. seedQuestions populate the
// question pool before the first cycle.
func New(cfg Config, deps Deps, sessionID, patientInfo string, seedQuestions []string) *Engine {
	return &Engine{
		cfg:         cfg,
		deps:        deps,
		sessionID:   sessionID,
		patientInfo: patientInfo,
		diagnoses:   pool.NewDiagnosisPool(),
		questions:   pool.NewQuestionPool(seedQuestions),
		education:   pool.NewEducationPool(),
		phase:       PhaseStart,
	}
}

// Finished reports whether the interview has been declared complete.
func (e *Engine) Finished() bool {
	return e.finished
}

// CurrentPhase returns the interview phase as of the last cycle.
func (e *Engine) CurrentPhase() Phase {
	return e.phase
}

// #endregion

// #region run

// Run executes the session loop until the interview finishes or ctx is
// canceled. An initial cycle runs immediately so the first question and
// baseline diagnoses exist before any speech arrives. On a finished
// interview Run finalizes exactly once before returning.
func (e *Engine) Run(ctx context.Context) error {
	log.Printf("[ENGINE] session %s starting", e.sessionID)

	e.runCycle(ctx, "initial")
	if e.finished {
		e.finalize(ctx)
		return nil
	}

	ticker := time.NewTicker(e.cfg.IdlePoll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Printf("[ENGINE] session %s canceled", e.sessionID)
			if e.finished {
				e.finalize(ctx)
			}
			return ctx.Err()
		case <-ticker.C:
			reason, ok := e.shouldTrigger(time.Now())
			if !ok {
				continue
			}
			e.runCycle(ctx, reason)
			if e.finished {
				e.finalize(ctx)
				return nil
			}
		}
	}
}

// shouldTrigger decides whether a cycle is due. Growth past the threshold
// or any newly sealed entry qualifies, but never inside the cooldown.
func (e *Engine) shouldTrigger(now time.Time) (string, bool) {
	if now.Sub(e.lastCycleAt) < e.cfg.Cooldown {
		return "", false
	}
	chars := e.deps.Feed.SealedChars()
	sealed := e.deps.Feed.SealedCount()
	if chars-e.lastChars > e.cfg.GrowthThreshold {
		return "growth", true
	}
	if sealed > e.lastSealed {
		return "new-entry", true
	}
	return "", false
}

// #endregion
