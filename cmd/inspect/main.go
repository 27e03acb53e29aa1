package main

// #region imports
import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/medforce/intake-orchestrator/internal/session"
)

// #endregion

// #region main

func main() {
	dbPath := flag.String("db", "", "path to intake.db")
	sessionID := flag.String("session", "", "show single session detail")
	last := flag.Int("last", 20, "show N most recent sessions")
	jsonOut := flag.Bool("json", false, "output as JSON instead of table")
	flag.Parse()

	if *dbPath == "" {
		fmt.Fprintln(os.Stderr, "usage: inspect --db path/to/intake.db [--last N] [--session id] [--json]")
		os.Exit(2)
	}

	store, err := session.NewStore(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open db: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	if *sessionID != "" {
		err = runDetailMode(store, *sessionID, *jsonOut)
	} else {
		err = runListMode(store, *last, *jsonOut)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// #endregion main

// #region list-mode

func runListMode(store *session.Store, last int, jsonOut bool) error {
	sessions, err := store.ListSessions(last)
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		fmt.Fprintln(os.Stderr, "no sessions found")
		return nil
	}

	if jsonOut {
		return printJSON(sessions)
	}

	fmt.Printf("%-8s  %-12s  %-20s  %s\n", "Session", "Patient", "Started", "Finished")
	fmt.Printf("%-8s+-%-12s+-%-20s+-%s\n",
		"--------", "------------", "--------------------", "--------------------")
	for _, s := range sessions {
		finished := "-"
		if !s.FinishedAt.IsZero() {
			finished = s.FinishedAt.Format("2006-01-02T15:04:05Z")
		}
		fmt.Printf("%-8s  %-12s  %-20s  %s\n",
			s.SessionID, s.PatientID, s.StartedAt.Format("2006-01-02T15:04:05Z"), finished)
	}
	return nil
}

// #endregion list-mode

// #region detail-mode

type sessionDetail struct {
	Session   session.Record        `json:"session"`
	Cycles    []session.CycleRecord `json:"cycles"`
	Checklist json.RawMessage       `json:"checklist,omitempty"`
	Report    json.RawMessage       `json:"report,omitempty"`
}

func runDetailMode(store *session.Store, sessionID string, jsonOut bool) error {
	sessions, err := store.ListSessions(1000)
	if err != nil {
		return err
	}
	var rec *session.Record
	for i := range sessions {
		if sessions[i].SessionID == sessionID {
			rec = &sessions[i]
			break
		}
	}
	if rec == nil {
		return fmt.Errorf("session %s not found", sessionID)
	}

	cycles, err := store.ListCycles(sessionID)
	if err != nil {
		return err
	}
	checklist, err := store.Artifact(sessionID, "checklist")
	if err != nil {
		return err
	}
	report, err := store.Artifact(sessionID, "report")
	if err != nil {
		return err
	}

	if jsonOut {
		d := sessionDetail{Session: *rec, Cycles: cycles}
		if checklist != "" {
			d.Checklist = json.RawMessage(checklist)
		}
		if report != "" {
			d.Report = json.RawMessage(report)
		}
		return printJSON(d)
	}

	fmt.Printf("Session %s (patient %q)\n\n", rec.SessionID, rec.PatientID)
	fmt.Printf("%-6s  %-10s  %8s  %-6s  %-9s  %s\n",
		"Cycle", "Trigger", "Sealed", "Phase", "Finished", "Failures")
	fmt.Printf("%-6s+-%-10s+-%8s+-%-6s+-%-9s+-%s\n",
		"------", "----------", "--------", "------", "---------", "--------------------")
	for _, c := range cycles {
		failures := "-"
		if len(c.OracleFailures) > 0 {
			failures = strings.Join(c.OracleFailures, ",")
		}
		fmt.Printf("%-6d  %-10s  %8d  %-6s  %-9v  %s\n",
			c.CycleNum, c.TriggerReason, c.SealedChars, c.Phase, c.Finished, failures)
	}
	if checklist != "" {
		fmt.Printf("\nChecklist:\n%s\n", checklist)
	}
	if report != "" {
		fmt.Printf("\nReport:\n%s\n", report)
	}
	return nil
}

// #endregion detail-mode

// #region output

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// #endregion output
