package session

import (
	"crypto/rand"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/medforce/intake-orchestrator/internal/transcript"
)

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	session_id   TEXT PRIMARY KEY,
	patient_id   TEXT NOT NULL,
	started_at   TEXT NOT NULL,
	finished_at  TEXT
);

CREATE TABLE IF NOT EXISTS transcript_entries (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id       TEXT NOT NULL,
	role             TEXT NOT NULL,
	text             TEXT NOT NULL,
	highlights_json  TEXT,
	created_at       TEXT NOT NULL,
	FOREIGN KEY (session_id) REFERENCES sessions(session_id)
);

CREATE TABLE IF NOT EXISTS cycle_log (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id       TEXT NOT NULL,
	cycle_num        INTEGER NOT NULL,
	trigger_reason   TEXT NOT NULL,
	sealed_chars     INTEGER NOT NULL,
	oracle_failures  TEXT,
	diagnosis_json   TEXT,
	phase            TEXT NOT NULL,
	finished         INTEGER NOT NULL DEFAULT 0,
	created_at       TEXT NOT NULL,
	FOREIGN KEY (session_id) REFERENCES sessions(session_id)
);

CREATE TABLE IF NOT EXISTS artifacts (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id    TEXT NOT NULL,
	kind          TEXT NOT NULL,
	payload_json  TEXT NOT NULL,
	created_at    TEXT NOT NULL,
	FOREIGN KEY (session_id) REFERENCES sessions(session_id)
);
`

// #endregion schema

// #region types

// Record describes one stored session.
type Record struct {
	SessionID  string
	PatientID  string
	StartedAt  time.Time
	FinishedAt time.Time // zero if still running
}

// CycleRecord is the provenance row for one completed analysis cycle.
type CycleRecord struct {
	SessionID      string
	CycleNum       int
	TriggerReason  string
	SealedChars    int
	OracleFailures []string
	DiagnosisJSON  string
	Phase          string
	Finished       bool
	CreatedAt      time.Time
}

// #endregion

// #region store

// Store persists session history in SQLite: sealed transcript entries,
// per-cycle provenance, and finalization artifacts.
type Store struct {
	db *sql.DB
}

// NewStore opens a SQLite database and runs migrations.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return nil, fmt.Errorf("pragma fk: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for use by other packages.
func (s *Store) DB() *sql.DB {
	return s.db
}

// #endregion store

// #region sessions

// CreateSession inserts a new session row and returns its record.
func (s *Store) CreateSession(patientID string) (Record, error) {
	rec := Record{
		SessionID: NewSessionID(),
		PatientID: patientID,
		StartedAt: time.Now().UTC(),
	}
	_, err := s.db.Exec(
		`INSERT INTO sessions (session_id, patient_id, started_at) VALUES (?, ?, ?)`,
		rec.SessionID, rec.PatientID, rec.StartedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return Record{}, fmt.Errorf("insert session: %w", err)
	}
	return rec, nil
}

// FinishSession stamps the session's finished_at.
func (s *Store) FinishSession(sessionID string) error {
	_, err := s.db.Exec(
		`UPDATE sessions SET finished_at = ? WHERE session_id = ?`,
		time.Now().UTC().Format(time.RFC3339Nano), sessionID,
	)
	if err != nil {
		return fmt.Errorf("finish session: %w", err)
	}
	return nil
}

// ListSessions returns the most recent sessions.
func (s *Store) ListSessions(limit int) ([]Record, error) {
	rows, err := s.db.Query(
		`SELECT session_id, patient_id, started_at, finished_at
		 FROM sessions ORDER BY started_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		var startedStr string
		var finishedStr sql.NullString
		if err := rows.Scan(&rec.SessionID, &rec.PatientID, &startedStr, &finishedStr); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		rec.StartedAt, _ = time.Parse(time.RFC3339Nano, startedStr)
		if finishedStr.Valid {
			rec.FinishedAt, _ = time.Parse(time.RFC3339Nano, finishedStr.String)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// #endregion sessions

// #region transcript

// SealEntry archives one sealed transcript entry.
func (s *Store) SealEntry(sessionID string, e transcript.Entry) error {
	var hlPtr interface{}
	if len(e.Highlights) > 0 {
		data, err := json.Marshal(e.Highlights)
		if err != nil {
			return fmt.Errorf("marshal highlights: %w", err)
		}
		hlPtr = string(data)
	}
	_, err := s.db.Exec(
		`INSERT INTO transcript_entries (session_id, role, text, highlights_json, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		sessionID, string(e.Role), e.Text, hlPtr, e.Timestamp.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert entry: %w", err)
	}
	return nil
}

// Entries returns the archived entries for a session in order.
func (s *Store) Entries(sessionID string) ([]transcript.Entry, error) {
	rows, err := s.db.Query(
		`SELECT role, text, highlights_json, created_at
		 FROM transcript_entries WHERE session_id = ? ORDER BY id ASC`, sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()

	var entries []transcript.Entry
	for rows.Next() {
		var e transcript.Entry
		var role, createdStr string
		var hlJSON sql.NullString
		if err := rows.Scan(&role, &e.Text, &hlJSON, &createdStr); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		e.Role = transcript.Role(role)
		e.Timestamp, _ = time.Parse(time.RFC3339Nano, createdStr)
		if hlJSON.Valid {
			if err := json.Unmarshal([]byte(hlJSON.String), &e.Highlights); err != nil {
				return nil, fmt.Errorf("unmarshal highlights: %w", err)
			}
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// #endregion transcript

// #region cycles

// LogCycle writes one cycle's provenance row.
func (s *Store) LogCycle(rec CycleRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	finished := 0
	if rec.Finished {
		finished = 1
	}
	var failPtr interface{}
	if len(rec.OracleFailures) > 0 {
		data, err := json.Marshal(rec.OracleFailures)
		if err != nil {
			return fmt.Errorf("marshal failures: %w", err)
		}
		failPtr = string(data)
	}
	var diagPtr interface{}
	if rec.DiagnosisJSON != "" {
		diagPtr = rec.DiagnosisJSON
	}
	_, err := s.db.Exec(
		`INSERT INTO cycle_log (session_id, cycle_num, trigger_reason, sealed_chars, oracle_failures, diagnosis_json, phase, finished, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.SessionID, rec.CycleNum, rec.TriggerReason, rec.SealedChars,
		failPtr, diagPtr, rec.Phase, finished,
		rec.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("log cycle: %w", err)
	}
	return nil
}

// ListCycles returns a session's cycle rows in order.
func (s *Store) ListCycles(sessionID string) ([]CycleRecord, error) {
	rows, err := s.db.Query(
		`SELECT cycle_num, trigger_reason, sealed_chars, oracle_failures, diagnosis_json, phase, finished, created_at
		 FROM cycle_log WHERE session_id = ? ORDER BY cycle_num ASC`, sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("query cycles: %w", err)
	}
	defer rows.Close()

	var records []CycleRecord
	for rows.Next() {
		rec := CycleRecord{SessionID: sessionID}
		var failJSON, diagJSON sql.NullString
		var finished int
		var createdStr string
		if err := rows.Scan(&rec.CycleNum, &rec.TriggerReason, &rec.SealedChars, &failJSON, &diagJSON, &rec.Phase, &finished, &createdStr); err != nil {
			return nil, fmt.Errorf("scan cycle: %w", err)
		}
		if failJSON.Valid {
			if err := json.Unmarshal([]byte(failJSON.String), &rec.OracleFailures); err != nil {
				return nil, fmt.Errorf("unmarshal failures: %w", err)
			}
		}
		if diagJSON.Valid {
			rec.DiagnosisJSON = diagJSON.String
		}
		rec.Finished = finished != 0
		rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// #endregion cycles

// #region artifacts

// SaveArtifact persists a finalization artifact (checklist or report).
func (s *Store) SaveArtifact(sessionID, kind string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal artifact: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO artifacts (session_id, kind, payload_json, created_at) VALUES (?, ?, ?, ?)`,
		sessionID, kind, string(data), time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert artifact: %w", err)
	}
	return nil
}

// Artifact loads one artifact's payload JSON, or "" if absent.
func (s *Store) Artifact(sessionID, kind string) (string, error) {
	var payload string
	err := s.db.QueryRow(
		`SELECT payload_json FROM artifacts WHERE session_id = ? AND kind = ? ORDER BY id DESC LIMIT 1`,
		sessionID, kind,
	).Scan(&payload)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get artifact: %w", err)
	}
	return payload, nil
}

// #endregion artifacts

// #region session-id

const idAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// NewSessionID returns a 5-character uppercase alphanumeric session id.
func NewSessionID() string {
	var b [5]byte
	rand.Read(b[:])
	for i := range b {
		b[i] = idAlphabet[int(b[i])%len(idAlphabet)]
	}
	return string(b[:])
}

// #endregion
