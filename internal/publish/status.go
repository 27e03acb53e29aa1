package publish

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// #region status-record

// StatusRecord is the per-cycle snapshot written for the voice frontend:
// whether the interview is finished, the question to ask next, and an
// education point to offer. Question and Education serialize as null when
// absent, so readers can tell "nothing to offer" from an empty string.
type StatusRecord struct {
	IsFinished bool    `json:"is_finished"`
	Question   *string `json:"question"`
	Education  *string `json:"education"`
}

// WriteStatus replaces the status record at path via write-and-rename, so
// a reader never sees a half-written file from this process. Readers still
// retry: the file may not exist yet, or another writer may be less careful.
func WriteStatus(path string, rec StatusRecord) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal status: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write status: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace status: %w", err)
	}
	return nil
}

const (
	readAttempts = 3
	readBackoff  = 100 * time.Millisecond
)

// ReadStatus loads the status record, retrying briefly when the file is
// missing or mid-rewrite. After the attempts run out the last error is
// returned.
func ReadStatus(path string) (StatusRecord, error) {
	var lastErr error
	for attempt := 0; attempt < readAttempts; attempt++ {
		if attempt > 0 {
			time.Sleep(readBackoff)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			lastErr = err
			continue
		}
		var rec StatusRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			lastErr = err
			continue
		}
		return rec, nil
	}
	return StatusRecord{}, fmt.Errorf("read status after %d attempts: %w", readAttempts, lastErr)
}

// #endregion
