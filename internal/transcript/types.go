package transcript

import "time"

// #region role

// Role identifies the speaker of a transcript entry.
type Role string

const (
	RoleNurse   Role = "NURSE"
	RolePatient Role = "PATIENT"
	RoleSystem  Role = "SYSTEM"
)

// #endregion

// #region highlight

// Highlight marks a clinically notable span inside an entry's text.
type Highlight struct {
	Level string `json:"level"` // "danger" | "warning"
	Text  string `json:"text"`
}

// #endregion

// #region entry

// Entry is a single recognized utterance in the interview transcript.
type Entry struct {
	Role       Role        `json:"role"`
	Text       string      `json:"text"`
	Timestamp  time.Time   `json:"timestamp"`
	Highlights []Highlight `json:"highlights,omitempty"`
}

// #endregion
