package transcript

import (
	"strings"
	"sync"
	"time"
)

// #region feed

// Feed is the append/replace log of recognized speech fragments.
// A single recognizer stream writes; the orchestration loop reads snapshots.
// One mutex guards the whole feed so a snapshot never sees a torn entry.
type Feed struct {
	mu          sync.Mutex
	entries     []Entry
	interim     bool // last entry is a non-final fragment
	sealedChars int
	sealedCount int
}

// NewFeed creates an empty feed.
func NewFeed() *Feed {
	return &Feed{}
}

// #endregion

// #region append-or-update

// AppendOrUpdate records a recognized fragment. While the recognizer is still
// refining an utterance (isFinal=false) the last entry is replaced in place;
// a final fragment seals the entry, and the sealed character count grows
// permanently.
func (f *Feed) AppendOrUpdate(role Role, text string, isFinal bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	text = strings.TrimSpace(text)
	entry := Entry{Role: role, Text: text, Timestamp: time.Now().UTC()}

	if f.interim && len(f.entries) > 0 {
		f.entries[len(f.entries)-1] = entry
	} else {
		f.entries = append(f.entries, entry)
	}

	if isFinal {
		f.interim = false
		f.sealedChars += len(text)
		f.sealedCount++
	} else {
		f.interim = true
	}
}

// AttachHighlights adds highlight spans to the most recent sealed entry.
// No-op on an empty feed or while the last entry is interim.
func (f *Feed) AttachHighlights(spans []Highlight) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.entries) == 0 || f.interim {
		return
	}
	last := &f.entries[len(f.entries)-1]
	last.Highlights = append(last.Highlights, spans...)
}

// #endregion

// #region snapshot

// Snapshot returns a consistent copy of all sealed entries. An interim
// trailing fragment is excluded so readers never see text that may still
// be replaced.
func (f *Feed) Snapshot() []Entry {
	f.mu.Lock()
	defer f.mu.Unlock()

	n := len(f.entries)
	if f.interim {
		n--
	}
	out := make([]Entry, n)
	for i := 0; i < n; i++ {
		out[i] = f.entries[i]
		if len(f.entries[i].Highlights) > 0 {
			out[i].Highlights = append([]Highlight(nil), f.entries[i].Highlights...)
		}
	}
	return out
}

// FullText joins all sealed entry texts with newlines, prefixed by role.
func (f *Feed) FullText() string {
	entries := f.Snapshot()
	var b strings.Builder
	for _, e := range entries {
		b.WriteString(string(e.Role))
		b.WriteString(": ")
		b.WriteString(e.Text)
		b.WriteString("\n")
	}
	return b.String()
}

// #endregion

// #region counters

// SealedChars returns the cumulative character count across sealed entries.
func (f *Feed) SealedChars() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sealedChars
}

// SealedCount returns the number of sealed entries.
func (f *Feed) SealedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sealedCount
}

// #endregion
