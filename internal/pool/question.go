package pool

import (
	"strings"
	"sync"

	"github.com/google/uuid"
)

// #region types

// QuestionStatus is the lifecycle of a pool question. Transitions only
// advance: pending → asked → answered.
type QuestionStatus string

const (
	StatusPending  QuestionStatus = "pending"
	StatusAsked    QuestionStatus = "asked"
	StatusAnswered QuestionStatus = "answered"
)

var statusOrder = map[QuestionStatus]int{
	StatusPending:  0,
	StatusAsked:    1,
	StatusAnswered: 2,
}

// QuestionMeta is enrichment metadata merged in as a side channel.
// It never affects ranking or status.
type QuestionMeta struct {
	Headline string   `json:"headline,omitempty"`
	Domain   string   `json:"domain,omitempty"`
	Intent   string   `json:"intent,omitempty"`
	Tags     []string `json:"tags,omitempty"`
}

// QuestionRecord is one interview question with its lifecycle state.
type QuestionRecord struct {
	QID     string         `json:"qid"`
	Content string         `json:"content"`
	Status  QuestionStatus `json:"status"`
	Rank    int            `json:"rank"`
	Answer  string         `json:"answer,omitempty"`
	Meta    QuestionMeta   `json:"meta,omitempty"`
}

// RankedQuestion is the minimal {qid, question} pair exchanged with the
// merger/ranker oracle.
type RankedQuestion struct {
	QID      string `json:"qid"`
	Question string `json:"question"`
}

// #endregion

// #region pool

// QuestionPool holds the deduplicated, ranked question records for a session.
// Slice order is the authoritative ranking (index 0 = rank 1).
type QuestionPool struct {
	mu      sync.Mutex
	records []QuestionRecord
}

// NewQuestionPool creates a pool seeded with optional initial questions.
func NewQuestionPool(seed []string) *QuestionPool {
	p := &QuestionPool{}
	p.AddFollowUps(seed)
	return p
}

// #endregion

// #region add-ranked

// AddRanked installs the merger oracle's authoritative ordering. Existing
// records keep their qid, status, answer and metadata; unknown qids with
// text matching an existing record reuse that record; genuinely new items
// join as pending. Pool entries the oracle omitted are kept after the
// ranked ones in their prior relative order, so no answered question is
// ever dropped by a re-rank.
func (p *QuestionPool) AddRanked(ranked []RankedQuestion) {
	p.mu.Lock()
	defer p.mu.Unlock()

	byQID := make(map[string]int, len(p.records))
	byText := make(map[string]int, len(p.records))
	for i, r := range p.records {
		byQID[r.QID] = i
		byText[normalizeText(r.Content)] = i
	}

	used := make(map[int]bool, len(p.records))
	out := make([]QuestionRecord, 0, len(p.records)+len(ranked))
	seen := make(map[string]bool, len(ranked))

	for _, rq := range ranked {
		norm := normalizeText(rq.Question)
		if norm == "" || seen[norm] {
			continue
		}
		seen[norm] = true

		if i, ok := byQID[rq.QID]; ok && !used[i] {
			used[i] = true
			out = append(out, p.records[i])
			continue
		}
		if i, ok := byText[norm]; ok && !used[i] {
			used[i] = true
			out = append(out, p.records[i])
			continue
		}
		qid := rq.QID
		if qid == "" {
			qid = uuid.New().String()
		}
		out = append(out, QuestionRecord{
			QID:     qid,
			Content: strings.TrimSpace(rq.Question),
			Status:  StatusPending,
		})
	}

	for i, r := range p.records {
		if !used[i] {
			out = append(out, r)
		}
	}

	for i := range out {
		out[i].Rank = i + 1
	}
	p.records = out
}

// #endregion

// #region add-followups

// AddFollowUps wraps raw follow-up strings from diagnoser output into new
// pending records. A candidate whose normalized text already exists in the
// pool, whatever its status, is rejected. Returns how many were added.
func (p *QuestionPool) AddFollowUps(texts []string) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	existing := make(map[string]bool, len(p.records))
	for _, r := range p.records {
		existing[normalizeText(r.Content)] = true
	}

	added := 0
	for _, t := range texts {
		norm := normalizeText(t)
		if norm == "" || existing[norm] {
			continue
		}
		existing[norm] = true
		p.records = append(p.records, QuestionRecord{
			QID:     uuid.New().String(),
			Content: strings.TrimSpace(t),
			Status:  StatusPending,
			Rank:    len(p.records) + 1,
		})
		added++
	}
	return added
}

// #endregion

// #region status-answer

// UpdateStatus advances a question's status. Regressions are ignored, as is
// a qid not present in the pool.
func (p *QuestionPool) UpdateStatus(qid string, status QuestionStatus) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i := range p.records {
		if p.records[i].QID != qid {
			continue
		}
		if statusOrder[status] <= statusOrder[p.records[i].Status] {
			return false
		}
		p.records[i].Status = status
		return true
	}
	return false
}

// UpdateAnswer records the answer text for a question and advances its
// status to answered. Unknown qids are ignored (pool-integrity violations
// from the answer checker are non-fatal).
func (p *QuestionPool) UpdateAnswer(qid, answer string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i := range p.records {
		if p.records[i].QID != qid {
			continue
		}
		p.records[i].Answer = answer
		if statusOrder[StatusAnswered] > statusOrder[p.records[i].Status] {
			p.records[i].Status = StatusAnswered
		}
		return true
	}
	return false
}

// #endregion

// #region enrichment

// Enrichment carries per-question metadata from the enrichment oracle.
type Enrichment struct {
	QID      string   `json:"qid"`
	Headline string   `json:"headline,omitempty"`
	Domain   string   `json:"domain,omitempty"`
	Intent   string   `json:"intent,omitempty"`
	Tags     []string `json:"tags,omitempty"`
}

// ApplyEnrichment merges metadata by qid. Unknown qids are dropped.
func (p *QuestionPool) ApplyEnrichment(items []Enrichment) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, e := range items {
		for i := range p.records {
			if p.records[i].QID != e.QID {
				continue
			}
			p.records[i].Meta = QuestionMeta{
				Headline: e.Headline,
				Domain:   e.Domain,
				Intent:   e.Intent,
				Tags:     append([]string(nil), e.Tags...),
			}
			break
		}
	}
}

// #endregion

// #region reads

// HighRank returns the question at targetRank (1-based) among entries not
// yet asked, or nil when the rank exceeds what remains. The conversation
// driver walks targetRank upward to skip questions it already used this turn.
func (p *QuestionPool) HighRank(targetRank int) *QuestionRecord {
	p.mu.Lock()
	defer p.mu.Unlock()

	if targetRank < 1 {
		targetRank = 1
	}
	n := 0
	for i := range p.records {
		if p.records[i].Status != StatusPending {
			continue
		}
		n++
		if n == targetRank {
			rec := p.records[i]
			rec.Meta.Tags = append([]string(nil), rec.Meta.Tags...)
			return &rec
		}
	}
	return nil
}

// UnaskedCount returns how many questions are still pending.
func (p *QuestionPool) UnaskedCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := 0
	for i := range p.records {
		if p.records[i].Status == StatusPending {
			n++
		}
	}
	return n
}

// Snapshot returns a deep copy of all records in rank order.
func (p *QuestionPool) Snapshot() []QuestionRecord {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]QuestionRecord, len(p.records))
	for i, r := range p.records {
		r.Meta.Tags = append([]string(nil), r.Meta.Tags...)
		out[i] = r
	}
	return out
}

// Basic returns the {qid, question} pairs handed to oracles.
func (p *QuestionPool) Basic() []RankedQuestion {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]RankedQuestion, len(p.records))
	for i, r := range p.records {
		out[i] = RankedQuestion{QID: r.QID, Question: r.Content}
	}
	return out
}

// Len returns the pool size.
func (p *QuestionPool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.records)
}

// #endregion
