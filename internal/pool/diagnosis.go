package pool

import (
	"crypto/rand"
	"sync"
)

// #region types

// Severity buckets a diagnosis by indicator weight and rank.
type Severity string

const (
	SeverityHigh     Severity = "High"
	SeverityModerate Severity = "Moderate"
	SeverityLow      Severity = "Low"
	SeverityVeryLow  Severity = "Very Low"
)

// IndicatorPoint is one clinical criterion supporting a diagnosis,
// marked confirmed once the transcript substantiates it.
type IndicatorPoint struct {
	Criterion string `json:"criterion"`
	Confirmed bool   `json:"confirmed"`
}

// DiagnosisRecord is a consolidated diagnosis with a session-stable identity.
// Rank and Severity are derived on read, never stored.
type DiagnosisRecord struct {
	DID              string           `json:"did"`
	Diagnosis        string           `json:"diagnosis"`
	Indicators       []IndicatorPoint `json:"indicators_point"`
	Reasoning        string           `json:"reasoning,omitempty"`
	FollowupQuestion string           `json:"followup_question,omitempty"`
	Rank             int              `json:"rank,omitempty"`
	Severity         Severity         `json:"severity,omitempty"`
}

// BasicDiagnosis is the stripped view handed to oracles: identity and
// indicators only, no derived metrics.
type BasicDiagnosis struct {
	DID        string           `json:"did"`
	Diagnosis  string           `json:"diagnosis"`
	Indicators []IndicatorPoint `json:"indicators_point"`
}

// #endregion

// #region pool

// DiagnosisPool holds the consolidated diagnosis records for one session.
// The orchestration loop is the only writer; readers get copies.
type DiagnosisPool struct {
	mu      sync.Mutex
	records []DiagnosisRecord
}

// NewDiagnosisPool creates an empty pool.
func NewDiagnosisPool() *DiagnosisPool {
	return &DiagnosisPool{}
}

// #endregion

// #region set-consolidated

// SetConsolidated replaces the pool wholesale with the consolidator oracle's
// output. The oracle owns the semantic merge; the pool's job is identity:
// a record arriving without a did gets one assigned, and a did is never
// rewritten once present.
func (p *DiagnosisPool) SetConsolidated(recs []DiagnosisRecord) {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]DiagnosisRecord, 0, len(recs))
	for _, r := range recs {
		if r.DID == "" {
			r.DID = ShortID()
		}
		r.Rank = 0
		r.Severity = ""
		out = append(out, r)
	}
	p.records = out
}

// #endregion

// #region ranked

// Ranked returns a copy of the pool with rank and severity computed.
// Rank is the 1-based position in consolidation order. Severity ladder:
// rank 1 with more than 8 indicator points is High; more than 5 points is
// Moderate regardless of rank; more than 3 is Low; anything else Very Low.
func (p *DiagnosisPool) Ranked() []DiagnosisRecord {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]DiagnosisRecord, len(p.records))
	for i, r := range p.records {
		r.Indicators = append([]IndicatorPoint(nil), r.Indicators...)
		r.Rank = i + 1
		points := len(r.Indicators)
		switch {
		case r.Rank == 1 && points > 8:
			r.Severity = SeverityHigh
		case points > 5:
			r.Severity = SeverityModerate
		case points > 3:
			r.Severity = SeverityLow
		default:
			r.Severity = SeverityVeryLow
		}
		out[i] = r
	}
	return out
}

// Basic returns the simplified view used as oracle input.
func (p *DiagnosisPool) Basic() []BasicDiagnosis {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]BasicDiagnosis, len(p.records))
	for i, r := range p.records {
		out[i] = BasicDiagnosis{
			DID:        r.DID,
			Diagnosis:  r.Diagnosis,
			Indicators: append([]IndicatorPoint(nil), r.Indicators...),
		}
	}
	return out
}

// Len returns the number of consolidated records.
func (p *DiagnosisPool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.records)
}

// #endregion

// #region short-id

const idAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// ShortID returns a random 5-character uppercase alphanumeric identifier,
// the same shape the reasoning services emit for did values.
func ShortID() string {
	var b [5]byte
	rand.Read(b[:])
	for i := range b {
		b[i] = idAlphabet[int(b[i])%len(idAlphabet)]
	}
	return string(b[:])
}

// #endregion
