package pool

import (
	"strings"
	"sync"
)

// #region types

// EducationPoint is one advisory item for the patient. Offered flips once,
// when the point is surfaced through the status record.
type EducationPoint struct {
	Headline string `json:"headline,omitempty"`
	Content  string `json:"content"`
	Category string `json:"category,omitempty"`
	Urgency  string `json:"urgency,omitempty"`
	Source   string `json:"source,omitempty"`
	Offered  bool   `json:"offered"`
}

// #endregion

// #region pool

// EducationPool holds deduplicated advisory points in insertion order.
type EducationPool struct {
	mu     sync.Mutex
	points []EducationPoint
}

// NewEducationPool creates an empty pool.
func NewEducationPool() *EducationPool {
	return &EducationPool{}
}

// #endregion

// #region add

// AddNewPoints inserts candidates whose normalized content is not already
// present anywhere in the pool, offered or not. The education oracle only
// sees previously-offered points, so the dedup here is what stops a
// rephrased duplicate from re-entering. Returns how many were added.
func (p *EducationPool) AddNewPoints(candidates []EducationPoint) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	existing := make(map[string]bool, len(p.points))
	for _, pt := range p.points {
		existing[normalizeText(pt.Content)] = true
	}

	added := 0
	for _, c := range candidates {
		norm := normalizeText(c.Content)
		if norm == "" || existing[norm] {
			continue
		}
		existing[norm] = true
		c.Offered = false
		p.points = append(p.points, c)
		added++
	}
	return added
}

// #endregion

// #region pick

// PickAndMarkOffered selects the oldest not-yet-offered point, flips its
// offered flag, and returns a copy. Returns nil when nothing remains.
// The orchestration loop calls this at most once per cycle.
func (p *EducationPool) PickAndMarkOffered() *EducationPoint {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i := range p.points {
		if p.points[i].Offered {
			continue
		}
		p.points[i].Offered = true
		pt := p.points[i]
		return &pt
	}
	return nil
}

// #endregion

// #region reads

// Offered returns copies of the points already surfaced, the only history
// the education oracle is shown.
func (p *EducationPool) Offered() []EducationPoint {
	p.mu.Lock()
	defer p.mu.Unlock()

	var out []EducationPoint
	for _, pt := range p.points {
		if pt.Offered {
			out = append(out, pt)
		}
	}
	return out
}

// Snapshot returns a copy of the full pool in insertion order.
func (p *EducationPool) Snapshot() []EducationPoint {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]EducationPoint(nil), p.points...)
}

// Len returns the pool size.
func (p *EducationPool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.points)
}

// #endregion

// #region normalize

// normalizeText lowercases, collapses whitespace, and strips trailing
// punctuation so trivially rephrased duplicates compare equal.
func normalizeText(s string) string {
	s = strings.Join(strings.Fields(strings.ToLower(s)), " ")
	return strings.TrimRight(s, " .?!")
}

// #endregion
