package types

// Cursor is the persisted crawl state for one (category, search term) pair
// (SPEC_FULL.md section 4.6). ExhaustedAt is zero when the feed has not
// been exhausted for the current round.
type Cursor struct {
	Category    string `bson:"category" json:"category"`
	SearchTerm  string `bson:"search_term" json:"search_term"`
	Round       int    `bson:"round" json:"round"`
	Target      int    `bson:"target" json:"target"`
	Skip        int    `bson:"skip" json:"skip"`
	UpdatedAt   int64  `bson:"updated_at" json:"updated_at"`
	ExhaustedAt int64  `bson:"exhausted_at,omitempty" json:"exhausted_at,omitempty"`
}

// CursorKey returns the store key for a (category, term) pair.
func CursorKey(category, term string) string {
	return category + "||" + term
}

// DefaultCursor returns the zero-state cursor: round 1, target 100, skip 0.
func DefaultCursor(category, term string) *Cursor {
	return &Cursor{
		Category:   category,
		SearchTerm: term,
		Round:      1,
		Target:     100,
		Skip:       0,
	}
}

// Advance computes the next round's (round, target, skip) triple.
// Skip jumps forward once the target reaches 800, per SPEC_FULL.md 4.6:
// the source API sorts by views, so once cumulative target outruns where
// fresh content is likely to rank, the crawl jumps ahead in the ranking
// while retaining a 500-row overlap for robustness to score drift.
func (c *Cursor) Advance(now int64) {
	c.Round++
	c.Target = c.Round * 100
	if c.Target >= 800 {
		c.Skip = c.Target - 500
	} else {
		c.Skip = 0
	}
	c.UpdatedAt = now
	c.ExhaustedAt = 0
}

// MarkExhausted records the feed as exhausted for the current round
// without advancing it — the same round is retried next pass.
func (c *Cursor) MarkExhausted(now int64) {
	c.ExhaustedAt = now
	c.UpdatedAt = now
}
