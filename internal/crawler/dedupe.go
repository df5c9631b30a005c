package crawler

import "indeed-crawler/pkg/models"

// Deduplicator tracks the listings admitted during one crawl session. A
// record is rejected when its stable job ID has been seen, or when its
// title/company pair has, regardless of ID. First seen wins.
type Deduplicator struct {
	ids   map[string]struct{}
	pairs map[string]struct{}
}

// NewDeduplicator returns an empty session deduplicator.
func NewDeduplicator() *Deduplicator {
	return &Deduplicator{
		ids:   make(map[string]struct{}),
		pairs: make(map[string]struct{}),
	}
}

// Admit reports whether the record is new to this session and registers it
// when it is.
func (d *Deduplicator) Admit(rec *models.ListingRecord) bool {
	key := rec.PairKey()

	if rec.JobID != "" {
		if _, seen := d.ids[rec.JobID]; seen {
			return false
		}
	}
	if _, seen := d.pairs[key]; seen {
		return false
	}

	if rec.JobID != "" {
		d.ids[rec.JobID] = struct{}{}
	}
	d.pairs[key] = struct{}{}
	return true
}
