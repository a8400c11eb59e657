package ingest

import "github.com/rickgao/tsingest/internal/model"

// Filter returns the records that advance past the watermark.
//
// With forceFullReload or an empty watermark every record is returned
// unchanged. Otherwise only records on a UTC calendar day strictly after the
// watermark's day pass: records later on the watermark's own day are
// excluded. Input order is kept and duplicates are not removed.
func Filter(records []model.Observation, wm model.Watermark, forceFullReload bool) []model.Observation {
	if forceFullReload || !wm.Valid {
		return records
	}

	cutoff := wm.Day()
	out := make([]model.Observation, 0, len(records))
	for _, r := range records {
		if model.DayOf(r.Timestamp).After(cutoff) {
			out = append(out, r)
		}
	}
	return out
}
