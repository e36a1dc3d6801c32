// Package reconcile turns raw backend records into canonical, cross-referenced
// entities.
package reconcile

import (
	"dispatch-dashboard/internal/model"
	"dispatch-dashboard/internal/records"
)

// BuildHospitalOptions extracts the canonical {id, name} list from a raw
// hospital payload. Records lacking either value are dropped. Output keeps
// first-seen order; a later record with a duplicate id replaces the earlier
// one's name in place.
func BuildHospitalOptions(payload any) []model.HospitalOption {
	raw := records.Unwrap(payload)
	out := make([]model.HospitalOption, 0, len(raw))
	seen := make(map[string]int, len(raw))
	for _, rec := range raw {
		opt, ok := HospitalOption(rec)
		if !ok {
			continue
		}
		if i, dup := seen[opt.ID]; dup {
			out[i] = opt
			continue
		}
		seen[opt.ID] = len(out)
		out = append(out, opt)
	}
	return out
}

// HospitalOption resolves a single raw hospital record.
func HospitalOption(rec records.Record) (model.HospitalOption, bool) {
	id := records.String(rec, HospitalIDField)
	name := records.String(rec, HospitalNameField)
	if id == "" || name == "" {
		return model.HospitalOption{}, false
	}
	return model.HospitalOption{ID: id, Name: name}, true
}
