package store

import (
	"strings"

	"dispatch-dashboard/internal/model"
)

// SuggestionLimit caps hospital typeahead results.
const SuggestionLimit = 6

// Filter is the operator's current view over the car collection: an
// optional set of selected hospitals and a free-text query matched against
// registration numbers and tracker ids. It never changes the collection.
type Filter struct {
	Hospitals []model.HospitalOption `json:"hospitals"`
	Query     string                 `json:"query"`
}

// Active reports whether the filter narrows anything.
func (f Filter) Active() bool {
	return len(f.Hospitals) > 0 || strings.TrimSpace(f.Query) != ""
}

// References reports whether hospitalID is among the selected hospitals.
func (f Filter) References(hospitalID string) bool {
	for _, h := range f.Hospitals {
		if h.ID == hospitalID {
			return true
		}
	}
	return false
}

// Matches reports whether c passes the filter.
func (f Filter) Matches(c model.Car) bool {
	if len(f.Hospitals) > 0 && !f.References(c.HospitalID) {
		return false
	}
	q := strings.ToLower(strings.TrimSpace(f.Query))
	if q == "" {
		return true
	}
	return strings.Contains(strings.ToLower(c.RegNum), q) ||
		strings.Contains(strings.ToLower(c.Tracker()), q)
}

// Apply returns copies of the cars that pass the filter.
func (f Filter) Apply(cars []model.Car) []model.Car {
	out := make([]model.Car, 0, len(cars))
	for _, c := range cars {
		if f.Matches(c) {
			out = append(out, c.Clone())
		}
	}
	return out
}

func (f Filter) clone() Filter {
	if f.Hospitals != nil {
		f.Hospitals = append([]model.HospitalOption(nil), f.Hospitals...)
	}
	return f
}
