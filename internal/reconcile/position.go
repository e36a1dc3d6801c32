package reconcile

import (
	"dispatch-dashboard/internal/model"
	"dispatch-dashboard/internal/records"
)

// Operating region for synthesized markers: every synthesized point lies in
// [Base.lat, Base.lat+Spread) x [Base.lng, Base.lng+Spread).
var Base = model.Position{58.0, 56.2}

const (
	Spread  = 0.1
	buckets = 1000
)

// Synthesize derives a stable map coordinate from seed. The same seed always
// yields the same point.
func Synthesize(seed string) model.Position {
	var h uint32
	for _, r := range seed {
		h = h*31 + uint32(r)
	}
	lat := float64(h%buckets) / buckets * Spread
	lng := float64((h/buckets)%buckets) / buckets * Spread
	return model.Position{Base[0] + lat, Base[1] + lng}
}

// Seed picks the synthesis seed for a car: its id, or the registration
// number when the id was minted locally and so is not stable across loads.
func Seed(id, regNum string) string {
	if records.IsGenerated(id) && regNum != "" {
		return regNum
	}
	return id
}

// ExplicitPosition reads a backend-supplied coordinate: a [lat, lng] array,
// an object with lat/lng, or top-level lat/lng fields. (0,0) and
// out-of-range values count as absent.
func ExplicitPosition(rec records.Record) (model.Position, bool) {
	if v, ok := records.Lookup(rec, PositionField); ok {
		switch p := v.(type) {
		case []any:
			if len(p) >= 2 {
				lat, ok1 := records.FloatFrom(p[0])
				lng, ok2 := records.FloatFrom(p[1])
				if ok1 && ok2 {
					return validPosition(lat, lng)
				}
			}
		case map[string]any:
			if pos, ok := latLng(p); ok {
				return pos, true
			}
		}
	}
	return latLng(rec)
}

func latLng(rec records.Record) (model.Position, bool) {
	lat, ok1 := records.Float(rec, LatField)
	lng, ok2 := records.Float(rec, LngField)
	if !ok1 || !ok2 {
		return model.Position{}, false
	}
	return validPosition(lat, lng)
}

func validPosition(lat, lng float64) (model.Position, bool) {
	pos := model.Position{lat, lng}
	if pos.IsZero() || lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return model.Position{}, false
	}
	return pos, true
}
