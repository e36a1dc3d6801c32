// Package model holds the canonical entities rendered by the dashboard.
package model

import "strings"

// NoHospital is the grouping key for entities without a resolved hospital.
const NoHospital = "none"

// Kind identifies one of the three canonical collections.
type Kind string

const (
	KindHospital Kind = "hospital"
	KindCar      Kind = "car"
	KindUser     Kind = "user"
)

// HospitalOption is the canonical join target for hospital membership.
type HospitalOption struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Position is a map coordinate as [lat, lng].
type Position [2]float64

func (p Position) Lat() float64 { return p[0] }
func (p Position) Lng() float64 { return p[1] }

// IsZero reports whether p is the (0,0) placeholder some feeds send for
// "unknown".
func (p Position) IsZero() bool { return p[0] == 0 && p[1] == 0 }

// Where a car's position came from.
const (
	PositionBackend     = "backend"
	PositionTracker     = "tracker"
	PositionSynthesized = "synthesized"
)

// Car is an ambulance as shown on the map.
type Car struct {
	ID               string   `json:"id"`
	CarID            string   `json:"carId"`
	RegNum           string   `json:"regNum"`
	GPSTracker       *string  `json:"gpsTracker"`
	HospitalID       string   `json:"hospitalId"`
	HospitalName     string   `json:"hospitalName"`
	MedInstitutionID string   `json:"medInstitutionId"`
	Position         Position `json:"position"`
	PositionSource   string   `json:"positionSource"`
}

// Unassigned reports a resolution gap: no known hospital matched.
func (c Car) Unassigned() bool { return c.HospitalID == "" }

// Tracker returns the bound tracker id or "".
func (c Car) Tracker() string {
	if c.GPSTracker == nil {
		return ""
	}
	return *c.GPSTracker
}

// GroupKey is the by-hospital bucket the car belongs to.
func (c Car) GroupKey() string { return groupKey(c.HospitalID) }

// Clone returns a deep copy.
func (c Car) Clone() Car {
	if c.GPSTracker != nil {
		t := *c.GPSTracker
		c.GPSTracker = &t
	}
	return c
}

// Record renders the car back into the raw shape the resolver reads, so a
// canonical car can be echoed through the same normalization path.
func (c Car) Record() map[string]any {
	rec := map[string]any{
		"id":               c.ID,
		"carId":            c.CarID,
		"regNum":           c.RegNum,
		"hospitalId":       c.HospitalID,
		"hospitalName":     c.HospitalName,
		"medInstitutionId": c.MedInstitutionID,
	}
	if c.GPSTracker != nil {
		rec["gpsTracker"] = *c.GPSTracker
	}
	if c.PositionSource == PositionBackend && !c.Position.IsZero() {
		rec["position"] = []any{c.Position[0], c.Position[1]}
	}
	return rec
}

// User is a staff account.
type User struct {
	ID               string `json:"id"`
	UserID           string `json:"userId"`
	Login            string `json:"login"`
	HospitalID       string `json:"hospitalId"`
	MedInstitutionID string `json:"medInstitutionId"`
	HospitalName     string `json:"hospitalName"`
	Role             int    `json:"role"`
	IsRemoved        bool   `json:"isRemoved"`
}

func (u User) Unassigned() bool { return u.HospitalID == "" }
func (u User) GroupKey() string { return groupKey(u.HospitalID) }

// Record renders the user back into its raw shape.
func (u User) Record() map[string]any {
	return map[string]any{
		"id":               u.ID,
		"userId":           u.UserID,
		"login":            u.Login,
		"hospitalId":       u.HospitalID,
		"medInstitutionId": u.MedInstitutionID,
		"hospitalName":     u.HospitalName,
		"role":             float64(u.Role),
		"isRemoved":        u.IsRemoved,
	}
}

func groupKey(hospitalID string) string {
	if strings.TrimSpace(hospitalID) == "" {
		return NoHospital
	}
	return hospitalID
}

// StringPtr returns a pointer to a copy of s, or nil when s is blank.
func StringPtr(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
