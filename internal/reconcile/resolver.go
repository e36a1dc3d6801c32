package reconcile

import (
	"strings"

	"dispatch-dashboard/internal/model"
	"dispatch-dashboard/internal/records"
)

// Resolver joins cars and users to a fixed HospitalOption list. Build a new
// one whenever the list changes.
type Resolver struct {
	options []model.HospitalOption
	byID    map[string]model.HospitalOption
	byName  map[string]model.HospitalOption
}

// NewResolver indexes opts by id and by normalized name. When two options
// share a name the first one wins name matches.
func NewResolver(opts []model.HospitalOption) *Resolver {
	r := &Resolver{
		options: append([]model.HospitalOption(nil), opts...),
		byID:    make(map[string]model.HospitalOption, len(opts)),
		byName:  make(map[string]model.HospitalOption, len(opts)),
	}
	for _, opt := range opts {
		r.byID[opt.ID] = opt
		key := normalizeName(opt.Name)
		if _, taken := r.byName[key]; !taken && key != "" {
			r.byName[key] = opt
		}
	}
	return r
}

// Options returns the list the resolver was built from.
func (r *Resolver) Options() []model.HospitalOption {
	return append([]model.HospitalOption(nil), r.options...)
}

// Match applies the join precedence: exact id match on any of ids in order,
// then case-insensitive trimmed name match.
func (r *Resolver) Match(name string, ids ...string) (model.HospitalOption, bool) {
	for _, id := range ids {
		if id == "" {
			continue
		}
		if opt, ok := r.byID[id]; ok {
			return opt, true
		}
	}
	if key := normalizeName(name); key != "" {
		if opt, ok := r.byName[key]; ok {
			return opt, true
		}
	}
	return model.HospitalOption{}, false
}

// Car normalizes a raw car record. The result always carries a position,
// either backend-supplied or synthesized from the car's identifier.
func (r *Resolver) Car(rec records.Record) model.Car {
	id, _ := records.ID(rec, CarIDField)
	carID := records.String(rec, CarNumberField)
	if carID == "" {
		carID = id
	}
	car := model.Car{
		ID:         id,
		CarID:      carID,
		RegNum:     records.String(rec, RegNumField),
		GPSTracker: model.StringPtr(records.String(rec, TrackerField)),
	}
	car.HospitalID, car.MedInstitutionID, car.HospitalName = r.join(
		records.String(rec, MemberHospitalNameField),
		records.String(rec, MemberHospitalIDField),
	)

	if pos, ok := ExplicitPosition(rec); ok {
		car.Position = pos
		car.PositionSource = model.PositionBackend
	} else {
		car.Position = Synthesize(Seed(id, car.RegNum))
		car.PositionSource = model.PositionSynthesized
	}
	return car
}

// User normalizes a raw user record. Passwords are never carried over.
func (r *Resolver) User(rec records.Record) model.User {
	id, _ := records.ID(rec, UserIDField)
	userID := records.String(rec, UserNumberField)
	if userID == "" {
		userID = id
	}
	u := model.User{
		ID:        id,
		UserID:    userID,
		Login:     records.String(rec, LoginField),
		Role:      records.Int(rec, RoleField, 0),
		IsRemoved: records.Bool(rec, RemovedField),
	}
	u.HospitalID, u.MedInstitutionID, u.HospitalName = r.join(
		records.String(rec, MemberHospitalNameField),
		records.String(rec, MemberHospitalIDField),
	)
	return u
}

// RejoinCar re-runs hospital resolution on a canonical car. It is idempotent
// for an unchanged option list and never touches the position.
func (r *Resolver) RejoinCar(c model.Car) model.Car {
	c.HospitalID, c.MedInstitutionID, c.HospitalName = r.rejoin(c.HospitalName, c.HospitalID, c.MedInstitutionID)
	return c
}

// RejoinUser is RejoinCar for users.
func (r *Resolver) RejoinUser(u model.User) model.User {
	u.HospitalID, u.MedInstitutionID, u.HospitalName = r.rejoin(u.HospitalName, u.HospitalID, u.MedInstitutionID)
	return u
}

func (r *Resolver) join(rawName, rawID string) (hospitalID, medInstitutionID, hospitalName string) {
	if opt, ok := r.Match(rawName, rawID); ok {
		return opt.ID, opt.ID, opt.Name
	}
	return "", rawID, rawName
}

func (r *Resolver) rejoin(name, hospitalID, medInstitutionID string) (string, string, string) {
	if opt, ok := r.Match(name, hospitalID, medInstitutionID); ok {
		return opt.ID, opt.ID, opt.Name
	}
	ref := medInstitutionID
	if ref == "" {
		ref = hospitalID
	}
	return "", ref, name
}

func normalizeName(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
