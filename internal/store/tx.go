package store

import "dispatch-dashboard/internal/model"

// Tx is a staged change set handed to Update callbacks.
type Tx struct {
	st     *state
	change Change
}

// Cascade lists what a hospital removal took with it.
type Cascade struct {
	Hospital      model.HospitalOption
	Cars          []model.Car
	Users         []model.User
	FilterCleared bool
}

func (tx *Tx) ReplaceHospitals(opts []model.HospitalOption) {
	tx.st.hospitals.replaceAll(opts)
	tx.change.Hospitals = true
	tx.syncFilter()
}

func (tx *Tx) ReplaceCars(cars []model.Car) {
	clones := make([]model.Car, len(cars))
	for i, c := range cars {
		clones[i] = c.Clone()
	}
	tx.st.cars.replaceAll(clones)
	tx.change.Cars = true
}

func (tx *Tx) ReplaceUsers(users []model.User) {
	tx.st.users.replaceAll(users)
	tx.change.Users = true
}

// UpsertHospital replaces by id or appends; it reports whether it replaced.
func (tx *Tx) UpsertHospital(opt model.HospitalOption) bool {
	tx.change.Hospitals = true
	replaced := tx.st.hospitals.upsert(opt)
	tx.syncFilter()
	return replaced
}

// syncFilter refreshes the selected hospitals from the hospital list and
// drops any no longer in it.
func (tx *Tx) syncFilter() {
	selected := tx.st.filter.Hospitals
	if len(selected) == 0 {
		return
	}
	kept := make([]model.HospitalOption, 0, len(selected))
	changed := false
	for _, h := range selected {
		cur, ok := tx.st.hospitals.get(h.ID)
		if !ok {
			changed = true
			continue
		}
		changed = changed || cur != h
		kept = append(kept, cur)
	}
	if !changed {
		return
	}
	if len(kept) == 0 {
		kept = nil
	}
	tx.st.filter.Hospitals = kept
	tx.change.Filter = true
}

func (tx *Tx) UpsertCar(c model.Car) bool {
	tx.change.Cars = true
	return tx.st.cars.upsert(c.Clone())
}

func (tx *Tx) UpsertUser(u model.User) bool {
	tx.change.Users = true
	return tx.st.users.upsert(u)
}

func (tx *Tx) RemoveCar(id string) bool {
	if _, ok := tx.st.cars.remove(id); !ok {
		return false
	}
	tx.change.Cars = true
	return true
}

func (tx *Tx) RemoveUser(id string) bool {
	if _, ok := tx.st.users.remove(id); !ok {
		return false
	}
	tx.change.Users = true
	return true
}

// RemoveHospital removes the hospital, every car and user resolved to it,
// and clears the active filter if it selected that hospital.
func (tx *Tx) RemoveHospital(id string) (Cascade, bool) {
	opt, ok := tx.st.hospitals.remove(id)
	if !ok {
		return Cascade{}, false
	}
	tx.change.Hospitals = true
	res := Cascade{Hospital: opt}
	res.Cars = tx.st.cars.removeWhere(func(c model.Car) bool { return c.HospitalID == id })
	if len(res.Cars) > 0 {
		tx.change.Cars = true
	}
	res.Users = tx.st.users.removeWhere(func(u model.User) bool { return u.HospitalID == id })
	if len(res.Users) > 0 {
		tx.change.Users = true
	}
	if tx.st.filter.References(id) {
		tx.st.filter = Filter{}
		tx.change.Filter = true
		res.FilterCleared = true
	}
	return res, true
}

func (tx *Tx) SetFilter(f Filter) {
	tx.st.filter = f.clone()
	tx.change.Filter = true
}

func (tx *Tx) Hospitals() []model.HospitalOption { return tx.st.hospitals.snapshot(nil) }
func (tx *Tx) Cars() []model.Car                 { return tx.st.cars.snapshot(model.Car.Clone) }
func (tx *Tx) Users() []model.User               { return tx.st.users.snapshot(nil) }

func (tx *Tx) Hospital(id string) (model.HospitalOption, bool) { return tx.st.hospitals.get(id) }

func (tx *Tx) Car(id string) (model.Car, bool) {
	c, ok := tx.st.cars.get(id)
	return c.Clone(), ok
}

func (tx *Tx) User(id string) (model.User, bool) { return tx.st.users.get(id) }

func (tx *Tx) Filter() Filter { return tx.st.filter.clone() }
