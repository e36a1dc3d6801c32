// Package store owns the canonical hospital, car and user collections and
// the groupings derived from them.
//
// Callers never mutate collections directly: every change goes through
// Update (or one of the single-operation helpers built on it), which applies
// the change to a private copy, recomputes the by-hospital groupings for the
// kinds it touched and swaps the result in. A failed Update leaves the store
// exactly as it was.
package store

import (
	"sort"
	"strings"
	"sync"

	"dispatch-dashboard/internal/model"
)

// Change describes a committed Update.
type Change struct {
	Version   uint64
	Hospitals bool
	Cars      bool
	Users     bool
	Filter    bool
}

// Listener is notified after every committed Update, outside the store lock.
type Listener func(Change)

// Snapshot is a deep copy of the store at one version.
type Snapshot struct {
	Version         uint64                  `json:"version"`
	Hospitals       []model.HospitalOption  `json:"hospitals"`
	Cars            []model.Car             `json:"cars"`
	Users           []model.User            `json:"users"`
	CarsByHospital  map[string][]model.Car  `json:"carsByHospital"`
	UsersByHospital map[string][]model.User `json:"usersByHospital"`
	Filter          Filter                  `json:"filter"`
}

type state struct {
	hospitals *collection[model.HospitalOption]
	cars      *collection[model.Car]
	users     *collection[model.User]
	filter    Filter
}

func newState() *state {
	return &state{
		hospitals: newCollection(func(h model.HospitalOption) string { return h.ID }),
		cars:      newCollection(func(c model.Car) string { return c.ID }),
		users:     newCollection(func(u model.User) string { return u.ID }),
	}
}

func (st *state) clone() *state {
	out := newState()
	out.hospitals.replaceAll(st.hospitals.items)
	out.cars.replaceAll(st.cars.snapshot(model.Car.Clone))
	out.users.replaceAll(st.users.items)
	out.filter = st.filter.clone()
	return out
}

// Store is safe for concurrent use.
type Store struct {
	mu              sync.RWMutex
	st              *state
	carsByHospital  map[string][]model.Car
	usersByHospital map[string][]model.User
	version         uint64

	lmu       sync.Mutex
	listeners []Listener
}

// New returns an empty store.
func New() *Store {
	return &Store{
		st:              newState(),
		carsByHospital:  map[string][]model.Car{},
		usersByHospital: map[string][]model.User{},
	}
}

// OnChange registers l for every committed change.
func (s *Store) OnChange(l Listener) {
	s.lmu.Lock()
	s.listeners = append(s.listeners, l)
	s.lmu.Unlock()
}

// Update runs fn against a private copy of the store. If fn returns an error
// nothing is applied; otherwise the copy replaces the live state, groupings
// for touched kinds are recomputed and listeners are notified.
func (s *Store) Update(fn func(tx *Tx) error) error {
	s.mu.Lock()
	tx := &Tx{st: s.st.clone()}
	if err := fn(tx); err != nil {
		s.mu.Unlock()
		return err
	}
	if !tx.change.Hospitals && !tx.change.Cars && !tx.change.Users && !tx.change.Filter {
		s.mu.Unlock()
		return nil
	}
	s.st = tx.st
	if tx.change.Cars {
		s.carsByHospital = groupBy(s.st.cars.items, model.Car.GroupKey, nil)
	}
	if tx.change.Users {
		s.usersByHospital = groupBy(s.st.users.items, model.User.GroupKey, nil)
	}
	s.version++
	change := tx.change
	change.Version = s.version
	s.mu.Unlock()

	s.notify(change)
	return nil
}

func (s *Store) notify(c Change) {
	s.lmu.Lock()
	ls := append([]Listener(nil), s.listeners...)
	s.lmu.Unlock()
	for _, l := range ls {
		l(c)
	}
}

// ReplaceHospitals swaps the hospital list.
func (s *Store) ReplaceHospitals(opts []model.HospitalOption) {
	_ = s.Update(func(tx *Tx) error { tx.ReplaceHospitals(opts); return nil })
}

// ReplaceCars swaps the car collection.
func (s *Store) ReplaceCars(cars []model.Car) {
	_ = s.Update(func(tx *Tx) error { tx.ReplaceCars(cars); return nil })
}

// ReplaceUsers swaps the user collection.
func (s *Store) ReplaceUsers(users []model.User) {
	_ = s.Update(func(tx *Tx) error { tx.ReplaceUsers(users); return nil })
}

func (s *Store) UpsertHospital(opt model.HospitalOption) {
	_ = s.Update(func(tx *Tx) error { tx.UpsertHospital(opt); return nil })
}

func (s *Store) UpsertCar(c model.Car) {
	_ = s.Update(func(tx *Tx) error { tx.UpsertCar(c); return nil })
}

func (s *Store) UpsertUser(u model.User) {
	_ = s.Update(func(tx *Tx) error { tx.UpsertUser(u); return nil })
}

// RemoveCar reports whether a car with id existed.
func (s *Store) RemoveCar(id string) bool {
	var ok bool
	_ = s.Update(func(tx *Tx) error { ok = tx.RemoveCar(id); return nil })
	return ok
}

// RemoveUser reports whether a user with id existed.
func (s *Store) RemoveUser(id string) bool {
	var ok bool
	_ = s.Update(func(tx *Tx) error { ok = tx.RemoveUser(id); return nil })
	return ok
}

// RemoveHospital removes the hospital and cascades to its members.
func (s *Store) RemoveHospital(id string) (Cascade, bool) {
	var (
		res Cascade
		ok  bool
	)
	_ = s.Update(func(tx *Tx) error { res, ok = tx.RemoveHospital(id); return nil })
	return res, ok
}

// SetFilter replaces the active filter.
func (s *Store) SetFilter(f Filter) {
	_ = s.Update(func(tx *Tx) error { tx.SetFilter(f); return nil })
}

// ClearFilter resets the active filter.
func (s *Store) ClearFilter() {
	_ = s.Update(func(tx *Tx) error { tx.SetFilter(Filter{}); return nil })
}

// Version is bumped on every committed change.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

func (s *Store) Hospitals() []model.HospitalOption {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.hospitals.snapshot(nil)
}

func (s *Store) Cars() []model.Car {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.cars.snapshot(model.Car.Clone)
}

func (s *Store) Users() []model.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.users.snapshot(nil)
}

func (s *Store) Hospital(id string) (model.HospitalOption, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.hospitals.get(id)
}

func (s *Store) Car(id string) (model.Car, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.st.cars.get(id)
	return c.Clone(), ok
}

func (s *Store) User(id string) (model.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.users.get(id)
}

// CarsByHospital returns a copy of the car grouping.
func (s *Store) CarsByHospital() map[string][]model.Car {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyGroups(s.carsByHospital, model.Car.Clone)
}

// UsersByHospital returns a copy of the user grouping.
func (s *Store) UsersByHospital() map[string][]model.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyGroups(s.usersByHospital, nil)
}

func (s *Store) Filter() Filter {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.filter.clone()
}

// FilteredCars applies the active filter to the car collection.
func (s *Store) FilteredCars() []model.Car {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.filter.Apply(s.st.cars.items)
}

// SuggestHospitals returns up to SuggestionLimit hospitals whose name
// contains query, case-insensitively.
func (s *Store) SuggestHospitals(query string) []model.HospitalOption {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.HospitalOption
	for _, h := range s.st.hospitals.items {
		if strings.Contains(strings.ToLower(h.Name), q) {
			out = append(out, h)
			if len(out) == SuggestionLimit {
				break
			}
		}
	}
	return out
}

// Snapshot returns a deep copy of everything the map renders.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		Version:         s.version,
		Hospitals:       s.st.hospitals.snapshot(nil),
		Cars:            s.st.cars.snapshot(model.Car.Clone),
		Users:           s.st.users.snapshot(nil),
		CarsByHospital:  copyGroups(s.carsByHospital, model.Car.Clone),
		UsersByHospital: copyGroups(s.usersByHospital, nil),
		Filter:          s.st.filter.clone(),
	}
}

// Counts returns collection sizes and the number of unassigned cars/users.
func (s *Store) Counts() Counts {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Counts{
		Hospitals:       s.st.hospitals.size(),
		Cars:            s.st.cars.size(),
		Users:           s.st.users.size(),
		UnassignedCars:  len(s.carsByHospital[model.NoHospital]),
		UnassignedUsers: len(s.usersByHospital[model.NoHospital]),
	}
}

// Counts summarizes the store for metrics.
type Counts struct {
	Hospitals       int `json:"hospitals"`
	Cars            int `json:"cars"`
	Users           int `json:"users"`
	UnassignedCars  int `json:"unassignedCars"`
	UnassignedUsers int `json:"unassignedUsers"`
}

// GroupKeys returns the grouping keys in sorted order.
func GroupKeys[T any](groups map[string][]T) []string {
	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func copyGroups[T any](in map[string][]T, clone func(T) T) map[string][]T {
	out := make(map[string][]T, len(in))
	for k, items := range in {
		cp := make([]T, len(items))
		for i, it := range items {
			if clone != nil {
				it = clone(it)
			}
			cp[i] = it
		}
		out[k] = cp
	}
	return out
}
