package store

import (
	"errors"
	"reflect"
	"testing"

	"dispatch-dashboard/internal/model"
)

func tracker(s string) *string { return &s }

func seeded(t *testing.T) *Store {
	t.Helper()
	s := New()
	s.ReplaceHospitals([]model.HospitalOption{{ID: "h1", Name: "City Hospital"}, {ID: "h2", Name: "Regional"}})
	s.ReplaceCars([]model.Car{
		{ID: "c1", RegNum: "A123", HospitalID: "h1", HospitalName: "City Hospital", GPSTracker: tracker("T-1")},
		{ID: "c2", RegNum: "B456", HospitalID: "h2", HospitalName: "Regional"},
		{ID: "c3", RegNum: "C789"},
	})
	s.ReplaceUsers([]model.User{
		{ID: "u1", Login: "ann", HospitalID: "h1"},
		{ID: "u2", Login: "bob"},
	})
	return s
}

func ids[T any](items []T, id func(T) string) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, id(it))
	}
	return out
}

func carID(c model.Car) string { return c.ID }

func TestGroupingByResolvedHospital(t *testing.T) {
	s := seeded(t)
	groups := s.CarsByHospital()
	if got := GroupKeys(groups); !reflect.DeepEqual(got, []string{"h1", "h2", model.NoHospital}) {
		t.Fatalf("group keys = %v", got)
	}
	if got := ids(groups[model.NoHospital], carID); !reflect.DeepEqual(got, []string{"c3"}) {
		t.Fatalf("none bucket = %v", got)
	}
	users := s.UsersByHospital()
	if len(users["h1"]) != 1 || len(users[model.NoHospital]) != 1 {
		t.Fatalf("user groups = %v", users)
	}
}

func TestGroupingKeyIgnoresNameFormatting(t *testing.T) {
	s := New()
	s.ReplaceCars([]model.Car{
		{ID: "c1", HospitalID: "h1", HospitalName: "City Hospital"},
		{ID: "c2", HospitalID: "h1", HospitalName: "city hospital "},
	})
	if groups := s.CarsByHospital(); len(groups) != 1 || len(groups["h1"]) != 2 {
		t.Fatalf("groups fragmented: %v", groups)
	}
}

func TestUpsertReplacesByIDOrAppends(t *testing.T) {
	s := seeded(t)
	s.UpsertCar(model.Car{ID: "c3", RegNum: "C789", HospitalID: "h2"})
	s.UpsertCar(model.Car{ID: "c4", RegNum: "D000", HospitalID: "h2"})

	if got := ids(s.Cars(), carID); !reflect.DeepEqual(got, []string{"c1", "c2", "c3", "c4"}) {
		t.Fatalf("order = %v", got)
	}
	groups := s.CarsByHospital()
	if _, ok := groups[model.NoHospital]; ok {
		t.Fatal("none bucket should be gone")
	}
	if got := ids(groups["h2"], carID); !reflect.DeepEqual(got, []string{"c2", "c3", "c4"}) {
		t.Fatalf("h2 bucket = %v", got)
	}
}

func TestRemove(t *testing.T) {
	s := seeded(t)
	v := s.Version()
	if !s.RemoveCar("c2") {
		t.Fatal("RemoveCar(c2) = false")
	}
	if s.RemoveCar("c2") {
		t.Fatal("second remove should report false")
	}
	if s.Version() != v+1 {
		t.Fatalf("version = %d, want %d", s.Version(), v+1)
	}
	if _, ok := s.CarsByHospital()["h2"]; ok {
		t.Fatal("h2 bucket should be empty")
	}
	if _, ok := s.Car("c3"); !ok {
		t.Fatal("index broken after remove")
	}
	if !s.RemoveUser("u2") || len(s.Users()) != 1 {
		t.Fatalf("RemoveUser failed: %v", s.Users())
	}
}

func TestRemoveHospitalCascades(t *testing.T) {
	s := seeded(t)
	s.SetFilter(Filter{Hospitals: []model.HospitalOption{{ID: "h1", Name: "City Hospital"}}, Query: "a"})

	res, ok := s.RemoveHospital("h1")
	if !ok {
		t.Fatal("RemoveHospital(h1) = false")
	}
	if got := ids(res.Cars, carID); !reflect.DeepEqual(got, []string{"c1"}) {
		t.Fatalf("removed cars = %v", got)
	}
	if len(res.Users) != 1 || res.Users[0].ID != "u1" || !res.FilterCleared {
		t.Fatalf("cascade = %+v", res)
	}
	snap := s.Snapshot()
	if got := ids(snap.Cars, carID); !reflect.DeepEqual(got, []string{"c2", "c3"}) {
		t.Fatalf("remaining cars = %v", got)
	}
	if _, ok := snap.CarsByHospital["h1"]; ok {
		t.Fatal("car grouping still has h1")
	}
	if _, ok := snap.UsersByHospital["h1"]; ok {
		t.Fatal("user grouping still has h1")
	}
	if snap.Filter.Active() {
		t.Fatalf("filter not cleared: %+v", snap.Filter)
	}
}

func TestRemoveHospitalKeepsUnrelatedFilter(t *testing.T) {
	s := seeded(t)
	s.SetFilter(Filter{Hospitals: []model.HospitalOption{{ID: "h2", Name: "Regional"}}})
	res, _ := s.RemoveHospital("h1")
	if res.FilterCleared || !s.Filter().References("h2") {
		t.Fatalf("unrelated filter changed: %+v", s.Filter())
	}
}

func TestFilterFollowsHospitalList(t *testing.T) {
	s := seeded(t)
	s.SetFilter(Filter{Hospitals: []model.HospitalOption{{ID: "h1", Name: "City Hospital"}, {ID: "h2", Name: "Regional"}}})

	var changes []Change
	s.OnChange(func(c Change) { changes = append(changes, c) })
	s.UpsertHospital(model.HospitalOption{ID: "h1", Name: "City Hospital No. 1"})
	want := []model.HospitalOption{{ID: "h1", Name: "City Hospital No. 1"}, {ID: "h2", Name: "Regional"}}
	if got := s.Snapshot().Filter.Hospitals; !reflect.DeepEqual(got, want) {
		t.Fatalf("filter after rename = %+v", got)
	}
	if len(changes) != 1 || !changes[0].Filter || !changes[0].Hospitals {
		t.Fatalf("changes = %+v", changes)
	}

	s.ReplaceHospitals([]model.HospitalOption{{ID: "h2", Name: "Regional"}})
	if got := s.Filter().Hospitals; len(got) != 1 || got[0].ID != "h2" {
		t.Fatalf("filter after reload = %+v", got)
	}

	s.ReplaceHospitals(nil)
	if f := s.Filter(); f.Hospitals != nil || f.Active() {
		t.Fatalf("filter should select nothing: %+v", f)
	}
}

func TestUnrelatedHospitalChangeKeepsFilter(t *testing.T) {
	s := seeded(t)
	s.SetFilter(Filter{Hospitals: []model.HospitalOption{{ID: "h2", Name: "Regional"}}})
	var changes []Change
	s.OnChange(func(c Change) { changes = append(changes, c) })
	s.UpsertHospital(model.HospitalOption{ID: "h3", Name: "Field Station"})
	if len(changes) != 1 || changes[0].Filter {
		t.Fatalf("changes = %+v", changes)
	}
}

func TestFailedUpdateLeavesStateUntouched(t *testing.T) {
	s := seeded(t)
	before := s.Snapshot()
	var notified int
	s.OnChange(func(Change) { notified++ })

	boom := errors.New("boom")
	err := s.Update(func(tx *Tx) error {
		tx.UpsertCar(model.Car{ID: "c9", HospitalID: "h1"})
		tx.RemoveHospital("h2")
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Update err = %v", err)
	}
	if after := s.Snapshot(); !reflect.DeepEqual(before, after) {
		t.Fatalf("snapshot changed:\nbefore %+v\nafter  %+v", before, after)
	}
	if notified != 0 {
		t.Fatalf("listeners notified %d times", notified)
	}
}

func TestUpdateBatchesIntoOneChange(t *testing.T) {
	s := seeded(t)
	var changes []Change
	s.OnChange(func(c Change) { changes = append(changes, c) })

	_ = s.Update(func(tx *Tx) error {
		tx.UpsertHospital(model.HospitalOption{ID: "h3", Name: "New"})
		tx.UpsertUser(model.User{ID: "u3", HospitalID: "h3"})
		return nil
	})
	if len(changes) != 1 {
		t.Fatalf("changes = %d", len(changes))
	}
	c := changes[0]
	if !c.Hospitals || !c.Users || c.Cars || c.Version != s.Version() {
		t.Fatalf("change = %+v", c)
	}
}

func TestNoopUpdateDoesNotBumpVersion(t *testing.T) {
	s := seeded(t)
	v := s.Version()
	_ = s.Update(func(tx *Tx) error {
		tx.RemoveCar("missing")
		return nil
	})
	if s.Version() != v {
		t.Fatalf("version bumped by no-op")
	}
}

func TestReadsAreCopies(t *testing.T) {
	s := seeded(t)
	cars := s.Cars()
	*cars[0].GPSTracker = "tampered"
	cars[0].RegNum = "tampered"
	groups := s.CarsByHospital()
	groups["h1"][0].RegNum = "tampered"

	c, _ := s.Car("c1")
	if c.RegNum != "A123" || c.Tracker() != "T-1" {
		t.Fatalf("store mutated through a read: %+v", c)
	}
}

func TestFilteredCars(t *testing.T) {
	s := seeded(t)
	tests := []struct {
		name   string
		filter Filter
		want   []string
	}{
		{"empty", Filter{}, []string{"c1", "c2", "c3"}},
		{"hospital", Filter{Hospitals: []model.HospitalOption{{ID: "h2"}}}, []string{"c2"}},
		{"set", Filter{Hospitals: []model.HospitalOption{{ID: "h1"}, {ID: "h2"}}}, []string{"c1", "c2"}},
		{"query regnum", Filter{Query: " b4 "}, []string{"c2"}},
		{"query tracker", Filter{Query: "t-1"}, []string{"c1"}},
		{"both", Filter{Hospitals: []model.HospitalOption{{ID: "h1"}}, Query: "c7"}, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s.SetFilter(tt.filter)
			if got := ids(s.FilteredCars(), carID); !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("FilteredCars = %v, want %v", got, tt.want)
			}
		})
	}
	before := len(s.Cars())
	s.ClearFilter()
	if len(s.Cars()) != before || s.Filter().Active() {
		t.Fatal("filter mutated collection or did not clear")
	}
}

func TestSuggestHospitals(t *testing.T) {
	s := New()
	var opts []model.HospitalOption
	for _, name := range []string{"City Hospital 1", "City Hospital 2", "Regional", "city clinic", "City 5", "City 6", "City 7", "City 8"} {
		opts = append(opts, model.HospitalOption{ID: name, Name: name})
	}
	s.ReplaceHospitals(opts)

	got := s.SuggestHospitals("  CITY ")
	if len(got) != SuggestionLimit {
		t.Fatalf("suggestions = %d, want %d", len(got), SuggestionLimit)
	}
	if got[0].Name != "City Hospital 1" || got[2].Name != "city clinic" {
		t.Fatalf("order = %v", got)
	}
	if s.SuggestHospitals("") != nil {
		t.Fatal("empty query should suggest nothing")
	}
}
