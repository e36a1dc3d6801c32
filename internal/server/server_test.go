package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"dispatch-dashboard/internal/metrics"
	"dispatch-dashboard/internal/model"
	"dispatch-dashboard/internal/mutation"
	"dispatch-dashboard/internal/session"
	"dispatch-dashboard/internal/store"
)

// stubBackend answers fetches with a fixed fleet and every mutation with
// resp. It doubles as the Authenticator.
type stubBackend struct {
	mu       sync.Mutex
	login    any
	register any
	resp     any
	ops      []string
}

func (b *stubBackend) answer(op string) (any, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ops = append(b.ops, op)
	return b.resp, nil
}

func (b *stubBackend) Login(context.Context, string, string) (any, error) { return b.login, nil }
func (b *stubBackend) Register(context.Context, string, string) (any, error) {
	return b.register, nil
}

func (b *stubBackend) FetchHospitals(context.Context) (any, error) {
	return []any{
		map[string]any{"id": "h1", "name": "City Hospital"},
		map[string]any{"id": "h2", "name": "North Clinic"},
	}, nil
}

func (b *stubBackend) FetchCars(context.Context) (any, error) {
	return map[string]any{"data": []any{
		map[string]any{"id": "c1", "regNum": "A123", "hospitalId": "h1"},
		map[string]any{"id": "c2", "regNum": "B456", "hospitalId": "h2", "gpsTracker": "T-9"},
		map[string]any{"id": "c3", "regNum": "A777"},
	}}, nil
}

func (b *stubBackend) FetchUsers(context.Context) (any, error) {
	return []any{map[string]any{"id": "u1", "login": "alice", "hospitalId": "h1"}}, nil
}

func (b *stubBackend) CreateCar(context.Context, map[string]any) (any, error) {
	return b.answer("createCar")
}
func (b *stubBackend) UpdateCar(context.Context, string, map[string]any) (any, error) {
	return b.answer("updateCar")
}
func (b *stubBackend) DeleteCar(context.Context, string) (any, error) { return b.answer("deleteCar") }
func (b *stubBackend) BindTracker(context.Context, string, string) (any, error) {
	return b.answer("bindTracker")
}
func (b *stubBackend) UnbindTracker(context.Context, string) (any, error) {
	return b.answer("unbindTracker")
}
func (b *stubBackend) CreateUser(context.Context, map[string]any) (any, error) {
	return b.answer("createUser")
}
func (b *stubBackend) UpdateUser(context.Context, string, map[string]any) (any, error) {
	return b.answer("updateUser")
}
func (b *stubBackend) DeleteUser(context.Context, string) (any, error) { return b.answer("deleteUser") }
func (b *stubBackend) CreateHospital(context.Context, string) (any, error) {
	return b.answer("createHospital")
}
func (b *stubBackend) UpdateHospital(context.Context, string, string) (any, error) {
	return b.answer("updateHospital")
}
func (b *stubBackend) DeleteHospital(context.Context, string) (any, error) {
	return b.answer("deleteHospital")
}

type fixture struct {
	backend  *stubBackend
	store    *store.Store
	sessions *session.Memory
	metrics  *metrics.Collector
	handler  http.Handler
}

func newFixture(t *testing.T, loaded bool) *fixture {
	t.Helper()
	b := &stubBackend{login: map[string]any{"data": map[string]any{"token": "tok-1"}}}
	st := store.New()
	coord := mutation.New(b, st)
	if loaded {
		if err := coord.Load(context.Background()); err != nil {
			t.Fatalf("Load: %v", err)
		}
	}
	m, err := metrics.New(prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	sessions := session.NewMemory()
	srv := New(Deps{Store: st, Coordinator: coord, Auth: b, Sessions: sessions, Metrics: m})
	return &fixture{backend: b, store: st, sessions: sessions, metrics: m, handler: srv.Handler()}
}

func (f *fixture) do(t *testing.T, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil && rec.Header().Get("Content-Type") == "application/json" {
		t.Fatalf("%s %s: decode %q: %v", method, path, rec.Body.String(), err)
	}
	return rec, out
}

func TestLoginStoresTokenAndLoads(t *testing.T) {
	f := newFixture(t, false)
	rec, body := f.do(t, http.MethodPost, "/api/login", `{"login":"ops","password":"secret"}`)
	if rec.Code != http.StatusOK || body["isSuccess"] != true {
		t.Fatalf("status = %d body = %v", rec.Code, body)
	}
	tok, _ := f.sessions.Token(context.Background())
	if tok != "tok-1" {
		t.Fatalf("token = %q", tok)
	}
	if got := len(f.store.Cars()); got != 3 {
		t.Fatalf("cars = %d", got)
	}
	counts := body["data"].(map[string]any)
	if counts["unassignedCars"] != float64(1) {
		t.Fatalf("counts = %v", counts)
	}
}

func TestLoginRejected(t *testing.T) {
	f := newFixture(t, false)
	f.backend.login = map[string]any{"isSuccess": false, "errorMessage": "bad credentials", "errorCode": "AUTH"}
	rec, body := f.do(t, http.MethodPost, "/api/login", `{"login":"ops","password":"nope"}`)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", rec.Code)
	}
	if body["isSuccess"] != false || body["errorMessage"] != "bad credentials" || body["errorCode"] != "AUTH" {
		t.Fatalf("body = %v", body)
	}
	if f.store.Version() != 0 {
		t.Fatal("store loaded after rejected login")
	}

	rec, _ = f.do(t, http.MethodPost, "/api/login", `{"login":"","password":"x"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing login status = %d", rec.Code)
	}
}

func TestRegister(t *testing.T) {
	f := newFixture(t, false)
	f.backend.register = map[string]any{"isSuccess": true}
	rec, body := f.do(t, http.MethodPost, "/api/register", `{"login":" bob ","password":"pw"}`)
	if rec.Code != http.StatusCreated || body["data"].(map[string]any)["login"] != "bob" {
		t.Fatalf("status = %d body = %v", rec.Code, body)
	}
	if tok, _ := f.sessions.Token(context.Background()); tok != "" {
		t.Fatalf("register must not log in, token = %q", tok)
	}

	f.backend.register = map[string]any{"isSuccess": false, "errorMessage": "login taken"}
	rec, body = f.do(t, http.MethodPost, "/api/register", `{"login":"bob","password":"pw"}`)
	if rec.Code != http.StatusBadGateway || body["errorMessage"] != "login taken" {
		t.Fatalf("status = %d body = %v", rec.Code, body)
	}
}

func TestErrorStatuses(t *testing.T) {
	f := newFixture(t, true)
	f.backend.resp = map[string]any{"isSuccess": false, "errorMessage": "plate taken", "errorCode": "DUP"}

	cases := []struct {
		name   string
		method string
		path   string
		body   string
		status int
	}{
		{"validation", http.MethodPost, "/api/cars", `{"regNum":"  "}`, http.StatusBadRequest},
		{"malformed body", http.MethodPost, "/api/cars", `{"regNum":`, http.StatusBadRequest},
		{"unknown car", http.MethodPut, "/api/cars/missing", `{"regNum":"X1"}`, http.StatusNotFound},
		{"get unknown car", http.MethodGet, "/api/cars/missing", ``, http.StatusNotFound},
		{"backend failure", http.MethodPost, "/api/cars", `{"regNum":"A123"}`, http.StatusBadGateway},
		{"unknown user", http.MethodDelete, "/api/users/nobody", ``, http.StatusNotFound},
		{"blank hospital", http.MethodPost, "/api/hospitals", `{"name":""}`, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec, body := f.do(t, tc.method, tc.path, tc.body)
			if rec.Code != tc.status {
				t.Fatalf("status = %d, want %d (%v)", rec.Code, tc.status, body)
			}
			if body["isSuccess"] != false || body["errorMessage"] == "" {
				t.Fatalf("failure shape = %v", body)
			}
		})
	}

	_, body := f.do(t, http.MethodPost, "/api/cars", `{"regNum":"A123"}`)
	if body["errorMessage"] != "plate taken" || body["errorCode"] != "DUP" {
		t.Fatalf("backend failure body = %v", body)
	}
	if got := len(f.store.Cars()); got != 3 {
		t.Fatalf("cars = %d after failed create", got)
	}
}

func TestCreateCarCommits(t *testing.T) {
	f := newFixture(t, true)
	f.backend.resp = map[string]any{"data": map[string]any{"id": "c9"}}
	rec, body := f.do(t, http.MethodPost, "/api/cars", `{"regNum":"Z900","hospitalId":"h2"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d body = %v", rec.Code, body)
	}
	if ops := f.backend.ops; len(ops) != 1 || ops[0] != "createCar" {
		t.Fatalf("backend ops = %v", ops)
	}
	car, ok := f.store.Car("c9")
	if !ok || car.RegNum != "Z900" || car.HospitalID != "h2" {
		t.Fatalf("car = %+v ok = %v", car, ok)
	}

	_, body = f.do(t, http.MethodGet, "/api/phase/car/c9", ``)
	if phase := body["data"].(map[string]any)["phase"]; phase != string(mutation.Committed) {
		t.Fatalf("phase = %v", phase)
	}
}

func TestFilterNarrowsCars(t *testing.T) {
	f := newFixture(t, true)

	rec, _ := f.do(t, http.MethodPut, "/api/filter", `{"hospitalIds":["h1","ghost"]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := f.store.Filter(); len(got.Hospitals) != 1 || got.Hospitals[0].ID != "h1" {
		t.Fatalf("filter = %+v", got)
	}
	_, body := f.do(t, http.MethodGet, "/api/cars", ``)
	if cars := body["data"].([]any); len(cars) != 1 || cars[0].(map[string]any)["id"] != "c1" {
		t.Fatalf("filtered cars = %v", body["data"])
	}

	_, body = f.do(t, http.MethodGet, "/api/cars?q=a", ``)
	if cars := body["data"].([]any); len(cars) != 2 {
		t.Fatalf("ad-hoc query cars = %v", cars)
	}

	f.do(t, http.MethodDelete, "/api/filter", ``)
	if f.store.Filter().Active() {
		t.Fatal("filter still active")
	}
}

func TestSuggestHospitals(t *testing.T) {
	f := newFixture(t, true)
	_, body := f.do(t, http.MethodGet, "/api/hospitals/suggest?q=north", ``)
	got := body["data"].([]any)
	if len(got) != 1 || got[0].(map[string]any)["id"] != "h2" {
		t.Fatalf("suggestions = %v", got)
	}
}

func TestDeleteHospitalReturnsCascade(t *testing.T) {
	f := newFixture(t, true)
	f.backend.resp = map[string]any{"isSuccess": true}
	rec, body := f.do(t, http.MethodDelete, "/api/hospitals/h2", ``)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %v", rec.Code, body)
	}
	if _, ok := f.store.Car("c2"); ok {
		t.Fatal("c2 should have been removed with its hospital")
	}
	if _, ok := f.store.Hospital("h2"); ok {
		t.Fatal("h2 still present")
	}
}

func TestRequestsCountedByRoute(t *testing.T) {
	f := newFixture(t, true)
	f.do(t, http.MethodGet, "/api/cars/c1", ``)
	f.do(t, http.MethodGet, "/api/cars/c2", ``)
	f.do(t, http.MethodGet, "/nowhere", ``)

	if got := testutil.ToFloat64(f.metrics.HTTPRequests.WithLabelValues("GET", "GET /api/cars/{id}", "200")); got != 2 {
		t.Fatalf("route count = %v", got)
	}
	if got := testutil.ToFloat64(f.metrics.HTTPRequests.WithLabelValues("GET", "unmatched", "404")); got != 1 {
		t.Fatalf("unmatched count = %v", got)
	}
}

func TestStateSnapshot(t *testing.T) {
	f := newFixture(t, true)
	_, body := f.do(t, http.MethodGet, "/api/state", ``)
	snap := body["data"].(map[string]any)
	groups := snap["carsByHospital"].(map[string]any)
	if len(groups[model.NoHospital].([]any)) != 1 {
		t.Fatalf("unassigned group = %v", groups[model.NoHospital])
	}
}

func TestLogoutEmptiesStore(t *testing.T) {
	f := newFixture(t, false)
	f.do(t, http.MethodPost, "/api/login", `{"login":"ops","password":"secret"}`)
	f.do(t, http.MethodPut, "/api/filter", `{"hospitalIds":["h1"]}`)
	before := f.store.Version()

	rec, _ := f.do(t, http.MethodPost, "/api/logout", ``)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if tok, _ := f.sessions.Token(context.Background()); tok != "" {
		t.Fatalf("token = %q", tok)
	}
	if got := f.store.Version(); got != before+1 {
		t.Fatalf("logout should commit one change, version %d -> %d", before, got)
	}
	if c := f.store.Counts(); c != (store.Counts{}) || f.store.Filter().Active() {
		t.Fatalf("store not emptied: counts = %+v filter = %+v", c, f.store.Filter())
	}

	_, body := f.do(t, http.MethodGet, "/api/state", ``)
	if cars := body["data"].(map[string]any)["cars"]; cars != nil && len(cars.([]any)) != 0 {
		t.Fatalf("state still serves cars: %v", cars)
	}
}
