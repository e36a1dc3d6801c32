package server

import (
	"fmt"
	"net/http"
	"strings"

	"dispatch-dashboard/internal/logging"
	"dispatch-dashboard/internal/model"
	"dispatch-dashboard/internal/mutation"
	"dispatch-dashboard/internal/records"
	"dispatch-dashboard/internal/session"
	"dispatch-dashboard/internal/store"
)

type credentials struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

func (s *Server) credentials(w http.ResponseWriter, r *http.Request) (credentials, bool) {
	var in credentials
	if err := decode(w, r, &in); err != nil {
		s.writeError(w, r, err)
		return in, false
	}
	in.Login = strings.TrimSpace(in.Login)
	if in.Login == "" || in.Password == "" {
		s.writeError(w, r, &mutation.ValidationError{Kind: "session", Field: "login", Reason: "and password are required"})
		return in, false
	}
	return in, true
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	in, ok := s.credentials(w, r)
	if !ok {
		return
	}
	payload, err := s.Auth.Login(r.Context(), in.Login, in.Password)
	if err != nil {
		s.writeError(w, r, &mutation.RequestFailure{Op: "login", Message: err.Error(), Err: err})
		return
	}
	if info, failed := records.Failure(payload); failed {
		writeJSON(w, http.StatusUnauthorized, failure{ErrorMessage: info.Message, ErrorCode: info.Code})
		return
	}
	token, ok := session.TokenFromLogin(payload)
	if !ok {
		writeJSON(w, http.StatusBadGateway, failure{ErrorMessage: "login response carried no token"})
		return
	}
	if err := s.Sessions.SetToken(r.Context(), token); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.Logger.Info(r.Context(), "operator logged in", logging.String("login", in.Login))
	if err := s.Coordinator.Load(r.Context()); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, s.Store.Counts())
}

// handleRegister creates a backend account. It does not log the new
// account in.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	in, ok := s.credentials(w, r)
	if !ok {
		return
	}
	payload, err := s.Auth.Register(r.Context(), in.Login, in.Password)
	if err != nil {
		s.writeError(w, r, &mutation.RequestFailure{Op: "register", Message: err.Error(), Err: err})
		return
	}
	if info, failed := records.Failure(payload); failed {
		s.writeError(w, r, &mutation.RequestFailure{Op: "register", Message: info.Message, Code: info.Code})
		return
	}
	writeJSON(w, http.StatusCreated, envelope{IsSuccess: true, Data: map[string]string{"login": in.Login}})
}

// handleLogout forgets the token and empties the store so neither /api/state
// nor /ws keeps serving the previous session's data.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.Sessions.Clear(r.Context()); err != nil {
		s.writeError(w, r, err)
		return
	}
	_ = s.Store.Update(func(tx *store.Tx) error {
		tx.ReplaceHospitals(nil)
		tx.ReplaceCars(nil)
		tx.ReplaceUsers(nil)
		tx.SetFilter(store.Filter{})
		return nil
	})
	s.Logger.Info(r.Context(), "operator logged out")
	writeData(w, nil)
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	if err := s.Coordinator.Load(r.Context()); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, s.Store.Counts())
}

func (s *Server) handleRefreshPositions(w http.ResponseWriter, r *http.Request) {
	moved, err := s.Coordinator.RefreshPositions(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, map[string]int{"moved": moved})
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeData(w, s.Store.Snapshot())
}

func (s *Server) handlePhase(w http.ResponseWriter, r *http.Request) {
	key := mutation.Key(model.Kind(r.PathValue("kind")), r.PathValue("id"))
	writeData(w, map[string]string{"key": key, "phase": string(s.Coordinator.Phase(key))})
}

type filterRequest struct {
	HospitalIDs []string `json:"hospitalIds"`
	Query       string   `json:"query"`
}

// filterFrom resolves hospital ids against the store; unknown ids are
// dropped.
func (s *Server) filterFrom(ids []string, query string) store.Filter {
	f := store.Filter{Query: strings.TrimSpace(query)}
	for _, id := range ids {
		if opt, ok := s.Store.Hospital(strings.TrimSpace(id)); ok {
			f.Hospitals = append(f.Hospitals, opt)
		}
	}
	return f
}

func (s *Server) handleSetFilter(w http.ResponseWriter, r *http.Request) {
	var in filterRequest
	if err := decode(w, r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	f := s.filterFrom(in.HospitalIDs, in.Query)
	s.Store.SetFilter(f)
	writeData(w, f)
}

func (s *Server) handleClearFilter(w http.ResponseWriter, r *http.Request) {
	s.Store.ClearFilter()
	writeData(w, store.Filter{})
}

func (s *Server) handleListHospitals(w http.ResponseWriter, r *http.Request) {
	writeData(w, s.Store.Hospitals())
}

func (s *Server) handleSuggestHospitals(w http.ResponseWriter, r *http.Request) {
	writeData(w, s.Store.SuggestHospitals(r.URL.Query().Get("q")))
}

type hospitalRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleCreateHospital(w http.ResponseWriter, r *http.Request) {
	var in hospitalRequest
	if err := decode(w, r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	opt, err := s.Coordinator.CreateHospital(r.Context(), in.Name)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, envelope{IsSuccess: true, Data: opt})
}

func (s *Server) handleUpdateHospital(w http.ResponseWriter, r *http.Request) {
	var in hospitalRequest
	if err := decode(w, r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	opt, err := s.Coordinator.UpdateHospital(r.Context(), r.PathValue("id"), in.Name)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, opt)
}

func (s *Server) handleDeleteHospital(w http.ResponseWriter, r *http.Request) {
	cascade, err := s.Coordinator.DeleteHospital(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, cascade)
}

// handleListCars applies the stored filter, or an ad-hoc one when q or
// hospitalId query parameters are given.
func (s *Server) handleListCars(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if !q.Has("q") && !q.Has("hospitalId") {
		writeData(w, s.Store.FilteredCars())
		return
	}
	writeData(w, s.filterFrom(q["hospitalId"], q.Get("q")).Apply(s.Store.Cars()))
}

func (s *Server) handleGetCar(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	car, ok := s.Store.Car(id)
	if !ok {
		s.writeError(w, r, fmt.Errorf("car %q: %w", id, mutation.ErrNotFound))
		return
	}
	writeData(w, car)
}

func (s *Server) handleCreateCar(w http.ResponseWriter, r *http.Request) {
	var in mutation.CarInput
	if err := decode(w, r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	car, err := s.Coordinator.CreateCar(r.Context(), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, envelope{IsSuccess: true, Data: car})
}

func (s *Server) handleUpdateCar(w http.ResponseWriter, r *http.Request) {
	var in mutation.CarInput
	if err := decode(w, r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	car, err := s.Coordinator.UpdateCar(r.Context(), r.PathValue("id"), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, car)
}

func (s *Server) handleDeleteCar(w http.ResponseWriter, r *http.Request) {
	if err := s.Coordinator.DeleteCar(r.Context(), r.PathValue("id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, nil)
}

type trackerRequest struct {
	GPSTracker string `json:"gpsTracker"`
}

func (s *Server) handleBindTracker(w http.ResponseWriter, r *http.Request) {
	var in trackerRequest
	if err := decode(w, r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	car, err := s.Coordinator.BindTracker(r.Context(), r.PathValue("id"), in.GPSTracker)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, car)
}

func (s *Server) handleUnbindTracker(w http.ResponseWriter, r *http.Request) {
	car, err := s.Coordinator.UnbindTracker(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, car)
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	writeData(w, s.Store.Users())
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var in mutation.UserInput
	if err := decode(w, r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	u, err := s.Coordinator.CreateUser(r.Context(), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, envelope{IsSuccess: true, Data: u})
}

func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	var in mutation.UserInput
	if err := decode(w, r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	u, err := s.Coordinator.UpdateUser(r.Context(), r.PathValue("id"), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, u)
}

func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	if err := s.Coordinator.DeleteUser(r.Context(), r.PathValue("id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, nil)
}
