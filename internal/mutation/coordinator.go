// Package mutation applies operator edits to the canonical collections.
//
// Every mutation runs the same two-phase discipline: validate locally, issue
// one backend request, and only on success resolve the returned (or locally
// echoed) record and commit it to the store. A failed request leaves the
// store untouched.
package mutation

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"dispatch-dashboard/internal/logging"
	"dispatch-dashboard/internal/model"
	"dispatch-dashboard/internal/reconcile"
	"dispatch-dashboard/internal/records"
	"dispatch-dashboard/internal/store"
	"dispatch-dashboard/internal/tracker"
)

// Backend is the subset of the backend client the coordinator drives.
type Backend interface {
	FetchHospitals(ctx context.Context) (any, error)
	FetchCars(ctx context.Context) (any, error)
	FetchUsers(ctx context.Context) (any, error)

	CreateCar(ctx context.Context, payload map[string]any) (any, error)
	UpdateCar(ctx context.Context, id string, payload map[string]any) (any, error)
	DeleteCar(ctx context.Context, id string) (any, error)
	BindTracker(ctx context.Context, id, trackerID string) (any, error)
	UnbindTracker(ctx context.Context, id string) (any, error)

	CreateUser(ctx context.Context, payload map[string]any) (any, error)
	UpdateUser(ctx context.Context, id string, payload map[string]any) (any, error)
	DeleteUser(ctx context.Context, id string) (any, error)

	CreateHospital(ctx context.Context, name string) (any, error)
	UpdateHospital(ctx context.Context, id, name string) (any, error)
	DeleteHospital(ctx context.Context, id string) (any, error)
}

// Phase is the lifecycle state of one entity's edit. A failed request
// returns the entity to Idle; RolledBack only appears as an Event outcome.
type Phase string

const (
	Idle       Phase = "idle"
	Pending    Phase = "pending"
	Committed  Phase = "committed"
	RolledBack Phase = "rolled_back"
)

// NewKey is the id used in phase keys for entities that do not exist yet.
const NewKey = "new"

// Key builds the phase key for an entity.
func Key(kind model.Kind, id string) string {
	return string(kind) + ":" + id
}

// Outcome classifies a finished mutation.
type Outcome string

const (
	OutcomeCommitted  Outcome = "committed"
	OutcomeRolledBack Outcome = "rolled_back"
	OutcomeRejected   Outcome = "rejected"
)

// Event describes one finished mutation attempt.
type Event struct {
	Time     time.Time
	Kind     model.Kind
	Op       string
	ID       string
	Outcome  Outcome
	Duration time.Duration
	Err      error
}

// Observer receives every Event. Implementations must not block.
type Observer interface {
	Observe(Event)
}

type Option func(*Coordinator)

func WithLogger(l logging.Logger) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.log = l
		}
	}
}

func WithObserver(obs ...Observer) Option {
	return func(c *Coordinator) { c.observers = append(c.observers, obs...) }
}

// WithTrackerSource enables live positions for cars with a bound tracker.
func WithTrackerSource(src tracker.Source) Option {
	return func(c *Coordinator) { c.tracker = src }
}

// Coordinator is safe for concurrent use. Two edits to the same entity are
// not serialized; the last one to complete wins.
type Coordinator struct {
	backend   Backend
	store     *store.Store
	log       logging.Logger
	observers []Observer
	tracker   tracker.Source
	now       func() time.Time

	mu     sync.RWMutex
	phases map[string]Phase
	fixes  map[string]tracker.Fix
}

func New(b Backend, st *store.Store, opts ...Option) *Coordinator {
	c := &Coordinator{
		backend: b,
		store:   st,
		log:     logging.Noop(),
		now:     time.Now,
		phases:  map[string]Phase{},
		fixes:   map[string]tracker.Fix{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Phase returns the phase recorded under key, Idle when none.
func (c *Coordinator) Phase(key string) Phase {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if p, ok := c.phases[key]; ok {
		return p
	}
	return Idle
}

func (c *Coordinator) setPhase(key string, p Phase) {
	c.mu.Lock()
	c.phases[key] = p
	c.mu.Unlock()
}

// Load fetches hospitals, cars and users concurrently and replaces the
// store's contents. Cars and users are resolved only once the hospital list
// is known. Tracker fixes, when a source is configured, are fetched
// alongside; a tracker failure is logged and does not fail the load.
func (c *Coordinator) Load(ctx context.Context) error {
	var hospitals, cars, users any
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		hospitals, err = c.call(gctx, "fetch hospitals", c.backend.FetchHospitals)
		return err
	})
	g.Go(func() (err error) {
		cars, err = c.call(gctx, "fetch cars", c.backend.FetchCars)
		return err
	})
	g.Go(func() (err error) {
		users, err = c.call(gctx, "fetch users", c.backend.FetchUsers)
		return err
	})
	if c.tracker != nil {
		g.Go(func() error {
			if err := c.fetchFixes(gctx); err != nil {
				c.log.Warn(gctx, "tracker fetch failed", logging.Err(err))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		c.log.Error(ctx, "initial load failed", logging.Err(err))
		return err
	}

	opts := reconcile.BuildHospitalOptions(hospitals)
	res := reconcile.NewResolver(opts)
	carRecs := records.Unwrap(cars)
	userRecs := records.Unwrap(users)
	normCars := make([]model.Car, 0, len(carRecs))
	for _, rec := range carRecs {
		normCars = append(normCars, c.positioned(res.Car(rec)))
	}
	normUsers := make([]model.User, 0, len(userRecs))
	for _, rec := range userRecs {
		normUsers = append(normUsers, res.User(rec))
	}
	err := c.store.Update(func(tx *store.Tx) error {
		tx.ReplaceHospitals(opts)
		tx.ReplaceCars(normCars)
		tx.ReplaceUsers(normUsers)
		return nil
	})
	if err != nil {
		return err
	}
	c.log.Info(ctx, "loaded",
		logging.Int("hospitals", len(opts)),
		logging.Int("cars", len(normCars)),
		logging.Int("users", len(normUsers)))
	return nil
}

// ReloadHospitals re-fetches the hospital list and re-resolves every car and
// user against it.
func (c *Coordinator) ReloadHospitals(ctx context.Context) error {
	payload, err := c.call(ctx, "fetch hospitals", c.backend.FetchHospitals)
	if err != nil {
		return err
	}
	opts := reconcile.BuildHospitalOptions(payload)
	return c.store.Update(func(tx *store.Tx) error {
		tx.ReplaceHospitals(opts)
		rejoinAll(tx)
		return nil
	})
}

// call runs one backend request and folds both transport errors and the
// isSuccess:false shape into a RequestFailure.
func (c *Coordinator) call(ctx context.Context, op string, fn func(context.Context) (any, error)) (any, error) {
	payload, err := fn(ctx)
	if err != nil {
		return nil, failureFromErr(op, err)
	}
	if info, failed := records.Failure(payload); failed {
		return nil, &RequestFailure{Op: op, Message: info.Message, Code: info.Code}
	}
	return payload, nil
}

// run drives one mutation through Pending to Committed, or back to Idle on
// failure. fn returns the id of the affected entity.
func (c *Coordinator) run(ctx context.Context, kind model.Kind, op, key string, fn func() (string, error)) error {
	phaseKey := Key(kind, key)
	c.setPhase(phaseKey, Pending)
	start := c.now()
	id, err := fn()
	if id == "" {
		id = key
	}
	ev := Event{Time: start, Kind: kind, Op: op, ID: id, Duration: c.now().Sub(start)}
	fields := []logging.Field{
		logging.String("kind", string(kind)),
		logging.String("op", op),
		logging.String("id", id),
	}
	if err != nil {
		c.setPhase(phaseKey, Idle)
		ev.Outcome, ev.Err = OutcomeRolledBack, err
		c.log.Warn(ctx, "mutation failed", append(fields, logging.Err(err))...)
	} else {
		c.setPhase(phaseKey, Committed)
		if id != key {
			c.setPhase(Key(kind, id), Committed)
		}
		ev.Outcome = OutcomeCommitted
		c.log.Info(ctx, "mutation committed", fields...)
	}
	c.emit(ev)
	return err
}

// reject reports a mutation refused before any request was made.
func (c *Coordinator) reject(ctx context.Context, kind model.Kind, op, id string, err error) error {
	c.log.Debug(ctx, "mutation rejected",
		logging.String("kind", string(kind)),
		logging.String("op", op),
		logging.Err(err))
	c.emit(Event{Time: c.now(), Kind: kind, Op: op, ID: id, Outcome: OutcomeRejected, Err: err})
	return err
}

func (c *Coordinator) emit(ev Event) {
	for _, o := range c.observers {
		o.Observe(ev)
	}
}

// merge builds the record to resolve after a successful write: the local
// echo with the response record laid over it field by field. When the
// response carries any alias of a field, every alias of that field is first
// dropped from the echo so a stale echoed value cannot outrank it.
func merge(resp any, echo records.Record, fields []records.Field) records.Record {
	rec := records.UnwrapOne(resp)
	base := overlay(echo, nil)
	if rec == nil {
		return base
	}
	for _, f := range fields {
		if records.Has(rec, f) {
			for _, alias := range f.Aliases {
				delete(base, alias)
			}
		}
	}
	return overlay(base, rec)
}

// overlay returns a copy of base with every key of top written over it.
func overlay(base, top map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(top))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range top {
		out[k] = v
	}
	return out
}

// hospitalFields writes the membership triple for the selected option, the
// way the edit form does: id and medInstitutionId both carry the option id.
func (c *Coordinator) hospitalFields(payload map[string]any, hospitalID string) {
	hospitalID = strings.TrimSpace(hospitalID)
	opt, _ := c.store.Hospital(hospitalID)
	payload["hospitalId"] = hospitalID
	payload["medInstitutionId"] = hospitalID
	payload["hospitalName"] = opt.Name
}

// rejoinAll re-resolves every car and user against the transaction's
// hospital list, staging only the collections that actually changed.
func rejoinAll(tx *store.Tx) {
	res := reconcile.NewResolver(tx.Hospitals())

	cars := tx.Cars()
	carsChanged := false
	for i, car := range cars {
		next := res.RejoinCar(car)
		if membershipChanged(next.HospitalID, next.MedInstitutionID, next.HospitalName,
			car.HospitalID, car.MedInstitutionID, car.HospitalName) {
			cars[i] = next
			carsChanged = true
		}
	}
	if carsChanged {
		tx.ReplaceCars(cars)
	}

	users := tx.Users()
	usersChanged := false
	for i, u := range users {
		next := res.RejoinUser(u)
		if next != u {
			users[i] = next
			usersChanged = true
		}
	}
	if usersChanged {
		tx.ReplaceUsers(users)
	}
}

func membershipChanged(aID, aMed, aName, bID, bMed, bName string) bool {
	return aID != bID || aMed != bMed || aName != bName
}
