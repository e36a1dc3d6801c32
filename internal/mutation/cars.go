package mutation

import (
	"context"
	"strings"

	"dispatch-dashboard/internal/model"
	"dispatch-dashboard/internal/reconcile"
	"dispatch-dashboard/internal/records"
	"dispatch-dashboard/internal/store"
)

// CarInput is the editable part of a car. A nil GPSTracker leaves the bound
// tracker alone; an empty HospitalID on update keeps the current hospital.
type CarInput struct {
	RegNum     string  `json:"regNum"`
	GPSTracker *string `json:"gpsTracker,omitempty"`
	HospitalID string  `json:"hospitalId"`
}

var carFields = []records.Field{
	reconcile.CarIDField,
	reconcile.CarNumberField,
	reconcile.RegNumField,
	reconcile.TrackerField,
	reconcile.MemberHospitalIDField,
	reconcile.MemberHospitalNameField,
	reconcile.PositionField,
	reconcile.LatField,
	reconcile.LngField,
}

func (in CarInput) validate() error {
	if strings.TrimSpace(in.RegNum) == "" {
		return required(model.KindCar, "regNum")
	}
	return nil
}

func (c *Coordinator) carPayload(in CarInput) map[string]any {
	payload := map[string]any{"regNum": strings.TrimSpace(in.RegNum)}
	if in.GPSTracker != nil {
		if t := strings.TrimSpace(*in.GPSTracker); t != "" {
			payload["gpsTracker"] = t
		} else {
			payload["gpsTracker"] = nil
		}
	}
	if strings.TrimSpace(in.HospitalID) != "" {
		c.hospitalFields(payload, in.HospitalID)
	}
	return payload
}

// CreateCar creates a car and commits it once the backend accepts it.
func (c *Coordinator) CreateCar(ctx context.Context, in CarInput) (model.Car, error) {
	const op = "create"
	if err := in.validate(); err != nil {
		return model.Car{}, c.reject(ctx, model.KindCar, op, "", err)
	}
	payload := c.carPayload(in)
	var out model.Car
	err := c.run(ctx, model.KindCar, op, NewKey, func() (string, error) {
		resp, err := c.call(ctx, "create car", func(ctx context.Context) (any, error) {
			return c.backend.CreateCar(ctx, payload)
		})
		if err != nil {
			return "", err
		}
		err = c.store.Update(func(tx *store.Tx) error {
			res := reconcile.NewResolver(tx.Hospitals())
			rec := merge(resp, payload, carFields)
			out = c.positioned(res.Car(rec))
			tx.UpsertCar(out)
			return nil
		})
		return out.ID, err
	})
	return out, err
}

// UpdateCar writes in over the car with the given id.
func (c *Coordinator) UpdateCar(ctx context.Context, id string, in CarInput) (model.Car, error) {
	const op = "update"
	if err := in.validate(); err != nil {
		return model.Car{}, c.reject(ctx, model.KindCar, op, id, err)
	}
	prev, ok := c.store.Car(id)
	if !ok {
		return model.Car{}, c.reject(ctx, model.KindCar, op, id, notFound(model.KindCar, id))
	}
	payload := c.carPayload(in)
	var out model.Car
	err := c.run(ctx, model.KindCar, op, id, func() (string, error) {
		resp, err := c.call(ctx, "update car", func(ctx context.Context) (any, error) {
			return c.backend.UpdateCar(ctx, id, payload)
		})
		if err != nil {
			return id, err
		}
		err = c.store.Update(func(tx *store.Tx) error {
			res := reconcile.NewResolver(tx.Hospitals())
			rec := merge(resp, overlay(prev.Record(), payload), carFields)
			out = c.positioned(carryOver(res.Car(rec), prev))
			tx.UpsertCar(out)
			return nil
		})
		return id, err
	})
	return out, err
}

// carryOver keeps the identity of prev and its backend position when the
// updated record no longer carries one.
func carryOver(car, prev model.Car) model.Car {
	car.ID = prev.ID
	if car.CarID == "" || records.IsGenerated(car.CarID) {
		car.CarID = prev.CarID
	}
	if car.PositionSource == model.PositionSynthesized {
		if prev.PositionSource == model.PositionBackend {
			car.Position, car.PositionSource = prev.Position, prev.PositionSource
		} else {
			car.Position = reconcile.Synthesize(reconcile.Seed(car.ID, car.RegNum))
		}
	}
	return car
}

// DeleteCar removes the car once the backend confirms.
func (c *Coordinator) DeleteCar(ctx context.Context, id string) error {
	const op = "delete"
	if _, ok := c.store.Car(id); !ok {
		return c.reject(ctx, model.KindCar, op, id, notFound(model.KindCar, id))
	}
	return c.run(ctx, model.KindCar, op, id, func() (string, error) {
		_, err := c.call(ctx, "delete car", func(ctx context.Context) (any, error) {
			return c.backend.DeleteCar(ctx, id)
		})
		if err != nil {
			return id, err
		}
		return id, c.store.Update(func(tx *store.Tx) error {
			tx.RemoveCar(id)
			return nil
		})
	})
}

// BindTracker attaches trackerID to the car. Only GPSTracker changes.
func (c *Coordinator) BindTracker(ctx context.Context, id, trackerID string) (model.Car, error) {
	const op = "bind_tracker"
	trackerID = strings.TrimSpace(trackerID)
	if trackerID == "" {
		return model.Car{}, c.reject(ctx, model.KindCar, op, id, required(model.KindCar, "gpsTracker"))
	}
	return c.setTracker(ctx, op, id, trackerID, func(ctx context.Context) (any, error) {
		return c.backend.BindTracker(ctx, id, trackerID)
	})
}

// UnbindTracker detaches the car's tracker. Only GPSTracker changes.
func (c *Coordinator) UnbindTracker(ctx context.Context, id string) (model.Car, error) {
	return c.setTracker(ctx, "unbind_tracker", id, "", func(ctx context.Context) (any, error) {
		return c.backend.UnbindTracker(ctx, id)
	})
}

func (c *Coordinator) setTracker(ctx context.Context, op, id, trackerID string, send func(context.Context) (any, error)) (model.Car, error) {
	if _, ok := c.store.Car(id); !ok {
		return model.Car{}, c.reject(ctx, model.KindCar, op, id, notFound(model.KindCar, id))
	}
	var out model.Car
	err := c.run(ctx, model.KindCar, op, id, func() (string, error) {
		if _, err := c.call(ctx, strings.ReplaceAll(op, "_", " "), send); err != nil {
			return id, err
		}
		return id, c.store.Update(func(tx *store.Tx) error {
			car, ok := tx.Car(id)
			if !ok {
				return notFound(model.KindCar, id)
			}
			car.GPSTracker = model.StringPtr(trackerID)
			out = car
			tx.UpsertCar(car)
			return nil
		})
	})
	return out, err
}
