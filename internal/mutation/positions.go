package mutation

import (
	"context"

	"dispatch-dashboard/internal/model"
	"dispatch-dashboard/internal/reconcile"
	"dispatch-dashboard/internal/store"
	"dispatch-dashboard/internal/tracker"
)

func (c *Coordinator) fetchFixes(ctx context.Context) error {
	fixes, err := c.tracker.Fetch(ctx)
	if err != nil {
		return failureFromErr("fetch tracker fixes", err)
	}
	idx := tracker.Index(fixes)
	c.mu.Lock()
	c.fixes = idx
	c.mu.Unlock()
	return nil
}

// positioned settles a car's position by precedence: a backend position
// stands; otherwise the latest fix for its bound tracker; otherwise the
// synthesized point.
func (c *Coordinator) positioned(car model.Car) model.Car {
	if car.PositionSource == model.PositionBackend {
		return car
	}
	if id := car.Tracker(); id != "" {
		c.mu.RLock()
		fix, ok := c.fixes[id]
		c.mu.RUnlock()
		if ok {
			car.Position = fix.Position
			car.PositionSource = model.PositionTracker
			return car
		}
	}
	car.Position = reconcile.Synthesize(reconcile.Seed(car.ID, car.RegNum))
	car.PositionSource = model.PositionSynthesized
	return car
}

// RefreshPositions fetches tracker fixes and re-positions every car that has
// no backend position. It reports how many cars moved. Without a tracker
// source it does nothing.
func (c *Coordinator) RefreshPositions(ctx context.Context) (int, error) {
	if c.tracker == nil {
		return 0, nil
	}
	if err := c.fetchFixes(ctx); err != nil {
		return 0, err
	}
	moved := 0
	err := c.store.Update(func(tx *store.Tx) error {
		moved = 0
		for _, car := range tx.Cars() {
			next := c.positioned(car)
			if next.Position != car.Position || next.PositionSource != car.PositionSource {
				tx.UpsertCar(next)
				moved++
			}
		}
		return nil
	})
	return moved, err
}
