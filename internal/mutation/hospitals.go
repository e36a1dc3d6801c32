package mutation

import (
	"context"
	"strings"

	"dispatch-dashboard/internal/model"
	"dispatch-dashboard/internal/reconcile"
	"dispatch-dashboard/internal/records"
	"dispatch-dashboard/internal/store"
)

func validHospitalName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", required(model.KindHospital, "name")
	}
	return name, nil
}

// CreateHospital adds a hospital and re-resolves every car and user, so
// entities that were unassigned for lack of this hospital pick it up. When
// the response carries no usable record the hospital list is re-fetched.
func (c *Coordinator) CreateHospital(ctx context.Context, name string) (model.HospitalOption, error) {
	const op = "create"
	name, err := validHospitalName(name)
	if err != nil {
		return model.HospitalOption{}, c.reject(ctx, model.KindHospital, op, "", err)
	}
	var out model.HospitalOption
	err = c.run(ctx, model.KindHospital, op, NewKey, func() (string, error) {
		resp, err := c.call(ctx, "create hospital", func(ctx context.Context) (any, error) {
			return c.backend.CreateHospital(ctx, name)
		})
		if err != nil {
			return "", err
		}
		if opt, ok := reconcile.HospitalOption(records.UnwrapOne(resp)); ok {
			out = opt
			return out.ID, c.store.Update(func(tx *store.Tx) error {
				tx.UpsertHospital(opt)
				rejoinAll(tx)
				return nil
			})
		}

		list, err := c.call(ctx, "fetch hospitals", c.backend.FetchHospitals)
		if err != nil {
			return "", err
		}
		opts := reconcile.BuildHospitalOptions(list)
		out = findByName(opts, name)
		return out.ID, c.store.Update(func(tx *store.Tx) error {
			tx.ReplaceHospitals(opts)
			rejoinAll(tx)
			return nil
		})
	})
	return out, err
}

// findByName returns the last option whose trimmed name matches name
// case-insensitively, or a bare option carrying name.
func findByName(opts []model.HospitalOption, name string) model.HospitalOption {
	for i := len(opts) - 1; i >= 0; i-- {
		if strings.EqualFold(strings.TrimSpace(opts[i].Name), name) {
			return opts[i]
		}
	}
	return model.HospitalOption{Name: name}
}

// UpdateHospital renames a hospital. Cars and users joined to it by id pick
// up the new name.
func (c *Coordinator) UpdateHospital(ctx context.Context, id, name string) (model.HospitalOption, error) {
	const op = "update"
	name, err := validHospitalName(name)
	if err != nil {
		return model.HospitalOption{}, c.reject(ctx, model.KindHospital, op, id, err)
	}
	if _, ok := c.store.Hospital(id); !ok {
		return model.HospitalOption{}, c.reject(ctx, model.KindHospital, op, id, notFound(model.KindHospital, id))
	}
	out := model.HospitalOption{ID: id, Name: name}
	err = c.run(ctx, model.KindHospital, op, id, func() (string, error) {
		resp, err := c.call(ctx, "update hospital", func(ctx context.Context) (any, error) {
			return c.backend.UpdateHospital(ctx, id, name)
		})
		if err != nil {
			return id, err
		}
		if opt, ok := reconcile.HospitalOption(records.UnwrapOne(resp)); ok && opt.ID == id {
			out = opt
		}
		return id, c.store.Update(func(tx *store.Tx) error {
			tx.UpsertHospital(out)
			rejoinAll(tx)
			return nil
		})
	})
	return out, err
}

// DeleteHospital removes a hospital together with every car and user
// resolved to it, and clears the filter if it selected the hospital.
func (c *Coordinator) DeleteHospital(ctx context.Context, id string) (store.Cascade, error) {
	const op = "delete"
	if _, ok := c.store.Hospital(id); !ok {
		return store.Cascade{}, c.reject(ctx, model.KindHospital, op, id, notFound(model.KindHospital, id))
	}
	var cascade store.Cascade
	err := c.run(ctx, model.KindHospital, op, id, func() (string, error) {
		if _, err := c.call(ctx, "delete hospital", func(ctx context.Context) (any, error) {
			return c.backend.DeleteHospital(ctx, id)
		}); err != nil {
			return id, err
		}
		return id, c.store.Update(func(tx *store.Tx) error {
			var ok bool
			if cascade, ok = tx.RemoveHospital(id); !ok {
				return notFound(model.KindHospital, id)
			}
			return nil
		})
	})
	return cascade, err
}
