package mutation

import (
	"context"
	"strings"

	"dispatch-dashboard/internal/model"
	"dispatch-dashboard/internal/reconcile"
	"dispatch-dashboard/internal/records"
	"dispatch-dashboard/internal/store"
)

// UserInput is the editable part of a staff account. Password is required
// on create and sent on update only when set. A nil Role keeps the current
// role on update and the backend default on create.
type UserInput struct {
	Login      string `json:"login"`
	Password   string `json:"password,omitempty"`
	Role       *int   `json:"role,omitempty"`
	HospitalID string `json:"hospitalId"`
}

var userFields = []records.Field{
	reconcile.UserIDField,
	reconcile.UserNumberField,
	reconcile.LoginField,
	reconcile.RoleField,
	reconcile.RemovedField,
	reconcile.MemberHospitalIDField,
	reconcile.MemberHospitalNameField,
}

func (in UserInput) validate(creating bool) error {
	if strings.TrimSpace(in.Login) == "" {
		return required(model.KindUser, "login")
	}
	if creating && in.Password == "" {
		return required(model.KindUser, "password")
	}
	return nil
}

func (c *Coordinator) userPayload(in UserInput) map[string]any {
	payload := map[string]any{"login": strings.TrimSpace(in.Login)}
	if in.Role != nil {
		payload["role"] = *in.Role
	}
	if in.Password != "" {
		payload["password"] = in.Password
	}
	if strings.TrimSpace(in.HospitalID) != "" {
		c.hospitalFields(payload, in.HospitalID)
	}
	return payload
}

// echoOf strips the password so it never reaches the canonical record.
func echoOf(base, payload map[string]any) map[string]any {
	out := overlay(base, payload)
	delete(out, "password")
	return out
}

func (c *Coordinator) CreateUser(ctx context.Context, in UserInput) (model.User, error) {
	const op = "create"
	if err := in.validate(true); err != nil {
		return model.User{}, c.reject(ctx, model.KindUser, op, "", err)
	}
	payload := c.userPayload(in)
	var out model.User
	err := c.run(ctx, model.KindUser, op, NewKey, func() (string, error) {
		resp, err := c.call(ctx, "create user", func(ctx context.Context) (any, error) {
			return c.backend.CreateUser(ctx, payload)
		})
		if err != nil {
			return "", err
		}
		err = c.store.Update(func(tx *store.Tx) error {
			res := reconcile.NewResolver(tx.Hospitals())
			out = res.User(merge(resp, echoOf(nil, payload), userFields))
			tx.UpsertUser(out)
			return nil
		})
		return out.ID, err
	})
	return out, err
}

func (c *Coordinator) UpdateUser(ctx context.Context, id string, in UserInput) (model.User, error) {
	const op = "update"
	if err := in.validate(false); err != nil {
		return model.User{}, c.reject(ctx, model.KindUser, op, id, err)
	}
	prev, ok := c.store.User(id)
	if !ok {
		return model.User{}, c.reject(ctx, model.KindUser, op, id, notFound(model.KindUser, id))
	}
	if in.Role == nil {
		role := prev.Role
		in.Role = &role
	}
	payload := c.userPayload(in)
	var out model.User
	err := c.run(ctx, model.KindUser, op, id, func() (string, error) {
		resp, err := c.call(ctx, "update user", func(ctx context.Context) (any, error) {
			return c.backend.UpdateUser(ctx, id, payload)
		})
		if err != nil {
			return id, err
		}
		err = c.store.Update(func(tx *store.Tx) error {
			res := reconcile.NewResolver(tx.Hospitals())
			out = res.User(merge(resp, echoOf(prev.Record(), payload), userFields))
			out.ID = prev.ID
			if out.UserID == "" {
				out.UserID = prev.UserID
			}
			tx.UpsertUser(out)
			return nil
		})
		return id, err
	})
	return out, err
}

func (c *Coordinator) DeleteUser(ctx context.Context, id string) error {
	const op = "delete"
	if _, ok := c.store.User(id); !ok {
		return c.reject(ctx, model.KindUser, op, id, notFound(model.KindUser, id))
	}
	return c.run(ctx, model.KindUser, op, id, func() (string, error) {
		_, err := c.call(ctx, "delete user", func(ctx context.Context) (any, error) {
			return c.backend.DeleteUser(ctx, id)
		})
		if err != nil {
			return id, err
		}
		return id, c.store.Update(func(tx *store.Tx) error {
			tx.RemoveUser(id)
			return nil
		})
	})
}
