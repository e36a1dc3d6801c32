package backend

import (
	"context"
	"net/http"
	"net/url"
)

// Endpoints are paths appended to the base URL. Paths that address a single
// entity end with "/" and get the id appended.
type Endpoints struct {
	AuthLogin    string `yaml:"auth_login"`
	AuthRegister string `yaml:"auth_register"`

	CarsAll    string `yaml:"cars_all"`
	CarsSearch string `yaml:"cars_search"`
	CarsByID   string `yaml:"cars_by_id"`
	CarsCreate string `yaml:"cars_create"`
	CarsUpdate string `yaml:"cars_update"`
	CarsDelete string `yaml:"cars_delete"`

	MedAll    string `yaml:"med_all"`
	MedByID   string `yaml:"med_by_id"`
	MedCreate string `yaml:"med_create"`
	MedUpdate string `yaml:"med_update"`
	MedDelete string `yaml:"med_delete"`

	UsersAll    string `yaml:"users_all"`
	UsersCreate string `yaml:"users_create"`
	UsersUpdate string `yaml:"users_update"`
	UsersDelete string `yaml:"users_delete"`
}

// DefaultEndpoints mirrors the routes the dashboard backend ships with.
func DefaultEndpoints() Endpoints {
	return Endpoints{
		AuthLogin:    "/api/auth/login",
		AuthRegister: "/api/auth/register",

		CarsAll:    "/api/cars",
		CarsSearch: "/api/cars/search?query=",
		CarsByID:   "/api/cars/",
		CarsCreate: "/api/cars",
		CarsUpdate: "/api/cars/",
		CarsDelete: "/api/cars/",

		MedAll:    "/api/medinstitutions",
		MedByID:   "/api/medinstitutions/",
		MedCreate: "/api/medinstitutions",
		MedUpdate: "/api/medinstitutions/",
		MedDelete: "/api/medinstitutions/",

		UsersAll:    "/api/users",
		UsersCreate: "/api/users",
		UsersUpdate: "/api/users/",
		UsersDelete: "/api/users/",
	}
}

// Login posts credentials without an auth header.
func (c *Client) Login(ctx context.Context, login, password string) (any, error) {
	body := map[string]string{"login": login, "password": password}
	return c.do(ctx, http.MethodPost, c.url(c.endpoints.AuthLogin, "", nil), body, false)
}

// Register creates an account without an auth header.
func (c *Client) Register(ctx context.Context, login, password string) (any, error) {
	body := map[string]string{"login": login, "password": password}
	return c.do(ctx, http.MethodPost, c.url(c.endpoints.AuthRegister, "", nil), body, false)
}

func (c *Client) FetchHospitals(ctx context.Context) (any, error) {
	return c.do(ctx, http.MethodGet, c.url(c.endpoints.MedAll, "", nil), nil, true)
}

func (c *Client) FetchHospital(ctx context.Context, id string) (any, error) {
	return c.do(ctx, http.MethodGet, c.url(c.endpoints.MedByID, pathID(id), nil), nil, true)
}

func (c *Client) CreateHospital(ctx context.Context, name string) (any, error) {
	return c.do(ctx, http.MethodPost, c.url(c.endpoints.MedCreate, "", nil), map[string]string{"name": name}, true)
}

func (c *Client) UpdateHospital(ctx context.Context, id, name string) (any, error) {
	return c.do(ctx, http.MethodPut, c.url(c.endpoints.MedUpdate, pathID(id), nil), map[string]string{"name": name}, true)
}

func (c *Client) DeleteHospital(ctx context.Context, id string) (any, error) {
	return c.do(ctx, http.MethodDelete, c.url(c.endpoints.MedDelete, pathID(id), nil), nil, true)
}

func (c *Client) FetchCars(ctx context.Context) (any, error) {
	return c.do(ctx, http.MethodGet, c.url(c.endpoints.CarsAll, "", c.orgQuery()), nil, true)
}

// SearchCars runs the backend's free-text car search.
func (c *Client) SearchCars(ctx context.Context, query string) (any, error) {
	return c.do(ctx, http.MethodGet, c.url(c.endpoints.CarsSearch, url.QueryEscape(query), c.orgQuery()), nil, true)
}

func (c *Client) FetchCar(ctx context.Context, id string) (any, error) {
	return c.do(ctx, http.MethodGet, c.url(c.endpoints.CarsByID, pathID(id), nil), nil, true)
}

func (c *Client) CreateCar(ctx context.Context, payload map[string]any) (any, error) {
	return c.do(ctx, http.MethodPost, c.url(c.endpoints.CarsCreate, "", nil), payload, true)
}

func (c *Client) UpdateCar(ctx context.Context, id string, payload map[string]any) (any, error) {
	return c.do(ctx, http.MethodPut, c.url(c.endpoints.CarsUpdate, pathID(id), nil), payload, true)
}

func (c *Client) DeleteCar(ctx context.Context, id string) (any, error) {
	return c.do(ctx, http.MethodDelete, c.url(c.endpoints.CarsDelete, pathID(id), nil), nil, true)
}

// BindTracker is a car update that only carries the tracker id.
func (c *Client) BindTracker(ctx context.Context, id, trackerID string) (any, error) {
	return c.UpdateCar(ctx, id, map[string]any{"gpsTracker": trackerID})
}

// UnbindTracker clears the car's tracker.
func (c *Client) UnbindTracker(ctx context.Context, id string) (any, error) {
	return c.UpdateCar(ctx, id, map[string]any{"gpsTracker": nil})
}

func (c *Client) FetchUsers(ctx context.Context) (any, error) {
	return c.do(ctx, http.MethodGet, c.url(c.endpoints.UsersAll, "", c.orgQuery()), nil, true)
}

func (c *Client) CreateUser(ctx context.Context, payload map[string]any) (any, error) {
	return c.do(ctx, http.MethodPost, c.url(c.endpoints.UsersCreate, "", nil), payload, true)
}

func (c *Client) UpdateUser(ctx context.Context, id string, payload map[string]any) (any, error) {
	return c.do(ctx, http.MethodPut, c.url(c.endpoints.UsersUpdate, pathID(id), nil), payload, true)
}

func (c *Client) DeleteUser(ctx context.Context, id string) (any, error) {
	return c.do(ctx, http.MethodDelete, c.url(c.endpoints.UsersDelete, pathID(id), nil), nil, true)
}
