/* Copyright 2025 Marginalia Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package controllers

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/marginalia/marginalia/pkg/server/app"
	mw "github.com/marginalia/marginalia/pkg/server/middleware"
	"github.com/pkg/errors"
)

// Route represents a single route
type Route struct {
	Method    string
	Pattern   string
	Handler   http.HandlerFunc
	RateLimit bool
}

// RouteConfig is the configuration for routes
type RouteConfig struct {
	Controllers *Controllers
	APIRoutes   []Route
}

// NewAPIRoutes returns a new api routes
func NewAPIRoutes(a *app.App, c *Controllers) []Route {
	ret := []Route{
		{"POST", "/auth/login", c.Users.Login, true},
		{"POST", "/auth/logout", c.Users.Logout, true},
		{"GET", "/auth/current_session", c.Users.CurrentSession, true},
		{"GET", "/auth/confirm/{token}", c.Users.ConfirmEmail, true},
		{"POST", "/auth/resend_confirmation", mw.Auth(a.DB, c.Users.ResendConfirmation), true},
		{"PATCH", "/users/password", mw.Auth(a.DB, c.Users.PasswordUpdate), true},

		{"GET", "/data/documents/{id:[0-9]+}/pdf", mw.Auth(a.DB, c.Documents.GetPDF), true},
		{"GET", "/data/documents/{id:[0-9]+}/recursive", mw.Auth(a.DB, c.Documents.Recursive), true},
		{"GET", "/data/documents/{id:[0-9]+}/access_code", mw.Auth(a.DB, c.Documents.AccessCode), true},
		{"GET", "/data/documents/{id:[0-9]+}/autofill", mw.Auth(a.DB, c.Documents.Autofill), true},

		{"GET", "/data/{entities}", mw.Auth(a.DB, c.Data.Index), true},
		{"POST", "/data/{entities}", mw.Auth(a.DB, c.Data.Create), true},
		{"GET", "/data/{entities}/{id:[0-9]+}", mw.Auth(a.DB, c.Data.Show), true},
		{"PUT", "/data/{entities}/{id:[0-9]+}", mw.Auth(a.DB, c.Data.Update), true},
		{"DELETE", "/data/{entities}/{id:[0-9]+}", mw.Auth(a.DB, c.Data.Delete), true},

		{"GET", "/health", c.Health.Index, true},
	}

	if !a.DisableRegistration {
		ret = append(ret, Route{"POST", "/users", c.Users.Create, true})
	}

	return ret
}

func registerRoutes(router *mux.Router, wrapper mw.Middleware, app *app.App, routes []Route) {
	for _, route := range routes {
		wrappedHandler := wrapper(route.Handler, app, route.RateLimit)

		router.
			Handle(route.Pattern, wrappedHandler).
			Methods(route.Method)
	}
}

// NewRouter creates and returns a new router
func NewRouter(app *app.App, rc RouteConfig) (http.Handler, error) {
	if err := app.Validate(); err != nil {
		return nil, errors.Wrap(err, "validating the app parameters")
	}

	router := mux.NewRouter().StrictSlash(true)

	apiRouter := router.PathPrefix("/api").Subrouter()
	registerRoutes(apiRouter, mw.APIMw, app, rc.APIRoutes)

	router.HandleFunc("/health", rc.Controllers.Health.Index)

	router.HandleFunc("/robots.txt", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("User-agent: *\nAllow: /"))
	})

	return mw.Global(router), nil
}
