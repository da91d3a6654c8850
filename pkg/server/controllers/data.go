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
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/marginalia/marginalia/pkg/server/app"
	"github.com/marginalia/marginalia/pkg/server/context"
	"github.com/marginalia/marginalia/pkg/server/entity"
	"gorm.io/gorm"
)

// NewData creates a new Data controller
func NewData(app *app.App, registry *entity.Registry) *Data {
	return &Data{
		app:      app,
		registry: registry,
	}
}

// Data is the controller for the generic entity endpoints. One set of
// handlers serves every registered entity kind.
type Data struct {
	app      *app.App
	registry *entity.Registry
}

// EntitiesResp is the uniform response payload for entity operations
type EntitiesResp struct {
	Entities entity.Entities `json:"entities"`
}

func (c *Data) resource(w http.ResponseWriter, r *http.Request) (entity.Resource, bool) {
	vars := mux.Vars(r)
	name := vars["entities"]

	res, ok := c.registry.Lookup(name)
	if !ok {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		return nil, false
	}

	return res, true
}

func recordID(r *http.Request) (int, error) {
	vars := mux.Vars(r)

	id, err := strconv.Atoi(vars["id"])
	if err != nil {
		return 0, entity.ErrNotFound
	}

	return id, nil
}

func parseBody(r *http.Request) (entity.Body, error) {
	body := entity.Body{}

	if r.Body == nil || r.ContentLength == 0 {
		return body, nil
	}

	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return nil, entity.Validationf("Malformed request body")
	}

	return body, nil
}

// withTx runs the given function in a request-scoped unit of work. The
// transaction commits when the function returns nil and rolls back
// otherwise.
func (c *Data) withTx(r *http.Request, fn func(tx *entity.Tx) error) error {
	user := context.User(r.Context())
	if user == nil {
		return app.ErrLoginRequired
	}

	return c.app.DB.Transaction(func(db *gorm.DB) error {
		tx := entity.Tx{
			DB:    db,
			User:  *user,
			Clock: c.app.Clock,
		}

		return fn(&tx)
	})
}

// Index handles GET /data/{entities}
func (c *Data) Index(w http.ResponseWriter, r *http.Request) {
	res, ok := c.resource(w, r)
	if !ok {
		return
	}

	var out entity.Entities
	err := c.withTx(r, func(tx *entity.Tx) error {
		var err error
		out, err = entity.ListRecords(res, tx, r.URL.Query())
		return err
	})
	if err != nil {
		handleJSONError(w, err, "listing records")
		return
	}

	respondJSON(w, http.StatusOK, EntitiesResp{Entities: out})
}

// Create handles POST /data/{entities}
func (c *Data) Create(w http.ResponseWriter, r *http.Request) {
	res, ok := c.resource(w, r)
	if !ok {
		return
	}

	body, err := parseBody(r)
	if err != nil {
		handleJSONError(w, err, "parsing payload")
		return
	}

	var out entity.Entities
	err = c.withTx(r, func(tx *entity.Tx) error {
		var err error
		out, err = entity.CreateRecord(res, tx, body)
		return err
	})
	if err != nil {
		handleJSONError(w, err, "creating record")
		return
	}

	respondJSON(w, http.StatusCreated, EntitiesResp{Entities: out})
}

// Show handles GET /data/{entities}/{id}
func (c *Data) Show(w http.ResponseWriter, r *http.Request) {
	res, ok := c.resource(w, r)
	if !ok {
		return
	}

	id, err := recordID(r)
	if err != nil {
		handleJSONError(w, err, "parsing record id")
		return
	}

	var out entity.Entities
	err = c.withTx(r, func(tx *entity.Tx) error {
		var err error
		out, err = entity.GetRecord(res, tx, id)
		return err
	})
	if err != nil {
		handleJSONError(w, err, "finding record")
		return
	}

	respondJSON(w, http.StatusOK, EntitiesResp{Entities: out})
}

// Update handles PUT /data/{entities}/{id}
func (c *Data) Update(w http.ResponseWriter, r *http.Request) {
	res, ok := c.resource(w, r)
	if !ok {
		return
	}

	id, err := recordID(r)
	if err != nil {
		handleJSONError(w, err, "parsing record id")
		return
	}

	body, err := parseBody(r)
	if err != nil {
		handleJSONError(w, err, "parsing payload")
		return
	}

	var out entity.Entities
	err = c.withTx(r, func(tx *entity.Tx) error {
		var err error
		out, err = entity.UpdateRecord(res, tx, id, body)
		return err
	})
	if err != nil {
		handleJSONError(w, err, "updating record")
		return
	}

	respondJSON(w, http.StatusOK, EntitiesResp{Entities: out})
}

// Delete handles DELETE /data/{entities}/{id}
func (c *Data) Delete(w http.ResponseWriter, r *http.Request) {
	res, ok := c.resource(w, r)
	if !ok {
		return
	}

	id, err := recordID(r)
	if err != nil {
		handleJSONError(w, err, "parsing record id")
		return
	}

	var out entity.Entities
	err = c.withTx(r, func(tx *entity.Tx) error {
		var err error
		out, err = entity.DeleteRecord(res, tx, id)
		return err
	})
	if err != nil {
		handleJSONError(w, err, "deleting record")
		return
	}

	respondJSON(w, http.StatusOK, EntitiesResp{Entities: out})
}
