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

// Package entity implements the generic ownership-scoped CRUD core.
// Every entity kind is described by a Resource whose hooks customize
// construction, patch application, and cross-entity side effects. The
// generic operations never branch on the entity kind directly.
package entity

import (
	"time"

	"github.com/marginalia/marginalia/pkg/clock"
	"github.com/marginalia/marginalia/pkg/server/autofill"
	"github.com/marginalia/marginalia/pkg/server/database"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// ErrNotFound is an error for a record that is absent or not owned by the principal
var ErrNotFound = errors.New("record not found")

// ValidationError is an error raised by resource hooks for invalid input.
// It is caught at the resource boundary and rendered as a 400 response.
type ValidationError struct {
	Message string
}

func (e ValidationError) Error() string {
	return e.Message
}

// Validationf creates a ValidationError with a formatted message
func Validationf(format string, args ...interface{}) error {
	return ValidationError{Message: errors.Errorf(format, args...).Error()}
}

// IsValidation checks if the given error is a validation error
func IsValidation(err error) bool {
	var ve ValidationError
	return errors.As(err, &ve)
}

// Tx is the state for one request-scoped unit of work: the database
// transaction, the authenticated principal, and the clock. It is committed
// or rolled back exactly once, by the caller that opened it.
type Tx struct {
	DB    *gorm.DB
	User  database.User
	Clock clock.Clock
}

// Record is the interface implemented by every row the generic
// operations manage.
type Record interface {
	RecordID() int
	OwnerID() int
	SetOwner(userID int)
	DeletedOn() *time.Time
	SetDeletedOn(t *time.Time)
}

// Body is a decoded JSON request body
type Body map[string]interface{}

// Resource describes one entity kind exposed through the generic
// endpoints. Implementations are registered once at startup.
type Resource interface {
	// Name is the route segment which doubles as the response table name
	Name() string
	// FilterColumns lists the query parameters permitted as list filters
	FilterColumns() []string
	// Build constructs a new record from a request body
	Build(tx *Tx, body Body) (Record, error)
	// ApplyPatch applies the supplied fields to the record. Only keys
	// present in the body change; unknown keys are rejected.
	ApplyPatch(tx *Tx, rec Record, body Body) error
	// Serialize renders the record as its field dictionary
	Serialize(tx *Tx, rec Record) (Fields, error)
	// List returns the principal's live records matching the filters
	List(tx *Tx, filters map[string]string) ([]Record, error)
	// Find returns the principal's record by id, soft-deleted or not
	Find(tx *Tx, id int) (Record, error)

	// AfterCreate runs cross-entity side effects after a create and
	// returns any additional affected records
	AfterCreate(tx *Tx, rec Record, body Body) ([]Affected, error)
	// AfterUpdate runs cross-entity side effects after an update
	AfterUpdate(tx *Tx, rec Record) ([]Affected, error)
	// AfterDelete clears back-references or enforces guards after a delete
	AfterDelete(tx *Tx, rec Record) ([]Affected, error)
}

// Affected pairs a record touched by a side-effect hook with the
// resource that renders it. Hooks routinely touch records of a kind
// other than their own, such as a note deletion clearing a document's
// back-reference.
type Affected struct {
	Res Resource
	Rec Record
}

// NoHooks provides no-op side-effect hooks for resources that need none
type NoHooks struct{}

// AfterCreate is a no-op
func (NoHooks) AfterCreate(tx *Tx, rec Record, body Body) ([]Affected, error) {
	return nil, nil
}

// AfterUpdate is a no-op
func (NoHooks) AfterUpdate(tx *Tx, rec Record) ([]Affected, error) {
	return nil, nil
}

// AfterDelete is a no-op
func (NoHooks) AfterDelete(tx *Tx, rec Record) ([]Affected, error) {
	return nil, nil
}

// Registry maps route names to their resources. It is built once at
// startup; lookups never involve reflection.
type Registry struct {
	resources map[string]Resource
}

// NewRegistry constructs the registry of all annotatable entity kinds
func NewRegistry(fetcher *autofill.Fetcher) *Registry {
	r := Registry{
		resources: map[string]Resource{},
	}

	r.register(&Documents{Autofill: fetcher})
	r.register(&Annotations{})
	r.register(&Notes{})
	r.register(&Tags{})

	return &r
}

func (r *Registry) register(res Resource) {
	r.resources[res.Name()] = res
}

// Lookup returns the resource for the given route name
func (r *Registry) Lookup(name string) (Resource, bool) {
	res, ok := r.resources[name]
	return res, ok
}
