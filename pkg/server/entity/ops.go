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

package entity

import (
	"net/url"
	"strconv"
	"time"

	"github.com/pkg/errors"
)

// Fields is the serialized form of a single record
type Fields map[string]interface{}

// Entities is the uniform response payload: table name -> id -> fields.
// The nesting allows one response to carry heterogeneous entity kinds
// when cross-entity side effects occur, so a client can reconcile its
// local cache from a single response.
type Entities map[string]map[string]Fields

// Add inserts the serialized record under its table name and id
func (e Entities) Add(name string, id int, f Fields) {
	if _, ok := e[name]; !ok {
		e[name] = map[string]Fields{}
	}

	e[name][strconv.Itoa(id)] = f
}

// serializeInto renders the given records of the resource into the payload
func serializeInto(res Resource, tx *Tx, out Entities, recs ...Record) error {
	for _, rec := range recs {
		f, err := res.Serialize(tx, rec)
		if err != nil {
			return errors.Wrap(err, "serializing record")
		}

		out.Add(res.Name(), rec.RecordID(), f)
	}

	return nil
}

// ListRecords returns the principal's live records matching the
// allow-listed query filters
func ListRecords(res Resource, tx *Tx, query url.Values) (Entities, error) {
	filters := map[string]string{}
	for _, col := range res.FilterColumns() {
		if val := query.Get(col); val != "" {
			filters[col] = val
		}
	}

	recs, err := res.List(tx, filters)
	if err != nil {
		return nil, errors.Wrap(err, "listing records")
	}

	out := Entities{}
	if err := serializeInto(res, tx, out, recs...); err != nil {
		return nil, err
	}

	return out, nil
}

// CreateRecord builds and persists a new record owned by the principal.
// The ownership is force-set; a client-supplied user_id is ignored.
func CreateRecord(res Resource, tx *Tx, body Body) (Entities, error) {
	rec, err := res.Build(tx, body)
	if err != nil {
		return nil, err
	}

	rec.SetOwner(tx.User.ID)

	if err := tx.DB.Create(rec).Error; err != nil {
		return nil, errors.Wrap(err, "inserting record")
	}

	extra, err := res.AfterCreate(tx, rec, body)
	if err != nil {
		return nil, err
	}

	out := Entities{}
	if err := serializeInto(res, tx, out, rec); err != nil {
		return nil, err
	}
	if err := serializeAffected(tx, out, extra); err != nil {
		return nil, err
	}

	return out, nil
}

// serializeAffected renders side-effect records, each with its own resource
func serializeAffected(tx *Tx, out Entities, affected []Affected) error {
	for _, a := range affected {
		if err := serializeInto(a.Res, tx, out, a.Rec); err != nil {
			return err
		}
	}

	return nil
}

// GetRecord returns the single record by id, scoped to the principal
func GetRecord(res Resource, tx *Tx, id int) (Entities, error) {
	rec, err := res.Find(tx, id)
	if err != nil {
		return nil, err
	}

	out := Entities{}
	if err := serializeInto(res, tx, out, rec); err != nil {
		return nil, err
	}

	return out, nil
}

// UpdateRecord applies a partial patch to the record. A soft-deleted
// record is undeleted before the rest of the patch is applied.
func UpdateRecord(res Resource, tx *Tx, id int, body Body) (Entities, error) {
	rec, err := res.Find(tx, id)
	if err != nil {
		return nil, err
	}

	if rec.DeletedOn() != nil {
		rec.SetDeletedOn(nil)
	}

	if err := res.ApplyPatch(tx, rec, body); err != nil {
		return nil, err
	}

	if err := tx.DB.Save(rec).Error; err != nil {
		return nil, errors.Wrap(err, "saving record")
	}

	extra, err := res.AfterUpdate(tx, rec)
	if err != nil {
		return nil, err
	}

	out := Entities{}
	if err := serializeInto(res, tx, out, rec); err != nil {
		return nil, err
	}
	if err := serializeAffected(tx, out, extra); err != nil {
		return nil, err
	}

	return out, nil
}

// DeleteRecord marks the record soft-deleted as of today. Deleting an
// already deleted record re-sets the date without error.
func DeleteRecord(res Resource, tx *Tx, id int) (Entities, error) {
	rec, err := res.Find(tx, id)
	if err != nil {
		return nil, err
	}

	now := tx.Clock.Now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	rec.SetDeletedOn(&today)

	if err := tx.DB.Save(rec).Error; err != nil {
		return nil, errors.Wrap(err, "saving record")
	}

	extra, err := res.AfterDelete(tx, rec)
	if err != nil {
		return nil, err
	}

	out := Entities{}
	if err := serializeInto(res, tx, out, rec); err != nil {
		return nil, err
	}
	if err := serializeAffected(tx, out, extra); err != nil {
		return nil, err
	}

	return out, nil
}
