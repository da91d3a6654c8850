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
	"time"

	"github.com/marginalia/marginalia/pkg/server/database"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// Notes is the resource for free-form markdown notes
type Notes struct {
}

// Name returns the route segment and response table name
func (Notes) Name() string {
	return "notes"
}

// FilterColumns returns the permitted list filters
func (Notes) FilterColumns() []string {
	return []string{"parser"}
}

// Build constructs a new note from the request body
func (r *Notes) Build(tx *Tx, body Body) (Record, error) {
	now := tx.Clock.Now()
	note := database.Note{
		CreatedAt:      now,
		LastModifiedAt: now,
	}

	if err := r.ApplyPatch(tx, &note, body); err != nil {
		return nil, err
	}

	return &note, nil
}

// ApplyPatch applies the supplied fields to the note. The annotation_id
// and document_id keys are not note columns; they are consumed by
// AfterCreate to set the target's back-reference.
func (r *Notes) ApplyPatch(tx *Tx, rec Record, body Body) error {
	note := rec.(*database.Note)

	for key, val := range body {
		var err error

		switch key {
		case "id", "user_id", "annotation_id", "document_id":
		case "body":
			note.Body, err = stringVal(key, val)
		case "parser":
			note.Parser, err = stringVal(key, val)
		case "deleted_at":
			var t *time.Time
			t, err = dateVal(key, val)
			if err == nil {
				note.DeletedAt = t
			}
		default:
			err = Validationf("Unknown attribute %q", key)
		}

		if err != nil {
			return err
		}
	}

	note.LastModifiedAt = tx.Clock.Now()

	return nil
}

// Serialize renders the note as its field dictionary
func (Notes) Serialize(tx *Tx, rec Record) (Fields, error) {
	note := rec.(*database.Note)

	return Fields{
		"id":               note.ID,
		"user_id":          note.UserID,
		"body":             note.Body,
		"parser":           note.Parser,
		"created_at":       formatDateTime(note.CreatedAt),
		"last_modified_at": formatDateTime(note.LastModifiedAt),
		"deleted_at":       formatDate(note.DeletedAt),
	}, nil
}

// List returns the principal's live notes matching the filters
func (Notes) List(tx *Tx, filters map[string]string) ([]Record, error) {
	var notes []database.Note
	conn := tx.DB.Where("user_id = ? AND deleted_at IS NULL", tx.User.ID)
	for col, val := range filters {
		conn = conn.Where(col+" = ?", val)
	}
	if err := conn.Order("id ASC").Find(&notes).Error; err != nil {
		return nil, errors.Wrap(err, "querying notes")
	}

	recs := make([]Record, 0, len(notes))
	for i := range notes {
		recs = append(recs, &notes[i])
	}

	return recs, nil
}

// Find returns the principal's note by id, soft-deleted or not
func (Notes) Find(tx *Tx, id int) (Record, error) {
	var note database.Note
	conn := tx.DB.Where("user_id = ? AND id = ?", tx.User.ID, id).First(&note)
	if conn.Error != nil {
		if errors.Is(conn.Error, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}

		return nil, errors.Wrap(conn.Error, "finding note")
	}

	return &note, nil
}

// AfterCreate links the new note from the annotation or document named
// in the request body, scoped to the principal
func (r *Notes) AfterCreate(tx *Tx, rec Record, body Body) ([]Affected, error) {
	note := rec.(*database.Note)

	if v, ok := body["annotation_id"]; ok {
		id, err := intVal("annotation_id", v)
		if err != nil {
			return nil, err
		}

		var ann database.Annotation
		conn := tx.DB.Where("user_id = ? AND id = ?", tx.User.ID, id).First(&ann)
		if conn.Error != nil {
			if errors.Is(conn.Error, gorm.ErrRecordNotFound) {
				return nil, Validationf("Annotation %d does not exist", id)
			}

			return nil, errors.Wrap(conn.Error, "finding annotation")
		}

		ann.NoteID = &note.ID
		if err := tx.DB.Save(&ann).Error; err != nil {
			return nil, errors.Wrap(err, "saving annotation")
		}

		return []Affected{{Res: &Annotations{}, Rec: &ann}}, nil
	}

	if v, ok := body["document_id"]; ok {
		id, err := intVal("document_id", v)
		if err != nil {
			return nil, err
		}

		var doc database.Document
		conn := tx.DB.Where("user_id = ? AND id = ?", tx.User.ID, id).Preload("Tags").First(&doc)
		if conn.Error != nil {
			if errors.Is(conn.Error, gorm.ErrRecordNotFound) {
				return nil, Validationf("Document %d does not exist", id)
			}

			return nil, errors.Wrap(conn.Error, "finding document")
		}

		doc.NoteID = &note.ID
		if err := tx.DB.Save(&doc).Error; err != nil {
			return nil, errors.Wrap(err, "saving document")
		}

		return []Affected{{Res: &Documents{}, Rec: &doc}}, nil
	}

	return nil, nil
}

// AfterUpdate is a no-op
func (r *Notes) AfterUpdate(tx *Tx, rec Record) ([]Affected, error) {
	return nil, nil
}

// AfterDelete clears the note_id back-reference on any annotation or
// document that points at the deleted note
func (r *Notes) AfterDelete(tx *Tx, rec Record) ([]Affected, error) {
	note := rec.(*database.Note)
	affected := []Affected{}

	var anns []database.Annotation
	err := tx.DB.Where("user_id = ? AND note_id = ?", tx.User.ID, note.ID).Find(&anns).Error
	if err != nil {
		return nil, errors.Wrap(err, "querying referencing annotations")
	}
	for i := range anns {
		anns[i].NoteID = nil
		if err := tx.DB.Save(&anns[i]).Error; err != nil {
			return nil, errors.Wrap(err, "clearing annotation back-reference")
		}

		affected = append(affected, Affected{Res: &Annotations{}, Rec: &anns[i]})
	}

	var docs []database.Document
	err = tx.DB.Where("user_id = ? AND note_id = ?", tx.User.ID, note.ID).Preload("Tags").Find(&docs).Error
	if err != nil {
		return nil, errors.Wrap(err, "querying referencing documents")
	}
	for i := range docs {
		docs[i].NoteID = nil
		if err := tx.DB.Save(&docs[i]).Error; err != nil {
			return nil, errors.Wrap(err, "clearing document back-reference")
		}

		affected = append(affected, Affected{Res: &Documents{}, Rec: &docs[i]})
	}

	return affected, nil
}
