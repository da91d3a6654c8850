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
	"encoding/json"
	"time"

	"github.com/marginalia/marginalia/pkg/server/database"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// Annotations is the resource for positional markers on document pages
type Annotations struct {
}

// Name returns the route segment and response table name
func (Annotations) Name() string {
	return "annotations"
}

// FilterColumns returns the permitted list filters
func (Annotations) FilterColumns() []string {
	return []string{"doc_id", "page", "type"}
}

// Build constructs a new annotation from the request body. The target
// document must exist and belong to the principal.
func (r *Annotations) Build(tx *Tx, body Body) (Record, error) {
	ann := database.Annotation{}

	if err := r.ApplyPatch(tx, &ann, body); err != nil {
		return nil, err
	}

	if ann.DocID == 0 {
		return nil, Validationf("Attribute %q is required", "doc_id")
	}
	if ann.Type == "" {
		return nil, Validationf("Attribute %q is required", "type")
	}

	var count int64
	err := tx.DB.Model(&database.Document{}).
		Where("user_id = ? AND id = ?", tx.User.ID, ann.DocID).
		Count(&count).Error
	if err != nil {
		return nil, errors.Wrap(err, "checking target document")
	}
	if count == 0 {
		return nil, Validationf("Document %d does not exist", ann.DocID)
	}

	return &ann, nil
}

// ApplyPatch applies the supplied fields to the annotation
func (r *Annotations) ApplyPatch(tx *Tx, rec Record, body Body) error {
	ann := rec.(*database.Annotation)

	for key, val := range body {
		var err error

		switch key {
		case "id", "user_id":
			// force-set by the generic operations
		case "doc_id":
			ann.DocID, err = intVal(key, val)
		case "page":
			ann.Page, err = stringVal(key, val)
		case "type":
			var typ string
			typ, err = stringVal(key, val)
			if err == nil && typ != database.AnnotationTypePoint && typ != database.AnnotationTypeRect {
				err = Validationf("Attribute %q must be %q or %q", key, database.AnnotationTypePoint, database.AnnotationTypeRect)
			}
			if err == nil {
				ann.Type = typ
			}
		case "blob":
			ann.Blob, err = stringVal(key, val)
		case "parser":
			ann.Parser, err = stringVal(key, val)
		case "position":
			ann.Position, err = canonicalPosition(key, val)
		case "note_id":
			ann.NoteID, err = intRefVal(key, val)
		case "deleted_at":
			var t *time.Time
			t, err = dateVal(key, val)
			if err == nil {
				ann.DeletedAt = t
			}
		default:
			err = Validationf("Unknown attribute %q", key)
		}

		if err != nil {
			return err
		}
	}

	return nil
}

// canonicalPosition stores the position as compact JSON text. The value
// arrives as a JSON object and is re-encoded so equal positions compare
// equal as strings.
func canonicalPosition(key string, val interface{}) (string, error) {
	if val == nil {
		return "", nil
	}

	if _, ok := val.(map[string]interface{}); !ok {
		return "", Validationf("Attribute %q must be an object", key)
	}

	data, err := json.Marshal(val)
	if err != nil {
		return "", errors.Wrap(err, "encoding position")
	}

	return string(data), nil
}

// Serialize renders the annotation as its field dictionary
func (Annotations) Serialize(tx *Tx, rec Record) (Fields, error) {
	ann := rec.(*database.Annotation)

	var position interface{}
	if ann.Position != "" {
		position = json.RawMessage(ann.Position)
	}

	return Fields{
		"id":         ann.ID,
		"user_id":    ann.UserID,
		"doc_id":     ann.DocID,
		"page":       ann.Page,
		"type":       ann.Type,
		"blob":       ann.Blob,
		"parser":     ann.Parser,
		"position":   position,
		"note_id":    ann.NoteID,
		"deleted_at": formatDate(ann.DeletedAt),
	}, nil
}

// List returns the principal's live annotations matching the filters
func (Annotations) List(tx *Tx, filters map[string]string) ([]Record, error) {
	var anns []database.Annotation
	conn := tx.DB.Where("user_id = ? AND deleted_at IS NULL", tx.User.ID)
	for col, val := range filters {
		conn = conn.Where(col+" = ?", val)
	}
	if err := conn.Order("id ASC").Find(&anns).Error; err != nil {
		return nil, errors.Wrap(err, "querying annotations")
	}

	recs := make([]Record, 0, len(anns))
	for i := range anns {
		recs = append(recs, &anns[i])
	}

	return recs, nil
}

// Find returns the principal's annotation by id, soft-deleted or not
func (Annotations) Find(tx *Tx, id int) (Record, error) {
	var ann database.Annotation
	conn := tx.DB.Where("user_id = ? AND id = ?", tx.User.ID, id).First(&ann)
	if conn.Error != nil {
		if errors.Is(conn.Error, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}

		return nil, errors.Wrap(conn.Error, "finding annotation")
	}

	return &ann, nil
}

// touchDocument refreshes the parent document's modification time and
// returns it so the response reflects the change
func (r *Annotations) touchDocument(tx *Tx, ann *database.Annotation) ([]Affected, error) {
	var doc database.Document
	conn := tx.DB.Where("user_id = ? AND id = ?", tx.User.ID, ann.DocID).Preload("Tags").First(&doc)
	if conn.Error != nil {
		if errors.Is(conn.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}

		return nil, errors.Wrap(conn.Error, "finding parent document")
	}

	doc.LastModifiedAt = tx.Clock.Now()
	if err := tx.DB.Save(&doc).Error; err != nil {
		return nil, errors.Wrap(err, "saving parent document")
	}

	return []Affected{{Res: &Documents{}, Rec: &doc}}, nil
}

// AfterCreate refreshes the parent document's modification time
func (r *Annotations) AfterCreate(tx *Tx, rec Record, body Body) ([]Affected, error) {
	return r.touchDocument(tx, rec.(*database.Annotation))
}

// AfterUpdate refreshes the parent document's modification time
func (r *Annotations) AfterUpdate(tx *Tx, rec Record) ([]Affected, error) {
	return r.touchDocument(tx, rec.(*database.Annotation))
}

// AfterDelete refreshes the parent document's modification time
func (r *Annotations) AfterDelete(tx *Tx, rec Record) ([]Affected, error) {
	return r.touchDocument(tx, rec.(*database.Annotation))
}
