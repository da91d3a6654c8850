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
	"strings"
	"time"

	"github.com/marginalia/marginalia/pkg/server/database"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// Tags is the resource for user-scoped document labels
type Tags struct {
	NoHooks
}

// Name returns the route segment and response table name
func (Tags) Name() string {
	return "tags"
}

// FilterColumns returns the permitted list filters
func (Tags) FilterColumns() []string {
	return []string{"name"}
}

// Build constructs a new tag from the request body
func (r *Tags) Build(tx *Tx, body Body) (Record, error) {
	tag := database.Tag{}

	if err := r.ApplyPatch(tx, &tag, body); err != nil {
		return nil, err
	}

	if tag.Name == "" {
		return nil, ValidationError{Message: "Tag name cannot be empty"}
	}

	return &tag, nil
}

// ApplyPatch applies the supplied fields to the tag. Names are trimmed
// and must be unique within the principal's tags.
func (r *Tags) ApplyPatch(tx *Tx, rec Record, body Body) error {
	tag := rec.(*database.Tag)

	for key, val := range body {
		var err error

		switch key {
		case "id", "user_id":
		case "name":
			var name string
			name, err = stringVal(key, val)
			if err == nil {
				err = r.applyName(tx, tag, name)
			}
		case "description":
			tag.Description, err = stringVal(key, val)
		case "deleted_at":
			var t *time.Time
			t, err = dateVal(key, val)
			if err == nil {
				tag.DeletedAt = t
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

func (r *Tags) applyName(tx *Tx, tag *database.Tag, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ValidationError{Message: "Tag name cannot be empty"}
	}

	var count int64
	err := tx.DB.Model(&database.Tag{}).
		Where("user_id = ? AND name = ? AND id <> ?", tx.User.ID, name, tag.ID).
		Count(&count).Error
	if err != nil {
		return errors.Wrap(err, "checking name uniqueness")
	}
	if count > 0 {
		return Validationf("Tag name %q is already in use. Choose another name.", name)
	}

	tag.Name = name

	return nil
}

// Serialize renders the tag as its field dictionary
func (Tags) Serialize(tx *Tx, rec Record) (Fields, error) {
	tag := rec.(*database.Tag)

	return Fields{
		"id":          tag.ID,
		"user_id":     tag.UserID,
		"name":        tag.Name,
		"description": tag.Description,
		"deleted_at":  formatDate(tag.DeletedAt),
	}, nil
}

// List returns the principal's live tags matching the filters
func (Tags) List(tx *Tx, filters map[string]string) ([]Record, error) {
	var tags []database.Tag
	conn := tx.DB.Where("user_id = ? AND deleted_at IS NULL", tx.User.ID)
	for col, val := range filters {
		conn = conn.Where(col+" = ?", val)
	}
	if err := conn.Order("id ASC").Find(&tags).Error; err != nil {
		return nil, errors.Wrap(err, "querying tags")
	}

	recs := make([]Record, 0, len(tags))
	for i := range tags {
		recs = append(recs, &tags[i])
	}

	return recs, nil
}

// Find returns the principal's tag by id, soft-deleted or not
func (Tags) Find(tx *Tx, id int) (Record, error) {
	var tag database.Tag
	conn := tx.DB.Where("user_id = ? AND id = ?", tx.User.ID, id).First(&tag)
	if conn.Error != nil {
		if errors.Is(conn.Error, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}

		return nil, errors.Wrap(conn.Error, "finding tag")
	}

	return &tag, nil
}

// AfterDelete blocks the delete while any live document still carries
// the tag. The surrounding transaction rolls the delete back.
func (r *Tags) AfterDelete(tx *Tx, rec Record) ([]Affected, error) {
	tag := rec.(*database.Tag)

	var count int64
	err := tx.DB.Model(&database.Document{}).
		Joins("JOIN documents_tags ON documents_tags.document_id = documents.id").
		Where("documents_tags.tag_id = ? AND documents.deleted_at IS NULL", tag.ID).
		Count(&count).Error
	if err != nil {
		return nil, errors.Wrap(err, "counting tagged documents")
	}
	if count > 0 {
		return nil, Validationf("Tag %q is still used by %d document(s)", tag.Name, count)
	}

	return nil, nil
}
