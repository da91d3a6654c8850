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

	"github.com/marginalia/marginalia/pkg/server/autofill"
	"github.com/marginalia/marginalia/pkg/server/database"
	"github.com/marginalia/marginalia/pkg/server/log"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// Documents is the resource for referenced PDF documents
type Documents struct {
	NoHooks
	Autofill *autofill.Fetcher
}

// Name returns the route segment and response table name
func (Documents) Name() string {
	return "documents"
}

// FilterColumns returns the permitted list filters
func (Documents) FilterColumns() []string {
	return []string{"url", "hash"}
}

// Build constructs a new document from the request body. Blank title
// and author are filled from publisher metadata when the URL is
// recognized; a scrape failure is logged and never fails the create.
func (r *Documents) Build(tx *Tx, body Body) (Record, error) {
	now := tx.Clock.Now()
	doc := database.Document{
		CreatedAt:      now,
		LastModifiedAt: now,
	}

	if err := r.ApplyPatch(tx, &doc, body); err != nil {
		return nil, err
	}

	if doc.URL == "" {
		return nil, Validationf("Attribute %q is required", "url")
	}

	if r.Autofill != nil && r.Autofill.Supports(doc.URL) && (doc.Title == "" || doc.Author == "") {
		meta, err := r.Autofill.Fetch(doc.URL)
		if err != nil {
			log.WithFields(log.Fields{
				"url": doc.URL,
			}).ErrorWrap(err, "fetching publisher metadata")
		} else {
			if doc.Title == "" {
				doc.Title = meta.Title
			}
			if doc.Author == "" {
				doc.Author = meta.Author
			}
		}
	}

	return &doc, nil
}

// ApplyPatch applies the supplied fields to the document
func (r *Documents) ApplyPatch(tx *Tx, rec Record, body Body) error {
	doc := rec.(*database.Document)

	for key, val := range body {
		var err error

		switch key {
		case "id", "user_id":
			// force-set by the generic operations
		case "url":
			doc.URL, err = stringVal(key, val)
		case "hash":
			doc.Hash, err = stringVal(key, val)
		case "title":
			doc.Title, err = stringVal(key, val)
		case "author":
			doc.Author, err = stringVal(key, val)
		case "bibtex":
			doc.Bibtex, err = stringVal(key, val)
		case "read":
			doc.Read, err = boolVal(key, val)
		case "note_id":
			doc.NoteID, err = intRefVal(key, val)
		case "tag_names":
			err = r.applyTagNames(tx, doc, key, val)
		case "deleted_at":
			var t *time.Time
			t, err = dateVal(key, val)
			if err == nil {
				doc.DeletedAt = t
			}
		default:
			err = Validationf("Unknown attribute %q", key)
		}

		if err != nil {
			return err
		}
	}

	doc.LastModifiedAt = tx.Clock.Now()

	return nil
}

// applyTagNames replaces the document's tag set with the named tags.
// Every name must resolve to one of the principal's existing tags.
func (r *Documents) applyTagNames(tx *Tx, doc *database.Document, key string, val interface{}) error {
	items, ok := val.([]interface{})
	if !ok {
		return Validationf("Attribute %q must be a list of strings", key)
	}

	tags := []database.Tag{}
	for _, item := range items {
		name, ok := item.(string)
		if !ok {
			return Validationf("Attribute %q must be a list of strings", key)
		}
		name = strings.TrimSpace(name)

		var tag database.Tag
		conn := tx.DB.Where("user_id = ? AND name = ?", tx.User.ID, name).First(&tag)
		if conn.Error != nil {
			if errors.Is(conn.Error, gorm.ErrRecordNotFound) {
				return Validationf("Tag %q does not exist", name)
			}

			return errors.Wrap(conn.Error, "finding tag")
		}

		tags = append(tags, tag)
	}

	if doc.ID == 0 {
		doc.Tags = tags
		return nil
	}

	if err := tx.DB.Model(doc).Association("Tags").Replace(tags); err != nil {
		return errors.Wrap(err, "replacing tag associations")
	}
	doc.Tags = tags

	return nil
}

// Serialize renders the document as its field dictionary
func (Documents) Serialize(tx *Tx, rec Record) (Fields, error) {
	doc := rec.(*database.Document)

	tagNames := []string{}
	for _, tag := range doc.Tags {
		tagNames = append(tagNames, tag.Name)
	}

	return Fields{
		"id":               doc.ID,
		"user_id":          doc.UserID,
		"url":              doc.URL,
		"hash":             doc.Hash,
		"title":            doc.Title,
		"author":           doc.Author,
		"bibtex":           doc.Bibtex,
		"read":             doc.Read,
		"note_id":          doc.NoteID,
		"tag_names":        tagNames,
		"created_at":       formatDateTime(doc.CreatedAt),
		"last_modified_at": formatDateTime(doc.LastModifiedAt),
		"last_accessed_at": formatDateTimeRef(doc.LastAccessedAt),
		"deleted_at":       formatDate(doc.DeletedAt),
	}, nil
}

// List returns the principal's live documents matching the filters
func (Documents) List(tx *Tx, filters map[string]string) ([]Record, error) {
	var docs []database.Document
	conn := tx.DB.Where("user_id = ? AND deleted_at IS NULL", tx.User.ID)
	for col, val := range filters {
		conn = conn.Where(col+" = ?", val)
	}
	if err := conn.Preload("Tags").Order("id ASC").Find(&docs).Error; err != nil {
		return nil, errors.Wrap(err, "querying documents")
	}

	recs := make([]Record, 0, len(docs))
	for i := range docs {
		recs = append(recs, &docs[i])
	}

	return recs, nil
}

// Find returns the principal's document by id, soft-deleted or not
func (Documents) Find(tx *Tx, id int) (Record, error) {
	var doc database.Document
	conn := tx.DB.Where("user_id = ? AND id = ?", tx.User.ID, id).Preload("Tags").First(&doc)
	if conn.Error != nil {
		if errors.Is(conn.Error, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}

		return nil, errors.Wrap(conn.Error, "finding document")
	}

	return &doc, nil
}
