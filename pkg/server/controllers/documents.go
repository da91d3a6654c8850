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

	"github.com/marginalia/marginalia/pkg/server/app"
	"github.com/marginalia/marginalia/pkg/server/autofill"
	"github.com/marginalia/marginalia/pkg/server/database"
	"github.com/marginalia/marginalia/pkg/server/entity"
	"github.com/marginalia/marginalia/pkg/server/helpers"
	"github.com/marginalia/marginalia/pkg/server/log"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// NewDocuments creates a new Documents controller
func NewDocuments(app *app.App, fetcher *autofill.Fetcher) *Documents {
	return &Documents{
		app:     app,
		fetcher: fetcher,
	}
}

// Documents is the controller for document endpoints beyond the generic
// entity operations
type Documents struct {
	app     *app.App
	fetcher *autofill.Fetcher
}

// findDocument returns the principal's document from the id path variable
func (c *Documents) findDocument(r *http.Request, user database.User) (database.Document, error) {
	var doc database.Document

	id, err := recordID(r)
	if err != nil {
		return doc, err
	}

	conn := c.app.DB.Where("user_id = ? AND id = ?", user.ID, id).Preload("Tags").First(&doc)
	if errors.Is(conn.Error, gorm.ErrRecordNotFound) {
		return doc, entity.ErrNotFound
	} else if conn.Error != nil {
		return doc, errors.Wrap(conn.Error, "finding document")
	}

	return doc, nil
}

// GetPDF serves a locally cached copy of the document's PDF
func (c *Documents) GetPDF(w http.ResponseWriter, r *http.Request) {
	user, ok := mustUser(w, r)
	if !ok {
		return
	}

	doc, err := c.findDocument(r, user)
	if err != nil {
		handleJSONError(w, err, "finding document")
		return
	}

	path, err := c.app.GetDocumentPDF(doc)
	if err != nil {
		handleJSONError(w, err, "fetching pdf")
		return
	}

	now := c.app.Clock.Now()
	doc.LastAccessedAt = &now
	if err := c.app.DB.Save(&doc).Error; err != nil {
		log.ErrorWrap(err, "updating access time")
	}

	w.Header().Set("Content-Type", "application/pdf")
	http.ServeFile(w, r, path)
}

// Recursive returns the document together with its annotations, linked
// notes, and tags in one payload
func (c *Documents) Recursive(w http.ResponseWriter, r *http.Request) {
	user, ok := mustUser(w, r)
	if !ok {
		return
	}

	doc, err := c.findDocument(r, user)
	if err != nil {
		handleJSONError(w, err, "finding document")
		return
	}

	tx := entity.Tx{DB: c.app.DB, User: user, Clock: c.app.Clock}
	out := entity.Entities{}

	var docs entity.Documents
	f, err := docs.Serialize(&tx, &doc)
	if err != nil {
		handleJSONError(w, err, "serializing document")
		return
	}
	out.Add(docs.Name(), doc.ID, f)

	noteIDs := []int{}
	if doc.NoteID != nil {
		noteIDs = append(noteIDs, *doc.NoteID)
	}

	var anns []database.Annotation
	err = c.app.DB.Where("user_id = ? AND doc_id = ? AND deleted_at IS NULL", user.ID, doc.ID).
		Order("id ASC").Find(&anns).Error
	if err != nil {
		handleJSONError(w, errors.Wrap(err, "querying annotations"), "fetching annotations")
		return
	}

	var annRes entity.Annotations
	for i := range anns {
		f, err := annRes.Serialize(&tx, &anns[i])
		if err != nil {
			handleJSONError(w, err, "serializing annotation")
			return
		}
		out.Add(annRes.Name(), anns[i].ID, f)

		if anns[i].NoteID != nil {
			noteIDs = append(noteIDs, *anns[i].NoteID)
		}
	}

	if len(noteIDs) > 0 {
		var notes []database.Note
		err = c.app.DB.Where("user_id = ? AND id IN ?", user.ID, noteIDs).Find(&notes).Error
		if err != nil {
			handleJSONError(w, errors.Wrap(err, "querying notes"), "fetching notes")
			return
		}

		var noteRes entity.Notes
		for i := range notes {
			f, err := noteRes.Serialize(&tx, &notes[i])
			if err != nil {
				handleJSONError(w, err, "serializing note")
				return
			}
			out.Add(noteRes.Name(), notes[i].ID, f)
		}
	}

	var tagRes entity.Tags
	for i := range doc.Tags {
		f, err := tagRes.Serialize(&tx, &doc.Tags[i])
		if err != nil {
			handleJSONError(w, err, "serializing tag")
			return
		}
		out.Add(tagRes.Name(), doc.Tags[i].ID, f)
	}

	respondJSON(w, http.StatusOK, EntitiesResp{Entities: out})
}

// AccessCodeResp is the response for a created document access code
type AccessCodeResp struct {
	Code       string `json:"code"`
	AllowRead  bool   `json:"allow_read"`
	AllowWrite bool   `json:"allow_write"`
}

// AccessCode mints a read-only share code for the document
func (c *Documents) AccessCode(w http.ResponseWriter, r *http.Request) {
	user, ok := mustUser(w, r)
	if !ok {
		return
	}

	doc, err := c.findDocument(r, user)
	if err != nil {
		handleJSONError(w, err, "finding document")
		return
	}

	code, err := helpers.GenUUID()
	if err != nil {
		handleJSONError(w, errors.Wrap(err, "generating code"), "creating access code")
		return
	}

	accessCode := database.DocumentAccessCode{
		UserID:     user.ID,
		DocumentID: doc.ID,
		AllowRead:  true,
		Code:       code,
	}
	if err := c.app.DB.Create(&accessCode).Error; err != nil {
		handleJSONError(w, errors.Wrap(err, "saving access code"), "creating access code")
		return
	}

	respondJSON(w, http.StatusCreated, AccessCodeResp{
		Code:       accessCode.Code,
		AllowRead:  accessCode.AllowRead,
		AllowWrite: accessCode.AllowWrite,
	})
}

// Autofill fills the document's blank title and author from publisher
// metadata and returns the updated document
func (c *Documents) Autofill(w http.ResponseWriter, r *http.Request) {
	user, ok := mustUser(w, r)
	if !ok {
		return
	}

	doc, err := c.findDocument(r, user)
	if err != nil {
		handleJSONError(w, err, "finding document")
		return
	}

	if c.fetcher == nil || !c.fetcher.Supports(doc.URL) {
		handleJSONError(w, entity.Validationf("No metadata source for %q", doc.URL), "fetching metadata")
		return
	}

	meta, err := c.fetcher.Fetch(doc.URL)
	if err != nil {
		handleJSONError(w, errors.Wrap(err, "fetching metadata"), "fetching metadata")
		return
	}

	if doc.Title == "" {
		doc.Title = meta.Title
	}
	if doc.Author == "" {
		doc.Author = meta.Author
	}
	doc.LastModifiedAt = c.app.Clock.Now()

	if err := c.app.DB.Save(&doc).Error; err != nil {
		handleJSONError(w, errors.Wrap(err, "saving document"), "saving document")
		return
	}

	tx := entity.Tx{DB: c.app.DB, User: user, Clock: c.app.Clock}
	out := entity.Entities{}

	var docs entity.Documents
	f, err := docs.Serialize(&tx, &doc)
	if err != nil {
		handleJSONError(w, err, "serializing document")
		return
	}
	out.Add(docs.Name(), doc.ID, f)

	respondJSON(w, http.StatusOK, EntitiesResp{Entities: out})
}
