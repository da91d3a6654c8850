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
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/marginalia/marginalia/pkg/assert"
	"github.com/marginalia/marginalia/pkg/server/app"
	"github.com/marginalia/marginalia/pkg/server/database"
	"github.com/marginalia/marginalia/pkg/server/helpers"
	"github.com/marginalia/marginalia/pkg/server/testutils"
)

// entitiesPayload mirrors the wire shape of entity responses for assertions
type entitiesPayload struct {
	Entities map[string]map[string]map[string]interface{} `json:"entities"`
}

func decodeEntities(t *testing.T, res *http.Response) entitiesPayload {
	var payload entitiesPayload
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		t.Fatal(err)
	}

	return payload
}

func TestDataUnauthenticated(t *testing.T) {
	db := testutils.InitMemoryDB(t)

	a := app.NewTest()
	a.DB = db
	server := MustNewServer(t, &a)
	defer server.Close()

	req := testutils.MakeReq(server.URL, "GET", "/api/data/notes", "")
	res := testutils.HTTPDo(t, req)

	assert.StatusCodeEquals(t, res, http.StatusUnauthorized, "status code mismatch")
}

func TestDataUnknownEntityKind(t *testing.T) {
	db := testutils.InitMemoryDB(t)
	user := testutils.SetupUserData(db, "alice@example.com", "pass1234")

	a := app.NewTest()
	a.DB = db
	server := MustNewServer(t, &a)
	defer server.Close()

	req := testutils.MakeReq(server.URL, "GET", "/api/data/widgets", "")
	res := testutils.HTTPAuthDo(t, db, req, user)

	assert.StatusCodeEquals(t, res, http.StatusNotFound, "status code mismatch")
}

func TestDataCreateNote(t *testing.T) {
	db := testutils.InitMemoryDB(t)
	user := testutils.SetupUserData(db, "alice@example.com", "pass1234")

	a := app.NewTest()
	a.DB = db
	server := MustNewServer(t, &a)
	defer server.Close()

	dat := `{"body": "first note", "parser": "markdown"}`
	req := testutils.MakeReq(server.URL, "POST", "/api/data/notes", dat)
	res := testutils.HTTPAuthDo(t, db, req, user)

	assert.StatusCodeEquals(t, res, http.StatusCreated, "status code mismatch")

	var note database.Note
	testutils.MustExec(t, db.First(&note), "finding note")
	assert.Equal(t, note.Body, "first note", "body mismatch")
	assert.Equal(t, note.Parser, "markdown", "parser mismatch")
	assert.Equal(t, note.UserID, user.ID, "owner mismatch")

	payload := decodeEntities(t, res)
	fields, ok := payload.Entities["notes"][fmt.Sprintf("%d", note.ID)]
	if !ok {
		t.Fatal("created note missing from payload")
	}
	assert.Equal(t, fields["body"], "first note", "payload body mismatch")
}

func TestDataIndexScopedToOwner(t *testing.T) {
	db := testutils.InitMemoryDB(t)
	alice := testutils.SetupUserData(db, "alice@example.com", "pass1234")
	bob := testutils.SetupUserData(db, "bob@example.com", "pass1234")
	testutils.SetupNoteData(db, alice, "alice note")
	testutils.SetupNoteData(db, bob, "bob note")

	a := app.NewTest()
	a.DB = db
	server := MustNewServer(t, &a)
	defer server.Close()

	req := testutils.MakeReq(server.URL, "GET", "/api/data/notes", "")
	res := testutils.HTTPAuthDo(t, db, req, alice)

	assert.StatusCodeEquals(t, res, http.StatusOK, "status code mismatch")

	payload := decodeEntities(t, res)
	assert.Equal(t, len(payload.Entities["notes"]), 1, "note count mismatch")
	for _, fields := range payload.Entities["notes"] {
		assert.Equal(t, fields["body"], "alice note", "body mismatch")
	}
}

func TestDataShowOtherOwner(t *testing.T) {
	db := testutils.InitMemoryDB(t)
	alice := testutils.SetupUserData(db, "alice@example.com", "pass1234")
	bob := testutils.SetupUserData(db, "bob@example.com", "pass1234")
	note := testutils.SetupNoteData(db, bob, "bob note")

	a := app.NewTest()
	a.DB = db
	server := MustNewServer(t, &a)
	defer server.Close()

	req := testutils.MakeReq(server.URL, "GET", fmt.Sprintf("/api/data/notes/%d", note.ID), "")
	res := testutils.HTTPAuthDo(t, db, req, alice)

	assert.StatusCodeEquals(t, res, http.StatusNotFound, "status code mismatch")
}

func TestDataUpdatePartial(t *testing.T) {
	db := testutils.InitMemoryDB(t)
	user := testutils.SetupUserData(db, "alice@example.com", "pass1234")
	note := testutils.SetupNoteData(db, user, "original body")

	a := app.NewTest()
	a.DB = db
	server := MustNewServer(t, &a)
	defer server.Close()

	dat := `{"body": "updated body"}`
	req := testutils.MakeReq(server.URL, "PUT", fmt.Sprintf("/api/data/notes/%d", note.ID), dat)
	res := testutils.HTTPAuthDo(t, db, req, user)

	assert.StatusCodeEquals(t, res, http.StatusOK, "status code mismatch")

	var updated database.Note
	testutils.MustExec(t, db.First(&updated, note.ID), "finding note")
	assert.Equal(t, updated.Body, "updated body", "body mismatch")
	assert.Equal(t, updated.Parser, "markdown", "parser should be untouched")
}

func TestDataUpdateUnknownAttribute(t *testing.T) {
	db := testutils.InitMemoryDB(t)
	user := testutils.SetupUserData(db, "alice@example.com", "pass1234")
	note := testutils.SetupNoteData(db, user, "original body")

	a := app.NewTest()
	a.DB = db
	server := MustNewServer(t, &a)
	defer server.Close()

	dat := `{"bogus": "value"}`
	req := testutils.MakeReq(server.URL, "PUT", fmt.Sprintf("/api/data/notes/%d", note.ID), dat)
	res := testutils.HTTPAuthDo(t, db, req, user)

	assert.StatusCodeEquals(t, res, http.StatusBadRequest, "status code mismatch")

	var unchanged database.Note
	testutils.MustExec(t, db.First(&unchanged, note.ID), "finding note")
	assert.Equal(t, unchanged.Body, "original body", "body should be untouched")
}

func TestDataDeleteThenUndelete(t *testing.T) {
	db := testutils.InitMemoryDB(t)
	user := testutils.SetupUserData(db, "alice@example.com", "pass1234")
	note := testutils.SetupNoteData(db, user, "some body")

	a := app.NewTest()
	a.DB = db
	server := MustNewServer(t, &a)
	defer server.Close()

	delReq := testutils.MakeReq(server.URL, "DELETE", fmt.Sprintf("/api/data/notes/%d", note.ID), "")
	delRes := testutils.HTTPAuthDo(t, db, delReq, user)
	assert.StatusCodeEquals(t, delRes, http.StatusOK, "delete status code mismatch")

	payload := decodeEntities(t, delRes)
	fields := payload.Entities["notes"][fmt.Sprintf("%d", note.ID)]
	if fields["deleted_at"] == nil {
		t.Fatal("deleted_at should be set")
	}

	// a deleted record no longer appears in the listing
	idxReq := testutils.MakeReq(server.URL, "GET", "/api/data/notes", "")
	idxRes := testutils.HTTPAuthDo(t, db, idxReq, user)
	idxPayload := decodeEntities(t, idxRes)
	assert.Equal(t, len(idxPayload.Entities["notes"]), 0, "deleted note should be excluded from index")

	// but it can still be fetched directly
	showReq := testutils.MakeReq(server.URL, "GET", fmt.Sprintf("/api/data/notes/%d", note.ID), "")
	showRes := testutils.HTTPAuthDo(t, db, showReq, user)
	assert.StatusCodeEquals(t, showRes, http.StatusOK, "show status code mismatch")

	// clearing deleted_at through an update restores the record
	undelReq := testutils.MakeReq(server.URL, "PUT", fmt.Sprintf("/api/data/notes/%d", note.ID), `{"deleted_at": null}`)
	undelRes := testutils.HTTPAuthDo(t, db, undelReq, user)
	assert.StatusCodeEquals(t, undelRes, http.StatusOK, "undelete status code mismatch")

	var restored database.Note
	testutils.MustExec(t, db.First(&restored, note.ID), "finding note")
	if restored.DeletedAt != nil {
		t.Error("deleted_at should be cleared")
	}
}

func TestDataCreateAnnotationTouchesDocument(t *testing.T) {
	db := testutils.InitMemoryDB(t)
	user := testutils.SetupUserData(db, "alice@example.com", "pass1234")
	doc := testutils.SetupDocumentData(db, user, "https://example.com/paper.pdf")

	a := app.NewTest()
	a.DB = db
	server := MustNewServer(t, &a)
	defer server.Close()

	dat := fmt.Sprintf(`{"doc_id": %d, "type": "point", "page": "3", "position": {"x": 10, "y": 20}}`, doc.ID)
	req := testutils.MakeReq(server.URL, "POST", "/api/data/annotations", dat)
	res := testutils.HTTPAuthDo(t, db, req, user)

	assert.StatusCodeEquals(t, res, http.StatusCreated, "status code mismatch")

	payload := decodeEntities(t, res)
	assert.Equal(t, len(payload.Entities["annotations"]), 1, "annotation count mismatch")

	// the touched parent document rides along in the payload
	if _, ok := payload.Entities["documents"][fmt.Sprintf("%d", doc.ID)]; !ok {
		t.Error("parent document missing from payload")
	}
}

type failingTransport struct{}

func (failingTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	return nil, fmt.Errorf("dial tcp: connection refused")
}

func TestDataCreateDocumentAutofillFallback(t *testing.T) {
	db := testutils.InitMemoryDB(t)

	a := app.NewTest()
	a.DB = db
	// every outbound scrape fails; document creation must not care
	a.HTTPClient = &http.Client{Transport: failingTransport{}}
	server := MustNewServer(t, &a)
	defer server.Close()

	regReq := testutils.MakeReq(server.URL, "POST", "/api/users", `{"email": "alice@example.com", "password": "pass1234"}`)
	regRes := testutils.HTTPDo(t, regReq)
	assert.StatusCodeEquals(t, regRes, http.StatusCreated, "register status code mismatch")

	cookie := testutils.GetCookieByName(regRes.Cookies(), "id")
	if cookie == nil {
		t.Fatal("session cookie was not set")
	}

	docReq := testutils.MakeReq(server.URL, "POST", "/api/data/documents", `{"url": "https://arxiv.org/abs/1706.03762"}`)
	docReq.AddCookie(cookie)
	docRes := testutils.HTTPDo(t, docReq)

	assert.StatusCodeEquals(t, docRes, http.StatusCreated, "create status code mismatch")

	var doc database.Document
	testutils.MustExec(t, db.First(&doc), "finding document")
	assert.Equal(t, doc.URL, "https://arxiv.org/abs/1706.03762", "url mismatch")
	assert.Equal(t, doc.Title, "", "title should be blank when the scrape fails")
	assert.Equal(t, doc.Author, "", "author should be blank when the scrape fails")
}

// publisherTransport serves a canned arXiv abstract page for every request
type publisherTransport struct{}

func (publisherTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	html := `<html><body>
<h1 class="title mathjax"><span class="descriptor">Title:</span>Attention Is All You Need</h1>
<div class="authors"><span class="descriptor">Authors:</span>Ashish Vaswani, Noam Shazeer</div>
</body></html>`

	return &http.Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{"Content-Type": []string{"text/html"}},
		Body:       io.NopCloser(strings.NewReader(html)),
		Request:    r,
	}, nil
}

func TestDataCreateDocumentAutofill(t *testing.T) {
	db := testutils.InitMemoryDB(t)
	user := testutils.SetupUserData(db, "alice@example.com", "pass1234")

	a := app.NewTest()
	a.DB = db
	a.HTTPClient = &http.Client{Transport: publisherTransport{}}
	server := MustNewServer(t, &a)
	defer server.Close()

	dat := `{"url": "https://arxiv.org/abs/1706.03762"}`
	req := testutils.MakeReq(server.URL, "POST", "/api/data/documents", dat)
	res := testutils.HTTPAuthDo(t, db, req, user)

	assert.StatusCodeEquals(t, res, http.StatusCreated, "status code mismatch")

	var doc database.Document
	testutils.MustExec(t, db.First(&doc), "finding document")
	assert.Equal(t, doc.Title, "Attention Is All You Need", "title mismatch")
	assert.Equal(t, doc.Author, "Ashish Vaswani, Noam Shazeer", "author mismatch")

	payload := decodeEntities(t, res)
	fields := payload.Entities["documents"][fmt.Sprintf("%d", doc.ID)]
	assert.Equal(t, fields["title"], "Attention Is All You Need", "payload title mismatch")
}

func TestDataCreateDocumentAutofillKeepsClientTitle(t *testing.T) {
	db := testutils.InitMemoryDB(t)
	user := testutils.SetupUserData(db, "alice@example.com", "pass1234")

	a := app.NewTest()
	a.DB = db
	a.HTTPClient = &http.Client{Transport: publisherTransport{}}
	server := MustNewServer(t, &a)
	defer server.Close()

	// only blank fields are filled from publisher metadata
	dat := `{"url": "https://arxiv.org/abs/1706.03762", "title": "my reading copy"}`
	req := testutils.MakeReq(server.URL, "POST", "/api/data/documents", dat)
	res := testutils.HTTPAuthDo(t, db, req, user)

	assert.StatusCodeEquals(t, res, http.StatusCreated, "status code mismatch")

	var doc database.Document
	testutils.MustExec(t, db.First(&doc), "finding document")
	assert.Equal(t, doc.Title, "my reading copy", "title should not be overwritten")
	assert.Equal(t, doc.Author, "Ashish Vaswani, Noam Shazeer", "author mismatch")
}

func TestDataIndexFilter(t *testing.T) {
	db := testutils.InitMemoryDB(t)
	user := testutils.SetupUserData(db, "alice@example.com", "pass1234")
	doc := testutils.SetupDocumentData(db, user, "https://example.com/paper.pdf")
	testutils.SetupAnnotationData(db, user, doc, `{"x":1}`)

	other := testutils.SetupDocumentData(db, user, "https://example.com/other.pdf")
	testutils.SetupAnnotationData(db, user, other, `{"x":2}`)

	a := app.NewTest()
	a.DB = db
	server := MustNewServer(t, &a)
	defer server.Close()

	q := url.Values{}
	q.Set("doc_id", fmt.Sprintf("%d", doc.ID))
	req := testutils.MakeReq(server.URL, "GET", helpers.GetPath("/api/data/annotations", &q), "")
	res := testutils.HTTPAuthDo(t, db, req, user)

	assert.StatusCodeEquals(t, res, http.StatusOK, "status code mismatch")

	payload := decodeEntities(t, res)
	assert.Equal(t, len(payload.Entities["annotations"]), 1, "annotation count mismatch")
}
