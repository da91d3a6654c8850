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
	"strings"
	"time"

	"github.com/gorilla/schema"
	"github.com/marginalia/marginalia/pkg/server/app"
	"github.com/marginalia/marginalia/pkg/server/context"
	"github.com/marginalia/marginalia/pkg/server/database"
	"github.com/marginalia/marginalia/pkg/server/entity"
	"github.com/marginalia/marginalia/pkg/server/log"
	"github.com/marginalia/marginalia/pkg/server/middleware"
	"github.com/pkg/errors"
)

var formDecoder = schema.NewDecoder()

func init() {
	formDecoder.IgnoreUnknownKeys(true)
}

// parseRequestData decodes the request payload into the given struct.
// JSON bodies and URL-encoded forms are both accepted.
func parseRequestData(r *http.Request, dst interface{}) error {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
			return errors.Wrap(err, "decoding json payload")
		}

		return nil
	}

	if err := r.ParseForm(); err != nil {
		return errors.Wrap(err, "parsing form")
	}
	if err := formDecoder.Decode(dst, r.PostForm); err != nil {
		return errors.Wrap(err, "decoding form payload")
	}

	return nil
}

// respondJSON responds with the JSON-encoding of the given value
func respondJSON(w http.ResponseWriter, statusCode int, i interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(i); err != nil {
		log.ErrorWrap(err, "encoding response")
	}
}

type errorResp struct {
	Message string `json:"message"`
}

// statusForError maps domain errors to HTTP status codes. Anything
// unrecognized is a 500.
func statusForError(err error) int {
	switch {
	case errors.Is(err, app.ErrNotFound) || errors.Is(err, entity.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, app.ErrLoginInvalid),
		errors.Is(err, app.ErrLoginRequired),
		errors.Is(err, app.ErrPasswordIncorrect):
		return http.StatusUnauthorized
	case errors.Is(err, app.ErrRegistrationDisabled):
		return http.StatusForbidden
	case errors.Is(err, app.ErrEmailRequired),
		errors.Is(err, app.ErrEmailInvalid),
		errors.Is(err, app.ErrPasswordRequired),
		errors.Is(err, app.ErrPasswordTooShort),
		errors.Is(err, app.ErrDuplicateEmail),
		errors.Is(err, app.ErrInvalidToken):
		return http.StatusBadRequest
	case errors.Is(err, app.ErrPDFTooLarge), errors.Is(err, app.ErrPDFSizeUnknown):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, app.ErrPDFFetch):
		return http.StatusNotFound
	case entity.IsValidation(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// mustUser returns the authenticated user from the request context
func mustUser(w http.ResponseWriter, r *http.Request) (database.User, bool) {
	user := context.User(r.Context())
	if user == nil {
		middleware.RespondUnauthorized(w)
		return database.User{}, false
	}

	return *user, true
}

// handleJSONError responds with the error. Domain errors surface their
// message; everything else is logged and hidden behind a generic 500.
func handleJSONError(w http.ResponseWriter, err error, msg string) {
	statusCode := statusForError(err)

	if statusCode == http.StatusInternalServerError {
		log.ErrorWrap(err, msg)
		respondJSON(w, statusCode, errorResp{Message: "Internal server error"})
		return
	}

	respondJSON(w, statusCode, errorResp{Message: err.Error()})
}

// SessionResp is the response for a created session
type SessionResp struct {
	Key       string `json:"key"`
	ExpiresAt int64  `json:"expires_at"`
}

func respondWithSession(w http.ResponseWriter, statusCode int, session *database.Session) {
	setSessionCookie(w, session.Key, session.ExpiresAt)

	respondJSON(w, statusCode, SessionResp{
		Key:       session.Key,
		ExpiresAt: session.ExpiresAt.Unix(),
	})
}

func setSessionCookie(w http.ResponseWriter, key string, expires time.Time) {
	cookie := http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    key,
		Expires:  expires,
		Path:     "/",
		HttpOnly: true,
	}
	http.SetCookie(w, &cookie)
}

func unsetSessionCookie(w http.ResponseWriter) {
	cookie := http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    "",
		Expires:  time.Now().Add(time.Hour * -24 * 30),
		Path:     "/",
		HttpOnly: true,
	}

	w.Header().Set("Cache-Control", "no-cache")
	http.SetCookie(w, &cookie)
}
