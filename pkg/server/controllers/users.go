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

	"github.com/gorilla/mux"
	"github.com/marginalia/marginalia/pkg/server/app"
	"github.com/marginalia/marginalia/pkg/server/context"
	"github.com/marginalia/marginalia/pkg/server/log"
	"github.com/marginalia/marginalia/pkg/server/middleware"
	pkgErrors "github.com/pkg/errors"
)

// NewUsers creates a new Users controller
func NewUsers(app *app.App) *Users {
	return &Users{
		app: app,
	}
}

// Users is a user controller
type Users struct {
	app *app.App
}

// RegistrationForm is the form data for registering
type RegistrationForm struct {
	Email    string `schema:"email" json:"email"`
	Password string `schema:"password" json:"password"`
}

// Create handles register
func (u *Users) Create(w http.ResponseWriter, r *http.Request) {
	var form RegistrationForm
	if err := parseRequestData(r, &form); err != nil {
		handleJSONError(w, err, "parsing payload")
		return
	}

	user, err := u.app.CreateUser(form.Email, form.Password)
	if err != nil {
		handleJSONError(w, err, "creating user")
		return
	}

	// welcome the user regardless of the email outcome
	token, err := u.app.GetConfirmationToken(user)
	if err != nil {
		log.ErrorWrap(err, "getting confirmation token")
	} else if err := u.app.SendConfirmationEmail(form.Email, token.Value); err != nil {
		log.ErrorWrap(err, "sending confirmation email")
	}

	session, err := u.app.SignIn(&user, false)
	if err != nil {
		handleJSONError(w, err, "signing in")
		return
	}

	respondWithSession(w, http.StatusCreated, session)
}

// LoginForm is the form data for a login
type LoginForm struct {
	Email     string `schema:"email" json:"email"`
	Password  string `schema:"password" json:"password"`
	Permanent bool   `schema:"permanent" json:"permanent"`
}

// Login handles login
func (u *Users) Login(w http.ResponseWriter, r *http.Request) {
	var form LoginForm
	if err := parseRequestData(r, &form); err != nil {
		handleJSONError(w, err, "parsing payload")
		return
	}

	user, err := u.app.Authenticate(form.Email, form.Password)
	if err != nil {
		handleJSONError(w, err, "authenticating user")
		return
	}

	session, err := u.app.SignIn(user, form.Permanent)
	if err != nil {
		handleJSONError(w, err, "signing in")
		return
	}

	respondWithSession(w, http.StatusOK, session)
}

// Logout handles logout
func (u *Users) Logout(w http.ResponseWriter, r *http.Request) {
	key, err := middleware.GetCredential(r)
	if err != nil {
		handleJSONError(w, pkgErrors.Wrap(err, "getting credentials"), "logging out")
		return
	}

	if key != "" {
		if err := u.app.DeleteSession(key); err != nil {
			handleJSONError(w, pkgErrors.Wrap(err, "deleting session"), "logging out")
			return
		}

		unsetSessionCookie(w)
	}

	w.WriteHeader(http.StatusNoContent)
}

// UserResp is the response for the authenticated user
type UserResp struct {
	ID             int    `json:"id"`
	UUID           string `json:"uuid"`
	Email          string `json:"email"`
	EmailConfirmed bool   `json:"email_confirmed"`
	GithubID       string `json:"github_id,omitempty"`
}

// CurrentSessionResp is the response for the current session. A guest
// gets a null user rather than an error.
type CurrentSessionResp struct {
	User      *UserResp `json:"user"`
	ExpiresAt int64     `json:"expires_at,omitempty"`
}

// CurrentSession returns the authenticated user and session expiry, or
// an anonymous marker when no valid session accompanies the request
func (u *Users) CurrentSession(w http.ResponseWriter, r *http.Request) {
	user, session, ok, err := middleware.AuthWithSession(u.app.DB, r)
	if err != nil {
		handleJSONError(w, err, "authenticating with session")
		return
	}
	if !ok {
		respondJSON(w, http.StatusOK, CurrentSessionResp{User: nil})
		return
	}

	respondJSON(w, http.StatusOK, CurrentSessionResp{
		User: &UserResp{
			ID:             user.ID,
			UUID:           user.UUID,
			Email:          user.Email.String,
			EmailConfirmed: user.ConfirmedAt != nil,
			GithubID:       user.GithubID.String,
		},
		ExpiresAt: session.ExpiresAt.Unix(),
	})
}

type messageResp struct {
	Message string `json:"message"`
}

// ConfirmEmail confirms the email address for the token in the path.
// Confirming an already confirmed address succeeds without change.
func (u *Users) ConfirmEmail(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	tokenValue := vars["token"]

	user, err := u.app.ConfirmEmail(tokenValue)
	if err != nil {
		handleJSONError(w, err, "confirming email")
		return
	}

	if err := u.app.SendWelcomeEmail(user.Email.String); err != nil {
		log.ErrorWrap(err, "sending welcome email")
	}

	respondJSON(w, http.StatusOK, messageResp{Message: "Your email address has been confirmed"})
}

// ResendConfirmation sends a fresh confirmation email to the
// authenticated user
func (u *Users) ResendConfirmation(w http.ResponseWriter, r *http.Request) {
	user := context.User(r.Context())
	if user == nil {
		middleware.RespondUnauthorized(w)
		return
	}

	if user.ConfirmedAt != nil {
		respondJSON(w, http.StatusOK, messageResp{Message: "Your email address is already confirmed"})
		return
	}

	token, err := u.app.GetConfirmationToken(*user)
	if err != nil {
		handleJSONError(w, err, "getting confirmation token")
		return
	}
	if err := u.app.SendConfirmationEmail(user.Email.String, token.Value); err != nil {
		handleJSONError(w, err, "sending confirmation email")
		return
	}

	respondJSON(w, http.StatusOK, messageResp{Message: "A confirmation email has been sent"})
}

// PasswordUpdateForm is the form data for updating a password
type PasswordUpdateForm struct {
	OldPassword string `schema:"old_password" json:"old_password"`
	NewPassword string `schema:"new_password" json:"new_password"`
}

// PasswordUpdate updates the authenticated user's password
func (u *Users) PasswordUpdate(w http.ResponseWriter, r *http.Request) {
	user := context.User(r.Context())
	if user == nil {
		middleware.RespondUnauthorized(w)
		return
	}

	var form PasswordUpdateForm
	if err := parseRequestData(r, &form); err != nil {
		handleJSONError(w, err, "parsing payload")
		return
	}

	if err := u.app.ChangePassword(user, form.OldPassword, form.NewPassword); err != nil {
		handleJSONError(w, err, "changing password")
		return
	}

	respondJSON(w, http.StatusOK, messageResp{Message: "Your password has been updated"})
}
