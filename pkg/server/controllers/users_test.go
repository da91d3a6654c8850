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
	"net/http"
	"net/url"
	"os"
	"testing"
	"time"

	"github.com/marginalia/marginalia/pkg/assert"
	"github.com/marginalia/marginalia/pkg/server/app"
	"github.com/marginalia/marginalia/pkg/server/database"
	"github.com/marginalia/marginalia/pkg/server/mailer"
	"github.com/marginalia/marginalia/pkg/server/testutils"
)

func TestMain(m *testing.M) {
	os.Setenv("APP_ENV", "TEST")
	os.Exit(m.Run())
}

func TestRegister(t *testing.T) {
	db := testutils.InitMemoryDB(t)
	emailBackend := testutils.MockEmailbackendImplementation{}

	a := app.NewTest()
	a.DB = db
	a.EmailBackend = &emailBackend
	server := MustNewServer(t, &a)
	defer server.Close()

	dat := `{"email": "alice@example.com", "password": "pass1234"}`
	req := testutils.MakeReq(server.URL, "POST", "/api/users", dat)
	res := testutils.HTTPDo(t, req)

	assert.StatusCodeEquals(t, res, http.StatusCreated, "status code mismatch")

	var user database.User
	testutils.MustExec(t, db.First(&user), "finding user")
	assert.Equal(t, user.Email.String, "alice@example.com", "email mismatch")
	if user.ConfirmedAt != nil {
		t.Error("user should not be confirmed yet")
	}

	var sessionCount int64
	testutils.MustExec(t, db.Model(&database.Session{}).Count(&sessionCount), "counting sessions")
	assert.Equal(t, sessionCount, int64(1), "session count mismatch")

	c := testutils.GetCookieByName(res.Cookies(), "id")
	if c == nil {
		t.Fatal("session cookie was not set")
	}
	if !c.HttpOnly {
		t.Error("session cookie should be http only")
	}

	assert.Equal(t, len(emailBackend.Emails), 1, "email count mismatch")
	assert.Equal(t, emailBackend.Emails[0].TemplateType, mailer.EmailTypeEmailConfirmation, "email template type mismatch")
}

func TestRegisterDuplicateEmail(t *testing.T) {
	db := testutils.InitMemoryDB(t)
	testutils.SetupUserData(db, "alice@example.com", "pass1234")

	a := app.NewTest()
	a.DB = db
	server := MustNewServer(t, &a)
	defer server.Close()

	dat := `{"email": "alice@example.com", "password": "pass1234"}`
	req := testutils.MakeReq(server.URL, "POST", "/api/users", dat)
	res := testutils.HTTPDo(t, req)

	assert.StatusCodeEquals(t, res, http.StatusBadRequest, "status code mismatch")

	var userCount int64
	testutils.MustExec(t, db.Model(&database.User{}).Count(&userCount), "counting users")
	assert.Equal(t, userCount, int64(1), "user count mismatch")
}

func TestRegisterDisabled(t *testing.T) {
	db := testutils.InitMemoryDB(t)

	a := app.NewTest()
	a.DB = db
	a.DisableRegistration = true
	server := MustNewServer(t, &a)
	defer server.Close()

	dat := `{"email": "alice@example.com", "password": "pass1234"}`
	req := testutils.MakeReq(server.URL, "POST", "/api/users", dat)
	res := testutils.HTTPDo(t, req)

	assert.StatusCodeEquals(t, res, http.StatusNotFound, "status code mismatch")

	var userCount int64
	testutils.MustExec(t, db.Model(&database.User{}).Count(&userCount), "counting users")
	assert.Equal(t, userCount, int64(0), "user count mismatch")
}

func TestLogin(t *testing.T) {
	db := testutils.InitMemoryDB(t)
	testutils.SetupUserData(db, "alice@example.com", "pass1234")

	a := app.NewTest()
	a.DB = db
	server := MustNewServer(t, &a)
	defer server.Close()

	dat := `{"email": "alice@example.com", "password": "pass1234"}`
	req := testutils.MakeReq(server.URL, "POST", "/api/auth/login", dat)
	res := testutils.HTTPDo(t, req)

	assert.StatusCodeEquals(t, res, http.StatusOK, "status code mismatch")

	var payload SessionResp
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		t.Fatal(err)
	}
	if payload.Key == "" {
		t.Error("session key should not be empty")
	}

	var session database.Session
	testutils.MustExec(t, db.Where("key = ?", payload.Key).First(&session), "finding session")

	c := testutils.GetCookieByName(res.Cookies(), "id")
	if c == nil {
		t.Fatal("session cookie was not set")
	}
	assert.Equal(t, c.Value, payload.Key, "cookie value mismatch")
}

func TestLoginFormEncoded(t *testing.T) {
	db := testutils.InitMemoryDB(t)
	testutils.SetupUserData(db, "alice@example.com", "pass1234")

	a := app.NewTest()
	a.DB = db
	server := MustNewServer(t, &a)
	defer server.Close()

	dat := url.Values{}
	dat.Set("email", "alice@example.com")
	dat.Set("password", "pass1234")
	req := testutils.MakeFormReq(server.URL, "POST", "/api/auth/login", dat)
	res := testutils.HTTPDo(t, req)

	assert.StatusCodeEquals(t, res, http.StatusOK, "status code mismatch")

	var payload SessionResp
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		t.Fatal(err)
	}

	var session database.Session
	testutils.MustExec(t, db.Where("key = ?", payload.Key).First(&session), "finding session")
}

func TestLoginWrongPassword(t *testing.T) {
	db := testutils.InitMemoryDB(t)
	testutils.SetupUserData(db, "alice@example.com", "pass1234")

	a := app.NewTest()
	a.DB = db
	server := MustNewServer(t, &a)
	defer server.Close()

	dat := `{"email": "alice@example.com", "password": "wrongpassword"}`
	req := testutils.MakeReq(server.URL, "POST", "/api/auth/login", dat)
	res := testutils.HTTPDo(t, req)

	assert.StatusCodeEquals(t, res, http.StatusUnauthorized, "status code mismatch")

	var sessionCount int64
	testutils.MustExec(t, db.Model(&database.Session{}).Count(&sessionCount), "counting sessions")
	assert.Equal(t, sessionCount, int64(0), "session count mismatch")
}

func TestLoginNonexistentUser(t *testing.T) {
	db := testutils.InitMemoryDB(t)

	a := app.NewTest()
	a.DB = db
	server := MustNewServer(t, &a)
	defer server.Close()

	dat := `{"email": "bob@example.com", "password": "pass1234"}`
	req := testutils.MakeReq(server.URL, "POST", "/api/auth/login", dat)
	res := testutils.HTTPDo(t, req)

	assert.StatusCodeEquals(t, res, http.StatusUnauthorized, "status code mismatch")
}

func TestLogout(t *testing.T) {
	db := testutils.InitMemoryDB(t)
	user := testutils.SetupUserData(db, "alice@example.com", "pass1234")
	session := testutils.SetupSession(db, user)

	a := app.NewTest()
	a.DB = db
	server := MustNewServer(t, &a)
	defer server.Close()

	req := testutils.MakeReq(server.URL, "POST", "/api/auth/logout", "")
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", session.Key))
	res := testutils.HTTPDo(t, req)

	assert.StatusCodeEquals(t, res, http.StatusNoContent, "status code mismatch")

	var sessionCount int64
	testutils.MustExec(t, db.Model(&database.Session{}).Count(&sessionCount), "counting sessions")
	assert.Equal(t, sessionCount, int64(0), "session count mismatch")

	c := testutils.GetCookieByName(res.Cookies(), "id")
	if c == nil {
		t.Fatal("session cookie should be unset")
	}
	assert.Equal(t, c.Value, "", "cookie value mismatch")
	if !c.Expires.Before(time.Now()) {
		t.Error("cookie should be expired")
	}
}

func TestCurrentSession(t *testing.T) {
	db := testutils.InitMemoryDB(t)
	user := testutils.SetupUserData(db, "alice@example.com", "pass1234")

	a := app.NewTest()
	a.DB = db
	server := MustNewServer(t, &a)
	defer server.Close()

	req := testutils.MakeReq(server.URL, "GET", "/api/auth/current_session", "")
	res := testutils.HTTPAuthDo(t, db, req, user)

	assert.StatusCodeEquals(t, res, http.StatusOK, "status code mismatch")

	var payload CurrentSessionResp
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		t.Fatal(err)
	}
	if payload.User == nil {
		t.Fatal("user should be present")
	}
	assert.Equal(t, payload.User.Email, "alice@example.com", "email mismatch")
	assert.Equal(t, payload.User.EmailConfirmed, false, "email_confirmed mismatch")
}

func TestCurrentSessionGuest(t *testing.T) {
	db := testutils.InitMemoryDB(t)

	a := app.NewTest()
	a.DB = db
	server := MustNewServer(t, &a)
	defer server.Close()

	req := testutils.MakeReq(server.URL, "GET", "/api/auth/current_session", "")
	res := testutils.HTTPDo(t, req)

	// a guest gets an anonymous marker, not an error
	assert.StatusCodeEquals(t, res, http.StatusOK, "status code mismatch")

	var payload CurrentSessionResp
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		t.Fatal(err)
	}
	if payload.User != nil {
		t.Error("user should be null for a guest")
	}
}

func TestConfirmEmail(t *testing.T) {
	db := testutils.InitMemoryDB(t)
	user := testutils.SetupUserData(db, "alice@example.com", "pass1234")

	emailBackend := testutils.MockEmailbackendImplementation{}
	a := app.NewTest()
	a.DB = db
	a.EmailBackend = &emailBackend
	server := MustNewServer(t, &a)
	defer server.Close()

	token, err := a.GetConfirmationToken(user)
	if err != nil {
		t.Fatal(err)
	}

	req := testutils.MakeReq(server.URL, "GET", fmt.Sprintf("/api/auth/confirm/%s", token.Value), "")
	res := testutils.HTTPDo(t, req)

	assert.StatusCodeEquals(t, res, http.StatusOK, "status code mismatch")

	var confirmed database.User
	testutils.MustExec(t, db.First(&confirmed, user.ID), "finding user")
	if confirmed.ConfirmedAt == nil {
		t.Error("user should be confirmed")
	}

	assert.Equal(t, len(emailBackend.Emails), 1, "email count mismatch")
	assert.Equal(t, emailBackend.Emails[0].TemplateType, mailer.EmailTypeWelcome, "email template type mismatch")
}

func TestConfirmEmailInvalidToken(t *testing.T) {
	db := testutils.InitMemoryDB(t)
	user := testutils.SetupUserData(db, "alice@example.com", "pass1234")

	a := app.NewTest()
	a.DB = db
	server := MustNewServer(t, &a)
	defer server.Close()

	req := testutils.MakeReq(server.URL, "GET", "/api/auth/confirm/invalidtokenvalue", "")
	res := testutils.HTTPDo(t, req)

	assert.StatusCodeEquals(t, res, http.StatusBadRequest, "status code mismatch")

	var unconfirmed database.User
	testutils.MustExec(t, db.First(&unconfirmed, user.ID), "finding user")
	if unconfirmed.ConfirmedAt != nil {
		t.Error("user should not be confirmed")
	}
}

func TestPasswordUpdate(t *testing.T) {
	db := testutils.InitMemoryDB(t)
	user := testutils.SetupUserData(db, "alice@example.com", "oldpass1234")

	a := app.NewTest()
	a.DB = db
	server := MustNewServer(t, &a)
	defer server.Close()

	dat := `{"old_password": "oldpass1234", "new_password": "newpass1234"}`
	req := testutils.MakeReq(server.URL, "PATCH", "/api/users/password", dat)
	res := testutils.HTTPAuthDo(t, db, req, user)

	assert.StatusCodeEquals(t, res, http.StatusOK, "status code mismatch")

	loginDat := `{"email": "alice@example.com", "password": "newpass1234"}`
	loginReq := testutils.MakeReq(server.URL, "POST", "/api/auth/login", loginDat)
	loginRes := testutils.HTTPDo(t, loginReq)
	assert.StatusCodeEquals(t, loginRes, http.StatusOK, "login with new password should succeed")
}

func TestPasswordUpdateWrongOldPassword(t *testing.T) {
	db := testutils.InitMemoryDB(t)
	user := testutils.SetupUserData(db, "alice@example.com", "oldpass1234")

	a := app.NewTest()
	a.DB = db
	server := MustNewServer(t, &a)
	defer server.Close()

	dat := `{"old_password": "wrongpass", "new_password": "newpass1234"}`
	req := testutils.MakeReq(server.URL, "PATCH", "/api/users/password", dat)
	res := testutils.HTTPAuthDo(t, db, req, user)

	assert.StatusCodeEquals(t, res, http.StatusUnauthorized, "status code mismatch")

	loginDat := `{"email": "alice@example.com", "password": "oldpass1234"}`
	loginReq := testutils.MakeReq(server.URL, "POST", "/api/auth/login", loginDat)
	loginRes := testutils.HTTPDo(t, loginReq)
	assert.StatusCodeEquals(t, loginRes, http.StatusOK, "login with old password should still succeed")
}
