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

package app

import (
	"testing"
	"time"

	"github.com/marginalia/marginalia/pkg/assert"
	"github.com/marginalia/marginalia/pkg/clock"
	"github.com/marginalia/marginalia/pkg/server/database"
	"github.com/marginalia/marginalia/pkg/server/testutils"
)

func TestCreateSession(t *testing.T) {
	db := testutils.InitMemoryDB(t)
	user := testutils.SetupUserData(db, "alice@example.com", "pass1234")

	c := clock.NewMock()
	a := NewTest()
	a.DB = db
	a.Clock = c

	session, err := a.CreateSession(user.ID, false)
	if err != nil {
		t.Fatal(err)
	}

	if session.Key == "" {
		t.Error("session key should not be empty")
	}
	assert.Equal(t, session.UserID, user.ID, "user id mismatch")
	assert.Equal(t, session.ExpiresAt, c.Now().Add(24*time.Hour), "expiry mismatch")
}

func TestCreateSessionPermanent(t *testing.T) {
	db := testutils.InitMemoryDB(t)
	user := testutils.SetupUserData(db, "alice@example.com", "pass1234")

	c := clock.NewMock()
	a := NewTest()
	a.DB = db
	a.Clock = c

	session, err := a.CreateSession(user.ID, true)
	if err != nil {
		t.Fatal(err)
	}

	assert.Equal(t, session.ExpiresAt, c.Now().Add(30*24*time.Hour), "expiry mismatch")
}

func TestDeleteSession(t *testing.T) {
	db := testutils.InitMemoryDB(t)
	user := testutils.SetupUserData(db, "alice@example.com", "pass1234")
	session := testutils.SetupSession(db, user)

	a := NewTest()
	a.DB = db

	if err := a.DeleteSession(session.Key); err != nil {
		t.Fatal(err)
	}

	var count int64
	testutils.MustExec(t, db.Model(&database.Session{}).Count(&count), "counting sessions")
	assert.Equal(t, count, int64(0), "session count mismatch")
}

func TestDeleteExpiredSessions(t *testing.T) {
	db := testutils.InitMemoryDB(t)
	user := testutils.SetupUserData(db, "alice@example.com", "pass1234")

	c := clock.NewMock()
	a := NewTest()
	a.DB = db
	a.Clock = c

	live, err := a.CreateSession(user.ID, false)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := a.CreateSession(user.ID, false); err != nil {
		t.Fatal(err)
	}

	// make only the first session still unexpired
	testutils.MustExec(t, db.Model(&database.Session{}).Where("key = ?", live.Key).Update("expires_at", c.Now().Add(48*time.Hour)), "extending session")

	c.Advance(25 * time.Hour)
	if err := a.DeleteExpiredSessions(); err != nil {
		t.Fatal(err)
	}

	var keys []string
	testutils.MustExec(t, db.Model(&database.Session{}).Pluck("key", &keys), "listing sessions")
	assert.Equal(t, len(keys), 1, "session count mismatch")
	assert.Equal(t, keys[0], live.Key, "surviving session mismatch")
}
