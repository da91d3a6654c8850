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
	"crypto/rand"
	"encoding/base64"
	"time"

	"github.com/marginalia/marginalia/pkg/server/database"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

const (
	// sessionLifetime is how long a regular session lasts
	sessionLifetime = 24 * time.Hour
	// permanentSessionLifetime is how long a "remember me" session lasts
	permanentSessionLifetime = 30 * 24 * time.Hour
)

func generateSessionKey() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", errors.Wrap(err, "reading random bytes")
	}

	return base64.StdEncoding.EncodeToString(b), nil
}

// CreateSession returns a new session for the user of the given id.
// A permanent session outlives the browser session by using a longer expiry.
func (a *App) CreateSession(userID int, permanent bool) (database.Session, error) {
	key, err := generateSessionKey()
	if err != nil {
		return database.Session{}, errors.Wrap(err, "generating key")
	}

	lifetime := sessionLifetime
	if permanent {
		lifetime = permanentSessionLifetime
	}

	now := a.Clock.Now()
	session := database.Session{
		UserID:     userID,
		Key:        key,
		LastUsedAt: now,
		ExpiresAt:  now.Add(lifetime),
	}

	if err := a.DB.Save(&session).Error; err != nil {
		return database.Session{}, errors.Wrap(err, "saving session")
	}

	return session, nil
}

// DeleteUserSessions deletes all existing sessions for the given user. It effectively
// invalidates all existing sessions.
func (a *App) DeleteUserSessions(db *gorm.DB, userID int) error {
	if err := db.Where("user_id = ?", userID).Delete(&database.Session{}).Error; err != nil {
		return errors.Wrap(err, "deleting sessions")
	}

	return nil
}

// DeleteSession deletes the session that match the given info
func (a *App) DeleteSession(sessionKey string) error {
	if err := a.DB.Where("key = ?", sessionKey).Delete(&database.Session{}).Error; err != nil {
		return errors.Wrap(err, "deleting the session")
	}

	return nil
}

// DeleteExpiredSessions removes sessions that are past their expiry. It is
// run periodically by the server process.
func (a *App) DeleteExpiredSessions() error {
	if err := a.DB.Where("expires_at < ?", a.Clock.Now()).Delete(&database.Session{}).Error; err != nil {
		return errors.Wrap(err, "deleting expired sessions")
	}

	return nil
}
