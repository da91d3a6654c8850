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
	"errors"
	"regexp"

	"github.com/marginalia/marginalia/pkg/server/database"
	"github.com/marginalia/marginalia/pkg/server/helpers"
	"github.com/marginalia/marginalia/pkg/server/log"
	"github.com/marginalia/marginalia/pkg/server/token"
	pkgErrors "github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var emailShape = regexp.MustCompile(`[^@]+@[^@]+\.[^@]+`)

// TouchLastLoginAt updates the last login timestamp
func (a *App) TouchLastLoginAt(user database.User, tx *gorm.DB) error {
	t := a.Clock.Now()
	if err := tx.Model(&user).Update("last_login_at", &t).Error; err != nil {
		return pkgErrors.Wrap(err, "updating last_login_at")
	}

	return nil
}

// CreateUser creates a user along with their email confirmation token
func (a *App) CreateUser(email, password string) (database.User, error) {
	if email == "" {
		return database.User{}, ErrEmailRequired
	}
	if !emailShape.MatchString(email) {
		return database.User{}, ErrEmailInvalid
	}
	if len(password) < 8 {
		return database.User{}, ErrPasswordTooShort
	}

	tx := a.DB.Begin()

	var count int64
	if err := tx.Model(database.User{}).Where("email = ?", email).Count(&count).Error; err != nil {
		tx.Rollback()
		return database.User{}, pkgErrors.Wrap(err, "counting user")
	}
	if count > 0 {
		tx.Rollback()
		return database.User{}, ErrDuplicateEmail
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		tx.Rollback()
		return database.User{}, pkgErrors.Wrap(err, "hashing password")
	}

	uuid, err := helpers.GenUUID()
	if err != nil {
		tx.Rollback()
		return database.User{}, err
	}

	user := database.User{
		UUID:     uuid,
		Email:    database.ToNullString(email),
		Password: database.ToNullString(string(hashedPassword)),
	}
	if err = tx.Save(&user).Error; err != nil {
		tx.Rollback()
		return database.User{}, pkgErrors.Wrap(err, "saving user")
	}

	if _, err := token.Create(tx, user.ID, database.TokenTypeEmailConfirmation); err != nil {
		tx.Rollback()
		return database.User{}, pkgErrors.Wrap(err, "creating email confirmation token")
	}
	if err := a.TouchLastLoginAt(user, tx); err != nil {
		tx.Rollback()
		return database.User{}, pkgErrors.Wrap(err, "updating last login")
	}

	tx.Commit()

	return user, nil
}

// Authenticate authenticates a user
func (a *App) Authenticate(email, password string) (*database.User, error) {
	var user database.User
	err := a.DB.Where("email = ?", email).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		// same error as a wrong password so that account existence
		// cannot be probed
		return nil, ErrLoginInvalid
	} else if err != nil {
		return nil, err
	}

	err = bcrypt.CompareHashAndPassword([]byte(user.Password.String), []byte(password))
	if err != nil {
		return nil, ErrLoginInvalid
	}

	return &user, nil
}

// SignIn signs in a user
func (a *App) SignIn(user *database.User, permanent bool) (*database.Session, error) {
	err := a.TouchLastLoginAt(*user, a.DB)
	if err != nil {
		log.ErrorWrap(err, "touching login timestamp")
	}

	session, err := a.CreateSession(user.ID, permanent)
	if err != nil {
		return nil, pkgErrors.Wrap(err, "creating session")
	}

	return &session, nil
}

// UpdateUserPassword hashes and updates the user's password
func UpdateUserPassword(tx *gorm.DB, user *database.User, password string) error {
	if len(password) < 8 {
		return ErrPasswordTooShort
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return pkgErrors.Wrap(err, "hashing password")
	}

	if err := tx.Model(user).Update("password", database.ToNullString(string(hashedPassword))).Error; err != nil {
		return pkgErrors.Wrap(err, "updating password")
	}

	return nil
}

// ChangePassword verifies the current password and replaces it with the new one
func (a *App) ChangePassword(user *database.User, oldPassword, newPassword string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password.String), []byte(oldPassword)); err != nil {
		return ErrPasswordIncorrect
	}

	tx := a.DB.Begin()
	if err := UpdateUserPassword(tx, user, newPassword); err != nil {
		tx.Rollback()
		return err
	}
	tx.Commit()

	return nil
}

// ConfirmEmail marks the user owning the given confirmation token as
// confirmed. Confirming an already confirmed account is a no-op success.
func (a *App) ConfirmEmail(tokenValue string) (*database.User, error) {
	var tok database.Token
	err := a.DB.Where("value = ? AND type = ?", tokenValue, database.TokenTypeEmailConfirmation).First(&tok).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrInvalidToken
	} else if err != nil {
		return nil, pkgErrors.Wrap(err, "finding token")
	}

	var user database.User
	err = a.DB.Where("id = ?", tok.UserID).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrInvalidToken
	} else if err != nil {
		return nil, pkgErrors.Wrap(err, "finding user")
	}

	if user.ConfirmedAt != nil {
		return &user, nil
	}

	now := a.Clock.Now()
	err = a.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&user).Update("confirmed_at", &now).Error; err != nil {
			return pkgErrors.Wrap(err, "updating confirmed_at")
		}
		if err := tx.Model(&tok).Update("used_at", &now).Error; err != nil {
			return pkgErrors.Wrap(err, "updating used_at")
		}

		return nil
	})
	if err != nil {
		return nil, err
	}
	user.ConfirmedAt = &now

	return &user, nil
}

// GetConfirmationToken returns an outstanding email confirmation token for
// the user, creating one if none exists. A used token is never handed out
// again.
func (a *App) GetConfirmationToken(user database.User) (database.Token, error) {
	var tok database.Token
	err := a.DB.Where("user_id = ? AND type = ? AND used_at IS NULL", user.ID, database.TokenTypeEmailConfirmation).First(&tok).Error
	if err == nil {
		return tok, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return database.Token{}, pkgErrors.Wrap(err, "finding token")
	}

	return token.Create(a.DB, user.ID, database.TokenTypeEmailConfirmation)
}

// GetUserByEmail returns the user with the given email
func (a *App) GetUserByEmail(email string) (database.User, error) {
	var user database.User
	err := a.DB.Where("email = ?", email).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return database.User{}, ErrNotFound
	} else if err != nil {
		return database.User{}, pkgErrors.Wrap(err, "finding user")
	}

	return user, nil
}

// RemoveUser deletes the user with the given email along with their
// sessions and tokens. A user still owning records cannot be removed.
func (a *App) RemoveUser(email string) error {
	user, err := a.GetUserByEmail(email)
	if err != nil {
		return err
	}

	var count int64
	if err := a.DB.Model(&database.Document{}).Where("user_id = ?", user.ID).Count(&count).Error; err != nil {
		return pkgErrors.Wrap(err, "counting documents")
	}
	if count > 0 {
		return ErrUserHasData
	}

	return a.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", user.ID).Delete(&database.Session{}).Error; err != nil {
			return pkgErrors.Wrap(err, "deleting sessions")
		}
		if err := tx.Where("user_id = ?", user.ID).Delete(&database.Token{}).Error; err != nil {
			return pkgErrors.Wrap(err, "deleting tokens")
		}
		if err := tx.Delete(&user).Error; err != nil {
			return pkgErrors.Wrap(err, "deleting user")
		}

		return nil
	})
}
