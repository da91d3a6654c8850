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

import "github.com/pkg/errors"

var (
	// ErrNotFound is an error for an unfound resource
	ErrNotFound = errors.New("not found")
	// ErrLoginInvalid is an error for invalid login credentials
	ErrLoginInvalid = errors.New("Wrong email and password combination")
	// ErrLoginRequired is an error for a request that requires an authenticated user
	ErrLoginRequired = errors.New("Please log in")
	// ErrEmailRequired is an error for missing email
	ErrEmailRequired = errors.New("Please enter an email")
	// ErrEmailInvalid is an error for a malformed email
	ErrEmailInvalid = errors.New("Please enter a valid email")
	// ErrPasswordRequired is an error for missing password
	ErrPasswordRequired = errors.New("Please enter a password")
	// ErrPasswordTooShort is an error for a password that is too short
	ErrPasswordTooShort = errors.New("Password should be longer than 8 characters")
	// ErrDuplicateEmail is an error for an email that is already registered
	ErrDuplicateEmail = errors.New("That email is already registered")
	// ErrPasswordIncorrect is an error for an incorrect current password
	ErrPasswordIncorrect = errors.New("The current password is incorrect")
	// ErrRegistrationDisabled is an error for registering while registration is disabled
	ErrRegistrationDisabled = errors.New("Registration is disabled")
	// ErrInvalidToken is an error for an invalid token
	ErrInvalidToken = errors.New("Invalid token")
	// ErrUserHasData is an error for removing a user that still owns records
	ErrUserHasData = errors.New("The user still owns documents and cannot be removed")
)
