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

package database

import (
	"time"
)

// Model is the base model definition
type Model struct {
	ID        int       `gorm:"primaryKey"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

// Owned is embedded by every row that belongs to exactly one user and
// supports soft deletion. Soft-deleted rows carry a deletion date and
// are excluded from default listings; they are never physically removed.
type Owned struct {
	UserID    int        `gorm:"index"`
	DeletedAt *time.Time `gorm:"type:date"`
}

// OwnerID returns the id of the owning user
func (o Owned) OwnerID() int {
	return o.UserID
}

// SetOwner sets the owning user
func (o *Owned) SetOwner(userID int) {
	o.UserID = userID
}

// DeletedOn returns the soft-delete date, or nil if the row is live
func (o Owned) DeletedOn() *time.Time {
	return o.DeletedAt
}

// SetDeletedOn sets or clears the soft-delete date
func (o *Owned) SetDeletedOn(t *time.Time) {
	o.DeletedAt = t
}

// User is a model for a user
type User struct {
	Model
	UUID        string     `gorm:"uniqueIndex;type:text"`
	Email       NullString `gorm:"index"`
	Password    NullString
	ConfirmedAt *time.Time
	GithubID    NullString `gorm:"index"`
	LastLoginAt *time.Time
}

// Document is a model for a referenced PDF document
type Document struct {
	ID             int `gorm:"primaryKey"`
	Owned
	URL            string
	Hash           string `gorm:"index"`
	Title          string
	Author         string
	Bibtex         string
	Read           bool `gorm:"default:false"`
	NoteID         *int
	CreatedAt      time.Time
	LastModifiedAt time.Time
	LastAccessedAt *time.Time
	Annotations    []Annotation `gorm:"foreignKey:DocID"`
	Tags           []Tag        `gorm:"many2many:documents_tags;"`
}

// RecordID returns the primary key
func (d Document) RecordID() int {
	return d.ID
}

// Annotation is a positional marker on a document page.
// Position holds a coordinate for points and a bounding box for rects,
// encoded as a JSON string.
type Annotation struct {
	ID       int `gorm:"primaryKey"`
	Owned
	DocID    int `gorm:"index"`
	Page     string
	Type     string
	Blob     string
	Parser   string
	Position string `gorm:"type:text"`
	NoteID   *int
}

// RecordID returns the primary key
func (a Annotation) RecordID() int {
	return a.ID
}

// Note is a free-form markdown note, optionally linked from one
// document or one annotation via their note_id back-reference.
type Note struct {
	ID             int `gorm:"primaryKey"`
	Owned
	Body           string
	Parser         string
	CreatedAt      time.Time
	LastModifiedAt time.Time
}

// RecordID returns the primary key
func (n Note) RecordID() int {
	return n.ID
}

// Tag is a user-scoped label attachable to documents
type Tag struct {
	ID          int `gorm:"primaryKey"`
	Owned
	Name        string `gorm:"index"`
	Description string
	Documents   []Document `gorm:"many2many:documents_tags;"`
}

// RecordID returns the primary key
func (t Tag) RecordID() int {
	return t.ID
}

// DocumentAccessCode is a share-link capability granting read or write
// access on a document to non-owners. It is never updated once created.
type DocumentAccessCode struct {
	Model
	UserID     int `gorm:"index"`
	DocumentID int `gorm:"index"`
	AllowRead  bool
	AllowWrite bool
	Code       string `gorm:"index"`
}

// Token is a model for a token
type Token struct {
	Model
	UserID int    `gorm:"index"`
	Value  string `gorm:"index"`
	Type   string
	UsedAt *time.Time
}

// Session represents a user session
type Session struct {
	Model
	UserID     int    `gorm:"index"`
	Key        string `gorm:"index"`
	LastUsedAt time.Time
	ExpiresAt  time.Time
}
