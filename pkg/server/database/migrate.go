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
	"github.com/marginalia/marginalia/pkg/server/database/migrations"
	"github.com/marginalia/marginalia/pkg/server/log"
	"github.com/pkg/errors"
	migrate "github.com/rubenv/sql-migrate"
	"gorm.io/gorm"
)

// sqlDialect maps the gorm dialector name to the sql-migrate dialect name
func sqlDialect(db *gorm.DB) (string, error) {
	switch db.Dialector.Name() {
	case "sqlite":
		return "sqlite3", nil
	case "postgres":
		return "postgres", nil
	default:
		return "", errors.Errorf("unsupported dialect %s", db.Dialector.Name())
	}
}

// Migrate runs the embedded SQL migrations. It covers what AutoMigrate
// cannot express, such as composite indexes.
func Migrate(db *gorm.DB) error {
	dialect, err := sqlDialect(db)
	if err != nil {
		return err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return errors.Wrap(err, "getting sql.DB handle")
	}

	src := &migrate.EmbedFileSystemMigrationSource{
		FileSystem: migrations.Files,
		Root:       ".",
	}

	migrate.SetTable(MigrationTableName)

	n, err := migrate.Exec(sqlDB, dialect, src, migrate.Up)
	if err != nil {
		return errors.Wrap(err, "running migrations")
	}

	if n > 0 {
		log.WithFields(log.Fields{
			"count": n,
		}).Info("Applied migrations")
	}

	return nil
}
