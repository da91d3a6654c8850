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
	"database/sql"
	"encoding/json"
)

// NullString is a nullable string backed by sql.NullString
type NullString struct {
	sql.NullString
}

// ToNullString converts the given string into a NullString
func ToNullString(s string) NullString {
	return NullString{
		sql.NullString{
			String: s,
			Valid:  s != "",
		},
	}
}

// MarshalJSON marshals NullString into JSON, rendering null for an invalid value
func (s NullString) MarshalJSON() ([]byte, error) {
	if !s.Valid {
		return []byte("null"), nil
	}

	return json.Marshal(s.String)
}

// UnmarshalJSON unmarshals the given JSON into NullString
func (s *NullString) UnmarshalJSON(data []byte) error {
	var v *string
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}

	if v == nil {
		s.Valid = false
		s.String = ""
	} else {
		s.Valid = true
		s.String = *v
	}

	return nil
}
