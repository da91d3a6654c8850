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

package entity

import (
	"time"
)

const (
	// DateFormat is the wire format for date-valued fields
	DateFormat = "2006-01-02"
	// DateTimeFormat is the wire format for datetime-valued fields
	DateTimeFormat = "2006-01-02T15:04:05"
)

// stringVal coerces a JSON body value into a string
func stringVal(key string, v interface{}) (string, error) {
	if v == nil {
		return "", nil
	}

	s, ok := v.(string)
	if !ok {
		return "", Validationf("Attribute %q must be a string", key)
	}

	return s, nil
}

// boolVal coerces a JSON body value into a bool
func boolVal(key string, v interface{}) (bool, error) {
	if v == nil {
		return false, nil
	}

	b, ok := v.(bool)
	if !ok {
		return false, Validationf("Attribute %q must be a boolean", key)
	}

	return b, nil
}

// intVal coerces a JSON body value into an int. JSON numbers decode as
// float64.
func intVal(key string, v interface{}) (int, error) {
	n, ok := v.(float64)
	if !ok {
		return 0, Validationf("Attribute %q must be a number", key)
	}

	return int(n), nil
}

// intRefVal coerces a JSON body value into a nullable int reference
func intRefVal(key string, v interface{}) (*int, error) {
	if v == nil {
		return nil, nil
	}

	n, err := intVal(key, v)
	if err != nil {
		return nil, err
	}

	return &n, nil
}

// dateVal coerces a JSON body value into a nullable date
func dateVal(key string, v interface{}) (*time.Time, error) {
	if v == nil {
		return nil, nil
	}

	s, ok := v.(string)
	if !ok {
		return nil, Validationf("Attribute %q must be a date string", key)
	}

	t, err := time.Parse(DateFormat, s)
	if err != nil {
		return nil, Validationf("Attribute %q must be a date in the form %s", key, DateFormat)
	}

	return &t, nil
}

// formatDate renders a nullable date for serialization
func formatDate(t *time.Time) interface{} {
	if t == nil {
		return nil
	}

	return t.Format(DateFormat)
}

// formatDateTime renders a datetime for serialization
func formatDateTime(t time.Time) string {
	return t.Format(DateTimeFormat)
}

// formatDateTimeRef renders a nullable datetime for serialization
func formatDateTimeRef(t *time.Time) interface{} {
	if t == nil {
		return nil
	}

	return formatDateTime(*t)
}
