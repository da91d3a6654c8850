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

// Package log provides interfaces to write structured logs
package log

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

const (
	fieldKeyLevel         = "level"
	fieldKeyMessage       = "msg"
	fieldKeyTimestamp     = "ts"
	fieldKeyUnixTimestamp = "ts_unix"

	// LevelDebug represents debug log level
	LevelDebug = "debug"
	// LevelInfo represents info log level
	LevelInfo = "info"
	// LevelWarn represents warn log level
	LevelWarn = "warn"
	// LevelError represents error log level
	LevelError = "error"
)

var (
	// currentLevel is the currently configured log level
	currentLevel = LevelInfo
)

// Fields represents a set of information to be included in the log
type Fields map[string]interface{}

// Entry represents a log entry
type Entry struct {
	Fields    Fields
	Timestamp time.Time
}

func newEntry(fields Fields) Entry {
	return Entry{
		Fields:    fields,
		Timestamp: time.Now().UTC(),
	}
}

// WithFields creates a log entry with the given fields
func WithFields(fields Fields) Entry {
	return newEntry(fields)
}

// SetLevel sets the global log level
func SetLevel(level string) {
	currentLevel = level
}

func levelPriority(level string) int {
	switch level {
	case LevelDebug:
		return 0
	case LevelInfo:
		return 1
	case LevelWarn:
		return 2
	case LevelError:
		return 3
	default:
		return 1
	}
}

func shouldLog(level string) bool {
	return levelPriority(level) >= levelPriority(currentLevel)
}

// Debug logs the given entry at a debug level
func (e Entry) Debug(msg string) {
	e.write(LevelDebug, msg)
}

// Info logs the given entry at an info level
func (e Entry) Info(msg string) {
	e.write(LevelInfo, msg)
}

// Warn logs the given entry at a warning level
func (e Entry) Warn(msg string) {
	e.write(LevelWarn, msg)
}

// Error logs the given entry at an error level
func (e Entry) Error(msg string) {
	e.write(LevelError, msg)
}

// ErrorWrap logs the given entry with the error message annotated by the given message
func (e Entry) ErrorWrap(err error, msg string) {
	m := fmt.Sprintf("%s: %v", msg, err)

	e.Error(m)
}

func (e Entry) write(level, msg string) {
	if !shouldLog(level) {
		return
	}

	payload := Fields{}
	for k, v := range e.Fields {
		payload[k] = v
	}

	payload[fieldKeyLevel] = level
	payload[fieldKeyMessage] = msg
	payload[fieldKeyTimestamp] = e.Timestamp.Format(time.RFC3339)
	payload[fieldKeyUnixTimestamp] = e.Timestamp.Unix()

	b, err := json.Marshal(payload)
	if err != nil {
		fmt.Fprintf(os.Stderr, "marginalia: marshaling log entry: %v\n", err)
		return
	}

	var out *os.File
	if level == LevelError {
		out = os.Stderr
	} else {
		out = os.Stdout
	}

	fmt.Fprintln(out, string(b))
}

// Debug writes a log with no fields at a debug level
func Debug(msg string) {
	newEntry(Fields{}).Debug(msg)
}

// Info writes a log with no fields at an info level
func Info(msg string) {
	newEntry(Fields{}).Info(msg)
}

// Warn writes a log with no fields at a warn level
func Warn(msg string) {
	newEntry(Fields{}).Warn(msg)
}

// Error writes a log with no fields at an error level
func Error(msg string) {
	newEntry(Fields{}).Error(msg)
}

// ErrorWrap writes a log with no fields with the error annotated by the given message
func ErrorWrap(err error, msg string) {
	newEntry(Fields{}).ErrorWrap(err, msg)
}
