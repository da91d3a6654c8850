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

// Package config provides the server configuration
package config

import (
	"net/url"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

const (
	// AppEnvProduction represents an app environment for production.
	AppEnvProduction string = "PRODUCTION"
	// DefaultDataDir is the default directory name for Marginalia data
	DefaultDataDir = "marginalia"
	// DefaultDBFilename is the default database filename
	DefaultDBFilename = "server.db"
)

var (
	// ErrDBMissing is an error for a configuration with no database target
	ErrDBMissing = errors.New("Neither DBPath nor DatabaseURL was provided")
	// ErrWebURLInvalid is an error for an incomplete configuration with invalid web url
	ErrWebURLInvalid = errors.New("Invalid WebURL")
	// ErrPortInvalid is an error for an incomplete configuration with invalid port
	ErrPortInvalid = errors.New("Invalid Port")
)

func readBoolEnv(name string) bool {
	return os.Getenv(name) == "true"
}

// getOrEnv returns value if non-empty, otherwise env var, otherwise default
func getOrEnv(value, envKey, defaultVal string) string {
	if value != "" {
		return value
	}
	if env := os.Getenv(envKey); env != "" {
		return env
	}
	return defaultVal
}

// dataDir returns the base directory for server data, honoring XDG_DATA_HOME
func dataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, DefaultDataDir)
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return DefaultDataDir
	}

	return filepath.Join(home, ".local", "share", DefaultDataDir)
}

// Config is an application configuration
type Config struct {
	AppEnv              string
	WebURL              string
	Port                string
	DBPath              string
	DatabaseURL         string
	PDFCacheDir         string
	DisableRegistration bool
	LogLevel            string
}

// Params are the configuration parameters for creating a new Config
type Params struct {
	AppEnv              string
	Port                string
	WebURL              string
	DBPath              string
	DatabaseURL         string
	PDFCacheDir         string
	DisableRegistration bool
	LogLevel            string
}

// New constructs and returns a new validated config.
// Empty string params will fall back to environment variables and defaults.
// DatabaseURL, when set, takes precedence over the SQLite DBPath.
func New(p Params) (Config, error) {
	c := Config{
		AppEnv:              getOrEnv(p.AppEnv, "APP_ENV", AppEnvProduction),
		Port:                getOrEnv(p.Port, "PORT", "3001"),
		WebURL:              getOrEnv(p.WebURL, "WebURL", "http://localhost:3001"),
		DatabaseURL:         getOrEnv(p.DatabaseURL, "DatabaseURL", ""),
		PDFCacheDir:         getOrEnv(p.PDFCacheDir, "PDFCacheDir", filepath.Join(dataDir(), "pdf")),
		DisableRegistration: p.DisableRegistration || readBoolEnv("DisableRegistration"),
		LogLevel:            getOrEnv(p.LogLevel, "LOG_LEVEL", "info"),
	}

	if c.DatabaseURL == "" {
		c.DBPath = getOrEnv(p.DBPath, "DBPath", filepath.Join(dataDir(), DefaultDBFilename))
	} else {
		c.DBPath = p.DBPath
	}

	if err := validate(c); err != nil {
		return Config{}, err
	}

	return c, nil
}

// IsProd checks if the app environment is configured to be production.
func (c Config) IsProd() bool {
	return c.AppEnv == AppEnvProduction
}

func validate(c Config) error {
	if _, err := url.ParseRequestURI(c.WebURL); err != nil {
		return errors.Wrapf(ErrWebURLInvalid, "'%s'", c.WebURL)
	}
	if c.Port == "" {
		return ErrPortInvalid
	}

	if c.DBPath == "" && c.DatabaseURL == "" {
		return ErrDBMissing
	}

	return nil
}
