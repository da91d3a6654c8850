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

package cmd

import (
	"fmt"
	"net/http"
	"time"

	"github.com/marginalia/marginalia/pkg/server/app"
	"github.com/marginalia/marginalia/pkg/server/buildinfo"
	"github.com/marginalia/marginalia/pkg/server/config"
	"github.com/marginalia/marginalia/pkg/server/controllers"
	"github.com/marginalia/marginalia/pkg/server/database"
	"github.com/marginalia/marginalia/pkg/server/log"
	"github.com/pkg/errors"
	"github.com/robfig/cron"
	"github.com/spf13/cobra"
)

// pdfCacheMaxAge is how long an unread cached PDF is kept around
const pdfCacheMaxAge = 30 * 24 * time.Hour

func startCmd() *cobra.Command {
	var (
		port                string
		webURL              string
		dbPath              string
		databaseURL         string
		pdfCacheDir         string
		disableRegistration bool
		logLevel            string
	)

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.New(config.Params{
				Port:                port,
				WebURL:              webURL,
				DBPath:              dbPath,
				DatabaseURL:         databaseURL,
				PDFCacheDir:         pdfCacheDir,
				DisableRegistration: disableRegistration,
				LogLevel:            logLevel,
			})
			if err != nil {
				return err
			}

			log.SetLevel(cfg.LogLevel)

			a, err := initApp(cfg)
			if err != nil {
				return err
			}
			defer closeDB(&a)()

			if cfg.DatabaseURL == "" {
				// keep the WAL file from growing unbounded
				database.StartWALCheckpointing(a.DB, 5*time.Minute)
			}

			if err := startJobs(&a); err != nil {
				return errors.Wrap(err, "starting jobs")
			}

			ctl := controllers.New(&a)
			rc := controllers.RouteConfig{
				APIRoutes:   controllers.NewAPIRoutes(&a, ctl),
				Controllers: ctl,
			}

			r, err := controllers.NewRouter(&a, rc)
			if err != nil {
				return errors.Wrap(err, "initializing router")
			}

			log.WithFields(log.Fields{
				"version": buildinfo.Version,
				"port":    cfg.Port,
			}).Info("Marginalia server starting")

			return http.ListenAndServe(fmt.Sprintf(":%s", cfg.Port), r)
		},
	}

	cmd.Flags().StringVar(&port, "port", "", "Server port (env: PORT, default: 3001)")
	cmd.Flags().StringVar(&webURL, "webUrl", "", "Full URL to server without trailing slash (env: WebURL, default: http://localhost:3001)")
	cmd.Flags().StringVar(&dbPath, "dbPath", "", "Path to SQLite database file (env: DBPath, default: $XDG_DATA_HOME/marginalia/server.db)")
	cmd.Flags().StringVar(&databaseURL, "databaseUrl", "", "Postgres connection string; takes precedence over dbPath (env: DatabaseURL)")
	cmd.Flags().StringVar(&pdfCacheDir, "pdfCacheDir", "", "Directory for cached PDFs (env: PDFCacheDir, default: $XDG_DATA_HOME/marginalia/pdf)")
	cmd.Flags().BoolVar(&disableRegistration, "disableRegistration", false, "Disable user registration (env: DisableRegistration, default: false)")
	cmd.Flags().StringVar(&logLevel, "logLevel", "", "Log level: debug, info, warn, or error (env: LOG_LEVEL, default: info)")

	return cmd
}

// startJobs schedules the recurring maintenance jobs
func startJobs(a *app.App) error {
	c := cron.New()

	err := c.AddFunc("@hourly", func() {
		if err := a.DeleteExpiredSessions(); err != nil {
			log.ErrorWrap(err, "deleting expired sessions")
		}
	})
	if err != nil {
		return errors.Wrap(err, "scheduling session sweep")
	}

	err = c.AddFunc("@daily", func() {
		if err := a.PrunePDFCache(pdfCacheMaxAge); err != nil {
			log.ErrorWrap(err, "pruning pdf cache")
		}
	})
	if err != nil {
		return errors.Wrap(err, "scheduling pdf cache pruning")
	}

	c.Start()

	return nil
}
