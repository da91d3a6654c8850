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
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/marginalia/marginalia/pkg/server/config"
	"github.com/spf13/cobra"
)

func userCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage users",
	}

	cmd.AddCommand(userCreateCmd())
	cmd.AddCommand(userRemoveCmd())

	return cmd
}

func userCreateCmd() *cobra.Command {
	var (
		email    string
		password string
		dbPath   string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.New(config.Params{DBPath: dbPath})
			if err != nil {
				return err
			}

			a, err := initApp(cfg)
			if err != nil {
				return err
			}
			defer closeDB(&a)()

			user, err := a.CreateUser(email, password)
			if err != nil {
				return err
			}

			color.Green("User created")
			fmt.Printf("Email: %s\n", user.Email.String)

			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "User email address (required)")
	cmd.Flags().StringVar(&password, "password", "", "User password (required)")
	cmd.Flags().StringVar(&dbPath, "dbPath", "", "Path to SQLite database file (env: DBPath)")
	cmd.MarkFlagRequired("email")
	cmd.MarkFlagRequired("password")

	return cmd
}

func userRemoveCmd() *cobra.Command {
	var (
		email  string
		dbPath string
		yes    bool
	)

	cmd := &cobra.Command{
		Use:   "remove",
		Short: "Remove a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.New(config.Params{DBPath: dbPath})
			if err != nil {
				return err
			}

			a, err := initApp(cfg)
			if err != nil {
				return err
			}
			defer closeDB(&a)()

			if _, err := a.GetUserByEmail(email); err != nil {
				return err
			}

			if !yes {
				fmt.Printf("Remove user %s? [y/N] ", email)
				reader := bufio.NewReader(os.Stdin)
				answer, err := reader.ReadString('\n')
				if err != nil {
					return err
				}
				if strings.TrimSpace(strings.ToLower(answer)) != "y" {
					color.Yellow("Aborted")
					return nil
				}
			}

			if err := a.RemoveUser(email); err != nil {
				return err
			}

			color.Green("User removed")
			fmt.Printf("Email: %s\n", email)

			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "User email address (required)")
	cmd.Flags().StringVar(&dbPath, "dbPath", "", "Path to SQLite database file (env: DBPath)")
	cmd.Flags().BoolVar(&yes, "yes", false, "Skip the confirmation prompt")
	cmd.MarkFlagRequired("email")

	return cmd
}
