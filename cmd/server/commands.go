package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"waterlily/internal/platform/config"
	"waterlily/internal/platform/logger"
	jwttoken "waterlily/internal/jwt_token"
	"waterlily/internal/profile/store"
)

// schemaCmd prints the DDL for a dialect so operators can apply it with their
// own migration tooling.
func schemaCmd() *cobra.Command {
	var driver string
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Print the table definitions for a database dialect",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return printSchema(cmd.OutOrStdout(), driver)
		},
	}
	cmd.Flags().StringVar(&driver, "driver", "postgres", "dialect: postgres, pgx, mysql, sqlite")
	return cmd
}

func printSchema(w io.Writer, driver string) error {
	dialect, err := store.DialectFor(driver)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, dialect.Schema())
	return err
}

// accountCmd manages identity records. Signup normally owns them; this exists
// for local development and smoke tests.
func accountCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Manage accounts",
	}

	var first, last string
	create := &cobra.Command{
		Use:   "create <email>",
		Short: "Create an account and print its id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			log := logger.New(cfg.Log.Format, cfg.Log.Level)

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			records, err := openStore(ctx, cfg.Database, log)
			if err != nil {
				return err
			}
			defer records.Close()

			id, err := records.CreateAccount(ctx, args[0], optional(first), optional(last))
			if err != nil {
				return fmt.Errorf("create account: %w", err)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), id)
			return err
		},
	}
	config.RegisterFlags(create.Flags())
	create.Flags().StringVar(&first, "first-name", "", "first name")
	create.Flags().StringVar(&last, "last-name", "", "last name")

	cmd.AddCommand(create)
	return cmd
}

// tokenCmd issues an access token for an account id, signed with the
// configured secret.
func tokenCmd() *cobra.Command {
	var (
		userID int64
		email  string
		ttl    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an access token for local testing",
		RunE: func(cmd *cobra.Command, _ []string) error {
			v, err := config.New()
			if err != nil {
				return err
			}
			if userID <= 0 {
				return fmt.Errorf("--user must be a positive account id")
			}
			secret := v.GetString("jwt.secret")
			token, err := jwttoken.NewJWTService(secret).GenerateAccessToken(userID, email, ttl)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}
	cmd.Flags().Int64Var(&userID, "user", 0, "account id to embed in the token")
	cmd.Flags().StringVar(&email, "email", "", "email claim")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	return cmd
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
