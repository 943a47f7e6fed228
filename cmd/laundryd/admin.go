package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"laundry-smart-queue/internal/auth"
	"laundry-smart-queue/internal/db"
	"laundry-smart-queue/internal/laundry"
	"laundry-smart-queue/internal/store"
)

func migrateCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := load()
			if err != nil {
				return err
			}
			_, err = db.Init(&cfg.Database)
			return err
		},
	}
}

func seedCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Provision the machines listed in the configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := load()
			if err != nil {
				return err
			}
			machines := machinesFromConfig(cfg)
			if len(machines) == 0 {
				return errors.New("laundry.machines is empty; nothing to seed")
			}

			gormDB, err := db.Init(&cfg.Database)
			if err != nil {
				return err
			}
			svc := laundry.NewService(store.NewGormStore(gormDB), nil, laundry.WithLogger(log))
			defer svc.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			if err := svc.Provision(ctx, machines); err != nil {
				return err
			}
			log.WithField("count", len(machines)).Info("machines provisioned")
			return nil
		},
	}
}

func tokenCmd(load loader) *cobra.Command {
	var (
		userID string
		name   string
		role   string
		ttl    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a signed session token",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := load()
			if err != nil {
				return err
			}
			if cfg.Auth.JWTSecret == "" {
				return errors.New("auth.jwt_secret (or LAUNDRY_JWT_SECRET) must be set")
			}
			r, ok := auth.NormalizeRole(role)
			if !ok {
				return fmt.Errorf("unknown role %q", role)
			}

			token, err := auth.NewToken(auth.Session{UserID: userID, Name: name, Role: r}, cfg.Auth.Issuer, ttl, []byte(cfg.Auth.JWTSecret))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "User id stored as the token subject")
	cmd.Flags().StringVar(&name, "name", "", "Display name")
	cmd.Flags().StringVar(&role, "role", string(auth.RoleUser), "Role: user or admin")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "Token lifetime")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
