package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/conference-central/backend/config"
	"github.com/conference-central/backend/internal/announcements"
	"github.com/conference-central/backend/internal/auth"
	"github.com/conference-central/backend/pkg/database"
	"github.com/conference-central/backend/pkg/redis"
)

func newMigrateCmd(env envFunc) *cobra.Command {
	var down bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply (or with --down roll back) the PostgreSQL schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := env()
			if err != nil {
				return err
			}
			defer logger.Sync()
			if cfg.Store.Driver != config.DriverPostgres {
				return fmt.Errorf("migrate needs STORE_DRIVER=%s, got %s", config.DriverPostgres, cfg.Store.Driver)
			}
			if down {
				return database.MigrateDown(cfg.Database.DSN(), logger)
			}
			return database.Migrate(cfg.Database.DSN(), logger)
		},
	}
	cmd.Flags().BoolVar(&down, "down", false, "roll back every migration")
	return cmd
}

func newAnnounceCmd(env envFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "announce",
		Short: "Recompute the nearly-sold-out announcement once",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := env()
			if err != nil {
				return err
			}
			defer logger.Sync()
			if !cfg.Redis.Enabled() {
				return fmt.Errorf("announce needs REDIS_ADDR")
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			st, err := database.Open(ctx, cfg, false, logger)
			if err != nil {
				return err
			}
			defer st.Close()
			rdb, err := redis.NewClient(ctx, cfg.Redis, logger)
			if err != nil {
				return err
			}
			defer rdb.Close()

			msg, err := announcements.NewRefresher(st, announcements.NewRedisCache(rdb.Client), logger).Refresh(ctx)
			if err != nil {
				return err
			}
			if msg == "" {
				fmt.Fprintln(cmd.OutOrStdout(), "no conference is nearly sold out; announcement cleared")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), msg)
			return nil
		},
	}
}

func newTokenCmd(env envFunc) *cobra.Command {
	var userID, email string
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Sign a development identity token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := env()
			if err != nil {
				return err
			}
			token, err := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours).
				Generate(auth.Identity{UserID: userID, Email: email})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id (required)")
	cmd.Flags().StringVar(&email, "email", "", "e-mail address")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
