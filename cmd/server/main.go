package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/vovakirdan/chatroom-server/internal/app"
	"github.com/vovakirdan/chatroom-server/internal/config"
	"github.com/vovakirdan/chatroom-server/internal/log"
	"github.com/vovakirdan/chatroom-server/internal/store"
)

type rootOptions struct {
	configPath string
	logLevel   string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:          "chatroom-server",
		Short:        "Single-room chat server with moderation",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), opts)
		},
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to config file")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override log level (debug, info, warn, error)")

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the chat server",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runServe(cmd.Context(), opts)
			},
		},
		&cobra.Command{
			Use:   "users",
			Short: "List known users",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withStore(opts, func(st store.Store, _ *zerolog.Logger) error {
					return printUsers(cmd.Context(), st)
				})
			},
		},
		&cobra.Command{
			Use:   "bans",
			Short: "List active bans",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withStore(opts, func(st store.Store, _ *zerolog.Logger) error {
					return printBans(cmd.Context(), st)
				})
			},
		},
		newRoleCmd(opts, "promote", true),
		newRoleCmd(opts, "demote", false),
	)

	return root
}

func loadConfig(opts *rootOptions) (config.Config, *zerolog.Logger, error) {
	bootLogger := log.New(opts.logLevel)

	cfg, path, err := config.Load(bootLogger, opts.configPath)
	if err != nil {
		return cfg, bootLogger, fmt.Errorf("load config: %w", err)
	}
	if opts.logLevel != "" {
		cfg.LogLevel = opts.logLevel
	}

	logger := log.New(cfg.LogLevel)
	logger.Debug().Str("path", path).Msg("config loaded")
	return cfg, logger, nil
}

func runServe(parent context.Context, opts *rootOptions) error {
	cfg, logger, err := loadConfig(opts)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(&cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("failed to initialize application")
		return err
	}

	logger.Info().Str("addr", cfg.Addr).Str("super_moderator", cfg.SuperModerator).Msg("starting chatroom server")
	if err := application.Run(ctx); err != nil {
		logger.Error().Err(err).Msg("server exited with error")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}

func withStore(opts *rootOptions, fn func(store.Store, *zerolog.Logger) error) error {
	cfg, logger, err := loadConfig(opts)
	if err != nil {
		return err
	}

	st, err := app.OpenStore(&cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	return fn(st, logger)
}

func newRoleCmd(opts *rootOptions, use string, moderator bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <username>",
		Short: fmt.Sprintf("%s a registered user", use),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(opts, func(st store.Store, logger *zerolog.Logger) error {
				user, err := st.GetUserByUsername(cmd.Context(), args[0])
				if errors.Is(err, store.ErrNotFound) {
					return fmt.Errorf("user %q not found", args[0])
				}
				if err != nil {
					return err
				}
				if err := st.SetModerator(cmd.Context(), user.ID, moderator); err != nil {
					return err
				}
				logger.Info().Str("username", user.Username).Bool("moderator", moderator).Msg("role updated")
				return nil
			})
		},
	}
}

func printUsers(ctx context.Context, st store.Store) error {
	users, err := st.ListUsers(ctx)
	if err != nil {
		return err
	}
	bans, err := st.ListBans(ctx)
	if err != nil {
		return err
	}
	banned := make(map[int64]bool, len(bans))
	for _, b := range bans {
		banned[b.UserID] = true
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"ID", "Username", "Color", "Registered", "Moderator", "Banned", "Created"})
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(false)
	for _, u := range users {
		table.Append([]string{
			strconv.FormatInt(u.ID, 10),
			u.Username,
			u.Color,
			strconv.FormatBool(u.Registered()),
			strconv.FormatBool(u.IsModerator),
			strconv.FormatBool(banned[u.ID]),
			u.CreatedAt.Format(time.RFC3339),
		})
	}
	table.Render()
	return nil
}

func printBans(ctx context.Context, st store.Store) error {
	bans, err := st.ListBans(ctx)
	if err != nil {
		return err
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Username", "Banned By", "Reason", "Created"})
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(false)
	for _, b := range bans {
		table.Append([]string{b.Username, b.BannedByName, b.Reason, b.CreatedAt.Format(time.RFC3339)})
	}
	table.Render()
	return nil
}
