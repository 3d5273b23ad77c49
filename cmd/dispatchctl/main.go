// Command dispatchctl runs the bot outside Lambda and exposes ledger maintenance
// commands.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"dispatch-bot/internal/app"
	"dispatch-bot/internal/config"
	"dispatch-bot/internal/domain"
	"dispatch-bot/internal/ledger"
	"dispatch-bot/internal/usecase"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

type globals struct {
	debug      bool
	rosterPath string
	envFile    string
	logger     *slog.Logger
}

func newRootCmd() *cobra.Command {
	g := &globals{}
	rootCmd := &cobra.Command{
		Use:           "dispatchctl",
		Short:         "Run and maintain the dispatch bot",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if g.envFile != "" {
				config.LoadDotEnv(g.envFile)
			} else {
				config.LoadDotEnv()
			}
			level := slog.LevelInfo
			if g.debug {
				level = slog.LevelDebug
			}
			g.logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
			slog.SetDefault(g.logger)
			return nil
		},
	}

	rootCmd.PersistentFlags().BoolVar(&g.debug, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&g.rosterPath, "roster", "", "Read the roster from a local YAML file instead of Parameter Store")
	rootCmd.PersistentFlags().StringVar(&g.envFile, "env-file", "", "Load environment variables from this file (default .env)")

	rootCmd.AddCommand(newPollCmd(g))
	rootCmd.AddCommand(newRefreshRowsCmd(g))
	rootCmd.AddCommand(newPeriodCmd(g))
	return rootCmd
}

// build wires the application from the environment.
func (g *globals) build(ctx context.Context, extra ...app.Option) (*app.App, error) {
	settings, err := config.FromEnv(os.Getenv)
	if err != nil {
		return nil, err
	}
	opts := append([]app.Option{app.WithLogger(g.logger)}, extra...)
	if g.rosterPath != "" {
		roster, err := config.LoadRosterFile(g.rosterPath)
		if err != nil {
			return nil, err
		}
		opts = append(opts, app.WithRoster(roster))
	}
	return app.New(ctx, settings, opts...)
}

func newPollCmd(g *globals) *cobra.Command {
	var (
		memorySessions bool
		timeout        time.Duration
	)
	cmd := &cobra.Command{
		Use:   "poll",
		Short: "Serve chats by long polling instead of the webhook",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			var extra []app.Option
			if memorySessions {
				extra = append(extra, app.WithMemorySessions())
			}
			a, err := g.build(ctx, extra...)
			if err != nil {
				return err
			}
			return poll(ctx, a, timeout, g.logger)
		},
	}
	cmd.Flags().BoolVar(&memorySessions, "memory-sessions", false, "Keep sessions in memory instead of DynamoDB")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "Long poll timeout")
	return cmd
}

func poll(ctx context.Context, a *app.App, timeout time.Duration, logger *slog.Logger) error {
	deliver := func(ctx context.Context, sessionID string, replies []domain.Reply) {
		for _, r := range replies {
			if err := a.Telegram.Notify(ctx, sessionID, r); err != nil {
				logger.ErrorContext(ctx, "reply delivery failed", "session", sessionID, "err", err)
			}
		}
	}
	d, err := usecase.NewDispatcher(a.Engine, deliver, usecase.WithDispatcherLogger(logger))
	if err != nil {
		return err
	}
	defer d.Wait()

	logger.Info("polling for updates", "timeout", timeout)
	var offset int64
	for {
		updates, err := a.Telegram.GetUpdates(ctx, offset, timeout)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logger.Warn("get updates failed", "err", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(2 * time.Second):
			}
			continue
		}
		for _, u := range updates {
			offset = u.UpdateID + 1
			ev, ok := u.Event()
			if !ok {
				continue
			}
			turnCtx := usecase.WithCorrelationID(ctx, uuid.NewString())
			if ev.CallbackID != "" {
				if err := a.Telegram.AnswerCallback(turnCtx, ev.CallbackID); err != nil {
					logger.Warn("answer callback failed", "err", err)
				}
			}
			d.Submit(turnCtx, usecase.Event{SessionID: ev.SessionID(), UserID: ev.UserID, Input: ev.Input})
		}
	}
}

func newRefreshRowsCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh-rows [ENTITY...]",
		Short: "Rescan append rows and update the cache",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := g.build(ctx, app.WithMemorySessions())
			if err != nil {
				return err
			}
			names := args
			if len(names) == 0 {
				names = a.Roster.Names()
			}
			for _, name := range names {
				if _, ok := a.Roster.Entity(name); !ok {
					return fmt.Errorf("unknown entity %q", name)
				}
				row, err := a.Ledger.FindAppendRow(ctx, name, ledger.ColPickupDate, true)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d\n", name, row)
			}
			return nil
		},
	}
}

func newPeriodCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "period ENTITY START_ROW",
		Short: "Print the settlement period that begins at START_ROW",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			start, err := strconv.Atoi(args[1])
			if err != nil || start < 1 {
				return errors.New("START_ROW must be a positive row number")
			}
			a, err := g.build(ctx, app.WithMemorySessions())
			if err != nil {
				return err
			}
			end, err := a.Ledger.FindPeriodEnd(ctx, args[0], start)
			if err != nil {
				return err
			}
			rows, err := a.Ledger.ReadRows(ctx, args[0], start, end)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s rows %d-%d\n", args[0], start, end)
			for _, r := range rows {
				fmt.Fprintf(out, "%d\t%s\t%s -> %s\t%s\n", r.Row, r.PickupDate, r.Origin, r.Destination, r.Gross.StringFixed(2))
			}
			return nil
		},
	}
}
