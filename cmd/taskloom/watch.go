package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"taskloom/internal/config"
	"taskloom/internal/handlers"
	"taskloom/internal/spool"
	"taskloom/internal/store"
)

var (
	watchDir    string
	watchDBPath string
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run job files dropped into a spool directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if !cmd.Flags().Changed("dir") {
			watchDir = cfg.Spool.Dir
		}
		if !cmd.Flags().Changed("db") {
			watchDBPath = cfg.DB.Path
		}

		zerolog.TimeFieldFormat = time.RFC3339
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout})

		var st *store.Store
		if watchDBPath != "" {
			if st, err = store.Open(watchDBPath); err != nil {
				return err
			}
			defer st.Close()
		}

		registry := handlers.Default()
		watcher, err := spool.New(watchDir, cfg.Job.Options(), registry.Lookup, st, log.Logger)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		log.Info().Str("dir", watchDir).Msg("watching spool directory")
		if err := watcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}

func init() {
	watchCmd.Flags().StringVar(&watchDir, "dir", "spool", "Spool directory to watch")
	watchCmd.Flags().StringVar(&watchDBPath, "db", "taskloom.db", "SQLite DB path (empty disables persistence)")
}
