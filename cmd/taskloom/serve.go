package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"taskloom/internal/api"
	"taskloom/internal/config"
	"taskloom/internal/handlers"
	"taskloom/internal/store"
)

var (
	serveAddr   string
	serveDBPath string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the job API over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if !cmd.Flags().Changed("addr") {
			serveAddr = cfg.HTTP.Addr
		}
		if !cmd.Flags().Changed("db") {
			serveDBPath = cfg.DB.Path
		}

		zerolog.TimeFieldFormat = time.RFC3339
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout})

		st, err := store.Open(serveDBPath)
		if err != nil {
			return err
		}
		defer st.Close()

		registry := handlers.Default()
		srv := &http.Server{
			Addr:    serveAddr,
			Handler: api.NewServer(st, registry.Lookup, cfg.Job.Options(), log.Logger),
		}

		go func() {
			log.Info().Str("addr", serveAddr).Str("db", st.Path()).Msg("job API starting")
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatal().Err(err).Msg("http server")
			}
		}()

		c := make(chan os.Signal, 1)
		signal.Notify(c, os.Interrupt, syscall.SIGTERM)
		<-c
		log.Info().Msg("shutting down")

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8080", "HTTP bind address")
	serveCmd.Flags().StringVar(&serveDBPath, "db", "taskloom.db", "SQLite DB path")
}
