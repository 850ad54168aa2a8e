package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"velvetrope/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the game HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, st, err := buildEngine()
		if err != nil {
			return err
		}
		defer st.Close()

		httpServer := &http.Server{
			Addr:    cfg.Server.Addr,
			Handler: server.New(eng, logger.Named("http")),
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		group, ctx := errgroup.WithContext(ctx)
		group.Go(func() error {
			logger.Info("serving", zap.String("addr", cfg.Server.Addr))
			if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		group.Go(func() error {
			<-ctx.Done()
			logger.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return httpServer.Shutdown(shutdownCtx)
		})

		return group.Wait()
	},
}
