package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"paper-trader/internal/api"
	"paper-trader/internal/kafka"
	"paper-trader/internal/store"
	"paper-trader/internal/stream"
)

func newServeCmd(app *App) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Long: `Start the paper trading HTTP API.

Events are journaled to SQLite and published to Kafka when enabled in the
configuration. The server stops on SIGINT or SIGTERM.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if addr == "" {
				addr = app.Config.Server.Addr
			}
			return app.serve(ctx, addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")
	return cmd
}

func (a *App) serve(ctx context.Context, addr string) error {
	logger := a.Logger.With().Str("component", "server").Logger()

	hub := stream.NewHubWithConfig(stream.DefaultHubConfig(), a.Logger)

	if a.Config.Journal.Enabled {
		journal, err := store.NewSQLiteJournal(a.Config.Journal.Path)
		if err != nil {
			return fmt.Errorf("opening journal: %w", err)
		}
		defer journal.Close()
		hub.RegisterConsumer(store.NewRecorder(journal, a.Logger))
		logger.Info().Str("path", a.Config.Journal.Path).Msg("Journal enabled")
	}

	if a.Config.Kafka.Enabled {
		producer := kafka.NewProducer(a.Config.Kafka.Brokers, a.Config.Kafka.Topic, a.Logger)
		defer producer.Close()
		hub.RegisterConsumer(producer)
		logger.Info().Strs("brokers", a.Config.Kafka.Brokers).Str("topic", a.Config.Kafka.Topic).Msg("Kafka publishing enabled")
	}

	desk, err := a.newDesk(hub)
	if err != nil {
		return err
	}
	desk.Account(a.Config.Trading.DefaultAccount)

	// The hub outlives the signal so requests finishing during Shutdown
	// still reach the sinks; Stop runs after the server has drained.
	if err := hub.Start(context.WithoutCancel(ctx)); err != nil {
		return err
	}
	defer hub.Stop()

	handler := api.NewHandler(desk, a.Catalog, a.Logger)
	srv := api.NewServer(addr, a.Config.Server.ReadTimeout, a.Config.Server.WriteTimeout, api.SetupRoutes(handler))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().Str("addr", addr).Msg("HTTP API listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.Config.Server.ShutdownTimeout)
		defer cancel()
		logger.Info().Msg("Shutting down")
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
