package loom

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/loomworks/loom/go/pkg/workspace/api"
)

// NewServeCmd creates the serve command: the workspace core behind a
// local HTTP surface for non-Go shells.
func NewServeCmd() *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the workspace core over local HTTP",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), listen)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "127.0.0.1:7171", "Listen address")
	return cmd
}

func runServe(ctx context.Context, listen string) error {
	app, err := newApp()
	if err != nil {
		return err
	}
	defer app.Close()

	go func() {
		if err := app.Syncer.Run(ctx); err != nil {
			app.Log.Warn("startup sync degraded", zap.Error(err))
		}
	}()

	router := api.NewRouter(api.Options{
		Workspace: app.Ws,
		Engine:    app.Engine,
		Syncer:    app.Syncer,
		Recorder:  app.Recorder,
		Logger:    app.Log,
		Gatherer:  app.Registry,
	})

	server := &http.Server{
		Addr:         listen,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		app.Log.Info("workspace API listening", zap.String("addr", listen))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case <-sigCh:
	case <-ctx.Done():
	}

	app.Log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
