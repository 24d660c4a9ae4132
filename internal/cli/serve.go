package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/boothkit/boothkit/config"
	"github.com/boothkit/boothkit/logging"
	"github.com/boothkit/boothkit/remote"
	"github.com/boothkit/boothkit/remote/httpremote"
	"github.com/boothkit/boothkit/remote/memstore"
	"github.com/boothkit/boothkit/remote/postgres"
)

// NewServeCommand runs the sync server booth clients talk to.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the boothkit sync server",
		Long: `Run the HTTP sync server backed by the configured store. The memory
backend serves demos and tests; production deployments point the postgres
backend at a shared database so every booth client sees the same shows.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := rootOpts.Config()
			if addr == "" {
				addr = cfg.Server.Addr
			}

			backing, err := buildServerStore(cfg)
			if err != nil {
				return err
			}
			defer backing.Close()

			srv := &http.Server{
				Addr:              addr,
				Handler:           httpremote.NewServer(backing).Handler(),
				ReadHeaderTimeout: 5 * time.Second,
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() {
				logging.Info("sync server listening", slog.String("addr", addr), slog.String("backend", cfg.Remote.Kind))
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			logging.Info("sync server stopped")
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (defaults to server.addr from config)")
	return cmd
}

// buildServerStore picks the store the server fronts. An http remote would
// just proxy to another server, which is never what serve means.
func buildServerStore(cfg *config.Config) (remote.Store, error) {
	switch cfg.Remote.Kind {
	case config.RemotePostgres:
		return postgres.NewWithConnectionString(cfg.Remote.ConnectionString)
	case config.RemoteMemory, config.RemoteHTTP:
		if cfg.Remote.Kind == config.RemoteHTTP {
			return nil, fmt.Errorf("serve requires a memory or postgres backend, not http")
		}
		return memstore.New(), nil
	default:
		return nil, fmt.Errorf("unknown remote kind %q", cfg.Remote.Kind)
	}
}
