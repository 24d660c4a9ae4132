package cli

import (
	"context"
	"fmt"

	"github.com/boothkit/boothkit"
	"github.com/boothkit/boothkit/config"
	"github.com/boothkit/boothkit/metrics"
	"github.com/boothkit/boothkit/remote"
	"github.com/boothkit/boothkit/remote/httpremote"
	"github.com/boothkit/boothkit/remote/memstore"
	"github.com/boothkit/boothkit/remote/postgres"
	"github.com/boothkit/boothkit/storage/sqlite"

	"github.com/prometheus/client_golang/prometheus"
)

// buildRemote constructs the remote store named by the configuration.
func buildRemote(cfg *config.Config) (remote.Store, error) {
	switch cfg.Remote.Kind {
	case config.RemoteHTTP:
		return httpremote.NewClient(cfg.Remote.URL, nil)
	case config.RemotePostgres:
		return postgres.NewWithConnectionString(cfg.Remote.ConnectionString)
	case config.RemoteMemory:
		return memstore.New(), nil
	default:
		return nil, fmt.Errorf("unknown remote kind %q", cfg.Remote.Kind)
	}
}

// openBooth wires a Booth for a one-shot CLI invocation and enters the
// selected show, which also syncs it when the remote answers.
func openBooth(ctx context.Context, opts *RootOptions) (*boothkit.Booth, error) {
	if opts.ShowID == "" {
		return nil, fmt.Errorf("--show is required")
	}
	cfg := opts.Config()

	store, err := sqlite.NewWithDataSource(cfg.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("opening local cache: %w", err)
	}

	rs, err := buildRemote(cfg)
	if err != nil {
		store.Close()
		return nil, err
	}

	// One-shot invocations get their own registry; nothing scrapes a CLI.
	b, err := boothkit.New(boothkit.Options{
		Local:          store,
		Queue:          store,
		Remote:         rs,
		ReloadInterval: cfg.Sync.ReloadInterval,
		Metrics:        metrics.NewCollector(prometheus.NewRegistry()),
	})
	if err != nil {
		store.Close()
		rs.Close()
		return nil, err
	}

	b.Start(ctx)
	if err := b.SelectShow(ctx, opts.ShowID); err != nil {
		b.Close()
		return nil, err
	}
	return b, nil
}
