package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/kubebridge/kubebridge/internal/adapters/outbound/cluster"
	"github.com/kubebridge/kubebridge/internal/config"
	"github.com/kubebridge/kubebridge/internal/httpserver"
	"github.com/kubebridge/kubebridge/internal/infra/clock"
	"github.com/kubebridge/kubebridge/internal/infra/shutdown"
	"github.com/kubebridge/kubebridge/internal/logic/control"
	"github.com/kubebridge/kubebridge/internal/logic/snapshot"
)

// App wires the cluster gateway, the snapshot coordinator, the control
// service and the HTTP servers together.
type App struct {
	logger     *slog.Logger
	shutdowner *shutdown.Handler
	components []component
}

// New builds the full dependency graph from the configuration.
func New(logger *slog.Logger, cfg *config.Config, signals <-chan os.Signal) (*App, error) {
	var caCert []byte

	if cfg.CACertFile != "" {
		var err error

		caCert, err = os.ReadFile(cfg.CACertFile)
		if err != nil {
			return nil, fmt.Errorf("read ca cert: %w", err)
		}
	}

	desc := cluster.ConnectionDescriptor{
		Host:          cfg.Host,
		Port:          cfg.Port,
		APIToken:      cfg.APIToken,
		CACert:        caCert,
		VerifyTLS:     cfg.VerifyTLS,
		ClusterName:   cfg.ClusterName,
		Namespace:     cfg.Namespace,
		AllNamespaces: cfg.AllNamespaces,
	}

	clk := clock.Wall{}

	gateway, err := cluster.New(desc, logger, clk)
	if err != nil {
		return nil, fmt.Errorf("create cluster gateway: %w", err)
	}

	coordinator := snapshot.New(logger, gateway, clk, cfg.Interval)

	controls := control.New(logger, gateway, coordinator, clk, control.Settings{
		VerificationTimeout: cfg.ScaleVerificationTimeout,
		Cooldown:            cfg.ScaleCooldown,
	})

	coordinator.OnRefresh(controls.OnSnapshot)
	coordinator.OnRefreshError(func(err error) {
		logger.Warn("snapshot refresh failed", "reason", err)
	})

	pingers := []httpserver.Pinger{gateway, coordinator, controls}
	httpSrv := httpserver.New(logger, coordinator, controls, gateway, pingers, cfg.HTTPPort)
	metricsSrv := httpserver.NewMetricsServer(logger, cfg.MetricsPort)

	return &App{
		logger:     logger,
		shutdowner: shutdown.New(logger, signals),
		components: []component{coordinator, controls, httpSrv, metricsSrv},
	}, nil
}

// Run starts every component, waits for readiness and blocks until the
// context is cancelled, then shuts the components down in reverse order.
func (a *App) Run(originCtx context.Context) error {
	ctx, cancel := context.WithCancel(originCtx)
	defer cancel()

	go a.shutdowner.HandleSignals(ctx, cancel)

	shutdowners := make([]shutdown.Shutdowner, 0, len(a.components))
	readyChans := make([]<-chan struct{}, 0, len(a.components))

	for _, c := range a.components {
		if err := c.Start(ctx); err != nil {
			if shutdownErr := shutdown.Graceful(originCtx, a.logger, shutdowners); shutdownErr != nil {
				a.logger.ErrorContext(ctx, "shutdown after failed start", "reason", shutdownErr)
			}

			return fmt.Errorf("start %s: %w", c.Name(), err)
		}

		shutdowners = append(shutdowners, c)
		readyChans = append(readyChans, c.Ready())
	}

	select {
	case <-allChannelsClose(ctx, a.logger, readyChans...):
		a.logger.InfoContext(ctx, "all components ready")
	case <-ctx.Done():
	}

	<-ctx.Done()

	return shutdown.Graceful(originCtx, a.logger, shutdowners)
}

// allChannelsClose returns a channel that closes once every input channel
// has closed, or never when the context ends first.
func allChannelsClose(
	ctx context.Context,
	logger *slog.Logger,
	chans ...<-chan struct{},
) <-chan struct{} {
	out := make(chan struct{})

	go func() {
		for _, ch := range chans {
			select {
			case <-ch:
			case <-ctx.Done():
				logger.InfoContext(ctx, "context cancelled while waiting for readiness")

				return
			}
		}

		close(out)
	}()

	return out
}
