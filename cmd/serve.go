// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Thermoquad/webcontrol/internal/config"
	"github.com/Thermoquad/webcontrol/internal/health"
	"github.com/Thermoquad/webcontrol/internal/httpserver"
	"github.com/Thermoquad/webcontrol/internal/logging"
	"github.com/Thermoquad/webcontrol/internal/metrics"
	"github.com/Thermoquad/webcontrol/pkg/desk"
	"github.com/Thermoquad/webcontrol/pkg/deskproto"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve desk height requests over HTTP",
	Long: `Serve height requests for one or more desks over HTTP.

Each desk is a resource at /<name>:

  PUT  /sarahsdesk  {"height": {"const": 300}}
  PUT  /sarahsdesk  {"height": {"percent": 40}}
  PUT  /sarahsdesk  {"height": {"move": {"duration": 2000, "direction": "up"}}}
  GET  /sarahsdesk  (height readback, not supported by the device)

Bodies may be JSON or CBOR (Content-Type: application/cbor). Replies are JSON
unless the client accepts application/cbor. Failed requests still return 200
with {"error": ..., "detail": ...}; unknown desks return 404.

Also served: /healthz, /readyz, /health, /api/desks and Prometheus metrics.
Unmatched GET requests are served from --static when set.

Desk links reconnect automatically with exponential backoff (1s to 30s).
With --dry-run no device is opened and frames are only logged.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("listen", ":8080", "HTTP listen address")
	serveCmd.Flags().String("static", "", "Directory served for unmatched GET requests")
	serveCmd.Flags().String("log-level", "info", "Log level (debug, info, warn, error)")
	serveCmd.Flags().String("log-file", "", "Also log to this file, rotated")
	serveCmd.Flags().Bool("dry-run", false, "Log frames instead of writing to devices")
	serveCmd.Flags().Duration("send-timeout", desk.DefaultSendTimeout, "Per-frame send timeout")
}

// deskRuntime is one served desk
type deskRuntime struct {
	controller *desk.Controller
	checker    health.Checker
	closer     io.Closer
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := logging.InitLogger(cfg.Logging)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	reg := metrics.NewRegistry()
	appMetrics := metrics.NewAppMetrics(reg)

	desks, err := buildDesks(cfg, logger, appMetrics)
	if err != nil {
		return err
	}
	defer closeDesks(desks)

	controllers := make(map[string]*desk.Controller, len(desks))
	agg := health.NewAggregator()
	for name, d := range desks {
		controllers[name] = d.controller
		agg.AddChecker(d.checker)
	}
	dispatcher := desk.NewDispatcher(controllers, desk.WithLogger(logger), desk.WithObserver(appMetrics))

	deps := httpserver.Deps{
		Dispatcher: dispatcher,
		Health:     agg,
		Metrics:    appMetrics,
		Logger:     logger,
		OnLinkLost: func(name string, err error) {
			logger.Error("desk link lost, reconnecting", zap.String("desk", name), zap.Error(err))
		},
	}
	if cfg.Link.RateLimit > 0 {
		deps.Limiter = httpserver.NewRateLimiter(cfg.Link.RateLimit, cfg.Link.Burst)
	}
	if cfg.Metrics.Enable {
		deps.MetricsPath = cfg.Metrics.Path
		deps.MetricsHandler = metrics.Handler(reg)
	}

	gin.SetMode(gin.ReleaseMode)
	srv := httpserver.New(cfg.HTTP, deps)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening",
			zap.String("addr", srv.Addr()),
			zap.Strings("desks", dispatcher.Resources()),
			zap.Bool("dry_run", cfg.Link.DryRun),
		)
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

// buildDesks creates a controller per configured desk, over a reconnecting
// link or, in dry-run mode, over a recorder that logs each frame
func buildDesks(cfg *config.Config, logger *zap.Logger, m *metrics.AppMetrics) (map[string]*deskRuntime, error) {
	out := make(map[string]*deskRuntime, len(cfg.Desks))

	for _, dc := range cfg.Desks {
		name := dc.Name
		deskLogger := logger.With(zap.String("desk", name))
		h := desk.NewLinkHealth(cfg.Link.FailureThreshold)
		rt := &deskRuntime{}

		var transport desk.Transport
		if cfg.Link.DryRun {
			rec := desk.NewRecorder()
			rec.OnSend(func(frame []byte) {
				deskLogger.Info("dry-run frame",
					zap.String("hex", deskproto.FormatHex(frame)),
					zap.String("frame", describeFrame(frame)),
				)
			})
			transport = rec
			rt.checker = health.NewDeskChecker(name, h, nil)
			m.SetLinkUp(name, true)
		} else {
			dial, err := NewDialer(dc)
			if err != nil {
				closeDesks(out)
				return nil, err
			}
			m.SetLinkUp(name, false)
			link := NewLink(name, dial,
				WithLinkLogger(logger),
				WithStateHook(func(up bool, info string) {
					m.SetLinkUp(name, up)
				}),
			)
			transport = link
			rt.closer = link
			rt.checker = health.NewDeskChecker(name, h, link.Connected)
		}

		ctrl, err := desk.NewController(name, transport,
			desk.WithLogger(logger),
			desk.WithObserver(m),
			desk.WithHealth(h),
			desk.WithHeightRange(dc.HeightRange()),
			desk.WithSendTimeout(cfg.Link.SendTimeout),
		)
		if err != nil {
			if rt.closer != nil {
				rt.closer.Close()
			}
			closeDesks(out)
			return nil, fmt.Errorf("desk %q: %w", name, err)
		}
		rt.controller = ctrl
		out[name] = rt
	}
	return out, nil
}

func closeDesks(desks map[string]*deskRuntime) {
	for _, d := range desks {
		if d.closer != nil {
			d.closer.Close()
		}
	}
}

func describeFrame(frame []byte) string {
	f, err := deskproto.UnmarshalFrame(frame)
	if err != nil {
		return err.Error()
	}
	return deskproto.FormatFrame(f)
}
