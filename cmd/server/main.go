// Command server is the Bedrock relay server binary. It loads a YAML
// configuration file, builds the event handler registry, starts the
// WebSocket accept loop and the admin HTTP surface, and shuts down
// gracefully on SIGTERM or SIGINT.
package main

import (
	"context"
	"crypto/tls"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bedrockrelay/server/internal/adminhttp"
	"github.com/bedrockrelay/server/internal/audit"
	"github.com/bedrockrelay/server/internal/bedrock"
	"github.com/bedrockrelay/server/internal/bedrock/events"
	"github.com/bedrockrelay/server/internal/config"
	"github.com/bedrockrelay/server/internal/wsserver"
)

func main() {
	var configPath string
	var logLevelOverride string
	flag.StringVar(&configPath, "config", "config.yaml", "path to the YAML configuration file")
	flag.StringVar(&logLevelOverride, "log-level", "", "override log_level from the config file: debug | info | warn | error")
	flag.Parse()

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "bedrockrelay: %v\n", err)
		os.Exit(1)
	}
	if logLevelOverride != "" {
		cfg.LogLevel = logLevelOverride
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	logger.Info("bedrock relay server starting",
		slog.String("addr", fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)),
		slog.String("admin_addr", cfg.AdminAddr),
	)

	var auditTrail *audit.Trail
	if cfg.AuditLogPath != "" {
		auditTrail, err = audit.Open(cfg.AuditLogPath)
		if err != nil {
			logger.Error("failed to open audit trail", slog.Any("error", err))
			os.Exit(1)
		}
		defer auditTrail.Close()
		logger.Info("command audit trail enabled", slog.String("path", cfg.AuditLogPath))
	} else {
		logger.Warn("audit_log_path not configured; command audit trail disabled")
	}

	registry := bedrock.NewRegistry()
	registerSampleHandlers(registry, logger)

	var tlsConfig *tls.Config
	if cfg.TLS != nil {
		cert, err := tls.LoadX509KeyPair(cfg.TLS.CertPath, cfg.TLS.KeyPath)
		if err != nil {
			logger.Error("failed to load TLS certificate", slog.Any("error", err))
			os.Exit(1)
		}
		tlsConfig = &tls.Config{Certificates: []tls.Certificate{cert}, MinVersion: tls.VersionTLS12}
	}

	wsSrv := wsserver.New(wsserver.Config{
		Host:             cfg.Host,
		Port:             cfg.Port,
		TLS:              tlsConfig,
		HandshakeTimeout: cfg.HandshakeTimeout,
		CloseTimeout:     cfg.CloseTimeout,
		CommandTimeout:   cfg.CommandTimeout,
		MaxMessageBytes:  cfg.MaxMessageBytes,
		ShutdownGrace:    cfg.ShutdownGrace,
		Logger:           logger,
		Audit:            auditTrail,
	}, registry)

	adminSrv := &http.Server{
		Addr:    cfg.AdminAddr,
		Handler: adminhttp.NewRouter(sessionAdapter{wsSrv}),
	}

	_, cancel := context.WithCancel(context.Background())
	defer cancel()

	wsErrCh := make(chan error, 1)
	go func() {
		if err := wsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			wsErrCh <- fmt.Errorf("websocket server: %w", err)
			return
		}
		wsErrCh <- nil
	}()

	adminErrCh := make(chan error, 1)
	go func() {
		logger.Info("admin HTTP surface listening", slog.String("addr", cfg.AdminAddr))
		if err := adminSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			adminErrCh <- fmt.Errorf("admin HTTP server: %w", err)
			return
		}
		adminErrCh <- nil
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", slog.String("signal", sig.String()))
	case err := <-wsErrCh:
		if err != nil {
			logger.Error("websocket server error", slog.Any("error", err))
		}
	case err := <-adminErrCh:
		if err != nil {
			logger.Error("admin HTTP server error", slog.Any("error", err))
		}
	}

	logger.Info("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace+5*time.Second)
	defer shutdownCancel()

	if err := wsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("websocket server shutdown did not complete cleanly", slog.Any("error", err))
	}
	if err := adminSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("admin HTTP server shutdown error", slog.Any("error", err))
	}

	logger.Info("bedrock relay server exited cleanly")
}

// sessionAdapter adapts *wsserver.Server to adminhttp.SessionLister, which
// declares its own SessionInfo type so the admin package does not need to
// import wsserver's internals.
type sessionAdapter struct {
	srv *wsserver.Server
}

func (a sessionAdapter) ClientCount() int { return a.srv.ClientCount() }

func (a sessionAdapter) Sessions() []adminhttp.SessionInfo {
	infos := a.srv.Sessions()
	out := make([]adminhttp.SessionInfo, len(infos))
	for i, info := range infos {
		out[i] = adminhttp.SessionInfo{ID: info.ID, SubscriptionCount: info.SubscriptionCount}
	}
	return out
}

// registerSampleHandlers wires a small set of representative event handlers;
// a real deployment would replace these with its own registrations.
func registerSampleHandlers(registry *bedrock.Registry, logger *slog.Logger) {
	registry.On(events.PlayerMessage, true, func(ctx *bedrock.EventContext) {
		var props struct {
			Sender      string `json:"Sender"`
			Message     string `json:"Message"`
			MessageType string `json:"MessageType"`
		}
		if err := ctx.Properties(&props); err != nil {
			logger.Warn("sample handler: decode PlayerMessage properties failed", slog.Any("error", err))
			return
		}
		if props.MessageType != "chat" {
			return
		}
		logger.Info("chat message", slog.String("sender", props.Sender), slog.String("message", props.Message))
	})

	registry.On(events.PlayerJoin, true, func(ctx *bedrock.EventContext) {
		ctx.Reply("Welcome to the server!")
	})
}

// newLogger constructs a *slog.Logger that writes JSON-structured log
// records to stderr at the requested minimum level.
func newLogger(level string) *slog.Logger {
	var l slog.Level
	switch level {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: l}))
}
