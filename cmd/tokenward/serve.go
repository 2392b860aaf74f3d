// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 tokenward Contributors

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/tokenward/tokenward/internal/auth/memory"
	"github.com/tokenward/tokenward/internal/auth/postgres"
	"github.com/tokenward/tokenward/internal/authrpc"
	"github.com/tokenward/tokenward/internal/config"
	"github.com/tokenward/tokenward/internal/grpcauth"
	"github.com/tokenward/tokenward/internal/logging"
	"github.com/tokenward/tokenward/internal/tls"
)

const shutdownTimeout = 5 * time.Second

// publicMethods are reachable without an access token.
var publicMethods = append([]string{
	"/" + healthpb.Health_ServiceDesc.ServiceName + "/*",
}, authrpc.PublicMethods()...)

// serveOptions holds flags of the serve command that are not configuration.
type serveOptions struct {
	memory   bool
	logLevel string
}

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	opts := &serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the token service",
		Long: `Run the token service: connect to PostgreSQL, optionally apply migrations,
start the expired token sweeper, the metrics/health endpoint and the gRPC
server. The gRPC server carries the account and token API
(tokenward.auth.v1.AuthService) and the health service. Register, Login,
Refresh, Logout and the password reset calls are open; every other call
needs a bearer access token.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return runServeWithDeps(cmd.Context(), cfg, opts, cmd, nil)
		},
	}

	addConfigFlags(cmd.Flags())
	cmd.Flags().BoolVar(&opts.memory, "memory", false, "keep users and tokens in memory instead of PostgreSQL")
	cmd.Flags().StringVar(&opts.logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	return cmd
}

// addConfigFlags registers the flags that override configuration keys.
// Their defaults only document the built-in values; a flag applies when set.
func addConfigFlags(fs *pflag.FlagSet) {
	d := config.Default()
	fs.String("database-url", "", "PostgreSQL connection URL")
	fs.Bool("auto-migrate", d.Database.AutoMigrate, "apply pending migrations on startup")
	fs.String("issuer", d.Tokens.Issuer, "access token issuer")
	fs.String("audience", d.Tokens.Audience, "access token audience")
	fs.Duration("access-ttl", d.Tokens.AccessTTL, "access token lifetime")
	fs.Duration("refresh-ttl", d.Tokens.RefreshTTL, "refresh token lifetime")
	fs.String("signing-key", "", "Ed25519 signing key PEM file")
	fs.String("verify-key", "", "Ed25519 verification key PEM file")
	fs.String("refresh-secret", "", "file holding the refresh token HMAC secret")
	fs.Bool("single-session", d.Tokens.SingleSession, "revoke existing refresh tokens on login")
	fs.String("log-format", d.Log.Format, "log format (json or text)")
	fs.String("metrics-addr", d.Observability.Addr, "metrics/health HTTP address (empty = disabled)")
	fs.String("grpc-addr", d.GRPC.Addr, "gRPC listen address")
	fs.String("grpc-tls-cert", "", "gRPC server certificate PEM file (enables TLS with --grpc-tls-key)")
	fs.String("grpc-tls-key", "", "gRPC server private key PEM file")
	fs.Duration("sweeper-interval", d.Sweeper.Interval, "interval between expired token sweeps")
}

// runServeWithDeps runs the service with injectable dependencies.
// If deps is nil, default implementations are used.
func runServeWithDeps(ctx context.Context, cfg *config.Config, opts *serveOptions, cmd *cobra.Command, deps *ServeDeps) error {
	deps = deps.withDefaults()
	if ctx == nil {
		ctx = context.Background()
	}

	if err := cfg.Validate(); err != nil {
		return oops.With("operation", "validate configuration").Wrap(err)
	}

	logger := logging.SetDefault(logging.Options{
		Service: "tokenward",
		Version: version,
		Format:  cfg.Log.Format,
		Level:   logging.ParseLevel(opts.logLevel),
	})

	priv, pub, err := loadKeys(cfg.Tokens)
	if err != nil {
		return err
	}

	var (
		repos repositories
		ready func(ctx context.Context) error
	)
	if opts.memory {
		logger.Warn("using in-memory storage; all data is lost on exit")
		mem := memory.NewStore()
		repos = repositories{users: mem, tokens: mem}
	} else {
		pool, err := openDatabase(ctx, cfg.Database, deps, logger)
		if err != nil {
			return err
		}
		defer pool.Close()
		repos = repositories{
			users:  postgres.NewUserRepository(pool),
			tokens: postgres.NewTokenRepository(pool),
		}
		ready = pool.Ping
	}

	svc, err := buildServices(cfg, priv, pub, repos, logger)
	if err != nil {
		return err
	}

	interceptor, err := grpcauth.New(svc.validator,
		grpcauth.WithPublicMethods(publicMethods...),
		grpcauth.WithLogger(logger))
	if err != nil {
		return err
	}

	serverOpts := []grpc.ServerOption{
		grpc.ChainUnaryInterceptor(interceptor.Unary()),
		grpc.ChainStreamInterceptor(interceptor.Stream()),
	}
	if cfg.GRPC.TLSEnabled() {
		tlsConfig, err := tls.ServerConfig(cfg.GRPC.TLSCertFile, cfg.GRPC.TLSKeyFile)
		if err != nil {
			return err
		}
		serverOpts = append(serverOpts, grpc.Creds(credentials.NewTLS(tlsConfig)))
	} else {
		logger.Warn("gRPC listener has no TLS; bearer tokens travel in plaintext")
	}

	listener, err := deps.ListenerFactory("tcp", cfg.GRPC.Addr)
	if err != nil {
		return oops.Code("GRPC_LISTEN_FAILED").With("addr", cfg.GRPC.Addr).Wrap(err)
	}

	grpcServer := grpc.NewServer(serverOpts...)
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	authrpc.RegisterAuthServer(grpcServer, authrpc.NewServer(svc.auth, logger))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var obsServer ObservabilityServer
	if cfg.Observability.Addr != "" {
		obsServer = deps.ObservabilityServerFactory(cfg.Observability.Addr, ready, logger)
		if err := obsServer.Register(grpcauth.Decisions); err != nil {
			_ = listener.Close()
			return err
		}
		obsErrChan, err := obsServer.Start()
		if err != nil {
			_ = listener.Close()
			return oops.With("operation", "start observability server").Wrap(err)
		}
		go monitorServerErrors(ctx, cancel, obsErrChan, "observability", logger)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		svc.sweeper.Run(ctx)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	errChan := make(chan error, 1)
	go func() {
		if serveErr := grpcServer.Serve(listener); serveErr != nil {
			errChan <- serveErr
		}
	}()

	cmd.Println("tokenward serving on", listener.Addr().String())
	logger.Info("tokenward ready",
		"grpc_addr", listener.Addr().String(),
		"memory", opts.memory,
		"tls", cfg.GRPC.TLSEnabled(),
		"single_session", cfg.Tokens.SingleSession,
		"access_ttl", cfg.Tokens.AccessTTL,
		"refresh_ttl", cfg.Tokens.RefreshTTL)
	deps.Ready(listener.Addr().String())

	var runErr error
	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", "signal", sig)
	case err := <-errChan:
		runErr = oops.Code("GRPC_SERVE_FAILED").Wrap(err)
	case <-ctx.Done():
		logger.Info("context cancelled, shutting down")
	}

	healthServer.Shutdown()
	grpcServer.GracefulStop()
	cancel()
	wg.Wait()

	if obsServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		if err := obsServer.Stop(shutdownCtx); err != nil {
			logger.Warn("error stopping observability server", "error", err)
		}
	}

	logger.Info("shutdown complete")
	return runErr
}

// openDatabase applies migrations when configured and connects the pool.
func openDatabase(ctx context.Context, cfg config.DatabaseConfig, deps *ServeDeps, logger *slog.Logger) (Pool, error) {
	if cfg.URL == "" {
		return nil, oops.Code("CONFIG_INVALID").Errorf("database.url is required unless --memory is set")
	}

	if cfg.AutoMigrate {
		if err := autoMigrate(cfg.URL, deps.MigratorFactory, logger); err != nil {
			return nil, err
		}
	}

	pool, err := deps.PoolFactory(ctx, cfg.Connect(), logger)
	if err != nil {
		return nil, err
	}
	logger.Info("connected to database")
	return pool, nil
}

func autoMigrate(url string, factory func(string) (AutoMigrator, error), logger *slog.Logger) error {
	logger.Info("running database migrations")
	migrator, err := factory(url)
	if err != nil {
		return oops.Code("MIGRATION_INIT_FAILED").With("operation", "create migrator").Wrap(err)
	}
	defer func() {
		if closeErr := migrator.Close(); closeErr != nil {
			logger.Warn("failed to close migrator", "error", closeErr)
		}
	}()
	if err := migrator.Up(); err != nil {
		return oops.Code("AUTO_MIGRATION_FAILED").With("operation", "apply migrations").Wrap(err)
	}
	logger.Info("database migrations complete")
	return nil
}

// monitorServerErrors cancels ctx when the server reports an error.
// It exits when either an error is received, the channel is closed, or the context is cancelled.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string, logger *slog.Logger) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil {
			logger.Error("server error, triggering shutdown", "server", serverName, "error", err)
			cancel()
		}
	case <-ctx.Done():
	}
}
