package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/MarcoPoloResearchLab/dashboard/internal/auth"
	"github.com/MarcoPoloResearchLab/dashboard/internal/config"
	"github.com/MarcoPoloResearchLab/dashboard/internal/dashboard"
	"github.com/MarcoPoloResearchLab/dashboard/internal/logging"
	"github.com/MarcoPoloResearchLab/dashboard/internal/server"
	"github.com/MarcoPoloResearchLab/dashboard/internal/users"
	"github.com/bytedance/sonic"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

var (
	cfgFile string
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "dashboard-api",
		Short: "Kanban board and notes sync service",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
		SilenceUsage: true,
	}

	setupFlags(rootCmd)

	rootCmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API (default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	})
	rootCmd.AddCommand(newIssueTokenCommand())
	rootCmd.AddCommand(newWatchCommand())
	return rootCmd
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().String("store-backend", defaults.GetString("store.backend"), "Document store backend (memory, sqlite, redis, firestore)")
	cmd.PersistentFlags().String("redis-address", defaults.GetString("redis.address"), "Redis address for the redis backend")
	cmd.PersistentFlags().String("firestore-project", defaults.GetString("firestore.project_id"), "Firestore project for the firestore backend")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("log-format", defaults.GetString("log.format"), "Log format (json, console)")
	cmd.PersistentFlags().String("signing-secret", "", "TAuth session signing secret (overrides env)")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "store.backend", "store-backend")
	bindFlag(cmd, "redis.address", "redis-address")
	bindFlag(cmd, "firestore.project_id", "firestore-project")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "log.format", "log-format")
	bindFlag(cmd, "tauth.signing_secret", "signing-secret")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if err := config.LoadDotEnv(); err != nil {
		return err
	}
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

// services holds what every long-running command needs.
type services struct {
	config  config.AppConfig
	logger  *zap.Logger
	backend *backend
	manager *dashboard.Manager
}

func openServices(ctx context.Context, load func(*viper.Viper) (config.AppConfig, error)) (*services, error) {
	appConfig, err := load(viper.GetViper())
	if err != nil {
		return nil, err
	}
	logger, err := logging.NewLogger(appConfig.LogLevel, appConfig.LogFormat)
	if err != nil {
		return nil, err
	}
	opened, err := openBackend(ctx, appConfig, logger)
	if err != nil {
		return nil, err
	}
	manager, err := dashboard.NewManager(dashboard.ManagerConfig{
		Store:        opened.store,
		Logger:       logger,
		WriteTimeout: appConfig.WriteTimeout,
		ViewBuffer:   appConfig.ViewBuffer,
		IdleTimeout:  appConfig.IdleTimeout,
	})
	if err != nil {
		_ = opened.Close()
		return nil, err
	}
	return &services{config: appConfig, logger: logger, backend: opened, manager: manager}, nil
}

// Close stops every session, waits for detached writes, then releases the store.
func (r *services) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	drainErr := r.manager.Close(ctx)
	if drainErr != nil {
		r.logger.Warn("pending writes abandoned at shutdown", zap.Error(drainErr))
	}
	closeErr := r.backend.Close()
	_ = r.logger.Sync()
	return errors.Join(drainErr, closeErr)
}

func runServer(ctx context.Context) error {
	rt, err := openServices(ctx, config.Load)
	if err != nil {
		return err
	}
	defer rt.Close() //nolint:errcheck
	logger := rt.logger

	validator, err := auth.NewSessionValidator(auth.SessionValidatorConfig{
		SigningSecret: []byte(rt.config.TAuthSigningKey),
		Issuer:        rt.config.TAuthIssuer,
		CookieName:    rt.config.TAuthCookieName,
	})
	if err != nil {
		return err
	}

	userService, err := users.NewService(users.ServiceConfig{
		Database: rt.backend.database,
		Clock:    time.Now,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Sessions:          rt.manager,
		Validator:         validator,
		Users:             userService,
		AllowedOrigins:    rt.config.AllowedOrigins,
		HeartbeatInterval: rt.config.Heartbeat,
		Logger:            logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:    rt.config.HTTPAddress,
		Handler: handler,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go rt.manager.RunReaper(signalCtx)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("address", rt.config.HTTPAddress))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		logger.Info("server stopping")
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func newIssueTokenCommand() *cobra.Command {
	var (
		userID      string
		email       string
		displayName string
		ttl         time.Duration
	)
	cmd := &cobra.Command{
		Use:   "issue-token",
		Short: "Mint a session token for local development",
		RunE: func(cmd *cobra.Command, args []string) error {
			appConfig, err := config.Load(viper.GetViper())
			if err != nil {
				return err
			}
			issuer, err := auth.NewSessionIssuer(auth.SessionIssuerConfig{
				SigningSecret: []byte(appConfig.TAuthSigningKey),
				Issuer:        appConfig.TAuthIssuer,
				TTL:           ttl,
			})
			if err != nil {
				return err
			}
			token, expiresAt, err := issuer.Issue(auth.SessionGrant{UserID: userID, Email: email, DisplayName: displayName})
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s\n# expires %s\n", token, expiresAt.Format(time.RFC3339))
			return err
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "User id to embed (provider:subject or bare id)")
	cmd.Flags().StringVar(&email, "email", "", "User email")
	cmd.Flags().StringVar(&displayName, "name", "", "User display name")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "Token lifetime")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func newWatchCommand() *cobra.Command {
	var userID string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Bind a session for one user and print every view update as a JSON line",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(userID) == "" {
				return errors.New("--user is required")
			}
			rt, err := openServices(cmd.Context(), config.LoadWithoutAuth)
			if err != nil {
				return err
			}
			defer rt.Close() //nolint:errcheck

			signalCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return watchViews(signalCtx, rt.manager, userID, sonic.ConfigStd.NewEncoder(cmd.OutOrStdout()))
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "User id whose board and notes are watched")
	return cmd
}

type jsonEncoder interface {
	Encode(value interface{}) error
}

// watchViews binds the user and encodes each view update until ctx ends or the session stops.
func watchViews(ctx context.Context, manager *dashboard.Manager, userID string, encoder jsonEncoder) error {
	binding := dashboard.NewBinding(manager)
	defer binding.Close()

	updates, cleanup := manager.Subscribe(ctx, userID)
	defer cleanup()
	session, err := binding.SetUser(userID)
	if err != nil {
		return err
	}
	if err := encoder.Encode(session.Views()); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-session.Done():
			return nil
		case update, open := <-updates:
			if !open {
				return nil
			}
			if err := encoder.Encode(update.Views); err != nil {
				return err
			}
		}
	}
}
