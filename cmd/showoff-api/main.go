package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/showoff-life/showoff-backend/internal/auth"
	"github.com/showoff-life/showoff-backend/internal/coin"
	"github.com/showoff-life/showoff-backend/internal/competition"
	"github.com/showoff-life/showoff-backend/internal/config"
	"github.com/showoff-life/showoff-backend/internal/database"
	"github.com/showoff-life/showoff-backend/internal/entry"
	"github.com/showoff-life/showoff-backend/internal/ids"
	"github.com/showoff-life/showoff-backend/internal/jobs"
	"github.com/showoff-life/showoff-backend/internal/logging"
	"github.com/showoff-life/showoff-backend/internal/media"
	"github.com/showoff-life/showoff-backend/internal/selfie"
	"github.com/showoff-life/showoff-backend/internal/server"
	"github.com/showoff-life/showoff-backend/internal/users"
	"github.com/showoff-life/showoff-backend/internal/vote"
)

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "showoff-api",
		Short: "ShowOff competition and coin ledger backend",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	rolloverCmd := &cobra.Command{
		Use:   "rollover",
		Short: "Close competitions whose window has ended",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRollover(cmd.Context())
		},
	}
	rootCmd.AddCommand(rolloverCmd)

	setupFlags(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().String("media-dir", defaults.GetString("media.dir"), "Directory for locally stored media")
	cmd.PersistentFlags().String("media-base-url", defaults.GetString("media.base_url"), "Public base URL for stored media")
	cmd.PersistentFlags().Duration("token-ttl", defaults.GetDuration("auth.token_ttl"), "Bearer token TTL")
	cmd.PersistentFlags().Duration("worker-poll-period", defaults.GetDuration("worker.poll_period"), "Background worker poll period")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("signing-secret", "", "Token signing secret (overrides env)")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "media.dir", "media-dir")
	bindFlag(cmd, "media.base_url", "media-base-url")
	bindFlag(cmd, "auth.token_ttl", "token-ttl")
	bindFlag(cmd, "worker.poll_period", "worker-poll-period")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "auth.signing_secret", "signing-secret")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
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

func openDatabase(appConfig config.AppConfig, logger *zap.Logger) (*gorm.DB, func(), error) {
	db, err := database.OpenSQLite(appConfig.DatabasePath, logger)
	if err != nil {
		return nil, nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, err
	}
	return db, func() { sqlDB.Close() }, nil
}

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger("showoff-api", appConfig.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, closeDB, err := openDatabase(appConfig, logger)
	if err != nil {
		return err
	}
	defer closeDB()

	store, err := media.NewLocalStore(appConfig.MediaDir, appConfig.MediaBaseURL)
	if err != nil {
		return err
	}

	idProvider := ids.NewUUIDProvider()

	usersService, err := users.NewService(users.ServiceConfig{Database: db})
	if err != nil {
		return err
	}
	coinService, err := coin.NewService(coin.ServiceConfig{
		Database:   db,
		IDProvider: idProvider,
		Logger:     logger,
	})
	if err != nil {
		return err
	}
	competitionService, err := competition.NewService(competition.ServiceConfig{
		Database:   db,
		IDProvider: idProvider,
		Logger:     logger,
	})
	if err != nil {
		return err
	}
	queue, err := jobs.NewQueue(jobs.QueueConfig{
		Database:     db,
		IDProvider:   idProvider,
		Logger:       logger,
		PollInterval: appConfig.WorkerPollPeriod,
	})
	if err != nil {
		return err
	}
	entryService, err := entry.NewService(entry.ServiceConfig{
		Database:   db,
		IDProvider: idProvider,
		Registry:   competitionService,
		Media:      store,
		Enqueuer:   queue,
		Logger:     logger,
	})
	if err != nil {
		return err
	}
	voteService, err := vote.NewService(vote.ServiceConfig{
		Database:   db,
		IDProvider: idProvider,
		Ledger:     coinService,
		Logger:     logger,
	})
	if err != nil {
		return err
	}
	selfieService, err := selfie.NewService(selfie.ServiceConfig{
		Database:   db,
		IDProvider: idProvider,
		Media:      store,
		Ledger:     coinService,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	queue.Register(entry.EnrichJobKind, func(ctx context.Context, payloadJSON string) error {
		return entryService.EnrichFromPayload(ctx, payloadJSON)
	})

	tokenManager := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte(appConfig.SigningSecret),
		Issuer:        "showoff-api",
		Audience:      "showoff-clients",
		TokenTTL:      appConfig.TokenTTL,
	})

	handler, err := server.NewHTTPHandler(server.Dependencies{
		TokenManager: tokenManager,
		Users:        usersService,
		Competitions: competitionService,
		Entries:      entryService,
		Votes:        voteService,
		Selfies:      selfieService,
		Coins:        coinService,
		Logger:       logger,
		MediaDir:     appConfig.MediaDir,
		MediaBaseURL: appConfig.MediaBaseURL,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:    appConfig.HTTPAddress,
		Handler: handler,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go queue.Run(signalCtx)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("address", appConfig.HTTPAddress))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func runRollover(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger("showoff-api", appConfig.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, closeDB, err := openDatabase(appConfig, logger)
	if err != nil {
		return err
	}
	defer closeDB()

	competitionService, err := competition.NewService(competition.ServiceConfig{
		Database:   db,
		IDProvider: ids.NewUUIDProvider(),
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	closed, err := competitionService.DeactivateExpired(ctx, time.Now())
	if err != nil {
		return err
	}
	logger.Info("rollover complete", zap.Int64("closed", closed))
	return nil
}
