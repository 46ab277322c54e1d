package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/MarcoPoloResearchLab/dashboard/internal/config"
	"github.com/MarcoPoloResearchLab/dashboard/internal/database"
	"github.com/MarcoPoloResearchLab/dashboard/internal/docstore"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// backend is an open document store plus whatever else the chosen backend keeps open.
type backend struct {
	store    docstore.Store
	database *gorm.DB
	closers  []func() error
}

func (b *backend) Close() error {
	var errs []error
	if b.store != nil {
		errs = append(errs, b.store.Close())
	}
	for index := len(b.closers) - 1; index >= 0; index-- {
		errs = append(errs, b.closers[index]())
	}
	return errors.Join(errs...)
}

// openBackend opens the configured document store. The SQLite database is opened for every
// backend because it also holds the identity table.
func openBackend(ctx context.Context, appConfig config.AppConfig, logger *zap.Logger) (*backend, error) {
	db, err := database.OpenSQLite(appConfig.DatabasePath, logger)
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	opened := &backend{database: db, closers: []func() error{sqlDB.Close}}

	switch appConfig.StoreBackend {
	case config.StoreBackendMemory:
		opened.store = docstore.NewMemoryStore(docstore.MemoryConfig{})
	case config.StoreBackendSQLite:
		opened.store, err = docstore.NewSQLiteStore(docstore.SQLiteConfig{Database: db, Logger: logger})
	case config.StoreBackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     appConfig.Redis.Address,
			Password: appConfig.Redis.Password,
			DB:       appConfig.Redis.DB,
		})
		opened.closers = append(opened.closers, client.Close)
		if pingErr := client.Ping(ctx).Err(); pingErr != nil {
			_ = opened.Close()
			return nil, fmt.Errorf("redis ping: %w", pingErr)
		}
		opened.store, err = docstore.NewRedisStore(ctx, docstore.RedisConfig{
			Client:  client,
			Prefix:  appConfig.Redis.Prefix,
			Channel: appConfig.Redis.Channel,
			Logger:  logger,
		})
	case config.StoreBackendFirestore:
		client, openErr := docstore.OpenFirestore(ctx, docstore.FirestoreConnection{
			ProjectID:       appConfig.Firestore.ProjectID,
			CredentialsFile: appConfig.Firestore.CredentialsFile,
		})
		if openErr != nil {
			_ = opened.Close()
			return nil, openErr
		}
		opened.store, err = docstore.NewFirestoreStore(docstore.FirestoreConfig{Client: client, Logger: logger})
	default:
		err = fmt.Errorf("unknown store backend %q", appConfig.StoreBackend)
	}
	if err != nil {
		opened.store = nil
		_ = opened.Close()
		return nil, err
	}
	logger.Info("document store ready", zap.String("backend", appConfig.StoreBackend))
	return opened, nil
}
