package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cbtrade/mdstore/internal/config"
)

// NewBackend constructs the backend selected by the storage configuration.
// The configuration is assumed to have passed config.Validate.
func NewBackend(ctx context.Context, cfg config.StorageConfig, logger *slog.Logger) (Backend, error) {
	switch cfg.Type {
	case "local":
		return NewLocalBackend(cfg.RootPath, logger)
	case "azure":
		if cfg.Azure.ConnectionString != "" {
			return NewAzureBackendFromConnectionString(ctx, cfg.Azure.ConnectionString, cfg.Azure.ContainerName, logger)
		}
		if cfg.Azure.UseManagedIdentity && cfg.Azure.AccountName != "" {
			return NewAzureBackendWithCredential(ctx, cfg.Azure.AccountName, cfg.Azure.ContainerName, nil, logger)
		}
		return nil, fmt.Errorf("azure backend requires a connection string, or an account name with managed identity")
	case "memory":
		return NewMemoryBackend(), nil
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
	}
}
