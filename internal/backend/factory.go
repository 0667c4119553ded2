package backend

import (
	"fmt"

	"kharcha/internal/config"
	"kharcha/internal/log"
	"kharcha/internal/storage"
	"kharcha/internal/storage/memory"
)

// FromAppConfig converts the application config to backend config.
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, fmt.Errorf("app config is nil")
	}

	backendType := BackendType(appConfig.DataBackend)
	if !backendType.IsValid() {
		return Config{}, fmt.Errorf("invalid backend type in config: %s", appConfig.DataBackend)
	}

	return Config{
		Type:         backendType,
		SQLiteDBPath: appConfig.SQLiteDBPath,
	}, nil
}

// Open creates the store the config names. SQLite is the production
// backend; memory backs tests and throwaway local runs.
func Open(cfg Config, logger *log.Logger) (*Result, error) {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	logger = logger.WithComponent(log.ComponentBackend)

	switch cfg.Type {
	case SQLiteBackend:
		repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
		if err != nil {
			return nil, fmt.Errorf("initialize sqlite repository: %w", err)
		}
		logger.Info("Initialized SQLite backend", "db_path", cfg.SQLiteDBPath)
		return &Result{Store: repo, Cleanup: repo.Close}, nil

	case MemoryBackend:
		store := memory.New()
		logger.Info("Initialized in-memory backend")
		return &Result{Store: store, Cleanup: store.Close}, nil

	default:
		return nil, fmt.Errorf("unsupported backend type: %s", cfg.Type)
	}
}
