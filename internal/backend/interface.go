package backend

import (
	"context"

	"kharcha/internal/services"
)

// Store is the unified persistence interface a backend must provide.
type Store interface {
	services.BudgetStore
	services.NotificationStore
	services.LedgerReader
	services.ExpenseStore

	Ping(ctx context.Context) error
	Close() error
}

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// Result contains the store instance and optional cleanup function
type Result struct {
	Store   Store
	Cleanup CleanupFunc
}

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	// SQLite specific
	SQLiteDBPath string
}

// BackendType represents the type of backend
type BackendType string

const (
	SQLiteBackend BackendType = "sqlite"
	MemoryBackend BackendType = "memory"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case SQLiteBackend, MemoryBackend:
		return true
	default:
		return false
	}
}
