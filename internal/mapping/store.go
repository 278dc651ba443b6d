// Package mapping persists small string-to-string maps partitioned by
// namespace. The role synchronizer keeps event→role links in it, and the
// calendar mirror keeps event→remote-entry links.
package mapping

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"discoops/internal/config"
)

// ErrNotFound is returned by Get when the key has no value.
var ErrNotFound = errors.New("mapping: not found")

// Store is a durable namespaced key-value store. Set overwrites; deleting a
// missing key is not an error. Implementations are safe for concurrent use.
type Store interface {
	Get(ctx context.Context, namespace, key string) (string, error)
	Set(ctx context.Context, namespace, key, value string) error
	Delete(ctx context.Context, namespace, key string) error
	List(ctx context.Context, namespace string) (map[string]string, error)
	Close() error
}

// RoleNamespace is the namespace holding a server's event→role entries.
func RoleNamespace(guildID string) string {
	return "event_roles:" + guildID
}

// CalendarNamespace holds a server's event→remote entry ids for one calendar target.
func CalendarNamespace(target, guildID string) string {
	return "calendar:" + target + ":" + guildID
}

// Open creates the backend selected by cfg.
func Open(ctx context.Context, logger *slog.Logger, cfg config.MappingConfig) (Store, error) {
	var (
		s   Store
		err error
	)
	switch strings.ToLower(cfg.Backend) {
	case "memory":
		s = NewMemoryStore()
	case "file":
		s, err = OpenFileStore(cfg.Path)
	case "badger":
		s, err = OpenBadgerStore(logger, cfg.Path)
	case "sqlite":
		s, err = OpenSQLiteStore(ctx, cfg.Path)
	case "postgres":
		s, err = OpenPostgresStore(ctx, cfg.DSN)
	default:
		return nil, fmt.Errorf("unknown mapping backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open %s mapping store: %w", cfg.Backend, err)
	}
	logger.Debug("Opened mapping store.", "backend", cfg.Backend)
	return &instrumented{Store: s, backend: cfg.Backend}, nil
}
