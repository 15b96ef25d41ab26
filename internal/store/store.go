// Package store persists users, conversations and messages for the session layer.
package store

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/dkeye/huddle/internal/core"
	"github.com/dkeye/huddle/internal/domain"
	"github.com/rs/zerolog/log"
)

var (
	ErrUserNotFound   = errors.New("user not found")
	ErrInvalidMembers = errors.New("conversation needs at least two distinct members")
	ErrUnknownDriver  = errors.New("unknown store driver")
)

type Config struct {
	Driver   string
	URI      string
	Database string
}

// New opens the configured backend and prepares its schema.
func New(ctx context.Context, cfg Config) (core.Store, error) {
	log.Info().Str("module", "store").Str("driver", cfg.Driver).Msg("opening store")
	switch cfg.Driver {
	case "", "memory":
		return NewMemory(), nil
	case "sqlite":
		return OpenSQLite(ctx, cfg.URI)
	case "postgres":
		return OpenPostgres(ctx, cfg.URI)
	case "mongo":
		return OpenMongo(ctx, cfg.URI, cfg.Database)
	case "redis":
		return OpenRedis(ctx, cfg.URI)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
	}
}

// normalizeMembers drops duplicates and empty ids, keeping first-seen order.
func normalizeMembers(members []domain.UserID) ([]domain.UserID, error) {
	out := make([]domain.UserID, 0, len(members))
	for _, m := range members {
		if m == "" || slices.Contains(out, m) {
			continue
		}
		out = append(out, m)
	}
	if len(out) < 2 {
		return nil, ErrInvalidMembers
	}
	return out, nil
}

// directKey identifies the direct conversation of a member set regardless of order.
func directKey(members []domain.UserID) string {
	ids := make([]string, len(members))
	for i, m := range members {
		ids[i] = string(m)
	}
	slices.Sort(ids)
	return strings.Join(ids, "|")
}
