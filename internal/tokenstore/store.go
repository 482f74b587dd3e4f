package tokenstore

import (
	"context"
	"fmt"

	"rdportal/client/internal/config"

	"github.com/redis/go-redis/v9"
)

// Store holds the bearer tokens across process restarts. The access token is
// the source of truth for "a previous login exists"; everything else about
// the session is rebuilt from the backend at hydration time.
//
// A missing token is not an error: Access and Refresh return "" when nothing
// is stored. Clear is idempotent. Exactly one Store value is shared per
// process so the API client's forced clear and the session manager always
// see the same state.
type Store interface {
	Access(ctx context.Context) (string, error)
	SetAccess(ctx context.Context, token string) error
	Refresh(ctx context.Context) (string, error)
	SetRefresh(ctx context.Context, token string) error
	Clear(ctx context.Context) error
}

// New builds the Store selected by configuration.
func New(cfg config.TokenStoreConfig, redisClient *redis.Client) (Store, error) {
	switch cfg.Backend {
	case "file", "":
		return NewFileStore(cfg.Path, cfg.AccessKey, cfg.RefreshKey)
	case "redis":
		if redisClient == nil {
			return nil, fmt.Errorf("token store backend %q requires redis", cfg.Backend)
		}
		return NewRedisStore(redisClient, cfg.AccessKey, cfg.RefreshKey), nil
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown token store backend %q", cfg.Backend)
	}
}
