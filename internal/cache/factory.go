package cache

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/oscillometry-report-server/internal/domain"
)

// New builds the raw-value cache selected by config.Backend. The returned close function
// is never nil.
func New(config domain.CacheConfig, logger *logrus.Logger) (domain.RawValueCache, func() error, error) {
	noop := func() error { return nil }

	switch config.Backend {
	case "", domain.CacheMemory:
		return NewMemoryCache(), noop, nil
	case domain.CacheFile:
		c, err := NewFileCache(config.FilePath, logger)
		if err != nil {
			return nil, nil, err
		}
		return c, noop, nil
	case domain.CacheRedis:
		c, err := NewRedisCache(config, logger)
		if err != nil {
			return nil, nil, err
		}
		return c, c.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown cache backend: %s", config.Backend)
	}
}
