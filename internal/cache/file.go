package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/oscillometry-report-server/internal/domain"
)

// FileCache persists raw values as one JSON document keyed by scope then cell.
type FileCache struct {
	mu     sync.Mutex
	path   string
	log    *logrus.Logger
	scopes map[string]map[domain.CellKey]string
}

// NewFileCache opens the cache file at path. A missing or unreadable file starts empty.
func NewFileCache(path string, logger *logrus.Logger) (*FileCache, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	c := &FileCache{
		path:   path,
		log:    logger,
		scopes: make(map[string]map[domain.CellKey]string),
	}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("reading %s: %w", path, err)
	case len(data) > 0:
		if err := json.Unmarshal(data, &c.scopes); err != nil {
			logger.WithError(err).WithField("path", path).Warn("Discarding corrupt raw value cache")
			c.scopes = make(map[string]map[domain.CellKey]string)
		}
	}
	return c, nil
}

// Load returns a copy of the values cached under scope.
func (c *FileCache) Load(ctx context.Context, scope string) (map[domain.CellKey]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return copyValues(c.scopes[scope]), nil
}

// Put records one raw value and rewrites the file.
func (c *FileCache) Put(ctx context.Context, scope string, key domain.CellKey, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	values, ok := c.scopes[scope]
	if !ok {
		values = make(map[domain.CellKey]string)
		c.scopes[scope] = values
	}
	values[key] = value
	return c.flush()
}

// Clear drops everything cached under scope and rewrites the file.
func (c *FileCache) Clear(ctx context.Context, scope string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.scopes[scope]; !ok {
		return nil
	}
	delete(c.scopes, scope)
	return c.flush()
}

func (c *FileCache) flush() error {
	data, err := json.Marshal(c.scopes)
	if err != nil {
		return fmt.Errorf("encoding raw value cache: %w", err)
	}
	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("writing raw value cache: %w", err)
	}
	if err := os.Rename(tmp, c.path); err != nil {
		return fmt.Errorf("replacing raw value cache: %w", err)
	}
	return nil
}
