package engine

import (
	"fmt"
	"reelcache/pkg/cachemanager"
	"reelcache/pkg/models"
	"strings"
)

// ClearCaches deletes every partition of a persistent backend, whatever its
// version. It returns the names deleted. The memory backend lives inside the
// running proxy and is cleared with a CLEAR_CACHE message instead.
func ClearCaches(configPath string) ([]string, error) {
	config, err := LoadConfig(configPath)
	if err != nil {
		return nil, err
	}

	if strings.EqualFold(config.Cache.Backend, models.CACHE_BACKEND_MEMORY) {
		return nil, fmt.Errorf("the memory backend has no state outside the running proxy; POST {\"type\":\"CLEAR_CACHE\"} to %s instead", ROUTE_MESSAGE)
	}

	store, err := cachemanager.NewStore(config.Cache, config.Storage.Path)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	names, err := store.Names()
	if err != nil {
		return nil, fmt.Errorf("list partitions: %w", err)
	}

	var deleted []string
	for _, name := range names {
		ok, err := store.Delete(name)
		if err != nil {
			return deleted, fmt.Errorf("delete partition %s: %w", name, err)
		}
		if ok {
			deleted = append(deleted, name)
		}
	}
	return deleted, nil
}
