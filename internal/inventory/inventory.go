package inventory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/skysweep/skysweep/pkg/domain"
	"github.com/skysweep/skysweep/pkg/logger"
)

// Inventory is the scan-scoped resource cache. It guarantees at most one
// in-flight collection per (provider, region, kind) key: concurrent callers
// for the same key wait for the single collection and share its result. A
// failed collection is cached as well so one quota error does not trigger
// duplicate retries; dependent checks receive the annotated empty collection
// instead of an abort.
type Inventory struct {
	connectors map[domain.Provider]domain.Connector
	group      singleflight.Group

	mu          sync.RWMutex
	collections map[string]*domain.Collection
}

// New returns an empty inventory collecting through the given connectors
func New(connectors ...domain.Connector) *Inventory {
	byProvider := make(map[domain.Provider]domain.Connector, len(connectors))
	for _, conn := range connectors {
		byProvider[conn.Provider()] = conn
	}
	return &Inventory{
		connectors:  byProvider,
		collections: map[string]*domain.Collection{},
	}
}

// Connector returns the connector registered for the provider
func (i *Inventory) Connector(provider domain.Provider) (domain.Connector, bool) {
	conn, ok := i.connectors[provider]
	return conn, ok
}

// GetOrCollect implements domain.Inventory
func (i *Inventory) GetOrCollect(ctx context.Context, provider domain.Provider, region, kind string) (*domain.Collection, error) {
	key := fmt.Sprintf("%s/%s/%s", provider, region, kind)

	i.mu.RLock()
	collection, ok := i.collections[key]
	i.mu.RUnlock()
	if ok {
		return collection, nil
	}

	result, err, _ := i.group.Do(key, func() (interface{}, error) {
		i.mu.RLock()
		cached, ok := i.collections[key]
		i.mu.RUnlock()
		if ok {
			return cached, nil
		}

		if err := ctx.Err(); err != nil {
			return nil, err
		}

		conn, ok := i.connectors[provider]
		if !ok {
			return nil, fmt.Errorf("no connector registered for provider %s", provider)
		}

		collection := &domain.Collection{
			Provider:    provider,
			Region:      region,
			Kind:        kind,
			CollectedAt: time.Now().UTC(),
		}
		resources, err := conn.List(ctx, region, kind)
		if err != nil {
			logger.Warnw(
				"resource collection failed",
				"provider", provider,
				"region", region,
				"kind", kind,
				"error", err,
			)
			collection.Err = err
		} else {
			collection.Resources = resources
			logger.Debugw(
				"collected resources",
				"provider", provider,
				"region", region,
				"kind", kind,
				"count", len(resources),
			)
		}

		i.mu.Lock()
		i.collections[key] = collection
		i.mu.Unlock()
		return collection, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*domain.Collection), nil
}

// Failures implements domain.Inventory. The list is ordered by key so scan
// reports are reproducible.
func (i *Inventory) Failures() []domain.CollectionFailure {
	i.mu.RLock()
	defer i.mu.RUnlock()

	keys := make([]string, 0, len(i.collections))
	for key, collection := range i.collections {
		if collection.Failed() {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	failures := make([]domain.CollectionFailure, 0, len(keys))
	for _, key := range keys {
		collection := i.collections[key]
		failures = append(failures, domain.CollectionFailure{
			Provider: collection.Provider,
			Region:   collection.Region,
			Kind:     collection.Kind,
			Error:    collection.Err.Error(),
		})
	}
	return failures
}
