package cache

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/failsworth/returnbase/internal/metrics"
	"github.com/failsworth/returnbase/internal/repository"
)

type TenantLister interface {
	ListActive(ctx context.Context) ([]*repository.Tenant, error)
}

// TenantCache keeps active tenant records in memory so the auth middleware
// does not hit storage on every request. Deactivated tenants are evicted.
type TenantCache struct {
	mu    sync.RWMutex
	cache map[string]*repository.Tenant
	repo  TenantLister
	log   *zap.Logger
}

func NewTenantCache(repo TenantLister, log *zap.Logger) *TenantCache {
	return &TenantCache{
		cache: make(map[string]*repository.Tenant),
		repo:  repo,
		log:   log,
	}
}

func (c *TenantCache) LoadInitialData(ctx context.Context) error {
	tenants, err := c.repo.ListActive(ctx)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, tenant := range tenants {
		tenantCopy := *tenant
		c.cache[tenant.ID] = &tenantCopy
	}
	metrics.TenantCacheItems.Set(float64(len(c.cache)))
	c.log.Info("loaded active tenants into cache", zap.Int("count", len(c.cache)))
	return nil
}

func (c *TenantCache) Get(tenantID string) (*repository.Tenant, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	tenant, found := c.cache[tenantID]
	if !found {
		return nil, false
	}
	tenantCopy := *tenant
	return &tenantCopy, true
}

func (c *TenantCache) Set(tenant *repository.Tenant) {
	if !tenant.IsActive {
		c.Delete(tenant.ID)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	tenantCopy := *tenant
	c.cache[tenant.ID] = &tenantCopy
	metrics.TenantCacheItems.Set(float64(len(c.cache)))
}

func (c *TenantCache) Delete(tenantID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, found := c.cache[tenantID]; found {
		delete(c.cache, tenantID)
		metrics.TenantCacheItems.Set(float64(len(c.cache)))
	}
}
