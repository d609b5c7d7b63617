package config

import (
	"sync"
)

// ReloadableConfiguration 可以从配置源重新加载的配置。
// 读取始终看到某一次完整加载的快照。
type ReloadableConfiguration struct {
	configuration
	sources []ConfigurationSource

	reloadMu  sync.Mutex
	mu        sync.RWMutex
	listeners []func()
}

// Reload 重新加载全部配置源，成功后通知监听者。失败时保留旧值。
func (c *ReloadableConfiguration) Reload() error {
	c.reloadMu.Lock()
	data, err := loadSources(c.sources)
	if err != nil {
		c.reloadMu.Unlock()
		return err
	}
	c.store.Store(data)
	c.reloadMu.Unlock()

	c.mu.RLock()
	listeners := append([]func(){}, c.listeners...)
	c.mu.RUnlock()
	for _, fn := range listeners {
		fn()
	}
	return nil
}

// OnReload 注册重载回调
func (c *ReloadableConfiguration) OnReload(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}
