package config

import (
	"fmt"
	"sync"
)

// HotReloader 配置热更新器
type HotReloader struct {
	mu              sync.RWMutex
	currentConfig   *Config
	updateCallbacks []ConfigUpdateCallback
}

// ConfigUpdateCallback 配置更新回调函数类型
type ConfigUpdateCallback func(oldConfig, newConfig *Config, changes []ConfigChange) error

// NewHotReloader 创建热更新器
func NewHotReloader(initialConfig *Config) *HotReloader {
	return &HotReloader{
		currentConfig:   initialConfig,
		updateCallbacks: []ConfigUpdateCallback{},
	}
}

// RegisterCallback 注册配置更新回调
func (hr *HotReloader) RegisterCallback(callback ConfigUpdateCallback) {
	hr.mu.Lock()
	defer hr.mu.Unlock()
	hr.updateCallbacks = append(hr.updateCallbacks, callback)
}

// UpdateConfig 应用新配置中可以热更新的部分
// 需要重启的变更不会生效，调用方通过返回的 diff.RequiresRestart 提示用户
func (hr *HotReloader) UpdateConfig(newConfig *Config) (*ConfigDiff, error) {
	hr.mu.Lock()
	defer hr.mu.Unlock()

	diff := DiffConfig(hr.currentConfig, newConfig)
	if len(diff.Changes) == 0 {
		return diff, nil
	}

	hotChanges := make([]ConfigChange, 0, len(diff.Changes))
	for _, change := range diff.Changes {
		if !change.RequiresRestart {
			hotChanges = append(hotChanges, change)
		}
	}

	next := newConfig
	if diff.RequiresRestart {
		next = mergeHotReloadable(hr.currentConfig, newConfig)
	}

	for _, callback := range hr.updateCallbacks {
		if err := callback(hr.currentConfig, next, hotChanges); err != nil {
			return nil, fmt.Errorf("配置更新回调执行失败: %w", err)
		}
	}

	hr.currentConfig = next
	return diff, nil
}

// mergeHotReloadable 复制旧配置，只替换可以热更新的字段
func mergeHotReloadable(oldConfig, newConfig *Config) *Config {
	// Config 中没有引用类型字段，值拷贝即深拷贝
	merged := *oldConfig
	merged.Engine = newConfig.Engine
	merged.Batch = newConfig.Batch
	merged.System.LogLevel = newConfig.System.LogLevel
	merged.Web.LogAllRequests = newConfig.Web.LogAllRequests
	return &merged
}

// GetCurrentConfig 获取当前配置
func (hr *HotReloader) GetCurrentConfig() *Config {
	hr.mu.RLock()
	defer hr.mu.RUnlock()
	return hr.currentConfig
}
