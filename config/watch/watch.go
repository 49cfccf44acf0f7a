package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/qist/camgate/config"
	"github.com/qist/camgate/config/load"
	"github.com/qist/camgate/logger"
)

// Hooks 配置重新加载后的回调
//
// Apply 处理可在线生效的修改（质量、帧率、日志），
// Restart 在接口、端口、boundary 或帧源变化时被调用，由调用方重建推流服务。
type Hooks struct {
	Apply   func(old, cur *config.Config)
	Restart func(cur *config.Config)
}

// Watcher 监听单个配置文件
type Watcher struct {
	Path     string
	Debounce time.Duration
	Hooks    Hooks

	mu           sync.Mutex
	lastModified time.Time
}

// New 创建监听器，防抖时间取配置中的 reload 秒数
func New(configPath string, hooks Hooks) *Watcher {
	config.CfgMu.RLock()
	debounce := time.Duration(config.Cfg.Reload) * time.Second
	config.CfgMu.RUnlock()

	w := &Watcher{Path: configPath, Debounce: debounce, Hooks: hooks}
	if info, err := os.Stat(configPath); err == nil {
		w.lastModified = info.ModTime()
	} else {
		w.lastModified = time.Now()
		logger.LogPrintf("⚠️ 获取配置文件状态失败，将使用当前时间: %v", err)
	}
	return w
}

// Run 阻塞监听直到 ctx 结束
func (w *Watcher) Run(ctx context.Context) error {
	if w.Path == "" {
		return nil
	}
	absPath, err := filepath.Abs(w.Path)
	if err != nil {
		return fmt.Errorf("获取配置文件绝对路径失败: %w", err)
	}
	parentDir := filepath.Dir(absPath)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("创建文件监听失败: %w", err)
	}
	defer watcher.Close()

	// 同时监听目录，编辑器整体替换文件时也能收到事件
	setupWatcher := func() error {
		if err := watcher.Add(parentDir); err != nil {
			return err
		}
		return watcher.Add(absPath)
	}
	if err := setupWatcher(); err != nil {
		return fmt.Errorf("初始化文件监控失败: %w", err)
	}

	var debounceTimer *time.Timer
	defer func() {
		if debounceTimer != nil {
			debounceTimer.Stop()
		}
	}()
	schedule := func() {
		if debounceTimer != nil {
			debounceTimer.Stop()
		}
		debounceTimer = time.AfterFunc(w.Debounce, w.Reload)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(absPath) {
				continue
			}
			switch {
			case event.Op&(fsnotify.Write|fsnotify.Create) != 0:
				schedule()
			case event.Op&(fsnotify.Rename|fsnotify.Remove) != 0:
				logger.LogPrintf("⚠️ 配置文件被重命名或删除，尝试重新建立监控")
				time.Sleep(100 * time.Millisecond)
				if err := setupWatcher(); err == nil {
					schedule()
				}
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.LogPrintf("❌ 文件监听错误: %v", err)
			if err := setupWatcher(); err != nil {
				logger.LogPrintf("❌ 重新建立监控失败: %v", err)
			}
		}
	}
}

// Reload 重新读取配置并分发到 Hooks，文件未更新时忽略
func (w *Watcher) Reload() {
	w.mu.Lock()
	defer w.mu.Unlock()

	info, err := os.Stat(w.Path)
	if err != nil {
		logger.LogPrintf("❌ 获取文件信息失败: %v", err)
		return
	}
	if !info.ModTime().After(w.lastModified) {
		return
	}
	w.lastModified = info.ModTime()
	logger.LogPrintf("📦 检测到配置文件修改，准备重新加载...")

	config.CfgMu.RLock()
	old := config.Cfg
	config.CfgMu.RUnlock()

	if err := load.LoadConfig(w.Path); err != nil {
		logger.LogPrintf("❌ 重新加载配置失败: %v", err)
		return
	}

	config.CfgMu.RLock()
	cur := config.Cfg
	config.CfgMu.RUnlock()

	if old.StreamKey() != cur.StreamKey() {
		logger.LogPrintf("🔄 检测到推流相关配置变更，需要重启推流服务")
		if w.Hooks.Restart != nil {
			w.Hooks.Restart(&cur)
		}
		return
	}
	logger.LogPrintf("🔄 配置变更无需重启服务，进行平滑更新")
	if w.Hooks.Apply != nil {
		w.Hooks.Apply(&old, &cur)
	}
}
