package load

import (
	"fmt"
	"os"

	"github.com/qist/camgate/config"
	"github.com/qist/camgate/logger"
	"gopkg.in/yaml.v3"
)

// ReadConfig 读取并校验配置文件，不修改全局配置
func ReadConfig(configPath string) (*config.Config, error) {
	yamlData, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	var newCfg config.Config
	if err := yaml.Unmarshal(yamlData, &newCfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}
	newCfg.SetDefaults()

	// 配置有效性校验，避免 runtime panic
	if err := newCfg.Validate(); err != nil {
		return nil, fmt.Errorf("配置校验失败: %w", err)
	}
	return &newCfg, nil
}

func LoadConfig(configPath string) error {
	newCfg, err := ReadConfig(configPath)
	if err != nil {
		return err
	}

	config.CfgMu.Lock()
	config.Cfg = *newCfg
	config.CfgMu.Unlock()

	config.LogConfigMutex.Lock()
	defer config.LogConfigMutex.Unlock()

	logger.SetupLogger(logger.LogConfig{
		Enabled:    newCfg.Log.Enabled,
		File:       newCfg.Log.File,
		MaxSizeMB:  newCfg.Log.MaxSizeMB,
		MaxBackups: newCfg.Log.MaxBackups,
		MaxAgeDays: newCfg.Log.MaxAgeDays,
		Compress:   newCfg.Log.Compress,
		Debug:      newCfg.Log.Debug,
	})

	logger.LogPrintf("✅ 配置文件已加载，帧源: %s，路由数量: %d", newCfg.Source.Type, len(newCfg.Source.Routes))
	for path, route := range newCfg.Source.Routes {
		logger.LogPrintf("🔧 路由: %s -> %s", path, route.Type)
	}
	return nil
}
