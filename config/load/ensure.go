package load

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

//go:embed config.yaml
var defaultConfig []byte

// EnsureConfigFile 返回实际使用的配置文件路径，不存在时写入默认配置
func EnsureConfigFile(configPath string) (string, error) {
	if configPath == "" {
		configPath = "config.yaml"
	}

	configFilePath := configPath
	if filepath.Ext(configPath) == "" || strings.HasSuffix(configPath, string(os.PathSeparator)) {
		// 没有扩展名或以 "/" 结尾 → 当目录处理
		configFilePath = filepath.Join(configPath, "config.yaml")
	} else if info, err := os.Stat(configPath); err == nil && info.IsDir() {
		configFilePath = filepath.Join(configPath, "config.yaml")
	} else if err != nil && !os.IsNotExist(err) {
		return "", fmt.Errorf("检查路径时出错: %w", err)
	}

	// 文件已存在 → 不覆盖
	if _, err := os.Stat(configFilePath); err == nil {
		return configFilePath, nil
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("检查配置文件时出错: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(configFilePath), 0o755); err != nil {
		return "", fmt.Errorf("创建配置目录失败: %w", err)
	}
	if err := os.WriteFile(configFilePath, defaultConfig, 0o644); err != nil {
		return "", fmt.Errorf("写入默认配置失败: %w", err)
	}
	fmt.Println("已生成默认配置文件:", configFilePath)
	return configFilePath, nil
}
