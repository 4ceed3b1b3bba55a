package cmd

import (
	"fmt"
	"strings"

	"yqhp/worker-fleet/internal/config"
	"yqhp/worker-fleet/pkg/logger"
)

// parseSetFlags 解析 --set key=value
func parseSetFlags(sets []string) (map[string]string, error) {
	overrides := make(map[string]string, len(sets))
	for _, s := range sets {
		key, value, ok := strings.Cut(s, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("无效的 --set 参数 %q，格式应为 key=value", s)
		}
		overrides[key] = strings.TrimSpace(value)
	}
	return overrides, nil
}

// loadConfig 按 默认值 < 配置文件 < 环境变量 < 命令行 加载配置
func loadConfig(overrides map[string]string) (*config.Config, error) {
	loader := config.NewLoader().WithCmdArgs(overrides)
	if cfgFile != "" {
		loader = loader.WithConfigPath(cfgFile)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("加载配置失败: %w", err)
	}
	return cfg, nil
}

// initLogger 根据配置和全局 flags 初始化日志
func initLogger(cfg *config.LoggingConfig) {
	logger.Init(&logger.Config{
		Level:      cfg.Level,
		Format:     cfg.Format,
		Output:     cfg.Output,
		FilePath:   cfg.FilePath,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
	})
	switch {
	case debug:
		logger.EnableDebug()
	case quiet:
		logger.SetLevelFromString("warn")
	}
}
