package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"yqhp/worker-fleet/internal/config"
)

var (
	configSets     []string
	configValidate bool
	configSchema   bool
)

// configCmd 打印生效的配置
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "打印生效的配置",
	Long: `按 默认值 < 配置文件 < 环境变量 (FLEET_*) < --set 的顺序合并后，以 YAML 输出配置。`,
	Example: `  fleet config --config fleet.yaml
  fleet config --set queues.backend=redis --validate
  fleet config --schema`,
	Args: cobra.NoArgs,
	RunE: showConfig,
}

func init() {
	rootCmd.AddCommand(configCmd)

	configCmd.Flags().StringArrayVar(&configSets, "set", nil, "覆盖配置项，格式: key=value (可多次指定)")
	configCmd.Flags().BoolVar(&configValidate, "validate", false, "校验配置")
	configCmd.Flags().BoolVar(&configSchema, "schema", false, "列出全部配置项")
}

func showConfig(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	if configSchema {
		for _, f := range config.GetSchema().Fields {
			fmt.Fprintf(out, "%-36s %-8s %-20s %s%s\n", f.Path, f.Type, f.Default, config.DefaultEnvPrefix, f.EnvVar)
		}
		return nil
	}

	overrides, err := parseSetFlags(configSets)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(overrides)
	if err != nil {
		return err
	}

	if configValidate {
		if err := cfg.Validate(); err != nil {
			return &exitError{code: 2, err: err}
		}
	}

	data, err := cfg.Serialize()
	if err != nil {
		return fmt.Errorf("序列化配置失败: %w", err)
	}
	_, err = out.Write(data)
	return err
}
