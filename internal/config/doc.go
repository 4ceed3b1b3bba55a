// Package config 提供工作组编排的配置管理功能。
// 支持从 YAML 文件、环境变量和命令行参数加载配置，
// 优先级顺序为：默认值 < YAML 文件 < 环境变量 < 命令行参数。
// 环境变量名为前缀（默认 FLEET_）加字段的 env 标签。
package config
