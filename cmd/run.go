package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/bytedance/sonic"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"yqhp/worker-fleet/api/rest"
	"yqhp/worker-fleet/internal/config"
	"yqhp/worker-fleet/internal/orchestrator"
	"yqhp/worker-fleet/pkg/logger"
)

var (
	// run 命令的 flags
	runDuration   time.Duration
	runSimulate   bool
	runBackend    string
	runStatus     string
	runSets       []string
	runJSONOutput string
)

// runCmd 是 run 子命令
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "启动 worker 组并运行主循环",
	Long: `连接飞行器，启动心跳发送、心跳接收、遥测和指令四个 worker 组，
主循环按 main_loop_sleep 周期读取各队列的上报，直到运行时间结束、收到中断信号
或飞行器断开连接，然后有序关闭。

退出码：0 正常，1 运行错误，2 配置或 worker 组定义无效，3 有 worker 未能退出。`,
	Example: `  # 使用模拟飞行器运行 30 秒
  fleet run --simulate --duration 30s

  # 使用 Redis 队列并开启状态接口
  fleet run --backend redis --status :8089

  # 覆盖任意配置项
  fleet run --set tunables.target.z=50 --set workers.telemetry=2`,
	Args: cobra.NoArgs,
	RunE: runFleet,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().DurationVarP(&runDuration, "duration", "d", 0, "主循环运行时间 (0 表示直到中断)")
	runCmd.Flags().BoolVar(&runSimulate, "simulate", false, "使用模拟飞行器")
	runCmd.Flags().StringVar(&runBackend, "backend", "", "队列后端 (memory, redis)")
	runCmd.Flags().StringVar(&runStatus, "status", "", "开启状态接口并监听该地址")
	runCmd.Flags().StringArrayVar(&runSets, "set", nil, "覆盖配置项，格式: key=value (可多次指定)")
	runCmd.Flags().StringVar(&runJSONOutput, "out-json", "", "输出 JSON 结果到文件")
}

// runOverrides 把 run 的 flags 转换成配置覆盖项，--set 优先
func runOverrides(cmd *cobra.Command) (map[string]string, error) {
	overrides := make(map[string]string)
	if cmd.Flags().Changed("duration") {
		overrides["tunables.main_loop_duration"] = runDuration.String()
	}
	if cmd.Flags().Changed("simulate") {
		overrides["connection.simulate"] = strconv.FormatBool(runSimulate)
	}
	if runBackend != "" {
		overrides["queues.backend"] = runBackend
	}
	if runStatus != "" {
		overrides["status.enabled"] = "true"
		overrides["status.address"] = runStatus
	}

	sets, err := parseSetFlags(runSets)
	if err != nil {
		return nil, err
	}
	for k, v := range sets {
		overrides[k] = v
	}
	return overrides, nil
}

func runFleet(cmd *cobra.Command, args []string) error {
	overrides, err := runOverrides(cmd)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(overrides)
	if err != nil {
		return err
	}

	initLogger(&cfg.Logging)
	defer func() { _ = logger.Sync() }()

	// 创建可取消的上下文
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 处理关闭信号
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		select {
		case <-sigCh:
			fmt.Fprintln(cmd.ErrOrStderr(), "\n正在关闭...")
			cancel()
		case <-ctx.Done():
		}
	}()

	o, err := orchestrator.New(ctx, cfg, orchestrator.WithLogger(logger.Named("fleet")))
	if err != nil {
		return &exitError{code: orchestrator.ExitCode(err), err: err}
	}

	if cfg.Status.Enabled {
		stopStatus := startStatusServer(cfg.Status.Address)
		defer stopStatus()
	}

	out := cmd.OutOrStdout()
	if !quiet {
		printRunInfo(out, cfg, o.RunID())
	}

	result, runErr := o.Run(ctx)
	if result != nil {
		if !quiet {
			printRunResults(out, result)
		}
		if runJSONOutput != "" {
			if err := writeRunJSONOutput(runJSONOutput, result); err != nil {
				return fmt.Errorf("写入 JSON 输出失败: %w", err)
			}
		}
	}
	if runErr != nil {
		return &exitError{code: orchestrator.ExitCode(runErr), err: fmt.Errorf("运行失败: %w", runErr)}
	}
	return nil
}

// startStatusServer 在后台启动状态接口，返回关闭函数
func startStatusServer(address string) func() {
	restCfg := rest.DefaultConfig()
	restCfg.Address = address
	srv := rest.NewServer(restCfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := srv.StartWithContext(ctx); err != nil {
			logger.Error("status server stopped", zap.String("address", address), zap.Error(err))
		}
	}()
	logger.Info("status server listening", zap.String("address", address))

	return func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			logger.Warn("status server did not stop in time")
		}
	}
}

func printRunInfo(w io.Writer, cfg *config.Config, runID string) {
	fmt.Fprintf(w, Banner, Version)
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  运行 ID: %s\n", runID)
	if cfg.Connection.Simulate {
		fmt.Fprintf(w, "  飞行器: 模拟\n")
	} else {
		fmt.Fprintf(w, "  飞行器: %s\n", cfg.Connection.Address)
	}
	fmt.Fprintf(w, "  队列后端: %s\n", cfg.Queues.Backend)
	fmt.Fprintf(w, "  worker: 心跳发送 %d, 心跳接收 %d, 遥测 %d, 指令 %d\n",
		cfg.Workers.HeartbeatSender, cfg.Workers.HeartbeatReceiver, cfg.Workers.Telemetry, cfg.Workers.Command)
	if cfg.Tunables.MainLoopDuration > 0 {
		fmt.Fprintf(w, "  运行时间: %s\n", cfg.Tunables.MainLoopDuration)
	} else {
		fmt.Fprintf(w, "  运行时间: 直到中断\n")
	}
	if cfg.Status.Enabled {
		fmt.Fprintf(w, "  状态接口: %s\n", cfg.Status.Address)
	}
	fmt.Fprintln(w)
}

func printRunResults(w io.Writer, result *orchestrator.Result) {
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  结束原因: %s\n", result.Reason)
	fmt.Fprintf(w, "  运行时长: %s\n", result.Duration.Round(time.Millisecond))
	fmt.Fprintf(w, "  心跳上报: %d, 遥测: %d, 指令: %d\n",
		result.Counters.HeartbeatReports, result.Counters.TelemetrySamples, result.Counters.CommandResults)
	fmt.Fprintf(w, "  关闭时清空: %d, 残留: %d\n", result.Drained, result.Residual)
	for _, j := range result.Joins {
		fmt.Fprintf(w, "  %-20s 退出 %d, 失败 %d, 未退出 %d, 启动失败 %d\n",
			j.Group, j.Clean(), len(j.Failed), j.HungCount(), len(j.SpawnFailures))
	}
	fmt.Fprintln(w)
}

// RunSummary 是 --out-json 的内容
type RunSummary struct {
	RunID         string         `json:"run_id"`
	Reason        string         `json:"reason"`
	DurationMs    int64          `json:"duration_ms"`
	Heartbeats    uint64         `json:"heartbeat_reports"`
	Telemetry     uint64         `json:"telemetry_samples"`
	Commands      uint64         `json:"command_results"`
	Drained       int            `json:"drained"`
	Residual      int            `json:"residual"`
	SpawnFailures int            `json:"spawn_failures"`
	Groups        []GroupSummary `json:"groups"`
}

// GroupSummary 是单个 worker 组的退出情况
type GroupSummary struct {
	Name          string   `json:"name"`
	Joined        int      `json:"joined"`
	Failed        int      `json:"failed"`
	Hung          int      `json:"hung"`
	SpawnFailures int      `json:"spawn_failures"`
	Errors        []string `json:"errors,omitempty"`
}

func summarize(result *orchestrator.Result) RunSummary {
	s := RunSummary{
		RunID:         result.RunID,
		Reason:        string(result.Reason),
		DurationMs:    result.Duration.Milliseconds(),
		Heartbeats:    result.Counters.HeartbeatReports,
		Telemetry:     result.Counters.TelemetrySamples,
		Commands:      result.Counters.CommandResults,
		Drained:       result.Drained,
		Residual:      result.Residual,
		SpawnFailures: result.SpawnFailures,
	}
	for _, j := range result.Joins {
		g := GroupSummary{
			Name:          j.Group,
			Joined:        j.Clean(),
			Failed:        len(j.Failed),
			Hung:          j.HungCount(),
			SpawnFailures: len(j.SpawnFailures),
		}
		if err := multierr.Combine(j.Err(), j.Errors()); err != nil {
			g.Errors = append(g.Errors, err.Error())
		}
		s.Groups = append(s.Groups, g)
	}
	return s
}

func writeRunJSONOutput(path string, result *orchestrator.Result) error {
	data, err := sonic.MarshalIndent(summarize(result), "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
