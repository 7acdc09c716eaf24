package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	cfgpkg "llmhlb/internal/config"
	"llmhlb/internal/diag"
	"llmhlb/internal/pipeline"
)

// CLI：单命令 run 语义。
// 位置参数为 roots（文件/目录 或 "-" 表示 STDIN，不能与其他根混用）。
func main() {
	os.Exit(run())
}

type flags struct {
	config      string
	oracle      string
	concurrency int
	maxTokens   int
	maxRetries  int
	noiseFloor  int
	emitText    bool
	outputDir   string
	logLevel    string
	initDir     string
	status      bool
}

func run() int {
	var fl flags
	exit := 0

	cmd := &cobra.Command{
		Use:   "llmhlb [roots...]",
		Short: "区分折行文本中的硬换行与软换行",
		Long: "llmhlb 借助 LLM 重排响应与 LCS 对齐，判定折行文本中每个相邻行对\n" +
			"是硬换行（段落边界）还是软换行（排版折行），输出逐行判定工件。",
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			exit = runPipeline(cmd, fl, args)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&fl.config, "config", "", "配置文件路径（JSON）；缺省读取 ./config.json（若存在）")
	f.StringVar(&fl.oracle, "oracle", "", "provider 名称（覆盖配置）")
	f.IntVar(&fl.concurrency, "concurrency", 0, "文档级并发度（覆盖配置）")
	f.IntVar(&fl.maxTokens, "max-tokens", 0, "单批 token 预算（覆盖配置）")
	// max-retries 允许显式设置为 0；默认 -1 表示“未覆盖”。
	f.IntVar(&fl.maxRetries, "max-retries", -1, "文档级最大重试次数（覆盖配置；0 表示不重试）")
	f.IntVar(&fl.noiseFloor, "noise-floor", 0, "尾部残片噪声下限 token 数（覆盖配置）")
	f.BoolVar(&fl.emitText, "emit-text", false, "额外写出按判定重排后的文本工件")
	f.StringVar(&fl.outputDir, "output-dir", "", "输出目录（覆盖 writer 配置）")
	f.StringVar(&fl.logLevel, "log-level", "", "日志级别（覆盖配置；debug|info|warn|error）")
	f.StringVar(&fl.initDir, "init-config", "", "在指定目录生成默认配置 config.json 和 .env 模板（不覆盖已存在文件）")
	f.Lookup("init-config").NoOptDefVal = "."
	f.BoolVar(&fl.status, "status", true, "终端状态提示（stderr）。TTY 动态刷新；非 TTY 打点输出")

	if err := cmd.Execute(); err != nil {
		fprintf(os.Stderr, "%v\n", err)
		return 2
	}
	return exit
}

func runPipeline(cmd *cobra.Command, fl flags, roots []string) int {
	start := time.Now()
	corrID := uuid.NewString()
	// 在任何 ENV 读取前，尝试加载工作目录下的 .env（不覆盖已有 ENV）。
	_ = loadDotEnv(".env")
	logger := diag.NewLogger(corrID, "info")
	defer logger.Sync()

	// --init-config: 生成模板并退出
	if dir := strings.TrimSpace(fl.initDir); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			fprintf(os.Stderr, "生成默认配置失败: %v\n", err)
			return 3
		}
		if err := writeConfig(filepath.Join(dir, "config.json"), cfgpkg.DefaultTemplateConfig()); err != nil {
			fprintf(os.Stderr, "生成默认配置失败: %v\n", err)
			return 3
		}
		if err := writeDotEnv(filepath.Join(dir, ".env")); err != nil {
			fprintf(os.Stderr, "提示：.env 生成失败（已跳过）：%v\n", err)
		}
		return 0
	}

	// JSON 配置（文件或 ENV: LLMHLB_CONFIG_JSON）
	var cfgJSON []byte
	if s := os.Getenv("LLMHLB_CONFIG_JSON"); s != "" {
		cfgJSON = []byte(s)
	}
	cfgPath := fl.config
	if cfgPath == "" {
		if s := os.Getenv("LLMHLB_CONFIG_FILE"); s != "" {
			cfgPath = s
		}
	}
	// 默认读取工作目录下 config.json（若存在）
	if cfgPath == "" {
		if _, err := os.Stat("config.json"); err == nil {
			cfgPath = "config.json"
		}
	}

	cfg := cfgpkg.Defaults()
	if cfgPath != "" || len(cfgJSON) > 0 {
		base, err := cfgpkg.LoadJSON(cfgPath, cfgJSON)
		if err != nil {
			fprintf(os.Stderr, "配置解析失败: %v\n", err)
			logger.Error("pipeline", string(diag.Classify(err)), "first error", &start)
			return 3
		}
		cfg = cfgpkg.Merge(cfg, base)
	}

	// ENV 覆盖（最小集合）
	overEnv, err := cfgpkg.EnvOverlay(os.Environ())
	if err != nil {
		fprintf(os.Stderr, "环境变量解析失败: %v\n", err)
		logger.Error("pipeline", string(diag.Classify(err)), "first error", &start)
		return 3
	}
	cfg = cfgpkg.Merge(cfg, overEnv)

	// CLI 覆盖
	var overCLI cfgpkg.Config
	// 标记 MaxRetries 未设置（避免默认 0 被误判为要覆盖）
	overCLI.MaxRetries = -1
	if fl.oracle != "" {
		overCLI.Oracle = fl.oracle
	}
	if fl.concurrency > 0 {
		overCLI.Concurrency = fl.concurrency
	}
	if fl.maxTokens > 0 {
		overCLI.MaxTokens = fl.maxTokens
	}
	if fl.maxRetries >= 0 {
		overCLI.MaxRetries = fl.maxRetries
	}
	if fl.noiseFloor > 0 {
		overCLI.NoiseFloor = fl.noiseFloor
	}
	if cmd.Flags().Changed("emit-text") {
		overCLI.EmitText = &fl.emitText
	}
	if fl.logLevel != "" {
		overCLI.Logging.Level = fl.logLevel
	}
	if fl.outputDir != "" {
		raw, _ := json.Marshal(map[string]any{"output_dir": fl.outputDir})
		overCLI.Options.Writer = raw
	}
	if len(roots) > 0 {
		overCLI.Inputs = roots
	}
	cfg = cfgpkg.Merge(cfg, overCLI)

	// 基本校验 & 装配
	if err := cfgpkg.Validate(cfg); err != nil {
		fprintf(os.Stderr, "配置校验失败: %v\n", err)
		// 提示打印有效配置，便于诊断
		_ = dumpConfig(cfg)
		logger.Error("pipeline", string(diag.Classify(err)), "first error", &start)
		return 3
	}

	// 使用最终配置中的日志级别重建 logger
	if lv := strings.TrimSpace(cfg.Logging.Level); lv != "" {
		logger = diag.NewLogger(corrID, lv)
		defer logger.Sync()
	}

	// 预检：若使用文件系统 Writer，检查输出目录的可写性
	if err := preflightCheckOutputDir(cfg); err != nil {
		fprintf(os.Stderr, "输出目录不可写或无法创建: %v\n", err)
		logger.Error("pipeline", string(diag.Classify(err)), "first error", &start)
		return 3
	}

	comp, set, err := cfgpkg.Assemble(cfg, logger)
	if err != nil {
		fprintf(os.Stderr, "装配失败: %v\n", err)
		logger.Error("pipeline", string(diag.Classify(err)), "first error", &start)
		return 3
	}

	// 终端信息提示（非日志）：按 CLI 启用，默认开启
	term := diag.NewTerminal(os.Stderr, fl.status)
	diag.SetTerminal(term)
	defer diag.SetTerminal(nil)
	term.RunStart(cfg.Concurrency, cfg.Oracle)

	// debug: 输出运行时配置信息（已脱敏）
	kv := map[string]string{
		"inputs_count": fmt.Sprintf("%d", len(cfg.Inputs)),
		"concurrency":  fmt.Sprintf("%d", cfg.Concurrency),
		"max_tokens":   fmt.Sprintf("%d", cfg.MaxTokens),
		"oracle":       cfg.Oracle,
		"reader":       cfg.Components.Reader,
		"tokenizer":    cfg.Components.Tokenizer,
		"batcher":      cfg.Components.Batcher,
		"cache":        cfg.Components.Cache,
		"writer":       cfg.Components.Writer,
	}
	if p, ok := cfg.Provider[cfg.Oracle]; ok {
		kv["provider_client"] = p.Client
		// 解析常见无敏感项
		var s struct {
			BaseURL string `json:"base_url"`
			Model   string `json:"model"`
		}
		_ = json.Unmarshal(p.Options, &s)
		if s.BaseURL != "" {
			kv["base_url"] = s.BaseURL
		}
		if s.Model != "" {
			kv["model"] = s.Model
		}
	}
	logger.DebugStart("config", "effective", "", "", kv)

	// 信号取消：Ctrl-C / SIGTERM 优雅终止
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 运行流水线
	t := logger.Start("pipeline", "run")
	if err := pipeline.Run(ctx, comp, set, logger); err != nil {
		code := string(diag.Classify(err))
		logger.Error("pipeline", code, "first error", &start)
		diag.IncOp("pipeline", "error", "error")
		if code != "" && code != string(diag.CodeUnknown) {
			diag.IncError("pipeline", code)
		}
		if !errors.Is(err, context.Canceled) {
			fprintf(os.Stderr, "运行失败: %v\n", err)
		}
		term.RunFinish(false, time.Since(start))
		return 1
	}
	if t != nil {
		t.Finish("run", 0)
	}
	diag.IncOp("pipeline", "finish", "success")
	term.RunFinish(true, time.Since(start))
	return 0
}

func fprintf(w *os.File, format string, a ...any) { _, _ = fmt.Fprintf(w, format, a...) }

func dumpConfig(c cfgpkg.Config) error {
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	_, _ = os.Stderr.Write(append([]byte("有效配置:\n"), b...))
	_, _ = os.Stderr.Write([]byte("\n"))
	return nil
}

func writeConfig(path string, c cfgpkg.Config) error {
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	if path == "-" {
		_, err = os.Stdout.Write(append(b, '\n'))
		return err
	}
	// 不覆盖已存在文件
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()
	if _, err := f.Write(b); err != nil {
		return err
	}
	_, _ = f.Write([]byte("\n"))
	return nil
}

// loadDotEnv 读取简单的 .env 文件格式并注入进程环境。
// 规则：
// - 忽略不存在的文件；无法读取时返回错误（但调用处可忽略）。
// - 跳过空行与以 # 开头的行；支持可选的前缀 "export ".
// - 仅按首个 '=' 分割；key 为左侧去空白；value 去首尾空白；
// - 若 value 被成对的单/双引号包裹，则去除外层引号；双引号内常见转义作最小处理。
// - 不覆盖已存在的环境变量（保持系统/调用者优先）。
func loadDotEnv(path string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()
	s := bufio.NewScanner(f)
	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "export ") {
			line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		}
		eq := strings.IndexByte(line, '=')
		if eq <= 0 {
			continue
		}
		key := strings.TrimSpace(line[:eq])
		val := strings.TrimSpace(line[eq+1:])
		if key == "" {
			continue
		}
		// 去除成对引号
		if len(val) >= 2 {
			if (val[0] == '\'' && val[len(val)-1] == '\'') || (val[0] == '"' && val[len(val)-1] == '"') {
				quoted := val[0]
				val = val[1 : len(val)-1]
				if quoted == '"' {
					// 最小转义处理
					val = strings.ReplaceAll(val, "\\n", "\n")
					val = strings.ReplaceAll(val, "\\t", "\t")
					val = strings.ReplaceAll(val, "\\r", "\r")
					val = strings.ReplaceAll(val, "\\\"", "\"")
					val = strings.ReplaceAll(val, "\\\\", "\\")
				}
			}
		}
		if _, exists := os.LookupEnv(key); exists {
			continue
		}
		_ = os.Setenv(key, val)
	}
	return s.Err()
}

// writeDotEnv 生成 .env 模板（若文件已存在则跳过）。
// 仅创建文件；不覆盖，不合并。
func writeDotEnv(path string) error {
	if st, err := os.Stat(path); err == nil && !st.IsDir() {
		// 已存在直接跳过
		return nil
	} else if err != nil && !os.IsNotExist(err) {
		return err
	}
	var b strings.Builder
	b.WriteString("# llmhlb .env 模板（由 --init-config 生成）\n")
	b.WriteString("# 优先级：CLI > ENV(.env) > JSON\n")
	b.WriteString("# 空值表示未设置；按需填写后移除本行注释。\n\n")

	b.WriteString("# 配置来源（可二选一）\n")
	b.WriteString("LLMHLB_CONFIG_FILE=\n")
	b.WriteString("LLMHLB_CONFIG_JSON=\n\n")

	b.WriteString("# 运行参数覆盖\n")
	b.WriteString("LLMHLB_INPUTS=\n")
	b.WriteString("LLMHLB_CONCURRENCY=\n")
	b.WriteString("LLMHLB_MAX_TOKENS=\n")
	b.WriteString("LLMHLB_MAX_RETRIES=\n")
	b.WriteString("LLMHLB_NOISE_FLOOR=\n")
	b.WriteString("LLMHLB_EMIT_TEXT=\n")
	b.WriteString("LLMHLB_ORACLE=\n\n")

	b.WriteString("# 组件选择\n")
	b.WriteString("LLMHLB_COMPONENTS_READER=\n")
	b.WriteString("LLMHLB_COMPONENTS_TOKENIZER=\n")
	b.WriteString("LLMHLB_COMPONENTS_BATCHER=\n")
	b.WriteString("LLMHLB_COMPONENTS_CACHE=\n")
	b.WriteString("LLMHLB_COMPONENTS_WRITER=\n\n")

	b.WriteString("# Provider 覆盖（openai）\n")
	b.WriteString("LLMHLB_PROVIDER__openai__CLIENT=\n")
	b.WriteString("LLMHLB_PROVIDER__openai__LIMITS_RPM=\n")
	b.WriteString("LLMHLB_PROVIDER__openai__LIMITS_TPM=\n")
	b.WriteString("LLMHLB_PROVIDER__openai__LIMITS_MAX_TOKENS_PER_REQ=\n")
	b.WriteString("LLMHLB_PROVIDER__openai__OPTIONS_JSON=\n\n")

	b.WriteString("# Provider 覆盖（gemini）\n")
	b.WriteString("LLMHLB_PROVIDER__gemini__CLIENT=\n")
	b.WriteString("LLMHLB_PROVIDER__gemini__LIMITS_RPM=\n")
	b.WriteString("LLMHLB_PROVIDER__gemini__LIMITS_TPM=\n")
	b.WriteString("LLMHLB_PROVIDER__gemini__LIMITS_MAX_TOKENS_PER_REQ=\n")
	b.WriteString("LLMHLB_PROVIDER__gemini__OPTIONS_JSON=\n\n")

	b.WriteString("# 常见供应商 API Key\n")
	b.WriteString("OPENAI_API_KEY=\n")
	b.WriteString("GOOGLE_API_KEY=\n")
	b.WriteString("\n")

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()
	if _, err := f.WriteString(b.String()); err != nil {
		return err
	}
	return nil
}

// preflightCheckOutputDir: 当 Writer 使用文件系统实现(fs)时，启动前检查输出目录可写性。
// 规则：
// - 若目录已存在：尝试创建并删除临时文件；失败则判为不可写。
// - 若目录不存在：检查父目录是否可写（尝试在父目录创建并删除临时目录）。
// 仅针对 fs writer 生效；其他 writer 跳过。
func preflightCheckOutputDir(cfg cfgpkg.Config) error {
	// 计算生效的 writer 名称
	def := cfgpkg.Defaults()
	writerName := cfg.Components.Writer
	if strings.TrimSpace(writerName) == "" {
		writerName = def.Components.Writer
	}
	if strings.TrimSpace(writerName) != "fs" {
		return nil
	}
	// 解析 fs writer 的 output_dir
	var wopts struct {
		OutputDir string `json:"output_dir"`
	}
	if len(cfg.Options.Writer) > 0 {
		_ = json.Unmarshal(cfg.Options.Writer, &wopts)
	}
	dir := strings.TrimSpace(wopts.OutputDir)
	if dir == "" {
		// 未指定时无法可靠检查，让装配阶段按实现自行报错
		return nil
	}
	if st, err := os.Stat(dir); err == nil && st.IsDir() {
		// 目录存在：尝试写入临时文件
		f, err := os.CreateTemp(dir, ".wcheck-*")
		if err != nil {
			return err
		}
		name := f.Name()
		_ = f.Close()
		_ = os.Remove(name)
		return nil
	} else if err == nil && !st.IsDir() {
		return fmt.Errorf("路径存在但不是目录: %s", dir)
	} else if err != nil && !os.IsNotExist(err) {
		return err
	}
	// 目录不存在：检查父目录可写性
	parent := filepath.Dir(dir)
	if parent == "" || parent == dir {
		return fmt.Errorf("无法确定父目录: %s", dir)
	}
	pst, err := os.Stat(parent)
	if err != nil {
		return err
	}
	if !pst.IsDir() {
		return fmt.Errorf("父路径不是目录: %s", parent)
	}
	tmpd, err := os.MkdirTemp(parent, ".wcheck-*")
	if err != nil {
		return err
	}
	_ = os.RemoveAll(tmpd)
	return nil
}
