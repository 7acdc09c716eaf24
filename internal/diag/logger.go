package diag

import (
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger 为最小结构化日志器：基于 zap 的单行 JSON，写入轮转文件。
// 事件字段固定：level/ts/corr_id/comp/stage/code/dur_ms/count/doc_id/batch_id/msg/kv。
type Logger struct {
	z *zap.Logger
}

// NewLogger 通过配置的 level 初始化，并将日志写入默认路径 logs/，10m 轮转。
func NewLogger(corrID, level string) *Logger {
	sink := NewRotatingFile("logs", 10*1024*1024)
	core := zapcore.NewCore(jsonEncoder(), zapcore.AddSync(sink), parseLevel(level))
	return newLogger(core, corrID)
}

// NewLoggerWithCore 以外部 core 构造（测试注入 observer 等）。
func NewLoggerWithCore(core zapcore.Core, corrID string) *Logger {
	return newLogger(core, corrID)
}

func newLogger(core zapcore.Core, corrID string) *Logger {
	z := zap.New(core).With(zap.String("corr_id", corrID))
	return &Logger{z: z}
}

func jsonEncoder() zapcore.Encoder {
	cfg := zapcore.EncoderConfig{
		MessageKey:  "msg",
		LevelKey:    "level",
		TimeKey:     "ts",
		EncodeLevel: zapcore.LowercaseLevelEncoder,
		EncodeTime: func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
			enc.AppendString(t.UTC().Format(time.RFC3339))
		},
		EncodeDuration: zapcore.MillisDurationEncoder,
	}
	return zapcore.NewJSONEncoder(cfg)
}

func parseLevel(s string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Sync 冲刷底层 sink（进程退出前调用）。
func (l *Logger) Sync() {
	if l == nil || l.z == nil {
		return
	}
	_ = l.z.Sync()
}

func fields(comp, stage, code string, durMS, count int64, docID, batch string, kv map[string]string) []zap.Field {
	fs := make([]zap.Field, 0, 8)
	fs = append(fs, zap.String("comp", comp), zap.String("stage", stage))
	if code != "" {
		fs = append(fs, zap.String("code", code))
	}
	if durMS > 0 {
		fs = append(fs, zap.Int64("dur_ms", durMS))
	}
	if count > 0 {
		fs = append(fs, zap.Int64("count", count))
	}
	if docID != "" {
		fs = append(fs, zap.String("doc_id", docID))
	}
	if batch != "" {
		fs = append(fs, zap.String("batch_id", batch))
	}
	if len(kv) > 0 {
		fs = append(fs, zap.Any("kv", kv))
	}
	return fs
}

// Start 记录 start 事件；返回计时器用于 Finish。
func (l *Logger) Start(comp, msg string) *Timer {
	l.z.Info(msg, fields(comp, "start", "", 0, 0, "", "", nil)...)
	return &Timer{l: l, comp: comp, t0: time.Now()}
}

// StartWith 记录带 doc_id/batch_id 的 start。
func (l *Logger) StartWith(comp, msg, docID, batch string) *Timer {
	l.z.Info(msg, fields(comp, "start", "", 0, 0, docID, batch, nil)...)
	return &Timer{l: l, comp: comp, docID: docID, batch: batch, t0: time.Now()}
}

// StartWithKV 记录带 doc_id/batch_id 与键值的 start。
func (l *Logger) StartWithKV(comp, msg, docID, batch string, kv map[string]string) *Timer {
	l.z.Info(msg, fields(comp, "start", "", 0, 0, docID, batch, kv)...)
	return &Timer{l: l, comp: comp, docID: docID, batch: batch, t0: time.Now()}
}

// Error 记录 error 事件（不采样）。
func (l *Logger) Error(comp, code, msg string, durSince *time.Time) {
	l.z.Error(msg, fields(comp, "error", code, sinceMS(durSince), 0, "", "", nil)...)
}

// ErrorWith 支持 doc_id/batch_id。
func (l *Logger) ErrorWith(comp, code, msg string, durSince *time.Time, docID, batch string) {
	l.z.Error(msg, fields(comp, "error", code, sinceMS(durSince), 0, docID, batch, nil)...)
}

// ErrorWithKV 支持附带键值对（例如 HTTP 状态码、上游错误片段）。
func (l *Logger) ErrorWithKV(comp, code, msg string, durSince *time.Time, docID, batch string, kv map[string]string) {
	l.z.Error(msg, fields(comp, "error", code, sinceMS(durSince), 0, docID, batch, kv)...)
}

// InfoFinish 在已有起点的情况下记录 finish。
func (l *Logger) InfoFinish(comp, msg string, start time.Time, count int64) {
	l.z.Info(msg, fields(comp, "finish", "", time.Since(start).Milliseconds(), count, "", "", nil)...)
}

// DebugStart 输出调试级别的 start 类事件（仅在 level=debug 时生效）。
func (l *Logger) DebugStart(comp, msg, docID, batch string, kv map[string]string) {
	l.z.Debug(msg, fields(comp, "start", "", 0, 0, docID, batch, kv)...)
}

func sinceMS(t *time.Time) int64 {
	if t == nil {
		return 0
	}
	return time.Since(*t).Milliseconds()
}

// Timer 用于 start→finish 计时。
type Timer struct {
	l     *Logger
	comp  string
	docID string
	batch string
	t0    time.Time
}

// Finish 记录 finish；可选 count。
func (t *Timer) Finish(msg string, count int64) {
	if t == nil || t.l == nil {
		return
	}
	t.l.z.Info(msg, fields(t.comp, "finish", "", time.Since(t.t0).Milliseconds(), count, t.docID, t.batch, nil)...)
}

// NowUTC 返回 RFC3339 UTC 时间字符串（用于工件元数据等）。
func NowUTC() string { return time.Now().UTC().Format(time.RFC3339) }
