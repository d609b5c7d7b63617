package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ZapProvider 把日志转发给 zap，适合生产环境的结构化输出
type ZapProvider struct {
	logger *zap.Logger
}

// NewZapProvider 包装已有的 zap.Logger
func NewZapProvider(logger *zap.Logger) *ZapProvider {
	return &ZapProvider{logger: logger}
}

// NewZapProductionProvider 使用 zap 的生产配置（JSON，输出到 stderr）
func NewZapProductionProvider() (*ZapProvider, error) {
	logger, err := zap.NewProduction()
	if err != nil {
		return nil, err
	}
	return NewZapProvider(logger), nil
}

func (p *ZapProvider) Write(entry *LogEntry) {
	ce := p.logger.Check(zapLevel(entry.Level), entry.Message)
	if ce == nil {
		return
	}
	ce.Time = entry.Time

	fields := make([]zap.Field, 0, len(entry.Fields)+1)
	if entry.Category != "" {
		fields = append(fields, zap.String("category", entry.Category))
	}
	for _, f := range entry.Fields {
		if err, ok := f.Value.(error); ok {
			fields = append(fields, zap.NamedError(f.Key, err))
			continue
		}
		fields = append(fields, zap.Any(f.Key, f.Value))
	}
	ce.Write(fields...)
}

// Close 刷新 zap 缓冲
func (p *ZapProvider) Close() error {
	return p.logger.Sync()
}

// zapLevel Fatal 映射为 Error，进程退出由本包的 Logger 负责
func zapLevel(level LogLevel) zapcore.Level {
	switch level {
	case LogLevelTrace, LogLevelDebug:
		return zapcore.DebugLevel
	case LogLevelInfo:
		return zapcore.InfoLevel
	case LogLevelWarn:
		return zapcore.WarnLevel
	default:
		return zapcore.ErrorLevel
	}
}
