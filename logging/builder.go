package logging

import (
	"io"
	"os"
	"sync"

	"go.uber.org/zap"
)

// LoggingBuilder 日志构建器
type LoggingBuilder struct {
	mu           sync.Mutex
	providers    []LoggerProvider
	minimumLevel LogLevel
}

// NewLoggingBuilder 创建日志构建器，默认级别 Info
func NewLoggingBuilder() *LoggingBuilder {
	return &LoggingBuilder{minimumLevel: LogLevelInfo}
}

// SetMinimumLevel 设置最小日志级别
func (b *LoggingBuilder) SetMinimumLevel(level LogLevel) *LoggingBuilder {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.minimumLevel = level
	return b
}

// AddProvider 添加日志提供者
func (b *LoggingBuilder) AddProvider(provider LoggerProvider) *LoggingBuilder {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.providers = append(b.providers, provider)
	return b
}

// AddConsole 彩色文本输出到 stdout
func (b *LoggingBuilder) AddConsole() *LoggingBuilder {
	f := NewTextFormatter()
	f.ColorOutput = true
	return b.AddProvider(NewWriterProvider(WriterOptions{Output: os.Stdout, Formatter: f}))
}

// AddJson JSON 行输出到 w
func (b *LoggingBuilder) AddJson(w io.Writer) *LoggingBuilder {
	return b.AddProvider(NewWriterProvider(WriterOptions{Output: w, Formatter: NewJsonFormatter()}))
}

// AddZap 转发到 zap
func (b *LoggingBuilder) AddZap(logger *zap.Logger) *LoggingBuilder {
	return b.AddProvider(NewZapProvider(logger))
}

// Build 构建日志工厂
func (b *LoggingBuilder) Build() LoggerFactory {
	b.mu.Lock()
	defer b.mu.Unlock()

	factory := &loggerFactory{minimumLevel: b.minimumLevel}
	for _, provider := range b.providers {
		factory.AddProvider(provider)
	}
	return factory
}

// Providers 已添加的提供者，用于关闭时刷新
func (b *LoggingBuilder) Providers() []LoggerProvider {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]LoggerProvider(nil), b.providers...)
}

// NewLogger 创建一个默认的控制台 Logger
func NewLogger() Logger {
	return NewLoggingBuilder().AddConsole().Build().CreateLogger("default")
}
