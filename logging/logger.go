package logging

import (
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"
)

// LogLevel 日志级别
type LogLevel int

const (
	LogLevelTrace LogLevel = iota
	LogLevelDebug
	LogLevelInfo
	LogLevelWarn
	LogLevelError
	LogLevelFatal
)

var levelNames = [...]string{"TRACE", "DEBUG", "INFO", "WARN", "ERROR", "FATAL"}

// String 返回日志级别的字符串表示
func (l LogLevel) String() string {
	if l < LogLevelTrace || l > LogLevelFatal {
		return "UNKNOWN"
	}
	return levelNames[l]
}

// ParseLevel 解析配置中的级别名称，大小写不敏感
func ParseLevel(s string) (LogLevel, error) {
	for i, name := range levelNames {
		if strings.EqualFold(name, s) {
			return LogLevel(i), nil
		}
	}
	if strings.EqualFold(s, "warning") {
		return LogLevelWarn, nil
	}
	return LogLevelInfo, fmt.Errorf("logging: unknown level %q", s)
}

// Field 日志字段
type Field struct {
	Key   string
	Value any
}

// Logger 日志接口
type Logger interface {
	Trace(msg string, fields ...Field)
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	Fatal(msg string, fields ...Field)
	Log(level LogLevel, msg string, fields ...Field)
	WithFields(fields ...Field) Logger
	WithCategory(category string) Logger
}

// LoggerFactory 按类别创建 Logger
type LoggerFactory interface {
	CreateLogger(category string) Logger
	AddProvider(provider LoggerProvider)
	SetMinimumLevel(level LogLevel)
}

// LoggerProvider 一个日志输出目标
type LoggerProvider interface {
	// Write 输出一条已经通过级别过滤的日志
	Write(entry *LogEntry)
}

// loggerFactory 把同一条日志分发给所有提供者
type loggerFactory struct {
	mu           sync.RWMutex
	providers    []LoggerProvider
	minimumLevel LogLevel
}

func (f *loggerFactory) CreateLogger(category string) Logger {
	return &compositeLogger{factory: f, category: category}
}

func (f *loggerFactory) AddProvider(provider LoggerProvider) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.providers = append(f.providers, provider)
}

func (f *loggerFactory) SetMinimumLevel(level LogLevel) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.minimumLevel = level
}

func (f *loggerFactory) enabled(level LogLevel) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return level >= f.minimumLevel
}

func (f *loggerFactory) dispatch(entry *LogEntry) {
	f.mu.RLock()
	providers := f.providers
	f.mu.RUnlock()
	for _, p := range providers {
		p.Write(entry)
	}
}

// compositeLogger 由工厂创建的 Logger，级别在工厂层统一过滤
type compositeLogger struct {
	factory  *loggerFactory
	category string
	fields   []Field
}

func (l *compositeLogger) Trace(msg string, fields ...Field) { l.Log(LogLevelTrace, msg, fields...) }
func (l *compositeLogger) Debug(msg string, fields ...Field) { l.Log(LogLevelDebug, msg, fields...) }
func (l *compositeLogger) Info(msg string, fields ...Field) { l.Log(LogLevelInfo, msg, fields...) }
func (l *compositeLogger) Warn(msg string, fields ...Field) { l.Log(LogLevelWarn, msg, fields...) }
func (l *compositeLogger) Error(msg string, fields ...Field) { l.Log(LogLevelError, msg, fields...) }

func (l *compositeLogger) Fatal(msg string, fields ...Field) {
	l.Log(LogLevelFatal, msg, fields...)
	os.Exit(1)
}

func (l *compositeLogger) Log(level LogLevel, msg string, fields ...Field) {
	if !l.factory.enabled(level) {
		return
	}
	l.factory.dispatch(newEntry(level, l.category, msg, concatFields(l.fields, fields)))
}

func (l *compositeLogger) WithFields(fields ...Field) Logger {
	return &compositeLogger{factory: l.factory, category: l.category, fields: concatFields(l.fields, fields)}
}

func (l *compositeLogger) WithCategory(category string) Logger {
	return &compositeLogger{factory: l.factory, category: category, fields: l.fields}
}

// concatFields 总是分配新切片，避免 WithFields 派生的 Logger 互相覆盖
func concatFields(base, extra []Field) []Field {
	if len(extra) == 0 {
		return base
	}
	out := make([]Field, 0, len(base)+len(extra))
	return append(append(out, base...), extra...)
}

// Nop 丢弃全部日志
func Nop() Logger { return nopLogger{} }

type nopLogger struct{}

func (nopLogger) Trace(string, ...Field) {}
func (nopLogger) Debug(string, ...Field) {}
func (nopLogger) Info(string, ...Field) {}
func (nopLogger) Warn(string, ...Field) {}
func (nopLogger) Error(string, ...Field) {}
func (nopLogger) Fatal(string, ...Field) { os.Exit(1) }
func (nopLogger) Log(LogLevel, string, ...Field) {}
func (n nopLogger) WithFields(...Field) Logger { return n }
func (n nopLogger) WithCategory(string) Logger { return n }

// Recorded 测试用的内存提供者
type Recorded struct {
	mu      sync.Mutex
	entries []LogEntry
}

func (r *Recorded) Write(entry *LogEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, *entry)
}

// Entries 返回已记录的日志副本
func (r *Recorded) Entries() []LogEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.entries)
}

// Messages 按级别过滤返回消息
func (r *Recorded) Messages(level LogLevel) []string {
	var msgs []string
	for _, e := range r.Entries() {
		if e.Level == level {
			msgs = append(msgs, e.Message)
		}
	}
	return msgs
}
