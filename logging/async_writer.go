package logging

import (
	"fmt"
	"io"
	"os"
	"sync"
)

// WriterProvider 把格式化后的日志写入 io.Writer。
// Async 为 true 时由后台协程写入，Close 会等待队列清空。
type WriterProvider struct {
	mu        sync.Mutex
	out       io.Writer
	formatter Formatter

	entryCh   chan *LogEntry
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// WriterOptions 写入器选项
type WriterOptions struct {
	Output     io.Writer
	Formatter  Formatter
	Async      bool
	BufferSize int
}

// NewWriterProvider 创建写入提供者
func NewWriterProvider(opts WriterOptions) *WriterProvider {
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.Formatter == nil {
		opts.Formatter = NewTextFormatter()
	}
	p := &WriterProvider{out: opts.Output, formatter: opts.Formatter}
	if opts.Async {
		if opts.BufferSize <= 0 {
			opts.BufferSize = 1024
		}
		p.entryCh = make(chan *LogEntry, opts.BufferSize)
		p.wg.Add(1)
		go p.process()
	}
	return p
}

func (p *WriterProvider) Write(entry *LogEntry) {
	if p.entryCh != nil {
		// 队列满时阻塞，保证不丢日志
		p.entryCh <- entry
		return
	}
	p.write(entry)
}

func (p *WriterProvider) write(entry *LogEntry) {
	data, err := p.formatter.Format(entry)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging: format error: %v\n", err)
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, err := p.out.Write(data); err != nil {
		fmt.Fprintf(os.Stderr, "logging: write error: %v\n", err)
	}
}

func (p *WriterProvider) process() {
	defer p.wg.Done()
	for entry := range p.entryCh {
		p.write(entry)
	}
}

// Close 刷新异步队列
func (p *WriterProvider) Close() error {
	if p.entryCh == nil {
		return nil
	}
	p.closeOnce.Do(func() { close(p.entryCh) })
	p.wg.Wait()
	return nil
}
