package transport

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/shredinjohn/micro-mcp/pkg/logging"
)

const (
	defaultStdioQueueSize = 32
	defaultMaxLineSize    = 4 * 1024 * 1024
)

// StdioConfig configures the stdio transport. The zero value serves
// os.Stdin/os.Stdout with defaults; Reader and Writer are injectable for
// tests.
type StdioConfig struct {
	Reader      io.Reader
	Writer      io.Writer
	Logger      logging.Logger
	QueueSize   int
	MaxLineSize int
}

// StdioTransport frames messages as newline-delimited JSON on a byte
// stream pair. A reader goroutine feeds a bounded channel; messages are
// dispatched one at a time in arrival order, so per-client ordering holds
// by construction. stdout carries protocol bytes only; all diagnostics go
// through the logger.
type StdioTransport struct {
	handler Handler
	logger  logging.Logger

	reader      io.Reader
	queueSize   int
	maxLineSize int

	writeMu sync.Mutex
	writer  *bufio.Writer
}

// NewStdioTransport creates a stdio transport for handler.
func NewStdioTransport(handler Handler, cfg StdioConfig) *StdioTransport {
	if cfg.Reader == nil {
		cfg.Reader = os.Stdin
	}
	if cfg.Writer == nil {
		cfg.Writer = os.Stdout
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultStdioQueueSize
	}
	if cfg.MaxLineSize <= 0 {
		cfg.MaxLineSize = defaultMaxLineSize
	}
	return &StdioTransport{
		handler:     handler,
		logger:      cfg.Logger.WithFields(logging.String("transport", "stdio")),
		reader:      cfg.Reader,
		queueSize:   cfg.QueueSize,
		maxLineSize: cfg.MaxLineSize,
		writer:      bufio.NewWriter(cfg.Writer),
	}
}

// Serve runs the transport until EOF on the reader or context
// cancellation, then runs the handler's shutdown hooks. EOF is a clean
// exit.
func (t *StdioTransport) Serve(ctx context.Context) error {
	if err := t.handler.Startup(ctx); err != nil {
		return fmt.Errorf("startup: %w", err)
	}
	t.logger.Info("serving")

	lines := make(chan []byte, t.queueSize)
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(lines)
		scanner := bufio.NewScanner(t.reader)
		scanner.Buffer(make([]byte, 64*1024), t.maxLineSize)
		for scanner.Scan() {
			line := bytes.TrimSpace(scanner.Bytes())
			if len(line) == 0 {
				continue
			}
			// Scanner reuses its buffer across Scan calls.
			msg := make([]byte, len(line))
			copy(msg, line)
			select {
			case lines <- msg:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return scanner.Err()
	})

	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case line, ok := <-lines:
				if !ok {
					return nil
				}
				if resp := t.handler.HandleMessage(ctx, line, t.write); resp != nil {
					t.write(resp)
				}
			}
		}
	})

	err := g.Wait()
	if shutdownErr := shutdownHandler(t.handler); shutdownErr != nil && err == nil {
		err = shutdownErr
	}
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	t.logger.Info("stopped")
	return err
}

// write emits one message followed by a newline and flushes. Serialized
// by a mutex so a progress notification raised mid-dispatch can never
// interleave with a response.
func (t *StdioTransport) write(data []byte) {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if _, err := t.writer.Write(data); err != nil {
		t.logger.Error("write failed", logging.ErrorField(err))
		return
	}
	if err := t.writer.WriteByte('\n'); err != nil {
		t.logger.Error("write failed", logging.ErrorField(err))
		return
	}
	if err := t.writer.Flush(); err != nil {
		t.logger.Error("flush failed", logging.ErrorField(err))
	}
}
