package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tmaxmax/go-sse"
	"golang.org/x/sync/errgroup"

	"github.com/shredinjohn/micro-mcp/pkg/logging"
)

const (
	defaultSSEQueueSize = 64
	defaultMaxBodySize  = 4 * 1024 * 1024

	ssePath      = "/sse"
	messagesPath = "/messages"
)

// SSEConfig configures the SSE transport.
type SSEConfig struct {
	Host        string
	Port        int
	Logger      logging.Logger
	QueueSize   int
	MaxBodySize int64

	// MetricsHandler, when set, is mounted at /metrics on the same mux.
	MetricsHandler http.Handler
}

// session is one connected SSE client. Its queue is the only path from
// dispatch goroutines to the single writer loop holding the event stream,
// so per-session ordering holds by construction.
type session struct {
	id        string
	queue     chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func newSession(id string, queueSize int) *session {
	return &session{
		id:    id,
		queue: make(chan []byte, queueSize),
		done:  make(chan struct{}),
	}
}

func (s *session) close() {
	s.closeOnce.Do(func() { close(s.done) })
}

// enqueue hands data to the session's writer loop. It reports false, and
// drops the message, once the session is gone.
func (s *session) enqueue(data []byte) bool {
	select {
	case <-s.done:
		return false
	case s.queue <- data:
		return true
	}
}

// SSETransport serves MCP over a paired HTTP interface: GET /sse opens a
// server-to-client event stream, POST /messages?session_id=... carries
// client-to-server messages. A POST is acknowledged immediately with 202;
// dispatch happens in a goroutine and the response travels back over the
// session's event stream.
type SSETransport struct {
	handler Handler
	logger  logging.Logger

	addr           string
	queueSize      int
	maxBodySize    int64
	metricsHandler http.Handler

	mu       sync.RWMutex
	sessions map[string]*session

	// baseCtx outlives individual POST requests so dispatch is not
	// canceled when the acknowledged POST returns.
	baseCtx context.Context
}

// NewSSETransport creates an SSE transport for handler.
func NewSSETransport(handler Handler, cfg SSEConfig) *SSETransport {
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultSSEQueueSize
	}
	if cfg.MaxBodySize <= 0 {
		cfg.MaxBodySize = defaultMaxBodySize
	}
	return &SSETransport{
		handler:        handler,
		logger:         cfg.Logger.WithFields(logging.String("transport", "sse")),
		addr:           fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		queueSize:      cfg.QueueSize,
		maxBodySize:    cfg.MaxBodySize,
		metricsHandler: cfg.MetricsHandler,
		sessions:       make(map[string]*session),
	}
}

// Handler returns the HTTP handler serving the SSE and message endpoints,
// for embedding into an existing mux or httptest server.
func (t *SSETransport) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(ssePath, t.handleSSE)
	mux.HandleFunc(messagesPath, t.handleMessages)
	if t.metricsHandler != nil {
		mux.Handle("/metrics", t.metricsHandler)
	}
	return mux
}

// Serve listens on the configured address until the context is canceled,
// then drains sessions and runs the handler's shutdown hooks.
func (t *SSETransport) Serve(ctx context.Context) error {
	if err := t.handler.Startup(ctx); err != nil {
		return fmt.Errorf("startup: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	t.baseCtx = ctx

	srv := &http.Server{
		Addr:              t.addr,
		Handler:           t.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	t.logger.Info("serving", logging.String("addr", t.addr))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err := g.Wait()
	t.closeSessions()
	if shutdownErr := shutdownHandler(t.handler); shutdownErr != nil && err == nil {
		err = shutdownErr
	}
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	t.logger.Info("stopped")
	return err
}

func (t *SSETransport) closeSessions() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, sn := range t.sessions {
		sn.close()
		delete(t.sessions, id)
	}
}

// handleSSE upgrades a GET into an event stream. The first event, typed
// "endpoint", tells the client where to POST; every later event, typed
// "message", carries one JSON-RPC payload. The goroutine that owns the
// upgraded stream is its only writer.
func (t *SSETransport) handleSSE(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	stream, err := sse.Upgrade(w, r)
	if err != nil {
		t.logger.Error("sse upgrade failed", logging.ErrorField(err))
		http.Error(w, "failed to establish event stream", http.StatusInternalServerError)
		return
	}

	sn := newSession(uuid.New().String(), t.queueSize)
	t.mu.Lock()
	t.sessions[sn.id] = sn
	t.mu.Unlock()
	defer func() {
		t.mu.Lock()
		delete(t.sessions, sn.id)
		t.mu.Unlock()
		sn.close()
	}()

	t.logger.Info("session opened", logging.String("session_id", sn.id))

	endpoint := fmt.Sprintf("%s?session_id=%s", messagesPath, sn.id)
	if err := t.sendEvent(stream, "endpoint", endpoint); err != nil {
		t.logger.Error("failed to send endpoint event", logging.ErrorField(err))
		return
	}

	for {
		select {
		case <-r.Context().Done():
			t.logger.Info("session closed", logging.String("session_id", sn.id))
			return
		case <-sn.done:
			return
		case data := <-sn.queue:
			if err := t.sendEvent(stream, "message", string(data)); err != nil {
				t.logger.Warn("failed to send message event",
					logging.String("session_id", sn.id), logging.ErrorField(err))
				return
			}
		}
	}
}

func (t *SSETransport) sendEvent(stream *sse.Session, eventType, data string) error {
	msg := &sse.Message{Type: sse.Type(eventType)}
	msg.AppendData(data)
	if err := stream.Send(msg); err != nil {
		return err
	}
	return stream.Flush()
}

// handleMessages accepts one client message per POST. The body is handed
// to dispatch in a goroutine and the POST is acknowledged with 202
// immediately; a slow tool handler never stalls the HTTP client.
func (t *SSETransport) handleMessages(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		http.Error(w, "missing session_id", http.StatusBadRequest)
		return
	}

	t.mu.RLock()
	sn := t.sessions[sessionID]
	t.mu.RUnlock()
	if sn == nil {
		http.Error(w, "unknown session", http.StatusBadRequest)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, t.maxBodySize))
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	ctx := t.baseCtx
	if ctx == nil {
		ctx = context.Background()
	}
	go func() {
		resp := t.handler.HandleMessage(ctx, body, func(data []byte) {
			if !sn.enqueue(data) {
				t.logger.Debug("dropped notification for closed session",
					logging.String("session_id", sn.id))
			}
		})
		if resp != nil && !sn.enqueue(resp) {
			t.logger.Warn("dropped response for closed session",
				logging.String("session_id", sn.id))
		}
	}()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	if _, err := w.Write([]byte(`{"status":"accepted"}`)); err != nil {
		t.logger.Warn("failed to write acknowledgement", logging.ErrorField(err))
	}
}
