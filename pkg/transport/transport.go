// Package transport provides the adapters that move raw message bytes
// between clients and the dispatch core: newline-delimited stdio and an
// HTTP Server-Sent Events pair. Transports frame and shuttle bytes; they
// never interpret message content.
package transport

import (
	"context"
	"time"
)

// Sink delivers a server-initiated notification through the transport's
// write path for the originating request. Aliased so any func(data []byte)
// satisfies it.
type Sink = func(data []byte)

// Handler is the dispatch surface a transport drives. *server.Server
// implements it.
type Handler interface {
	// Startup runs the application's startup hooks. A transport must
	// call it before accepting any traffic and treat failure as fatal.
	Startup(ctx context.Context) error

	// Shutdown releases application resources. Safe to call more than
	// once.
	Shutdown(ctx context.Context) error

	// HandleMessage dispatches one raw payload and returns the raw
	// response payload, or nil when nothing is owed to the client.
	HandleMessage(ctx context.Context, raw []byte, sink Sink) []byte
}

// Transport serves a Handler until the context is canceled or the peer
// disconnects.
type Transport interface {
	Serve(ctx context.Context) error
}

// shutdownTimeout bounds how long a transport waits for the handler's
// shutdown hooks after serving ends.
const shutdownTimeout = 10 * time.Second

// shutdownHandler runs the handler's shutdown hooks on a fresh context so
// they still execute when serving ended by cancellation.
func shutdownHandler(handler Handler) error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return handler.Shutdown(ctx)
}
