package ws

import (
	"fmt"
	"net/http"
	"sync"
	"time"
)

// SSEClient adapts an http.ResponseWriter into a Subscriber using
// server-sent events framing.
type SSEClient struct {
	w       http.ResponseWriter
	flusher http.Flusher

	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

// NewSSEClient prepares w for event streaming. It returns an error when
// the writer does not support flushing.
func NewSSEClient(w http.ResponseWriter) (*SSEClient, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("response writer does not support streaming")
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	return &SSEClient{w: w, flusher: flusher, done: make(chan struct{})}, nil
}

// Send writes one event frame.
func (c *SSEClient) Send(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("sse client closed")
	}
	if _, err := fmt.Fprintf(c.w, "data: %s\n\n", payload); err != nil {
		return err
	}
	c.flusher.Flush()
	return nil
}

// Close marks the stream finished.
func (c *SSEClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.done)
}

// Done is closed when the stream ends.
func (c *SSEClient) Done() <-chan struct{} {
	return c.done
}

// Heartbeat emits SSE comments every interval to keep intermediaries
// from dropping the connection. It returns when the client closes.
func (c *SSEClient) Heartbeat(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.mu.Lock()
			if c.closed {
				c.mu.Unlock()
				return
			}
			_, err := fmt.Fprint(c.w, ": ping\n\n")
			if err == nil {
				c.flusher.Flush()
			}
			c.mu.Unlock()
			if err != nil {
				c.Close()
				return
			}
		case <-c.done:
			return
		}
	}
}
