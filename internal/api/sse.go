package api

import (
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/pingup/pingup/internal/api/middleware"
)

// handshakeFrame is the first frame written on every stream, before
// the connection is registered for pushes.
const handshakeFrame = "log: connected to SSE stream\n\n"

var errHandleClosed = errors.New("stream handle closed")

// sseHandle adapts one Server-Sent Events response into a
// stream.Handle. The write mutex serializes frames so successive
// broker sends to the same subject arrive in call order.
type sseHandle struct {
	w       http.ResponseWriter
	flusher http.Flusher

	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

func newSSEHandle(w http.ResponseWriter, flusher http.Flusher) *sseHandle {
	return &sseHandle{w: w, flusher: flusher, done: make(chan struct{})}
}

// WriteEvent writes one data frame. No line-wrapping: the payload is a
// single JSON object on one line.
func (h *sseHandle) WriteEvent(data []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return errHandleClosed
	}
	if _, err := fmt.Fprintf(h.w, "data:%s\n\n", data); err != nil {
		return err
	}
	h.flusher.Flush()
	return nil
}

// Close wakes the serving goroutine. Safe to call more than once and
// from any goroutine, including the registry replacing this handle.
func (h *sseHandle) Close() {
	h.mu.Lock()
	if !h.closed {
		h.closed = true
		close(h.done)
	}
	h.mu.Unlock()
}

// Done reports handle closure.
func (h *sseHandle) Done() <-chan struct{} {
	return h.done
}

// handleStream serves the long-lived SSE connection for one subject.
// The serving goroutine does nothing after the handshake but wait:
// pushes happen on the sender's goroutine through the registered
// handle, and this goroutine wakes only to release the registry entry
// on disconnect or replacement.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	subjectID := middleware.Subject(r.Context())
	if urlUserID := chi.URLParam(r, "userID"); urlUserID != subjectID {
		respondError(w, http.StatusForbidden, "stream subject mismatch")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	fmt.Fprint(w, handshakeFrame)
	flusher.Flush()

	h := newSSEHandle(w, flusher)
	s.registry.Register(subjectID, h)
	s.metrics.ActiveStreams.Inc()
	s.logger.Info("stream connected", "subject", subjectID, "remote_addr", r.RemoteAddr)

	defer func() {
		// Release only our own entry: a replacement registered after
		// us must not be evicted by our cleanup.
		s.registry.Release(subjectID, h)
		h.Close()
		s.metrics.ActiveStreams.Dec()
		s.logger.Info("stream disconnected", "subject", subjectID)
	}()

	select {
	case <-r.Context().Done():
		// Client closed the connection.
	case <-h.Done():
		// Replaced by a newer registration or evicted after a failed
		// write.
	}
}
