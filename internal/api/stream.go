package api

import (
	"io"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
)

const streamBuffer = 32

// stream fans notifications out to the open server-sent event connections.
type stream struct {
	mu     sync.Mutex
	closed bool
	subs   map[chan Notification]struct{}
}

func newStream() *stream {
	return &stream{subs: make(map[chan Notification]struct{})}
}

func (s *stream) add() (chan Notification, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, false
	}

	ch := make(chan Notification, streamBuffer)
	s.subs[ch] = struct{}{}
	return ch, true
}

func (s *stream) remove(ch chan Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.subs[ch]; ok {
		delete(s.subs, ch)
		close(ch)
	}
}

// broadcast never blocks, a slow connection misses notifications.
func (s *stream) broadcast(n Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for ch := range s.subs {
		select {
		case ch <- n:
		default:
		}
	}
}

func (s *stream) close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	for ch := range s.subs {
		delete(s.subs, ch)
		close(ch)
	}
}

func (a *API) Events(c *gin.Context) {
	ch, ok := a.stream.add()
	if !ok {
		c.AbortWithStatus(http.StatusServiceUnavailable)
		return
	}
	defer a.stream.remove(ch)

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	c.Stream(func(io.Writer) bool {
		select {
		case n, ok := <-ch:
			if !ok {
				return false
			}
			c.SSEvent(n.Event, n.Data)
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}
