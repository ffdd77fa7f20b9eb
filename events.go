package reqx

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType identifies a lifecycle event emitted during a request.
type EventType int

const (
	// EventRequest fires when an attempt's transport request is created.
	EventRequest EventType = iota
	// EventResponse fires when response headers are received.
	EventResponse
	// EventRedirect fires when a redirect hop is followed.
	EventRedirect
	// EventRetry fires when an attempt is about to be retried, after the
	// delay is finalized and before the wait.
	EventRetry
	// EventUploadProgress fires periodically while the request body is
	// written.
	EventUploadProgress
	// EventDownloadProgress fires periodically while the response body is
	// read.
	EventDownloadProgress
)

var eventNames = map[EventType]string{
	EventRequest:          "request",
	EventResponse:         "response",
	EventRedirect:         "redirect",
	EventRetry:            "retry",
	EventUploadProgress:   "uploadProgress",
	EventDownloadProgress: "downloadProgress",
}

// String returns the event name.
func (t EventType) String() string { return eventNames[t] }

// Progress is a byte-count snapshot for upload/download progress events.
// Total is -1 when the length is unknown.
type Progress struct {
	Transferred int64
	Total       int64
}

// Percent returns completion in [0,1], or -1 when Total is unknown.
func (p Progress) Percent() float64 {
	if p.Total <= 0 {
		return -1
	}
	return float64(p.Transferred) / float64(p.Total)
}

// Event is a lifecycle notification. Only the fields relevant to the
// event type are set.
type Event struct {
	Type EventType

	// RequestID identifies the logical request across attempts and hops.
	RequestID uuid.UUID

	// Attempt is the 1-based attempt number the event belongs to.
	Attempt int

	// From and To are set on redirect events.
	From string
	To   string

	// Delay and Err are set on retry events: the wait before the next
	// attempt and the cause of the retry (nil for status-based retries
	// where Response carries the cause).
	Delay time.Duration
	Err   error

	// Response is set on response and retry events when a response was
	// received.
	Response *Response

	// Progress is set on progress events.
	Progress Progress
}

// EventListener receives lifecycle events. Listeners run synchronously on
// the engine goroutine and must not block.
type EventListener func(Event)

// eventSink fans events out to listeners. Listeners registered after the
// request finished are simply never called; no events fire after the
// terminal outcome is settled.
type eventSink struct {
	mu        sync.Mutex
	listeners []EventListener
	closed    bool
}

func newEventSink(listeners []EventListener) *eventSink {
	s := &eventSink{}
	s.listeners = append(s.listeners, listeners...)
	return s
}

func (s *eventSink) add(l EventListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.listeners = append(s.listeners, l)
}

func (s *eventSink) emit(e Event) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	ls := make([]EventListener, len(s.listeners))
	copy(ls, s.listeners)
	s.mu.Unlock()
	for _, l := range ls {
		l(e)
	}
}

// close stops all future deliveries. Exactly one terminal settlement per
// request calls it, which is what guarantees that no event (progress,
// retry or otherwise) is observed after cancellation.
func (s *eventSink) close() {
	s.mu.Lock()
	s.closed = true
	s.listeners = nil
	s.mu.Unlock()
}
