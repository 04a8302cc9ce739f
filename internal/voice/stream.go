package voice

import (
	"log"
	"sync"
)

const recognitionBuffer = 128

// eventStream delivers recognition events without ever blocking the
// producer. Each result replaces the previous one, so a full buffer makes
// room by evicting the oldest interim result.
type eventStream struct {
	mu     sync.Mutex
	events chan RecognitionEvent
	closed bool
}

func newEventStream() *eventStream {
	return &eventStream{events: make(chan RecognitionEvent, recognitionBuffer)}
}

// emit reports false once the stream is closed. An end event closes it.
func (s *eventStream) emit(ev RecognitionEvent) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.events <- ev:
	default:
		s.evictLocked(ev)
	}
	if ev.Type == RecognitionEnd {
		s.closed = true
		close(s.events)
	}
	return true
}

// evictLocked queues ev into a full buffer. It drops the oldest interim
// result, or the oldest event when ev is the end event and no interim
// result is queued. A non-end event with nothing to evict is dropped.
func (s *eventStream) evictLocked(ev RecognitionEvent) {
	pending := make([]RecognitionEvent, 0, cap(s.events))
drain:
	for len(pending) < cap(s.events) {
		select {
		case queued := <-s.events:
			pending = append(pending, queued)
		default:
			break drain
		}
	}

	victim := -1
	for i, queued := range pending {
		if queued.Type == RecognitionResult && !queued.Final {
			victim = i
			break
		}
	}
	if victim < 0 && ev.Type == RecognitionEnd && len(pending) > 0 {
		victim = 0
	}
	if victim >= 0 {
		log.Printf("recognition event evicted: buffer full type=%s", pending[victim].Type)
		pending = append(pending[:victim], pending[victim+1:]...)
	}

	for _, queued := range pending {
		s.events <- queued
	}
	select {
	case s.events <- ev:
	default:
		log.Printf("recognition event dropped: buffer full type=%s", ev.Type)
	}
}

func (s *eventStream) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.events)
}

func (s *eventStream) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
