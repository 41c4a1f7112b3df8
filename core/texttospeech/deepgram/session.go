package deepgram

import (
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
)

// sessionState holds the mutable state of one streaming request. Segment
// bookkeeping and websocket writes share a single mutex; callbacks are never
// invoked while it is held.
//
// segments[0] is the in-flight segment whose text has been written to the
// websocket, the last element accumulates text until the next mark seals it.
type sessionState struct {
	mu sync.Mutex
	ws *websocket.Conn

	segments []string

	// frontFlushed records whether a Flush has been sent for the current
	// front segment, so EndOfText never double-flushes.
	frontFlushed bool

	textComplete bool
	cancelled    bool
	closed       bool
	ended        bool
}

func (s *sessionState) checkOpenForText() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("streaming request closed")
	} else if s.cancelled {
		return fmt.Errorf("streaming request cancelled")
	} else if s.textComplete {
		return fmt.Errorf("streaming request text already completed")
	}
	return nil
}

// appendText adds text to the accumulating segment and reports whether it
// should be written to the websocket now. Only the front segment streams
// directly; queued segments wait for their Flushed confirmation.
func (s *sessionState) appendText(text string) (sendNow bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.segments) == 0 {
		s.segments = append(s.segments, "")
	}
	sendNow = len(s.segments) == 1
	s.segments[len(s.segments)-1] += text
	return sendNow
}

// sealSegment closes the accumulating segment and reports whether the front
// segment should be flushed now.
func (s *sessionState) sealSegment() (flushNow bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	flushNow = len(s.segments) == 1 && !s.frontFlushed
	if flushNow {
		s.frontFlushed = true
	}
	s.segments = append(s.segments, "")
	return flushNow
}

// popSegment consumes one Flushed confirmation. It returns the completed
// segment for the mark callback, the next segment to write if one is queued,
// whether that next segment should also be flushed immediately, and whether
// all speech has now been produced.
func (s *sessionState) popSegment() (segment, next *string, flushNext, finished bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.segments) > 0 {
		popped := s.segments[0]
		segment = &popped
		s.segments = s.segments[1:]
		s.frontFlushed = false

		if len(s.segments) > 0 {
			front := s.segments[0]
			next = &front
			flushNext = len(s.segments) > 1 || s.textComplete
			if flushNext {
				s.frontFlushed = true
			}
		}
	}

	if len(s.segments) == 0 && s.textComplete && !s.ended {
		s.ended = true
		finished = true
	}
	return segment, next, flushNext, finished
}

// markTextComplete seals the stream against further text. It reports whether
// the call came too late, whether there is nothing left to synthesize, and
// whether a trailing unflushed segment needs a flush.
func (s *sessionState) markTextComplete() (alreadyDone, empty, flushNow bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.cancelled {
		return true, false, false
	}
	if s.textComplete {
		return false, false, false
	}
	s.textComplete = true

	if last := len(s.segments) - 1; last >= 0 && s.segments[last] == "" {
		s.segments = s.segments[:last]
	}
	if len(s.segments) == 0 {
		s.ended = true
		return false, true, false
	}

	flushNow = !s.frontFlushed
	if flushNow {
		s.frontFlushed = true
	}
	return false, false, flushNow
}

func (s *sessionState) markCancelled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.cancelled {
		return false
	}
	s.cancelled = true
	return true
}

func (s *sessionState) markClosed() (ws *websocket.Conn, wasOpen bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.ws == nil {
		return nil, false
	}
	s.closed = true
	return s.ws, true
}

// teardown closes the underlying connection once the read loop exits and
// reports whether the session had already finished on its own terms.
func (s *sessionState) teardown() (finished bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	finished = s.closed || s.cancelled || s.ended
	if s.ws != nil {
		_ = s.ws.Close()
		s.ws = nil
	}
	s.closed = true
	return finished
}

func (s *sessionState) isDone() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelled || s.ended
}

func (s *sessionState) send(msg websocketMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ws == nil || s.closed {
		return fmt.Errorf("websocket connection closed")
	}
	if err := s.ws.WriteJSON(msg); err != nil {
		return fmt.Errorf("failed to write to websocket: %w", err)
	}
	return nil
}
