package deepgram

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	api "github.com/deepgram/deepgram-go-sdk/pkg/api/listen/v1/websocket/interfaces"
	"github.com/gorilla/websocket"

	"github.com/rtvoicechat/core/core/speechtotext"
)

// utteranceSession is one recognition websocket, scoped to a single
// utterance. The read loop owns all transcript state; the connection mutex
// only guards writes.
type utteranceSession struct {
	seq     uint64
	options speechtotext.TranscriptionOptions

	connMu sync.Mutex
	conn   *websocket.Conn

	cancelled atomic.Bool
	done      chan struct{}
}

func newUtteranceSession(ctx context.Context, seq uint64, apiKey string, options speechtotext.TranscriptionOptions) (*utteranceSession, error) {
	encoding, err := convertEncoding(options.EncodingInfo)
	if err != nil {
		return nil, fmt.Errorf("invalid encoding: %w", err)
	}

	listenUrl, _ := url.Parse("wss://api.deepgram.com/v1/listen")
	queryParams := listenUrl.Query()
	queryParams.Set("encoding", encoding.Format.Name())
	queryParams.Set("sample_rate", strconv.Itoa(encoding.SampleRate))
	queryParams.Set("channels", "1")
	queryParams.Set("model", options.Model)
	queryParams.Set("language", options.Language)
	queryParams.Set("smart_format", "true")
	queryParams.Set("interim_results", "true")
	queryParams.Set("endpointing", "300")
	listenUrl.RawQuery = queryParams.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, listenUrl.String(),
		http.Header{"Authorization": {"Token " + apiKey}})
	if err != nil {
		return nil, fmt.Errorf("failed to open socket connection to deepgram: %w", err)
	}

	session := &utteranceSession{
		seq:     seq,
		options: options,
		conn:    conn,
		done:    make(chan struct{}),
	}
	go session.readAndProcessMessages(conn)

	return session, nil
}

func (s *utteranceSession) sendAudio(audio []byte) error {
	s.connMu.Lock()
	defer s.connMu.Unlock()

	if s.conn == nil {
		return fmt.Errorf("recognition session already closed")
	}
	if err := s.conn.WriteMessage(websocket.BinaryMessage, audio); err != nil {
		return fmt.Errorf("failed to write to deepgram client: %w", err)
	}
	return nil
}

// finish asks the recognizer to flush and waits for the read loop to drain
// the final transcript.
func (s *utteranceSession) finish() error {
	s.connMu.Lock()
	if s.conn == nil {
		s.connMu.Unlock()
		return nil
	}
	err := s.conn.WriteJSON(struct {
		Type string `json:"type"`
	}{Type: string(api.TypeCloseStreamResponse)})
	s.connMu.Unlock()

	if err != nil {
		return fmt.Errorf("failed to close deepgram stream: %w", err)
	}

	<-s.done
	return nil
}

// abandon tears the session down without a final transcript. The read loop
// suppresses all further fragments.
func (s *utteranceSession) abandon() error {
	s.cancelled.Store(true)

	s.connMu.Lock()
	conn := s.conn
	s.conn = nil
	s.connMu.Unlock()

	if conn == nil {
		return nil
	}
	if err := conn.Close(); err != nil {
		return fmt.Errorf("failed to close deepgram websocket: %w", err)
	}
	<-s.done
	return nil
}

func (s *utteranceSession) readAndProcessMessages(conn *websocket.Conn) {
	defer close(s.done)

	accumulated := ""
	for {
		msgType, msg, err := conn.ReadMessage()
		if err != nil {
			s.connMu.Lock()
			s.conn = nil
			s.connMu.Unlock()
			conn.Close()

			if s.cancelled.Load() {
				return
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				s.emit(speechtotext.Fragment{
					Utterance: s.seq,
					Text:      strings.TrimSpace(accumulated),
					IsFinal:   true,
				})
				return
			}

			log.Println("Failed to read deepgram websocket message", "error", err)
			s.emit(speechtotext.Fragment{
				Utterance: s.seq,
				Err:       fmt.Errorf("recognition stream failed: %w", err),
			})
			return
		}
		if msgType == websocket.BinaryMessage {
			continue
		}

		accumulated = s.processMessage(msg, accumulated)
	}
}

// processMessage folds one recognizer message into the accumulated
// transcript and reports partial fragments along the way.
func (s *utteranceSession) processMessage(msg []byte, accumulated string) string {
	var parsedMsg struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(msg, &parsedMsg); err != nil {
		log.Println("Failed to unmarshal deepgram message", "error", err)
		return accumulated
	}

	if api.TypeResponse(parsedMsg.Type) != api.TypeMessageResponse {
		return accumulated
	}

	var msgResp api.MessageResponse
	if err := json.Unmarshal(msg, &msgResp); err != nil {
		log.Println("Failed to unmarshal deepgram message", err)
		return accumulated
	}
	if len(msgResp.Channel.Alternatives) == 0 {
		return accumulated
	}

	transcript := strings.TrimSpace(msgResp.Channel.Alternatives[0].Transcript)
	if len(transcript) == 0 {
		return accumulated
	}

	if msgResp.IsFinal {
		accumulated = strings.TrimSpace(accumulated + " " + transcript)
		s.emit(speechtotext.Fragment{Utterance: s.seq, Text: accumulated})
		return accumulated
	}

	s.emit(speechtotext.Fragment{
		Utterance: s.seq,
		Text:      strings.TrimSpace(accumulated + " " + transcript),
	})
	return accumulated
}

func (s *utteranceSession) emit(fragment speechtotext.Fragment) {
	if s.cancelled.Load() {
		return
	}
	s.options.FragmentCallback(fragment)
}
