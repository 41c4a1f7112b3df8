package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strconv"

	"github.com/gorilla/websocket"

	"github.com/rtvoicechat/core/core/audio"
	"github.com/rtvoicechat/core/core/texttospeech"
)

// streamingRequest is one speech generation session. Text is paced through
// the websocket one mark segment at a time: Deepgram drops text sent right
// after a flush, so the next segment only goes out once the Flushed
// confirmation for the previous one arrives.
type streamingRequest struct {
	session sessionState

	options streamingRequestOptions
}

type streamingRequestOptions struct {
	texttospeech.TextToSpeechOptions
	Voice Voice
}

func (c *TextToSpeechClient) NewSpeechGenerator(ctx context.Context, opts ...texttospeech.TextToSpeechOption) (texttospeech.SpeechGenerator, error) {
	req := &streamingRequest{
		options: streamingRequestOptions{
			TextToSpeechOptions: texttospeech.TextToSpeechOptions{
				SpeechAudioCallback: func([]byte) {},
				SpeechMarkCallback:  func(string) {},
				SpeechEndedCallback: func() {},
				ErrorCallback:       func(error) {},
				EncodingInfo:        audio.GetDefaultEncodingInfo(),
			},
			Voice: c.voice,
		},
	}
	for _, opt := range opts {
		opt(&req.options.TextToSpeechOptions)
	}

	ws, err := connectWebsocket(ctx, c.apiKey, req.options.Voice, req.options.EncodingInfo)
	if err != nil {
		return nil, fmt.Errorf("failed to open websocket: %w", err)
	}
	req.session.ws = ws

	go req.processIncomingMessages()

	return req, nil
}

func connectWebsocket(ctx context.Context, apiKey string, voice Voice, encodingInfo audio.EncodingInfo) (*websocket.Conn, error) {
	urlValues := url.Values{}
	urlValues.Set("encoding", encodingInfo.Format.Name())
	urlValues.Set("sample_rate", strconv.Itoa(encodingInfo.SampleRate))
	urlValues.Set("model", string(voice))
	urlValues.Set("container", "none")

	conn, _, err := websocket.DefaultDialer.DialContext(ctx,
		(&url.URL{
			Scheme: "wss",
			Host:   "api.deepgram.com", Path: "/v1/speak",
			RawQuery: urlValues.Encode(),
		}).String(),
		http.Header{"Authorization": {"token " + apiKey}})
	if err != nil {
		return nil, fmt.Errorf("failed to open socket connection to deepgram: %w", err)
	}

	return conn, nil
}

func (r *streamingRequest) processIncomingMessages() {
	ws := r.session.ws
	for {
		msgType, msg, err := ws.ReadMessage()
		if err != nil {
			finished := r.session.teardown()
			if !finished {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
					r.options.ErrorCallback(fmt.Errorf("speech stream closed before synthesis finished"))
				} else {
					r.options.ErrorCallback(fmt.Errorf("speech stream failed: %w", err))
				}
			}
			return
		}

		switch msgType {
		case websocket.BinaryMessage:
			if len(msg) > 0 && !r.session.isDone() {
				r.options.SpeechAudioCallback(msg)
			}
		case websocket.TextMessage:
			var parsedMsg struct {
				Type string `json:"type"`
			}
			if err := json.Unmarshal(msg, &parsedMsg); err != nil {
				log.Printf("Failed to unmarshal deepgram message: %v", err)
				continue
			}

			if parsedMsg.Type == "Flushed" {
				r.onFlushed()
			}
		}
	}
}

// onFlushed confirms one mark segment, notifies the mark callback, and
// releases the next segment into the websocket.
func (r *streamingRequest) onFlushed() {
	segment, next, flushNext, finished := r.session.popSegment()
	if segment != nil {
		r.options.SpeechMarkCallback(*segment)
	}

	if finished {
		r.options.SpeechEndedCallback()
		_ = r.Close()
		return
	}

	if next != nil {
		if err := r.session.send(speakMsg(*next)); err != nil {
			r.options.ErrorCallback(fmt.Errorf("failed to send queued text: %w", err))
			return
		}
		if flushNext {
			if err := r.session.send(flushMsg); err != nil {
				r.options.ErrorCallback(fmt.Errorf("failed to flush queued text: %w", err))
			}
		}
	}
}

func (r *streamingRequest) SendText(text string) error {
	if err := r.session.checkOpenForText(); err != nil {
		return err
	}

	sendNow := r.session.appendText(text)
	if sendNow {
		if err := r.session.send(speakMsg(text)); err != nil {
			return fmt.Errorf("failed to send websocket speak message: %w", err)
		}
	}
	return nil
}

func (r *streamingRequest) Mark() error {
	if err := r.session.checkOpenForText(); err != nil {
		return err
	}

	flushNow := r.session.sealSegment()
	if flushNow {
		if err := r.session.send(flushMsg); err != nil {
			return fmt.Errorf("failed to send websocket flush message: %w", err)
		}
	}
	return nil
}

func (r *streamingRequest) EndOfText() error {
	alreadyDone, empty, flushNow := r.session.markTextComplete()
	if alreadyDone {
		return fmt.Errorf("speech generation already finished")
	}

	if empty {
		r.options.SpeechEndedCallback()
		return r.Close()
	}
	if flushNow {
		if err := r.session.send(flushMsg); err != nil {
			return fmt.Errorf("failed to send websocket flush message: %w", err)
		}
	}
	return nil
}

func (r *streamingRequest) Cancel() error {
	if !r.session.markCancelled() {
		return nil
	}

	if err := r.session.send(clearMsg); err != nil {
		return errors.Join(fmt.Errorf("failed to clear deepgram buffer: %w", err), r.Close())
	}
	return r.Close()
}

func (r *streamingRequest) Close() error {
	ws, wasOpen := r.session.markClosed()
	if !wasOpen {
		return nil
	}

	writeErr := ws.WriteJSON(closeMsg)
	if writeErr == nil {
		return nil
	}
	if closeErr := ws.Close(); closeErr != nil {
		return fmt.Errorf("failed to close websocket: %w", errors.Join(writeErr, closeErr))
	}
	return nil
}

type websocketMessage struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

var (
	flushMsg = websocketMessage{Type: "Flush"}
	clearMsg = websocketMessage{Type: "Clear"}
	closeMsg = websocketMessage{Type: "Close"}
)

func speakMsg(text string) websocketMessage {
	return websocketMessage{Type: "Speak", Text: text}
}
