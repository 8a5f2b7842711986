// Package azure implements the speech.Recognizer contract over the Azure
// Speech websocket endpoint. Audio chunks are sent as binary frames; the
// service replies with JSON text frames carrying hypothesis and phrase
// results, which are mapped onto partial and final transcripts.
package azure

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"

	"github.com/coder/websocket"

	"github.com/real-business/concierge/pkg/provider/speech"
)

// Compile-time assertions that Recognizer and session satisfy the speech contracts.
var _ speech.Recognizer = (*Recognizer)(nil)
var _ speech.SessionHandle = (*session)(nil)

const (
	endpointFormat = "wss://%s.stt.speech.microsoft.com/speech/recognition/conversation/cognitiveservices/v1"
	defaultLocale  = "en-US"
)

// Option is a functional option for configuring a Recognizer.
type Option func(*Recognizer)

// WithEndpoint overrides the websocket endpoint. Primarily used in tests to
// point at a local mock server.
func WithEndpoint(endpoint string) Option {
	return func(r *Recognizer) { r.endpoint = endpoint }
}

// Recognizer implements speech.Recognizer against the Azure Speech service.
type Recognizer struct {
	key      string
	endpoint string
}

// New creates a Recognizer for the given subscription key and service region.
func New(key, region string, opts ...Option) (*Recognizer, error) {
	if key == "" {
		return nil, errors.New("azure: subscription key must not be empty")
	}
	if region == "" {
		return nil, errors.New("azure: region must not be empty")
	}
	r := &Recognizer{
		key:      key,
		endpoint: fmt.Sprintf(endpointFormat, region),
	}
	for _, o := range opts {
		o(r)
	}
	return r, nil
}

// StartSession opens a streaming recognition session for cfg.Locale.
func (r *Recognizer) StartSession(ctx context.Context, cfg speech.SessionConfig) (speech.SessionHandle, error) {
	u, err := url.Parse(r.endpoint)
	if err != nil {
		return nil, fmt.Errorf("azure: parse endpoint: %w", err)
	}
	locale := cfg.Locale
	if locale == "" {
		locale = defaultLocale
	}
	q := u.Query()
	q.Set("language", locale)
	q.Set("format", "simple")
	u.RawQuery = q.Encode()

	conn, _, err := websocket.Dial(ctx, u.String(), &websocket.DialOptions{
		HTTPHeader: http.Header{
			"Ocp-Apim-Subscription-Key": []string{r.key},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("azure: dial: %w", err)
	}

	sessCtx, sessCancel := context.WithCancel(context.Background())
	sess := &session{
		conn:     conn,
		partials: make(chan speech.Transcript, 64),
		finals:   make(chan speech.Transcript, 16),
		events:   make(chan speech.SessionEvent, 4),
		ctx:      sessCtx,
		cancel:   sessCancel,
	}
	go sess.readLoop()
	return sess, nil
}

// azureFrame is one JSON result frame from the service.
//
// Hypothesis frames carry Text; phrase frames carry RecognitionStatus plus
// DisplayText on success.
type azureFrame struct {
	RecognitionStatus string  `json:"RecognitionStatus,omitempty"`
	DisplayText       string  `json:"DisplayText,omitempty"`
	Text              string  `json:"Text,omitempty"`
	Confidence        float64 `json:"Confidence,omitempty"`
}

type session struct {
	conn     *websocket.Conn
	partials chan speech.Transcript
	finals   chan speech.Transcript
	events   chan speech.SessionEvent

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
	writeMu   sync.Mutex
}

// SendAudio delivers a PCM chunk as a binary frame.
func (s *session) SendAudio(chunk []byte) error {
	if s.ctx.Err() != nil {
		return errors.New("azure: session is closed")
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.conn.Write(s.ctx, websocket.MessageBinary, chunk); err != nil {
		return fmt.Errorf("azure: send audio: %w", err)
	}
	return nil
}

// Partials returns the channel of interim transcripts.
func (s *session) Partials() <-chan speech.Transcript { return s.partials }

// Finals returns the channel of authoritative transcripts.
func (s *session) Finals() <-chan speech.Transcript { return s.finals }

// Events returns the channel of lifecycle events.
func (s *session) Events() <-chan speech.SessionEvent { return s.events }

// Close terminates the session. Safe to call more than once.
func (s *session) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		s.conn.Close(websocket.StatusNormalClosure, "session closed")
	})
	return nil
}

// readLoop parses result frames until the connection ends. It owns the
// output channels and closes them on exit.
func (s *session) readLoop() {
	defer func() {
		close(s.partials)
		close(s.finals)
		close(s.events)
	}()

	for {
		_, data, err := s.conn.Read(s.ctx)
		if err != nil {
			if s.ctx.Err() == nil {
				s.emitEvent(speech.SessionEvent{Kind: speech.EventCanceled, Reason: err.Error()})
			}
			return
		}

		var frame azureFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			continue
		}
		s.dispatch(frame)
	}
}

func (s *session) dispatch(frame azureFrame) {
	switch frame.RecognitionStatus {
	case "":
		// Hypothesis frame: interim text while the user speaks.
		if frame.Text == "" {
			return
		}
		s.emit(s.partials, speech.Transcript{
			Text:       frame.Text,
			Confidence: frame.Confidence,
		})

	case "Success":
		s.emit(s.finals, speech.Transcript{
			Text:       frame.DisplayText,
			Confidence: frame.Confidence,
			IsFinal:    true,
		})

	case "EndOfDictation", "InitialSilenceTimeout", "BabbleTimeout":
		s.emitEvent(speech.SessionEvent{Kind: speech.EventStopped, Reason: frame.RecognitionStatus})

	case "Error":
		s.emitEvent(speech.SessionEvent{Kind: speech.EventCanceled, Reason: frame.RecognitionStatus})
	}
}

func (s *session) emit(ch chan speech.Transcript, t speech.Transcript) {
	select {
	case ch <- t:
	case <-s.ctx.Done():
	}
}

func (s *session) emitEvent(ev speech.SessionEvent) {
	select {
	case s.events <- ev:
	case <-s.ctx.Done():
	}
}
