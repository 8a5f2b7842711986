// Package tavus implements the videocall contracts for the Tavus CVI API.
//
// Conversations are managed over the Tavus REST API (x-api-key auth). The
// signal channel is a WebSocket connection into the conversation room over
// which conversation.echo and conversation.interrupt app-messages are sent
// as JSON text frames, mirroring the app-message shapes of the Tavus
// interactions protocol.
package tavus

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/coder/websocket"

	"github.com/real-business/concierge/pkg/provider/videocall"
)

// Compile-time assertions that Client and channel satisfy the videocall contracts.
var _ videocall.API = (*Client)(nil)
var _ videocall.SignalDialer = (*Client)(nil)
var _ videocall.SignalChannel = (*channel)(nil)

const defaultBaseURL = "https://tavusapi.com/v2"

// ── Options ────────────────────────────────────────────────────────────────────

// Option is a functional option for configuring a Client.
type Option func(*Client)

// WithBaseURL overrides the REST base URL. Primarily used in tests to point
// at a local mock server.
func WithBaseURL(url string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(url, "/") }
}

// WithHTTPClient overrides the HTTP client used for REST calls.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithSignalURL overrides how the signal WebSocket URL is derived from a
// conversation. The default rewrites the conversation URL's scheme to wss.
func WithSignalURL(fn func(conv videocall.Conversation) string) Option {
	return func(c *Client) { c.signalURL = fn }
}

// ── Client ─────────────────────────────────────────────────────────────────────

// Client talks to the Tavus CVI API.
type Client struct {
	apiKey    string
	baseURL   string
	http      *http.Client
	signalURL func(conv videocall.Conversation) string
}

// New creates a Tavus client with the given API key and options.
func New(apiKey string, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("tavus: api key must not be empty")
	}
	c := &Client{
		apiKey:    apiKey,
		baseURL:   defaultBaseURL,
		http:      http.DefaultClient,
		signalURL: roomSignalURL,
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// roomSignalURL derives the room's WebSocket endpoint from its join URL.
func roomSignalURL(conv videocall.Conversation) string {
	u := conv.URL
	u = strings.Replace(u, "https://", "wss://", 1)
	u = strings.Replace(u, "http://", "ws://", 1)
	return u
}

// createConversationBody is the POST /conversations request payload.
type createConversationBody struct {
	ReplicaID             string                 `json:"replica_id"`
	PersonaID             string                 `json:"persona_id,omitempty"`
	ConversationName      string                 `json:"conversation_name,omitempty"`
	ConversationalContext string                 `json:"conversational_context,omitempty"`
	CustomGreeting        string                 `json:"custom_greeting,omitempty"`
	Properties            conversationProperties `json:"properties"`
}

type conversationProperties struct {
	EnableRecording          bool   `json:"enable_recording"`
	ParticipantAbsentTimeout int    `json:"participant_absent_timeout"`
	Language                 string `json:"language,omitempty"`
}

// CreateConversation provisions a new avatar conversation room. Recording is
// always disabled and absent participants end the room after three minutes.
func (c *Client) CreateConversation(ctx context.Context, req videocall.CreateRequest) (videocall.Conversation, error) {
	body := createConversationBody{
		ReplicaID:             req.ReplicaID,
		PersonaID:             req.PersonaID,
		ConversationName:      req.ConversationName,
		ConversationalContext: req.Context,
		CustomGreeting:        req.Greeting,
		Properties: conversationProperties{
			EnableRecording:          false,
			ParticipantAbsentTimeout: 180,
			Language:                 req.Language,
		},
	}

	data, err := json.Marshal(body)
	if err != nil {
		return videocall.Conversation{}, fmt.Errorf("tavus: marshal create request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/conversations", bytes.NewReader(data))
	if err != nil {
		return videocall.Conversation{}, fmt.Errorf("tavus: build create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return videocall.Conversation{}, fmt.Errorf("tavus: create conversation: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return videocall.Conversation{}, fmt.Errorf("tavus: create conversation: status %d: %s",
			resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	var conv videocall.Conversation
	if err := json.NewDecoder(resp.Body).Decode(&conv); err != nil {
		return videocall.Conversation{}, fmt.Errorf("tavus: decode conversation: %w", err)
	}
	if conv.ID == "" {
		return videocall.Conversation{}, fmt.Errorf("tavus: conversation response missing conversation_id")
	}
	return conv, nil
}

// EndConversation tears the conversation down. A 4xx response is treated as
// already-ended and ignored.
func (c *Client) EndConversation(ctx context.Context, conversationID string) error {
	if conversationID == "" {
		return nil
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/conversations/"+conversationID+"/end", nil)
	if err != nil {
		return fmt.Errorf("tavus: build end request: %w", err)
	}
	httpReq.Header.Set("x-api-key", c.apiKey)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return fmt.Errorf("tavus: end conversation: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))

	if resp.StatusCode >= 500 {
		return fmt.Errorf("tavus: end conversation: status %d", resp.StatusCode)
	}
	return nil
}

// OpenSignalChannel connects to the conversation's room WebSocket.
func (c *Client) OpenSignalChannel(ctx context.Context, conv videocall.Conversation) (videocall.SignalChannel, error) {
	conn, _, err := websocket.Dial(ctx, c.signalURL(conv), &websocket.DialOptions{
		HTTPHeader: http.Header{"x-api-key": []string{c.apiKey}},
	})
	if err != nil {
		return nil, fmt.Errorf("tavus: dial signal channel: %w", err)
	}

	chCtx, chCancel := context.WithCancel(context.Background())
	ch := &channel{
		conn:    conn,
		inbound: make(chan videocall.AppMessage, 32),
		ctx:     chCtx,
		cancel:  chCancel,
	}
	go ch.receiveLoop()
	return ch, nil
}

// ── channel ────────────────────────────────────────────────────────────────────

// appMessage is the outbound app-message frame.
type appMessage struct {
	MessageType    string                `json:"message_type"`
	EventType      string                `json:"event_type"`
	ConversationID string                `json:"conversation_id"`
	Properties     *appMessageProperties `json:"properties,omitempty"`
}

type appMessageProperties struct {
	Modality string `json:"modality,omitempty"`
	Text     string `json:"text,omitempty"`
}

type channel struct {
	conn    *websocket.Conn
	inbound chan videocall.AppMessage

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
	writeMu   sync.Mutex
}

// SendEcho instructs the avatar to speak text verbatim.
func (ch *channel) SendEcho(ctx context.Context, conversationID, text string) error {
	return ch.writeJSON(ctx, appMessage{
		MessageType:    "conversation",
		EventType:      "conversation.echo",
		ConversationID: conversationID,
		Properties:     &appMessageProperties{Modality: "text", Text: text},
	})
}

// SendInterrupt cuts off the avatar's current utterance.
func (ch *channel) SendInterrupt(ctx context.Context, conversationID string) error {
	return ch.writeJSON(ctx, appMessage{
		MessageType:    "conversation",
		EventType:      "conversation.interrupt",
		ConversationID: conversationID,
	})
}

// AppMessages returns the inbound app-message channel.
func (ch *channel) AppMessages() <-chan videocall.AppMessage { return ch.inbound }

// Close terminates the connection. Safe to call more than once.
func (ch *channel) Close() error {
	ch.closeOnce.Do(func() {
		ch.cancel()
		ch.conn.Close(websocket.StatusNormalClosure, "call ended")
	})
	return nil
}

func (ch *channel) writeJSON(ctx context.Context, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("tavus: marshal app-message: %w", err)
	}
	ch.writeMu.Lock()
	defer ch.writeMu.Unlock()
	if err := ch.conn.Write(ctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("tavus: send app-message: %w", err)
	}
	return nil
}

// receiveLoop forwards inbound app-messages until the connection ends.
// It owns the inbound channel and closes it on exit.
func (ch *channel) receiveLoop() {
	defer close(ch.inbound)

	for {
		_, data, err := ch.conn.Read(ch.ctx)
		if err != nil {
			return
		}

		var msg videocall.AppMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}

		select {
		case ch.inbound <- msg:
		case <-ch.ctx.Done():
			return
		}
	}
}
