// Package videocall defines the contracts for video avatar call backends.
//
// A backend plays two roles. The API creates and ends hosted avatar
// conversations (one per call). The SignalChannel is a realtime connection
// into a running conversation room over which the orchestrator pushes echo
// and interrupt app-messages and receives the room's inbound app-messages.
//
// All implementations must be safe for concurrent use.
package videocall

import "context"

// CreateRequest describes the conversation to create.
type CreateRequest struct {
	// ReplicaID selects the avatar's visual replica.
	ReplicaID string

	// PersonaID selects the avatar's persona.
	PersonaID string

	// ConversationName labels the conversation on the backend.
	ConversationName string

	// Context is the conversational context the avatar is primed with,
	// typically the transcript of the chat so far.
	Context string

	// Greeting is spoken by the avatar as soon as the user joins.
	Greeting string

	// Language is the BCP-47-ish language tag the avatar speaks in.
	Language string
}

// Conversation is a created avatar conversation.
type Conversation struct {
	// ID is the backend's conversation identifier.
	ID string `json:"conversation_id"`

	// URL is the room URL the user's client joins.
	URL string `json:"conversation_url"`

	// Status is the backend's lifecycle status string.
	Status string `json:"status"`
}

// AppMessage is one inbound app-message received on the signal channel.
// Messages are forwarded verbatim; interpreting them is the caller's business.
type AppMessage struct {
	MessageType    string         `json:"message_type"`
	EventType      string         `json:"event_type"`
	ConversationID string         `json:"conversation_id"`
	Properties     map[string]any `json:"properties,omitempty"`
}

// API creates and ends avatar conversations.
type API interface {
	// CreateConversation provisions a new conversation room. The returned
	// Conversation carries the identifier and join URL.
	CreateConversation(ctx context.Context, req CreateRequest) (Conversation, error)

	// EndConversation tears the conversation down on the backend. Ending an
	// already-ended conversation is not an error.
	EndConversation(ctx context.Context, conversationID string) error
}

// SignalChannel is a realtime connection into a running conversation room.
//
// Sends are fire-and-forget from the caller's perspective: a returned error
// means the message definitely did not go out, but no delivery confirmation
// exists. Callers must call Close when the call ends.
type SignalChannel interface {
	// SendEcho instructs the avatar to speak the given text verbatim.
	SendEcho(ctx context.Context, conversationID, text string) error

	// SendInterrupt cuts off the avatar's current utterance.
	SendInterrupt(ctx context.Context, conversationID string) error

	// AppMessages returns a read-only channel of inbound app-messages. The
	// channel is closed when the connection ends; consumers must drain it.
	AppMessages() <-chan AppMessage

	// Close terminates the connection and closes the AppMessages channel.
	// Calling Close more than once is safe and returns nil.
	Close() error
}

// SignalDialer opens a signal channel into a created conversation.
type SignalDialer interface {
	// OpenSignalChannel connects to the conversation's room. The caller owns
	// the returned channel and is responsible for calling Close.
	OpenSignalChannel(ctx context.Context, conv Conversation) (SignalChannel, error)
}
