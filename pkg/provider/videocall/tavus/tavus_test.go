package tavus_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/real-business/concierge/pkg/provider/videocall"
	"github.com/real-business/concierge/pkg/provider/videocall/tavus"
)

// wsURL converts an httptest server HTTP URL to a WebSocket URL.
func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

// startSignalServer launches a test WebSocket server for the signal channel.
func startSignalServer(t *testing.T, handler func(conn *websocket.Conn, r *http.Request)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			InsecureSkipVerify: true,
		})
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "done")
		handler(conn, r)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func readJSON(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("readJSON: %v", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		t.Fatalf("readJSON unmarshal: %v", err)
	}
}

func TestNew_EmptyAPIKey(t *testing.T) {
	t.Parallel()
	if _, err := tavus.New(""); err == nil {
		t.Fatal("New(\"\") should fail")
	}
}

func TestCreateConversation(t *testing.T) {
	t.Parallel()

	var (
		gotPath   string
		gotAPIKey string
		gotBody   map[string]any
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAPIKey = r.Header.Get("x-api-key")
		json.NewDecoder(r.Body).Decode(&gotBody)
		json.NewEncoder(w).Encode(map[string]string{
			"conversation_id":  "c123",
			"conversation_url": "https://rooms.example.com/c123",
			"status":           "active",
		})
	}))
	t.Cleanup(srv.Close)

	client, err := tavus.New("secret", tavus.WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	conv, err := client.CreateConversation(context.Background(), videocall.CreateRequest{
		ReplicaID:        "r82081c7f26d",
		PersonaID:        "pc9cb547c05e",
		ConversationName: "concierge-1",
		Context:          "User: Hello",
		Greeting:         "Hello there!",
		Language:         "es",
	})
	if err != nil {
		t.Fatalf("CreateConversation: %v", err)
	}

	if conv.ID != "c123" || conv.URL != "https://rooms.example.com/c123" {
		t.Errorf("conversation = %+v", conv)
	}
	if gotPath != "/conversations" {
		t.Errorf("path = %q, want /conversations", gotPath)
	}
	if gotAPIKey != "secret" {
		t.Errorf("x-api-key = %q, want secret", gotAPIKey)
	}
	if gotBody["replica_id"] != "r82081c7f26d" || gotBody["persona_id"] != "pc9cb547c05e" {
		t.Errorf("body ids = %v / %v", gotBody["replica_id"], gotBody["persona_id"])
	}
	props, ok := gotBody["properties"].(map[string]any)
	if !ok {
		t.Fatalf("body properties missing: %v", gotBody)
	}
	if props["enable_recording"] != false {
		t.Error("enable_recording must be false")
	}
	if props["participant_absent_timeout"] != float64(180) {
		t.Errorf("participant_absent_timeout = %v, want 180", props["participant_absent_timeout"])
	}
	if props["language"] != "es" {
		t.Errorf("language = %v, want es", props["language"])
	}
}

func TestCreateConversation_ErrorStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"invalid replica"}`, http.StatusBadRequest)
	}))
	t.Cleanup(srv.Close)

	client, _ := tavus.New("secret", tavus.WithBaseURL(srv.URL))
	_, err := client.CreateConversation(context.Background(), videocall.CreateRequest{ReplicaID: "bogus"})
	if err == nil {
		t.Fatal("CreateConversation should fail on a 400")
	}
	if !strings.Contains(err.Error(), "status 400") {
		t.Errorf("err = %v, want status in message", err)
	}
}

func TestEndConversation(t *testing.T) {
	t.Parallel()

	var gotPath, gotMethod string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotMethod = r.Method
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	client, _ := tavus.New("secret", tavus.WithBaseURL(srv.URL))
	if err := client.EndConversation(context.Background(), "c123"); err != nil {
		t.Fatalf("EndConversation: %v", err)
	}
	if gotPath != "/conversations/c123/end" || gotMethod != http.MethodPost {
		t.Errorf("request = %s %s", gotMethod, gotPath)
	}
}

func TestEndConversation_AlreadyEnded(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(srv.Close)

	client, _ := tavus.New("secret", tavus.WithBaseURL(srv.URL))
	if err := client.EndConversation(context.Background(), "gone"); err != nil {
		t.Errorf("a 404 on end should be swallowed, got %v", err)
	}
}

func TestEndConversation_EmptyID(t *testing.T) {
	t.Parallel()
	client, _ := tavus.New("secret", tavus.WithBaseURL("http://unreachable.invalid"))
	if err := client.EndConversation(context.Background(), ""); err != nil {
		t.Errorf("empty id should be a no-op, got %v", err)
	}
}

func TestSignalChannel_SendEcho(t *testing.T) {
	t.Parallel()

	frames := make(chan map[string]any, 4)
	srv := startSignalServer(t, func(conn *websocket.Conn, r *http.Request) {
		for i := 0; i < 2; i++ {
			var raw map[string]any
			readJSON(t, conn, &raw)
			frames <- raw
		}
	})

	client, _ := tavus.New("secret",
		tavus.WithSignalURL(func(videocall.Conversation) string { return wsURL(srv) }))

	ch, err := client.OpenSignalChannel(context.Background(), videocall.Conversation{ID: "c1"})
	if err != nil {
		t.Fatalf("OpenSignalChannel: %v", err)
	}
	defer ch.Close()

	if err := ch.SendEcho(context.Background(), "c1", "Hello there."); err != nil {
		t.Fatalf("SendEcho: %v", err)
	}
	if err := ch.SendInterrupt(context.Background(), "c1"); err != nil {
		t.Fatalf("SendInterrupt: %v", err)
	}

	echo := <-frames
	if echo["message_type"] != "conversation" || echo["event_type"] != "conversation.echo" {
		t.Errorf("echo frame = %v", echo)
	}
	if echo["conversation_id"] != "c1" {
		t.Errorf("echo conversation_id = %v", echo["conversation_id"])
	}
	props, _ := echo["properties"].(map[string]any)
	if props["modality"] != "text" || props["text"] != "Hello there." {
		t.Errorf("echo properties = %v", props)
	}

	interrupt := <-frames
	if interrupt["event_type"] != "conversation.interrupt" {
		t.Errorf("interrupt frame = %v", interrupt)
	}
	if _, hasProps := interrupt["properties"]; hasProps {
		t.Error("interrupt frame should carry no properties")
	}
}

func TestSignalChannel_InboundMessages(t *testing.T) {
	t.Parallel()

	srv := startSignalServer(t, func(conn *websocket.Conn, r *http.Request) {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		data, _ := json.Marshal(map[string]any{
			"message_type":    "conversation",
			"event_type":      "conversation.utterance",
			"conversation_id": "c1",
			"properties":      map[string]any{"speech": "hi"},
		})
		conn.Write(ctx, websocket.MessageText, data)
		<-conn.CloseRead(context.Background()).Done()
	})

	client, _ := tavus.New("secret",
		tavus.WithSignalURL(func(videocall.Conversation) string { return wsURL(srv) }))

	ch, err := client.OpenSignalChannel(context.Background(), videocall.Conversation{ID: "c1"})
	if err != nil {
		t.Fatalf("OpenSignalChannel: %v", err)
	}
	defer ch.Close()

	select {
	case msg := <-ch.AppMessages():
		if msg.EventType != "conversation.utterance" || msg.ConversationID != "c1" {
			t.Errorf("inbound message = %+v", msg)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for inbound app-message")
	}
}

func TestSignalChannel_CloseClosesInbound(t *testing.T) {
	t.Parallel()

	srv := startSignalServer(t, func(conn *websocket.Conn, r *http.Request) {
		<-conn.CloseRead(context.Background()).Done()
	})

	client, _ := tavus.New("secret",
		tavus.WithSignalURL(func(videocall.Conversation) string { return wsURL(srv) }))

	ch, err := client.OpenSignalChannel(context.Background(), videocall.Conversation{ID: "c1"})
	if err != nil {
		t.Fatalf("OpenSignalChannel: %v", err)
	}

	if err := ch.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := ch.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	select {
	case _, ok := <-ch.AppMessages():
		if ok {
			t.Error("expected closed channel, got a message")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for AppMessages to close")
	}
}
