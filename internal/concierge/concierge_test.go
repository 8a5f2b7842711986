package concierge_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/real-business/concierge/internal/call"
	"github.com/real-business/concierge/internal/chat"
	"github.com/real-business/concierge/internal/concierge"
	"github.com/real-business/concierge/internal/config"
	"github.com/real-business/concierge/pkg/provider/chatapi"
	chatmock "github.com/real-business/concierge/pkg/provider/chatapi/mock"
	"github.com/real-business/concierge/pkg/provider/directory"
	dirmock "github.com/real-business/concierge/pkg/provider/directory/mock"
	speechmock "github.com/real-business/concierge/pkg/provider/speech/mock"
	translatemock "github.com/real-business/concierge/pkg/provider/translate/mock"
	"github.com/real-business/concierge/pkg/provider/videocall"
	videomock "github.com/real-business/concierge/pkg/provider/videocall/mock"
)

// waitFor polls cond until it holds or the deadline expires.
func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Assistant.BaseURL = "https://api.example.com"
	cfg.Widget.BrandName = "Growth Hub"
	cfg.Widget.PersonaName = "Personal AI Concierge"
	cfg.Widget.WelcomeMessage = "Hello!"
	cfg.Widget.VoiceMode = true
	return cfg
}

func okResponse(text, sessionID string) chatapi.Response {
	return chatapi.Response{
		Success: true,
		Data:    &chatapi.Data{Message: text, SessionID: sessionID},
	}
}

func newConcierge(t *testing.T, cfg *config.Config, providers *concierge.Providers) *concierge.Concierge {
	t.Helper()
	c, err := concierge.New(context.Background(), cfg, providers)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { c.Close(context.Background()) })
	return c
}

func TestNew_RequiresChatClient(t *testing.T) {
	if _, err := concierge.New(context.Background(), testConfig(), nil); err == nil {
		t.Error("nil providers should fail")
	}
	if _, err := concierge.New(context.Background(), testConfig(), &concierge.Providers{}); err == nil {
		t.Error("nil chat client should fail")
	}
}

func TestNew_SelectsAllowlistedAvatar(t *testing.T) {
	dir := &dirmock.Client{Profiles: []directory.AvatarProfile{
		{AvatarID: "1", Name: "Nora", ExternalID: "ext-other"},
		{AvatarID: "2", Name: "Ava", ExternalID: "r397c808f1cf"},
	}}
	c := newConcierge(t, testConfig(), &concierge.Providers{
		Chat:      &chatmock.Client{},
		Directory: dir,
	})

	if got := c.Avatar().Name; got != "Ava" {
		t.Errorf("avatar name = %q, want Ava", got)
	}
	if dir.Calls() != 1 {
		t.Errorf("directory calls = %d, want 1", dir.Calls())
	}
}

func TestNew_DirectoryFailureFallsBack(t *testing.T) {
	dir := &dirmock.Client{Err: errors.New("boom")}
	c := newConcierge(t, testConfig(), &concierge.Providers{
		Chat:      &chatmock.Client{},
		Directory: dir,
	})

	// The fallback identity carries the persona name.
	if got := c.Avatar().Name; got != "Personal AI Concierge" {
		t.Errorf("avatar name = %q, want the persona name", got)
	}
	if c.Avatar().ExternalID != "" {
		t.Errorf("external id = %q, want empty", c.Avatar().ExternalID)
	}
}

func TestOpen_AppendsGreeting(t *testing.T) {
	client := &chatmock.Client{CompleteResult: okResponse("Welcome aboard!", "s-1")}
	c := newConcierge(t, testConfig(), &concierge.Providers{Chat: client})

	c.Open(context.Background())

	snap := c.Snapshot()
	if len(snap.Messages) != 1 || snap.Messages[0].Text != "Welcome aboard!" {
		t.Fatalf("messages = %+v, want one greeting", snap.Messages)
	}
	if snap.SessionID != "s-1" {
		t.Errorf("session id = %q, want s-1", snap.SessionID)
	}
	if reqs := client.Requests(); len(reqs) != 1 || reqs[0].Input != "I am user" {
		t.Errorf("requests = %+v, want one welcome turn", reqs)
	}
}

func TestSubmitTurn_BusyWhileInFlight(t *testing.T) {
	release := make(chan struct{})
	client := &chatmock.Client{
		CompleteFunc: func(context.Context, chatapi.Request) (chatapi.Response, error) {
			<-release
			return okResponse("done", "s-1"), nil
		},
	}
	c := newConcierge(t, testConfig(), &concierge.Providers{Chat: client})

	go c.SubmitTurn(context.Background(), "first")
	waitFor(t, func() bool { return c.Snapshot().Loading }, "first turn never started")

	if err := c.SubmitTurn(context.Background(), "second"); !errors.Is(err, concierge.ErrBusy) {
		t.Errorf("overlapping submit = %v, want ErrBusy", err)
	}
	close(release)
	waitFor(t, func() bool { return !c.Snapshot().Loading }, "first turn never finished")
}

func TestContinue_SendsSentinel(t *testing.T) {
	client := &chatmock.Client{CompleteResult: okResponse("Let's begin.", "s-1")}
	c := newConcierge(t, testConfig(), &concierge.Providers{Chat: client})

	if err := c.Continue(context.Background()); err != nil {
		t.Fatalf("Continue: %v", err)
	}

	reqs := client.Requests()
	if len(reqs) != 1 {
		t.Fatalf("requests = %d, want 1", len(reqs))
	}
	want := "yes, continueStart the interview. User clicked continue."
	if reqs[0].Input != want {
		t.Errorf("prompt = %q, want %q", reqs[0].Input, want)
	}
	snap := c.Snapshot()
	if snap.Messages[0].Text != "Yes" {
		t.Errorf("displayed input = %q, want Yes", snap.Messages[0].Text)
	}
	if snap.Flags.ShowContinue {
		t.Error("continue affordance should clear on use")
	}
}

func TestSpokenText_BecomesChatTurn(t *testing.T) {
	client := &chatmock.Client{CompleteResult: okResponse("Noted.", "s-1")}
	recognizer := &speechmock.Recognizer{}
	c := newConcierge(t, testConfig(), &concierge.Providers{
		Chat:   client,
		Speech: recognizer,
	})

	c.SetMicActive(context.Background(), true)
	waitFor(t, func() bool { return len(recognizer.Sessions()) == 1 }, "no recognition session")

	recognizer.Sessions()[0].EmitFinal("I need a test kit")

	waitFor(t, func() bool { return len(client.Requests()) == 1 }, "utterance never reached the backend")
	if got := client.Requests()[0].Input; got != "I need a test kit" {
		t.Errorf("input = %q, want the utterance", got)
	}
	waitFor(t, func() bool {
		msgs := c.Snapshot().Messages
		return len(msgs) == 2 && msgs[1].Text == "Noted."
	}, "reply never appended")
	if c.Snapshot().Speaking {
		t.Error("microphone should be released after the utterance")
	}
}

func TestCallFlow_ScriptRelayedAsEcho(t *testing.T) {
	client := &chatmock.Client{CompleteResult: okResponse("**Here is** your plan", "s-1")}
	api := &videomock.API{
		CreateResult: videocall.Conversation{ID: "c1", URL: "https://room", Status: "active"},
		Channel:      videomock.NewSignalChannel(),
	}
	c := newConcierge(t, testConfig(), &concierge.Providers{
		Chat:   client,
		Video:  api,
		Signal: api,
	})

	c.StartCall(context.Background())
	if got := c.Screen(); got != call.ScreenHairCheck {
		t.Fatalf("screen = %q, want hairCheck", got)
	}
	c.SetDeviceState(true, true)
	if err := c.JoinCall(); err != nil {
		t.Fatalf("JoinCall: %v", err)
	}

	if err := c.SubmitTurn(context.Background(), "what's my plan?"); err != nil {
		t.Fatalf("SubmitTurn: %v", err)
	}

	waitFor(t, func() bool { return len(api.Channel.Echoes()) == 1 }, "script never relayed")
	if got := api.Channel.Echoes()[0]; got != "Here is your plan" {
		t.Errorf("echo = %q, want the sanitized script", got)
	}
}

func TestEndCall_ReleasesMicrophone(t *testing.T) {
	api := &videomock.API{
		CreateResult: videocall.Conversation{ID: "c1", URL: "https://room"},
		Channel:      videomock.NewSignalChannel(),
	}
	recognizer := &speechmock.Recognizer{}
	c := newConcierge(t, testConfig(), &concierge.Providers{
		Chat:   &chatmock.Client{},
		Video:  api,
		Signal: api,
		Speech: recognizer,
	})

	c.StartCall(context.Background())
	c.SetDeviceState(true, true)
	if err := c.JoinCall(); err != nil {
		t.Fatalf("JoinCall: %v", err)
	}
	c.SetMicActive(context.Background(), true)
	waitFor(t, func() bool { return len(recognizer.Sessions()) == 1 }, "no recognition session")

	c.EndCall(context.Background())

	waitFor(t, func() bool { return recognizer.Sessions()[0].Closed() }, "session not closed after call end")
	if c.Snapshot().ConversationStarted {
		t.Error("conversation should be over")
	}
}

func TestStartCall_NoBackendIsNoop(t *testing.T) {
	c := newConcierge(t, testConfig(), &concierge.Providers{Chat: &chatmock.Client{}})

	c.StartCall(context.Background())

	if got := c.Screen(); got != call.ScreenWelcome {
		t.Errorf("screen = %q, want welcome", got)
	}
}

func TestSetLanguage_ResetsAndReopens(t *testing.T) {
	client := &chatmock.Client{CompleteResult: okResponse("¡Hola!", "s-2")}
	c := newConcierge(t, testConfig(), &concierge.Providers{
		Chat:       client,
		Translator: &translatemock.Translator{},
	})

	c.Open(context.Background())
	if err := c.SubmitTurn(context.Background(), "hi"); err != nil {
		t.Fatalf("SubmitTurn: %v", err)
	}

	c.SetLanguage(context.Background(), "Spanish")

	snap := c.Snapshot()
	if snap.Language != "es" {
		t.Errorf("language = %q, want es", snap.Language)
	}
	// The old conversation is gone; only the fresh greeting remains.
	if len(snap.Messages) != 1 || snap.Messages[0].Text != "¡Hola!" {
		t.Errorf("messages = %+v, want one fresh greeting", snap.Messages)
	}
	if snap.SessionID != "s-2" {
		t.Errorf("session id = %q, want the fresh one", snap.SessionID)
	}
	if got := c.Bundle().SendButton; got != "es:Send" {
		t.Errorf("send button = %q, want the translated string", got)
	}

	// Welcome turns: one from Open, one from the language switch.
	var welcomes int
	for _, req := range client.Requests() {
		if req.Input == "I am user" {
			welcomes++
		}
	}
	if welcomes != 2 {
		t.Errorf("welcome turns = %d, want 2", welcomes)
	}
}

func TestFeedback_UnknownMessage(t *testing.T) {
	c := newConcierge(t, testConfig(), &concierge.Providers{Chat: &chatmock.Client{}})
	if err := c.Feedback(context.Background(), "nope", chat.FeedbackLike); err == nil {
		t.Error("unknown message id should fail")
	}
}

func TestClose_Idempotent(t *testing.T) {
	c, err := concierge.New(context.Background(), testConfig(), &concierge.Providers{Chat: &chatmock.Client{}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := c.Close(context.Background()); err != nil {
		t.Errorf("Close: %v", err)
	}
	if err := c.Close(context.Background()); err != nil {
		t.Errorf("second Close: %v", err)
	}
}
