// Package chat implements the chat turn controller: it owns the submit-turn
// routine against the completion backend, interprets replies for control
// signals, and updates the shared session state.
//
// The three-branch error handling that the UI variants used to duplicate per
// call site lives here once, with a fixed priority order: transport failure,
// then failed/empty envelope, then error-marked payload, then success.
package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/real-business/concierge/internal/observe"
	"github.com/real-business/concierge/internal/session"
	"github.com/real-business/concierge/pkg/provider/chatapi"
)

// User-facing error texts, one per failure branch.
const (
	msgConnectFailed = "Sorry, I couldn't connect to the AI service. Please try again later."
	msgProcessFailed = "Sorry, I couldn't process your request. Please try again."
	msgErrorReply    = "Sorry, I couldn't process your request at the moment. Please try again."
)

// continueInput is the sentinel input submitted when the user clicks the
// "Continue" affordance. It is displayed as "Yes" in the chat log.
const continueInput = "yes, continue"

// Prompt suffixes appended before calling the completion backend.
const (
	fileInstruction = "Summarize this file in 3–4 very simple sentences, " +
		"as if you are explaining to a 3rd grader. Only include the most " +
		"important points. Also, list anything in the file that should be " +
		"double-checked or reviewed."

	continueInstruction = "Start the interview. User clicked continue."
)

// defaultCourseTag labels history entries from the concierge flow.
const defaultCourseTag = "AIHealthNavigator"

// HistoryRecorder posts completed turns to the history-logging collaborator.
// Failures are logged by the controller and never surfaced to the user.
type HistoryRecorder interface {
	RecordTurn(ctx context.Context, rec TurnRecord) error
}

// TurnRecord is one completed turn as reported to the history backend.
type TurnRecord struct {
	UserID   string
	CourseID string
	Query    string
	Answer   string

	// Avatar reports whether the turn happened while a video call was live.
	Avatar bool

	// STT reports whether the input text came from speech recognition.
	STT bool
}

// TrainingRecorder posts per-message feedback to the model-training
// collaborator. Best-effort only.
type TrainingRecorder interface {
	RecordFeedback(ctx context.Context, input string, accepted bool) error
}

// FeedbackKind is a thumbs-up or thumbs-down on one assistant message.
type FeedbackKind string

const (
	FeedbackLike    FeedbackKind = "like"
	FeedbackDislike FeedbackKind = "dislike"
)

// Config holds all dependencies for a [Controller].
type Config struct {
	State  *session.State
	Client chatapi.Client

	// History and Training are optional; when nil the corresponding posts
	// are skipped.
	History  HistoryRecorder
	Training TrainingRecorder

	// Metrics defaults to [observe.DefaultMetrics] when nil.
	Metrics *observe.Metrics

	// UserID identifies the end user to the completion backend. May be
	// empty; the backend client substitutes its default identity.
	UserID string

	// CourseTag labels history entries. Defaults to "AIHealthNavigator".
	CourseTag string

	// PersonaName and BrandName feed the canned greeting used when the
	// welcome turn fails.
	PersonaName string
	BrandName   string
}

// Controller drives chat turns for one widget instance.
// All exported methods are safe for concurrent use, but callers are expected
// to gate concurrent submits on [session.State.Loading] — two overlapping
// turns on the same session are a caller error.
type Controller struct {
	state    *session.State
	client   chatapi.Client
	history  HistoryRecorder
	training TrainingRecorder
	metrics  *observe.Metrics

	userID      string
	courseTag   string
	personaName string
	brandName   string

	mu        sync.Mutex
	lastInput string
	feedback  map[string]FeedbackKind
}

// NewController creates a Controller with the given dependencies.
func NewController(cfg Config) *Controller {
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	courseTag := cfg.CourseTag
	if courseTag == "" {
		courseTag = defaultCourseTag
	}
	return &Controller{
		state:       cfg.State,
		client:      cfg.Client,
		history:     cfg.History,
		training:    cfg.Training,
		metrics:     metrics,
		userID:      cfg.UserID,
		courseTag:   courseTag,
		personaName: cfg.PersonaName,
		brandName:   cfg.BrandName,
		feedback:    make(map[string]FeedbackKind),
	}
}

// SubmitTurn performs one conversation turn: it appends the user's message
// to the chat log immediately, calls the completion backend, and writes the
// outcome back into the shared state. Additional files are queued as the
// turn's attachment, replacing any previously queued file; only the most
// recently queued file is ever sent.
//
// The loading flag is guaranteed to be false again on return, on every path.
func (c *Controller) SubmitTurn(ctx context.Context, input string, files ...session.File) {
	st := c.state

	// A fresh submit always dismisses the retry banner.
	st.UpdateFlags(func(f *session.Flags) { f.ShowRetry = false })

	displayText := input
	if input == continueInput {
		displayText = "Yes"
	}
	st.AppendMessage(session.NewMessage(session.SenderUser, displayText))

	c.mu.Lock()
	c.lastInput = input
	c.mu.Unlock()

	start := time.Now()
	st.SetLoading(true)
	defer st.SetLoading(false)
	defer func() {
		c.metrics.TurnDuration.Record(ctx, time.Since(start).Seconds())
	}()

	file := c.queueFile(files)

	prompt := input
	if file != nil {
		prompt += fileInstruction
	}
	if input == continueInput {
		prompt += continueInstruction
	}

	var attachment *chatapi.File
	if file != nil {
		attachment = &chatapi.File{
			Name:        file.Name,
			ContentType: file.ContentType,
			Data:        file.Data,
		}
	}

	resp, err := c.client.Complete(ctx, chatapi.Request{
		Input:     prompt,
		UserID:    c.userID,
		Intent:    chatapi.IntentInterview,
		SessionID: st.SessionID(),
		Language:  st.Language(),
		Retries:   1,
		File:      attachment,
	})

	switch {
	case err != nil:
		// Branch 1: transport or parse failure.
		slog.Error("chat: completion request failed", "err", err)
		c.metrics.RecordCompletion(ctx, "error")
		c.failTurn(msgConnectFailed, true)

	case !resp.Success || resp.Text() == "":
		// Branch 2: failed envelope or empty payload.
		slog.Warn("chat: completion returned no usable payload", "message", resp.Message)
		c.metrics.RecordCompletion(ctx, "error")
		c.failTurn(msgProcessFailed, true)

	case isErrorReply(resp):
		// Branch 3: error-marked payload. Not speakable — the current
		// script is deliberately left untouched.
		slog.Warn("chat: completion returned an error-marked payload", "type", resp.Data.Type)
		c.metrics.RecordCompletion(ctx, "garbled")
		c.failTurn(msgErrorReply, false)

	default:
		// Branch 4: success.
		c.metrics.RecordCompletion(ctx, "ok")
		c.succeedTurn(ctx, input, resp)
	}
}

// SubmitContinue submits the sentinel turn produced by the "Continue"
// affordance. The message log shows a plain "Yes" while the backend receives
// the interview-start instruction.
func (c *Controller) SubmitContinue(ctx context.Context) {
	c.state.UpdateFlags(func(f *session.Flags) { f.ShowContinue = false })
	c.SubmitTurn(ctx, continueInput)
}

// Retry resubmits the most recent user input, if any. The queued file (when
// the failed turn carried one) is still in the session state and rides along
// again.
func (c *Controller) Retry(ctx context.Context) {
	c.mu.Lock()
	input := c.lastInput
	c.mu.Unlock()
	if input == "" {
		return
	}
	c.SubmitTurn(ctx, input)
}

// RecordFeedback stores a thumbs-up/down for the given message, overwriting
// any earlier feedback for the same message, and posts it to the training
// collaborator. Posting failures are logged only.
func (c *Controller) RecordFeedback(ctx context.Context, msg session.Message, kind FeedbackKind) {
	c.mu.Lock()
	c.feedback[msg.ID] = kind
	c.mu.Unlock()

	if c.training == nil {
		return
	}
	if err := c.training.RecordFeedback(ctx, msg.Text, kind == FeedbackLike); err != nil {
		slog.Error("chat: feedback post failed", "message_id", msg.ID, "err", err)
	}
}

// Feedback returns the recorded feedback for a message id, if any.
func (c *Controller) Feedback(messageID string) (FeedbackKind, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	kind, ok := c.feedback[messageID]
	return kind, ok
}

// OpenConversation issues the initial "I am user" turn that bootstraps the
// interview and produces the first assistant greeting. When the backend is
// unavailable or replies with an error marker, a canned greeting built from
// the avatar, persona, and brand names is shown instead.
func (c *Controller) OpenConversation(ctx context.Context, avatarName string) {
	st := c.state
	st.SetLoading(true)
	defer st.SetLoading(false)

	greeting := fmt.Sprintf(
		"Hello there! I'm %s, your %s. I'm here to help you with %s. "+
			"Can you tell me a little about yourself?",
		avatarName, c.personaName, c.brandName)

	resp, err := c.client.Complete(ctx, chatapi.Request{
		Input:     "I am user",
		UserID:    c.userID,
		Intent:    chatapi.IntentInterview,
		SessionID: st.SessionID(),
		Language:  st.Language(),
		Retries:   1,
	})
	if err != nil || !resp.Success || resp.Text() == "" {
		if err != nil {
			slog.Error("chat: welcome turn failed", "err", err)
		}
		st.AppendMessage(session.NewMessage(session.SenderAI, greeting))
		return
	}
	if isErrorReply(resp) {
		st.SetScript(greeting)
		st.AppendMessage(session.NewMessage(session.SenderAI, greeting))
		return
	}

	st.AdoptSessionID(resp.Data.SessionID)
	st.SetScript(resp.Text())
	st.AppendMessage(session.NewMessage(session.SenderAI, resp.Text()))
}

// queueFile reconciles freshly passed files with the queued one: the most
// recently passed file replaces whatever was queued, and the turn sends the
// single file that remains.
func (c *Controller) queueFile(files []session.File) *session.File {
	if len(files) > 0 {
		f := files[len(files)-1]
		c.state.SetUploadedFile(f)
		return &f
	}
	return c.state.UploadedFile()
}

// failTurn appends the user-facing error message, raises the retry
// affordance, and optionally routes the text to the avatar script.
func (c *Controller) failTurn(text string, speakable bool) {
	st := c.state
	st.AppendMessage(session.NewMessage(session.SenderAI, text))
	if speakable {
		st.SetScript(text)
	}
	st.UpdateFlags(func(f *session.Flags) { f.ShowRetry = true })
}

// succeedTurn applies a successful completion to the shared state: log
// append, sticky session id, avatar script, affordance triggers, queued-file
// cleanup, and the best-effort history post.
func (c *Controller) succeedTurn(ctx context.Context, input string, resp chatapi.Response) {
	st := c.state
	text := resp.Text()

	st.AppendMessage(session.NewMessage(session.SenderAI, text))
	st.AdoptSessionID(resp.Data.SessionID)
	st.SetScript(text)
	st.TakeUploadedFile()

	trig := scanTriggers(text)
	st.UpdateFlags(func(f *session.Flags) {
		if trig.showContinue {
			f.ShowContinue = true
		}
		if trig.interviewDone {
			f.InterviewCompleted = true
		}
		if trig.showBuyNow {
			f.ShowBuyNow = true
		}
	})

	c.postHistory(ctx, input, text)

	c.mu.Lock()
	c.lastInput = ""
	c.mu.Unlock()
}

// postHistory reports the completed turn to the history backend.
// Best-effort: failures are logged and swallowed.
func (c *Controller) postHistory(ctx context.Context, input, answer string) {
	if c.history == nil {
		return
	}
	rec := TurnRecord{
		UserID:   c.userID,
		CourseID: c.courseTag,
		Query:    input,
		Answer:   answer,
		Avatar:   c.state.Mode() == session.ModeVoice,
		STT:      input != "" && input == c.state.LastSpokenText(),
	}
	if err := c.history.RecordTurn(ctx, rec); err != nil {
		slog.Error("chat: history post failed", "err", err)
	}
}

// isErrorReply reports whether a successful envelope carries an error-marked
// payload: a case-insensitive "error" substring in the message or an "error"
// type tag. Such replies are shown as an apology and never spoken.
func isErrorReply(resp chatapi.Response) bool {
	if resp.Data == nil {
		return false
	}
	if strings.EqualFold(resp.Data.Type, "error") {
		return true
	}
	return strings.Contains(strings.ToLower(resp.Data.Message), "error")
}
