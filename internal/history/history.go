// Package history implements the fire-and-forget collaborators behind the
// chat controller: the chat-history poster and the feedback-training poster.
// Both talk to the assistant backend; both are best-effort — callers log
// returned errors and move on.
package history

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/real-business/concierge/internal/chat"
)

// Compile-time interface checks.
var _ chat.HistoryRecorder = (*Recorder)(nil)
var _ chat.TrainingRecorder = (*Trainer)(nil)

const (
	historyPath  = "/User/chathistory/post"
	trainingPath = "/AI/training"
)

// Option is a functional option shared by [NewRecorder] and [NewTrainer].
type Option func(*poster)

// WithHTTPClient overrides the HTTP client used for posts.
func WithHTTPClient(hc *http.Client) Option {
	return func(p *poster) { p.http = hc }
}

// poster is the shared POST-JSON plumbing.
type poster struct {
	baseURL string
	http    *http.Client
}

func newPoster(baseURL string, opts []Option) (*poster, error) {
	if baseURL == "" {
		return nil, errors.New("history: base URL must not be empty")
	}
	p := &poster{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    http.DefaultClient,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

func (p *poster) post(ctx context.Context, path string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("history: marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("history: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.http.Do(req)
	if err != nil {
		return fmt.Errorf("history: post %s: %w", path, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("history: post %s: status %d", path, resp.StatusCode)
	}
	return nil
}

// Recorder posts completed turns to the backend's chat-history endpoint.
type Recorder struct {
	p *poster
}

// NewRecorder creates a Recorder for the given backend base URL.
func NewRecorder(baseURL string, opts ...Option) (*Recorder, error) {
	p, err := newPoster(baseURL, opts)
	if err != nil {
		return nil, err
	}
	return &Recorder{p: p}, nil
}

// historyPayload is the chat-history wire shape.
type historyPayload struct {
	UserID   string `json:"UserId"`
	CourseID string `json:"CourseId"`
	Query    string `json:"Query"`
	Answer   string `json:"Answer"`
	Avatar   bool   `json:"Avatar"`
	STT      bool   `json:"STT"`
}

// RecordTurn posts one completed turn.
func (r *Recorder) RecordTurn(ctx context.Context, rec chat.TurnRecord) error {
	return r.p.post(ctx, historyPath, historyPayload{
		UserID:   rec.UserID,
		CourseID: rec.CourseID,
		Query:    rec.Query,
		Answer:   rec.Answer,
		Avatar:   rec.Avatar,
		STT:      rec.STT,
	})
}

// Trainer posts per-message feedback to the backend's training endpoint.
type Trainer struct {
	p          *poster
	userID     string
	businessID string
}

// NewTrainer creates a Trainer for the given backend base URL and identity.
func NewTrainer(baseURL, userID, businessID string, opts ...Option) (*Trainer, error) {
	p, err := newPoster(baseURL, opts)
	if err != nil {
		return nil, err
	}
	return &Trainer{p: p, userID: userID, businessID: businessID}, nil
}

// trainingPayload is the feedback-training wire shape.
type trainingPayload struct {
	Input      string `json:"Input"`
	UserID     string `json:"UserId"`
	BusinessID string `json:"BusinessId"`
	Accepted   bool   `json:"Accepted"`
}

// RecordFeedback posts one thumbs-up/down judgement.
func (t *Trainer) RecordFeedback(ctx context.Context, input string, accepted bool) error {
	return t.p.post(ctx, trainingPath, trainingPayload{
		Input:      input,
		UserID:     t.userID,
		BusinessID: t.businessID,
		Accepted:   accepted,
	})
}
