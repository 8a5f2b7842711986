package azureapi_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/real-business/concierge/pkg/provider/chatapi"
	"github.com/real-business/concierge/pkg/provider/chatapi/azureapi"
)

// successBody builds a JSON envelope with the given message and session id.
func successBody(t *testing.T, message, sessionID string) []byte {
	t.Helper()
	body, err := json.Marshal(chatapi.Response{
		Success: true,
		Data:    &chatapi.Data{Message: message, SessionID: sessionID},
	})
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	return body
}

func TestComplete_FormFields(t *testing.T) {
	t.Parallel()

	var gotInput, gotUserID, gotPlatform, gotSessionID, gotIntent string
	var hadFile bool

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart form: %v", err)
		}
		gotInput = r.FormValue("Input")
		gotUserID = r.FormValue("UserId")
		gotPlatform = r.FormValue("Platform")
		gotSessionID = r.FormValue("SessionId")
		gotIntent = r.FormValue("Intent")
		_, _, err := r.FormFile("Files")
		hadFile = err == nil
		w.Write(successBody(t, "Hi, how are you?", "abc"))
	}))
	defer srv.Close()

	client, err := azureapi.New(srv.URL)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	resp, err := client.Complete(context.Background(), chatapi.Request{
		Input:    "Hello",
		Intent:   chatapi.IntentInterview,
		Language: "en",
		Retries:  1,
	})
	if err != nil {
		t.Fatalf("Complete() error: %v", err)
	}

	if gotInput != "HelloLanguage: en" {
		t.Errorf("Input = %q, want %q", gotInput, "HelloLanguage: en")
	}
	if gotUserID == "" {
		t.Error("UserId should default to the anonymous identity")
	}
	if gotPlatform == "" {
		t.Error("Platform tag should be set")
	}
	if gotSessionID != "" {
		t.Errorf("SessionId = %q, want empty on first turn", gotSessionID)
	}
	if gotIntent != chatapi.IntentInterview {
		t.Errorf("Intent = %q, want %q", gotIntent, chatapi.IntentInterview)
	}
	if hadFile {
		t.Error("no file part expected when request has no file")
	}
	if resp.Text() != "Hi, how are you?" {
		t.Errorf("Text() = %q, want %q", resp.Text(), "Hi, how are you?")
	}
	if resp.Data.SessionID != "abc" {
		t.Errorf("SessionID = %q, want %q", resp.Data.SessionID, "abc")
	}
}

func TestComplete_SingleFilePart(t *testing.T) {
	t.Parallel()

	var fileName string
	var fileBytes []byte

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart form: %v", err)
		}
		f, hdr, err := r.FormFile("Files")
		if err != nil {
			t.Errorf("expected file part: %v", err)
		} else {
			fileName = hdr.Filename
			fileBytes, _ = io.ReadAll(f)
			f.Close()
		}
		w.Write(successBody(t, "Got your report.", "abc"))
	}))
	defer srv.Close()

	client, err := azureapi.New(srv.URL)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	_, err = client.Complete(context.Background(), chatapi.Request{
		Input:    "Uploaded file: lab.pdf",
		Language: "en",
		Retries:  1,
		File: &chatapi.File{
			Name:        "lab.pdf",
			ContentType: "application/pdf",
			Data:        []byte("%PDF-1.4"),
		},
	})
	if err != nil {
		t.Fatalf("Complete() error: %v", err)
	}

	if fileName != "lab.pdf" {
		t.Errorf("filename = %q, want %q", fileName, "lab.pdf")
	}
	if string(fileBytes) != "%PDF-1.4" {
		t.Errorf("file content = %q, want %q", fileBytes, "%PDF-1.4")
	}
}

func TestComplete_GarbledPayloadRetries(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Write(successBody(t, "INVALID JSON", ""))
			return
		}
		w.Write(successBody(t, "Recovered answer", "s1"))
	}))
	defer srv.Close()

	client, err := azureapi.New(srv.URL)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	resp, err := client.Complete(context.Background(), chatapi.Request{
		Input:    "hi",
		Language: "en",
		Retries:  2,
	})
	if err != nil {
		t.Fatalf("Complete() error: %v", err)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("server calls = %d, want 2", got)
	}
	if resp.Text() != "Recovered answer" {
		t.Errorf("Text() = %q, want %q", resp.Text(), "Recovered answer")
	}
}

func TestComplete_GarbledExhausted(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(successBody(t, "", ""))
	}))
	defer srv.Close()

	client, err := azureapi.New(srv.URL)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	resp, err := client.Complete(context.Background(), chatapi.Request{
		Input:    "hi",
		Language: "en",
		Retries:  2,
	})
	if err != nil {
		t.Fatalf("Complete() error: %v", err)
	}
	if resp.Success {
		t.Error("Success = true, want false after exhausted retries")
	}
	if resp.Message != "API call failed after all retries" {
		t.Errorf("Message = %q, want exhausted-retries envelope", resp.Message)
	}
}

func TestComplete_TransportFailure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"Message":"backend down"}`, http.StatusBadGateway)
	}))
	defer srv.Close()

	client, err := azureapi.New(srv.URL)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	_, err = client.Complete(context.Background(), chatapi.Request{
		Input:    "hi",
		Language: "en",
		Retries:  1,
	})
	if err == nil {
		t.Fatal("expected error for non-2xx response")
	}
}

func TestNew_EmptyBaseURL(t *testing.T) {
	t.Parallel()

	if _, err := azureapi.New(""); err == nil {
		t.Fatal("expected error for empty base URL")
	}
}

func TestResponse_Garbled(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		resp chatapi.Response
		want bool
	}{
		{
			name: "nil data",
			resp: chatapi.Response{Success: true},
			want: true,
		},
		{
			name: "empty message",
			resp: chatapi.Response{Success: true, Data: &chatapi.Data{}},
			want: true,
		},
		{
			name: "invalid json marker",
			resp: chatapi.Response{Success: true, Data: &chatapi.Data{Message: "INVALID JSON"}},
			want: true,
		},
		{
			name: "exception marker mid-sentence",
			resp: chatapi.Response{Success: true, Data: &chatapi.Data{Message: "An Exception Thrown while handling"}},
			want: true,
		},
		{
			name: "ordinary reply",
			resp: chatapi.Response{Success: true, Data: &chatapi.Data{Message: "Hello!"}},
			want: false,
		},
		{
			name: "failure envelope is not garbled",
			resp: chatapi.Response{Success: false},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tt.resp.Garbled(); got != tt.want {
				t.Errorf("Garbled() = %v, want %v", got, tt.want)
			}
		})
	}
}
