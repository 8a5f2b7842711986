package azure_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/real-business/concierge/pkg/provider/translate/azure"
)

func TestNew_Validation(t *testing.T) {
	t.Parallel()
	if _, err := azure.New("", "https://example.com", "westeurope"); err == nil {
		t.Error("New with empty key should fail")
	}
	if _, err := azure.New("key", "", "westeurope"); err == nil {
		t.Error("New with empty endpoint should fail")
	}
}

func TestTranslateBatch(t *testing.T) {
	t.Parallel()

	var (
		gotQuery   string
		gotHeaders http.Header
		gotBody    []map[string]string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		gotHeaders = r.Header.Clone()
		json.NewDecoder(r.Body).Decode(&gotBody)
		json.NewEncoder(w).Encode([]map[string]any{
			{"translations": []map[string]string{{"text": "Hola", "to": "es"}}},
			{"translations": []map[string]string{{"text": "Adiós", "to": "es"}}},
		})
	}))
	t.Cleanup(srv.Close)

	tr, err := azure.New("sub-key", srv.URL, "westeurope")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	out, err := tr.TranslateBatch(context.Background(), []string{"Hello", "Goodbye"}, "en", "es")
	if err != nil {
		t.Fatalf("TranslateBatch: %v", err)
	}

	if len(out) != 2 || out[0] != "Hola" || out[1] != "Adiós" {
		t.Errorf("out = %v, want positionally aligned translations", out)
	}
	if gotHeaders.Get("Ocp-Apim-Subscription-Key") != "sub-key" {
		t.Error("subscription key header missing")
	}
	if gotHeaders.Get("Ocp-Apim-Subscription-Region") != "westeurope" {
		t.Error("subscription region header missing")
	}
	if len(gotBody) != 2 || gotBody[0]["Text"] != "Hello" || gotBody[1]["Text"] != "Goodbye" {
		t.Errorf("body = %v", gotBody)
	}
	for _, want := range []string{"api-version=3.0", "from=en", "to=es"} {
		if !strings.Contains(gotQuery, want) {
			t.Errorf("query %q missing %q", gotQuery, want)
		}
	}
}

func TestTranslateBatch_FailureReturnsInputs(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"code":401000}}`, http.StatusUnauthorized)
	}))
	t.Cleanup(srv.Close)

	tr, _ := azure.New("bad-key", srv.URL, "")
	in := []string{"Hello", "Goodbye"}
	out, err := tr.TranslateBatch(context.Background(), in, "en", "es")
	if err == nil {
		t.Fatal("TranslateBatch should report the failure")
	}
	if len(out) != 2 || out[0] != "Hello" || out[1] != "Goodbye" {
		t.Errorf("out = %v, want the inputs unchanged", out)
	}
}

func TestTranslateBatch_CountMismatch(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]map[string]any{
			{"translations": []map[string]string{{"text": "Hola", "to": "es"}}},
		})
	}))
	t.Cleanup(srv.Close)

	tr, _ := azure.New("key", srv.URL, "")
	in := []string{"Hello", "Goodbye"}
	out, err := tr.TranslateBatch(context.Background(), in, "en", "es")
	if err == nil {
		t.Fatal("a count mismatch must be an error")
	}
	if len(out) != 2 || out[0] != "Hello" {
		t.Errorf("out = %v, want the inputs unchanged", out)
	}
}

func TestTranslateBatch_Empty(t *testing.T) {
	t.Parallel()

	tr, _ := azure.New("key", "https://unreachable.invalid", "")
	out, err := tr.TranslateBatch(context.Background(), nil, "en", "es")
	if err != nil || out != nil {
		t.Errorf("empty batch = %v, %v; want nil, nil", out, err)
	}
}
