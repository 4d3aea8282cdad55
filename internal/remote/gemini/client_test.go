package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/go-cmp/cmp"

	"storyreel/internal/remote"
)

func TestClient_GenerateContent_Success(t *testing.T) {
	var received Request
	var receivedKey, receivedPath string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		receivedPath = r.URL.Path
		receivedKey = r.Header.Get("x-goog-api-key")
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &received)

		json.NewEncoder(w).Encode(Response{
			Candidates: []Candidate{{Content: Content{Parts: []Part{{Text: "[1,"}, {Text: "2]"}}}}},
		})
	}))
	defer server.Close()

	client, err := NewClient("secret", WithBaseURL(server.URL))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	req := &Request{
		Contents: UserText("hello"),
		GenerationConfig: &GenerationConfig{
			ResponseMimeType: "application/json",
			Temperature:      Float32(0.7),
		},
	}
	resp, err := client.GenerateContent(context.Background(), "gemini-2.5-flash", req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if receivedPath != "/models/gemini-2.5-flash:generateContent" {
		t.Errorf("path = %q", receivedPath)
	}
	if receivedKey != "secret" {
		t.Errorf("api key = %q, want %q", receivedKey, "secret")
	}
	if diff := cmp.Diff(req, &received); diff != "" {
		t.Errorf("request mismatch (-want +got):\n%s", diff)
	}
	if got := resp.Text(); got != "[1,2]" {
		t.Errorf("Text() = %q, want %q", got, "[1,2]")
	}
}

func TestClient_GenerateContent_StatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"code":429,"message":"Quota exceeded","status":"RESOURCE_EXHAUSTED"}}`))
	}))
	defer server.Close()

	client, _ := NewClient("secret", WithBaseURL(server.URL))
	_, err := client.GenerateContent(context.Background(), "m", &Request{Contents: UserText("x")})

	var statusErr *remote.StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected *remote.StatusError, got %v", err)
	}
	if statusErr.StatusCode != http.StatusTooManyRequests {
		t.Errorf("status = %d", statusErr.StatusCode)
	}
	if statusErr.Body != "RESOURCE_EXHAUSTED: Quota exceeded" {
		t.Errorf("body = %q", statusErr.Body)
	}
	if !remote.IsTransient(err) {
		t.Error("429 should classify as transient")
	}
}

func TestClient_GenerateContent_MalformedBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json`))
	}))
	defer server.Close()

	client, _ := NewClient("secret", WithBaseURL(server.URL))
	_, err := client.GenerateContent(context.Background(), "m", &Request{Contents: UserText("x")})

	var parseErr *remote.ParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("expected *remote.ParseError, got %v", err)
	}
}

func TestNewClient_RequiresKey(t *testing.T) {
	if _, err := NewClient(""); !errors.Is(err, ErrMissingAPIKey) {
		t.Errorf("err = %v, want ErrMissingAPIKey", err)
	}
}

func TestResponse_InlineData(t *testing.T) {
	resp := &Response{Candidates: []Candidate{{Content: Content{Parts: []Part{
		{Text: "here is your picture"},
		{InlineData: &Blob{MimeType: "image/png", Data: "aGVsbG8="}},
	}}}}}

	blob := resp.InlineData()
	if blob == nil || blob.Data != "aGVsbG8=" {
		t.Fatalf("InlineData() = %+v", blob)
	}

	var empty *Response
	if empty.InlineData() != nil || empty.Text() != "" {
		t.Error("nil response should yield no content")
	}
}
