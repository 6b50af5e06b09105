package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hudson-advisors/ddq-assistant/api"
	"github.com/hudson-advisors/ddq-assistant/chat"
	"github.com/hudson-advisors/ddq-assistant/search"
)

type stubChat struct {
	result chat.Result
	err    error
}

func (s *stubChat) Answer(ctx context.Context, question string) (chat.Result, error) {
	if s.err != nil {
		return chat.Result{}, s.err
	}
	return s.result, nil
}

var _ api.ChatService = (*stubChat)(nil)

type stubCatalog struct {
	documents []search.DocumentInfo
	err       error
}

func (s *stubCatalog) ListDocuments(ctx context.Context) ([]search.DocumentInfo, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.documents, nil
}

var _ api.DocumentCatalog = (*stubCatalog)(nil)

func newServer(t *testing.T, opts api.Options) *api.Server {
	t.Helper()
	opts.Logger = log.New(io.Discard, "", 0)
	return api.New(opts)
}

func postChat(t *testing.T, server *api.Server, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response body: %v", err)
	}
	return payload
}

func TestHealthAlwaysOK(t *testing.T) {
	// Health must not depend on any downstream handle.
	server := newServer(t, api.Options{Chat: &stubChat{err: errors.New("down")}})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if body := decodeBody(t, rec); body["status"] != "ok" {
		t.Fatalf("unexpected body: %v", body)
	}
}

func TestChatMissingPrompt(t *testing.T) {
	server := newServer(t, api.Options{Chat: &stubChat{result: chat.Result{Answer: "unused"}}})

	for _, body := range []string{`{}`, `{"prompt": ""}`, `{"prompt": "   "}`, `{"history": []}`, ``} {
		rec := postChat(t, server, body)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("body %q: expected 400, got %d", body, rec.Code)
		}
		if payload := decodeBody(t, rec); payload["error"] != "No prompt provided" {
			t.Fatalf("body %q: unexpected error: %v", body, payload["error"])
		}
	}
}

func TestChatMalformedBody(t *testing.T) {
	server := newServer(t, api.Options{Chat: &stubChat{result: chat.Result{Answer: "unused"}}})

	for _, body := range []string{`{"prompt": "hi"`, `not json`, `{"prompt": 42}`} {
		rec := postChat(t, server, body)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("body %q: expected 400, got %d", body, rec.Code)
		}
		if payload := decodeBody(t, rec); payload["error"] != "Invalid request body" {
			t.Fatalf("body %q: unexpected error: %v", body, payload["error"])
		}
	}
}

func TestChatSuccess(t *testing.T) {
	url := "https://blobs.example.com/ddq_responses/doc.pdf"
	server := newServer(t, api.Options{Chat: &stubChat{result: chat.Result{
		Answer:      "Based on the ESG Policy, the fund emphasizes responsible investment.",
		DocumentURL: &url,
		Sources:     []string{"ESG_Policy.pdf"},
	}}})

	rec := postChat(t, server, `{"prompt": "What is the fund's ESG policy?", "history": []}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	payload := decodeBody(t, rec)
	if payload["ai_response"] != "Based on the ESG Policy, the fund emphasizes responsible investment." {
		t.Fatalf("unexpected ai_response: %v", payload["ai_response"])
	}
	if payload["document_url"] != url {
		t.Fatalf("unexpected document_url: %v", payload["document_url"])
	}
	sources, ok := payload["sources"].([]any)
	if !ok || len(sources) != 1 || sources[0] != "ESG_Policy.pdf" {
		t.Fatalf("unexpected sources: %v", payload["sources"])
	}
}

func TestChatNullDocumentURL(t *testing.T) {
	server := newServer(t, api.Options{Chat: &stubChat{result: chat.Result{
		Answer:  "answer",
		Sources: []string{},
	}}})

	rec := postChat(t, server, `{"prompt": "question"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	payload := decodeBody(t, rec)
	value, present := payload["document_url"]
	if !present {
		t.Fatal("document_url field missing from response")
	}
	if value != nil {
		t.Fatalf("expected null document_url, got %v", value)
	}
	if _, ok := payload["sources"].([]any); !ok {
		t.Fatalf("expected sources array, got %v", payload["sources"])
	}
}

func TestChatCompletionFailure(t *testing.T) {
	server := newServer(t, api.Options{Chat: &stubChat{
		err: chat.ErrCompletion,
	}})

	rec := postChat(t, server, `{"prompt": "question"}`)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if payload := decodeBody(t, rec); payload["error"] != "Failed to get response from AI model" {
		t.Fatalf("unexpected error body: %v", payload["error"])
	}
}

func TestChatUnexpectedErrorIsGeneric(t *testing.T) {
	server := newServer(t, api.Options{Chat: &stubChat{
		err: errors.New("pgx: connection refused to 10.0.0.5:5432"),
	}})

	rec := postChat(t, server, `{"prompt": "question"}`)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}

	payload := decodeBody(t, rec)
	if payload["error"] != "An internal server error occurred" {
		t.Fatalf("unexpected error body: %v", payload["error"])
	}
	if strings.Contains(rec.Body.String(), "10.0.0.5") {
		t.Fatal("internal diagnostic leaked to the caller")
	}
}

func TestChatMethodNotAllowed(t *testing.T) {
	server := newServer(t, api.Options{Chat: &stubChat{}})

	req := httptest.NewRequest(http.MethodGet, "/api/chat", nil)
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
	if allow := rec.Header().Get("Allow"); allow != http.MethodPost {
		t.Fatalf("expected Allow: POST, got %q", allow)
	}
}

func TestDocumentsWithoutCatalog(t *testing.T) {
	server := newServer(t, api.Options{Chat: &stubChat{}})

	req := httptest.NewRequest(http.MethodGet, "/api/documents", nil)
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestDocumentsListing(t *testing.T) {
	server := newServer(t, api.Options{
		Chat: &stubChat{},
		Catalog: &stubCatalog{documents: []search.DocumentInfo{
			{ID: "d1", SourcePath: "policies/ESG_Policy.pdf", SourceFile: "ESG_Policy.pdf", Title: "ESG Policy", ChunkCount: 4, Folder: "policies"},
		}},
	})

	req := httptest.NewRequest(http.MethodGet, "/api/documents", nil)
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	payload := decodeBody(t, rec)
	documents, ok := payload["documents"].([]any)
	if !ok || len(documents) != 1 {
		t.Fatalf("unexpected documents payload: %v", payload["documents"])
	}
}

func TestIngestWithoutIndex(t *testing.T) {
	server := newServer(t, api.Options{Chat: &stubChat{}})

	req := httptest.NewRequest(http.MethodPost, "/api/ingest", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}
