// Package api exposes the HTTP surface. Service handles are constructed once
// at process start and injected here; handlers never build their own clients.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/hudson-advisors/ddq-assistant/chat"
	"github.com/hudson-advisors/ddq-assistant/search"
)

// ChatService answers one question end to end.
type ChatService interface {
	Answer(ctx context.Context, question string) (chat.Result, error)
}

// DocumentCatalog lists the indexed source documents.
type DocumentCatalog interface {
	ListDocuments(ctx context.Context) ([]search.DocumentInfo, error)
}

// Ingestor indexes the documents under a directory.
type Ingestor interface {
	IngestDirectory(ctx context.Context, dir string) error
}

type Options struct {
	Chat           ChatService
	Catalog        DocumentCatalog
	Ingestor       Ingestor
	DataDir        string
	RequestTimeout time.Duration
	Logger         *log.Logger
}

type Server struct {
	chat     ChatService
	catalog  DocumentCatalog
	ingestor Ingestor
	dataDir  string
	timeout  time.Duration
	logger   *log.Logger
	handler  http.Handler
}

type statusResponse struct {
	Status string `json:"status"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type chatRequest struct {
	Prompt string `json:"prompt"`
	// Accepted for forward compatibility, currently unused.
	History []json.RawMessage `json:"history"`
}

type chatResponse struct {
	AIResponse  string   `json:"ai_response"`
	DocumentURL *string  `json:"document_url"`
	Sources     []string `json:"sources"`
}

type documentsResponse struct {
	Documents []search.DocumentInfo `json:"documents"`
}

type ingestRequest struct {
	Dir string `json:"dir"`
}

const (
	errNoPrompt       = "No prompt provided"
	errInvalidBody    = "Invalid request body"
	errModelFailed    = "Failed to get response from AI model"
	errInternalServer = "An internal server error occurred"
)

// New constructs a Server serving the HTTP API with the provided handles.
func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}

	s := &Server{
		chat:     opts.Chat,
		catalog:  opts.Catalog,
		ingestor: opts.Ingestor,
		dataDir:  opts.DataDir,
		timeout:  timeout,
		logger:   logger,
	}
	s.handler = s.recoverer(s.routes())
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/chat", s.handleChat)
	mux.HandleFunc("/api/documents", s.handleDocuments)
	mux.HandleFunc("/api/ingest", s.handleIngest)
	return mux
}

// recoverer converts panics into a generic 500 so internal detail never
// reaches the caller.
func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Printf("panic in %s %s: %v", r.Method, r.URL.Path, rec)
				s.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: errInternalServer})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.methodNotAllowed(w, http.MethodGet)
		return
	}

	s.writeJSON(w, http.StatusOK, statusResponse{Status: "ok"})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.methodNotAllowed(w, http.MethodPost)
		return
	}

	var req chatRequest
	if err := decodeJSON(r, &req); err != nil {
		s.logger.Printf("decode chat request: %v", err)
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: errInvalidBody})
		return
	}

	if strings.TrimSpace(req.Prompt) == "" {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: errNoPrompt})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	result, err := s.chat.Answer(ctx, req.Prompt)
	if err != nil {
		switch {
		case errors.Is(err, chat.ErrNoPrompt):
			s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: errNoPrompt})
		case errors.Is(err, chat.ErrCompletion):
			s.logger.Printf("chat completion error: %v", err)
			s.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: errModelFailed})
		default:
			s.logger.Printf("chat error: %v", err)
			s.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: errInternalServer})
		}
		return
	}

	sources := result.Sources
	if sources == nil {
		sources = []string{}
	}

	s.writeJSON(w, http.StatusOK, chatResponse{
		AIResponse:  result.Answer,
		DocumentURL: result.DocumentURL,
		Sources:     sources,
	})
}

func (s *Server) handleDocuments(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.methodNotAllowed(w, http.MethodGet)
		return
	}

	if s.catalog == nil {
		s.writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "document index is not configured"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	documents, err := s.catalog.ListDocuments(ctx)
	if err != nil {
		s.logger.Printf("list documents error: %v", err)
		s.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: errInternalServer})
		return
	}

	s.writeJSON(w, http.StatusOK, documentsResponse{Documents: documents})
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.methodNotAllowed(w, http.MethodPost)
		return
	}

	if s.ingestor == nil {
		s.writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "document index is not configured"})
		return
	}

	var req ingestRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: fmt.Sprintf("decode request: %v", err)})
		return
	}

	dir := strings.TrimSpace(req.Dir)
	if dir == "" {
		dir = s.dataDir
	}

	if err := s.ingestor.IngestDirectory(r.Context(), dir); err != nil {
		s.logger.Printf("ingestion error: %v", err)
		s.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: errInternalServer})
		return
	}

	s.writeJSON(w, http.StatusOK, messageResponse{Message: "ingestion complete"})
}

func (s *Server) methodNotAllowed(w http.ResponseWriter, allowed string) {
	w.Header().Set("Allow", allowed)
	s.writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: fmt.Sprintf("method not allowed, use %s", allowed)})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Printf("encode response: %v", err)
	}
}

func decodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()

	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		if err == io.EOF {
			return nil
		}
		return err
	}

	if dec.More() {
		return fmt.Errorf("request body must contain a single JSON object")
	}

	return nil
}
