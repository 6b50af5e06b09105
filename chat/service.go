// Package chat orchestrates one question/answer round trip: retrieve context
// from the search index, complete against the language model, render and
// store the response document, and shape the result. Retrieval and document
// generation degrade on failure; only the completion stage is fatal.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/hudson-advisors/ddq-assistant/docgen"
	"github.com/hudson-advisors/ddq-assistant/llm"
	"github.com/hudson-advisors/ddq-assistant/search"
)

// Top snippets retrieved per question.
const retrievalLimit = 3

// DefaultSystemPrompt is used when no system prompt file is available.
const DefaultSystemPrompt = "You are a helpful AI assistant."

var (
	// ErrNoPrompt marks a missing or empty question.
	ErrNoPrompt = errors.New("no prompt provided")
	// ErrCompletion marks a failed completion call; without it no answer
	// exists, so the whole request fails.
	ErrCompletion = errors.New("completion failed")
)

// SearchClient retrieves ranked snippets for a query.
type SearchClient interface {
	Search(ctx context.Context, query string, limit int) (search.Results, error)
}

// Renderer turns an exchange into a storable document.
type Renderer interface {
	Render(question, answer string, sources []string) (docgen.Document, error)
}

// Uploader persists a rendered document and returns its URL.
type Uploader interface {
	Upload(ctx context.Context, data []byte, name, contentType string) (string, error)
}

type Service struct {
	search       SearchClient
	llm          llm.Client
	renderer     Renderer
	store        Uploader
	systemPrompt string
	logger       *log.Logger
}

// NewService wires the orchestrator. search and store are optional: a nil
// search client downgrades retrieval to an explanatory context block, a nil
// store skips document generation entirely.
func NewService(searchClient SearchClient, llmClient llm.Client, renderer Renderer, store Uploader, systemPrompt string, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.Default()
	}
	if systemPrompt == "" {
		systemPrompt = DefaultSystemPrompt
	}

	return &Service{
		search:       searchClient,
		llm:          llmClient,
		renderer:     renderer,
		store:        store,
		systemPrompt: systemPrompt,
		logger:       logger,
	}
}

// Answer runs the full pipeline for one question.
func (s *Service) Answer(ctx context.Context, question string) (Result, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return Result{}, ErrNoPrompt
	}
	if s.llm == nil {
		return Result{}, fmt.Errorf("%w: llm client is not configured", ErrCompletion)
	}

	searchContext, sourceFiles := s.retrieveContext(ctx, question)

	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: s.systemPrompt + searchContext},
		{Role: llm.RoleUser, Content: question},
	}

	answer, err := s.llm.Generate(ctx, messages)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrCompletion, err)
	}

	sources := sortedSources(sourceFiles)

	return Result{
		Answer:      answer,
		DocumentURL: s.generateDocument(ctx, question, answer, sources),
		Sources:     sources,
	}, nil
}

// retrieveContext builds the context block appended to the system prompt and
// collects the set of source file names. Search failures degrade to an
// explanatory block; they never fail the request.
func (s *Service) retrieveContext(ctx context.Context, question string) (string, map[string]struct{}) {
	sourceFiles := make(map[string]struct{})

	if s.search == nil {
		return "\n\nDocument search is not configured.", sourceFiles
	}

	results, err := s.search.Search(ctx, question, retrievalLimit)
	if err != nil {
		s.logger.Printf("search error: %v", err)
		return "\n\nError retrieving documents from search index.", sourceFiles
	}

	if len(results.Results) == 0 {
		return "\n\nNo relevant documents found in the search index for this query.", sourceFiles
	}

	var sb strings.Builder
	sb.WriteString("\n\nRelevant Document Snippets:\n")
	for _, snippet := range results.Results {
		sourceFile := snippet.SourceFile
		if sourceFile == "" {
			sourceFile = "Unknown Source"
		}
		sb.WriteString(fmt.Sprintf("\n---\nSource: %s\nSnippet: %s\n---", sourceFile, snippet.Content))
		sourceFiles[sourceFile] = struct{}{}
	}

	return sb.String(), sourceFiles
}

// generateDocument renders and uploads the response document. Any failure is
// logged and yields a nil URL; the chat response still succeeds.
func (s *Service) generateDocument(ctx context.Context, question, answer string, sources []string) *string {
	if s.store == nil || s.renderer == nil {
		return nil
	}

	doc, err := s.renderer.Render(question, answer, sources)
	if err != nil {
		s.logger.Printf("render document error: %v", err)
		return nil
	}

	url, err := s.store.Upload(ctx, doc.Content, doc.Name, doc.ContentType)
	if err != nil {
		s.logger.Printf("upload document error: %v", err)
		return nil
	}

	s.logger.Printf("response document uploaded to %s", url)
	return &url
}

func sortedSources(set map[string]struct{}) []string {
	sources := make([]string, 0, len(set))
	for source := range set {
		sources = append(sources, source)
	}
	sort.Strings(sources)
	return sources
}
