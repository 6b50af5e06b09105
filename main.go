package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hudson-advisors/ddq-assistant/api"
	"github.com/hudson-advisors/ddq-assistant/chat"
	"github.com/hudson-advisors/ddq-assistant/config"
	"github.com/hudson-advisors/ddq-assistant/database"
	"github.com/hudson-advisors/ddq-assistant/docgen"
	"github.com/hudson-advisors/ddq-assistant/embeddings"
	"github.com/hudson-advisors/ddq-assistant/ingestion"
	"github.com/hudson-advisors/ddq-assistant/knowledge"
	"github.com/hudson-advisors/ddq-assistant/llm"
	"github.com/hudson-advisors/ddq-assistant/search"
	"github.com/hudson-advisors/ddq-assistant/storage"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

func main() {
	logger := log.New(os.Stdout, "", log.LstdFlags)

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cfg := config.Load()

	switch os.Args[1] {
	case "serve":
		serveCmd(cfg, logger, os.Args[2:])
	case "ingest":
		ingestCmd(cfg, logger, os.Args[2:])
	case "clear":
		clearCmd(cfg, logger, os.Args[2:])
	default:
		logger.Printf("unknown command: %s", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func serveCmd(cfg config.Config, logger *log.Logger, args []string) {
	flags := flag.NewFlagSet("serve", flag.ExitOnError)
	addr := flags.String("addr", cfg.Addr, "address to listen on")
	if err := flags.Parse(args); err != nil {
		logger.Fatalf("parse serve flags: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	systemPrompt := loadSystemPrompt(cfg.SystemPromptPath, logger)

	llmClient, err := llm.NewClient(cfg)
	if err != nil {
		// Chat requests will fail at the completion stage; the server still
		// starts so /health and document listing keep working.
		logger.Printf("llm setup: %v; chat requests will fail", err)
	}

	var (
		pgPool      *pgxpool.Pool
		neo4jDriver neo4j.DriverWithContext

		searchSvc *search.Service
		catalog   *search.Catalog
		ingestSvc *ingestion.Service
	)

	if cfg.SearchEnabled() {
		pgPool, err = database.NewPostgresPool(ctx, cfg.PostgresDSN)
		if err != nil {
			logger.Fatalf("postgres connection: %v", err)
		}
		defer pgPool.Close()

		if err := database.EnsureIndexSchema(ctx, pgPool, cfg.Embeddings.Dimension); err != nil {
			logger.Fatalf("ensure index schema: %v", err)
		}

		if cfg.GraphEnabled() {
			neo4jDriver, err = database.NewNeo4jDriver(ctx, cfg.Neo4jURI, cfg.Neo4jUser, cfg.Neo4jPass)
			if err != nil {
				logger.Fatalf("neo4j connection: %v", err)
			}
			defer neo4jDriver.Close(ctx)
		} else {
			logger.Println("provenance graph not configured, folder enrichment disabled")
		}

		embedder, err := embeddings.NewEmbedder(cfg)
		if err != nil {
			logger.Fatalf("embedder setup: %v", err)
		}

		searchSvc = search.NewService(search.NewPostgresVectorStore(pgPool), embedder, logger)
		catalog = search.NewCatalog(pgPool, neo4jDriver, logger)
		ingestSvc = ingestion.NewService(pgPool, neo4jDriver, embedder, logger, cfg.Embeddings.Dimension)
	} else {
		logger.Println("search index not configured, retrieval disabled")
	}

	var store storage.BlobStore
	if cfg.BlobEnabled() {
		s3Store, err := storage.NewS3BlobStore(ctx, cfg.Blob, logger)
		if err != nil {
			logger.Printf("blob store setup: %v; document generation disabled", err)
		} else {
			store = s3Store
		}
	} else {
		logger.Println("blob store not configured, document generation disabled")
	}

	chatSvc := chat.NewService(
		optionalSearch(searchSvc),
		llmClient,
		docgen.NewRenderer(),
		optionalStore(store),
		systemPrompt,
		logger,
	)

	server := api.New(api.Options{
		Chat:           chatSvc,
		Catalog:        optionalCatalog(catalog),
		Ingestor:       optionalIngestor(ingestSvc),
		DataDir:        cfg.DataDir,
		RequestTimeout: cfg.RequestTimeout,
		Logger:         logger,
	})

	httpServer := &http.Server{
		Addr:              *addr,
		Handler:           server,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Printf("server shutdown: %v", err)
		}
	}()

	logger.Printf("listening on %s", *addr)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatalf("serve: %v", err)
	}
}

func ingestCmd(cfg config.Config, logger *log.Logger, args []string) {
	flags := flag.NewFlagSet("ingest", flag.ExitOnError)
	dataDir := flags.String("dir", cfg.DataDir, "path to directory containing source documents")
	if err := flags.Parse(args); err != nil {
		logger.Fatalf("parse ingest flags: %v", err)
	}

	if !cfg.SearchEnabled() {
		logger.Fatal("POSTGRES_DSN is required for ingestion")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	pgPool, err := database.NewPostgresPool(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatalf("postgres connection: %v", err)
	}
	defer pgPool.Close()

	var neo4jDriver neo4j.DriverWithContext
	if cfg.GraphEnabled() {
		neo4jDriver, err = database.NewNeo4jDriver(ctx, cfg.Neo4jURI, cfg.Neo4jUser, cfg.Neo4jPass)
		if err != nil {
			logger.Fatalf("neo4j connection: %v", err)
		}
		defer neo4jDriver.Close(ctx)
	}

	embedder, err := embeddings.NewEmbedder(cfg)
	if err != nil {
		logger.Fatalf("embedder setup: %v", err)
	}

	svc := ingestion.NewService(pgPool, neo4jDriver, embedder, logger, cfg.Embeddings.Dimension)
	logger.Printf("ingesting documents from %s using %s/%s embeddings", *dataDir, cfg.Embeddings.Provider, cfg.Embeddings.Model)

	if err := svc.IngestDirectory(ctx, *dataDir); err != nil {
		logger.Fatalf("ingestion failed: %v", err)
	}
}

func clearCmd(cfg config.Config, logger *log.Logger, args []string) {
	flags := flag.NewFlagSet("clear", flag.ExitOnError)
	confirmed := flags.Bool("confirm", false, "skip confirmation prompt")
	if err := flags.Parse(args); err != nil {
		logger.Fatalf("parse clear flags: %v", err)
	}

	if !*confirmed {
		fmt.Print("This will permanently delete the document index. Continue? [y/N]: ")
		var answer string
		if _, err := fmt.Scanln(&answer); err != nil || (answer != "y" && answer != "Y" && answer != "yes") {
			logger.Println("clear aborted")
			return
		}
	}

	if !cfg.SearchEnabled() {
		logger.Fatal("POSTGRES_DSN is required to clear the index")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	pgPool, err := database.NewPostgresPool(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatalf("postgres connection: %v", err)
	}
	defer pgPool.Close()

	if err := database.ClearIndex(ctx, pgPool); err != nil {
		logger.Fatalf("clear index: %v", err)
	}
	logger.Println("cleared document index tables")

	if cfg.GraphEnabled() {
		neo4jDriver, err := database.NewNeo4jDriver(ctx, cfg.Neo4jURI, cfg.Neo4jUser, cfg.Neo4jPass)
		if err != nil {
			logger.Fatalf("neo4j connection: %v", err)
		}
		defer neo4jDriver.Close(ctx)

		if err := knowledge.Purge(ctx, neo4jDriver); err != nil {
			logger.Fatalf("clear graph: %v", err)
		}
		logger.Println("cleared provenance graph")
	}
}

// loadSystemPrompt reads the prompt file, falling back to the built-in prompt
// when it is missing.
func loadSystemPrompt(path string, logger *log.Logger) string {
	data, err := os.ReadFile(path)
	if err != nil {
		logger.Printf("system prompt file %s not found, using default prompt", path)
		return chat.DefaultSystemPrompt
	}
	return string(data)
}

// The chat service takes interface-typed optional dependencies; a typed nil
// pointer would not compare equal to nil, so wrap the conversions.

func optionalSearch(svc *search.Service) chat.SearchClient {
	if svc == nil {
		return nil
	}
	return svc
}

func optionalStore(store storage.BlobStore) chat.Uploader {
	if store == nil {
		return nil
	}
	return store
}

func optionalCatalog(catalog *search.Catalog) api.DocumentCatalog {
	if catalog == nil {
		return nil
	}
	return catalog
}

func optionalIngestor(svc *ingestion.Service) api.Ingestor {
	if svc == nil {
		return nil
	}
	return svc
}

func printUsage() {
	fmt.Println("Usage: ddq-assistant <command> [options]")
	fmt.Println("Commands:")
	fmt.Println("  serve    Run the HTTP API")
	fmt.Println("  ingest   Index source documents into the search index (use --dir to override data directory)")
	fmt.Println("  clear    Remove all indexed documents")
}
