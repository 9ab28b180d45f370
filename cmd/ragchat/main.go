package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"

	"ragpipe/internal/assembler"
	"ragpipe/internal/audit"
	"ragpipe/internal/chunker"
	"ragpipe/internal/config"
	"ragpipe/internal/domain"
	"ragpipe/internal/embedding"
	"ragpipe/internal/llm/ollama"
	"ragpipe/internal/llm/openai"
	"ragpipe/internal/moderation"
	"ragpipe/internal/retriever"
	"ragpipe/internal/router"
	"ragpipe/internal/screener"
	"ragpipe/internal/service"
	"ragpipe/internal/summarizer"
	"ragpipe/internal/tokenizer"
	"ragpipe/internal/tui"
	"ragpipe/internal/vectorstore/memory"
	"ragpipe/internal/vectorstore/qdrant"
)

func main() {
	_ = godotenv.Load()

	var cfgPath, owner string
	flag.StringVar(&cfgPath, "config", "", "Path to YAML config file (optional; uses ~/.config/ragpipe/config.yaml if not provided)")
	flag.StringVar(&owner, "owner", "local", "Owner ID whose documents are ingested and queried")
	flag.Parse()
	inputs := flag.Args()
	if len(inputs) == 0 {
		fmt.Println("Usage: ragchat [--config=config.yaml] [--owner=id] file1.txt [file2.txt ...]")
		os.Exit(1)
	}

	var cfg *config.AppConfig
	var err error
	if cfgPath == "" {
		cfg, _, err = config.LoadDefault()
	} else {
		cfg, err = config.Load(cfgPath)
	}
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	counter, err := tokenizer.ForType(cfg.Tokenizer.Type)
	if err != nil {
		log.Fatalf("tokenizer init failed: %v", err)
	}

	var emb domain.Embedder
	switch cfg.Embedder.Type {
	case "hash", "":
		emb = embedding.NewHashEmbedder(cfg.Embedder.Dimension)
	case "openai":
		if cfg.Embedder.OpenAI == nil {
			log.Fatalf("openai embedder config missing")
		}
		client, err := embedding.NewClient(embedding.Config{
			BaseURL:   cfg.Embedder.OpenAI.BaseURL,
			APIKeyEnv: cfg.Embedder.OpenAI.APIKeyEnv,
			Model:     cfg.Embedder.OpenAI.Model,
			Timeout:   time.Duration(cfg.Embedder.OpenAI.TimeoutSecs) * time.Second,
			BatchSize: cfg.Embedder.OpenAI.BatchSize,
		})
		if err != nil {
			log.Fatalf("openai embedder init failed: %v", err)
		}
		emb = client
	default:
		log.Fatalf("unknown embedder: %s", cfg.Embedder.Type)
	}

	var opts []chunker.Option
	if cfg.Chunker.MinTokens > 0 {
		opts = append(opts, chunker.WithMinTokens(cfg.Chunker.MinTokens))
	}
	if cfg.Chunker.Strategy != "" {
		opts = append(opts, chunker.WithStrategy(chunker.Strategy(cfg.Chunker.Strategy)))
	}
	split := chunker.NewSplitter(counter, cfg.Chunker.MaxTokens, cfg.Chunker.OverlapTokens, opts...)

	var store domain.VectorStore
	switch cfg.VectorStore.Type {
	case "memory", "":
		store = memory.NewStore()
	case "qdrant":
		if cfg.VectorStore.Qdrant == nil {
			log.Fatalf("qdrant config missing")
		}
		store = qdrant.NewStore(qdrant.Config{
			URL:        cfg.VectorStore.Qdrant.URL,
			APIKey:     cfg.VectorStore.Qdrant.APIKey,
			Collection: cfg.VectorStore.Qdrant.Collection,
			Timeout:    time.Duration(cfg.VectorStore.Qdrant.TimeoutSecs) * time.Second,
		})
	default:
		log.Fatalf("unknown vector store: %s", cfg.VectorStore.Type)
	}

	var auditLog domain.AuditLog
	switch cfg.Audit.Type {
	case "memory", "":
		auditLog = audit.NewMemoryLog()
	case "sqlite":
		sqliteLog, err := audit.OpenSQLite(cfg.Audit.Path)
		if err != nil {
			log.Fatalf("audit db init failed: %v", err)
		}
		defer sqliteLog.Close()
		auditLog = sqliteLog
	default:
		log.Fatalf("unknown audit backend: %s", cfg.Audit.Type)
	}

	providers := make([]domain.Provider, 0, len(cfg.Router.Providers))
	for _, pc := range cfg.Router.Providers {
		switch pc.Type {
		case "openai":
			p, err := openai.New(openai.Config{
				BaseURL:   pc.BaseURL,
				APIKeyEnv: pc.APIKeyEnv,
				Timeout:   time.Duration(pc.TimeoutSecs) * time.Second,
			})
			if err != nil {
				log.Fatalf("openai provider init failed: %v", err)
			}
			providers = append(providers, p)
		case "ollama", "":
			providers = append(providers, ollama.New(pc.BaseURL, time.Duration(pc.TimeoutSecs)*time.Second))
		default:
			log.Fatalf("unknown provider: %s", pc.Type)
		}
	}

	route := router.New(providers, counter, auditLog, router.Config{
		MaxAttempts:    cfg.Router.MaxAttempts,
		BaseDelay:      time.Duration(cfg.Router.BaseDelayMs) * time.Millisecond,
		CallTimeout:    time.Duration(cfg.Router.TimeoutSecs) * time.Second,
		ModelCeilings:  cfg.Router.ModelCeilings,
		DefaultCeiling: cfg.Router.DefaultCeiling,
		RatePerSec:     cfg.Router.RatePerSec,
	})

	var mod domain.Moderator
	if cfg.Screener.ModerationURL != "" {
		mod = moderation.NewClient(cfg.Screener.ModerationURL, 0)
	}
	screen := screener.New(screener.Config{
		Moderator:          mod,
		Embedder:           embedding.NewHashEmbedder(0),
		GroundingThreshold: cfg.Screener.GroundingThreshold,
		FailMode:           screener.FailMode(cfg.Screener.FailMode),
	})

	pipeline := service.New(service.Config{
		Chunker:    split,
		Embedder:   emb,
		Store:      store,
		Retriever:  retriever.New(emb, store, cfg.Retriever.TopK),
		Assembler:  assembler.New(counter, cfg.Assembler.MaxTokens, cfg.Assembler.MaxHistory, cfg.Assembler.Preamble),
		Router:     route,
		Screener:   screen,
		Summarizer: summarizer.NewFrequency(),
		Model:      cfg.Router.Model,
	})

	ctx := context.Background()
	var summaries []string
	for _, path := range inputs {
		data, err := os.ReadFile(path)
		if err != nil {
			log.Fatalf("read %s: %v", path, err)
		}
		name := filepath.Base(path)
		sum, err := pipeline.Ingest(ctx, domain.Document{
			OwnerID:    owner,
			SourceID:   name,
			SourceName: name,
			Content:    string(data),
			Modality:   domain.ModalityText,
		})
		if err != nil {
			log.Fatalf("ingest %s: %v", path, err)
		}
		summaries = append(summaries, fmt.Sprintf("%s: %d chunks", sum.SourceID, sum.Chunks))
	}

	m := tui.New(pipeline, owner, strings.Join(summaries, " | "))
	if _, err := tea.NewProgram(m).Run(); err != nil {
		log.Fatal(err)
	}
}
