package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/zombor/yen-lens/internal/converter"
	"github.com/zombor/yen-lens/internal/lens"
	"github.com/zombor/yen-lens/internal/scanning"
)

// errMissingAPIKey stops startup when the Gemini backend has no credential
var errMissingAPIKey = errors.New("gemini API key is required: set --gemini-key or GEMINI_API_KEY")

// newClient builds the AI backend selected by --scanner
func newClient(s *settings) (scanning.Client, error) {
	opts := scanning.Options{JPYPerEUR: *s.rate, Timeout: *s.timeout}

	switch *s.scanner {
	case "gemini":
		apiKey := *s.geminiKey
		if apiKey == "" {
			apiKey = os.Getenv("GEMINI_API_KEY")
		}
		if apiKey == "" {
			return nil, errMissingAPIKey
		}
		opts.Model = *s.geminiModel
		slog.Info("Initializing Gemini scanner...", "model", opts.Model)
		return scanning.NewGemini(apiKey, opts)
	case "ollama":
		opts.Model = *s.ollamaModel
		slog.Info("Initializing Ollama scanner...", "url", *s.ollamaURL, "model", opts.Model)
		return scanning.NewOllama(*s.ollamaURL, opts)
	default:
		return nil, fmt.Errorf("invalid scanner type %q: valid types are gemini or ollama", *s.scanner)
	}
}

// app is the wired application layer shared by every command
type app struct {
	client  scanning.Client
	service *lens.Service
	db      *lens.BoltDB
}

func newApp(s *settings) (*app, error) {
	client, err := newClient(s)
	if err != nil {
		return nil, err
	}

	conv, err := converter.New(client, *s.rate, slog.Default())
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("creating converter: %w", err)
	}

	cfg := lens.ServiceConfig{Timeout: *s.timeout}
	a := &app{client: client}
	if *s.historyDB != "" {
		slog.Info("Initializing history database...", "path", *s.historyDB)
		a.db, err = lens.NewBoltDB(*s.historyDB)
		if err != nil {
			client.Close()
			return nil, fmt.Errorf("opening history database: %w", err)
		}
		store, err := lens.NewLocalStorage(*s.storage)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("initializing storage: %w", err)
		}
		cfg.DB = a.db
		cfg.Storage = store
	}

	a.service = lens.NewService(conv, client, cfg)
	return a, nil
}

func (a *app) Close() {
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			slog.Warn("Failed to close history database", "error", err)
		}
	}
	if err := a.client.Close(); err != nil {
		slog.Warn("Failed to close scanner", "error", err)
	}
}
