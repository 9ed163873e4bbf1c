package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"NewsAggregator/internal/config"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewWithoutCredentialsServesReadsOnly(t *testing.T) {
	t.Parallel()

	application, err := New(context.Background(), config.Config{}, quietLogger())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer application.Close()

	if _, err := application.RunOnce(context.Background(), 0); !errors.Is(err, ErrPipelineUnavailable) {
		t.Fatalf("expected ErrPipelineUnavailable, got %v", err)
	}
	if err := application.SetupDB(context.Background()); !errors.Is(err, ErrDatabaseRequired) {
		t.Fatalf("expected ErrDatabaseRequired, got %v", err)
	}
	if err := application.Schedule(context.Background()); !errors.Is(err, ErrPipelineUnavailable) {
		t.Fatalf("expected ErrPipelineUnavailable from schedule, got %v", err)
	}
}

func TestNewBuildsPipelineWithKey(t *testing.T) {
	t.Parallel()

	cfg := config.Config{
		LLM:      config.LLMConfig{APIKey: "test-key", Model: "gpt-4o-mini", BaseURL: "http://127.0.0.1:1/v1"},
		Pipeline: config.PipelineConfig{Concurrency: 2},
		Sources:  []config.SourceConfig{{Kind: "feed", URL: "http://127.0.0.1:1/feed"}},
	}
	application, err := New(context.Background(), cfg, quietLogger())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer application.Close()

	if application.pipeline == nil {
		t.Fatalf("expected pipeline to be built")
	}
}
